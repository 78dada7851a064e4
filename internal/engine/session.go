// Package engine holds the loaded logistics network and runs the pipeline
// from raw rows to trip units, resolved paths and stop manifests.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lanemap/lanemap/internal/compose"
	"github.com/lanemap/lanemap/internal/network"
	"github.com/lanemap/lanemap/internal/routing"
	"github.com/lanemap/lanemap/internal/timeline"
)

// Predefined engine errors.
var (
	ErrUnknownFacility = errors.New("unknown facility")
	ErrUnknownUnit     = errors.New("unknown trip unit")
	ErrNotDirect       = errors.New("segments are only available for direct trips")
	ErrNotResolved     = errors.New("trip path is not resolved")
)

// Config holds configuration for a Session.
type Config struct {
	Resolver *routing.Resolver
	Logger   zerolog.Logger
}

// Session is the currently loaded network. It is safe for concurrent use;
// Load swaps the whole network at once.
type Session struct {
	resolver *routing.Resolver
	logger   zerolog.Logger

	mu         sync.RWMutex
	facilities *network.Facilities
	legs       *network.LegSet
	degrees    map[string]network.Degree
	units      []compose.TripUnit
	byID       map[string]compose.TripUnit
	loadedAt   time.Time
}

// New creates an empty session.
func New(cfg Config) *Session {
	return &Session{
		resolver:   cfg.Resolver,
		logger:     cfg.Logger,
		facilities: network.BuildFacilities(nil),
		legs:       network.BuildLegs(nil),
		degrees:    map[string]network.Degree{},
		byID:       map[string]compose.TripUnit{},
	}
}

// Summary describes the loaded network.
type Summary struct {
	FacilityRows int                  `json:"facilityRows"`
	Facilities   int                  `json:"facilities"`
	Visible      int                  `json:"visibleFacilities"`
	LegRows      int                  `json:"legRows"`
	Legs         int                  `json:"legs"`
	Unlocated    int                  `json:"unlocatedLegs"`
	Units        map[compose.Kind]int `json:"units"`
	LoadedAt     time.Time            `json:"loadedAt"`
}

// Load replaces the session network with one built from the given rows.
func (s *Session) Load(facilityRows, legRows []network.Row) Summary {
	facilities := network.BuildFacilities(facilityRows)
	legs := network.BuildLegs(legRows)
	units := compose.Compose(legs.Legs)

	byID := make(map[string]compose.TripUnit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}

	s.mu.Lock()
	s.facilities = facilities
	s.legs = legs
	s.degrees = network.DegreeStats(legs.Legs)
	s.units = units
	s.byID = byID
	s.loadedAt = time.Now()
	s.mu.Unlock()

	summary := s.Summary()
	s.logger.Info().
		Int("facilities", summary.Facilities).
		Int("legs", summary.Legs).
		Int("unlocated_legs", summary.Unlocated).
		Int("units", len(units)).
		Msg("network loaded")
	return summary
}

// Summary returns counts for the loaded network.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Summary{
		FacilityRows: s.facilities.TotalRows,
		Facilities:   s.facilities.Active,
		Visible:      len(network.Visible(s.facilities, s.degrees)),
		LegRows:      s.legs.TotalRows,
		Legs:         s.legs.Valid,
		Units:        make(map[compose.Kind]int),
		LoadedAt:     s.loadedAt,
	}
	for _, l := range s.legs.Legs {
		if !s.facilities.Resolved(l) {
			out.Unlocated++
		}
	}
	for _, u := range s.units {
		out.Units[u.Kind]++
	}
	return out
}

// FacilityView is a visible facility with its degree.
type FacilityView struct {
	network.Facility
	In  int `json:"in"`
	Out int `json:"out"`
}

// Facilities returns the facilities that have at least one leg.
func (s *Session) Facilities() []FacilityView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visible := network.Visible(s.facilities, s.degrees)
	out := make([]FacilityView, len(visible))
	for i, f := range visible {
		d := s.degrees[f.Name]
		out[i] = FacilityView{Facility: f, In: d.In, Out: d.Out}
	}
	return out
}

// Modes returns the distinct vehicle modes in the network.
func (s *Session) Modes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return network.Modes(s.legs.Legs)
}

// Focus returns traffic statistics for one facility.
func (s *Session) Focus(name string, filter network.FocusFilter) (network.Focus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.facilities.Lookup(name); !ok {
		return network.Focus{}, ErrUnknownFacility
	}
	return network.FocusStats(name, s.legs.Legs, s.facilities, filter), nil
}

// TripsFor composes the trip units seen from one facility. The units become
// addressable by ID for later resolve and manifest calls.
func (s *Session) TripsFor(name string) ([]compose.TripUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.facilities.Lookup(name); !ok {
		return nil, ErrUnknownFacility
	}
	units := compose.ComposeFor(name, s.legs.Legs)
	for _, u := range units {
		s.byID[u.ID] = u
	}
	return units, nil
}

// Unit returns a trip unit by ID.
func (s *Session) Unit(id string) (compose.TripUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return compose.TripUnit{}, ErrUnknownUnit
	}
	return u, nil
}

// routable drops legs whose endpoints are not known facilities. Units with
// no such leg are returned unchanged and fail resolution as unresolvable.
func routable(u compose.TripUnit, facilities *network.Facilities) compose.TripUnit {
	if r, ok := u.Restrict(facilities.Resolved); ok {
		return r
	}
	return u
}

// Resolve starts a batch resolution of the given units. Precision requests
// are refused unless unlocked is set, and tiers without a provider are refused.
func (s *Session) Resolve(ctx context.Context, ids []string, tier routing.Tier, unlocked bool) (<-chan routing.BatchResult, error) {
	if tier == routing.TierPrecision && !unlocked {
		return nil, routing.ErrTierLocked
	}
	if _, ok := s.resolver.Tiers()[tier]; !ok {
		return nil, fmt.Errorf("%w: %s", routing.ErrUnknownTier, tier)
	}

	s.mu.RLock()
	facilities := s.facilities
	units := make([]compose.TripUnit, 0, len(ids))
	for _, id := range ids {
		u, ok := s.byID[id]
		if !ok {
			s.mu.RUnlock()
			return nil, ErrUnknownUnit
		}
		units = append(units, routable(u, facilities))
	}
	s.mu.RUnlock()

	s.logger.Info().
		Str("tier", string(tier)).
		Int("units", len(units)).
		Msg("resolving trip units")

	return s.resolver.BatchResolve(ctx, units, facilities, routing.BatchOptions{Tier: tier}), nil
}

// Trip is a unit with its resolution state and reconciled timeline.
type Trip struct {
	Unit     compose.TripUnit      `json:"unit"`
	State    routing.State         `json:"state"`
	Error    string                `json:"error,omitempty"`
	Path     *routing.ResolvedPath `json:"path,omitempty"`
	Manifest timeline.Manifest     `json:"manifest"`
}

// Trip reconciles a unit against whatever path the store holds for tier.
// It never calls a provider.
func (s *Session) Trip(ctx context.Context, id string, tier routing.Tier) (Trip, error) {
	u, facilities, err := s.unitWithFacilities(id)
	if err != nil {
		return Trip{}, err
	}

	unit, ok := u.Restrict(facilities.Resolved)
	if !ok {
		return Trip{
			Unit:  u,
			State: routing.StateUnresolved,
			Manifest: timeline.Manifest{
				UnitID:  u.ID,
				Kind:    u.Kind,
				Entries: []timeline.Entry{},
			},
		}, nil
	}
	entry := s.resolver.Lookup(ctx, unit, facilities, tier)

	var path *routing.ResolvedPath
	if entry.State == routing.StateResolved {
		path = entry.Path
	}
	return Trip{
		Unit:     unit,
		State:    entry.State,
		Error:    entry.Error,
		Path:     path,
		Manifest: timeline.Reconcile(unit, path),
	}, nil
}

// Segments returns the named-road breakdown of a resolved Direct unit.
func (s *Session) Segments(ctx context.Context, id string, tier routing.Tier) ([]routing.RoadSegment, error) {
	u, facilities, err := s.unitWithFacilities(id)
	if err != nil {
		return nil, err
	}
	if u.Kind != compose.KindDirect {
		return nil, ErrNotDirect
	}

	entry := s.resolver.Lookup(ctx, u, facilities, tier)
	if entry.State != routing.StateResolved || entry.Path == nil {
		return nil, ErrNotResolved
	}
	return entry.Path.Segments, nil
}

// Tiers maps each configured routing tier to its provider name.
func (s *Session) Tiers() map[routing.Tier]string {
	return s.resolver.Tiers()
}

// StoreStats reports the path store contents.
func (s *Session) StoreStats(ctx context.Context) routing.StoreStats {
	return s.resolver.Store().Stats(ctx)
}

func (s *Session) unitWithFacilities(id string) (compose.TripUnit, *network.Facilities, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return compose.TripUnit{}, nil, ErrUnknownUnit
	}
	return u, s.facilities, nil
}
