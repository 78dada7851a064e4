// Package routing resolves the road path travelled by trip units against
// external routing providers and keeps the results in a path store.
package routing

import (
	"context"
	"errors"
	"time"

	"github.com/lanemap/lanemap/pkg/polyline"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the provider rejected the request for quota reasons.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrUnresolvable indicates a trip unit has fewer than two stops with known coordinates.
	ErrUnresolvable = errors.New("trip unit has fewer than two locatable stops")
	// ErrTierLocked indicates the requested tier is not enabled for the caller.
	ErrTierLocked = errors.New("routing tier is locked")
	// ErrUnknownTier indicates no provider is configured for the requested tier.
	ErrUnknownTier = errors.New("no provider configured for tier")
)

// Coordinate is a WGS84 point.
type Coordinate = polyline.Coordinate

// Tier selects which provider resolves a path.
type Tier string

const (
	// TierFree is the public, externally rate-limited provider.
	TierFree Tier = "free"
	// TierPrecision is the keyed provider, gated behind an unlock credential.
	TierPrecision Tier = "precision"
)

// ParseTier maps user input to a Tier, defaulting to TierFree.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case "", TierFree:
		return TierFree, nil
	case TierPrecision:
		return TierPrecision, nil
	default:
		return "", ErrUnknownTier
	}
}

// Provider computes a driving route through an ordered list of points.
type Provider interface {
	// Route returns one route visiting req.Points in order.
	Route(ctx context.Context, req RouteRequest) (*RouteResponse, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// RouteRequest is the input to Provider.Route.
type RouteRequest struct {
	Points []Coordinate
	// Steps asks the provider for its turn-by-turn step list.
	Steps bool
}

// RouteResponse is a provider-neutral route.
type RouteResponse struct {
	Geometry        []Coordinate
	DistanceMeters  float64
	DurationSeconds float64
	// Legs holds one entry per consecutive pair of request points.
	Legs      []LegSummary
	Steps     []Step
	Provider  string
	FetchedAt time.Time
}

// LegSummary is the distance and duration between two consecutive request points.
type LegSummary struct {
	DistanceMeters  float64
	DurationSeconds float64
}

// Step is one maneuver-to-maneuver stretch along a named road.
type Step struct {
	Road            string
	DistanceMeters  float64
	DurationSeconds float64
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}

// ResolvedPath is the road path of a trip unit.
type ResolvedPath struct {
	Key             string       `json:"key"`
	Tier            Tier         `json:"tier"`
	Provider        string       `json:"provider"`
	Geometry        []Coordinate `json:"geometry"`
	DistanceMeters  float64      `json:"distanceMeters"`
	DurationSeconds float64      `json:"durationSeconds"`
	// Segments is the named-road breakdown of a two-point resolution.
	Segments []RoadSegment `json:"segments,omitempty"`
	// Hops holds the stop-to-stop figures in visiting order.
	Hops      []Hop     `json:"hops"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Hop is the road distance and duration between two consecutive stops.
type Hop struct {
	From            string  `json:"from"`
	To              string  `json:"to"`
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// HopFrom returns the first hop from one facility to another at or after
// index start, with the index it was found at.
func (p *ResolvedPath) HopFrom(start int, from, to string) (Hop, int, bool) {
	if p == nil {
		return Hop{}, 0, false
	}
	for i := max(start, 0); i < len(p.Hops); i++ {
		if h := p.Hops[i]; h.From == from && h.To == to {
			return h, i, true
		}
	}
	return Hop{}, 0, false
}

// RoadSegment aggregates the steps travelled on one named road.
type RoadSegment struct {
	Road            string  `json:"road"`
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationSeconds float64 `json:"durationSeconds"`
	AvgSpeedKmh     float64 `json:"avgSpeedKmh"`
}

// State is the resolution status of a path-store entry.
type State string

// Resolution states.
const (
	StateUnresolved    State = "unresolved"
	StateResolving     State = "resolving"
	StateResolved      State = "resolved"
	StateResolveFailed State = "resolve_failed"
)

// Entry is what the path store holds for one key.
type Entry struct {
	State     State         `json:"state"`
	Tier      Tier          `json:"tier"`
	Path      *ResolvedPath `json:"path,omitempty"`
	Error     string        `json:"error,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// validateCoordinates checks if coordinates are within valid ranges.
func validateCoordinates(c Coordinate) error {
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}
