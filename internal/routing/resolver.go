package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/lanemap/lanemap/internal/compose"
	"github.com/lanemap/lanemap/internal/network"
	"github.com/lanemap/lanemap/internal/telemetry"
)

const tracerName = "github.com/lanemap/lanemap/internal/routing"

// Locator maps facility names to coordinates. *network.Facilities implements it.
type Locator interface {
	Locate(name string) (Coordinate, bool)
}

// ResolverConfig holds configuration for the path resolver.
type ResolverConfig struct {
	// Providers maps each tier to the provider serving it.
	Providers map[Tier]Provider

	// Store holds resolution state and paths (default: in-memory LRU).
	Store Store

	// Logger for resolver operations.
	Logger zerolog.Logger

	// Metrics records resolution outcomes (optional).
	Metrics *telemetry.ResolverMetrics

	// ChunkSize is the number of units resolved concurrently in a batch (default: 5).
	ChunkSize int

	// FreeChunkDelay is the pause between batch chunks on the free tier (default: 1s).
	FreeChunkDelay time.Duration
}

// Default batch settings.
const (
	DefaultChunkSize      = 5
	DefaultFreeChunkDelay = time.Second
)

// Resolver resolves trip unit paths and records their state in a Store.
type Resolver struct {
	providers map[Tier]Provider
	store     Store
	logger    zerolog.Logger
	metrics   *telemetry.ResolverMetrics
	tracer    trace.Tracer
	chunkSize int
	freeDelay time.Duration

	inflight singleflight.Group
}

// NewResolver creates a new path resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore(0, 0)
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	freeDelay := cfg.FreeChunkDelay
	if freeDelay < 0 {
		freeDelay = 0
	} else if freeDelay == 0 {
		freeDelay = DefaultFreeChunkDelay
	}

	providers := make(map[Tier]Provider, len(cfg.Providers))
	for tier, p := range cfg.Providers {
		if p != nil {
			providers[tier] = p
		}
	}

	return &Resolver{
		providers: providers,
		store:     store,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		tracer:    otel.Tracer(tracerName),
		chunkSize: chunkSize,
		freeDelay: freeDelay,
	}
}

// Store returns the path store backing the resolver.
func (r *Resolver) Store() Store {
	return r.store
}

// Tiers returns the configured tiers and their provider names.
func (r *Resolver) Tiers() map[Tier]string {
	out := make(map[Tier]string, len(r.providers))
	for tier, p := range r.providers {
		out[tier] = p.Name()
	}
	return out
}

// waypoint is one request point standing for one or more consecutive stops at the same coordinate.
type waypoint struct {
	names []string
	at    Coordinate
}

func (w waypoint) first() string { return w.names[0] }
func (w waypoint) last() string  { return w.names[len(w.names)-1] }

type plan struct {
	key       string
	tier      Tier
	waypoints []waypoint
	steps     bool
}

func (p plan) points() []Coordinate {
	out := make([]Coordinate, len(p.waypoints))
	for i, w := range p.waypoints {
		out[i] = w.at
	}
	return out
}

// Resolve resolves a unit: Direct units as a single pair, everything else as one multi-stop request.
func (r *Resolver) Resolve(ctx context.Context, u compose.TripUnit, loc Locator, tier Tier) (*ResolvedPath, error) {
	if u.Kind == compose.KindDirect && len(u.Outbound) == 1 {
		return r.ResolveDirect(ctx, u.Outbound[0], loc, tier)
	}
	return r.ResolveMultiStop(ctx, u, loc, tier)
}

// ResolveDirect resolves one origin to destination pair with its named-road breakdown.
func (r *Resolver) ResolveDirect(ctx context.Context, l network.Leg, loc Locator, tier Tier) (*ResolvedPath, error) {
	from, okFrom := loc.Locate(l.Origin)
	to, okTo := loc.Locate(l.Destination)
	if !okFrom || !okTo {
		return nil, ErrUnresolvable
	}

	return r.resolve(ctx, plan{
		key:  PairKey(tier, from, to),
		tier: tier,
		waypoints: []waypoint{
			{names: []string{l.Origin}, at: from},
			{names: []string{l.Destination}, at: to},
		},
		steps: true,
	})
}

// ResolveMultiStop resolves the unit's stop sequence in one request. Stops
// without coordinates are skipped and consecutive stops sharing a coordinate
// are sent as one waypoint.
func (r *Resolver) ResolveMultiStop(ctx context.Context, u compose.TripUnit, loc Locator, tier Tier) (*ResolvedPath, error) {
	wps := waypoints(compose.Stops(u), loc)
	if len(wps) == 0 || (len(wps) == 1 && len(wps[0].names) < 2) {
		return nil, ErrUnresolvable
	}

	p := plan{tier: tier, waypoints: wps, steps: len(wps) == 2}
	p.key = UnitKey(tier, u.ID, p.points())
	return r.resolve(ctx, p)
}

// Lookup returns the stored entry for a unit without resolving it.
func (r *Resolver) Lookup(ctx context.Context, u compose.TripUnit, loc Locator, tier Tier) Entry {
	var key string
	if u.Kind == compose.KindDirect && len(u.Outbound) == 1 {
		from, okFrom := loc.Locate(u.Outbound[0].Origin)
		to, okTo := loc.Locate(u.Outbound[0].Destination)
		if !okFrom || !okTo {
			return Entry{State: StateUnresolved, Tier: tier}
		}
		key = PairKey(tier, from, to)
	} else {
		wps := waypoints(compose.Stops(u), loc)
		p := plan{waypoints: wps}
		key = UnitKey(tier, u.ID, p.points())
	}

	e, ok := r.get(ctx, key)
	if !ok {
		return Entry{State: StateUnresolved, Tier: tier}
	}
	return e
}

func waypoints(stops []compose.Stop, loc Locator) []waypoint {
	var out []waypoint
	for _, s := range stops {
		at, ok := loc.Locate(s.Facility)
		if !ok {
			continue
		}
		if n := len(out); n > 0 && out[n-1].at == at {
			out[n-1].names = append(out[n-1].names, s.Facility)
			continue
		}
		out = append(out, waypoint{names: []string{s.Facility}, at: at})
	}
	return out
}

func (r *Resolver) provider(tier Tier) (Provider, error) {
	p, ok := r.providers[tier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
	return p, nil
}

func (r *Resolver) resolve(ctx context.Context, p plan) (*ResolvedPath, error) {
	prov, err := r.provider(p.tier)
	if err != nil {
		return nil, err
	}

	for _, pt := range p.points() {
		if err := validateCoordinates(pt); err != nil {
			return nil, &Error{
				Provider: prov.Name(),
				Code:     "INVALID_COORDINATES",
				Message:  "waypoint coordinates out of range",
				Err:      ErrInvalidCoordinates,
			}
		}
	}

	if e, ok := r.get(ctx, p.key); ok && e.State == StateResolved && e.Path != nil {
		r.metrics.RecordCacheHit(ctx, string(p.tier))
		r.logger.Debug().
			Str("cache_key", p.key).
			Msg("path store hit")
		return e.Path, nil
	}
	r.metrics.RecordCacheMiss(ctx, string(p.tier))

	// concurrent requests for the same key share one provider call
	for {
		v, err, _ := r.inflight.Do(p.key, func() (any, error) {
			return r.fetch(ctx, prov, p)
		})
		var abandoned *abandonedError
		if errors.As(err, &abandoned) && ctx.Err() == nil {
			// the caller that ran the shared call went away; this one has not
			continue
		}
		if err != nil {
			return nil, err
		}
		return v.(*ResolvedPath), nil
	}
}

// abandonedError reports a provider call cut short by its caller's context.
type abandonedError struct {
	cause error
}

func (e *abandonedError) Error() string { return e.cause.Error() }
func (e *abandonedError) Unwrap() error { return e.cause }

func (r *Resolver) fetch(ctx context.Context, prov Provider, p plan) (*ResolvedPath, error) {
	if e, ok := r.get(ctx, p.key); ok && e.State == StateResolved && e.Path != nil {
		return e.Path, nil
	}

	if len(p.waypoints) == 1 {
		path := aliasOnlyPath(p, prov.Name())
		r.put(ctx, p.key, Entry{State: StateResolved, Tier: p.tier, Path: path})
		return path, nil
	}

	r.put(ctx, p.key, Entry{State: StateResolving, Tier: p.tier})

	r.logger.Debug().
		Str("cache_key", p.key).
		Str("tier", string(p.tier)).
		Str("provider", prov.Name()).
		Int("waypoints", len(p.waypoints)).
		Msg("fetching path from provider")

	start := time.Now()
	resp, err := prov.Route(ctx, RouteRequest{Points: p.points(), Steps: p.steps})
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			r.put(ctx, p.key, Entry{State: StateUnresolved, Tier: p.tier})
			r.metrics.RecordResolve(ctx, string(p.tier), prov.Name(), telemetry.OutcomeCancelled, elapsed)
			return nil, &abandonedError{cause: ctx.Err()}
		}
		r.put(ctx, p.key, Entry{State: StateResolveFailed, Tier: p.tier, Error: err.Error()})
		r.metrics.RecordResolve(ctx, string(p.tier), prov.Name(), telemetry.OutcomeFailed, elapsed)
		r.logger.Warn().Err(err).
			Str("cache_key", p.key).
			Str("provider", prov.Name()).
			Msg("path resolution failed")
		return nil, err
	}
	if len(resp.Geometry) == 0 && resp.DistanceMeters == 0 {
		err := &Error{Provider: prov.Name(), Code: "EMPTY_ROUTE", Message: "provider returned an empty route", Err: ErrNoRouteFound}
		r.put(ctx, p.key, Entry{State: StateResolveFailed, Tier: p.tier, Error: err.Error()})
		r.metrics.RecordResolve(ctx, string(p.tier), prov.Name(), telemetry.OutcomeFailed, elapsed)
		return nil, err
	}

	path := buildPath(p, resp)
	r.put(ctx, p.key, Entry{State: StateResolved, Tier: p.tier, Path: path})
	r.metrics.RecordResolve(ctx, string(p.tier), prov.Name(), telemetry.OutcomeResolved, elapsed)

	r.logger.Debug().
		Str("cache_key", p.key).
		Float64("distance_m", path.DistanceMeters).
		Int("hops", len(path.Hops)).
		Dur("elapsed", elapsed).
		Msg("stored resolved path")

	return path, nil
}

func (r *Resolver) get(ctx context.Context, key string) (Entry, bool) {
	e, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.logger.Warn().Err(err).Str("cache_key", key).Msg("path store read failed")
		return Entry{}, false
	}
	return e, ok
}

// put writes an entry. A non-resolved state never replaces a resolved path.
func (r *Resolver) put(ctx context.Context, key string, e Entry) {
	ctx = context.WithoutCancel(ctx)
	if e.State != StateResolved {
		if cur, ok := r.get(ctx, key); ok && cur.State == StateResolved {
			return
		}
	}
	e.UpdatedAt = time.Now()
	if err := r.store.Put(ctx, key, e); err != nil {
		r.logger.Warn().Err(err).Str("cache_key", key).Msg("path store write failed")
	}
}

func buildPath(p plan, resp *RouteResponse) *ResolvedPath {
	path := &ResolvedPath{
		Key:             p.key,
		Tier:            p.tier,
		Provider:        resp.Provider,
		Geometry:        resp.Geometry,
		DistanceMeters:  resp.DistanceMeters,
		DurationSeconds: resp.DurationSeconds,
		FetchedAt:       resp.FetchedAt,
	}
	if path.FetchedAt.IsZero() {
		path.FetchedAt = time.Now()
	}

	for i, w := range p.waypoints {
		path.Hops = append(path.Hops, aliasHops(w)...)
		if i == len(p.waypoints)-1 {
			break
		}
		hop := Hop{From: w.last(), To: p.waypoints[i+1].first()}
		switch {
		case i < len(resp.Legs):
			hop.DistanceMeters = resp.Legs[i].DistanceMeters
			hop.DurationSeconds = resp.Legs[i].DurationSeconds
		case len(p.waypoints) == 2:
			hop.DistanceMeters = resp.DistanceMeters
			hop.DurationSeconds = resp.DurationSeconds
		default:
			// provider gave no per-hop figures for this hop
			continue
		}
		path.Hops = append(path.Hops, hop)
	}

	if p.steps {
		path.Segments = Segments(resp.Steps)
	}
	return path
}

func aliasOnlyPath(p plan, provider string) *ResolvedPath {
	w := p.waypoints[0]
	return &ResolvedPath{
		Key:       p.key,
		Tier:      p.tier,
		Provider:  provider,
		Geometry:  []Coordinate{w.at},
		Hops:      aliasHops(w),
		FetchedAt: time.Now(),
	}
}

// aliasHops links stops sharing one waypoint with zero-length hops.
func aliasHops(w waypoint) []Hop {
	var out []Hop
	for i := 1; i < len(w.names); i++ {
		out = append(out, Hop{From: w.names[i-1], To: w.names[i]})
	}
	return out
}

// UnnamedRoad labels steps the provider returned without a road name.
const UnnamedRoad = "Unnamed road"

// Segments groups steps by road name in first-seen order.
func Segments(steps []Step) []RoadSegment {
	var out []RoadSegment
	index := make(map[string]int)
	for _, s := range steps {
		road := s.Road
		if road == "" || road == "-" {
			road = UnnamedRoad
		}
		i, ok := index[road]
		if !ok {
			i = len(out)
			index[road] = i
			out = append(out, RoadSegment{Road: road})
		}
		out[i].DistanceMeters += s.DistanceMeters
		out[i].DurationSeconds += s.DurationSeconds
	}
	for i := range out {
		if out[i].DurationSeconds > 0 {
			out[i].AvgSpeedKmh = (out[i].DistanceMeters / 1000) / (out[i].DurationSeconds / 3600)
		}
	}
	return out
}

// BatchOptions configures BatchResolve.
type BatchOptions struct {
	Tier Tier
	// ChunkSize overrides the resolver's chunk size when positive.
	ChunkSize int
}

// BatchResult is one unit's outcome in a batch.
type BatchResult struct {
	UnitID    string        `json:"unitId"`
	State     State         `json:"state"`
	Path      *ResolvedPath `json:"path,omitempty"`
	Error     string        `json:"error,omitempty"`
	Err       error         `json:"-"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
}

// BatchResolve resolves units chunk by chunk. Units within a chunk run
// concurrently; chunks run in sequence with a pause between them on the
// free tier. Results arrive on the returned channel as units finish and the
// channel is closed once every unit is reported. A failed unit does not stop
// the batch. When ctx is cancelled, units that did not complete are reported
// as StateUnresolved.
func (r *Resolver) BatchResolve(ctx context.Context, units []compose.TripUnit, loc Locator, opts BatchOptions) <-chan BatchResult {
	out := make(chan BatchResult, len(units))

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = r.chunkSize
	}
	var delay time.Duration
	if opts.Tier == TierFree {
		delay = r.freeDelay
	}

	go func() {
		defer close(out)
		b := newBatch(out, len(units))

		ctx, span := r.tracer.Start(ctx, "routing.BatchResolve", trace.WithAttributes(
			attribute.String("resolver.tier", string(opts.Tier)),
			attribute.Int("resolver.units", len(units)),
			attribute.Int("resolver.chunk_size", chunkSize),
		))
		defer span.End()

		r.logger.Info().
			Str("tier", string(opts.Tier)).
			Int("units", len(units)).
			Int("chunk_size", chunkSize).
			Msg("batch resolve started")

		for start := 0; start < len(units); start += chunkSize {
			end := min(start+chunkSize, len(units))

			if start > 0 && delay > 0 {
				t := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					t.Stop()
				case <-t.C:
				}
			}
			if ctx.Err() != nil {
				b.abandon(units[start:], ctx.Err())
				span.SetStatus(codes.Error, "batch cancelled")
				break
			}

			r.runChunk(ctx, units[start:end], loc, opts.Tier, start/chunkSize, b)
		}

		r.logger.Info().
			Str("tier", string(opts.Tier)).
			Int("total", len(units)).
			Int("failed", b.failed).
			Msg("batch resolve finished")
	}()

	return out
}

func (r *Resolver) runChunk(ctx context.Context, chunk []compose.TripUnit, loc Locator, tier Tier, index int, b *batch) {
	ctx, span := r.tracer.Start(ctx, "routing.BatchResolve.chunk", trace.WithAttributes(
		attribute.Int("resolver.chunk", index),
		attribute.Int("resolver.units", len(chunk)),
	))
	defer span.End()

	// unit failures are reported, never returned, so one bad unit cannot cancel its siblings
	var g errgroup.Group
	for _, u := range chunk {
		g.Go(func() error {
			path, err := r.Resolve(ctx, u, loc, tier)
			b.report(u.ID, path, err)
			return nil
		})
	}
	_ = g.Wait()
}

// stateFor maps a resolution error to the state reported for a unit.
func stateFor(err error) State {
	switch {
	case err == nil:
		return StateResolved
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StateUnresolved
	default:
		return StateResolveFailed
	}
}
