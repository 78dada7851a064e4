package routing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanemap/lanemap/internal/compose"
	"github.com/lanemap/lanemap/internal/network"
	"github.com/lanemap/lanemap/pkg/clock"
)

// mockProvider is a mock routing provider for testing.
type mockProvider struct {
	name      string
	callCount atomic.Int32
	delay     time.Duration

	mu       sync.Mutex
	requests []RouteRequest
	// fail, when set, decides per request whether the call fails.
	fail func(req RouteRequest) error
}

func (m *mockProvider) Route(ctx context.Context, req RouteRequest) (*RouteResponse, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.fail != nil {
		if err := m.fail(req); err != nil {
			return nil, err
		}
	}

	resp := &RouteResponse{Geometry: req.Points, Provider: m.name, FetchedAt: time.Now()}
	for i := 1; i < len(req.Points); i++ {
		leg := LegSummary{DistanceMeters: float64(i) * 1000, DurationSeconds: float64(i) * 600}
		resp.Legs = append(resp.Legs, leg)
		resp.DistanceMeters += leg.DistanceMeters
		resp.DurationSeconds += leg.DurationSeconds
	}
	if req.Steps {
		resp.Steps = []Step{
			{Road: "NH48", DistanceMeters: 600, DurationSeconds: 36},
			{Road: "", DistanceMeters: 100, DurationSeconds: 30},
			{Road: "NH48", DistanceMeters: 300, DurationSeconds: 18},
		}
	}
	return resp, nil
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) lastRequest() RouteRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

type locator map[string]Coordinate

func (l locator) Locate(name string) (Coordinate, bool) {
	c, ok := l[name]
	return c, ok
}

var testSites = locator{
	"H":  {Lat: 28.61, Lon: 77.20},
	"P1": {Lat: 28.70, Lon: 77.10},
	"P2": {Lat: 28.50, Lon: 77.30},
	"P3": {Lat: 28.40, Lon: 77.00},
	"X1": {Lat: 28.50, Lon: 77.30}, // same site as P2
}

func mkLeg(origin, dest, dep, arr, route string) network.Leg {
	return network.Leg{
		Origin:      origin,
		Destination: dest,
		Departure:   clock.MustParse(dep),
		Arrival:     clock.MustParse(arr),
		RouteID:     route,
		RouteSetID:  route,
	}
}

func newTestResolver(p *mockProvider) *Resolver {
	return NewResolver(ResolverConfig{
		Providers:      map[Tier]Provider{TierFree: p, TierPrecision: p},
		FreeChunkDelay: 10 * time.Millisecond,
	})
}

func TestResolver_DirectCacheShortCircuit(t *testing.T) {
	p := &mockProvider{name: "mock"}
	r := newTestResolver(p)
	l := mkLeg("H", "P1", "06:00", "08:00", network.NoRoute)

	first, err := r.ResolveDirect(context.Background(), l, testSites, TierFree)
	require.NoError(t, err)
	second, err := r.ResolveDirect(context.Background(), l, testSites, TierFree)
	require.NoError(t, err)

	assert.Equal(t, int32(1), p.callCount.Load(), "second resolve must be served from the store")
	assert.Same(t, first, second)
	assert.True(t, p.lastRequest().Steps)

	require.Len(t, first.Hops, 1)
	assert.Equal(t, Hop{From: "H", To: "P1", DistanceMeters: 1000, DurationSeconds: 600}, first.Hops[0])
}

func TestResolver_TiersCachedSeparately(t *testing.T) {
	p := &mockProvider{name: "mock"}
	r := newTestResolver(p)
	l := mkLeg("H", "P1", "06:00", "08:00", network.NoRoute)

	_, err := r.ResolveDirect(context.Background(), l, testSites, TierFree)
	require.NoError(t, err)
	_, err = r.ResolveDirect(context.Background(), l, testSites, TierPrecision)
	require.NoError(t, err)

	assert.Equal(t, int32(2), p.callCount.Load())
}

func TestResolver_DirectSegments(t *testing.T) {
	r := newTestResolver(&mockProvider{name: "mock"})

	path, err := r.ResolveDirect(context.Background(), mkLeg("H", "P1", "06:00", "08:00", network.NoRoute), testSites, TierFree)
	require.NoError(t, err)

	require.Len(t, path.Segments, 2)
	assert.Equal(t, "NH48", path.Segments[0].Road)
	assert.InDelta(t, 900, path.Segments[0].DistanceMeters, 1e-9)
	assert.InDelta(t, 60, path.Segments[0].AvgSpeedKmh, 1e-9)
	assert.Equal(t, UnnamedRoad, path.Segments[1].Road)
	assert.InDelta(t, 12, path.Segments[1].AvgSpeedKmh, 1e-9)
}

func TestResolver_UnknownFacility(t *testing.T) {
	p := &mockProvider{name: "mock"}
	r := newTestResolver(p)

	_, err := r.ResolveDirect(context.Background(), mkLeg("H", "GHOST", "06:00", "08:00", network.NoRoute), testSites, TierFree)
	assert.ErrorIs(t, err, ErrUnresolvable)
	assert.Zero(t, p.callCount.Load())
}

func TestResolver_UnknownTier(t *testing.T) {
	r := NewResolver(ResolverConfig{Providers: map[Tier]Provider{TierFree: &mockProvider{name: "mock"}}})

	_, err := r.ResolveDirect(context.Background(), mkLeg("H", "P1", "06:00", "08:00", network.NoRoute), testSites, TierPrecision)
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestResolver_MultiStopWaypoints(t *testing.T) {
	p := &mockProvider{name: "mock"}
	r := newTestResolver(p)

	units := compose.Compose([]network.Leg{
		mkLeg("H", "P1", "06:00", "08:00", "r1"),
		mkLeg("H", "P2", "06:00", "09:00", "r1"),
		mkLeg("H", "X1", "06:00", "09:30", "r1"),
		mkLeg("H", "GHOST", "06:00", "10:00", "r1"),
	})
	require.Len(t, units, 1)

	path, err := r.ResolveMultiStop(context.Background(), units[0], testSites, TierFree)
	require.NoError(t, err)

	// GHOST is dropped, P2 and X1 collapse into one waypoint
	req := p.lastRequest()
	assert.Equal(t, []Coordinate{testSites["H"], testSites["P1"], testSites["P2"]}, req.Points)
	assert.False(t, req.Steps)

	assert.Equal(t, []Hop{
		{From: "H", To: "P1", DistanceMeters: 1000, DurationSeconds: 600},
		{From: "P1", To: "P2", DistanceMeters: 2000, DurationSeconds: 1200},
		{From: "P2", To: "X1"},
	}, path.Hops)
	assert.InDelta(t, 3000, path.DistanceMeters, 1e-9)

	hop, at, ok := path.HopFrom(0, "P1", "P2")
	require.True(t, ok)
	assert.Equal(t, 1, at)
	assert.InDelta(t, 1200, hop.DurationSeconds, 1e-9)

	_, _, ok = path.HopFrom(at+1, "P1", "P2")
	assert.False(t, ok, "hops before start are skipped")
}

func TestResolvedPath_HopFromNil(t *testing.T) {
	var path *ResolvedPath
	_, _, ok := path.HopFrom(0, "H", "P1")
	assert.False(t, ok)
}

func TestResolver_MultiStopUnresolvable(t *testing.T) {
	p := &mockProvider{name: "mock"}
	r := newTestResolver(p)

	units := compose.Compose([]network.Leg{
		mkLeg("H", "GHOST", "06:00", "08:00", "r1"),
		mkLeg("H", "PHANTOM", "06:00", "09:00", "r1"),
	})
	require.Len(t, units, 1)

	_, err := r.ResolveMultiStop(context.Background(), units[0], testSites, TierFree)
	assert.ErrorIs(t, err, ErrUnresolvable)
	assert.Zero(t, p.callCount.Load())
}

func TestResolver_FailureRecordedAndRetryable(t *testing.T) {
	var broken atomic.Bool
	broken.Store(true)
	p := &mockProvider{name: "mock", fail: func(RouteRequest) error {
		if broken.Load() {
			return &Error{Provider: "mock", Code: "NO_ROUTE", Message: "no route", Err: ErrNoRouteFound}
		}
		return nil
	}}
	r := newTestResolver(p)
	u := compose.Compose([]network.Leg{mkLeg("H", "P1", "06:00", "08:00", network.NoRoute)})[0]

	_, err := r.Resolve(context.Background(), u, testSites, TierFree)
	require.ErrorIs(t, err, ErrNoRouteFound)

	e := r.Lookup(context.Background(), u, testSites, TierFree)
	assert.Equal(t, StateResolveFailed, e.State)
	assert.Contains(t, e.Error, "no route")

	broken.Store(false)
	path, err := r.Resolve(context.Background(), u, testSites, TierFree)
	require.NoError(t, err)
	assert.NotNil(t, path)
	assert.Equal(t, StateResolved, r.Lookup(context.Background(), u, testSites, TierFree).State)
	assert.Equal(t, int32(2), p.callCount.Load())
}

func TestResolver_LookupUnresolved(t *testing.T) {
	r := newTestResolver(&mockProvider{name: "mock"})
	u := compose.Compose([]network.Leg{mkLeg("H", "P1", "06:00", "08:00", "r9")})[0]

	assert.Equal(t, StateUnresolved, r.Lookup(context.Background(), u, testSites, TierFree).State)
}

func TestResolver_ConcurrentSameKeySharesCall(t *testing.T) {
	p := &mockProvider{name: "mock", delay: 50 * time.Millisecond}
	r := newTestResolver(p)
	l := mkLeg("H", "P1", "06:00", "08:00", network.NoRoute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.ResolveDirect(context.Background(), l, testSites, TierFree)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), p.callCount.Load())
}

func TestResolver_CancelledCallerDoesNotFailSharedKey(t *testing.T) {
	p := &mockProvider{name: "mock", delay: 200 * time.Millisecond}
	r := newTestResolver(p)
	l := mkLeg("H", "P1", "06:00", "08:00", network.NoRoute)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := r.ResolveDirect(leaderCtx, l, testSites, TierFree)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return p.callCount.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		path *ResolvedPath
		err  error
	}
	follower := make(chan result, 1)
	go func() {
		path, err := r.ResolveDirect(context.Background(), l, testSites, TierFree)
		follower <- result{path, err}
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	err := <-leaderErr
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateUnresolved, stateFor(err))

	got := <-follower
	require.NoError(t, got.err)
	require.NotNil(t, got.path)
	assert.Equal(t, int32(2), p.callCount.Load(), "live caller reissues the abandoned call")

	e, ok := r.get(context.Background(), PairKey(TierFree, testSites["H"], testSites["P1"]))
	require.True(t, ok)
	assert.Equal(t, StateResolved, e.State)
}

func collect(ch <-chan BatchResult) []BatchResult {
	var out []BatchResult
	for res := range ch {
		out = append(out, res)
	}
	return out
}

func fiveDirects() []compose.TripUnit {
	return compose.Compose([]network.Leg{
		mkLeg("H", "P1", "06:00", "08:00", network.NoRoute),
		mkLeg("H", "P2", "06:00", "08:00", network.NoRoute),
		mkLeg("H", "P3", "06:00", "08:00", network.NoRoute),
		mkLeg("P1", "P2", "06:00", "08:00", network.NoRoute),
		mkLeg("P2", "P3", "06:00", "08:00", network.NoRoute),
	})
}

func TestBatchResolve_IsolatesFailures(t *testing.T) {
	p := &mockProvider{name: "mock", fail: func(req RouteRequest) error {
		if req.Points[0] == testSites["P1"] {
			return &Error{Provider: "mock", Code: "SERVER_503", Message: "unavailable", Err: ErrProviderUnavailable}
		}
		return nil
	}}
	r := newTestResolver(p)
	units := fiveDirects()
	require.Len(t, units, 5)

	results := collect(r.BatchResolve(context.Background(), units, testSites, BatchOptions{Tier: TierPrecision}))
	require.Len(t, results, 5)

	byState := map[State]int{}
	for i, res := range results {
		byState[res.State]++
		assert.Equal(t, i+1, res.Completed, "progress increases by one per result")
		assert.Equal(t, 5, res.Total)
		if res.State == StateResolveFailed {
			assert.Nil(t, res.Path)
			assert.ErrorIs(t, res.Err, ErrProviderUnavailable)
		}
	}
	assert.Equal(t, 4, byState[StateResolved])
	assert.Equal(t, 1, byState[StateResolveFailed])
}

func TestBatchResolve_ChunksWithFreeDelay(t *testing.T) {
	p := &mockProvider{name: "mock"}
	r := NewResolver(ResolverConfig{
		Providers:      map[Tier]Provider{TierFree: p, TierPrecision: p},
		FreeChunkDelay: 80 * time.Millisecond,
	})
	units := fiveDirects()

	start := time.Now()
	results := collect(r.BatchResolve(context.Background(), units, testSites, BatchOptions{Tier: TierFree, ChunkSize: 2}))
	freeElapsed := time.Since(start)
	require.Len(t, results, 5)
	// three chunks, two pauses
	assert.GreaterOrEqual(t, freeElapsed, 160*time.Millisecond)

	r.Store().(*MemoryStore).lru.Purge()
	start = time.Now()
	results = collect(r.BatchResolve(context.Background(), units, testSites, BatchOptions{Tier: TierPrecision, ChunkSize: 2}))
	require.Len(t, results, 5)
	assert.Less(t, time.Since(start), 160*time.Millisecond, "precision tier does not pause between chunks")
}

func TestBatchResolve_CancelLeavesUnitsUnresolved(t *testing.T) {
	p := &mockProvider{name: "mock", delay: 200 * time.Millisecond}
	r := newTestResolver(p)
	units := fiveDirects()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	results := collect(r.BatchResolve(ctx, units, testSites, BatchOptions{Tier: TierFree, ChunkSize: 2}))
	require.Len(t, results, 5, "every unit is reported even after cancellation")

	for _, res := range results {
		assert.Equal(t, StateUnresolved, res.State, res.UnitID)
		assert.True(t, errors.Is(res.Err, context.DeadlineExceeded), res.UnitID)
	}
	// only the first chunk ever reached the provider
	assert.Equal(t, int32(2), p.callCount.Load())

	for _, u := range units {
		assert.NotEqual(t, StateResolving, r.Lookup(context.Background(), u, testSites, TierFree).State)
	}
}

func TestBatchResolve_Empty(t *testing.T) {
	r := newTestResolver(&mockProvider{name: "mock"})
	assert.Empty(t, collect(r.BatchResolve(context.Background(), nil, testSites, BatchOptions{Tier: TierFree})))
}

func TestSegments(t *testing.T) {
	segs := Segments([]Step{
		{Road: "Ring Road", DistanceMeters: 1000, DurationSeconds: 120},
		{Road: "-", DistanceMeters: 50, DurationSeconds: 0},
		{Road: "NH44", DistanceMeters: 5000, DurationSeconds: 300},
		{Road: "Ring Road", DistanceMeters: 500, DurationSeconds: 60},
	})

	require.Len(t, segs, 3)
	assert.Equal(t, "Ring Road", segs[0].Road)
	assert.InDelta(t, 1500, segs[0].DistanceMeters, 1e-9)
	assert.InDelta(t, 30, segs[0].AvgSpeedKmh, 1e-9)
	assert.Equal(t, UnnamedRoad, segs[1].Road)
	assert.Zero(t, segs[1].AvgSpeedKmh)
	assert.InDelta(t, 60, segs[2].AvgSpeedKmh, 1e-9)
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("")
	require.NoError(t, err)
	assert.Equal(t, TierFree, tier)

	tier, err = ParseTier("precision")
	require.NoError(t, err)
	assert.Equal(t, TierPrecision, tier)

	_, err = ParseTier("gold")
	assert.ErrorIs(t, err, ErrUnknownTier)
}
