package resilience_test

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanemap/lanemap/internal/provider/resilience"
)

func register(t *testing.T, registry *resilience.Registry, names ...string) {
	t.Helper()
	for _, name := range names {
		cfg := resilience.DefaultClientConfig(name)
		cfg.Registry = registry
		_ = resilience.NewClient(cfg)
	}
}

func TestRegistry_NewClientRegisters(t *testing.T) {
	registry := resilience.NewRegistry()
	register(t, registry, "osrm")

	health := registry.Health("osrm")
	require.NotNil(t, health)
	assert.Equal(t, "osrm", health.Name)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.Equal(t, resilience.LevelHealthy, health.Level())
	assert.Nil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)
	assert.Zero(t, health.Failures)
}

func TestRegistry_Observe(t *testing.T) {
	registry := resilience.NewRegistry()
	register(t, registry, "openrouteservice")

	registry.Observe("openrouteservice", nil)
	health := registry.Health("openrouteservice")
	require.NotNil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)

	registry.Observe("openrouteservice", errors.New("quota exhausted"))
	registry.Observe("openrouteservice", errors.New("no route"))
	health = registry.Health("openrouteservice")
	require.NotNil(t, health.LastFailureAt)
	assert.NotNil(t, health.LastSuccessAt)
	assert.Equal(t, "no route", health.LastError)
	assert.Equal(t, 2, health.Failures)
}

func TestRegistry_UnknownProvider(t *testing.T) {
	registry := resilience.NewRegistry()

	assert.Nil(t, registry.Health("valhalla"))
	assert.NotPanics(t, func() { registry.Observe("valhalla", errors.New("down")) })
	assert.Empty(t, registry.Snapshot())
	assert.Empty(t, registry.Names())
}

func TestRegistry_SnapshotOrderedByName(t *testing.T) {
	registry := resilience.NewRegistry()
	register(t, registry, "osrm", "openrouteservice", "local-osrm")

	var got []string
	for _, h := range registry.Snapshot() {
		got = append(got, h.Name)
		assert.Equal(t, resilience.LevelHealthy, h.Level())
	}
	assert.Equal(t, []string{"local-osrm", "openrouteservice", "osrm"}, got)
	assert.Equal(t, got, registry.Names())
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	registry := resilience.NewRegistry()
	register(t, registry, "osrm")
	registry.Observe("osrm", errors.New("timeout"))

	register(t, registry, "osrm")

	health := registry.Health("osrm")
	require.NotNil(t, health)
	assert.Zero(t, health.Failures)
	assert.Len(t, registry.Names(), 1)
}

func TestProviderHealth_Level(t *testing.T) {
	tests := []struct {
		state gobreaker.State
		want  resilience.Level
	}{
		{gobreaker.StateClosed, resilience.LevelHealthy},
		{gobreaker.StateHalfOpen, resilience.LevelDegraded},
		{gobreaker.StateOpen, resilience.LevelDown},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			h := &resilience.ProviderHealth{CircuitState: tt.state}
			assert.Equal(t, tt.want, h.Level())
		})
	}
}
