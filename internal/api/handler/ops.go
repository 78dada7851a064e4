// Package handler provides the HTTP handlers of the lanemap API.
package handler

import (
	"net/http"
	"sort"
	"time"

	"github.com/lanemap/lanemap/internal/api/models"
	"github.com/lanemap/lanemap/internal/api/response"
	"github.com/lanemap/lanemap/internal/engine"
	"github.com/lanemap/lanemap/internal/provider/resilience"
	"github.com/lanemap/lanemap/internal/routing"
	"github.com/lanemap/lanemap/internal/unlock"
)

// OpsHandler serves health and status endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	session   *engine.Session
	registry  *resilience.Registry
	unlock    *unlock.Service
}

// OpsConfig holds the OpsHandler dependencies. Registry and Unlock may be nil.
type OpsConfig struct {
	Version   string
	BuildTime string
	Session   *engine.Session
	Registry  *resilience.Registry
	Unlock    *unlock.Service
}

// NewOpsHandler creates an OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		session:   cfg.Session,
		registry:  cfg.Registry,
		unlock:    cfg.Unlock,
	}
}

// HealthCheck handles GET /v1/ops/health.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// SystemStatus handles GET /v1/ops/status. A store read failure answers 503;
// an open or half-open provider breaker only degrades the status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(time.Now()),
		Providers: h.providerStatuses(),
		Store:     storeStatus(h.session.StoreStats(r.Context())),
		Network:   networkStatus(h.session.Summary()),
		Tiers:     h.tierStatuses(),
	}

	for _, p := range status.Providers {
		if p.Status != models.HealthStatusOK {
			status.Status = models.HealthStatusDegraded
		}
	}
	code := http.StatusOK
	if status.Store.Status == models.HealthStatusFail {
		status.Status = models.HealthStatusFail
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, status)
}

func (h *OpsHandler) providerStatuses() []models.ProviderStatus {
	if h.registry == nil {
		return []models.ProviderStatus{}
	}
	health := h.registry.Snapshot()
	out := make([]models.ProviderStatus, 0, len(health))
	for _, ph := range health {
		ps := models.ProviderStatus{
			Provider:            ph.Name,
			Status:              models.HealthStatusOK,
			CircuitState:        ph.CircuitState.String(),
			Requests:            ph.Counts.Requests,
			ConsecutiveFailures: ph.Counts.ConsecutiveFailures,
			LastSuccessAt:       timestampPtr(ph.LastSuccessAt),
			LastFailureAt:       timestampPtr(ph.LastFailureAt),
		}
		switch ph.Level() {
		case resilience.LevelDown:
			ps.Status = models.HealthStatusFail
		case resilience.LevelDegraded:
			ps.Status = models.HealthStatusDegraded
		}
		if ph.LastError != "" {
			msg := ph.LastError
			ps.Message = &msg
		}
		out = append(out, ps)
	}
	return out
}

func (h *OpsHandler) tierStatuses() []models.TierStatus {
	tiers := h.session.Tiers()
	out := make([]models.TierStatus, 0, len(tiers))
	for tier, provider := range tiers {
		ts := models.TierStatus{Tier: string(tier), Provider: provider, Available: true}
		if tier == routing.TierPrecision {
			ts.RequiresUnlock = true
			ts.Available = h.unlock != nil && h.unlock.Enabled()
		}
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out
}

func storeStatus(s routing.StoreStats) models.StoreStatus {
	out := models.StoreStatus{
		Backend:  s.Backend,
		Status:   models.HealthStatusOK,
		Entries:  s.Entries,
		Capacity: s.Capacity,
	}
	if s.TTL > 0 {
		out.TTL = s.TTL.String()
	}
	if len(s.ByState) > 0 {
		out.ByState = make(map[string]int, len(s.ByState))
		for state, n := range s.ByState {
			out.ByState[string(state)] = n
		}
	}
	if s.Error != "" {
		out.Status = models.HealthStatusFail
	}
	return out
}

func networkStatus(s engine.Summary) models.NetworkStatus {
	out := models.NetworkStatus{
		Loaded:     !s.LoadedAt.IsZero(),
		Facilities: s.Facilities,
		Legs:       s.Legs,
	}
	if out.Loaded {
		out.LoadedAt = timestampPtr(&s.LoadedAt)
	}
	return out
}

func timestampPtr(t *time.Time) *models.Timestamp {
	if t == nil {
		return nil
	}
	ts := models.Timestamp(*t)
	return &ts
}
