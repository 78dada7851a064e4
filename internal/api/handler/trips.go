package handler

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lanemap/lanemap/internal/api/middleware"
	"github.com/lanemap/lanemap/internal/api/models"
	"github.com/lanemap/lanemap/internal/api/response"
	"github.com/lanemap/lanemap/internal/engine"
	"github.com/lanemap/lanemap/internal/routing"
)

// TripHandler serves trip resolution and manifests.
type TripHandler struct {
	session *engine.Session
	logger  zerolog.Logger
}

// NewTripHandler creates a TripHandler.
func NewTripHandler(session *engine.Session, logger zerolog.Logger) *TripHandler {
	return &TripHandler{session: session, logger: logger}
}

// Resolve handles POST /v1/trips:resolve. With Accept: application/x-ndjson
// each unit outcome is streamed as it completes and the summary closes the
// stream; otherwise the summary with all results is returned at the end.
// A client disconnect cancels the batch and leaves unfinished units unresolved.
func (h *TripHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var input models.ResolveRequest
	if !decodeJSON(w, r, &input) {
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid resolve request", errs)
		return
	}
	tier, _ := routing.ParseTier(input.Tier)

	results, err := h.session.Resolve(r.Context(), input.UnitIDs, tier, middleware.IsUnlocked(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary := models.ResolveResponse{
		BatchID: "batch_" + uuid.NewString(),
		Tier:    tier,
		Total:   len(input.UnitIDs),
	}
	log := h.logger.With().
		Str("request_id", middleware.GetRequestID(r.Context())).
		Str("batch_id", summary.BatchID).
		Logger()

	if response.WantsStream(r) {
		stream := response.NewStream(w, r)
		for res := range results {
			summary.Add(res)
			if err := stream.Send(models.ResolveProgress{BatchID: summary.BatchID, BatchResult: res}); err != nil {
				log.Debug().Err(err).Msg("resolve stream client gone")
			}
		}
		_ = stream.Send(summary)
	} else {
		summary.Results = make([]routing.BatchResult, 0, summary.Total)
		for res := range results {
			summary.Add(res)
			summary.Results = append(summary.Results, res)
		}
		response.JSON(w, r, http.StatusOK, summary)
	}

	log.Info().
		Str("tier", string(tier)).
		Int("total", summary.Total).
		Int("resolved", summary.Resolved).
		Int("failed", summary.Failed).
		Int("cancelled", summary.Cancelled).
		Msg("resolve batch finished")
}

// Get handles GET /v1/trips/{id}. It reports the stored state for the
// requested tier and never calls a provider.
func (h *TripHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, tier, ok := tripParams(w, r)
	if !ok {
		return
	}
	trip, err := h.session.Trip(r.Context(), id, tier)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, trip)
}

// Segments handles GET /v1/trips/{id}/segments.
func (h *TripHandler) Segments(w http.ResponseWriter, r *http.Request) {
	id, tier, ok := tripParams(w, r)
	if !ok {
		return
	}
	segments, err := h.session.Segments(r.Context(), id, tier)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := models.SegmentsResponse{UnitID: id, Tier: tier, Segments: segments}
	for _, s := range segments {
		resp.DistanceMeters += s.DistanceMeters
		resp.DurationSeconds += s.DurationSeconds
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// tripParams reads the unit id and the tier query. Reading precision
// results needs the same unlock as producing them.
func tripParams(w http.ResponseWriter, r *http.Request) (string, routing.Tier, bool) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || id == "" {
		response.BadRequest(w, r, "invalid trip id", nil)
		return "", "", false
	}
	tier, err := routing.ParseTier(r.URL.Query().Get("tier"))
	if err != nil {
		response.BadRequest(w, r, "invalid tier", []models.FieldError{
			{Field: "tier", Message: "must be free or precision", Code: "INVALID"},
		})
		return "", "", false
	}
	if tier == routing.TierPrecision && !middleware.IsUnlocked(r.Context()) {
		writeError(w, r, routing.ErrTierLocked)
		return "", "", false
	}
	return id, tier, true
}
