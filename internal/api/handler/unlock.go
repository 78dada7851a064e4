package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/lanemap/lanemap/internal/api/middleware"
	"github.com/lanemap/lanemap/internal/api/models"
	"github.com/lanemap/lanemap/internal/api/response"
	"github.com/lanemap/lanemap/internal/routing"
	"github.com/lanemap/lanemap/internal/unlock"
)

// UnlockHandler exchanges the precision passkey for an unlock token.
type UnlockHandler struct {
	svc    *unlock.Service
	logger zerolog.Logger
}

// NewUnlockHandler creates an UnlockHandler.
func NewUnlockHandler(svc *unlock.Service, logger zerolog.Logger) *UnlockHandler {
	return &UnlockHandler{svc: svc, logger: logger}
}

// Unlock handles POST /v1/unlock.
func (h *UnlockHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	var input models.UnlockRequest
	if !decodeJSON(w, r, &input) {
		return
	}
	if input.Passkey == "" {
		response.BadRequest(w, r, "passkey is required", []models.FieldError{
			{Field: "passkey", Message: "required", Code: "REQUIRED"},
		})
		return
	}

	token, expiresAt, err := h.svc.Unlock(input.Passkey)
	switch {
	case errors.Is(err, unlock.ErrDisabled):
		response.ServiceUnavailable(w, r, "precision tier is not configured")
		return
	case errors.Is(err, unlock.ErrInvalidPasskey):
		h.logger.Warn().
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("remote_addr", r.RemoteAddr).
			Msg("rejected unlock attempt")
		response.Unauthorized(w, r, "invalid passkey")
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("issuing unlock token")
		response.InternalError(w, r, "could not issue unlock token")
		return
	}

	response.JSON(w, r, http.StatusOK, models.UnlockResponse{
		Token:     token,
		TokenType: "Bearer",
		Tier:      routing.TierPrecision,
		ExpiresAt: models.Timestamp(expiresAt),
	})
}
