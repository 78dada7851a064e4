package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/lanemap/lanemap/internal/api/response"
	"github.com/lanemap/lanemap/internal/engine"
	"github.com/lanemap/lanemap/internal/routing"
)

// maxBodyBytes bounds request bodies; network uploads are the largest.
const maxBodyBytes = 32 << 20

// decodeJSON reads one JSON value from the request body into v. On failure
// it writes a 400 problem and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			response.BadRequest(w, r, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit), nil)
		case errors.Is(err, io.EOF):
			response.BadRequest(w, r, "request body is empty", nil)
		default:
			response.BadRequest(w, r, "invalid JSON body: "+err.Error(), nil)
		}
		return false
	}
	return true
}

// writeError maps engine and routing errors to problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrUnknownFacility):
		response.NotFound(w, r, "facility not found")
	case errors.Is(err, engine.ErrUnknownUnit):
		response.NotFound(w, r, "trip unit not found; list the facility's trips first")
	case errors.Is(err, engine.ErrNotDirect):
		response.Unprocessable(w, r, err.Error())
	case errors.Is(err, engine.ErrNotResolved):
		response.Conflict(w, r, "trip path is not resolved for this tier")
	case errors.Is(err, routing.ErrTierLocked):
		response.TierLocked(w, r, "the precision tier requires an unlock token")
	case errors.Is(err, routing.ErrUnknownTier):
		response.Unprocessable(w, r, "no routing provider is configured for this tier")
	default:
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
