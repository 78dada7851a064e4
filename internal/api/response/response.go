// Package response writes JSON, NDJSON and problem responses.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/lanemap/lanemap/internal/api/middleware"
	"github.com/lanemap/lanemap/internal/api/models"
)

// NDJSON is the media type of streamed responses.
const NDJSON = "application/x-ndjson"

func setRequestID(w http.ResponseWriter, r *http.Request) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
}

// JSON writes data as a JSON response with the given status code.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	setRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error writes a problem response for the current request.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

func traceID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

// BadRequest writes a 400 problem.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(traceID(r), detail, errors))
}

// Unauthorized writes a 401 problem.
func Unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewUnauthorized(traceID(r), detail))
}

// TierLocked writes a 403 problem for a locked routing tier.
func TierLocked(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewTierLocked(traceID(r), detail))
}

// NotFound writes a 404 problem.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(traceID(r), detail))
}

// Conflict writes a 409 problem.
func Conflict(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewConflict(traceID(r), detail))
}

// Unprocessable writes a 422 problem.
func Unprocessable(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewUnprocessable(traceID(r), detail))
}

// InternalError writes a 500 problem.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(traceID(r), detail))
}

// BadGateway writes a 502 problem.
func BadGateway(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewBadGateway(traceID(r), detail))
}

// ServiceUnavailable writes a 503 problem.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewServiceUnavailable(traceID(r), detail))
}

// WantsStream reports whether the client asked for an NDJSON response.
func WantsStream(r *http.Request) bool {
	return r.Header.Get("Accept") == NDJSON
}

// Stream writes newline-delimited JSON values, flushing after each one.
type Stream struct {
	w       http.ResponseWriter
	enc     *json.Encoder
	flusher http.Flusher
}

// NewStream starts a 200 NDJSON response.
func NewStream(w http.ResponseWriter, r *http.Request) *Stream {
	setRequestID(w, r)
	w.Header().Set("Content-Type", NDJSON)
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	return &Stream{w: w, enc: json.NewEncoder(w), flusher: flusher}
}

// Send writes one value as a line. An error means the client has gone away.
func (s *Stream) Send(v interface{}) error {
	if err := s.enc.Encode(v); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
