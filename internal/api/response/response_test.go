package response_test

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lanemap/lanemap/internal/api/middleware"
	"github.com/lanemap/lanemap/internal/api/models"
	"github.com/lanemap/lanemap/internal/api/response"
)

// requestWithID returns a request whose context carries a request ID.
func requestWithID(t *testing.T, method, path string) *http.Request {
	t.Helper()
	var processed *http.Request
	middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		processed = r
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, http.NoBody))
	return processed
}

func TestJSON_IncludesRequestID(t *testing.T) {
	req := requestWithID(t, http.MethodGet, "/v1/facilities")
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, map[string]string{"message": "hello"})

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Request-Id"); got != middleware.GetRequestID(req.Context()) {
		t.Errorf("expected X-Request-Id %q, got %q", middleware.GetRequestID(req.Context()), got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}
}

func TestJSON_WithoutRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	response.JSON(rec, httptest.NewRequest(http.MethodGet, "/test", http.NoBody), http.StatusOK, nil)

	if rec.Header().Get("X-Request-Id") != "" {
		t.Error("expected no X-Request-Id header without middleware")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got %q", rec.Body.String())
	}
}

func TestProblemHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, *http.Request)
		status int
		typ    string
	}{
		{"bad request", func(w http.ResponseWriter, r *http.Request) {
			response.BadRequest(w, r, "invalid JSON body", []models.FieldError{{Field: "unitIds", Message: "required"}})
		}, http.StatusBadRequest, models.ProblemTypeValidation},
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) { response.Unauthorized(w, r, "invalid passkey") }, http.StatusUnauthorized, models.ProblemTypeUnauthorized},
		{"tier locked", func(w http.ResponseWriter, r *http.Request) { response.TierLocked(w, r, "unlock required") }, http.StatusForbidden, models.ProblemTypeTierLocked},
		{"not found", func(w http.ResponseWriter, r *http.Request) { response.NotFound(w, r, "no such trip") }, http.StatusNotFound, models.ProblemTypeNotFound},
		{"conflict", func(w http.ResponseWriter, r *http.Request) { response.Conflict(w, r, "not resolved") }, http.StatusConflict, models.ProblemTypeConflict},
		{"unprocessable", func(w http.ResponseWriter, r *http.Request) { response.Unprocessable(w, r, "no facilities") }, http.StatusUnprocessableEntity, models.ProblemTypeUnprocessable},
		{"internal", func(w http.ResponseWriter, r *http.Request) { response.InternalError(w, r, "boom") }, http.StatusInternalServerError, models.ProblemTypeInternal},
		{"bad gateway", func(w http.ResponseWriter, r *http.Request) { response.BadGateway(w, r, "osrm down") }, http.StatusBadGateway, models.ProblemTypeBadGateway},
		{"unavailable", func(w http.ResponseWriter, r *http.Request) { response.ServiceUnavailable(w, r, "later") }, http.StatusServiceUnavailable, models.ProblemTypeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestWithID(t, http.MethodGet, "/v1/trips/x")
			rec := httptest.NewRecorder()

			tt.write(rec, req)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("expected problem content type, got %q", ct)
			}

			var p models.Problem
			if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
				t.Fatalf("decoding problem: %v", err)
			}
			if p.Type != tt.typ {
				t.Errorf("expected type %q, got %q", tt.typ, p.Type)
			}
			if p.Instance != "/v1/trips/x" {
				t.Errorf("expected instance /v1/trips/x, got %q", p.Instance)
			}
			if p.TraceID == "" || p.TraceID != middleware.GetRequestID(req.Context()) {
				t.Errorf("expected trace id to match request id, got %q", p.TraceID)
			}
		})
	}
}

func TestStream_WritesLines(t *testing.T) {
	req := requestWithID(t, http.MethodPost, "/v1/trips:resolve")
	rec := httptest.NewRecorder()

	s := response.NewStream(rec, req)
	for i := 1; i <= 3; i++ {
		if err := s.Send(map[string]int{"completed": i}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	if ct := rec.Header().Get("Content-Type"); ct != response.NDJSON {
		t.Errorf("expected %s, got %q", response.NDJSON, ct)
	}
	if !rec.Flushed {
		t.Error("expected stream to flush")
	}

	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	lines := 0
	for scanner.Scan() {
		lines++
		var v map[string]int
		if err := json.Unmarshal(scanner.Bytes(), &v); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		if v["completed"] != lines {
			t.Errorf("line %d: expected completed %d, got %d", lines, lines, v["completed"])
		}
	}
	if lines != 3 {
		t.Errorf("expected 3 lines, got %d", lines)
	}
}

func TestWantsStream(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/trips:resolve", http.NoBody)
	if response.WantsStream(req) {
		t.Error("expected buffered response by default")
	}
	req.Header.Set("Accept", response.NDJSON)
	if !response.WantsStream(req) {
		t.Error("expected stream for NDJSON accept header")
	}
}
