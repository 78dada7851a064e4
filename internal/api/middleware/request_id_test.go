package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lanemap/lanemap/internal/api/middleware"
)

func serveRequestID(t *testing.T, incoming string) (ctxID, headerID string) {
	t.Helper()
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = middleware.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/facilities", http.NoBody)
	if incoming != "" {
		req.Header.Set("X-Request-Id", incoming)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return ctxID, w.Header().Get("X-Request-Id")
}

func TestRequestID_GeneratesNewID(t *testing.T) {
	ctxID, headerID := serveRequestID(t, "")

	assert.True(t, strings.HasPrefix(ctxID, "req_"))
	assert.Equal(t, ctxID, headerID)
}

func TestRequestID_PreservesExistingID(t *testing.T) {
	ctxID, headerID := serveRequestID(t, "upstream-7f3a")

	assert.Equal(t, "upstream-7f3a", ctxID)
	assert.Equal(t, "upstream-7f3a", headerID)
}

func TestRequestID_ReplacesMalformedID(t *testing.T) {
	ctxID, headerID := serveRequestID(t, "bad id\nwith newline")

	assert.True(t, strings.HasPrefix(ctxID, "req_"))
	assert.Equal(t, ctxID, headerID)

	ctxID, _ = serveRequestID(t, strings.Repeat("a", 65))
	assert.True(t, strings.HasPrefix(ctxID, "req_"))
}

func TestGetRequestID_EmptyWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	assert.Empty(t, middleware.GetRequestID(req.Context()))
}

func TestRequestID_UniqueIDs(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, _ := serveRequestID(t, "")
		assert.False(t, ids[id], "duplicate request ID generated: %s", id)
		ids[id] = true
	}
}
