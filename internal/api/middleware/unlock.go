package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/lanemap/lanemap/internal/api/models"
	"github.com/lanemap/lanemap/internal/unlock"
)

type unlockedKey struct{}

// Unlock inspects an optional bearer unlock token. Requests without an
// Authorization header pass through locked; a malformed, invalid or expired
// token is rejected with 401. A valid token marks the request unlocked.
func Unlock(svc *unlock.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || svc == nil {
				next.ServeHTTP(w, r)
				return
			}

			const bearerPrefix = "Bearer "
			if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			if _, err := svc.Verify(strings.TrimSpace(header[len(bearerPrefix):])); err != nil {
				switch {
				case errors.Is(err, unlock.ErrTokenExpired):
					writeUnauthorized(w, r, "unlock token has expired")
				case errors.Is(err, unlock.ErrDisabled):
					writeUnauthorized(w, r, "precision tier is not configured")
				default:
					writeUnauthorized(w, r, "invalid unlock token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), unlockedKey{}, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized lives here rather than in response to avoid an import cycle.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	problem := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	w.Header().Set("WWW-Authenticate", `Bearer realm="lanemap"`)
	problem.Write(w)
}

// IsUnlocked reports whether the request carried a valid unlock token.
func IsUnlocked(ctx context.Context) bool {
	v, _ := ctx.Value(unlockedKey{}).(bool)
	return v
}
