package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/lanemap/lanemap/internal/api/models"
)

// RateLimitConfig is a fixed-window request budget per client IP.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

// Budgets per endpoint class.
var (
	// UnlockRateLimit guards passkey attempts.
	UnlockRateLimit = RateLimitConfig{RequestLimit: 10, WindowLength: time.Minute}

	// ResolveRateLimit applies to batch resolution, which fans out to routing providers.
	ResolveRateLimit = RateLimitConfig{RequestLimit: 20, WindowLength: time.Minute}

	// NetworkLoadRateLimit applies to network uploads.
	NetworkLoadRateLimit = RateLimitConfig{RequestLimit: 10, WindowLength: time.Minute}

	// StandardRateLimit applies to read endpoints.
	StandardRateLimit = RateLimitConfig{RequestLimit: 300, WindowLength: time.Minute}
)

// RateLimitByIP limits requests per client IP as seen after chi's RealIP.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(math.Ceil(cfg.WindowLength.Seconds())))
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
			problem.Instance = r.URL.Path
			w.Header().Set("Retry-After", retryAfter)
			problem.Write(w)
		}),
	)
}
