// Package api assembles the lanemap HTTP API.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/lanemap/lanemap/internal/api/handler"
	"github.com/lanemap/lanemap/internal/api/middleware"
	"github.com/lanemap/lanemap/internal/api/models"
	"github.com/lanemap/lanemap/internal/engine"
	"github.com/lanemap/lanemap/internal/provider/resilience"
	"github.com/lanemap/lanemap/internal/unlock"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	RequireTLS  bool
	Metrics     *middleware.Metrics
	Session     *engine.Session
	Registry    *resilience.Registry
	Unlock      *unlock.Service
}

// NewRouter creates the chi router with every API route.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "lanemap-api"
	}

	// order matters: request id first so every later layer can log it
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.RequireJSON)
	r.Use(middleware.Unlock(cfg.Unlock))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		problem := models.NewNotFound(middleware.GetRequestID(req.Context()), "no route matches "+req.URL.Path)
		problem.Instance = req.URL.Path
		problem.Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		problem := models.NewProblem(models.ProblemTypeValidation, "Method not allowed", http.StatusMethodNotAllowed, middleware.GetRequestID(req.Context())).
			WithDetail(req.Method + " is not supported on " + req.URL.Path).
			WithInstance(req.URL.Path)
		problem.Write(w)
	})

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Session:   cfg.Session,
		Registry:  cfg.Registry,
		Unlock:    cfg.Unlock,
	})
	networkHandler := handler.NewNetworkHandler(cfg.Session, cfg.Logger)
	tripHandler := handler.NewTripHandler(cfg.Session, cfg.Logger)
	unlockHandler := handler.NewUnlockHandler(cfg.Unlock, cfg.Logger)

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.With(standardRateLimit).Get("/status", opsHandler.SystemStatus)
		})

		r.With(middleware.RateLimitByIP(middleware.UnlockRateLimit)).Post("/unlock", unlockHandler.Unlock)
		r.With(middleware.RateLimitByIP(middleware.NetworkLoadRateLimit)).Post("/network", networkHandler.Load)

		r.Route("/facilities", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", networkHandler.ListFacilities)
			r.Get("/{name}/focus", networkHandler.Focus)
			r.Get("/{name}/trips", networkHandler.Trips)
		})

		// fans out to routing providers
		r.With(middleware.RateLimitByIP(middleware.ResolveRateLimit)).Post("/trips:resolve", tripHandler.Resolve)

		r.Route("/trips/{id}", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", tripHandler.Get)
			r.Get("/segments", tripHandler.Segments)
		})
	})

	return r
}
