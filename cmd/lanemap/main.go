// Package main provides the entrypoint for the lanemap API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lanemap/lanemap/internal/api"
	"github.com/lanemap/lanemap/internal/api/middleware"
	"github.com/lanemap/lanemap/internal/config"
	"github.com/lanemap/lanemap/internal/engine"
	"github.com/lanemap/lanemap/internal/provider/resilience"
	"github.com/lanemap/lanemap/internal/routing"
	"github.com/lanemap/lanemap/internal/routing/openrouteservice"
	"github.com/lanemap/lanemap/internal/routing/osrm"
	"github.com/lanemap/lanemap/internal/routing/rediscache"
	"github.com/lanemap/lanemap/internal/telemetry"
	"github.com/lanemap/lanemap/internal/unlock"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "lanemap-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load configuration")
	}

	log := zerolog.New(os.Stdout).
		Level(cfg.LogLevel).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting lanemap API")

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRatio:    cfg.OTelSampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()
	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		return err
	}
	resolverMetrics, err := telemetry.NewResolverMetrics()
	if err != nil {
		return err
	}

	registry := resilience.NewRegistry()
	providers := map[routing.Tier]routing.Provider{
		routing.TierFree: osrm.NewClient(osrm.ClientConfig{
			BaseURL:  cfg.OSRMBaseURL,
			Registry: registry,
			Logger:   log.With().Str("provider", osrm.ProviderName).Logger(),
		}),
	}
	if cfg.PrecisionConfigured() {
		providers[routing.TierPrecision] = openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:   cfg.ORSAPIKey,
			BaseURL:  cfg.ORSBaseURL,
			Registry: registry,
			Logger:   log.With().Str("provider", openrouteservice.ProviderName).Logger(),
		})
		log.Info().Msg("precision tier configured")
	} else {
		log.Warn().Msg("ORS_API_KEY not set - precision tier disabled")
	}

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	resolver := routing.NewResolver(routing.ResolverConfig{
		Providers:      providers,
		Store:          store,
		Logger:         log.With().Str("component", "resolver").Logger(),
		Metrics:        resolverMetrics,
		ChunkSize:      cfg.ResolverChunkSize,
		FreeChunkDelay: cfg.ResolverFreeDelay,
	})
	session := engine.New(engine.Config{
		Resolver: resolver,
		Logger:   log.With().Str("component", "engine").Logger(),
	})

	signingKey := cfg.UnlockSigningKey
	if signingKey == "" && cfg.PrecisionPasskey != "" {
		if cfg.IsProduction() {
			return errors.New("UNLOCK_SIGNING_KEY is required when PRECISION_PASSKEY is set")
		}
		signingKey = "local-dev-unlock-key-change-in-production"
		log.Warn().Msg("using default unlock signing key - not secure for production")
	}
	unlockService := unlock.NewService(unlock.Config{
		Passkey:    cfg.PrecisionPasskey,
		SigningKey: signingKey,
		TTL:        cfg.UnlockTokenTTL,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		RequireTLS:  cfg.RequireTLS,
		Metrics:     httpMetrics,
		Session:     session,
		Registry:    registry,
		Unlock:      unlockService,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// streamed batch resolution on the free tier runs at about one unit per second
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openStore picks the Redis path store when REDIS_URL is set and the
// in-process LRU otherwise.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (routing.Store, func(), error) {
	if cfg.RedisURL == "" {
		log.Info().
			Int("size", cfg.PathCacheSize).
			Dur("ttl", cfg.PathCacheTTL).
			Msg("using in-memory path store")
		return routing.NewMemoryStore(cfg.PathCacheSize, cfg.PathCacheTTL), func() {}, nil
	}

	s, err := rediscache.Open(ctx, rediscache.Config{URL: cfg.RedisURL, TTL: cfg.PathCacheTTL})
	if err != nil {
		return nil, nil, err
	}
	log.Info().Msg("using redis path store")
	return s, func() {
		if err := s.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis path store")
		}
	}, nil
}
