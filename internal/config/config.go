// Package config loads lanemap settings from the environment, reading an
// optional .env file first.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all runtime settings.
type Config struct {
	Port     string
	Env      string
	LogLevel zerolog.Level
	// RequireTLS rejects requests that did not arrive over HTTPS.
	RequireTLS bool

	OTelEnabled  bool
	OTLPEndpoint string
	// OTelSampleRatio is the fraction of root traces kept.
	OTelSampleRatio float64

	OSRMBaseURL string
	ORSAPIKey   string
	ORSBaseURL  string

	PrecisionPasskey string
	UnlockSigningKey string
	UnlockTokenTTL   time.Duration

	ResolverChunkSize int
	ResolverFreeDelay time.Duration

	PathCacheSize int
	PathCacheTTL  time.Duration
	RedisURL      string
}

// Load reads .env files (if any) and then the environment.
func Load(files ...string) (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load(files...)

	var errs []string
	c := &Config{
		Port:             getEnv("APP_PORT", "8080"),
		Env:              getEnv("APP_ENV", "development"),
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OSRMBaseURL:      getEnv("OSRM_BASE_URL", ""),
		ORSAPIKey:        getEnv("ORS_API_KEY", ""),
		ORSBaseURL:       getEnv("ORS_BASE_URL", ""),
		PrecisionPasskey: getEnv("PRECISION_PASSKEY", ""),
		UnlockSigningKey: getEnv("UNLOCK_SIGNING_KEY", ""),
		RedisURL:         getEnv("REDIS_URL", ""),
	}

	level, err := zerolog.ParseLevel(strings.ToLower(getEnv("LOG_LEVEL", "info")))
	if err != nil {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL: %v", err))
	}
	c.LogLevel = level

	c.OTelEnabled = parseBool("OTEL_ENABLED", false, &errs)
	c.OTelSampleRatio = parseFloat("OTEL_SAMPLE_RATIO", 1, &errs)
	c.RequireTLS = parseBool("REQUIRE_TLS", c.IsProduction(), &errs)
	c.UnlockTokenTTL = parseDuration("UNLOCK_TOKEN_TTL", 12*time.Hour, &errs)
	c.ResolverChunkSize = parseInt("RESOLVER_CHUNK_SIZE", 5, &errs)
	c.ResolverFreeDelay = parseDuration("RESOLVER_FREE_DELAY", time.Second, &errs)
	c.PathCacheSize = parseInt("PATH_CACHE_SIZE", 4096, &errs)
	c.PathCacheTTL = parseDuration("PATH_CACHE_TTL", 6*time.Hour, &errs)

	if c.ResolverChunkSize < 1 {
		errs = append(errs, "RESOLVER_CHUNK_SIZE: must be at least 1")
	}
	if c.OTelSampleRatio < 0 || c.OTelSampleRatio > 1 {
		errs = append(errs, "OTEL_SAMPLE_RATIO: must be between 0 and 1")
	}
	if c.PathCacheSize < 1 {
		errs = append(errs, "PATH_CACHE_SIZE: must be at least 1")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return c, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// PrecisionConfigured reports whether the precision tier can be offered.
func (c *Config) PrecisionConfigured() bool {
	return c.ORSAPIKey != ""
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseInt(key string, fallback int, errs *[]string) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %q is not an integer", key, v))
		return fallback
	}
	return n
}

func parseFloat(key string, fallback float64, errs *[]string) float64 {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %q is not a number", key, v))
		return fallback
	}
	return f
}

func parseDuration(key string, fallback time.Duration, errs *[]string) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %q is not a duration", key, v))
		return fallback
	}
	return d
}

func parseBool(key string, fallback bool, errs *[]string) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
		return fallback
	}
	return b
}
