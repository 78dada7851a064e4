// Package resilience wraps outbound routing-provider HTTP calls with a
// circuit breaker, client-side throttling and optional retries, and keeps a
// registry of provider health for the ops endpoints.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the breaker in logs and in the registry.
	Name string

	// MaxRequests is the number of probe requests allowed while half-open.
	MaxRequests uint32

	// Interval clears the closed-state counts periodically so that old
	// failures stop counting against a provider (0 keeps them forever).
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration

	// ReadyToTrip decides when to open. Defaults to TripOnFailures.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// Logger receives state transitions.
	Logger zerolog.Logger
}

// Breaker defaults for routing providers.
const (
	DefaultBreakerInterval = 2 * time.Minute
	DefaultBreakerTimeout  = 30 * time.Second

	// tripConsecutive failed calls in a row open the breaker regardless of ratio.
	tripConsecutive = 3
	tripMinRequests = 5
	tripRatio       = 0.5
)

// DefaultCircuitBreakerConfig returns the breaker used for routing providers.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Interval:    DefaultBreakerInterval,
		Timeout:     DefaultBreakerTimeout,
		ReadyToTrip: TripOnFailures,
		Logger:      zerolog.Nop(),
	}
}

// TripOnFailures opens the breaker after three consecutive failures, or once
// at least five calls have been made and half or more of them failed.
func TripOnFailures(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= tripConsecutive {
		return true
	}
	if counts.Requests < tripMinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= tripRatio
}

// countsAsSuccess treats caller cancellation as success so that an abandoned
// batch never opens the breaker.
func countsAsSuccess(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// NewCircuitBreaker creates a breaker from cfg.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	trip := cfg.ReadyToTrip
	if trip == nil {
		trip = TripOnFailures
	}
	logger := cfg.Logger

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:         cfg.Name,
		MaxRequests:  cfg.MaxRequests,
		Interval:     cfg.Interval,
		Timeout:      cfg.Timeout,
		ReadyToTrip:  trip,
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			ev := logger.Info()
			if to == gobreaker.StateOpen {
				ev = logger.Warn()
			}
			ev.Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}
