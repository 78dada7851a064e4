package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const resolverMeterName = "github.com/lanemap/lanemap/internal/routing"

// Resolution outcomes recorded on resolver metrics.
const (
	OutcomeResolved  = "resolved"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// ResolverMetrics holds the path resolver instruments.
type ResolverMetrics struct {
	resolveDuration metric.Float64Histogram
	resolveTotal    metric.Int64Counter
	cacheHit        metric.Int64Counter
	cacheMiss       metric.Int64Counter
}

// NewResolverMetrics registers the resolver instruments on the global meter provider.
func NewResolverMetrics() (*ResolverMetrics, error) {
	meter := otel.Meter(resolverMeterName)

	resolveDuration, err := meter.Float64Histogram(
		"resolver.resolve.duration",
		metric.WithDescription("Duration of provider path resolutions in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	resolveTotal, err := meter.Int64Counter(
		"resolver.resolve.total",
		metric.WithDescription("Total number of provider path resolutions"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		return nil, err
	}

	cacheHit, err := meter.Int64Counter(
		"resolver.cache.hit",
		metric.WithDescription("Path store lookups served from a resolved entry"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	cacheMiss, err := meter.Int64Counter(
		"resolver.cache.miss",
		metric.WithDescription("Path store lookups that required a provider call"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	return &ResolverMetrics{
		resolveDuration: resolveDuration,
		resolveTotal:    resolveTotal,
		cacheHit:        cacheHit,
		cacheMiss:       cacheMiss,
	}, nil
}

// RecordResolve records one provider call. A nil receiver is a no-op.
func (m *ResolverMetrics) RecordResolve(ctx context.Context, tier, provider, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("resolver.tier", tier),
		attribute.String("provider.name", provider),
		attribute.String("resolver.outcome", outcome),
	)
	// detached so cancelled requests are still counted
	ctx = context.WithoutCancel(ctx)
	m.resolveDuration.Record(ctx, duration.Seconds(), attrs)
	m.resolveTotal.Add(ctx, 1, attrs)
}

// RecordCacheHit records a path store hit. A nil receiver is a no-op.
func (m *ResolverMetrics) RecordCacheHit(ctx context.Context, tier string) {
	if m == nil {
		return
	}
	m.cacheHit.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("resolver.tier", tier)))
}

// RecordCacheMiss records a path store miss. A nil receiver is a no-op.
func (m *ResolverMetrics) RecordCacheMiss(ctx context.Context, tier string) {
	if m == nil {
		return
	}
	m.cacheMiss.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("resolver.tier", tier)))
}
