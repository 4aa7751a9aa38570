package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of all instruments.
const MeterName = "gamesave"

// MetricsRecorder records checkpoint metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordSave records a save attempt with its blob size and error status.
	RecordSave(ctx context.Context, gameType string, sizeBytes int64, duration time.Duration, err error)

	// RecordLoad records a load attempt and whether state was applied.
	RecordLoad(ctx context.Context, gameType string, applied bool, duration time.Duration, err error)

	// RecordEvictions records checkpoints removed by retention.
	RecordEvictions(ctx context.Context, count int)

	// RecordDegradedCapture records a best-effort capture that failed.
	RecordDegradedCapture(ctx context.Context, gameType, capability string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	saves            metric.Int64Counter
	saveErrors       metric.Int64Counter
	saveLatency      metric.Float64Histogram
	checkpointSize   metric.Int64Histogram
	loads            metric.Int64Counter
	loadErrors       metric.Int64Counter
	loadLatency      metric.Float64Histogram
	evictions        metric.Int64Counter
	degradedCaptures metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.GetMeterProvider())
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates the instruments on the given provider.
func newOtelMetrics(provider metric.MeterProvider) (*otelMetrics, error) {
	meter := provider.Meter(MeterName)

	saves, err := meter.Int64Counter("gamesave.save.count",
		metric.WithDescription("Number of checkpoint saves"),
	)
	if err != nil {
		return nil, err
	}

	saveErrors, err := meter.Int64Counter("gamesave.save.errors",
		metric.WithDescription("Number of failed checkpoint saves"),
	)
	if err != nil {
		return nil, err
	}

	saveLatency, err := meter.Float64Histogram("gamesave.save.latency_ms",
		metric.WithDescription("Checkpoint save latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("gamesave.checkpoint.size_bytes",
		metric.WithDescription("Compressed checkpoint size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	loads, err := meter.Int64Counter("gamesave.load.count",
		metric.WithDescription("Number of checkpoint loads"),
	)
	if err != nil {
		return nil, err
	}

	loadErrors, err := meter.Int64Counter("gamesave.load.errors",
		metric.WithDescription("Number of failed checkpoint loads"),
	)
	if err != nil {
		return nil, err
	}

	loadLatency, err := meter.Float64Histogram("gamesave.load.latency_ms",
		metric.WithDescription("Checkpoint load latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter("gamesave.retention.evictions",
		metric.WithDescription("Number of checkpoints removed by retention"),
	)
	if err != nil {
		return nil, err
	}

	degradedCaptures, err := meter.Int64Counter("gamesave.capture.degraded",
		metric.WithDescription("Number of best-effort captures that failed"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		saves:            saves,
		saveErrors:       saveErrors,
		saveLatency:      saveLatency,
		checkpointSize:   checkpointSize,
		loads:            loads,
		loadErrors:       loadErrors,
		loadLatency:      loadLatency,
		evictions:        evictions,
		degradedCaptures: degradedCaptures,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderWithProvider is NewMetricsRecorder on an explicit
// provider instead of the global one.
func NewMetricsRecorderWithProvider(provider metric.MeterProvider) (MetricsRecorder, error) {
	m, err := newOtelMetrics(provider)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordSave records a save.
func (m *otelMetrics) RecordSave(ctx context.Context, gameType string, sizeBytes int64, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("game_type", gameType))

	m.saves.Add(ctx, 1, attrs)
	m.saveLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.saveErrors.Add(ctx, 1, attrs)
		return
	}
	m.checkpointSize.Record(ctx, sizeBytes, attrs)
}

// RecordLoad records a load.
func (m *otelMetrics) RecordLoad(ctx context.Context, gameType string, applied bool, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("game_type", gameType),
		attribute.Bool("applied", applied),
	)

	m.loads.Add(ctx, 1, attrs)
	m.loadLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.loadErrors.Add(ctx, 1, attrs)
	}
}

// RecordEvictions records retention evictions.
func (m *otelMetrics) RecordEvictions(ctx context.Context, count int) {
	if count <= 0 {
		return
	}
	m.evictions.Add(ctx, int64(count))
}

// RecordDegradedCapture records a failed best-effort capture.
func (m *otelMetrics) RecordDegradedCapture(ctx context.Context, gameType, capability string) {
	m.degradedCaptures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("game_type", gameType),
		attribute.String("capability", capability),
	))
}
