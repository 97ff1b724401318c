// Package observe provides application-wide observability primitives for
// VoxRelay: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all VoxRelay metrics.
const meterName = "github.com/voxrelay/voxrelay"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
//
// Recording methods tolerate a nil receiver so that library code can carry an
// optional *Metrics without guarding every call site.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranslationDuration tracks per-utterance translation latency.
	TranslationDuration metric.Float64Histogram

	// SessionDuration tracks full session lifetimes.
	SessionDuration metric.Float64Histogram

	// --- Counters ---

	// FramesIngested counts audio frames delivered to the recognizer.
	FramesIngested metric.Int64Counter

	// RecognitionEvents counts recognition events. Use with attribute:
	//   attribute.String("kind", "interim"|"final")
	RecognitionEvents metric.Int64Counter

	// RecognizerRestarts counts mid-stream recognizer restarts.
	RecognizerRestarts metric.Int64Counter

	// DroppedMessages counts outbound messages shed by the broadcaster or
	// evicted translation results. Use with attribute:
	//   attribute.String("reason", "lagging"|"evicted"|"closed")
	DroppedMessages metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live relay sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveSubscribers tracks the number of connected subscribers across
	// all sessions.
	ActiveSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for streaming-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// sessionBuckets covers session lifetimes from seconds to an hour.
var sessionBuckets = []float64{
	1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranslationDuration, err = m.Float64Histogram("voxrelay.translation.duration",
		metric.WithDescription("Latency of per-utterance translation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("voxrelay.session.duration",
		metric.WithDescription("Lifetime of relay sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesIngested, err = m.Int64Counter("voxrelay.frames.ingested",
		metric.WithDescription("Total audio frames delivered to the recognizer."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionEvents, err = m.Int64Counter("voxrelay.recognition.events",
		metric.WithDescription("Total recognition events by kind."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerRestarts, err = m.Int64Counter("voxrelay.recognizer.restarts",
		metric.WithDescription("Total mid-stream recognizer restarts."),
	); err != nil {
		return nil, err
	}
	if met.DroppedMessages, err = m.Int64Counter("voxrelay.messages.dropped",
		metric.WithDescription("Total outbound messages shed, by reason."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("voxrelay.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxrelay.active_sessions",
		metric.WithDescription("Number of live relay sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSubscribers, err = m.Int64UpDownCounter("voxrelay.active_subscribers",
		metric.WithDescription("Number of connected subscribers across all sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxrelay.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordRecognitionEvent records a recognition event counter increment.
func (m *Metrics) RecordRecognitionEvent(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.RecognitionEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordFrames records delivery of n frames to the recognizer.
func (m *Metrics) RecordFrames(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.FramesIngested.Add(ctx, int64(n))
}

// RecordTranslation records a translation call's latency.
func (m *Metrics) RecordTranslation(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.TranslationDuration.Record(ctx, seconds)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordDroppedMessage records a shed outbound message with the given reason.
func (m *Metrics) RecordDroppedMessage(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.DroppedMessages.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordRecognizerRestart records a mid-stream recognizer restart.
func (m *Metrics) RecordRecognizerRestart(ctx context.Context) {
	if m == nil {
		return
	}
	m.RecognizerRestarts.Add(ctx, 1)
}

// AddActiveSessions adjusts the live-session gauge by delta.
func (m *Metrics) AddActiveSessions(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, delta)
}

// AddActiveSubscribers adjusts the connected-subscriber gauge by delta.
func (m *Metrics) AddActiveSubscribers(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.ActiveSubscribers.Add(ctx, delta)
}

// RecordSessionDuration records a completed session's lifetime.
func (m *Metrics) RecordSessionDuration(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.SessionDuration.Record(ctx, seconds)
}
