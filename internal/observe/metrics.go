// Package observe provides application-wide observability primitives for
// sori: OpenTelemetry metrics, tracing helpers, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so metrics remain scrapable
// via the standard /metrics endpoint. Tests should use [NewMetrics] with a
// private [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all sori metrics.
const meterName = "github.com/sorilabs/sori"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// AssessDuration tracks the time from end-of-audio to the terminal
	// assessment event.
	AssessDuration metric.Float64Histogram

	// RecordingDuration tracks the length of recording sessions, start to
	// teardown.
	RecordingDuration metric.Float64Histogram

	// CoachDuration tracks feedback-tip generation latency.
	CoachDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", …), attribute.String("path", …).
	HTTPRequestDuration metric.Float64Histogram

	// Recordings counts completed recording attempts. Use with attribute:
	//   attribute.String("outcome", "scored"|"nomatch"|"canceled"|"error")
	Recordings metric.Int64Counter

	// ProviderErrors counts assessment/coach provider failures. Use with
	// attribute: attribute.String("provider", …).
	ProviderErrors metric.Int64Counter

	// ActiveRecordings tracks live recording sessions. The recorder enforces
	// at most one, so this gauge is also a cheap invariant check.
	ActiveRecordings metric.Int64UpDownCounter

	// ActiveClients tracks connected practice WebSocket clients.
	ActiveClients metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// speech-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AssessDuration, err = m.Float64Histogram("sori.assess.duration",
		metric.WithDescription("Time from end-of-audio to the terminal assessment event."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecordingDuration, err = m.Float64Histogram("sori.recording.duration",
		metric.WithDescription("Length of recording sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CoachDuration, err = m.Float64Histogram("sori.coach.duration",
		metric.WithDescription("Feedback tip generation latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("sori.http.request.duration",
		metric.WithDescription("HTTP request processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Recordings, err = m.Int64Counter("sori.recordings",
		metric.WithDescription("Completed recording attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("sori.provider.errors",
		metric.WithDescription("Assessment and coach provider failures."),
	); err != nil {
		return nil, err
	}
	if met.ActiveRecordings, err = m.Int64UpDownCounter("sori.recordings.active",
		metric.WithDescription("Live recording sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveClients, err = m.Int64UpDownCounter("sori.clients.active",
		metric.WithDescription("Connected practice WebSocket clients."),
	); err != nil {
		return nil, err
	}
	return met, nil
}
