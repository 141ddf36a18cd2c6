// Package observe provides application-wide observability primitives for
// voxlink: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
//
// [Metrics] implements live.Metrics and can be passed to live.WithMetrics.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/voxlink/pkg/live"
)

// meterName is the instrumentation scope name used for all voxlink metrics.
const meterName = "github.com/MrWong99/voxlink"

var _ live.Metrics = (*Metrics)(nil)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// ConnectDuration tracks transport open plus setup delivery. Use with
	// attributes: attribute.Bool("resumed", ...), attribute.String("status", ...)
	ConnectDuration metric.Float64Histogram

	// Connects counts connection attempts by outcome.
	Connects metric.Int64Counter

	// ReconnectAttempts counts scheduled reconnects. Use with attribute:
	//   attribute.String("reason", ...)
	ReconnectAttempts metric.Int64Counter

	// Closes counts transport closes by classified reason.
	Closes metric.Int64Counter

	// FramesSent counts media chunks written to the peer.
	FramesSent metric.Int64Counter

	// FramesDropped counts inbound messages or audio parts that failed to
	// parse or decode.
	FramesDropped metric.Int64Counter

	// Interruptions counts barge-in signals from the peer.
	Interruptions metric.Int64Counter

	// FatalErrors counts non-retryable session errors. Use with attribute:
	//   attribute.String("kind", ...)
	FatalErrors metric.Int64Counter

	// ActiveSessions tracks the number of connected sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks admin HTTP request processing time, keyed by
	// method, route and status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// WebSocket connect latency.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ConnectDuration, err = m.Float64Histogram("voxlink.session.connect.duration",
		metric.WithDescription("Latency of WebSocket open plus setup delivery."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Connects, err = m.Int64Counter("voxlink.session.connects",
		metric.WithDescription("Total connection attempts by outcome and resumption."),
	); err != nil {
		return nil, err
	}
	if met.ReconnectAttempts, err = m.Int64Counter("voxlink.session.reconnect_attempts",
		metric.WithDescription("Total scheduled reconnects by close reason."),
	); err != nil {
		return nil, err
	}
	if met.Closes, err = m.Int64Counter("voxlink.session.closes",
		metric.WithDescription("Total transport closes by reason."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("voxlink.session.frames_sent",
		metric.WithDescription("Total realtime media chunks sent."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voxlink.session.frames_dropped",
		metric.WithDescription("Total inbound frames dropped as malformed."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("voxlink.session.interruptions",
		metric.WithDescription("Total interruptions signalled by the peer."),
	); err != nil {
		return nil, err
	}
	if met.FatalErrors, err = m.Int64Counter("voxlink.session.fatal_errors",
		metric.WithDescription("Total non-retryable session errors by kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voxlink.active_sessions",
		metric.WithDescription("Number of connected sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voxlink.http.request.duration",
		metric.WithDescription("Admin HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Call it after [InitProvider] so instruments bind to the exporter.
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

// RecordConnect implements live.Metrics.
func (m *Metrics) RecordConnect(ctx context.Context, latency time.Duration, resumed bool, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.Bool("resumed", resumed),
		attribute.String("status", status),
	)
	m.Connects.Add(ctx, 1, attrs)
	m.ConnectDuration.Record(ctx, latency.Seconds(), attrs)
}

// RecordReconnectAttempt implements live.Metrics.
func (m *Metrics) RecordReconnectAttempt(ctx context.Context, reason live.CloseReason) {
	m.ReconnectAttempts.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason.String())))
}

// RecordClose implements live.Metrics.
func (m *Metrics) RecordClose(ctx context.Context, reason live.CloseReason) {
	m.Closes.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason.String())))
}

// RecordFramesSent implements live.Metrics.
func (m *Metrics) RecordFramesSent(ctx context.Context, n int) {
	m.FramesSent.Add(ctx, int64(n))
}

// RecordFrameDropped implements live.Metrics.
func (m *Metrics) RecordFrameDropped(ctx context.Context) {
	m.FramesDropped.Add(ctx, 1)
}

// RecordInterruption implements live.Metrics.
func (m *Metrics) RecordInterruption(ctx context.Context) {
	m.Interruptions.Add(ctx, 1)
}

// RecordFatal implements live.Metrics.
func (m *Metrics) RecordFatal(ctx context.Context, kind live.ErrorKind) {
	m.FatalErrors.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind.String())))
}

// RecordActive implements live.Metrics.
func (m *Metrics) RecordActive(ctx context.Context, delta int64) {
	m.ActiveSessions.Add(ctx, delta)
}
