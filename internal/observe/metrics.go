// Package observe provides observability primitives for the Voceria gateway:
// OpenTelemetry metrics behind a Prometheus scrape endpoint, tracing helpers,
// and HTTP middleware tying both to the admin surface.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all gateway metrics.
const meterName = "github.com/atelic-ai/voceria"

// Metrics holds all OpenTelemetry metric instruments for the gateway. All
// fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks one full decision turn, utterance to reply text.
	TurnDuration metric.Float64Histogram

	// TimeToFirstToken tracks model latency to the first streamed token.
	TimeToFirstToken metric.Float64Histogram

	// SpeakDuration tracks synthesis plus playback of one agent utterance.
	SpeakDuration metric.Float64Histogram

	// ToolDuration tracks tool execution latency.
	ToolDuration metric.Float64Histogram

	// --- Counters ---

	// CallsTotal counts finished calls. Use with
	// attribute.String("reason", ...).
	CallsTotal metric.Int64Counter

	// CallsRejected counts inbound calls refused by the daily cap.
	CallsRejected metric.Int64Counter

	// ToolCalls counts tool invocations by tool name and status.
	ToolCalls metric.Int64Counter

	// RecognizerReconnects counts mid-call recognizer reconnect attempts.
	RecognizerReconnects metric.Int64Counter

	// --- Gauges ---

	// ActiveCalls tracks the number of live call sessions.
	ActiveCalls metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time by method and
	// path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds, tuned to
// the sub-1.5-second turn budget of a live call.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 1.5, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TurnDuration, err = m.Float64Histogram("voceria.turn.duration",
		metric.WithDescription("Latency of one decision turn, utterance to reply text."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TimeToFirstToken, err = m.Float64Histogram("voceria.llm.ttft",
		metric.WithDescription("Model latency to the first streamed token."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeakDuration, err = m.Float64Histogram("voceria.speak.duration",
		metric.WithDescription("Synthesis and playback time of one agent utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("voceria.tool.duration",
		metric.WithDescription("Tool execution latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.CallsTotal, err = m.Int64Counter("voceria.calls.total",
		metric.WithDescription("Finished calls by end reason."),
	); err != nil {
		return nil, err
	}
	if met.CallsRejected, err = m.Int64Counter("voceria.calls.rejected",
		metric.WithDescription("Inbound calls refused by the daily cap."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("voceria.tool.calls",
		metric.WithDescription("Tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerReconnects, err = m.Int64Counter("voceria.stt.reconnects",
		metric.WithDescription("Mid-call recognizer reconnect attempts."),
	); err != nil {
		return nil, err
	}

	if met.ActiveCalls, err = m.Int64UpDownCounter("voceria.active_calls",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voceria.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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
// first call from the global meter provider.
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

// RecordTurn records one decision turn with its first-token latency.
func (m *Metrics) RecordTurn(ctx context.Context, total, ttft time.Duration) {
	m.TurnDuration.Record(ctx, total.Seconds())
	if ttft > 0 {
		m.TimeToFirstToken.Record(ctx, ttft.Seconds())
	}
}

// RecordToolCall records a tool invocation with its duration and status.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, d time.Duration) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	))
	m.ToolDuration.Record(ctx, d.Seconds())
}

// RecordCallEnd records a finished call by end reason.
func (m *Metrics) RecordCallEnd(ctx context.Context, reason string) {
	m.CallsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
