// Package observe provides the client's OpenTelemetry metrics.
//
// Instruments are created from a [metric.MeterProvider]; [InitProvider]
// builds one backed by a Prometheus exporter so the numbers can be scraped
// from /metrics. Tests should pass an SDK provider with a ManualReader.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all client metrics.
const meterName = "voxcanvas"

// Metrics holds the client's instruments. All methods are safe for
// concurrent use; the capture callback records from its own goroutine.
type Metrics struct {
	// FramesSent counts audio frames handed to the transport.
	FramesSent metric.Int64Counter

	// FramesDiscarded counts frames dropped by the capture stop guard.
	FramesDiscarded metric.Int64Counter

	// InboundMessages counts decoded inbound messages. Attribute: type.
	InboundMessages metric.Int64Counter

	// ProtocolErrors counts malformed inbound messages. Attribute: kind.
	ProtocolErrors metric.Int64Counter

	// ConfigApplies counts successful config applies.
	ConfigApplies metric.Int64Counter

	// ConnectionStates counts connection state transitions. Attribute: state.
	ConnectionStates metric.Int64Counter

	// BackendLatency mirrors the backend's per-phase average latency.
	// Attribute: phase.
	BackendLatency metric.Float64Gauge

	// BackendCost mirrors the backend's running session cost total.
	BackendCost metric.Float64Gauge
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesSent, err = m.Int64Counter("voxcanvas.audio.frames_sent",
		metric.WithDescription("Audio frames handed to the transport."),
	); err != nil {
		return nil, err
	}
	if met.FramesDiscarded, err = m.Int64Counter("voxcanvas.audio.frames_discarded",
		metric.WithDescription("Audio frames dropped after capture was stopped."),
	); err != nil {
		return nil, err
	}
	if met.InboundMessages, err = m.Int64Counter("voxcanvas.inbound.messages",
		metric.WithDescription("Inbound backend messages by type."),
	); err != nil {
		return nil, err
	}
	if met.ProtocolErrors, err = m.Int64Counter("voxcanvas.inbound.protocol_errors",
		metric.WithDescription("Inbound messages dropped as malformed, by kind."),
	); err != nil {
		return nil, err
	}
	if met.ConfigApplies, err = m.Int64Counter("voxcanvas.config.applies",
		metric.WithDescription("Configuration saves pushed to the backend."),
	); err != nil {
		return nil, err
	}
	if met.ConnectionStates, err = m.Int64Counter("voxcanvas.connection.transitions",
		metric.WithDescription("Connection state transitions by target state."),
	); err != nil {
		return nil, err
	}
	if met.BackendLatency, err = m.Float64Gauge("voxcanvas.backend.latency",
		metric.WithDescription("Backend-reported average latency per pipeline phase."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.BackendCost, err = m.Float64Gauge("voxcanvas.backend.cost",
		metric.WithDescription("Backend-reported running session cost."),
		metric.WithUnit("{USD}"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	discardMetrics     *Metrics
	discardMetricsOnce sync.Once
)

// Discard returns instruments that record nothing.
func Discard() *Metrics {
	discardMetricsOnce.Do(func() {
		var err error
		discardMetrics, err = NewMetrics(noop.NewMeterProvider())
		if err != nil {
			panic("observe: failed to create no-op metrics: " + err.Error())
		}
	})
	return discardMetrics
}

// RecordInbound counts one decoded inbound message.
func (m *Metrics) RecordInbound(ctx context.Context, msgType string) {
	m.InboundMessages.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", msgType)),
	)
}

// RecordProtocolError counts one dropped inbound message.
func (m *Metrics) RecordProtocolError(ctx context.Context, kind string) {
	m.ProtocolErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordConnectionState counts a transition into state.
func (m *Metrics) RecordConnectionState(ctx context.Context, state string) {
	m.ConnectionStates.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", state)),
	)
}

// RecordBackend mirrors a backend metrics snapshot into the gauges.
func (m *Metrics) RecordBackend(ctx context.Context, latency map[string]float64, costTotal float64) {
	for phase, v := range latency {
		m.BackendLatency.Record(ctx, v,
			metric.WithAttributes(attribute.String("phase", phase)),
		)
	}
	m.BackendCost.Record(ctx, costTotal)
}
