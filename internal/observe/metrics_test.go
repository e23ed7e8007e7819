package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name string, attr attribute.KeyValue) int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q: expected Sum[int64], got %T", name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if attr.Key == "" {
			total += dp.Value
			continue
		}
		if v, ok := dp.Attributes.Value(attr.Key); ok && v.Emit() == attr.Value.Emit() {
			total += dp.Value
		}
	}
	return total
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.FramesSent.Add(ctx, 3)
	m.FramesDiscarded.Add(ctx, 1)
	m.ConfigApplies.Add(ctx, 2)
	m.RecordInbound(ctx, "image")
	m.RecordInbound(ctx, "image")
	m.RecordInbound(ctx, "status")
	m.RecordProtocolError(ctx, "MALFORMED_JSON")
	m.RecordConnectionState(ctx, "open")

	rm := collect(t, reader)
	none := attribute.KeyValue{}

	if got := sumFor(t, rm, "voxcanvas.audio.frames_sent", none); got != 3 {
		t.Errorf("frames_sent = %d, want 3", got)
	}
	if got := sumFor(t, rm, "voxcanvas.audio.frames_discarded", none); got != 1 {
		t.Errorf("frames_discarded = %d, want 1", got)
	}
	if got := sumFor(t, rm, "voxcanvas.config.applies", none); got != 2 {
		t.Errorf("config.applies = %d, want 2", got)
	}
	if got := sumFor(t, rm, "voxcanvas.inbound.messages", attribute.String("type", "image")); got != 2 {
		t.Errorf("inbound image = %d, want 2", got)
	}
	if got := sumFor(t, rm, "voxcanvas.inbound.messages", attribute.String("type", "status")); got != 1 {
		t.Errorf("inbound status = %d, want 1", got)
	}
	if got := sumFor(t, rm, "voxcanvas.inbound.protocol_errors", attribute.String("kind", "MALFORMED_JSON")); got != 1 {
		t.Errorf("protocol_errors = %d, want 1", got)
	}
	if got := sumFor(t, rm, "voxcanvas.connection.transitions", attribute.String("state", "open")); got != 1 {
		t.Errorf("transitions = %d, want 1", got)
	}
}

func TestRecordBackend(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBackend(ctx, map[string]float64{"transcription": 0.4, "image": 6.2}, 0.031)
	m.RecordBackend(ctx, map[string]float64{"transcription": 0.5}, 0.042)

	rm := collect(t, reader)

	lat := findMetric(rm, "voxcanvas.backend.latency")
	if lat == nil {
		t.Fatal("latency gauge not found")
	}
	g, ok := lat.Data.(metricdata.Gauge[float64])
	if !ok {
		t.Fatalf("expected Gauge[float64], got %T", lat.Data)
	}
	phases := map[string]float64{}
	for _, dp := range g.DataPoints {
		v, _ := dp.Attributes.Value("phase")
		phases[v.AsString()] = dp.Value
	}
	if phases["transcription"] != 0.5 || phases["image"] != 6.2 {
		t.Errorf("unexpected latency gauges: %v", phases)
	}

	cost := findMetric(rm, "voxcanvas.backend.cost")
	if cost == nil {
		t.Fatal("cost gauge not found")
	}
	cg := cost.Data.(metricdata.Gauge[float64])
	if len(cg.DataPoints) != 1 || cg.DataPoints[0].Value != 0.042 {
		t.Errorf("unexpected cost gauge: %+v", cg.DataPoints)
	}
}

func TestDiscard(t *testing.T) {
	m := Discard()
	if m == nil || m != Discard() {
		t.Fatal("expected a shared no-op instance")
	}
	m.FramesSent.Add(context.Background(), 1)
}

func TestInitProvider_ServesMetrics(t *testing.T) {
	ctx := context.Background()
	p, err := InitProvider(ctx, ProviderConfig{ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	defer p.Shutdown(ctx)

	m, err := NewMetrics(p)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.FramesSent.Add(ctx, 7)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "frames_sent") {
		t.Errorf("expected frames_sent in exposition, got:\n%s", body)
	}
}
