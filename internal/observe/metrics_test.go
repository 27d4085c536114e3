package observe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"eventscan/internal/detect"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

var _ detect.Recorder = (*Metrics)(nil)

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
		t.Fatalf("collect: %v", err)
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

func sumFor(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: data is %T", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if key == "" {
			total += dp.Value
			continue
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestRecorderMethods(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.StageDuration(ctx, "inference", 1500*time.Millisecond)
	m.StageDuration(ctx, "framing", 20*time.Millisecond)
	m.WindowsClassified(ctx, "cpu", 10)
	m.WindowsClassified(ctx, "cpu", 7)
	m.WindowsClassified(ctx, "cuda", 32)
	m.SegmentsDetected(ctx, 2)
	m.JobFinished(ctx, JobSucceeded)
	m.JobFinished(ctx, JobFailed)
	m.JobFinished(ctx, JobSucceeded)

	rm := collect(t, reader)

	hist := findMetric(rm, "eventscan.pipeline.duration")
	if hist == nil {
		t.Fatalf("pipeline duration missing")
	}
	h, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("histogram data is %T", hist.Data)
	}
	if len(h.DataPoints) != 2 {
		t.Fatalf("expected one point per stage, got %d", len(h.DataPoints))
	}
	for _, dp := range h.DataPoints {
		stage, _ := dp.Attributes.Value("stage")
		if stage.AsString() == "inference" && dp.Sum != 1.5 {
			t.Fatalf("inference sum %v", dp.Sum)
		}
	}

	windows := findMetric(rm, "eventscan.windows.classified")
	if windows == nil {
		t.Fatalf("windows counter missing")
	}
	if got := sumFor(t, windows, "backend", "cpu"); got != 17 {
		t.Fatalf("cpu windows %d", got)
	}
	if got := sumFor(t, windows, "backend", "cuda"); got != 32 {
		t.Fatalf("cuda windows %d", got)
	}

	if got := sumFor(t, findMetric(rm, "eventscan.segments.detected"), "", ""); got != 2 {
		t.Fatalf("segments %d", got)
	}
	jobs := findMetric(rm, "eventscan.jobs")
	if got := sumFor(t, jobs, "status", JobSucceeded); got != 2 {
		t.Fatalf("ok jobs %d", got)
	}
	if got := sumFor(t, jobs, "status", JobFailed); got != 1 {
		t.Fatalf("failed jobs %d", got)
	}
}

func TestQueueDepth(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.Queued(ctx, 1)
	m.Queued(ctx, 1)
	m.Queued(ctx, -1)
	if got := sumFor(t, findMetric(collect(t, reader), "eventscan.jobs.queued"), "", ""); got != 1 {
		t.Fatalf("queue depth %d", got)
	}
}

func TestProviderServesPrometheus(t *testing.T) {
	p, err := InitProvider()
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	t.Cleanup(func() { _ = p.MeterProvider.Shutdown(context.Background()) })
	m, err := NewMetrics(p.MeterProvider)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	m.SegmentsDetected(context.Background(), 3)

	rec := httptest.NewRecorder()
	p.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(string(body), "eventscan_segments_detected") {
		t.Fatalf("exported metrics missing segments counter:\n%s", body)
	}
}

func TestHealthHandlers(t *testing.T) {
	failing := errors.New("model not loaded")
	h := NewHealth(
		Checker{Name: "queue", Check: func(context.Context) error { return nil }},
		Checker{Name: "classifier", Check: func(context.Context) error { return failing }},
	)
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status %d", rec.Code)
	}
	var res healthResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Status != "fail" || res.Checks["queue"] != "ok" || res.Checks["classifier"] != "fail: model not loaded" {
		t.Fatalf("readyz body %+v", res)
	}
}
