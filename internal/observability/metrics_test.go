package observability

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newMetrics() *Metrics {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewMetrics(logger)
}

func TestObserveRequestCounts(t *testing.T) {
	m := newMetrics()
	m.ObserveRequest(10*time.Millisecond, 200)
	m.ObserveRequest(20*time.Millisecond, 404)
	m.ObserveRequest(30*time.Millisecond, 500)

	if m.HTTPRequestsTotal.Load() != 3 {
		t.Errorf("total = %d", m.HTTPRequestsTotal.Load())
	}
	if m.HTTPRequests4xx.Load() != 1 || m.HTTPRequests5xx.Load() != 1 {
		t.Errorf("4xx=%d 5xx=%d", m.HTTPRequests4xx.Load(), m.HTTPRequests5xx.Load())
	}
	if avg := m.AvgResponseTimeMs(); avg < 10 || avg > 30 {
		t.Errorf("avg response time = %v ms", avg)
	}
	if m.RequestsPerSecond() <= 0 {
		t.Error("rps should be positive after requests")
	}
}

func TestDurationWindowBounded(t *testing.T) {
	m := newMetrics()
	for i := 0; i < durationWindow*3; i++ {
		m.ObserveRequest(time.Millisecond, 200)
	}
	if len(m.durations) != durationWindow {
		t.Errorf("window length = %d, want %d", len(m.durations), durationWindow)
	}
}

func TestGateDecisionCounters(t *testing.T) {
	m := newMetrics()
	for _, d := range []string{"raw", "raw", "headless", "cached", "probes_first", "bogus"} {
		m.RecordGateDecision(d)
	}
	if m.GateRaw.Load() != 2 || m.GateHeadless.Load() != 1 || m.GateCached.Load() != 1 || m.GateProbes.Load() != 1 {
		t.Errorf("gate counters: raw=%d headless=%d cached=%d probes=%d",
			m.GateRaw.Load(), m.GateHeadless.Load(), m.GateCached.Load(), m.GateProbes.Load())
	}
}

func TestPrometheusExposition(t *testing.T) {
	m := newMetrics()
	m.PagesCrawled.Add(7)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "riptide_pages_crawled_total 7") {
		t.Errorf("exposition missing counter value:\n%s", body)
	}
	if !strings.Contains(body, "# TYPE riptide_pages_crawled_total counter") {
		t.Error("missing TYPE comment")
	}
}

func TestSnapshotKeys(t *testing.T) {
	snap := newMetrics().Snapshot()
	for _, key := range []string{"http_requests_total", "pages_crawled", "gate_raw", "ai_tasks_queued"} {
		if _, ok := snap[key]; !ok {
			t.Errorf("snapshot missing %q", key)
		}
	}
}
