package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters for the service. Hot counters are
// atomics; the response-time window is the only mutex-guarded piece.
type Metrics struct {
	// HTTP surface
	HTTPRequestsTotal atomic.Int64
	HTTPRequests4xx   atomic.Int64
	HTTPRequests5xx   atomic.Int64
	ActiveConnections atomic.Int64

	// Crawl pipeline
	PagesCrawled   atomic.Int64
	PagesFailed    atomic.Int64
	BytesFetched   atomic.Int64
	GateRaw        atomic.Int64
	GateProbes     atomic.Int64
	GateHeadless   atomic.Int64
	GateCached     atomic.Int64
	RenderTimeouts atomic.Int64

	// AI processor
	AITasksQueued    atomic.Int64
	AITasksCompleted atomic.Int64
	AITasksFailed    atomic.Int64

	startedAt time.Time

	mu              sync.Mutex
	durations       []time.Duration // bounded ring of recent request durations
	durationsCursor int
	requestTimes    []time.Time // bounded ring of recent request timestamps

	logger *slog.Logger
}

const durationWindow = 256

// NewMetrics creates a Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		startedAt: time.Now(),
		durations: make([]time.Duration, 0, durationWindow),
		logger:    logger.With("component", "metrics"),
	}
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(d time.Duration, status int) {
	m.HTTPRequestsTotal.Add(1)
	switch {
	case status >= 500:
		m.HTTPRequests5xx.Add(1)
	case status >= 400:
		m.HTTPRequests4xx.Add(1)
	}

	m.mu.Lock()
	if len(m.durations) < durationWindow {
		m.durations = append(m.durations, d)
		m.requestTimes = append(m.requestTimes, time.Now())
	} else {
		m.durations[m.durationsCursor] = d
		m.requestTimes[m.durationsCursor] = time.Now()
		m.durationsCursor = (m.durationsCursor + 1) % durationWindow
	}
	m.mu.Unlock()
}

// AvgResponseTimeMs is the mean duration over the recent-request window.
func (m *Metrics) AvgResponseTimeMs() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.durations) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range m.durations {
		sum += d
	}
	return float64(sum.Milliseconds()) / float64(len(m.durations))
}

// RequestsPerSecond is computed over the recent-request window, bounded
// below by a one-second span so a burst doesn't report an absurd rate.
func (m *Metrics) RequestsPerSecond() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requestTimes) == 0 {
		return 0
	}
	oldest := m.requestTimes[0]
	for _, t := range m.requestTimes {
		if t.Before(oldest) {
			oldest = t
		}
	}
	span := time.Since(oldest)
	if span < time.Second {
		span = time.Second
	}
	return float64(len(m.requestTimes)) / span.Seconds()
}

// Uptime reports seconds since construction.
func (m *Metrics) Uptime() float64 { return time.Since(m.startedAt).Seconds() }

// MemoryUsageBytes samples the Go heap, for /health.
func (m *Metrics) MemoryUsageBytes() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// RecordGateDecision bumps the counter for one gate path.
func (m *Metrics) RecordGateDecision(decision string) {
	switch decision {
	case "raw":
		m.GateRaw.Add(1)
	case "probes_first":
		m.GateProbes.Add(1)
	case "headless":
		m.GateHeadless.Add(1)
	case "cached":
		m.GateCached.Add(1)
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		value int64
	}{
		{"riptide_http_requests_total", "Total HTTP requests served", m.HTTPRequestsTotal.Load()},
		{"riptide_http_requests_4xx_total", "Total 4xx responses", m.HTTPRequests4xx.Load()},
		{"riptide_http_requests_5xx_total", "Total 5xx responses", m.HTTPRequests5xx.Load()},
		{"riptide_active_connections", "Currently active HTTP connections", m.ActiveConnections.Load()},
		{"riptide_pages_crawled_total", "Total pages crawled", m.PagesCrawled.Load()},
		{"riptide_pages_failed_total", "Total pages failed", m.PagesFailed.Load()},
		{"riptide_bytes_fetched_total", "Total bytes fetched", m.BytesFetched.Load()},
		{"riptide_gate_raw_total", "Crawls taking the raw gate path", m.GateRaw.Load()},
		{"riptide_gate_probes_first_total", "Crawls taking the probes_first gate path", m.GateProbes.Load()},
		{"riptide_gate_headless_total", "Crawls taking the headless gate path", m.GateHeadless.Load()},
		{"riptide_gate_cached_total", "Crawls served from cache", m.GateCached.Load()},
		{"riptide_render_timeouts_total", "Headless render timeouts", m.RenderTimeouts.Load()},
		{"riptide_ai_tasks_queued_total", "AI enhancement tasks queued", m.AITasksQueued.Load()},
		{"riptide_ai_tasks_completed_total", "AI enhancement tasks completed", m.AITasksCompleted.Load()},
		{"riptide_ai_tasks_failed_total", "AI enhancement tasks failed", m.AITasksFailed.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer starts a standalone metrics HTTP server, used when metrics
// are exposed on a separate port from the public API.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Snapshot returns all counters as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"http_requests_total": m.HTTPRequestsTotal.Load(),
		"http_requests_4xx":   m.HTTPRequests4xx.Load(),
		"http_requests_5xx":   m.HTTPRequests5xx.Load(),
		"active_connections":  m.ActiveConnections.Load(),
		"pages_crawled":       m.PagesCrawled.Load(),
		"pages_failed":        m.PagesFailed.Load(),
		"bytes_fetched":       m.BytesFetched.Load(),
		"gate_raw":            m.GateRaw.Load(),
		"gate_probes_first":   m.GateProbes.Load(),
		"gate_headless":       m.GateHeadless.Load(),
		"gate_cached":         m.GateCached.Load(),
		"render_timeouts":     m.RenderTimeouts.Load(),
		"ai_tasks_queued":     m.AITasksQueued.Load(),
		"ai_tasks_completed":  m.AITasksCompleted.Load(),
		"ai_tasks_failed":     m.AITasksFailed.Load(),
	}
}
