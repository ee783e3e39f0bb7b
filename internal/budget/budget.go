// Package budget implements global and per-host page/depth/bandwidth
// accounting using an atomic-counter idiom.
package budget

import (
	"sync"
	"sync/atomic"

	"github.com/riptide-project/riptide/internal/config"
)

// hostStats is the per-host counter set, guarded by the Manager's RWMutex
// map with double-checked insertion.
type hostStats struct {
	pages     atomic.Int64
	bandwidth atomic.Int64
}

// Manager is the Budget Manager. All counters are atomic; readers observe
// monotonically non-decreasing values. Per-host bandwidth is never reset
// within a single crawl run; Reset is an explicit operation callable only
// between runs.
type Manager struct {
	cfg config.BudgetConfig

	pagesTotal     atomic.Int64
	bandwidthTotal atomic.Int64
	inFlight       atomic.Int64

	mu    sync.RWMutex
	hosts map[string]*hostStats
}

func NewManager(cfg config.BudgetConfig) *Manager {
	return &Manager{
		cfg:   cfg,
		hosts: make(map[string]*hostStats),
	}
}

func (m *Manager) hostStatsFor(host string) *hostStats {
	m.mu.RLock()
	hs, ok := m.hosts[host]
	m.mu.RUnlock()
	if ok {
		return hs
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if hs, ok = m.hosts[host]; ok {
		return hs
	}
	hs = &hostStats{}
	m.hosts[host] = hs
	return hs
}

// CanMakeRequest returns false if any global or per-host counter has
// already been exceeded for the given depth/host.
func (m *Manager) CanMakeRequest(host string, depth int) bool {
	if m.cfg.MaxDepth > 0 && depth > m.cfg.MaxDepth {
		return false
	}
	if m.cfg.MaxPages > 0 && m.pagesTotal.Load() >= m.cfg.MaxPages {
		return false
	}
	if m.cfg.MaxBandwidthBytes > 0 && m.bandwidthTotal.Load() >= m.cfg.MaxBandwidthBytes {
		return false
	}

	hs := m.hostStatsFor(host)
	if m.cfg.MaxPagesPerHost > 0 && hs.pages.Load() >= m.cfg.MaxPagesPerHost {
		return false
	}
	if m.cfg.MaxBandwidthPerHost > 0 && hs.bandwidth.Load() >= m.cfg.MaxBandwidthPerHost {
		return false
	}
	return true
}

// StartRequest increments the in-flight counter.
func (m *Manager) StartRequest(host string, depth int) {
	m.inFlight.Add(1)
}

// CompleteRequest updates bandwidth and page counters and host stats.
func (m *Manager) CompleteRequest(host string, bytes int64, ok bool) {
	m.inFlight.Add(-1)
	if ok {
		m.pagesTotal.Add(1)
		m.bandwidthTotal.Add(bytes)
		hs := m.hostStatsFor(host)
		hs.pages.Add(1)
		hs.bandwidth.Add(bytes)
	}
}

// PagesCrawled returns the current global page counter.
func (m *Manager) PagesCrawled() int64 { return m.pagesTotal.Load() }

// BandwidthUsed returns the current global bandwidth counter.
func (m *Manager) BandwidthUsed() int64 { return m.bandwidthTotal.Load() }

// InFlight returns the number of requests currently in flight.
func (m *Manager) InFlight() int64 { return m.inFlight.Load() }

// Exhausted reports whether any global budget dimension has been reached,
// one of the Spider's stop triggers.
func (m *Manager) Exhausted() bool {
	if m.cfg.MaxPages > 0 && m.pagesTotal.Load() >= m.cfg.MaxPages {
		return true
	}
	if m.cfg.MaxBandwidthBytes > 0 && m.bandwidthTotal.Load() >= m.cfg.MaxBandwidthBytes {
		return true
	}
	return false
}

// Reset clears all counters. Callable only between crawl runs, per the
// Open Question #1 resolution documented in DESIGN.md.
func (m *Manager) Reset() {
	m.pagesTotal.Store(0)
	m.bandwidthTotal.Store(0)
	m.inFlight.Store(0)
	m.mu.Lock()
	m.hosts = make(map[string]*hostStats)
	m.mu.Unlock()
}
