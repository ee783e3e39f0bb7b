// Package wasmpool implements a pooled, memory-tracked, leak-detecting
// sandbox for the content extractor. It hosts github.com/dop251/goja VMs as
// the sandboxed execution engine, each exposing an `extract(html) ->
// string` binding the pool calls into.
package wasmpool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/riptide-project/riptide/internal/config"
	"github.com/riptide-project/riptide/internal/types"
)

// DefaultExtractorScript is the built-in sandbox program: a tag-stripping
// text extractor. Deployments with a custom extractor pass their own
// script to New instead.
const DefaultExtractorScript = `
function extract(html) {
	return html
		.replace(/<script[\s\S]*?<\/script>/gi, " ")
		.replace(/<style[\s\S]*?<\/style>/gi, " ")
		.replace(/<[^>]+>/g, " ")
		.replace(/&nbsp;/g, " ")
		.replace(/\s+/g, " ")
		.trim();
}
`

// Manager enforces at most one live instance per worker id.
type Manager struct {
	cfg    config.WasmPoolConfig
	logger *slog.Logger

	mu        sync.RWMutex
	instances map[string]*workerInstance

	memMu         sync.Mutex
	totalMemMB    float64
	globalLimitMB float64

	script string // the sandboxed extractor script, loaded once
}

type workerInstance struct {
	mu        sync.Mutex
	vm        *goja.Runtime
	tracked   types.TrackedWasmInstance
	failedOps uint64
}

// New builds a Manager. extractorScript is the JS source executed inside
// each sandbox; it must define a global `extract(html)` function.
func New(cfg config.WasmPoolConfig, extractorScript string, globalLimitMB float64, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:           cfg,
		logger:        logger.With("component", "wasmpool"),
		instances:     make(map[string]*workerInstance),
		globalLimitMB: globalLimitMB,
		script:        extractorScript,
	}
}

// Handle is returned by Acquire; it carries the worker id and is safe to
// release more than once.
type Handle struct {
	WorkerID string
	mgr      *Manager
	inst     *workerInstance
	released bool
}

// Acquire returns the live instance for workerID, creating one if none
// exists or the existing one has retired. New-instance creation is refused
// when aggregate memory pressure exceeds MemoryPressureThresholdPct.
func (m *Manager) Acquire(ctx context.Context, workerID string) (*Handle, error) {
	m.mu.RLock()
	inst, ok := m.instances[workerID]
	m.mu.RUnlock()

	if ok && m.healthy(inst) {
		inst.mu.Lock()
		inst.tracked.InUse = true
		inst.mu.Unlock()
		return &Handle{WorkerID: workerID, mgr: m, inst: inst}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Double-checked: another goroutine may have created it first.
	if inst, ok := m.instances[workerID]; ok && m.healthy(inst) {
		inst.mu.Lock()
		inst.tracked.InUse = true
		inst.mu.Unlock()
		return &Handle{WorkerID: workerID, mgr: m, inst: inst}, nil
	}

	if m.pressureLocked() {
		return nil, fmt.Errorf("wasmpool: memory pressure, refusing new instance for worker %s", workerID)
	}

	vm := goja.New()
	if m.script != "" {
		if _, err := vm.RunString(m.script); err != nil {
			return nil, fmt.Errorf("wasmpool: load extractor script: %w", err)
		}
	}

	now := time.Now()
	inst = &workerInstance{
		vm: vm,
		tracked: types.TrackedWasmInstance{
			ID:        fmt.Sprintf("wasm-%s-%d", workerID, now.UnixNano()),
			CreatedAt: now,
			LastUsed:  now,
			InUse:     true,
		},
	}
	m.instances[workerID] = inst
	return &Handle{WorkerID: workerID, mgr: m, inst: inst}, nil
}

func (m *Manager) healthy(inst *workerInstance) bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if !inst.tracked.Healthy(m.cfg.MaxOpsPerInstance, m.cfg.RestartThreshold, m.cfg.IdleTimeout) {
		return false
	}
	if inst.tracked.MemUsageMB > m.cfg.InstanceMemoryThresholdMB {
		return false
	}
	if inst.tracked.LeakDetected() {
		return false
	}
	return true
}

func (m *Manager) pressureLocked() bool {
	m.memMu.Lock()
	defer m.memMu.Unlock()
	pct := m.cfg.MemoryPressureThresholdPct
	if pct <= 0 {
		pct = 90
	}
	return m.totalMemMB >= pct/100*m.globalLimitMB
}

// Extract runs the sandboxed extractor against html.
func (h *Handle) Extract(html string) (string, error) {
	h.inst.mu.Lock()
	defer h.inst.mu.Unlock()

	fn, ok := goja.AssertFunction(h.inst.vm.Get("extract"))
	if !ok {
		return "", fmt.Errorf("wasmpool: sandbox script does not define extract()")
	}
	v, err := fn(goja.Undefined(), h.inst.vm.ToValue(html))
	if err != nil {
		h.inst.failedOps++
		h.inst.tracked.FailedOps++
		return "", fmt.Errorf("wasmpool: sandbox execution: %w", err)
	}
	h.inst.tracked.OpsCount++
	h.inst.tracked.LastUsed = time.Now()
	return v.String(), nil
}

// RecordMemSample appends a memory sample to the instance's bounded ring
// and folds the delta into the pool-wide aggregate, called by the
// monitoring tick.
func (h *Handle) RecordMemSample(mb float64) {
	h.inst.mu.Lock()
	delta := mb - h.inst.tracked.MemUsageMB
	h.inst.tracked.RecordMemSample(mb)
	h.inst.mu.Unlock()

	h.mgr.memMu.Lock()
	h.mgr.totalMemMB += delta
	if h.mgr.totalMemMB < 0 {
		h.mgr.totalMemMB = 0
	}
	h.mgr.memMu.Unlock()
}

// Release returns the instance to the idle state. Double-release is a
// no-op.
func (h *Handle) Release() {
	if h == nil || h.released {
		return
	}
	h.released = true
	h.inst.mu.Lock()
	h.inst.tracked.InUse = false
	h.inst.mu.Unlock()
}

// SampleMemory is the monitoring tick body: it attributes the current Go
// heap evenly across live instances as an advisory per-instance estimate,
// feeding each instance's growth ring (and thus leak detection) and the
// pool-wide aggregate.
func (m *Manager) SampleMemory() {
	m.mu.RLock()
	instances := make([]*workerInstance, 0, len(m.instances))
	for _, inst := range m.instances {
		instances = append(instances, inst)
	}
	m.mu.RUnlock()
	if len(instances) == 0 {
		return
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	perInstanceMB := float64(ms.HeapAlloc) / float64(1<<20) / float64(len(instances))

	var totalDelta float64
	for _, inst := range instances {
		inst.mu.Lock()
		totalDelta += perInstanceMB - inst.tracked.MemUsageMB
		inst.tracked.RecordMemSample(perInstanceMB)
		leaking := inst.tracked.LeakDetected()
		id := inst.tracked.ID
		inst.mu.Unlock()
		if leaking {
			m.logger.Warn("wasm instance leak detected", "instance", id, "mem_mb", perInstanceMB)
		}
	}

	m.memMu.Lock()
	m.totalMemMB += totalDelta
	if m.totalMemMB < 0 {
		m.totalMemMB = 0
	}
	m.memMu.Unlock()
}

// StartBackground launches the monitoring and garbage-collection ticks,
// running until ctx is cancelled. onGC, if non-nil, is invoked after each
// tick that retired at least one instance (callers publish the
// garbage-collection event from it).
func (m *Manager) StartBackground(ctx context.Context, onGC func(GCResult)) {
	monitorEvery := m.cfg.MonitorTickInterval
	if monitorEvery <= 0 {
		monitorEvery = 10 * time.Second
	}
	gcEvery := m.cfg.GCTickInterval
	if gcEvery <= 0 {
		gcEvery = 30 * time.Second
	}

	go func() {
		monitor := time.NewTicker(monitorEvery)
		gc := time.NewTicker(gcEvery)
		defer monitor.Stop()
		defer gc.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-monitor.C:
				m.SampleMemory()
			case <-gc.C:
				result := m.RunGCTick()
				if result.Retired > 0 && onGC != nil {
					onGC(result)
				}
			}
		}
	}()
}

// GCResult reports the outcome of one garbage-collection tick.
type GCResult struct {
	Retired int
	FreedMB float64
}

// RunGCTick retires idle or over-threshold instances and emits the freed
// memory total.
func (m *Manager) RunGCTick() GCResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result GCResult
	for id, inst := range m.instances {
		inst.mu.Lock()
		retire := !inst.tracked.InUse && !m.healthyLocked(inst)
		freed := inst.tracked.MemUsageMB
		inst.mu.Unlock()

		if retire {
			delete(m.instances, id)
			result.Retired++
			result.FreedMB += freed
			m.memMu.Lock()
			m.totalMemMB -= freed
			if m.totalMemMB < 0 {
				m.totalMemMB = 0
			}
			m.memMu.Unlock()
		}
	}
	if result.Retired > 0 {
		m.logger.Info("wasm pool gc", "retired", result.Retired, "freed_mb", result.FreedMB)
	}
	return result
}

func (m *Manager) healthyLocked(inst *workerInstance) bool {
	if !inst.tracked.Healthy(m.cfg.MaxOpsPerInstance, m.cfg.RestartThreshold, m.cfg.IdleTimeout) {
		return false
	}
	if inst.tracked.MemUsageMB > m.cfg.InstanceMemoryThresholdMB {
		return false
	}
	return !inst.tracked.LeakDetected()
}

// Len reports the number of live tracked instances (for metrics/tests).
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instances)
}
