// Package governor implements the Resource Governor: the single
// admission point for headless render, PDF, and per-host fetch operations.
// It never holds user data, only counts, timings, and a memory budget.
package governor

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/riptide-project/riptide/internal/config"
	"github.com/riptide-project/riptide/internal/types"
	"github.com/riptide-project/riptide/internal/wasmpool"
)

// renderMemEstimateMB and pdfMemEstimateMB are the fixed per-operation
// credits the memory manager accounts against a render/PDF lease; they are
// estimates, not measured RSS.
const (
	renderMemEstimateMB = 180
	pdfMemEstimateMB    = 120
)

// Governor is the process-wide resource admission layer.
type Governor struct {
	cfg    config.GovernorConfig
	logger *slog.Logger

	browsers *BrowserPool
	pdfSem   chan struct{}
	memory   *MemoryManager
	breaker  *CircuitBreaker
	wasm     *wasmpool.Manager // optional; nil skips the WASM acquisition step

	hostBucketsMu sync.RWMutex
	hostBuckets   map[string]*types.HostBucket

	auth *AuthRateLimiter

	timeoutSamplesMu sync.Mutex
	timeoutSamples   []time.Time
}

// New builds a Governor and pre-warms its browser pool.
func New(cfg config.GovernorConfig, logger *slog.Logger) (*Governor, error) {
	logger = logger.With("component", "governor")
	browsers, err := NewBrowserPool(cfg.MinPoolSize, cfg.MaxPoolSize, logger)
	if err != nil {
		return nil, err
	}
	return &Governor{
		cfg:         cfg,
		logger:      logger,
		browsers:    browsers,
		pdfSem:      make(chan struct{}, cfg.PDFMaxConcurrent),
		memory:      NewMemoryManager(int64(cfg.GlobalMemoryLimitMB), cfg.MemoryThresholdRatio),
		breaker:     NewCircuitBreaker(cfg.CircuitFailureThresholdPct, cfg.CircuitMinRequests, cfg.CircuitOpenDuration, cfg.CircuitSuccessThreshold),
		hostBuckets: make(map[string]*types.HostBucket),
		auth:        NewAuthRateLimiter(cfg.AuthWindowDuration, cfg.AuthMaxAttemptsPerWindow),
	}, nil
}

func (g *Governor) hostBucket(host string) *types.HostBucket {
	g.hostBucketsMu.RLock()
	b, ok := g.hostBuckets[host]
	g.hostBucketsMu.RUnlock()
	if ok {
		return b
	}

	g.hostBucketsMu.Lock()
	defer g.hostBucketsMu.Unlock()
	if b, ok := g.hostBuckets[host]; ok {
		return b
	}
	b = types.NewHostBucket(g.cfg.RequestsPerSecondPerHost, g.cfg.BurstCapacityPerHost)
	g.hostBuckets[host] = b
	return b
}

// SetWasmPool attaches the WASM instance manager, enabling the
// one-instance-per-worker acquisition step of the render path.
func (g *Governor) SetWasmPool(m *wasmpool.Manager) { g.wasm = m }

// AcquireRenderResources admits a headless-render operation for host. The
// check order is contractual: (1) memory pressure, (2) per-host rate limit
// with jitter sleep on success, (3) browser pool bounded by RenderTimeout,
// (4) WASM instance for the current worker, (5) memory accounting. Any
// failing step short-circuits and releases what earlier steps acquired.
func (g *Governor) AcquireRenderResources(ctx context.Context, host string) GovernorOutcome {
	if g.memory.UnderPressure() {
		return memoryPressure()
	}

	bucket := g.hostBucket(host)
	ok, retryAfter := bucket.Allow(time.Now())
	if !ok {
		return rateLimited(retryAfter)
	}
	if g.cfg.JitterMaxMillis > 0 {
		jitter := time.Duration(rand.Intn(g.cfg.JitterMaxMillis)) * time.Millisecond
		select {
		case <-time.After(jitter):
		case <-ctx.Done():
			return errOutcome(ctx.Err())
		}
	}

	lease, err := g.browsers.Acquire(ctx, g.cfg.RenderTimeout)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || err == context.DeadlineExceeded {
			return timeoutOutcome()
		}
		return exhausted()
	}

	var wasmHandle *wasmpool.Handle
	if g.wasm != nil {
		wasmHandle, err = g.wasm.Acquire(ctx, WorkerIDFrom(ctx))
		if err != nil {
			lease.Release(true)
			return exhausted()
		}
	}

	g.memory.Reserve(renderMemEstimateMB)

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		g.memory.Release(renderMemEstimateMB)
		if wasmHandle != nil {
			wasmHandle.Release()
		}
		lease.Release(true)
	}
	return successWithBrowserAndWasm(newGuard(release), lease.Browser, wasmHandle)
}

// AcquirePDFResources admits a PDF render; the semaphore cap is
// PDFMaxConcurrent, fixed at 2.
func (g *Governor) AcquirePDFResources(ctx context.Context) GovernorOutcome {
	if g.memory.UnderPressure() {
		return memoryPressure()
	}

	select {
	case g.pdfSem <- struct{}{}:
	case <-ctx.Done():
		return timeoutOutcome()
	}

	g.memory.Reserve(pdfMemEstimateMB)
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		g.memory.Release(pdfMemEstimateMB)
		<-g.pdfSem
	}
	return success(newGuard(release))
}

// AcquireHostFetchSlot admits a plain HTTP fetch for host, enforcing only
// the per-host rate limiter (no browser/WASM resource needed).
func (g *Governor) AcquireHostFetchSlot(ctx context.Context, host string) GovernorOutcome {
	bucket := g.hostBucket(host)
	ok, retryAfter := bucket.Allow(time.Now())
	if !ok {
		return rateLimited(retryAfter)
	}
	return success(newGuard(func() {}))
}

// CleanupOnTimeout records a timeout sample (the last 200 are kept) and
// releases the memory estimate reserved for opKind ("render", "pdf",
// "wasm", "fetch"). It does not request a GC itself.
func (g *Governor) CleanupOnTimeout(opKind string) {
	g.timeoutSamplesMu.Lock()
	g.timeoutSamples = append(g.timeoutSamples, time.Now())
	if len(g.timeoutSamples) > 200 {
		g.timeoutSamples = g.timeoutSamples[len(g.timeoutSamples)-200:]
	}
	g.timeoutSamplesMu.Unlock()

	switch opKind {
	case "render":
		g.memory.Release(renderMemEstimateMB)
	case "pdf":
		g.memory.Release(pdfMemEstimateMB)
	}
	g.logger.Warn("resource timeout, ran cleanup", "op_kind", opKind)
}

// Breaker exposes the governor's shared circuit breaker for reuse by the
// retry layer and the AI processor.
func (g *Governor) Breaker() *CircuitBreaker { return g.breaker }

// Auth exposes the dedicated auth rate limiter for the HTTP auth middleware.
func (g *Governor) Auth() *AuthRateLimiter { return g.auth }

// MemoryMB reports the current advisory memory estimate, for /health.
func (g *Governor) MemoryMB() int64 { return g.memory.CurrentMB() }

// Close releases pooled browsers.
func (g *Governor) Close() {
	g.browsers.Close()
}
