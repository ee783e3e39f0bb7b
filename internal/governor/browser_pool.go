package governor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/riptide-project/riptide/internal/types"
)

// BrowserPool leases headless rod.Browser instances. The hard cap is exactly
// 3 concurrent leases; MaxPoolSize may be configured lower but never
// higher. Pre-warming creates MinPoolSize instances eagerly so the first
// render doesn't pay launch latency.
//
// There is deliberately no Clone method here: the pool is always shared by
// reference (a *BrowserPool), which structurally rules out a shared-state
// double-close bug that a naive clone-on-checkout design invites.
const hardBrowserPoolCap = 3

type pooledBrowser struct {
	browser *rod.Browser
	info    types.BrowserInstance
}

type BrowserPool struct {
	mu       sync.Mutex
	sem      chan struct{}
	idle     []*pooledBrowser
	maxPool  int
	logger   *slog.Logger
	launched int
}

// NewBrowserPool constructs the pool and pre-warms minPoolSize instances.
func NewBrowserPool(minPoolSize, maxPoolSize int, logger *slog.Logger) (*BrowserPool, error) {
	if maxPoolSize > hardBrowserPoolCap {
		maxPoolSize = hardBrowserPoolCap
	}
	if maxPoolSize < 1 {
		maxPoolSize = 1
	}
	p := &BrowserPool{
		sem:     make(chan struct{}, maxPoolSize),
		maxPool: maxPoolSize,
		logger:  logger.With("component", "browser_pool"),
	}
	for i := 0; i < minPoolSize && i < maxPoolSize; i++ {
		b, err := p.launch()
		if err != nil {
			return nil, fmt.Errorf("prewarm browser %d: %w", i, err)
		}
		p.idle = append(p.idle, b)
	}
	return p, nil
}

func (p *BrowserPool) launch() (*pooledBrowser, error) {
	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox")

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch headless browser: %w", err)
	}
	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to headless browser: %w", err)
	}
	p.launched++
	now := time.Now()
	return &pooledBrowser{
		browser: browser,
		info: types.BrowserInstance{
			ID:        fmt.Sprintf("browser-%d", p.launched),
			CreatedAt: now,
			LastUsed:  now,
			IsHealthy: true,
		},
	}, nil
}

// BrowserLease is returned by Acquire; callers render pages against Browser
// and must call Release when done.
type BrowserLease struct {
	Browser *rod.Browser
	pool    *BrowserPool
	pb      *pooledBrowser
}

// Acquire blocks (honoring ctx) for one of MaxPoolSize slots (never more
// than the hard cap), then returns an idle instance or launches a new one.
func (p *BrowserPool) Acquire(ctx context.Context, timeout time.Duration) (*BrowserLease, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case p.sem <- struct{}{}:
	case <-acquireCtx.Done():
		return nil, acquireCtx.Err()
	}

	p.mu.Lock()
	var pb *pooledBrowser
	if len(p.idle) > 0 {
		pb = p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
	}
	p.mu.Unlock()

	if pb == nil {
		var err error
		pb, err = p.launch()
		if err != nil {
			<-p.sem
			return nil, err
		}
	}
	pb.info.LastUsed = time.Now()
	return &BrowserLease{Browser: pb.browser, pool: p, pb: pb}, nil
}

// Release returns the instance to the pool if it is still healthy, else
// discards it (closing the underlying browser) and frees the slot either
// way. Double-release is a no-op.
func (l *BrowserLease) Release(healthy bool) {
	if l == nil || l.pool == nil {
		return
	}
	p := l.pool
	l.pool = nil

	if healthy {
		p.mu.Lock()
		p.idle = append(p.idle, l.pb)
		p.mu.Unlock()
	} else {
		_ = l.pb.browser.Close()
	}
	<-p.sem
}

// Close tears down all pooled browsers.
func (p *BrowserPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pb := range p.idle {
		_ = pb.browser.Close()
	}
	p.idle = nil
}
