package governor

import (
	"time"

	"github.com/go-rod/rod"

	"github.com/riptide-project/riptide/internal/wasmpool"
)

// OutcomeKind is the tag of a GovernorOutcome sum type.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeTimeout
	OutcomeResourceExhausted
	OutcomeRateLimited
	OutcomeMemoryPressure
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeResourceExhausted:
		return "resource_exhausted"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeMemoryPressure:
		return "memory_pressure"
	default:
		return "error"
	}
}

// GovernorOutcome is the typed result of an Acquire* call. Exactly one of
// Guard/RetryAfter/Err is meaningful, selected by Kind.
type GovernorOutcome struct {
	Kind       OutcomeKind
	Guard      *Guard
	Browser    *rod.Browser     // populated only by AcquireRenderResources
	Wasm       *wasmpool.Handle // populated when a WASM pool is attached
	RetryAfter time.Duration
	Err        error
}

func success(g *Guard) GovernorOutcome { return GovernorOutcome{Kind: OutcomeSuccess, Guard: g} }
func successWithBrowserAndWasm(g *Guard, b *rod.Browser, w *wasmpool.Handle) GovernorOutcome {
	return GovernorOutcome{Kind: OutcomeSuccess, Guard: g, Browser: b, Wasm: w}
}
func timeoutOutcome() GovernorOutcome { return GovernorOutcome{Kind: OutcomeTimeout} }
func exhausted() GovernorOutcome      { return GovernorOutcome{Kind: OutcomeResourceExhausted} }
func rateLimited(d time.Duration) GovernorOutcome {
	return GovernorOutcome{Kind: OutcomeRateLimited, RetryAfter: d}
}
func memoryPressure() GovernorOutcome { return GovernorOutcome{Kind: OutcomeMemoryPressure} }
func errOutcome(err error) GovernorOutcome {
	return GovernorOutcome{Kind: OutcomeError, Err: err}
}

// Guard is returned on success; callers must call Release exactly once
// (double-release is a no-op) when the operation completes, on every exit
// path including timeout and error.
type Guard struct {
	release func()
	done    bool
}

func newGuard(release func()) *Guard {
	return &Guard{release: release}
}

// Release triggers accounting (active-count decrement, optional async pool
// return). Safe to call more than once.
func (g *Guard) Release() {
	if g == nil || g.done {
		return
	}
	g.done = true
	if g.release != nil {
		g.release()
	}
}
