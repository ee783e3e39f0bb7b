// Package retry implements Smart Retry: strategy selection by
// error classification, backoff-with-jitter delay calculation, and an
// Execute loop that allows switching strategy between attempts.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/riptide-project/riptide/internal/config"
	"github.com/riptide-project/riptide/internal/governor"
	"github.com/riptide-project/riptide/internal/types"
)

// Strategy is the delay-shape chosen for a given error.
type Strategy int

const (
	StrategyExponential Strategy = iota
	StrategyLinear
	StrategyFibonacci
	StrategyAdaptive
)

func (s Strategy) String() string {
	switch s {
	case StrategyLinear:
		return "linear"
	case StrategyFibonacci:
		return "fibonacci"
	case StrategyAdaptive:
		return "adaptive"
	default:
		return "exponential"
	}
}

// Classify maps an error to the strategy that should be used to retry it,
// or (false) when the error must never be retried.
func Classify(err error) (Strategy, bool) {
	var rerr *types.RiptideError
	if errors.As(err, &rerr) {
		switch rerr.Kind {
		case types.KindInvalidRequest, types.KindCircuitOpen, types.KindDataIntegrity, types.KindFatal:
			return 0, false
		case types.KindRateLimit:
			return StrategyAdaptive, true
		case types.KindProvider:
			return StrategyFibonacci, true
		case types.KindNetwork, types.KindTimeout:
			return StrategyExponential, true
		}
	}
	var ferr *types.FetchError
	if errors.As(err, &ferr) {
		if ferr.StatusCode >= 500 {
			return StrategyFibonacci, true
		}
		if !ferr.Retryable {
			return 0, false
		}
	}
	return StrategyExponential, true
}

func fib(n int) int {
	if n <= 1 {
		return 1
	}
	a, b := 1, 1
	for i := 2; i <= n; i++ {
		a, b = b, a+b
	}
	return b
}

// Delay computes the backoff for the given strategy and attempt (0-based),
// before the max-delay cap and jitter are applied. retryAfter and
// successRate are only consulted by StrategyAdaptive.
func Delay(strategy Strategy, attempt int, initial time.Duration, multiplier float64, retryAfter time.Duration, successRate float64) time.Duration {
	switch strategy {
	case StrategyLinear:
		return initial * time.Duration(attempt+1)
	case StrategyFibonacci:
		return initial * time.Duration(fib(attempt+1))
	case StrategyAdaptive:
		if retryAfter > 0 {
			return retryAfter
		}
		// Faster retries when the historical success rate is high: scale the
		// exponential delay down toward a floor of 0.25x at successRate=1.
		scale := 1.0 - 0.75*successRate
		base := float64(initial) * math.Pow(multiplier, float64(attempt))
		return time.Duration(base * scale)
	default:
		return time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt)))
	}
}

// ApplyJitterAndCap caps delay at maxDelay then applies uniform jitter in
// [0, jitterFraction*delay].
func ApplyJitterAndCap(delay, maxDelay time.Duration, jitterFraction float64) time.Duration {
	if delay > maxDelay {
		delay = maxDelay
	}
	if delay <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Float64() * jitterFraction * float64(delay))
	return delay + jitter
}

// Attempt records the outcome of a single try, for callers that want to
// observe strategy switches.
type Attempt struct {
	N        int
	Strategy Strategy
	Delay    time.Duration
	Err      error
}

// Executor runs an operation with smart retry, optionally gated by a shared
// circuit breaker.
type Executor struct {
	cfg     config.RetryConfig
	breaker *governor.CircuitBreaker

	successRate float64 // rolling success rate, feeds StrategyAdaptive
}

// NewExecutor builds a retry executor. breaker may be nil to skip the
// circuit-breaker gate.
func NewExecutor(cfg config.RetryConfig, breaker *governor.CircuitBreaker) *Executor {
	return &Executor{cfg: cfg, breaker: breaker, successRate: 0.5}
}

// Execute calls op up to cfg.MaxAttempts times. A rate-limited error
// sleeps for its retry-after hint and retries without consuming an
// attempt; only ctx cancellation bounds a sustained rate limit. history,
// if non-nil, is appended with one Attempt per try (including the final
// one, whether it succeeded or exhausted retries).
func (e *Executor) Execute(ctx context.Context, op func(ctx context.Context) error, history *[]Attempt) error {
	if e.breaker != nil && !e.breaker.Allow() {
		return &types.RiptideError{Kind: types.KindCircuitOpen, Message: "circuit open, not attempting"}
	}

	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxAttempts; {
		err := op(ctx)
		if err == nil {
			if e.breaker != nil {
				e.breaker.RecordSuccess()
			}
			e.successRate = e.successRate*0.9 + 0.1
			if history != nil {
				*history = append(*history, Attempt{N: attempt})
			}
			return nil
		}
		lastErr = err
		if e.breaker != nil {
			e.breaker.RecordFailure()
		}
		e.successRate = e.successRate * 0.9

		strategy, retryable := Classify(err)
		if !retryable {
			if history != nil {
				*history = append(*history, Attempt{N: attempt, Err: err})
			}
			return err
		}

		var retryAfter time.Duration
		var rerr *types.RiptideError
		if errors.As(err, &rerr) {
			retryAfter = rerr.RetryAfter
		}
		rateLimited := strategy == StrategyAdaptive && retryAfter > 0

		if !rateLimited && attempt == e.cfg.MaxAttempts-1 {
			if history != nil {
				*history = append(*history, Attempt{N: attempt, Strategy: strategy, Err: err})
			}
			break
		}

		delay := Delay(strategy, attempt, e.cfg.InitialDelay, e.cfg.Multiplier, retryAfter, e.successRate)
		delay = ApplyJitterAndCap(delay, e.cfg.MaxDelay, e.cfg.JitterFraction)
		if history != nil {
			*history = append(*history, Attempt{N: attempt, Strategy: strategy, Delay: delay, Err: err})
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		if !rateLimited {
			attempt++
		}
	}
	return lastErr
}
