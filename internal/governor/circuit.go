package governor

import (
	"sync"
	"time"
)

// CircuitState is one of the three states a CircuitBreaker can be in.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker is a three-state breaker shared by the retry layer and the
// AI processor. Transitions:
//
//	Closed -> Open:      failures/requests >= FailureThresholdPct and
//	                     requests >= MinRequests
//	Open -> HalfOpen:    OpenDuration has elapsed
//	HalfOpen -> Closed:  SuccessThreshold consecutive successes
//	HalfOpen -> Open:    any failure
type CircuitBreaker struct {
	mu sync.Mutex

	failureThresholdPct float64
	minRequests         int
	openDuration        time.Duration
	successThreshold    int

	state         CircuitState
	requests      int
	failures      int
	consecutiveOK int
	openedAt      time.Time
}

// NewCircuitBreaker builds a breaker starting Closed.
func NewCircuitBreaker(failureThresholdPct float64, minRequests int, openDuration time.Duration, successThreshold int) *CircuitBreaker {
	return &CircuitBreaker{
		failureThresholdPct: failureThresholdPct,
		minRequests:         minRequests,
		openDuration:        openDuration,
		successThreshold:    successThreshold,
		state:               CircuitClosed,
	}
}

// Allow reports whether a call should be attempted, advancing Open->HalfOpen
// if the timer has elapsed.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CircuitOpen:
		if time.Since(c.openedAt) >= c.openDuration {
			c.state = CircuitHalfOpen
			c.consecutiveOK = 0
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess reports a successful call.
func (c *CircuitBreaker) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CircuitHalfOpen:
		c.consecutiveOK++
		if c.consecutiveOK >= c.successThreshold {
			c.state = CircuitClosed
			c.requests = 0
			c.failures = 0
			c.consecutiveOK = 0
		}
	case CircuitClosed:
		c.requests++
		if c.requests > 1<<20 {
			// Saturating reset of the rolling window; avoids unbounded growth
			// on long-lived breakers without changing the observed ratio much.
			c.requests /= 2
			c.failures /= 2
		}
	}
}

// RecordFailure reports a failed call.
func (c *CircuitBreaker) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CircuitHalfOpen:
		c.state = CircuitOpen
		c.openedAt = time.Now()
		c.consecutiveOK = 0
	case CircuitClosed:
		c.requests++
		c.failures++
		if c.requests >= c.minRequests {
			ratio := float64(c.failures) / float64(c.requests) * 100
			if ratio >= c.failureThresholdPct {
				c.state = CircuitOpen
				c.openedAt = time.Now()
			}
		}
	}
}

// State returns the current state (for metrics/tests).
func (c *CircuitBreaker) State() CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
