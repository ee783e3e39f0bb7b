package governor

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/riptide-project/riptide/internal/types"
)

// AuthRateLimiter is a sliding-window limiter dedicated to credential
// validation, distinct from the per-host fetch limiter.
type AuthRateLimiter struct {
	mu          sync.Mutex
	window      time.Duration
	maxAttempts int
	attempts    map[string]*types.AuthAttempt
}

func NewAuthRateLimiter(window time.Duration, maxAttempts int) *AuthRateLimiter {
	return &AuthRateLimiter{
		window:      window,
		maxAttempts: maxAttempts,
		attempts:    make(map[string]*types.AuthAttempt),
	}
}

// Allow reports whether clientID may attempt auth now. If blocked, it
// returns the remaining block duration.
func (l *AuthRateLimiter) Allow(clientID string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.attempts[clientID]
	if !ok {
		return true, 0
	}
	if a.BlockedUntil != nil && now.Before(*a.BlockedUntil) {
		return false, a.BlockedUntil.Sub(now)
	}
	if now.Sub(a.FirstFailureTime) > l.window {
		delete(l.attempts, clientID)
		return true, 0
	}
	if a.Failures >= l.maxAttempts {
		blockUntil := now.Add(a.BlockDuration())
		a.BlockedUntil = &blockUntil
		return false, a.BlockDuration()
	}
	return true, 0
}

// RecordFailure registers a failed credential check for clientID.
func (l *AuthRateLimiter) RecordFailure(clientID string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.attempts[clientID]
	if !ok || now.Sub(a.FirstFailureTime) > l.window {
		a = &types.AuthAttempt{FirstFailureTime: now}
		l.attempts[clientID] = a
	}
	a.Failures++
}

// RecordSuccess clears the counter for clientID.
func (l *AuthRateLimiter) RecordSuccess(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, clientID)
}

// Evict drops entries whose failure window and block period have both
// elapsed; called periodically to bound map growth.
func (l *AuthRateLimiter) Evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, a := range l.attempts {
		windowExpired := now.Sub(a.FirstFailureTime) > l.window
		blockExpired := a.BlockedUntil == nil || now.After(*a.BlockedUntil)
		if windowExpired && blockExpired {
			delete(l.attempts, id)
		}
	}
}

// ConstantTimeCompare compares candidate against every secret in stored,
// without short-circuiting on the first match: every same-length secret is
// compared in full and the results are OR-ed together, so total work (and,
// to the extent subtle.ConstantTimeCompare is itself constant-time, timing)
// does not depend on which secret matched or at what position a mismatch
// occurred. Length is treated as non-sensitive and used as a fast path.
func ConstantTimeCompare(candidate string, stored []string) bool {
	var match int = 0
	cb := []byte(candidate)
	for _, s := range stored {
		sb := []byte(s)
		if len(sb) != len(cb) {
			continue
		}
		match |= subtle.ConstantTimeCompare(cb, sb)
	}
	return match == 1
}

// AuditPrefix returns a fixed-length prefix (<=8 chars) of a credential
// suitable for audit logging; the full secret is never logged.
func AuditPrefix(candidate string) string {
	const n = 8
	if len(candidate) <= n {
		return candidate
	}
	return candidate[:n]
}
