// Package session builds on fetcher.SessionManager's per-host
// cookiejar.Jar with publicsuffix-aware jars and per-host HTTP
// client affinity, so repeated requests to the same registrable domain
// reuse both cookies and a dedicated *http.Client (connection pooling,
// keep-alives).
package session

import (
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Manager manages cookie/session state and client affinity per registrable
// domain.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *slog.Logger
	timeout time.Duration
}

type entry struct {
	jar       *cookiejar.Jar
	client    *http.Client
	lastUsed  time.Time
	createdAt time.Time
	reqCount  int64
}

func NewManager(logger *slog.Logger, clientTimeout time.Duration) *Manager {
	return &Manager{
		entries: make(map[string]*entry),
		logger:  logger.With("component", "session_manager"),
		timeout: clientTimeout,
	}
}

// ClientFor returns the affine *http.Client for domain, creating one
// (with a publicsuffix-aware jar) if none exists yet.
func (m *Manager) ClientFor(domain string) *http.Client {
	e := m.entryFor(domain)
	return e.client
}

// JarFor returns the cookie jar for domain.
func (m *Manager) JarFor(domain string) *cookiejar.Jar {
	e := m.entryFor(domain)
	return e.jar
}

func (m *Manager) entryFor(domain string) *entry {
	m.mu.RLock()
	e, ok := m.entries[domain]
	m.mu.RUnlock()
	if ok {
		m.touch(e)
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok = m.entries[domain]; ok {
		m.touch(e)
		return e
	}

	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	now := time.Now()
	e = &entry{
		jar:       jar,
		createdAt: now,
		lastUsed:  now,
		client: &http.Client{
			Timeout: m.timeout,
			Jar:     jar,
		},
	}
	m.entries[domain] = e
	return e
}

func (m *Manager) touch(e *entry) {
	m.mu.Lock()
	e.lastUsed = time.Now()
	e.reqCount++
	m.mu.Unlock()
}

// ClearDomain removes all session state for a domain.
func (m *Manager) ClearDomain(domain string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, domain)
}

// ClearAll removes all session state.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*entry)
}

// DomainCount returns the number of domains with active sessions.
func (m *Manager) DomainCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// HasCookies checks if a domain has any cookies set.
func (m *Manager) HasCookies(domain string) bool {
	m.mu.RLock()
	e, ok := m.entries[domain]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	u, _ := url.Parse("https://" + domain)
	return len(e.jar.Cookies(u)) > 0
}

// EvictIdle removes sessions that have not been used since maxIdle.
func (m *Manager) EvictIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for domain, e := range m.entries {
		if e.lastUsed.Before(cutoff) {
			delete(m.entries, domain)
			n++
		}
	}
	return n
}
