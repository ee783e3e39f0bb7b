// Package robots wraps github.com/temoto/robotstxt behind a RobotsManager
// API shape, replacing a hand-rolled parseRobotsTxt/matchRobotsPattern with
// a maintained parser that handles groups, user-agent selection,
// crawl-delay, and sitemap extraction.
package robots

import (
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

type cacheEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// Manager handles robots.txt fetching, parsing, and enforcement.
type Manager struct {
	enabled   bool
	userAgent string
	cache     map[string]*cacheEntry
	mu        sync.RWMutex
	client    *http.Client
	ttl       time.Duration
}

func NewManager(enabled bool, userAgent string) *Manager {
	return &Manager{
		enabled:   enabled,
		userAgent: userAgent,
		cache:     make(map[string]*cacheEntry),
		client:    &http.Client{Timeout: 10 * time.Second},
		ttl:       1 * time.Hour,
	}
}

// IsAllowed checks whether a URL is allowed by its domain's robots.txt.
func (m *Manager) IsAllowed(rawURL string) bool {
	if !m.enabled {
		return true
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}

	data := m.robotsDataFor(u.Scheme + "://" + u.Host)
	if data == nil {
		return true // can't fetch robots.txt => allow
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	group := data.FindGroup(m.userAgent)
	return group.Test(path)
}

// GetCrawlDelay returns the crawl-delay directive for the domain, or 0 if
// none is specified.
func (m *Manager) GetCrawlDelay(rawURL string) time.Duration {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	data := m.robotsDataFor(u.Scheme + "://" + u.Host)
	if data == nil {
		return 0
	}
	group := data.FindGroup(m.userAgent)
	return group.CrawlDelay
}

// GetSitemaps returns the sitemap URLs declared in the domain's robots.txt.
func (m *Manager) GetSitemaps(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	data := m.robotsDataFor(u.Scheme + "://" + u.Host)
	if data == nil {
		return nil
	}
	return data.Sitemaps
}

func (m *Manager) robotsDataFor(domain string) *robotstxt.RobotsData {
	m.mu.RLock()
	entry, ok := m.cache[domain]
	m.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < m.ttl {
		return entry.data
	}

	data := m.fetch(domain)

	m.mu.Lock()
	m.cache[domain] = &cacheEntry{data: data, fetchedAt: time.Now()}
	m.mu.Unlock()

	return data
}

func (m *Manager) fetch(domain string) *robotstxt.RobotsData {
	resp, err := m.client.Get(domain + "/robots.txt")
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Absent robots.txt means everything is allowed.
		data, _ := robotstxt.FromString("")
		return data
	}
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil
	}
	return data
}
