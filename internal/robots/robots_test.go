package robots

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func robotsServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
}

func TestDisallowEnforced(t *testing.T) {
	srv := robotsServer(t, "User-agent: *\nDisallow: /private/\nAllow: /\n", http.StatusOK)
	defer srv.Close()

	m := NewManager(true, "RiptideBot")
	if m.IsAllowed(srv.URL + "/private/data") {
		t.Error("disallowed path must be blocked")
	}
	if !m.IsAllowed(srv.URL + "/public/page") {
		t.Error("allowed path must pass")
	}
}

func TestAgentSpecificGroup(t *testing.T) {
	srv := robotsServer(t, "User-agent: RiptideBot\nDisallow: /bot-only/\n\nUser-agent: *\nDisallow:\n", http.StatusOK)
	defer srv.Close()

	m := NewManager(true, "RiptideBot")
	if m.IsAllowed(srv.URL + "/bot-only/x") {
		t.Error("agent-specific disallow must apply to our user agent")
	}
}

func TestMissingRobotsAllowsAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer srv.Close()

	m := NewManager(true, "RiptideBot")
	if !m.IsAllowed(srv.URL + "/anything") {
		t.Error("404 robots.txt means everything is allowed")
	}
}

func TestDisabledManagerAllowsAll(t *testing.T) {
	m := NewManager(false, "RiptideBot")
	if !m.IsAllowed("https://example.com/whatever") {
		t.Error("disabled manager must allow without fetching")
	}
}

func TestCrawlDelay(t *testing.T) {
	srv := robotsServer(t, "User-agent: *\nCrawl-delay: 2\n", http.StatusOK)
	defer srv.Close()

	m := NewManager(true, "RiptideBot")
	if got := m.GetCrawlDelay(srv.URL + "/x"); got != 2*time.Second {
		t.Errorf("crawl delay = %v, want 2s", got)
	}
}

func TestSitemapDiscovery(t *testing.T) {
	srv := robotsServer(t, "User-agent: *\nDisallow:\nSitemap: https://example.com/sitemap.xml\n", http.StatusOK)
	defer srv.Close()

	m := NewManager(true, "RiptideBot")
	maps := m.GetSitemaps(srv.URL + "/")
	if len(maps) != 1 || maps[0] != "https://example.com/sitemap.xml" {
		t.Errorf("sitemaps = %v", maps)
	}
}

func TestCachedAcrossCalls(t *testing.T) {
	fetches := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		fmt.Fprint(w, "User-agent: *\nDisallow:\n")
	}))
	defer srv.Close()

	m := NewManager(true, "RiptideBot")
	for i := 0; i < 5; i++ {
		m.IsAllowed(srv.URL + fmt.Sprintf("/page%d", i))
	}
	if fetches != 1 {
		t.Errorf("robots.txt fetched %d times, want once (cached)", fetches)
	}
}
