package spider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/riptide-project/riptide/internal/config"
	"github.com/riptide-project/riptide/internal/extraction"
	"github.com/riptide-project/riptide/internal/governor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSpiderConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Governor.MinPoolSize = 0 // never launch a browser in tests
	cfg.Budget.MaxPages = 50
	cfg.Budget.MaxDepth = 3
	cfg.Spider.HostMinInterval = 0
	cfg.Spider.MaxConcurrentGlobal = 2
	cfg.AdaptiveStop.MinPagesBeforeStop = 1000
	cfg.Scorer.Enabled = false
	return cfg
}

// newSite serves a tiny three-page site with internal links.
func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			fmt.Fprintf(w, `<html><head><title>Home</title></head><body>
			<p>Welcome to the index page. It has sentences. It has links.</p>
			<p><a href="/about">about</a> and <a href="/blog">blog</a></p>
			</body></html>`)
		case "/about":
			fmt.Fprintf(w, `<html><head><title>About</title></head><body>
			<p>This page describes the site in reasonable depth and detail.</p>
			</body></html>`)
		case "/blog":
			fmt.Fprintf(w, `<html><head><title>Blog</title></head><body>
			<p>Blog content with a loop link back to <a href="/">home</a>.</p>
			</body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	return srv
}

func newTestSpider(t *testing.T, cfg *config.Config) *Spider {
	t.Helper()
	gov, err := governor.New(cfg.Governor, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(gov.Close)
	s := New(cfg, gov, testLogger(), "")
	t.Cleanup(s.Close)
	return s
}

func TestCrawlSmallSite(t *testing.T) {
	srv := newSite(t)
	defer srv.Close()

	cfg := testSpiderConfig()
	s := newTestSpider(t, cfg)

	if err := s.Seed(context.Background(), srv.URL+"/"); err != nil {
		t.Fatal(err)
	}

	var crawled []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range s.Results() {
			if r.Success {
				crawled = append(crawled, r.Request.URL.Path)
			}
		}
	}()

	reason := s.Run(context.Background())
	<-done

	if !strings.Contains(reason, "frontier exhausted") {
		t.Errorf("stop reason = %q, want frontier exhaustion on a finite site", reason)
	}
	if len(crawled) != 3 {
		t.Errorf("crawled %v, want all 3 pages exactly once", crawled)
	}
	if s.State() != StateStopped {
		t.Errorf("state = %v, want stopped", s.State())
	}

	stats := s.Stats()
	if stats.PagesCrawled != 3 {
		t.Errorf("pages crawled = %d", stats.PagesCrawled)
	}
	if stats.BytesFetched == 0 {
		t.Error("bytes fetched should be recorded")
	}
}

func TestBudgetStopsCrawl(t *testing.T) {
	srv := newSite(t)
	defer srv.Close()

	cfg := testSpiderConfig()
	cfg.Budget.MaxPages = 1
	s := newTestSpider(t, cfg)

	if err := s.Seed(context.Background(), srv.URL+"/"); err != nil {
		t.Fatal(err)
	}
	go func() {
		for range s.Results() {
		}
	}()
	reason := s.Run(context.Background())

	if !strings.Contains(reason, "budget") {
		t.Errorf("stop reason = %q, want budget exhaustion", reason)
	}
	if got := s.Stats().PagesCrawled; got > 1 {
		t.Errorf("pages crawled = %d, must never exceed max_pages", got)
	}
}

func TestDepthLimitRespected(t *testing.T) {
	// A chain of pages /d0 -> /d1 -> /d2 -> ... deeper than the budget.
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		var n int
		fmt.Sscanf(r.URL.Path, "/d%d", &n)
		fmt.Fprintf(w, `<html><head><title>D%d</title></head><body>
		<p>Depth page content for level %d of the chain.</p>
		<p><a href="/d%d">deeper</a></p></body></html>`, n, n, n+1)
	}))
	defer srv.Close()

	cfg := testSpiderConfig()
	cfg.Budget.MaxDepth = 2
	s := newTestSpider(t, cfg)

	if err := s.Seed(context.Background(), srv.URL+"/d0"); err != nil {
		t.Fatal(err)
	}
	maxDepth := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range s.Results() {
			if r.Request.Depth > maxDepth {
				maxDepth = r.Request.Depth
			}
		}
	}()
	s.Run(context.Background())
	<-done

	if maxDepth > 2 {
		t.Errorf("crawled to depth %d, budget was 2", maxDepth)
	}
}

func TestStopHaltsLoop(t *testing.T) {
	// An endless site: every page links to a fresh one.
	counter := 0
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter++
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><head><title>P%d</title></head><body>
		<p>Endless page number %d keeps the frontier fed forever.</p>
		<p><a href="/p%d">next</a></p></body></html>`, counter, counter, counter)
	}))
	defer srv.Close()

	cfg := testSpiderConfig()
	cfg.Budget.MaxPages = 100000
	cfg.Budget.MaxDepth = 100000
	s := newTestSpider(t, cfg)

	if err := s.Seed(context.Background(), srv.URL+"/p0"); err != nil {
		t.Fatal(err)
	}
	go func() {
		for range s.Results() {
		}
	}()
	go func() {
		time.Sleep(200 * time.Millisecond)
		s.Stop()
	}()

	done := make(chan string, 1)
	go func() { done <- s.Run(context.Background()) }()
	select {
	case reason := <-done:
		if !strings.Contains(reason, "stopped") {
			t.Errorf("stop reason = %q", reason)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Stop() did not halt the crawl loop")
	}
}

func TestRobotsDisallowRecordedAsFailure(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /\n")
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><head><title>X</title></head><body><p>content</p></body></html>")
	}))
	defer srv.Close()

	cfg := testSpiderConfig()
	s := newTestSpider(t, cfg)

	if err := s.Seed(context.Background(), srv.URL+"/page"); err != nil {
		t.Fatal(err)
	}
	var sawRobotsFailure bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range s.Results() {
			if !r.Success && r.Err != nil && strings.Contains(r.Err.Error(), "robots") {
				sawRobotsFailure = true
			}
		}
	}()
	s.Run(context.Background())
	<-done

	if !sawRobotsFailure {
		t.Error("a robots-disallowed page must complete as a failure")
	}
	if s.Stats().PagesCrawled != 0 {
		t.Error("disallowed pages must not count as crawled")
	}
}

// --- link extraction helpers ---

func TestExtractLinksFromStructuredText(t *testing.T) {
	result := &extraction.StrategyResult{
		Content: extraction.Content{
			Content: "Intro [one](https://example.com/a) then [two](https://example.com/b) and [one again](https://example.com/a).",
		},
	}
	links := extractLinks(result, "https://example.com/")
	if len(links) != 2 {
		t.Fatalf("links = %v, want 2 after dedup", links)
	}
	if links[0].String() != "https://example.com/a" || links[1].String() != "https://example.com/b" {
		t.Errorf("links = %v", links)
	}
}

func TestExtractLinksNilResult(t *testing.T) {
	if got := extractLinks(nil, "https://example.com"); got != nil {
		t.Errorf("nil result should yield no links, got %v", got)
	}
}

func TestCountSentences(t *testing.T) {
	if got := countSentences("One. Two! Three? Four"); got != 3 {
		t.Errorf("sentences = %d, want 3", got)
	}
}
