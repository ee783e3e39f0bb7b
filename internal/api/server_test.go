package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/riptide-project/riptide/internal/config"
	"github.com/riptide-project/riptide/internal/observability"
	"github.com/riptide-project/riptide/internal/search"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.API.RequireAuth = false
	cfg.API.SearchBackend = "none"
	cfg.Extraction.GlobalTimeout = 5 * time.Second
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg, nil, search.NewProvider(cfg.API), observability.NewMetrics(testLogger()), testLogger())
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, hdr map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("%s %s: invalid JSON response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func errorType(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	typ, _ := e["type"].(string)
	return typ
}

// --- health ---

func TestHealthEndpoints(t *testing.T) {
	h := testServer(t, nil).Handler()
	for _, path := range []string{"/health", "/healthz"} {
		rec, body := doJSON(t, h, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
		if body["status"] != "healthy" {
			t.Errorf("%s: status field = %v", path, body["status"])
		}
		for _, key := range []string{"version", "timestamp", "uptime", "dependencies", "metrics"} {
			if _, ok := body[key]; !ok {
				t.Errorf("%s: missing %q", path, key)
			}
		}
		deps := body["dependencies"].(map[string]any)
		for _, key := range []string{"redis", "extractor", "http_client"} {
			if _, ok := deps[key]; !ok {
				t.Errorf("missing dependency report %q", key)
			}
		}
	}
}

// --- crawl validation ---

func TestCrawlInvalidJSON(t *testing.T) {
	rec, body := doJSON(t, testServer(t, nil).Handler(), http.MethodPost, "/crawl", "{not json", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if errorType(body) != "validation_error" {
		t.Errorf("error type = %q", errorType(body))
	}
}

func TestCrawlEmptyURLs(t *testing.T) {
	rec, body := doJSON(t, testServer(t, nil).Handler(), http.MethodPost, "/crawl", `{"urls":[]}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if errorType(body) != "validation_error" {
		t.Errorf("error type = %q", errorType(body))
	}
}

func TestCrawlMissingURLs(t *testing.T) {
	rec, body := doJSON(t, testServer(t, nil).Handler(), http.MethodPost, "/crawl", `{}`, nil)
	if rec.Code != http.StatusBadRequest || errorType(body) != "validation_error" {
		t.Errorf("status=%d type=%q", rec.Code, errorType(body))
	}
}

func TestCrawlLocalhostRejected(t *testing.T) {
	rec, body := doJSON(t, testServer(t, nil).Handler(), http.MethodPost, "/crawl",
		`{"urls":["http://localhost:8080"]}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if errorType(body) != "invalid_url" {
		t.Errorf("error type = %q, want invalid_url", errorType(body))
	}
	e := body["error"].(map[string]any)
	if msg, _ := e["message"].(string); !strings.Contains(msg, "private/localhost") {
		t.Errorf("message %q should mention private/localhost", msg)
	}
}

func TestUnknownRoute404(t *testing.T) {
	rec, body := doJSON(t, testServer(t, nil).Handler(), http.MethodGet, "/no/such/route", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if errorType(body) != "not_found" {
		t.Errorf("error type = %q", errorType(body))
	}
}

// --- crawl pipeline ---

const fixtureHTML = `<!DOCTYPE html><html lang="en"><head>
<title>Fixture Page</title>
<script type="application/ld+json">
{"@type":"Article","headline":"Fixture Article","author":"Test Author",
 "datePublished":"2024-02-01","description":"A fixture for the crawl pipeline."}
</script>
</head><body><p>Some body content for extraction.</p></body></html>`

func TestCrawlSingleURLEndToEnd(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, fixtureHTML)
	}))
	defer backend.Close()

	srv := testServer(t, nil)
	srv.allowPrivateTargets = true

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/crawl",
		fmt.Sprintf(`{"urls":[%q]}`, backend.URL), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}

	if body["total_urls"].(float64) != 1 || body["successful"].(float64) != 1 || body["failed"].(float64) != 0 {
		t.Errorf("counters: %v", body)
	}
	results := body["results"].([]any)
	first := results[0].(map[string]any)
	if first["status"].(float64) != 200 {
		t.Errorf("result status = %v", first["status"])
	}
	if first["gate_decision"] != "raw" {
		t.Errorf("gate decision = %v, want raw for a small static page", first["gate_decision"])
	}
	if first["document"] == nil {
		t.Fatal("document must be non-null on success")
	}
	doc := first["document"].(map[string]any)
	if doc["title"] != "Fixture Article" {
		t.Errorf("extracted title = %v", doc["title"])
	}
	if first["cache_key"] == "" {
		t.Error("cache key must be set")
	}

	stats := body["statistics"].(map[string]any)
	gates := stats["gate_decisions"].(map[string]any)
	if gates["raw"].(float64) != 1 {
		t.Errorf("gate stats = %v", gates)
	}
}

func TestCrawlSecondRequestServedFromCache(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, fixtureHTML)
	}))
	defer backend.Close()

	srv := testServer(t, nil)
	srv.allowPrivateTargets = true
	h := srv.Handler()

	payload := fmt.Sprintf(`{"urls":[%q]}`, backend.URL)
	doJSON(t, h, http.MethodPost, "/crawl", payload, nil)
	_, body := doJSON(t, h, http.MethodPost, "/crawl", payload, nil)

	if body["from_cache"].(float64) != 1 {
		t.Errorf("from_cache = %v, want 1 on the second request", body["from_cache"])
	}
	first := body["results"].([]any)[0].(map[string]any)
	if first["gate_decision"] != "cached" {
		t.Errorf("gate decision = %v, want cached", first["gate_decision"])
	}
	stats := body["statistics"].(map[string]any)
	if stats["cache_hit_rate"].(float64) != 1.0 {
		t.Errorf("cache hit rate = %v", stats["cache_hit_rate"])
	}
}

func TestCrawlDependencyFailureStillReturns200(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer backend.Close()

	srv := testServer(t, nil)
	srv.allowPrivateTargets = true

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/crawl",
		fmt.Sprintf(`{"urls":[%q]}`, backend.URL), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch must return 200 despite per-URL failure, got %d", rec.Code)
	}
	if body["failed"].(float64) != 1 {
		t.Errorf("failed = %v", body["failed"])
	}
	first := body["results"].([]any)[0].(map[string]any)
	if first["error"] == nil || first["error"] == "" {
		t.Error("per-result error must be populated")
	}
}

// --- auth ---

func authedServer(t *testing.T) http.Handler {
	srv := testServer(t, func(cfg *config.Config) {
		cfg.API.RequireAuth = true
		cfg.API.APIKeys = []string{"secret-key-123"}
		cfg.API.MaxAuthAttemptsPerMinute = 2
		cfg.API.AuthRateLimitWindow = time.Minute
	})
	return srv.Handler()
}

func TestAuthMissingKey401(t *testing.T) {
	h := authedServer(t)
	rec, body := doJSON(t, h, http.MethodPost, "/crawl", `{"urls":[]}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Error("401 must carry WWW-Authenticate: Bearer")
	}
	if body["error"] != "Unauthorized" {
		t.Errorf("body = %v", body)
	}
}

func TestAuthValidKeyPasses(t *testing.T) {
	h := authedServer(t)
	// Both header forms must be accepted; empty urls proves we got past auth.
	for _, hdr := range []map[string]string{
		{"X-API-Key": "secret-key-123"},
		{"Authorization": "Bearer secret-key-123"},
	} {
		rec, body := doJSON(t, h, http.MethodPost, "/crawl", `{"urls":[]}`, hdr)
		if rec.Code != http.StatusBadRequest || errorType(body) != "validation_error" {
			t.Errorf("hdr %v: status=%d type=%q, want 400 validation_error past auth", hdr, rec.Code, errorType(body))
		}
	}
}

func TestAuthPublicPathsBypass(t *testing.T) {
	h := authedServer(t)
	for _, path := range []string{"/health", "/healthz", "/metrics", "/api/v1/health", "/api/v1/metrics"} {
		rec, _ := doJSON(t, h, http.MethodGet, path, "", nil)
		if rec.Code == http.StatusUnauthorized {
			t.Errorf("%s must be public", path)
		}
	}
}

func TestAuthRateLimit429(t *testing.T) {
	h := authedServer(t)
	bad := map[string]string{"X-API-Key": "wrong-key"}

	// Exhaust the per-client window (2 attempts), then expect 429.
	var rec *httptest.ResponseRecorder
	var body map[string]any
	for i := 0; i < 3; i++ {
		rec, body = doJSON(t, h, http.MethodPost, "/crawl", `{"urls":[]}`, bad)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 after repeated failures", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 must carry a Retry-After header")
	}
	if secs, ok := body["retry_after_seconds"].(float64); !ok || secs < 1 {
		t.Errorf("retry_after_seconds = %v, want >= 1", body["retry_after_seconds"])
	}

	// A different client is unaffected.
	req := httptest.NewRequest(http.MethodPost, "/crawl", strings.NewReader(`{"urls":[]}`))
	req.RemoteAddr = "198.51.100.9:4000"
	req.Header.Set("X-API-Key", "secret-key-123")
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	if rec2.Code == http.StatusTooManyRequests {
		t.Error("rate limit must be per-client")
	}
}

// --- deepsearch ---

type fakeSearch struct {
	hits []search.Result
	err  error
}

func (f fakeSearch) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && limit < len(f.hits) {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

func searchServer(t *testing.T, p search.Provider) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.API.RequireAuth = false
	srv := New(cfg, nil, p, observability.NewMetrics(testLogger()), testLogger())
	return srv
}

func TestDeepSearchEmptyQuery(t *testing.T) {
	srv := searchServer(t, fakeSearch{})
	for _, payload := range []string{`{}`, `{"query":"  "}`} {
		rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/deepsearch", payload, nil)
		if rec.Code != http.StatusBadRequest || errorType(body) != "validation_error" {
			t.Errorf("payload %s: status=%d type=%q", payload, rec.Code, errorType(body))
		}
	}
}

func TestDeepSearchRankedResults(t *testing.T) {
	srv := searchServer(t, fakeSearch{hits: []search.Result{
		{URL: "https://a.example.com/1", Title: "First", Snippet: "snippet one"},
		{URL: "https://b.example.com/2", Title: "Second", Snippet: "snippet two"},
	}})

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/deepsearch",
		`{"query":"golang crawlers"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["query"] != "golang crawlers" {
		t.Errorf("query echoed = %v", body["query"])
	}
	if body["urls_found"].(float64) != 2 {
		t.Errorf("urls_found = %v", body["urls_found"])
	}
	results := body["results"].([]any)
	first := results[0].(map[string]any)
	if first["rank"].(float64) != 1 || first["search_title"] != "First" {
		t.Errorf("first result = %v", first)
	}
	second := results[1].(map[string]any)
	if second["rank"].(float64) != 2 {
		t.Errorf("second rank = %v", second["rank"])
	}
}

func TestDeepSearchDisabledBackend(t *testing.T) {
	srv := searchServer(t, search.None{})
	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/deepsearch", `{"query":"x"}`, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 for disabled search", rec.Code)
	}
}

// --- metrics endpoint ---

func TestMetricsExposition(t *testing.T) {
	h := testServer(t, nil).Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "riptide_http_requests_total") {
		t.Error("missing riptide_http_requests_total in exposition")
	}
}
