package fetch

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/riptide-project/riptide/internal/session"
	"github.com/riptide-project/riptide/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newEngine() *Engine {
	return NewEngine(session.NewManager(testLogger(), 10*time.Second), 1<<20)
}

func mustReq(t *testing.T, raw string) *types.CrawlRequest {
	t.Helper()
	req, err := types.NewCrawlRequest(raw)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestFetchPlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>hello</html>")
	}))
	defer srv.Close()

	res, err := newEngine().Fetch(context.Background(), mustReq(t, srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != 200 {
		t.Errorf("status = %d", res.StatusCode)
	}
	if string(res.Body) != "<html>hello</html>" {
		t.Errorf("body = %q", res.Body)
	}
	if res.ContentType != "text/html" {
		t.Errorf("content type = %q", res.ContentType)
	}
}

func TestFetchGzipDecompressed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		fmt.Fprint(gz, "compressed content")
		gz.Close()
	}))
	defer srv.Close()

	res, err := newEngine().Fetch(context.Background(), mustReq(t, srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Body) != "compressed content" {
		t.Errorf("body = %q, want decompressed", res.Body)
	}
}

func TestFetch429CarriesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newEngine().Fetch(context.Background(), mustReq(t, srv.URL))
	var ferr *types.FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("err = %v, want FetchError", err)
	}
	if !ferr.Retryable {
		t.Error("429 must be retryable")
	}
	if ferr.RetryAfter <= 0 {
		t.Error("429 must carry a retry-after")
	}
}

func TestFetch5xxRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newEngine().Fetch(context.Background(), mustReq(t, srv.URL))
	var ferr *types.FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("err = %v", err)
	}
	if !ferr.Retryable || ferr.StatusCode != 502 {
		t.Errorf("ferr = %+v", ferr)
	}
}

func TestFetchCustomHeadersApplied(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Custom")
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	req := mustReq(t, srv.URL)
	req.Headers = map[string]string{"X-Custom": "custom-value"}
	if _, err := newEngine().Fetch(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if gotHeader != "custom-value" {
		t.Errorf("header = %q", gotHeader)
	}
}

func TestFetchBodySizeBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 1000; i++ {
			fmt.Fprint(w, "0123456789")
		}
	}))
	defer srv.Close()

	e := NewEngine(session.NewManager(testLogger(), 10*time.Second), 100)
	res, err := e.Fetch(context.Background(), mustReq(t, srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Body) > 100 {
		t.Errorf("body length %d exceeds the configured cap", len(res.Body))
	}
}

func TestUserAgentRotation(t *testing.T) {
	seen := make(map[string]bool)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen[r.Header.Get("User-Agent")] = true
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	e := newEngine()
	for i := 0; i < len(defaultUserAgents)*2; i++ {
		if _, err := e.Fetch(context.Background(), mustReq(t, srv.URL)); err != nil {
			t.Fatal(err)
		}
	}
	if len(seen) < 2 {
		t.Errorf("user agents rotated across %d values, want several", len(seen))
	}
}
