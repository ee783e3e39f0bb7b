// Package fetch implements the spider's two fetch paths: a plain HTTP
// client (with brotli/gzip/deflate decompression and user-agent rotation,
// mirroring the teacher's HTTP fetcher) and a headless-render path that
// borrows a browser from the Resource Governor's pool.
package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/riptide-project/riptide/internal/automation"
	"github.com/riptide-project/riptide/internal/governor"
	"github.com/riptide-project/riptide/internal/session"
	"github.com/riptide-project/riptide/internal/types"
)

// Result is the raw outcome of a fetch, before extraction.
type Result struct {
	StatusCode  int
	Body        []byte
	ContentType string
	FinalURL    string
	Duration    time.Duration
	FromCache   bool
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
}

// Engine is the basic HTTP fetch path, with one *http.Client affinity per
// host via the session manager.
type Engine struct {
	sessions    *session.Manager
	maxBodySize int64
	uaIndex     atomic.Int64
}

// NewEngine builds an Engine over a shared session manager.
func NewEngine(sessions *session.Manager, maxBodySize int64) *Engine {
	if maxBodySize <= 0 {
		maxBodySize = 20 << 20
	}
	return &Engine{sessions: sessions, maxBodySize: maxBodySize}
}

// Fetch performs a plain HTTP GET for req, decompressing the body and
// respecting the request's custom headers.
func (e *Engine) Fetch(ctx context.Context, req *types.CrawlRequest) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL.String(), nil)
	if err != nil {
		return nil, &types.FetchError{URL: req.URL.String(), Err: err, Retryable: false}
	}

	httpReq.Header.Set("User-Agent", e.nextUserAgent())
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	client := e.sessions.ClientFor(req.Host())

	start := time.Now()
	resp, err := client.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		return nil, &types.FetchError{URL: req.URL.String(), Err: err, Retryable: isRetryableNetErr(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &types.FetchError{URL: req.URL.String(), StatusCode: resp.StatusCode,
			Err: fmt.Errorf("HTTP 429"), Retryable: true, RetryAfter: retryAfter}
	}
	if resp.StatusCode >= 500 {
		return nil, &types.FetchError{URL: req.URL.String(), StatusCode: resp.StatusCode,
			Err: fmt.Errorf("HTTP %d", resp.StatusCode), Retryable: true}
	}

	reader, err := decompressReader(resp, io.LimitReader(resp.Body, e.maxBodySize))
	if err != nil {
		return nil, &types.FetchError{URL: req.URL.String(), Err: err, Retryable: false}
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.FetchError{URL: req.URL.String(), Err: err, Retryable: true}
	}

	return &Result{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
		Duration:    duration,
	}, nil
}

func (e *Engine) nextUserAgent() string {
	idx := e.uaIndex.Add(1) % int64(len(defaultUserAgents))
	return defaultUserAgents[idx]
}

func decompressReader(resp *http.Response, r io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(r)
	case "deflate":
		return flate.NewReader(r), nil
	case "br":
		return brotli.NewReader(r), nil
	default:
		return r, nil
	}
}

func isRetryableNetErr(err error) bool {
	if err == nil {
		return false
	}
	if netErr, ok := err.(interface{ Timeout() bool }); ok {
		return netErr.Timeout()
	}
	return true
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 5 * time.Second
}

// Render performs a headless fetch of req using a browser leased from the
// governor's pool, driving the page through the automation session
// (consent dismissal, lazy-content scrolling, stable-DOM wait) before
// snapshotting. The lease is released (and any timeout is reported to the
// governor for cleanup accounting) on every exit path.
func Render(ctx context.Context, gov *governor.Governor, req *types.CrawlRequest, timeout time.Duration, logger *slog.Logger) (*Result, error) {
	outcome := gov.AcquireRenderResources(ctx, req.Host())
	if outcome.Kind != governor.OutcomeSuccess {
		return nil, fmt.Errorf("render resources unavailable: %s", outcome.Kind)
	}
	defer outcome.Guard.Release()

	renderCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	session, err := automation.NewRenderSession(renderCtx, outcome.Browser, req.URL.String(), logger)
	if err != nil {
		gov.CleanupOnTimeout("render")
		return nil, &types.FetchError{URL: req.URL.String(), Err: err, Retryable: true}
	}
	defer session.Close()

	session.DismissConsent()
	if _, err := session.LoadLazyContent(5, 300*time.Millisecond); err != nil {
		logger.Debug("lazy-content scroll aborted", "url", req.URL.String(), "error", err)
	}
	if err := session.WaitStable(500 * time.Millisecond); err != nil {
		gov.CleanupOnTimeout("render")
		return nil, &types.FetchError{URL: req.URL.String(), Err: err, Retryable: true}
	}

	html, err := session.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: req.URL.String(), Err: err, Retryable: true}
	}
	finalURL := session.FinalURL()
	if finalURL == "" {
		finalURL = req.URL.String()
	}

	return &Result{
		StatusCode:  http.StatusOK,
		Body:        []byte(html),
		ContentType: "text/html",
		FinalURL:    finalURL,
		Duration:    time.Since(start),
	}, nil
}
