package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/riptide-project/riptide/internal/fetch"
	"github.com/riptide-project/riptide/internal/types"
)

// Gate decision policy, applied in order:
//
//  1. "cached" — the normalized URL is in the response cache.
//  2. Fetch the page once over plain HTTP (this GET doubles as the probe).
//  3. "raw" — the payload is small enough that the single GET is the whole
//     story (< rawSizeLimit bytes of HTML).
//  4. "probes_first" — the page is large but its unrendered text density
//     clears minTextDensity, so the probe content is kept and no render
//     is paid for.
//  5. "headless" — density below threshold (a JS-built page); escalate to
//     a full browser render through the governor. If no render capacity
//     is configured the probe content is kept, still labeled headless.
const (
	rawSizeLimit   = 64 << 10
	minTextDensity = 0.02
	cacheTTL       = 10 * time.Minute
)

type cachedResponse struct {
	result   crawlResultDTO
	storedAt time.Time
}

// responseCache is a TTL map over completed crawl results; entries expire
// on read.
type responseCache struct {
	mu      sync.RWMutex
	entries map[string]cachedResponse
}

func newResponseCache() *responseCache {
	return &responseCache{entries: make(map[string]cachedResponse)}
}

// cacheKey is stable across requests for the same URL.
func cacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return "riptide:v1:" + hex.EncodeToString(sum[:16])
}

func (c *responseCache) get(key string) (crawlResultDTO, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return crawlResultDTO{}, false
	}
	if time.Since(e.storedAt) > cacheTTL {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return crawlResultDTO{}, false
	}
	return e.result, true
}

func (c *responseCache) put(key string, result crawlResultDTO) {
	c.mu.Lock()
	c.entries[key] = cachedResponse{result: result, storedAt: time.Now()}
	c.mu.Unlock()
}

// gatedFetch runs the decision procedure above and returns the chosen
// gate path along with the winning fetch result.
func (s *Server) gatedFetch(ctx context.Context, req *types.CrawlRequest) (string, *fetch.Result, error) {
	probe, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		return "raw", nil, err
	}
	if !strings.Contains(probe.ContentType, "html") {
		return "raw", probe, nil
	}
	if len(probe.Body) < rawSizeLimit {
		return "raw", probe, nil
	}

	density := textDensity(string(probe.Body))
	if density >= minTextDensity {
		return "probes_first", probe, nil
	}

	if s.gov == nil {
		return "headless", probe, nil
	}
	rendered, err := fetch.Render(ctx, s.gov, req, s.cfg.Governor.RenderTimeout, s.logger)
	if err != nil {
		s.logger.Debug("headless escalation failed, keeping probe content",
			"url", req.URL.String(), "error", err)
		return "headless", probe, nil
	}
	return "headless", rendered, nil
}

// textDensity is extracted-text bytes over HTML bytes; a cheap signal for
// "is this page server-rendered".
func textDensity(html string) float64 {
	if len(html) == 0 {
		return 0
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}
	doc.Find("script, style, noscript").Remove()
	text := strings.TrimSpace(doc.Text())
	return float64(len(text)) / float64(len(html))
}
