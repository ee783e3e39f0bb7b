// Package search wires the deep-search flow (POST /deepsearch) to a
// pluggable search provider. There is no fixed search-provider protocol;
// this package only defines the interface the core consumes and two
// concrete backends (Serper, SearXNG) plus a "none" stub, selected by
// APIConfig.SearchBackend.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/riptide-project/riptide/internal/config"
	"github.com/riptide-project/riptide/internal/governor"
	"github.com/riptide-project/riptide/internal/types"
)

// ErrSearchDisabled is returned by the "none" provider for every query.
var ErrSearchDisabled = errors.New("search backend disabled")

// Result is one search hit, ranked as returned by the provider.
type Result struct {
	URL     string
	Title   string
	Snippet string
}

// Provider resolves a query to a ranked list of results, bounded by limit.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// NewProvider builds the configured Provider. An unknown or empty backend
// name falls back to "none" rather than failing startup, since search is a
// pluggable capability and a misconfigured backend should
// degrade /deepsearch to an explicit error, not crash the service.
func NewProvider(cfg config.APIConfig) Provider {
	client := &http.Client{Timeout: cfg.SearchTimeout}
	switch strings.ToLower(cfg.SearchBackend) {
	case "serper":
		if cfg.SerperAPIKey == "" {
			return None{}
		}
		return &Serper{apiKey: cfg.SerperAPIKey, client: client, breaker: governor.NewCircuitBreaker(
			cfg.CircuitBreakerFailureThresholdPct, cfg.CircuitBreakerMinRequests, cfg.CircuitBreakerRecoveryTimeout, 2)}
	case "searxng":
		if cfg.SearXNGBaseURL == "" {
			return None{}
		}
		return &SearXNG{baseURL: cfg.SearXNGBaseURL, client: client, breaker: governor.NewCircuitBreaker(
			cfg.CircuitBreakerFailureThresholdPct, cfg.CircuitBreakerMinRequests, cfg.CircuitBreakerRecoveryTimeout, 2)}
	default:
		return None{}
	}
}

// None is the no-op provider used when SEARCH_BACKEND=none or a backend is
// misconfigured; every query fails with ErrSearchDisabled.
type None struct{}

func (None) Search(context.Context, string, int) ([]Result, error) {
	return nil, ErrSearchDisabled
}

// Serper queries https://google.serper.dev/search, the default backend.
type Serper struct {
	apiKey  string
	client  *http.Client
	breaker *governor.CircuitBreaker
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (s *Serper) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if !s.breaker.Allow() {
		return nil, types.ErrCircuitOpen
	}

	body, err := json.Marshal(serperRequest{Q: query, Num: limit})
	if err != nil {
		s.breaker.RecordFailure()
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://google.serper.dev/search", strings.NewReader(string(body)))
	if err != nil {
		s.breaker.RecordFailure()
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.breaker.RecordFailure()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		s.breaker.RecordFailure()
		return nil, fmt.Errorf("serper: HTTP %d", resp.StatusCode)
	}

	var parsed serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		s.breaker.RecordFailure()
		return nil, err
	}
	s.breaker.RecordSuccess()

	out := make([]Result, 0, len(parsed.Organic))
	for _, r := range parsed.Organic {
		out = append(out, Result{URL: r.Link, Title: r.Title, Snippet: r.Snippet})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// SearXNG queries a self-hosted SearXNG instance's JSON API.
type SearXNG struct {
	baseURL string
	client  *http.Client
	breaker *governor.CircuitBreaker
}

type searxngResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"results"`
}

func (s *SearXNG) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if !s.breaker.Allow() {
		return nil, types.ErrCircuitOpen
	}

	u := strings.TrimRight(s.baseURL, "/") + "/search?" + url.Values{
		"q":      {query},
		"format": {"json"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		s.breaker.RecordFailure()
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.breaker.RecordFailure()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		s.breaker.RecordFailure()
		return nil, fmt.Errorf("searxng: HTTP %d", resp.StatusCode)
	}

	var parsed searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		s.breaker.RecordFailure()
		return nil, err
	}
	s.breaker.RecordSuccess()

	out := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		out = append(out, Result{URL: r.URL, Title: r.Title, Snippet: r.Content})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
