package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/riptide-project/riptide/internal/config"
	"github.com/riptide-project/riptide/internal/types"
)

func apiConfig() config.APIConfig {
	return config.APIConfig{
		SearchTimeout:                     5 * time.Second,
		CircuitBreakerFailureThresholdPct: 50,
		CircuitBreakerMinRequests:         2,
		CircuitBreakerRecoveryTimeout:     time.Minute,
	}
}

func TestProviderSelection(t *testing.T) {
	cfg := apiConfig()

	cfg.SearchBackend = "none"
	if _, ok := NewProvider(cfg).(None); !ok {
		t.Error("backend none must select the None provider")
	}

	cfg.SearchBackend = "serper"
	if _, ok := NewProvider(cfg).(None); !ok {
		t.Error("serper without an API key must degrade to None")
	}
	cfg.SerperAPIKey = "k"
	if _, ok := NewProvider(cfg).(*Serper); !ok {
		t.Error("serper with a key must select the Serper provider")
	}

	cfg.SearchBackend = "searxng"
	cfg.SearXNGBaseURL = "http://search.internal"
	if _, ok := NewProvider(cfg).(*SearXNG); !ok {
		t.Error("searxng with a base URL must select the SearXNG provider")
	}

	cfg.SearchBackend = "something-else"
	if _, ok := NewProvider(cfg).(None); !ok {
		t.Error("unknown backend must fall back to None")
	}
}

func TestNoneProvider(t *testing.T) {
	_, err := None{}.Search(context.Background(), "anything", 5)
	if !errors.Is(err, ErrSearchDisabled) {
		t.Errorf("err = %v, want ErrSearchDisabled", err)
	}
}

func TestSearXNGSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("missing format=json")
		}
		if q := r.URL.Query().Get("q"); q != "golang crawler" {
			t.Errorf("query = %q", q)
		}
		fmt.Fprint(w, `{"results":[
			{"url":"https://a.example.com","title":"A","content":"first hit"},
			{"url":"https://b.example.com","title":"B","content":"second hit"},
			{"url":"https://c.example.com","title":"C","content":"third hit"}
		]}`)
	}))
	defer srv.Close()

	cfg := apiConfig()
	cfg.SearchBackend = "searxng"
	cfg.SearXNGBaseURL = srv.URL
	p := NewProvider(cfg)

	hits, err := p.Search(context.Background(), "golang crawler", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want limit-bounded 2", len(hits))
	}
	if hits[0].URL != "https://a.example.com" || hits[0].Snippet != "first hit" {
		t.Errorf("first hit = %+v", hits[0])
	}
}

func TestSearXNGCircuitOpensOnRepeatedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := apiConfig()
	cfg.SearchBackend = "searxng"
	cfg.SearXNGBaseURL = srv.URL
	p := NewProvider(cfg)

	for i := 0; i < 3; i++ {
		p.Search(context.Background(), "q", 1)
	}
	_, err := p.Search(context.Background(), "q", 1)
	if !errors.Is(err, types.ErrCircuitOpen) {
		t.Errorf("err = %v, want circuit open after repeated upstream failures", err)
	}
}
