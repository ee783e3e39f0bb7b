package aiprocessor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/riptide-project/riptide/internal/types"
)

// Provider is one LLM backend capable of enhancing extracted content.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// ProviderConfig configures a single Provider instance.
type ProviderConfig struct {
	Name        string
	Endpoint    string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
}

// httpProvider talks to an Ollama-, OpenAI-, or custom-compatible HTTP
// completion endpoint, selected by the shape of ProviderConfig.
type httpProvider struct {
	cfg    ProviderConfig
	client *http.Client
	kind   string // "ollama" | "openai" | "custom"
}

// NewHTTPProvider builds a Provider for the named kind.
func NewHTTPProvider(kind string, cfg ProviderConfig) Provider {
	return &httpProvider{cfg: cfg, kind: kind, client: &http.Client{Timeout: 120 * time.Second}}
}

func (p *httpProvider) Name() string { return p.cfg.Name }

func (p *httpProvider) Generate(ctx context.Context, prompt string) (string, error) {
	switch p.kind {
	case "openai":
		return p.generateOpenAI(ctx, prompt)
	case "custom":
		return p.generateCustom(ctx, prompt)
	default:
		return p.generateOllama(ctx, prompt)
	}
}

func (p *httpProvider) generateOllama(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model": p.cfg.Model, "prompt": prompt, "stream": false,
		"options": map[string]any{"temperature": p.cfg.Temperature, "num_predict": p.cfg.MaxTokens},
	}
	return p.post(ctx, p.cfg.Endpoint+"/api/generate", payload, func(body io.Reader) (string, error) {
		var result struct {
			Response string `json:"response"`
		}
		if err := json.NewDecoder(body).Decode(&result); err != nil {
			return "", err
		}
		return result.Response, nil
	}, false)
}

func (p *httpProvider) generateOpenAI(ctx context.Context, prompt string) (string, error) {
	endpoint := p.cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	payload := map[string]any{
		"model":       p.cfg.Model,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"max_tokens":  p.cfg.MaxTokens,
		"temperature": p.cfg.Temperature,
	}
	return p.post(ctx, endpoint+"/chat/completions", payload, func(body io.Reader) (string, error) {
		var result struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.NewDecoder(body).Decode(&result); err != nil {
			return "", err
		}
		if len(result.Choices) == 0 {
			return "", fmt.Errorf("provider %s: no choices in response", p.cfg.Name)
		}
		return result.Choices[0].Message.Content, nil
	}, true)
}

func (p *httpProvider) generateCustom(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{"prompt": prompt, "model": p.cfg.Model}
	return p.post(ctx, p.cfg.Endpoint, payload, func(body io.Reader) (string, error) {
		raw, err := io.ReadAll(body)
		return string(raw), err
	}, p.cfg.APIKey != "")
}

func (p *httpProvider) post(ctx context.Context, url string, payload map[string]any, decode func(io.Reader) (string, error), withAuth bool) (string, error) {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if withAuth && p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &types.RiptideError{Kind: types.KindNetwork, Message: "provider request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &types.RiptideError{Kind: types.KindRateLimit, Message: "provider rate limited", RetryAfter: retryAfterFrom(resp)}
	}
	if resp.StatusCode >= 500 {
		return "", &types.RiptideError{Kind: types.KindProvider, Message: fmt.Sprintf("provider %s returned %d", p.cfg.Name, resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return "", &types.RiptideError{Kind: types.KindInvalidRequest, Message: fmt.Sprintf("provider %s returned %d", p.cfg.Name, resp.StatusCode)}
	}
	return decode(resp.Body)
}

func retryAfterFrom(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := time.ParseDuration(v + "s"); err == nil {
			return secs
		}
	}
	return time.Second
}

// Registry is a name-keyed lookup of configured Providers with one default
// entry. As a Generator it delegates every call to its default provider.
type Registry struct {
	providers map[string]Provider
	def       string
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(p Provider, isDefault bool) {
	r.providers[p.Name()] = p
	if isDefault || r.def == "" {
		r.def = p.Name()
	}
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

func (r *Registry) Default() (Provider, bool) {
	return r.Get(r.def)
}

// Generate calls the default provider.
func (r *Registry) Generate(ctx context.Context, prompt string) (string, error) {
	p, ok := r.Default()
	if !ok {
		return "", fmt.Errorf("no default provider registered")
	}
	return p.Generate(ctx, prompt)
}

// FailoverManager tries providers in priority order, advancing to the next
// on any error, until one succeeds or all are exhausted.
type FailoverManager struct {
	providers []Provider
}

func NewFailoverManager(providers ...Provider) *FailoverManager {
	return &FailoverManager{providers: providers}
}

func (f *FailoverManager) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for _, p := range f.providers {
		out, err := p.Generate(ctx, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no providers configured")
	}
	return "", lastErr
}
