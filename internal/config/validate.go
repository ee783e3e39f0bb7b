package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Spider.MaxConcurrentGlobal < 1 {
		return fmt.Errorf("spider.max_concurrent_global must be >= 1, got %d", cfg.Spider.MaxConcurrentGlobal)
	}
	if cfg.Spider.MaxConcurrentPerHost < 1 {
		return fmt.Errorf("spider.max_concurrent_per_host must be >= 1, got %d", cfg.Spider.MaxConcurrentPerHost)
	}
	if cfg.Budget.MaxDepth < 0 {
		return fmt.Errorf("budget.max_depth must be >= 0, got %d", cfg.Budget.MaxDepth)
	}
	if cfg.Budget.MaxPages < 0 {
		return fmt.Errorf("budget.max_pages must be >= 0, got %d", cfg.Budget.MaxPages)
	}

	if cfg.Governor.MaxPoolSize != 3 {
		return fmt.Errorf("governor.max_pool_size must be exactly 3 (system requirement), got %d", cfg.Governor.MaxPoolSize)
	}
	if cfg.Governor.MinPoolSize < 0 || cfg.Governor.MinPoolSize > cfg.Governor.MaxPoolSize {
		return fmt.Errorf("governor.min_pool_size must be between 0 and max_pool_size, got %d", cfg.Governor.MinPoolSize)
	}
	if cfg.Governor.PDFMaxConcurrent != 2 {
		return fmt.Errorf("governor.pdf_max_concurrent must be exactly 2 (system requirement), got %d", cfg.Governor.PDFMaxConcurrent)
	}
	if cfg.Governor.RequestsPerSecondPerHost <= 0 {
		return fmt.Errorf("governor.requests_per_second_per_host must be > 0")
	}
	if cfg.Governor.MemoryThresholdRatio <= 0 || cfg.Governor.MemoryThresholdRatio > 1 {
		return fmt.Errorf("governor.memory_threshold_ratio must be in (0,1], got %f", cfg.Governor.MemoryThresholdRatio)
	}

	if cfg.AdaptiveStop.WindowSize < 2 {
		return fmt.Errorf("adaptive_stop.window_size must be >= 2, got %d", cfg.AdaptiveStop.WindowSize)
	}
	if cfg.AdaptiveStop.Patience < 1 {
		return fmt.Errorf("adaptive_stop.patience must be >= 1, got %d", cfg.AdaptiveStop.Patience)
	}

	weightSum := cfg.Scorer.AlphaBM25 + cfg.Scorer.BetaURLSignals + cfg.Scorer.GammaDomainDiversity + cfg.Scorer.DeltaContentSimilarity
	if cfg.Scorer.Enabled && (weightSum < 0.99 || weightSum > 1.01) {
		return fmt.Errorf("scorer weights must sum to 1.0 by default, got %f", weightSum)
	}

	if cfg.Extraction.SuccessConfidenceThreshold < 0 || cfg.Extraction.SuccessConfidenceThreshold > 1 {
		return fmt.Errorf("extraction.success_confidence_threshold must be in [0,1], got %f", cfg.Extraction.SuccessConfidenceThreshold)
	}
	if cfg.Extraction.MaxConcurrent < 1 {
		return fmt.Errorf("extraction.max_concurrent must be >= 1, got %d", cfg.Extraction.MaxConcurrent)
	}

	validStrategies := map[string]bool{"exponential": true, "linear": true, "fibonacci": true, "adaptive": true}
	if !validStrategies[cfg.Retry.DefaultStrategy] {
		return fmt.Errorf("retry.default_strategy must be one of exponential/linear/fibonacci/adaptive, got %q", cfg.Retry.DefaultStrategy)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	validSearchBackends := map[string]bool{"serper": true, "searxng": true, "none": true}
	if !validSearchBackends[cfg.API.SearchBackend] {
		return fmt.Errorf("api.search_backend must be serper/searxng/none, got %q", cfg.API.SearchBackend)
	}
	if cfg.API.SearchBackend == "serper" && cfg.API.SerperAPIKey == "" {
		return fmt.Errorf("api.serper_api_key is required when search_backend=serper")
	}

	return nil
}

// ValidateURL checks whether a URL string is a valid, public crawl target.
// Private/localhost hosts are rejected here so the check can be reused by
// both config-time validation and the /crawl request-validation path.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	if IsPrivateOrLocalHost(u.Hostname()) {
		return fmt.Errorf("private/localhost hosts are not allowed: %q", u.Hostname())
	}
	return nil
}

// IsPrivateOrLocalHost reports whether host is an IP literal in a loopback,
// link-local, private or unspecified range, or is a well-known localhost
// alias. Host names are not resolved through DNS.
func IsPrivateOrLocalHost(host string) bool {
	h := strings.ToLower(host)
	if h == "localhost" || strings.HasSuffix(h, ".localhost") || strings.HasSuffix(h, ".local") {
		return true
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
