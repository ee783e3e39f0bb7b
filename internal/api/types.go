// Package api implements the public HTTP surface: health checks, the
// synchronous /crawl batch endpoint, the /deepsearch flow, API-key
// authentication with a dedicated auth rate limiter, and the
// gate-decision policy. It is the one place that holds the process-level
// singleton dependencies (governor, fetch engine, search provider); every
// other component receives its collaborators explicitly.
package api

import "time"

// crawlRequestBody is the POST /crawl request payload.
type crawlRequestBody struct {
	URLs []string `json:"urls"`
}

// crawlResultDTO is one element of POST /crawl's results array.
type crawlResultDTO struct {
	URL              string       `json:"url"`
	Status           int          `json:"status"`
	FromCache        bool         `json:"from_cache"`
	GateDecision     string       `json:"gate_decision"`
	QualityScore     float64      `json:"quality_score"`
	ProcessingTimeMs int64        `json:"processing_time_ms"`
	Document         *documentDTO `json:"document,omitempty"`
	Error            string       `json:"error,omitempty"`
	CacheKey         string       `json:"cache_key"`
}

// documentDTO is the normalized extracted-content document embedded in a
// crawl result.
type documentDTO struct {
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Summary  string         `json:"summary,omitempty"`
	URL      string         `json:"url"`
	Author   string         `json:"author,omitempty"`
	Language string         `json:"language,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// gateDecisionCounts tallies how many results took each gate path.
type gateDecisionCounts struct {
	Raw         int `json:"raw"`
	ProbesFirst int `json:"probes_first"`
	Headless    int `json:"headless"`
	Cached      int `json:"cached"`
}

// crawlStatistics summarizes a /crawl batch.
type crawlStatistics struct {
	TotalProcessingTimeMs int64              `json:"total_processing_time_ms"`
	AvgProcessingTimeMs   float64            `json:"avg_processing_time_ms"`
	GateDecisions         gateDecisionCounts `json:"gate_decisions"`
	CacheHitRate          float64            `json:"cache_hit_rate"`
}

// crawlResponse is the full POST /crawl response body.
type crawlResponse struct {
	TotalURLs  int              `json:"total_urls"`
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	FromCache  int              `json:"from_cache"`
	Results    []crawlResultDTO `json:"results"`
	Statistics crawlStatistics  `json:"statistics"`
}

// deepSearchRequestBody is the POST /deepsearch request payload.
type deepSearchRequestBody struct {
	Query          string `json:"query"`
	Limit          int    `json:"limit,omitempty"`
	IncludeContent bool   `json:"include_content,omitempty"`
}

// deepSearchResultDTO is one ranked result in a /deepsearch response.
type deepSearchResultDTO struct {
	URL           string          `json:"url"`
	Rank          int             `json:"rank"`
	SearchTitle   string          `json:"search_title"`
	SearchSnippet string          `json:"search_snippet"`
	Content       string          `json:"content,omitempty"`
	CrawlResult   *crawlResultDTO `json:"crawl_result,omitempty"`
}

// deepSearchResponse is the full POST /deepsearch response body.
type deepSearchResponse struct {
	Query            string                `json:"query"`
	URLsFound        int                   `json:"urls_found"`
	URLsCrawled      int                   `json:"urls_crawled"`
	Results          []deepSearchResultDTO `json:"results"`
	Status           string                `json:"status"`
	ProcessingTimeMs int64                 `json:"processing_time_ms"`
}

// apiError is the machine-readable error envelope used by every
// validation/auth failure.
type apiError struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Status    int    `json:"status"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// healthDependencies reports the health of the service's collaborators.
type healthDependencies struct {
	Redis           string `json:"redis"`
	Extractor       string `json:"extractor"`
	HTTPClient      string `json:"http_client"`
	HeadlessService string `json:"headless_service,omitempty"`
}

type healthMetrics struct {
	MemoryUsageBytes  uint64  `json:"memory_usage_bytes"`
	ActiveConnections int64   `json:"active_connections"`
	TotalRequests     int64   `json:"total_requests"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
}

type healthResponse struct {
	Status       string             `json:"status"`
	Version      string             `json:"version"`
	Timestamp    time.Time          `json:"timestamp"`
	Uptime       float64            `json:"uptime"`
	Dependencies healthDependencies `json:"dependencies"`
	Metrics      healthMetrics      `json:"metrics"`
}
