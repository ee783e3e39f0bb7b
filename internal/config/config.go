package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for riptide.
type Config struct {
	Governor     GovernorConfig     `mapstructure:"governor"      yaml:"governor"`
	Spider       SpiderConfig       `mapstructure:"spider"        yaml:"spider"`
	Budget       BudgetConfig       `mapstructure:"budget"        yaml:"budget"`
	URLUtil      URLUtilConfig      `mapstructure:"urlutil"       yaml:"urlutil"`
	AdaptiveStop AdaptiveStopConfig `mapstructure:"adaptive_stop" yaml:"adaptive_stop"`
	Scorer       ScorerConfig       `mapstructure:"scorer"        yaml:"scorer"`
	Extraction   ExtractionConfig   `mapstructure:"extraction"    yaml:"extraction"`
	WasmPool     WasmPoolConfig     `mapstructure:"wasm_pool"     yaml:"wasm_pool"`
	Retry        RetryConfig        `mapstructure:"retry"         yaml:"retry"`
	AIProcessor  AIProcessorConfig  `mapstructure:"ai_processor"  yaml:"ai_processor"`
	StateStore   StateStoreConfig   `mapstructure:"state_store"   yaml:"state_store"`
	API          APIConfig          `mapstructure:"api"           yaml:"api"`
	Logging      LoggingConfig      `mapstructure:"logging"       yaml:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"       yaml:"metrics"`
}

// GovernorConfig controls the Resource Governor.
type GovernorConfig struct {
	MinPoolSize                int           `mapstructure:"min_pool_size"                 yaml:"min_pool_size"`
	MaxPoolSize                int           `mapstructure:"max_pool_size"                 yaml:"max_pool_size"`
	RenderTimeout              time.Duration `mapstructure:"render_timeout"                yaml:"render_timeout"`
	PDFMaxConcurrent           int           `mapstructure:"pdf_max_concurrent"            yaml:"pdf_max_concurrent"`
	RequestsPerSecondPerHost   float64       `mapstructure:"requests_per_second_per_host"  yaml:"requests_per_second_per_host"`
	BurstCapacityPerHost       float64       `mapstructure:"burst_capacity_per_host"       yaml:"burst_capacity_per_host"`
	JitterMaxMillis            int           `mapstructure:"jitter_max_millis"             yaml:"jitter_max_millis"`
	GlobalMemoryLimitMB        int           `mapstructure:"global_memory_limit_mb"        yaml:"global_memory_limit_mb"`
	MemoryThresholdRatio       float64       `mapstructure:"memory_threshold_ratio"        yaml:"memory_threshold_ratio"`
	CircuitFailureThresholdPct float64       `mapstructure:"circuit_failure_threshold_pct" yaml:"circuit_failure_threshold_pct"`
	CircuitMinRequests         int           `mapstructure:"circuit_min_requests"          yaml:"circuit_min_requests"`
	CircuitOpenDuration        time.Duration `mapstructure:"circuit_open_duration"         yaml:"circuit_open_duration"`
	CircuitSuccessThreshold    int           `mapstructure:"circuit_success_threshold"     yaml:"circuit_success_threshold"`
	AuthMaxAttemptsPerWindow   int           `mapstructure:"auth_max_attempts_per_window"  yaml:"auth_max_attempts_per_window"`
	AuthWindowDuration         time.Duration `mapstructure:"auth_window_duration"          yaml:"auth_window_duration"`
}

// SpiderConfig controls the crawl loop.
type SpiderConfig struct {
	MaxConcurrentGlobal  int           `mapstructure:"max_concurrent_global"   yaml:"max_concurrent_global"`
	MaxConcurrentPerHost int           `mapstructure:"max_concurrent_per_host" yaml:"max_concurrent_per_host"`
	HostMinInterval      time.Duration `mapstructure:"host_min_interval"       yaml:"host_min_interval"`
	RespectRobotsTxt     bool          `mapstructure:"respect_robots_txt"      yaml:"respect_robots_txt"`
	IdlePollInterval     time.Duration `mapstructure:"idle_poll_interval"      yaml:"idle_poll_interval"`
	MemoryPressureGrace  time.Duration `mapstructure:"memory_pressure_grace"   yaml:"memory_pressure_grace"`
}

// BudgetConfig controls the Budget Manager.
type BudgetConfig struct {
	MaxPages            int64 `mapstructure:"max_pages"              yaml:"max_pages"`
	MaxDepth            int   `mapstructure:"max_depth"              yaml:"max_depth"`
	MaxBandwidthBytes   int64 `mapstructure:"max_bandwidth_bytes"    yaml:"max_bandwidth_bytes"`
	MaxPagesPerHost     int64 `mapstructure:"max_pages_per_host"     yaml:"max_pages_per_host"`
	MaxBandwidthPerHost int64 `mapstructure:"max_bandwidth_per_host" yaml:"max_bandwidth_per_host"`
}

// URLUtilConfig controls normalization/dedup/filtering.
type URLUtilConfig struct {
	BloomCapacity          uint64   `mapstructure:"bloom_capacity"            yaml:"bloom_capacity"`
	BloomFalsePositiveRate float64  `mapstructure:"bloom_false_positive_rate" yaml:"bloom_false_positive_rate"`
	MaxExactURLs           int      `mapstructure:"max_exact_urls"            yaml:"max_exact_urls"`
	StripTrailingSlash     bool     `mapstructure:"strip_trailing_slash"      yaml:"strip_trailing_slash"`
	StripWWWPrefix         bool     `mapstructure:"strip_www_prefix"          yaml:"strip_www_prefix"`
	ExcludedExtensions     []string `mapstructure:"excluded_extensions"       yaml:"excluded_extensions"`
	ExcludedPatterns       []string `mapstructure:"excluded_patterns"         yaml:"excluded_patterns"`
}

// AdaptiveStopConfig controls the Adaptive Stop Engine.
type AdaptiveStopConfig struct {
	WindowSize              int           `mapstructure:"window_size"               yaml:"window_size"`
	MinGainThreshold        float64       `mapstructure:"min_gain_threshold"        yaml:"min_gain_threshold"`
	Patience                int           `mapstructure:"patience"                  yaml:"patience"`
	MinPagesBeforeStop      int           `mapstructure:"min_pages_before_stop"     yaml:"min_pages_before_stop"`
	EnableQualityScoring    bool          `mapstructure:"enable_quality_scoring"    yaml:"enable_quality_scoring"`
	QualityThreshold        float64       `mapstructure:"quality_threshold"         yaml:"quality_threshold"`
	TextContentWeight       float64       `mapstructure:"text_content_weight"       yaml:"text_content_weight"`
	LinkContentWeight       float64       `mapstructure:"link_content_weight"       yaml:"link_content_weight"`
	SizeContentWeight       float64       `mapstructure:"size_content_weight"       yaml:"size_content_weight"`
	EnableAdaptiveThreshold bool          `mapstructure:"enable_adaptive_threshold" yaml:"enable_adaptive_threshold"`
	MaxAnalysisTime         time.Duration `mapstructure:"max_analysis_time"         yaml:"max_analysis_time"`
	SiteTypeHints           SiteTypeHints `mapstructure:"site_type_hints"           yaml:"site_type_hints"`
}

// SiteTypeHints are threshold multipliers per classified site type.
type SiteTypeHints struct {
	News          float64 `mapstructure:"news"          yaml:"news"`
	ECommerce     float64 `mapstructure:"ecommerce"     yaml:"ecommerce"`
	Blog          float64 `mapstructure:"blog"          yaml:"blog"`
	Documentation float64 `mapstructure:"documentation" yaml:"documentation"`
	SocialMedia   float64 `mapstructure:"social_media"  yaml:"social_media"`
	Default       float64 `mapstructure:"default"       yaml:"default"`
}

// ScorerConfig controls the Query-Aware Scorer.
type ScorerConfig struct {
	Enabled                bool    `mapstructure:"enabled"                  yaml:"enabled"`
	AlphaBM25              float64 `mapstructure:"alpha_bm25"              yaml:"alpha_bm25"`
	BetaURLSignals         float64 `mapstructure:"beta_url_signals"        yaml:"beta_url_signals"`
	GammaDomainDiversity   float64 `mapstructure:"gamma_domain_diversity"  yaml:"gamma_domain_diversity"`
	DeltaContentSimilarity float64 `mapstructure:"delta_content_similarity" yaml:"delta_content_similarity"`
	BM25K1                 float64 `mapstructure:"bm25_k1"                 yaml:"bm25_k1"`
	BM25B                  float64 `mapstructure:"bm25_b"                  yaml:"bm25_b"`
	MinRelevanceThreshold  float64 `mapstructure:"min_relevance_threshold" yaml:"min_relevance_threshold"`
	RelevanceWindowSize    int     `mapstructure:"relevance_window_size"   yaml:"relevance_window_size"`
	UseStemming            bool    `mapstructure:"use_stemming"            yaml:"use_stemming"`
}

// ExtractionConfig controls the Composition Engine.
type ExtractionConfig struct {
	SuccessConfidenceThreshold float64       `mapstructure:"success_confidence_threshold" yaml:"success_confidence_threshold"`
	PerStrategyTimeout         time.Duration `mapstructure:"per_strategy_timeout"         yaml:"per_strategy_timeout"`
	GlobalTimeout              time.Duration `mapstructure:"global_timeout"               yaml:"global_timeout"`
	MinConfidence              float64       `mapstructure:"min_confidence"               yaml:"min_confidence"`
	JSONLDShortCircuit         bool          `mapstructure:"json_ld_short_circuit"        yaml:"json_ld_short_circuit"`
	BestContentByConfidence    bool          `mapstructure:"best_content_by_confidence"   yaml:"best_content_by_confidence"`
	MaxConcurrent              int           `mapstructure:"max_concurrent"               yaml:"max_concurrent"`
	PerDocumentTimeout         time.Duration `mapstructure:"per_document_timeout"         yaml:"per_document_timeout"`
	RetryFailed                bool          `mapstructure:"retry_failed"                 yaml:"retry_failed"`
	MaxRetries                 int           `mapstructure:"max_retries"                  yaml:"max_retries"`
	FailFast                   bool          `mapstructure:"fail_fast"                    yaml:"fail_fast"`
	BackoffMultiplier          float64       `mapstructure:"backoff_multiplier"           yaml:"backoff_multiplier"`
	InitialBackoffDelay        time.Duration `mapstructure:"initial_backoff_delay"        yaml:"initial_backoff_delay"`
}

// WasmPoolConfig controls the WASM Instance Manager.
type WasmPoolConfig struct {
	MaxOpsPerInstance          uint64        `mapstructure:"max_ops_per_instance"         yaml:"max_ops_per_instance"`
	RestartThreshold           uint64        `mapstructure:"restart_threshold"            yaml:"restart_threshold"`
	IdleTimeout                time.Duration `mapstructure:"idle_timeout"                 yaml:"idle_timeout"`
	InstanceMemoryThresholdMB  float64       `mapstructure:"instance_memory_threshold_mb" yaml:"instance_memory_threshold_mb"`
	MemoryPressureThresholdPct float64       `mapstructure:"memory_pressure_threshold_pct" yaml:"memory_pressure_threshold_pct"`
	MonitorTickInterval        time.Duration `mapstructure:"monitor_tick_interval"        yaml:"monitor_tick_interval"`
	GCTickInterval             time.Duration `mapstructure:"gc_tick_interval"             yaml:"gc_tick_interval"`
}

// RetryConfig controls Smart Retry.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"     yaml:"max_attempts"`
	InitialDelay    time.Duration `mapstructure:"initial_delay"    yaml:"initial_delay"`
	Multiplier      float64       `mapstructure:"multiplier"       yaml:"multiplier"`
	MaxDelay        time.Duration `mapstructure:"max_delay"        yaml:"max_delay"`
	JitterFraction  float64       `mapstructure:"jitter_fraction"  yaml:"jitter_fraction"`
	DefaultStrategy string        `mapstructure:"default_strategy" yaml:"default_strategy"`
}

// AIProcessorConfig controls the Background AI Processor.
type AIProcessorConfig struct {
	Enabled        bool          `mapstructure:"enabled"          yaml:"enabled"`
	NumWorkers     int           `mapstructure:"num_workers"      yaml:"num_workers"`
	QueueSize      int           `mapstructure:"queue_size"       yaml:"queue_size"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec" yaml:"requests_per_sec"`
	MaxRetries     int           `mapstructure:"max_retries"      yaml:"max_retries"`
	TaskTimeout    time.Duration `mapstructure:"task_timeout"     yaml:"task_timeout"`
	Provider       string        `mapstructure:"provider"         yaml:"provider"`
	Model          string        `mapstructure:"model"            yaml:"model"`
	Endpoint       string        `mapstructure:"endpoint"         yaml:"endpoint"`
}

// StateStoreConfig controls sessions/checkpoints.
type StateStoreConfig struct {
	RedisAddr           string        `mapstructure:"redis_addr"             yaml:"redis_addr"`
	RedisDB             int           `mapstructure:"redis_db"               yaml:"redis_db"`
	SessionTTL          time.Duration `mapstructure:"session_ttl"            yaml:"session_ttl"`
	CheckpointDir       string        `mapstructure:"checkpoint_dir"         yaml:"checkpoint_dir"`
	CheckpointCompress  bool          `mapstructure:"checkpoint_compress"    yaml:"checkpoint_compress"`
	MongoURI            string        `mapstructure:"mongo_uri"              yaml:"mongo_uri"`
	MongoDatabase       string        `mapstructure:"mongo_database"         yaml:"mongo_database"`
	HotReloadConfigPath string        `mapstructure:"hot_reload_config_path" yaml:"hot_reload_config_path"`
}

// APIConfig controls the HTTP surface.
type APIConfig struct {
	ListenAddr                        string        `mapstructure:"listen_addr"                        yaml:"listen_addr"`
	RequireAuth                       bool          `mapstructure:"require_auth"                       yaml:"require_auth"`
	APIKeys                           []string      `mapstructure:"api_keys"                           yaml:"api_keys"`
	MaxAuthAttemptsPerMinute          int           `mapstructure:"max_auth_attempts_per_minute"       yaml:"max_auth_attempts_per_minute"`
	AuthRateLimitWindow               time.Duration `mapstructure:"auth_rate_limit_window"             yaml:"auth_rate_limit_window"`
	SearchBackend                     string        `mapstructure:"search_backend"                     yaml:"search_backend"`
	SearchTimeout                     time.Duration `mapstructure:"search_timeout"                     yaml:"search_timeout"`
	SerperAPIKey                      string        `mapstructure:"serper_api_key"                     yaml:"serper_api_key"`
	SearXNGBaseURL                    string        `mapstructure:"searxng_base_url"                   yaml:"searxng_base_url"`
	CircuitBreakerFailureThresholdPct float64       `mapstructure:"circuit_breaker_failure_threshold_pct" yaml:"circuit_breaker_failure_threshold_pct"`
	CircuitBreakerMinRequests         int           `mapstructure:"circuit_breaker_min_requests"       yaml:"circuit_breaker_min_requests"`
	CircuitBreakerRecoveryTimeout     time.Duration `mapstructure:"circuit_breaker_recovery_timeout"   yaml:"circuit_breaker_recovery_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible production defaults,
// overridable by environment variables and config file.
func DefaultConfig() *Config {
	return &Config{
		Governor: GovernorConfig{
			MinPoolSize:                1,
			MaxPoolSize:                3,
			RenderTimeout:              30 * time.Second,
			PDFMaxConcurrent:           2,
			RequestsPerSecondPerHost:   1.5,
			BurstCapacityPerHost:       3,
			JitterMaxMillis:            250,
			GlobalMemoryLimitMB:        2048,
			MemoryThresholdRatio:       0.85,
			CircuitFailureThresholdPct: 50,
			CircuitMinRequests:         5,
			CircuitOpenDuration:        60 * time.Second,
			CircuitSuccessThreshold:    3,
			AuthMaxAttemptsPerWindow:   10,
			AuthWindowDuration:         60 * time.Second,
		},
		Spider: SpiderConfig{
			MaxConcurrentGlobal:  20,
			MaxConcurrentPerHost: 2,
			HostMinInterval:      500 * time.Millisecond,
			RespectRobotsTxt:     true,
			IdlePollInterval:     50 * time.Millisecond,
			MemoryPressureGrace:  5 * time.Second,
		},
		Budget: BudgetConfig{
			MaxPages:            10000,
			MaxDepth:            10,
			MaxBandwidthBytes:   1 << 30,
			MaxPagesPerHost:     1000,
			MaxBandwidthPerHost: 100 << 20,
		},
		URLUtil: URLUtilConfig{
			BloomCapacity:          1_000_000,
			BloomFalsePositiveRate: 0.01,
			MaxExactURLs:           200_000,
			StripTrailingSlash:     true,
			StripWWWPrefix:         false,
			ExcludedExtensions:     []string{".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".woff", ".woff2", ".mp4", ".zip", ".pdf"},
		},
		AdaptiveStop: AdaptiveStopConfig{
			WindowSize:              10,
			MinGainThreshold:        100.0,
			Patience:                5,
			MinPagesBeforeStop:      20,
			EnableQualityScoring:    true,
			QualityThreshold:        0.5,
			TextContentWeight:       0.6,
			LinkContentWeight:       0.3,
			SizeContentWeight:       0.1,
			EnableAdaptiveThreshold: true,
			MaxAnalysisTime:         100 * time.Millisecond,
			SiteTypeHints: SiteTypeHints{
				News: 1.5, ECommerce: 0.7, Blog: 1.2,
				Documentation: 0.9, SocialMedia: 1.8, Default: 1.0,
			},
		},
		Scorer: ScorerConfig{
			Enabled:                true,
			AlphaBM25:              0.4,
			BetaURLSignals:         0.2,
			GammaDomainDiversity:   0.2,
			DeltaContentSimilarity: 0.2,
			BM25K1:                 1.2,
			BM25B:                  0.75,
			MinRelevanceThreshold:  0.1,
			RelevanceWindowSize:    10,
			UseStemming:            true,
		},
		Extraction: ExtractionConfig{
			SuccessConfidenceThreshold: 0.6,
			PerStrategyTimeout:         10 * time.Second,
			GlobalTimeout:              30 * time.Second,
			MinConfidence:              0.3,
			JSONLDShortCircuit:         true,
			BestContentByConfidence:    true,
			MaxConcurrent:              10,
			PerDocumentTimeout:         15 * time.Second,
			RetryFailed:                true,
			MaxRetries:                 2,
			FailFast:                   false,
			BackoffMultiplier:          2.0,
			InitialBackoffDelay:        200 * time.Millisecond,
		},
		WasmPool: WasmPoolConfig{
			MaxOpsPerInstance:          10000,
			RestartThreshold:           5,
			IdleTimeout:                5 * time.Minute,
			InstanceMemoryThresholdMB:  256,
			MemoryPressureThresholdPct: 90,
			MonitorTickInterval:        10 * time.Second,
			GCTickInterval:             30 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:     4,
			InitialDelay:    200 * time.Millisecond,
			Multiplier:      2.0,
			MaxDelay:        30 * time.Second,
			JitterFraction:  0.2,
			DefaultStrategy: "exponential",
		},
		AIProcessor: AIProcessorConfig{
			Enabled:        false,
			NumWorkers:     4,
			QueueSize:      1000,
			RequestsPerSec: 2.0,
			MaxRetries:     3,
			TaskTimeout:    30 * time.Second,
			Provider:       "ollama",
			Model:          "llama3",
			Endpoint:       "http://localhost:11434",
		},
		StateStore: StateStoreConfig{
			RedisAddr:           "localhost:6379",
			RedisDB:             0,
			SessionTTL:          30 * time.Minute,
			CheckpointDir:       "./checkpoints",
			CheckpointCompress:  true,
			MongoDatabase:       "riptide",
			HotReloadConfigPath: "",
		},
		API: APIConfig{
			ListenAddr:                        ":8080",
			RequireAuth:                       true,
			MaxAuthAttemptsPerMinute:          10,
			AuthRateLimitWindow:               60 * time.Second,
			SearchBackend:                     "serper",
			SearchTimeout:                     30 * time.Second,
			CircuitBreakerFailureThresholdPct: 50,
			CircuitBreakerMinRequests:         5,
			CircuitBreakerRecoveryTimeout:     60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
