package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("RIPTIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The public HTTP surface is also configurable via a handful
	// of bare, unprefixed environment variables, independent of the
	// RIPTIDE_-prefixed internal config tree.
	bindAPIEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("riptide")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".riptide"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applySecondsEnvOverrides(cfg)

	return cfg, nil
}

// applySecondsEnvOverrides re-reads the three env vars documented as
// bare integer seconds (not a "30s"-style duration string, which is what
// mapstructure's StringToTimeDurationHookFunc requires), so AUTH_RATE_LIMIT_
// WINDOW_SECS=60 behaves the same as setting the YAML/RIPTIDE_ equivalent to
// a 60s duration.
func applySecondsEnvOverrides(cfg *Config) {
	for env, set := range map[string]func(time.Duration){
		"AUTH_RATE_LIMIT_WINDOW_SECS":      func(d time.Duration) { cfg.API.AuthRateLimitWindow = d },
		"SEARCH_TIMEOUT":                   func(d time.Duration) { cfg.API.SearchTimeout = d },
		"CIRCUIT_BREAKER_RECOVERY_TIMEOUT": func(d time.Duration) { cfg.API.CircuitBreakerRecoveryTimeout = d },
	} {
		raw, ok := os.LookupEnv(env)
		if !ok {
			continue
		}
		secs, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		set(time.Duration(secs) * time.Second)
	}
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	return Load(path)
}

// bindAPIEnv wires the literal, unprefixed environment variable names the
// public HTTP surface recognizes onto the nested api.* config
// keys, so e.g. API_KEYS overrides api.api_keys the same way a RIPTIDE_
// prefixed or config-file value would.
func bindAPIEnv(v *viper.Viper) {
	// The three *_SECS/timeout variables are bare integer seconds and are
	// applied by applySecondsEnvOverrides after unmarshal; binding them here
	// would make the duration decode hook choke on "60".
	binds := map[string]string{
		"api.api_keys":                              "API_KEYS",
		"api.require_auth":                          "REQUIRE_AUTH",
		"api.max_auth_attempts_per_minute":          "MAX_AUTH_ATTEMPTS_PER_MINUTE",
		"api.search_backend":                        "SEARCH_BACKEND",
		"api.serper_api_key":                        "SERPER_API_KEY",
		"api.circuit_breaker_failure_threshold_pct": "CIRCUIT_BREAKER_FAILURE_THRESHOLD",
		"api.circuit_breaker_min_requests":          "CIRCUIT_BREAKER_MIN_REQUESTS",
	}
	for key, env := range binds {
		v.BindEnv(key, env)
	}
}

// setDefaults registers default values in viper so that a partial YAML
// document only overrides the keys it mentions.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("governor", cfg.Governor)
	v.SetDefault("spider", cfg.Spider)
	v.SetDefault("budget", cfg.Budget)
	v.SetDefault("urlutil", cfg.URLUtil)
	v.SetDefault("adaptive_stop", cfg.AdaptiveStop)
	v.SetDefault("scorer", cfg.Scorer)
	v.SetDefault("extraction", cfg.Extraction)
	v.SetDefault("wasm_pool", cfg.WasmPool)
	v.SetDefault("retry", cfg.Retry)
	v.SetDefault("ai_processor", cfg.AIProcessor)
	v.SetDefault("state_store", cfg.StateStore)
	v.SetDefault("api", cfg.API)
	v.SetDefault("logging", cfg.Logging)
	v.SetDefault("metrics", cfg.Metrics)
}

// Watcher reloads a YAML config file on change. The core re-reads
// configuration between operations, never during one, so callers must only
// observe Current() at safe points (e.g. between crawl requests).
type Watcher struct {
	mu      sync.RWMutex
	current *Config
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher starts watching configPath for changes, reloading into an
// atomically-swapped Config on each write event.
func NewWatcher(configPath string, logger *slog.Logger) (*Watcher, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		current: cfg,
		path:    configPath,
		logger:  logger.With("component", "config_watcher"),
	}

	if configPath == "" {
		return w, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(configPath)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}
	w.watcher = fw

	go w.run()

	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Warn("config reload failed", "error", err)
				continue
			}
			if err := Validate(cfg); err != nil {
				w.logger.Warn("reloaded config failed validation, keeping previous", "error", err)
				continue
			}
			w.mu.Lock()
			w.current = cfg
			w.mu.Unlock()
			w.logger.Info("configuration reloaded", "path", w.path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}
