package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/riptide-project/riptide/internal/aiprocessor"
	"github.com/riptide-project/riptide/internal/api"
	"github.com/riptide-project/riptide/internal/config"
	"github.com/riptide-project/riptide/internal/governor"
	"github.com/riptide-project/riptide/internal/observability"
	"github.com/riptide-project/riptide/internal/search"
	"github.com/riptide-project/riptide/internal/statestore"
	"github.com/riptide-project/riptide/internal/wasmpool"
)

var serveNoRender bool

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the RipTide HTTP API",
		Long: `Start the public HTTP surface: /health, /healthz, /crawl,
/deepsearch, and /metrics, with API-key authentication when configured.`,
		RunE: runServe,
	}
	cmd.Flags().BoolVar(&serveNoRender, "no-render", false, "disable the headless render path (no browser pool)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)
	metrics := observability.NewMetrics(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := aiprocessor.LogBus{Log: func(kind, taskID, url, detail string) {
		logger.Info("pool event", "kind", kind, "detail", detail)
	}}

	var gov *governor.Governor
	if !serveNoRender {
		gov, err = governor.New(cfg.Governor, logger)
		if err != nil {
			logger.Warn("headless render unavailable, continuing without browser pool", "error", err)
		} else {
			pool := wasmpool.New(cfg.WasmPool, wasmpool.DefaultExtractorScript,
				float64(cfg.Governor.GlobalMemoryLimitMB), logger)
			pool.StartBackground(ctx, func(r wasmpool.GCResult) {
				bus.Publish(aiprocessor.Event{
					Kind:      aiprocessor.EventGarbageCollected,
					Timestamp: time.Now(),
					Detail:    fmt.Sprintf("retired=%d freed_mb=%.1f", r.Retired, r.FreedMB),
				})
			})
			gov.SetWasmPool(pool)
			defer gov.Close()
		}
	}

	srv := api.New(cfg, gov, search.NewProvider(cfg.API), metrics, logger)
	if cfg.StateStore.RedisAddr != "" {
		sessions := statestore.NewSessionStore(cfg.StateStore)
		srv.SetRedisPinger(sessions)
	}

	if cfg.StateStore.HotReloadConfigPath != "" {
		watcher, err := config.NewWatcher(cfg.StateStore.HotReloadConfigPath, logger)
		if err != nil {
			logger.Warn("config hot-reload watcher failed to start", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port > 0 {
		if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("metrics server failed to start", "error", err)
		}
	}

	return srv.Start(ctx)
}
