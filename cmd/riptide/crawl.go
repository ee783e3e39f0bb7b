package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/riptide-project/riptide/internal/aiprocessor"
	"github.com/riptide-project/riptide/internal/governor"
	"github.com/riptide-project/riptide/internal/retry"
	"github.com/riptide-project/riptide/internal/spider"
	"github.com/riptide-project/riptide/internal/types"
	"github.com/riptide-project/riptide/internal/wasmpool"
)

var (
	crawlMaxPages int64
	crawlMaxDepth int
	crawlQuery    string
	crawlEnhance  bool
	crawlOutput   string
)

func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Deep-crawl one or more seed URLs",
		Long: `Run the spider over the given seeds: frontier scheduling with host
fairness, budget enforcement, robots.txt politeness, adaptive stopping,
and (with --query) query-aware frontier scoring. Results are written as
JSONL, one document per line.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCrawl,
	}

	cmd.Flags().Int64Var(&crawlMaxPages, "max-pages", 0, "override the configured global page budget")
	cmd.Flags().IntVarP(&crawlMaxDepth, "depth", "d", 0, "override the configured max depth")
	cmd.Flags().StringVarP(&crawlQuery, "query", "q", "", "enable query-aware scoring for this query")
	cmd.Flags().BoolVar(&crawlEnhance, "enhance", false, "enqueue crawled content to the AI processor")
	cmd.Flags().StringVarP(&crawlOutput, "output", "o", "-", "output file (- for stdout)")

	return cmd
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if crawlMaxPages > 0 {
		cfg.Budget.MaxPages = crawlMaxPages
	}
	if crawlMaxDepth > 0 {
		cfg.Budget.MaxDepth = crawlMaxDepth
	}
	logger := setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := aiprocessor.LogBus{Log: func(kind, taskID, url, detail string) {
		logger.Debug("pool event", "kind", kind, "task_id", taskID, "url", url, "detail", detail)
	}}

	gov, err := governor.New(cfg.Governor, logger)
	if err != nil {
		return fmt.Errorf("start governor: %w", err)
	}
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

	out := os.Stdout
	if crawlOutput != "-" {
		f, err := os.Create(crawlOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)

	s := spider.New(cfg, gov, logger, crawlQuery)
	defer s.Close()
	for _, seed := range args {
		if err := s.Seed(ctx, seed); err != nil {
			return err
		}
	}

	var proc *aiprocessor.Processor
	if crawlEnhance && cfg.AIProcessor.Enabled {
		provider := aiprocessor.NewHTTPProvider(cfg.AIProcessor.Provider, aiprocessor.ProviderConfig{
			Endpoint: cfg.AIProcessor.Endpoint,
			Model:    cfg.AIProcessor.Model,
		})
		proc = aiprocessor.New(cfg.AIProcessor, provider, bus, logger).
			WithExecutor(retry.NewExecutor(cfg.Retry, gov.Breaker()))
		proc.Start(ctx)
	}

	go func() {
		for result := range s.Results() {
			if err := enc.Encode(resultLine(result)); err != nil {
				logger.Error("write result", "error", err)
			}
			if proc != nil && result.Success && result.TextContent != nil {
				proc.Submit(&types.AiTask{
					TaskID:    uuid.NewString(),
					URL:       result.Request.URL.String(),
					Content:   *result.TextContent,
					Priority:  types.PriorityNormal,
					CreatedAt: time.Now(),
				})
			}
		}
	}()

	reason := s.Run(ctx)
	if proc != nil {
		proc.Stop()
	}

	stats := s.Stats()
	logger.Info("crawl finished", "reason", reason,
		"pages_crawled", stats.PagesCrawled, "pages_failed", stats.PagesFailed,
		"bytes_fetched", stats.BytesFetched)
	return nil
}

// crawlLine is the JSONL shape written per crawled page.
type crawlLine struct {
	URL            string `json:"url"`
	Depth          int    `json:"depth"`
	Status         int    `json:"status"`
	Success        bool   `json:"success"`
	ContentSize    int64  `json:"content_size"`
	ExtractedURLs  int    `json:"extracted_urls"`
	Error          string `json:"error,omitempty"`
	ProcessingTime int64  `json:"processing_time_ms"`
}

func resultLine(r *types.CrawlResult) crawlLine {
	line := crawlLine{
		URL:            r.Request.URL.String(),
		Depth:          r.Request.Depth,
		Status:         r.Status,
		Success:        r.Success,
		ContentSize:    r.ContentSize,
		ExtractedURLs:  len(r.ExtractedURLs),
		ProcessingTime: r.ProcessingTime.Milliseconds(),
	}
	if r.Err != nil {
		line.Error = r.Err.Error()
	}
	return line
}
