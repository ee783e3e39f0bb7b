package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/riptide-project/riptide/internal/governor"
	"github.com/riptide-project/riptide/internal/search"
	"github.com/riptide-project/riptide/internal/spider"
)

var (
	deepSearchLimit int
	deepSearchCrawl bool
)

func deepSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deepsearch [query...]",
		Short: "Search the web and optionally crawl each result",
		Long: `Resolve a query through the configured search backend, then (with
--crawl) run each result through the spider with query-aware scoring.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runDeepSearch,
	}
	cmd.Flags().IntVarP(&deepSearchLimit, "limit", "l", 10, "maximum search results")
	cmd.Flags().BoolVar(&deepSearchCrawl, "crawl", false, "crawl each search result")
	return cmd
}

func runDeepSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)
	query := strings.Join(args, " ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider := search.NewProvider(cfg.API)
	hits, err := provider.Search(ctx, query, deepSearchLimit)
	if err != nil {
		return fmt.Errorf("search %q: %w", query, err)
	}

	enc := json.NewEncoder(os.Stdout)
	for i, hit := range hits {
		if err := enc.Encode(map[string]any{
			"rank": i + 1, "url": hit.URL, "title": hit.Title, "snippet": hit.Snippet,
		}); err != nil {
			return err
		}
	}

	if !deepSearchCrawl || len(hits) == 0 {
		return nil
	}

	gov, err := governor.New(cfg.Governor, logger)
	if err != nil {
		return fmt.Errorf("start governor: %w", err)
	}
	defer gov.Close()

	s := spider.New(cfg, gov, logger, query)
	defer s.Close()
	for _, hit := range hits {
		if err := s.Seed(ctx, hit.URL); err != nil {
			logger.Warn("skipping seed", "url", hit.URL, "error", err)
		}
	}

	go func() {
		for result := range s.Results() {
			_ = enc.Encode(resultLine(result))
		}
	}()

	reason := s.Run(ctx)
	logger.Info("deep search crawl finished", "reason", reason, "query", query)
	return nil
}
