// Package riptide provides a public SDK for embedding RipTide as a
// library.
//
// Example usage:
//
//	client, err := riptide.NewClient(
//	    riptide.WithMaxPages(200),
//	    riptide.WithQuery("machine learning"),
//	)
//	if err != nil { ... }
//	defer client.Close()
//
//	results, reason, err := client.Crawl(ctx, "https://example.com")
package riptide

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/riptide-project/riptide/internal/config"
	"github.com/riptide-project/riptide/internal/extraction"
	"github.com/riptide-project/riptide/internal/governor"
	"github.com/riptide-project/riptide/internal/spider"
	"github.com/riptide-project/riptide/internal/types"
)

// Document is one extracted page, the SDK's stable result shape.
type Document struct {
	URL            string
	Depth          int
	Status         int
	Title          string
	Content        string
	Success        bool
	ContentSize    int64
	ExtractedLinks int
	Error          error
}

// Option mutates the client configuration.
type Option func(*config.Config, *clientOpts)

type clientOpts struct {
	query  string
	logger *slog.Logger
}

// WithMaxPages caps the global page budget.
func WithMaxPages(n int64) Option {
	return func(cfg *config.Config, _ *clientOpts) { cfg.Budget.MaxPages = n }
}

// WithMaxDepth caps crawl depth.
func WithMaxDepth(d int) Option {
	return func(cfg *config.Config, _ *clientOpts) { cfg.Budget.MaxDepth = d }
}

// WithConcurrency sets the global concurrent-fetch bound.
func WithConcurrency(n int) Option {
	return func(cfg *config.Config, _ *clientOpts) { cfg.Spider.MaxConcurrentGlobal = n }
}

// WithQuery enables query-aware frontier scoring for the given query.
func WithQuery(query string) Option {
	return func(_ *config.Config, o *clientOpts) { o.query = query }
}

// WithLogger replaces the default stderr logger.
func WithLogger(logger *slog.Logger) Option {
	return func(_ *config.Config, o *clientOpts) { o.logger = logger }
}

// WithoutRobots disables robots.txt enforcement. Intended for crawling
// infrastructure you own.
func WithoutRobots() Option {
	return func(cfg *config.Config, _ *clientOpts) { cfg.Spider.RespectRobotsTxt = false }
}

// Client is the high-level API for using RipTide as a library.
type Client struct {
	cfg    *config.Config
	gov    *governor.Governor
	logger *slog.Logger
	query  string
}

// NewClient builds a Client with default configuration modified by opts.
func NewClient(opts ...Option) (*Client, error) {
	cfg := config.DefaultConfig()
	// The SDK drives the spider directly; the deep-search flow (and its
	// backend credential requirement) is not part of this surface.
	cfg.API.SearchBackend = "none"
	o := &clientOpts{}
	for _, opt := range opts {
		opt(cfg, o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	gov, err := governor.New(cfg.Governor, o.logger)
	if err != nil {
		return nil, fmt.Errorf("riptide: start governor: %w", err)
	}
	return &Client{cfg: cfg, gov: gov, logger: o.logger, query: o.query}, nil
}

// Crawl runs the spider over the given seeds until a stop condition fires,
// returning all page documents and the stop reason.
func (c *Client) Crawl(ctx context.Context, seeds ...string) ([]Document, string, error) {
	s := spider.New(c.cfg, c.gov, c.logger, c.query)
	defer s.Close()

	for _, seed := range seeds {
		if err := s.Seed(ctx, seed); err != nil {
			return nil, "", err
		}
	}

	var docs []Document
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range s.Results() {
			docs = append(docs, toDocument(r))
		}
	}()

	reason := s.Run(ctx)
	<-done
	return docs, reason, nil
}

// Extract runs the extraction pipeline over already-fetched HTML without
// crawling.
func (c *Client) Extract(ctx context.Context, html, url string) (Document, error) {
	engine := &extraction.Engine{
		Strategies: []extraction.Strategy{
			extraction.HTMLMetaStrategy{ShortCircuit: c.cfg.Extraction.JSONLDShortCircuit},
			extraction.XPathStrategy{},
		},
		Mode:               extraction.ModeChain,
		SuccessThreshold:   c.cfg.Extraction.SuccessConfidenceThreshold,
		PerStrategyTimeout: c.cfg.Extraction.PerStrategyTimeout,
		GlobalTimeout:      c.cfg.Extraction.GlobalTimeout,
	}
	report := engine.Run(ctx, html, url)
	if report.Result == nil {
		return Document{URL: url}, fmt.Errorf("riptide: extraction produced no result for %s", url)
	}
	return Document{
		URL:     url,
		Title:   report.Result.Content.Title,
		Content: report.Result.Content.Content,
		Success: true,
	}, nil
}

// Close releases pooled resources.
func (c *Client) Close() {
	c.gov.Close()
}

func toDocument(r *types.CrawlResult) Document {
	doc := Document{
		URL:            r.Request.URL.String(),
		Depth:          r.Request.Depth,
		Status:         r.Status,
		Success:        r.Success,
		ContentSize:    r.ContentSize,
		ExtractedLinks: len(r.ExtractedURLs),
		Error:          r.Err,
	}
	if r.TextContent != nil {
		doc.Content = *r.TextContent
	}
	return doc
}
