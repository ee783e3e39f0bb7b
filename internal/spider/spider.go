// Package spider wires the frontier, URL utilities, budget manager,
// robots manager, session manager, sitemap bootstrap, adaptive stop
// engine, query-aware scorer, resource governor, and extraction pipeline
// into the crawl loop: seed URLs -> frontier -> fetcher -> extraction
// pipeline -> scorer -> frontier. The resource governor is consulted only
// for its memory reading (the sustained-memory-pressure stop); page
// fetches do not pass through its rate limiter or pools.
package spider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riptide-project/riptide/internal/adaptivestop"
	"github.com/riptide-project/riptide/internal/budget"
	"github.com/riptide-project/riptide/internal/config"
	"github.com/riptide-project/riptide/internal/extraction"
	"github.com/riptide-project/riptide/internal/fetch"
	"github.com/riptide-project/riptide/internal/frontier"
	"github.com/riptide-project/riptide/internal/governor"
	"github.com/riptide-project/riptide/internal/robots"
	"github.com/riptide-project/riptide/internal/scorer"
	"github.com/riptide-project/riptide/internal/session"
	"github.com/riptide-project/riptide/internal/sitemap"
	"github.com/riptide-project/riptide/internal/types"
	"github.com/riptide-project/riptide/internal/urlutil"
)

// State mirrors the lifecycle the teacher's engine state machine used,
// generalized to the spider's own idle/running/paused/stopping/stopped
// transitions.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Stats is a point-in-time snapshot of crawl progress.
type Stats struct {
	State        string
	PagesCrawled int64
	PagesFailed  int64
	FrontierSize int
	BytesFetched int64
}

// Spider drives the deep-crawl loop: host-fair dispatch via the Frontier
// (fetches are not admitted through the Governor), dedup/filter
// via urlutil, politeness via the Robots manager, and extraction via the
// Composition Engine, stopping on adaptive-stop, budget exhaustion,
// memory pressure, or an explicit Stop() call.
type Spider struct {
	cfg    *config.Config
	logger *slog.Logger

	frontier   *frontier.Frontier
	budget     *budget.Manager
	dedup      *urlutil.Deduplicator
	filter     *urlutil.Filter
	robots     *robots.Manager
	sessions   *session.Manager
	fetcher    *fetch.Engine
	gov        *governor.Governor
	adaptive   *adaptivestop.Engine
	extraction *extraction.Engine
	scorer     *scorer.QueryAwareScorer // nil unless query-aware mode is in use

	state      atomic.Int32
	stopReason atomic.Value // string

	hostSemMu sync.RWMutex
	hostSems  map[string]chan struct{}
	globalSem chan struct{}

	pagesCrawled atomic.Int64
	pagesFailed  atomic.Int64
	bytesFetched atomic.Int64

	memoryPressureSince atomic.Value // time.Time

	results chan *types.CrawlResult
}

// New builds a Spider from its already-constructed collaborators; query
// may be empty, in which case query-aware scoring is disabled regardless
// of cfg.Scorer.Enabled.
func New(cfg *config.Config, gov *governor.Governor, logger *slog.Logger, query string) *Spider {
	dedup := urlutil.NewDeduplicator(cfg.URLUtil)
	filter := urlutil.NewFilter(cfg.URLUtil)
	sessions := session.NewManager(logger, 30*time.Second)

	s := &Spider{
		cfg:        cfg,
		logger:     logger.With("component", "spider"),
		frontier:   frontier.New(cfg.Spider.HostMinInterval, dedup),
		budget:     budget.NewManager(cfg.Budget),
		dedup:      dedup,
		filter:     filter,
		robots:     robots.NewManager(cfg.Spider.RespectRobotsTxt, "RiptideBot"),
		sessions:   sessions,
		fetcher:    fetch.NewEngine(sessions, 20<<20),
		gov:        gov,
		adaptive:   adaptivestop.NewEngine(cfg.AdaptiveStop),
		extraction: defaultExtractionEngine(cfg),
		hostSems:   make(map[string]chan struct{}),
		globalSem:  make(chan struct{}, cfg.Spider.MaxConcurrentGlobal),
		results:    make(chan *types.CrawlResult, 256),
	}
	if cfg.Scorer.Enabled && query != "" {
		s.scorer = scorer.New(query, cfg.Scorer)
	}
	s.state.Store(int32(StateIdle))
	return s
}

func defaultExtractionEngine(cfg *config.Config) *extraction.Engine {
	return &extraction.Engine{
		Strategies: []extraction.Strategy{
			extraction.HTMLMetaStrategy{ShortCircuit: cfg.Extraction.JSONLDShortCircuit},
		},
		Mode:               extraction.ModeChain,
		SuccessThreshold:   cfg.Extraction.SuccessConfidenceThreshold,
		PerStrategyTimeout: cfg.Extraction.PerStrategyTimeout,
		GlobalTimeout:      cfg.Extraction.GlobalTimeout,
		MinConfidence:      cfg.Extraction.MinConfidence,
	}
}

// Results exposes the channel of per-page crawl results for a consumer
// (e.g. the Background AI Processor) to drain asynchronously.
func (s *Spider) Results() <-chan *types.CrawlResult { return s.results }

// Seed enqueues a seed URL at High priority, then bootstraps from each
// sitemap its robots.txt declares (if any), whose URLs enter at Normal
// priority.
func (s *Spider) Seed(ctx context.Context, rawURL string) error {
	req, err := types.NewCrawlRequest(rawURL)
	if err != nil {
		return fmt.Errorf("invalid seed URL: %w", err)
	}
	req.Priority = types.PriorityHigh
	s.frontier.Add(req)

	for _, sm := range s.robots.GetSitemaps(rawURL) {
		s.bootstrapSitemap(ctx, sm)
	}
	return nil
}

func (s *Spider) bootstrapSitemap(ctx context.Context, sitemapURL string) {
	f := sitemap.NewFetcher(s.sessions.ClientFor(""), 2)
	entries, err := f.FetchAll(ctx, sitemapURL)
	if err != nil {
		s.logger.Debug("sitemap bootstrap failed", "url", sitemapURL, "error", err)
		return
	}
	for _, e := range entries {
		req, err := types.NewCrawlRequest(e.Loc)
		if err != nil {
			continue
		}
		req.Priority = types.PriorityNormal
		s.frontier.Add(req)
	}
}

// Stop requests a graceful halt: the main loop exits after the current
// request completes.
func (s *Spider) Stop() {
	s.state.Store(int32(StateStopping))
	s.stopReason.Store("stopped by caller")
}

// State returns the current lifecycle state.
func (s *Spider) State() State { return State(s.state.Load()) }

// Stats returns a snapshot of progress counters.
func (s *Spider) Stats() Stats {
	return Stats{
		State:        s.State().String(),
		PagesCrawled: s.pagesCrawled.Load(),
		PagesFailed:  s.pagesFailed.Load(),
		FrontierSize: s.frontier.Size(),
		BytesFetched: s.bytesFetched.Load(),
	}
}

// Run drives the crawl loop to completion (frontier exhaustion, budget
// exhaustion, adaptive stop, sustained memory pressure, or Stop()),
// returning the human-readable stop reason.
func (s *Spider) Run(ctx context.Context) string {
	s.state.Store(int32(StateRunning))
	defer s.state.Store(int32(StateStopped))
	defer close(s.results)

	for {
		if reason, stop := s.shouldStop(); stop {
			return reason
		}

		req := s.frontier.Next()
		if req == nil {
			if s.frontier.IsEmpty() {
				return "frontier exhausted"
			}
			select {
			case <-time.After(s.cfg.Spider.IdlePollInterval):
			case <-ctx.Done():
				return "context cancelled"
			}
			continue
		}

		if !s.budget.CanMakeRequest(req.Host(), req.Depth) {
			s.frontier.RecordResult(req, false)
			continue
		}

		select {
		case s.globalSem <- struct{}{}:
		case <-ctx.Done():
			return "context cancelled"
		}
		hostSem := s.hostSemaphore(req.Host())
		select {
		case hostSem <- struct{}{}:
		case <-ctx.Done():
			<-s.globalSem
			return "context cancelled"
		}

		s.budget.StartRequest(req.Host(), req.Depth)
		result := s.processOne(ctx, req)

		<-hostSem
		<-s.globalSem

		s.frontier.RecordResult(req, result.Success)
		s.budget.CompleteRequest(req.Host(), result.ContentSize, result.Success)

		select {
		case s.results <- result:
		default:
		}

		if result.Success {
			s.pagesCrawled.Add(1)
			s.bytesFetched.Add(result.ContentSize)
		} else {
			s.pagesFailed.Add(1)
		}
	}
}

// hostSemaphore returns (creating if needed) the per-host concurrency
// semaphore, guarded by a double-checked RW lock.
func (s *Spider) hostSemaphore(host string) chan struct{} {
	s.hostSemMu.RLock()
	sem, ok := s.hostSems[host]
	s.hostSemMu.RUnlock()
	if ok {
		return sem
	}

	s.hostSemMu.Lock()
	defer s.hostSemMu.Unlock()
	if sem, ok := s.hostSems[host]; ok {
		return sem
	}
	sem = make(chan struct{}, s.cfg.Spider.MaxConcurrentPerHost)
	s.hostSems[host] = sem
	return sem
}

func (s *Spider) shouldStop() (string, bool) {
	if State(s.state.Load()) == StateStopping {
		if v := s.stopReason.Load(); v != nil {
			return v.(string), true
		}
		return "stopped", true
	}
	if s.budget.Exhausted() {
		return "budget exhausted", true
	}
	if decision := s.adaptive.ShouldStop(); decision.Stop {
		return decision.Reason, true
	}
	if s.scorer != nil {
		if stop, reason := s.scorer.ShouldStop(); stop {
			return reason, true
		}
	}
	if since, ok := s.memoryPressureSince.Load().(time.Time); ok && !since.IsZero() {
		if s.gov.MemoryMB() < int64(float64(s.cfg.Governor.GlobalMemoryLimitMB)*s.cfg.Governor.MemoryThresholdRatio) {
			s.memoryPressureSince.Store(time.Time{})
		} else if time.Since(since) > s.cfg.Spider.MemoryPressureGrace {
			return "sustained memory pressure", true
		}
	} else if s.gov.MemoryMB() >= int64(float64(s.cfg.Governor.GlobalMemoryLimitMB)*s.cfg.Governor.MemoryThresholdRatio) {
		s.memoryPressureSince.Store(time.Now())
	}
	return "", false
}

// processOne fetches and extracts a single request, enqueues its
// discovered child URLs, and records the outcome for the adaptive stop
// engine and (when active) the query-aware scorer.
func (s *Spider) processOne(ctx context.Context, req *types.CrawlRequest) *types.CrawlResult {
	start := time.Now()
	result := &types.CrawlResult{Request: req}

	if !s.robots.IsAllowed(req.URL.String()) {
		result.Success = false
		result.Err = fmt.Errorf("disallowed by robots.txt")
		result.ProcessingTime = time.Since(start)
		return result
	}

	fetchResult, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		result.Success = false
		result.Err = err
		result.ProcessingTime = time.Since(start)
		return result
	}

	result.Status = fetchResult.StatusCode
	result.ContentSize = int64(len(fetchResult.Body))

	report := s.extraction.Run(ctx, string(fetchResult.Body), req.URL.String())
	if report.Result != nil {
		text := report.Result.Content.Content
		result.TextContent = &text
		result.Success = true

		extracted := extractLinks(report.Result, req.URL.String())
		result.ExtractedURLs = extracted

		links := urlsToStrings(extracted)
		allowed := urlutil.FilterURLs(links, s.dedup, s.filter, s.cfg.URLUtil)
		for _, link := range allowed {
			child, err := req.Child(link, s.childPriority(link, req.Depth+1, text))
			if err != nil {
				continue
			}
			if s.budget.CanMakeRequest(child.Host(), child.Depth) {
				s.frontier.Add(child)
			}
		}

		uniqueChars := result.UniqueTextChars()
		quality := adaptivestop.CalculateQualityScore(text, len(splitWords(text)), countSentences(text), len(extracted), false)
		s.adaptive.RecordPage(uniqueChars, len(extracted), quality)
		if s.scorer != nil {
			s.scorer.RecordDocument(req.URL, text)
		}
	} else {
		result.Success = fetchResult.StatusCode >= 200 && fetchResult.StatusCode < 400
	}

	result.ProcessingTime = time.Since(start)
	return result
}

func (s *Spider) childPriority(rawURL string, depth int, parentText string) types.Priority {
	if s.scorer == nil {
		return types.PriorityNormal
	}
	u, err := parseURL(rawURL)
	if err != nil {
		return types.PriorityNormal
	}
	score := s.scorer.Score(u, depth, parentText)
	switch scorer.PriorityBoost(score) {
	case 2:
		return types.PriorityHigh
	case 1:
		return types.PriorityNormal
	default:
		return types.PriorityLow
	}
}

// Close releases all spider-owned resources that outlive a single Run.
func (s *Spider) Close() {
	s.frontier.Close()
}
