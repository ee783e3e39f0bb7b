package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/riptide-project/riptide/internal/config"
	"github.com/riptide-project/riptide/internal/extraction"
	"github.com/riptide-project/riptide/internal/fetch"
	"github.com/riptide-project/riptide/internal/governor"
	"github.com/riptide-project/riptide/internal/observability"
	"github.com/riptide-project/riptide/internal/search"
	"github.com/riptide-project/riptide/internal/session"
	"github.com/riptide-project/riptide/internal/types"
	"github.com/riptide-project/riptide/internal/urlutil"
)

// Pinger reports whether a collaborator (Redis, in practice) is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the public HTTP surface. It owns no crawl state beyond the
// response cache; everything else is a passed-in collaborator.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	gov         *governor.Governor // nil disables headless escalation
	fetcher     *fetch.Engine
	extractor   *extraction.Engine
	searcher    search.Provider
	metrics     *observability.Metrics
	authLimiter *governor.AuthRateLimiter
	cache       *responseCache
	redis       Pinger

	mux       *http.ServeMux
	startedAt time.Time

	// allowPrivateTargets bypasses the SSRF guard; settable only from
	// within the package, for tests that crawl a loopback fixture server.
	allowPrivateTargets bool
}

// New wires the server from its collaborators. gov and searcher may be
// nil: a nil governor disables the headless gate path, a nil searcher
// makes /deepsearch fail with an explicit error.
func New(cfg *config.Config, gov *governor.Governor, searcher search.Provider, metrics *observability.Metrics, logger *slog.Logger) *Server {
	sessions := session.NewManager(logger, 30*time.Second)
	s := &Server{
		cfg:       cfg,
		logger:    logger.With("component", "api"),
		gov:       gov,
		fetcher:   fetch.NewEngine(sessions, 20<<20),
		extractor: newExtractionEngine(cfg),
		searcher:  searcher,
		metrics:   metrics,
		authLimiter: governor.NewAuthRateLimiter(
			cfg.API.AuthRateLimitWindow, cfg.API.MaxAuthAttemptsPerMinute),
		cache:     newResponseCache(),
		mux:       http.NewServeMux(),
		startedAt: time.Now(),
	}
	s.registerRoutes()
	return s
}

func newExtractionEngine(cfg *config.Config) *extraction.Engine {
	return &extraction.Engine{
		Strategies: []extraction.Strategy{
			extraction.HTMLMetaStrategy{ShortCircuit: cfg.Extraction.JSONLDShortCircuit},
			extraction.XPathStrategy{},
		},
		Mode:               extraction.ModeChain,
		SuccessThreshold:   cfg.Extraction.SuccessConfidenceThreshold,
		PerStrategyTimeout: cfg.Extraction.PerStrategyTimeout,
		GlobalTimeout:      cfg.Extraction.GlobalTimeout,
		MinConfidence:      cfg.Extraction.MinConfidence,
	}
}

// SetRedisPinger wires the optional Redis dependency probe for /health.
func (s *Server) SetRedisPinger(p Pinger) { s.redis = p }

// Handler returns the fully-wrapped handler chain: request metrics
// outside, auth inside, routes at the core.
func (s *Server) Handler() http.Handler {
	return s.withMetrics(s.withAuth(s.mux))
}

// Start blocks serving the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.API.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server starting", "addr", s.cfg.API.ListenAddr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/health/detailed", s.handleHealth)
	s.mux.HandleFunc("POST /crawl", s.handleCrawl)
	s.mux.HandleFunc("POST /deepsearch", s.handleDeepSearch)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
		s.mux.Handle("GET /api/v1/metrics", s.metrics)
	}
	s.mux.HandleFunc("/", s.handleNotFound)
}

// withMetrics counts requests and tracks durations for /health's metrics
// block.
func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		s.metrics.ActiveConnections.Add(1)
		defer s.metrics.ActiveConnections.Add(-1)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.metrics.ObserveRequest(time.Since(start), sw.status)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	deps := healthDependencies{
		Extractor:  "healthy",
		HTTPClient: "healthy",
	}
	if s.redis != nil {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		if err := s.redis.Ping(pingCtx); err != nil {
			deps.Redis = "unhealthy"
		} else {
			deps.Redis = "healthy"
		}
		cancel()
	} else {
		deps.Redis = "unconfigured"
	}
	if s.gov != nil {
		deps.HeadlessService = "healthy"
	}

	resp := healthResponse{
		Status:       "healthy",
		Version:      config.Version,
		Timestamp:    time.Now().UTC(),
		Uptime:       time.Since(s.startedAt).Seconds(),
		Dependencies: deps,
	}
	if s.metrics != nil {
		resp.Metrics = healthMetrics{
			MemoryUsageBytes:  s.metrics.MemoryUsageBytes(),
			ActiveConnections: s.metrics.ActiveConnections.Load(),
			TotalRequests:     s.metrics.HTTPRequestsTotal.Load(),
			RequestsPerSecond: s.metrics.RequestsPerSecond(),
			AvgResponseTimeMs: s.metrics.AvgResponseTimeMs(),
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var body crawlRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "validation_error", "request body is not valid JSON")
		return
	}
	if len(body.URLs) == 0 {
		s.writeError(w, http.StatusBadRequest, "validation_error", "urls must be a non-empty array")
		return
	}
	for _, raw := range body.URLs {
		if s.allowPrivateTargets {
			continue
		}
		if urlutil.IsPrivateOrLocalhost(raw) {
			s.writeError(w, http.StatusBadRequest, "invalid_url",
				fmt.Sprintf("URL %q targets a private/localhost address", raw))
			return
		}
		if err := config.ValidateURL(raw); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid_url", fmt.Sprintf("invalid URL %q: %v", raw, err))
			return
		}
	}

	start := time.Now()
	results := make([]crawlResultDTO, len(body.URLs))

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(s.cfg.Extraction.MaxConcurrent)
	for i, raw := range body.URLs {
		i, raw := i, raw
		g.Go(func() error {
			results[i] = s.crawlOne(ctx, raw)
			return nil
		})
	}
	_ = g.Wait()

	resp := crawlResponse{
		TotalURLs: len(body.URLs),
		Results:   results,
	}
	var totalMs int64
	for _, res := range results {
		totalMs += res.ProcessingTimeMs
		if res.Error == "" {
			resp.Successful++
		} else {
			resp.Failed++
		}
		if res.FromCache {
			resp.FromCache++
		}
		switch res.GateDecision {
		case "raw":
			resp.Statistics.GateDecisions.Raw++
		case "probes_first":
			resp.Statistics.GateDecisions.ProbesFirst++
		case "headless":
			resp.Statistics.GateDecisions.Headless++
		case "cached":
			resp.Statistics.GateDecisions.Cached++
		}
	}
	resp.Statistics.TotalProcessingTimeMs = time.Since(start).Milliseconds()
	resp.Statistics.AvgProcessingTimeMs = float64(totalMs) / float64(len(results))
	if resp.TotalURLs > 0 {
		resp.Statistics.CacheHitRate = float64(resp.FromCache) / float64(resp.TotalURLs)
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// crawlOne runs the full gate/fetch/extract pipeline for a single URL.
// Failures are reported in the per-result error field; the batch response
// is still a 200.
func (s *Server) crawlOne(ctx context.Context, raw string) crawlResultDTO {
	start := time.Now()
	key := cacheKey(raw)

	if cached, ok := s.cache.get(key); ok {
		cached.FromCache = true
		cached.GateDecision = "cached"
		cached.ProcessingTimeMs = time.Since(start).Milliseconds()
		if s.metrics != nil {
			s.metrics.RecordGateDecision("cached")
		}
		return cached
	}

	out := crawlResultDTO{URL: raw, CacheKey: key}

	req, err := types.NewCrawlRequest(raw)
	if err != nil {
		out.Error = err.Error()
		out.GateDecision = "raw"
		out.ProcessingTimeMs = time.Since(start).Milliseconds()
		return out
	}

	decision, fetched, err := s.gatedFetch(ctx, req)
	out.GateDecision = decision
	if s.metrics != nil {
		s.metrics.RecordGateDecision(decision)
	}
	if err != nil {
		out.Error = err.Error()
		out.ProcessingTimeMs = time.Since(start).Milliseconds()
		if s.metrics != nil {
			s.metrics.PagesFailed.Add(1)
		}
		return out
	}
	out.Status = fetched.StatusCode

	report := s.extractor.Run(ctx, string(fetched.Body), raw)
	if report.Result != nil {
		out.QualityScore = report.Result.Quality
		out.Document = &documentDTO{
			Title:    report.Result.Content.Title,
			Content:  report.Result.Content.Content,
			Summary:  report.Result.Content.Summary,
			URL:      raw,
			Metadata: report.Result.Metadata,
		}
	} else {
		out.Error = "extraction produced no result"
	}
	out.ProcessingTimeMs = time.Since(start).Milliseconds()

	if s.metrics != nil {
		if out.Error == "" {
			s.metrics.PagesCrawled.Add(1)
			s.metrics.BytesFetched.Add(int64(len(fetched.Body)))
		} else {
			s.metrics.PagesFailed.Add(1)
		}
	}
	if out.Error == "" {
		s.cache.put(key, out)
	}
	return out
}

func (s *Server) handleDeepSearch(w http.ResponseWriter, r *http.Request) {
	var body deepSearchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "validation_error", "request body is not valid JSON")
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "validation_error", "query must be a non-empty string")
		return
	}
	limit := body.Limit
	if limit <= 0 {
		limit = 10
	}

	start := time.Now()
	if s.searcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "search_unavailable", "no search backend configured")
		return
	}
	hits, err := s.searcher.Search(r.Context(), body.Query, limit)
	if err != nil {
		if errors.Is(err, search.ErrSearchDisabled) {
			s.writeError(w, http.StatusServiceUnavailable, "search_unavailable", "search backend disabled")
			return
		}
		s.writeError(w, http.StatusBadGateway, "search_error", err.Error())
		return
	}

	resp := deepSearchResponse{
		Query:     body.Query,
		URLsFound: len(hits),
		Status:    "completed",
	}

	type ranked struct {
		idx int
		dto deepSearchResultDTO
	}
	out := make([]ranked, len(hits))

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(s.cfg.Extraction.MaxConcurrent)
	for i, hit := range hits {
		i, hit := i, hit
		g.Go(func() error {
			dto := deepSearchResultDTO{
				URL:           hit.URL,
				Rank:          i + 1,
				SearchTitle:   hit.Title,
				SearchSnippet: hit.Snippet,
			}
			if body.IncludeContent && !urlutil.IsPrivateOrLocalhost(hit.URL) {
				res := s.crawlOne(ctx, hit.URL)
				dto.CrawlResult = &res
				if res.Document != nil {
					dto.Content = res.Document.Content
				}
			}
			out[i] = ranked{idx: i, dto: dto}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(out, func(a, b int) bool { return out[a].idx < out[b].idx })
	for _, rk := range out {
		resp.Results = append(resp.Results, rk.dto)
		if rk.dto.CrawlResult != nil {
			resp.URLsCrawled++
		}
	}
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, http.StatusNotFound, "not_found",
		fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, errType, message string) {
	s.writeJSON(w, status, errorResponse{Error: apiError{
		Type:      errType,
		Message:   message,
		Retryable: status == http.StatusTooManyRequests || status >= 500,
		Status:    status,
	}})
}
