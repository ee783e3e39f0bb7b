package extraction

import (
	"context"
	"sync"
	"time"
)

// Mode selects how the Engine composes its strategies.
type Mode int

const (
	// ModeChain tries strategies in order, returning the first result whose
	// confidence meets SuccessThreshold.
	ModeChain Mode = iota
	// ModeParallel runs all strategies and merges their results.
	ModeParallel
	// ModeFallback tries the primary strategy, then the secondary on failure
	// or low confidence.
	ModeFallback
	// ModeBest runs all strategies and keeps the single highest-confidence
	// result.
	ModeBest
)

func (m Mode) String() string {
	switch m {
	case ModeParallel:
		return "parallel"
	case ModeFallback:
		return "fallback"
	case ModeBest:
		return "best"
	default:
		return "chain"
	}
}

// Report describes one composition run; it is produced even on partial
// failure, as long as at least one strategy succeeded.
type Report struct {
	Mode                Mode
	StrategiesExecuted  int
	StrategiesSucceeded int
	TotalTime           time.Duration
	PerStrategyTime     map[string]time.Duration
	Result              *StrategyResult
}

// Engine composes Strategies under Mode, with a timeout per strategy call
// and one for the whole composition.
type Engine struct {
	Strategies         []Strategy
	Mode               Mode
	SuccessThreshold   float64
	PerStrategyTimeout time.Duration
	GlobalTimeout      time.Duration
	Merger             Merger
	MinConfidence      float64
}

type strategyOutcome struct {
	name    string
	result  *StrategyResult
	err     error
	elapsed time.Duration
}

func (e *Engine) runOne(ctx context.Context, s Strategy, html, url string) strategyOutcome {
	start := time.Now()
	sctx := ctx
	var cancel context.CancelFunc
	if e.PerStrategyTimeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, e.PerStrategyTimeout)
		defer cancel()
	}
	result, err := s.Extract(sctx, html, url)
	return strategyOutcome{name: s.Name(), result: result, err: err, elapsed: time.Since(start)}
}

// Run executes the composition and returns a Report.
func (e *Engine) Run(ctx context.Context, html, url string) *Report {
	start := time.Now()
	var cancel context.CancelFunc
	if e.GlobalTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.GlobalTimeout)
		defer cancel()
	}

	report := &Report{Mode: e.Mode, PerStrategyTime: make(map[string]time.Duration)}

	switch e.Mode {
	case ModeChain:
		e.runChain(ctx, html, url, report)
	case ModeFallback:
		e.runFallback(ctx, html, url, report)
	case ModeParallel:
		e.runParallel(ctx, html, url, report)
	case ModeBest:
		e.runBest(ctx, html, url, report)
	}

	report.TotalTime = time.Since(start)
	return report
}

func (e *Engine) runChain(ctx context.Context, html, url string, report *Report) {
	threshold := e.SuccessThreshold
	if threshold == 0 {
		threshold = 0.6
	}
	for _, s := range e.Strategies {
		report.StrategiesExecuted++
		out := e.runOne(ctx, s, html, url)
		report.PerStrategyTime[out.name] = out.elapsed
		if out.err != nil || out.result == nil {
			continue
		}
		// In chain mode a strategy "succeeds" only by clearing the
		// confidence threshold; a low-confidence result is kept as a
		// best-effort fallback but not counted.
		if out.result.Content.ExtractionConfidence >= threshold {
			report.StrategiesSucceeded++
			report.Result = out.result
			return
		}
		if report.Result == nil || out.result.Content.ExtractionConfidence > report.Result.Content.ExtractionConfidence {
			report.Result = out.result
		}
	}
}

func (e *Engine) runFallback(ctx context.Context, html, url string, report *Report) {
	threshold := e.SuccessThreshold
	if threshold == 0 {
		threshold = 0.6
	}
	for _, s := range e.Strategies {
		report.StrategiesExecuted++
		out := e.runOne(ctx, s, html, url)
		report.PerStrategyTime[out.name] = out.elapsed
		if out.err == nil && out.result != nil {
			report.StrategiesSucceeded++
			if out.result.Content.ExtractionConfidence >= threshold {
				report.Result = out.result
				return
			}
			if report.Result == nil {
				report.Result = out.result
			}
		}
	}
}

func (e *Engine) runParallel(ctx context.Context, html, url string, report *Report) {
	outcomes := e.runAll(ctx, html, url, report)
	var results []*StrategyResult
	for _, o := range outcomes {
		if o.err == nil && o.result != nil {
			results = append(results, o.result)
		}
	}
	merger := e.Merger
	if merger == nil {
		merger = UnionMerger{}
	}
	report.Result = merger.Merge(results, e.MinConfidence)
}

func (e *Engine) runBest(ctx context.Context, html, url string, report *Report) {
	outcomes := e.runAll(ctx, html, url, report)
	var best *StrategyResult
	for _, o := range outcomes {
		if o.err != nil || o.result == nil {
			continue
		}
		if best == nil || o.result.Content.ExtractionConfidence > best.Content.ExtractionConfidence {
			best = o.result
		}
	}
	report.Result = best
}

func (e *Engine) runAll(ctx context.Context, html, url string, report *Report) []strategyOutcome {
	outcomes := make([]strategyOutcome, len(e.Strategies))
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i, s := range e.Strategies {
		wg.Add(1)
		go func(i int, s Strategy) {
			defer wg.Done()
			out := e.runOne(ctx, s, html, url)
			mu.Lock()
			outcomes[i] = out
			report.StrategiesExecuted++
			report.PerStrategyTime[out.name] = out.elapsed
			if out.err == nil && out.result != nil {
				report.StrategiesSucceeded++
			}
			mu.Unlock()
		}(i, s)
	}
	wg.Wait()
	return outcomes
}
