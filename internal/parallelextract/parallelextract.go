// Package parallelextract implements the parallel batch extractor: a
// bounded-concurrency driver over the composition engine, with
// per-document retry/backoff, fail-fast, progress callbacks, and both
// batch and streaming modes.
package parallelextract

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riptide-project/riptide/internal/extraction"
)

// Task is one document submitted to a batch.
type Task struct {
	ID       string
	URL      string
	HTML     string
	Priority int
}

// Result is the outcome of extracting one Task.
type Result struct {
	TaskID   string
	URL      string
	Report   *extraction.Report
	Err      error
	Attempts int
	Duration time.Duration
}

// Progress is delivered to the optional progress callback as the batch runs.
type Progress struct {
	Total         int
	Completed     int
	Succeeded     int
	Failed        int
	InProgress    int
	AvgDurationMs float64
	ETAMs         float64
	ElapsedMs     float64
}

// Config tunes the driver.
type Config struct {
	MaxConcurrent       int
	PerDocumentTimeout  time.Duration
	RetryFailed         bool
	MaxRetries          int
	FailFast            bool
	BackoffMultiplier   float64
	InitialBackoffDelay time.Duration
}

// Extractor is the minimal surface parallelextract needs from the
// Composition Engine: run one document through it.
type Extractor interface {
	Run(ctx context.Context, html, url string) *extraction.Report
}

// Driver runs batches of Tasks through an Extractor under Config.
type Driver struct {
	cfg        Config
	extractor  Extractor
	onProgress func(Progress)
}

func New(cfg Config, extractor Extractor, onProgress func(Progress)) *Driver {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Driver{cfg: cfg, extractor: extractor, onProgress: onProgress}
}

// RunBatch extracts an ordered batch, sorted by Priority DESC before
// dispatch, bounded by MaxConcurrent in-flight. The returned slice is
// sorted by original task ID.
func (d *Driver) RunBatch(ctx context.Context, tasks []Task) []Result {
	sorted := make([]Task, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })

	sem := make(chan struct{}, d.cfg.MaxConcurrent)
	results := make([]Result, len(sorted))

	var failFast int32
	var completed, succeeded, failed, inProgress int64
	var totalDurationNS int64
	start := time.Now()

	var wg sync.WaitGroup
	for i, task := range sorted {
		if d.cfg.FailFast && atomic.LoadInt32(&failFast) == 1 {
			results[i] = Result{TaskID: task.ID, URL: task.URL, Err: context.Canceled}
			continue
		}
		wg.Add(1)
		atomic.AddInt64(&inProgress, 1)
		sem <- struct{}{}
		go func(i int, task Task) {
			defer wg.Done()
			defer func() { <-sem }()

			res := d.runOne(ctx, task)
			results[i] = res

			atomic.AddInt64(&inProgress, -1)
			atomic.AddInt64(&completed, 1)
			atomic.AddInt64(&totalDurationNS, int64(res.Duration))
			if res.Err != nil {
				atomic.AddInt64(&failed, 1)
				if d.cfg.FailFast {
					atomic.StoreInt32(&failFast, 1)
				}
			} else {
				atomic.AddInt64(&succeeded, 1)
			}

			if d.onProgress != nil {
				c := atomic.LoadInt64(&completed)
				avgMs := float64(atomic.LoadInt64(&totalDurationNS)) / float64(c) / float64(time.Millisecond)
				remaining := int64(len(sorted)) - c
				etaMs := avgMs * float64(remaining) / math.Max(1, float64(d.cfg.MaxConcurrent))
				d.onProgress(Progress{
					Total:         len(sorted),
					Completed:     int(c),
					Succeeded:     int(atomic.LoadInt64(&succeeded)),
					Failed:        int(atomic.LoadInt64(&failed)),
					InProgress:    int(atomic.LoadInt64(&inProgress)),
					AvgDurationMs: avgMs,
					ETAMs:         etaMs,
					ElapsedMs:     float64(time.Since(start)) / float64(time.Millisecond),
				})
			}
		}(i, task)
	}
	wg.Wait()

	sort.SliceStable(results, func(i, j int) bool { return results[i].TaskID < results[j].TaskID })
	return results
}

// RunStreaming extracts a batch and sends each Result to the returned
// channel as it completes; makes no ordering guarantee.
func (d *Driver) RunStreaming(ctx context.Context, tasks []Task) <-chan Result {
	out := make(chan Result)
	go func() {
		defer close(out)
		sem := make(chan struct{}, d.cfg.MaxConcurrent)
		var wg sync.WaitGroup
		for _, task := range tasks {
			wg.Add(1)
			sem <- struct{}{}
			go func(task Task) {
				defer wg.Done()
				defer func() { <-sem }()
				out <- d.runOne(ctx, task)
			}(task)
		}
		wg.Wait()
	}()
	return out
}

// runOne attempts task up to MaxRetries+1 times with exponential backoff
// between attempts; a per-attempt timeout counts as a retryable failure.
func (d *Driver) runOne(ctx context.Context, task Task) Result {
	start := time.Now()
	maxAttempts := 1
	if d.cfg.RetryFailed {
		maxAttempts = d.cfg.MaxRetries + 1
	}

	var lastErr error
	var lastReport *extraction.Report
	for attempt := 0; attempt < maxAttempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if d.cfg.PerDocumentTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, d.cfg.PerDocumentTimeout)
		}
		report := d.extractor.Run(attemptCtx, task.HTML, task.URL)
		if cancel != nil {
			cancel()
		}

		if attemptCtx.Err() == context.DeadlineExceeded {
			lastErr = context.DeadlineExceeded
		} else if report == nil || report.Result == nil {
			lastErr = errNoResult
		} else {
			return Result{TaskID: task.ID, URL: task.URL, Report: report, Attempts: attempt + 1, Duration: time.Since(start)}
		}
		lastReport = report

		if attempt < maxAttempts-1 {
			delay := time.Duration(float64(d.cfg.InitialBackoffDelay) * math.Pow(d.cfg.BackoffMultiplier, float64(attempt)))
			delay += time.Duration(rand.Int63n(int64(delay/4) + 1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Result{TaskID: task.ID, URL: task.URL, Err: ctx.Err(), Attempts: attempt + 1, Duration: time.Since(start)}
			}
		}
	}
	return Result{TaskID: task.ID, URL: task.URL, Report: lastReport, Err: lastErr, Attempts: maxAttempts, Duration: time.Since(start)}
}

var errNoResult = &noResultError{}

type noResultError struct{}

func (*noResultError) Error() string { return "extraction produced no result" }
