// Package aiprocessor implements the Background AI Processor: a bounded
// worker pool that drains a priority queue of content-enhancement tasks
// against an LLM provider, publishing lifecycle events and producing
// AiResults for the caller to collect.
package aiprocessor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/riptide-project/riptide/internal/config"
	"github.com/riptide-project/riptide/internal/retry"
	"github.com/riptide-project/riptide/internal/types"
)

// AiResult is the terminal outcome of one AiTask.
type AiResult struct {
	TaskID   string
	URL      string
	Output   string
	Err      error
	Attempts int
	Duration time.Duration
}

// Generator is the minimal client surface a Processor drives; Registry,
// FailoverManager, and a bare httpProvider all satisfy it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Processor owns the queue, the worker goroutines, and result delivery.
type Processor struct {
	cfg     config.AIProcessorConfig
	queue   *Queue
	bus     Bus
	client  Generator
	limiter *rateLimiter
	retryer *retry.Executor
	logger  *slog.Logger

	results chan AiResult

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	running sync.Once
}

// New builds a Processor. Attach a retry.Executor with WithExecutor before
// Start to get smart-retry behavior on LLM calls; without one, each task is
// attempted exactly once.
func New(cfg config.AIProcessorConfig, client Generator, bus Bus, logger *slog.Logger) *Processor {
	if bus == nil {
		bus = NopBus{}
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &Processor{
		cfg:     cfg,
		queue:   NewQueue(queueSize),
		bus:     bus,
		client:  client,
		limiter: newRateLimiter(cfg.RequestsPerSec),
		logger:  logger.With("component", "aiprocessor"),
		results: make(chan AiResult, queueSize),
	}
}

// WithExecutor swaps in a pre-built retry.Executor (e.g. sharing a circuit
// breaker with other components).
func (p *Processor) WithExecutor(e *retry.Executor) *Processor {
	p.retryer = e
	return p
}

// Submit enqueues task, returning false if the queue is at capacity.
func (p *Processor) Submit(task *types.AiTask) bool {
	if !p.cfg.Enabled {
		return false
	}
	ok := p.queue.Push(task)
	if ok {
		p.bus.Publish(Event{Kind: EventQueued, TaskID: task.TaskID, URL: task.URL, Timestamp: time.Now()})
	}
	return ok
}

// Results returns the channel AiResults are delivered on.
func (p *Processor) Results() <-chan AiResult { return p.results }

// Start launches NumWorkers cooperative workers that drain the queue until
// ctx is cancelled or Stop is called.
func (p *Processor) Start(ctx context.Context) {
	p.running.Do(func() {
		workerCtx, cancel := context.WithCancel(ctx)
		p.cancel = cancel
		n := p.cfg.NumWorkers
		if n <= 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			p.wg.Add(1)
			go p.workerLoop(workerCtx, i)
		}
	})
}

// Stop signals all workers to exit and waits for them to drain in-flight
// tasks, then closes the results channel.
func (p *Processor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	close(p.results)
}

func (p *Processor) workerLoop(ctx context.Context, workerID int) {
	defer p.wg.Done()
	for {
		task, ok := p.queue.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-p.queue.Signal():
				continue
			case <-time.After(time.Second):
				continue
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		p.limiter.Wait()
		p.runTask(ctx, task)
	}
}

// runTask executes the dequeue protocol: emit Started, call the LLM with a
// per-task timeout and smart retry, emit Completed or Timeout, and deliver
// an AiResult.
func (p *Processor) runTask(ctx context.Context, task *types.AiTask) {
	start := time.Now()
	p.bus.Publish(Event{Kind: EventStarted, TaskID: task.TaskID, URL: task.URL, Timestamp: start})

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = p.cfg.TaskTimeout
	}
	taskCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var out string
	var attempts []retry.Attempt
	op := func(opCtx context.Context) error {
		var err error
		out, err = p.client.Generate(opCtx, task.Content)
		return err
	}

	var err error
	if p.retryer != nil {
		err = p.retryer.Execute(taskCtx, op, &attempts)
	} else {
		err = op(taskCtx)
	}

	result := AiResult{TaskID: task.TaskID, URL: task.URL, Output: out, Err: err, Attempts: len(attempts) + 1, Duration: time.Since(start)}

	if errors.Is(err, context.DeadlineExceeded) {
		p.bus.Publish(Event{Kind: EventTimeout, TaskID: task.TaskID, URL: task.URL, Timestamp: time.Now()})
		result.Err = types.ErrTimeout
	} else if err != nil {
		p.bus.Publish(Event{Kind: EventCompleted, TaskID: task.TaskID, URL: task.URL, Timestamp: time.Now(), Detail: "error: " + err.Error()})
	} else {
		p.bus.Publish(Event{Kind: EventCompleted, TaskID: task.TaskID, URL: task.URL, Timestamp: time.Now()})
	}

	select {
	case p.results <- result:
	default:
		p.logger.Warn("ai result dropped, results channel full", "task_id", task.TaskID)
	}
}

// QueueLen reports the number of tasks currently queued (for metrics).
func (p *Processor) QueueLen() int { return p.queue.Len() }
