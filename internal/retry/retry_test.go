package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riptide-project/riptide/internal/config"
	"github.com/riptide-project/riptide/internal/governor"
	"github.com/riptide-project/riptide/internal/types"
)

func testRetryConfig() config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts:    4,
		InitialDelay:   time.Millisecond,
		Multiplier:     2.0,
		MaxDelay:       50 * time.Millisecond,
		JitterFraction: 0,
	}
}

// --- classification ---

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		want      Strategy
		retryable bool
	}{
		{"invalid request", &types.RiptideError{Kind: types.KindInvalidRequest}, 0, false},
		{"circuit open", &types.RiptideError{Kind: types.KindCircuitOpen}, 0, false},
		{"data integrity", &types.RiptideError{Kind: types.KindDataIntegrity}, 0, false},
		{"fatal", &types.RiptideError{Kind: types.KindFatal}, 0, false},
		{"rate limit", &types.RiptideError{Kind: types.KindRateLimit}, StrategyAdaptive, true},
		{"provider", &types.RiptideError{Kind: types.KindProvider}, StrategyFibonacci, true},
		{"network", &types.RiptideError{Kind: types.KindNetwork}, StrategyExponential, true},
		{"timeout", &types.RiptideError{Kind: types.KindTimeout}, StrategyExponential, true},
		{"server 5xx", &types.FetchError{StatusCode: 503, Err: errors.New("x"), Retryable: true}, StrategyFibonacci, true},
		{"non-retryable fetch", &types.FetchError{StatusCode: 404, Err: errors.New("x"), Retryable: false}, 0, false},
		{"plain error", errors.New("something"), StrategyExponential, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, retryable := Classify(tc.err)
			if retryable != tc.retryable {
				t.Fatalf("retryable = %v, want %v", retryable, tc.retryable)
			}
			if retryable && got != tc.want {
				t.Errorf("strategy = %v, want %v", got, tc.want)
			}
		})
	}
}

// --- delay calculation ---

func TestExponentialDelay(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt, want := range []time.Duration{100, 200, 400, 800} {
		got := Delay(StrategyExponential, attempt, base, 2.0, 0, 0)
		if got != want*time.Millisecond {
			t.Errorf("attempt %d: delay = %v, want %v", attempt, got, want*time.Millisecond)
		}
	}
}

func TestLinearDelay(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt, want := range []time.Duration{100, 200, 300, 400} {
		got := Delay(StrategyLinear, attempt, base, 2.0, 0, 0)
		if got != want*time.Millisecond {
			t.Errorf("attempt %d: delay = %v, want %v", attempt, got, want*time.Millisecond)
		}
	}
}

func TestFibonacciDelay(t *testing.T) {
	base := 100 * time.Millisecond
	// fib(1)=1, fib(2)=2, fib(3)=3, fib(4)=5, fib(5)=8
	for attempt, want := range []time.Duration{100, 200, 300, 500, 800} {
		got := Delay(StrategyFibonacci, attempt, base, 2.0, 0, 0)
		if got != want*time.Millisecond {
			t.Errorf("attempt %d: delay = %v, want %v", attempt, got, want*time.Millisecond)
		}
	}
}

func TestAdaptiveDelayHonorsRetryAfter(t *testing.T) {
	got := Delay(StrategyAdaptive, 0, 100*time.Millisecond, 2.0, 7*time.Second, 0.5)
	if got != 7*time.Second {
		t.Errorf("delay = %v, want the retry-after hint", got)
	}
}

func TestAdaptiveDelayFasterOnHighSuccessRate(t *testing.T) {
	slow := Delay(StrategyAdaptive, 1, 100*time.Millisecond, 2.0, 0, 0.1)
	fast := Delay(StrategyAdaptive, 1, 100*time.Millisecond, 2.0, 0, 0.9)
	if fast >= slow {
		t.Errorf("high success rate should retry faster: fast=%v slow=%v", fast, slow)
	}
}

func TestJitterAndCap(t *testing.T) {
	for i := 0; i < 100; i++ {
		got := ApplyJitterAndCap(time.Second, 500*time.Millisecond, 0.2)
		if got < 500*time.Millisecond || got > 600*time.Millisecond {
			t.Fatalf("jittered delay %v outside [cap, cap*1.2]", got)
		}
	}
	if got := ApplyJitterAndCap(100*time.Millisecond, time.Second, 0); got != 100*time.Millisecond {
		t.Errorf("zero jitter should return the delay unchanged, got %v", got)
	}
}

// --- executor ---

func TestExecuteSucceedsAfterTransientFailures(t *testing.T) {
	e := NewExecutor(testRetryConfig(), nil)

	calls := 0
	var history []Attempt
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &types.RiptideError{Kind: types.KindNetwork, Message: "transient"}
		}
		return nil
	}, &history)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(history) != 3 {
		t.Errorf("history length = %d, want 3", len(history))
	}
}

func TestExecuteStopsOnNonRetryable(t *testing.T) {
	e := NewExecutor(testRetryConfig(), nil)

	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return &types.RiptideError{Kind: types.KindInvalidRequest, Message: "bad input"}
	}, nil)

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-retryable error must not be retried, calls = %d", calls)
	}
}

func TestExecuteRateLimitDoesNotConsumeAttempts(t *testing.T) {
	e := NewExecutor(testRetryConfig(), nil)

	// Six rate-limited responses exceed MaxAttempts (4); the operation
	// must still reach the eventual success because rate-limit retries
	// wait out the hint without spending the attempt budget.
	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls <= 6 {
			return &types.RiptideError{Kind: types.KindRateLimit, RetryAfter: time.Millisecond}
		}
		return nil
	}, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 7 {
		t.Errorf("calls = %d, want 7 (six rate-limited waits then success)", calls)
	}
}

func TestExecuteRateLimitHonorsCancellation(t *testing.T) {
	e := NewExecutor(testRetryConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := e.Execute(ctx, func(ctx context.Context) error {
		return &types.RiptideError{Kind: types.KindRateLimit, RetryAfter: 5 * time.Millisecond}
	}, nil)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context deadline to bound a sustained rate limit", err)
	}
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	e := NewExecutor(testRetryConfig(), nil)

	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return &types.RiptideError{Kind: types.KindNetwork}
	}, nil)

	if err == nil {
		t.Fatal("expected the last error")
	}
	if calls != 4 {
		t.Errorf("calls = %d, want MaxAttempts", calls)
	}
}

func TestExecuteCircuitGate(t *testing.T) {
	breaker := governor.NewCircuitBreaker(50, 2, time.Minute, 2)
	breaker.RecordFailure()
	breaker.RecordFailure() // opens

	e := NewExecutor(testRetryConfig(), breaker)
	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}, nil)

	if calls != 0 {
		t.Error("open circuit must prevent any attempt")
	}
	var rerr *types.RiptideError
	if !errors.As(err, &rerr) || rerr.Kind != types.KindCircuitOpen {
		t.Errorf("error = %v, want KindCircuitOpen", err)
	}
}

func TestExecuteContextCancellation(t *testing.T) {
	cfg := testRetryConfig()
	cfg.InitialDelay = time.Hour // force the cancellation path during backoff
	e := NewExecutor(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := e.Execute(ctx, func(ctx context.Context) error {
		return &types.RiptideError{Kind: types.KindNetwork}
	}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
