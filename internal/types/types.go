package types

import (
	"net/url"
	"sync"
	"time"
)

// Priority controls frontier scheduling order; higher values are served first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// CrawlRequest is an immutable target for the spider. It is created by
// seeding or by child-URL extraction and discarded once its result has been
// recorded; implementations must not mutate a CrawlRequest in place once it
// has been enqueued.
type CrawlRequest struct {
	URL       *url.URL
	Depth     int
	Priority  Priority
	ParentURL string
	Headers   map[string]string
}

// NewCrawlRequest builds a seed request (depth 0, normal priority).
func NewCrawlRequest(raw string) (*CrawlRequest, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &CrawlRequest{URL: u, Depth: 0, Priority: PriorityNormal}, nil
}

// Child derives a new request for a discovered URL one depth below the
// current request. The parent reference is informational only, never an
// ownership or pointer relationship.
func (r *CrawlRequest) Child(raw string, priority Priority) (*CrawlRequest, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &CrawlRequest{
		URL:       u,
		Depth:     r.Depth + 1,
		Priority:  priority,
		ParentURL: r.URL.String(),
	}, nil
}

func (r *CrawlRequest) Host() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Hostname()
}

// CrawlResult is the outcome of fetching and extracting a CrawlRequest.
// UniqueTextChars is defined only when TextContent is non-nil.
type CrawlResult struct {
	Request        *CrawlRequest
	Success        bool
	Status         int
	ContentSize    int64
	TextContent    *string
	ExtractedURLs  []*url.URL
	Err            error
	ProcessingTime time.Duration
}

// UniqueTextChars returns the character-set cardinality of TextContent.
// It is only meaningful when TextContent != nil; callers must check that
// first.
func (r *CrawlResult) UniqueTextChars() int {
	if r.TextContent == nil {
		return 0
	}
	seen := make(map[rune]struct{})
	for _, c := range *r.TextContent {
		seen[c] = struct{}{}
	}
	return len(seen)
}

// FrontierEntry orders CrawlRequests by priority DESC, then sequence ASC
// (FIFO within a priority level).
type FrontierEntry struct {
	Request  *CrawlRequest
	Priority Priority
	Sequence uint64
}

// HostBucket is a token bucket keyed by host. Invariant: 0 <= Tokens <= Burst.
type HostBucket struct {
	mu           sync.Mutex
	Tokens       float64
	Burst        float64
	RefillPerSec float64
	LastRefill   time.Time
	RequestCount uint64
	LastRequest  time.Time
}

func NewHostBucket(refillPerSec, burst float64) *HostBucket {
	return &HostBucket{
		Tokens:       burst,
		Burst:        burst,
		RefillPerSec: refillPerSec,
		LastRefill:   time.Now(),
	}
}

// Allow attempts to consume one token, refilling first. Returns whether a
// token was available and, if not, the retry-after duration.
func (b *HostBucket) Allow(now time.Time) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.LastRefill).Seconds()
	if elapsed > 0 {
		b.Tokens += elapsed * b.RefillPerSec
		if b.Tokens > b.Burst {
			b.Tokens = b.Burst
		}
		b.LastRefill = now
	}

	if b.Tokens < 1 {
		retryAfter := time.Duration(float64(time.Second) / b.RefillPerSec)
		return false, retryAfter
	}

	b.Tokens--
	b.RequestCount++
	b.LastRequest = now
	return true, 0
}

// AuthAttempt tracks repeated authentication failures for a client.
type AuthAttempt struct {
	Failures         int
	FirstFailureTime time.Time
	BlockedUntil     *time.Time
}

// BlockDuration computes 2^min(failures,10) seconds.
func (a *AuthAttempt) BlockDuration() time.Duration {
	n := a.Failures
	if n > 10 {
		n = 10
	}
	return time.Duration(1<<uint(n)) * time.Second
}

// TrackedWasmInstance is a pooled sandbox instance keyed by worker id.
type TrackedWasmInstance struct {
	ID               string
	CreatedAt        time.Time
	LastUsed         time.Time
	OpsCount         uint64
	FailedOps        uint64
	MemUsageMB       float64
	MemGrowthHistory []float64 // bounded ring of 10 samples
	PeakMB           float64
	InUse            bool
}

const memGrowthRingSize = 10

// RecordMemSample appends a memory sample to the bounded ring.
func (t *TrackedWasmInstance) RecordMemSample(mb float64) {
	t.MemUsageMB = mb
	if mb > t.PeakMB {
		t.PeakMB = mb
	}
	t.MemGrowthHistory = append(t.MemGrowthHistory, mb)
	if len(t.MemGrowthHistory) > memGrowthRingSize {
		t.MemGrowthHistory = t.MemGrowthHistory[len(t.MemGrowthHistory)-memGrowthRingSize:]
	}
}

// LeakDetected reports whether the linear growth rate across the ring
// exceeds 10 MB/s, sampled once per second by convention.
func (t *TrackedWasmInstance) LeakDetected() bool {
	n := len(t.MemGrowthHistory)
	if n < 2 {
		return false
	}
	first, last := t.MemGrowthHistory[0], t.MemGrowthHistory[n-1]
	rate := (last - first) / float64(n-1)
	return rate > 10.0
}

// Healthy reports whether the instance should remain in the pool.
func (t *TrackedWasmInstance) Healthy(maxOps, restartThreshold uint64, idleTimeout time.Duration) bool {
	if t.OpsCount >= maxOps {
		return false
	}
	if t.FailedOps >= restartThreshold {
		return false
	}
	if time.Since(t.LastUsed) >= idleTimeout {
		return false
	}
	return true
}

// BrowserInstance shares the same health shape as TrackedWasmInstance.
type BrowserInstance struct {
	ID               string
	CreatedAt        time.Time
	LastUsed         time.Time
	OperationsCount  uint32
	FailedOperations uint32
	IsHealthy        bool
}

// ContentWindow is a sliding window of unique_text_chars measurements used
// by the Adaptive Stop Engine. AverageGain is valid only with >=2 samples.
type ContentWindow struct {
	mu       sync.Mutex
	samples  []int
	capacity int
}

func NewContentWindow(capacity int) *ContentWindow {
	return &ContentWindow{capacity: capacity}
}

func (w *ContentWindow) Add(value int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, value)
	if len(w.samples) > w.capacity {
		w.samples = w.samples[len(w.samples)-w.capacity:]
	}
}

// AverageGain is the mean positive delta between consecutive measurements.
func (w *ContentWindow) AverageGain() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) < 2 {
		return 0
	}
	var sum float64
	var count int
	for i := 1; i < len(w.samples); i++ {
		delta := w.samples[i] - w.samples[i-1]
		if delta > 0 {
			sum += float64(delta)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func (w *ContentWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

func (w *ContentWindow) Full() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples) >= w.capacity
}

// AiTask is a unit of background LLM enhancement work, ordered by Priority
// DESC for worker pickup.
type AiTask struct {
	TaskID     string
	URL        string
	Content    string
	Priority   Priority
	CreatedAt  time.Time
	Timeout    time.Duration
	RetryCount int
	MaxRetries int
}

// SessionStatus is the lifecycle state of a Session.
type SessionStatus int

const (
	SessionActive SessionStatus = iota
	SessionExpired
	SessionTerminated
)

func (s SessionStatus) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionExpired:
		return "expired"
	case SessionTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session is a short-lived piece of per-client state with a TTL view kept
// both in Redis and in-memory.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastAccessed time.Time
	Data         map[string]string
	UserID       string
	Metadata     map[string]string
	TTL          time.Duration
	Status       SessionStatus
}

// Expired reports whether the session is older than its TTL measured from
// LastAccessed: accessing a session resets its expiry clock.
func (s *Session) Expired(now time.Time) bool {
	return now.Sub(s.LastAccessed) > s.TTL
}
