package types

import (
	"strings"
	"testing"
	"time"
)

// --- HostBucket ---

func TestHostBucketBurstThenReject(t *testing.T) {
	b := NewHostBucket(1.5, 3)
	now := time.Now()

	for i := 0; i < 3; i++ {
		ok, _ := b.Allow(now)
		if !ok {
			t.Fatalf("request %d within burst should be allowed", i)
		}
	}

	ok, retryAfter := b.Allow(now)
	if ok {
		t.Fatal("request beyond burst capacity should be rejected")
	}
	rps := 1.5
	want := time.Duration(float64(time.Second) / rps)
	if retryAfter != want {
		t.Errorf("retry-after = %v, want %v (1/rps)", retryAfter, want)
	}
}

func TestHostBucketRefill(t *testing.T) {
	b := NewHostBucket(2.0, 2)
	now := time.Now()

	b.Allow(now)
	b.Allow(now)
	if ok, _ := b.Allow(now); ok {
		t.Fatal("bucket should be empty")
	}

	// One second at 2 rps refills two tokens, capped at burst.
	later := now.Add(time.Second)
	if ok, _ := b.Allow(later); !ok {
		t.Fatal("bucket should have refilled")
	}
	if b.Tokens > b.Burst {
		t.Errorf("tokens %v exceeded burst %v", b.Tokens, b.Burst)
	}
}

func TestHostBucketExactlyEmptyNotQueued(t *testing.T) {
	b := NewHostBucket(1.0, 1)
	now := time.Now()
	b.Allow(now)

	start := time.Now()
	ok, retryAfter := b.Allow(now)
	if ok {
		t.Fatal("empty bucket must reject, not queue")
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("Allow blocked instead of returning immediately")
	}
	if retryAfter <= 0 {
		t.Error("rejected request must carry a retry-after")
	}
}

// --- ContentWindow ---

func TestContentWindowAverageGain(t *testing.T) {
	w := NewContentWindow(5)
	if got := w.AverageGain(); got != 0 {
		t.Errorf("gain with <2 samples = %v, want 0", got)
	}

	w.Add(100)
	w.Add(150) // +50
	w.Add(140) // negative delta, ignored
	w.Add(200) // +60

	want := 55.0 // mean of positive deltas 50 and 60
	if got := w.AverageGain(); got != want {
		t.Errorf("average gain = %v, want %v", got, want)
	}
}

func TestContentWindowSliding(t *testing.T) {
	w := NewContentWindow(3)
	for i := 0; i < 10; i++ {
		w.Add(i)
	}
	if w.Len() != 3 {
		t.Errorf("window length = %d, want capacity 3", w.Len())
	}
	if !w.Full() {
		t.Error("window should report full")
	}
}

// --- AuthAttempt ---

func TestAuthAttemptBlockDuration(t *testing.T) {
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{10, 1024 * time.Second},
		{25, 1024 * time.Second}, // capped at 2^10
	}
	for _, tc := range cases {
		a := &AuthAttempt{Failures: tc.failures}
		if got := a.BlockDuration(); got != tc.want {
			t.Errorf("failures=%d: block = %v, want %v", tc.failures, got, tc.want)
		}
	}
}

// --- TrackedWasmInstance ---

func TestWasmInstanceLeakDetection(t *testing.T) {
	inst := &TrackedWasmInstance{}
	// 5 MB/s growth: below the 10 MB/s threshold.
	for i := 0; i < 10; i++ {
		inst.RecordMemSample(float64(i * 5))
	}
	if inst.LeakDetected() {
		t.Error("5 MB/s growth should not be a leak")
	}

	inst2 := &TrackedWasmInstance{}
	for i := 0; i < 10; i++ {
		inst2.RecordMemSample(float64(i * 20))
	}
	if !inst2.LeakDetected() {
		t.Error("20 MB/s growth should be a leak")
	}
}

func TestWasmInstanceRingBounded(t *testing.T) {
	inst := &TrackedWasmInstance{}
	for i := 0; i < 50; i++ {
		inst.RecordMemSample(float64(i))
	}
	if len(inst.MemGrowthHistory) != 10 {
		t.Errorf("ring length = %d, want 10", len(inst.MemGrowthHistory))
	}
	if inst.PeakMB != 49 {
		t.Errorf("peak = %v, want 49", inst.PeakMB)
	}
}

func TestWasmInstanceHealth(t *testing.T) {
	inst := &TrackedWasmInstance{LastUsed: time.Now()}
	if !inst.Healthy(100, 5, time.Minute) {
		t.Error("fresh instance should be healthy")
	}
	inst.OpsCount = 100
	if inst.Healthy(100, 5, time.Minute) {
		t.Error("instance at max ops should be unhealthy")
	}
	inst.OpsCount = 0
	inst.FailedOps = 5
	if inst.Healthy(100, 5, time.Minute) {
		t.Error("instance at restart threshold should be unhealthy")
	}
	inst.FailedOps = 0
	inst.LastUsed = time.Now().Add(-2 * time.Minute)
	if inst.Healthy(100, 5, time.Minute) {
		t.Error("idle instance should be unhealthy")
	}
}

// --- CrawlRequest / CrawlResult ---

func TestNewCrawlRequestRejectsInvalid(t *testing.T) {
	if _, err := NewCrawlRequest("://not-a-url"); err == nil {
		t.Error("expected error for malformed URL")
	}
	req, err := NewCrawlRequest("https://example.com/a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Depth != 0 {
		t.Errorf("seed depth = %d, want 0", req.Depth)
	}
}

func TestChildRequestDepthAndParent(t *testing.T) {
	parent, _ := NewCrawlRequest("https://example.com/")
	child, err := parent.Child("https://example.com/page", PriorityNormal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if child.Depth != 1 {
		t.Errorf("child depth = %d, want 1", child.Depth)
	}
	if child.ParentURL != "https://example.com/" {
		t.Errorf("child parent = %q, want parent URL", child.ParentURL)
	}
}

func TestUniqueTextChars(t *testing.T) {
	r := &CrawlResult{}
	if r.UniqueTextChars() != 0 {
		t.Error("nil text content must yield 0 unique chars")
	}

	text := "short"
	r.TextContent = &text
	if got := r.UniqueTextChars(); got != 5 {
		t.Errorf("unique chars of %q = %d, want 5", text, got)
	}

	repeated := strings.Repeat("ab", 100)
	r.TextContent = &repeated
	if got := r.UniqueTextChars(); got != 2 {
		t.Errorf("unique chars = %d, want 2", got)
	}
}

// --- Session ---

func TestSessionExpiry(t *testing.T) {
	s := &Session{LastAccessed: time.Now(), TTL: time.Minute}
	if s.Expired(time.Now()) {
		t.Error("fresh session should not be expired")
	}
	if !s.Expired(time.Now().Add(2 * time.Minute)) {
		t.Error("session past TTL should be expired")
	}
}
