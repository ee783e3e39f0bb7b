// Package frontier implements a priority queue with host fairness,
// building on a container/heap pattern with priority-DESC/sequence-ASC
// ordering and a per-host politeness layer.
package frontier

import (
	"container/heap"
	"sync"
	"time"

	"github.com/riptide-project/riptide/internal/types"
	"github.com/riptide-project/riptide/internal/urlutil"
)

// Metrics is a point-in-time snapshot of frontier size and host activity.
type Metrics struct {
	Size       int
	HostsKnown int
}

// Frontier is a thread-safe priority queue of CrawlRequests with host
// fairness: a host that returned an entry within the last HostMinInterval
// is skipped until its bucket refills.
type Frontier struct {
	mu              sync.Mutex
	pq              priorityQueue
	seq             uint64
	hostLastServed  map[string]time.Time
	hostMinInterval time.Duration
	closed          bool

	dedup *urlutil.Deduplicator

	hostSuccesses map[string]int64
	hostFailures  map[string]int64
}

func New(hostMinInterval time.Duration, dedup *urlutil.Deduplicator) *Frontier {
	f := &Frontier{
		pq:              make(priorityQueue, 0, 1024),
		hostLastServed:  make(map[string]time.Time),
		hostMinInterval: hostMinInterval,
		dedup:           dedup,
		hostSuccesses:   make(map[string]int64),
		hostFailures:    make(map[string]int64),
	}
	heap.Init(&f.pq)
	return f
}

// Add enqueues req, deduping against urlutil BEFORE enqueue.
// Returns false if req was a duplicate or the frontier is closed.
func (f *Frontier) Add(req *types.CrawlRequest) bool {
	fp := urlutil.Fingerprint(req.URL.String())

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	if f.dedup != nil && !f.dedup.CheckAndMark(fp) {
		return false
	}

	f.seq++
	heap.Push(&f.pq, &pqItem{entry: types.FrontierEntry{
		Request:  req,
		Priority: req.Priority,
		Sequence: f.seq,
	}})
	return true
}

// Next returns the highest-priority, oldest-inserted request whose host is
// not currently rate-limited by HostMinInterval, or nil if the frontier is
// empty. If the frontier is non-empty but no host is ready, callers should
// sleep briefly and retry.
func (f *Frontier) Next() *types.CrawlRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	var deferred []*pqItem

	for f.pq.Len() > 0 {
		item := heap.Pop(&f.pq).(*pqItem)
		host := item.entry.Request.Host()

		if last, ok := f.hostLastServed[host]; ok && now.Sub(last) < f.hostMinInterval {
			deferred = append(deferred, item)
			continue
		}

		for _, d := range deferred {
			heap.Push(&f.pq, d)
		}

		f.hostLastServed[host] = now
		return item.entry.Request
	}

	for _, d := range deferred {
		heap.Push(&f.pq, d)
	}
	return nil
}

// RecordResult updates per-host statistics used by the scoring/strategy
// layer.
func (f *Frontier) RecordResult(req *types.CrawlRequest, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	host := req.Host()
	if ok {
		f.hostSuccesses[host]++
	} else {
		f.hostFailures[host]++
	}
}

func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pq.Len()
}

func (f *Frontier) IsEmpty() bool { return f.Size() == 0 }

func (f *Frontier) Metrics() Metrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Metrics{Size: f.pq.Len(), HostsKnown: len(f.hostLastServed)}
}

func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// --- priority queue: priority DESC, sequence ASC ---

type pqItem struct {
	entry types.FrontierEntry
	index int
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].entry.Priority != pq[j].entry.Priority {
		return pq[i].entry.Priority > pq[j].entry.Priority // DESC
	}
	return pq[i].entry.Sequence < pq[j].entry.Sequence // FIFO within priority
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*pqItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}
