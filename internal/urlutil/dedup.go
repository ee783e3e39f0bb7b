package urlutil

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/riptide-project/riptide/internal/config"
)

// Deduplicator combines a bloom filter fast path with an exact LRU set
// capped at MaxExactURLs: a URL counts as seen once it is in the exact set,
// or once a bloom filter hit has been confirmed by re-insertion.
type Deduplicator struct {
	mu       sync.Mutex
	bloom    *bloomFilter
	exact    map[string]*list.Element
	order    *list.List // front = most recently used
	capacity int
}

func NewDeduplicator(cfg config.URLUtilConfig) *Deduplicator {
	return &Deduplicator{
		bloom:    newBloomFilter(cfg.BloomCapacity, cfg.BloomFalsePositiveRate),
		exact:    make(map[string]*list.Element),
		order:    list.New(),
		capacity: cfg.MaxExactURLs,
	}
}

func hashFingerprint(fp Fingerprint) string {
	h := sha256.Sum256([]byte(fp))
	return hex.EncodeToString(h[:16])
}

// Seen reports whether fp has already been recorded, confirming a bloom hit
// against the exact set before trusting it.
func (d *Deduplicator) Seen(fp Fingerprint) bool {
	key := hashFingerprint(fp)

	d.mu.Lock()
	defer d.mu.Unlock()

	if elem, ok := d.exact[key]; ok {
		d.order.MoveToFront(elem)
		return true
	}
	if !d.bloom.Test(key) {
		return false
	}
	// Bloom says maybe; without an exact entry this is a false positive,
	// so it is not "seen" yet - it will be recorded on the next MarkSeen.
	return false
}

// MarkSeen records fp as seen, evicting the least-recently-used exact entry
// once capacity is exceeded. The bloom filter never evicts.
func (d *Deduplicator) MarkSeen(fp Fingerprint) {
	key := hashFingerprint(fp)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.bloom.Add(key)

	if elem, ok := d.exact[key]; ok {
		d.order.MoveToFront(elem)
		return
	}

	elem := d.order.PushFront(key)
	d.exact[key] = elem

	for d.capacity > 0 && len(d.exact) > d.capacity {
		back := d.order.Back()
		if back == nil {
			break
		}
		d.order.Remove(back)
		delete(d.exact, back.Value.(string))
	}
}

// CheckAndMark is the atomic "is this new?" operation the frontier uses
// before enqueue.
// It returns true if fp had not been seen before, marking it seen either way.
func (d *Deduplicator) CheckAndMark(fp Fingerprint) bool {
	key := hashFingerprint(fp)

	d.mu.Lock()
	defer d.mu.Unlock()

	if elem, ok := d.exact[key]; ok {
		d.order.MoveToFront(elem)
		return false
	}

	d.bloom.Add(key)
	elem := d.order.PushFront(key)
	d.exact[key] = elem

	for d.capacity > 0 && len(d.exact) > d.capacity {
		back := d.order.Back()
		if back == nil {
			break
		}
		d.order.Remove(back)
		delete(d.exact, back.Value.(string))
	}

	return true
}

// Count returns the number of entries currently in the exact set.
func (d *Deduplicator) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.exact)
}
