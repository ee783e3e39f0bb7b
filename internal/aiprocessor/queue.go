package aiprocessor

import (
	"container/heap"
	"sync"

	"github.com/riptide-project/riptide/internal/types"
)

// queueItem wraps an AiTask with an insertion sequence so equal-priority
// tasks pop in FIFO order.
type queueItem struct {
	task     *types.AiTask
	sequence uint64
}

type priorityHeap []*queueItem

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority > h[j].task.Priority
	}
	return h[i].sequence < h[j].sequence
}
func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *priorityHeap) Push(x any)   { *h = append(*h, x.(*queueItem)) }
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is a thread-safe priority queue of AiTasks, bounded at queue_size.
type Queue struct {
	mu       sync.Mutex
	notEmpty chan struct{}
	heap     priorityHeap
	capacity int
	seq      uint64
}

func NewQueue(capacity int) *Queue {
	return &Queue{capacity: capacity, notEmpty: make(chan struct{}, 1)}
}

// Push enqueues task, rejecting it when the queue is at capacity.
func (q *Queue) Push(task *types.AiTask) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) >= q.capacity {
		return false
	}
	q.seq++
	heap.Push(&q.heap, &queueItem{task: task, sequence: q.seq})
	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
	return true
}

// Pop removes and returns the highest-priority task, or (nil, false) if
// empty.
func (q *Queue) Pop() (*types.AiTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return nil, false
	}
	item := heap.Pop(&q.heap).(*queueItem)
	return item.task, true
}

// Signal returns a channel that receives a value whenever a Push transitions
// the queue from possibly-empty to non-empty; workers select on it to avoid
// busy-polling.
func (q *Queue) Signal() <-chan struct{} { return q.notEmpty }

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}
