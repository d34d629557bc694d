package engine

import (
	"container/heap"
	"fmt"

	"github.com/gammazero/deque"
)

// WaitPolicy orders not-yet-running requests. Scheduler picks one
// implementation at construction time based on Config.Policy.
type WaitPolicy interface {
	Push(meta *RequestMetadata)
	Peek() *RequestMetadata
	Pop() *RequestMetadata
	Remove(requestID string) bool
	Len() int
}

// NewWaitQueue builds the WaitPolicy named by policy ("" defaults to fcfs).
func NewWaitQueue(policy string) (WaitPolicy, error) {
	switch policy {
	case "", PolicyFCFS:
		return &fcfsQueue{}, nil
	case PolicyPriority:
		return &priorityQueue{}, nil
	default:
		return nil, fmt.Errorf("engine: unknown wait queue policy %q", policy)
	}
}

// fcfsQueue is a FIFO of waiting requests backed by an O(1) amortized
// ring buffer.
type fcfsQueue struct {
	items deque.Deque[*RequestMetadata]
}

func (q *fcfsQueue) Push(meta *RequestMetadata) { q.items.PushBack(meta) }

func (q *fcfsQueue) Peek() *RequestMetadata {
	if q.items.Len() == 0 {
		return nil
	}
	return q.items.Front()
}

func (q *fcfsQueue) Pop() *RequestMetadata {
	if q.items.Len() == 0 {
		return nil
	}
	return q.items.PopFront()
}

// Remove drops requestID from anywhere in the queue, preserving the
// relative order of everything else. Linear scan, as the contract allows.
func (q *fcfsQueue) Remove(requestID string) bool {
	n := q.items.Len()
	found := false
	for i := 0; i < n; i++ {
		item := q.items.PopFront()
		if !found && item.RequestID == requestID {
			found = true
			continue
		}
		q.items.PushBack(item)
	}
	return found
}

func (q *fcfsQueue) Len() int { return q.items.Len() }

// priorityHeap orders requests by (priority desc, arrival asc, id asc),
// a strict total order so heap pop order is deterministic given equal
// timestamps. Built on container/heap.
type priorityHeap []*RequestMetadata

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.ArrivalTime != b.ArrivalTime {
		return a.ArrivalTime < b.ArrivalTime
	}
	return a.RequestID < b.RequestID
}

func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap) Push(x any) { *h = append(*h, x.(*RequestMetadata)) }

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

type priorityQueue struct {
	h priorityHeap
}

func (q *priorityQueue) Push(meta *RequestMetadata) { heap.Push(&q.h, meta) }

func (q *priorityQueue) Peek() *RequestMetadata {
	if len(q.h) == 0 {
		return nil
	}
	return q.h[0]
}

func (q *priorityQueue) Pop() *RequestMetadata {
	if len(q.h) == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*RequestMetadata)
}

func (q *priorityQueue) Remove(requestID string) bool {
	for i, meta := range q.h {
		if meta.RequestID == requestID {
			heap.Remove(&q.h, i)
			return true
		}
	}
	return false
}

func (q *priorityQueue) Len() int { return len(q.h) }
