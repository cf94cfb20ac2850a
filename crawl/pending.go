package crawl

import (
	"container/list"
	"sync"

	"github.com/fwojciec/sitecrawl"
)

// PendingQueue holds claimed transfers waiting to be started. Discovery
// order is kept at the tail; retries jump to the head.
// It is safe for concurrent use by multiple goroutines.
type PendingQueue struct {
	mu    sync.Mutex
	items list.List
}

// PushBack appends t to the tail.
func (q *PendingQueue) PushBack(t *sitecrawl.Transfer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.PushBack(t)
}

// PushFront inserts t at the head.
func (q *PendingQueue) PushFront(t *sitecrawl.Transfer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.PushFront(t)
}

// PopFront removes and returns the head.
// The bool result is false if the queue is empty.
func (q *PendingQueue) PopFront() (*sitecrawl.Transfer, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := q.items.Front()
	if e == nil {
		return nil, false
	}
	q.items.Remove(e)
	t, _ := e.Value.(*sitecrawl.Transfer)
	return t, true
}

// Len returns the number of queued transfers.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Requests returns the durable form of every queued transfer, head first.
func (q *PendingQueue) Requests() []sitecrawl.QueuedRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]sitecrawl.QueuedRequest, 0, q.items.Len())
	for e := q.items.Front(); e != nil; e = e.Next() {
		t, _ := e.Value.(*sitecrawl.Transfer)
		out = append(out, t.Request())
	}
	return out
}
