package webhooks

import (
	"errors"
	"sync"
)

var (
	errQueueFull   = errors.New("delivery queue is full")
	errQueueClosed = errors.New("delivery queue is closed")
)

// fifo is the in-process job queue in front of both backends. Unbounded when
// limit is zero.
type fifo struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*DeliveryAttempt
	limit  int
	closed bool
}

func newFIFO(limit int) *fifo {
	q := &fifo{limit: limit}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *fifo) push(job *DeliveryAttempt) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errQueueClosed
	}
	if q.limit > 0 && len(q.items) >= q.limit {
		q.mu.Unlock()
		return errQueueFull
	}
	q.items = append(q.items, job)
	q.mu.Unlock()

	q.cond.Signal()
	return nil
}

// pop blocks until a job is available. It returns false once the queue is
// closed and drained.
func (q *fifo) pop() (*DeliveryAttempt, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}

	job := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return job, true
}

func (q *fifo) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// drain empties the queue and returns what was left.
func (q *fifo) drain() []*DeliveryAttempt {
	q.mu.Lock()
	defer q.mu.Unlock()

	left := q.items
	q.items = nil
	return left
}

func (q *fifo) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
