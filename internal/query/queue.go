package query

import "sync"

// Queue accumulates operations for one table until they are drained by a save
// or discarded by a revert. It is safe for concurrent use.
type Queue struct {
	mu  sync.Mutex
	ops []Op
}

// Enqueue appends op.
func (q *Queue) Enqueue(op Op) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, op)
}

// Drain returns every queued operation in submission order and empties the
// queue.
func (q *Queue) Drain() []Op {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops := q.ops
	q.ops = nil
	return ops
}

// Clear discards every queued operation and returns how many were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.ops)
	q.ops = nil
	return n
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}
