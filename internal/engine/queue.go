package engine

import "sync"

// taskQueue is a thread-safe FIFO queue of scheduled executions.
//
// The queue is unbounded: admission control happens in the worker pool,
// not here, so submitters never block. A buffered signal channel (size
// 1) coalesces wake-ups for the single consuming worker.
//
// A transaction's dedicated worker drains one taskQueue, which is what
// serializes member operations in submission order.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]func(), 0, 8),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends a task. Returns false if the queue is closed.
// Thread-safe: may be called from any goroutine.
func (q *taskQueue) Enqueue(task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, task)

	// Non-blocking - a full buffer already guarantees a wake-up.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes and returns the front task without blocking.
func (q *taskQueue) TryDequeue() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task, true
}

// Wait returns a channel that receives when tasks may be available or
// the queue closes. Spurious wake-ups are possible; callers loop with
// TryDequeue.
func (q *taskQueue) Wait() <-chan struct{} {
	return q.signal
}

// Close rejects further enqueues and wakes the consumer. Tasks already
// queued remain dequeueable so the consumer can drain them.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Closed reports whether the queue no longer accepts tasks.
func (q *taskQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
