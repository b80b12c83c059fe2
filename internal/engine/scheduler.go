package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Scheduler admits operations to a bounded worker pool.
//
// Unrelated ready operations run concurrently up to the pool capacity;
// the rest wait in submission order (the weighted semaphore services
// waiters FIFO). Transaction members never go through the pool - they
// run on their transaction's dedicated worker (see txWorker).
//
// Shutdown: Close stops admissions immediately. Operations already
// holding a slot finish; operations still waiting for a slot are
// rejected and fail with a closed error.
type Scheduler struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// DefaultWorkers is the pool capacity used when the caller does not
// configure one.
const DefaultWorkers = 8

// NewScheduler creates a pool admitting at most workers concurrent
// operations. workers < 1 falls back to DefaultWorkers.
func NewScheduler(workers int) *Scheduler {
	if workers < 1 {
		workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sem:    semaphore.NewWeighted(int64(workers)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit queues run for execution. When the pool is saturated the task
// waits its turn in FIFO order. rejected is invoked instead of run if
// the scheduler shuts down before a slot frees up.
//
// Returns false if the scheduler is already closed (rejected is not
// called; the caller fails the operation synchronously).
func (s *Scheduler) Submit(run func(), rejected func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			rejected()
			return
		}
		defer s.sem.Release(1)
		run()
	}()
	return true
}

// Close stops admitting work and rejects every waiting task. Blocks
// until all accepted tasks (running or rejected) have finished.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// txWorker is the dedicated worker owning all driver calls of one
// transaction. Draining a single FIFO queue on a single goroutine is
// the entire locking discipline for the pinned connection: members
// execute strictly sequentially in submission order, and nothing else
// ever touches the connection.
type txWorker struct {
	queue   *taskQueue
	stopped chan struct{}
}

func newTxWorker() *txWorker {
	w := &txWorker{
		queue:   newTaskQueue(),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *txWorker) run() {
	defer close(w.stopped)
	for {
		if task, ok := w.queue.TryDequeue(); ok {
			task()
			continue
		}
		if w.queue.Closed() {
			// Drained and closed.
			return
		}
		<-w.queue.Wait()
	}
}

// Submit appends a task to the worker's queue. Returns false once the
// worker is shutting down.
func (w *txWorker) Submit(task func()) bool {
	return w.queue.Enqueue(task)
}

// Close lets the worker drain queued tasks and stop. Blocks until the
// worker goroutine exits.
func (w *txWorker) Close() {
	w.queue.Close()
	<-w.stopped
}
