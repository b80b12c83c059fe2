package engine

import (
	"context"
	"sync"
)

// rowItem is one delivered row: the raw record plus its converted value
// (equal to the Record when the operation has no converter).
type rowItem struct {
	rec Record
	val any
}

// Rows is the lazy, forward-only, non-restartable result sequence of
// one execution.
//
// The assigned worker fetches from the cursor and hands rows over an
// unbuffered channel, so it stays at most one row ahead of the
// consumer; the underlying fetch is demand-driven.
//
// Rows is also the execution's Completion: Done closes after resources
// have been released and the terminal event dispatched, which makes a
// Rows directly usable as a dependency of later operations. Because a
// Completion refers to this one execution, several dependents share it;
// the statement never re-runs per dependent.
//
// Thread-safety: one consuming goroutine; Done and Err are safe from
// any goroutine once Done has closed.
type Rows struct {
	ch     <-chan rowItem
	comp   *latch
	cancel func()

	cur      rowItem
	finished bool

	closeOnce sync.Once
}

// Next advances to the next row. It returns false when the sequence has
// terminated: normally, with an error (see Err), or because the
// consumer cancelled via ctx or Close.
func (r *Rows) Next(ctx context.Context) bool {
	if r.finished {
		return false
	}
	select {
	case it, open := <-r.ch:
		if !open {
			r.finished = true
			return false
		}
		r.cur = it
		return true
	case <-ctx.Done():
		// Consumer-driven cancellation: stop delivery, release
		// resources, no error on the sequence.
		r.Close()
		r.finished = true
		return false
	}
}

// Record returns the current raw row. Valid after a true Next.
func (r *Rows) Record() Record { return r.cur.rec }

// Value returns the current converted value. Valid after a true Next.
func (r *Rows) Value() any { return r.cur.val }

// Err returns the execution's terminal error. Nil while the execution
// is still running, after normal completion, and after cancellation -
// unsubscribing is not a failure of the sequence.
func (r *Rows) Err() error { return terminalErr(r.comp) }

// Close unsubscribes. If no worker has started the operation yet it
// never runs and never acquires resources; a running operation stops
// fetching promptly and releases. Idempotent.
func (r *Rows) Close() {
	r.closeOnce.Do(r.cancel)
}

// Done closes when the execution has fully terminated: resources
// released, handlers notified.
func (r *Rows) Done() <-chan struct{} { return r.comp.Done() }

// CompletionSeq returns the logical clock stamp of the terminal event,
// 0 while the execution is still running.
func (r *Rows) CompletionSeq() int64 { return r.comp.Seq() }

// Count is the single affected-row result of an exec-style execution.
// Like Rows it doubles as the execution's Completion.
type Count struct {
	comp   *latch
	cancel func()

	mu sync.Mutex
	n  int64
}

// Wait blocks for the terminal event and returns the affected-row
// count summed over all executed parameter tuples.
func (c *Count) Wait(ctx context.Context) (int64, error) {
	select {
	case <-c.comp.Done():
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.n, terminalErr(c.comp)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Cancel unsubscribes; an execution not yet started never runs.
func (c *Count) Cancel() { c.cancel() }

// Done closes when the execution has fully terminated.
func (c *Count) Done() <-chan struct{} { return c.comp.Done() }

// Err returns the terminal error after Done; nil for normal completion
// or cancellation.
func (c *Count) Err() error { return terminalErr(c.comp) }

// CompletionSeq returns the logical clock stamp of the terminal event.
func (c *Count) CompletionSeq() int64 { return c.comp.Seq() }

func (c *Count) add(n int64) {
	c.mu.Lock()
	c.n += n
	c.mu.Unlock()
}

// FailedRows returns an already-terminated Rows carrying err. Used by
// the facade for requests that fail before they become operations
// (closed database, unresolvable transaction references).
func FailedRows(err error) *Rows {
	l := newLatch()
	l.fire(err, 0)
	ch := make(chan rowItem)
	close(ch)
	return &Rows{ch: ch, comp: l, cancel: func() {}}
}

// FailedCount is FailedRows for count-style requests.
func FailedCount(err error) *Count {
	l := newLatch()
	l.fire(err, 0)
	return &Count{comp: l, cancel: func() {}}
}

// terminalErr translates the internal cancellation sentinel into "no
// error": unsubscription is not a failure of the sequence.
func terminalErr(l *latch) error {
	err := l.Err()
	if err == errCancelled {
		return nil
	}
	return err
}

var (
	_ Completion = (*Rows)(nil)
	_ Completion = (*Count)(nil)
)
