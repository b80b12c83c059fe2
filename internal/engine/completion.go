package engine

import "sync"

// Completion is the terminal signal of an asynchronous sequence.
//
// Done closes exactly once, when the sequence has terminated - normally,
// with an error, or by cancellation. Err is only meaningful after Done
// is closed; nil means the sequence completed without error.
//
// Dependency edges point at Completions. Because a Completion belongs to
// one already-started execution, two dependents of the same upstream
// observe one run of its side effects, never two.
//
// Thread-safety: any number of goroutines may wait on Done and read Err
// after it closes.
type Completion interface {
	// Done returns a channel that closes on the terminal event.
	Done() <-chan struct{}

	// Err returns the terminal error, nil for normal completion.
	// Valid only after Done is closed.
	Err() error
}

// latch is the one-shot Completion used by every execution.
type latch struct {
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	err error

	// seq is the logical clock stamp taken when the latch fired.
	seq int64
}

func newLatch() *latch {
	return &latch{done: make(chan struct{})}
}

func (l *latch) Done() <-chan struct{} { return l.done }

func (l *latch) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Seq returns the clock stamp of the terminal event, 0 if not fired.
func (l *latch) Seq() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// fire terminates the latch. Only the first call has any effect.
func (l *latch) fire(err error, seq int64) {
	l.once.Do(func() {
		l.mu.Lock()
		l.err = err
		l.seq = seq
		l.mu.Unlock()
		close(l.done)
	})
}

// completed is a pre-fired Completion carrying a fixed error.
// Used for operations that fail before anything can start.
type completed struct {
	err error
}

func (c completed) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (c completed) Err() error { return c.err }

// Terminated returns a Completion that is already done with err
// (nil for already-successful).
func Terminated(err error) Completion {
	return completed{err: err}
}
