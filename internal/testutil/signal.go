package testutil

import "sync"

// Signal is a manually-fired completion for wiring dependency edges in
// tests: it stands in for any upstream asynchronous sequence.
//
// Thread-safety: Fire is idempotent; Done/Err safe from any goroutine.
type Signal struct {
	once sync.Once
	done chan struct{}

	mu  sync.Mutex
	err error
}

// NewSignal creates an unfired signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Fire terminates the signal with err (nil for success). Only the
// first call has any effect.
func (s *Signal) Fire(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

// Done implements engine.Completion.
func (s *Signal) Done() <-chan struct{} { return s.done }

// Err implements engine.Completion.
func (s *Signal) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
