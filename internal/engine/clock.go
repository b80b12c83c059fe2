package engine

import "sync/atomic"

// Clock is a monotonic logical clock stamping execution lifecycle
// events (resource acquisition, terminal completion).
//
// Stamps are strictly increasing across the whole engine, so
// "acquired after upstream completed" is a plain integer comparison
// with no wall-clock race conditions.
//
// Thread-safety: safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
// Each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
