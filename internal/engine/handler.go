package engine

import (
	"log/slog"
	"sync"
)

// Event is the terminal record of one execution, delivered to the
// handler chain after resources have released and immediately before
// the completion latch fires.
type Event struct {
	// Token identifies the operation.
	Token string

	// Query is the statement text.
	Query string

	// Err is the primary terminal error, nil on success or
	// cancellation.
	Err error

	// ReleaseErr reports a failure while releasing resources. It is a
	// secondary signal: it never replaces Err and a non-nil ReleaseErr
	// with a nil Err still counts as a successful operation whose
	// cleanup misbehaved.
	ReleaseErr error

	// Cancelled is true when the consumer unsubscribed before natural
	// completion. Never set together with Err.
	Cancelled bool

	// Rows is the number of rows delivered to the consumer.
	Rows int64

	// Affected is the summed affected-row count for exec operations.
	Affected int64

	// InTx is true for transaction members and control statements.
	InTx bool

	// AcquireSeq and DoneSeq are logical clock stamps: when the
	// connection was acquired (0 if never) and when the terminal event
	// fired.
	AcquireSeq int64
	DoneSeq    int64
}

// Handler observes terminal events. Handlers must not assume any
// particular goroutine: they run on whichever worker finished the
// operation.
type Handler func(Event)

// HandlerChain invokes registered handlers on every operation's
// terminal event, in registration order.
//
// Handlers observe; they never modify the event other handlers or the
// caller see (Event is passed by value). A panicking handler is logged
// and skipped - it cannot suppress or replace the terminal event, and
// the remaining handlers still run.
//
// Thread-safety: Register is safe concurrently with dispatch, though
// the expected pattern is registration up front, before operations run.
type HandlerChain struct {
	mu       sync.RWMutex
	handlers []Handler
	log      *slog.Logger
}

// NewHandlerChain creates an empty chain logging handler panics to log.
func NewHandlerChain(log *slog.Logger) *HandlerChain {
	if log == nil {
		log = slog.Default()
	}
	return &HandlerChain{log: log}
}

// Register appends h to the chain. Order of registration is order of
// invocation.
func (c *HandlerChain) Register(h Handler) {
	if h == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// dispatch delivers ev to every handler in order.
func (c *HandlerChain) dispatch(ev Event) {
	c.mu.RLock()
	handlers := c.handlers
	c.mu.RUnlock()

	for _, h := range handlers {
		c.invoke(h, ev)
	}
}

func (c *HandlerChain) invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("terminal event handler panicked",
				"op", ev.Token, "panic", r)
		}
	}()
	h(ev)
}
