package engine

import (
	"fmt"

	"github.com/roach88/streamsql/internal/driver"
)

// ParamSource supplies parameter values for an operation: either a
// single literal or an asynchronous stream of values.
//
// During execution all sources are flattened, in declaration order,
// into one value sequence and chunked into tuples of the statement's
// placeholder width. The statement executes once per complete tuple;
// result sequences concatenate in tuple order.
type ParamSource struct {
	stream <-chan any
	value  any
}

// Literal wraps a single immediately-available parameter value.
func Literal(v any) ParamSource {
	return ParamSource{value: v}
}

// FromChan wraps an asynchronous stream of parameter values. The stream
// contributes every value it produces, at its position in declaration
// order; it must be closed by the producer for the operation to finish.
func FromChan(ch <-chan any) ParamSource {
	return ParamSource{stream: ch}
}

// binder resolves parameter sources into complete tuples, lazily: the
// next tuple is assembled only when the resource guard asks for it, so
// slow parameter streams never buffer more than one tuple ahead.
type binder struct {
	token   string
	sources []ParamSource
	width   int

	idx     int // next source to drain
	buf     []driver.Value
	emitted bool
	failed  bool
}

func newBinder(token string, sources []ParamSource, width int) *binder {
	return &binder{token: token, sources: sources, width: width}
}

// next returns the next complete tuple, or ok=false when every source
// is exhausted. Edge cases:
//   - No sources at all: a single empty tuple, so parameterless
//     statements execute exactly once.
//   - Sources that yield zero values: zero tuples, zero executions.
//   - A trailing partial tuple is a bind error, not silently dropped.
//
// cancel aborts a blocked stream receive (consumer unsubscribed).
func (b *binder) next(cancel <-chan struct{}) ([]driver.Value, bool, error) {
	if b.failed {
		return nil, false, nil
	}
	if len(b.sources) == 0 {
		if b.emitted {
			return nil, false, nil
		}
		b.emitted = true
		return nil, true, nil
	}
	if b.width < 0 {
		b.failed = true
		return nil, false, NewStatementError(b.token, "bind",
			fmt.Errorf("driver cannot report the placeholder count for %d parameter source(s); declare the width explicitly", len(b.sources)))
	}
	if b.width == 0 {
		b.failed = true
		return nil, false, NewStatementError(b.token, "bind",
			fmt.Errorf("statement has no placeholders but %d parameter source(s) declared", len(b.sources)))
	}

	for b.idx < len(b.sources) {
		src := b.sources[b.idx]
		if src.stream == nil {
			b.idx++
			if err := b.push(src.value); err != nil {
				return nil, false, err
			}
			if tuple := b.take(); tuple != nil {
				return tuple, true, nil
			}
			continue
		}

		// Drain the stream at this position until it closes, yielding
		// a tuple every time the buffer fills.
		for {
			select {
			case v, open := <-src.stream:
				if !open {
					b.idx++
				} else {
					if err := b.push(v); err != nil {
						return nil, false, err
					}
					if tuple := b.take(); tuple != nil {
						return tuple, true, nil
					}
					continue
				}
			case <-cancel:
				b.failed = true
				return nil, false, errCancelled
			}
			break
		}
	}

	if len(b.buf) > 0 {
		b.failed = true
		return nil, false, NewStatementError(b.token, "bind",
			fmt.Errorf("incomplete parameter tuple: %d value(s) left over for width %d", len(b.buf), b.width))
	}
	return nil, false, nil
}

func (b *binder) push(v any) error {
	val, err := driver.Normalize(v)
	if err != nil {
		b.failed = true
		return NewStatementError(b.token, "bind", err)
	}
	b.buf = append(b.buf, val)
	return nil
}

// take returns a finished tuple and resets the buffer, or nil if the
// buffer is still short of the width.
func (b *binder) take() []driver.Value {
	if len(b.buf) < b.width {
		return nil
	}
	tuple := make([]driver.Value, b.width)
	copy(tuple, b.buf)
	b.buf = b.buf[:0]
	b.emitted = true
	return tuple
}
