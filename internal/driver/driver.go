// Package driver defines the blocking database access collaborators the
// engine is built over: a connection provider, connections, prepared
// statements, and cursors.
//
// The interfaces are deliberately small and synchronous. Every call may
// block; the engine supplies the concurrency on top (worker pool,
// transaction pinning, cancellation). Implementations must make Close
// idempotent on every handle - the engine's release discipline may close
// a handle on more than one path and relies on the second close being a
// no-op.
//
// A production SQLite implementation lives in sqlite.go. Tests use the
// tracking provider in internal/testutil.
package driver

import (
	"context"
	"fmt"
	"time"
)

// Value is a parameter or column value crossing the driver boundary.
//
// Allowed types mirror database/sql/driver: nil, int64, float64, bool,
// string, []byte, time.Time. Normalize converts common Go types into
// this set.
type Value = any

// Provider hands out connections. It is injected into the facade; the
// engine never implements pooling itself.
type Provider interface {
	// Acquire returns a ready connection or an error when the provider
	// is exhausted, closed, or the context is cancelled.
	Acquire(ctx context.Context) (Conn, error)

	// Close releases everything the provider owns. Idempotent.
	Close() error
}

// Conn is a single database connection. A connection is used by one
// operation at a time, or pinned to one transaction for its lifetime.
type Conn interface {
	// Prepare compiles a statement on this connection.
	Prepare(ctx context.Context, query string) (Stmt, error)

	// Close returns the connection to wherever it came from, or tears
	// it down. Idempotent.
	Close() error
}

// Stmt is a prepared statement. One Stmt executes once per parameter
// tuple; the cursor from each execution must be closed before the next.
type Stmt interface {
	// NumInput reports the number of parameter placeholders, or -1 when
	// the driver cannot tell.
	NumInput() int

	// Query binds args and executes, returning a cursor over the result
	// rows.
	Query(ctx context.Context, args []Value) (Cursor, error)

	// Exec binds args and executes a statement that returns no rows,
	// reporting the number of affected rows.
	Exec(ctx context.Context, args []Value) (int64, error)

	// Close releases the statement. Idempotent.
	Close() error
}

// Cursor is a forward-only iterator over the rows of one execution.
type Cursor interface {
	// Columns returns the result column names.
	Columns() []string

	// Next fetches the next row into dest, which has len(Columns())
	// slots. Returns io.EOF after the last row. Values written into
	// dest are only valid until the following Next call.
	Next(dest []Value) error

	// Close releases the cursor. Idempotent.
	Close() error
}

// Normalize converts v into the driver Value set. Integer and float
// widths are widened; unsupported types are rejected so bind errors
// surface before execution rather than inside the driver.
func Normalize(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case int64, float64, bool, string, []byte, time.Time:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float32:
		return float64(x), nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %T", v)
	}
}
