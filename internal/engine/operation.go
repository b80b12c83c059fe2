package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"
)

// OpKind distinguishes what an operation does with its statement.
type OpKind int

const (
	// KindQuery executes a statement returning rows.
	KindQuery OpKind = iota + 1
	// KindExec executes a statement returning an affected-row count.
	KindExec
	// KindTxControl executes BEGIN/COMMIT/ROLLBACK on a transaction's
	// pinned connection.
	KindTxControl
)

// errCancelled marks consumer-driven unsubscription internally. It is
// never surfaced: a cancelled operation completes without error after
// releasing its resources.
var errCancelled = errors.New("operation cancelled")

// ConvertFunc maps one fetched row to a caller value. Fixed when the
// operation is built, never resolved per row. A nil ConvertFunc leaves
// the Record itself as the streamed value.
type ConvertFunc func(Record) (any, error)

// Operation is the immutable description of one logical database
// statement request. Executing it (Executor.Execute) never mutates it;
// each execution carries its own state, so one Operation value may be
// executed any number of times, once per subscription.
type Operation struct {
	// Token identifies the operation in logs and terminal events.
	Token string

	// Query is the statement text, passed to the driver verbatim.
	Query string

	// Kind selects row streaming vs. affected-count execution.
	Kind OpKind

	// Params are the parameter sources, in placeholder order.
	Params []ParamSource

	// Width overrides the placeholder count when > 0. Otherwise the
	// prepared statement's own count is used.
	Width int

	// Deps must all complete without error before any resource is
	// acquired.
	Deps []Completion

	// Tx pins the operation to a transaction's connection and worker.
	// Nil for standalone operations.
	Tx *Tx

	// Control selects the control statement for KindTxControl.
	Control TxControl

	// Convert maps each row; nil streams raw Records.
	Convert ConvertFunc
}

// Record is one fetched row: column names plus driver values, fully
// copied out of the cursor, so it stays valid after the cursor advances.
type Record struct {
	cols []string
	vals []any
}

// NewRecord builds a Record. The slices are retained, not copied;
// callers hand over ownership.
func NewRecord(cols []string, vals []any) Record {
	return Record{cols: cols, vals: vals}
}

// Len returns the number of columns.
func (r Record) Len() int { return len(r.vals) }

// Columns returns the column names in result order.
func (r Record) Columns() []string { return r.cols }

// Value returns the raw value at column i.
func (r Record) Value(i int) any { return r.vals[i] }

// Get returns the value of the named column.
func (r Record) Get(name string) (any, bool) {
	for i, c := range r.cols {
		if c == name {
			return r.vals[i], true
		}
	}
	return nil, false
}

// String returns column i as a string. []byte columns are copied.
func (r Record) String(i int) (string, error) {
	switch v := r.vals[i].(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("column %d: cannot read %T as string", i, v)
	}
}

// Int64 returns column i as an int64.
func (r Record) Int64(i int) (int64, error) {
	switch v := r.vals[i].(type) {
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("column %d: cannot read %T as int64", i, v)
	}
}

// Float64 returns column i as a float64.
func (r Record) Float64(i int) (float64, error) {
	switch v := r.vals[i].(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("column %d: cannot read %T as float64", i, v)
	}
}

// Bool returns column i as a bool.
func (r Record) Bool(i int) (bool, error) {
	switch v := r.vals[i].(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("column %d: cannot read %T as bool", i, v)
	}
}

// Time returns column i as a time.Time.
func (r Record) Time(i int) (time.Time, error) {
	switch v := r.vals[i].(type) {
	case time.Time:
		return v, nil
	default:
		return time.Time{}, fmt.Errorf("column %d: cannot read %T as time", i, v)
	}
}

// Bytes returns a copy of column i's raw bytes. Large-object columns
// are materialized this way: the copy is taken before the cursor ever
// advances, so the returned slice has no lifetime constraints.
func (r Record) Bytes(i int) ([]byte, error) {
	switch v := r.vals[i].(type) {
	case []byte:
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	case string:
		return []byte(v), nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("column %d: cannot read %T as bytes", i, v)
	}
}

// Reader returns a streaming handle over column i for converters that
// want a large object as a stream. The handle is valid only while this
// row is being consumed; use Bytes for a value that outlives the row.
func (r Record) Reader(i int) (io.Reader, error) {
	switch v := r.vals[i].(type) {
	case []byte:
		return bytes.NewReader(v), nil
	case string:
		return bytes.NewReader([]byte(v)), nil
	case nil:
		return bytes.NewReader(nil), nil
	default:
		return nil, fmt.Errorf("column %d: cannot stream %T", i, v)
	}
}
