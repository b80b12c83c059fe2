package streamsql

import (
	"context"
	"fmt"
)

// AsString converts single-column rows to string.
func AsString() ConvertFunc {
	return func(r Record) (any, error) { return r.String(0) }
}

// AsInt64 converts single-column rows to int64.
func AsInt64() ConvertFunc {
	return func(r Record) (any, error) { return r.Int64(0) }
}

// AsBytes converts single-column rows to a fully materialized byte
// slice; the copy is taken before the cursor advances.
func AsBytes() ConvertFunc {
	return func(r Record) (any, error) { return r.Bytes(0) }
}

// Collect drains rows and returns every converted value as T. The
// operation must have been built with a converter producing T.
func Collect[T any](ctx context.Context, rows *Rows) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next(ctx) {
		v, seen := rows.Value().(T)
		if !seen {
			return nil, fmt.Errorf("collect: value %T is not the requested type", rows.Value())
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// One drains rows expecting exactly one converted value.
func One[T any](ctx context.Context, rows *Rows) (T, error) {
	var zero T
	vals, err := Collect[T](ctx, rows)
	if err != nil {
		return zero, err
	}
	if len(vals) != 1 {
		return zero, fmt.Errorf("one: expected a single row, got %d", len(vals))
	}
	return vals[0], nil
}
