package engine

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/roach88/streamsql/internal/driver"
)

// resourceSet owns the driver handles of one execution and guarantees
// each is released exactly once, on whichever exit path comes first:
// natural completion, propagated error, or consumer cancellation.
//
// Release failures are collected as a secondary signal (first failure
// wins) and never mask the primary result. The sync.Once per handle
// makes double release observable as a single underlying close even if
// the driver's own Close is not idempotent.
type resourceSet struct {
	conn      driver.Conn
	connOwned bool // false when the connection belongs to a transaction
	stmt      driver.Stmt
	cursor    driver.Cursor

	connOnce sync.Once
	stmtOnce sync.Once
	curOnce  sync.Once

	mu     sync.Mutex
	relErr error
}

func (rs *resourceSet) record(err error) {
	if err == nil {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.relErr == nil {
		rs.relErr = err
	}
}

// releaseCursor closes the cursor of the current tuple, once.
func (rs *resourceSet) releaseCursor() {
	cur := rs.cursor
	if cur == nil {
		return
	}
	rs.curOnce.Do(func() {
		rs.record(cur.Close())
	})
}

// nextCursor installs the cursor of the next tuple, re-arming the
// release guard. The previous cursor must already be released.
func (rs *resourceSet) nextCursor(c driver.Cursor) {
	rs.cursor = c
	rs.curOnce = sync.Once{}
}

// releaseAll tears down whatever was acquired, inner handles first.
// Connections pinned to a transaction are left alone; the transaction
// releases them at commit/rollback.
func (rs *resourceSet) releaseAll() {
	rs.releaseCursor()
	if rs.stmt != nil {
		rs.stmtOnce.Do(func() {
			rs.record(rs.stmt.Close())
		})
	}
	if rs.conn != nil && rs.connOwned {
		rs.connOnce.Do(func() {
			rs.record(rs.conn.Close())
		})
	}
}

// releaseErr returns the first release failure, or nil.
func (rs *resourceSet) releaseErr() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.relErr
}

// guardResult is what one guarded run reports back to the executor.
type guardResult struct {
	err        error // primary; errCancelled for unsubscription
	releaseErr error
	rows       int64
	affected   int64
	acquireSeq int64
}

// runGuarded performs the blocking half of one execution on the
// assigned worker goroutine: acquire, prepare, bind each resolved
// tuple, execute, stream rows, release. ctx is the operation's
// cancellation token, checked before every acquisition step.
func (e *Executor) runGuarded(ctx context.Context, op *Operation, out chan<- rowItem, cnt *Count) guardResult {
	var res guardResult
	rs := &resourceSet{}
	defer func() {
		rs.releaseAll()
		res.releaseErr = rs.releaseErr()
	}()

	// Never-run check: a consumer who unsubscribed before this worker
	// started must not cause any driver call.
	if ctx.Err() != nil {
		res.err = errCancelled
		return res
	}

	conn, owned, err := e.acquireConn(ctx, op)
	if err != nil {
		res.err = err
		return res
	}
	rs.conn, rs.connOwned = conn, owned
	res.acquireSeq = e.clock.Next()

	if ctx.Err() != nil {
		res.err = errCancelled
		return res
	}

	stmt, err := conn.Prepare(ctx, op.Query)
	if err != nil {
		if ctx.Err() != nil {
			res.err = errCancelled
			return res
		}
		res.err = NewStatementError(op.Token, "prepare", err)
		return res
	}
	rs.stmt = stmt

	width := op.Width
	if width <= 0 {
		width = stmt.NumInput()
	}

	b := newBinder(op.Token, op.Params, width)
	for {
		tuple, ok, err := b.next(ctx.Done())
		if err != nil {
			res.err = err
			return res
		}
		if !ok {
			return res
		}
		if ctx.Err() != nil {
			res.err = errCancelled
			return res
		}

		if op.Kind == KindQuery {
			err = e.streamTuple(ctx, op, rs, tuple, out, &res)
		} else {
			var n int64
			n, err = stmt.Exec(ctx, tuple)
			if err == nil {
				res.affected += n
				if cnt != nil {
					cnt.add(n)
				}
			} else if ctx.Err() != nil {
				err = errCancelled
			} else {
				err = NewStatementError(op.Token, "execute", err)
			}
		}
		if err != nil {
			res.err = err
			return res
		}
	}
}

// acquireConn resolves the connection: the pinned one for transaction
// members, a fresh one from the provider otherwise. A begin control
// statement acquires from the provider and pins it to the transaction.
func (e *Executor) acquireConn(ctx context.Context, op *Operation) (driver.Conn, bool, error) {
	if op.Tx != nil {
		if op.Kind == KindTxControl && op.Control == CtlBegin {
			conn, err := e.provider.Acquire(ctx)
			if err != nil {
				return nil, false, NewConnectionError(op.Token, err)
			}
			op.Tx.pin(conn)
			return conn, false, nil
		}
		conn := op.Tx.connection()
		if conn == nil {
			return nil, false, NewTransactionStateError(
				fmt.Sprintf("transaction %s has no pinned connection", op.Tx.Token()))
		}
		return conn, false, nil
	}

	conn, err := e.provider.Acquire(ctx)
	if err != nil {
		return nil, false, NewConnectionError(op.Token, err)
	}
	return conn, true, nil
}

// streamTuple executes one bound tuple and hands every row to the
// consumer. The cursor is released before returning, success or not.
func (e *Executor) streamTuple(ctx context.Context, op *Operation, rs *resourceSet, tuple []driver.Value, out chan<- rowItem, res *guardResult) error {
	cursor, err := rs.stmt.Query(ctx, tuple)
	if err != nil {
		if ctx.Err() != nil {
			return errCancelled
		}
		return NewStatementError(op.Token, "execute", err)
	}
	rs.nextCursor(cursor)
	defer rs.releaseCursor()

	cols := cursor.Columns()
	dest := make([]driver.Value, len(cols))
	for {
		if err := cursor.Next(dest); err != nil {
			if err == io.EOF {
				return nil
			}
			if ctx.Err() != nil {
				return errCancelled
			}
			return NewStatementError(op.Token, "fetch", err)
		}

		rec := copyRecord(cols, dest)
		val := any(rec)
		if op.Convert != nil {
			converted, err := op.Convert(rec)
			if err != nil {
				return NewMappingError(op.Token, err)
			}
			val = converted
		}

		select {
		case out <- rowItem{rec: rec, val: val}:
			res.rows++
		case <-ctx.Done():
			return errCancelled
		}
	}
}

// copyRecord materializes a cursor row. Byte slices are copied in full
// before the cursor can advance, so Records have no hidden lifetime
// ties to the driver.
func copyRecord(cols []string, dest []driver.Value) Record {
	vals := make([]any, len(dest))
	for i, v := range dest {
		if b, isBytes := v.([]byte); isBytes {
			cp := make([]byte, len(b))
			copy(cp, b)
			vals[i] = cp
			continue
		}
		vals[i] = v
	}
	return NewRecord(cols, vals)
}
