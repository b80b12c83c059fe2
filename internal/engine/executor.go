package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/streamsql/internal/driver"
)

// Executor runs operations: it gates each one on its dependencies,
// admits it to the scheduler (or its transaction's dedicated worker),
// drives the resource guard, and dispatches the terminal event.
//
// One Executor serves one Database facade. It owns no global state;
// the handler chain and clock are instance-scoped.
type Executor struct {
	provider driver.Provider
	sched    *Scheduler
	chain    *HandlerChain
	clock    *Clock
	log      *slog.Logger
}

// NewExecutor wires an executor over the given collaborators. A nil
// logger discards nothing; it falls back to slog.Default.
func NewExecutor(p driver.Provider, sched *Scheduler, chain *HandlerChain, clock *Clock, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	if clock == nil {
		clock = NewClock()
	}
	if chain == nil {
		chain = NewHandlerChain(log)
	}
	return &Executor{
		provider: p,
		sched:    sched,
		chain:    chain,
		clock:    clock,
		log:      log,
	}
}

// Clock exposes the engine's logical clock (used by tests and the
// facade to relate event stamps).
func (e *Executor) Clock() *Clock { return e.clock }

// Chain exposes the handler chain for registration.
func (e *Executor) Chain() *HandlerChain { return e.chain }

// execution is the mutable state of one subscription.
type execution struct {
	op     *Operation
	ctx    context.Context
	cancel context.CancelFunc
	l      *latch
	out    chan rowItem // nil for exec-style operations
	cnt    *Count       // nil for query-style operations
	once   sync.Once
}

// Query starts one execution of a row-streaming operation. The returned
// Rows is lazy: no resource is acquired until the dependencies have
// completed and a worker picks the operation up, and rows are fetched
// as the consumer iterates.
func (e *Executor) Query(op *Operation) *Rows {
	ctx, cancel := context.WithCancel(context.Background())
	l := newLatch()
	out := make(chan rowItem)
	rows := &Rows{ch: out, comp: l, cancel: cancel}
	x := &execution{op: op, ctx: ctx, cancel: cancel, l: l, out: out}
	e.start(x, rows)
	return rows
}

// Exec starts one execution of a count-style operation (updates and
// transaction control statements).
func (e *Executor) Exec(op *Operation) *Count {
	ctx, cancel := context.WithCancel(context.Background())
	l := newLatch()
	cnt := &Count{comp: l, cancel: cancel}
	x := &execution{op: op, ctx: ctx, cancel: cancel, l: l, cnt: cnt}
	e.start(x, cnt)
	return cnt
}

// start registers transaction membership, gates on dependencies, and
// admits the execution. comp is the public completion handed to
// dependents and to the transaction's member list.
func (e *Executor) start(x *execution, comp Completion) {
	op := x.op

	// Members and the begin statement join the transaction's member
	// list, so commit/rollback implicitly wait on all of them.
	if op.Tx != nil && (op.Kind != KindTxControl || op.Control == CtlBegin) {
		if !op.Tx.acceptMember(comp) {
			e.finish(x, guardResult{err: NewTransactionStateError(
				"transaction " + op.Tx.Token() + " is " + op.Tx.State().String() + ", not open")})
			return
		}
	}

	// A member must not reach the dedicated worker before BEGIN has
	// pinned the connection, so it implicitly depends on the begin
	// statement's completion.
	if op.Tx != nil && op.Kind != KindTxControl {
		op.Deps = append(op.Deps, op.Tx.Begun())
	}

	e.log.Debug("operation subscribed",
		"op", op.Token, "deps", len(op.Deps), "tx", op.Tx != nil)

	// Fast path: every dependency already completed. This keeps
	// submission order deterministic for operations that are ready at
	// subscribe time.
	ready, err := depsReady(op.Token, op.Deps)
	if err != nil {
		e.finish(x, guardResult{err: err})
		return
	}
	if ready {
		e.admit(x)
		return
	}

	go func() {
		err := awaitDeps(x.ctx.Done(), op.Token, op.Deps)
		if err != nil {
			e.finish(x, guardResult{err: err})
			return
		}
		e.admit(x)
	}()
}

// depsReady is the non-blocking readiness check. (false, nil) means at
// least one upstream is still running.
func depsReady(token string, deps []Completion) (bool, error) {
	for _, d := range deps {
		if d == nil {
			continue
		}
		select {
		case <-d.Done():
			if err := d.Err(); err != nil {
				return false, NewDependencyError(token, err)
			}
		default:
			return false, nil
		}
	}
	return true, nil
}

// admit hands the ready execution to a worker.
func (e *Executor) admit(x *execution) {
	task := func() {
		e.finish(x, e.runGuarded(x.ctx, x.op, x.out, x.cnt))
	}

	if x.op.Tx != nil {
		if !x.op.Tx.worker.Submit(task) {
			e.finish(x, guardResult{err: NewTransactionStateError(
				"transaction " + x.op.Tx.Token() + " is closed")})
		}
		return
	}
	if !e.sched.Submit(task, func() {
		e.finish(x, guardResult{err: NewClosedError(x.op.Token)})
	}) {
		e.finish(x, guardResult{err: NewClosedError(x.op.Token)})
	}
}

// finish terminates the execution exactly once: transaction closing,
// terminal event dispatch, completion latch, channel close.
func (e *Executor) finish(x *execution, res guardResult) {
	x.once.Do(func() {
		op := x.op
		seq := e.clock.Next()

		primary := res.err
		cancelled := primary == errCancelled
		if cancelled {
			primary = nil
		}
		relErr := res.releaseErr

		// Closing control statements release the pinned connection
		// before the terminal event, so the event carries any release
		// failure; a begin that failed closes the transaction too.
		if op.Kind == KindTxControl && op.Tx != nil {
			switch {
			case op.Control == CtlCommit || op.Control == CtlRollback:
				if err := op.Tx.releaseConn(); err != nil && relErr == nil {
					relErr = err
				}
			case op.Control == CtlBegin && (primary != nil || cancelled):
				if err := op.Tx.releaseConn(); err != nil && relErr == nil {
					relErr = err
				}
			}
		}

		ev := Event{
			Token:      op.Token,
			Query:      op.Query,
			Err:        primary,
			ReleaseErr: relErr,
			Cancelled:  cancelled,
			Rows:       res.rows,
			Affected:   res.affected,
			InTx:       op.Tx != nil,
			AcquireSeq: res.acquireSeq,
			DoneSeq:    seq,
		}

		if primary != nil {
			e.log.Debug("operation failed", "op", op.Token, "err", primary)
		} else {
			e.log.Debug("operation finished",
				"op", op.Token, "rows", res.rows, "affected", res.affected,
				"cancelled", cancelled)
		}

		e.chain.dispatch(ev)

		// Transaction terminal transitions fire before the control
		// operation's own completion, so a dependent of either signal
		// observes post-commit state.
		if op.Kind == KindTxControl && op.Tx != nil {
			switch {
			case op.Control == CtlCommit || op.Control == CtlRollback:
				op.Tx.close(primary, seq)
			case op.Control == CtlBegin && (primary != nil || cancelled):
				op.Tx.close(primary, seq)
			}
			if op.Control == CtlBegin {
				op.Tx.markBegun(primary, seq)
			}
		}

		x.l.fire(res.err, seq)
		if x.out != nil {
			close(x.out)
		}
	})
}
