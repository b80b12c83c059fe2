package engine

import (
	"sync"

	"github.com/roach88/streamsql/internal/driver"
)

// TxControl identifies the control statement of a KindTxControl
// operation.
type TxControl int

const (
	// CtlBegin opens the transaction and pins its connection.
	CtlBegin TxControl = iota + 1
	// CtlCommit commits and releases the pinned connection.
	CtlCommit
	// CtlRollback rolls back and releases the pinned connection.
	CtlRollback
)

// TxState is the lifecycle state of a transaction.
//
// Transitions: Open -> (Committing | RollingBack) -> Closed. The Open
// state is entered at construction (begin); Closed once the control
// statement has finished and the connection is released.
type TxState int

const (
	// TxOpen accepts member operations.
	TxOpen TxState = iota + 1
	// TxCommitting has an in-flight commit; no new members.
	TxCommitting
	// TxRollingBack has an in-flight rollback; no new members.
	TxRollingBack
	// TxClosed is terminal; the connection has been released.
	TxClosed
)

func (s TxState) String() string {
	switch s {
	case TxOpen:
		return "open"
	case TxCommitting:
		return "committing"
	case TxRollingBack:
		return "rolling-back"
	case TxClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Tx is one transaction: a pinned connection shared by an ordered
// sequence of member operations between begin and commit/rollback.
//
// All members run on the transaction's dedicated worker, strictly
// sequentially. That pinning is the only mechanism keeping the shared
// connection single-threaded; there is no per-connection lock.
//
// Tx is a Completion: Done closes when the transaction reaches Closed,
// carrying the commit/rollback error if any. Operations declaring
// "depends on last transaction" wait on exactly this signal, so they
// observe post-commit state.
type Tx struct {
	token  string
	worker *txWorker
	done   *latch
	begun  *latch

	mu      sync.Mutex
	state   TxState
	conn    driver.Conn
	members []Completion
}

// NewTx creates an Open transaction with its dedicated worker running.
func NewTx(token string) *Tx {
	return &Tx{
		token:  token,
		worker: newTxWorker(),
		done:   newLatch(),
		begun:  newLatch(),
		state:  TxOpen,
	}
}

// Token identifies the transaction in logs and errors.
func (t *Tx) Token() string { return t.token }

// State returns the current lifecycle state.
func (t *Tx) State() TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done closes when the transaction is Closed.
func (t *Tx) Done() <-chan struct{} { return t.done.Done() }

// Err returns the commit/rollback error after Done, nil on success.
func (t *Tx) Err() error { return t.done.Err() }

// CompletionSeq returns the logical stamp of the Closed transition.
func (t *Tx) CompletionSeq() int64 { return t.done.Seq() }

// Begun returns the completion of the BEGIN control statement. Every
// member implicitly waits on it, so no member reaches the dedicated
// worker before the connection is pinned, even when the begin itself
// carries dependencies.
func (t *Tx) Begun() Completion { return t.begun }

// markBegun fires the begin completion with the BEGIN statement's
// primary error.
func (t *Tx) markBegun(err error, seq int64) {
	t.begun.fire(err, seq)
}

// pin records the connection acquired by the begin control statement.
func (t *Tx) pin(conn driver.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn = conn
}

func (t *Tx) connection() driver.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

// acceptMember registers a member operation's completion while the
// transaction is Open. Returns false once a control call has started.
func (t *Tx) acceptMember(c Completion) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TxOpen {
		return false
	}
	t.members = append(t.members, c)
	return true
}

// BeginControl transitions Open -> Committing/RollingBack and returns
// the members issued so far, which become implicit dependencies of the
// control statement. Fails unless the transaction is Open.
func (t *Tx) BeginControl(ctl TxControl) ([]Completion, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TxOpen {
		return nil, NewTransactionStateError(
			"transaction " + t.token + " is " + t.state.String() + ", not open")
	}
	switch ctl {
	case CtlCommit:
		t.state = TxCommitting
	case CtlRollback:
		t.state = TxRollingBack
	default:
		return nil, NewTransactionStateError("begin is not a closing control")
	}
	snapshot := make([]Completion, len(t.members))
	copy(snapshot, t.members)
	return snapshot, nil
}

// releaseConn releases the pinned connection, once. The connection is
// released on a failed commit too - exactly as a rollback would - while
// the commit error itself propagates separately.
//
// Returns the release failure, if any, as a secondary signal for the
// control operation's terminal event.
func (t *Tx) releaseConn() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// close completes the Closed transition: stops the dedicated worker and
// fires the completion latch with the control statement's primary
// error. The connection must already be released.
func (t *Tx) close(primary error, seq int64) {
	t.mu.Lock()
	t.state = TxClosed
	t.mu.Unlock()

	t.worker.queue.Close()
	t.done.fire(primary, seq)
}

var _ Completion = (*Tx)(nil)
