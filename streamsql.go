// Package streamsql composes blocking relational-database operations
// into asynchronous pipelines.
//
// A DB wraps an injected connection provider with a bounded worker
// pool. Callers build operations (statement text, parameters,
// dependencies, transaction affinity, row converter) and subscribe by
// asking for Rows or a Count; independent operations run concurrently,
// dependent ones start only after their upstreams complete, and
// transaction members share one pinned connection on one dedicated
// worker. Resources - connection, statement, cursor - release exactly
// once on every termination path, including consumer cancellation.
//
// Basic usage:
//
//	provider, _ := driver.OpenSQLite("app.db")
//	db := streamsql.Open(provider)
//	defer db.Close()
//
//	rows := db.Select("select name from person where name like ?").
//		Parameter("A%").
//		Rows()
//	for rows.Next(ctx) {
//		name, _ := rows.Record().String(0)
//		...
//	}
//	if err := rows.Err(); err != nil { ... }
//
// Dependencies and transactions:
//
//	update := db.Update("update person set score = ?").Parameter(0).Count()
//	report := db.Select("select count(*) from person").
//		DependsOn(update).
//		Rows()
//
//	begin, _ := db.BeginTransaction()
//	db.Update("insert into audit values (?)").Parameter("x").InTransaction().Count()
//	commit, _ := db.Commit()
//	after := db.Select("select * from audit").DependsOnLastTransaction().Rows()
package streamsql

import (
	"log/slog"
	"sync"

	"github.com/roach88/streamsql/internal/driver"
	"github.com/roach88/streamsql/internal/engine"
)

// Re-exported engine types forming the public surface.
type (
	// Completion is the terminal signal of an asynchronous sequence;
	// dependency lists are lists of Completions.
	Completion = engine.Completion

	// Rows is a lazy, forward-only result sequence.
	Rows = engine.Rows

	// Count is the affected-row result of an update.
	Count = engine.Count

	// Record is one raw fetched row.
	Record = engine.Record

	// Event is the terminal record observed by handlers.
	Event = engine.Event

	// Handler observes terminal events.
	Handler = engine.Handler

	// ConvertFunc maps a fetched row to a caller value.
	ConvertFunc = engine.ConvertFunc
)

// DB is the database facade: it owns the worker pool, the connection
// provider, the handler chain, and at most one active transaction.
// All state is per-instance; nothing here is ambient or global.
type DB struct {
	provider driver.Provider
	sched    *engine.Scheduler
	exec     *engine.Executor
	tokens   TokenGenerator
	log      *slog.Logger

	mu       sync.Mutex
	closed   bool
	activeTx *engine.Tx
	lastTx   *engine.Tx
}

// Option configures a DB at Open time.
type Option func(*config)

type config struct {
	workers int
	log     *slog.Logger
	tokens  TokenGenerator
}

// WithWorkers bounds the worker pool; excess ready operations queue in
// submission order. Default engine.DefaultWorkers.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithLogger sets the logger for lifecycle debug logs and handler
// panic reports.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithTokenGenerator overrides operation token generation; tests use
// NewFixedTokens for deterministic tokens.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(c *config) { c.tokens = g }
}

// Open builds a DB over the injected connection provider. The provider
// is owned by the DB from here on: Close closes it.
func Open(provider driver.Provider, opts ...Option) *DB {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.log == nil {
		cfg.log = slog.Default()
	}
	if cfg.tokens == nil {
		cfg.tokens = UUIDv7Tokens{}
	}

	sched := engine.NewScheduler(cfg.workers)
	exec := engine.NewExecutor(provider, sched, engine.NewHandlerChain(cfg.log), engine.NewClock(), cfg.log)
	return &DB{
		provider: provider,
		sched:    sched,
		exec:     exec,
		tokens:   cfg.tokens,
		log:      cfg.log,
	}
}

// Observe appends a terminal-event handler. Handlers run in
// registration order on every operation's terminal event; they observe
// and never alter results, and a panicking handler cannot suppress the
// event.
func (db *DB) Observe(h Handler) {
	db.exec.Chain().Register(h)
}

// Select starts building a row-streaming operation.
func (db *DB) Select(query string) *SelectBuilder {
	return &SelectBuilder{b: builderCore{db: db, query: query}}
}

// Update starts building an operation returning an affected-row count
// (INSERT, UPDATE, DELETE, DDL).
func (db *DB) Update(query string) *UpdateBuilder {
	return &UpdateBuilder{b: builderCore{db: db, query: query}}
}

// BeginTransaction opens a transaction after deps complete. At most one
// transaction may be open per DB; a second begin fails immediately.
//
// The returned Count completes when BEGIN has executed on the pinned
// connection. Subsequent operations join with InTransaction; Commit or
// Rollback release the connection.
func (db *DB) BeginTransaction(deps ...Completion) (*Count, error) {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil, engine.NewClosedError("")
	}
	if db.activeTx != nil && db.activeTx.State() != engine.TxClosed {
		token := db.activeTx.Token()
		db.mu.Unlock()
		return nil, engine.NewTransactionStateError("transaction " + token + " is still active")
	}
	tx := engine.NewTx(db.tokens.Generate())
	db.activeTx = tx
	db.lastTx = tx
	db.mu.Unlock()

	go func() {
		<-tx.Done()
		db.mu.Lock()
		if db.activeTx == tx {
			db.activeTx = nil
		}
		db.mu.Unlock()
	}()

	op := &engine.Operation{
		Token:   db.tokens.Generate(),
		Query:   "BEGIN",
		Kind:    engine.KindTxControl,
		Control: engine.CtlBegin,
		Deps:    deps,
		Tx:      tx,
	}
	return db.exec.Exec(op), nil
}

// Commit commits the open transaction. Besides deps, the commit waits
// on every member operation issued so far, then releases the pinned
// connection. A failed commit still releases the connection, and the
// commit error - not a secondary rollback error - propagates.
func (db *DB) Commit(deps ...Completion) (*Count, error) {
	return db.closeTx(engine.CtlCommit, "COMMIT", deps)
}

// Rollback rolls back the open transaction; same waiting and release
// discipline as Commit.
func (db *DB) Rollback(deps ...Completion) (*Count, error) {
	return db.closeTx(engine.CtlRollback, "ROLLBACK", deps)
}

func (db *DB) closeTx(ctl engine.TxControl, query string, deps []Completion) (*Count, error) {
	db.mu.Lock()
	tx := db.activeTx
	db.mu.Unlock()
	if tx == nil {
		return nil, engine.NewTransactionStateError("no open transaction")
	}

	members, err := tx.BeginControl(ctl)
	if err != nil {
		return nil, err
	}

	all := make([]Completion, 0, len(deps)+len(members))
	all = append(all, deps...)
	all = append(all, members...)

	op := &engine.Operation{
		Token:   db.tokens.Generate(),
		Query:   query,
		Kind:    engine.KindTxControl,
		Control: ctl,
		Deps:    all,
		Tx:      tx,
	}
	return db.exec.Exec(op), nil
}

// LastTransaction returns the most recently begun transaction's
// completion, which fires once that transaction is fully closed.
// Fails if no transaction was ever begun on this DB.
func (db *DB) LastTransaction() (Completion, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.lastTx == nil {
		return nil, engine.NewTransactionStateError("no transaction has been begun")
	}
	return db.lastTx, nil
}

// Close stops accepting operations and shuts the pool down. Running
// operations finish; operations still waiting for a worker fail with a
// closed error. An open transaction is rolled back so its pinned
// connection cannot leak. Idempotent; blocks until shutdown completes.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	tx := db.activeTx
	db.mu.Unlock()

	if tx != nil && tx.State() == engine.TxOpen {
		if members, err := tx.BeginControl(engine.CtlRollback); err == nil {
			op := &engine.Operation{
				Token:   db.tokens.Generate(),
				Query:   "ROLLBACK",
				Kind:    engine.KindTxControl,
				Control: engine.CtlRollback,
				Deps:    members,
				Tx:      tx,
			}
			cnt := db.exec.Exec(op)
			<-cnt.Done()
		}
	}

	db.sched.Close()
	return db.provider.Close()
}

// CloseAfter defers Close until every named dependency has terminated
// (with or without error). The returned Completion fires once the DB is
// fully closed, carrying the error Close would have returned.
func (db *DB) CloseAfter(deps ...Completion) Completion {
	sig := &closeSignal{done: make(chan struct{})}
	go func() {
		defer close(sig.done)
		for _, d := range deps {
			if d != nil {
				<-d.Done()
			}
		}
		sig.err = db.Close()
	}()
	return sig
}

// Clock exposes the engine's logical clock stamps for correlating
// terminal events; primarily useful in tests and handlers.
func (db *DB) Clock() *engine.Clock { return db.exec.Clock() }

func (db *DB) isClosed() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.closed
}

type closeSignal struct {
	done chan struct{}
	err  error // written before done closes
}

func (s *closeSignal) Done() <-chan struct{} { return s.done }
func (s *closeSignal) Err() error            { return s.err }

// IsConnectionError and friends re-export the engine's error
// predicates so callers can classify terminal errors without importing
// internal packages.
var (
	IsConnectionError       = engine.IsConnectionError
	IsStatementError        = engine.IsStatementError
	IsMappingError          = engine.IsMappingError
	IsDependencyError       = engine.IsDependencyError
	IsTransactionStateError = engine.IsTransactionStateError
	IsClosedError           = engine.IsClosedError
)
