package driver

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	sqldriver "database/sql/driver"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLiteProvider opens SQLite connections for the engine.
//
// It is intentionally not a pool: Acquire opens a fresh connection and
// Close on the handle tears it down. SQLite connections are cheap and
// the engine already bounds concurrency with its worker pool, so a pool
// on top would only add a second queue.
//
// Connections are opened with:
//   - WAL mode for concurrent reads during writes (file databases)
//   - 5-second busy timeout for lock contention
//   - foreign key enforcement
type SQLiteProvider struct {
	dsn string
	drv *sqlite3.SQLiteDriver

	mu     sync.Mutex
	closed bool
}

// OpenSQLite creates a provider for the database file at path.
// The file is created on first connection if it does not exist.
func OpenSQLite(path string) (*SQLiteProvider, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: empty database path")
	}
	dsn := fmt.Sprintf(
		"file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on",
		url.PathEscape(path),
	)
	return &SQLiteProvider{dsn: dsn, drv: &sqlite3.SQLiteDriver{}}, nil
}

// OpenSQLiteMemory creates a provider for a shared in-memory database.
// All connections from one provider see the same data; the database
// vanishes when the last connection closes. name keeps independent
// in-memory databases apart within one process.
func OpenSQLiteMemory(name string) (*SQLiteProvider, error) {
	if name == "" {
		name = "streamsql"
	}
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_busy_timeout=5000&_foreign_keys=on",
		url.PathEscape(name),
	)
	return &SQLiteProvider{dsn: dsn, drv: &sqlite3.SQLiteDriver{}}, nil
}

// Acquire opens a new connection. Fails once the provider is closed.
func (p *SQLiteProvider) Acquire(ctx context.Context) (Conn, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("sqlite: provider is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := p.drv.Open(p.dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open connection: %w", err)
	}
	return &sqliteConn{raw: raw.(*sqlite3.SQLiteConn)}, nil
}

// Close marks the provider closed. Connections already handed out keep
// working until individually closed.
func (p *SQLiteProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type sqliteConn struct {
	raw *sqlite3.SQLiteConn

	mu     sync.Mutex
	closed bool
}

func (c *sqliteConn) Prepare(ctx context.Context, query string) (Stmt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := c.raw.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &sqliteStmt{raw: st}, nil
}

func (c *sqliteConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.raw.Close()
}

type sqliteStmt struct {
	raw sqldriver.Stmt

	mu     sync.Mutex
	closed bool
}

func (s *sqliteStmt) NumInput() int {
	return s.raw.NumInput()
}

func (s *sqliteStmt) Query(ctx context.Context, args []Value) (Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.raw.Query(toDriverValues(args))
	if err != nil {
		return nil, err
	}
	return &sqliteCursor{raw: rows}, nil
}

func (s *sqliteStmt) Exec(ctx context.Context, args []Value) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	res, err := s.raw.Exec(toDriverValues(args))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Statement ran; affected-row accounting is best effort.
		return 0, nil
	}
	return n, nil
}

func (s *sqliteStmt) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.raw.Close()
}

type sqliteCursor struct {
	raw sqldriver.Rows

	mu     sync.Mutex
	closed bool

	// scratch avoids re-allocating the driver-side dest on each fetch.
	scratch []sqldriver.Value
}

func (c *sqliteCursor) Columns() []string {
	return c.raw.Columns()
}

func (c *sqliteCursor) Next(dest []Value) error {
	if c.scratch == nil {
		c.scratch = make([]sqldriver.Value, len(c.raw.Columns()))
	}
	if err := c.raw.Next(c.scratch); err != nil {
		return err
	}
	for i := range c.scratch {
		dest[i] = c.scratch[i]
	}
	return nil
}

func (c *sqliteCursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.raw.Close()
}

func toDriverValues(args []Value) []sqldriver.Value {
	out := make([]sqldriver.Value, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}

// Compile-time interface checks.
var (
	_ Provider = (*SQLiteProvider)(nil)
	_ Conn     = (*sqliteConn)(nil)
	_ Stmt     = (*sqliteStmt)(nil)
	_ Cursor   = (*sqliteCursor)(nil)
)
