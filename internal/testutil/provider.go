// Package testutil provides test doubles for the engine: a tracking
// connection provider with scripted results and open-handle accounting,
// and manually-fired completion signals.
package testutil

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/roach88/streamsql/internal/driver"
)

// Script describes the mock behavior for one query string.
type Script struct {
	// Cols and Rows are the result of a Query execution.
	Cols []string
	Rows [][]any

	// RowsFunc, when set, computes rows per bound tuple (takes
	// precedence over Rows). Lets one statement return different
	// results per parameter tuple.
	RowsFunc func(args []driver.Value) [][]any

	// Affected is the result of an Exec execution.
	Affected int64

	// Inputs is the placeholder count reported by NumInput. When zero
	// it defaults to the number of '?' in the query text.
	Inputs int

	// FetchDelay is applied before each row fetch, to widen
	// cancellation windows.
	FetchDelay time.Duration

	// PrepareErr / ExecErr force failures at the respective stage.
	PrepareErr error
	ExecErr    error

	// CursorCloseErr makes the cursor's release fail. The handle still
	// counts as closed; the error is the secondary release signal.
	CursorCloseErr error
}

// Provider is a driver.Provider double that scripts results per query
// and accounts for every handle it hands out. Tests assert on
// OpenHandles() == 0 to prove the release discipline, and on
// PrepareCount to prove never-run behavior.
type Provider struct {
	mu         sync.Mutex
	scripts    map[string]*Script
	acquireErr error
	closeErr   error
	closed     bool

	nextConnID  int
	openConns   int
	openStmts   int
	openCursors int

	// prepares records (query, conn id) in prepare order.
	prepares []PrepareRecord
}

// PrepareRecord is one observed statement preparation.
type PrepareRecord struct {
	Query  string
	ConnID int
}

// NewProvider creates an empty tracking provider. Unknown queries
// prepare fine and return no rows / zero affected.
func NewProvider() *Provider {
	return &Provider{scripts: make(map[string]*Script)}
}

// ScriptQuery registers the behavior for query.
func (p *Provider) ScriptQuery(query string, s Script) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := s
	p.scripts[query] = &cp
}

// FailAcquire makes every subsequent Acquire fail with err.
func (p *Provider) FailAcquire(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquireErr = err
}

// OpenHandles returns the net number of open connections, statements,
// and cursors.
func (p *Provider) OpenHandles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openConns + p.openStmts + p.openCursors
}

// OpenConns returns the net number of open connections.
func (p *Provider) OpenConns() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openConns
}

// PrepareCount returns how many times query was prepared.
func (p *Provider) PrepareCount(query string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, r := range p.prepares {
		if r.Query == query {
			n++
		}
	}
	return n
}

// ConnsFor returns the distinct connection IDs query was prepared on.
func (p *Provider) ConnsFor(query string) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []int
	for _, r := range p.prepares {
		if r.Query == query {
			ids = append(ids, r.ConnID)
		}
	}
	return ids
}

// Prepares returns every observed preparation in order.
func (p *Provider) Prepares() []PrepareRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PrepareRecord, len(p.prepares))
	copy(out, p.prepares)
	return out
}

// Acquire implements driver.Provider.
func (p *Provider) Acquire(ctx context.Context) (driver.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("provider closed")
	}
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	p.nextConnID++
	p.openConns++
	return &mockConn{p: p, id: p.nextConnID}, nil
}

// FailClose makes the provider's own Close report err.
func (p *Provider) FailClose(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeErr = err
}

// Close implements driver.Provider.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.closeErr
}

func (p *Provider) script(query string) *Script {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, found := p.scripts[query]; found {
		return s
	}
	return &Script{}
}

type mockConn struct {
	p  *Provider
	id int

	mu     sync.Mutex
	closed bool
}

func (c *mockConn) Prepare(ctx context.Context, query string) (driver.Stmt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := c.p.script(query)

	c.p.mu.Lock()
	c.p.prepares = append(c.p.prepares, PrepareRecord{Query: query, ConnID: c.id})
	if s.PrepareErr != nil {
		c.p.mu.Unlock()
		return nil, s.PrepareErr
	}
	c.p.openStmts++
	c.p.mu.Unlock()

	return &mockStmt{p: c.p, query: query, script: s}, nil
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.p.mu.Lock()
	c.p.openConns--
	c.p.mu.Unlock()
	return nil
}

type mockStmt struct {
	p      *Provider
	query  string
	script *Script

	mu     sync.Mutex
	closed bool
}

func (s *mockStmt) NumInput() int {
	if s.script.Inputs > 0 {
		return s.script.Inputs
	}
	return strings.Count(s.query, "?")
}

func (s *mockStmt) Query(ctx context.Context, args []driver.Value) (driver.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.script.ExecErr != nil {
		return nil, s.script.ExecErr
	}
	rows := s.script.Rows
	if s.script.RowsFunc != nil {
		rows = s.script.RowsFunc(args)
	}

	s.p.mu.Lock()
	s.p.openCursors++
	s.p.mu.Unlock()

	return &mockCursor{
		p:        s.p,
		cols:     s.script.Cols,
		rows:     rows,
		delay:    s.script.FetchDelay,
		closeErr: s.script.CursorCloseErr,
	}, nil
}

func (s *mockStmt) Exec(ctx context.Context, args []driver.Value) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.script.ExecErr != nil {
		return 0, s.script.ExecErr
	}
	return s.script.Affected, nil
}

func (s *mockStmt) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.p.mu.Lock()
	s.p.openStmts--
	s.p.mu.Unlock()
	return nil
}

type mockCursor struct {
	p        *Provider
	cols     []string
	rows     [][]any
	delay    time.Duration
	closeErr error
	idx      int

	mu     sync.Mutex
	closed bool
}

func (c *mockCursor) Columns() []string { return c.cols }

func (c *mockCursor) Next(dest []driver.Value) error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.idx >= len(c.rows) {
		return io.EOF
	}
	row := c.rows[c.idx]
	c.idx++
	for i := range dest {
		dest[i] = row[i]
	}
	return nil
}

func (c *mockCursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.p.mu.Lock()
	c.p.openCursors--
	c.p.mu.Unlock()
	return c.closeErr
}

var (
	_ driver.Provider = (*Provider)(nil)
	_ driver.Conn     = (*mockConn)(nil)
	_ driver.Stmt     = (*mockStmt)(nil)
	_ driver.Cursor   = (*mockCursor)(nil)
)
