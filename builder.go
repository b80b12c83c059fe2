package streamsql

import (
	"github.com/roach88/streamsql/internal/engine"
)

// builderCore carries the operation spec accumulated by both builder
// kinds. Builders are write-once: each setter appends and returns the
// receiver; the spec freezes when the caller subscribes.
type builderCore struct {
	db        *DB
	query     string
	params    []engine.ParamSource
	deps      []Completion
	width     int
	inTx      bool
	depLastTx bool
	convert   ConvertFunc
}

// SelectBuilder declares a row-streaming operation.
type SelectBuilder struct {
	b builderCore
}

// Parameter appends one literal parameter value.
func (s *SelectBuilder) Parameter(v any) *SelectBuilder {
	s.b.params = append(s.b.params, engine.Literal(v))
	return s
}

// Parameters appends several literal parameter values in order.
func (s *SelectBuilder) Parameters(vs ...any) *SelectBuilder {
	for _, v := range vs {
		s.b.params = append(s.b.params, engine.Literal(v))
	}
	return s
}

// ParameterChan appends an asynchronous parameter source. Every value
// the channel produces joins the flattened parameter sequence at this
// position; the statement executes once per complete tuple and the
// producer must close the channel.
func (s *SelectBuilder) ParameterChan(ch <-chan any) *SelectBuilder {
	s.b.params = append(s.b.params, engine.FromChan(ch))
	return s
}

// DependsOn defers execution until every given upstream completes
// without error. An upstream failure becomes this operation's own
// dependency error.
func (s *SelectBuilder) DependsOn(deps ...Completion) *SelectBuilder {
	s.b.deps = append(s.b.deps, deps...)
	return s
}

// DependsOnLastTransaction adds a dependency on the most recently begun
// transaction reaching its closed state, so this operation observes
// post-commit data. Subscribing fails if no transaction was ever begun.
func (s *SelectBuilder) DependsOnLastTransaction() *SelectBuilder {
	s.b.depLastTx = true
	return s
}

// InTransaction pins the operation to the currently open transaction:
// it shares the pinned connection and runs on the transaction's
// dedicated worker, strictly after earlier members.
func (s *SelectBuilder) InTransaction() *SelectBuilder {
	s.b.inTx = true
	return s
}

// Placeholders overrides the parameter tuple width for drivers that
// cannot report a placeholder count.
func (s *SelectBuilder) Placeholders(n int) *SelectBuilder {
	s.b.width = n
	return s
}

// Convert fixes the row converter for this operation. The converter is
// chosen now, at build time, and applied to every fetched row; a
// conversion failure terminates the sequence with a mapping error.
func (s *SelectBuilder) Convert(f ConvertFunc) *SelectBuilder {
	s.b.convert = f
	return s
}

// Rows subscribes: it starts exactly one execution and returns its
// lazy result sequence. Nothing touches the database until the
// dependencies have completed and a worker picks the operation up.
func (s *SelectBuilder) Rows() *Rows {
	op, err := s.b.freeze(engine.KindQuery)
	if err != nil {
		return engine.FailedRows(err)
	}
	return s.b.db.exec.Query(op)
}

// UpdateBuilder declares an operation returning an affected-row count.
type UpdateBuilder struct {
	b builderCore
}

// Parameter appends one literal parameter value.
func (u *UpdateBuilder) Parameter(v any) *UpdateBuilder {
	u.b.params = append(u.b.params, engine.Literal(v))
	return u
}

// Parameters appends several literal parameter values in order.
func (u *UpdateBuilder) Parameters(vs ...any) *UpdateBuilder {
	for _, v := range vs {
		u.b.params = append(u.b.params, engine.Literal(v))
	}
	return u
}

// ParameterChan appends an asynchronous parameter source; see
// SelectBuilder.ParameterChan. The statement executes once per
// complete tuple and the counts sum.
func (u *UpdateBuilder) ParameterChan(ch <-chan any) *UpdateBuilder {
	u.b.params = append(u.b.params, engine.FromChan(ch))
	return u
}

// DependsOn defers execution until every given upstream completes
// without error.
func (u *UpdateBuilder) DependsOn(deps ...Completion) *UpdateBuilder {
	u.b.deps = append(u.b.deps, deps...)
	return u
}

// DependsOnLastTransaction adds a dependency on the most recently begun
// transaction reaching its closed state.
func (u *UpdateBuilder) DependsOnLastTransaction() *UpdateBuilder {
	u.b.depLastTx = true
	return u
}

// InTransaction pins the operation to the currently open transaction.
func (u *UpdateBuilder) InTransaction() *UpdateBuilder {
	u.b.inTx = true
	return u
}

// Placeholders overrides the parameter tuple width.
func (u *UpdateBuilder) Placeholders(n int) *UpdateBuilder {
	u.b.width = n
	return u
}

// Count subscribes: it starts exactly one execution and returns the
// affected-row result.
func (u *UpdateBuilder) Count() *Count {
	op, err := u.b.freeze(engine.KindExec)
	if err != nil {
		return engine.FailedCount(err)
	}
	return u.b.db.exec.Exec(op)
}

// freeze resolves late references (open transaction, last transaction)
// and produces the immutable operation spec.
func (b *builderCore) freeze(kind engine.OpKind) (*engine.Operation, error) {
	db := b.db
	if db.isClosed() {
		return nil, engine.NewClosedError("")
	}

	deps := make([]Completion, len(b.deps))
	copy(deps, b.deps)
	if b.depLastTx {
		last, err := db.LastTransaction()
		if err != nil {
			return nil, err
		}
		deps = append(deps, last)
	}

	var tx *engine.Tx
	if b.inTx {
		db.mu.Lock()
		tx = db.activeTx
		db.mu.Unlock()
		if tx == nil {
			return nil, engine.NewTransactionStateError("no open transaction to join")
		}
	}

	params := make([]engine.ParamSource, len(b.params))
	copy(params, b.params)

	return &engine.Operation{
		Token:   db.tokens.Generate(),
		Query:   b.query,
		Kind:    kind,
		Params:  params,
		Width:   b.width,
		Deps:    deps,
		Tx:      tx,
		Convert: b.convert,
	}, nil
}
