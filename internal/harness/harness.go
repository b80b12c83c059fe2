package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/streamsql"
	"github.com/roach88/streamsql/internal/driver"
	"github.com/roach88/streamsql/internal/pipeline"
)

// ExecutePipeline runs p against the SQLite database at dbPath and
// returns the trace. An empty dbPath runs against a throwaway database
// in the system temp directory; workers < 1 uses the engine default.
//
// Operations are subscribed in declaration order and each is awaited
// before the next is issued, so the trace order is deterministic.
// Operation failures are recorded in the trace, not returned: a later
// expectation may well require them.
func ExecutePipeline(p *pipeline.Pipeline, dbPath string, workers int) (*Result, error) {
	res := NewResult()
	if errs := pipeline.Validate(p); len(errs) > 0 {
		for _, e := range errs {
			res.AddError(e.Error())
		}
		return res, nil
	}

	if dbPath == "" {
		dir, err := os.MkdirTemp("", "streamsql-harness-*")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(dir)
		dbPath = filepath.Join(dir, "pipeline.db")
	}
	provider, err := driver.OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	db := streamsql.Open(provider, streamsql.WithWorkers(workers))
	defer db.Close()

	ctx := context.Background()
	for _, stmt := range p.Setup {
		if _, err := db.Update(stmt).Count().Wait(ctx); err != nil {
			res.AddError(fmt.Sprintf("setup %q: %v", stmt, err))
			return res, nil
		}
	}

	lastMember := -1
	for i := range p.Ops {
		if p.Ops[i].InTransaction {
			lastMember = i
		}
	}

	completions := make(map[string]streamsql.Completion, len(p.Ops))
	txBegun := false
	for i := range p.Ops {
		op := &p.Ops[i]

		if p.Transaction && op.InTransaction && !txBegun {
			begin, err := db.BeginTransaction()
			if err != nil {
				res.AddError(fmt.Sprintf("begin transaction: %v", err))
				return res, nil
			}
			if _, err := begin.Wait(ctx); err != nil {
				res.AddError(fmt.Sprintf("begin transaction: %v", err))
				return res, nil
			}
			txBegun = true
		}

		res.Trace = append(res.Trace, runOp(ctx, db, op, completions))

		if txBegun && i == lastMember {
			commit, err := db.Commit()
			if err != nil {
				res.AddError(fmt.Sprintf("commit: %v", err))
				return res, nil
			}
			if _, err := commit.Wait(ctx); err != nil {
				res.AddError(fmt.Sprintf("commit: %v", err))
				return res, nil
			}
		}
	}

	return res, nil
}

// runOp subscribes one operation, drains it, and records the outcome.
// The completion is stored for later dependsOn references.
func runOp(ctx context.Context, db *streamsql.DB, op *pipeline.OpSpec, completions map[string]streamsql.Completion) TraceEvent {
	ev := TraceEvent{Op: op.Name, Kind: string(op.Kind), Query: op.Query}

	switch op.Kind {
	case pipeline.KindSelect:
		b := db.Select(op.Query)
		for _, pv := range op.Params {
			b.Parameter(pv)
		}
		for _, dep := range op.DependsOn {
			b.DependsOn(completions[dep])
		}
		if op.InTransaction {
			b.InTransaction()
		}
		if op.AfterLastTransaction {
			b.DependsOnLastTransaction()
		}
		if op.Placeholders > 0 {
			b.Placeholders(op.Placeholders)
		}
		rows := b.Rows()
		completions[op.Name] = rows
		for rows.Next(ctx) {
			ev.Rows = append(ev.Rows, renderRecord(rows.Record()))
		}
		<-rows.Done()
		if err := rows.Err(); err != nil {
			ev.Err = err.Error()
		}

	default:
		b := db.Update(op.Query)
		for _, pv := range op.Params {
			b.Parameter(pv)
		}
		for _, dep := range op.DependsOn {
			b.DependsOn(completions[dep])
		}
		if op.InTransaction {
			b.InTransaction()
		}
		if op.AfterLastTransaction {
			b.DependsOnLastTransaction()
		}
		if op.Placeholders > 0 {
			b.Placeholders(op.Placeholders)
		}
		cnt := b.Count()
		completions[op.Name] = cnt
		n, err := cnt.Wait(ctx)
		ev.Affected = n
		if err != nil {
			ev.Err = err.Error()
		}
	}

	return ev
}

// renderRecord flattens one row for the trace. SQLite hands text
// columns back as byte slices; those render as strings so traces and
// golden files stay readable.
func renderRecord(rec streamsql.Record) []any {
	out := make([]any, rec.Len())
	for i := 0; i < rec.Len(); i++ {
		switch v := rec.Value(i).(type) {
		case []byte:
			out[i] = string(v)
		default:
			out[i] = v
		}
	}
	return out
}
