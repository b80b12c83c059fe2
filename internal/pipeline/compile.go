package pipeline

import (
	"fmt"

	"cuelang.org/go/cue"
)

// Compile parses a CUE value into a Pipeline. The value should be the
// pipeline struct itself:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`pipeline: { ... }`)
//	p, err := pipeline.Compile(v.LookupPath(cue.ParsePath("pipeline")))
//
// Compile reports structural problems only; semantic rules (dependency
// resolution, cycles) are checked by Validate.
func Compile(v cue.Value) (*Pipeline, error) {
	if err := v.Err(); err != nil {
		return nil, &CompileError{Field: "pipeline", Message: err.Error(), Pos: v.Pos()}
	}
	if !v.Exists() {
		return nil, &CompileError{Field: "pipeline", Message: "pipeline struct not found"}
	}

	p := &Pipeline{}

	nameVal := v.LookupPath(cue.ParsePath("name"))
	if nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, &CompileError{Field: "name", Message: "name must be a string", Pos: nameVal.Pos()}
		}
		p.Name = name
	}

	setup, err := parseStringList(v.LookupPath(cue.ParsePath("setup")), "setup")
	if err != nil {
		return nil, err
	}
	p.Setup = setup

	txVal := v.LookupPath(cue.ParsePath("transaction"))
	if txVal.Exists() {
		tx, err := txVal.Bool()
		if err != nil {
			return nil, &CompileError{Field: "transaction", Message: "transaction must be a bool", Pos: txVal.Pos()}
		}
		p.Transaction = tx
	}

	opsVal := v.LookupPath(cue.ParsePath("operation"))
	if opsVal.Exists() {
		iter, err := opsVal.Fields()
		if err != nil {
			return nil, &CompileError{Field: "operation", Message: err.Error(), Pos: opsVal.Pos()}
		}
		for iter.Next() {
			op, err := compileOp(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			p.Ops = append(p.Ops, *op)
		}
	}

	return p, nil
}

func compileOp(name string, v cue.Value) (*OpSpec, error) {
	op := &OpSpec{Name: name}
	field := func(sub string) string { return "operation." + name + "." + sub }

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return nil, &CompileError{Field: field("kind"), Message: "kind is required", Pos: v.Pos()}
	}
	kind, err := kindVal.String()
	if err != nil {
		return nil, &CompileError{Field: field("kind"), Message: "kind must be a string", Pos: kindVal.Pos()}
	}
	op.Kind = OpKind(kind)

	queryVal := v.LookupPath(cue.ParsePath("query"))
	if !queryVal.Exists() {
		return nil, &CompileError{Field: field("query"), Message: "query is required", Pos: v.Pos()}
	}
	query, err := queryVal.String()
	if err != nil {
		return nil, &CompileError{Field: field("query"), Message: "query must be a string", Pos: queryVal.Pos()}
	}
	op.Query = query

	paramsVal := v.LookupPath(cue.ParsePath("params"))
	if paramsVal.Exists() {
		list, err := paramsVal.List()
		if err != nil {
			return nil, &CompileError{Field: field("params"), Message: "params must be a list", Pos: paramsVal.Pos()}
		}
		for list.Next() {
			pv, err := decodeParam(list.Value())
			if err != nil {
				return nil, &CompileError{Field: field("params"), Message: err.Error(), Pos: list.Value().Pos()}
			}
			op.Params = append(op.Params, pv)
		}
	}

	deps, err := parseStringList(v.LookupPath(cue.ParsePath("dependsOn")), field("dependsOn"))
	if err != nil {
		return nil, err
	}
	op.DependsOn = deps

	if bv := v.LookupPath(cue.ParsePath("inTransaction")); bv.Exists() {
		b, err := bv.Bool()
		if err != nil {
			return nil, &CompileError{Field: field("inTransaction"), Message: "must be a bool", Pos: bv.Pos()}
		}
		op.InTransaction = b
	}
	if bv := v.LookupPath(cue.ParsePath("afterLastTransaction")); bv.Exists() {
		b, err := bv.Bool()
		if err != nil {
			return nil, &CompileError{Field: field("afterLastTransaction"), Message: "must be a bool", Pos: bv.Pos()}
		}
		op.AfterLastTransaction = b
	}
	if iv := v.LookupPath(cue.ParsePath("placeholders")); iv.Exists() {
		n, err := iv.Int64()
		if err != nil {
			return nil, &CompileError{Field: field("placeholders"), Message: "must be an int", Pos: iv.Pos()}
		}
		op.Placeholders = int(n)
	}

	return op, nil
}

// decodeParam converts a CUE parameter literal into a Go value the
// engine can bind: string, int64, float64, bool, or nil.
func decodeParam(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.StringKind:
		return v.String()
	case cue.IntKind:
		return v.Int64()
	case cue.FloatKind, cue.NumberKind:
		return v.Float64()
	case cue.BoolKind:
		return v.Bool()
	case cue.NullKind:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported parameter kind %s", v.Kind())
	}
}

func parseStringList(v cue.Value, field string) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	list, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: v.Pos()}
	}
	var out []string
	for list.Next() {
		s, err := list.Value().String()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: list.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}
