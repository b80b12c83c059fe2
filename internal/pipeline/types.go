// Package pipeline compiles declarative pipeline definitions written in
// CUE into a validated form the CLI and harness can execute against a
// database.
//
// A pipeline names a set of operations (selects and updates), their
// parameters, and the dependency edges between them. Compilation parses
// the CUE value into Go types; validation then checks the semantic
// rules: known kinds, resolvable dependency references, supported
// parameter types, and an acyclic dependency graph.
package pipeline

import (
	"fmt"

	"cuelang.org/go/cue/token"
)

// OpKind is the declared kind of a pipeline operation.
type OpKind string

const (
	// KindSelect streams result rows.
	KindSelect OpKind = "select"
	// KindUpdate returns an affected-row count.
	KindUpdate OpKind = "update"
)

// Pipeline is a compiled pipeline definition.
type Pipeline struct {
	// Name identifies the pipeline in CLI output and golden traces.
	Name string `json:"name"`

	// Setup statements run sequentially before any operation, outside
	// the dependency graph. Schema creation and seed data go here.
	Setup []string `json:"setup,omitempty"`

	// Transaction wraps every operation marked inTransaction in a
	// single transaction: begin before the first member, commit after
	// the last.
	Transaction bool `json:"transaction,omitempty"`

	// Ops lists the operations in declaration order. Declaration order
	// is the subscription order for operations with no dependency edge
	// between them.
	Ops []OpSpec `json:"operations"`
}

// OpSpec is one compiled operation.
type OpSpec struct {
	Name   string `json:"name"`
	Kind   OpKind `json:"kind"`
	Query  string `json:"query"`
	Params []any  `json:"params,omitempty"`

	// DependsOn names earlier operations whose completion gates this
	// one.
	DependsOn []string `json:"dependsOn,omitempty"`

	// InTransaction pins the operation to the pipeline's transaction.
	InTransaction bool `json:"inTransaction,omitempty"`

	// AfterLastTransaction gates the operation on the pipeline's
	// transaction having fully closed.
	AfterLastTransaction bool `json:"afterLastTransaction,omitempty"`

	// Placeholders overrides the parameter tuple width when the driver
	// cannot report one.
	Placeholders int `json:"placeholders,omitempty"`
}

// Op returns the operation with the given name.
func (p *Pipeline) Op(name string) (*OpSpec, bool) {
	for i := range p.Ops {
		if p.Ops[i].Name == name {
			return &p.Ops[i], true
		}
	}
	return nil, false
}

// CompileError is a structural error found while parsing the CUE value,
// carrying the source position when CUE provides one.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validation error codes (E100-E199).
const (
	ErrEmptyQuery       = "E101" // operation query is empty
	ErrInvalidKind      = "E102" // kind is not select/update
	ErrUnknownDep       = "E103" // dependsOn names no operation
	ErrDependencyCycle  = "E104" // dependency graph has a cycle
	ErrBadParam         = "E105" // unsupported parameter type
	ErrNoTransaction    = "E106" // transaction reference without a transaction
	ErrNoOperations     = "E107" // pipeline has no operations
	ErrBadPlaceholders  = "E108" // negative placeholder override
)

// ValidationError is one semantic rule violation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}
