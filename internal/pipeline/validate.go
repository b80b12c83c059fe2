package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks the semantic rules of a compiled pipeline. It returns
// every violation found rather than stopping at the first.
func Validate(p *Pipeline) []ValidationError {
	var errs []ValidationError

	if len(p.Ops) == 0 {
		errs = append(errs, ValidationError{
			Field:   "operation",
			Message: "pipeline declares no operations",
			Code:    ErrNoOperations,
		})
		return errs
	}

	names := make(map[string]bool, len(p.Ops))
	for _, op := range p.Ops {
		names[op.Name] = true
	}

	usesTx := false
	for _, op := range p.Ops {
		field := "operation." + op.Name

		if op.Kind != KindSelect && op.Kind != KindUpdate {
			errs = append(errs, ValidationError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("kind %q must be %q or %q", op.Kind, KindSelect, KindUpdate),
				Code:    ErrInvalidKind,
			})
		}
		if strings.TrimSpace(op.Query) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".query",
				Message: "query is required and must be non-empty",
				Code:    ErrEmptyQuery,
			})
		}
		if op.Placeholders < 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".placeholders",
				Message: "placeholder override cannot be negative",
				Code:    ErrBadPlaceholders,
			})
		}
		for _, dep := range op.DependsOn {
			if !names[dep] {
				errs = append(errs, ValidationError{
					Field:   field + ".dependsOn",
					Message: fmt.Sprintf("unknown operation %q", dep),
					Code:    ErrUnknownDep,
				})
			}
		}
		for i, pv := range op.Params {
			if !validParam(pv) {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.params[%d]", field, i),
					Message: fmt.Sprintf("unsupported parameter type %T", pv),
					Code:    ErrBadParam,
				})
			}
		}
		if op.InTransaction {
			usesTx = true
			if !p.Transaction {
				errs = append(errs, ValidationError{
					Field:   field + ".inTransaction",
					Message: "pipeline does not declare a transaction",
					Code:    ErrNoTransaction,
				})
			}
		}
		if op.AfterLastTransaction && !p.Transaction {
			errs = append(errs, ValidationError{
				Field:   field + ".afterLastTransaction",
				Message: "pipeline does not declare a transaction",
				Code:    ErrNoTransaction,
			})
		}
	}

	if p.Transaction && !usesTx {
		errs = append(errs, ValidationError{
			Field:   "transaction",
			Message: "transaction declared but no operation is marked inTransaction",
			Code:    ErrNoTransaction,
		})
	}

	// A dependency cycle would deadlock execution: every operation in
	// the cycle waits on another member forever.
	errs = append(errs, detectCycles(p)...)

	return errs
}

func validParam(v any) bool {
	switch v.(type) {
	case nil, string, int64, float64, bool, []byte, time.Time:
		return true
	default:
		return false
	}
}
