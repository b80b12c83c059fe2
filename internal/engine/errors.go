package engine

import (
	"errors"
	"fmt"
)

// ExecError represents an error raised while executing an operation.
//
// Every failure surfaces as the terminal error of the operation's
// result sequence, categorized by Code:
//   - Connection acquisition (provider exhausted/refused/closed)
//   - Statement (prepare, bind, or execute failure)
//   - Mapping (row shape or type mismatch against the converter)
//   - Dependency (an upstream completed with an error - never retried)
//   - Transaction state (double begin, control call without an open
//     transaction, depends-on-last-transaction with no transaction)
//   - Closed (operation submitted to a closed facade)
//
// ExecError includes the operation token for diagnostics.
type ExecError struct {
	// Code identifies the error category.
	Code ErrCode

	// Message is a human-readable description.
	Message string

	// Token identifies the affected operation, when known.
	Token string

	// Cause is the underlying error, if any.
	Cause error
}

// ErrCode categorizes execution errors.
type ErrCode string

const (
	// ErrCodeConnection indicates connection acquisition failed.
	ErrCodeConnection ErrCode = "CONNECTION"

	// ErrCodeStatement indicates prepare, bind, or execute failed.
	ErrCodeStatement ErrCode = "STATEMENT"

	// ErrCodeMapping indicates a row did not fit the requested converter.
	ErrCodeMapping ErrCode = "MAPPING"

	// ErrCodeDependency indicates an upstream sequence failed.
	ErrCodeDependency ErrCode = "DEPENDENCY"

	// ErrCodeTransactionState indicates an invalid transaction
	// transition or reference.
	ErrCodeTransactionState ErrCode = "TRANSACTION_STATE"

	// ErrCodeClosed indicates the owning facade was already closed.
	ErrCodeClosed ErrCode = "CLOSED"
)

// Error implements the error interface.
func (e *ExecError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Token != "" {
		return fmt.Sprintf("%s: %s (op=%s)", e.Code, msg, e.Token)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *ExecError) Unwrap() error {
	return e.Cause
}

// CodeOf returns the ErrCode of err, or "" if err is not an ExecError.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrCode {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsConnectionError reports whether err is a connection acquisition error.
func IsConnectionError(err error) bool { return CodeOf(err) == ErrCodeConnection }

// IsStatementError reports whether err is a prepare/bind/execute error.
func IsStatementError(err error) bool { return CodeOf(err) == ErrCodeStatement }

// IsMappingError reports whether err is a row conversion error.
func IsMappingError(err error) bool { return CodeOf(err) == ErrCodeMapping }

// IsDependencyError reports whether err is a propagated upstream failure.
func IsDependencyError(err error) bool { return CodeOf(err) == ErrCodeDependency }

// IsTransactionStateError reports whether err is an invalid transaction
// transition or reference.
func IsTransactionStateError(err error) bool { return CodeOf(err) == ErrCodeTransactionState }

// IsClosedError reports whether err came from a closed facade.
func IsClosedError(err error) bool { return CodeOf(err) == ErrCodeClosed }

// NewConnectionError wraps a connection acquisition failure.
func NewConnectionError(token string, cause error) *ExecError {
	return &ExecError{Code: ErrCodeConnection, Message: "acquire connection", Token: token, Cause: cause}
}

// NewStatementError wraps a prepare, bind, or execute failure.
func NewStatementError(token, stage string, cause error) *ExecError {
	return &ExecError{Code: ErrCodeStatement, Message: stage, Token: token, Cause: cause}
}

// NewMappingError wraps a row conversion failure.
func NewMappingError(token string, cause error) *ExecError {
	return &ExecError{Code: ErrCodeMapping, Message: "convert row", Token: token, Cause: cause}
}

// NewDependencyError propagates an upstream failure to a dependent.
func NewDependencyError(token string, cause error) *ExecError {
	return &ExecError{Code: ErrCodeDependency, Message: "upstream failed", Token: token, Cause: cause}
}

// NewTransactionStateError reports an invalid transaction transition.
func NewTransactionStateError(msg string) *ExecError {
	return &ExecError{Code: ErrCodeTransactionState, Message: msg}
}

// NewClosedError reports submission to a closed facade.
func NewClosedError(token string) *ExecError {
	return &ExecError{Code: ErrCodeClosed, Message: "database is closed", Token: token}
}
