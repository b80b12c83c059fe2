package harness

// TraceEvent is the recorded outcome of one pipeline operation.
type TraceEvent struct {
	Op       string  `json:"op"`
	Kind     string  `json:"kind"`
	Query    string  `json:"query"`
	Rows     [][]any `json:"rows,omitempty"`
	Affected int64   `json:"affected,omitempty"`
	Err      string  `json:"error,omitempty"`
}

// Result is the outcome of one pipeline or scenario execution.
type Result struct {
	// Pass is true when every operation behaved as expected.
	Pass bool `json:"pass"`

	// Trace holds one event per operation, in declaration order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists expectation violations and setup failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates an empty passing result.
func NewResult() *Result {
	return &Result{Pass: true}
}

// AddError records a failure and flips the result to failing.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Event returns the trace event for the named operation.
func (r *Result) Event(op string) (TraceEvent, bool) {
	for _, ev := range r.Trace {
		if ev.Op == op {
			return ev, true
		}
	}
	return TraceEvent{}, false
}
