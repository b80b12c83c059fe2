package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/streamsql/internal/pipeline"
)

// Scenario pairs a pipeline with expectations on its trace.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description,omitempty"`

	// Setup statements run before the operations.
	Setup []string `yaml:"setup,omitempty"`

	// Transaction wraps the inTransaction operations in one
	// transaction.
	Transaction bool `yaml:"transaction,omitempty"`

	// Operations run in order, each awaited before the next.
	Operations []ScenarioOp `yaml:"operations"`

	// Expect validates individual operations. Operations without an
	// entry just have to complete without error.
	Expect []Expectation `yaml:"expect,omitempty"`
}

// ScenarioOp mirrors pipeline.OpSpec in YAML form.
type ScenarioOp struct {
	Name                 string   `yaml:"name"`
	Kind                 string   `yaml:"kind"`
	Query                string   `yaml:"query"`
	Params               []any    `yaml:"params,omitempty"`
	DependsOn            []string `yaml:"dependsOn,omitempty"`
	InTransaction        bool     `yaml:"inTransaction,omitempty"`
	AfterLastTransaction bool     `yaml:"afterLastTransaction,omitempty"`
	Placeholders         int      `yaml:"placeholders,omitempty"`
}

// Expectation validates one operation's trace event.
type Expectation struct {
	// Op names the operation this expectation applies to.
	Op string `yaml:"op"`

	// Rows is the exact expected row grid for a select.
	Rows [][]any `yaml:"rows,omitempty"`

	// Affected is the expected count for an update.
	Affected *int64 `yaml:"affected,omitempty"`

	// Error, when set, requires the operation to fail with a message
	// containing this substring.
	Error string `yaml:"error,omitempty"`
}

// LoadScenario reads a scenario from a YAML file. A missing name
// defaults to the file's base name.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if len(s.Operations) == 0 {
		return nil, fmt.Errorf("scenario %s declares no operations", s.Name)
	}
	return &s, nil
}

// Pipeline converts the scenario's operation list into a compiled
// pipeline, normalizing YAML literals into driver value types.
func (s *Scenario) Pipeline() *pipeline.Pipeline {
	p := &pipeline.Pipeline{
		Name:        s.Name,
		Setup:       s.Setup,
		Transaction: s.Transaction,
	}
	for _, op := range s.Operations {
		spec := pipeline.OpSpec{
			Name:                 op.Name,
			Kind:                 pipeline.OpKind(op.Kind),
			Query:                op.Query,
			DependsOn:            op.DependsOn,
			InTransaction:        op.InTransaction,
			AfterLastTransaction: op.AfterLastTransaction,
			Placeholders:         op.Placeholders,
		}
		for _, pv := range op.Params {
			spec.Params = append(spec.Params, normalizeValue(pv))
		}
		p.Ops = append(p.Ops, spec)
	}
	return p
}

// Run executes the scenario and applies its expectations.
func Run(s *Scenario) (*Result, error) {
	res, err := ExecutePipeline(s.Pipeline(), "", 0)
	if err != nil {
		return nil, err
	}
	if !res.Pass {
		return res, nil
	}

	expected := make(map[string]bool, len(s.Expect))
	for _, ex := range s.Expect {
		expected[ex.Op] = true
		applyExpectation(res, ex)
	}

	// Unexpected failures fail the scenario even without an entry.
	for _, ev := range res.Trace {
		if ev.Err != "" && !expected[ev.Op] {
			res.AddError(fmt.Sprintf("operation %s failed: %s", ev.Op, ev.Err))
		}
	}
	return res, nil
}

func applyExpectation(res *Result, ex Expectation) {
	ev, found := res.Event(ex.Op)
	if !found {
		res.AddError(fmt.Sprintf("expectation references unknown operation %q", ex.Op))
		return
	}

	if ex.Error != "" {
		if ev.Err == "" {
			res.AddError(fmt.Sprintf("operation %s: expected an error containing %q, got none", ex.Op, ex.Error))
		} else if !strings.Contains(ev.Err, ex.Error) {
			res.AddError(fmt.Sprintf("operation %s: error %q does not contain %q", ex.Op, ev.Err, ex.Error))
		}
		return
	}
	if ev.Err != "" {
		res.AddError(fmt.Sprintf("operation %s failed: %s", ex.Op, ev.Err))
		return
	}

	if ex.Rows != nil {
		if !rowsEqual(ex.Rows, ev.Rows) {
			res.AddError(fmt.Sprintf("operation %s: rows %v, expected %v", ex.Op, ev.Rows, ex.Rows))
		}
	}
	if ex.Affected != nil && ev.Affected != *ex.Affected {
		res.AddError(fmt.Sprintf("operation %s: affected %d, expected %d", ex.Op, ev.Affected, *ex.Affected))
	}
}

func rowsEqual(want, got [][]any) bool {
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if len(want[i]) != len(got[i]) {
			return false
		}
		for j := range want[i] {
			if normalizeValue(want[i][j]) != normalizeValue(got[i][j]) {
				return false
			}
		}
	}
	return true
}

// normalizeValue maps YAML scalar types onto the driver value set so
// expectation comparison is type-stable.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case time.Time:
		return x
	default:
		return v
	}
}
