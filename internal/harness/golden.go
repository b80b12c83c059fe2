package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the serialized form compared against golden files.
type TraceSnapshot struct {
	Pipeline string       `json:"pipeline"`
	Trace    []TraceEvent `json:"trace"`
}

// RunWithGolden executes the scenario, applies its expectations, and
// compares the rendered trace against testdata/golden/{name}.golden.
//
// The trace is deterministic (sequential execution, stable JSON field
// order), so the golden file is the source of truth for the expected
// behavior. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(s)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(TraceSnapshot{Pipeline: s.Name, Trace: result.Trace}, "", "  ")
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, data)

	return result, nil
}
