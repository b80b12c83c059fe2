package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamsql/internal/pipeline"
)

func TestExecutePipeline_TraceInDeclarationOrder(t *testing.T) {
	p := &pipeline.Pipeline{
		Name: "basic",
		Setup: []string{
			"create table person (name text, score integer)",
			"insert into person values ('ALEX', 12), ('BOB', 5)",
		},
		Ops: []pipeline.OpSpec{
			{Name: "reset", Kind: pipeline.KindUpdate, Query: "update person set score = 0"},
			{
				Name: "names", Kind: pipeline.KindSelect,
				Query:     "select name from person order by name",
				DependsOn: []string{"reset"},
			},
		},
	}

	res, err := ExecutePipeline(p, "", 0)
	require.NoError(t, err)
	require.True(t, res.Pass, "errors: %v", res.Errors)
	require.Len(t, res.Trace, 2)

	assert.Equal(t, "reset", res.Trace[0].Op)
	assert.Equal(t, int64(2), res.Trace[0].Affected)
	assert.Equal(t, "names", res.Trace[1].Op)
	assert.Equal(t, [][]any{{"ALEX"}, {"BOB"}}, res.Trace[1].Rows)
}

func TestExecutePipeline_InvalidPipelineFailsWithoutRunning(t *testing.T) {
	p := &pipeline.Pipeline{
		Name: "cycle",
		Ops: []pipeline.OpSpec{
			{Name: "a", Kind: pipeline.KindSelect, Query: "select 1", DependsOn: []string{"a"}},
		},
	}
	res, err := ExecutePipeline(p, "", 0)
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Empty(t, res.Trace)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "cycle")
}

func TestExecutePipeline_SetupFailureStopsExecution(t *testing.T) {
	p := &pipeline.Pipeline{
		Name:  "badsetup",
		Setup: []string{"create broken syntax"},
		Ops: []pipeline.OpSpec{
			{Name: "q", Kind: pipeline.KindSelect, Query: "select 1"},
		},
	}
	res, err := ExecutePipeline(p, "", 0)
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Empty(t, res.Trace)
}

func TestExecutePipeline_TransactionMembersCommit(t *testing.T) {
	p := &pipeline.Pipeline{
		Name:        "txn",
		Setup:       []string{"create table t (n integer)"},
		Transaction: true,
		Ops: []pipeline.OpSpec{
			{Name: "one", Kind: pipeline.KindUpdate, Query: "insert into t values (1)", InTransaction: true},
			{Name: "two", Kind: pipeline.KindUpdate, Query: "insert into t values (2)", InTransaction: true},
			{Name: "sum", Kind: pipeline.KindSelect, Query: "select sum(n) from t", AfterLastTransaction: true},
		},
	}
	res, err := ExecutePipeline(p, "", 0)
	require.NoError(t, err)
	require.True(t, res.Pass, "errors: %v", res.Errors)

	sum, found := res.Event("sum")
	require.True(t, found)
	assert.Equal(t, [][]any{{int64(3)}}, sum.Rows)
}

func TestRun_FailedExpectationsReported(t *testing.T) {
	s := &Scenario{
		Name:  "wrong_count",
		Setup: []string{"create table t (n integer)"},
		Operations: []ScenarioOp{
			{Name: "ins", Kind: "update", Query: "insert into t values (1)"},
		},
		Expect: []Expectation{
			{Op: "ins", Affected: int64Ptr(5)},
		},
	}
	res, err := Run(s)
	require.NoError(t, err)
	assert.False(t, res.Pass)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "affected 1, expected 5")
}

func TestRun_UnexpectedOperationFailureFailsScenario(t *testing.T) {
	s := &Scenario{
		Name: "surprise",
		Operations: []ScenarioOp{
			{Name: "broken", Kind: "select", Query: "select * from nowhere"},
		},
	}
	res, err := Run(s)
	require.NoError(t, err)
	assert.False(t, res.Pass)
}

func int64Ptr(n int64) *int64 { return &n }
