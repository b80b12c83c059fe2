package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamsql/internal/driver"
)

func drain(t *testing.T, b *binder) [][]driver.Value {
	t.Helper()
	never := make(chan struct{})
	var tuples [][]driver.Value
	for {
		tuple, ok, err := b.next(never)
		require.NoError(t, err)
		if !ok {
			return tuples
		}
		tuples = append(tuples, tuple)
	}
}

func TestBinder_Literals(t *testing.T) {
	b := newBinder("op", []ParamSource{Literal("ALEX")}, 1)
	tuples := drain(t, b)
	require.Len(t, tuples, 1)
	assert.Equal(t, []driver.Value{"ALEX"}, tuples[0])
}

func TestBinder_LiteralsChunkedByWidth(t *testing.T) {
	b := newBinder("op", []ParamSource{
		Literal("a"), Literal(1), Literal("b"), Literal(2),
	}, 2)
	tuples := drain(t, b)
	require.Len(t, tuples, 2)
	assert.Equal(t, []driver.Value{"a", int64(1)}, tuples[0])
	assert.Equal(t, []driver.Value{"b", int64(2)}, tuples[1])
}

func TestBinder_StreamProducesTuplePerValue(t *testing.T) {
	ch := make(chan any, 2)
	ch <- "FRED"
	ch <- "JOSEPH"
	close(ch)

	b := newBinder("op", []ParamSource{FromChan(ch)}, 1)
	tuples := drain(t, b)
	require.Len(t, tuples, 2)
	assert.Equal(t, []driver.Value{"FRED"}, tuples[0])
	assert.Equal(t, []driver.Value{"JOSEPH"}, tuples[1])
}

func TestBinder_MixedLiteralAndStream(t *testing.T) {
	ch := make(chan any, 2)
	ch <- 10
	ch <- 20
	close(ch)

	// Flattened order: "x", 10, 20 - width 3 gives one tuple.
	b := newBinder("op", []ParamSource{Literal("x"), FromChan(ch)}, 3)
	tuples := drain(t, b)
	require.Len(t, tuples, 1)
	assert.Equal(t, []driver.Value{"x", int64(10), int64(20)}, tuples[0])
}

func TestBinder_NoSourcesExecutesOnce(t *testing.T) {
	b := newBinder("op", nil, 0)
	never := make(chan struct{})

	tuple, ok, err := b.next(never)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, tuple)

	_, ok, err = b.next(never)
	require.NoError(t, err)
	assert.False(t, ok, "parameterless statements execute exactly once")
}

func TestBinder_IncompleteTupleIsBindError(t *testing.T) {
	b := newBinder("op", []ParamSource{Literal("a"), Literal("b"), Literal("c")}, 2)
	never := make(chan struct{})

	_, ok, err := b.next(never)
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = b.next(never)
	require.Error(t, err)
	assert.True(t, IsStatementError(err))
}

func TestBinder_SourcesWithoutPlaceholders(t *testing.T) {
	b := newBinder("op", []ParamSource{Literal("a")}, 0)
	never := make(chan struct{})

	_, _, err := b.next(never)
	require.Error(t, err)
	assert.True(t, IsStatementError(err))
	assert.Contains(t, err.Error(), "no placeholders")
}

// Width -1 means the driver cannot report the placeholder count; the
// bind error asks for an explicit width instead of claiming the
// statement has none.
func TestBinder_UnknownWidthWantsExplicitCount(t *testing.T) {
	b := newBinder("op", []ParamSource{Literal("a")}, -1)
	never := make(chan struct{})

	_, _, err := b.next(never)
	require.Error(t, err)
	assert.True(t, IsStatementError(err))
	assert.Contains(t, err.Error(), "declare the width explicitly")
	assert.NotContains(t, err.Error(), "no placeholders")
}

func TestBinder_UnsupportedTypeIsBindError(t *testing.T) {
	b := newBinder("op", []ParamSource{Literal(struct{}{})}, 1)
	never := make(chan struct{})

	_, _, err := b.next(never)
	require.Error(t, err)
	assert.True(t, IsStatementError(err))
}

func TestBinder_CancelAbortsBlockedStream(t *testing.T) {
	ch := make(chan any) // never fed, never closed
	b := newBinder("op", []ParamSource{FromChan(ch)}, 1)

	cancel := make(chan struct{})
	close(cancel)

	_, _, err := b.next(cancel)
	assert.Equal(t, errCancelled, err)
}

func TestBinder_EmptyStreamYieldsNoTuples(t *testing.T) {
	ch := make(chan any)
	close(ch)

	b := newBinder("op", []ParamSource{FromChan(ch)}, 1)
	tuples := drain(t, b)
	assert.Empty(t, tuples)
}
