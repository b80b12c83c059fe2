package driver

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openMemory returns a provider plus a holder connection that keeps the
// shared in-memory database alive for the duration of the test.
func openMemory(t *testing.T) (*SQLiteProvider, Conn) {
	t.Helper()
	p, err := OpenSQLiteMemory(t.Name())
	require.NoError(t, err)

	holder, err := p.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = holder.Close()
		_ = p.Close()
	})
	return p, holder
}

func mustExec(t *testing.T, conn Conn, query string, args ...Value) int64 {
	t.Helper()
	stmt, err := conn.Prepare(context.Background(), query)
	require.NoError(t, err)
	defer stmt.Close()
	n, err := stmt.Exec(context.Background(), args)
	require.NoError(t, err)
	return n
}

func TestSQLite_RoundTrip(t *testing.T) {
	p, holder := openMemory(t)
	mustExec(t, holder, "create table person (name text, score integer)")
	mustExec(t, holder, "insert into person values (?, ?)", "ALEX", int64(21))
	mustExec(t, holder, "insert into person values (?, ?)", "FRED", int64(34))

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	stmt, err := conn.Prepare(context.Background(), "select name, score from person where score > ? order by name")
	require.NoError(t, err)
	defer stmt.Close()
	assert.Equal(t, 1, stmt.NumInput())

	cursor, err := stmt.Query(context.Background(), []Value{int64(20)})
	require.NoError(t, err)
	defer cursor.Close()
	assert.Equal(t, []string{"name", "score"}, cursor.Columns())

	var names []string
	var scores []int64
	dest := make([]Value, 2)
	for {
		err := cursor.Next(dest)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, string(dest[0].([]byte)))
		scores = append(scores, dest[1].(int64))
	}
	assert.Equal(t, []string{"ALEX", "FRED"}, names)
	assert.Equal(t, []int64{21, 34}, scores)
}

func TestSQLite_ExecReportsAffectedRows(t *testing.T) {
	_, holder := openMemory(t)
	mustExec(t, holder, "create table person (name text, score integer)")
	mustExec(t, holder, "insert into person values ('ALEX', 1), ('FRED', 2)")

	n := mustExec(t, holder, "update person set score = 0")
	assert.Equal(t, int64(2), n)
}

func TestSQLite_PrepareFailsOnBadSyntax(t *testing.T) {
	_, holder := openMemory(t)
	_, err := holder.Prepare(context.Background(), "select from from nothing")
	require.Error(t, err)
}

func TestSQLite_ClosesAreIdempotent(t *testing.T) {
	p, holder := openMemory(t)
	mustExec(t, holder, "create table t (n integer)")

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	stmt, err := conn.Prepare(context.Background(), "select n from t")
	require.NoError(t, err)
	cursor, err := stmt.Query(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, cursor.Close())
	require.NoError(t, cursor.Close())
	require.NoError(t, stmt.Close())
	require.NoError(t, stmt.Close())
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
}

func TestSQLite_AcquireAfterCloseFails(t *testing.T) {
	p, err := OpenSQLiteMemory(t.Name())
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.Acquire(context.Background())
	require.Error(t, err)
}

func TestSQLite_SharedMemoryAcrossConnections(t *testing.T) {
	p, holder := openMemory(t)
	mustExec(t, holder, "create table t (n integer)")
	mustExec(t, holder, "insert into t values (42)")

	other, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer other.Close()

	stmt, err := other.Prepare(context.Background(), "select n from t")
	require.NoError(t, err)
	defer stmt.Close()
	cursor, err := stmt.Query(context.Background(), nil)
	require.NoError(t, err)
	defer cursor.Close()

	dest := make([]Value, 1)
	require.NoError(t, cursor.Next(dest))
	assert.Equal(t, int64(42), dest[0])
}

func TestNormalize(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want Value
	}{
		{nil, nil},
		{int64(5), int64(5)},
		{5, int64(5)},
		{int8(5), int64(5)},
		{uint32(5), int64(5)},
		{uint64(5), int64(5)},
		{float32(1.5), float64(1.5)},
		{1.5, 1.5},
		{true, true},
		{"x", "x"},
		{[]byte{1}, []byte{1}},
	} {
		got, err := Normalize(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := Normalize(struct{}{})
	require.Error(t, err)
	_, err = Normalize(map[string]int{})
	require.Error(t, err)
}
