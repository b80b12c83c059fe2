package streamsql

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamsql/internal/driver"
)

func newSQLiteDB(t *testing.T) *DB {
	t.Helper()
	p, err := driver.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db := Open(p, WithWorkers(4))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seed(t *testing.T, db *DB, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		_, err := db.Update(s).Count().Wait(context.Background())
		require.NoError(t, err)
	}
}

func seedPeople(t *testing.T, db *DB) {
	seed(t, db,
		"create table person (name text primary key, score integer)",
		"insert into person values ('ALEX', 12), ('ANDY', 18), ('AMY', 7), ('BOB', 5), ('FRED', 21), ('JOSEPH', 34)",
	)
}

func TestSQLite_FilteredSelect(t *testing.T) {
	db := newSQLiteDB(t)
	seedPeople(t, db)

	rows := db.Select("select name from person where name like ? order by name").
		Parameter("A%").
		Convert(AsString()).
		Rows()
	names, err := Collect[string](context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, []string{"ALEX", "AMY", "ANDY"}, names)
}

func TestSQLite_MultipleTuplesConcatenateInOrder(t *testing.T) {
	db := newSQLiteDB(t)
	seedPeople(t, db)

	rows := db.Select("select score from person where name = ?").
		Parameters("FRED", "JOSEPH").
		Convert(AsInt64()).
		Rows()
	scores, err := Collect[int64](context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, []int64{21, 34}, scores, "per-tuple results keep declaration order")
}

func TestSQLite_DependentReadRunsAfterUpdate(t *testing.T) {
	db := newSQLiteDB(t)
	seedPeople(t, db)

	rec := &recorder{}
	db.Observe(rec.handle)

	update := db.Update("update person set score = 100 where name = ?").
		Parameter("BOB").
		Count()

	rows := db.Select("select score from person where name = 'BOB'").
		DependsOn(update).
		Convert(AsInt64()).
		Rows()
	score, err := One[int64](context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, int64(100), score, "the read observes the upstream write")

	<-rows.Done()
	ev, found := rec.byQuery("select score from person where name = 'BOB'")
	require.True(t, found)
	assert.Greater(t, ev.AcquireSeq, update.CompletionSeq(),
		"no resource acquired before the upstream completed")
}

func TestSQLite_UpstreamFailureStopsDependent(t *testing.T) {
	db := newSQLiteDB(t)
	seedPeople(t, db)

	bad := db.Update("update nowhere set x = 1").Count()
	rows := db.Select("select name from person").DependsOn(bad).Rows()
	_, err := Collect[Record](context.Background(), rows)
	require.Error(t, err)
	assert.True(t, IsDependencyError(err))
}

func TestSQLite_TransactionCommitThenRead(t *testing.T) {
	db := newSQLiteDB(t)
	seedPeople(t, db)

	begin, err := db.BeginTransaction()
	require.NoError(t, err)

	ins := db.Update("insert into person values (?, ?)").
		Parameters("GREG", 42).
		InTransaction().
		DependsOn(begin).
		Count()

	commit, err := db.Commit(ins)
	require.NoError(t, err)
	_, err = commit.Wait(context.Background())
	require.NoError(t, err)

	rec := &recorder{}
	db.Observe(rec.handle)

	last, err := db.LastTransaction()
	require.NoError(t, err)
	<-last.Done()
	require.NoError(t, last.Err())

	rows := db.Select("select score from person where name = 'GREG'").
		DependsOnLastTransaction().
		Convert(AsInt64()).
		Rows()
	score, err := One[int64](context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, int64(42), score)

	<-rows.Done()
	ev, found := rec.byQuery("select score from person where name = 'GREG'")
	require.True(t, found)
	txSeq := last.(interface{ CompletionSeq() int64 }).CompletionSeq()
	assert.Greater(t, ev.AcquireSeq, txSeq,
		"post-transaction read acquires only after the commit closed the transaction")
}

func TestSQLite_TransactionRollbackDiscardsWrites(t *testing.T) {
	db := newSQLiteDB(t)
	seedPeople(t, db)

	begin, err := db.BeginTransaction()
	require.NoError(t, err)

	del := db.Update("delete from person").
		InTransaction().
		DependsOn(begin).
		Count()
	n, err := del.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	rollback, err := db.Rollback()
	require.NoError(t, err)
	_, err = rollback.Wait(context.Background())
	require.NoError(t, err)

	rows := db.Select("select count(*) from person").
		DependsOnLastTransaction().
		Convert(AsInt64()).
		Rows()
	count, err := One[int64](context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, int64(6), count, "rolled-back writes are invisible")
}

func TestSQLite_MalformedStatementFails(t *testing.T) {
	db := newSQLiteDB(t)
	seedPeople(t, db)

	rows := db.Select("select name fro person").Rows()
	_, err := Collect[Record](context.Background(), rows)
	require.Error(t, err)
	assert.True(t, IsStatementError(err))

	// The engine keeps working after a failed operation.
	ok := db.Select("select name from person where name = 'BOB'").
		Convert(AsString()).
		Rows()
	name, err := One[string](context.Background(), ok)
	require.NoError(t, err)
	assert.Equal(t, "BOB", name)
}

func TestSQLite_EarlyCloseStopsStreaming(t *testing.T) {
	db := newSQLiteDB(t)
	seed(t, db, "create table t (n integer)")
	for i := 0; i < 50; i++ {
		_, err := db.Update("insert into t values (?)").Parameter(i).Count().Wait(context.Background())
		require.NoError(t, err)
	}

	rows := db.Select("select n from t order by n").Rows()
	require.True(t, rows.Next(context.Background()))
	require.True(t, rows.Next(context.Background()))
	rows.Close()
	<-rows.Done()
	assert.NoError(t, rows.Err(), "unsubscribing is not an error")
}

func TestSQLite_IndependentQueriesRunConcurrently(t *testing.T) {
	db := newSQLiteDB(t)
	seedPeople(t, db)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rows := db.Select("select name from person order by name").
				Convert(AsString()).
				Rows()
			names, err := Collect[string](context.Background(), rows)
			if err == nil && len(names) != 6 {
				err = assert.AnError
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestSQLite_BlobRoundTrip(t *testing.T) {
	db := newSQLiteDB(t)
	seed(t, db, "create table blobs (id integer primary key, data blob)")

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	_, err := db.Update("insert into blobs (id, data) values (1, ?)").
		Parameter(payload).
		Count().
		Wait(context.Background())
	require.NoError(t, err)

	rows := db.Select("select data from blobs where id = 1").
		Convert(AsBytes()).
		Rows()
	got, err := One[[]byte](context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, payload, got, "blob values are copied out in full")
}
