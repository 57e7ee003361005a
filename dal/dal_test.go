package dal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/dal-go/driver"
	_ "github.com/satishbabariya/dal-go/driver/sqlite" // SQLite driver
)

// traceLog captures chokepoint events so tests can assert on the exact
// statements a scenario issues.
type traceLog struct {
	events []driver.TraceEvent
}

func (l *traceLog) hook() driver.TraceFunc {
	return func(ev driver.TraceEvent) { l.events = append(l.events, ev) }
}

func (l *traceLog) reset() { l.events = nil }

func (l *traceLog) kinds() []string {
	out := make([]string, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (l *traceLog) executed() []string {
	var out []string
	for _, ev := range l.events {
		if ev.Kind == "execute" {
			out = append(out, ev.SQL)
		}
	}
	return out
}

func openTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	db, err := Open(context.Background(), "sqlite", ":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func defineUsers(t *testing.T, db *DB) *Table {
	t.Helper()
	users, err := db.Define("users",
		Integer("id", Key()),
		Text("first_name", NotNull()),
		Text("last_name", NotNull()),
		Integer("age", NotNull(), Default(18)),
	)
	require.NoError(t, err)
	return users
}

// userSeed leaves Alice's age to the column default.
var userSeed = []Values{
	{"first_name": "John", "last_name": "Doe", "age": 23},
	{"first_name": "Jane", "last_name": "Doe", "age": 25},
	{"first_name": "Bob", "last_name": "Smith", "age": 39},
	{"first_name": "Alice", "last_name": "Jones"},
}

func seedUsers(t *testing.T, db *DB) *Table {
	t.Helper()
	users := defineUsers(t, db)
	require.NoError(t, db.Migrate(context.Background()))
	for _, values := range userSeed {
		_, err := users.Insert(context.Background(), values)
		require.NoError(t, err)
	}
	return users
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "")
	require.Error(t, err)
	assert.True(t, IsUnknownDriver(err))
	assert.Contains(t, err.Error(), "oracle")
}

func TestDefineValidation(t *testing.T) {
	tests := []struct {
		name   string
		define func(db *DB) error
	}{
		{
			name: "invalid table name",
			define: func(db *DB) error {
				_, err := db.Define("bad name", Integer("id"))
				return err
			},
		},
		{
			name: "no columns",
			define: func(db *DB) error {
				_, err := db.Define("empty")
				return err
			},
		},
		{
			name: "invalid column name",
			define: func(db *DB) error {
				_, err := db.Define("t", Integer("bad;name"))
				return err
			},
		},
		{
			name: "duplicate column",
			define: func(db *DB) error {
				_, err := db.Define("t", Integer("x"), Text("x"))
				return err
			},
		},
		{
			name: "duplicate table",
			define: func(db *DB) error {
				if _, err := db.Define("t", Integer("x")); err != nil {
					return err
				}
				_, err := db.Define("t", Integer("y"))
				return err
			},
		},
		{
			name: "column reused across tables",
			define: func(db *DB) error {
				id := Integer("id")
				if _, err := db.Define("a", id); err != nil {
					return err
				}
				_, err := db.Define("b", id)
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openTestDB(t)
			err := tt.define(db)
			require.Error(t, err)
			assert.True(t, IsDefinition(err), "want definition error, got %v", err)
		})
	}
}

func TestTablesInDefinitionOrder(t *testing.T) {
	db := openTestDB(t)
	for _, name := range []string{"zebra", "apple", "mango"} {
		_, err := db.Define(name, Integer("id"))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"zebra", "apple", "mango"}, db.Tables())
}

func TestTableLookup(t *testing.T) {
	db := openTestDB(t)
	defineUsers(t, db)

	users, err := db.Table("users")
	require.NoError(t, err)
	assert.Equal(t, "users", users.Name())

	_, err = db.Table("ghosts")
	require.Error(t, err)
	assert.True(t, IsDefinition(err))
}

func TestColumnLookup(t *testing.T) {
	db := openTestDB(t)
	users := defineUsers(t, db)

	age, err := users.Column("age")
	require.NoError(t, err)
	assert.Equal(t, "age", age.Name())

	_, err = users.Column("shoe_size")
	require.Error(t, err)
	assert.True(t, IsColumn(err))

	assert.Equal(t, age, users.C("age"))
	assert.Panics(t, func() { users.C("shoe_size") })

	names := make([]string, 0, 4)
	for _, col := range users.Columns() {
		names = append(names, col.Name())
	}
	assert.Equal(t, []string{"id", "first_name", "last_name", "age"}, names)

	key := users.PrimaryKey()
	require.Len(t, key, 1)
	assert.Equal(t, "id", key[0].Name())
}

func TestInsertAssignsIdentity(t *testing.T) {
	db := openTestDB(t)
	users := seedUsers(t, db)

	id, err := users.Insert(context.Background(), Values{
		"first_name": "Eve", "last_name": "Adams", "age": 31,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
}

func TestInsertFixedDefaultAppliedByDatabase(t *testing.T) {
	db := openTestDB(t)
	users := seedUsers(t, db)

	alice, err := users.Where(users.C("first_name").Eq("Alice")).One(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(18), alice.MustGet("age"))
}

func TestInsertComputedDefault(t *testing.T) {
	db := openTestDB(t)
	calls := 0
	events, err := db.Define("events",
		Integer("id", Key()),
		Text("kind", NotNull()),
		Integer("seq", DefaultFunc(func() any {
			calls++
			return calls * 10
		})),
	)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))

	ctx := context.Background()
	_, err = events.Insert(ctx, Values{"kind": "boot"})
	require.NoError(t, err)
	_, err = events.Insert(ctx, Values{"kind": "login", "seq": 999})
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "computed default runs only for omitted columns")

	row, err := events.Get(ctx, int64(1))
	require.NoError(t, err)
	assert.Equal(t, int64(10), row.MustGet("seq"))

	row, err = events.Get(ctx, int64(2))
	require.NoError(t, err)
	assert.Equal(t, int64(999), row.MustGet("seq"))
}

func TestInsertUnknownColumn(t *testing.T) {
	db := openTestDB(t)
	users := seedUsers(t, db)

	_, err := users.Insert(context.Background(), Values{"first_name": "X", "last_name": "Y", "hat": 7})
	require.Error(t, err)
	assert.True(t, IsColumn(err))

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "users", e.Table)
	assert.Equal(t, "hat", e.Column)
}

func TestInsertConstraintViolation(t *testing.T) {
	db := openTestDB(t)
	users := seedUsers(t, db)

	_, err := users.Insert(context.Background(), Values{"first_name": nil, "last_name": "Null"})
	require.Error(t, err)
	assert.True(t, IsExecution(err))
}

func TestInsertManyIsAtomic(t *testing.T) {
	db := openTestDB(t)
	users := seedUsers(t, db)
	ctx := context.Background()

	before, err := users.All().Count(ctx)
	require.NoError(t, err)

	err = users.InsertMany(ctx, []Values{
		{"first_name": "Carol", "last_name": "King", "age": 52},
		{"first_name": nil, "last_name": "Broken"},
	})
	require.Error(t, err)

	after, err := users.All().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed batch must not leave partial rows")
}

func TestGetRoundtrip(t *testing.T) {
	db := openTestDB(t)
	users := seedUsers(t, db)

	row, err := users.Get(context.Background(), int64(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), row.MustGet("id"))
	assert.Equal(t, "John", row.MustGet("first_name"))
	assert.Equal(t, "Doe", row.MustGet("last_name"))
	assert.Equal(t, int64(23), row.MustGet("age"))
}

func TestGetMiss(t *testing.T) {
	db := openTestDB(t)
	users := seedUsers(t, db)

	_, err := users.Get(context.Background(), int64(99))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "99")
}

func TestGetKeyArity(t *testing.T) {
	db := openTestDB(t)
	users := seedUsers(t, db)

	_, err := users.Get(context.Background(), int64(1), int64(2))
	require.Error(t, err)
	assert.True(t, IsSchema(err))
}

func TestKeylessTable(t *testing.T) {
	db := openTestDB(t)
	log, err := db.Define("log",
		Timestamp("at"),
		Text("message"),
	)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	ctx := context.Background()

	id, err := log.Insert(ctx, Values{"at": time.Now().UTC(), "message": "hello"})
	require.NoError(t, err)
	assert.Zero(t, id, "keyless tables have no identity to report")

	_, err = log.Get(ctx, int64(1))
	require.Error(t, err)
	assert.True(t, IsSchema(err))

	row, err := log.Where(log.C("message").Eq("hello")).One(ctx)
	require.NoError(t, err)
	assert.Empty(t, row.PrimaryKey())

	_, err = row.Update(ctx, Values{"message": "changed"})
	require.Error(t, err)
	assert.True(t, IsSchema(err))
}

func TestTimestampAndBlobRoundtrip(t *testing.T) {
	db := openTestDB(t)
	files, err := db.Define("files",
		Integer("id", Key()),
		Text("name", NotNull(), Unique()),
		Blob("body"),
		Bool("hidden", Default(false)),
		Float("ratio"),
		Timestamp("modified"),
	)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	ctx := context.Background()

	stamp := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	_, err = files.Insert(ctx, Values{
		"name":     "report.txt",
		"body":     []byte{0xde, 0xad, 0xbe, 0xef},
		"hidden":   true,
		"ratio":    2.5,
		"modified": stamp,
	})
	require.NoError(t, err)

	row, err := files.Get(ctx, int64(1))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, row.MustGet("body"))
	assert.Equal(t, true, row.MustGet("hidden"))
	assert.Equal(t, 2.5, row.MustGet("ratio"))
	got, ok := row.MustGet("modified").(time.Time)
	require.True(t, ok, "timestamp column must come back as time.Time")
	assert.True(t, got.Equal(stamp), "want %v, got %v", stamp, got)
}

func TestTransactionNestingIssuesOneNativePair(t *testing.T) {
	log := &traceLog{}
	db := openTestDB(t, WithTrace(log.hook()))
	users := seedUsers(t, db)
	ctx := context.Background()

	log.reset()
	err := db.Transaction(ctx, func(ctx context.Context) error {
		if _, err := users.Insert(ctx, Values{"first_name": "Eve", "last_name": "Adams"}); err != nil {
			return err
		}
		return db.Transaction(ctx, func(ctx context.Context) error {
			_, err := users.Insert(ctx, Values{"first_name": "Mallory", "last_name": "Adams"})
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"begin", "execute", "execute", "commit"}, log.kinds(),
		"nested windows must share one native transaction")
	assert.Zero(t, db.Depth())
}

func TestTransactionRollsBackOnError(t *testing.T) {
	log := &traceLog{}
	db := openTestDB(t, WithTrace(log.hook()))
	users := seedUsers(t, db)
	ctx := context.Background()

	before, err := users.All().Count(ctx)
	require.NoError(t, err)

	boom := errors.New("boom")
	log.reset()
	err = db.Transaction(ctx, func(ctx context.Context) error {
		if _, err := users.Insert(ctx, Values{"first_name": "Eve", "last_name": "Adams"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"begin", "execute", "rollback"}, log.kinds())

	after, err := users.All().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Zero(t, db.Depth())
}

func TestTransactionRollsBackOnPanic(t *testing.T) {
	db := openTestDB(t)
	users := seedUsers(t, db)
	ctx := context.Background()

	before, err := users.All().Count(ctx)
	require.NoError(t, err)

	assert.Panics(t, func() {
		db.Transaction(ctx, func(ctx context.Context) error {
			if _, err := users.Insert(ctx, Values{"first_name": "Eve", "last_name": "Adams"}); err != nil {
				return err
			}
			panic("lost connection")
		})
	})

	after, err := users.All().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Zero(t, db.Depth())
}

func TestUnbalancedTransactionExit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.Commit(ctx)
	require.Error(t, err)
	assert.True(t, IsDefinition(err))

	err = db.Rollback(ctx)
	require.Error(t, err)
	assert.True(t, IsDefinition(err))
}

func TestManualTransactionWindow(t *testing.T) {
	db := openTestDB(t)
	users := seedUsers(t, db)
	ctx := context.Background()

	require.NoError(t, db.Begin(ctx))
	assert.Equal(t, 1, db.Depth())
	_, err := users.Insert(ctx, Values{"first_name": "Eve", "last_name": "Adams"})
	require.NoError(t, err)
	require.NoError(t, db.Rollback(ctx))
	assert.Zero(t, db.Depth())

	n, err := users.Where(users.C("first_name").Eq("Eve")).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
