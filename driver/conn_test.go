package driver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/dal-go/expr"
	"github.com/satishbabariya/dal-go/types"
)

type fakeDialect struct {
	caps CapabilitySet
}

func (d *fakeDialect) Name() string { return "fake" }

func (d *fakeDialect) Connect(_ context.Context, dsn string) (*sql.DB, error) {
	return sql.Open("dalfake", dsn)
}

func (d *fakeDialect) QuoteChar() byte { return '"' }

func (d *fakeDialect) ParamStyle() ParamStyle { return Question }

func (d *fakeDialect) NativeType(k types.Kind) (string, bool) {
	m := map[types.Kind]string{
		types.Integer:   "INTEGER",
		types.Float:     "REAL",
		types.Bool:      "INT",
		types.Text:      "TEXT",
		types.Blob:      "BLOB",
		types.Timestamp: "TIMESTAMP",
	}
	s, ok := m[k]
	return s, ok
}

func (d *fakeDialect) SemanticType(native string) (types.Kind, bool) {
	m := map[string]types.Kind{
		"INTEGER":   types.Integer,
		"REAL":      types.Float,
		"INT":       types.Bool,
		"TEXT":      types.Text,
		"BLOB":      types.Blob,
		"TIMESTAMP": types.Timestamp,
	}
	k, ok := m[native]
	return k, ok
}

func (d *fakeDialect) Capabilities() CapabilitySet { return d.caps }

func (d *fakeDialect) ListTablesSQL() string { return "SELECT name FROM fake_master" }

var _ interface {
	Dialect
	TableListerSQL
} = (*fakeDialect)(nil)

func allCaps() CapabilitySet {
	return CapabilitySet{
		CapTransactions:      true,
		CapCreateIfNotExists: true,
		CapDropColumn:        true,
		CapLastInsertID:      true,
	}
}

// newFakeConn builds a Conn over the recording backend, one backend per
// test name.
func newFakeConn(t *testing.T, caps CapabilitySet, opts ...Option) (*Conn, *fakeBackend) {
	t.Helper()
	dsn := "test://" + t.Name()
	backend := backendFor(dsn)
	backend.reset()

	dialect := &fakeDialect{caps: caps}
	db, err := dialect.Connect(context.Background(), dsn)
	require.NoError(t, err)

	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	conn := newConn(dialect, db, cfg)
	t.Cleanup(func() { conn.Close() })
	return conn, backend
}

func TestTransactionDepthBalanced(t *testing.T) {
	ctx := context.Background()
	conn, backend := newFakeConn(t, allCaps())

	require.NoError(t, conn.Begin(ctx))
	require.NoError(t, conn.Begin(ctx))
	require.NoError(t, conn.Begin(ctx))
	assert.Equal(t, 3, conn.Depth())

	_, err := conn.ExecContext(ctx, "UPDATE t SET x=?", 1)
	require.NoError(t, err)

	require.NoError(t, conn.Commit(ctx))
	require.NoError(t, conn.Commit(ctx))
	assert.Equal(t, 1, conn.Depth())
	require.NoError(t, conn.Commit(ctx))
	assert.Equal(t, 0, conn.Depth())

	// One native BEGIN and one native COMMIT, regardless of nesting.
	assert.Equal(t, []string{"BEGIN", "UPDATE t SET x=?", "COMMIT"}, backend.statements())
	assert.Nil(t, conn.tx)
}

func TestLeaveOutsideTransaction(t *testing.T) {
	ctx := context.Background()
	conn, _ := newFakeConn(t, allCaps())

	err := conn.Commit(ctx)
	require.Error(t, err)
	assert.True(t, IsDefinition(err))

	err = conn.Rollback(ctx)
	require.Error(t, err)
	assert.True(t, IsDefinition(err))
	assert.Equal(t, 0, conn.Depth())
}

func TestRollbackReleasesCursor(t *testing.T) {
	ctx := context.Background()
	conn, backend := newFakeConn(t, allCaps())

	require.NoError(t, conn.Begin(ctx))
	_, err := conn.ExecContext(ctx, "DELETE FROM t")
	require.NoError(t, err)
	require.NoError(t, conn.Rollback(ctx))

	assert.Equal(t, []string{"BEGIN", "DELETE FROM t", "ROLLBACK"}, backend.statements())
	assert.Nil(t, conn.tx)

	// Follow-up statements run in autocommit mode, no implicit BEGIN.
	_, err = conn.ExecContext(ctx, "DELETE FROM u")
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM u", backend.statements()[3])
}

func TestBeginWithoutTransactionCapability(t *testing.T) {
	ctx := context.Background()
	caps := allCaps()
	caps[CapTransactions] = false
	conn, backend := newFakeConn(t, caps)

	require.NoError(t, conn.Begin(ctx))
	assert.Equal(t, 1, conn.Depth())
	_, err := conn.ExecContext(ctx, "UPDATE t SET x=?", 1)
	require.NoError(t, err)
	require.NoError(t, conn.Commit(ctx))

	// Depth is tracked but no native transaction statements are issued.
	assert.Equal(t, []string{"UPDATE t SET x=?"}, backend.statements())
}

func TestExecuteTranslatesNativeErrors(t *testing.T) {
	ctx := context.Background()
	conn, backend := newFakeConn(t, allCaps())

	native := errors.New("table is on fire")
	backend.failWith(native)
	_, err := conn.ExecContext(ctx, "UPDATE t SET x=?", 1)
	require.Error(t, err)
	assert.True(t, IsExecution(err))
	assert.ErrorIs(t, err, native)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "fake", e.Driver)
	assert.Contains(t, e.Message, "UPDATE t SET x=?")
}

func TestTraceChokepoint(t *testing.T) {
	ctx := context.Background()
	var events []TraceEvent
	conn, _ := newFakeConn(t, allCaps(), WithTrace(func(ev TraceEvent) {
		events = append(events, ev)
	}))

	require.NoError(t, conn.Begin(ctx))
	_, err := conn.ExecContext(ctx, "UPDATE t SET x=?", 1)
	require.NoError(t, err)
	rows, err := conn.QueryContext(ctx, "SELECT 1")
	require.NoError(t, err)
	rows.Close()
	require.NoError(t, conn.Commit(ctx))

	kinds := make([]string, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	assert.Equal(t, []string{"begin", "execute", "query", "commit"}, kinds)
	assert.Equal(t, "UPDATE t SET x=?", events[1].SQL)
	assert.Equal(t, []any{1}, events[1].Args)
}

func TestInsert(t *testing.T) {
	ctx := context.Background()
	conn, backend := newFakeConn(t, allCaps())
	backend.insertID = 7

	id, err := conn.Insert(ctx, "users", []string{"name", "age"}, []any{"John", 23}, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, []string{`INSERT INTO "users"("name", "age") VALUES (?,?)`}, backend.statements())

	// Without an identity column there is nothing to report.
	id, err = conn.Insert(ctx, "users", []string{"name"}, []any{"Jane"}, "")
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestUpdateDeleteAssembly(t *testing.T) {
	ctx := context.Background()
	conn, backend := newFakeConn(t, allCaps())

	age := expr.Column{Table: "users", Name: "age", Type: types.Integer}
	n, err := conn.Update(ctx, "users", []string{"age"}, []any{30}, expr.Gt(age, 21))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = conn.Delete(ctx, "users", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		`UPDATE "users" SET "age"=? WHERE ("users"."age">?)`,
		`DELETE FROM "users"`,
	}, backend.statements())
}

func TestQueryAssembly(t *testing.T) {
	ctx := context.Background()
	conn, backend := newFakeConn(t, allCaps())

	last := expr.Column{Table: "users", Name: "last_name", Type: types.Text}
	age := expr.Column{Table: "users", Name: "age", Type: types.Integer}

	rows, err := conn.Query(ctx, Select{
		Columns:  []expr.Expr{last},
		Tables:   []string{"users"},
		Where:    expr.Ge(age, 18),
		Distinct: true,
		OrderBy:  []expr.Expr{expr.Asc(last), expr.Desc(age)},
		Limit:    10,
		Offset:   5,
	})
	require.NoError(t, err)
	rows.Close()

	want := `SELECT DISTINCT "users"."last_name" FROM "users"` +
		` WHERE ("users"."age">=?)` +
		` ORDER BY "users"."last_name" ASC, "users"."age" DESC` +
		` LIMIT 10 OFFSET 5`
	assert.Equal(t, []string{want}, backend.statements())
}

func TestCreateTableTiers(t *testing.T) {
	ctx := context.Background()
	cols := []ColumnDef{
		{Name: "id", Type: types.Integer},
		{Name: "name", Type: types.Text, NotNull: true},
	}

	t.Run("conditional create", func(t *testing.T) {
		conn, backend := newFakeConn(t, allCaps())
		require.NoError(t, conn.CreateTableIfNotExists(ctx, "users", cols, []string{"id"}))
		assert.Equal(t, []string{
			`CREATE TABLE IF NOT EXISTS "users"("id" INTEGER, "name" TEXT NOT NULL, PRIMARY KEY ("id" ASC))`,
		}, backend.statements())
	})

	t.Run("keyless omits the clause", func(t *testing.T) {
		conn, backend := newFakeConn(t, allCaps())
		require.NoError(t, conn.CreateTableIfNotExists(ctx, "logs", cols, nil))
		assert.Equal(t, []string{
			`CREATE TABLE IF NOT EXISTS "logs"("id" INTEGER, "name" TEXT NOT NULL)`,
		}, backend.statements())
	})

	t.Run("fallback lists tables first", func(t *testing.T) {
		caps := allCaps()
		caps[CapCreateIfNotExists] = false
		conn, backend := newFakeConn(t, caps)
		require.NoError(t, conn.CreateTableIfNotExists(ctx, "users", cols, []string{"id"}))
		assert.Equal(t, []string{
			"SELECT name FROM fake_master",
			`CREATE TABLE "users"("id" INTEGER, "name" TEXT NOT NULL, PRIMARY KEY ("id" ASC))`,
		}, backend.statements())
	})
}

// directDialect takes over two primitives wholesale; its statements still
// reach the backend through the shared chokepoint.
type directDialect struct {
	*fakeDialect
}

func (d *directDialect) CreateTableIfNotExists(ctx context.Context, c *Conn, table string, cols []ColumnDef, _ []string) error {
	_, err := c.ExecContext(ctx, fmt.Sprintf("MAKE TABLE %s/%d", table, len(cols)))
	return err
}

func (d *directDialect) Insert(ctx context.Context, c *Conn, table string, columns []string, values []any, _ string) (int64, error) {
	_, err := c.ExecContext(ctx, fmt.Sprintf("PUT %s(%s)", table, strings.Join(columns, ",")), values...)
	if err != nil {
		return 0, err
	}
	return 99, nil
}

var _ interface {
	TableCreator
	Inserter
} = (*directDialect)(nil)

func TestDirectTierWinsOverBaseline(t *testing.T) {
	ctx := context.Background()
	dsn := "test://" + t.Name()
	backend := backendFor(dsn)
	backend.reset()

	dialect := &directDialect{fakeDialect: &fakeDialect{caps: allCaps()}}
	db, err := dialect.Connect(ctx, dsn)
	require.NoError(t, err)
	conn := newConn(dialect, db, Config{})
	t.Cleanup(func() { conn.Close() })

	cols := []ColumnDef{{Name: "id", Type: types.Integer}}
	require.NoError(t, conn.CreateTableIfNotExists(ctx, "users", cols, []string{"id"}))

	id, err := conn.Insert(ctx, "users", []string{"name"}, []any{"John"}, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(99), id)

	assert.Equal(t, []string{"MAKE TABLE users/1", "PUT users(name)"}, backend.statements())
}

func TestDDLPrimitives(t *testing.T) {
	ctx := context.Background()
	conn, backend := newFakeConn(t, allCaps())

	require.NoError(t, conn.AddColumn(ctx, "users", ColumnDef{Name: "age", Type: types.Integer, NotNull: true, HasDefault: true, Default: 18}))
	require.NoError(t, conn.DropColumn(ctx, "users", "age"))
	require.NoError(t, conn.RenameTable(ctx, "users", "people"))
	require.NoError(t, conn.DropTable(ctx, "people"))

	assert.Equal(t, []string{
		`ALTER TABLE "users" ADD COLUMN "age" INTEGER NOT NULL DEFAULT 18`,
		`ALTER TABLE "users" DROP COLUMN "age"`,
		`ALTER TABLE "users" RENAME TO "people"`,
		`DROP TABLE "people"`,
	}, backend.statements())
}

func TestDropColumnRequiresCapability(t *testing.T) {
	ctx := context.Background()
	caps := allCaps()
	caps[CapDropColumn] = false
	conn, backend := newFakeConn(t, caps)

	err := conn.DropColumn(ctx, "users", "age")
	require.Error(t, err)
	assert.True(t, IsDefinition(err))
	assert.Empty(t, backend.statements())
}

func TestInvalidIdentifierRejectedBeforeExecution(t *testing.T) {
	ctx := context.Background()
	conn, backend := newFakeConn(t, allCaps())

	_, err := conn.Insert(ctx, "users; DROP TABLE users", []string{"a"}, []any{1}, "")
	require.Error(t, err)
	assert.True(t, IsDefinition(err))

	_, err = conn.Delete(ctx, "users", expr.Eq(expr.Column{Table: "users", Name: "bad name"}, 1))
	require.Error(t, err)
	assert.True(t, IsDefinition(err))

	assert.Empty(t, backend.statements())
}

func TestCapabilityString(t *testing.T) {
	assert.Equal(t, "transactions", CapTransactions.String())
	assert.Equal(t, "drop_column", CapDropColumn.String())
	assert.Equal(t, fmt.Sprintf("capability(%d)", 99), Capability(99).String())
}
