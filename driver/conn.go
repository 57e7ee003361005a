package driver

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/satishbabariya/dal-go/expr"
)

// Conn is a live connection to one backend: the native handle, the
// transaction-depth counter, the dialect's merged rendering rules, and the
// single execution chokepoint every statement flows through. A Conn is not
// safe for concurrent use; callers wanting parallelism open one Conn per
// goroutine.
type Conn struct {
	dialect Dialect
	db      *sql.DB
	tx      *sql.Tx
	depth   int
	caps    CapabilitySet
	ops     map[expr.Op]OpFormat
	log     *slog.Logger
	trace   TraceFunc
}

func newConn(dialect Dialect, db *sql.DB, cfg Config) *Conn {
	ops := baselineOps()
	if ov, ok := dialect.(OpOverrider); ok {
		for op, format := range ov.Ops() {
			ops[op] = format
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Conn{
		dialect: dialect,
		db:      db,
		caps:    dialect.Capabilities().Clone(),
		ops:     ops,
		log:     logger,
		trace:   cfg.Trace,
	}
}

// Name reports the registry name of the dialect.
func (c *Conn) Name() string { return c.dialect.Name() }

// Capabilities reports the connection's capability set, refined by any
// connect-time probe.
func (c *Conn) Capabilities() CapabilitySet { return c.caps }

// Depth reports the current transaction nesting depth.
func (c *Conn) Depth() int { return c.depth }

// Close releases the connection. An open transaction is rolled back first.
func (c *Conn) Close() error {
	if c.tx != nil {
		c.tx.Rollback()
		c.tx = nil
		c.depth = 0
	}
	return c.db.Close()
}

type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (c *Conn) runner() runner {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

func (c *Conn) emit(kind, sqlText string, args []any, err error, elapsed time.Duration) {
	c.log.Debug("dal "+kind,
		slog.String("driver", c.dialect.Name()),
		slog.String("sql", sqlText),
		slog.Any("args", args),
		slog.Duration("elapsed", elapsed),
		slog.Any("err", err),
	)
	if c.trace != nil {
		c.trace(TraceEvent{Kind: kind, SQL: sqlText, Args: args, Err: err, Elapsed: elapsed})
	}
}

// ExecContext runs a statement through the chokepoint: placeholders are
// rebound to the dialect's parameter style, the statement is timed, traced,
// and failures are translated into execution errors.
func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	bound := Rebind(c.dialect.ParamStyle(), query)
	start := time.Now()
	res, err := c.runner().ExecContext(ctx, bound, args...)
	c.emit("execute", bound, args, err, time.Since(start))
	if err != nil {
		return nil, NewExecutionError(c.dialect.Name(), bound, err)
	}
	return res, nil
}

// QueryContext is the query-shaped twin of ExecContext.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	bound := Rebind(c.dialect.ParamStyle(), query)
	start := time.Now()
	rows, err := c.runner().QueryContext(ctx, bound, args...)
	c.emit("query", bound, args, err, time.Since(start))
	if err != nil {
		return nil, NewExecutionError(c.dialect.Name(), bound, err)
	}
	return rows, nil
}

var _ Queryer = (*Conn)(nil)

// Begin enters a transaction. Only the 0→1 transition issues a native
// BEGIN; deeper nesting is bookkeeping. Dialects without transaction
// support still count depth so enter/exit stays balanced.
func (c *Conn) Begin(ctx context.Context) error {
	c.depth++
	if c.depth != 1 {
		return nil
	}
	if !c.caps.Has(CapTransactions) {
		c.log.Debug("dal begin skipped: no transaction support",
			slog.String("driver", c.dialect.Name()))
		return nil
	}
	start := time.Now()
	tx, err := c.db.BeginTx(ctx, nil)
	c.emit("begin", "BEGIN", nil, err, time.Since(start))
	if err != nil {
		c.depth--
		return NewExecutionError(c.dialect.Name(), "BEGIN", err)
	}
	c.tx = tx
	return nil
}

// Commit leaves a transaction. Only the 1→0 transition issues the native
// COMMIT. Committing outside a transaction is a programming error, never
// clamped.
func (c *Conn) Commit(ctx context.Context) error {
	return c.leave(ctx, "commit")
}

// Rollback leaves a transaction, discarding it on the 1→0 transition.
func (c *Conn) Rollback(ctx context.Context) error {
	return c.leave(ctx, "rollback")
}

func (c *Conn) leave(_ context.Context, kind string) error {
	if c.depth == 0 {
		return NewDefinitionError("%s outside a transaction", kind)
	}
	c.depth--
	if c.depth != 0 || c.tx == nil {
		return nil
	}
	// The held cursor is released on every exit path.
	tx := c.tx
	c.tx = nil
	start := time.Now()
	var err error
	if kind == "commit" {
		err = tx.Commit()
		c.emit("commit", "COMMIT", nil, err, time.Since(start))
	} else {
		err = tx.Rollback()
		c.emit("rollback", "ROLLBACK", nil, err, time.Since(start))
	}
	if err != nil {
		return NewExecutionError(c.dialect.Name(), strings.ToUpper(kind), err)
	}
	return nil
}

// CreateTableIfNotExists creates a table declaratively and idempotently.
// Dialects either take the primitive over, or supply their own conditional
// statement, or get the baseline one, or, without a native conditional
// create, the fallback "list tables, create only if absent".
func (c *Conn) CreateTableIfNotExists(ctx context.Context, table string, cols []ColumnDef, primaryKey []string) error {
	if tc, ok := c.dialect.(TableCreator); ok {
		return tc.CreateTableIfNotExists(ctx, c, table, cols, primaryKey)
	}
	name, err := c.Identifier(table)
	if err != nil {
		return err
	}
	defs, err := c.formatColumnDefs(cols)
	if err != nil {
		return err
	}
	pk := make([]string, len(primaryKey))
	for i, p := range primaryKey {
		if pk[i], err = c.Identifier(p); err != nil {
			return err
		}
	}

	if tc, ok := c.dialect.(TableCreatorSQL); ok {
		_, err = c.ExecContext(ctx, tc.CreateTableIfNotExistsSQL(name, defs, pk))
		return err
	}
	if c.caps.Has(CapCreateIfNotExists) {
		_, err = c.ExecContext(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s(%s)", name, TableBody(defs, pk)))
		return err
	}

	live, err := c.ListTables(ctx)
	if err != nil {
		return err
	}
	for _, t := range live {
		if t == table {
			return nil
		}
	}
	_, err = c.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s(%s)", name, TableBody(defs, pk)))
	return err
}

// TableBody joins formatted column definitions with an optional trailing
// primary-key clause, for dialects assembling their own CREATE TABLE. A
// keyless table simply omits the clause.
func TableBody(defs []string, pk []string) string {
	body := strings.Join(defs, ", ")
	if len(pk) == 0 {
		return body
	}
	terms := make([]string, len(pk))
	for i, p := range pk {
		terms[i] = p + " ASC"
	}
	return body + ", PRIMARY KEY (" + strings.Join(terms, ", ") + ")"
}

// ListTables names the live tables. Used exclusively by migration.
func (c *Conn) ListTables(ctx context.Context) ([]string, error) {
	if tl, ok := c.dialect.(TableLister); ok {
		return tl.ListTables(ctx, c)
	}
	lister, ok := c.dialect.(TableListerSQL)
	if !ok {
		return nil, NewExecutionError(c.dialect.Name(), "",
			fmt.Errorf("dialect cannot list tables"))
	}
	rows, err := c.QueryContext(ctx, lister.ListTablesSQL())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, NewExecutionError(c.dialect.Name(), "", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, NewExecutionError(c.dialect.Name(), "", err)
	}
	return names, nil
}

// ListColumns describes a table's live columns. Used exclusively by
// conformance checking.
func (c *Conn) ListColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	lister, ok := c.dialect.(ColumnLister)
	if !ok {
		return nil, NewExecutionError(c.dialect.Name(), "",
			fmt.Errorf("dialect cannot list columns"))
	}
	return lister.ListColumns(ctx, c, table)
}

// Query runs the general select primitive.
func (c *Conn) Query(ctx context.Context, q Select) (*sql.Rows, error) {
	if s, ok := c.dialect.(Selector); ok {
		return s.Select(ctx, c, q)
	}
	var f fragment
	f.sql.WriteString("SELECT ")
	if q.Distinct {
		f.sql.WriteString("DISTINCT ")
	}
	if len(q.Columns) == 0 {
		f.sql.WriteString("*")
	}
	for i, col := range q.Columns {
		if i > 0 {
			f.sql.WriteString(", ")
		}
		if err := c.render(col, &f); err != nil {
			return nil, err
		}
	}
	f.sql.WriteString(" FROM ")
	for i, t := range q.Tables {
		name, err := c.Identifier(t)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			f.sql.WriteString(", ")
		}
		f.sql.WriteString(name)
	}

	where, whereArgs, err := c.RenderWhere(q.Where)
	if err != nil {
		return nil, err
	}
	f.sql.WriteString(where)
	f.args = append(f.args, whereArgs...)

	if err := c.renderOrderBy(q.OrderBy, &f); err != nil {
		return nil, err
	}
	f.sql.WriteString(c.limitClause(q.Limit, q.Offset))

	return c.QueryContext(ctx, f.sql.String(), f.args...)
}

// Limiter overrides LIMIT/OFFSET rendering for dialects that diverge from
// the baseline.
type Limiter interface {
	LimitClause(limit, offset int) string
}

func (c *Conn) limitClause(limit, offset int) string {
	if l, ok := c.dialect.(Limiter); ok {
		return l.LimitClause(limit, offset)
	}
	switch {
	case limit >= 0 && offset >= 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit >= 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset >= 0:
		// An offset needs a limit term in the reference grammar; -1 means
		// unbounded there.
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
	default:
		return ""
	}
}

// Insert adds one row. Values are bound parameters, never interpolated.
// When identity names an auto-assigned integer key column the new row's
// identity is returned; otherwise zero.
func (c *Conn) Insert(ctx context.Context, table string, columns []string, values []any, identity string) (int64, error) {
	if ins, ok := c.dialect.(Inserter); ok {
		return ins.Insert(ctx, c, table, columns, values, identity)
	}
	name, err := c.Identifier(table)
	if err != nil {
		return 0, err
	}
	cols := make([]string, len(columns))
	for i, col := range columns {
		if cols[i], err = c.Identifier(col); err != nil {
			return 0, err
		}
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
	stmt := fmt.Sprintf("INSERT INTO %s(%s) VALUES (%s)", name, strings.Join(cols, ", "), placeholders)

	if identity != "" {
		if ret, ok := c.dialect.(InsertReturning); ok {
			idCol, err := c.Identifier(identity)
			if err != nil {
				return 0, err
			}
			rows, err := c.QueryContext(ctx, stmt+ret.InsertReturningSuffix(idCol), values...)
			if err != nil {
				return 0, err
			}
			defer rows.Close()
			var id int64
			if rows.Next() {
				if err := rows.Scan(&id); err != nil {
					return 0, NewExecutionError(c.dialect.Name(), stmt, err)
				}
			}
			if err := rows.Err(); err != nil {
				return 0, NewExecutionError(c.dialect.Name(), stmt, err)
			}
			return id, nil
		}
	}

	res, err := c.ExecContext(ctx, stmt, values...)
	if err != nil {
		return 0, err
	}
	if identity == "" || !c.caps.Has(CapLastInsertID) {
		return 0, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		c.log.Debug("dal insert id unavailable", slog.Any("err", err))
		return 0, nil
	}
	return id, nil
}

// Update modifies rows matching the predicate and reports how many.
func (c *Conn) Update(ctx context.Context, table string, columns []string, values []any, where expr.Expr) (int64, error) {
	if up, ok := c.dialect.(Updater); ok {
		return up.Update(ctx, c, table, columns, values, where)
	}
	name, err := c.Identifier(table)
	if err != nil {
		return 0, err
	}
	sets := make([]string, len(columns))
	for i, col := range columns {
		n, err := c.Identifier(col)
		if err != nil {
			return 0, err
		}
		sets[i] = n + "=?"
	}
	clause, whereArgs, err := c.RenderWhere(where)
	if err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s%s", name, strings.Join(sets, ", "), clause)
	res, err := c.ExecContext(ctx, stmt, append(values, whereArgs...)...)
	if err != nil {
		return 0, err
	}
	return affected(res), nil
}

// Delete removes rows matching the predicate and reports how many.
func (c *Conn) Delete(ctx context.Context, table string, where expr.Expr) (int64, error) {
	if del, ok := c.dialect.(Deleter); ok {
		return del.Delete(ctx, c, table, where)
	}
	name, err := c.Identifier(table)
	if err != nil {
		return 0, err
	}
	clause, args, err := c.RenderWhere(where)
	if err != nil {
		return 0, err
	}
	res, err := c.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s%s", name, clause), args...)
	if err != nil {
		return 0, err
	}
	return affected(res), nil
}

func affected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

// DropTable removes a table. Only the migration machinery calls this;
// user-level deletion goes through predicates.
func (c *Conn) DropTable(ctx context.Context, table string) error {
	if td, ok := c.dialect.(TableDropper); ok {
		return td.DropTable(ctx, c, table)
	}
	name, err := c.Identifier(table)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("DROP TABLE %s", name)
	if td, ok := c.dialect.(TableDropperSQL); ok {
		stmt = td.DropTableSQL(name)
	}
	_, err = c.ExecContext(ctx, stmt)
	return err
}

// RenameTable renames a table in place.
func (c *Conn) RenameTable(ctx context.Context, oldName, newName string) error {
	if tr, ok := c.dialect.(TableRenamer); ok {
		return tr.RenameTable(ctx, c, oldName, newName)
	}
	o, err := c.Identifier(oldName)
	if err != nil {
		return err
	}
	n, err := c.Identifier(newName)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", o, n)
	if tr, ok := c.dialect.(TableRenamerSQL); ok {
		stmt = tr.RenameTableSQL(o, n)
	}
	_, err = c.ExecContext(ctx, stmt)
	return err
}

// AddColumn appends a declared column to a live table.
func (c *Conn) AddColumn(ctx context.Context, table string, def ColumnDef) error {
	if ca, ok := c.dialect.(ColumnAdder); ok {
		return ca.AddColumn(ctx, c, table, def)
	}
	name, err := c.Identifier(table)
	if err != nil {
		return err
	}
	colDef, err := c.formatColumnDef(def)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", name, colDef)
	if ca, ok := c.dialect.(ColumnAdderSQL); ok {
		stmt = ca.AddColumnSQL(name, colDef)
	}
	_, err = c.ExecContext(ctx, stmt)
	return err
}

// DropColumn removes a live column. Callers check CapDropColumn first; the
// conformance machinery falls back to a shadow-table rebuild when the
// capability is missing.
func (c *Conn) DropColumn(ctx context.Context, table, column string) error {
	if !c.caps.Has(CapDropColumn) {
		return NewDefinitionError("driver %q cannot drop columns", c.dialect.Name())
	}
	if cd, ok := c.dialect.(ColumnDropper); ok {
		return cd.DropColumn(ctx, c, table, column)
	}
	name, err := c.Identifier(table)
	if err != nil {
		return err
	}
	col, err := c.Identifier(column)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", name, col)
	if cd, ok := c.dialect.(ColumnDropperSQL); ok {
		stmt = cd.DropColumnSQL(name, col)
	}
	_, err = c.ExecContext(ctx, stmt)
	return err
}
