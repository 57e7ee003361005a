// Package dal is a database abstraction layer: tables are defined in Go,
// queried through composable expression trees, and stored through
// interchangeable drivers that render dialect-correct SQL. No SQL is ever
// parsed and none needs to be written.
//
// Usage follows define, migrate, query:
//
//	db, err := dal.Open(ctx, "sqlite", "app.db")
//	users, err := db.Define("users",
//		dal.Integer("id", dal.Key()),
//		dal.Text("name", dal.NotNull()),
//		dal.Integer("age", dal.Default(18)),
//	)
//	err = db.Migrate(ctx)
//	id, err := users.Insert(ctx, dal.Values{"name": "John"})
//	adults, err := users.Where(users.C("age").Ge(21)).All(ctx)
package dal

import (
	"context"
	"log/slog"

	"github.com/satishbabariya/dal-go/driver"
	"github.com/satishbabariya/dal-go/internal/debug"
	"github.com/satishbabariya/dal-go/types"
)

// Option adjusts a connection; the driver options are reused directly.
type Option = driver.Option

// WithLogger attaches a logger; every statement is logged at debug level.
func WithLogger(l *slog.Logger) Option { return driver.WithLogger(l) }

// WithTrace attaches a hook to the execution chokepoint.
func WithTrace(fn driver.TraceFunc) Option { return driver.WithTrace(fn) }

// WithOption sets a dialect-specific option, e.g. dal.WithOption("engine",
// "MyISAM") for mysql.
func WithOption(key, value string) Option { return driver.WithOption(key, value) }

// WithDebug turns on debug logging and colorized SQL tracing on stderr.
func WithDebug() Option {
	debug.Init(true)
	return func(c *driver.Config) {
		c.Logger = debug.Logger()
		c.Trace = func(ev driver.TraceEvent) {
			debug.TraceSQL(ev.Kind, ev.SQL, ev.Args, ev.Err, ev.Elapsed)
		}
	}
}

// DB is one database connection plus the tables defined on it. A DB is not
// safe for concurrent use; open one per goroutine.
type DB struct {
	conn   *driver.Conn
	tables map[string]*Table
	order  []string
}

// Open connects to a database through a registered driver. Drivers are
// selected by name and register themselves on import:
//
//	import _ "github.com/satishbabariya/dal-go/driver/sqlite"
func Open(ctx context.Context, driverName, dsn string, opts ...Option) (*DB, error) {
	conn, err := driver.Open(ctx, driverName, dsn, opts...)
	if err != nil {
		return nil, err
	}
	return &DB{conn: conn, tables: make(map[string]*Table)}, nil
}

// Close releases the connection. An open transaction is rolled back.
func (db *DB) Close() error { return db.conn.Close() }

// Driver reports the connected driver's registry name.
func (db *DB) Driver() string { return db.conn.Name() }

// Capabilities reports what the connected backend supports.
func (db *DB) Capabilities() driver.CapabilitySet { return db.conn.Capabilities() }

// Define registers a table. Definition is declarative and issues no SQL;
// Migrate and Conform reconcile the database with it. The column set, key
// membership, and reference targets are validated here so that defects
// surface before any statement exists.
func (db *DB) Define(name string, cols ...*Column) (*Table, error) {
	if !driver.ValidIdentifier(name) {
		return nil, driver.NewDefinitionError("invalid table name %q", name)
	}
	if _, dup := db.tables[name]; dup {
		return nil, driver.NewDefinitionError("table %q defined twice", name)
	}
	if len(cols) == 0 {
		return nil, driver.NewDefinitionError("table %q needs at least one column", name)
	}

	t := &Table{db: db, name: name, colIndex: make(map[string]*Column)}
	for _, col := range cols {
		if col.err != nil {
			return nil, col.err
		}
		if !driver.ValidIdentifier(col.name) {
			return nil, driver.NewDefinitionError("invalid column name %q", col.name)
		}
		if col.table != nil {
			return nil, driver.NewDefinitionError(
				"column %q already belongs to table %q", col.name, col.table.name)
		}
		if _, dup := t.colIndex[col.name]; dup {
			return nil, driver.NewDefinitionError(
				"column %q declared twice in table %q", col.name, name)
		}
		col.table = t
		t.cols = append(t.cols, col)
		t.colIndex[col.name] = col
		if col.key {
			t.keys = append(t.keys, col)
		}
	}

	// A single integer key auto-assigns; its identity comes back from
	// Insert.
	if len(t.keys) == 1 && t.keys[0].kind == types.Integer {
		t.identity = t.keys[0]
	}

	for _, col := range t.cols {
		if col.target == nil {
			continue
		}
		if col.target.db != db {
			return nil, driver.NewDefinitionError(
				"reference %q targets a table from another database", col.name)
		}
		col.target.referrers = append(col.target.referrers, col)
	}

	db.tables[name] = t
	db.order = append(db.order, name)
	return t, nil
}

// Table retrieves a defined table. Referring to an undefined table is a
// programming error, not a lookup miss.
func (db *DB) Table(name string) (*Table, error) {
	t, ok := db.tables[name]
	if !ok {
		return nil, driver.NewDefinitionError("table %q is not defined", name)
	}
	return t, nil
}

// Tables lists the defined table names in definition order.
func (db *DB) Tables() []string {
	out := make([]string, len(db.order))
	copy(out, db.order)
	return out
}

// Begin enters a transaction window. Windows nest by counting; only the
// outermost one maps to a native transaction.
func (db *DB) Begin(ctx context.Context) error { return db.conn.Begin(ctx) }

// Commit leaves the current transaction window.
func (db *DB) Commit(ctx context.Context) error { return db.conn.Commit(ctx) }

// Rollback leaves the current transaction window, discarding it.
func (db *DB) Rollback(ctx context.Context) error { return db.conn.Rollback(ctx) }

// Depth reports the current transaction nesting depth.
func (db *DB) Depth() int { return db.conn.Depth() }

// Transaction runs fn inside a transaction window: committed when fn
// returns nil, rolled back when it returns an error or panics.
func (db *DB) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := db.conn.Begin(ctx); err != nil {
		return err
	}
	done := false
	defer func() {
		if !done {
			db.conn.Rollback(ctx)
		}
	}()
	if err := fn(ctx); err != nil {
		done = true
		if rbErr := db.conn.Rollback(ctx); rbErr != nil {
			return rbErr
		}
		return err
	}
	done = true
	return db.conn.Commit(ctx)
}
