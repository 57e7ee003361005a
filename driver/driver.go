// Package driver defines the contract between the abstraction layer and a
// database backend: dialect rendering rules, the connection primitives, the
// transaction-depth bookkeeping, and the error taxonomy. Backends register
// themselves by name; callers import a backend package for its side effect
// and open connections through Open.
package driver

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/satishbabariya/dal-go/expr"
	"github.com/satishbabariya/dal-go/types"
)

// Capability names an optional behavior a dialect may support. Operations
// consult the capability set before attempting anything optional.
type Capability int

const (
	// CapTransactions marks support for multi-statement transactions.
	CapTransactions Capability = iota
	// CapCreateIfNotExists marks a native conditional CREATE TABLE.
	CapCreateIfNotExists
	// CapDropColumn marks a native ALTER TABLE ... DROP COLUMN.
	CapDropColumn
	// CapRenameColumn marks a native ALTER TABLE ... RENAME COLUMN.
	CapRenameColumn
	// CapLastInsertID marks drivers whose connection reports the last
	// inserted row id without a RETURNING clause.
	CapLastInsertID
)

func (c Capability) String() string {
	switch c {
	case CapTransactions:
		return "transactions"
	case CapCreateIfNotExists:
		return "create_if_not_exists"
	case CapDropColumn:
		return "drop_column"
	case CapRenameColumn:
		return "rename_column"
	case CapLastInsertID:
		return "last_insert_id"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// CapabilitySet is the set of capabilities a dialect supports.
type CapabilitySet map[Capability]bool

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool { return s[c] }

// Clone copies the set so probes can adjust it per connection.
func (s CapabilitySet) Clone() CapabilitySet {
	out := make(CapabilitySet, len(s))
	for c, ok := range s {
		out[c] = ok
	}
	return out
}

// ColumnDef describes a declared column for DDL generation. Identity marks
// the auto-assigned integer key column; dialects that need a special
// declaration for it implement IdentityFormatter.
type ColumnDef struct {
	Name       string
	Type       types.Kind
	NotNull    bool
	Unique     bool
	HasDefault bool
	Default    any
	Identity   bool
}

// ColumnInfo describes one live column reported by schema introspection.
type ColumnInfo struct {
	Name       string
	Type       types.Kind
	NotNull    bool
	HasDefault bool
	Default    string
}

// Select is the general query primitive's input. Limit and Offset are
// ignored when negative.
type Select struct {
	Columns  []expr.Expr
	Tables   []string
	Where    expr.Expr
	Distinct bool
	OrderBy  []expr.Expr
	Limit    int
	Offset   int
}

// Queryer is the execution surface handed to direct-tier dialect overrides.
// The Conn implements it, so overridden primitives still flow through the
// shared chokepoint for tracing and error translation.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Dialect is the required surface of a backend. Optional behavior is
// discovered through the narrower interfaces below, two tiers per
// primitive: a direct implementation takes over the whole primitive and
// runs its statements through the Conn it is handed, a ...SQL variant only
// produces text that the Conn executes. The direct tier wins when both are
// present; with neither, the SQL-92 baseline applies.
type Dialect interface {
	// Name is the registry key, reported back by Conn.Name.
	Name() string
	// Connect opens the native connection pool for a data source string.
	Connect(ctx context.Context, dsn string) (*sql.DB, error)
	// QuoteChar is the identifier quoting character.
	QuoteChar() byte
	// ParamStyle is the placeholder convention of the native client.
	ParamStyle() ParamStyle
	// NativeType maps a semantic kind to the dialect's column type name.
	NativeType(k types.Kind) (string, bool)
	// SemanticType maps a native column type name, as DDL or introspection
	// reports it, back to a semantic kind.
	SemanticType(native string) (types.Kind, bool)
	// Capabilities is the dialect's static capability set.
	Capabilities() CapabilitySet
}

// TableCreator implements conditional table creation directly, for
// mechanisms that are not a single statement. It receives the raw table
// name and structured definitions and quotes through the Conn.
type TableCreator interface {
	CreateTableIfNotExists(ctx context.Context, c *Conn, table string, cols []ColumnDef, primaryKey []string) error
}

// TableCreatorSQL supplies a dialect-specific conditional CREATE TABLE.
type TableCreatorSQL interface {
	CreateTableIfNotExistsSQL(table string, colDefs []string, primaryKey []string) string
}

// TableLister lists live table names directly.
type TableLister interface {
	ListTables(ctx context.Context, c *Conn) ([]string, error)
}

// TableListerSQL supplies the statement that lists table names, one per
// row, first column.
type TableListerSQL interface {
	ListTablesSQL() string
}

// ColumnLister introspects a table's live columns. Introspection output
// shapes differ too much across engines for a SQL-only tier, so dialects
// implement it directly against the shared connection.
type ColumnLister interface {
	ListColumns(ctx context.Context, c *Conn, table string) ([]ColumnInfo, error)
}

// ColumnAdder implements column addition directly.
type ColumnAdder interface {
	AddColumn(ctx context.Context, c *Conn, table string, def ColumnDef) error
}

// ColumnAdderSQL supplies a dialect-specific ADD COLUMN statement.
type ColumnAdderSQL interface {
	AddColumnSQL(table, colDef string) string
}

// ColumnDropper implements column removal directly.
type ColumnDropper interface {
	DropColumn(ctx context.Context, c *Conn, table, column string) error
}

// ColumnDropperSQL supplies a dialect-specific DROP COLUMN statement.
type ColumnDropperSQL interface {
	DropColumnSQL(table, column string) string
}

// TableDropper implements table removal directly.
type TableDropper interface {
	DropTable(ctx context.Context, c *Conn, table string) error
}

// TableDropperSQL supplies a dialect-specific DROP TABLE statement.
type TableDropperSQL interface {
	DropTableSQL(table string) string
}

// TableRenamer implements table renaming directly.
type TableRenamer interface {
	RenameTable(ctx context.Context, c *Conn, oldName, newName string) error
}

// TableRenamerSQL supplies a dialect-specific RENAME statement.
type TableRenamerSQL interface {
	RenameTableSQL(oldName, newName string) string
}

// Selector implements the general query primitive directly.
type Selector interface {
	Select(ctx context.Context, c *Conn, q Select) (*sql.Rows, error)
}

// Inserter implements the insert primitive directly, for engines whose
// identity retrieval needs its own statement shape.
type Inserter interface {
	Insert(ctx context.Context, c *Conn, table string, columns []string, values []any, identity string) (int64, error)
}

// Updater implements the update primitive directly.
type Updater interface {
	Update(ctx context.Context, c *Conn, table string, columns []string, values []any, where expr.Expr) (int64, error)
}

// Deleter implements the delete primitive directly.
type Deleter interface {
	Delete(ctx context.Context, c *Conn, table string, where expr.Expr) (int64, error)
}

// InsertReturning marks dialects that report new row identities through a
// RETURNING clause instead of the connection.
type InsertReturning interface {
	InsertReturningSuffix(identity string) string
}

// IdentityFormatter supplies the type and constraint text declaring an
// auto-assigned key column, for engines where a plain integer key does not
// auto-assign (AUTO_INCREMENT, GENERATED AS IDENTITY). Engines without it
// declare the column normally.
type IdentityFormatter interface {
	FormatIdentity() string
}

// OpOverrider supplies operator renderings that diverge from the SQL-92
// baseline.
type OpOverrider interface {
	Ops() map[expr.Op]OpFormat
}

// LiteralFormatter overrides DDL literal formatting for specific values
// (boolean and binary literals vary the most across engines).
type LiteralFormatter interface {
	FormatLiteral(v any, k types.Kind) (string, bool)
}

// SessionInitializer supplies statements run once right after connecting.
type SessionInitializer interface {
	SessionStatements() []string
}

// CapabilityProber lets a dialect refine its capability set against the
// live server, e.g. by version.
type CapabilityProber interface {
	ProbeCapabilities(ctx context.Context, q Queryer, caps CapabilitySet) (CapabilitySet, error)
}

// TraceEvent is emitted at the execution chokepoint for every statement and
// transaction boundary.
type TraceEvent struct {
	Kind    string // execute, query, begin, commit, rollback
	SQL     string
	Args    []any
	Err     error
	Elapsed time.Duration
}

// TraceFunc receives trace events. It must not retain Args.
type TraceFunc func(TraceEvent)

// Config carries per-connection settings.
type Config struct {
	Logger  *slog.Logger
	Trace   TraceFunc
	Options map[string]string
}

// Option adjusts a Config.
type Option func(*Config)

// WithLogger attaches a logger; statements are logged at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithTrace attaches a trace hook to the execution chokepoint.
func WithTrace(fn TraceFunc) Option {
	return func(c *Config) { c.Trace = fn }
}

// WithOption sets a dialect-specific option, e.g. "engine" for mysql.
func WithOption(key, value string) Option {
	return func(c *Config) {
		if c.Options == nil {
			c.Options = make(map[string]string)
		}
		c.Options[key] = value
	}
}

// OptionConsumer is implemented by dialects that read Config.Options at
// connect time.
type OptionConsumer interface {
	ApplyOptions(opts map[string]string) error
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func() Dialect)
)

// Register makes a dialect constructor available under a name. It is meant
// to be called from a backend package's init and panics on duplicates, like
// database/sql.Register.
func Register(name string, dialect func() Dialect) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if dialect == nil {
		panic("driver: Register dialect is nil")
	}
	if _, dup := registry[name]; dup {
		panic("driver: Register called twice for driver " + name)
	}
	registry[name] = dialect
}

// Drivers lists the registered driver names, sorted.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open resolves a registered dialect by name and connects it. The name must
// match a registered driver exactly; anything else fails with an unknown
// driver error naming the requested string.
func Open(ctx context.Context, name, dsn string, opts ...Option) (*Conn, error) {
	registryMu.RLock()
	construct, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, NewUnknownDriverError(name)
	}

	cfg := Config{Logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}

	dialect := construct()
	if oc, ok := dialect.(OptionConsumer); ok {
		if err := oc.ApplyOptions(cfg.Options); err != nil {
			return nil, err
		}
	}

	db, err := dialect.Connect(ctx, dsn)
	if err != nil {
		return nil, NewExecutionError(name, "", fmt.Errorf("failed to connect: %w", err))
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, NewExecutionError(name, "", fmt.Errorf("failed to ping: %w", err))
	}

	conn := newConn(dialect, db, cfg)

	if si, ok := dialect.(SessionInitializer); ok {
		for _, stmt := range si.SessionStatements() {
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				db.Close()
				return nil, err
			}
		}
	}
	if prober, ok := dialect.(CapabilityProber); ok {
		caps, err := prober.ProbeCapabilities(ctx, conn, conn.caps)
		if err != nil {
			db.Close()
			return nil, err
		}
		conn.caps = caps
	}
	return conn, nil
}
