// Package sqlite registers the "sqlite" driver, backed by mattn/go-sqlite3.
// The empty DSN opens a temporary in-memory database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/satishbabariya/dal-go/driver"
	"github.com/satishbabariya/dal-go/expr"
	"github.com/satishbabariya/dal-go/types"
)

func init() {
	driver.Register("sqlite", func() driver.Dialect { return &Dialect{} })
}

// Dialect is the SQLite rendering and connection strategy.
type Dialect struct{}

var _ interface {
	driver.Dialect
	driver.TableListerSQL
	driver.ColumnLister
	driver.OpOverrider
	driver.SessionInitializer
	driver.CapabilityProber
} = (*Dialect)(nil)

// Name reports the registry name.
func (d *Dialect) Name() string { return "sqlite" }

// Connect opens the database file, or an in-memory database for an empty
// DSN. The pool is pinned to a single connection: an in-memory database
// exists per connection, and transaction depth is tracked per session.
func (d *Dialect) Connect(_ context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func (d *Dialect) QuoteChar() byte { return '"' }

func (d *Dialect) ParamStyle() driver.ParamStyle { return driver.Question }

// SessionStatements enforces referential integrity, which SQLite leaves off
// by default.
func (d *Dialect) SessionStatements() []string {
	return []string{"PRAGMA foreign_keys=ON"}
}

var nativeTypes = map[types.Kind]string{
	types.Integer:   "INTEGER",
	types.Float:     "REAL",
	types.Bool:      "INT",
	types.Text:      "TEXT",
	types.Blob:      "BLOB",
	types.Timestamp: "TIMESTAMP",
}

var semanticTypes = map[string]types.Kind{
	"INTEGER":   types.Integer,
	"REAL":      types.Float,
	"INT":       types.Bool,
	"TEXT":      types.Text,
	"BLOB":      types.Blob,
	"TIMESTAMP": types.Timestamp,
}

// NativeType maps a semantic kind to the declared SQLite type. Booleans are
// stored as INT; true integers use INTEGER so single-column integer keys
// alias the rowid and auto-assign.
func (d *Dialect) NativeType(k types.Kind) (string, bool) {
	s, ok := nativeTypes[k]
	return s, ok
}

// SemanticType maps a declared SQLite type back to its kind.
func (d *Dialect) SemanticType(native string) (types.Kind, bool) {
	k, ok := semanticTypes[strings.ToUpper(strings.TrimSpace(native))]
	return k, ok
}

func (d *Dialect) Capabilities() driver.CapabilitySet {
	return driver.CapabilitySet{
		driver.CapTransactions:      true,
		driver.CapCreateIfNotExists: true,
		driver.CapLastInsertID:      true,
	}
}

var (
	renameColumnSince = version.Must(version.NewVersion("3.25.0"))
	dropColumnSince   = version.Must(version.NewVersion("3.35.0"))
)

// ProbeCapabilities enables column renames and drops when the linked
// library is new enough for the native ALTER TABLE forms.
func (d *Dialect) ProbeCapabilities(ctx context.Context, q driver.Queryer, caps driver.CapabilitySet) (driver.CapabilitySet, error) {
	rows, err := q.QueryContext(ctx, "SELECT sqlite_version()")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var raw string
	if rows.Next() {
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan sqlite version: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	v, err := version.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid sqlite version %q: %w", raw, err)
	}
	caps[driver.CapRenameColumn] = !v.LessThan(renameColumnSince)
	caps[driver.CapDropColumn] = !v.LessThan(dropColumnSince)
	return caps, nil
}

// ListTablesSQL lists user tables, skipping SQLite's internal ones.
func (d *Dialect) ListTablesSQL() string {
	return "SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'"
}

// ListColumns reads a table's live columns from PRAGMA table_info. A
// declared type outside the semantic map is a schema error: guessing a
// kind would corrupt conformance checks.
func (d *Dialect) ListColumns(ctx context.Context, c *driver.Conn, table string) ([]driver.ColumnInfo, error) {
	name, err := c.Identifier(table)
	if err != nil {
		return nil, err
	}
	rows, err := c.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", name))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []driver.ColumnInfo
	for rows.Next() {
		var (
			cid       int
			colName   string
			colType   string
			notNull   int
			dfltValue sql.NullString
			isPk      int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dfltValue, &isPk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		kind, ok := d.SemanticType(colType)
		if !ok {
			return nil, driver.NewSchemaError(table, "unknown native type %q for column %q", colType, colName)
		}
		cols = append(cols, driver.ColumnInfo{
			Name:       colName,
			Type:       kind,
			NotNull:    notNull != 0,
			HasDefault: dfltValue.Valid,
			Default:    dfltValue.String,
		})
	}
	return cols, rows.Err()
}

// Ops overrides the null-safe sum with SQLite's total(), which already
// returns 0.0 over zero rows.
func (d *Dialect) Ops() map[expr.Op]driver.OpFormat {
	return map[expr.Op]driver.OpFormat{
		expr.OpSum: func(a []string) string { return fmt.Sprintf("total(%s)", a[0]) },
	}
}
