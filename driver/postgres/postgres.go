// Package postgres registers the "postgres" driver, backed by lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/satishbabariya/dal-go/driver"
	"github.com/satishbabariya/dal-go/expr"
	"github.com/satishbabariya/dal-go/types"
)

func init() {
	driver.Register("postgres", func() driver.Dialect { return &Dialect{} })
}

// Dialect is the PostgreSQL rendering and connection strategy.
type Dialect struct{}

var _ interface {
	driver.Dialect
	driver.TableCreatorSQL
	driver.TableListerSQL
	driver.ColumnLister
	driver.OpOverrider
	driver.InsertReturning
	driver.IdentityFormatter
	driver.LiteralFormatter
	driver.Limiter
} = (*Dialect)(nil)

// Name reports the registry name.
func (d *Dialect) Name() string { return "postgres" }

// Connect opens a single-connection pool against the server. The DSN is
// either a postgres:// URL or a key=value string; lib/pq accepts both.
func (d *Dialect) Connect(_ context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func (d *Dialect) QuoteChar() byte { return '"' }

func (d *Dialect) ParamStyle() driver.ParamStyle { return driver.Dollar }

var nativeTypes = map[types.Kind]string{
	types.Integer:   "BIGINT",
	types.Float:     "DOUBLE PRECISION",
	types.Bool:      "BOOLEAN",
	types.Text:      "TEXT",
	types.Blob:      "BYTEA",
	types.Timestamp: "TIMESTAMP",
}

func (d *Dialect) NativeType(k types.Kind) (string, bool) {
	s, ok := nativeTypes[k]
	return s, ok
}

// semanticTypes keys are information_schema.columns data_type values.
var semanticTypes = map[string]types.Kind{
	"bigint":                      types.Integer,
	"integer":                     types.Integer,
	"smallint":                    types.Integer,
	"double precision":            types.Float,
	"real":                        types.Float,
	"numeric":                     types.Float,
	"boolean":                     types.Bool,
	"text":                        types.Text,
	"character varying":           types.Text,
	"character":                   types.Text,
	"bytea":                       types.Blob,
	"timestamp without time zone": types.Timestamp,
	"timestamp with time zone":    types.Timestamp,
}

func (d *Dialect) SemanticType(native string) (types.Kind, bool) {
	k, ok := semanticTypes[strings.ToLower(strings.TrimSpace(native))]
	return k, ok
}

func (d *Dialect) Capabilities() driver.CapabilitySet {
	return driver.CapabilitySet{
		driver.CapTransactions:      true,
		driver.CapCreateIfNotExists: true,
		driver.CapDropColumn:        true,
		driver.CapRenameColumn:      true,
	}
}

// CreateTableIfNotExistsSQL assembles the statement itself because the
// shared body puts ordering terms in the key clause, which PostgreSQL
// rejects.
func (d *Dialect) CreateTableIfNotExistsSQL(table string, defs, pk []string) string {
	body := strings.Join(defs, ", ")
	if len(pk) > 0 {
		body += ", PRIMARY KEY (" + strings.Join(pk, ", ") + ")"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s(%s)", table, body)
}

// InsertReturningSuffix reports new row identities through RETURNING;
// lib/pq does not implement LastInsertId.
func (d *Dialect) InsertReturningSuffix(identity string) string {
	return " RETURNING " + identity
}

// FormatIdentity declares the auto-assigned key column.
func (d *Dialect) FormatIdentity() string {
	return "BIGINT GENERATED BY DEFAULT AS IDENTITY"
}

// FormatLiteral overrides boolean and binary DDL literals; the portable
// forms (1/0 and X'..') are not PostgreSQL syntax.
func (d *Dialect) FormatLiteral(v any, _ types.Kind) (string, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return "TRUE", true
		}
		return "FALSE", true
	case []byte:
		return fmt.Sprintf(`'\x%x'`, x), true
	default:
		return "", false
	}
}

// ListTablesSQL lists base tables of the public schema.
func (d *Dialect) ListTablesSQL() string {
	return "SELECT table_name FROM information_schema.tables" +
		" WHERE table_schema='public' AND table_type='BASE TABLE'"
}

// ListColumns reads a table's live columns from the information schema.
func (d *Dialect) ListColumns(ctx context.Context, c *driver.Conn, table string) ([]driver.ColumnInfo, error) {
	query := "SELECT column_name, data_type, is_nullable, column_default" +
		" FROM information_schema.columns" +
		" WHERE table_schema='public' AND table_name=?" +
		" ORDER BY ordinal_position"
	rows, err := c.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []driver.ColumnInfo
	for rows.Next() {
		var (
			name, colType, nullable string
			dflt                    sql.NullString
		)
		if err := rows.Scan(&name, &colType, &nullable, &dflt); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		kind, ok := d.SemanticType(colType)
		if !ok {
			return nil, driver.NewSchemaError(table, "unknown native type %q for column %q", colType, name)
		}
		cols = append(cols, driver.ColumnInfo{
			Name:       name,
			Type:       kind,
			NotNull:    nullable == "NO",
			HasDefault: dflt.Valid,
			Default:    dflt.String,
		})
	}
	return cols, rows.Err()
}

// LimitClause renders LIMIT/OFFSET; PostgreSQL accepts a bare OFFSET.
func (d *Dialect) LimitClause(limit, offset int) string {
	switch {
	case limit >= 0 && offset >= 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit >= 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset >= 0:
		return fmt.Sprintf(" OFFSET %d", offset)
	default:
		return ""
	}
}

// Ops diverge from the baseline where PostgreSQL is stricter: there is no
// GLOB, two-argument round only accepts numeric, and the text functions
// do not take non-text arguments implicitly, so substr and length cast.
func (d *Dialect) Ops() map[expr.Op]driver.OpFormat {
	return map[expr.Op]driver.OpFormat{
		expr.OpGlob: driver.GlobViaLike,
		expr.OpRound: func(a []string) string {
			if len(a) == 2 {
				return fmt.Sprintf("round((%s)::numeric,%s)", a[0], a[1])
			}
			return fmt.Sprintf("round(%s)", a[0])
		},
		expr.OpSubstr: func(a []string) string {
			return fmt.Sprintf("substr((%s)::text,%s)", a[0], strings.Join(a[1:], ","))
		},
		expr.OpLength: func(a []string) string {
			return fmt.Sprintf("length((%s)::text)", a[0])
		},
	}
}
