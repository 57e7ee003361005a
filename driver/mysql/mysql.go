// Package mysql registers the "mysql" driver, backed by go-sql-driver.
// The storage engine is an option: dal.WithOption("engine", "MyISAM").
// Transactions are only available on transactional engines.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-version"

	"github.com/satishbabariya/dal-go/driver"
	"github.com/satishbabariya/dal-go/expr"
	"github.com/satishbabariya/dal-go/types"
)

func init() {
	driver.Register("mysql", func() driver.Dialect { return &Dialect{engine: defaultEngine} })
}

const defaultEngine = "InnoDB"

// Dialect is the MySQL rendering and connection strategy.
type Dialect struct {
	engine string
}

var _ interface {
	driver.Dialect
	driver.TableCreatorSQL
	driver.TableListerSQL
	driver.ColumnLister
	driver.OpOverrider
	driver.IdentityFormatter
	driver.Limiter
	driver.CapabilityProber
	driver.OptionConsumer
} = (*Dialect)(nil)

// Name reports the registry name.
func (d *Dialect) Name() string { return "mysql" }

// ApplyOptions reads dialect options before connecting. The only one is
// "engine", the storage engine new tables are created with.
func (d *Dialect) ApplyOptions(opts map[string]string) error {
	for key, value := range opts {
		switch key {
		case "engine":
			if value == "" {
				return driver.NewDefinitionError("mysql engine must not be empty")
			}
			d.engine = value
		default:
			return driver.NewDefinitionError("unknown mysql option %q", key)
		}
	}
	return nil
}

// Connect parses the DSN and opens a single-connection pool. ParseTime is
// forced on so DATETIME columns scan into time.Time.
func (d *Dialect) Connect(_ context.Context, dsn string) (*sql.DB, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	connector, err := gomysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	return db, nil
}

func (d *Dialect) QuoteChar() byte { return '`' }

func (d *Dialect) ParamStyle() driver.ParamStyle { return driver.Question }

// VARCHAR rather than TEXT for the Text kind: TEXT columns cannot be
// UNIQUE without a prefix length, and 512 fits every index limit.
var nativeTypes = map[types.Kind]string{
	types.Integer:   "BIGINT",
	types.Float:     "DOUBLE",
	types.Bool:      "TINYINT(1)",
	types.Text:      "VARCHAR(512)",
	types.Blob:      "BLOB",
	types.Timestamp: "DATETIME",
}

func (d *Dialect) NativeType(k types.Kind) (string, bool) {
	s, ok := nativeTypes[k]
	return s, ok
}

var semanticTypes = map[string]types.Kind{
	"bigint":     types.Integer,
	"int":        types.Integer,
	"integer":    types.Integer,
	"mediumint":  types.Integer,
	"smallint":   types.Integer,
	"tinyint":    types.Integer,
	"double":     types.Float,
	"float":      types.Float,
	"real":       types.Float,
	"decimal":    types.Float,
	"numeric":    types.Float,
	"text":       types.Text,
	"tinytext":   types.Text,
	"mediumtext": types.Text,
	"longtext":   types.Text,
	"varchar":    types.Text,
	"char":       types.Text,
	"blob":       types.Blob,
	"tinyblob":   types.Blob,
	"mediumblob": types.Blob,
	"longblob":   types.Blob,
	"binary":     types.Blob,
	"varbinary":  types.Blob,
	"datetime":   types.Timestamp,
	"timestamp":  types.Timestamp,
}

// SemanticType maps a DESCRIBE type back to its kind. Display widths and
// the unsigned attribute are ignored, except that tinyint(1) specifically
// is the boolean declaration.
func (d *Dialect) SemanticType(native string) (types.Kind, bool) {
	s := strings.ToLower(strings.TrimSpace(native))
	s = strings.TrimSuffix(s, " unsigned")
	if s == "tinyint(1)" {
		return types.Bool, true
	}
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	k, ok := semanticTypes[s]
	return k, ok
}

// transactionalEngines are the storage engines that honor BEGIN/COMMIT.
var transactionalEngines = map[string]bool{
	"innodb": true,
	"bdb":    true,
}

func (d *Dialect) Capabilities() driver.CapabilitySet {
	return driver.CapabilitySet{
		driver.CapTransactions:      transactionalEngines[strings.ToLower(d.engine)],
		driver.CapCreateIfNotExists: true,
		driver.CapDropColumn:        true,
		driver.CapLastInsertID:      true,
	}
}

var (
	renameColumnSince        = version.Must(version.NewVersion("8.0.0"))
	mariaDBRenameColumnSince = version.Must(version.NewVersion("10.5.2"))
)

// ProbeCapabilities enables RENAME COLUMN when the server is new enough
// for the single-statement form.
func (d *Dialect) ProbeCapabilities(ctx context.Context, q driver.Queryer, caps driver.CapabilitySet) (driver.CapabilitySet, error) {
	rows, err := q.QueryContext(ctx, "SELECT VERSION()")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var raw string
	if rows.Next() {
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan server version: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Server versions look like "8.0.36" or "10.11.6-MariaDB-log".
	core, _, _ := strings.Cut(raw, "-")
	v, err := version.NewVersion(core)
	if err != nil {
		return nil, fmt.Errorf("invalid server version %q: %w", raw, err)
	}
	since := renameColumnSince
	if strings.Contains(strings.ToLower(raw), "mariadb") {
		since = mariaDBRenameColumnSince
	}
	caps[driver.CapRenameColumn] = !v.LessThan(since)
	return caps, nil
}

// CreateTableIfNotExistsSQL pins new tables to the configured storage
// engine.
func (d *Dialect) CreateTableIfNotExistsSQL(table string, colDefs []string, primaryKey []string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s(%s) ENGINE=%s",
		table, driver.TableBody(colDefs, primaryKey), d.engine)
}

// FormatIdentity declares the auto-assigned key column. MySQL integer keys
// do not auto-assign without AUTO_INCREMENT.
func (d *Dialect) FormatIdentity() string { return "BIGINT NOT NULL AUTO_INCREMENT" }

// ListTablesSQL lists the tables of the current database.
func (d *Dialect) ListTablesSQL() string { return "SHOW TABLES" }

// ListColumns reads a table's live columns from DESCRIBE.
func (d *Dialect) ListColumns(ctx context.Context, c *driver.Conn, table string) ([]driver.ColumnInfo, error) {
	name, err := c.Identifier(table)
	if err != nil {
		return nil, err
	}
	rows, err := c.QueryContext(ctx, "DESCRIBE "+name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []driver.ColumnInfo
	for rows.Next() {
		var (
			field, colType, null string
			key, dflt, extra     sql.NullString
		)
		if err := rows.Scan(&field, &colType, &null, &key, &dflt, &extra); err != nil {
			return nil, fmt.Errorf("failed to scan column description: %w", err)
		}
		kind, ok := d.SemanticType(colType)
		if !ok {
			return nil, driver.NewSchemaError(table, "unknown native type %q for column %q", colType, field)
		}
		cols = append(cols, driver.ColumnInfo{
			Name:       field,
			Type:       kind,
			NotNull:    null == "NO",
			HasDefault: dflt.Valid,
			Default:    dflt.String,
		})
	}
	return cols, rows.Err()
}

// LimitClause renders LIMIT/OFFSET. MySQL has no unbounded LIMIT term, so
// an offset without a limit uses the maximum row count the manual
// recommends.
func (d *Dialect) LimitClause(limit, offset int) string {
	switch {
	case limit >= 0 && offset >= 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit >= 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset >= 0:
		return fmt.Sprintf(" LIMIT 18446744073709551615 OFFSET %d", offset)
	default:
		return ""
	}
}

// Ops diverge from the baseline where MySQL has no operator form: || is
// logical OR here, GLOB does not exist, and DIV is the floor division
// operator.
func (d *Dialect) Ops() map[expr.Op]driver.OpFormat {
	return map[expr.Op]driver.OpFormat{
		expr.OpConcat: func(a []string) string {
			return fmt.Sprintf("concat(%s,%s)", a[0], a[1])
		},
		expr.OpFloorDiv: func(a []string) string {
			return fmt.Sprintf("%s DIV %s", a[0], a[1])
		},
		expr.OpGlob: driver.GlobViaLike,
	}
}
