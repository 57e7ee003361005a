package dal

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/satishbabariya/dal-go/driver"
	"github.com/satishbabariya/dal-go/types"
)

// defs renders the table definition for DDL.
func (t *Table) defs() []driver.ColumnDef {
	out := make([]driver.ColumnDef, len(t.cols))
	for i, col := range t.cols {
		out[i] = driver.ColumnDef{
			Name:       col.name,
			Type:       col.kind,
			NotNull:    col.notNull,
			Unique:     col.unique,
			HasDefault: col.hasDef,
			Default:    col.def,
			Identity:   col == t.identity,
		}
	}
	return out
}

func (t *Table) keyNames() []string {
	out := make([]string, len(t.keys))
	for i, col := range t.keys {
		out[i] = col.name
	}
	return out
}

// Migrate creates every defined table that does not exist yet, in
// definition order. Existing tables are left exactly as they are; Conform
// reconciles those.
func (db *DB) Migrate(ctx context.Context) error {
	for _, name := range db.order {
		t := db.tables[name]
		if err := db.conn.CreateTableIfNotExists(ctx, t.name, t.defs(), t.keyNames()); err != nil {
			return fmt.Errorf("failed to migrate table %q: %w", t.name, err)
		}
	}
	return nil
}

// ConformOption adjusts what Conform is allowed to change.
type ConformOption func(*conformConfig)

type conformConfig struct {
	dropExtra bool
}

// DropExtraColumns lets Conform remove live columns that are not in the
// definition. Without it extras are only reported.
func DropExtraColumns() ConformOption {
	return func(c *conformConfig) { c.dropExtra = true }
}

// ColumnRef names one column of one table in a ConformReport.
type ColumnRef struct {
	Table  string
	Column string
}

// KindMismatch records a live column whose type disagrees with the
// definition. Conform reports these and never rewrites data to fix them.
type KindMismatch struct {
	Table    string
	Column   string
	Declared types.Kind
	Live     types.Kind
}

// ConformReport says what Conform found and did.
type ConformReport struct {
	// Created lists tables built from scratch because they were missing.
	Created []string
	// Added lists declared columns that were missing live and got added.
	Added []ColumnRef
	// Mismatched lists live columns whose type disagrees with the
	// definition. They are left alone.
	Mismatched []KindMismatch
	// Extra lists live columns with no definition that were left in
	// place.
	Extra []ColumnRef
	// Dropped lists live columns with no definition that were removed.
	Dropped []ColumnRef
}

// Changed reports whether Conform issued any DDL.
func (r *ConformReport) Changed() bool {
	return len(r.Created) > 0 || len(r.Added) > 0 || len(r.Dropped) > 0
}

// Conform reconciles live schema with the definitions. Missing tables are
// created and missing columns added. Type mismatches are reported, never
// fixed. Live-only columns are tolerated and reported unless
// DropExtraColumns is given, in which case they are removed, by a native
// drop when the backend has one and otherwise by rebuilding the table
// without them. A live column whose native type has no semantic mapping
// aborts with a Schema error rather than guessing.
func (db *DB) Conform(ctx context.Context, opts ...ConformOption) (*ConformReport, error) {
	var cfg conformConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	live, err := db.conn.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	liveSet := make(map[string]bool, len(live))
	for _, name := range live {
		liveSet[name] = true
	}

	report := &ConformReport{}
	for _, name := range db.order {
		t := db.tables[name]
		if !liveSet[name] {
			if err := db.conn.CreateTableIfNotExists(ctx, t.name, t.defs(), t.keyNames()); err != nil {
				return report, err
			}
			report.Created = append(report.Created, name)
			continue
		}
		if err := db.conformTable(ctx, t, cfg, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (db *DB) conformTable(ctx context.Context, t *Table, cfg conformConfig, report *ConformReport) error {
	info, err := db.conn.ListColumns(ctx, t.name)
	if err != nil {
		return err
	}
	liveKind := make(map[string]types.Kind, len(info))
	for _, col := range info {
		liveKind[col.Name] = col.Type
	}

	defs := t.defs()
	for i, col := range t.cols {
		kind, ok := liveKind[col.name]
		if !ok {
			if err := db.conn.AddColumn(ctx, t.name, defs[i]); err != nil {
				return err
			}
			report.Added = append(report.Added, ColumnRef{t.name, col.name})
			continue
		}
		if kind != col.kind {
			report.Mismatched = append(report.Mismatched, KindMismatch{
				Table:    t.name,
				Column:   col.name,
				Declared: col.kind,
				Live:     kind,
			})
		}
	}

	var extras []string
	for _, col := range info {
		if _, ok := t.colIndex[col.Name]; !ok {
			extras = append(extras, col.Name)
		}
	}
	if len(extras) == 0 {
		return nil
	}
	if !cfg.dropExtra {
		for _, name := range extras {
			report.Extra = append(report.Extra, ColumnRef{t.name, name})
		}
		return nil
	}

	if db.conn.Capabilities().Has(driver.CapDropColumn) {
		for _, name := range extras {
			if err := db.conn.DropColumn(ctx, t.name, name); err != nil {
				return err
			}
			report.Dropped = append(report.Dropped, ColumnRef{t.name, name})
		}
		return nil
	}
	if err := db.rebuildWithout(ctx, t, extras); err != nil {
		return err
	}
	for _, name := range extras {
		report.Dropped = append(report.Dropped, ColumnRef{t.name, name})
	}
	return nil
}

// rebuildWithout drops live-only columns on backends without a native
// column drop. It creates a shadow table from the definition, copies the
// declared columns across, drops the original, and renames the shadow in
// its place, all inside one transaction window when the backend has them.
func (db *DB) rebuildWithout(ctx context.Context, t *Table, extras []string) error {
	var nonce [4]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}
	shadow := fmt.Sprintf("%s_conform_%x", t.name, nonce)

	rebuild := func(ctx context.Context) error {
		if err := db.conn.CreateTableIfNotExists(ctx, shadow, t.defs(), t.keyNames()); err != nil {
			return err
		}
		cols := make([]string, len(t.cols))
		for i, col := range t.cols {
			name, err := db.conn.Identifier(col.name)
			if err != nil {
				return err
			}
			cols[i] = name
		}
		from, err := db.conn.Identifier(t.name)
		if err != nil {
			return err
		}
		to, err := db.conn.Identifier(shadow)
		if err != nil {
			return err
		}
		list := strings.Join(cols, ", ")
		copyStmt := fmt.Sprintf("INSERT INTO %s(%s) SELECT %s FROM %s", to, list, list, from)
		if _, err := db.conn.ExecContext(ctx, copyStmt); err != nil {
			return err
		}
		if err := db.conn.DropTable(ctx, t.name); err != nil {
			return err
		}
		return db.conn.RenameTable(ctx, shadow, t.name)
	}

	if db.conn.Capabilities().Has(driver.CapTransactions) {
		return db.Transaction(ctx, rebuild)
	}
	return rebuild(ctx)
}
