package dal

import (
	"context"

	"github.com/satishbabariya/dal-go/driver"
	"github.com/satishbabariya/dal-go/expr"
)

// Values carries column values for inserts and updates, keyed by column
// name. A reference column accepts either a raw stored value or a Row of
// its target table.
type Values map[string]any

// Table is a defined table bound to its DB.
type Table struct {
	db       *DB
	name     string
	cols     []*Column
	colIndex map[string]*Column
	keys     []*Column
	identity *Column

	// Reference columns in other tables that target this one, collected
	// by Define for reverse lookups.
	referrers []*Column
}

// Name reports the table name.
func (t *Table) Name() string { return t.name }

// Columns lists the table's columns in declaration order.
func (t *Table) Columns() []*Column {
	out := make([]*Column, len(t.cols))
	copy(out, t.cols)
	return out
}

// PrimaryKey lists the key columns in declaration order, empty for
// keyless tables.
func (t *Table) PrimaryKey() []*Column {
	out := make([]*Column, len(t.keys))
	copy(out, t.keys)
	return out
}

// Column retrieves a column by name.
func (t *Table) Column(name string) (*Column, error) {
	col, ok := t.colIndex[name]
	if !ok {
		return nil, driver.NewColumnError(t.name, name)
	}
	return col, nil
}

// C is shorthand for Column that panics on unknown names, for use in
// expression literals where the name is spelled right there.
func (t *Table) C(name string) *Column {
	col, err := t.Column(name)
	if err != nil {
		panic(err)
	}
	return col
}

// All selects every row of the table.
func (t *Table) All() *Selection {
	return &Selection{table: t, limit: -1, offset: -1}
}

// Where selects the rows matching pred.
func (t *Table) Where(pred expr.Expr) *Selection {
	return t.All().Where(pred)
}

// resolve validates a Values map against the table and returns column
// names and stored values in declaration order. Unknown names are
// rejected; reference columns collapse Row values to their stored form.
// When defaults is true, columns with a computed default are filled in
// when omitted. Columns with a fixed default stay omitted so the database
// applies it.
func (t *Table) resolve(values Values, defaults bool) ([]string, []any, error) {
	for name := range values {
		if _, ok := t.colIndex[name]; !ok {
			return nil, nil, driver.NewColumnError(t.name, name)
		}
	}
	var (
		names []string
		args  []any
	)
	for _, col := range t.cols {
		v, present := values[col.name]
		if !present {
			if defaults && col.defFunc != nil {
				names = append(names, col.name)
				args = append(args, col.defFunc())
			}
			continue
		}
		v, err := col.refValue(v)
		if err != nil {
			return nil, nil, err
		}
		names = append(names, col.name)
		args = append(args, v)
	}
	return names, args, nil
}

// Insert adds a row. Computed defaults fill omitted columns, fixed
// defaults are left to the database, and reference columns accept target
// rows. The new identity is returned when the table has a lone integer
// key and the driver can report it, 0 otherwise.
func (t *Table) Insert(ctx context.Context, values Values) (int64, error) {
	names, args, err := t.resolve(values, true)
	if err != nil {
		return 0, err
	}
	if len(names) == 0 {
		return 0, driver.NewDefinitionError("insert into %q needs at least one value", t.name)
	}
	identity := ""
	if t.identity != nil {
		identity = t.identity.name
	}
	return t.db.conn.Insert(ctx, t.name, names, args, identity)
}

// InsertMany adds rows inside a single transaction window, so a failing
// row discards the batch.
func (t *Table) InsertMany(ctx context.Context, rows []Values) error {
	return t.db.Transaction(ctx, func(ctx context.Context) error {
		for _, values := range rows {
			if _, err := t.Insert(ctx, values); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get fetches the row with the given primary key, one value per key
// column in declaration order.
func (t *Table) Get(ctx context.Context, key ...any) (Row, error) {
	if len(t.keys) == 0 {
		return Row{}, driver.NewSchemaError(t.name, "table has no primary key")
	}
	if len(key) != len(t.keys) {
		return Row{}, driver.NewSchemaError(t.name,
			"key arity mismatch: want %d values, got %d", len(t.keys), len(key))
	}
	row, err := t.Where(t.keyPredicate(key)).One(ctx)
	if driver.IsNotFound(err) {
		return Row{}, driver.NewNotFoundError(t.name, key)
	}
	return row, err
}

// keyPredicate builds the conjunction matching one primary key.
func (t *Table) keyPredicate(key []any) expr.Expr {
	pred := t.keys[0].Eq(key[0])
	for i := 1; i < len(t.keys); i++ {
		pred = expr.And(pred, t.keys[i].Eq(key[i]))
	}
	return pred
}
