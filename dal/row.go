package dal

import (
	"context"
	"fmt"
	"strings"

	"github.com/satishbabariya/dal-go/driver"
)

// Row is an ordered snapshot of one fetched result row. Values are plain
// Go values coerced to each projected expression's kind, so an integer
// column reads back as int64 no matter how the engine reported it.
//
// A row fetched with its table's full primary key in the projection keeps
// enough provenance to write back: PrimaryKey, Update, Delete, and
// Referrers work on it. A projection that drops part of the key yields
// read-only rows.
type Row struct {
	table *Table
	names []string
	vals  []any
	key   []any
}

// Field is one named value of a row.
type Field struct {
	Name  string
	Value any
}

// Len reports the number of values in the row.
func (r Row) Len() int { return len(r.vals) }

// Columns lists the projected names in order.
func (r Row) Columns() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Index returns the i'th value.
func (r Row) Index(i int) any { return r.vals[i] }

// Get returns the value under name.
func (r Row) Get(name string) (any, error) {
	for i, n := range r.names {
		if n == name {
			return r.vals[i], nil
		}
	}
	table := ""
	if r.table != nil {
		table = r.table.name
	}
	return nil, driver.NewColumnError(table, name)
}

// MustGet is Get for names known to be present; it panics on a miss.
func (r Row) MustGet(name string) any {
	v, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return v
}

// Pairs lists the row's fields in projection order.
func (r Row) Pairs() []Field {
	out := make([]Field, len(r.vals))
	for i := range r.vals {
		out[i] = Field{Name: r.names[i], Value: r.vals[i]}
	}
	return out
}

// Map returns the row as a name-to-value map, losing the order.
func (r Row) Map() map[string]any {
	out := make(map[string]any, len(r.vals))
	for i, n := range r.names {
		out[n] = r.vals[i]
	}
	return out
}

// String renders the row for logs and tests, Row(name=value, ...) with
// strings single-quoted.
func (r Row) String() string {
	var b strings.Builder
	b.WriteString("Row(")
	for i, n := range r.names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(n)
		b.WriteByte('=')
		switch v := r.vals[i].(type) {
		case string:
			b.WriteByte('\'')
			b.WriteString(v)
			b.WriteByte('\'')
		case []byte:
			fmt.Fprintf(&b, "0x%x", v)
		default:
			fmt.Fprintf(&b, "%v", v)
		}
	}
	b.WriteString(")")
	return b.String()
}

// PrimaryKey returns the row's key values in key-column order, empty when
// the table is keyless or the projection dropped part of the key.
func (r Row) PrimaryKey() []any {
	out := make([]any, len(r.key))
	copy(out, r.key)
	return out
}

// writeKey is the predicate source for Update and Delete.
func (r Row) writeKey() ([]any, error) {
	if r.table == nil {
		return nil, driver.NewDefinitionError("row has no table provenance")
	}
	if len(r.table.keys) == 0 {
		return nil, driver.NewSchemaError(r.table.name, "table has no primary key")
	}
	if r.key == nil {
		return nil, driver.NewDefinitionError(
			"row of table %q was fetched without its full primary key", r.table.name)
	}
	return r.key, nil
}

// Update writes values to this row and returns a fresh snapshot of it,
// refetched by its possibly-updated key.
func (r Row) Update(ctx context.Context, values Values) (Row, error) {
	key, err := r.writeKey()
	if err != nil {
		return Row{}, err
	}
	t := r.table
	if _, err := t.Where(t.keyPredicate(key)).Update(ctx, values); err != nil {
		return Row{}, err
	}
	newKey := make([]any, len(key))
	copy(newKey, key)
	for i, kc := range t.keys {
		if v, ok := values[kc.name]; ok {
			v, err := kc.refValue(v)
			if err != nil {
				return Row{}, err
			}
			newKey[i] = v
		}
	}
	return t.Get(ctx, newKey...)
}

// Delete removes this row. Deleting a row that is already gone is not an
// error.
func (r Row) Delete(ctx context.Context) error {
	key, err := r.writeKey()
	if err != nil {
		return err
	}
	t := r.table
	_, err = t.Where(t.keyPredicate(key)).Delete(ctx)
	return err
}

// Referrers selects the rows of the named table whose reference column
// points at this row. The named table must have exactly one reference to
// this row's table; with several, filter explicitly instead.
func (r Row) Referrers(table string) (*Selection, error) {
	if r.table == nil {
		return nil, driver.NewDefinitionError("row has no table provenance")
	}
	other, err := r.table.db.Table(table)
	if err != nil {
		return nil, err
	}
	var ref *Column
	for _, col := range other.cols {
		if col.target != r.table {
			continue
		}
		if ref != nil {
			return nil, driver.NewDefinitionError(
				"table %q has several references to %q, filter on one explicitly",
				table, r.table.name)
		}
		ref = col
	}
	if ref == nil {
		return nil, driver.NewDefinitionError(
			"table %q has no reference to %q", table, r.table.name)
	}
	v, err := ref.valueFor(r)
	if err != nil {
		return nil, err
	}
	return other.Where(ref.Eq(v)), nil
}
