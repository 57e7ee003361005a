package dal

import (
	"github.com/satishbabariya/dal-go/driver"
	"github.com/satishbabariya/dal-go/expr"
	"github.com/satishbabariya/dal-go/types"
)

// Column declares one table column: a name, a semantic kind, and the
// constraints Migrate renders into DDL. Once defined it doubles as the
// query-building handle; its methods produce expression nodes, so
// predicates read as users.C("age").Ge(21).
type Column struct {
	name    string
	kind    types.Kind
	notNull bool
	unique  bool
	key     bool

	def     any
	hasDef  bool
	defFunc func() any

	// Reference bookkeeping.
	target *Table
	derive func(Row) any

	table *Table
	err   error
}

// ColumnOption configures a column at construction.
type ColumnOption func(*Column)

// NotNull forbids NULL values.
func NotNull() ColumnOption { return func(c *Column) { c.notNull = true } }

// Unique adds a uniqueness constraint.
func Unique() ColumnOption { return func(c *Column) { c.unique = true } }

// Key makes the column part of the primary key. A table's key is the set
// of its Key columns in declaration order; a lone integer key auto-assigns.
func Key() ColumnOption { return func(c *Column) { c.key = true } }

// Default sets a fixed default, rendered into the DDL and applied by the
// database when an insert omits the column.
func Default(v any) ColumnOption {
	return func(c *Column) {
		c.def = v
		c.hasDef = true
	}
}

// DefaultFunc sets a computed default, evaluated in-process at insert time
// for omitted columns. It never appears in DDL.
func DefaultFunc(fn func() any) ColumnOption {
	return func(c *Column) { c.defFunc = fn }
}

// Derive sets how a reference column computes its stored value from a
// target row. Without it a reference stores the target's primary key.
// Row.MustGet keeps derivation functions short:
//
//	dal.Reference("author", users, dal.Derive(func(r dal.Row) any {
//		return r.MustGet("email")
//	}))
func Derive(fn func(Row) any) ColumnOption {
	return func(c *Column) { c.derive = fn }
}

// OfKind overrides the column's semantic kind. Mainly useful with Derive,
// whose result is otherwise assumed to be text.
func OfKind(k types.Kind) ColumnOption {
	return func(c *Column) { c.kind = k }
}

func newColumn(name string, kind types.Kind, opts []ColumnOption) *Column {
	c := &Column{name: name, kind: kind}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Integer declares a 64-bit integer column.
func Integer(name string, opts ...ColumnOption) *Column {
	return newColumn(name, types.Integer, opts)
}

// Float declares a double-precision column.
func Float(name string, opts ...ColumnOption) *Column {
	return newColumn(name, types.Float, opts)
}

// Bool declares a boolean column.
func Bool(name string, opts ...ColumnOption) *Column {
	return newColumn(name, types.Bool, opts)
}

// Text declares a text column.
func Text(name string, opts ...ColumnOption) *Column {
	return newColumn(name, types.Text, opts)
}

// Blob declares a binary column.
func Blob(name string, opts ...ColumnOption) *Column {
	return newColumn(name, types.Blob, opts)
}

// Timestamp declares a timestamp column.
func Timestamp(name string, opts ...ColumnOption) *Column {
	return newColumn(name, types.Timestamp, opts)
}

// Reference declares a column that points at rows of target. Without
// Derive it stores the target's primary key and inherits that column's
// kind, so the target needs a single-column key; with Derive it stores
// whatever the function computes, assumed text unless OfKind says
// otherwise. Inserts and updates accept a target Row as the value and
// store the derived form.
func Reference(name string, target *Table, opts ...ColumnOption) *Column {
	c := newColumn(name, types.Invalid, opts)
	c.target = target
	if target == nil {
		c.err = driver.NewDefinitionError("reference %q has no target table", name)
		return c
	}
	if c.derive == nil {
		switch keys := target.keys; len(keys) {
		case 0:
			c.err = driver.NewDefinitionError(
				"reference %q targets keyless table %q", name, target.name)
		case 1:
			if c.kind == types.Invalid {
				c.kind = keys[0].kind
			}
		default:
			c.err = driver.NewDefinitionError(
				"reference %q targets composite-key table %q and needs Derive",
				name, target.name)
		}
		return c
	}
	if c.kind == types.Invalid {
		c.kind = types.Text
	}
	return c
}

// Name reports the column name.
func (c *Column) Name() string { return c.name }

// Kind reports the column's semantic kind.
func (c *Column) Kind() types.Kind { return c.kind }

// Target reports the referenced table, nil for plain columns.
func (c *Column) Target() *Table { return c.target }

// refValue resolves a value destined for this column: a Row aimed at a
// reference column is collapsed to its derived form, anything else passes
// through.
func (c *Column) refValue(v any) (any, error) {
	row, ok := v.(Row)
	if !ok || c.target == nil {
		return v, nil
	}
	return c.valueFor(row)
}

// valueFor computes the stored form of a target row.
func (c *Column) valueFor(row Row) (any, error) {
	if c.derive != nil {
		return c.derive(row), nil
	}
	return row.Get(c.target.keys[0].name)
}

// Expr returns the column reference node for use in raw expression code.
func (c *Column) Expr() expr.Expr {
	col := expr.Column{Name: c.name, Type: c.kind}
	if c.table != nil {
		col.Table = c.table.name
	}
	return col
}

// Comparison.

// Eq compares for equality; Eq(nil) renders as IS NULL.
func (c *Column) Eq(v any) expr.Expr { return expr.Eq(c.Expr(), v) }

// Ne compares for inequality; Ne(nil) renders as IS NOT NULL.
func (c *Column) Ne(v any) expr.Expr { return expr.Ne(c.Expr(), v) }

func (c *Column) Lt(v any) expr.Expr { return expr.Lt(c.Expr(), v) }
func (c *Column) Le(v any) expr.Expr { return expr.Le(c.Expr(), v) }
func (c *Column) Gt(v any) expr.Expr { return expr.Gt(c.Expr(), v) }
func (c *Column) Ge(v any) expr.Expr { return expr.Ge(c.Expr(), v) }

// Between matches values in the closed range [lo, hi].
func (c *Column) Between(lo, hi any) expr.Expr { return expr.Between(c.Expr(), lo, hi) }

func (c *Column) IsNull() expr.Expr    { return expr.IsNull(c.Expr()) }
func (c *Column) IsNotNull() expr.Expr { return expr.IsNotNull(c.Expr()) }

// Patterns.

// Like matches against a SQL LIKE pattern with % and _ wildcards.
func (c *Column) Like(pattern any) expr.Expr { return expr.Like(c.Expr(), pattern) }

// LikeEscape is Like with an explicit escape character.
func (c *Column) LikeEscape(pattern any, escape string) expr.Expr {
	return expr.LikeEscape(c.Expr(), pattern, escape)
}

// Glob matches against a shell-style pattern with * and ? wildcards.
func (c *Column) Glob(pattern any) expr.Expr { return expr.Glob(c.Expr(), pattern) }

// StartsWith matches values beginning with the literal prefix; wildcard
// characters in it are escaped, not interpreted.
func (c *Column) StartsWith(prefix string) expr.Expr { return expr.StartsWith(c.Expr(), prefix) }

// EndsWith matches values ending with the literal suffix.
func (c *Column) EndsWith(suffix string) expr.Expr { return expr.EndsWith(c.Expr(), suffix) }

// Contains matches values containing the literal substring.
func (c *Column) Contains(sub string) expr.Expr { return expr.Contains(c.Expr(), sub) }

// Arithmetic.

func (c *Column) Add(v any) expr.Expr { return expr.Add(c.Expr(), v) }
func (c *Column) Sub(v any) expr.Expr { return expr.Sub(c.Expr(), v) }
func (c *Column) Mul(v any) expr.Expr { return expr.Mul(c.Expr(), v) }
func (c *Column) Div(v any) expr.Expr { return expr.Div(c.Expr(), v) }
func (c *Column) Mod(v any) expr.Expr { return expr.Mod(c.Expr(), v) }
func (c *Column) Neg() expr.Expr      { return expr.Neg(c.Expr()) }
func (c *Column) Abs() expr.Expr      { return expr.Abs(c.Expr()) }
func (c *Column) Round() expr.Expr    { return expr.Round(c.Expr()) }

// Text.

func (c *Column) Concat(v any) expr.Expr         { return expr.Concat(c.Expr(), v) }
func (c *Column) Length() expr.Expr              { return expr.Length(c.Expr()) }
func (c *Column) Upper() expr.Expr               { return expr.Upper(c.Expr()) }
func (c *Column) Lower() expr.Expr               { return expr.Lower(c.Expr()) }
func (c *Column) Trim() expr.Expr                { return expr.Trim(c.Expr()) }
func (c *Column) Replace(old, new any) expr.Expr { return expr.Replace(c.Expr(), old, new) }

// Slicing, zero-based and end-exclusive, with negative offsets counting
// from the end.

// At yields the element at index i.
func (c *Column) At(i int) expr.Expr { return expr.At(c.Expr(), i) }

// Slice yields elements in [lo, hi).
func (c *Column) Slice(lo, hi int) expr.Expr { return expr.Slice(c.Expr(), lo, hi) }

// SliceFrom yields elements from lo to the end.
func (c *Column) SliceFrom(lo int) expr.Expr { return expr.SliceFrom(c.Expr(), lo) }

// SliceTo yields elements up to, excluding, hi.
func (c *Column) SliceTo(hi int) expr.Expr { return expr.SliceTo(c.Expr(), hi) }

// Aggregates.

// Sum totals the column over the selected rows; zero rows total 0.
func (c *Column) Sum() expr.Expr { return expr.Sum(c.Expr()) }

// Avg averages the column over the selected rows.
func (c *Column) Avg() expr.Expr { return expr.Avg(c.Expr()) }

func (c *Column) Min() expr.Expr   { return expr.Min(c.Expr()) }
func (c *Column) Max() expr.Expr   { return expr.Max(c.Expr()) }
func (c *Column) Count() expr.Expr { return expr.Count(c.Expr()) }

// Ordering.

// Asc orders by the column ascending.
func (c *Column) Asc() expr.Expr { return expr.Asc(c.Expr()) }

// Desc orders by the column descending.
func (c *Column) Desc() expr.Expr { return expr.Desc(c.Expr()) }
