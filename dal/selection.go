package dal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/satishbabariya/dal-go/driver"
	"github.com/satishbabariya/dal-go/expr"
	"github.com/satishbabariya/dal-go/types"
)

// Selection is a lazy, restartable query over one table. Chaining methods
// copy the selection, so partial queries can be held and refined without
// affecting each other; no SQL runs until a terminal method is called.
type Selection struct {
	table    *Table
	where    expr.Expr
	proj     []projection
	distinct bool
	order    []expr.Expr
	limit    int
	offset   int
}

// projection is one output column: the expression and the name its value
// carries in fetched rows.
type projection struct {
	name string
	e    expr.Expr
}

func (s *Selection) clone() *Selection {
	c := *s
	return &c
}

// liftTerm turns projection and ordering arguments into expression nodes.
// Columns become their reference node, expressions pass through, and
// anything else is a literal.
func liftTerm(v any) expr.Expr {
	switch x := v.(type) {
	case *Column:
		return x.Expr()
	case expr.Expr:
		return x
	default:
		return expr.Value(v)
	}
}

// Where narrows the selection; successive predicates are ANDed.
func (s *Selection) Where(pred expr.Expr) *Selection {
	if pred == nil {
		return s
	}
	c := s.clone()
	if c.where == nil {
		c.where = pred
	} else {
		c.where = expr.And(c.where, pred)
	}
	return c
}

// Project replaces the output columns. Arguments are columns or
// expressions; expression values are named expr1, expr2, ... in fetched
// rows. Without Project a selection yields every declared column.
func (s *Selection) Project(cols ...any) *Selection {
	c := s.clone()
	c.proj = make([]projection, len(cols))
	for i, a := range cols {
		e := liftTerm(a)
		name := fmt.Sprintf("expr%d", i+1)
		switch x := a.(type) {
		case *Column:
			name = x.name
		case expr.Column:
			name = x.Name
		}
		c.proj[i] = projection{name: name, e: e}
	}
	return c
}

// Distinct collapses duplicate result rows.
func (s *Selection) Distinct() *Selection {
	c := s.clone()
	c.distinct = true
	return c
}

// OrderBy replaces the ordering. Bare columns sort ascending; wrap with
// Asc or Desc to say so explicitly or to mix directions.
func (s *Selection) OrderBy(terms ...any) *Selection {
	c := s.clone()
	c.order = make([]expr.Expr, len(terms))
	for i, a := range terms {
		c.order[i] = liftTerm(a)
	}
	return c
}

// Limit caps the number of result rows.
func (s *Selection) Limit(n int) *Selection {
	c := s.clone()
	c.limit = n
	return c
}

// Offset skips the first n result rows.
func (s *Selection) Offset(n int) *Selection {
	c := s.clone()
	c.offset = n
	return c
}

// projections resolves the effective output columns.
func (s *Selection) projections() []projection {
	if len(s.proj) > 0 {
		return s.proj
	}
	out := make([]projection, len(s.table.cols))
	for i, col := range s.table.cols {
		out[i] = projection{name: col.name, e: col.Expr()}
	}
	return out
}

// keyIndexes locates every primary-key column in the projection. Rows can
// only write back when the full key was fetched; a nil result withholds
// that.
func (s *Selection) keyIndexes(proj []projection) []int {
	if len(s.table.keys) == 0 {
		return nil
	}
	idx := make([]int, len(s.table.keys))
	for i, key := range s.table.keys {
		idx[i] = -1
		for j, p := range proj {
			col, ok := p.e.(expr.Column)
			if ok && col.Table == s.table.name && col.Name == key.name {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil
		}
	}
	return idx
}

func (s *Selection) spec(proj []projection) driver.Select {
	cols := make([]expr.Expr, len(proj))
	for i, p := range proj {
		cols[i] = p.e
	}
	return driver.Select{
		Columns:  cols,
		Tables:   []string{s.table.name},
		Where:    s.where,
		Distinct: s.distinct,
		OrderBy:  s.order,
		Limit:    s.limit,
		Offset:   s.offset,
	}
}

// Rows runs the query and returns an iterator over the result. The caller
// owns it and must Close.
func (s *Selection) Rows(ctx context.Context) (*Rows, error) {
	proj := s.projections()
	rows, err := s.table.db.conn.Query(ctx, s.spec(proj))
	if err != nil {
		return nil, err
	}
	return &Rows{
		table:  s.table,
		proj:   proj,
		keyIdx: s.keyIndexes(proj),
		rows:   rows,
	}, nil
}

// All runs the query and collects every result row.
func (s *Selection) All(ctx context.Context) ([]Row, error) {
	rows, err := s.Rows(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		out = append(out, rows.Row())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// One returns the first result row, or a NotFound error when the
// selection is empty.
func (s *Selection) One(ctx context.Context) (Row, error) {
	row, ok, err := s.First(ctx)
	if err != nil {
		return Row{}, err
	}
	if !ok {
		return Row{}, driver.NewNotFoundError(s.table.name, nil)
	}
	return row, nil
}

// First returns the first result row; ok is false when the selection is
// empty.
func (s *Selection) First(ctx context.Context) (row Row, ok bool, err error) {
	rows, err := s.Limit(1).Rows(ctx)
	if err != nil {
		return Row{}, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return Row{}, false, rows.Err()
	}
	return rows.Row(), true, nil
}

// Count reports the number of rows matching the predicate. Projection,
// ordering, and limits do not apply to the count.
func (s *Selection) Count(ctx context.Context) (int64, error) {
	q := driver.Select{
		Columns: []expr.Expr{expr.CountAll()},
		Tables:  []string{s.table.name},
		Where:   s.where,
		Limit:   -1,
		Offset:  -1,
	}
	rows, err := s.table.db.conn.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, s.iterErr(rows.Err())
	}
	var n int64
	if err := rows.Scan(&n); err != nil {
		return 0, s.iterErr(err)
	}
	return n, nil
}

// Value runs the selection projected to the single expression e and
// returns the first row's value, coerced to the expression's kind. An
// empty selection yields nil. Aggregates collapse the selection to one
// row, so sums and averages come back directly:
//
//	total, err := orders.All().Value(ctx, orders.C("amount").Sum())
func (s *Selection) Value(ctx context.Context, e any) (any, error) {
	ex := liftTerm(e)
	rows, err := s.table.db.conn.Query(ctx, s.spec([]projection{{name: "value", e: ex}}))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, s.iterErr(rows.Err())
	}
	var raw any
	if err := rows.Scan(&raw); err != nil {
		return nil, s.iterErr(err)
	}
	v, err := types.Coerce(raw, ex.Kind())
	if err != nil {
		return nil, s.iterErr(err)
	}
	return v, nil
}

// Update writes values to every row the selection matches and reports how
// many were touched. Unknown names are rejected, reference columns accept
// target rows, and computed defaults never apply.
func (s *Selection) Update(ctx context.Context, values Values) (int64, error) {
	names, args, err := s.table.resolve(values, false)
	if err != nil {
		return 0, err
	}
	if len(names) == 0 {
		return 0, nil
	}
	return s.table.db.conn.Update(ctx, s.table.name, names, args, s.where)
}

// Delete removes every row the selection matches and reports how many
// went away.
func (s *Selection) Delete(ctx context.Context) (int64, error) {
	return s.table.db.conn.Delete(ctx, s.table.name, s.where)
}

// iterErr translates a result-iteration failure; nil stays nil.
func (s *Selection) iterErr(err error) error {
	if err == nil {
		return nil
	}
	return driver.NewExecutionError(s.table.db.conn.Name(), "", err)
}

// Rows iterates a query result. Next advances, Row snapshots the current
// row, and Err reports what stopped a short iteration.
type Rows struct {
	table  *Table
	proj   []projection
	keyIdx []int
	rows   *sql.Rows
	cur    Row
	err    error
}

// Next advances to the next result row, materializing it; it returns
// false at the end of the result or on error.
func (r *Rows) Next() bool {
	if r.err != nil || r.rows == nil {
		return false
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			r.err = driver.NewExecutionError(r.table.db.conn.Name(), "", err)
		}
		return false
	}
	raw := make([]any, len(r.proj))
	ptrs := make([]any, len(r.proj))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		r.err = driver.NewExecutionError(r.table.db.conn.Name(), "", err)
		return false
	}

	names := make([]string, len(r.proj))
	vals := make([]any, len(r.proj))
	for i, p := range r.proj {
		names[i] = p.name
		v, err := types.Coerce(raw[i], p.e.Kind())
		if err != nil {
			r.err = driver.NewExecutionError(r.table.db.conn.Name(), "", err)
			return false
		}
		vals[i] = v
	}

	var key []any
	if r.keyIdx != nil {
		key = make([]any, len(r.keyIdx))
		for i, j := range r.keyIdx {
			key[i] = vals[j]
		}
	}
	r.cur = Row{table: r.table, names: names, vals: vals, key: key}
	return true
}

// Row returns the current row. Valid after a true Next.
func (r *Rows) Row() Row { return r.cur }

// Err reports the error that ended iteration early, if any.
func (r *Rows) Err() error { return r.err }

// Close releases the underlying result.
func (r *Rows) Close() error {
	if r.rows == nil {
		return nil
	}
	return r.rows.Close()
}
