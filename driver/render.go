package driver

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/satishbabariya/dal-go/expr"
	"github.com/satishbabariya/dal-go/types"
)

// ValidIdentifier reports whether name is usable as a table or column name:
// nonempty, letters, digits, and underscores only. Validation happens at
// definition time so bad names are rejected before any SQL exists; render
// re-checks anyway.
func ValidIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Identifier validates and quotes a name with the dialect's quote
// character.
func (c *Conn) Identifier(name string) (string, error) {
	if !ValidIdentifier(name) {
		return "", NewDefinitionError("invalid identifier %q: only letters, digits, and underscores are allowed", name)
	}
	q := string(c.dialect.QuoteChar())
	return q + name + q, nil
}

func (c *Conn) columnRef(table, name string) (string, error) {
	n, err := c.Identifier(name)
	if err != nil {
		return "", err
	}
	if table == "" {
		return n, nil
	}
	t, err := c.Identifier(table)
	if err != nil {
		return "", err
	}
	return t + "." + n, nil
}

// literal formats a value as DDL text. This is the one place values appear
// inside SQL rather than as bound parameters: column DEFAULT clauses.
func (c *Conn) literal(v any, k types.Kind) (string, error) {
	if lf, ok := c.dialect.(LiteralFormatter); ok {
		if s, handled := lf.FormatLiteral(v, k); handled {
			return s, nil
		}
	}
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case []byte:
		return "X'" + strings.ToUpper(hex.EncodeToString(x)) + "'", nil
	case time.Time:
		return "'" + x.Format("2006-01-02 15:04:05") + "'", nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x), nil
	case float32, float64:
		return fmt.Sprintf("%g", x), nil
	default:
		return "", NewDefinitionError("cannot format %T as a %s default", v, k)
	}
}

type fragment struct {
	sql  strings.Builder
	args []any
}

// Render compiles an expression tree into a SQL fragment plus its ordered
// bound parameters. Placeholders are "?" at this stage; the execution path
// rebinds them to the dialect's parameter style.
func (c *Conn) Render(e expr.Expr) (string, []any, error) {
	if e == nil {
		return "", nil, nil
	}
	var f fragment
	if err := c.render(e, &f); err != nil {
		return "", nil, err
	}
	return f.sql.String(), f.args, nil
}

func (c *Conn) render(e expr.Expr, f *fragment) error {
	switch n := e.(type) {
	case expr.Column:
		ref, err := c.columnRef(n.Table, n.Name)
		if err != nil {
			return err
		}
		f.sql.WriteString(ref)
		return nil
	case expr.StarExpr:
		f.sql.WriteString("*")
		return nil
	case expr.Literal:
		if n.Value == nil {
			f.sql.WriteString("NULL")
			return nil
		}
		f.sql.WriteString("?")
		f.args = append(f.args, n.Value)
		return nil
	case expr.Call:
		return c.renderCall(n, f)
	default:
		return NewDefinitionError("cannot render expression node %T", e)
	}
}

func (c *Conn) renderCall(n expr.Call, f *fragment) error {
	// Equality against the null value means IS NULL, not "= NULL".
	if (n.Op == expr.OpEq || n.Op == expr.OpNe) && len(n.Args) == 2 {
		if other, nullArg := splitNullComparison(n.Args); nullArg {
			var inner fragment
			if err := c.render(other, &inner); err != nil {
				return err
			}
			f.sql.WriteString("(")
			f.sql.WriteString(inner.sql.String())
			if n.Op == expr.OpEq {
				f.sql.WriteString(" IS NULL)")
			} else {
				f.sql.WriteString(" IS NOT NULL)")
			}
			f.args = append(f.args, inner.args...)
			return nil
		}
	}

	format, ok := c.ops[n.Op]
	if !ok {
		return NewDefinitionError("operator %s is not supported by driver %q", n.Op, c.dialect.Name())
	}
	rendered := make([]string, len(n.Args))
	for i, arg := range n.Args {
		var inner fragment
		if err := c.render(arg, &inner); err != nil {
			return err
		}
		rendered[i] = inner.sql.String()
		f.args = append(f.args, inner.args...)
	}
	f.sql.WriteString("(")
	f.sql.WriteString(format(rendered))
	f.sql.WriteString(")")
	return nil
}

func splitNullComparison(args []expr.Expr) (expr.Expr, bool) {
	if expr.IsNil(args[1]) {
		return args[0], true
	}
	if expr.IsNil(args[0]) {
		return args[1], true
	}
	return nil, false
}

// RenderWhere renders a predicate with the clause keyword prepended, or an
// empty string for a nil predicate.
func (c *Conn) RenderWhere(e expr.Expr) (string, []any, error) {
	if e == nil {
		return "", nil, nil
	}
	sqlText, args, err := c.Render(e)
	if err != nil {
		return "", nil, err
	}
	if sqlText == "" {
		return "", nil, nil
	}
	return " WHERE " + sqlText, args, nil
}

// renderOrderBy renders ORDER BY terms with their outermost parentheses
// stripped; at least one engine rejects a parenthesized order expression.
func (c *Conn) renderOrderBy(terms []expr.Expr, f *fragment) error {
	for i, term := range terms {
		var inner fragment
		if err := c.render(term, &inner); err != nil {
			return err
		}
		if i == 0 {
			f.sql.WriteString(" ORDER BY ")
		} else {
			f.sql.WriteString(", ")
		}
		f.sql.WriteString(stripOuterParens(inner.sql.String()))
		f.args = append(f.args, inner.args...)
	}
	return nil
}

// stripOuterParens removes one enclosing pair of parentheses when the pair
// spans the whole fragment.
func stripOuterParens(s string) string {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return s
	}
	depth := 0
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s
			}
		}
	}
	return s[1 : len(s)-1]
}

// formatColumnDef renders one column declaration for CREATE TABLE and ADD
// COLUMN. Function defaults never reach DDL; they are evaluated per insert.
func (c *Conn) formatColumnDef(def ColumnDef) (string, error) {
	name, err := c.Identifier(def.Name)
	if err != nil {
		return "", err
	}
	if def.Identity {
		if f, ok := c.dialect.(IdentityFormatter); ok {
			return name + " " + f.FormatIdentity(), nil
		}
	}
	native, ok := c.dialect.NativeType(def.Type)
	if !ok {
		return "", NewDefinitionError("driver %q has no native type for %s", c.dialect.Name(), def.Type)
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteString(" ")
	b.WriteString(native)
	if def.NotNull {
		b.WriteString(" NOT NULL")
	}
	if def.Unique {
		b.WriteString(" UNIQUE")
	}
	if def.HasDefault && (def.NotNull || def.Default != nil) {
		lit, err := c.literal(def.Default, def.Type)
		if err != nil {
			return "", err
		}
		b.WriteString(" DEFAULT ")
		b.WriteString(lit)
	}
	return b.String(), nil
}

func (c *Conn) formatColumnDefs(defs []ColumnDef) ([]string, error) {
	out := make([]string, len(defs))
	for i, def := range defs {
		s, err := c.formatColumnDef(def)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
