// Package expr models queries as immutable expression trees. A tree is
// built from column references, literal values, and operator applications,
// composes into arbitrarily nested predicates, and performs no I/O until a
// driver renders it into a SQL fragment with bound parameters.
package expr

import (
	"fmt"

	"github.com/satishbabariya/dal-go/types"
)

// Expr is a node in an expression tree. Implementations are Column,
// Literal, Call, and the star projection; the set is closed so drivers can
// render by exhaustive case analysis.
type Expr interface {
	// Kind is the semantic type of the value this node produces.
	Kind() types.Kind
	node()
}

// Op identifies an operator or function applied by a Call node.
type Op int

const (
	OpInvalid Op = iota

	// Comparison.
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpBetween

	// Logic.
	OpAnd
	OpOr
	OpNot

	// Arithmetic.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
	OpMod
	OpNeg
	OpAbs
	OpRound

	// Aggregates.
	OpSum
	OpAvg
	OpMin
	OpMax
	OpCount

	// Text.
	OpConcat
	OpLength
	OpUpper
	OpLower
	OpTrim
	OpLTrim
	OpRTrim
	OpReplace
	OpSubstr
	OpLike
	OpGlob

	// Null handling.
	OpCoalesce

	// Ordering wrappers, valid only inside ORDER BY.
	OpAsc
	OpDesc
)

var opNames = map[Op]string{
	OpEq:       "eq",
	OpNe:       "ne",
	OpLt:       "lt",
	OpLe:       "le",
	OpGt:       "gt",
	OpGe:       "ge",
	OpBetween:  "between",
	OpAnd:      "and",
	OpOr:       "or",
	OpNot:      "not",
	OpAdd:      "add",
	OpSub:      "sub",
	OpMul:      "mul",
	OpDiv:      "div",
	OpFloorDiv: "floordiv",
	OpMod:      "mod",
	OpNeg:      "neg",
	OpAbs:      "abs",
	OpRound:    "round",
	OpSum:      "sum",
	OpAvg:      "avg",
	OpMin:      "min",
	OpMax:      "max",
	OpCount:    "count",
	OpConcat:   "concat",
	OpLength:   "length",
	OpUpper:    "upper",
	OpLower:    "lower",
	OpTrim:     "trim",
	OpLTrim:    "ltrim",
	OpRTrim:    "rtrim",
	OpReplace:  "replace",
	OpSubstr:   "substr",
	OpLike:     "like",
	OpGlob:     "glob",
	OpCoalesce: "coalesce",
	OpAsc:      "asc",
	OpDesc:     "desc",
}

func (op Op) String() string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// Column references a table column.
type Column struct {
	Table string
	Name  string
	Type  types.Kind
}

func (Column) node() {}

func (c Column) Kind() types.Kind { return c.Type }

// Literal is a constant value bound as a driver parameter at render time,
// never interpolated into SQL text.
type Literal struct {
	Value any
	Type  types.Kind
}

func (Literal) node() {}

func (l Literal) Kind() types.Kind { return l.Type }

// Call applies an operator to rendered operands.
type Call struct {
	Op   Op
	Args []Expr
	Type types.Kind
}

func (Call) node() {}

func (c Call) Kind() types.Kind { return c.Type }

// StarExpr is the bare "*" projection. It is only meaningful as the operand
// of Count.
type StarExpr struct{}

func (StarExpr) node() {}

func (StarExpr) Kind() types.Kind { return types.Invalid }

// Star returns the "*" projection for use with Count.
func Star() Expr { return StarExpr{} }

// Exprer is implemented by higher-level handles, such as declared columns,
// that know their expression form. Builders accept them anywhere an
// expression or plain value is accepted.
type Exprer interface {
	Expr() Expr
}

// Value lifts a plain Go value into a Literal with its inferred kind.
// Expressions and Exprers pass through in expression form.
func Value(v any) Expr {
	return lift(v)
}

func lift(v any) Expr {
	switch e := v.(type) {
	case Expr:
		return e
	case Exprer:
		return e.Expr()
	}
	return Literal{Value: v, Type: types.KindOf(v)}
}

func liftAll(vs []any) []Expr {
	out := make([]Expr, len(vs))
	for i, v := range vs {
		out[i] = lift(v)
	}
	return out
}

// IsNil reports whether e is the nil literal. Drivers use it to switch
// equality comparisons to IS NULL / IS NOT NULL form.
func IsNil(e Expr) bool {
	l, ok := e.(Literal)
	return ok && l.Value == nil
}
