package expr

import (
	"strings"

	"github.com/satishbabariya/dal-go/types"
)

// Builders lift plain Go operands to literals, so predicates read naturally:
//
//	expr.And(expr.Ge(age, 18), expr.Like(name, "J%"))

func call(op Op, kind types.Kind, args ...Expr) Call {
	return Call{Op: op, Args: args, Type: kind}
}

// numericKind promotes arithmetic results: Float wins over Integer.
func numericKind(args ...Expr) types.Kind {
	kind := types.Integer
	for _, a := range args {
		if a.Kind() == types.Float {
			kind = types.Float
		}
	}
	return kind
}

// Eq compares for equality. Comparing against nil renders as IS NULL.
func Eq(a, b any) Expr { return call(OpEq, types.Bool, lift(a), lift(b)) }

// Ne compares for inequality. Comparing against nil renders as IS NOT NULL.
func Ne(a, b any) Expr { return call(OpNe, types.Bool, lift(a), lift(b)) }

func Lt(a, b any) Expr { return call(OpLt, types.Bool, lift(a), lift(b)) }

func Le(a, b any) Expr { return call(OpLe, types.Bool, lift(a), lift(b)) }

func Gt(a, b any) Expr { return call(OpGt, types.Bool, lift(a), lift(b)) }

func Ge(a, b any) Expr { return call(OpGe, types.Bool, lift(a), lift(b)) }

// Between tests lo <= a <= hi, bounds inclusive.
func Between(a, lo, hi any) Expr {
	return call(OpBetween, types.Bool, lift(a), lift(lo), lift(hi))
}

// IsNull tests a against the null value.
func IsNull(a any) Expr { return Eq(a, nil) }

// IsNotNull tests a against the null value, negated.
func IsNotNull(a any) Expr { return Ne(a, nil) }

// And combines predicates; extra operands fold in from the left.
func And(a, b any, more ...any) Expr {
	e := call(OpAnd, types.Bool, lift(a), lift(b))
	for _, m := range more {
		e = call(OpAnd, types.Bool, e, lift(m))
	}
	return e
}

// Or combines predicates; extra operands fold in from the left.
func Or(a, b any, more ...any) Expr {
	e := call(OpOr, types.Bool, lift(a), lift(b))
	for _, m := range more {
		e = call(OpOr, types.Bool, e, lift(m))
	}
	return e
}

func Not(a any) Expr { return call(OpNot, types.Bool, lift(a)) }

func Add(a, b any) Expr {
	x, y := lift(a), lift(b)
	return call(OpAdd, numericKind(x, y), x, y)
}

func Sub(a, b any) Expr {
	x, y := lift(a), lift(b)
	return call(OpSub, numericKind(x, y), x, y)
}

func Mul(a, b any) Expr {
	x, y := lift(a), lift(b)
	return call(OpMul, numericKind(x, y), x, y)
}

func Div(a, b any) Expr {
	x, y := lift(a), lift(b)
	return call(OpDiv, numericKind(x, y), x, y)
}

// FloorDiv divides and truncates toward zero.
func FloorDiv(a, b any) Expr {
	return call(OpFloorDiv, types.Integer, lift(a), lift(b))
}

func Mod(a, b any) Expr {
	x, y := lift(a), lift(b)
	return call(OpMod, numericKind(x, y), x, y)
}

func Neg(a any) Expr {
	x := lift(a)
	return call(OpNeg, numericKind(x), x)
}

func Abs(a any) Expr {
	x := lift(a)
	return call(OpAbs, numericKind(x), x)
}

// Round rounds to the nearest integer.
func Round(a any) Expr {
	return call(OpRound, types.Float, lift(a))
}

// RoundTo rounds to n decimal places.
func RoundTo(a any, n int) Expr {
	return call(OpRound, types.Float, lift(a), lift(n))
}

// Sum is null-safe: over zero rows it yields zero, not null.
func Sum(a any) Expr { return call(OpSum, types.Float, lift(a)) }

func Avg(a any) Expr { return call(OpAvg, types.Float, lift(a)) }

// Min keeps its operand's kind.
func Min(a any) Expr {
	x := lift(a)
	return call(OpMin, x.Kind(), x)
}

// Max keeps its operand's kind.
func Max(a any) Expr {
	x := lift(a)
	return call(OpMax, x.Kind(), x)
}

// Count counts non-null values of its operand.
func Count(a any) Expr { return call(OpCount, types.Integer, lift(a)) }

// CountAll counts rows.
func CountAll() Expr { return call(OpCount, types.Integer, Star()) }

func Concat(a, b any) Expr {
	return call(OpConcat, types.Text, lift(a), lift(b))
}

func Length(a any) Expr { return call(OpLength, types.Integer, lift(a)) }

func Upper(a any) Expr { return call(OpUpper, types.Text, lift(a)) }

func Lower(a any) Expr { return call(OpLower, types.Text, lift(a)) }

// Trim strips whitespace from both ends.
func Trim(a any) Expr { return call(OpTrim, types.Text, lift(a)) }

// TrimChars strips any character in cutset from both ends.
func TrimChars(a any, cutset string) Expr {
	return call(OpTrim, types.Text, lift(a), lift(cutset))
}

func LTrim(a any) Expr { return call(OpLTrim, types.Text, lift(a)) }

func LTrimChars(a any, cutset string) Expr {
	return call(OpLTrim, types.Text, lift(a), lift(cutset))
}

func RTrim(a any) Expr { return call(OpRTrim, types.Text, lift(a)) }

func RTrimChars(a any, cutset string) Expr {
	return call(OpRTrim, types.Text, lift(a), lift(cutset))
}

func Replace(a, old, new any) Expr {
	return call(OpReplace, types.Text, lift(a), lift(old), lift(new))
}

// Like matches against a SQL LIKE pattern.
func Like(a, pattern any) Expr {
	return call(OpLike, types.Bool, lift(a), lift(pattern))
}

// LikeEscape matches against a SQL LIKE pattern with an explicit escape
// character.
func LikeEscape(a, pattern any, escape string) Expr {
	return call(OpLike, types.Bool, lift(a), lift(pattern), lift(escape))
}

// Glob matches against a shell-style pattern ("*" and "?" wildcards).
func Glob(a, pattern any) Expr {
	return call(OpGlob, types.Bool, lift(a), lift(pattern))
}

// Coalesce yields the first non-null operand.
func Coalesce(a any, rest ...any) Expr {
	if len(rest) == 0 {
		return lift(a)
	}
	x := lift(a)
	args := append([]Expr{x}, liftAll(rest)...)
	return call(OpCoalesce, x.Kind(), args...)
}

// Asc marks an ORDER BY term ascending.
func Asc(a any) Expr {
	x := lift(a)
	return call(OpAsc, x.Kind(), x)
}

// Desc marks an ORDER BY term descending.
func Desc(a any) Expr {
	x := lift(a)
	return call(OpDesc, x.Kind(), x)
}

const likeEscapeChar = `\`

func escapeLikePattern(s string) string {
	r := strings.NewReplacer(
		likeEscapeChar, likeEscapeChar+likeEscapeChar,
		"%", likeEscapeChar+"%",
		"_", likeEscapeChar+"_",
	)
	return r.Replace(s)
}

// StartsWith tests whether a begins with the literal prefix. Wildcard
// characters in the prefix are escaped, so they match themselves.
func StartsWith(a any, prefix string) Expr {
	return LikeEscape(a, escapeLikePattern(prefix)+"%", likeEscapeChar)
}

// EndsWith tests whether a ends with the literal suffix.
func EndsWith(a any, suffix string) Expr {
	return LikeEscape(a, "%"+escapeLikePattern(suffix), likeEscapeChar)
}

// Contains tests whether a contains the literal substring.
func Contains(a any, sub string) Expr {
	return LikeEscape(a, "%"+escapeLikePattern(sub)+"%", likeEscapeChar)
}
