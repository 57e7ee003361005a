package driver

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/dal-go/expr"
)

// OpFormat renders one operator over already-rendered operand fragments.
// The renderer wraps every result in parentheses, so formats never add
// their own outer pair.
type OpFormat func(args []string) string

func binaryOp(op string) OpFormat {
	return func(a []string) string { return a[0] + op + a[1] }
}

func funcOp(name string) OpFormat {
	return func(a []string) string {
		return fmt.Sprintf("%s(%s)", name, strings.Join(a, ","))
	}
}

// prefixOp renders "<keyword> a".
func prefixOp(keyword string) OpFormat {
	return func(a []string) string { return keyword + a[0] }
}

// baselineOps is the SQL-92-like rendering every dialect starts from.
// Dialects override individual entries through the OpOverrider interface.
func baselineOps() map[expr.Op]OpFormat {
	return map[expr.Op]OpFormat{
		expr.OpEq: binaryOp("="),
		expr.OpNe: binaryOp("!="),
		expr.OpLt: binaryOp("<"),
		expr.OpLe: binaryOp("<="),
		expr.OpGt: binaryOp(">"),
		expr.OpGe: binaryOp(">="),
		expr.OpBetween: func(a []string) string {
			return fmt.Sprintf("%s BETWEEN %s AND %s", a[0], a[1], a[2])
		},

		expr.OpAnd: binaryOp(" AND "),
		expr.OpOr:  binaryOp(" OR "),
		expr.OpNot: prefixOp("NOT "),

		expr.OpAdd:      binaryOp("+"),
		expr.OpSub:      binaryOp("-"),
		expr.OpMul:      binaryOp("*"),
		expr.OpDiv:      binaryOp("/"),
		expr.OpFloorDiv: binaryOp("/"),
		expr.OpMod:      binaryOp("%"),
		expr.OpNeg:      prefixOp("-"),
		expr.OpAbs:      funcOp("abs"),
		expr.OpRound:    funcOp("round"),

		// Null-safe by contract: a sum over zero rows is zero, not null.
		expr.OpSum: func(a []string) string {
			return fmt.Sprintf("coalesce(sum(%s),0)", a[0])
		},
		expr.OpAvg: funcOp("avg"),
		expr.OpMin: funcOp("min"),
		expr.OpMax: funcOp("max"),
		expr.OpCount: func(a []string) string {
			return fmt.Sprintf("count(%s)", a[0])
		},

		expr.OpConcat: binaryOp("||"),
		expr.OpLength: funcOp("length"),
		expr.OpUpper:  funcOp("upper"),
		expr.OpLower:  funcOp("lower"),
		expr.OpTrim:   funcOp("trim"),
		expr.OpLTrim:  funcOp("ltrim"),
		expr.OpRTrim:  funcOp("rtrim"),
		expr.OpReplace: func(a []string) string {
			return fmt.Sprintf("replace(%s,%s,%s)", a[0], a[1], a[2])
		},
		expr.OpSubstr: funcOp("substr"),
		expr.OpLike: func(a []string) string {
			if len(a) == 3 {
				return fmt.Sprintf("%s LIKE %s ESCAPE %s", a[0], a[1], a[2])
			}
			return fmt.Sprintf("%s LIKE %s", a[0], a[1])
		},
		expr.OpGlob: func(a []string) string {
			return fmt.Sprintf("%s GLOB %s", a[0], a[1])
		},

		expr.OpCoalesce: funcOp("coalesce"),

		expr.OpAsc:  func(a []string) string { return a[0] + " ASC" },
		expr.OpDesc: func(a []string) string { return a[0] + " DESC" },
	}
}

// GlobViaLike rewrites a glob match into LIKE over a translated pattern,
// for dialects without a native GLOB: "*" becomes "%" and "?" becomes "_".
func GlobViaLike(a []string) string {
	return fmt.Sprintf("%s LIKE replace(replace(%s,'*','%%'),'?','_')", a[0], a[1])
}
