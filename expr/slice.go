package expr

// Sequence-style slicing over text-valued expressions, with the usual
// zero-based, end-exclusive bounds and negative offsets counting from the
// end. Slices compile to substr/length arithmetic and never emit negative
// substr positions, which engines disagree about. Bounds that overshoot the
// value's length are clamped rather than rejected, so results degrade
// gracefully instead of varying by engine. A slice keeps its operand's
// kind: slicing an integer-kinded value yields integer-kinded digits.

// nonNegative clamps v to zero: max(v,0) as (v+abs(v))/2, which every
// supported engine evaluates with plain arithmetic.
func nonNegative(v Expr) Expr {
	return FloorDiv(Add(v, Abs(v)), 2)
}

// startFromEnd converts a negative zero-based offset into a 1-based substr
// position, clamped to the start of the value.
func startFromEnd(e Expr, off int) Expr {
	// length(e) + off + 1, no lower than 1.
	return Add(nonNegative(Add(Length(e), off)), 1)
}

// boundIndex resolves a possibly-negative zero-based bound against the
// value's length, clamped to the start.
func boundIndex(e Expr, i int) Expr {
	if i >= 0 {
		return Value(i)
	}
	return nonNegative(Add(Length(e), i))
}

func substrOf(e Expr, bounds ...Expr) Expr {
	return call(OpSubstr, e.Kind(), append([]Expr{e}, bounds...)...)
}

// At yields the single element at zero-based index i.
func At(a any, i int) Expr {
	e := lift(a)
	if i >= 0 {
		return substrOf(e, Value(i+1), Value(1))
	}
	return substrOf(e, startFromEnd(e, i), Value(1))
}

// SliceFrom yields elements from zero-based index lo to the end.
func SliceFrom(a any, lo int) Expr {
	e := lift(a)
	if lo >= 0 {
		return substrOf(e, Value(lo+1))
	}
	return substrOf(e, startFromEnd(e, lo))
}

// SliceTo yields elements from the start up to, excluding, index hi.
func SliceTo(a any, hi int) Expr {
	e := lift(a)
	if hi >= 0 {
		return substrOf(e, Value(1), Value(hi))
	}
	return substrOf(e, Value(1), nonNegative(Add(Length(e), hi)))
}

// Slice yields elements from index lo up to, excluding, index hi.
func Slice(a any, lo, hi int) Expr {
	e := lift(a)
	if lo >= 0 && hi >= 0 {
		n := hi - lo
		if n < 0 {
			n = 0
		}
		return substrOf(e, Value(lo+1), Value(n))
	}
	// With a negative bound in play both indexes resolve against the
	// value's length, each clamped before differencing, so an offset
	// past the start never inflates the count.
	start := boundIndex(e, lo)
	return substrOf(e, Add(start, 1), nonNegative(Sub(boundIndex(e, hi), start)))
}
