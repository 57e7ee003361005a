// Package types defines the semantic value types the abstraction layer
// understands and the coercion rules that normalize values scanned from
// heterogeneous database engines.
package types

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// Kind is a semantic value type. Every column, literal, and expression
// carries one, and every driver maps each kind to a native column type.
type Kind int

const (
	Invalid Kind = iota
	Integer
	Float
	Bool
	Text
	Blob
	Timestamp
)

var kindNames = map[Kind]string{
	Invalid:   "invalid",
	Integer:   "integer",
	Float:     "float",
	Bool:      "bool",
	Text:      "text",
	Blob:      "blob",
	Timestamp: "timestamp",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is one of the six storable kinds.
func (k Kind) Valid() bool {
	return k > Invalid && k <= Timestamp
}

// Kinds lists the storable kinds in declaration order. Drivers must map
// every one of them to a native type.
func Kinds() []Kind {
	return []Kind{Integer, Float, Bool, Text, Blob, Timestamp}
}

// KindOf infers the semantic kind of a plain Go value. It returns Invalid
// for nil and for types outside the supported set.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return Invalid
	case bool:
		return Bool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Integer
	case float32, float64:
		return Float
	case string:
		return Text
	case []byte:
		return Blob
	case time.Time:
		return Timestamp
	default:
		return Invalid
	}
}

// Coerce normalizes a value scanned from a database into the canonical Go
// type for a kind: int64, float64, bool, string, []byte, or time.Time.
// Engines disagree about scan types (a substring of an integer column comes
// back as text on one backend and bytes on another); coercing by the
// expression's kind makes results uniform. Nil passes through untouched, as
// does any value when the kind is Invalid.
func Coerce(v any, k Kind) (any, error) {
	if v == nil || !k.Valid() {
		return v, nil
	}
	if b, ok := v.([]byte); ok && k != Blob {
		v = string(b)
	}
	switch k {
	case Integer:
		n, err := cast.ToInt64E(v)
		if err != nil {
			// Engines that compute division or averages over integer
			// columns report a decimal; floor it like integer division
			// would.
			if f, ferr := cast.ToFloat64E(v); ferr == nil {
				return int64(f), nil
			}
			return nil, fmt.Errorf("failed to coerce %T to integer: %w", v, err)
		}
		return n, nil
	case Float:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, fmt.Errorf("failed to coerce %T to float: %w", v, err)
		}
		return f, nil
	case Bool:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, fmt.Errorf("failed to coerce %T to bool: %w", v, err)
		}
		return b, nil
	case Text:
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("failed to coerce %T to text: %w", v, err)
		}
		return s, nil
	case Blob:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		default:
			return nil, fmt.Errorf("failed to coerce %T to blob", v)
		}
	case Timestamp:
		t, err := cast.ToTimeE(v)
		if err != nil {
			return nil, fmt.Errorf("failed to coerce %T to timestamp: %w", v, err)
		}
		return t, nil
	}
	return v, nil
}
