package driver

import (
	"fmt"
	"strconv"
	"strings"
)

// ParamStyle is the placeholder convention a dialect's native client
// expects. Statements are rendered with "?" internally and rebound to the
// dialect's style immediately before execution.
type ParamStyle int

const (
	// Question uses positional "?" placeholders.
	Question ParamStyle = iota
	// Dollar uses numeric "$1" placeholders.
	Dollar
	// Colon uses numeric ":1" placeholders.
	Colon
	// Format uses "%s" placeholders.
	Format
	// PyFormat uses named "%(p1)s" placeholders.
	PyFormat
)

func (s ParamStyle) String() string {
	switch s {
	case Question:
		return "question"
	case Dollar:
		return "dollar"
	case Colon:
		return "colon"
	case Format:
		return "format"
	case PyFormat:
		return "pyformat"
	default:
		return fmt.Sprintf("paramstyle(%d)", int(s))
	}
}

// Rebind rewrites "?" placeholders into the target style. Quoted regions
// (single, double, and backtick) are left untouched, so literal question
// marks inside identifiers or DDL defaults survive.
func Rebind(style ParamStyle, query string) string {
	if style == Question {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 10)

	var quote byte
	n := 0
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			b.WriteByte(c)
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
			b.WriteByte(c)
		case c == '?':
			n++
			switch style {
			case Dollar:
				b.WriteByte('$')
				b.WriteString(strconv.Itoa(n))
			case Colon:
				b.WriteByte(':')
				b.WriteString(strconv.Itoa(n))
			case Format:
				b.WriteString("%s")
			case PyFormat:
				b.WriteString("%(p")
				b.WriteString(strconv.Itoa(n))
				b.WriteString(")s")
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
