package driver

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies every error the abstraction layer produces. Definition,
// Schema, and Column errors indicate caller bugs and are never retried;
// Execution errors carry the native database failure untouched.
type Code int

const (
	CodeUnknown Code = iota
	CodeDefinition
	CodeUnknownDriver
	CodeSchema
	CodeNotFound
	CodeColumn
	CodeExecution
)

func (c Code) String() string {
	switch c {
	case CodeDefinition:
		return "definition"
	case CodeUnknownDriver:
		return "unknown_driver"
	case CodeSchema:
		return "schema"
	case CodeNotFound:
		return "not_found"
	case CodeColumn:
		return "column"
	case CodeExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// Error is the single error type surfaced by the layer. Code tells callers
// how to react; Table, Column, and Driver localize the failure; Cause holds
// the native error for Execution codes.
type Error struct {
	Code    Code
	Message string
	Driver  string
	Table   string
	Column  string
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("dal: ")
	b.WriteString(e.Message)
	if e.Table != "" {
		fmt.Fprintf(&b, " (table %q", e.Table)
		if e.Column != "" {
			fmt.Fprintf(&b, ", column %q", e.Column)
		}
		b.WriteString(")")
	} else if e.Column != "" {
		fmt.Fprintf(&b, " (column %q)", e.Column)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code, so callers can compare against
// a bare code marker: errors.Is(err, &Error{Code: CodeNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code &&
		(t.Message == "" || t.Message == e.Message) &&
		(t.Table == "" || t.Table == e.Table) &&
		(t.Column == "" || t.Column == e.Column)
}

// NewDefinitionError reports an invalid definition: bad identifier,
// duplicate name, unusable reference target, or unbalanced transaction
// bookkeeping. Always a caller bug.
func NewDefinitionError(format string, args ...any) *Error {
	return &Error{Code: CodeDefinition, Message: fmt.Sprintf(format, args...)}
}

// NewUnknownDriverError reports a connect attempt against a driver name not
// present in the registry. The message names the requested string verbatim.
func NewUnknownDriverError(name string) *Error {
	return &Error{
		Code:    CodeUnknownDriver,
		Message: fmt.Sprintf("unknown driver %q", name),
		Driver:  name,
	}
}

// NewSchemaError reports a live-schema problem: a keyed operation against a
// keyless table, or introspection returning a native type outside the
// driver's map.
func NewSchemaError(table, format string, args ...any) *Error {
	return &Error{Code: CodeSchema, Message: fmt.Sprintf(format, args...), Table: table}
}

// NewNotFoundError reports a row lookup that matched nothing. An empty
// selection is not an error; a missed key lookup is.
func NewNotFoundError(table string, key []any) *Error {
	msg := "record not found"
	if len(key) > 0 {
		msg = fmt.Sprintf("record not found for key %v", key)
	}
	return &Error{Code: CodeNotFound, Message: msg, Table: table}
}

// NewColumnError reports a reference to a column the table does not declare.
func NewColumnError(table, column string) *Error {
	return &Error{
		Code:    CodeColumn,
		Message: "no such column",
		Table:   table,
		Column:  column,
	}
}

// NewExecutionError wraps a native database failure. The native error is
// preserved as the cause and never reclassified.
func NewExecutionError(driverName, stmt string, cause error) *Error {
	msg := "statement failed"
	if stmt != "" {
		msg = fmt.Sprintf("statement failed: %s", stmt)
	}
	return &Error{Code: CodeExecution, Message: msg, Driver: driverName, Cause: cause}
}

func hasCode(err error, c Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == c
}

// IsDefinition reports whether err is a definition error.
func IsDefinition(err error) bool { return hasCode(err, CodeDefinition) }

// IsUnknownDriver reports whether err names an unregistered driver.
func IsUnknownDriver(err error) bool { return hasCode(err, CodeUnknownDriver) }

// IsSchema reports whether err is a live-schema error.
func IsSchema(err error) bool { return hasCode(err, CodeSchema) }

// IsNotFound reports whether err is a missed row lookup.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsColumn reports whether err references an undeclared column.
func IsColumn(err error) bool { return hasCode(err, CodeColumn) }

// IsExecution reports whether err wraps a native database failure.
func IsExecution(err error) bool { return hasCode(err, CodeExecution) }
