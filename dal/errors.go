package dal

import "github.com/satishbabariya/dal-go/driver"

// Error is the module's error type; every failure the layer itself
// detects is one, carrying a code and whatever table or column context
// exists. The predicates below classify without unwrapping by hand.
type Error = driver.Error

// IsDefinition reports a misuse of the layer itself: invalid names,
// duplicate or missing definitions, unbalanced transactions.
func IsDefinition(err error) bool { return driver.IsDefinition(err) }

// IsUnknownDriver reports an Open against a driver name nobody
// registered.
func IsUnknownDriver(err error) bool { return driver.IsUnknownDriver(err) }

// IsSchema reports a disagreement with the live schema: keyless writes,
// key arity, unmappable native types.
func IsSchema(err error) bool { return driver.IsSchema(err) }

// IsNotFound reports a missed row lookup.
func IsNotFound(err error) bool { return driver.IsNotFound(err) }

// IsColumn reports a reference to a column the definition does not have.
func IsColumn(err error) bool { return driver.IsColumn(err) }

// IsExecution reports a native database failure, with the driver's own
// error as the cause.
func IsExecution(err error) bool { return driver.IsExecution(err) }
