// Package diag defines the diagnostic model used by the instrumentation pass.
//
// Diagnostics describe degraded-but-valid outcomes: a call site without debug
// info, a source line the name heuristic could not read, a call that cannot be
// instrumented at all. Fatal conditions are ordinary Go errors and never go
// through this package.
//
// # Data model
//
//   - Severity – Info, Warning, Error.
//   - Code – compact numeric identifier with stable "NDT####" form.
//   - Location – module path, enclosing function and source line (0 = unknown).
//   - Message – short, actionable text.
//
// Producers emit through a Reporter; the driver collects them in a Bag and the
// CLI renders them.
package diag
