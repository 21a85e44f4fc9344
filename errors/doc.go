// Package errors provides structured error types for the wasm-repl packages.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// Every failure a REPL line can produce maps to one Kind: syntax, unbound_variable,
// ambiguous_name, arity, type_mismatch, type_resolution, trap, marshal,
// signature_mismatch, instantiation, composition, merge and stale_handle.
// The Error type includes rich context: field path, Go/WIT type names, input column
// and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEval, errors.KindTypeMismatch).
//		Path("args", "0", "age").
//		WitType("u32").
//		Detail("string literal cannot be used as u32").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Arity("greet", 1, 2)
//	err := errors.Syntax(4, ")", "unexpected token")
//
// HasKind walks a cause chain looking for a Kind, which is how callers branch
// on error categories:
//
//	if errors.HasKind(err, errors.KindTrap) { ... }
//
// Partial import resolution is reported with UnresolvedImportsError, which
// lists the open imports grouped by interface.
package errors
