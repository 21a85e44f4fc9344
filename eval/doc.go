// Package eval evaluates parsed REPL lines against a variable Scope.
//
// A call goes through resolve, arity, coerce, invoke and decode. Arguments
// are coerced against the parameter types of the export, so literals take
// their type from the signature and variables must already match it.
// Several results come back as a tuple; none as no value.
//
// An assignment binds only after its right-hand side evaluated without
// error, so a failed line leaves the Scope exactly as it was.
//
// Handles are tagged with the instance that produced them. Passing one
// after that instance was replaced fails with a stale handle error.
package eval
