// Package syntax parses single REPL input lines.
//
// A line is one of three things:
//
//	.name args...        built-in command (also "?" for .help)
//	name = expression    assignment
//	expression           evaluated and echoed
//
// Expressions are literals (integers, floats, booleans, "strings", 'c'
// chars, [lists], {records}, (tuples)), identifiers, calls such as
// greet("x") or impl::local:demo/greeter#hello(1), and type ascriptions
// like 1 as u8. Structural literals are not checked against any type here;
// that happens when the value is coerced to a parameter type.
//
// Errors are *errors.Error values of kind syntax with the 1-based column of
// the offending token.
package syntax
