// Package value is the host-side model of interface values.
//
// Values are a closed set of pointer types (Bool, Int, Uint, Float, Char,
// String, List, Record, Tuple, Variant, Enum, Flags, Option, Result,
// Handle), each tagged with the interface type it was checked against.
//
// Coerce checks a parsed expression against a target type: integer ranges
// are checked against the exact width, record literals must name exactly
// the declared fields, and case names such as none, ok(x) or circle(1.0)
// are resolved against the target. Infer types literals that have no
// target.
//
// ToEngine and FromEngine convert to and from the engine's Go-native call
// representation. FromEngine trusts nothing: every scalar must have the
// exact Go type of its declared width, strings must be valid UTF-8 and
// cases must exist.
package value
