// Package descriptor parses a component's interface section and resolves it
// into a Store of named types and function signatures.
//
// The interface section is WIT text. The supported subset covers packages
// (top-level or nested), interfaces, worlds with function, interface and
// inline-interface imports and exports, use statements with renames, and
// record, variant, enum, flags, alias and resource type definitions.
// Resource methods and include are not modeled.
//
// Every name is resolved before Parse returns. Undefined names, duplicate
// definitions and alias cycles fail with a type_resolution error; records
// and variants may still refer to themselves through a named type.
package descriptor
