// Package types models component interface types and function signatures.
//
// Type is a closed set: Primitive, *List, *Record, *Tuple, *Variant, *Enum,
// *Flags, *Option, *Result, *Resource, *Handle and *Named. Every definition
// introduced by name in an interface section is reached through a *Named,
// which is also the only place a type may refer back to itself:
//
//	node := &types.Named{Name: "node"}
//	node.Def = &types.Record{Fields: []types.Field{
//		{Name: "value", Type: types.S32},
//		{Name: "next", Type: &types.Option{Elem: node}},
//	}}
//
// Equal compares shapes structurally, looking through names. SignatureEqual
// applies the same rule to functions and ignores parameter names, which is
// the compatibility test used when matching imports to providers.
package types
