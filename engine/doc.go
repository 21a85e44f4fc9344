// Package engine runs components on wazero.
//
// A component binary here is a core module that carries its interface as WIT
// text in the "component-wit" custom section. Exports are core functions
// named by their qualified name ("iface#func" or "func"); imports are core
// imports whose module is the interface ID, or "$root" for world-level
// functions.
//
// # Canonical ABI
//
// Values cross the boundary following the canonical ABI:
//
//	WIT Type        Core Representation    Flat Count
//	─────────────────────────────────────────────────
//	bool, u8-u32    i32                    1
//	u64, s64        i64                    1
//	f32, f64        f32, f64               1
//	string, list    (ptr, len) as i32×2    2
//	record, tuple   flattened fields       sum of fields
//	variant         (disc, joined payload) 1 + max(cases)
//	enum, handle    i32                    1
//	flags           i32 per 32 members     1 or 2
//
// When the flat count exceeds MaxFlatParams (16) the arguments are stored as
// a tuple in guest memory allocated through cabi_realloc. Results above
// MaxFlatResults (1) are returned as a pointer for exports and written
// through a trailing return pointer for imports. Strings are UTF-8 and are
// validated when lifted.
//
// # Usage
//
//	e, err := engine.NewWazero(ctx, &engine.Config{CallTimeout: 5 * time.Second})
//	inst, err := e.Instantiate(ctx, binary, engine.ImportTable{
//	    "double": func(ctx context.Context, args []any) ([]any, error) {
//	        return []any{args[0].(int32) * 2}, nil
//	    },
//	})
//	out, err := inst.Invoke(ctx, "quad", []any{int32(3)})
//
// Imports missing from the table are bound to functions that trap, so a
// partially resolved component can still run exports that never reach them.
//
// # Composites
//
// A binary carrying "component-compose:target" and "component-compose:adapter"
// sections is instantiated as two instances: the adapter first, then the
// target with its imports routed to the adapter's exports where they match.
package engine
