package value

import (
	"fmt"
	"math"

	"github.com/wippyai/wasm-repl/types"
)

// Equal reports whether two values have structurally equal types and the
// same contents. NaN equals NaN so round trips compare cleanly.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if !types.Equal(a.Type(), b.Type()) {
		return false
	}
	switch x := a.(type) {
	case *Bool:
		y, ok := b.(*Bool)
		return ok && x.V == y.V
	case *Int:
		y, ok := b.(*Int)
		return ok && x.V == y.V
	case *Uint:
		y, ok := b.(*Uint)
		return ok && x.V == y.V
	case *Float:
		y, ok := b.(*Float)
		return ok && (x.V == y.V || (math.IsNaN(x.V) && math.IsNaN(y.V)))
	case *Char:
		y, ok := b.(*Char)
		return ok && x.V == y.V
	case *String:
		y, ok := b.(*String)
		return ok && x.V == y.V
	case *List:
		y, ok := b.(*List)
		return ok && equalElems(x.Elems, y.Elems)
	case *Tuple:
		y, ok := b.(*Tuple)
		return ok && equalElems(x.Elems, y.Elems)
	case *Record:
		y, ok := b.(*Record)
		if !ok || len(x.Fields) != len(y.Fields) {
			return false
		}
		for i := range x.Fields {
			if x.Fields[i].Name != y.Fields[i].Name || !Equal(x.Fields[i].Value, y.Fields[i].Value) {
				return false
			}
		}
		return true
	case *Variant:
		y, ok := b.(*Variant)
		return ok && x.Case == y.Case && Equal(x.Payload, y.Payload)
	case *Enum:
		y, ok := b.(*Enum)
		return ok && x.Case == y.Case
	case *Flags:
		y, ok := b.(*Flags)
		if !ok || len(x.Set) != len(y.Set) {
			return false
		}
		for i := range x.Set {
			if x.Set[i] != y.Set[i] {
				return false
			}
		}
		return true
	case *Option:
		y, ok := b.(*Option)
		return ok && Equal(x.V, y.V)
	case *Result:
		y, ok := b.(*Result)
		return ok && x.IsErr == y.IsErr && Equal(x.V, y.V)
	case *Handle:
		y, ok := b.(*Handle)
		return ok && x.Instance == y.Instance && x.Rep == y.Rep
	default:
		panic(fmt.Sprintf("value: unreachable value kind %T", a))
	}
}

func equalElems(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
