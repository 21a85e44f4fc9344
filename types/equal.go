package types

// Equal reports whether a and b describe the same shape.
// Named indirections are looked through; the names themselves do not matter,
// but field, case and flag names do. Recursive types compare coinductively.
func Equal(a, b Type) bool {
	c := comparer{assumed: make(map[[2]Type]bool)}
	return c.equal(a, b)
}

type comparer struct {
	assumed map[[2]Type]bool
}

func (c *comparer) equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a == b {
		return true
	}

	na, aNamed := a.(*Named)
	nb, bNamed := b.(*Named)
	if aNamed || bNamed {
		key := [2]Type{a, b}
		if c.assumed[key] {
			return true
		}
		c.assumed[key] = true
		if aNamed {
			if na.Def == nil {
				return false
			}
			a = na.Def
		}
		if bNamed {
			if nb.Def == nil {
				return false
			}
			b = nb.Def
		}
		return c.equal(a, b)
	}

	switch x := a.(type) {
	case Primitive:
		y, ok := b.(Primitive)
		return ok && x == y
	case *List:
		y, ok := b.(*List)
		return ok && c.equal(x.Elem, y.Elem)
	case *Record:
		y, ok := b.(*Record)
		if !ok || len(x.Fields) != len(y.Fields) {
			return false
		}
		for i := range x.Fields {
			if x.Fields[i].Name != y.Fields[i].Name || !c.equal(x.Fields[i].Type, y.Fields[i].Type) {
				return false
			}
		}
		return true
	case *Tuple:
		y, ok := b.(*Tuple)
		if !ok || len(x.Elems) != len(y.Elems) {
			return false
		}
		for i := range x.Elems {
			if !c.equal(x.Elems[i], y.Elems[i]) {
				return false
			}
		}
		return true
	case *Variant:
		y, ok := b.(*Variant)
		if !ok || len(x.Cases) != len(y.Cases) {
			return false
		}
		for i := range x.Cases {
			if x.Cases[i].Name != y.Cases[i].Name || !c.equal(x.Cases[i].Payload, y.Cases[i].Payload) {
				return false
			}
		}
		return true
	case *Enum:
		y, ok := b.(*Enum)
		return ok && equalStrings(x.Cases, y.Cases)
	case *Flags:
		y, ok := b.(*Flags)
		return ok && equalStrings(x.Names, y.Names)
	case *Option:
		y, ok := b.(*Option)
		return ok && c.equal(x.Elem, y.Elem)
	case *Result:
		y, ok := b.(*Result)
		return ok && c.equal(x.OK, y.OK) && c.equal(x.Err, y.Err)
	case *Resource:
		y, ok := b.(*Resource)
		return ok && x.Name == y.Name
	case *Handle:
		y, ok := b.(*Handle)
		return ok && x.Borrow == y.Borrow && resourceName(x.Resource) == resourceName(y.Resource)
	default:
		panic("types: unreachable type kind in Equal")
	}
}

// resourceName identifies a resource by its definition name. Resources are
// compared by name only; two components defining "file" agree on the handle type.
func resourceName(n *Named) string {
	if n == nil {
		return ""
	}
	if r, ok := Underlying(n).(*Resource); ok {
		return r.Name
	}
	return n.Name
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
