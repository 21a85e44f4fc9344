package types

import "strings"

// Render renders t the way it is written at a use site: named types by
// name, anonymous structural types inline.
func Render(t Type) string {
	var b strings.Builder
	writeType(&b, t)
	return b.String()
}

func writeType(b *strings.Builder, t Type) {
	switch x := t.(type) {
	case nil:
		b.WriteByte('_')
	case Primitive:
		b.WriteString(x.String())
	case *Named:
		b.WriteString(x.Name)
	case *List:
		b.WriteString("list<")
		writeType(b, x.Elem)
		b.WriteByte('>')
	case *Record:
		b.WriteString("record ")
		writeBody(b, x)
	case *Tuple:
		b.WriteString("tuple<")
		for i, e := range x.Elems {
			if i > 0 {
				b.WriteString(", ")
			}
			writeType(b, e)
		}
		b.WriteByte('>')
	case *Variant:
		b.WriteString("variant ")
		writeBody(b, x)
	case *Enum:
		b.WriteString("enum ")
		writeBody(b, x)
	case *Flags:
		b.WriteString("flags ")
		writeBody(b, x)
	case *Option:
		b.WriteString("option<")
		writeType(b, x.Elem)
		b.WriteByte('>')
	case *Result:
		b.WriteString("result")
		switch {
		case x.OK == nil && x.Err == nil:
		case x.Err == nil:
			b.WriteByte('<')
			writeType(b, x.OK)
			b.WriteByte('>')
		default:
			b.WriteByte('<')
			writeType(b, x.OK)
			b.WriteString(", ")
			writeType(b, x.Err)
			b.WriteByte('>')
		}
	case *Resource:
		b.WriteString("resource ")
		b.WriteString(x.Name)
	case *Handle:
		if x.Borrow {
			b.WriteString("borrow<")
		} else {
			b.WriteString("own<")
		}
		if x.Resource != nil {
			b.WriteString(x.Resource.Name)
		}
		b.WriteByte('>')
	default:
		panic("types: unreachable type kind in String")
	}
}

// writeBody renders the braced member list of records, variants, enums and flags
func writeBody(b *strings.Builder, t Type) {
	b.WriteString("{ ")
	switch x := t.(type) {
	case *Record:
		for i, f := range x.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(": ")
			writeType(b, f.Type)
		}
	case *Variant:
		for i, c := range x.Cases {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c.Name)
			if c.Payload != nil {
				b.WriteByte('(')
				writeType(b, c.Payload)
				b.WriteByte(')')
			}
		}
	case *Enum:
		b.WriteString(strings.Join(x.Cases, ", "))
	case *Flags:
		b.WriteString(strings.Join(x.Names, ", "))
	}
	b.WriteString(" }")
}

// Describe renders the definition behind a named type on one line,
// e.g. "record point { x: s32, y: s32 }" or "type id = u64".
func Describe(n *Named) string {
	var b strings.Builder
	switch x := n.Def.(type) {
	case *Record:
		b.WriteString("record ")
		b.WriteString(n.Name)
		b.WriteByte(' ')
		writeBody(&b, x)
	case *Variant:
		b.WriteString("variant ")
		b.WriteString(n.Name)
		b.WriteByte(' ')
		writeBody(&b, x)
	case *Enum:
		b.WriteString("enum ")
		b.WriteString(n.Name)
		b.WriteByte(' ')
		writeBody(&b, x)
	case *Flags:
		b.WriteString("flags ")
		b.WriteString(n.Name)
		b.WriteByte(' ')
		writeBody(&b, x)
	case *Resource:
		b.WriteString("resource ")
		b.WriteString(n.Name)
		if len(x.Methods) > 0 {
			b.WriteString(" { ")
			b.WriteString(strings.Join(x.Methods, ", "))
			b.WriteString(" }")
		}
	default:
		b.WriteString("type ")
		b.WriteString(n.Name)
		b.WriteString(" = ")
		writeType(&b, n.Def)
	}
	return b.String()
}
