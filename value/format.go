package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/wippyai/wasm-repl/types"
)

// Format renders v in the literal syntax the REPL accepts, so most printed
// values can be pasted back as input.
func Format(v Value) string {
	var b strings.Builder
	writeValue(&b, v)
	return b.String()
}

// FormatTyped renders "value: type"
func FormatTyped(v Value) string {
	return Format(v) + ": " + types.Render(v.Type())
}

func writeValue(b *strings.Builder, v Value) {
	switch x := v.(type) {
	case nil:
		b.WriteString("()")
	case *Bool:
		b.WriteString(strconv.FormatBool(x.V))
	case *Int:
		b.WriteString(strconv.FormatInt(x.V, 10))
	case *Uint:
		b.WriteString(strconv.FormatUint(x.V, 10))
	case *Float:
		bits := 64
		if types.Underlying(x.T) == types.F32 {
			bits = 32
		}
		b.WriteString(formatFloat(x.V, bits))
	case *Char:
		b.WriteString(quote(string(x.V), '\''))
	case *String:
		b.WriteString(quote(x.V, '"'))
	case *List:
		writeElems(b, "[", "]", x.Elems)
	case *Tuple:
		if len(x.Elems) == 1 {
			b.WriteByte('(')
			writeValue(b, x.Elems[0])
			b.WriteString(",)")
			return
		}
		writeElems(b, "(", ")", x.Elems)
	case *Record:
		b.WriteByte('{')
		for i, f := range x.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(": ")
			writeValue(b, f.Value)
		}
		b.WriteByte('}')
	case *Variant:
		writeCase(b, x.Case, x.Payload)
	case *Enum:
		b.WriteString(x.Case)
	case *Flags:
		b.WriteByte('[')
		b.WriteString(strings.Join(x.Set, ", "))
		b.WriteByte(']')
	case *Option:
		if x.V == nil {
			b.WriteString("none")
			return
		}
		writeCase(b, "some", x.V)
	case *Result:
		name := "ok"
		if x.IsErr {
			name = "err"
		}
		writeCase(b, name, x.V)
	case *Handle:
		fmt.Fprintf(b, "%s(rep %d)", types.Render(x.T), x.Rep)
	default:
		panic(fmt.Sprintf("value: unreachable value kind %T", v))
	}
}

func writeElems(b *strings.Builder, open, closing string, elems []Value) {
	b.WriteString(open)
	for i, e := range elems {
		if i > 0 {
			b.WriteString(", ")
		}
		writeValue(b, e)
	}
	b.WriteString(closing)
}

func writeCase(b *strings.Builder, name string, payload Value) {
	b.WriteString(name)
	if payload != nil {
		b.WriteByte('(')
		writeValue(b, payload)
		b.WriteByte(')')
	}
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// quote uses the escapes the REPL lexer understands
func quote(s string, delim byte) string {
	var b strings.Builder
	b.WriteByte(delim)
	for _, r := range s {
		switch r {
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		case 0:
			b.WriteString(`\0`)
		case '\\':
			b.WriteString(`\\`)
		case rune(delim):
			b.WriteByte('\\')
			b.WriteByte(delim)
		default:
			if unicode.IsPrint(r) {
				b.WriteRune(r)
			} else {
				fmt.Fprintf(&b, `\u{%x}`, r)
			}
		}
	}
	b.WriteByte(delim)
	return b.String()
}
