package types

import "strings"

// QualifiedName identifies a function within a component's interface.
// Interface is empty for functions imported or exported at the world root.
type QualifiedName struct {
	Interface string
	Func      string
}

// ParseQualifiedName splits "iface#func" at the last '#'.
// A name without '#' is a root function.
func ParseQualifiedName(s string) QualifiedName {
	i := strings.LastIndexByte(s, '#')
	if i < 0 {
		return QualifiedName{Func: s}
	}
	return QualifiedName{Interface: s[:i], Func: s[i+1:]}
}

// String returns the canonical-ABI export name: "iface#func" or "func"
func (q QualifiedName) String() string {
	if q.Interface == "" {
		return q.Func
	}
	return q.Interface + "#" + q.Func
}

// InterfaceShortName strips the package and version from an interface ID:
// "wasi:cli/run@0.2.0" becomes "run".
func InterfaceShortName(id string) string {
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		id = id[i+1:]
	}
	if i := strings.IndexByte(id, '@'); i >= 0 {
		id = id[:i]
	}
	return id
}

// MatchesInterface reports whether the interface ID matches a user-written
// qualifier, which may be the full ID or its short name.
func MatchesInterface(id, qualifier string) bool {
	return id == qualifier || (qualifier != "" && InterfaceShortName(id) == qualifier)
}

// Param is a named parameter or result. Result names may be empty.
type Param struct {
	Type Type
	Name string
}

// Function is a function signature
type Function struct {
	Name    QualifiedName
	Params  []Param
	Results []Param
}

// ParamTypes returns the parameter types in order
func (f *Function) ParamTypes() []Type {
	out := make([]Type, len(f.Params))
	for i, p := range f.Params {
		out[i] = p.Type
	}
	return out
}

// ResultTypes returns the result types in order
func (f *Function) ResultTypes() []Type {
	out := make([]Type, len(f.Results))
	for i, p := range f.Results {
		out[i] = p.Type
	}
	return out
}

// Signature renders "func(name: string) -> string"
func (f *Function) Signature() string {
	var b strings.Builder
	b.WriteString("func(")
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteString(": ")
		writeType(&b, p.Type)
	}
	b.WriteByte(')')
	switch {
	case len(f.Results) == 0:
	case len(f.Results) == 1 && f.Results[0].Name == "":
		b.WriteString(" -> ")
		writeType(&b, f.Results[0].Type)
	default:
		b.WriteString(" -> (")
		for i, r := range f.Results {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(r.Name)
			b.WriteString(": ")
			writeType(&b, r.Type)
		}
		b.WriteByte(')')
	}
	return b.String()
}

// String renders "iface#name: func(...) -> ..."
func (f *Function) String() string {
	return f.Name.String() + ": " + f.Signature()
}

// SignatureEqual reports whether two functions have the same shape.
// Parameter and result names are ignored; types compare structurally.
func SignatureEqual(a, b *Function) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if !Equal(a.Params[i].Type, b.Params[i].Type) {
			return false
		}
	}
	for i := range a.Results {
		if !Equal(a.Results[i].Type, b.Results[i].Type) {
			return false
		}
	}
	return true
}
