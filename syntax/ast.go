package syntax

import "strings"

// Node is a parsed REPL line: *Command, *Assignment or an Expr.
type Node interface {
	node()
}

// Expr is an expression node.
type Expr interface {
	Node
	// Pos is the 0-based byte offset of the expression's first token
	Pos() int
	expr()
}

// Name is a possibly qualified callee or variable name:
// [component::][interface#]func
type Name struct {
	Component string
	Interface string
	Func      string
}

// Qualified reports whether the name carries a component or interface qualifier
func (n Name) Qualified() bool {
	return n.Component != "" || n.Interface != ""
}

func (n Name) String() string {
	var b strings.Builder
	if n.Component != "" {
		b.WriteString(n.Component)
		b.WriteString("::")
	}
	if n.Interface != "" {
		b.WriteString(n.Interface)
		b.WriteByte('#')
	}
	b.WriteString(n.Func)
	return b.String()
}

// ParseName splits a qualified name written as comp::iface#func.
func ParseName(s string) Name {
	var n Name
	if comp, rest, ok := strings.Cut(s, "::"); ok {
		n.Component = comp
		s = rest
	}
	if i := strings.LastIndexByte(s, '#'); i >= 0 {
		n.Interface = s[:i]
		s = s[i+1:]
	}
	n.Func = s
	return n
}

// Command is a dot-prefixed built-in with its raw arguments.
type Command struct {
	Name string   // without the leading dot
	Args []string // whitespace-split, double quotes group
	Raw  string   // argument text after the name, trimmed
}

func (*Command) node() {}

// Assignment binds the value of X to Name.
type Assignment struct {
	X     Expr
	Name  string
	NameP int
}

func (*Assignment) node() {}

// IntLit is an integer literal. Mag is the magnitude; Neg marks a leading minus.
type IntLit struct {
	Text string
	P    int
	Mag  uint64
	Neg  bool
}

// FloatLit is a floating point literal, including inf and nan.
type FloatLit struct {
	Text string
	P    int
	V    float64
}

// BoolLit is true or false.
type BoolLit struct {
	P int
	V bool
}

// StringLit is a double-quoted string with escapes decoded.
type StringLit struct {
	V string
	P int
}

// CharLit is a single-quoted Unicode scalar value.
type CharLit struct {
	P int
	V rune
}

// ListLit is [a, b, ...].
type ListLit struct {
	Elems []Expr
	P     int
}

// FieldInit is one name: value entry of a record literal.
type FieldInit struct {
	Value Expr
	Name  string
	P     int
}

// RecordLit is {name: value, ...} in source order.
type RecordLit struct {
	Fields []FieldInit
	P      int
}

// TupleLit is (a, b, ...) with zero or at least two elements.
type TupleLit struct {
	Elems []Expr
	P     int
}

// Ident references a variable, a function, or a case name.
type Ident struct {
	Name Name
	P    int
}

// Call is callee(args...).
type Call struct {
	Callee Name
	Args   []Expr
	P      int
}

// Ascribe fixes the type of X: "1 as u8".
type Ascribe struct {
	X    Expr
	Type *TypeExpr
	P    int
}

// TypeExpr is a type written in an ascription: a name with optional
// angle-bracket arguments, e.g. list<u8> or result<_, string>.
type TypeExpr struct {
	Name string
	Args []*TypeExpr
	P    int
}

func (t *TypeExpr) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	parts := make([]string, len(t.Args))
	for i, a := range t.Args {
		parts[i] = a.String()
	}
	return t.Name + "<" + strings.Join(parts, ", ") + ">"
}

func (*IntLit) node()    {}
func (*FloatLit) node()  {}
func (*BoolLit) node()   {}
func (*StringLit) node() {}
func (*CharLit) node()   {}
func (*ListLit) node()   {}
func (*RecordLit) node() {}
func (*TupleLit) node()  {}
func (*Ident) node()     {}
func (*Call) node()      {}
func (*Ascribe) node()   {}

func (*IntLit) expr()    {}
func (*FloatLit) expr()  {}
func (*BoolLit) expr()   {}
func (*StringLit) expr() {}
func (*CharLit) expr()   {}
func (*ListLit) expr()   {}
func (*RecordLit) expr() {}
func (*TupleLit) expr()  {}
func (*Ident) expr()     {}
func (*Call) expr()      {}
func (*Ascribe) expr()   {}

func (e *IntLit) Pos() int    { return e.P }
func (e *FloatLit) Pos() int  { return e.P }
func (e *BoolLit) Pos() int   { return e.P }
func (e *StringLit) Pos() int { return e.P }
func (e *CharLit) Pos() int   { return e.P }
func (e *ListLit) Pos() int   { return e.P }
func (e *RecordLit) Pos() int { return e.P }
func (e *TupleLit) Pos() int  { return e.P }
func (e *Ident) Pos() int     { return e.P }
func (e *Call) Pos() int      { return e.P }
func (e *Ascribe) Pos() int   { return e.P }

// IsLiteral reports whether e is built only from literal syntax, with no
// identifiers or calls anywhere inside.
func IsLiteral(e Expr) bool {
	switch x := e.(type) {
	case *IntLit, *FloatLit, *BoolLit, *StringLit, *CharLit:
		return true
	case *ListLit:
		return allLiteral(x.Elems)
	case *TupleLit:
		return allLiteral(x.Elems)
	case *RecordLit:
		for _, f := range x.Fields {
			if !IsLiteral(f.Value) {
				return false
			}
		}
		return true
	case *Ascribe:
		return IsLiteral(x.X)
	}
	return false
}

func allLiteral(es []Expr) bool {
	for _, e := range es {
		if !IsLiteral(e) {
			return false
		}
	}
	return true
}
