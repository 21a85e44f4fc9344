package types

import "fmt"

// Type is an interface type: the shape of a value crossing a component boundary.
// The set of implementations is closed; switches over Type list every case.
type Type interface {
	isType()
}

// Primitive is a scalar interface type
type Primitive byte

const (
	Bool Primitive = iota + 1
	S8
	S16
	S32
	S64
	U8
	U16
	U32
	U64
	F32
	F64
	Char
	String
)

var primitiveNames = [...]string{
	Bool:   "bool",
	S8:     "s8",
	S16:    "s16",
	S32:    "s32",
	S64:    "s64",
	U8:     "u8",
	U16:    "u16",
	U32:    "u32",
	U64:    "u64",
	F32:    "f32",
	F64:    "f64",
	Char:   "char",
	String: "string",
}

func (p Primitive) String() string {
	if int(p) < len(primitiveNames) && primitiveNames[p] != "" {
		return primitiveNames[p]
	}
	return fmt.Sprintf("primitive(%d)", byte(p))
}

// IsSigned reports whether p is a signed integer
func (p Primitive) IsSigned() bool {
	return p >= S8 && p <= S64
}

// IsUnsigned reports whether p is an unsigned integer
func (p Primitive) IsUnsigned() bool {
	return p >= U8 && p <= U64
}

// IsInteger reports whether p is a signed or unsigned integer
func (p Primitive) IsInteger() bool {
	return p.IsSigned() || p.IsUnsigned()
}

// IsFloat reports whether p is f32 or f64
func (p Primitive) IsFloat() bool {
	return p == F32 || p == F64
}

// Bits returns the bit width of integer and float primitives, 0 otherwise
func (p Primitive) Bits() int {
	switch p {
	case S8, U8:
		return 8
	case S16, U16:
		return 16
	case S32, U32, F32:
		return 32
	case S64, U64, F64:
		return 64
	}
	return 0
}

// PrimitiveByName maps a WIT keyword to its primitive
func PrimitiveByName(name string) (Primitive, bool) {
	for p, n := range primitiveNames {
		if n != "" && n == name {
			return Primitive(p), true
		}
	}
	return 0, false
}

func (Primitive) isType() {}

// List is list<Elem>
type List struct {
	Elem Type
}

func (*List) isType() {}

// Field is a named record member
type Field struct {
	Type Type
	Name string
}

// Record is a product of named fields in declaration order
type Record struct {
	Fields []Field
}

func (*Record) isType() {}

// FieldIndex returns the position of the named field or -1
func (r *Record) FieldIndex(name string) int {
	for i, f := range r.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Tuple is tuple<Elems...>
type Tuple struct {
	Elems []Type
}

func (*Tuple) isType() {}

// Case is a variant case; Payload is nil for cases without data
type Case struct {
	Payload Type
	Name    string
}

// Variant is a tagged union of named cases
type Variant struct {
	Cases []Case
}

func (*Variant) isType() {}

// CaseIndex returns the position of the named case or -1
func (v *Variant) CaseIndex(name string) int {
	for i, c := range v.Cases {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Enum is a variant whose cases carry no payload
type Enum struct {
	Cases []string
}

func (*Enum) isType() {}

// CaseIndex returns the position of the named case or -1
func (e *Enum) CaseIndex(name string) int {
	for i, c := range e.Cases {
		if c == name {
			return i
		}
	}
	return -1
}

// Flags is a set of named booleans
type Flags struct {
	Names []string
}

func (*Flags) isType() {}

// Index returns the bit position of the named flag or -1
func (f *Flags) Index(name string) int {
	for i, n := range f.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Option is option<Elem>
type Option struct {
	Elem Type
}

func (*Option) isType() {}

// Result is result<OK, Err>; either side may be nil
type Result struct {
	OK  Type
	Err Type
}

func (*Result) isType() {}

// Resource is the definition of an opaque resource type
type Resource struct {
	Name string
	// Methods names the constructor, methods and static functions declared
	// in the resource body. They are listed but cannot be called.
	Methods []string
}

func (*Resource) isType() {}

// Handle is own<R> or borrow<R>. Resource names the *Named whose
// definition is a *Resource.
type Handle struct {
	Resource *Named
	Borrow   bool
}

func (*Handle) isType() {}

// Named is the explicit indirection through which a definition is referenced by name.
// Recursive types close only through a Named; Def is nil until the defining
// store has resolved it.
type Named struct {
	Def Type
	// Name is the identifier in its defining scope, e.g. "point"
	Name string
	// Owner is the interface ID that defines the type, empty for world-level types
	Owner string
}

func (*Named) isType() {}

// QualifiedName returns owner.name or just name for world-level types
func (n *Named) QualifiedName() string {
	if n.Owner == "" {
		return n.Name
	}
	return n.Owner + "." + n.Name
}

// maxAliasDepth bounds alias chains so a malformed graph cannot hang callers
const maxAliasDepth = 64

// Underlying follows Named indirections to the first structural type.
// It returns nil for unresolved names or alias chains that never terminate.
func Underlying(t Type) Type {
	for i := 0; i < maxAliasDepth; i++ {
		n, ok := t.(*Named)
		if !ok {
			return t
		}
		if n.Def == nil {
			return nil
		}
		t = n.Def
	}
	return nil
}

// Own returns an owned handle to the resource named r
func Own(r *Named) *Handle { return &Handle{Resource: r} }

// Borrowed returns a borrowed handle to the resource named r
func Borrowed(r *Named) *Handle { return &Handle{Resource: r, Borrow: true} }
