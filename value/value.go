package value

import "github.com/wippyai/wasm-repl/types"

// Value is a host-side interface value. Every Value carries the declared
// type it was checked against; the set of implementations is closed.
type Value interface {
	Type() types.Type
	isValue()
}

// Bool is a bool value
type Bool struct {
	T types.Type
	V bool
}

// Int holds s8, s16, s32 and s64 values
type Int struct {
	T types.Type
	V int64
}

// Uint holds u8, u16, u32 and u64 values
type Uint struct {
	T types.Type
	V uint64
}

// Float holds f32 and f64 values. f32 values are stored already rounded
// to single precision.
type Float struct {
	T types.Type
	V float64
}

// Char is a Unicode scalar value
type Char struct {
	T types.Type
	V rune
}

// String is a UTF-8 string
type String struct {
	T types.Type
	V string
}

// List is list<T>
type List struct {
	T     types.Type
	Elems []Value
}

// FieldValue is one record field
type FieldValue struct {
	Value Value
	Name  string
}

// Record holds fields in declaration order
type Record struct {
	T      types.Type
	Fields []FieldValue
}

// Field returns the value of the named field or nil
func (r *Record) Field(name string) Value {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return nil
}

// Tuple is tuple<...>
type Tuple struct {
	T     types.Type
	Elems []Value
}

// Variant is one case of a variant; Payload is nil for cases without data
type Variant struct {
	T       types.Type
	Payload Value
	Case    string
	Index   int
}

// Enum is one enum case
type Enum struct {
	T     types.Type
	Case  string
	Index int
}

// Flags lists the set flags in declaration order
type Flags struct {
	T   types.Type
	Set []string
}

// Option is some(V), or none when V is nil
type Option struct {
	T types.Type
	V Value
}

// Result is ok(V) or err(V); V is nil when that side has no type
type Result struct {
	T     types.Type
	V     Value
	IsErr bool
}

// Handle is a resource handle. It refers to its owning instance by ID only;
// the registry decides whether that instance is still live.
type Handle struct {
	T        types.Type
	Instance string
	Rep      uint32
}

func (v *Bool) Type() types.Type    { return v.T }
func (v *Int) Type() types.Type     { return v.T }
func (v *Uint) Type() types.Type    { return v.T }
func (v *Float) Type() types.Type   { return v.T }
func (v *Char) Type() types.Type    { return v.T }
func (v *String) Type() types.Type  { return v.T }
func (v *List) Type() types.Type    { return v.T }
func (v *Record) Type() types.Type  { return v.T }
func (v *Tuple) Type() types.Type   { return v.T }
func (v *Variant) Type() types.Type { return v.T }
func (v *Enum) Type() types.Type    { return v.T }
func (v *Flags) Type() types.Type   { return v.T }
func (v *Option) Type() types.Type  { return v.T }
func (v *Result) Type() types.Type  { return v.T }
func (v *Handle) Type() types.Type  { return v.T }

func (*Bool) isValue()    {}
func (*Int) isValue()     {}
func (*Uint) isValue()    {}
func (*Float) isValue()   {}
func (*Char) isValue()    {}
func (*String) isValue()  {}
func (*List) isValue()    {}
func (*Record) isValue()  {}
func (*Tuple) isValue()   {}
func (*Variant) isValue() {}
func (*Enum) isValue()    {}
func (*Flags) isValue()   {}
func (*Option) isValue()  {}
func (*Result) isValue()  {}
func (*Handle) isValue()  {}

// Str returns a string value
func Str(s string) *String { return &String{T: types.String, V: s} }

// S32 returns an s32 value
func S32(v int32) *Int { return &Int{T: types.S32, V: int64(v)} }

// S64 returns an s64 value
func S64(v int64) *Int { return &Int{T: types.S64, V: v} }

// U32 returns a u32 value
func U32(v uint32) *Uint { return &Uint{T: types.U32, V: uint64(v)} }

// U64 returns a u64 value
func U64(v uint64) *Uint { return &Uint{T: types.U64, V: v} }

// F64 returns an f64 value
func F64(v float64) *Float { return &Float{T: types.F64, V: v} }

// True and False are the bool values
var (
	True  = &Bool{T: types.Bool, V: true}
	False = &Bool{T: types.Bool, V: false}
)
