package engine

import (
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/types"
)

const (
	MaxFlatParams  = 16
	MaxFlatResults = 1

	CabiRealloc    = "cabi_realloc"
	cabiPostPrefix = "cabi_post_"
	rootModule     = "$root"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
	f32 = api.ValueTypeF32
	f64 = api.ValueTypeF64
)

// witType converts an interface type to its wit form for layout and
// flattening. Recursive types have no canonical ABI layout and are rejected.
func witType(t types.Type) (wit.Type, error) {
	c := witConverter{active: make(map[*types.Named]bool)}
	return c.convert(t)
}

type witConverter struct {
	active map[*types.Named]bool
}

func (c *witConverter) convert(t types.Type) (wit.Type, error) {
	switch x := t.(type) {
	case types.Primitive:
		return primitive(x), nil
	case *types.Named:
		if c.active[x] {
			return nil, errors.Unsupported(errors.PhaseLinking, "recursive type "+x.Name+" has no canonical ABI layout")
		}
		if x.Def == nil {
			return nil, errors.TypeResolution([]string{x.Name}, "type %s is not defined", x.Name)
		}
		c.active[x] = true
		defer delete(c.active, x)
		return c.convert(x.Def)
	case *types.List:
		elem, err := c.convert(x.Elem)
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.List{Type: elem}}, nil
	case *types.Record:
		r := &wit.Record{Fields: make([]wit.Field, len(x.Fields))}
		for i, f := range x.Fields {
			ft, err := c.convert(f.Type)
			if err != nil {
				return nil, err
			}
			r.Fields[i] = wit.Field{Name: f.Name, Type: ft}
		}
		return &wit.TypeDef{Kind: r}, nil
	case *types.Tuple:
		tup := &wit.Tuple{Types: make([]wit.Type, len(x.Elems))}
		for i, e := range x.Elems {
			et, err := c.convert(e)
			if err != nil {
				return nil, err
			}
			tup.Types[i] = et
		}
		return &wit.TypeDef{Kind: tup}, nil
	case *types.Variant:
		v := &wit.Variant{Cases: make([]wit.Case, len(x.Cases))}
		for i, cs := range x.Cases {
			v.Cases[i] = wit.Case{Name: cs.Name}
			if cs.Payload != nil {
				pt, err := c.convert(cs.Payload)
				if err != nil {
					return nil, err
				}
				v.Cases[i].Type = pt
			}
		}
		return &wit.TypeDef{Kind: v}, nil
	case *types.Enum:
		e := &wit.Enum{Cases: make([]wit.EnumCase, len(x.Cases))}
		for i, name := range x.Cases {
			e.Cases[i] = wit.EnumCase{Name: name}
		}
		return &wit.TypeDef{Kind: e}, nil
	case *types.Flags:
		if len(x.Names) > 64 {
			return nil, errors.Unsupported(errors.PhaseLinking, "flags with more than 64 members")
		}
		f := &wit.Flags{Flags: make([]wit.Flag, len(x.Names))}
		for i, name := range x.Names {
			f.Flags[i] = wit.Flag{Name: name}
		}
		return &wit.TypeDef{Kind: f}, nil
	case *types.Option:
		elem, err := c.convert(x.Elem)
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.Option{Type: elem}}, nil
	case *types.Result:
		r := &wit.Result{}
		if x.OK != nil {
			ok, err := c.convert(x.OK)
			if err != nil {
				return nil, err
			}
			r.OK = ok
		}
		if x.Err != nil {
			e, err := c.convert(x.Err)
			if err != nil {
				return nil, err
			}
			r.Err = e
		}
		return &wit.TypeDef{Kind: r}, nil
	case *types.Handle:
		if x.Borrow {
			return &wit.TypeDef{Kind: &wit.Borrow{}}, nil
		}
		return &wit.TypeDef{Kind: &wit.Own{}}, nil
	case *types.Resource:
		return nil, errors.Unsupported(errors.PhaseLinking, "resource "+x.Name+" used as a value type")
	default:
		panic("engine: unreachable interface type")
	}
}

func primitive(p types.Primitive) wit.Type {
	switch p {
	case types.Bool:
		return wit.Bool{}
	case types.S8:
		return wit.S8{}
	case types.S16:
		return wit.S16{}
	case types.S32:
		return wit.S32{}
	case types.S64:
		return wit.S64{}
	case types.U8:
		return wit.U8{}
	case types.U16:
		return wit.U16{}
	case types.U32:
		return wit.U32{}
	case types.U64:
		return wit.U64{}
	case types.F32:
		return wit.F32{}
	case types.F64:
		return wit.F64{}
	case types.Char:
		return wit.Char{}
	case types.String:
		return wit.String{}
	default:
		panic("engine: unreachable primitive")
	}
}

// signature is a function converted for the canonical ABI
type signature struct {
	fn      *types.Function
	params  []wit.Type
	results []wit.Type
	// flatParams and flatResults are the flattened core types before spilling
	flatParams  []api.ValueType
	flatResults []api.ValueType
}

func newSignature(fn *types.Function) (*signature, error) {
	s := &signature{fn: fn}
	for _, p := range fn.Params {
		t, err := witType(p.Type)
		if err != nil {
			return nil, err
		}
		s.params = append(s.params, t)
		s.flatParams = append(s.flatParams, flatten(t)...)
	}
	for _, r := range fn.Results {
		t, err := witType(r.Type)
		if err != nil {
			return nil, err
		}
		s.results = append(s.results, t)
		s.flatResults = append(s.flatResults, flatten(t)...)
	}
	return s, nil
}

func (s *signature) spillParams() bool  { return len(s.flatParams) > MaxFlatParams }
func (s *signature) spillResults() bool { return len(s.flatResults) > MaxFlatResults }

func (s *signature) paramTuple() wit.Type {
	return &wit.TypeDef{Kind: &wit.Tuple{Types: s.params}}
}

func (s *signature) resultTuple() wit.Type {
	return &wit.TypeDef{Kind: &wit.Tuple{Types: s.results}}
}

// exportCore is the core signature of a lifted export: spilled results are
// returned as a pointer the callee owns.
func (s *signature) exportCore() (params, results []api.ValueType) {
	params = s.flatParams
	if s.spillParams() {
		params = []api.ValueType{i32}
	}
	results = s.flatResults
	if s.spillResults() {
		results = []api.ValueType{i32}
	}
	return params, results
}

// importCore is the core signature of a lowered import: spilled results
// are written through a trailing return pointer the caller provides.
func (s *signature) importCore() (params, results []api.ValueType) {
	params = s.flatParams
	if s.spillParams() {
		params = []api.ValueType{i32}
	}
	results = s.flatResults
	if s.spillResults() {
		params = append(append([]api.ValueType{}, params...), i32)
		results = nil
	}
	return params, results
}

// flatten returns the core value types a value of t occupies on the stack
func flatten(t wit.Type) []api.ValueType {
	switch t := t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return []api.ValueType{i32}
	case wit.U64, wit.S64:
		return []api.ValueType{i64}
	case wit.F32:
		return []api.ValueType{f32}
	case wit.F64:
		return []api.ValueType{f64}
	case wit.String:
		return []api.ValueType{i32, i32}
	case *wit.TypeDef:
		switch kind := t.Kind.(type) {
		case *wit.List:
			return []api.ValueType{i32, i32}
		case *wit.Record:
			var out []api.ValueType
			for _, f := range kind.Fields {
				out = append(out, flatten(f.Type)...)
			}
			return out
		case *wit.Tuple:
			var out []api.ValueType
			for _, e := range kind.Types {
				out = append(out, flatten(e)...)
			}
			return out
		case *wit.Enum, *wit.Own, *wit.Borrow:
			return []api.ValueType{i32}
		case *wit.Flags:
			if len(kind.Flags) > 32 {
				return []api.ValueType{i32, i32}
			}
			return []api.ValueType{i32}
		case *wit.Variant, *wit.Option, *wit.Result:
			return flattenVariant(caseTypes(t))
		}
	}
	panic("engine: unreachable wit type")
}

// flattenVariant joins the payloads of all cases behind an i32 discriminant
func flattenVariant(cases []wit.Type) []api.ValueType {
	var payload []api.ValueType
	for _, ct := range cases {
		if ct == nil {
			continue
		}
		for i, ft := range flatten(ct) {
			if i < len(payload) {
				payload[i] = join(payload[i], ft)
			} else {
				payload = append(payload, ft)
			}
		}
	}
	return append([]api.ValueType{i32}, payload...)
}

func join(a, b api.ValueType) api.ValueType {
	if a == b {
		return a
	}
	if (a == i32 && b == f32) || (a == f32 && b == i32) {
		return i32
	}
	return i64
}

// variantCase is one case of a variant, option or result
type variantCase struct {
	typ  wit.Type
	name string
}

func cases(t *wit.TypeDef) []variantCase {
	switch kind := t.Kind.(type) {
	case *wit.Variant:
		out := make([]variantCase, len(kind.Cases))
		for i, c := range kind.Cases {
			out[i] = variantCase{name: c.Name, typ: c.Type}
		}
		return out
	case *wit.Option:
		return []variantCase{{name: "none"}, {name: "some", typ: kind.Type}}
	case *wit.Result:
		return []variantCase{{name: "ok", typ: kind.OK}, {name: "err", typ: kind.Err}}
	}
	return nil
}

func caseTypes(t *wit.TypeDef) []wit.Type {
	cs := cases(t)
	out := make([]wit.Type, len(cs))
	for i, c := range cs {
		out[i] = c.typ
	}
	return out
}

// layout is the size and alignment of a type in linear memory
type layout struct {
	size  uint32
	align uint32
}

func alignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// discriminantSize is 1 byte for up to 256 cases, 2 for up to 65536, else 4
func discriminantSize(n int) uint32 {
	switch {
	case n <= 256:
		return 1
	case n <= 65536:
		return 2
	}
	return 4
}

func layoutOf(t wit.Type) layout {
	switch t := t.(type) {
	case wit.U8, wit.S8, wit.Bool:
		return layout{1, 1}
	case wit.U16, wit.S16:
		return layout{2, 2}
	case wit.U32, wit.S32, wit.F32, wit.Char:
		return layout{4, 4}
	case wit.U64, wit.S64, wit.F64:
		return layout{8, 8}
	case wit.String:
		return layout{8, 4}
	case *wit.TypeDef:
		switch kind := t.Kind.(type) {
		case *wit.List:
			return layout{8, 4}
		case *wit.Record:
			fields := make([]wit.Type, len(kind.Fields))
			for i, f := range kind.Fields {
				fields[i] = f.Type
			}
			l, _ := structLayout(fields)
			return l
		case *wit.Tuple:
			l, _ := structLayout(kind.Types)
			return l
		case *wit.Enum:
			d := discriminantSize(len(kind.Cases))
			return layout{d, d}
		case *wit.Flags:
			switch n := len(kind.Flags); {
			case n == 0:
				return layout{0, 1}
			case n <= 8:
				return layout{1, 1}
			case n <= 16:
				return layout{2, 2}
			default:
				return layout{uint32((n+31)/32) * 4, 4}
			}
		case *wit.Own, *wit.Borrow:
			return layout{4, 4}
		case *wit.Variant, *wit.Option, *wit.Result:
			l, _ := variantLayout(caseTypes(t))
			return l
		}
	}
	panic("engine: unreachable wit type")
}

// structLayout lays fields out in order and returns their offsets
func structLayout(fields []wit.Type) (layout, []uint32) {
	offsets := make([]uint32, len(fields))
	align := uint32(1)
	offset := uint32(0)
	for i, f := range fields {
		fl := layoutOf(f)
		offset = alignTo(offset, fl.align)
		offsets[i] = offset
		offset += fl.size
		if fl.align > align {
			align = fl.align
		}
	}
	return layout{size: alignTo(offset, align), align: align}, offsets
}

// variantLayout returns the variant layout and the payload offset
func variantLayout(cases []wit.Type) (layout, uint32) {
	disc := discriminantSize(len(cases))
	align := disc
	var payload uint32
	for _, c := range cases {
		if c == nil {
			continue
		}
		cl := layoutOf(c)
		if cl.align > align {
			align = cl.align
		}
		if cl.size > payload {
			payload = cl.size
		}
	}
	off := alignTo(disc, align)
	return layout{size: alignTo(off+payload, align), align: align}, off
}
