package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-repl/errors"
)

const (
	maxStringSize = 1 << 30
	maxListLength = 1 << 27
)

// guest gives the canonical ABI access to one module's memory and allocator
type guest struct {
	ctx     context.Context
	mem     api.Memory
	realloc api.Function
}

func newGuest(ctx context.Context, mod api.Module) *guest {
	return &guest{ctx: ctx, mem: mod.Memory(), realloc: mod.ExportedFunction(CabiRealloc)}
}

func (g *guest) alloc(size, align uint32, path []string) (uint32, error) {
	if size == 0 {
		return align, nil
	}
	if g.realloc == nil {
		return 0, errors.New(errors.PhaseEncode, errors.KindAllocation).
			Path(path...).
			Detail("guest does not export %s", CabiRealloc).
			Build()
	}
	out, err := g.realloc.Call(g.ctx, 0, 0, uint64(align), uint64(size))
	if err != nil {
		return 0, errors.New(errors.PhaseEncode, errors.KindAllocation).
			Path(path...).
			Detail("%s(%d, %d) failed", CabiRealloc, size, align).
			Cause(err).
			Build()
	}
	ptr := uint32(out[0])
	if ptr == 0 || ptr%align != 0 {
		return 0, errors.AllocationFailed(errors.PhaseEncode, size, align)
	}
	return ptr, nil
}

func (g *guest) read(ptr, n uint32, path []string) ([]byte, error) {
	if g.mem == nil {
		return nil, errors.Marshal(errors.PhaseDecode, path, "guest has no memory")
	}
	data, ok := g.mem.Read(ptr, n)
	if !ok {
		return nil, errors.Marshal(errors.PhaseDecode, path, "read of %d bytes at 0x%x is out of bounds", n, ptr)
	}
	return data, nil
}

func (g *guest) write(ptr uint32, data []byte, path []string) error {
	if g.mem == nil {
		return errors.Marshal(errors.PhaseEncode, path, "guest has no memory")
	}
	if !g.mem.Write(ptr, data) {
		return errors.Marshal(errors.PhaseEncode, path, "write of %d bytes at 0x%x is out of bounds", len(data), ptr)
	}
	return nil
}

func with(path []string, seg string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, seg)
}

func mismatch(phase errors.Phase, path []string, v any, t wit.Type) error {
	return errors.New(phase, errors.KindMarshal).
		Path(path...).
		GoType(fmt.Sprintf("%T", v)).
		WitType(witName(t)).
		Detail("value does not match the canonical ABI type").
		Build()
}

func witName(t wit.Type) string {
	switch t := t.(type) {
	case nil:
		return "_"
	case *wit.TypeDef:
		switch t.Kind.(type) {
		case *wit.List:
			return "list"
		case *wit.Record:
			return "record"
		case *wit.Tuple:
			return "tuple"
		case *wit.Variant:
			return "variant"
		case *wit.Enum:
			return "enum"
		case *wit.Flags:
			return "flags"
		case *wit.Option:
			return "option"
		case *wit.Result:
			return "result"
		case *wit.Own:
			return "own"
		case *wit.Borrow:
			return "borrow"
		}
		return "typedef"
	default:
		return fmt.Sprintf("%T", t)
	}
}

// scalarBits encodes a scalar as its raw core value. i32-class values are
// zero-extended 32-bit patterns, floats are IEEE bit patterns.
func scalarBits(t wit.Type, v any) (uint64, bool) {
	switch t.(type) {
	case wit.Bool:
		b, ok := v.(bool)
		if !ok {
			return 0, false
		}
		if b {
			return 1, true
		}
		return 0, true
	case wit.U8:
		x, ok := v.(uint8)
		return uint64(x), ok
	case wit.S8:
		x, ok := v.(int8)
		return uint64(uint32(int32(x))), ok
	case wit.U16:
		x, ok := v.(uint16)
		return uint64(x), ok
	case wit.S16:
		x, ok := v.(int16)
		return uint64(uint32(int32(x))), ok
	case wit.U32:
		x, ok := v.(uint32)
		return uint64(x), ok
	case wit.S32:
		x, ok := v.(int32)
		return uint64(uint32(x)), ok
	case wit.U64:
		x, ok := v.(uint64)
		return x, ok
	case wit.S64:
		x, ok := v.(int64)
		return uint64(x), ok
	case wit.F32:
		x, ok := v.(float32)
		if x != x {
			return 0x7fc00000, ok
		}
		return uint64(math.Float32bits(x)), ok
	case wit.F64:
		x, ok := v.(float64)
		if x != x {
			return 0x7ff8000000000000, ok
		}
		return math.Float64bits(x), ok
	case wit.Char:
		x, ok := v.(rune)
		if !ok || !validChar(x) {
			return 0, false
		}
		return uint64(uint32(x)), true
	}
	return 0, false
}

// scalarValue decodes a raw core value. Narrow integers wrap like the
// canonical ABI lift does.
func scalarValue(t wit.Type, bits uint64, path []string) (any, error) {
	switch t.(type) {
	case wit.Bool:
		return uint32(bits) != 0, nil
	case wit.U8:
		return uint8(bits), nil
	case wit.S8:
		return int8(bits), nil
	case wit.U16:
		return uint16(bits), nil
	case wit.S16:
		return int16(bits), nil
	case wit.U32:
		return uint32(bits), nil
	case wit.S32:
		return int32(uint32(bits)), nil
	case wit.U64:
		return bits, nil
	case wit.S64:
		return int64(bits), nil
	case wit.F32:
		return math.Float32frombits(uint32(bits)), nil
	case wit.F64:
		return math.Float64frombits(bits), nil
	case wit.Char:
		r := rune(uint32(bits))
		if !validChar(r) {
			return nil, errors.Marshal(errors.PhaseDecode, path, "invalid char code point 0x%x", uint32(bits))
		}
		return r, nil
	}
	panic("engine: unreachable scalar type")
}

func isScalar(t wit.Type) bool {
	switch t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32,
		wit.U64, wit.S64, wit.F32, wit.F64, wit.Char:
		return true
	}
	return false
}

func validChar(r rune) bool {
	return r >= 0 && r < 0x110000 && (r < 0xD800 || r > 0xDFFF)
}

// singleCase picks the case a single-key map names
func singleCase(cs []variantCase, v any, path []string) (int, any, error) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return 0, nil, errors.Marshal(errors.PhaseEncode, path, "case value must be a single-key map, got %T", v)
	}
	for name, payload := range m {
		for i, c := range cs {
			if c.name != name {
				continue
			}
			if c.typ == nil && payload != nil {
				return 0, nil, errors.Marshal(errors.PhaseEncode, with(path, name), "case %s carries no payload", name)
			}
			return i, payload, nil
		}
		return 0, nil, errors.Marshal(errors.PhaseEncode, path, "unknown case %s", name)
	}
	panic("engine: unreachable")
}

func flagMask(v any, n int, path []string) (uint64, error) {
	mask, ok := v.(uint64)
	if !ok {
		return 0, errors.Marshal(errors.PhaseEncode, path, "flags must be a uint64 mask, got %T", v)
	}
	if n < 64 && mask>>uint(n) != 0 {
		return 0, errors.Marshal(errors.PhaseEncode, path, "mask 0x%x sets undeclared flags", mask)
	}
	return mask, nil
}

// store writes v as a value of type t at ptr
func (g *guest) store(t wit.Type, v any, ptr uint32, path []string) error {
	if isScalar(t) {
		bits, ok := scalarBits(t, v)
		if !ok {
			return mismatch(errors.PhaseEncode, path, v, t)
		}
		return g.storeBits(bits, layoutOf(t).size, ptr, path)
	}
	switch t := t.(type) {
	case wit.String:
		s, ok := v.(string)
		if !ok {
			return mismatch(errors.PhaseEncode, path, v, t)
		}
		p, n, err := g.lowerString(s, path)
		if err != nil {
			return err
		}
		return g.storePair(p, n, ptr, path)
	case *wit.TypeDef:
		switch kind := t.Kind.(type) {
		case *wit.List:
			p, n, err := g.lowerList(kind.Type, v, path)
			if err != nil {
				return err
			}
			return g.storePair(p, n, ptr, path)
		case *wit.Record:
			m, ok := v.(map[string]any)
			if !ok {
				return mismatch(errors.PhaseEncode, path, v, t)
			}
			fields := make([]wit.Type, len(kind.Fields))
			for i, f := range kind.Fields {
				fields[i] = f.Type
			}
			_, offs := structLayout(fields)
			for i, f := range kind.Fields {
				fv, ok := m[f.Name]
				if !ok {
					return errors.Marshal(errors.PhaseEncode, with(path, f.Name), "missing field %s", f.Name)
				}
				if err := g.store(f.Type, fv, ptr+offs[i], with(path, f.Name)); err != nil {
					return err
				}
			}
			return nil
		case *wit.Tuple:
			elems, ok := v.([]any)
			if !ok || len(elems) != len(kind.Types) {
				return mismatch(errors.PhaseEncode, path, v, t)
			}
			_, offs := structLayout(kind.Types)
			for i, et := range kind.Types {
				if err := g.store(et, elems[i], ptr+offs[i], with(path, strconv.Itoa(i))); err != nil {
					return err
				}
			}
			return nil
		case *wit.Enum:
			idx, ok := v.(uint32)
			if !ok || int(idx) >= len(kind.Cases) {
				return mismatch(errors.PhaseEncode, path, v, t)
			}
			return g.storeBits(uint64(idx), discriminantSize(len(kind.Cases)), ptr, path)
		case *wit.Flags:
			mask, err := flagMask(v, len(kind.Flags), path)
			if err != nil {
				return err
			}
			l := layoutOf(t)
			if l.size <= 4 {
				return g.storeBits(mask, l.size, ptr, path)
			}
			if err := g.storeBits(mask&0xffffffff, 4, ptr, path); err != nil {
				return err
			}
			return g.storeBits(mask>>32, 4, ptr+4, path)
		case *wit.Own, *wit.Borrow:
			rep, ok := v.(uint32)
			if !ok {
				return mismatch(errors.PhaseEncode, path, v, t)
			}
			return g.storeBits(uint64(rep), 4, ptr, path)
		case *wit.Variant, *wit.Option, *wit.Result:
			cs := cases(t)
			idx, payload, err := singleCase(cs, v, path)
			if err != nil {
				return err
			}
			_, off := variantLayout(caseTypes(t))
			if err := g.storeBits(uint64(idx), discriminantSize(len(cs)), ptr, path); err != nil {
				return err
			}
			if cs[idx].typ == nil {
				return nil
			}
			return g.store(cs[idx].typ, payload, ptr+off, with(path, cs[idx].name))
		}
	}
	panic("engine: unreachable wit type")
}

func (g *guest) storeBits(bits uint64, size, ptr uint32, path []string) error {
	var buf [8]byte
	for i := uint32(0); i < size; i++ {
		buf[i] = byte(bits >> (8 * i))
	}
	return g.write(ptr, buf[:size], path)
}

func (g *guest) storePair(a, b, ptr uint32, path []string) error {
	if err := g.storeBits(uint64(a), 4, ptr, path); err != nil {
		return err
	}
	return g.storeBits(uint64(b), 4, ptr+4, path)
}

func (g *guest) lowerString(s string, path []string) (uint32, uint32, error) {
	if len(s) > maxStringSize {
		return 0, 0, errors.Marshal(errors.PhaseEncode, path, "string of %d bytes exceeds limit", len(s))
	}
	ptr, err := g.alloc(uint32(len(s)), 1, path)
	if err != nil {
		return 0, 0, err
	}
	if len(s) > 0 {
		if err := g.write(ptr, []byte(s), path); err != nil {
			return 0, 0, err
		}
	}
	return ptr, uint32(len(s)), nil
}

func (g *guest) lowerList(elem wit.Type, v any, path []string) (uint32, uint32, error) {
	elems, ok := v.([]any)
	if !ok {
		return 0, 0, mismatch(errors.PhaseEncode, path, v, &wit.TypeDef{Kind: &wit.List{Type: elem}})
	}
	if len(elems) > maxListLength {
		return 0, 0, errors.Marshal(errors.PhaseEncode, path, "list of %d elements exceeds limit", len(elems))
	}
	el := layoutOf(elem)
	stride := alignTo(el.size, el.align)
	ptr, err := g.alloc(stride*uint32(len(elems)), el.align, path)
	if err != nil {
		return 0, 0, err
	}
	for i, e := range elems {
		if err := g.store(elem, e, ptr+uint32(i)*stride, with(path, strconv.Itoa(i))); err != nil {
			return 0, 0, err
		}
	}
	return ptr, uint32(len(elems)), nil
}

// load reads a value of type t from ptr
func (g *guest) load(t wit.Type, ptr uint32, path []string) (any, error) {
	if isScalar(t) {
		bits, err := g.loadBits(layoutOf(t).size, ptr, path)
		if err != nil {
			return nil, err
		}
		return scalarValue(t, bits, path)
	}
	switch t := t.(type) {
	case wit.String:
		p, n, err := g.loadPair(ptr, path)
		if err != nil {
			return nil, err
		}
		return g.liftString(p, n, path)
	case *wit.TypeDef:
		switch kind := t.Kind.(type) {
		case *wit.List:
			p, n, err := g.loadPair(ptr, path)
			if err != nil {
				return nil, err
			}
			return g.liftList(kind.Type, p, n, path)
		case *wit.Record:
			fields := make([]wit.Type, len(kind.Fields))
			for i, f := range kind.Fields {
				fields[i] = f.Type
			}
			_, offs := structLayout(fields)
			m := make(map[string]any, len(kind.Fields))
			for i, f := range kind.Fields {
				fv, err := g.load(f.Type, ptr+offs[i], with(path, f.Name))
				if err != nil {
					return nil, err
				}
				m[f.Name] = fv
			}
			return m, nil
		case *wit.Tuple:
			_, offs := structLayout(kind.Types)
			out := make([]any, len(kind.Types))
			for i, et := range kind.Types {
				ev, err := g.load(et, ptr+offs[i], with(path, strconv.Itoa(i)))
				if err != nil {
					return nil, err
				}
				out[i] = ev
			}
			return out, nil
		case *wit.Enum:
			disc, err := g.loadBits(discriminantSize(len(kind.Cases)), ptr, path)
			if err != nil {
				return nil, err
			}
			if disc >= uint64(len(kind.Cases)) {
				return nil, errors.InvalidDiscriminant(errors.PhaseDecode, path, uint32(disc), uint32(len(kind.Cases)-1))
			}
			return uint32(disc), nil
		case *wit.Flags:
			l := layoutOf(t)
			var mask uint64
			if l.size <= 4 {
				bits, err := g.loadBits(l.size, ptr, path)
				if err != nil {
					return nil, err
				}
				mask = bits
			} else {
				lo, err := g.loadBits(4, ptr, path)
				if err != nil {
					return nil, err
				}
				hi, err := g.loadBits(4, ptr+4, path)
				if err != nil {
					return nil, err
				}
				mask = lo | hi<<32
			}
			return liftFlags(mask, len(kind.Flags)), nil
		case *wit.Own, *wit.Borrow:
			bits, err := g.loadBits(4, ptr, path)
			if err != nil {
				return nil, err
			}
			return uint32(bits), nil
		case *wit.Variant, *wit.Option, *wit.Result:
			cs := cases(t)
			disc, err := g.loadBits(discriminantSize(len(cs)), ptr, path)
			if err != nil {
				return nil, err
			}
			if disc >= uint64(len(cs)) {
				return nil, errors.InvalidDiscriminant(errors.PhaseDecode, path, uint32(disc), uint32(len(cs)-1))
			}
			c := cs[disc]
			if c.typ == nil {
				return map[string]any{c.name: nil}, nil
			}
			_, off := variantLayout(caseTypes(t))
			pv, err := g.load(c.typ, ptr+off, with(path, c.name))
			if err != nil {
				return nil, err
			}
			return map[string]any{c.name: pv}, nil
		}
	}
	panic("engine: unreachable wit type")
}

// liftFlags drops bits beyond the declared flags, as the canonical ABI does
func liftFlags(mask uint64, n int) uint64 {
	if n < 64 {
		mask &= 1<<uint(n) - 1
	}
	return mask
}

func (g *guest) loadBits(size, ptr uint32, path []string) (uint64, error) {
	data, err := g.read(ptr, size, path)
	if err != nil {
		return 0, err
	}
	var bits uint64
	for i, b := range data {
		bits |= uint64(b) << (8 * i)
	}
	return bits, nil
}

func (g *guest) loadPair(ptr uint32, path []string) (uint32, uint32, error) {
	a, err := g.loadBits(4, ptr, path)
	if err != nil {
		return 0, 0, err
	}
	b, err := g.loadBits(4, ptr+4, path)
	if err != nil {
		return 0, 0, err
	}
	return uint32(a), uint32(b), nil
}

func (g *guest) liftString(ptr, n uint32, path []string) (string, error) {
	if n > maxStringSize {
		return "", errors.Marshal(errors.PhaseDecode, path, "string of %d bytes exceeds limit", n)
	}
	if n == 0 {
		return "", nil
	}
	data, err := g.read(ptr, n, path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.New(errors.PhaseDecode, errors.KindMarshal).
			Path(path...).
			WitType("string").
			Detail("string is not valid UTF-8").
			Cause(errors.InvalidUTF8(errors.PhaseDecode, path, data)).
			Build()
	}
	return string(data), nil
}

func (g *guest) liftList(elem wit.Type, ptr, n uint32, path []string) ([]any, error) {
	if n > maxListLength {
		return nil, errors.Marshal(errors.PhaseDecode, path, "list of %d elements exceeds limit", n)
	}
	el := layoutOf(elem)
	stride := alignTo(el.size, el.align)
	if uint64(ptr)+uint64(stride)*uint64(n) > math.MaxUint32 {
		return nil, errors.Marshal(errors.PhaseDecode, path, "list at 0x%x with %d elements overflows memory", ptr, n)
	}
	out := make([]any, n)
	for i := uint32(0); i < n; i++ {
		v, err := g.load(elem, ptr+i*stride, with(path, strconv.Itoa(int(i))))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
