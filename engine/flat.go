package engine

import (
	"strconv"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-repl/errors"
)

// Flat values are raw wazero stack slots: i32 as a zero-extended 32-bit
// pattern, floats as IEEE bits. Joined variant slots therefore need no
// conversion; only the slot count matters.

// lowerFlat appends the flattened form of v
func (g *guest) lowerFlat(t wit.Type, v any, out []uint64, path []string) ([]uint64, error) {
	if isScalar(t) {
		bits, ok := scalarBits(t, v)
		if !ok {
			return nil, mismatch(errors.PhaseEncode, path, v, t)
		}
		return append(out, bits), nil
	}
	switch t := t.(type) {
	case wit.String:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(errors.PhaseEncode, path, v, t)
		}
		p, n, err := g.lowerString(s, path)
		if err != nil {
			return nil, err
		}
		return append(out, uint64(p), uint64(n)), nil
	case *wit.TypeDef:
		switch kind := t.Kind.(type) {
		case *wit.List:
			p, n, err := g.lowerList(kind.Type, v, path)
			if err != nil {
				return nil, err
			}
			return append(out, uint64(p), uint64(n)), nil
		case *wit.Record:
			m, ok := v.(map[string]any)
			if !ok {
				return nil, mismatch(errors.PhaseEncode, path, v, t)
			}
			for _, f := range kind.Fields {
				fv, ok := m[f.Name]
				if !ok {
					return nil, errors.Marshal(errors.PhaseEncode, with(path, f.Name), "missing field %s", f.Name)
				}
				var err error
				if out, err = g.lowerFlat(f.Type, fv, out, with(path, f.Name)); err != nil {
					return nil, err
				}
			}
			return out, nil
		case *wit.Tuple:
			elems, ok := v.([]any)
			if !ok || len(elems) != len(kind.Types) {
				return nil, mismatch(errors.PhaseEncode, path, v, t)
			}
			for i, et := range kind.Types {
				var err error
				if out, err = g.lowerFlat(et, elems[i], out, with(path, strconv.Itoa(i))); err != nil {
					return nil, err
				}
			}
			return out, nil
		case *wit.Enum:
			idx, ok := v.(uint32)
			if !ok || int(idx) >= len(kind.Cases) {
				return nil, mismatch(errors.PhaseEncode, path, v, t)
			}
			return append(out, uint64(idx)), nil
		case *wit.Flags:
			mask, err := flagMask(v, len(kind.Flags), path)
			if err != nil {
				return nil, err
			}
			if len(kind.Flags) > 32 {
				return append(out, mask&0xffffffff, mask>>32), nil
			}
			return append(out, mask), nil
		case *wit.Own, *wit.Borrow:
			rep, ok := v.(uint32)
			if !ok {
				return nil, mismatch(errors.PhaseEncode, path, v, t)
			}
			return append(out, uint64(rep)), nil
		case *wit.Variant, *wit.Option, *wit.Result:
			cs := cases(t)
			idx, payload, err := singleCase(cs, v, path)
			if err != nil {
				return nil, err
			}
			width := len(flatten(t))
			start := len(out)
			out = append(out, uint64(idx))
			if cs[idx].typ != nil {
				if out, err = g.lowerFlat(cs[idx].typ, payload, out, with(path, cs[idx].name)); err != nil {
					return nil, err
				}
			}
			for len(out)-start < width {
				out = append(out, 0)
			}
			return out, nil
		}
	}
	panic("engine: unreachable wit type")
}

// flatReader walks the slots of a flattened value
type flatReader struct {
	vals []uint64
	pos  int
}

func (r *flatReader) next(path []string) (uint64, error) {
	if r.pos >= len(r.vals) {
		return 0, errors.Marshal(errors.PhaseDecode, path, "ran out of flat values")
	}
	v := r.vals[r.pos]
	r.pos++
	return v, nil
}

// liftFlat reads a value of type t from the reader
func (g *guest) liftFlat(t wit.Type, r *flatReader, path []string) (any, error) {
	if isScalar(t) {
		bits, err := r.next(path)
		if err != nil {
			return nil, err
		}
		return scalarValue(t, bits, path)
	}
	switch t := t.(type) {
	case wit.String:
		p, n, err := r.pair(path)
		if err != nil {
			return nil, err
		}
		return g.liftString(p, n, path)
	case *wit.TypeDef:
		switch kind := t.Kind.(type) {
		case *wit.List:
			p, n, err := r.pair(path)
			if err != nil {
				return nil, err
			}
			return g.liftList(kind.Type, p, n, path)
		case *wit.Record:
			m := make(map[string]any, len(kind.Fields))
			for _, f := range kind.Fields {
				fv, err := g.liftFlat(f.Type, r, with(path, f.Name))
				if err != nil {
					return nil, err
				}
				m[f.Name] = fv
			}
			return m, nil
		case *wit.Tuple:
			out := make([]any, len(kind.Types))
			for i, et := range kind.Types {
				ev, err := g.liftFlat(et, r, with(path, strconv.Itoa(i)))
				if err != nil {
					return nil, err
				}
				out[i] = ev
			}
			return out, nil
		case *wit.Enum:
			disc, err := r.next(path)
			if err != nil {
				return nil, err
			}
			if uint32(disc) >= uint32(len(kind.Cases)) {
				return nil, errors.InvalidDiscriminant(errors.PhaseDecode, path, uint32(disc), uint32(len(kind.Cases)-1))
			}
			return uint32(disc), nil
		case *wit.Flags:
			lo, err := r.next(path)
			if err != nil {
				return nil, err
			}
			mask := uint64(uint32(lo))
			if len(kind.Flags) > 32 {
				hi, err := r.next(path)
				if err != nil {
					return nil, err
				}
				mask |= uint64(uint32(hi)) << 32
			}
			return liftFlags(mask, len(kind.Flags)), nil
		case *wit.Own, *wit.Borrow:
			rep, err := r.next(path)
			if err != nil {
				return nil, err
			}
			return uint32(rep), nil
		case *wit.Variant, *wit.Option, *wit.Result:
			cs := cases(t)
			width := len(flatten(t))
			start := r.pos
			disc, err := r.next(path)
			if err != nil {
				return nil, err
			}
			if uint32(disc) >= uint32(len(cs)) {
				return nil, errors.InvalidDiscriminant(errors.PhaseDecode, path, uint32(disc), uint32(len(cs)-1))
			}
			c := cs[uint32(disc)]
			var payload any
			if c.typ != nil {
				if payload, err = g.liftFlat(c.typ, r, with(path, c.name)); err != nil {
					return nil, err
				}
			}
			r.pos = start + width
			return map[string]any{c.name: payload}, nil
		}
	}
	panic("engine: unreachable wit type")
}

func (r *flatReader) pair(path []string) (uint32, uint32, error) {
	a, err := r.next(path)
	if err != nil {
		return 0, 0, err
	}
	b, err := r.next(path)
	if err != nil {
		return 0, 0, err
	}
	return uint32(a), uint32(b), nil
}
