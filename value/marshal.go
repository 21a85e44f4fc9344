package value

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/types"
)

// HandleChecker reports whether the instance a handle belongs to is live.
type HandleChecker func(instance string) bool

// ToEngine converts values to the engine's call representation:
// exact-width Go scalars, []any for lists and tuples, map[string]any for
// records and single-key maps for variants, options and results, uint32
// enum indexes, uint64 flag masks and uint32 resource reps.
func ToEngine(vals []Value, live HandleChecker) ([]any, error) {
	out := make([]any, len(vals))
	for i, v := range vals {
		raw, err := toEngine(v, live, []string{strconv.Itoa(i)})
		if err != nil {
			return nil, err
		}
		out[i] = raw
	}
	return out, nil
}

func toEngine(v Value, live HandleChecker, path []string) (any, error) {
	switch x := v.(type) {
	case *Bool:
		return x.V, nil
	case *Int:
		switch types.Underlying(x.T) {
		case types.S8:
			return int8(x.V), nil
		case types.S16:
			return int16(x.V), nil
		case types.S32:
			return int32(x.V), nil
		case types.S64:
			return x.V, nil
		}
	case *Uint:
		switch types.Underlying(x.T) {
		case types.U8:
			return uint8(x.V), nil
		case types.U16:
			return uint16(x.V), nil
		case types.U32:
			return uint32(x.V), nil
		case types.U64:
			return x.V, nil
		}
	case *Float:
		switch types.Underlying(x.T) {
		case types.F32:
			return float32(x.V), nil
		case types.F64:
			return x.V, nil
		}
	case *Char:
		return x.V, nil
	case *String:
		return x.V, nil
	case *List:
		return elemsToEngine(x.Elems, live, path)
	case *Tuple:
		return elemsToEngine(x.Elems, live, path)
	case *Record:
		m := make(map[string]any, len(x.Fields))
		for _, f := range x.Fields {
			raw, err := toEngine(f.Value, live, with(path, f.Name))
			if err != nil {
				return nil, err
			}
			m[f.Name] = raw
		}
		return m, nil
	case *Variant:
		return caseToEngine(x.Case, x.Payload, live, path)
	case *Enum:
		return uint32(x.Index), nil
	case *Flags:
		ft, ok := types.Underlying(x.T).(*types.Flags)
		if !ok {
			break
		}
		if len(ft.Names) > 64 {
			return nil, errors.Unsupported(errors.PhaseEncode, "flags with more than 64 members")
		}
		var mask uint64
		for _, name := range x.Set {
			i := ft.Index(name)
			if i < 0 {
				return nil, errors.Marshal(errors.PhaseEncode, path, "unknown flag %s", name)
			}
			mask |= 1 << i
		}
		return mask, nil
	case *Option:
		if x.V == nil {
			return map[string]any{"none": nil}, nil
		}
		return caseToEngine("some", x.V, live, path)
	case *Result:
		if x.IsErr {
			return caseToEngine("err", x.V, live, path)
		}
		return caseToEngine("ok", x.V, live, path)
	case *Handle:
		if live != nil && !live(x.Instance) {
			return nil, errors.StaleHandle(types.Render(x.T), x.Instance)
		}
		return x.Rep, nil
	default:
		panic(fmt.Sprintf("value: unreachable value kind %T", v))
	}
	return nil, errors.Marshal(errors.PhaseEncode, path, "%T does not match type %s", v, types.Render(v.Type()))
}

func elemsToEngine(elems []Value, live HandleChecker, path []string) ([]any, error) {
	out := make([]any, len(elems))
	for i, e := range elems {
		raw, err := toEngine(e, live, with(path, strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		out[i] = raw
	}
	return out, nil
}

func caseToEngine(name string, payload Value, live HandleChecker, path []string) (any, error) {
	if payload == nil {
		return map[string]any{name: nil}, nil
	}
	raw, err := toEngine(payload, live, with(path, name))
	if err != nil {
		return nil, err
	}
	return map[string]any{name: raw}, nil
}

// FromEngine validates raw engine results against their declared types and
// builds values. Handles in the results are tagged with instance.
func FromEngine(raw []any, ts []types.Type, instance string) ([]Value, error) {
	if len(raw) != len(ts) {
		return nil, errors.Marshal(errors.PhaseDecode, nil, "engine returned %d value(s), want %d", len(raw), len(ts))
	}
	out := make([]Value, len(raw))
	for i := range raw {
		v, err := fromEngine(raw[i], ts[i], instance, []string{strconv.Itoa(i)})
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func badShape(path []string, raw any, t types.Type) error {
	return errors.New(errors.PhaseDecode, errors.KindMarshal).
		Path(path...).
		GoType(fmt.Sprintf("%T", raw)).
		WitType(types.Render(t)).
		Build()
}

func fromEngine(raw any, t types.Type, instance string, path []string) (Value, error) {
	u := types.Underlying(t)
	switch ut := u.(type) {
	case nil:
		return nil, errors.TypeResolution(path, "type %s has no definition", types.Render(t))
	case types.Primitive:
		return primitiveFromEngine(raw, t, ut, path)
	case *types.List:
		elems, ok := raw.([]any)
		if !ok {
			return nil, badShape(path, raw, t)
		}
		out := &List{T: t, Elems: make([]Value, len(elems))}
		for i, e := range elems {
			v, err := fromEngine(e, ut.Elem, instance, with(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out.Elems[i] = v
		}
		return out, nil
	case *types.Tuple:
		elems, ok := raw.([]any)
		if !ok || len(elems) != len(ut.Elems) {
			return nil, badShape(path, raw, t)
		}
		out := &Tuple{T: t, Elems: make([]Value, len(elems))}
		for i, e := range elems {
			v, err := fromEngine(e, ut.Elems[i], instance, with(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out.Elems[i] = v
		}
		return out, nil
	case *types.Record:
		m, ok := raw.(map[string]any)
		if !ok || len(m) != len(ut.Fields) {
			return nil, badShape(path, raw, t)
		}
		out := &Record{T: t, Fields: make([]FieldValue, len(ut.Fields))}
		for i, f := range ut.Fields {
			fr, ok := m[f.Name]
			if !ok {
				return nil, errors.Marshal(errors.PhaseDecode, with(path, f.Name), "missing field %s", f.Name)
			}
			v, err := fromEngine(fr, f.Type, instance, with(path, f.Name))
			if err != nil {
				return nil, err
			}
			out.Fields[i] = FieldValue{Name: f.Name, Value: v}
		}
		return out, nil
	case *types.Variant:
		name, payload, err := singleCase(raw, t, path)
		if err != nil {
			return nil, err
		}
		i := ut.CaseIndex(name)
		if i < 0 {
			return nil, errors.Marshal(errors.PhaseDecode, path, "unknown case %s of %s", name, types.Render(t))
		}
		pv, err := casePayloadFromEngine(payload, ut.Cases[i].Payload, instance, with(path, name))
		if err != nil {
			return nil, err
		}
		return &Variant{T: t, Case: name, Index: i, Payload: pv}, nil
	case *types.Enum:
		idx, ok := raw.(uint32)
		if !ok {
			return nil, badShape(path, raw, t)
		}
		if int(idx) >= len(ut.Cases) {
			return nil, errors.InvalidDiscriminant(errors.PhaseDecode, path, idx, uint32(len(ut.Cases)-1))
		}
		return &Enum{T: t, Case: ut.Cases[idx], Index: int(idx)}, nil
	case *types.Flags:
		mask, ok := raw.(uint64)
		if !ok {
			return nil, badShape(path, raw, t)
		}
		out := &Flags{T: t}
		for i, name := range ut.Names {
			if i < 64 && mask&(1<<i) != 0 {
				out.Set = append(out.Set, name)
				mask &^= 1 << i
			}
		}
		if mask != 0 {
			return nil, errors.Marshal(errors.PhaseDecode, path, "flag bits %#x not declared by %s", mask, types.Render(t))
		}
		return out, nil
	case *types.Option:
		name, payload, err := singleCase(raw, t, path)
		if err != nil {
			return nil, err
		}
		switch name {
		case "none":
			if payload != nil {
				return nil, errors.Marshal(errors.PhaseDecode, path, "none carries a payload")
			}
			return &Option{T: t}, nil
		case "some":
			v, err := fromEngine(payload, ut.Elem, instance, with(path, "some"))
			if err != nil {
				return nil, err
			}
			return &Option{T: t, V: v}, nil
		}
		return nil, errors.Marshal(errors.PhaseDecode, path, "unknown case %s of %s", name, types.Render(t))
	case *types.Result:
		name, payload, err := singleCase(raw, t, path)
		if err != nil {
			return nil, err
		}
		var side types.Type
		switch name {
		case "ok":
			side = ut.OK
		case "err":
			side = ut.Err
		default:
			return nil, errors.Marshal(errors.PhaseDecode, path, "unknown case %s of %s", name, types.Render(t))
		}
		v, err := casePayloadFromEngine(payload, side, instance, with(path, name))
		if err != nil {
			return nil, err
		}
		return &Result{T: t, V: v, IsErr: name == "err"}, nil
	case *types.Handle:
		rep, ok := raw.(uint32)
		if !ok {
			return nil, badShape(path, raw, t)
		}
		return &Handle{T: t, Instance: instance, Rep: rep}, nil
	case *types.Resource:
		return nil, errors.Marshal(errors.PhaseDecode, path, "resource %s used as a value type", ut.Name)
	default:
		panic(fmt.Sprintf("value: unreachable type kind %T", u))
	}
}

func singleCase(raw any, t types.Type, path []string) (string, any, error) {
	m, ok := raw.(map[string]any)
	if !ok || len(m) != 1 {
		return "", nil, badShape(path, raw, t)
	}
	for k, v := range m {
		return k, v, nil
	}
	return "", nil, badShape(path, raw, t)
}

func casePayloadFromEngine(payload any, t types.Type, instance string, path []string) (Value, error) {
	if t == nil {
		if payload != nil {
			return nil, errors.Marshal(errors.PhaseDecode, path, "case has no payload type but engine returned %T", payload)
		}
		return nil, nil
	}
	return fromEngine(payload, t, instance, path)
}

func primitiveFromEngine(raw any, t types.Type, p types.Primitive, path []string) (Value, error) {
	switch p {
	case types.Bool:
		if b, ok := raw.(bool); ok {
			return &Bool{T: t, V: b}, nil
		}
	case types.S8:
		if n, ok := raw.(int8); ok {
			return &Int{T: t, V: int64(n)}, nil
		}
	case types.S16:
		if n, ok := raw.(int16); ok {
			return &Int{T: t, V: int64(n)}, nil
		}
	case types.S32:
		if n, ok := raw.(int32); ok {
			return &Int{T: t, V: int64(n)}, nil
		}
	case types.S64:
		if n, ok := raw.(int64); ok {
			return &Int{T: t, V: n}, nil
		}
	case types.U8:
		if n, ok := raw.(uint8); ok {
			return &Uint{T: t, V: uint64(n)}, nil
		}
	case types.U16:
		if n, ok := raw.(uint16); ok {
			return &Uint{T: t, V: uint64(n)}, nil
		}
	case types.U32:
		if n, ok := raw.(uint32); ok {
			return &Uint{T: t, V: uint64(n)}, nil
		}
	case types.U64:
		if n, ok := raw.(uint64); ok {
			return &Uint{T: t, V: n}, nil
		}
	case types.F32:
		if f, ok := raw.(float32); ok {
			return &Float{T: t, V: float64(f)}, nil
		}
	case types.F64:
		if f, ok := raw.(float64); ok {
			return &Float{T: t, V: f}, nil
		}
	case types.Char:
		if r, ok := raw.(rune); ok {
			if !utf8.ValidRune(r) {
				return nil, errors.Marshal(errors.PhaseDecode, path, "invalid char %#x", r)
			}
			return &Char{T: t, V: r}, nil
		}
	case types.String:
		if s, ok := raw.(string); ok {
			if !utf8.ValidString(s) {
				return nil, errors.New(errors.PhaseDecode, errors.KindMarshal).
					Path(path...).
					WitType("string").
					Cause(errors.InvalidUTF8(errors.PhaseDecode, path, []byte(s))).
					Build()
			}
			return &String{T: t, V: s}, nil
		}
	}
	return nil, badShape(path, raw, t)
}
