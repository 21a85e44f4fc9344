package value

import (
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/syntax"
	"github.com/wippyai/wasm-repl/types"
)

// Env supplies what coercion cannot decide from a literal alone.
type Env interface {
	// Lookup returns the bound value of a plain variable name.
	Lookup(name string) (Value, bool)
	// Call evaluates a function call.
	Call(call *syntax.Call) (Value, error)
	// ResolveType turns a written type into an interface type.
	ResolveType(te *syntax.TypeExpr) (types.Type, error)
}

// Coerce checks expr against target and builds the value.
// Literals are checked structurally; variables and calls are evaluated
// through env and their type must equal target.
func Coerce(env Env, expr syntax.Expr, target types.Type) (Value, error) {
	c := &coercer{env: env}
	return c.coerce(expr, target, nil)
}

type coercer struct {
	env Env
}

func with(path []string, seg string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, seg)
}

// describe names an expression kind for mismatch messages
func describe(expr syntax.Expr) string {
	switch x := expr.(type) {
	case *syntax.IntLit:
		return "integer " + x.Text
	case *syntax.FloatLit:
		return "float " + x.Text
	case *syntax.BoolLit:
		return "bool"
	case *syntax.StringLit:
		return "string"
	case *syntax.CharLit:
		return "char"
	case *syntax.ListLit:
		return "list"
	case *syntax.RecordLit:
		return "record"
	case *syntax.TupleLit:
		return "tuple"
	case *syntax.Ident:
		return x.Name.String()
	case *syntax.Call:
		return x.Callee.String() + "(...)"
	case *syntax.Ascribe:
		return describe(x.X) + " as " + x.Type.String()
	}
	return "expression"
}

func mismatch(path []string, target types.Type, detail string, args ...any) error {
	return errors.New(errors.PhaseEval, errors.KindTypeMismatch).
		Path(path...).
		WitType(types.Render(target)).
		Detail(detail, args...).
		Build()
}

func (c *coercer) coerce(expr syntax.Expr, target types.Type, path []string) (Value, error) {
	u := types.Underlying(target)
	if u == nil {
		return nil, errors.TypeResolution(path, "type %s has no definition", types.Render(target))
	}

	switch x := expr.(type) {
	case *syntax.Ascribe:
		at, err := c.env.ResolveType(x.Type)
		if err != nil {
			return nil, err
		}
		if !types.Equal(at, target) {
			return nil, mismatch(path, target, "got %s", types.Render(at))
		}
		return c.coerce(x.X, at, path)
	case *syntax.Ident:
		return c.ident(x, target, u, path)
	case *syntax.Call:
		return c.call(x, target, u, path)
	}

	if opt, ok := u.(*types.Option); ok {
		// a bare payload literal is some(payload)
		v, err := c.coerce(expr, opt.Elem, with(path, "some"))
		if err != nil {
			return nil, err
		}
		return &Option{T: target, V: v}, nil
	}

	switch x := expr.(type) {
	case *syntax.IntLit:
		return intLiteral(x, target, u, path)
	case *syntax.FloatLit:
		p, ok := u.(types.Primitive)
		if !ok || !p.IsFloat() {
			return nil, mismatch(path, target, "got %s", describe(expr))
		}
		return makeFloat(x.V, target, p, path)
	case *syntax.BoolLit:
		if u != types.Bool {
			return nil, mismatch(path, target, "got %s", describe(expr))
		}
		return &Bool{T: target, V: x.V}, nil
	case *syntax.StringLit:
		switch u {
		case types.String:
			return &String{T: target, V: x.V}, nil
		case types.Char:
			if utf8.RuneCountInString(x.V) == 1 {
				r, _ := utf8.DecodeRuneInString(x.V)
				return &Char{T: target, V: r}, nil
			}
		}
		return nil, mismatch(path, target, "got %s", describe(expr))
	case *syntax.CharLit:
		if u != types.Char {
			return nil, mismatch(path, target, "got %s", describe(expr))
		}
		return &Char{T: target, V: x.V}, nil
	case *syntax.ListLit:
		return c.list(x, target, u, path)
	case *syntax.TupleLit:
		tt, ok := u.(*types.Tuple)
		if !ok {
			return nil, mismatch(path, target, "got %s", describe(expr))
		}
		if len(x.Elems) != len(tt.Elems) {
			return nil, mismatch(path, target, "tuple has %d elements, want %d", len(x.Elems), len(tt.Elems))
		}
		out := &Tuple{T: target, Elems: make([]Value, len(x.Elems))}
		for i, e := range x.Elems {
			v, err := c.coerce(e, tt.Elems[i], with(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out.Elems[i] = v
		}
		return out, nil
	case *syntax.RecordLit:
		return c.record(x, target, u, path)
	}
	return nil, mismatch(path, target, "got %s", describe(expr))
}

func intLiteral(x *syntax.IntLit, target, u types.Type, path []string) (Value, error) {
	p, ok := u.(types.Primitive)
	if !ok {
		return nil, mismatch(path, target, "got integer %s", x.Text)
	}
	switch {
	case p.IsFloat():
		f := float64(x.Mag)
		if x.Neg {
			f = -f
		}
		return makeFloat(f, target, p, path)
	case p.IsUnsigned():
		bits := p.Bits()
		if (x.Neg && x.Mag != 0) || (bits < 64 && x.Mag >= 1<<bits) {
			return nil, mismatch(path, target, "value %s overflows %s", x.Text, p)
		}
		return &Uint{T: target, V: x.Mag}, nil
	case p.IsSigned():
		bits := p.Bits()
		limit := uint64(1) << (bits - 1) // |min|; max is limit-1
		if x.Neg {
			if x.Mag > limit {
				return nil, mismatch(path, target, "value %s overflows %s", x.Text, p)
			}
			return &Int{T: target, V: int64(-x.Mag)}, nil
		}
		if x.Mag >= limit {
			return nil, mismatch(path, target, "value %s overflows %s", x.Text, p)
		}
		return &Int{T: target, V: int64(x.Mag)}, nil
	}
	return nil, mismatch(path, target, "got integer %s", x.Text)
}

func makeFloat(f float64, target types.Type, p types.Primitive, path []string) (Value, error) {
	if p == types.F32 {
		if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return nil, mismatch(path, target, "value %g overflows f32", f)
		}
		f = float64(float32(f))
	}
	return &Float{T: target, V: f}, nil
}

func (c *coercer) list(x *syntax.ListLit, target, u types.Type, path []string) (Value, error) {
	switch lt := u.(type) {
	case *types.List:
		out := &List{T: target, Elems: make([]Value, len(x.Elems))}
		for i, e := range x.Elems {
			v, err := c.coerce(e, lt.Elem, with(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out.Elems[i] = v
		}
		return out, nil
	case *types.Flags:
		set := make(map[string]bool, len(x.Elems))
		for i, e := range x.Elems {
			id, ok := e.(*syntax.Ident)
			if !ok || id.Name.Qualified() || lt.Index(id.Name.Func) < 0 {
				return nil, mismatch(with(path, strconv.Itoa(i)), target, "%s is not a flag", describe(e))
			}
			set[id.Name.Func] = true
		}
		out := &Flags{T: target}
		for _, name := range lt.Names {
			if set[name] {
				out.Set = append(out.Set, name)
			}
		}
		return out, nil
	}
	return nil, mismatch(path, target, "got list")
}

func (c *coercer) record(x *syntax.RecordLit, target, u types.Type, path []string) (Value, error) {
	rt, ok := u.(*types.Record)
	if !ok {
		return nil, mismatch(path, target, "got record")
	}
	given := make(map[string]syntax.Expr, len(x.Fields))
	for _, f := range x.Fields {
		if rt.FieldIndex(f.Name) < 0 {
			return nil, mismatch(with(path, f.Name), target, "unknown field %s", f.Name)
		}
		given[f.Name] = f.Value
	}
	out := &Record{T: target, Fields: make([]FieldValue, len(rt.Fields))}
	for i, f := range rt.Fields {
		e, ok := given[f.Name]
		if !ok {
			return nil, mismatch(with(path, f.Name), target, "missing field %s", f.Name)
		}
		v, err := c.coerce(e, f.Type, with(path, f.Name))
		if err != nil {
			return nil, err
		}
		out.Fields[i] = FieldValue{Name: f.Name, Value: v}
	}
	return out, nil
}

// leaf checks a value produced by a variable or call against target.
// An option target also accepts a value of its payload type, and a borrow
// target accepts an owned handle to the same resource.
func leaf(v Value, target, u types.Type, path []string) (Value, error) {
	if types.Equal(v.Type(), target) {
		return v, nil
	}
	if h, ok := v.(*Handle); ok && lends(types.Underlying(h.T), u) {
		return &Handle{T: target, Instance: h.Instance, Rep: h.Rep}, nil
	}
	if opt, ok := u.(*types.Option); ok && types.Equal(v.Type(), opt.Elem) {
		return &Option{T: target, V: v}, nil
	}
	return nil, mismatch(path, target, "got %s", types.Render(v.Type()))
}

// lends reports whether from is own<R> and to is borrow<R>
func lends(from, to types.Type) bool {
	own, ok := from.(*types.Handle)
	if !ok || own.Borrow {
		return false
	}
	borrow, ok := to.(*types.Handle)
	return ok && borrow.Borrow && types.Equal(types.Borrowed(own.Resource), borrow)
}

// caseValue builds the payload-less case named name, if target has one.
func caseValue(name string, target, u types.Type) (Value, bool) {
	switch t := u.(type) {
	case *types.Variant:
		if i := t.CaseIndex(name); i >= 0 && t.Cases[i].Payload == nil {
			return &Variant{T: target, Case: name, Index: i}, true
		}
	case *types.Enum:
		if i := t.CaseIndex(name); i >= 0 {
			return &Enum{T: target, Case: name, Index: i}, true
		}
	case *types.Option:
		if name == "none" {
			return &Option{T: target}, true
		}
	case *types.Result:
		if name == "ok" && t.OK == nil {
			return &Result{T: target}, true
		}
		if name == "err" && t.Err == nil {
			return &Result{T: target, IsErr: true}, true
		}
	}
	return nil, false
}

// ident resolves a name: bound variables shadow case names.
func (c *coercer) ident(x *syntax.Ident, target, u types.Type, path []string) (Value, error) {
	if !x.Name.Qualified() {
		if v, ok := c.env.Lookup(x.Name.Func); ok {
			return leaf(v, target, u, path)
		}
		if v, ok := caseValue(x.Name.Func, target, u); ok {
			return v, nil
		}
		if opt, ok := u.(*types.Option); ok {
			if inner, ok := caseValue(x.Name.Func, opt.Elem, types.Underlying(opt.Elem)); ok {
				return &Option{T: target, V: inner}, nil
			}
		}
	}
	return nil, errors.UnboundVariable(x.Name.String())
}

// casePayload returns the payload type of a constructor case on target.
func casePayload(name string, u types.Type) (payload types.Type, index int, ok bool) {
	switch t := u.(type) {
	case *types.Variant:
		if i := t.CaseIndex(name); i >= 0 {
			return t.Cases[i].Payload, i, true
		}
	case *types.Option:
		if name == "some" {
			return t.Elem, 1, true
		}
	case *types.Result:
		switch name {
		case "ok":
			return t.OK, 0, true
		case "err":
			return t.Err, 1, true
		}
	}
	return nil, 0, false
}

// call handles case constructors such as some(1) or circle(2.0); any
// other call is evaluated through env.
func (c *coercer) call(x *syntax.Call, target, u types.Type, path []string) (Value, error) {
	if !x.Callee.Qualified() {
		if payload, index, ok := casePayload(x.Callee.Func, u); ok {
			want := 0
			if payload != nil {
				want = 1
			}
			if len(x.Args) != want {
				return nil, mismatch(path, target, "case %s takes %d payload value(s), got %d", x.Callee.Func, want, len(x.Args))
			}
			var v Value
			if payload != nil {
				var err error
				if v, err = c.coerce(x.Args[0], payload, with(path, x.Callee.Func)); err != nil {
					return nil, err
				}
			}
			switch u.(type) {
			case *types.Variant:
				return &Variant{T: target, Case: x.Callee.Func, Index: index, Payload: v}, nil
			case *types.Option:
				if v == nil {
					return nil, mismatch(path, target, "some needs a payload")
				}
				return &Option{T: target, V: v}, nil
			default:
				return &Result{T: target, V: v, IsErr: x.Callee.Func == "err"}, nil
			}
		}
		if opt, ok := u.(*types.Option); ok {
			// implicit some around a constructor of the payload type
			if _, _, ok := casePayload(x.Callee.Func, types.Underlying(opt.Elem)); ok {
				v, err := c.call(x, opt.Elem, types.Underlying(opt.Elem), with(path, "some"))
				if err != nil {
					return nil, err
				}
				return &Option{T: target, V: v}, nil
			}
		}
	}
	v, err := c.env.Call(x)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, mismatch(path, target, "%s returns nothing", x.Callee)
	}
	return leaf(v, target, u, path)
}
