package value

import (
	"math"
	"strconv"

	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/syntax"
	"github.com/wippyai/wasm-repl/types"
)

// Infer types an expression that has no target type. Integers default to
// s64 (u64 above the s64 range), floats to f64; a list takes the type of
// its first element and a record literal becomes an anonymous record.
func Infer(env Env, expr syntax.Expr) (Value, error) {
	c := &coercer{env: env}
	return c.infer(expr, nil)
}

func (c *coercer) infer(expr syntax.Expr, path []string) (Value, error) {
	switch x := expr.(type) {
	case *syntax.IntLit:
		if !x.Neg && x.Mag > math.MaxInt64 {
			return &Uint{T: types.U64, V: x.Mag}, nil
		}
		return intLiteral(x, types.S64, types.S64, path)
	case *syntax.FloatLit:
		return &Float{T: types.F64, V: x.V}, nil
	case *syntax.BoolLit:
		return &Bool{T: types.Bool, V: x.V}, nil
	case *syntax.StringLit:
		return &String{T: types.String, V: x.V}, nil
	case *syntax.CharLit:
		return &Char{T: types.Char, V: x.V}, nil
	case *syntax.ListLit:
		if len(x.Elems) == 0 {
			return nil, errors.New(errors.PhaseEval, errors.KindTypeMismatch).
				Path(path...).
				Detail("cannot infer the element type of an empty list; write [] as list<T>").
				Build()
		}
		first, err := c.infer(x.Elems[0], with(path, "0"))
		if err != nil {
			return nil, err
		}
		elem := first.Type()
		out := &List{T: &types.List{Elem: elem}, Elems: []Value{first}}
		for i, e := range x.Elems[1:] {
			v, err := c.coerce(e, elem, with(path, strconv.Itoa(i+1)))
			if err != nil {
				return nil, err
			}
			out.Elems = append(out.Elems, v)
		}
		return out, nil
	case *syntax.RecordLit:
		rt := &types.Record{}
		out := &Record{T: rt}
		for _, f := range x.Fields {
			v, err := c.infer(f.Value, with(path, f.Name))
			if err != nil {
				return nil, err
			}
			rt.Fields = append(rt.Fields, types.Field{Name: f.Name, Type: v.Type()})
			out.Fields = append(out.Fields, FieldValue{Name: f.Name, Value: v})
		}
		return out, nil
	case *syntax.TupleLit:
		tt := &types.Tuple{}
		out := &Tuple{T: tt}
		for i, e := range x.Elems {
			v, err := c.infer(e, with(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			tt.Elems = append(tt.Elems, v.Type())
			out.Elems = append(out.Elems, v)
		}
		return out, nil
	case *syntax.Ident:
		if !x.Name.Qualified() {
			if v, ok := c.env.Lookup(x.Name.Func); ok {
				return v, nil
			}
		}
		return nil, errors.UnboundVariable(x.Name.String())
	case *syntax.Call:
		v, err := c.env.Call(x)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, errors.New(errors.PhaseEval, errors.KindTypeMismatch).
				Path(path...).
				Detail("%s returns nothing", x.Callee).
				Build()
		}
		return v, nil
	case *syntax.Ascribe:
		t, err := c.env.ResolveType(x.Type)
		if err != nil {
			return nil, err
		}
		return c.coerce(x.X, t, path)
	}
	return nil, errors.Unsupported(errors.PhaseEval, "cannot evaluate "+describe(expr))
}
