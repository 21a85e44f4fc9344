package value

import (
	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/syntax"
	"github.com/wippyai/wasm-repl/types"
)

// ResolveTypeExpr turns a type written after "as" into an interface type.
// Builtin names and constructors are handled here; any other name is
// passed to named, which returns nil when the name is unknown.
func ResolveTypeExpr(te *syntax.TypeExpr, named func(string) types.Type) (types.Type, error) {
	argc := func(n int) error {
		if len(te.Args) != n {
			return errors.TypeResolution([]string{te.Name}, "%s takes %d type argument(s), got %d", te.Name, n, len(te.Args))
		}
		return nil
	}
	arg := func(i int) (types.Type, error) {
		return ResolveTypeExpr(te.Args[i], named)
	}

	switch te.Name {
	case "list", "option":
		if err := argc(1); err != nil {
			return nil, err
		}
		elem, err := arg(0)
		if err != nil {
			return nil, err
		}
		if te.Name == "list" {
			return &types.List{Elem: elem}, nil
		}
		return &types.Option{Elem: elem}, nil
	case "result":
		if len(te.Args) > 2 {
			return nil, argc(2)
		}
		res := &types.Result{}
		for i, a := range te.Args {
			if a.Name == "_" && len(a.Args) == 0 {
				continue
			}
			t, err := arg(i)
			if err != nil {
				return nil, err
			}
			if i == 0 {
				res.OK = t
			} else {
				res.Err = t
			}
		}
		return res, nil
	case "tuple":
		tup := &types.Tuple{}
		for i := range te.Args {
			t, err := arg(i)
			if err != nil {
				return nil, err
			}
			tup.Elems = append(tup.Elems, t)
		}
		return tup, nil
	case "own", "borrow":
		if err := argc(1); err != nil {
			return nil, err
		}
		n, ok := named(te.Args[0].Name).(*types.Named)
		if !ok {
			return nil, errors.TypeResolution([]string{te.Args[0].Name}, "undefined resource %s", te.Args[0].Name)
		}
		if _, ok := types.Underlying(n).(*types.Resource); !ok {
			return nil, errors.TypeResolution([]string{n.Name}, "%s is not a resource", n.Name)
		}
		return &types.Handle{Resource: n, Borrow: te.Name == "borrow"}, nil
	}

	if len(te.Args) > 0 {
		return nil, errors.TypeResolution([]string{te.Name}, "%s takes no type arguments", te.Name)
	}
	if p, ok := types.PrimitiveByName(te.Name); ok {
		return p, nil
	}
	if t := named(te.Name); t != nil {
		if n, ok := t.(*types.Named); ok {
			if _, ok := types.Underlying(n).(*types.Resource); ok {
				return types.Own(n), nil
			}
		}
		return t, nil
	}
	return nil, errors.TypeResolution([]string{te.Name}, "undefined type %s", te.Name)
}
