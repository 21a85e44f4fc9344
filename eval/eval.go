package eval

import (
	"context"

	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/syntax"
	"github.com/wippyai/wasm-repl/types"
	"github.com/wippyai/wasm-repl/value"
)

// Target is a callable export of an instantiated component
type Target struct {
	Func      *types.Function
	Component string
	// Instance is the engine instance ID results are tagged with
	Instance string
}

// String returns "component::iface#func"
func (t Target) String() string {
	return t.Component + "::" + t.Func.Name.String()
}

// Env is what the evaluator needs from the session.
type Env interface {
	// Functions returns the exports matching a possibly qualified name,
	// across instantiated components, in load order.
	Functions(name syntax.Name) []Target
	// Invoke calls a target with engine-representation arguments.
	Invoke(ctx context.Context, t Target, args []any) ([]any, error)
	// Live reports whether an engine instance is still registered.
	Live(instance string) bool
	// ResolveType resolves a type written after "as".
	ResolveType(te *syntax.TypeExpr) (types.Type, error)
}

// Result is the outcome of one evaluated line.
type Result struct {
	// Value is nil for calls without results and for function references
	Value value.Value
	// Func is set when the line names a function without calling it
	Func *Target
	// Bound is the variable an assignment bound
	Bound string
}

// Evaluator evaluates parsed lines against a Scope. A failed evaluation
// never changes the Scope.
type Evaluator struct {
	scope *Scope
	env   Env
}

// New creates an evaluator over scope and env
func New(scope *Scope, env Env) *Evaluator {
	return &Evaluator{scope: scope, env: env}
}

// Scope returns the evaluator's scope
func (e *Evaluator) Scope() *Scope { return e.scope }

// Eval evaluates an assignment or expression. Commands are rejected; the
// session dispatches them.
func (e *Evaluator) Eval(ctx context.Context, node syntax.Node) (*Result, error) {
	switch n := node.(type) {
	case *syntax.Assignment:
		res, err := e.expr(ctx, n.X)
		if err != nil {
			return nil, err
		}
		if res.Value == nil {
			what := "expression"
			if res.Func != nil {
				what = res.Func.String() + " is a function and"
			}
			return nil, errors.New(errors.PhaseEval, errors.KindTypeMismatch).
				Path(n.Name).
				Detail("%s produces no value to bind", what).
				Build()
		}
		e.scope.Set(n.Name, res.Value)
		res.Bound = n.Name
		return res, nil
	case syntax.Expr:
		return e.expr(ctx, n)
	case *syntax.Command:
		return nil, errors.Unsupported(errors.PhaseEval, "command ."+n.Name+" is not an expression")
	case nil:
		return &Result{}, nil
	default:
		return nil, errors.Unsupported(errors.PhaseEval, "unknown input")
	}
}

// EvalExpr evaluates a single expression
func (e *Evaluator) EvalExpr(ctx context.Context, x syntax.Expr) (*Result, error) {
	return e.expr(ctx, x)
}

func (e *Evaluator) expr(ctx context.Context, x syntax.Expr) (*Result, error) {
	switch n := x.(type) {
	case *syntax.Ident:
		if !n.Name.Qualified() {
			if b, ok := e.scope.Get(n.Name.Func); ok {
				return &Result{Value: b.Value}, nil
			}
		}
		t, err := e.target(n.Name)
		if err != nil {
			if errors.HasKind(err, errors.KindNotFound) && !n.Name.Qualified() {
				return nil, errors.UnboundVariable(n.Name.Func)
			}
			return nil, err
		}
		return &Result{Func: &t}, nil
	case *syntax.Call:
		v, err := e.call(ctx, n)
		if err != nil {
			return nil, err
		}
		return &Result{Value: v}, nil
	default:
		v, err := value.Infer(e.leafEnv(ctx), x)
		if err != nil {
			return nil, err
		}
		return &Result{Value: v}, nil
	}
}

// target resolves a callee to exactly one export
func (e *Evaluator) target(name syntax.Name) (Target, error) {
	targets := e.env.Functions(name)
	switch len(targets) {
	case 0:
		return Target{}, errors.NotFound(errors.PhaseEval, "function", name.String())
	case 1:
		return targets[0], nil
	}
	providers := make([]string, len(targets))
	for i, t := range targets {
		providers[i] = t.Component
	}
	return Target{}, errors.AmbiguousName(name.String(), providers)
}

// call runs the call pipeline: resolve, arity, coerce, invoke, decode.
// Several results come back as a tuple, none as nil.
func (e *Evaluator) call(ctx context.Context, c *syntax.Call) (value.Value, error) {
	t, err := e.target(c.Callee)
	if err != nil {
		return nil, err
	}
	fn := t.Func
	if len(c.Args) != len(fn.Params) {
		return nil, errors.Arity(fn.Name.String(), len(fn.Params), len(c.Args))
	}

	env := e.leafEnv(ctx)
	args := make([]value.Value, len(c.Args))
	for i, a := range c.Args {
		v, err := value.Coerce(env, a, fn.Params[i].Type)
		if err != nil {
			if ee, ok := err.(*errors.Error); ok && ee.Kind == errors.KindTypeMismatch {
				ee.Path = append([]string{fn.Name.Func, fn.Params[i].Name}, ee.Path...)
			}
			return nil, err
		}
		args[i] = v
	}

	raw, err := value.ToEngine(args, e.env.Live)
	if err != nil {
		return nil, err
	}
	out, err := e.env.Invoke(ctx, t, raw)
	if err != nil {
		if errors.KindOf(err) == "" {
			return nil, errors.Trap(t.String(), err)
		}
		return nil, err
	}
	results, err := value.FromEngine(out, fn.ResultTypes(), t.Instance)
	if err != nil {
		return nil, err
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	}
	tt := &types.Tuple{Elems: fn.ResultTypes()}
	return &value.Tuple{T: tt, Elems: results}, nil
}

func (e *Evaluator) leafEnv(ctx context.Context) *leafEnv {
	return &leafEnv{ctx: ctx, e: e}
}

// leafEnv lets value coercion reach variables and nested calls
type leafEnv struct {
	ctx context.Context
	e   *Evaluator
}

func (l *leafEnv) Lookup(name string) (value.Value, bool) {
	b, ok := l.e.scope.Get(name)
	return b.Value, ok
}

func (l *leafEnv) Call(c *syntax.Call) (value.Value, error) {
	return l.e.call(l.ctx, c)
}

func (l *leafEnv) ResolveType(te *syntax.TypeExpr) (types.Type, error) {
	return l.e.env.ResolveType(te)
}
