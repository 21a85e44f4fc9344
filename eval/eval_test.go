package eval

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/syntax"
	"github.com/wippyai/wasm-repl/types"
	"github.com/wippyai/wasm-repl/value"
)

type export struct {
	fn   *types.Function
	comp string
	impl func(args []any) ([]any, error)
}

type fakeEnv struct {
	exports []export
	dead    map[string]bool
	calls   int
}

func (f *fakeEnv) Functions(name syntax.Name) []Target {
	var out []Target
	for _, ex := range f.exports {
		if ex.fn.Name.Func != name.Func {
			continue
		}
		if name.Component != "" && name.Component != ex.comp {
			continue
		}
		if name.Interface != "" && !types.MatchesInterface(ex.fn.Name.Interface, name.Interface) {
			continue
		}
		out = append(out, Target{Func: ex.fn, Component: ex.comp, Instance: ex.comp + "-1"})
	}
	return out
}

func (f *fakeEnv) Invoke(_ context.Context, t Target, args []any) ([]any, error) {
	f.calls++
	for _, ex := range f.exports {
		if ex.fn == t.Func && ex.comp == t.Component {
			return ex.impl(args)
		}
	}
	return nil, errors.NotFound(errors.PhaseRuntime, "export", t.String())
}

func (f *fakeEnv) Live(instance string) bool { return !f.dead[instance] }

func (f *fakeEnv) ResolveType(te *syntax.TypeExpr) (types.Type, error) {
	return value.ResolveTypeExpr(te, func(string) types.Type { return nil })
}

var blob = &types.Named{Name: "blob", Def: &types.Resource{Name: "blob"}}

func fn(iface, name string, params []types.Param, results ...types.Type) *types.Function {
	f := &types.Function{Name: types.QualifiedName{Interface: iface, Func: name}, Params: params}
	for _, r := range results {
		f.Results = append(f.Results, types.Param{Type: r})
	}
	return f
}

func newFake() *fakeEnv {
	str := []types.Param{{Name: "input", Type: types.String}}
	return &fakeEnv{
		dead: make(map[string]bool),
		exports: []export{
			{fn: fn("", "uppercase", str, types.String), comp: "main", impl: func(args []any) ([]any, error) {
				return []any{strings.ToUpper(args[0].(string))}, nil
			}},
			{fn: fn("", "add", []types.Param{{Name: "a", Type: types.U32}, {Name: "b", Type: types.U32}}, types.U32), comp: "main", impl: func(args []any) ([]any, error) {
				return []any{args[0].(uint32) + args[1].(uint32)}, nil
			}},
			{fn: fn("", "boom", nil), comp: "main", impl: func([]any) ([]any, error) {
				return nil, errors.Trap("boom", stderrors.New("unreachable executed"))
			}},
			{fn: fn("", "crash", nil), comp: "main", impl: func([]any) ([]any, error) {
				return nil, stderrors.New("wasm error: integer divide by zero")
			}},
			{fn: fn("", "log", str), comp: "main", impl: func([]any) ([]any, error) {
				return nil, nil
			}},
			{fn: fn("", "split", str, types.String, types.String), comp: "main", impl: func(args []any) ([]any, error) {
				head, tail, _ := strings.Cut(args[0].(string), " ")
				return []any{head, tail}, nil
			}},
			{fn: fn("", "bad", nil, types.String), comp: "main", impl: func([]any) ([]any, error) {
				return []any{int32(1)}, nil
			}},
			{fn: fn("", "make", nil, types.Own(blob)), comp: "main", impl: func([]any) ([]any, error) {
				return []any{uint32(7)}, nil
			}},
			{fn: fn("", "consume", []types.Param{{Name: "b", Type: types.Own(blob)}}, types.U32), comp: "main", impl: func(args []any) ([]any, error) {
				return []any{args[0].(uint32)}, nil
			}},
			{fn: fn("local:demo/greeter", "greet", nil, types.String), comp: "a", impl: func([]any) ([]any, error) {
				return []any{"from a"}, nil
			}},
			{fn: fn("local:demo/greeter", "greet", nil, types.String), comp: "b", impl: func([]any) ([]any, error) {
				return []any{"from b"}, nil
			}},
		},
	}
}

func run(t *testing.T, ev *Evaluator, line string) (*Result, error) {
	t.Helper()
	node, err := syntax.Parse(line)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", line, err)
	}
	return ev.Eval(context.Background(), node)
}

func mustRun(t *testing.T, ev *Evaluator, line string) *Result {
	t.Helper()
	res, err := run(t, ev, line)
	if err != nil {
		t.Fatalf("%q failed: %v", line, err)
	}
	return res
}

func TestUppercaseScenario(t *testing.T) {
	ev := New(NewScope(), newFake())

	res := mustRun(t, ev, `s = "hello"`)
	if res.Bound != "s" {
		t.Errorf("Bound = %q", res.Bound)
	}
	b, ok := ev.Scope().Get("s")
	if !ok || !value.Equal(b.Value, value.Str("hello")) {
		t.Fatalf("s = %+v", b)
	}

	res = mustRun(t, ev, "uppercase(s)")
	if !value.Equal(res.Value, value.Str("HELLO")) {
		t.Errorf("uppercase(s) = %v", res.Value)
	}
	if b, _ := ev.Scope().Get("s"); !value.Equal(b.Value, value.Str("hello")) {
		t.Errorf("s changed to %s", value.Format(b.Value))
	}
}

func TestRebinding(t *testing.T) {
	ev := New(NewScope(), newFake())
	mustRun(t, ev, "x = 1")
	mustRun(t, ev, "x = 2")
	res := mustRun(t, ev, "x")
	if !value.Equal(res.Value, value.S64(2)) {
		t.Errorf("x = %s, want 2", value.FormatTyped(res.Value))
	}
	if ev.Scope().Len() != 1 {
		t.Errorf("Len = %d", ev.Scope().Len())
	}
}

func TestArityLeavesScopeUnchanged(t *testing.T) {
	env := newFake()
	ev := New(NewScope(), env)
	mustRun(t, ev, "y = 5")
	before := ev.Scope().Snapshot()

	_, err := run(t, ev, "z = add(1)")
	if !errors.HasKind(err, errors.KindArity) {
		t.Fatalf("error = %v, want arity", err)
	}
	if env.calls != 0 {
		t.Errorf("engine called %d times", env.calls)
	}
	after := ev.Scope().Snapshot()
	if len(after) != len(before) {
		t.Errorf("scope changed: %v", ev.Scope().Names())
	}
	if b, _ := ev.Scope().Get("y"); !value.Equal(b.Value, value.S64(5)) {
		t.Errorf("y = %s", value.Format(b.Value))
	}
}

func TestCallErrors(t *testing.T) {
	tests := []struct {
		line string
		kind errors.Kind
	}{
		{"nope", errors.KindUnboundVariable},
		{"nope()", errors.KindNotFound},
		{"greet()", errors.KindAmbiguousName},
		{"greet", errors.KindAmbiguousName},
		{"add(1, -1)", errors.KindTypeMismatch},
		{`add(1, "x")`, errors.KindTypeMismatch},
		{"boom()", errors.KindTrap},
		{"crash()", errors.KindTrap},
		{"bad()", errors.KindMarshal},
		{"w = boom()", errors.KindTrap},
		{`v = log("x")`, errors.KindTypeMismatch},
		{"u = uppercase", errors.KindTypeMismatch},
		{"[]", errors.KindTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			ev := New(NewScope(), newFake())
			_, err := run(t, ev, tt.line)
			if !errors.HasKind(err, tt.kind) {
				t.Errorf("%q error = %v, want %s", tt.line, err, tt.kind)
			}
			if ev.Scope().Len() != 0 {
				t.Errorf("failed line bound %v", ev.Scope().Names())
			}
		})
	}
}

func TestQualifiedCalls(t *testing.T) {
	ev := New(NewScope(), newFake())
	for line, want := range map[string]string{
		"a::greet()":                    "from a",
		"b::greeter#greet()":            "from b",
		"b::local:demo/greeter#greet()": "from b",
	} {
		res := mustRun(t, ev, line)
		if !value.Equal(res.Value, value.Str(want)) {
			t.Errorf("%s = %v, want %q", line, res.Value, want)
		}
	}
}

func TestResults(t *testing.T) {
	ev := New(NewScope(), newFake())

	res := mustRun(t, ev, `log("x")`)
	if res.Value != nil || res.Func != nil {
		t.Errorf("log result = %+v", res)
	}

	res = mustRun(t, ev, `parts = split("a b")`)
	tup, ok := res.Value.(*value.Tuple)
	if !ok || len(tup.Elems) != 2 || !value.Equal(tup.Elems[1], value.Str("b")) {
		t.Errorf("split = %v", res.Value)
	}

	res = mustRun(t, ev, "uppercase")
	if res.Func == nil || res.Func.Func.Name.Func != "uppercase" || res.Value != nil {
		t.Errorf("function reference = %+v", res)
	}

	res = mustRun(t, ev, `uppercase(uppercase("a"))`)
	if !value.Equal(res.Value, value.Str("A")) {
		t.Errorf("nested = %v", res.Value)
	}

	res = mustRun(t, ev, "add(2, 3)")
	if !value.Equal(res.Value, value.U32(5)) {
		t.Errorf("add = %s", value.FormatTyped(res.Value))
	}
}

func TestTypeMismatchPath(t *testing.T) {
	ev := New(NewScope(), newFake())
	_, err := run(t, ev, `add(1, "x")`)
	var e *errors.Error
	if !stderrors.As(err, &e) || len(e.Path) < 2 || e.Path[0] != "add" || e.Path[1] != "b" {
		t.Errorf("error = %v, want path add.b", err)
	}
}

func TestStaleHandle(t *testing.T) {
	env := newFake()
	ev := New(NewScope(), env)
	mustRun(t, ev, "h = make()")
	res := mustRun(t, ev, "consume(h)")
	if !value.Equal(res.Value, value.U32(7)) {
		t.Errorf("consume = %v", res.Value)
	}

	env.dead["main-1"] = true
	_, err := run(t, ev, "consume(h)")
	if !errors.HasKind(err, errors.KindStaleHandle) {
		t.Errorf("error = %v, want stale_handle", err)
	}
}

func TestScope(t *testing.T) {
	s := NewScope()
	s.Set("b", value.Str("x"))
	s.Set("a", value.U32(1))
	if got := s.Names(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Names = %v", got)
	}
	b, _ := s.Get("a")
	if b.Type != types.U32 || b.Name != "a" {
		t.Errorf("binding = %+v", b)
	}
	snap := s.Snapshot()
	s.Set("c", value.True)
	if len(snap) != 2 {
		t.Error("snapshot shares storage with the scope")
	}
}
