package syntax

import (
	"math"
	"reflect"
	"testing"

	"github.com/wippyai/wasm-repl/errors"
)

func mustParse(t *testing.T, line string) Node {
	t.Helper()
	n, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", line, err)
	}
	return n
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want *Command
	}{
		{".imports", &Command{Name: "imports"}},
		{"  .type point  ", &Command{Name: "type", Args: []string{"point"}, Raw: "point"}},
		{".link greet my-impl.wasm", &Command{Name: "link", Args: []string{"greet", "my-impl.wasm"}, Raw: "greet my-impl.wasm"}},
		{`.compose "my adapter.wasm"`, &Command{Name: "compose", Args: []string{"my adapter.wasm"}, Raw: `"my adapter.wasm"`}},
		{"?", &Command{Name: "help"}},
		{"? link", &Command{Name: "help", Args: []string{"link"}, Raw: "link"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got := mustParse(t, tt.line)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %#v, want %#v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	for _, line := range []string{".", `.load "unterminated`} {
		node, err := Parse(line)
		if !errors.HasKind(err, errors.KindSyntax) {
			t.Errorf("Parse(%q) error = %v, want syntax error", line, err)
		}
		if node != nil {
			t.Errorf("Parse(%q) node = %#v, want nil", line, node)
		}
	}
}

func TestParseBlank(t *testing.T) {
	n, err := Parse("   \t")
	if n != nil || err != nil {
		t.Errorf("blank line = %v, %v", n, err)
	}
}

func TestParseAssignment(t *testing.T) {
	n := mustParse(t, `s = "hello"`)
	a, ok := n.(*Assignment)
	if !ok {
		t.Fatalf("got %T, want *Assignment", n)
	}
	if a.Name != "s" {
		t.Errorf("Name = %q", a.Name)
	}
	if lit, ok := a.X.(*StringLit); !ok || lit.V != "hello" {
		t.Errorf("X = %#v", a.X)
	}

	n = mustParse(t, "res = uppercase(s)")
	a = n.(*Assignment)
	call, ok := a.X.(*Call)
	if !ok || call.Callee.Func != "uppercase" || len(call.Args) != 1 {
		t.Fatalf("X = %#v", a.X)
	}
}

func TestParseLiterals(t *testing.T) {
	tests := []struct {
		line  string
		check func(t *testing.T, e Expr)
	}{
		{"42", func(t *testing.T, e Expr) {
			lit := e.(*IntLit)
			if lit.Mag != 42 || lit.Neg {
				t.Errorf("got %+v", lit)
			}
		}},
		{"-7", func(t *testing.T, e Expr) {
			lit := e.(*IntLit)
			if lit.Mag != 7 || !lit.Neg {
				t.Errorf("got %+v", lit)
			}
		}},
		{"0xff", func(t *testing.T, e Expr) {
			if lit := e.(*IntLit); lit.Mag != 255 {
				t.Errorf("got %+v", lit)
			}
		}},
		{"18446744073709551615", func(t *testing.T, e Expr) {
			if lit := e.(*IntLit); lit.Mag != math.MaxUint64 {
				t.Errorf("got %+v", lit)
			}
		}},
		{"1.5e3", func(t *testing.T, e Expr) {
			if lit := e.(*FloatLit); lit.V != 1500 {
				t.Errorf("got %+v", lit)
			}
		}},
		{"-inf", func(t *testing.T, e Expr) {
			if lit := e.(*FloatLit); !math.IsInf(lit.V, -1) {
				t.Errorf("got %+v", lit)
			}
		}},
		{"true", func(t *testing.T, e Expr) {
			if lit := e.(*BoolLit); !lit.V {
				t.Errorf("got %+v", lit)
			}
		}},
		{`"tab\there \u{1F600}"`, func(t *testing.T, e Expr) {
			if lit := e.(*StringLit); lit.V != "tab\there \U0001F600" {
				t.Errorf("got %q", lit.V)
			}
		}},
		{`'\n'`, func(t *testing.T, e Expr) {
			if lit := e.(*CharLit); lit.V != '\n' {
				t.Errorf("got %q", lit.V)
			}
		}},
		{"'é'", func(t *testing.T, e Expr) {
			if lit := e.(*CharLit); lit.V != 'é' {
				t.Errorf("got %q", lit.V)
			}
		}},
		{"[1, 2, 3,]", func(t *testing.T, e Expr) {
			if lit := e.(*ListLit); len(lit.Elems) != 3 {
				t.Errorf("got %d elems", len(lit.Elems))
			}
		}},
		{"{x: 1, y: -2}", func(t *testing.T, e Expr) {
			lit := e.(*RecordLit)
			if len(lit.Fields) != 2 || lit.Fields[0].Name != "x" || lit.Fields[1].Name != "y" {
				t.Errorf("got %+v", lit.Fields)
			}
		}},
		{"{x:1}", func(t *testing.T, e Expr) {
			if lit := e.(*RecordLit); len(lit.Fields) != 1 {
				t.Errorf("got %+v", lit.Fields)
			}
		}},
		{`(1, "a")`, func(t *testing.T, e Expr) {
			if lit := e.(*TupleLit); len(lit.Elems) != 2 {
				t.Errorf("got %+v", lit)
			}
		}},
		{"(5)", func(t *testing.T, e Expr) {
			if _, ok := e.(*IntLit); !ok {
				t.Errorf("parenthesized expression should unwrap, got %T", e)
			}
		}},
		{"()", func(t *testing.T, e Expr) {
			if lit := e.(*TupleLit); len(lit.Elems) != 0 {
				t.Errorf("got %+v", lit)
			}
		}},
		{"1 as u8", func(t *testing.T, e Expr) {
			a := e.(*Ascribe)
			if a.Type.String() != "u8" {
				t.Errorf("type = %s", a.Type)
			}
		}},
		{"[] as list<result<_, string>>", func(t *testing.T, e Expr) {
			a := e.(*Ascribe)
			if a.Type.String() != "list<result<_, string>>" {
				t.Errorf("type = %s", a.Type)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			e, ok := mustParse(t, tt.line).(Expr)
			if !ok {
				t.Fatalf("not an expression")
			}
			tt.check(t, e)
		})
	}
}

func TestParseCalls(t *testing.T) {
	tests := []struct {
		line   string
		callee Name
		args   int
	}{
		{"greet()", Name{Func: "greet"}, 0},
		{"add(1, 2)", Name{Func: "add"}, 2},
		{"outer(inner(1), [x, y])", Name{Func: "outer"}, 2},
		{"local:demo/greeter#hello(\"x\")", Name{Interface: "local:demo/greeter", Func: "hello"}, 1},
		{"wasi:cli/run@0.2.0#run()", Name{Interface: "wasi:cli/run@0.2.0", Func: "run"}, 0},
		{"impl::greet()", Name{Component: "impl", Func: "greet"}, 0},
		{"impl::greeter#hello(1)", Name{Component: "impl", Interface: "greeter", Func: "hello"}, 1},
		{"%as(1)", Name{Func: "as"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			call, ok := mustParse(t, tt.line).(*Call)
			if !ok {
				t.Fatalf("not a call")
			}
			if call.Callee != tt.callee {
				t.Errorf("callee = %+v, want %+v", call.Callee, tt.callee)
			}
			if len(call.Args) != tt.args {
				t.Errorf("args = %d, want %d", len(call.Args), tt.args)
			}
		})
	}

	call := mustParse(t, "outer(inner(1), [x, y])").(*Call)
	inner, ok := call.Args[0].(*Call)
	if !ok || inner.Callee.Func != "inner" {
		t.Errorf("nested call = %#v", call.Args[0])
	}
	list := call.Args[1].(*ListLit)
	if id, ok := list.Elems[0].(*Ident); !ok || id.Name.Func != "x" {
		t.Errorf("list elem = %#v", list.Elems[0])
	}
}

func TestParseIdent(t *testing.T) {
	id, ok := mustParse(t, "my-var").(*Ident)
	if !ok || id.Name.Func != "my-var" || id.Name.Qualified() {
		t.Fatalf("got %#v", id)
	}
	id = mustParse(t, "impl::greet").(*Ident)
	if id.Name.Component != "impl" || id.Name.String() != "impl::greet" {
		t.Errorf("got %+v", id.Name)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		line   string
		column int
	}{
		{"foo(", 5},
		{"foo(1,, 2)", 7},
		{"[1, 2", 6},
		{"{x: 1, x: 2}", 8},
		{"{1: 2}", 2},
		{`"open`, 1},
		{"1 2", 3},
		{"x = ", 5},
		{"$", 1},
		{"12abc", 1},
		{"99999999999999999999", 1},
		{"''", 1},
		{"'ab'", 1},
		{`"\q"`, 1},
		{"1 as", 5},
		{"a::()", 1},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := Parse(tt.line)
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, want syntax error", tt.line)
			}
			var serr *errors.Error
			if !asError(err, &serr) || serr.Kind != errors.KindSyntax {
				t.Fatalf("error = %v, want syntax error", err)
			}
			if serr.Column != tt.column {
				t.Errorf("column = %d, want %d (%v)", serr.Column, tt.column, err)
			}
		})
	}
}

func asError(err error, target **errors.Error) bool {
	e, ok := err.(*errors.Error)
	if ok {
		*target = e
	}
	return ok
}

func TestParseName(t *testing.T) {
	tests := []struct {
		in   string
		want Name
	}{
		{"greet", Name{Func: "greet"}},
		{"a#b", Name{Interface: "a", Func: "b"}},
		{"c::a#b", Name{Component: "c", Interface: "a", Func: "b"}},
		{"c::wasi:cli/run@0.2.0#run", Name{Component: "c", Interface: "wasi:cli/run@0.2.0", Func: "run"}},
	}
	for _, tt := range tests {
		if got := ParseName(tt.in); got != tt.want {
			t.Errorf("ParseName(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
		if got := tt.want.String(); got != tt.in {
			t.Errorf("String() = %q, want %q", got, tt.in)
		}
	}
}
