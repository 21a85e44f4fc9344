package session

import (
	"bytes"
	"context"
	stderrors "errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/wippyai/wasm-repl/engine"
	"github.com/wippyai/wasm-repl/enginetest"
	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/merge"
	"github.com/wippyai/wasm-repl/resolve"
)

const mainWIT = `world main {
  export uppercase: func(input: string) -> string;
}`

const appWIT = `world app {
  import greet: func() -> string;
  export run: func() -> string;
}`

const loggerWIT = `
package local:app;

interface logger {
  log: func(msg: string) -> u32;
}

world app {
  import logger;
  export run: func() -> u32;
}
`

const sinkWIT = `
package local:app;

interface logger {
  log: func(msg: string) -> u32;
}

world sink {
  export logger;
}
`

type fixture struct {
	eng   *enginetest.Engine
	files map[string][]byte
	s     *Session
}

func newFixture() *fixture {
	f := &fixture{eng: enginetest.New(), files: make(map[string][]byte)}
	f.s = New(Config{Engine: f.eng, Merger: merge.New(), ReadFile: f.read})
	f.add("main.wasm", uppercaseComponent())
	f.add("app.wasm", appComponent())
	f.add("impl.wasm", greeter(`world impl { export greet: func() -> string; }`, "hello"))
	f.add("other.wasm", greeter(`world other { export greet: func() -> string; }`, "howdy"))
	f.add("bad.wasm", &enginetest.Component{WIT: `world bad { export greet: func() -> u32; }`})
	f.add("adapter.wasm", greeter(`world adapter { export greet: func() -> string; }`, "composed"))
	return f
}

func (f *fixture) read(path string) ([]byte, error) {
	b, ok := f.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return b, nil
}

func (f *fixture) add(path string, c *enginetest.Component) {
	f.files[path] = f.eng.Binary(c)
}

func (f *fixture) target(t *testing.T, path string) *Component {
	t.Helper()
	c, err := f.s.LoadTarget(context.Background(), path, "")
	if err != nil {
		t.Fatalf("LoadTarget(%s): %v", path, err)
	}
	return c
}

func (f *fixture) exec(t *testing.T, line string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := f.s.Exec(context.Background(), &buf, line); err != nil {
		t.Fatalf("%s: %v", line, err)
	}
	return buf.String()
}

func (f *fixture) fail(t *testing.T, line string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	err := f.s.Exec(context.Background(), &buf, line)
	if err == nil {
		t.Fatalf("%s: expected an error, output %q", line, buf.String())
	}
	return buf.String(), err
}

func uppercaseComponent() *enginetest.Component {
	return &enginetest.Component{
		WIT: mainWIT,
		Exports: map[string]enginetest.Func{
			"uppercase": func(_ context.Context, _ engine.ImportTable, args []any) ([]any, error) {
				return []any{strings.ToUpper(args[0].(string))}, nil
			},
		},
	}
}

func appComponent() *enginetest.Component {
	return &enginetest.Component{
		WIT: appWIT,
		Exports: map[string]enginetest.Func{
			"run": func(ctx context.Context, imports engine.ImportTable, _ []any) ([]any, error) {
				out, err := enginetest.Call(ctx, imports, "greet")
				if err != nil {
					return nil, err
				}
				return []any{"run: " + out[0].(string)}, nil
			},
		},
	}
}

func greeter(wit, greeting string) *enginetest.Component {
	return &enginetest.Component{
		WIT: wit,
		Exports: map[string]enginetest.Func{
			"greet": func(context.Context, engine.ImportTable, []any) ([]any, error) {
				return []any{greeting}, nil
			},
		},
	}
}

func TestUppercaseScenario(t *testing.T) {
	f := newFixture()
	f.target(t, "main.wasm")
	plan, err := f.s.Resolve(context.Background())
	if err != nil || !plan.Total() {
		t.Fatalf("Resolve: %v", err)
	}

	if out := f.exec(t, `x = uppercase("hello")`); out != "" {
		t.Errorf("assignment echoed %q", out)
	}
	if out := f.exec(t, "x"); out != "\"HELLO\": string\n" {
		t.Errorf("x = %q", out)
	}
	if out := f.exec(t, "uppercase"); out != "main::uppercase: func(input: string) -> string\n" {
		t.Errorf("function reference = %q", out)
	}
	if out := f.exec(t, `uppercase(x)`); out != "\"HELLO\": string\n" {
		t.Errorf("call with variable = %q", out)
	}
}

func TestRebinding(t *testing.T) {
	f := newFixture()
	f.target(t, "main.wasm")
	f.s.Resolve(context.Background())

	f.exec(t, `x = uppercase("a")`)
	f.exec(t, `x = uppercase("b")`)
	if out := f.exec(t, "x"); out != "\"B\": string\n" {
		t.Errorf("x = %q", out)
	}
	if f.s.Scope().Len() != 1 {
		t.Errorf("scope has %d bindings", f.s.Scope().Len())
	}
}

func TestArityLeavesScopeUnchanged(t *testing.T) {
	f := newFixture()
	f.target(t, "main.wasm")
	f.s.Resolve(context.Background())

	_, err := f.fail(t, `y = uppercase("a", "b")`)
	if !errors.HasKind(err, errors.KindArity) {
		t.Errorf("got %v, want arity error", err)
	}
	if f.s.Scope().Len() != 0 {
		t.Error("failed assignment bound a variable")
	}
}

func TestLinkScenario(t *testing.T) {
	f := newFixture()
	target := f.target(t, "app.wasm")

	_, err := f.s.Resolve(context.Background())
	var unresolved *errors.UnresolvedImportsError
	if !stderrors.As(err, &unresolved) || len(unresolved.Imports) != 1 || unresolved.Imports[0].Function != "greet" {
		t.Fatalf("got %v, want greet unresolved", err)
	}
	if target.State != Loaded {
		t.Fatal("partial plan instantiated the target")
	}

	out := f.exec(t, ".link greet impl.wasm")
	if !strings.Contains(out, "app instantiated") {
		t.Errorf("link output %q", out)
	}
	e, ok := target.Plan.Lookup(target.Store.Imports()[0].Name)
	if !ok || e.Kind != resolve.KindLink || e.Provider != "impl" {
		t.Errorf("greet entry = %+v", e)
	}
	if out := f.exec(t, "run()"); out != "\"run: hello\": string\n" {
		t.Errorf("run() = %q", out)
	}
}

func TestLinkSignatureMismatch(t *testing.T) {
	f := newFixture()
	target := f.target(t, "app.wasm")

	_, err := f.fail(t, ".link greet bad.wasm")
	if !errors.HasKind(err, errors.KindSignatureMismatch) {
		t.Errorf("got %v, want signature mismatch", err)
	}
	if target.State != Loaded {
		t.Error("mismatched link instantiated the target")
	}
	out := f.exec(t, ".imports")
	if !strings.Contains(out, "unresolved: signature mismatch with bad") || !strings.Contains(out, "! ") {
		t.Errorf(".imports = %q", out)
	}

	// a mismatched link never falls through, but a new link replaces it
	f.fail(t, ".load other.wasm")
	if target.State != Loaded {
		t.Error("component provider overrode the link")
	}
	f.exec(t, ".link greet impl.wasm")
	if target.State != Instantiated {
		t.Fatal("relinking did not instantiate the target")
	}
	if out := f.exec(t, "app::run()"); out != "\"run: hello\": string\n" {
		t.Errorf("run() = %q", out)
	}
}

func TestComponentProviderOrder(t *testing.T) {
	f := newFixture()
	target := f.target(t, "app.wasm")

	out := f.exec(t, ".load other.wasm")
	if !strings.Contains(out, "loaded other as provider (instantiated)") || !strings.Contains(out, "app instantiated") {
		t.Errorf(".load output %q", out)
	}
	f.exec(t, ".load impl.wasm")
	f.exec(t, ".resolve")

	e, _ := target.Plan.Lookup(target.Store.Imports()[0].Name)
	if e.Kind != resolve.KindComponent || e.Provider != "other" {
		t.Errorf("greet entry = %+v, want the earlier component", e)
	}

	// both providers export greet
	_, err := f.fail(t, "greet()")
	if !errors.HasKind(err, errors.KindAmbiguousName) {
		t.Errorf("got %v, want ambiguous name", err)
	}
	if out := f.exec(t, "impl::greet()"); out != "\"hello\": string\n" {
		t.Errorf("impl::greet() = %q", out)
	}
}

func TestAdapterIsSearchedLast(t *testing.T) {
	f := newFixture()
	target := f.target(t, "app.wasm")

	f.exec(t, ".adapter adapter.wasm")
	e, _ := target.Plan.Lookup(target.Store.Imports()[0].Name)
	if e.Kind != resolve.KindAdapter {
		t.Fatalf("greet entry = %+v", e)
	}

	f.exec(t, ".load impl.wasm")
	f.exec(t, ".resolve")
	e, _ = target.Plan.Lookup(target.Store.Imports()[0].Name)
	if e.Kind != resolve.KindComponent || e.Provider != "impl" {
		t.Errorf("greet entry = %+v, want the component over the adapter", e)
	}
}

func TestInterfaceLink(t *testing.T) {
	f := newFixture()
	f.add("logger.wasm", &enginetest.Component{
		WIT: loggerWIT,
		Exports: map[string]enginetest.Func{
			"run": func(ctx context.Context, imports engine.ImportTable, _ []any) ([]any, error) {
				return enginetest.Call(ctx, imports, "local:app/logger#log", "hi")
			},
		},
	})
	f.add("sink.wasm", &enginetest.Component{
		WIT: sinkWIT,
		Exports: map[string]enginetest.Func{
			"local:app/logger#log": func(_ context.Context, _ engine.ImportTable, args []any) ([]any, error) {
				return []any{uint32(len(args[0].(string)))}, nil
			},
		},
	})
	f.target(t, "logger.wasm")

	f.exec(t, ".link logger sink.wasm")
	if got := f.s.Links(); len(got) != 1 || !got[0].Interface {
		t.Fatalf("links = %+v", got)
	}
	if out := f.exec(t, "run()"); out != "2: u32\n" {
		t.Errorf("run() = %q", out)
	}
}

func TestCompose(t *testing.T) {
	f := newFixture()
	target := f.target(t, "app.wasm")

	out := f.exec(t, ".compose adapter.wasm")
	if !strings.Contains(out, "app replaced by composite (0 imports, 2 exports)") || !strings.Contains(out, "app instantiated") {
		t.Errorf(".compose output %q", out)
	}
	if !target.Plan.Total() || target.State != Instantiated {
		t.Fatal("composite is not instantiated")
	}
	if out := f.exec(t, "run()"); out != "\"run: composed\": string\n" {
		t.Errorf("run() = %q", out)
	}
	if out := f.exec(t, ".imports"); out != "app has no imports\n" {
		t.Errorf(".imports = %q", out)
	}
}

func TestComposeFailureLeavesTarget(t *testing.T) {
	f := newFixture()
	target := f.target(t, "app.wasm")
	f.exec(t, ".link greet impl.wasm")
	before := target.Instance.ID()

	_, err := f.fail(t, ".compose bad.wasm")
	if !errors.HasKind(err, errors.KindComposition) {
		t.Errorf("got %v, want composition error", err)
	}
	if target.Instance == nil || target.Instance.ID() != before {
		t.Fatal("failed composition replaced the target instance")
	}
	if out := f.exec(t, "run()"); out != "\"run: hello\": string\n" {
		t.Errorf("run() = %q", out)
	}

	if _, err := f.fail(t, ".compose missing.wasm"); !errors.HasKind(err, errors.KindComposition) {
		t.Errorf("missing adapter: got %v", err)
	}
}

func TestResolveReplacesInstance(t *testing.T) {
	f := newFixture()
	target := f.target(t, "main.wasm")
	f.s.Resolve(context.Background())
	old := target.Instance.ID()

	f.exec(t, ".resolve")
	if target.Instance.ID() == old {
		t.Error(".resolve kept the old instance")
	}
	if f.s.Live(old) {
		t.Error("old instance is still live")
	}
	if f.eng.Live(old) {
		t.Error("old instance was not closed")
	}
}

func TestNotInstantiatedHint(t *testing.T) {
	f := newFixture()
	f.target(t, "app.wasm")

	out, err := f.fail(t, "run()")
	if !errors.HasKind(err, errors.KindNotFound) {
		t.Errorf("got %v", err)
	}
	if !strings.Contains(out, "app is not instantiated") {
		t.Errorf("output %q", out)
	}
}

func TestBuiltins(t *testing.T) {
	f := newFixture()
	f.target(t, "main.wasm")
	f.s.Resolve(context.Background())

	tests := []struct {
		line string
		want string
	}{
		{".help", ".imports [component]"},
		{"?", ".compose <adapter-path>"},
		{"? link", "Links win over every"},
		{".help .quit", "end the session"},
		{".exports", "uppercase: func(input: string) -> string"},
		{".imports", "main has no imports"},
		{".type uppercase", "uppercase: func(input: string) -> string"},
		{".vars", "no variables"},
		{".components", "main"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if out := f.exec(t, tt.line); !strings.Contains(out, tt.want) {
				t.Errorf("%s = %q, want it to contain %q", tt.line, out, tt.want)
			}
		})
	}

	f.exec(t, `x = uppercase("v")`)
	if out := f.exec(t, ".vars"); out != "  x = \"V\": string\n" {
		t.Errorf(".vars = %q", out)
	}

	f.exec(t, ".quit")
	if !f.s.Done() {
		t.Error(".quit did not end the session")
	}
}

func TestBuiltinErrors(t *testing.T) {
	f := newFixture()
	f.target(t, "app.wasm")

	tests := []struct {
		line string
		kind errors.Kind
	}{
		{".nope", errors.KindNotFound},
		{".type", errors.KindInvalidInput},
		{".link greet", errors.KindInvalidInput},
		{".link missing impl.wasm", errors.KindNotFound},
		{".link greet missing.wasm", errors.KindInvalidData},
		{".type nothing", errors.KindNotFound},
		{".exports ghost", errors.KindNotFound},
		{".help ghost", errors.KindNotFound},
		{"x = ", errors.KindSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := f.fail(t, tt.line)
			if !errors.HasKind(err, tt.kind) {
				t.Errorf("got %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.files["garbage.wasm"] = []byte("not wasm")

	if _, err := f.s.LoadTarget(ctx, "missing.wasm", ""); !errors.HasKind(err, errors.KindInvalidData) {
		t.Errorf("missing file: got %v", err)
	}
	if _, err := f.s.LoadTarget(ctx, "garbage.wasm", ""); err == nil {
		t.Error("garbage binary loaded")
	}
	f.target(t, "main.wasm")
	if _, err := f.s.LoadTarget(ctx, "app.wasm", ""); !errors.HasKind(err, errors.KindInvalidInput) {
		t.Errorf("second target: got %v", err)
	}
	if _, err := f.s.Load(ctx, "impl.wasm", "main", RoleProvider); !errors.HasKind(err, errors.KindInvalidInput) {
		t.Errorf("duplicate name: got %v", err)
	}
}

func TestComplete(t *testing.T) {
	f := newFixture()
	f.target(t, "main.wasm")
	f.s.Resolve(context.Background())
	f.exec(t, `x = uppercase("v")`)

	tests := []struct {
		line string
		want []string
	}{
		{".he", []string{".help"}},
		{"up", []string{"uppercase"}},
		{"uppercase(x", []string{"uppercase(x"}},
		{"zzz", nil},
	}
	for _, tt := range tests {
		got := f.s.Complete(tt.line)
		if len(got) != len(tt.want) {
			t.Errorf("Complete(%q) = %v, want %v", tt.line, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Complete(%q) = %v, want %v", tt.line, got, tt.want)
			}
		}
	}
}

func TestClose(t *testing.T) {
	f := newFixture()
	target := f.target(t, "main.wasm")
	f.s.Resolve(context.Background())
	id := target.Instance.ID()

	if err := f.s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if target.State != Loaded || f.eng.Live(id) {
		t.Error("instance still open after Close")
	}
}

const filesWIT = `
package local:files;

interface fs {
  resource file;
  open: func() -> own<file>;
  size: func(f: borrow<file>) -> u32;
}

world files {
  export fs;
}
`

func filesComponent() *enginetest.Component {
	return &enginetest.Component{
		WIT: filesWIT,
		Exports: map[string]enginetest.Func{
			"local:files/fs#open": func(context.Context, engine.ImportTable, []any) ([]any, error) {
				return []any{uint32(4)}, nil
			},
			"local:files/fs#size": func(_ context.Context, _ engine.ImportTable, args []any) ([]any, error) {
				return []any{args[0].(uint32) + 1}, nil
			},
		},
	}
}

func TestOwnedHandleBorrowed(t *testing.T) {
	f := newFixture()
	f.add("files.wasm", filesComponent())
	f.target(t, "files.wasm")
	if _, err := f.s.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	f.exec(t, "h = open()")
	if out := f.exec(t, "size(h)"); out != "5: u32\n" {
		t.Errorf("size(h) = %q", out)
	}
	if out := f.exec(t, "fs#size(h)"); out != "5: u32\n" {
		t.Errorf("fs#size(h) = %q", out)
	}
}

func TestHandleStaleAfterReplace(t *testing.T) {
	for _, cmd := range []string{".resolve", ".compose adapter.wasm"} {
		t.Run(cmd, func(t *testing.T) {
			f := newFixture()
			f.add("files.wasm", filesComponent())
			f.target(t, "files.wasm")
			if _, err := f.s.Resolve(context.Background()); err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			f.exec(t, "h = open()")

			f.exec(t, cmd)
			if _, err := f.fail(t, "size(h)"); !errors.HasKind(err, errors.KindStaleHandle) {
				t.Errorf("got %v, want stale handle", err)
			}

			// a handle from the new instance works
			f.exec(t, "h = open()")
			if out := f.exec(t, "size(h)"); out != "5: u32\n" {
				t.Errorf("size(h) = %q", out)
			}
		})
	}
}

func TestExportsListsResources(t *testing.T) {
	f := newFixture()
	f.add("files.wasm", filesComponent())
	f.add("dirs.wasm", &enginetest.Component{WIT: `
package local:dirs;

interface fs {
  resource dir {
    constructor(path: string);
    list: func() -> list<string>;
  }
}

world dirs {
  export fs;
}
`})

	f.target(t, "files.wasm")
	if out := f.exec(t, ".exports"); !strings.Contains(out, "  resource file\n") {
		t.Errorf(".exports = %q", out)
	}

	f.exec(t, ".load dirs.wasm")

	out := f.exec(t, ".exports dirs")
	if !strings.Contains(out, "  resource dir (not callable: constructor, list)\n") {
		t.Errorf(".exports = %q", out)
	}
	if strings.Contains(out, "has no exports") {
		t.Errorf(".exports = %q", out)
	}
}
