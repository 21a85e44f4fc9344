package descriptor

import (
	"sort"
	"testing"

	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/types"
)

const demoWIT = `
package local:demo@0.1.0;

// shared types
interface shapes {
  record point { x: s32, y: s32 }
  variant shape { circle(f64), rect(point), empty }
  enum color { red, green, blue }
  flags perms { read, write }
  type id = u64;
  resource blob {
    constructor();
    size: func() -> u32;
  }

  area: func(s: shape) -> f64;
  make: func() -> blob;
}

interface greeter {
  use shapes.{point, id as key};

  /* greets */
  hello: func(name: string) -> string;
  @since(version = 0.1.0)
  where: func(k: key) -> option<point>;
  split: func(s: string) -> (head: string, tail: list<string>);
}

world app {
  import greet: func() -> string;
  import host: interface {
    log: func(msg: string);
  }
  import shapes;
  export greeter;
  export uppercase: func(input: string) -> string;
}
`

const (
	shapesID  = "local:demo/shapes@0.1.0"
	greeterID = "local:demo/greeter@0.1.0"
)

func names(fns []*types.Function) []string {
	out := make([]string, len(fns))
	for i, f := range fns {
		out[i] = f.Name.String()
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseWorld(t *testing.T) {
	s, err := Parse([]byte(demoWIT))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if s.WorldName() != "app" {
		t.Errorf("WorldName = %q", s.WorldName())
	}

	wantImports := []string{"greet", "host#log", shapesID + "#area", shapesID + "#make"}
	if got := names(s.Imports()); !equalStrings(got, wantImports) {
		t.Errorf("Imports = %v, want %v", got, wantImports)
	}
	wantExports := []string{greeterID + "#hello", greeterID + "#where", greeterID + "#split", "uppercase"}
	if got := names(s.Exports()); !equalStrings(got, wantExports) {
		t.Errorf("Exports = %v, want %v", got, wantExports)
	}
	if got := s.ImportedInterfaces(); !equalStrings(got, []string{"host", shapesID}) {
		t.Errorf("ImportedInterfaces = %v", got)
	}
	if got := s.ExportedInterfaces(); !equalStrings(got, []string{greeterID}) {
		t.Errorf("ExportedInterfaces = %v", got)
	}
}

func TestParseTypes(t *testing.T) {
	s := MustParse(demoWIT)

	point := s.Type("point")
	if point == nil || point.Owner != shapesID {
		t.Fatalf("Type(point) = %+v", point)
	}
	if _, ok := point.Def.(*types.Record); !ok {
		t.Errorf("point.Def = %T", point.Def)
	}
	if s.Type("shapes.point") != point || s.Type(shapesID+".point") != point {
		t.Error("qualified lookups should return the same named type")
	}
	if s.Type("greeter.point") != point {
		t.Error("a used type without rename should be the defining named type")
	}

	key := s.Type("greeter.key")
	if key == nil || key.Def != s.Type("shapes.id") {
		t.Fatalf("Type(greeter.key) = %+v", key)
	}
	if types.Underlying(key) != types.U64 {
		t.Errorf("Underlying(key) = %v", types.Underlying(key))
	}

	where := s.Export(types.QualifiedName{Interface: greeterID, Func: "where"})
	if where == nil {
		t.Fatal("Export(where) = nil")
	}
	opt, ok := where.Results[0].Type.(*types.Option)
	if !ok || opt.Elem != point {
		t.Errorf("where result = %s", types.Render(where.Results[0].Type))
	}

	mk := s.Import(types.QualifiedName{Interface: shapesID, Func: "make"})
	h, ok := mk.Results[0].Type.(*types.Handle)
	if !ok || h.Borrow || h.Resource.Name != "blob" {
		t.Errorf("make result = %s, want own<blob>", types.Render(mk.Results[0].Type))
	}

	split := s.Export(types.QualifiedName{Interface: greeterID, Func: "split"})
	if len(split.Results) != 2 || split.Results[1].Name != "tail" {
		t.Errorf("split results = %+v", split.Results)
	}
}

func TestDescribe(t *testing.T) {
	s := MustParse(demoWIT)
	tests := []struct {
		name string
		want string
	}{
		{"point", "record point { x: s32, y: s32 }"},
		{"shape", "variant shape { circle(f64), rect(point), empty }"},
		{"color", "enum color { red, green, blue }"},
		{"perms", "flags perms { read, write }"},
		{"id", "type id = u64"},
		{"blob", "resource blob { constructor, size }"},
		{"greeter.key", "type key = id"},
		{"uppercase", "uppercase: func(input: string) -> string"},
		{"greeter#hello", greeterID + "#hello: func(name: string) -> string"},
		{"greet", "greet: func() -> string"},
		{"split", greeterID + "#split: func(s: string) -> (head: string, tail: list<string>)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Describe(tt.name)
			if err != nil {
				t.Fatalf("Describe(%q) failed: %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("Describe(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}

	if _, err := s.Describe("nope"); !errors.HasKind(err, errors.KindNotFound) {
		t.Errorf("Describe(nope) error = %v", err)
	}
}

func TestResourceMembers(t *testing.T) {
	s := MustParse(`
package local:files;

interface fs {
  resource file {
    constructor(path: string);
    @since(version = 0.2.0)
    read: func(n: u32) -> list<u8>;
    open-at: static func(dir: borrow<file>, path: string) -> file;
  }
  resource dir;
  open: func(path: string) -> file;
}

world files {
  export fs;
}
`)
	res := s.ExportedResources()
	if len(res) != 2 || res[0].Name != "file" || res[1].Name != "dir" {
		t.Fatalf("exported resources = %v", res)
	}
	file := res[0].Def.(*types.Resource)
	want := []string{"constructor", "read", "open-at"}
	if len(file.Methods) != len(want) {
		t.Fatalf("methods = %v, want %v", file.Methods, want)
	}
	for i := range want {
		if file.Methods[i] != want[i] {
			t.Errorf("methods[%d] = %q, want %q", i, file.Methods[i], want[i])
		}
	}
	if m := res[1].Def.(*types.Resource).Methods; len(m) != 0 {
		t.Errorf("dir methods = %v", m)
	}
	if got := names(s.Exports()); len(got) != 1 {
		t.Errorf("exports = %v", got)
	}

	_, err := Parse([]byte(`interface i { resource r { size: func() -> u32 } } world w {}`))
	if !errors.HasKind(err, errors.KindInvalidData) {
		t.Errorf("missing ';' in resource body: got %v", err)
	}
}

func TestRecursiveRecord(t *testing.T) {
	s := MustParse(`
interface tree {
  record node { value: u32, kids: list<node> }
}
world w {
  use tree.{node};
  export root: func() -> node;
}
`)
	node := s.Type("node")
	rec := node.Def.(*types.Record)
	list := rec.Fields[1].Type.(*types.List)
	if list.Elem != node {
		t.Errorf("kids element = %v, want the node named type", list.Elem)
	}
	root := s.Export(types.QualifiedName{Func: "root"})
	if root.Results[0].Type != node {
		t.Errorf("root result = %s", types.Render(root.Results[0].Type))
	}
}

func TestWorldSelection(t *testing.T) {
	src := `
world first { export a: func(); }
world second { export b: func(); }
`
	s := MustParse(src)
	if s.WorldName() != "first" {
		t.Errorf("default world = %q", s.WorldName())
	}
	s = MustParse(src, WithWorld("second"))
	if s.Export(types.QualifiedName{Func: "b"}) == nil {
		t.Error("second world should export b")
	}
	if _, err := Parse([]byte(src), WithWorld("third")); !errors.HasKind(err, errors.KindTypeResolution) {
		t.Errorf("unknown world error = %v", err)
	}
}

func TestResolutionErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"undefined type", `world w { export f: func(x: nope); }`},
		{"alias cycle", `interface i { type a = b; type b = a; } world w { import i; }`},
		{"self alias", `interface i { type a = list<a>; } world w {}`},
		{"duplicate type", `interface i { type a = u8; type a = u8; } world w {}`},
		{"duplicate world function", `world w { import f: func(); import f: func(); }`},
		{"duplicate interface function", `interface i { f: func(); f: func(); } world w {}`},
		{"duplicate field", `interface i { record r { a: u8, a: u8 } } world w {}`},
		{"duplicate case", `interface i { enum e { a, a } } world w {}`},
		{"own of record", `interface i { record r { a: u8 } f: func(x: own<r>); } world w {}`},
		{"unknown interface", `world w { import missing; }`},
		{"unknown use source", `interface b { use a.{x}; } world w {}`},
		{"use of undefined name", `interface a {} interface b { use a.{x}; } world w {}`},
		{"duplicate interface", `interface a {} interface a {} world w {}`},
		{"bad arity", `world w { export f: func(x: list<u8, u8>); }`},
		{"no world", `interface a {}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			if !errors.HasKind(err, errors.KindTypeResolution) {
				t.Errorf("Parse error = %v, want type_resolution", err)
			}
		})
	}
}

func TestSyntaxErrors(t *testing.T) {
	for _, src := range []string{
		`world w { export f: func(; }`,
		`world w { export f: func() -> ; }`,
		`interface i { record r { a u8 } }`,
		`world w { include other; }`,
		`world w {`,
		`/* open`,
		`world w { export f: func() $ }`,
	} {
		_, err := Parse([]byte(src))
		if !errors.HasKind(err, errors.KindInvalidData) {
			t.Errorf("Parse(%q) error = %v, want invalid_data", src, err)
		}
	}
}

func TestWITRoundTrip(t *testing.T) {
	s := MustParse(demoWIT)
	text := s.WIT()
	again, err := Parse([]byte(text))
	if err != nil {
		t.Fatalf("reparse failed: %v\n%s", err, text)
	}

	sorted := func(fns []*types.Function) []string {
		out := names(fns)
		sort.Strings(out)
		return out
	}
	if a, b := sorted(s.Imports()), sorted(again.Imports()); !equalStrings(a, b) {
		t.Errorf("imports changed: %v vs %v", a, b)
	}
	if a, b := sorted(s.Exports()), sorted(again.Exports()); !equalStrings(a, b) {
		t.Errorf("exports changed: %v vs %v", a, b)
	}
	for _, f := range s.Exports() {
		g := again.Export(f.Name)
		if g == nil || !types.SignatureEqual(f, g) {
			t.Errorf("export %s changed: %v", f.Name, g)
		}
	}
	for _, f := range s.Imports() {
		g := again.Import(f.Name)
		if g == nil || !types.SignatureEqual(f, g) {
			t.Errorf("import %s changed: %v", f.Name, g)
		}
	}
	if got, want := again.TypeNames(), s.TypeNames(); !equalStrings(got, want) {
		t.Errorf("type names = %v, want %v", got, want)
	}
}

func TestRenderWorldRootOnly(t *testing.T) {
	spec := WorldSpec{
		Name: "composite",
		ImportFuncs: []*types.Function{{
			Name:    types.QualifiedName{Func: "greet"},
			Results: []types.Param{{Type: types.String}},
		}},
	}
	want := "world composite {\n  import greet: func() -> string;\n}\n"
	if got := RenderWorld(spec); got != want {
		t.Errorf("RenderWorld = %q, want %q", got, want)
	}
}
