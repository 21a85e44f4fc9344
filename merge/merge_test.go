package merge

import (
	"bytes"
	"context"
	"sort"
	"testing"

	"github.com/wippyai/wasm-repl/descriptor"
	"github.com/wippyai/wasm-repl/engine"
	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/wasmbin"
)

const targetWIT = `
package local:app;

interface logger {
  log: func(msg: string);
}

world app {
  import greet: func(name: string) -> string;
  import logger;
  import clock: func() -> u64;
  export run: func() -> string;
}
`

const fullAdapterWIT = `
package local:app;

interface logger {
  log: func(msg: string);
}

world adapter {
  export greet: func(who: string) -> string;
  export clock: func() -> u64;
  export logger;
}
`

const partialAdapterWIT = `
world adapter {
  import random: func() -> u32;
  export greet: func(who: string) -> string;
  export version: func() -> string;
}
`

func component(wit string) []byte {
	b := wasmbin.NewModuleBuilder()
	b.CustomSection(engine.SectionWIT, []byte(wit))
	return b.Bytes()
}

func compositeStore(t *testing.T, bin []byte) *descriptor.Store {
	t.Helper()
	data, ok, err := wasmbin.CustomSection(bin, engine.SectionWIT)
	if err != nil || !ok {
		t.Fatalf("composite has no interface section: %v", err)
	}
	s, err := descriptor.Parse(data)
	if err != nil {
		t.Fatalf("composite interface: %v\n%s", err, data)
	}
	return s
}

func names(s *descriptor.Store, imports bool) []string {
	fns := s.Exports()
	if imports {
		fns = s.Imports()
	}
	out := make([]string, len(fns))
	for i, f := range fns {
		out[i] = f.Name.String()
	}
	sort.Strings(out)
	return out
}

func equal(a, b []string) bool {
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

func TestFullySatisfyingAdapter(t *testing.T) {
	target, adapter := component(targetWIT), component(fullAdapterWIT)
	bin, err := New().Merge(context.Background(), target, adapter)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	s := compositeStore(t, bin)
	if got := names(s, true); len(got) != 0 {
		t.Errorf("composite imports = %v, want none", got)
	}
	want := []string{"clock", "greet", "local:app/logger#log", "run"}
	if got := names(s, false); !equal(got, want) {
		t.Errorf("composite exports = %v, want %v", got, want)
	}

	embedded, ok, _ := wasmbin.CustomSection(bin, engine.SectionComposeTarget)
	if !ok || !bytes.Equal(embedded, target) {
		t.Error("target section does not hold the target binary")
	}
	embedded, ok, _ = wasmbin.CustomSection(bin, engine.SectionComposeAdapter)
	if !ok || !bytes.Equal(embedded, adapter) {
		t.Error("adapter section does not hold the adapter binary")
	}
}

func TestResidualImports(t *testing.T) {
	bin, err := New().Merge(context.Background(), component(targetWIT), component(partialAdapterWIT))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	s := compositeStore(t, bin)
	want := []string{"clock", "local:app/logger#log", "random"}
	if got := names(s, true); !equal(got, want) {
		t.Errorf("composite imports = %v, want %v", got, want)
	}
	want = []string{"greet", "run", "version"}
	if got := names(s, false); !equal(got, want) {
		t.Errorf("composite exports = %v, want %v", got, want)
	}
}

func TestMergeErrors(t *testing.T) {
	tests := []struct {
		name    string
		adapter []byte
	}{
		{"signature mismatch", component(`world a { export greet: func(n: u32) -> string; }`)},
		{"incomplete interface", component(`
package local:app;
interface logger {
  flush: func();
}
world a { export logger; }`)},
		{"no interface section", wasmbin.NewModuleBuilder().Bytes()},
		{"not a module", []byte("garbage")},
		{"bad interface", component(`world a { export f: func() -> nope; }`)},
		{"conflicting import", component(`world a { import clock: func() -> u32; }`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Merge(context.Background(), component(targetWIT), tt.adapter)
			if !errors.HasKind(err, errors.KindMerge) {
				t.Errorf("got %v, want merge error", err)
			}
		})
	}
}

func TestWorldTypes(t *testing.T) {
	target := descriptor.MustParse(`world t {
  record point { x: s32, y: s32 }
  import shift: func(p: point) -> point;
}`)
	same := descriptor.MustParse(`world a {
  record point { x: s32, y: s32 }
  export shift: func(p: point) -> point;
}`)
	spec, err := World(target, same)
	if err != nil {
		t.Fatalf("World: %v", err)
	}
	if len(spec.ImportFuncs) != 0 || len(spec.Types) != 1 {
		t.Errorf("imports %d, types %d", len(spec.ImportFuncs), len(spec.Types))
	}

	other := descriptor.MustParse(`world a {
  record point { x: s64, y: s64 }
  export other: func(p: point);
}`)
	if _, err := World(target, other); !errors.HasKind(err, errors.KindMerge) {
		t.Errorf("conflicting type: got %v", err)
	}
}
