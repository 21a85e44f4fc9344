package engine

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/types"
)

func def(k wit.TypeDefKind) *wit.TypeDef { return &wit.TypeDef{Kind: k} }

func flagsOf(n int) *wit.TypeDef {
	f := &wit.Flags{}
	for i := 0; i < n; i++ {
		f.Flags = append(f.Flags, wit.Flag{Name: string(rune('a' + i%26))})
	}
	return def(f)
}

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		typ  wit.Type
		want []api.ValueType
	}{
		{"string", wit.String{}, []api.ValueType{i32, i32}},
		{"record", def(&wit.Record{Fields: []wit.Field{{Name: "a", Type: wit.U8{}}, {Name: "b", Type: wit.F64{}}}}), []api.ValueType{i32, f64}},
		{"option u64", def(&wit.Option{Type: wit.U64{}}), []api.ValueType{i32, i64}},
		{"join i32 f32", def(&wit.Variant{Cases: []wit.Case{{Name: "a", Type: wit.U32{}}, {Name: "b", Type: wit.F32{}}}}), []api.ValueType{i32, i32}},
		{"join f32 u64", def(&wit.Variant{Cases: []wit.Case{{Name: "a", Type: wit.F32{}}, {Name: "b", Type: wit.U64{}}}}), []api.ValueType{i32, i64}},
		{"join f64 string", def(&wit.Result{OK: wit.F64{}, Err: wit.String{}}), []api.ValueType{i32, i64, i32}},
		{"result without payloads", def(&wit.Result{}), []api.ValueType{i32}},
		{"flags 40", flagsOf(40), []api.ValueType{i32, i32}},
		{"own", def(&wit.Own{}), []api.ValueType{i32}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := flatten(tt.typ); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("flatten = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLayout(t *testing.T) {
	tests := []struct {
		name string
		typ  wit.Type
		want layout
	}{
		{"u8 then u32", def(&wit.Record{Fields: []wit.Field{{Name: "a", Type: wit.U8{}}, {Name: "b", Type: wit.U32{}}}}), layout{8, 4}},
		{"tuple u16 u8", def(&wit.Tuple{Types: []wit.Type{wit.U16{}, wit.U8{}}}), layout{4, 2}},
		{"option u64", def(&wit.Option{Type: wit.U64{}}), layout{16, 8}},
		{"option u8", def(&wit.Option{Type: wit.U8{}}), layout{2, 1}},
		{"result string", def(&wit.Result{OK: wit.String{}}), layout{12, 4}},
		{"flags 8", flagsOf(8), layout{1, 1}},
		{"flags 9", flagsOf(9), layout{2, 2}},
		{"flags 40", flagsOf(40), layout{8, 4}},
		{"string", wit.String{}, layout{8, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := layoutOf(tt.typ); got != tt.want {
				t.Errorf("layoutOf = %+v, want %+v", got, tt.want)
			}
		})
	}

	enum := &wit.Enum{}
	for i := 0; i < 300; i++ {
		enum.Cases = append(enum.Cases, wit.EnumCase{Name: "c"})
	}
	if got := layoutOf(def(enum)); got != (layout{2, 2}) {
		t.Errorf("300-case enum layout = %+v", got)
	}
}

func TestSignatureSpilling(t *testing.T) {
	fn := &types.Function{
		Name:    types.QualifiedName{Func: "split"},
		Params:  []types.Param{{Name: "s", Type: types.String}},
		Results: []types.Param{{Name: "head", Type: types.String}},
	}
	sig, err := newSignature(fn)
	if err != nil {
		t.Fatal(err)
	}
	if sig.spillParams() || !sig.spillResults() {
		t.Errorf("spill params %v results %v", sig.spillParams(), sig.spillResults())
	}
	params, results := sig.exportCore()
	if !reflect.DeepEqual(params, []api.ValueType{i32, i32}) || !reflect.DeepEqual(results, []api.ValueType{i32}) {
		t.Errorf("export core = %v -> %v", params, results)
	}
	params, results = sig.importCore()
	if !reflect.DeepEqual(params, []api.ValueType{i32, i32, i32}) || len(results) != 0 {
		t.Errorf("import core = %v -> %v", params, results)
	}
}

func TestWitTypeRejectsRecursion(t *testing.T) {
	n := &types.Named{Name: "tree"}
	n.Def = &types.Variant{Cases: []types.Case{
		{Name: "leaf"},
		{Name: "node", Payload: &types.List{Elem: n}},
	}}
	if _, err := witType(n); !errors.HasKind(err, errors.KindUnsupported) {
		t.Errorf("got %v, want unsupported", err)
	}
	if _, err := witType(&types.Named{Name: "ghost"}); !errors.HasKind(err, errors.KindTypeResolution) {
		t.Errorf("undefined type: got %v", err)
	}
}

// testGuest instantiates a bare module with memory and a bump allocator
func testGuest(t *testing.T) *guest {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = r.Close(ctx) })

	b, _ := newGuestModule("", nil)
	mod, err := r.Instantiate(ctx, b.Bytes())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return newGuest(ctx, mod)
}

func TestMemoryRoundTrip(t *testing.T) {
	g := testGuest(t)
	point := def(&wit.Record{Fields: []wit.Field{{Name: "x", Type: wit.S32{}}, {Name: "label", Type: wit.String{}}}})
	tests := []struct {
		name string
		typ  wit.Type
		val  any
	}{
		{"bool", wit.Bool{}, true},
		{"s8", wit.S8{}, int8(-5)},
		{"u64", wit.U64{}, uint64(math.MaxUint64)},
		{"f32", wit.F32{}, float32(1.5)},
		{"char", wit.Char{}, 'λ'},
		{"record", point, map[string]any{"x": int32(-1), "label": "origin"}},
		{"list of records", def(&wit.List{Type: point}), []any{
			map[string]any{"x": int32(1), "label": "a"},
			map[string]any{"x": int32(2), "label": "bb"},
		}},
		{"option some", def(&wit.Option{Type: wit.String{}}), map[string]any{"some": "x"}},
		{"option none", def(&wit.Option{Type: wit.String{}}), map[string]any{"none": nil}},
		{"result err", def(&wit.Result{OK: wit.U8{}, Err: wit.String{}}), map[string]any{"err": "bad"}},
		{"enum", def(&wit.Enum{Cases: []wit.EnumCase{{Name: "a"}, {Name: "b"}}}), uint32(1)},
		{"flags 40", flagsOf(40), uint64(1<<39 | 1)},
		{"tuple", def(&wit.Tuple{Types: []wit.Type{wit.U16{}, wit.F64{}}}), []any{uint16(7), 2.25}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := layoutOf(tt.typ)
			ptr, err := g.alloc(l.size, l.align, nil)
			if err != nil {
				t.Fatalf("alloc: %v", err)
			}
			if err := g.store(tt.typ, tt.val, ptr, nil); err != nil {
				t.Fatalf("store: %v", err)
			}
			got, err := g.load(tt.typ, ptr, nil)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if !reflect.DeepEqual(got, tt.val) {
				t.Errorf("round trip = %#v, want %#v", got, tt.val)
			}

			flat, err := g.lowerFlat(tt.typ, tt.val, nil, nil)
			if err != nil {
				t.Fatalf("lowerFlat: %v", err)
			}
			if len(flat) != len(flatten(tt.typ)) {
				t.Errorf("lowered %d slots, want %d", len(flat), len(flatten(tt.typ)))
			}
			got, err = g.liftFlat(tt.typ, &flatReader{vals: flat}, nil)
			if err != nil {
				t.Fatalf("liftFlat: %v", err)
			}
			if !reflect.DeepEqual(got, tt.val) {
				t.Errorf("flat round trip = %#v, want %#v", got, tt.val)
			}
		})
	}
}

func TestLiftRejectsBadData(t *testing.T) {
	g := testGuest(t)
	opt := def(&wit.Option{Type: wit.U32{}})
	if _, err := g.liftFlat(opt, &flatReader{vals: []uint64{2, 0}}, nil); !errors.HasKind(err, errors.KindMarshal) {
		t.Errorf("bad discriminant: got %v", err)
	}
	if _, err := g.liftFlat(wit.Char{}, &flatReader{vals: []uint64{0xD800}}, nil); err == nil {
		t.Error("surrogate char lifted")
	}
	if _, err := g.liftFlat(wit.String{}, &flatReader{vals: []uint64{0, 1 << 20}}, nil); err == nil {
		t.Error("string past memory lifted")
	}
	if _, err := g.liftFlat(wit.U32{}, &flatReader{}, nil); err == nil {
		t.Error("lifted from an empty reader")
	}
}

func TestNaNIsCanonicalized(t *testing.T) {
	nan := math.Float64frombits(0x7ff8000000000001)
	bits, ok := scalarBits(wit.F64{}, nan)
	if !ok || bits != 0x7ff8000000000000 {
		t.Errorf("NaN bits = %x", bits)
	}
}
