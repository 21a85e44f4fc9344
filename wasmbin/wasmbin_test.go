package wasmbin

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func TestULEB128(t *testing.T) {
	tests := []struct {
		encoded []byte
		value   uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xFFFFFFFF},
	}
	for _, tt := range tests {
		if got := ULEB128(tt.value); !bytes.Equal(got, tt.encoded) {
			t.Errorf("encode %d: got %x, want %x", tt.value, got, tt.encoded)
		}
		got, n, err := ReadULEB128(tt.encoded)
		if err != nil || got != tt.value || n != len(tt.encoded) {
			t.Errorf("decode %x: got %d (%d bytes), err %v", tt.encoded, got, n, err)
		}
	}
}

func TestSLEB128(t *testing.T) {
	tests := []struct {
		encoded []byte
		value   int64
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7f}, -1},
		{[]byte{0x3f}, 63},
		{[]byte{0x40}, -64},
		{[]byte{0xc0, 0x00}, 64},
		{[]byte{0x80, 0x7f}, -128},
	}
	for _, tt := range tests {
		if got := SLEB128(tt.value); !bytes.Equal(got, tt.encoded) {
			t.Errorf("encode %d: got %x, want %x", tt.value, got, tt.encoded)
		}
		got, n, err := ReadSLEB128(tt.encoded)
		if err != nil || got != tt.value || n != len(tt.encoded) {
			t.Errorf("decode %x: got %d (%d bytes), err %v", tt.encoded, got, n, err)
		}
	}
}

func TestLEB128Errors(t *testing.T) {
	if _, _, err := ReadULEB128([]byte{0x80, 0x80}); !stderrors.Is(err, ErrTruncated) {
		t.Errorf("truncated: %v", err)
	}
	if _, _, err := ReadULEB128([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}); !stderrors.Is(err, ErrOverflow) {
		t.Errorf("overflow: %v", err)
	}
}

var i32 = api.ValueTypeI32

func addModule() []byte {
	b := NewModuleBuilder()
	add := b.Func([]api.ValueType{i32, i32}, []api.ValueType{i32}, nil, []byte{
		OpLocalGet, 0, OpLocalGet, 1, OpI32Add,
	})
	b.ExportFunc("add", add)
	b.CustomSection("component-wit", []byte("world w { export add: func(a: u32, b: u32) -> u32; }"))
	return b.Bytes()
}

func TestBuilderRunsOnWazero(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	mod, err := r.Instantiate(ctx, addModule())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	out, err := mod.ExportedFunction("add").Call(ctx, 2, 40)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out[0] != 42 {
		t.Errorf("add(2, 40) = %d", out[0])
	}
}

func TestBuilderImportsMemoryAndData(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	_, err := r.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(x uint32) uint32 { return x * 3 }).
		Export("triple").
		Instantiate(ctx)
	if err != nil {
		t.Fatalf("host module: %v", err)
	}

	b := NewModuleBuilder()
	triple := b.ImportFunc("env", "triple", []api.ValueType{i32}, []api.ValueType{i32})
	b.Memory(1)
	heap := b.Global(i32, true, 64)
	b.Data(16, []byte("hi"))
	fn := b.Func([]api.ValueType{i32}, []api.ValueType{i32}, nil, []byte{
		OpLocalGet, 0, OpCall, byte(triple),
		OpGlobalGet, byte(heap), OpI32Add,
	})
	b.ExportFunc("run", fn)

	mod, err := r.Instantiate(ctx, b.Bytes())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	out, err := mod.ExportedFunction("run").Call(ctx, 2)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out[0] != 70 {
		t.Errorf("run(2) = %d, want 70", out[0])
	}
	if data, ok := mod.Memory().Read(16, 2); !ok || string(data) != "hi" {
		t.Errorf("data segment = %q", data)
	}
}

func TestSections(t *testing.T) {
	bin := addModule()
	if !IsModule(bin) {
		t.Fatal("IsModule = false")
	}
	secs, err := Sections(bin)
	if err != nil {
		t.Fatalf("Sections: %v", err)
	}
	var ids []byte
	for _, s := range secs {
		ids = append(ids, s.ID)
	}
	want := []byte{SectionType, SectionFunction, SectionExport, SectionCode, SectionCustom}
	if !bytes.Equal(ids, want) {
		t.Errorf("section ids = %v, want %v", ids, want)
	}

	data, ok, err := CustomSection(bin, "component-wit")
	if err != nil || !ok || !bytes.HasPrefix(data, []byte("world w")) {
		t.Errorf("CustomSection = %q, %v, %v", data, ok, err)
	}
	if _, ok, _ := CustomSection(bin, "missing"); ok {
		t.Error("found a missing section")
	}
}

func TestSectionsErrors(t *testing.T) {
	good := addModule()
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", []byte("\x00wasm\x01\x00\x00\x00")},
		{"component layer", append(append([]byte{}, Magic...), 0x0d, 0x00, 0x01, 0x00)},
		{"truncated", good[:len(good)-3]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Sections(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}
