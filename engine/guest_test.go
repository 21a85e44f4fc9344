package engine

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-repl/wasmbin"
)

// Helpers that assemble small guest modules for the tests.

var (
	none  = []api.ValueType{}
	one32 = []api.ValueType{i32}
	two32 = []api.ValueType{i32, i32}
)

// heapStart leaves the low addresses free for data segments
const heapStart = 1024

// newGuestModule starts a module with one page of memory, a bump
// allocator exported as cabi_realloc and the WIT section. The returned
// index is the allocator's function index.
func newGuestModule(witSrc string, imports func(b *wasmbin.ModuleBuilder)) (*wasmbin.ModuleBuilder, uint32) {
	b := wasmbin.NewModuleBuilder()
	if imports != nil {
		imports(b)
	}
	b.Memory(1)
	heap := byte(b.Global(i32, true, heapStart))

	// ptr = (heap + align - 1) & -align; heap = ptr + size
	realloc := b.Func([]api.ValueType{i32, i32, i32, i32}, one32, one32, []byte{
		wasmbin.OpGlobalGet, heap,
		wasmbin.OpLocalGet, 2, wasmbin.OpI32Add,
		wasmbin.OpI32Const, 1, wasmbin.OpI32Sub,
		wasmbin.OpI32Const, 0, wasmbin.OpLocalGet, 2, wasmbin.OpI32Sub,
		wasmbin.OpI32And,
		wasmbin.OpLocalTee, 4,
		wasmbin.OpLocalGet, 3, wasmbin.OpI32Add,
		wasmbin.OpGlobalSet, heap,
		wasmbin.OpLocalGet, 4,
	})
	b.ExportFunc(CabiRealloc, realloc)
	b.CustomSection(SectionWIT, []byte(witSrc))
	return b, realloc
}

// allocInto calls the allocator for size bytes with alignment 4 and
// stores the pointer in local
func allocInto(realloc uint32, size byte, local byte) []byte {
	return []byte{
		wasmbin.OpI32Const, 0, wasmbin.OpI32Const, 0,
		wasmbin.OpI32Const, 4, wasmbin.OpI32Const, size,
		wasmbin.OpCall, byte(realloc),
		wasmbin.OpLocalSet, local,
	}
}

// store32 writes local value at local ptr + offset
func store32(ptr, value, offset byte) []byte {
	return []byte{
		wasmbin.OpLocalGet, ptr, wasmbin.OpLocalGet, value,
		wasmbin.OpI32Store, 2, offset,
	}
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
