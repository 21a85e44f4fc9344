// Package wasmbin provides the binary-level plumbing for core modules.
//
// # Encoding
//
//	buf = wasmbin.AppendULEB128(buf, 300)
//	enc := wasmbin.SLEB128(int32(-100))
//
// # Reading
//
// Sections splits a module without decoding section contents; CustomSection
// finds a named custom section such as the interface section:
//
//	wit, ok, err := wasmbin.CustomSection(bin, "component-wit")
//
// # Building
//
// ModuleBuilder assembles small modules: composites produced by the merge
// package and the guest modules used in engine tests.
//
//	b := wasmbin.NewModuleBuilder()
//	add := b.Func(i32i32, i32, nil, []byte{
//		wasmbin.OpLocalGet, 0, wasmbin.OpLocalGet, 1, wasmbin.OpI32Add,
//	})
//	b.ExportFunc("add", add)
//	bin := b.Bytes()
package wasmbin
