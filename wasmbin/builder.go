package wasmbin

import (
	"github.com/tetratelabs/wazero/api"
)

// FuncType is a core function signature
type FuncType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

func (t FuncType) equal(o FuncType) bool {
	if len(t.Params) != len(o.Params) || len(t.Results) != len(o.Results) {
		return false
	}
	for i := range t.Params {
		if t.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range t.Results {
		if t.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

type funcImport struct {
	module string
	name   string
	typ    uint32
}

type funcDef struct {
	locals []api.ValueType
	body   []byte
	typ    uint32
}

type export struct {
	name  string
	kind  byte
	index uint32
}

type global struct {
	typ     api.ValueType
	init    int64
	mutable bool
}

type dataSegment struct {
	data   []byte
	offset uint32
}

type custom struct {
	name string
	data []byte
}

// ModuleBuilder assembles a core module section by section.
// Function indices count imports first, in the order they were added.
type ModuleBuilder struct {
	types    []FuncType
	imports  []funcImport
	funcs    []funcDef
	exports  []export
	globals  []global
	data     []dataSegment
	customs  []custom
	memPages uint32
	memory   bool
}

// NewModuleBuilder creates an empty module builder.
func NewModuleBuilder() *ModuleBuilder {
	return &ModuleBuilder{}
}

func (b *ModuleBuilder) typeIndex(t FuncType) uint32 {
	for i, existing := range b.types {
		if existing.equal(t) {
			return uint32(i)
		}
	}
	b.types = append(b.types, t)
	return uint32(len(b.types) - 1)
}

// ImportFunc adds a function import and returns its function index.
// All imports must be added before the first Func.
func (b *ModuleBuilder) ImportFunc(module, name string, params, results []api.ValueType) uint32 {
	if len(b.funcs) > 0 {
		panic("wasmbin: ImportFunc after Func")
	}
	b.imports = append(b.imports, funcImport{
		module: module,
		name:   name,
		typ:    b.typeIndex(FuncType{Params: params, Results: results}),
	})
	return uint32(len(b.imports) - 1)
}

// Func adds a function and returns its index. body holds the instructions
// without the trailing end opcode.
func (b *ModuleBuilder) Func(params, results, locals []api.ValueType, body []byte) uint32 {
	b.funcs = append(b.funcs, funcDef{
		typ:    b.typeIndex(FuncType{Params: params, Results: results}),
		locals: locals,
		body:   body,
	})
	return uint32(len(b.imports) + len(b.funcs) - 1)
}

// ExportFunc exports a function index under name.
func (b *ModuleBuilder) ExportFunc(name string, index uint32) {
	b.exports = append(b.exports, export{name: name, kind: KindFunc, index: index})
}

// Memory defines the module's memory and exports it as "memory".
func (b *ModuleBuilder) Memory(minPages uint32) {
	b.memory = true
	b.memPages = minPages
	b.exports = append(b.exports, export{name: "memory", kind: KindMemory})
}

// Global adds a locally defined global and returns its index.
func (b *ModuleBuilder) Global(typ api.ValueType, mutable bool, init int64) uint32 {
	b.globals = append(b.globals, global{typ: typ, mutable: mutable, init: init})
	return uint32(len(b.globals) - 1)
}

// Data adds an active data segment for memory 0.
func (b *ModuleBuilder) Data(offset uint32, data []byte) {
	b.data = append(b.data, dataSegment{offset: offset, data: data})
}

// CustomSection appends a custom section after the known sections.
func (b *ModuleBuilder) CustomSection(name string, data []byte) {
	b.customs = append(b.customs, custom{name: name, data: data})
}

// Bytes encodes the module.
func (b *ModuleBuilder) Bytes() []byte {
	out := make([]byte, 0, 256)
	out = append(out, Magic...)
	out = append(out, Version...)

	if len(b.types) > 0 {
		out = appendSection(out, SectionType, b.typeSection())
	}
	if len(b.imports) > 0 {
		out = appendSection(out, SectionImport, b.importSection())
	}
	if len(b.funcs) > 0 {
		sec := AppendULEB128(nil, uint64(len(b.funcs)))
		for _, f := range b.funcs {
			sec = AppendULEB128(sec, uint64(f.typ))
		}
		out = appendSection(out, SectionFunction, sec)
	}
	if b.memory {
		sec := []byte{0x01, 0x00}
		sec = AppendULEB128(sec, uint64(b.memPages))
		out = appendSection(out, SectionMemory, sec)
	}
	if len(b.globals) > 0 {
		out = appendSection(out, SectionGlobal, b.globalSection())
	}
	if len(b.exports) > 0 {
		sec := AppendULEB128(nil, uint64(len(b.exports)))
		for _, e := range b.exports {
			sec = appendName(sec, e.name)
			sec = append(sec, e.kind)
			sec = AppendULEB128(sec, uint64(e.index))
		}
		out = appendSection(out, SectionExport, sec)
	}
	if len(b.funcs) > 0 {
		out = appendSection(out, SectionCode, b.codeSection())
	}
	if len(b.data) > 0 {
		sec := AppendULEB128(nil, uint64(len(b.data)))
		for _, d := range b.data {
			sec = append(sec, 0x00, OpI32Const)
			sec = AppendSLEB128(sec, int64(int32(d.offset)))
			sec = append(sec, OpEnd)
			sec = AppendULEB128(sec, uint64(len(d.data)))
			sec = append(sec, d.data...)
		}
		out = appendSection(out, SectionData, sec)
	}
	for _, c := range b.customs {
		sec := appendName(nil, c.name)
		sec = append(sec, c.data...)
		out = appendSection(out, SectionCustom, sec)
	}
	return out
}

func (b *ModuleBuilder) typeSection() []byte {
	sec := AppendULEB128(nil, uint64(len(b.types)))
	for _, t := range b.types {
		sec = append(sec, 0x60)
		sec = AppendULEB128(sec, uint64(len(t.Params)))
		sec = append(sec, t.Params...)
		sec = AppendULEB128(sec, uint64(len(t.Results)))
		sec = append(sec, t.Results...)
	}
	return sec
}

func (b *ModuleBuilder) importSection() []byte {
	sec := AppendULEB128(nil, uint64(len(b.imports)))
	for _, imp := range b.imports {
		sec = appendName(sec, imp.module)
		sec = appendName(sec, imp.name)
		sec = append(sec, KindFunc)
		sec = AppendULEB128(sec, uint64(imp.typ))
	}
	return sec
}

func (b *ModuleBuilder) globalSection() []byte {
	sec := AppendULEB128(nil, uint64(len(b.globals)))
	for _, g := range b.globals {
		sec = append(sec, g.typ)
		if g.mutable {
			sec = append(sec, 0x01)
		} else {
			sec = append(sec, 0x00)
		}
		switch g.typ {
		case api.ValueTypeI64:
			sec = append(sec, OpI64Const)
			sec = AppendSLEB128(sec, g.init)
		default:
			sec = append(sec, OpI32Const)
			sec = AppendSLEB128(sec, int64(int32(g.init)))
		}
		sec = append(sec, OpEnd)
	}
	return sec
}

func (b *ModuleBuilder) codeSection() []byte {
	sec := AppendULEB128(nil, uint64(len(b.funcs)))
	for _, f := range b.funcs {
		var body []byte
		body = AppendULEB128(body, uint64(len(f.locals)))
		for _, l := range f.locals {
			body = append(body, 0x01, l)
		}
		body = append(body, f.body...)
		body = append(body, OpEnd)
		sec = AppendULEB128(sec, uint64(len(body)))
		sec = append(sec, body...)
	}
	return sec
}

func appendSection(out []byte, id byte, payload []byte) []byte {
	out = append(out, id)
	out = AppendULEB128(out, uint64(len(payload)))
	return append(out, payload...)
}

func appendName(out []byte, name string) []byte {
	out = AppendULEB128(out, uint64(len(name)))
	return append(out, name...)
}
