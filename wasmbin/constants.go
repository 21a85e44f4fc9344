package wasmbin

// Magic and Version open every core module
var (
	Magic   = []byte{0x00, 0x61, 0x73, 0x6d}
	Version = []byte{0x01, 0x00, 0x00, 0x00}
)

// Section IDs. Sections must appear in increasing order by ID, except custom sections.
const (
	SectionCustom   byte = 0
	SectionType     byte = 1
	SectionImport   byte = 2
	SectionFunction byte = 3
	SectionTable    byte = 4
	SectionMemory   byte = 5
	SectionGlobal   byte = 6
	SectionExport   byte = 7
	SectionStart    byte = 8
	SectionElement  byte = 9
	SectionCode     byte = 10
	SectionData     byte = 11
)

// Import/export descriptor kinds
const (
	KindFunc   byte = 0
	KindTable  byte = 1
	KindMemory byte = 2
	KindGlobal byte = 3
)

// Opcodes used by generated function bodies
const (
	OpUnreachable byte = 0x00
	OpNop         byte = 0x01
	OpBlock       byte = 0x02
	OpLoop        byte = 0x03
	OpIf          byte = 0x04
	OpElse        byte = 0x05
	OpEnd         byte = 0x0B
	OpBr          byte = 0x0C
	OpReturn      byte = 0x0F
	OpCall        byte = 0x10
	OpDrop        byte = 0x1A

	OpLocalGet  byte = 0x20
	OpLocalSet  byte = 0x21
	OpLocalTee  byte = 0x22
	OpGlobalGet byte = 0x23
	OpGlobalSet byte = 0x24

	OpI32Load    byte = 0x28
	OpI64Load    byte = 0x29
	OpI32Load8U  byte = 0x2D
	OpI32Store   byte = 0x36
	OpI64Store   byte = 0x37
	OpI32Store8  byte = 0x3A
	OpI32Const   byte = 0x41
	OpI64Const   byte = 0x42
	OpI32Eqz     byte = 0x45
	OpI32Add     byte = 0x6A
	OpI32Sub     byte = 0x6B
	OpI32Mul     byte = 0x6C
	OpI32And     byte = 0x71
	OpI64Add     byte = 0x7C
	OpF64Add     byte = 0xA0
	BlockTypeI32 byte = 0x7F
	BlockVoid    byte = 0x40
)
