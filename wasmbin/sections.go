package wasmbin

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// Section is one top-level section of a core module
type Section struct {
	// Name is set for custom sections only
	Name string
	Data []byte
	ID   byte
}

// IsModule reports whether data starts with a core module header.
func IsModule(data []byte) bool {
	return len(data) >= 8 && bytes.Equal(data[:4], Magic) && bytes.Equal(data[4:8], Version)
}

// Sections splits a core module into its sections without decoding them.
// Section payloads alias data.
func Sections(data []byte) ([]Section, error) {
	if len(data) < 8 || !bytes.Equal(data[:4], Magic) {
		return nil, fmt.Errorf("not a wasm module: bad magic")
	}
	if !bytes.Equal(data[4:8], Version) {
		return nil, fmt.Errorf("unsupported wasm version % x (components must be core modules)", data[4:8])
	}

	var out []Section
	pos := 8
	for pos < len(data) {
		id := data[pos]
		pos++
		size, n, err := ReadULEB128(data[pos:])
		if err != nil {
			return nil, fmt.Errorf("section %d size at offset %d: %w", id, pos, err)
		}
		pos += n
		end := pos + int(size)
		if end > len(data) || end < pos {
			return nil, fmt.Errorf("section %d at offset %d overruns module (%d bytes)", id, pos, size)
		}
		sec := Section{ID: id, Data: data[pos:end]}
		if id == SectionCustom {
			name, rest, err := readName(sec.Data)
			if err != nil {
				return nil, fmt.Errorf("custom section at offset %d: %w", pos, err)
			}
			sec.Name = name
			sec.Data = rest
		}
		out = append(out, sec)
		pos = end
	}
	return out, nil
}

// CustomSection returns the payload of the first custom section named name.
func CustomSection(data []byte, name string) ([]byte, bool, error) {
	secs, err := Sections(data)
	if err != nil {
		return nil, false, err
	}
	for _, s := range secs {
		if s.ID == SectionCustom && s.Name == name {
			return s.Data, true, nil
		}
	}
	return nil, false, nil
}

func readName(data []byte) (string, []byte, error) {
	size, n, err := ReadULEB128(data)
	if err != nil {
		return "", nil, err
	}
	end := n + int(size)
	if end > len(data) || end < n {
		return "", nil, fmt.Errorf("name overruns section")
	}
	name := data[n:end]
	if !utf8.Valid(name) {
		return "", nil, fmt.Errorf("name is not valid UTF-8")
	}
	return string(name), data[end:], nil
}
