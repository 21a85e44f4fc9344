package wasmbin

import "errors"

// ErrOverflow is returned when a LEB128 value exceeds the maximum bit width.
var ErrOverflow = errors.New("leb128: overflow")

// ErrTruncated is returned when input ends inside a LEB128 value.
var ErrTruncated = errors.New("leb128: unexpected end of input")

// AppendULEB128 appends an unsigned LEB128 value
func AppendULEB128(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			return buf
		}
	}
}

// AppendSLEB128 appends a signed LEB128 value
func AppendSLEB128(buf []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// ULEB128 encodes an unsigned 32-bit value
func ULEB128(v uint32) []byte {
	return AppendULEB128(nil, uint64(v))
}

// SLEB128 encodes a signed value
func SLEB128[T int32 | int64](v T) []byte {
	return AppendSLEB128(nil, int64(v))
}

// ReadULEB128 decodes an unsigned 32-bit value and returns the bytes consumed
func ReadULEB128(data []byte) (uint32, int, error) {
	var result uint32
	var shift uint
	for i, b := range data {
		if shift >= 35 {
			return 0, 0, ErrOverflow
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ErrTruncated
}

// ReadSLEB128 decodes a signed 64-bit value and returns the bytes consumed
func ReadSLEB128(data []byte) (int64, int, error) {
	var result int64
	var shift uint
	for i, b := range data {
		if shift >= 70 {
			return 0, 0, ErrOverflow
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= ^int64(0) << shift
			}
			return result, i + 1, nil
		}
	}
	return 0, 0, ErrTruncated
}
