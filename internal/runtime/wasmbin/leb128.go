package wasmbin

import (
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedEOF is returned when the binary ends inside a value.
	ErrUnexpectedEOF = errors.New("unexpected end of binary")
	// ErrOverflow is returned when a LEB128 value exceeds its declared width.
	ErrOverflow = errors.New("leb128 overflow")
)

// Reader decodes the primitive encodings of the WebAssembly binary format.
type Reader struct {
	buf []byte
	pos int
}

// NewReader creates a reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos returns the current offset.
func (r *Reader) Pos() int { return r.pos }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Rest returns the unread bytes without consuming them.
func (r *Reader) Rest() []byte { return r.buf[r.pos:] }

// Byte reads a single byte.
func (r *Reader) Byte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, ErrUnexpectedEOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// Bytes reads n raw bytes. The returned slice aliases the input.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || n > r.Len() {
		return nil, ErrUnexpectedEOF
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Skip advances by n bytes.
func (r *Reader) Skip(n int) error {
	_, err := r.Bytes(n)
	return err
}

// U32 reads an unsigned LEB128 value of at most 32 bits.
func (r *Reader) U32() (uint32, error) {
	v, err := r.unsigned(32)
	return uint32(v), err
}

// U64 reads an unsigned LEB128 value of at most 64 bits.
func (r *Reader) U64() (uint64, error) {
	return r.unsigned(64)
}

// S32 reads a signed LEB128 value of at most 32 bits.
func (r *Reader) S32() (int32, error) {
	v, err := r.signed(32)
	return int32(v), err
}

// S33 reads the signed 33-bit LEB128 used by block types.
func (r *Reader) S33() (int64, error) {
	return r.signed(33)
}

// S64 reads a signed LEB128 value of at most 64 bits.
func (r *Reader) S64() (int64, error) {
	return r.signed(64)
}

// Name reads a length-prefixed UTF-8 name.
func (r *Reader) Name() (string, error) {
	n, err := r.U32()
	if err != nil {
		return "", err
	}
	b, err := r.Bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) unsigned(bits uint) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.Byte()
		if err != nil {
			return 0, err
		}
		if shift >= bits || (shift+7 > bits && uint64(b&0x7f)>>(bits-shift) != 0) {
			return 0, fmt.Errorf("%w: u%d", ErrOverflow, bits)
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

func (r *Reader) signed(bits uint) (int64, error) {
	var result int64
	var shift uint
	maxBytes := (bits + 6) / 7
	for i := uint(0); ; i++ {
		if i >= maxBytes {
			return 0, fmt.Errorf("%w: s%d", ErrOverflow, bits)
		}
		b, err := r.Byte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
	}
}

// AppendU32 appends v as unsigned LEB128.
func AppendU32(dst []byte, v uint32) []byte {
	return AppendU64(dst, uint64(v))
}

// AppendU64 appends v as unsigned LEB128.
func AppendU64(dst []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

// AppendS64 appends v as signed LEB128.
func AppendS64(dst []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

// AppendName appends a length-prefixed name.
func AppendName(dst []byte, name string) []byte {
	dst = AppendU32(dst, uint32(len(name)))
	return append(dst, name...)
}
