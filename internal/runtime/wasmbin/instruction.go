package wasmbin

import (
	"errors"
	"fmt"
)

// Opcodes referenced by the validator and the instrumenter.
const (
	OpUnreachable  byte = 0x00
	OpNop          byte = 0x01
	OpBlock        byte = 0x02
	OpLoop         byte = 0x03
	OpIf           byte = 0x04
	OpElse         byte = 0x05
	OpEnd          byte = 0x0b
	OpBr           byte = 0x0c
	OpBrIf         byte = 0x0d
	OpBrTable      byte = 0x0e
	OpReturn       byte = 0x0f
	OpCall         byte = 0x10
	OpCallIndirect byte = 0x11
	OpReturnCall   byte = 0x12
	OpReturnCallIn byte = 0x13
	OpDrop         byte = 0x1a
	OpSelect       byte = 0x1b
	OpSelectTyped  byte = 0x1c
	OpLocalGet     byte = 0x20
	OpLocalSet     byte = 0x21
	OpLocalTee     byte = 0x22
	OpGlobalGet    byte = 0x23
	OpGlobalSet    byte = 0x24
	OpTableGet     byte = 0x25
	OpTableSet     byte = 0x26
	OpI32Load      byte = 0x28
	OpI64Load32U   byte = 0x35
	OpI32Store     byte = 0x36
	OpI64Store32   byte = 0x3e
	OpMemorySize   byte = 0x3f
	OpMemoryGrow   byte = 0x40
	OpI32Const     byte = 0x41
	OpI64Const     byte = 0x42
	OpF32Const     byte = 0x43
	OpF64Const     byte = 0x44
	OpI32Add       byte = 0x6a
	OpI32Sub       byte = 0x6b
	OpI32GtU       byte = 0x4b
	OpI64LtS       byte = 0x53
	OpI64Sub       byte = 0x7d
	OpI64Mul       byte = 0x7e
	OpI64ExtendI32 byte = 0xad
	OpLastNumeric  byte = 0xc4
	OpRefNull      byte = 0xd0
	OpRefIsNull    byte = 0xd1
	OpRefFunc      byte = 0xd2
	OpMiscPrefix   byte = 0xfc
	OpVectorPrefix byte = 0xfd
)

// Sub-opcodes of the 0xfc prefix.
const (
	MiscI64TruncSatF64U uint32 = 7
	MiscMemoryInit      uint32 = 8
	MiscDataDrop        uint32 = 9
	MiscMemoryCopy      uint32 = 10
	MiscMemoryFill      uint32 = 11
	MiscTableInit       uint32 = 12
	MiscElemDrop        uint32 = 13
	MiscTableCopy       uint32 = 14
	MiscTableGrow       uint32 = 15
	MiscTableSize       uint32 = 16
	MiscTableFill       uint32 = 17
)

// BlockTypeEmpty is the block type of a block without results.
const BlockTypeEmpty byte = 0x40

// ErrUnsupportedOpcode is returned for instructions outside the supported feature set.
var ErrUnsupportedOpcode = errors.New("unsupported opcode")

// Instruction is a decoded instruction. Start and End delimit its encoding,
// immediates included, within the expression it was read from.
type Instruction struct {
	Opcode byte
	// Misc is the sub-opcode of 0xfc prefixed instructions.
	Misc  uint32
	Start int
	End   int
	// Index is the first index immediate, e.g. the callee of a call.
	Index uint32
}

// IsMisc reports whether the instruction is the 0xfc prefixed op sub.
func (in Instruction) IsMisc(sub uint32) bool {
	return in.Opcode == OpMiscPrefix && in.Misc == sub
}

// IsLoad reports whether the instruction reads linear memory.
func (in Instruction) IsLoad() bool {
	return in.Opcode >= OpI32Load && in.Opcode <= OpI64Load32U
}

// IsStore reports whether the instruction writes linear memory.
func (in Instruction) IsStore() bool {
	return in.Opcode >= OpI32Store && in.Opcode <= OpI64Store32
}

// LocalEntry is a run of locals sharing a type.
type LocalEntry struct {
	Count uint32
	Type  ValueType
}

// Body is a decoded function body.
type Body struct {
	Locals []LocalEntry
	// Code is the instruction sequence including the terminating end.
	Code []byte
}

// LocalCount returns the number of declared locals.
func (b Body) LocalCount() uint64 {
	var n uint64
	for _, l := range b.Locals {
		n += uint64(l.Count)
	}
	return n
}

// DecodeBody splits a function body into its locals and expression.
func DecodeBody(raw []byte) (Body, error) {
	r := NewReader(raw)
	locals, err := decodeVec(r, func(r *Reader) (LocalEntry, error) {
		n, err := r.U32()
		if err != nil {
			return LocalEntry{}, err
		}
		t, err := r.Byte()
		return LocalEntry{Count: n, Type: ValueType(t)}, err
	})
	if err != nil {
		return Body{}, fmt.Errorf("locals: %w", err)
	}
	return Body{Locals: locals, Code: r.Rest()}, nil
}

// AppendBody encodes a size-prefixed function body.
func AppendBody(dst []byte, b Body) []byte {
	enc := AppendU32(nil, uint32(len(b.Locals)))
	for _, l := range b.Locals {
		enc = AppendU32(enc, l.Count)
		enc = append(enc, byte(l.Type))
	}
	enc = append(enc, b.Code...)
	dst = AppendU32(dst, uint32(len(enc)))
	return append(dst, enc...)
}

// Decode reads the instruction at pos of code.
func Decode(code []byte, pos int) (Instruction, error) {
	r := NewReader(code)
	if err := r.Skip(pos); err != nil {
		return Instruction{}, err
	}
	op, err := r.Byte()
	if err != nil {
		return Instruction{}, err
	}
	in := Instruction{Opcode: op, Start: pos}
	if err := decodeImmediates(r, &in); err != nil {
		return Instruction{}, fmt.Errorf("opcode 0x%02x at %d: %w", op, pos, err)
	}
	in.End = r.Pos()
	return in, nil
}

func decodeImmediates(r *Reader, in *Instruction) error {
	var err error
	switch op := in.Opcode; {
	case op == OpUnreachable, op == OpNop, op == OpElse, op == OpEnd,
		op == OpReturn, op == OpDrop, op == OpSelect, op == OpRefIsNull:
		return nil
	case op == OpBlock, op == OpLoop, op == OpIf:
		_, err = r.S33()
	case op == OpBr, op == OpBrIf, op == OpCall, op == OpRefFunc,
		op >= OpLocalGet && op <= OpTableSet:
		in.Index, err = r.U32()
	case op == OpBrTable:
		var n uint32
		if n, err = r.U32(); err != nil {
			return err
		}
		for i := uint64(0); i <= uint64(n); i++ {
			if _, err = r.U32(); err != nil {
				return err
			}
		}
	case op == OpCallIndirect:
		if in.Index, err = r.U32(); err == nil {
			_, err = r.U32()
		}
	case op == OpSelectTyped:
		_, err = readValueTypes(r)
	case op >= OpI32Load && op <= OpI64Store32:
		if _, err = r.U32(); err == nil {
			_, err = r.U32()
		}
	case op == OpMemorySize, op == OpMemoryGrow:
		_, err = r.Byte()
	case op == OpI32Const:
		_, err = r.S32()
	case op == OpI64Const:
		_, err = r.S64()
	case op == OpF32Const:
		err = r.Skip(4)
	case op == OpF64Const:
		err = r.Skip(8)
	case op > OpF64Const && op <= OpLastNumeric:
		return nil
	case op == OpRefNull:
		_, err = r.Byte()
	case op == OpMiscPrefix:
		if in.Misc, err = r.U32(); err != nil {
			return err
		}
		err = decodeMiscImmediates(r, in)
	default:
		return ErrUnsupportedOpcode
	}
	return err
}

func decodeMiscImmediates(r *Reader, in *Instruction) error {
	var err error
	switch sub := in.Misc; {
	case sub <= MiscI64TruncSatF64U:
		return nil
	case sub == MiscMemoryInit:
		if in.Index, err = r.U32(); err == nil {
			_, err = r.Byte()
		}
	case sub == MiscDataDrop, sub == MiscElemDrop,
		sub == MiscTableGrow, sub == MiscTableSize, sub == MiscTableFill:
		in.Index, err = r.U32()
	case sub == MiscMemoryCopy:
		err = r.Skip(2)
	case sub == MiscMemoryFill:
		_, err = r.Byte()
	case sub == MiscTableInit, sub == MiscTableCopy:
		if in.Index, err = r.U32(); err == nil {
			_, err = r.U32()
		}
	default:
		return ErrUnsupportedOpcode
	}
	return err
}

// Walk decodes every instruction of code in order, stopping at the first
// error returned by fn or by decoding.
func Walk(code []byte, fn func(Instruction) error) error {
	for pos := 0; pos < len(code); {
		in, err := Decode(code, pos)
		if err != nil {
			return err
		}
		if err := fn(in); err != nil {
			return err
		}
		pos = in.End
	}
	return nil
}
