package wasmtest

import (
	"github.com/owasm-vm/owasmvm/internal/runtime/wasmbin"
)

func op(code byte, imm ...byte) []byte {
	return append([]byte{code}, imm...)
}

func idx(code byte, i uint32) []byte {
	return wasmbin.AppendU32([]byte{code}, i)
}

func misc(sub uint32, imm ...byte) []byte {
	return append(wasmbin.AppendU32([]byte{wasmbin.OpMiscPrefix}, sub), imm...)
}

func I32Const(v int32) []byte { return wasmbin.AppendS64([]byte{wasmbin.OpI32Const}, int64(v)) }
func I64Const(v int64) []byte { return wasmbin.AppendS64([]byte{wasmbin.OpI64Const}, v) }

func LocalGet(i uint32) []byte { return idx(wasmbin.OpLocalGet, i) }
func LocalSet(i uint32) []byte { return idx(wasmbin.OpLocalSet, i) }
func LocalTee(i uint32) []byte { return idx(wasmbin.OpLocalTee, i) }
func GlobalGet(i uint32) []byte { return idx(wasmbin.OpGlobalGet, i) }
func GlobalSet(i uint32) []byte { return idx(wasmbin.OpGlobalSet, i) }
func Call(i uint32) []byte { return idx(wasmbin.OpCall, i) }
func Br(depth uint32) []byte { return idx(wasmbin.OpBr, depth) }
func BrIf(depth uint32) []byte { return idx(wasmbin.OpBrIf, depth) }

func CallIndirect(typeIndex uint32) []byte {
	return append(idx(wasmbin.OpCallIndirect, typeIndex), 0x00)
}

func Block() []byte { return op(wasmbin.OpBlock, wasmbin.BlockTypeEmpty) }
func Loop() []byte { return op(wasmbin.OpLoop, wasmbin.BlockTypeEmpty) }
func If() []byte { return op(wasmbin.OpIf, wasmbin.BlockTypeEmpty) }
func Else() []byte { return op(wasmbin.OpElse) }
func End() []byte { return op(wasmbin.OpEnd) }
func Return() []byte { return op(wasmbin.OpReturn) }
func Unreachable() []byte { return op(wasmbin.OpUnreachable) }
func Nop() []byte { return op(wasmbin.OpNop) }
func Drop() []byte { return op(wasmbin.OpDrop) }

func I32Add() []byte { return op(wasmbin.OpI32Add) }
func I32Sub() []byte { return op(wasmbin.OpI32Sub) }
func I32Eqz() []byte { return op(0x45) }
func I64Add() []byte { return op(0x7c) }
func I32DivU() []byte { return op(0x6e) }
func I64ExtendI32U() []byte { return op(wasmbin.OpI64ExtendI32) }
func I32WrapI64() []byte { return op(0xa7) }

// I32Load8U reads one byte at the address on the stack plus offset.
func I32Load8U(offset uint32) []byte { return wasmbin.AppendU32([]byte{0x2d, 0x00}, offset) }

// I32Store8 stores one byte at the address on the stack plus offset.
func I32Store8(offset uint32) []byte { return wasmbin.AppendU32([]byte{0x3a, 0x00}, offset) }

// I64Store stores eight bytes at the address on the stack plus offset.
func I64Store(offset uint32) []byte { return wasmbin.AppendU32([]byte{0x37, 0x03}, offset) }

// RefNullFunc pushes a null funcref.
func RefNullFunc() []byte { return op(0xd0, byte(wasmbin.ValueTypeFuncref)) }

func TableGrow() []byte { return misc(wasmbin.MiscTableGrow, 0x00) }
func TableSize() []byte { return misc(wasmbin.MiscTableSize, 0x00) }

func MemorySize() []byte { return op(wasmbin.OpMemorySize, 0x00) }
func MemoryGrow() []byte { return op(wasmbin.OpMemoryGrow, 0x00) }
func MemoryFill() []byte { return misc(wasmbin.MiscMemoryFill, 0x00) }
func MemoryCopy() []byte { return misc(wasmbin.MiscMemoryCopy, 0x00, 0x00) }

// Seq concatenates instruction sequences.
func Seq(code ...[]byte) []byte {
	var out []byte
	for _, c := range code {
		out = append(out, c...)
	}
	return out
}
