package gas

import (
	"fmt"
	"math"

	"github.com/owasm-vm/owasmvm/internal/runtime/wasmbin"
	"github.com/owasm-vm/owasmvm/types"
)

// Exports added to every instrumented module. Scripts may not export names
// starting with ReservedExportPrefix.
const (
	ReservedExportPrefix = "__owasm_"
	GasGlobalExport      = ReservedExportPrefix + "gas_left"
	DepthGlobalExport    = ReservedExportPrefix + "call_depth"
)

// Instrument rewrites a parsed module so that it meters its own execution
// against an exported i64 gas global and bounds its call depth with an
// exported i32 global. The memory maximum is pinned to the declared maximum
// or cfg.MaxMemoryPages, whichever is lower. The module must have passed
// validation: Instrument does not type check bodies.
func Instrument(m *wasmbin.Module, cfg types.Config) ([]byte, error) {
	gasIndex := m.ImportedGlobals() + m.Globals
	inj := &injector{
		costs:         cfg.GasCosts.Instructions,
		gas:           gasIndex,
		depth:         gasIndex + 1,
		maxDepth:      cfg.MaxCallDepth,
		importedFuncs: m.ImportedFunctions(),
	}

	code := wasmbin.AppendU32(nil, uint32(len(m.Bodies)))
	for i, raw := range m.Bodies {
		body, err := wasmbin.DecodeBody(raw)
		if err != nil {
			return nil, fmt.Errorf("function %d: %w", i, err)
		}
		typeIndex := m.Functions[i]
		if int(typeIndex) >= len(m.Types) {
			return nil, fmt.Errorf("function %d: type index %d out of range", i, typeIndex)
		}
		locals := uint64(len(m.Types[typeIndex].Params)) + body.LocalCount()
		if locals >= math.MaxUint32 {
			return nil, fmt.Errorf("function %d: too many locals", i)
		}
		inj.scratch = uint32(locals)
		inj.usesScratch = false
		inj.entry = saturatingMul(body.LocalCount(), inj.costs.Local)
		if body.Code, err = inj.instrument(body.Code); err != nil {
			return nil, fmt.Errorf("function %d: %w", i, err)
		}
		if inj.usesScratch {
			body.Locals = append(body.Locals, wasmbin.LocalEntry{Count: 1, Type: wasmbin.ValueTypeI32})
		}
		code = wasmbin.AppendBody(code, body)
	}
	if len(m.Bodies) > 0 {
		m.SetSection(wasmbin.SectionCode, code)
	}

	globals := []byte{byte(wasmbin.ValueTypeI64), 0x01, wasmbin.OpI64Const, 0x00, wasmbin.OpEnd}
	globals = append(globals, byte(wasmbin.ValueTypeI32), 0x01, wasmbin.OpI32Const, 0x00, wasmbin.OpEnd)
	if err := appendToVec(m, wasmbin.SectionGlobal, 2, globals); err != nil {
		return nil, err
	}
	exports := wasmbin.AppendExport(nil, wasmbin.Export{Name: GasGlobalExport, Kind: wasmbin.ExternGlobal, Index: inj.gas})
	exports = wasmbin.AppendExport(exports, wasmbin.Export{Name: DepthGlobalExport, Kind: wasmbin.ExternGlobal, Index: inj.depth})
	if err := appendToVec(m, wasmbin.SectionExport, 2, exports); err != nil {
		return nil, err
	}

	if len(m.Memories) > 0 {
		mems := wasmbin.AppendU32(nil, uint32(len(m.Memories)))
		for _, l := range m.Memories {
			mems = wasmbin.AppendLimits(mems, PinMemory(l, cfg.MaxMemoryPages))
		}
		m.SetSection(wasmbin.SectionMemory, mems)
	}
	return m.Encode(), nil
}

// PinMemory bounds the maximum of l by limit.
func PinMemory(l wasmbin.Limits, limit uint32) wasmbin.Limits {
	if !l.HasMax || l.Max > uint64(limit) {
		l.Max = uint64(limit)
		l.HasMax = true
	}
	return l
}

// appendToVec appends n encoded entries to the vector held by section id,
// creating the section if needed.
func appendToVec(m *wasmbin.Module, id wasmbin.SectionID, n uint32, entries []byte) error {
	var count uint32
	var rest []byte
	if s, ok := m.Section(id); ok {
		r := wasmbin.NewReader(s.Payload)
		c, err := r.U32()
		if err != nil {
			return fmt.Errorf("section %d: %w", id, err)
		}
		count, rest = c, r.Rest()
	}
	payload := wasmbin.AppendU32(nil, count+n)
	payload = append(payload, rest...)
	payload = append(payload, entries...)
	m.SetSection(id, payload)
	return nil
}

type injector struct {
	costs         types.InstructionCosts
	gas           uint32
	depth         uint32
	maxDepth      uint32
	importedFuncs uint32
	scratch       uint32
	usesScratch   bool
	// entry is charged with the first segment of the function.
	entry uint64
}

// instrument meters one function expression. The expression is split into
// straight-line segments and the static cost of each segment is charged on
// entry to it.
func (j *injector) instrument(code []byte) ([]byte, error) {
	var instrs []wasmbin.Instruction
	segments := make(map[int]uint64)
	start, cost := 0, j.entry
	err := wasmbin.Walk(code, func(in wasmbin.Instruction) error {
		instrs = append(instrs, in)
		cost = saturatingAdd(cost, j.staticCost(in))
		if startsSegment(in.Opcode) && in.End < len(code) {
			segments[start] = cost
			start, cost = in.End, 0
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	segments[start] = cost

	out := make([]byte, 0, 2*len(code))
	for _, in := range instrs {
		if c := segments[in.Start]; c > 0 {
			out = j.charge(out, c)
		}
		raw := code[in.Start:in.End]
		switch {
		case in.Opcode == wasmbin.OpMemoryGrow:
			out = j.chargeOperand(out, j.costs.MemoryGrowPerPage)
			out = append(out, raw...)
		case isBulk(in):
			out = j.chargeOperand(out, j.costs.BulkPerUnit)
			out = append(out, raw...)
		case in.Opcode == wasmbin.OpCallIndirect,
			in.Opcode == wasmbin.OpCall && in.Index >= j.importedFuncs:
			out = j.enterCall(out)
			out = append(out, raw...)
			out = j.leaveCall(out)
		default:
			out = append(out, raw...)
		}
	}
	return out, nil
}

func (j *injector) staticCost(in wasmbin.Instruction) uint64 {
	switch {
	case isControl(in.Opcode):
		return j.costs.Control
	case in.Opcode == wasmbin.OpCall, in.Opcode == wasmbin.OpCallIndirect:
		return j.costs.Call
	case in.IsLoad():
		return j.costs.Load
	case in.IsStore():
		return j.costs.Store
	case in.Opcode == wasmbin.OpMemoryGrow:
		return j.costs.MemoryGrow
	case isBulk(in):
		return j.costs.Bulk
	default:
		return j.costs.Default
	}
}

// charge subtracts a constant from the gas global and traps if it went negative.
func (j *injector) charge(out []byte, cost uint64) []byte {
	if cost > math.MaxInt64 {
		cost = math.MaxInt64
	}
	out = wasmbin.AppendU32(append(out, wasmbin.OpGlobalGet), j.gas)
	out = wasmbin.AppendS64(append(out, wasmbin.OpI64Const), int64(cost))
	out = append(out, wasmbin.OpI64Sub)
	out = wasmbin.AppendU32(append(out, wasmbin.OpGlobalSet), j.gas)
	return j.trapIfExhausted(out)
}

// chargeOperand charges unit times the i32 operand on top of the stack,
// leaving the operand in place.
func (j *injector) chargeOperand(out []byte, unit uint64) []byte {
	if unit == 0 {
		return out
	}
	j.usesScratch = true
	out = wasmbin.AppendU32(append(out, wasmbin.OpLocalSet), j.scratch)
	out = wasmbin.AppendU32(append(out, wasmbin.OpGlobalGet), j.gas)
	out = wasmbin.AppendU32(append(out, wasmbin.OpLocalGet), j.scratch)
	out = append(out, wasmbin.OpI64ExtendI32)
	out = wasmbin.AppendS64(append(out, wasmbin.OpI64Const), int64(unit))
	out = append(out, wasmbin.OpI64Mul, wasmbin.OpI64Sub)
	out = wasmbin.AppendU32(append(out, wasmbin.OpGlobalSet), j.gas)
	out = j.trapIfExhausted(out)
	return wasmbin.AppendU32(append(out, wasmbin.OpLocalGet), j.scratch)
}

func (j *injector) trapIfExhausted(out []byte) []byte {
	out = wasmbin.AppendU32(append(out, wasmbin.OpGlobalGet), j.gas)
	out = append(out, wasmbin.OpI64Const, 0x00, wasmbin.OpI64LtS)
	return append(out, wasmbin.OpIf, wasmbin.BlockTypeEmpty, wasmbin.OpUnreachable, wasmbin.OpEnd)
}

func (j *injector) enterCall(out []byte) []byte {
	out = wasmbin.AppendU32(append(out, wasmbin.OpGlobalGet), j.depth)
	out = append(out, wasmbin.OpI32Const, 0x01, wasmbin.OpI32Add)
	out = wasmbin.AppendU32(append(out, wasmbin.OpGlobalSet), j.depth)
	out = wasmbin.AppendU32(append(out, wasmbin.OpGlobalGet), j.depth)
	out = wasmbin.AppendS64(append(out, wasmbin.OpI32Const), int64(int32(j.maxDepth)))
	out = append(out, wasmbin.OpI32GtU)
	return append(out, wasmbin.OpIf, wasmbin.BlockTypeEmpty, wasmbin.OpUnreachable, wasmbin.OpEnd)
}

func (j *injector) leaveCall(out []byte) []byte {
	out = wasmbin.AppendU32(append(out, wasmbin.OpGlobalGet), j.depth)
	out = append(out, wasmbin.OpI32Const, 0x01, wasmbin.OpI32Sub)
	return wasmbin.AppendU32(append(out, wasmbin.OpGlobalSet), j.depth)
}

func startsSegment(op byte) bool {
	switch op {
	case wasmbin.OpBlock, wasmbin.OpLoop, wasmbin.OpIf, wasmbin.OpElse, wasmbin.OpEnd,
		wasmbin.OpBr, wasmbin.OpBrIf, wasmbin.OpBrTable, wasmbin.OpReturn, wasmbin.OpUnreachable:
		return true
	}
	return false
}

func isControl(op byte) bool {
	return op == wasmbin.OpNop || startsSegment(op)
}

func isBulk(in wasmbin.Instruction) bool {
	if in.Opcode != wasmbin.OpMiscPrefix {
		return false
	}
	switch in.Misc {
	case wasmbin.MiscMemoryInit, wasmbin.MiscMemoryCopy, wasmbin.MiscMemoryFill,
		wasmbin.MiscTableInit, wasmbin.MiscTableCopy, wasmbin.MiscTableGrow, wasmbin.MiscTableFill:
		return true
	}
	return false
}

func saturatingMul(a, b uint64) uint64 {
	if a != 0 && b > math.MaxUint64/a {
		return math.MaxUint64
	}
	return a * b
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
