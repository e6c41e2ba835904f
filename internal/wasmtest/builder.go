// Package wasmtest assembles small WebAssembly modules for tests.
package wasmtest

import (
	"github.com/owasm-vm/owasmvm/internal/runtime/wasmbin"
)

// Value types, re-exported for brevity in tests.
const (
	I32 = wasmbin.ValueTypeI32
	I64 = wasmbin.ValueTypeI64
	F32 = wasmbin.ValueTypeF32
	F64 = wasmbin.ValueTypeF64
)

// V is shorthand for a list of value types.
func V(types ...wasmbin.ValueType) []wasmbin.ValueType { return types }

// N returns n values of type t.
func N(t wasmbin.ValueType, n int) []wasmbin.ValueType {
	out := make([]wasmbin.ValueType, n)
	for i := range out {
		out[i] = t
	}
	return out
}

type importEntry struct {
	module, name string
	kind         wasmbin.ExternKind
	typeIndex    uint32
	raw          []byte
}

type function struct {
	typeIndex uint32
	locals    []wasmbin.ValueType
	code      []byte
}

type elemSegment struct {
	offset uint32
	funcs  []uint32
}

type dataSegment struct {
	offset uint32
	bytes  []byte
}

// Builder accumulates module entities and encodes them with Build.
// Imports must be declared before local functions.
type Builder struct {
	types       []wasmbin.FuncType
	imports     []importEntry
	importFuncs uint32
	funcs       []function
	table       *wasmbin.Limits
	elems       []elemSegment
	memory      *wasmbin.Limits
	globals     [][]byte
	exports     []wasmbin.Export
	start       *uint32
	data        []dataSegment
	custom      [][]byte
}

// New returns an empty module builder.
func New() *Builder {
	return &Builder{}
}

// Type returns the index of the given signature, adding it if needed.
func (b *Builder) Type(params, results []wasmbin.ValueType) uint32 {
	for i, t := range b.types {
		if equalTypes(t.Params, params) && equalTypes(t.Results, results) {
			return uint32(i)
		}
	}
	b.types = append(b.types, wasmbin.FuncType{Params: params, Results: results})
	return uint32(len(b.types) - 1)
}

// ImportFunc declares a function import and returns its function index.
func (b *Builder) ImportFunc(module, name string, params, results []wasmbin.ValueType) uint32 {
	if len(b.funcs) > 0 {
		panic("wasmtest: imports must precede functions")
	}
	t := b.Type(params, results)
	b.imports = append(b.imports, importEntry{module: module, name: name, kind: wasmbin.ExternFunc, typeIndex: t})
	b.importFuncs++
	return b.importFuncs - 1
}

// ImportMemory declares a memory import.
func (b *Builder) ImportMemory(module, name string, min uint32) {
	raw := wasmbin.AppendLimits(nil, wasmbin.Limits{Min: uint64(min)})
	b.imports = append(b.imports, importEntry{module: module, name: name, kind: wasmbin.ExternMemory, raw: raw})
}

// Func adds a function whose body is the concatenation of code. The
// terminating end is appended. It returns the function index.
func (b *Builder) Func(params, results, locals []wasmbin.ValueType, code ...[]byte) uint32 {
	var body []byte
	for _, c := range code {
		body = append(body, c...)
	}
	body = append(body, wasmbin.OpEnd)
	b.funcs = append(b.funcs, function{typeIndex: b.Type(params, results), locals: locals, code: body})
	return b.importFuncs + uint32(len(b.funcs)-1)
}

// Memory defines the module memory with the given initial pages.
func (b *Builder) Memory(min uint32) *Builder {
	b.memory = &wasmbin.Limits{Min: uint64(min)}
	return b
}

// MemoryMax defines the module memory with initial and maximum pages.
func (b *Builder) MemoryMax(min, max uint32) *Builder {
	b.memory = &wasmbin.Limits{Min: uint64(min), Max: uint64(max), HasMax: true}
	return b
}

// Table defines a funcref table with the given initial size and no maximum.
func (b *Builder) Table(min uint32) *Builder {
	b.table = &wasmbin.Limits{Min: uint64(min)}
	return b
}

// Elem adds an active element segment placing funcs into table 0 at offset.
func (b *Builder) Elem(offset uint32, funcs ...uint32) *Builder {
	b.elems = append(b.elems, elemSegment{offset: offset, funcs: funcs})
	return b
}

// GlobalI64 adds a mutable i64 global and returns its index.
func (b *Builder) GlobalI64(init int64) uint32 {
	g := []byte{byte(wasmbin.ValueTypeI64), 0x01}
	g = append(g, I64Const(init)...)
	g = append(g, wasmbin.OpEnd)
	b.globals = append(b.globals, g)
	return uint32(len(b.globals) - 1)
}

// Export exports an entity.
func (b *Builder) Export(name string, kind wasmbin.ExternKind, index uint32) *Builder {
	b.exports = append(b.exports, wasmbin.Export{Name: name, Kind: kind, Index: index})
	return b
}

// ExportFunc exports a function.
func (b *Builder) ExportFunc(name string, index uint32) *Builder {
	return b.Export(name, wasmbin.ExternFunc, index)
}

// ExportMemory exports memory 0.
func (b *Builder) ExportMemory(name string) *Builder {
	return b.Export(name, wasmbin.ExternMemory, 0)
}

// Start sets the start function.
func (b *Builder) Start(index uint32) *Builder {
	b.start = &index
	return b
}

// Data adds an active data segment for memory 0.
func (b *Builder) Data(offset uint32, bytes []byte) *Builder {
	b.data = append(b.data, dataSegment{offset: offset, bytes: bytes})
	return b
}

// Custom appends a custom section with the given name.
func (b *Builder) Custom(name string, payload []byte) *Builder {
	b.custom = append(b.custom, append(wasmbin.AppendName(nil, name), payload...))
	return b
}

// Build encodes the module.
func (b *Builder) Build() []byte {
	m := &wasmbin.Module{}
	add := func(id wasmbin.SectionID, payload []byte) {
		m.Sections = append(m.Sections, wasmbin.Section{ID: id, Payload: payload})
	}
	if len(b.types) > 0 {
		p := wasmbin.AppendU32(nil, uint32(len(b.types)))
		for _, t := range b.types {
			p = append(p, 0x60)
			p = appendTypes(p, t.Params)
			p = appendTypes(p, t.Results)
		}
		add(wasmbin.SectionType, p)
	}
	if len(b.imports) > 0 {
		p := wasmbin.AppendU32(nil, uint32(len(b.imports)))
		for _, imp := range b.imports {
			p = wasmbin.AppendName(p, imp.module)
			p = wasmbin.AppendName(p, imp.name)
			p = append(p, byte(imp.kind))
			if imp.kind == wasmbin.ExternFunc {
				p = wasmbin.AppendU32(p, imp.typeIndex)
			} else {
				p = append(p, imp.raw...)
			}
		}
		add(wasmbin.SectionImport, p)
	}
	if len(b.funcs) > 0 {
		p := wasmbin.AppendU32(nil, uint32(len(b.funcs)))
		for _, f := range b.funcs {
			p = wasmbin.AppendU32(p, f.typeIndex)
		}
		add(wasmbin.SectionFunction, p)
	}
	if b.table != nil {
		add(wasmbin.SectionTable, wasmbin.AppendLimits([]byte{1, byte(wasmbin.ValueTypeFuncref)}, *b.table))
	}
	if b.memory != nil {
		add(wasmbin.SectionMemory, wasmbin.AppendLimits([]byte{1}, *b.memory))
	}
	if len(b.globals) > 0 {
		p := wasmbin.AppendU32(nil, uint32(len(b.globals)))
		for _, g := range b.globals {
			p = append(p, g...)
		}
		add(wasmbin.SectionGlobal, p)
	}
	if len(b.exports) > 0 {
		p := wasmbin.AppendU32(nil, uint32(len(b.exports)))
		for _, e := range b.exports {
			p = wasmbin.AppendExport(p, e)
		}
		add(wasmbin.SectionExport, p)
	}
	if b.start != nil {
		add(wasmbin.SectionStart, wasmbin.AppendU32(nil, *b.start))
	}
	if len(b.elems) > 0 {
		p := wasmbin.AppendU32(nil, uint32(len(b.elems)))
		for _, e := range b.elems {
			p = append(p, 0x00)
			p = append(p, I32Const(int32(e.offset))...)
			p = append(p, wasmbin.OpEnd)
			p = wasmbin.AppendU32(p, uint32(len(e.funcs)))
			for _, f := range e.funcs {
				p = wasmbin.AppendU32(p, f)
			}
		}
		add(wasmbin.SectionElement, p)
	}
	if len(b.funcs) > 0 {
		p := wasmbin.AppendU32(nil, uint32(len(b.funcs)))
		for _, f := range b.funcs {
			body := wasmbin.Body{Code: f.code}
			for _, l := range f.locals {
				body.Locals = append(body.Locals, wasmbin.LocalEntry{Count: 1, Type: l})
			}
			p = wasmbin.AppendBody(p, body)
		}
		add(wasmbin.SectionCode, p)
	}
	if len(b.data) > 0 {
		p := wasmbin.AppendU32(nil, uint32(len(b.data)))
		for _, d := range b.data {
			p = append(p, 0x00)
			p = append(p, I32Const(int32(d.offset))...)
			p = append(p, wasmbin.OpEnd)
			p = wasmbin.AppendU32(p, uint32(len(d.bytes)))
			p = append(p, d.bytes...)
		}
		add(wasmbin.SectionData, p)
	}
	for _, c := range b.custom {
		add(wasmbin.SectionCustom, c)
	}
	return m.Encode()
}

func appendTypes(dst []byte, types []wasmbin.ValueType) []byte {
	dst = wasmbin.AppendU32(dst, uint32(len(types)))
	for _, t := range types {
		dst = append(dst, byte(t))
	}
	return dst
}

func equalTypes(a, b []wasmbin.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
