// Package wasmbin reads and rewrites the WebAssembly binary format to the
// extent needed to inspect and instrument oracle scripts. Sections it does not
// need to understand are carried through as opaque payloads.
package wasmbin

import (
	"bytes"
	"fmt"
)

// Magic and Version form the eight byte header of every module.
var (
	Magic   = []byte{0x00, 0x61, 0x73, 0x6d}
	Version = []byte{0x01, 0x00, 0x00, 0x00}
)

// SectionID identifies a module section.
type SectionID byte

const (
	SectionCustom    SectionID = 0
	SectionType      SectionID = 1
	SectionImport    SectionID = 2
	SectionFunction  SectionID = 3
	SectionTable     SectionID = 4
	SectionMemory    SectionID = 5
	SectionGlobal    SectionID = 6
	SectionExport    SectionID = 7
	SectionStart     SectionID = 8
	SectionElement   SectionID = 9
	SectionCode      SectionID = 10
	SectionData      SectionID = 11
	SectionDataCount SectionID = 12
)

// rank is the mandatory relative order of known sections.
// The data count section sits between element and code despite its id.
func (id SectionID) rank() int {
	switch id {
	case SectionDataCount:
		return 10
	case SectionCode:
		return 11
	case SectionData:
		return 12
	default:
		return int(id)
	}
}

// ValueType is a WebAssembly value type.
type ValueType byte

const (
	ValueTypeI32       ValueType = 0x7f
	ValueTypeI64       ValueType = 0x7e
	ValueTypeF32       ValueType = 0x7d
	ValueTypeF64       ValueType = 0x7c
	ValueTypeV128      ValueType = 0x7b
	ValueTypeFuncref   ValueType = 0x70
	ValueTypeExternref ValueType = 0x6f
)

// ExternKind is the kind of an import or export.
type ExternKind byte

const (
	ExternFunc   ExternKind = 0
	ExternTable  ExternKind = 1
	ExternMemory ExternKind = 2
	ExternGlobal ExternKind = 3
)

func (k ExternKind) String() string {
	switch k {
	case ExternFunc:
		return "func"
	case ExternTable:
		return "table"
	case ExternMemory:
		return "memory"
	case ExternGlobal:
		return "global"
	default:
		return fmt.Sprintf("extern(%d)", byte(k))
	}
}

// Section is a raw section. Payload excludes the id and size prefix.
type Section struct {
	ID      SectionID
	Payload []byte
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

// Limits bound the size of a memory or table.
type Limits struct {
	// Flags is the raw limits flag byte. Bit 0 marks a maximum,
	// bit 1 a shared memory and bit 2 a 64-bit memory.
	Flags  byte
	Min    uint64
	Max    uint64
	HasMax bool
}

// Import is one entry of the import section.
type Import struct {
	Module string
	Name   string
	Kind   ExternKind
	// TypeIndex is set for function imports.
	TypeIndex uint32
	// Limits is set for memory and table imports.
	Limits Limits
}

// Export is one entry of the export section.
type Export struct {
	Name  string
	Kind  ExternKind
	Index uint32
}

// Module is a parsed module. Sections keeps the original layout and is the
// source of truth for Encode; the remaining fields are decoded views.
type Module struct {
	Sections []Section

	Types     []FuncType
	Imports   []Import
	Functions []uint32
	Memories  []Limits
	Exports   []Export
	Globals   uint32
	HasStart  bool
	Bodies    [][]byte
}

// ImportedFunctions returns the number of imported functions.
func (m *Module) ImportedFunctions() uint32 {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Kind == ExternFunc {
			n++
		}
	}
	return n
}

// ImportedGlobals returns the number of imported globals.
func (m *Module) ImportedGlobals() uint32 {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Kind == ExternGlobal {
			n++
		}
	}
	return n
}

// Section returns the first section with the given id.
func (m *Module) Section(id SectionID) (Section, bool) {
	for _, s := range m.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// SetSection replaces the section with the given id, inserting it at its
// canonical position when absent. Custom sections cannot be set.
func (m *Module) SetSection(id SectionID, payload []byte) {
	for i := range m.Sections {
		if m.Sections[i].ID == id {
			m.Sections[i].Payload = payload
			return
		}
	}
	at := len(m.Sections)
	for i, s := range m.Sections {
		if s.ID != SectionCustom && s.ID.rank() > id.rank() {
			at = i
			break
		}
	}
	m.Sections = append(m.Sections, Section{})
	copy(m.Sections[at+1:], m.Sections[at:])
	m.Sections[at] = Section{ID: id, Payload: payload}
}

// Encode serializes the sections back into a binary module.
func (m *Module) Encode() []byte {
	size := len(Magic) + len(Version)
	for _, s := range m.Sections {
		size += 1 + 5 + len(s.Payload)
	}
	out := make([]byte, 0, size)
	out = append(out, Magic...)
	out = append(out, Version...)
	for _, s := range m.Sections {
		out = append(out, byte(s.ID))
		out = AppendU32(out, uint32(len(s.Payload)))
		out = append(out, s.Payload...)
	}
	return out
}

// Parse decodes the section layout of a module together with the sections
// needed for validation and instrumentation. It does not validate function
// bodies; callers are expected to have compiled the module first.
func Parse(code []byte) (*Module, error) {
	if len(code) < 8 || !bytes.Equal(code[:4], Magic) {
		return nil, fmt.Errorf("invalid magic number")
	}
	if !bytes.Equal(code[4:8], Version) {
		return nil, fmt.Errorf("unsupported binary version %x", code[4:8])
	}
	m := &Module{}
	r := NewReader(code[8:])
	lastRank := 0
	for r.Len() > 0 {
		id, err := r.Byte()
		if err != nil {
			return nil, err
		}
		size, err := r.U32()
		if err != nil {
			return nil, fmt.Errorf("section %d size: %w", id, err)
		}
		payload, err := r.Bytes(int(size))
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", id, err)
		}
		sid := SectionID(id)
		if sid > SectionDataCount {
			return nil, fmt.Errorf("unknown section id %d", id)
		}
		if sid != SectionCustom {
			if sid.rank() <= lastRank {
				return nil, fmt.Errorf("section %d out of order", id)
			}
			lastRank = sid.rank()
		}
		m.Sections = append(m.Sections, Section{ID: sid, Payload: payload})
		if err := m.decodeSection(sid, payload); err != nil {
			return nil, fmt.Errorf("section %d: %w", id, err)
		}
	}
	if len(m.Functions) != len(m.Bodies) {
		return nil, fmt.Errorf("function and code section counts differ: %d != %d", len(m.Functions), len(m.Bodies))
	}
	return m, nil
}

func (m *Module) decodeSection(id SectionID, payload []byte) error {
	r := NewReader(payload)
	var err error
	switch id {
	case SectionType:
		m.Types, err = decodeVec(r, readFuncType)
	case SectionImport:
		m.Imports, err = decodeVec(r, readImport)
	case SectionFunction:
		m.Functions, err = decodeVec(r, (*Reader).U32)
	case SectionMemory:
		m.Memories, err = decodeVec(r, ReadLimits)
	case SectionExport:
		m.Exports, err = decodeVec(r, readExport)
	case SectionGlobal:
		m.Globals, err = r.U32()
		return err
	case SectionStart:
		m.HasStart = true
		return nil
	case SectionCode:
		m.Bodies, err = decodeVec(r, readBody)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	if r.Len() != 0 {
		return fmt.Errorf("%d trailing bytes", r.Len())
	}
	return nil
}

func decodeVec[T any](r *Reader, read func(*Reader) (T, error)) ([]T, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	// Every entry occupies at least one byte.
	if int(n) > r.Len() {
		return nil, ErrUnexpectedEOF
	}
	out := make([]T, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := read(r)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func readValueTypes(r *Reader) ([]ValueType, error) {
	return decodeVec(r, func(r *Reader) (ValueType, error) {
		b, err := r.Byte()
		return ValueType(b), err
	})
}

func readFuncType(r *Reader) (FuncType, error) {
	form, err := r.Byte()
	if err != nil {
		return FuncType{}, err
	}
	if form != 0x60 {
		return FuncType{}, fmt.Errorf("invalid func type form 0x%x", form)
	}
	params, err := readValueTypes(r)
	if err != nil {
		return FuncType{}, err
	}
	results, err := readValueTypes(r)
	if err != nil {
		return FuncType{}, err
	}
	return FuncType{Params: params, Results: results}, nil
}

// ReadLimits decodes a limits structure.
func ReadLimits(r *Reader) (Limits, error) {
	flags, err := r.Byte()
	if err != nil {
		return Limits{}, err
	}
	if flags > 0x07 {
		return Limits{}, fmt.Errorf("invalid limits flags 0x%x", flags)
	}
	l := Limits{Flags: flags}
	if l.Min, err = r.U64(); err != nil {
		return Limits{}, err
	}
	if flags&0x01 != 0 {
		l.HasMax = true
		if l.Max, err = r.U64(); err != nil {
			return Limits{}, err
		}
	}
	return l, nil
}

// AppendLimits encodes l, keeping its shared and memory64 flags.
func AppendLimits(dst []byte, l Limits) []byte {
	flags := l.Flags &^ 0x01
	if l.HasMax {
		flags |= 0x01
	}
	dst = append(dst, flags)
	dst = AppendU64(dst, l.Min)
	if l.HasMax {
		dst = AppendU64(dst, l.Max)
	}
	return dst
}

func readImport(r *Reader) (Import, error) {
	var imp Import
	var err error
	if imp.Module, err = r.Name(); err != nil {
		return imp, err
	}
	if imp.Name, err = r.Name(); err != nil {
		return imp, err
	}
	kind, err := r.Byte()
	if err != nil {
		return imp, err
	}
	imp.Kind = ExternKind(kind)
	switch imp.Kind {
	case ExternFunc:
		imp.TypeIndex, err = r.U32()
	case ExternTable:
		if _, err = r.Byte(); err == nil {
			imp.Limits, err = ReadLimits(r)
		}
	case ExternMemory:
		imp.Limits, err = ReadLimits(r)
	case ExternGlobal:
		err = r.Skip(2)
	default:
		err = fmt.Errorf("invalid import kind 0x%x", kind)
	}
	return imp, err
}

func readExport(r *Reader) (Export, error) {
	var exp Export
	var err error
	if exp.Name, err = r.Name(); err != nil {
		return exp, err
	}
	kind, err := r.Byte()
	if err != nil {
		return exp, err
	}
	exp.Kind = ExternKind(kind)
	if exp.Kind > ExternGlobal {
		return exp, fmt.Errorf("invalid export kind 0x%x", kind)
	}
	exp.Index, err = r.U32()
	return exp, err
}

func readBody(r *Reader) ([]byte, error) {
	size, err := r.U32()
	if err != nil {
		return nil, err
	}
	return r.Bytes(int(size))
}

// AppendExport encodes a single export entry.
func AppendExport(dst []byte, e Export) []byte {
	dst = AppendName(dst, e.Name)
	dst = append(dst, byte(e.Kind))
	return AppendU32(dst, e.Index)
}
