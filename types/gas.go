package types

// Gas represents the amount of computational resources consumed during execution.
type Gas = uint64

// OperationCost defines a cost function with a base and a variable component.
type OperationCost struct {
	Base    uint64 `json:"base"`
	PerByte uint64 `json:"per_byte"`
}

// TotalCost calculates the cost of an operation touching n bytes.
// The result saturates at the maximum uint64 value.
func (c OperationCost) TotalCost(n uint64) uint64 {
	if n != 0 && c.PerByte > (^uint64(0)-c.Base)/n {
		return ^uint64(0)
	}
	return c.Base + c.PerByte*n
}

// InstructionCosts prices executed WebAssembly instructions by category.
// Static costs are summed per straight-line segment at instrumentation time,
// dynamic costs are computed from the runtime operand.
type InstructionCosts struct {
	// Default applies to every instruction not covered by another category.
	Default uint64 `json:"default"`
	// Control covers block, loop, if, else, end, br, br_if, br_table, return, nop and unreachable.
	Control uint64 `json:"control"`
	// Call covers call and call_indirect.
	Call uint64 `json:"call"`
	// Load covers all memory load instructions.
	Load uint64 `json:"load"`
	// Store covers all memory store instructions.
	Store uint64 `json:"store"`
	// MemoryGrow is the static part of memory.grow.
	MemoryGrow uint64 `json:"memory_grow"`
	// MemoryGrowPerPage is charged for every page requested by memory.grow.
	MemoryGrowPerPage uint64 `json:"memory_grow_per_page"`
	// Bulk is the static part of memory.copy/fill/init and table.grow/copy/fill/init.
	Bulk uint64 `json:"bulk"`
	// BulkPerUnit is charged per byte (memory) or element (table) touched by a bulk instruction.
	BulkPerUnit uint64 `json:"bulk_per_unit"`
	// Local is charged on function entry for every declared local, which the
	// engine zeroes on each call.
	Local uint64 `json:"local"`
}

// HostCallCosts prices every OEI function. PerByte applies to the number of
// bytes copied across the sandbox boundary.
type HostCallCosts struct {
	GetCalldata           OperationCost `json:"get_calldata"`
	SetReturnData         OperationCost `json:"set_return_data"`
	AskExternalData       OperationCost `json:"ask_external_data"`
	GetExternalDataStatus OperationCost `json:"get_external_data_status"`
	GetExternalData       OperationCost `json:"get_external_data"`
	// Metadata covers the read-only accessors (ask/min/ans count, span size, times).
	Metadata OperationCost `json:"metadata"`
}

// GasCostTable is the complete, immutable pricing used by one module.
type GasCostTable struct {
	Instructions InstructionCosts `json:"instructions"`
	HostCalls    HostCallCosts    `json:"host_calls"`
}

// Default costs. One gas per instruction, host calls priced as a fixed
// overhead plus a per-byte copy fee, writes into guest memory being dearer
// than reads from it.
const (
	gasPerInstruction     = 1
	gasPerGrowPage        = 1_000
	gasPerBulkUnit        = 1
	gasPerLocal           = 1
	gasHostCallBase       = 500
	gasReadMemoryPerByte  = 1
	gasWriteMemoryPerByte = 3
)

// DefaultGasCostTable returns the default gas pricing.
func DefaultGasCostTable() GasCostTable {
	return GasCostTable{
		Instructions: InstructionCosts{
			Default:           gasPerInstruction,
			Control:           gasPerInstruction,
			Call:              gasPerInstruction,
			Load:              gasPerInstruction,
			Store:             gasPerInstruction,
			MemoryGrow:        gasPerInstruction,
			MemoryGrowPerPage: gasPerGrowPage,
			Bulk:              gasPerInstruction,
			BulkPerUnit:       gasPerBulkUnit,
			Local:             gasPerLocal,
		},
		HostCalls: HostCallCosts{
			GetCalldata:           OperationCost{Base: gasHostCallBase, PerByte: gasWriteMemoryPerByte},
			SetReturnData:         OperationCost{Base: gasHostCallBase, PerByte: gasReadMemoryPerByte},
			AskExternalData:       OperationCost{Base: gasHostCallBase, PerByte: gasReadMemoryPerByte},
			GetExternalDataStatus: OperationCost{Base: gasHostCallBase},
			GetExternalData:       OperationCost{Base: gasHostCallBase, PerByte: gasWriteMemoryPerByte},
			Metadata:              OperationCost{Base: gasHostCallBase},
		},
	}
}
