package host

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/owasm-vm/owasmvm/types"
)

// checkRange validates a guest span. Spans are never clamped.
func checkRange(mem api.Memory, ptr, length int64) *types.RunError {
	if mem == nil {
		return types.NewMemoryViolation("module has no memory")
	}
	if ptr < 0 || length < 0 {
		return types.NewMemoryViolation("negative span [%d, +%d)", ptr, length)
	}
	if uint64(ptr)+uint64(length) > uint64(mem.Size()) {
		return types.NewMemoryViolation("span [%d, +%d) exceeds memory size %d", ptr, length, mem.Size())
	}
	return nil
}

// readMemory copies length bytes out of guest memory.
func readMemory(mem api.Memory, ptr, length int64) ([]byte, *types.RunError) {
	if err := checkRange(mem, ptr, length); err != nil {
		return nil, err
	}
	data, ok := mem.Read(uint32(ptr), uint32(length))
	if !ok {
		return nil, types.NewMemoryViolation("failed to read memory at offset %d, length %d", ptr, length)
	}
	// Read returns a view into guest memory.
	return append(make([]byte, 0, len(data)), data...), nil
}

// writeMemory copies data into guest memory at ptr.
func writeMemory(mem api.Memory, ptr int64, data []byte) *types.RunError {
	if err := checkRange(mem, ptr, int64(len(data))); err != nil {
		return err
	}
	if !mem.Write(uint32(ptr), data) {
		return types.NewMemoryViolation("failed to write %d bytes to memory at offset %d", len(data), ptr)
	}
	return nil
}
