package types

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// WasmPageSize is the size of one linear memory page in bytes.
	WasmPageSize = 65536
	// MaxWasmPages is the largest memory a 32-bit module can address.
	MaxWasmPages = 65536
	// MaxCallDepthLimit bounds Config.MaxCallDepth below the call stack
	// ceilings of every wazero engine, so the injected limiter always trips first.
	MaxCallDepthLimit = 1024
	// MaxFunctionLocalsLimit bounds Config.MaxFunctionLocals.
	MaxFunctionLocalsLimit = 65536
	// MaxDynamicUnitCost bounds the per-page and per-unit costs. Multiplied by
	// a 32-bit operand the product stays below the signed 64-bit gas counter.
	MaxDynamicUnitCost = 1 << 31
)

// Config is the static configuration of module validation and execution.
// It is passed by value and never mutated by the VM, so runs using
// different configurations cannot interfere.
type Config struct {
	// MaxMemoryPages caps the initial and maximum linear memory of a script.
	MaxMemoryPages uint32 `json:"max_memory_pages"`
	// MaxRequestCount caps the external data requests a script may ask in prepare.
	MaxRequestCount uint32 `json:"max_request_count"`
	// MaxSpanSize caps every span crossing the sandbox boundary: calldata
	// handed to the script, request calldata, resolved payloads and the result.
	MaxSpanSize uint32 `json:"max_span_size"`
	// MaxModuleSize caps the size of the submitted bytecode.
	MaxModuleSize uint32 `json:"max_module_size"`
	// MaxCallDepth caps nested calls inside the script.
	MaxCallDepth uint32 `json:"max_call_depth"`
	// MaxFunctionLocals caps the parameters plus declared locals of every
	// function, which bounds the size of one call frame.
	MaxFunctionLocals uint32 `json:"max_function_locals"`
	// GasCosts is the pricing of instructions and host calls.
	GasCosts GasCostTable `json:"gas_costs"`
}

// DefaultConfig returns the configuration used when none is supplied.
// 512 pages = 32 MiB of linear memory.
func DefaultConfig() Config {
	return Config{
		MaxMemoryPages:    512,
		MaxRequestCount:   16,
		MaxSpanSize:       16 * 1024,
		MaxModuleSize:     512 * 1024,
		MaxCallDepth:      256,
		MaxFunctionLocals: 1024,
		GasCosts:          DefaultGasCostTable(),
	}
}

// Validate reports configurations the VM cannot honour deterministically.
func (c Config) Validate() error {
	var errs []error
	if c.MaxMemoryPages == 0 || c.MaxMemoryPages > MaxWasmPages {
		errs = append(errs, fmt.Errorf("max_memory_pages must be within [1, %d], got %d", MaxWasmPages, c.MaxMemoryPages))
	}
	if c.MaxSpanSize == 0 {
		errs = append(errs, errors.New("max_span_size must be positive"))
	}
	if c.MaxModuleSize == 0 {
		errs = append(errs, errors.New("max_module_size must be positive"))
	}
	if c.MaxCallDepth == 0 || c.MaxCallDepth > MaxCallDepthLimit {
		errs = append(errs, fmt.Errorf("max_call_depth must be within [1, %d], got %d", MaxCallDepthLimit, c.MaxCallDepth))
	}
	if c.MaxFunctionLocals == 0 || c.MaxFunctionLocals > MaxFunctionLocalsLimit {
		errs = append(errs, fmt.Errorf("max_function_locals must be within [1, %d], got %d", MaxFunctionLocalsLimit, c.MaxFunctionLocals))
	}
	ins := c.GasCosts.Instructions
	if ins.MemoryGrowPerPage > MaxDynamicUnitCost {
		errs = append(errs, fmt.Errorf("memory_grow_per_page must not exceed %d", uint64(MaxDynamicUnitCost)))
	}
	if ins.BulkPerUnit > MaxDynamicUnitCost {
		errs = append(errs, fmt.Errorf("bulk_per_unit must not exceed %d", uint64(MaxDynamicUnitCost)))
	}
	if ins.Local > MaxDynamicUnitCost {
		errs = append(errs, fmt.Errorf("local must not exceed %d", uint64(MaxDynamicUnitCost)))
	}
	return errors.Join(errs...)
}

// Fingerprint identifies the configuration. Modules instrumented under
// configurations with equal fingerprints are interchangeable.
func (c Config) Fingerprint() [32]byte {
	// Encoding a struct of integers cannot fail.
	bz, _ := json.Marshal(c)
	return sha256.Sum256(bz)
}

// VMConfig configures a VM instance. Unlike Config it is not part of the
// deterministic execution and only affects caching and persistence.
type VMConfig struct {
	Cache CacheOptions `json:"cache"`
}

// CacheOptions configures code persistence and the in-memory module cache.
type CacheOptions struct {
	// BaseDir is where stored scripts are persisted. Empty keeps them in memory.
	BaseDir string `json:"base_dir"`
	// MemoryCacheSize is the number of instrumented modules kept in memory.
	// Zero disables the cache.
	MemoryCacheSize uint32 `json:"memory_cache_size"`
}
