// Package validation decides whether bytecode is an acceptable oracle script.
package validation

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/owasm-vm/owasmvm/internal/runtime/gas"
	"github.com/owasm-vm/owasmvm/internal/runtime/host"
	"github.com/owasm-vm/owasmvm/internal/runtime/wasmbin"
	"github.com/owasm-vm/owasmvm/types"
)

// RequiredExports are the entry points every script must export as () -> ().
var RequiredExports = []string{types.PhasePrepare.EntryPoint(), types.PhaseExecute.EntryPoint()}

// Validate checks code against cfg and returns its parsed form. r is only
// used to compile the bytecode, which fully type checks it; the compiled
// module is released before returning.
func Validate(ctx context.Context, r wazero.Runtime, code []byte, cfg types.Config) (*wasmbin.Module, error) {
	if uint64(len(code)) > uint64(cfg.MaxModuleSize) {
		return nil, types.NewValidationError(types.ReasonTooLarge, "module of %d bytes exceeds limit %d", len(code), cfg.MaxModuleSize)
	}
	compiled, err := r.CompileModule(ctx, code)
	if err != nil {
		return nil, malformed(err)
	}
	defer compiled.Close(ctx)

	m, err := wasmbin.Parse(code)
	if err != nil {
		return nil, malformed(err)
	}
	if err := checkImports(m, compiled); err != nil {
		return nil, err
	}
	if err := checkExports(m, compiled); err != nil {
		return nil, err
	}
	if err := checkMemory(m, cfg.MaxMemoryPages); err != nil {
		return nil, err
	}
	if err := checkLocals(m, cfg.MaxFunctionLocals); err != nil {
		return nil, err
	}
	if m.HasStart {
		return nil, types.NewValidationError(types.ReasonStartSection, "start functions are not allowed")
	}
	return m, nil
}

func malformed(err error) *types.ValidationError {
	return &types.ValidationError{Reason: types.ReasonMalformed, Msg: "failed to decode module", Err: err}
}

func checkImports(m *wasmbin.Module, compiled wazero.CompiledModule) error {
	for _, imp := range m.Imports {
		if imp.Kind != wasmbin.ExternFunc {
			return types.NewValidationError(types.ReasonInvalidImport, "%s import %s.%s is not allowed", imp.Kind, imp.Module, imp.Name)
		}
	}
	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		if module != host.ModuleName {
			return types.NewValidationError(types.ReasonInvalidImport, "import %s.%s: unknown module %q", module, name, module)
		}
		f, ok := host.Lookup(name)
		if !ok {
			return types.NewValidationError(types.ReasonInvalidImport, "import %s.%s: unknown host function", module, name)
		}
		if !slices.Equal(def.ParamTypes(), f.Params) || !slices.Equal(def.ResultTypes(), f.Results) {
			return types.NewValidationError(types.ReasonInvalidImport, "import %s.%s: signature %s does not match %s",
				module, name, signature(def.ParamTypes(), def.ResultTypes()), signature(f.Params, f.Results))
		}
	}
	return nil
}

func checkExports(m *wasmbin.Module, compiled wazero.CompiledModule) error {
	for _, exp := range m.Exports {
		if strings.HasPrefix(exp.Name, gas.ReservedExportPrefix) {
			return types.NewValidationError(types.ReasonInvalidExport, "export name %q is reserved", exp.Name)
		}
	}
	exports := compiled.ExportedFunctions()
	for _, name := range RequiredExports {
		def, ok := exports[name]
		if !ok {
			return types.NewValidationError(types.ReasonInvalidExport, "missing required export %q", name)
		}
		if len(def.ParamTypes()) != 0 || len(def.ResultTypes()) != 0 {
			return types.NewValidationError(types.ReasonInvalidExport, "export %q must have signature () -> (), got %s",
				name, signature(def.ParamTypes(), def.ResultTypes()))
		}
	}
	return nil
}

func checkMemory(m *wasmbin.Module, maxPages uint32) error {
	if len(m.Memories) != 1 {
		return types.NewValidationError(types.ReasonBadMemory, "module must define exactly one memory, got %d", len(m.Memories))
	}
	mem := m.Memories[0]
	if mem.Flags&^0x01 != 0 {
		return types.NewValidationError(types.ReasonBadMemory, "shared and 64-bit memories are not allowed")
	}
	if mem.Min > uint64(maxPages) {
		return types.NewValidationError(types.ReasonBadMemory, "initial memory of %d pages exceeds limit %d", mem.Min, maxPages)
	}
	if mem.HasMax && mem.Max > uint64(maxPages) {
		return types.NewValidationError(types.ReasonBadMemory, "maximum memory of %d pages exceeds limit %d", mem.Max, maxPages)
	}
	return nil
}

// checkLocals bounds the frame of every function: parameters plus declared locals.
func checkLocals(m *wasmbin.Module, limit uint32) error {
	for i, raw := range m.Bodies {
		body, err := wasmbin.DecodeBody(raw)
		if err != nil {
			return malformed(err)
		}
		var params uint64
		if ti := m.Functions[i]; int(ti) < len(m.Types) {
			params = uint64(len(m.Types[ti].Params))
		}
		if n := params + body.LocalCount(); n > uint64(limit) {
			return types.NewValidationError(types.ReasonTooManyLocals, "function %d has %d locals, limit %d",
				m.ImportedFunctions()+uint32(i), n, limit)
		}
	}
	return nil
}

func signature(params, results []api.ValueType) string {
	names := func(ts []api.ValueType) string {
		s := make([]string, len(ts))
		for i, t := range ts {
			s[i] = api.ValueTypeName(t)
		}
		return strings.Join(s, ", ")
	}
	return fmt.Sprintf("(%s) -> (%s)", names(params), names(results))
}
