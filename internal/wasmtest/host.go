package wasmtest

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/owasm-vm/owasmvm/internal/runtime/host"
	"github.com/owasm-vm/owasmvm/internal/runtime/wasmbin"
)

// ImportHost imports a host function with its catalogue signature and
// returns its function index.
func (b *Builder) ImportHost(name string) uint32 {
	f, ok := host.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("wasmtest: unknown host function %q", name))
	}
	return b.ImportFunc(host.ModuleName, name, valueTypes(f.Params), valueTypes(f.Results))
}

func valueTypes(ts []api.ValueType) []wasmbin.ValueType {
	out := make([]wasmbin.ValueType, len(ts))
	for i, t := range ts {
		out[i] = wasmbin.ValueType(t)
	}
	return out
}

// Script builds a module exporting prepare and execute with the given bodies
// and one page of memory. The i-th host function of imports has function
// index i.
func Script(imports []string, prepare, execute []byte) []byte {
	b := New()
	for _, name := range imports {
		b.ImportHost(name)
	}
	b.Memory(1)
	b.ExportFunc("prepare", b.Func(nil, nil, nil, prepare))
	b.ExportFunc("execute", b.Func(nil, nil, nil, execute))
	return b.Build()
}
