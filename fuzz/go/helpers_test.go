//go:build go1.18

package gofuzz

import (
	"testing"

	"github.com/owasm-vm/owasmvm"
	"github.com/owasm-vm/owasmvm/internal/runtime/host"
	"github.com/owasm-vm/owasmvm/internal/wasmtest"
	"github.com/owasm-vm/owasmvm/types"
)

const (
	TESTING_GAS_LIMIT  = uint64(10_000_000)
	TESTING_CACHE_SIZE = 100
)

func newVM(tb testing.TB) *owasmvm.VM {
	tb.Helper()
	vm, err := owasmvm.NewVM(types.VMConfig{Cache: types.CacheOptions{MemoryCacheSize: TESTING_CACHE_SIZE}}, owasmvm.WithInterpreter())
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() { _ = vm.Close() })
	return vm
}

// echoScript returns its calldata.
func echoScript() []byte {
	return wasmtest.Script([]string{host.GetCalldata, host.SetReturnData}, nil,
		wasmtest.Seq(wasmtest.I64Const(0), wasmtest.I64Const(0), wasmtest.Call(0), wasmtest.Call(1)))
}

// relayScript asks source 1 once and returns the status of the answer
// followed by its payload.
func relayScript() []byte {
	b := wasmtest.New()
	ask := b.ImportHost(host.AskExternalData)
	status := b.ImportHost(host.GetExternalDataStatus)
	data := b.ImportHost(host.GetExternalData)
	setReturnData := b.ImportHost(host.SetReturnData)
	b.Memory(1)
	b.ExportFunc("prepare", b.Func(nil, nil, nil,
		wasmtest.I64Const(1), wasmtest.I64Const(0), wasmtest.I64Const(0), wasmtest.Call(ask), wasmtest.Drop(),
	))
	b.ExportFunc("execute", b.Func(nil, nil, nil,
		wasmtest.I32Const(0), wasmtest.I64Const(0), wasmtest.Call(status), wasmtest.I64Store(0),
		wasmtest.I64Const(0), wasmtest.I64Const(0), wasmtest.I64Const(8), wasmtest.Call(data),
		wasmtest.I64Const(8), []byte{0x7c}, // i64.add
		wasmtest.Call(setReturnData),
	))
	return b.Build()
}
