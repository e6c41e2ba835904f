//go:build go1.18

package gofuzz

import (
	"context"
	"errors"
	"testing"

	"github.com/owasm-vm/owasmvm"
	"github.com/owasm-vm/owasmvm/types"
)

func FuzzGasMetering(f *testing.F) {
	f.Add(uint64(0), []byte{})
	f.Add(uint64(1), []byte("x"))
	f.Add(uint64(1005), []byte{})
	f.Add(uint64(1006), []byte{})
	f.Add(uint64(5_000), []byte("some calldata"))
	f.Add(TESTING_GAS_LIMIT, make([]byte, 16*1024))

	vm := newVM(f)
	module, err := vm.Validate(echoScript(), types.DefaultConfig())
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, gasLimit uint64, calldata []byte) {
		if len(calldata) > 16*1024 {
			calldata = calldata[:16*1024]
		}
		params := owasmvm.RunParams{Calldata: calldata, GasLimit: gasLimit}
		need := uint64(1006 + 4*len(calldata))

		res, err := vm.Run(context.Background(), module, params, nil)
		if err == nil {
			if res.GasUsed != need || res.GasUsed > params.EffectiveGasLimit() {
				t.Fatalf("gas used %d, want %d within limit %d", res.GasUsed, need, gasLimit)
			}
			return
		}
		var runErr *types.RunError
		if !errors.As(err, &runErr) || runErr.Kind != types.ErrorKindOutOfGas {
			t.Fatalf("unexpected error: %v", err)
		}
		if need <= params.EffectiveGasLimit() {
			t.Fatalf("ran out of gas with limit %d, needs %d", gasLimit, need)
		}
		if runErr.GasUsed != params.EffectiveGasLimit() {
			t.Fatalf("gas used %d, want the whole limit %d", runErr.GasUsed, gasLimit)
		}
	})
}
