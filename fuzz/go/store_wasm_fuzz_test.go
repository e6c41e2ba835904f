//go:build go1.18

package gofuzz

import (
	"bytes"
	"errors"
	"testing"

	"github.com/owasm-vm/owasmvm/types"
)

func FuzzStoreCode(f *testing.F) {
	f.Add(echoScript())
	f.Add(relayScript())
	f.Add([]byte{})                                   // empty
	f.Add([]byte{0x00, 0x61, 0x73, 0x6d})             // valid header only
	f.Add([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00}) // valid header + version prefix

	f.Fuzz(func(t *testing.T, wasm []byte) {
		vm := newVM(t)

		checksum, err := vm.StoreCode(wasm, types.DefaultConfig())
		if err != nil {
			if !errors.Is(err, types.ErrValidation) {
				t.Fatalf("unexpected error class: %v", err)
			}
			return
		}
		code, err := vm.GetCode(checksum)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(code, wasm) {
			t.Fatal("stored code differs")
		}
	})
}
