package runtime

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wazero"

	"github.com/owasm-vm/owasmvm/types"
)

// Module is a validated and instrumented oracle script compiled by a Runtime.
// It is immutable and may be run concurrently until closed.
type Module struct {
	owner    *Runtime
	checksum types.Checksum
	config   types.Config
	code     []byte
	compiled wazero.CompiledModule
	closed   atomic.Bool
}

// Checksum identifies the original bytecode of the module.
func (m *Module) Checksum() types.Checksum { return m.checksum }

// Config returns the configuration the module was validated with.
func (m *Module) Config() types.Config { return m.config }

// Code returns the instrumented bytecode.
func (m *Module) Code() []byte { return append([]byte(nil), m.code...) }

// Close releases the compiled code. Calls in flight complete, but phases
// not yet instantiated fail.
func (m *Module) Close(ctx context.Context) error {
	if m.closed.Swap(true) {
		return nil
	}
	return m.compiled.Close(ctx)
}
