// Package owasmvm runs oracle scripts: untrusted WebAssembly programs that
// declare the external data they need in a prepare phase and compute a
// result from the resolved data in an execute phase. Execution is gas
// metered and deterministic across machines.
package owasmvm

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/owasm-vm/owasmvm/internal/runtime"
	"github.com/owasm-vm/owasmvm/internal/runtime/db"
	"github.com/owasm-vm/owasmvm/types"
)

// ErrCodeNotFound is returned when no script is stored under a checksum.
var ErrCodeNotFound = db.ErrNotFound

// VM is the main entry point to this library.
// It owns a wazero runtime, a cache of instrumented modules and the store of
// submitted scripts. All methods are safe for concurrent use.
type VM struct {
	runtime *runtime.Runtime
	store   *db.Store
	logger  zerolog.Logger
}

// Option configures a VM.
type Option func(*runtime.Options)

// WithLogger sets the logger receiving debug events. It defaults to zerolog.Nop().
func WithLogger(logger zerolog.Logger) Option {
	return func(o *runtime.Options) { o.Logger = logger }
}

// WithInterpreter runs scripts in wazero's interpreter instead of its compiler.
func WithInterpreter() Option {
	return func(o *runtime.Options) { o.Interpreter = true }
}

// NewVM creates a new VM.
//
// `config.Cache.BaseDir` is where scripts and compiled machine code are
// persisted. When empty, everything is kept in memory.
// `config.Cache.MemoryCacheSize` is the number of instrumented modules kept
// in memory. Set to 0 to disable.
func NewVM(config types.VMConfig, opts ...Option) (*VM, error) {
	o := runtime.DefaultOptions()
	o.CodeCacheSize = config.Cache.MemoryCacheSize
	if config.Cache.BaseDir != "" {
		o.CompilationCacheDir = filepath.Join(config.Cache.BaseDir, "wazero")
	}
	for _, opt := range opts {
		opt(&o)
	}

	store, err := db.Open(config.Cache.BaseDir)
	if err != nil {
		return nil, err
	}
	rt, err := runtime.New(context.Background(), o)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	return &VM{runtime: rt, store: store, logger: o.Logger}, nil
}

// Close releases the runtime and the code store. Modules created by the VM
// become unusable.
func (vm *VM) Close() error {
	return errors.Join(vm.runtime.Close(context.Background()), vm.store.Close())
}

// Validate checks code against config and returns the compiled module.
// Failures are *types.ValidationError matching types.ErrValidation.
func (vm *VM) Validate(code []byte, config Config) (*Module, error) {
	return vm.runtime.Compile(context.Background(), code, config)
}

// Compile validates code against config and returns the instrumented
// bytecode: the script with gas metering and call depth limits injected.
func (vm *VM) Compile(code []byte, config Config) ([]byte, error) {
	return vm.runtime.Instrument(context.Background(), code, config)
}

// Prepare runs the prepare phase of module. Feed the resolutions of
// Session.Requests() to Session.Execute to finish the run.
func (vm *VM) Prepare(ctx context.Context, module *Module, params RunParams) (*Session, error) {
	return vm.runtime.Prepare(ctx, module, params)
}

// Run executes both phases of module. Requests made in prepare are answered
// by resolver before execute starts.
//
// Failures of the script are returned as *types.RunError, carrying the gas
// used until the failure. Cancelling ctx aborts the run with ctx.Err().
func (vm *VM) Run(ctx context.Context, module *Module, params RunParams, resolver Resolver) (*Result, error) {
	return vm.runtime.Run(ctx, module, params, resolver)
}

// StoreCode validates code against config and persists it. The returned
// checksum references the code in GetCode, LoadModule and RemoveCode.
func (vm *VM) StoreCode(code []byte, config Config) (Checksum, error) {
	if _, err := vm.Compile(code, config); err != nil {
		return Checksum{}, err
	}
	checksum, err := vm.store.Save(code)
	if err != nil {
		return Checksum{}, err
	}
	vm.logger.Debug().Str("checksum", checksum.String()).Int("size", len(code)).Msg("code stored")
	return checksum, nil
}

// GetCode will load the original bytecode for the given checksum.
// This will only succeed if that checksum was previously returned from
// a call to StoreCode.
func (vm *VM) GetCode(checksum Checksum) ([]byte, error) {
	return vm.store.Load(checksum)
}

// LoadModule compiles the stored script under config.
func (vm *VM) LoadModule(checksum Checksum, config Config) (*Module, error) {
	code, err := vm.store.Load(checksum)
	if err != nil {
		return nil, err
	}
	module, err := vm.Validate(code, config)
	if err != nil {
		return nil, fmt.Errorf("stored code %s: %w", checksum, err)
	}
	return module, nil
}

// RemoveCode deletes a stored script. Modules already loaded keep working.
func (vm *VM) RemoveCode(checksum Checksum) error {
	has, err := vm.store.Has(checksum)
	if err != nil {
		return err
	}
	if !has {
		return fmt.Errorf("%w: %s", ErrCodeNotFound, checksum)
	}
	vm.runtime.RemoveCached(checksum)
	return vm.store.Delete(checksum)
}

// Checksums lists the stored scripts.
func (vm *VM) Checksums() ([]Checksum, error) {
	return vm.store.Checksums()
}

// GetMetrics returns the counters of the in-memory module cache.
func (vm *VM) GetMetrics() *types.Metrics {
	m := vm.runtime.CacheMetrics()
	return &types.Metrics{Hits: m.Hits, Misses: m.Misses, Size: m.Size}
}
