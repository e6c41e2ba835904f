// Package runtime executes oracle scripts in wazero. It ties together
// validation, gas instrumentation, the host interface and the two-phase
// prepare/execute protocol.
package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/owasm-vm/owasmvm/internal/runtime/cache"
	"github.com/owasm-vm/owasmvm/internal/runtime/host"
	"github.com/owasm-vm/owasmvm/types"
)

// CoreFeatures are the WebAssembly features scripts may use: 2.0 without SIMD.
const CoreFeatures = api.CoreFeaturesV2 &^ api.CoreFeatureSIMD

// Options configure a Runtime.
type Options struct {
	// Logger receives debug events about compilation and phase transitions.
	Logger zerolog.Logger
	// CompilationCacheDir persists wazero's machine code between processes.
	// Empty keeps it in memory.
	CompilationCacheDir string
	// CodeCacheSize is the number of instrumented modules kept in memory.
	CodeCacheSize uint32
	// Interpreter selects wazero's interpreter instead of its compiler.
	Interpreter bool
}

// DefaultOptions returns options with a disabled logger and a small cache.
func DefaultOptions() Options {
	return Options{Logger: zerolog.Nop(), CodeCacheSize: 100}
}

// Runtime owns one wazero runtime with the host module instantiated. It is
// safe for concurrent use: every run keeps its state in its own Environment
// and guest instances are anonymous and short-lived.
type Runtime struct {
	runtime     wazero.Runtime
	compilation wazero.CompilationCache
	host        api.Module
	cache       *cache.Cache
	logger      zerolog.Logger
}

// New creates a runtime.
func New(ctx context.Context, opts Options) (*Runtime, error) {
	var cc wazero.CompilationCache
	if opts.CompilationCacheDir != "" {
		var err error
		cc, err = wazero.NewCompilationCacheWithDir(opts.CompilationCacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open compilation cache: %w", err)
		}
	} else {
		cc = wazero.NewCompilationCache()
	}
	codeCache, err := cache.New(opts.CodeCacheSize)
	if err != nil {
		return nil, errors.Join(err, cc.Close(ctx))
	}

	cfg := wazero.NewRuntimeConfig()
	if opts.Interpreter {
		cfg = wazero.NewRuntimeConfigInterpreter()
	}
	cfg = cfg.WithCoreFeatures(CoreFeatures).
		WithCloseOnContextDone(true).
		WithCompilationCache(cc)
	r := wazero.NewRuntimeWithConfig(ctx, cfg)

	hostModule, err := host.RegisterHostFunctions(ctx, r)
	if err != nil {
		return nil, errors.Join(err, r.Close(ctx), cc.Close(ctx))
	}
	opts.Logger.Debug().Bool("interpreter", opts.Interpreter).Msg("wazero runtime initialized")
	return &Runtime{
		runtime:     r,
		compilation: cc,
		host:        hostModule,
		cache:       codeCache,
		logger:      opts.Logger,
	}, nil
}

// CacheMetrics returns the counters of the instrumented code cache.
func (r *Runtime) CacheMetrics() cache.Metrics {
	return r.cache.Metrics()
}

// Close releases the wazero runtime. Modules compiled by it become unusable.
func (r *Runtime) Close(ctx context.Context) error {
	r.cache.Purge()
	return errors.Join(r.runtime.Close(ctx), r.compilation.Close(ctx))
}

// RemoveCached evicts the instrumented code of checksum under every configuration.
func (r *Runtime) RemoveCached(checksum types.Checksum) {
	r.cache.Remove(checksum)
}
