package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/owasm-vm/owasmvm/internal/runtime/cache"
	"github.com/owasm-vm/owasmvm/internal/runtime/gas"
	"github.com/owasm-vm/owasmvm/internal/runtime/validation"
	"github.com/owasm-vm/owasmvm/types"
)

// ErrInvalidConfig is returned for configurations failing types.Config.Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Instrument validates code under cfg and returns its metered bytecode.
func (r *Runtime) Instrument(ctx context.Context, code []byte, cfg types.Config) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	key := cache.NewKey(types.NewChecksumFromCode(code), cfg)
	if instrumented, ok := r.cache.Get(key); ok {
		return instrumented, nil
	}
	m, err := validation.Validate(ctx, r.runtime, code, cfg)
	if err != nil {
		return nil, err
	}
	instrumented, err := gas.Instrument(m, cfg)
	if err != nil {
		return nil, &types.ValidationError{Reason: types.ReasonMalformed, Msg: "failed to instrument module", Err: err}
	}
	r.cache.Add(key, instrumented)
	r.logger.Debug().
		Str("checksum", key.Checksum.String()).
		Int("size", len(code)).
		Int("instrumented_size", len(instrumented)).
		Msg("module instrumented")
	return instrumented, nil
}

// Compile validates, instruments and compiles code. The returned module must
// be closed by the caller.
func (r *Runtime) Compile(ctx context.Context, code []byte, cfg types.Config) (*Module, error) {
	instrumented, err := r.Instrument(ctx, code, cfg)
	if err != nil {
		return nil, err
	}
	compiled, err := r.runtime.CompileModule(ctx, instrumented)
	if err != nil {
		return nil, fmt.Errorf("failed to compile instrumented module: %w", err)
	}
	return &Module{
		owner:    r,
		checksum: types.NewChecksumFromCode(code),
		config:   cfg,
		code:     instrumented,
		compiled: compiled,
	}, nil
}
