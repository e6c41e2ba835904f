package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/owasm-vm/owasmvm/internal/runtime/gas"
	"github.com/owasm-vm/owasmvm/internal/runtime/host"
	"github.com/owasm-vm/owasmvm/types"
)

// run executes one phase in a fresh instance. Linear memory does not carry
// over between phases.
func (s *Session) run(ctx context.Context, phase types.Phase) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.module.closed.Load() {
		return ErrModuleClosed
	}
	s.env.Begin(phase)
	callCtx := host.WithEnvironment(ctx, s.env)

	config := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	inst, err := s.runtime.runtime.InstantiateModule(callCtx, s.module.compiled, config)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return s.abort(phase, types.NewRuntimeTrap("instantiation failed: %s", firstLine(err.Error())))
	}
	defer inst.Close(context.WithoutCancel(ctx))

	gasGlobal, ok := inst.ExportedGlobal(gas.GasGlobalExport).(api.MutableGlobal)
	if !ok {
		return fmt.Errorf("module does not export mutable %s", gas.GasGlobalExport)
	}
	depthGlobal := inst.ExportedGlobal(gas.DepthGlobalExport)
	if depthGlobal == nil {
		return fmt.Errorf("module does not export %s", gas.DepthGlobalExport)
	}
	entry := inst.ExportedFunction(phase.EntryPoint())
	if entry == nil {
		return fmt.Errorf("module does not export %s", phase.EntryPoint())
	}

	s.logger.Debug().Str("phase", phase.String()).Uint64("gas_left", s.meter.Remaining()).Msg("entering phase")
	s.meter.Attach(gasGlobal)
	_, callErr := entry.Call(callCtx)
	depthExceeded := uint32(depthGlobal.Get()) > s.module.config.MaxCallDepth
	s.meter.Detach()
	if callErr == nil {
		return nil
	}
	return s.classify(ctx, phase, callErr, depthExceeded)
}

// classify turns a failed call into a deterministic RunError. Host errors
// take precedence, then gas exhaustion, then cancellation, then traps.
func (s *Session) classify(ctx context.Context, phase types.Phase, err error, depthExceeded bool) error {
	if hostErr := s.env.Err(); hostErr != nil {
		return s.abort(phase, hostErr)
	}
	if s.meter.Exhausted() {
		return s.abort(phase, types.NewOutOfGasError("instruction metering"))
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.logger.Debug().Err(ctxErr).Str("phase", phase.String()).Msg("run cancelled")
		return ctxErr
	}
	if depthExceeded {
		return s.abort(phase, types.NewRuntimeTrap("call depth limit %d exceeded", s.module.config.MaxCallDepth))
	}
	return s.abort(phase, types.NewRuntimeTrap("%s", firstLine(err.Error())))
}

// firstLine drops the engine specific stack trace wazero appends to traps.
func firstLine(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}
