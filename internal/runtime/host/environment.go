package host

import (
	"context"
	"fmt"

	"github.com/owasm-vm/owasmvm/internal/runtime/gas"
	"github.com/owasm-vm/owasmvm/types"
)

// Environment is the per-run state host functions operate on. It is owned by
// a single run and is never shared between runs.
type Environment struct {
	config types.Config
	params types.RunParams
	meter  *gas.Meter

	phase       types.Phase
	requests    []types.Request
	resolutions []types.Resolution
	output      []byte
	outputSet   bool
	err         *types.RunError
}

// NewEnvironment creates the environment of a run.
func NewEnvironment(config types.Config, params types.RunParams, meter *gas.Meter) *Environment {
	return &Environment{
		config: config,
		params: params,
		meter:  meter,
	}
}

// Begin enters phase. Host errors of a previous phase are cleared.
func (e *Environment) Begin(phase types.Phase) {
	e.phase = phase
	e.err = nil
}

// Phase returns the phase being executed.
func (e *Environment) Phase() types.Phase { return e.phase }

// Meter returns the gas meter of the run.
func (e *Environment) Meter() *gas.Meter { return e.meter }

// Requests returns a copy of the requests submitted during prepare.
func (e *Environment) Requests() []types.Request {
	out := make([]types.Request, len(e.requests))
	for i, r := range e.requests {
		out[i] = types.Request{ID: r.ID, SourceID: r.SourceID, Calldata: clone(r.Calldata)}
	}
	return out
}

// SetResolutions installs the answers to the submitted requests. It checks
// that there is exactly one well-formed resolution per request.
func (e *Environment) SetResolutions(resolutions []types.Resolution) *types.RunError {
	if len(resolutions) != len(e.requests) {
		return types.NewResolverError(nil, "expected %d resolutions, got %d", len(e.requests), len(resolutions))
	}
	out := make([]types.Resolution, len(resolutions))
	for i, r := range resolutions {
		if !r.Status.Valid() {
			return types.NewResolverError(nil, "invalid status %d", int64(r.Status)).WithRequest(int64(i))
		}
		if uint64(len(r.Payload)) > uint64(e.config.MaxSpanSize) {
			return types.NewResolverError(nil, "payload of %d bytes exceeds span size %d", len(r.Payload), e.config.MaxSpanSize).WithRequest(int64(i))
		}
		out[i] = types.Resolution{Status: r.Status, Payload: clone(r.Payload)}
	}
	e.resolutions = out
	return nil
}

// Output returns the result recorded by set_return_data.
func (e *Environment) Output() ([]byte, bool) {
	return clone(e.output), e.outputSet
}

// Err returns the first host error of the current phase.
func (e *Environment) Err() *types.RunError {
	return e.err
}

// answered returns the number of successful resolutions.
func (e *Environment) answered() int64 {
	var n int64
	for _, r := range e.resolutions {
		if r.Status == types.StatusSuccess {
			n++
		}
	}
	return n
}

// fail records err and aborts the guest. wazero recovers the panic and
// returns it from the exported function call.
func (e *Environment) fail(err *types.RunError) {
	err.Phase = e.phase
	if e.err == nil {
		e.err = err
	}
	panic(err)
}

func (e *Environment) charge(cost uint64, name string) {
	if err := e.meter.Charge(cost, name); err != nil {
		e.fail(types.NewOutOfGasError(name))
	}
}

func (e *Environment) requirePhase(name string, phases ...types.Phase) {
	for _, p := range phases {
		if e.phase == p {
			return
		}
	}
	e.fail(types.NewProtocolViolation("%s is not available in %s", name, e.phase))
}

func (e *Environment) requireSpan(name string, n int64) {
	if n > int64(e.config.MaxSpanSize) {
		e.fail(types.NewProtocolViolation("%s: span of %d bytes exceeds limit %d", name, n, e.config.MaxSpanSize))
	}
}

func (e *Environment) resolution(name string, id int64) types.Resolution {
	if id < 0 || id >= int64(len(e.resolutions)) {
		e.fail(types.NewProtocolViolation("%s: unknown external id", name).WithRequest(id))
	}
	return e.resolutions[id]
}

type environmentKey struct{}

// WithEnvironment attaches env to ctx for the host functions.
func WithEnvironment(ctx context.Context, env *Environment) context.Context {
	return context.WithValue(ctx, environmentKey{}, env)
}

// EnvironmentFromContext returns the environment attached to ctx.
func EnvironmentFromContext(ctx context.Context) (*Environment, bool) {
	env, ok := ctx.Value(environmentKey{}).(*Environment)
	return env, ok
}

func mustEnvironment(ctx context.Context) *Environment {
	env, ok := EnvironmentFromContext(ctx)
	if !ok {
		panic(fmt.Errorf("host function called without environment"))
	}
	return env
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
