package runtime

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/owasm-vm/owasmvm/internal/runtime/gas"
	"github.com/owasm-vm/owasmvm/internal/runtime/host"
	"github.com/owasm-vm/owasmvm/types"
)

var (
	// ErrSessionState is returned when a session is used out of order.
	ErrSessionState = errors.New("session is not awaiting resolutions")
	// ErrForeignModule is returned for modules compiled by another runtime.
	ErrForeignModule = errors.New("module was compiled by another runtime")
	// ErrModuleClosed is returned for modules that have been closed.
	ErrModuleClosed = errors.New("module is closed")
)

type sessionState int32

const (
	stateAwaiting sessionState = iota
	stateExecuting
	stateDone
)

// Session is a run suspended between its prepare and execute phases. The
// requests are fixed and the remaining gas is carried over to execute.
type Session struct {
	runtime *Runtime
	module  *Module
	env     *host.Environment
	meter   *gas.Meter
	state   atomic.Int32
	logger  zerolog.Logger
}

// Prepare runs the prepare phase of m. On success the returned session holds
// the ordered external data requests of the script.
func (r *Runtime) Prepare(ctx context.Context, m *Module, params types.RunParams) (*Session, error) {
	if m.owner != r {
		return nil, ErrForeignModule
	}
	if m.closed.Load() {
		return nil, ErrModuleClosed
	}
	meter := gas.NewMeter(params.EffectiveGasLimit())
	s := &Session{
		runtime: r,
		module:  m,
		env:     host.NewEnvironment(m.config, params, meter),
		meter:   meter,
		logger:  r.logger.With().Str("checksum", m.checksum.String()).Logger(),
	}
	if meter.Limit() == 0 {
		return nil, s.abort(types.PhasePrepare, types.NewOutOfGasError("gas limit is zero"))
	}
	if err := s.run(ctx, types.PhasePrepare); err != nil {
		s.state.Store(int32(stateDone))
		return nil, err
	}
	s.logger.Debug().
		Int("requests", len(s.env.Requests())).
		Uint64("gas_used", meter.Used()).
		Msg("prepare completed")
	return s, nil
}

// Requests returns the external data requests in submission order.
func (s *Session) Requests() []types.Request {
	return s.env.Requests()
}

// GasUsed returns the gas consumed so far.
func (s *Session) GasUsed() uint64 {
	return s.meter.Used()
}

// Execute runs the execute phase with one resolution per request, in request
// order. A session can be executed once.
func (s *Session) Execute(ctx context.Context, resolutions []types.Resolution) (*types.Result, error) {
	if !s.state.CompareAndSwap(int32(stateAwaiting), int32(stateExecuting)) {
		return nil, ErrSessionState
	}
	defer s.state.Store(int32(stateDone))

	if err := s.env.SetResolutions(resolutions); err != nil {
		return nil, s.abort(types.PhaseNone, err)
	}
	if err := s.run(ctx, types.PhaseExecute); err != nil {
		return nil, err
	}
	output, ok := s.env.Output()
	if !ok {
		return nil, s.abort(types.PhaseExecute, types.NewProtocolViolation("execute returned without setting return data"))
	}
	report := s.meter.Report()
	s.logger.Debug().
		Int("output_size", len(output)).
		Uint64("gas_used", report.Used).
		Msg("execute completed")
	return &types.Result{
		Output:   output,
		GasUsed:  report.Used,
		GasLimit: report.Limit,
		Requests: s.env.Requests(),
	}, nil
}

// Run executes both phases of m, resolving the requests of prepare with
// resolver. The resolver is not consulted when there are no requests and may
// then be nil.
func (r *Runtime) Run(ctx context.Context, m *Module, params types.RunParams, resolver types.Resolver) (*types.Result, error) {
	s, err := r.Prepare(ctx, m, params)
	if err != nil {
		return nil, err
	}
	requests := s.Requests()
	var resolutions []types.Resolution
	if len(requests) > 0 {
		if resolver == nil {
			return nil, s.cancel(types.NewResolverError(nil, "no resolver for %d requests", len(requests)))
		}
		resolutions, err = resolver.Resolve(ctx, requests)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				s.state.Store(int32(stateDone))
				return nil, ctxErr
			}
			return nil, s.cancel(types.NewResolverError(err, "failed to resolve external data"))
		}
	}
	return s.Execute(ctx, resolutions)
}

// cancel ends an awaiting session with err.
func (s *Session) cancel(err *types.RunError) error {
	if !s.state.CompareAndSwap(int32(stateAwaiting), int32(stateDone)) {
		return ErrSessionState
	}
	return s.abort(types.PhaseNone, err)
}

// abort stamps err with the phase and gas usage of the session.
func (s *Session) abort(phase types.Phase, err *types.RunError) error {
	if err.Phase == types.PhaseNone {
		err.Phase = phase
	}
	err.GasUsed = s.meter.Used()
	s.logger.Debug().Err(err).Str("kind", err.Kind.String()).Msg("run failed")
	return err
}
