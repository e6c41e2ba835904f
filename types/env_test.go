package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunErrorMatchesSentinel(t *testing.T) {
	specs := map[string]struct {
		err      *RunError
		sentinel error
	}{
		"out of gas":         {NewOutOfGasError("loop"), ErrOutOfGas},
		"trap":               {NewRuntimeTrap("wasm error: unreachable"), ErrRuntimeTrap},
		"memory violation":   {NewMemoryViolation("span"), ErrMemoryViolation},
		"protocol violation": {NewProtocolViolation("twice"), ErrProtocolViolation},
		"resolver":           {NewResolverError(errors.New("timeout"), "fetch"), ErrResolver},
	}
	for name, spec := range specs {
		t.Run(name, func(t *testing.T) {
			var err error = fmt.Errorf("wrapped: %w", spec.err)
			assert.ErrorIs(t, err, spec.sentinel)
			assert.NotErrorIs(t, err, ErrValidation)

			var runErr *RunError
			require.ErrorAs(t, err, &runErr)
			assert.Equal(t, NoRequest, runErr.RequestID)
		})
	}
}

func TestRunErrorMessage(t *testing.T) {
	err := NewProtocolViolation("get_external_data: unknown external id").WithRequest(3)
	err.Phase = PhaseExecute
	err.GasUsed = 1500
	assert.Equal(t, "protocol violation in execute: get_external_data: unknown external id (request 3) [gas used 1500]", err.Error())

	inner := errors.New("connection reset")
	resolverErr := NewResolverError(inner, "failed to resolve external data")
	assert.Equal(t, "resolver error: failed to resolve external data: connection reset [gas used 0]", resolverErr.Error())
	assert.ErrorIs(t, resolverErr, inner)

	unknown := &RunError{Kind: ErrorKind(42), RequestID: NoRequest}
	assert.Equal(t, "unknown(42) [gas used 0]", unknown.Error())
	assert.NotErrorIs(t, unknown, ErrOutOfGas)
}

func TestValidationError(t *testing.T) {
	err := NewValidationError(ReasonInvalidImport, "import env.%s: unknown host function", "evil_syscall")
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrRuntimeTrap)
	assert.Equal(t, "invalid module (invalid_import): import env.evil_syscall: unknown host function", err.Error())

	cause := errors.New("invalid magic number")
	wrapped := &ValidationError{Reason: ReasonMalformed, Msg: "failed to decode module", Err: cause}
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "invalid module (malformed): failed to decode module: invalid magic number", wrapped.Error())
}
