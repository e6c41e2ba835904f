package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("invalid module")
	// ErrOutOfGas matches run errors raised when the gas budget is exhausted.
	ErrOutOfGas = errors.New("out of gas")
	// ErrRuntimeTrap matches faults raised by instruction execution.
	ErrRuntimeTrap = errors.New("runtime trap")
	// ErrMemoryViolation matches host calls referencing memory out of bounds.
	ErrMemoryViolation = errors.New("memory violation")
	// ErrProtocolViolation matches phase-incorrect or malformed use of the OEI.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrResolver matches failures of the external data resolver.
	ErrResolver = errors.New("resolver error")
)

// ValidationReason classifies why a module was rejected.
type ValidationReason string

const (
	ReasonTooLarge      ValidationReason = "too_large"
	ReasonMalformed     ValidationReason = "malformed"
	ReasonInvalidImport ValidationReason = "invalid_import"
	ReasonInvalidExport ValidationReason = "invalid_export"
	ReasonBadMemory     ValidationReason = "bad_memory"
	ReasonStartSection  ValidationReason = "start_section"
	ReasonTooManyLocals ValidationReason = "too_many_locals"
)

// ValidationError is returned when a module is rejected before any execution.
type ValidationError struct {
	Reason ValidationReason
	Msg    string
	Err    error
}

var _ error = (*ValidationError)(nil)

// NewValidationError creates a ValidationError with a formatted message.
func NewValidationError(reason ValidationReason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s (%s): %s", ErrValidation, e.Reason, e.Msg)
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ErrorKind tags a RunError.
type ErrorKind uint8

const (
	ErrorKindOutOfGas ErrorKind = iota + 1
	ErrorKindRuntimeTrap
	ErrorKindMemoryViolation
	ErrorKindProtocolViolation
	ErrorKindResolver
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindOutOfGas:
		return "out_of_gas"
	case ErrorKindRuntimeTrap:
		return "runtime_trap"
	case ErrorKindMemoryViolation:
		return "memory_violation"
	case ErrorKindProtocolViolation:
		return "protocol_violation"
	case ErrorKindResolver:
		return "resolver_error"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case ErrorKindOutOfGas:
		return ErrOutOfGas
	case ErrorKindRuntimeTrap:
		return ErrRuntimeTrap
	case ErrorKindMemoryViolation:
		return ErrMemoryViolation
	case ErrorKindProtocolViolation:
		return ErrProtocolViolation
	case ErrorKindResolver:
		return ErrResolver
	default:
		return nil
	}
}

// NoRequest is the RequestID of errors not tied to an external data request.
const NoRequest int64 = -1

// RunError is the terminal, classified failure of a run. It carries enough
// detail to reproduce the failure by re-running with identical inputs.
type RunError struct {
	Kind      ErrorKind
	Phase     Phase
	RequestID int64
	GasUsed   uint64
	Msg       string
	Err       error
}

var _ error = (*RunError)(nil)

func newRunError(kind ErrorKind, format string, args ...any) *RunError {
	return &RunError{Kind: kind, RequestID: NoRequest, Msg: fmt.Sprintf(format, args...)}
}

// NewOutOfGasError reports an exhausted gas budget.
func NewOutOfGasError(descriptor string) *RunError {
	return newRunError(ErrorKindOutOfGas, "%s", descriptor)
}

// NewRuntimeTrap reports an execution fault.
func NewRuntimeTrap(format string, args ...any) *RunError {
	return newRunError(ErrorKindRuntimeTrap, format, args...)
}

// NewMemoryViolation reports an out of bounds guest memory access.
func NewMemoryViolation(format string, args ...any) *RunError {
	return newRunError(ErrorKindMemoryViolation, format, args...)
}

// NewProtocolViolation reports a phase-incorrect or malformed OEI call.
func NewProtocolViolation(format string, args ...any) *RunError {
	return newRunError(ErrorKindProtocolViolation, format, args...)
}

// NewResolverError reports a failing or misbehaving resolver.
func NewResolverError(err error, format string, args ...any) *RunError {
	e := newRunError(ErrorKindResolver, format, args...)
	e.Err = err
	return e
}

// WithRequest attaches the offending request id.
func (e *RunError) WithRequest(id int64) *RunError {
	e.RequestID = id
	return e
}

func (e *RunError) Error() string {
	var b strings.Builder
	if s := e.Kind.sentinel(); s != nil {
		b.WriteString(s.Error())
	} else {
		b.WriteString(e.Kind.String())
	}
	if e.Phase != PhaseNone {
		fmt.Fprintf(&b, " in %s", e.Phase)
	}
	if e.Msg != "" {
		fmt.Fprintf(&b, ": %s", e.Msg)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.RequestID != NoRequest {
		fmt.Fprintf(&b, " (request %d)", e.RequestID)
	}
	fmt.Fprintf(&b, " [gas used %d]", e.GasUsed)
	return b.String()
}

func (e *RunError) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *RunError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}
