package owasmvm

import (
	"github.com/owasm-vm/owasmvm/internal/runtime"
	"github.com/owasm-vm/owasmvm/types"
)

// Module is a validated and instrumented oracle script, ready to run.
// It must be closed when no longer needed.
type Module = runtime.Module

// Session is a run suspended between prepare and execute.
type Session = runtime.Session

// Config is the static configuration of validation and execution.
type Config = types.Config

// RunParams are the per-run inputs of an oracle script.
type RunParams = types.RunParams

// Resolver answers the external data requests of a run.
type Resolver = types.Resolver

// Result is the outcome of a successful run.
type Result = types.Result

// Checksum identifies the original bytecode of a script.
type Checksum = types.Checksum

// Misuse errors of Module and Session.
var (
	ErrSessionState  = runtime.ErrSessionState
	ErrForeignModule = runtime.ErrForeignModule
	ErrModuleClosed  = runtime.ErrModuleClosed
	ErrInvalidConfig = runtime.ErrInvalidConfig
)
