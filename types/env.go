package types

import (
	"fmt"
	"math"
)

// Phase is one of the two sanctioned entry points of an oracle script.
type Phase uint8

const (
	PhaseNone Phase = iota
	PhasePrepare
	PhaseExecute
)

func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "none"
	case PhasePrepare:
		return "prepare"
	case PhaseExecute:
		return "execute"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// EntryPoint is the name of the exported function invoked for the phase.
func (p Phase) EntryPoint() string {
	switch p {
	case PhasePrepare:
		return "prepare"
	case PhaseExecute:
		return "execute"
	default:
		return ""
	}
}

// Request is an external data request submitted during prepare.
type Request struct {
	// ID is assigned in call order, starting at zero.
	ID int64 `json:"id"`
	// SourceID is the opaque identifier of the data source.
	SourceID int64 `json:"source_id"`
	// Calldata is passed to the data source.
	Calldata []byte `json:"calldata"`
}

// Status is the outcome code of a resolved request as seen by the script.
// Zero is success, positive values are the data source's exit code.
type Status int64

const (
	StatusSuccess     Status = 0
	StatusUnavailable Status = -1
)

// Valid reports whether the status is a known code.
func (s Status) Valid() bool {
	return s >= StatusUnavailable
}

func (s Status) String() string {
	switch {
	case s == StatusSuccess:
		return "success"
	case s == StatusUnavailable:
		return "unavailable"
	case s > 0:
		return fmt.Sprintf("exit(%d)", int64(s))
	default:
		return fmt.Sprintf("invalid(%d)", int64(s))
	}
}

// Resolution is the answer to one Request.
type Resolution struct {
	Status  Status `json:"status"`
	Payload []byte `json:"payload"`
}

// RunParams are the per-run inputs of an oracle script.
type RunParams struct {
	// Calldata is the raw input of the script.
	Calldata []byte `json:"calldata"`
	// GasLimit is the budget shared by both phases. Values above
	// math.MaxInt64 are treated as math.MaxInt64.
	GasLimit uint64 `json:"gas_limit"`
	// AskCount is the number of validators asked to report.
	AskCount int64 `json:"ask_count"`
	// MinCount is the minimum number of reports required.
	MinCount int64 `json:"min_count"`
	// PrepareTime is the block time of the prepare phase (unix seconds).
	PrepareTime int64 `json:"prepare_time"`
	// ExecuteTime is the block time of the execute phase (unix seconds).
	ExecuteTime int64 `json:"execute_time"`
}

// EffectiveGasLimit returns the gas limit clamped to the signed range used by
// the instrumented gas counter.
func (p RunParams) EffectiveGasLimit() uint64 {
	if p.GasLimit > math.MaxInt64 {
		return math.MaxInt64
	}
	return p.GasLimit
}
