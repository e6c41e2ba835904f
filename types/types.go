// Package types provides the data model shared by the VM, its runtime and
// embedding hosts.
package types

// Result is the successful outcome of a run.
type Result struct {
	// Output is the span set by the script through set_return_data.
	Output []byte `json:"output"`
	// GasUsed is the gas consumed by both phases.
	GasUsed uint64 `json:"gas_used"`
	// GasLimit is the effective limit the run was metered against.
	GasLimit uint64 `json:"gas_limit"`
	// Requests are the external data requests asked during prepare.
	Requests []Request `json:"requests"`
}

// GasRemaining returns the unused part of the budget.
func (r *Result) GasRemaining() uint64 {
	if r.GasUsed >= r.GasLimit {
		return 0
	}
	return r.GasLimit - r.GasUsed
}

// Metrics are the counters of the in-memory module cache.
type Metrics struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	// Size is the number of cached modules.
	Size int `json:"size"`
}
