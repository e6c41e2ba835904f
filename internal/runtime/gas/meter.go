package gas

import (
	"math"

	"github.com/owasm-vm/owasmvm/types"
)

// Global is the view of an instance global the meter mutates.
// wazero's api.MutableGlobal satisfies it.
type Global interface {
	Get() uint64
	Set(v uint64)
}

// Meter tracks the gas budget of one run across both phases.
//
// While a phase executes the counter is held in the instance's gas global,
// which the injected bytecode decrements directly; host functions charge
// through Charge so both paths mutate the same value. Between phases the
// counter is kept in the meter itself.
type Meter struct {
	limit  uint64
	left   int64
	global Global
}

// NewMeter creates a meter with the given limit, clamped to math.MaxInt64.
func NewMeter(limit uint64) *Meter {
	if limit > math.MaxInt64 {
		limit = math.MaxInt64
	}
	return &Meter{limit: limit, left: int64(limit)}
}

// Attach moves the counter into g for the duration of a phase.
func (m *Meter) Attach(g Global) {
	g.Set(uint64(m.left))
	m.global = g
}

// Detach moves the counter back out of the attached global.
func (m *Meter) Detach() {
	if m.global == nil {
		return
	}
	m.left = m.load()
	if m.left < 0 {
		m.left = -1
	}
	m.global = nil
}

func (m *Meter) load() int64 {
	if m.global != nil {
		return int64(m.global.Get())
	}
	return m.left
}

func (m *Meter) store(v int64) {
	if m.global != nil {
		m.global.Set(uint64(v))
		return
	}
	m.left = v
}

// Charge consumes amount. When the budget cannot cover it the counter is
// pinned below zero and every later charge fails as well.
func (m *Meter) Charge(amount uint64, descriptor string) error {
	left := m.load()
	if left < 0 || amount > uint64(left) {
		m.store(-1)
		return types.NewOutOfGasError(descriptor)
	}
	m.store(left - int64(amount))
	return nil
}

// Exhausted reports whether the budget ran out.
func (m *Meter) Exhausted() bool {
	return m.load() < 0
}

// Limit returns the effective gas limit.
func (m *Meter) Limit() uint64 {
	return m.limit
}

// Remaining returns the amount of gas left.
func (m *Meter) Remaining() uint64 {
	left := m.load()
	if left < 0 {
		return 0
	}
	return uint64(left)
}

// Used returns the gas consumed so far. It equals the limit once exhausted.
func (m *Meter) Used() uint64 {
	return m.limit - m.Remaining()
}

// Report contains information about gas usage
type Report struct {
	Limit     uint64
	Remaining uint64
	Used      uint64
}

// Report summarizes the meter.
func (m *Meter) Report() Report {
	return Report{Limit: m.limit, Remaining: m.Remaining(), Used: m.Used()}
}
