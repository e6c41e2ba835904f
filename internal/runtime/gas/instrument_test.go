package gas_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/owasm-vm/owasmvm/internal/runtime/gas"
	"github.com/owasm-vm/owasmvm/internal/runtime/wasmbin"
	"github.com/owasm-vm/owasmvm/internal/wasmtest"
	"github.com/owasm-vm/owasmvm/types"
)

type instance struct {
	mod   api.Module
	left  api.MutableGlobal
	depth api.Global
}

// instantiate instruments code and instantiates it without host imports.
func instantiate(t *testing.T, code []byte, cfg types.Config) *instance {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	t.Cleanup(func() { r.Close(ctx) })

	m, err := wasmbin.Parse(code)
	require.NoError(t, err)
	instrumented, err := gas.Instrument(m, cfg)
	require.NoError(t, err)

	mod, err := r.Instantiate(ctx, instrumented)
	require.NoError(t, err)
	left, ok := mod.ExportedGlobal(gas.GasGlobalExport).(api.MutableGlobal)
	require.True(t, ok)
	depth := mod.ExportedGlobal(gas.DepthGlobalExport)
	require.NotNil(t, depth)
	return &instance{mod: mod, left: left, depth: depth}
}

func (in *instance) call(t *testing.T, limit int64, name string, params ...uint64) (int64, error) {
	t.Helper()
	in.left.Set(uint64(limit))
	_, err := in.mod.ExportedFunction(name).Call(context.Background(), params...)
	return int64(in.left.Get()), err
}

// countdown loops n times, where n is its parameter.
func countdown() []byte {
	b := wasmtest.New().Memory(1)
	f := b.Func(wasmtest.V(wasmtest.I32), nil, nil,
		wasmtest.Block(),
		wasmtest.Loop(),
		wasmtest.LocalGet(0), wasmtest.I32Const(1), wasmtest.I32Sub(), wasmtest.LocalTee(0),
		wasmtest.BrIf(0),
		wasmtest.End(),
		wasmtest.End(),
	)
	b.ExportFunc("run", f)
	return b.Build()
}

func TestInstrumentStraightLine(t *testing.T) {
	b := wasmtest.New().Memory(1)
	b.ExportFunc("run", b.Func(nil, nil, nil, wasmtest.I32Const(1), wasmtest.Drop()))
	in := instantiate(t, b.Build(), types.DefaultConfig())

	// i32.const, drop and the final end.
	left, err := in.call(t, 100, "run")
	require.NoError(t, err)
	require.Equal(t, int64(97), left)
}

func TestInstrumentChargesEveryIteration(t *testing.T) {
	in := instantiate(t, countdown(), types.DefaultConfig())

	// block, loop, five instructions per iteration, two ends and the final end.
	for _, n := range []uint64{1, 10, 1000} {
		left, err := in.call(t, 1_000_000, "run", n)
		require.NoError(t, err)
		require.Equal(t, int64(1_000_000-(5*int64(n)+5)), left, "n=%d", n)
	}
}

func TestInstrumentTrapsWhenExhausted(t *testing.T) {
	in := instantiate(t, countdown(), types.DefaultConfig())

	left, err := in.call(t, 20, "run", 10)
	require.Error(t, err)
	require.Less(t, left, int64(0))

	// An unbounded loop terminates as well.
	left, err = in.call(t, 10_000, "run", 0)
	require.Error(t, err)
	require.Less(t, left, int64(0))
}

func TestInstrumentUsesCostTable(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.GasCosts.Instructions.Control = 10
	cfg.GasCosts.Instructions.Default = 2
	in := instantiate(t, countdown(), cfg)

	left, err := in.call(t, 1000, "run", 3)
	require.NoError(t, err)
	// Per iteration four default instructions and br_if; block, loop and three ends once.
	require.Equal(t, int64(1000-(3*(4*2+10)+5*10)), left)
}

func TestInstrumentChargesMemoryGrowPerPage(t *testing.T) {
	b := wasmtest.New().Memory(1)
	b.ExportFunc("run", b.Func(nil, wasmtest.V(wasmtest.I32), nil, wasmtest.I32Const(3), wasmtest.MemoryGrow()))
	cfg := types.DefaultConfig()
	in := instantiate(t, b.Build(), cfg)

	left, err := in.call(t, 10_000, "run")
	require.NoError(t, err)
	// i32.const, memory.grow and end, plus three pages.
	require.Equal(t, int64(10_000-3-3*int64(cfg.GasCosts.Instructions.MemoryGrowPerPage)), left)

	_, err = in.call(t, 2_000, "run")
	require.Error(t, err)
}

func TestInstrumentChargesBulkPerUnit(t *testing.T) {
	b := wasmtest.New().Memory(1)
	b.ExportFunc("run", b.Func(wasmtest.V(wasmtest.I32), nil, nil,
		wasmtest.I32Const(0), wasmtest.I32Const(0xaa), wasmtest.LocalGet(0), wasmtest.MemoryFill()))
	cfg := types.DefaultConfig()
	cfg.GasCosts.Instructions.BulkPerUnit = 2
	in := instantiate(t, b.Build(), cfg)

	left, err := in.call(t, 100_000, "run", 4096)
	require.NoError(t, err)
	require.Equal(t, int64(100_000-5-2*4096), left)

	data, ok := in.mod.Memory().Read(4095, 2)
	require.True(t, ok)
	require.Equal(t, []byte{0xaa, 0x00}, data)
}

func TestInstrumentChargesDeclaredLocals(t *testing.T) {
	b := wasmtest.New().Memory(1)
	f := b.Func(wasmtest.V(wasmtest.I64), nil, wasmtest.N(wasmtest.I64, 40), wasmtest.Nop())
	b.ExportFunc("run", f)
	b.ExportFunc("twice", b.Func(nil, nil, nil, wasmtest.I64Const(0), wasmtest.Call(f), wasmtest.I64Const(0), wasmtest.Call(f)))
	cfg := types.DefaultConfig()
	cfg.GasCosts.Instructions.Local = 3
	in := instantiate(t, b.Build(), cfg)

	// nop and end, plus 40 declared locals. Parameters are free.
	left, err := in.call(t, 1000, "run", 0)
	require.NoError(t, err)
	require.Equal(t, int64(1000-2-40*3), left)

	// Every entry zeroes the frame again.
	left, err = in.call(t, 1000, "twice")
	require.NoError(t, err)
	require.Equal(t, int64(1000-5-2*(2+40*3)), left)

	// The frame is paid for before the body runs.
	_, err = in.call(t, 100, "run", 0)
	require.Error(t, err)
}

func TestInstrumentLocalsBoundLoopedCalls(t *testing.T) {
	b := wasmtest.New().Memory(1)
	wide := b.Func(nil, nil, wasmtest.N(wasmtest.I64, 1000))
	b.ExportFunc("run", b.Func(nil, nil, nil, wasmtest.Loop(), wasmtest.Call(wide), wasmtest.Br(0), wasmtest.End()))
	in := instantiate(t, b.Build(), types.DefaultConfig())

	// Each iteration pays for the frame, so the budget covers under 100 calls.
	left, err := in.call(t, 100_000, "run")
	require.Error(t, err)
	require.Less(t, left, int64(0))
	require.Equal(t, uint64(1), in.depth.Get())
}

func TestInstrumentLimitsCallDepth(t *testing.T) {
	b := wasmtest.New().Memory(1)
	// Function 0 recurses until its parameter reaches zero.
	f := b.Func(wasmtest.V(wasmtest.I32), nil, nil,
		wasmtest.LocalGet(0),
		wasmtest.If(),
		wasmtest.LocalGet(0), wasmtest.I32Const(1), wasmtest.I32Sub(), wasmtest.Call(0),
		wasmtest.End(),
	)
	b.ExportFunc("run", f)
	cfg := types.DefaultConfig()
	cfg.MaxCallDepth = 16
	in := instantiate(t, b.Build(), cfg)

	_, err := in.call(t, math.MaxInt64, "run", 16)
	require.NoError(t, err)
	require.Equal(t, uint64(0), in.depth.Get())

	_, err = in.call(t, math.MaxInt64, "run", 17)
	require.Error(t, err)
	require.Equal(t, uint64(17), in.depth.Get())
}

func TestInstrumentChargesTableGrowPerElement(t *testing.T) {
	b := wasmtest.New().Memory(1).Table(1)
	b.ExportFunc("run", b.Func(nil, wasmtest.V(wasmtest.I32), nil,
		wasmtest.RefNullFunc(), wasmtest.I32Const(5), wasmtest.TableGrow(), wasmtest.Drop(), wasmtest.TableSize()))
	cfg := types.DefaultConfig()
	cfg.GasCosts.Instructions.BulkPerUnit = 10
	in := instantiate(t, b.Build(), cfg)

	left, err := in.call(t, 1000, "run")
	require.NoError(t, err)
	// ref.null, i32.const, table.grow, drop, table.size and end, plus five elements.
	require.Equal(t, int64(1000-6-5*10), left)
}

func TestInstrumentLimitsIndirectCallDepth(t *testing.T) {
	b := wasmtest.New().Memory(1).Table(1)
	self := b.Type(wasmtest.V(wasmtest.I32), nil)
	// Function 0 calls itself through table slot 0 until its parameter reaches zero.
	f := b.Func(wasmtest.V(wasmtest.I32), nil, nil,
		wasmtest.LocalGet(0),
		wasmtest.If(),
		wasmtest.LocalGet(0), wasmtest.I32Const(1), wasmtest.I32Sub(), wasmtest.I32Const(0), wasmtest.CallIndirect(self),
		wasmtest.End(),
	)
	b.Elem(0, f)
	b.ExportFunc("run", f)
	cfg := types.DefaultConfig()
	cfg.MaxCallDepth = 8
	in := instantiate(t, b.Build(), cfg)

	_, err := in.call(t, math.MaxInt64, "run", 8)
	require.NoError(t, err)
	require.Equal(t, uint64(0), in.depth.Get())

	_, err = in.call(t, math.MaxInt64, "run", 9)
	require.Error(t, err)
	require.Equal(t, uint64(9), in.depth.Get())
}

func TestInstrumentRewritesLayout(t *testing.T) {
	b := wasmtest.New().Memory(2)
	b.GlobalI64(5)
	b.ExportFunc("run", b.Func(nil, nil, nil, wasmtest.Nop()))
	m, err := wasmbin.Parse(b.Build())
	require.NoError(t, err)

	cfg := types.DefaultConfig()
	cfg.MaxMemoryPages = 8
	instrumented, err := gas.Instrument(m, cfg)
	require.NoError(t, err)

	out, err := wasmbin.Parse(instrumented)
	require.NoError(t, err)
	require.Equal(t, uint32(3), out.Globals)
	require.Equal(t, []wasmbin.Limits{{Flags: 0x01, Min: 2, Max: 8, HasMax: true}}, out.Memories)
	require.Contains(t, out.Exports, wasmbin.Export{Name: gas.GasGlobalExport, Kind: wasmbin.ExternGlobal, Index: 1})
	require.Contains(t, out.Exports, wasmbin.Export{Name: gas.DepthGlobalExport, Kind: wasmbin.ExternGlobal, Index: 2})
}

func TestPinMemory(t *testing.T) {
	require.Equal(t, wasmbin.Limits{Min: 1, Max: 4, HasMax: true}, gas.PinMemory(wasmbin.Limits{Min: 1, Max: 4, HasMax: true}, 16))
	require.Equal(t, wasmbin.Limits{Min: 1, Max: 16, HasMax: true}, gas.PinMemory(wasmbin.Limits{Min: 1, Max: 64, HasMax: true}, 16))
	require.Equal(t, wasmbin.Limits{Min: 1, Max: 16, HasMax: true}, gas.PinMemory(wasmbin.Limits{Min: 1}, 16))
}
