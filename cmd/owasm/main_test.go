package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/owasm-vm/owasmvm/internal/runtime/host"
	"github.com/owasm-vm/owasmvm/internal/wasmtest"
	"github.com/owasm-vm/owasmvm/types"
)

// writeScript writes a script asking source 1 for the calldata and
// returning the first payload.
func writeScript(t *testing.T) string {
	t.Helper()
	b := wasmtest.New()
	getCalldata := b.ImportHost(host.GetCalldata)
	ask := b.ImportHost(host.AskExternalData)
	data := b.ImportHost(host.GetExternalData)
	setReturnData := b.ImportHost(host.SetReturnData)
	b.Memory(1)
	b.ExportFunc("prepare", b.Func(nil, nil, wasmtest.V(wasmtest.I64),
		wasmtest.I64Const(0), wasmtest.Call(getCalldata), wasmtest.LocalSet(0),
		wasmtest.I64Const(1), wasmtest.I64Const(0), wasmtest.LocalGet(0), wasmtest.Call(ask), wasmtest.Drop(),
	))
	b.ExportFunc("execute", b.Func(nil, nil, nil,
		wasmtest.I64Const(0), wasmtest.I64Const(0), wasmtest.I64Const(0), wasmtest.Call(data), wasmtest.Call(setReturnData),
	))
	path := filepath.Join(t.TempDir(), "script.wasm")
	require.NoError(t, os.WriteFile(path, b.Build(), 0o644))
	return path
}

func run(t *testing.T, args ...string) ([]byte, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"owasm", "--interpreter"}, args...))
	return out.Bytes(), err
}

func TestRunCommand(t *testing.T) {
	script := writeScript(t)
	resolutions := filepath.Join(t.TempDir(), "resolutions.json")
	require.NoError(t, os.WriteFile(resolutions, []byte(`[{"status":0,"payload":"NjEwMDA="}]`), 0o644))

	out, err := run(t, "run", "--calldata", "425443", "--resolutions", resolutions, script)
	require.NoError(t, err)
	var res struct {
		Output   string          `json:"output"`
		GasUsed  uint64          `json:"gas_used"`
		Requests []types.Request `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(out, &res))
	require.Equal(t, "3631303030", res.Output)
	require.Positive(t, res.GasUsed)
	require.Equal(t, []types.Request{{ID: 0, SourceID: 1, Calldata: []byte("BTC")}}, res.Requests)
}

func TestRunCommandReportsRunErrors(t *testing.T) {
	script := writeScript(t)
	_, err := run(t, "run", "--gas", "10", script)
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	require.Equal(t, 2, exit.ExitCode())
	require.Contains(t, err.Error(), "out of gas")
}

func TestStoreAndRunByChecksum(t *testing.T) {
	script := writeScript(t)
	home := t.TempDir()

	out, err := run(t, "--home", home, "store", script)
	require.NoError(t, err)
	var stored struct {
		Checksum types.Checksum `json:"checksum"`
	}
	require.NoError(t, json.Unmarshal(out, &stored))

	out, err = run(t, "--home", home, "store", "--list")
	require.NoError(t, err)
	var list []types.Checksum
	require.NoError(t, json.Unmarshal(out, &list))
	require.Equal(t, []types.Checksum{stored.Checksum}, list)

	// Requests missing from the resolutions file are unavailable.
	out, err = run(t, "--home", home, "run", "--checksum", stored.Checksum.String(), "--calldata", "00")
	require.NoError(t, err)
	require.Contains(t, string(out), `"output": ""`)
}

func TestCompileCommand(t *testing.T) {
	script := writeScript(t)
	instrumented := filepath.Join(t.TempDir(), "out.wasm")

	out, err := run(t, "compile", "--out", instrumented, script)
	require.NoError(t, err)
	var res struct {
		Size             int `json:"size"`
		InstrumentedSize int `json:"instrumented_size"`
	}
	require.NoError(t, json.Unmarshal(out, &res))
	bz, err := os.ReadFile(instrumented)
	require.NoError(t, err)
	require.Equal(t, res.InstrumentedSize, len(bz))
	require.Greater(t, res.InstrumentedSize, res.Size)
}

func TestCompileCommandWithConfig(t *testing.T) {
	script := writeScript(t)
	config := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(config, []byte(`{"max_module_size": 8}`), 0o644))

	_, err := run(t, "--config", config, "compile", script)
	require.ErrorIs(t, err, types.ErrValidation)
}

func TestLoadResolver(t *testing.T) {
	resolver, err := loadResolver("")
	require.NoError(t, err)
	got, err := resolver.Resolve(context.Background(), []types.Request{{ID: 0}, {ID: 1}})
	require.NoError(t, err)
	require.Equal(t, []types.Resolution{{Status: types.StatusUnavailable}, {Status: types.StatusUnavailable}}, got)

	_, err = loadResolver(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
