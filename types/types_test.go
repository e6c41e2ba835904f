package types

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumString(t *testing.T) {
	// SHA-256 hash of "lucyna kushinada"

	hexRepr := "cd6ff9ff3faea9b3d0224a7e0d1133e6eae1b7800e8392441200056986c358a9"
	rawBytes := []byte{0xCD, 0x6F, 0xF9, 0xFF, 0x3F, 0xAE, 0xA9, 0xB3, 0xD0, 0x22, 0x4A, 0x7E, 0x0D, 0x11, 0x33, 0xE6, 0xEA, 0xE1, 0xB7, 0x80, 0x0E, 0x83, 0x92, 0x44, 0x12, 0x00, 0x05, 0x69, 0x86, 0xC3, 0x58, 0xA9}
	checksum, err := NewChecksum(rawBytes)
	require.NoError(t, err)

	assert.Equal(t, hexRepr, checksum.String())
	assert.Equal(t, checksum, NewChecksumFromCode([]byte("lucyna kushinada")))
}

func TestChecksumJSON(t *testing.T) {
	checksum := NewChecksumFromCode([]byte("lucyna kushinada"))

	bz, err := json.Marshal(checksum)
	require.NoError(t, err)
	require.Equal(t, `"cd6ff9ff3faea9b3d0224a7e0d1133e6eae1b7800e8392441200056986c358a9"`, string(bz))

	var parsed Checksum
	require.NoError(t, json.Unmarshal(bz, &parsed))
	require.Equal(t, checksum, parsed)

	err = json.Unmarshal([]byte(`"cd6f"`), &parsed)
	require.EqualError(t, err, "got wrong number of bytes for checksum")
	err = json.Unmarshal([]byte(`"zz"`), &parsed)
	require.ErrorContains(t, err, "invalid checksum hex")
}

func TestOperationCostTotalCost(t *testing.T) {
	c := OperationCost{Base: 500, PerByte: 3}
	assert.Equal(t, uint64(500), c.TotalCost(0))
	assert.Equal(t, uint64(530), c.TotalCost(10))

	huge := OperationCost{Base: 1, PerByte: math.MaxUint64 / 2}
	assert.Equal(t, uint64(math.MaxUint64), huge.TotalCost(3))
}

func TestEffectiveGasLimit(t *testing.T) {
	assert.Equal(t, uint64(100), RunParams{GasLimit: 100}.EffectiveGasLimit())
	assert.Equal(t, uint64(math.MaxInt64), RunParams{GasLimit: math.MaxUint64}.EffectiveGasLimit())
}

func TestStatus(t *testing.T) {
	cases := map[Status]struct {
		valid bool
		str   string
	}{
		StatusSuccess:     {true, "success"},
		StatusUnavailable: {true, "unavailable"},
		7:                 {true, "exit(7)"},
		-2:                {false, "invalid(-2)"},
	}
	for status, tc := range cases {
		assert.Equal(t, tc.valid, status.Valid(), status)
		assert.Equal(t, tc.str, status.String())
	}
}

func TestPhaseEntryPoint(t *testing.T) {
	assert.Equal(t, "prepare", PhasePrepare.EntryPoint())
	assert.Equal(t, "execute", PhaseExecute.EntryPoint())
	assert.Equal(t, "", PhaseNone.EntryPoint())
	assert.Equal(t, "phase(9)", Phase(9).String())
}

func TestStaticResolver(t *testing.T) {
	resolver := StaticResolver{
		{Status: StatusSuccess, Payload: []byte("a")},
		{Status: StatusUnavailable},
	}

	got, err := resolver.Resolve(context.Background(), []Request{{ID: 0}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, []byte("a"), got[0].Payload)

	// A short answer is passed through so the engine can reject it.
	got, err = resolver.Resolve(context.Background(), make([]Request, 3))
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestResultGasRemaining(t *testing.T) {
	assert.Equal(t, uint64(30), (&Result{GasUsed: 70, GasLimit: 100}).GasRemaining())
	assert.Equal(t, uint64(0), (&Result{GasUsed: 100, GasLimit: 100}).GasRemaining())
}
