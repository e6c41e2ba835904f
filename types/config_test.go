package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	specs := map[string]struct {
		mutate func(*Config)
		expErr string
	}{
		"zero memory": {
			mutate: func(c *Config) { c.MaxMemoryPages = 0 },
			expErr: "max_memory_pages must be within [1, 65536], got 0",
		},
		"memory above 4GiB": {
			mutate: func(c *Config) { c.MaxMemoryPages = MaxWasmPages + 1 },
			expErr: "max_memory_pages must be within [1, 65536], got 65537",
		},
		"zero span": {
			mutate: func(c *Config) { c.MaxSpanSize = 0 },
			expErr: "max_span_size must be positive",
		},
		"zero module size": {
			mutate: func(c *Config) { c.MaxModuleSize = 0 },
			expErr: "max_module_size must be positive",
		},
		"deep calls": {
			mutate: func(c *Config) { c.MaxCallDepth = MaxCallDepthLimit + 1 },
			expErr: "max_call_depth must be within [1, 1024], got 1025",
		},
		"no locals": {
			mutate: func(c *Config) { c.MaxFunctionLocals = 0 },
			expErr: "max_function_locals must be within [1, 65536], got 0",
		},
		"huge frames": {
			mutate: func(c *Config) { c.MaxFunctionLocals = MaxFunctionLocalsLimit + 1 },
			expErr: "max_function_locals must be within [1, 65536], got 65537",
		},
		"expensive locals": {
			mutate: func(c *Config) { c.GasCosts.Instructions.Local = MaxDynamicUnitCost + 1 },
			expErr: "local must not exceed 2147483648",
		},
		"expensive pages": {
			mutate: func(c *Config) { c.GasCosts.Instructions.MemoryGrowPerPage = MaxDynamicUnitCost + 1 },
			expErr: "memory_grow_per_page must not exceed 2147483648",
		},
		"expensive bulk": {
			mutate: func(c *Config) { c.GasCosts.Instructions.BulkPerUnit = MaxDynamicUnitCost + 1 },
			expErr: "bulk_per_unit must not exceed 2147483648",
		},
	}
	for name, spec := range specs {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			spec.mutate(&cfg)
			require.EqualError(t, cfg.Validate(), spec.expErr)
		})
	}
}

func TestConfigFingerprint(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.GasCosts.HostCalls.GetCalldata.Base++
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestConfigJSON(t *testing.T) {
	config := VMConfig{
		Cache: CacheOptions{
			BaseDir:         "/tmp",
			MemoryCacheSize: 100,
		},
	}
	expected := `{"cache":{"base_dir":"/tmp","memory_cache_size":100}}`

	bz, err := json.Marshal(config)
	require.NoError(t, err)
	assert.Equal(t, expected, string(bz))

	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(`{"max_memory_pages":16}`), &cfg))
	assert.Equal(t, uint32(16), cfg.MaxMemoryPages)
}
