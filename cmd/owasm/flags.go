package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/owasm-vm/owasmvm"
	"github.com/owasm-vm/owasmvm/types"
)

var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "JSON file overriding the default VM configuration",
}

var HomeFlag = &cli.StringFlag{
	Name:  "home",
	Usage: "directory storing scripts and compiled code; in-memory if empty",
}

var VerboseFlag = &cli.BoolFlag{
	Name:    "verbose",
	Aliases: []string{"v"},
	Usage:   "log debug events to stderr",
}

var InterpreterFlag = &cli.BoolFlag{
	Name:  "interpreter",
	Usage: "use the wazero interpreter instead of the compiler",
}

// loadConfig reads the configuration file, if any, on top of the defaults.
func loadConfig(context *cli.Context) (types.Config, error) {
	cfg := types.DefaultConfig()
	path := context.String(ConfigFlag.Name)
	if path == "" {
		return cfg, nil
	}
	bz, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("could not read config: %w", err)
	}
	if err := json.Unmarshal(bz, &cfg); err != nil {
		return cfg, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func newVM(context *cli.Context) (*owasmvm.VM, error) {
	logger := zerolog.Nop()
	if context.Bool(VerboseFlag.Name) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.DebugLevel).
			With().Timestamp().Logger()
	}
	opts := []owasmvm.Option{owasmvm.WithLogger(logger)}
	if context.Bool(InterpreterFlag.Name) {
		opts = append(opts, owasmvm.WithInterpreter())
	}
	vmConfig := types.VMConfig{Cache: types.CacheOptions{
		BaseDir:         context.String(HomeFlag.Name),
		MemoryCacheSize: 16,
	}}
	return owasmvm.NewVM(vmConfig, opts...)
}

func readCode(context *cli.Context) ([]byte, error) {
	if context.Args().Len() < 1 {
		return nil, fmt.Errorf("missing script file")
	}
	return os.ReadFile(context.Args().Get(0))
}

func printJSON(context *cli.Context, v any) error {
	enc := json.NewEncoder(context.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
