package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"github.com/owasm-vm/owasmvm"
	"github.com/owasm-vm/owasmvm/types"
)

var RunCmd = cli.Command{
	Action:    doRun,
	Name:      "run",
	Usage:     "Run both phases of a script",
	ArgsUsage: "<script.wasm>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "checksum",
			Usage: "run a stored script instead of a file",
		},
		&cli.StringFlag{
			Name:  "calldata",
			Usage: "hex encoded calldata",
		},
		&cli.Uint64Flag{
			Name:  "gas",
			Usage: "gas limit shared by both phases",
			Value: 1_000_000_000,
		},
		&cli.Int64Flag{
			Name:  "ask-count",
			Usage: "number of validators asked to report",
			Value: 1,
		},
		&cli.Int64Flag{
			Name:  "min-count",
			Usage: "minimum number of reports",
			Value: 1,
		},
		&cli.Int64Flag{
			Name:  "prepare-time",
			Usage: "block time of the prepare phase (unix seconds)",
		},
		&cli.Int64Flag{
			Name:  "execute-time",
			Usage: "block time of the execute phase (unix seconds)",
		},
		&cli.StringFlag{
			Name:  "resolutions",
			Usage: "JSON file with one {\"status\", \"payload\"} object per request; unanswered requests are unavailable",
		},
	},
}

func doRun(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	calldata, err := hex.DecodeString(c.String("calldata"))
	if err != nil {
		return fmt.Errorf("invalid calldata: %w", err)
	}
	resolver, err := loadResolver(c.String("resolutions"))
	if err != nil {
		return err
	}
	vm, err := newVM(c)
	if err != nil {
		return err
	}
	defer vm.Close()

	var module *owasmvm.Module
	if s := c.String("checksum"); s != "" {
		checksum, err := types.ParseChecksum(s)
		if err != nil {
			return err
		}
		module, err = vm.LoadModule(checksum, cfg)
		if err != nil {
			return err
		}
	} else {
		code, err := readCode(c)
		if err != nil {
			return err
		}
		module, err = vm.Validate(code, cfg)
		if err != nil {
			return err
		}
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	defer module.Close(context.Background())

	params := types.RunParams{
		Calldata:    calldata,
		GasLimit:    c.Uint64("gas"),
		AskCount:    c.Int64("ask-count"),
		MinCount:    c.Int64("min-count"),
		PrepareTime: c.Int64("prepare-time"),
		ExecuteTime: c.Int64("execute-time"),
	}
	result, err := vm.Run(ctx, module, params, resolver)
	if err != nil {
		var runErr *types.RunError
		if errors.As(err, &runErr) {
			return cli.Exit(runErr.Error(), 2)
		}
		return err
	}
	return printJSON(c, struct {
		Output   string          `json:"output"`
		GasUsed  uint64          `json:"gas_used"`
		Requests []types.Request `json:"requests"`
	}{hex.EncodeToString(result.Output), result.GasUsed, result.Requests})
}

// loadResolver answers requests from a file, in request order.
func loadResolver(path string) (types.Resolver, error) {
	var answers []types.Resolution
	if path != "" {
		bz, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read resolutions: %w", err)
		}
		if err := json.Unmarshal(bz, &answers); err != nil {
			return nil, fmt.Errorf("could not parse resolutions %s: %w", path, err)
		}
	}
	return types.ResolverFunc(func(_ context.Context, requests []types.Request) ([]types.Resolution, error) {
		out := make([]types.Resolution, len(requests))
		for i := range requests {
			if i < len(answers) {
				out[i] = answers[i]
			} else {
				out[i] = types.Resolution{Status: types.StatusUnavailable}
			}
		}
		return out, nil
	}), nil
}
