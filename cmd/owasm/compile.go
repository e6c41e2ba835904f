package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/owasm-vm/owasmvm/types"
)

var CompileCmd = cli.Command{
	Action:    doCompile,
	Name:      "compile",
	Usage:     "Validate a script and write its instrumented bytecode",
	ArgsUsage: "<script.wasm>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "file receiving the instrumented bytecode",
		},
	},
}

func doCompile(context *cli.Context) error {
	code, err := readCode(context)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(context)
	if err != nil {
		return err
	}
	vm, err := newVM(context)
	if err != nil {
		return err
	}
	defer vm.Close()

	instrumented, err := vm.Compile(code, cfg)
	if err != nil {
		return err
	}
	if out := context.String("out"); out != "" {
		if err := os.WriteFile(out, instrumented, 0o644); err != nil {
			return fmt.Errorf("could not write %s: %w", out, err)
		}
	}
	return printJSON(context, struct {
		Checksum         types.Checksum `json:"checksum"`
		Size             int            `json:"size"`
		InstrumentedSize int            `json:"instrumented_size"`
	}{types.NewChecksumFromCode(code), len(code), len(instrumented)})
}
