package main

import (
	"github.com/urfave/cli/v2"

	"github.com/owasm-vm/owasmvm/types"
)

var StoreCmd = cli.Command{
	Action:    doStore,
	Name:      "store",
	Usage:     "Validate a script and persist it in the home directory",
	ArgsUsage: "<script.wasm>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "list",
			Usage: "list stored scripts instead of storing one",
		},
	},
}

func doStore(context *cli.Context) error {
	cfg, err := loadConfig(context)
	if err != nil {
		return err
	}
	vm, err := newVM(context)
	if err != nil {
		return err
	}
	defer vm.Close()

	if context.Bool("list") {
		checksums, err := vm.Checksums()
		if err != nil {
			return err
		}
		return printJSON(context, checksums)
	}
	code, err := readCode(context)
	if err != nil {
		return err
	}
	checksum, err := vm.StoreCode(code, cfg)
	if err != nil {
		return err
	}
	return printJSON(context, struct {
		Checksum types.Checksum `json:"checksum"`
	}{checksum})
}
