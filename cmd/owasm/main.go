package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "owasm",
		Usage: "Validate, instrument and run oracle scripts",
		Flags: []cli.Flag{
			ConfigFlag,
			HomeFlag,
			VerboseFlag,
			InterpreterFlag,
		},
		Commands: []*cli.Command{
			&CompileCmd,
			&RunCmd,
			&StoreCmd,
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
