// Command ifthen validates, runs and inspects condition-expression bundles.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ifthen/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ifthen:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
