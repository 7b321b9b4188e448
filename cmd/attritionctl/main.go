// Package main is the entrypoint for attritionctl.
package main

import (
	"fmt"
	"os"

	"github.com/kiranshivaraju/attrition/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
