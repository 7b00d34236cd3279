// Command omega searches a number range for Omega Class combinations.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/omega/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
