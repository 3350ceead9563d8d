// Command refc compiles typed, reference-counted modules ahead of time.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/refc/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "refc:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
