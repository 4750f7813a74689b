// Domain check CLI entrypoint - delegates to cli.NewCheckCommand.
package main

import (
	"fmt"
	"os"

	"github.com/namescout/namescout/internal/cli"
)

func main() {
	cmd := cli.NewCheckCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
