// Package cli provides the command-line interface: API server, worker, and a
// one-shot domain check client.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// PackageVersion is the current version of the CLI.
const PackageVersion = "1.0.0"

// NewRootCmd creates the root CLI command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "namescout",
		Short:   "LLM-driven domain name discovery service",
		Long:    `Generates domain name suggestions with an LLM, checks their availability through DNS and WHOIS probes, and serves the results over a streaming HTTP API.`,
		Version: PackageVersion,
	}

	rootCmd.AddCommand(NewServerCommand())
	rootCmd.AddCommand(NewWorkerCommand())
	rootCmd.AddCommand(NewCheckCommand())
	return rootCmd
}

// Execute runs the CLI.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
