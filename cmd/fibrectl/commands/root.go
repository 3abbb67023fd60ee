// Package commands implements the fibrectl CLI commands.
package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// httpClient is shared across subcommands, same bounded-timeout
	// client dantte-lp-gobfd/cmd/gobfdctl wires up for its own RPC calls.
	httpClient = &http.Client{Timeout: 5 * time.Second}

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the fibre-node admin HTTP address (host:port).
	serverAddr string
)

var rootCmd = &cobra.Command{
	Use:   "fibrectl",
	Short: "CLI client for the fibre-node admin endpoint",
	Long:  "fibrectl queries a running fibre-node's admin HTTP endpoint to inspect its Domain directory.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:9101",
		"fibre-node admin HTTP address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(nodesCmd())
	rootCmd.AddCommand(connectionsCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func adminURL(path string) string {
	return "http://" + serverAddr + path
}
