/*
Package main is the entry point for the linechat server.

The serve command loads configuration, initializes the global logging system, opens the
persistence store, starts the chat listener and the ops HTTP server, and gracefully handles
operating system interrupt signals (SIGINT, SIGTERM). The migrate command applies database
migrations and exits.
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "linechat",
		Short:         "Line-oriented chat server",
		Long:          `linechat serves a newline-delimited chat protocol over TCP and WebSocket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "linechat %s (%s)\n", version, commit)
		},
	}
}
