package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/corsgate/pkg/cli"
)

// Global flags
var cfgFile string

// newRootCmd builds the command tree. Subcommands read the global flags
// through cfgFile.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "corsgate",
		Short: "Corsgate - CORS enforcing HTTP gateway",
		Long: `Corsgate enforces a CORS policy in front of an HTTP application.

Every request's Origin is checked against the active policy:
  - Disallowed origins receive 403 and never reach the application
  - Preflight requests are answered by the gateway
  - Slow requests are cut off with a 504 after the request timeout

The policy is read from the environment (ALLOWED_ORIGINS, CORS_*), an
optional YAML file and the admin API, and can be changed without a restart.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults only when empty)")

	rootCmd.AddCommand(
		newRunCmd(),
		newCheckCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command and prints any error that should be seen
// by the user.
func Execute() error {
	err := newRootCmd().Execute()
	if err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) || exitErr.Err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	return err
}
