package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	runtimeConfig string
	logLevel      string
	logFormat     string
}

// NewRootCommand creates the root cobra command for canarygate.
func NewRootCommand() *cobra.Command {
	globals := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "canarygate",
		Short: "Continuous verification gate for deployments",
		Long: `canarygate polls a metrics or status API, evaluates threshold checks on
every poll and turns the outcome into a verdict CI can gate on:

  PASSED  (exit 0)  the checks passed on a poll
  FAILED  (exit 1)  the checks did not pass before the timeout
  TIMEOUT (exit 2)  no poll completed
  error   (exit 3)  invalid configuration or I/O failure`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&globals.runtimeConfig, "config", filepath.Join(".canarygate", "config.yaml"), "runtime settings file")
	cmd.PersistentFlags().StringVar(&globals.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&globals.logFormat, "log-format", "", "log format: text or json")

	cmd.AddCommand(NewVerifyCommand(globals))
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewInitCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// NewVersionCommand prints the build version.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the canarygate version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "canarygate %s\n", Version)
		},
	}
}
