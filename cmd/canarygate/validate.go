package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cgast/canarygate/pkg/spec"
)

// NewValidateCommand creates the validate subcommand.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Check a verification config without running it",
		Long: `Load and validate a verification config: required fields, timing,
operators and values, evaluation mode and min_passed, and auth settings.

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfigFile(args[0], cmd.OutOrStdout())
		},
	}
}

func validateConfigFile(path string, out io.Writer) error {
	cfg, err := spec.LoadFile(path)
	if err != nil {
		return &exitCodeError{code: exitFailed, err: fmt.Errorf("load config: %w", err)}
	}

	vr := spec.Validate(cfg)
	if vr.Valid() {
		fmt.Fprintf(out, "Config %q is valid: %d check(s), mode %s, poll every %ds, timeout %ds.\n",
			filepath.Base(path), len(cfg.Checks), cfg.Evaluation.Mode, cfg.PollInterval, cfg.Timeout)
		return nil
	}

	fmt.Fprintf(out, "Config %q has %d error(s):\n", filepath.Base(path), len(vr.Errors))
	for _, e := range vr.Errors {
		fmt.Fprintf(out, "  - %s: %s\n", e.Field, e.Message)
	}
	return &exitCodeError{code: exitFailed, err: fmt.Errorf("validation failed")}
}
