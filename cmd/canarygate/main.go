package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cgast/canarygate/pkg/verify"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

// Process exit codes. CI pipelines gate on these.
const (
	exitPassed  = 0
	exitFailed  = 1
	exitTimeout = 2
	exitError   = 3
)

// exitCodeError carries a specific exit code out of a cobra RunE. err may be nil
// when the outcome was already reported.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error { return e.err }

func statusExitCode(s verify.Status) int {
	switch s {
	case verify.StatusPassed:
		return exitPassed
	case verify.StatusFailed:
		return exitFailed
	case verify.StatusTimeout:
		return exitTimeout
	default:
		return exitError
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the CLI and maps the outcome to an exit code.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitPassed
	}

	var ce *exitCodeError
	if errors.As(err, &ce) {
		if ce.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ce.err)
		}
		return ce.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitError
}
