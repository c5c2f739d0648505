package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/cgast/canarygate/internal/config"
	"github.com/cgast/canarygate/internal/logging"
	"github.com/cgast/canarygate/internal/status"
	"github.com/cgast/canarygate/pkg/events"
	"github.com/cgast/canarygate/pkg/metrics"
	"github.com/cgast/canarygate/pkg/report"
	"github.com/cgast/canarygate/pkg/spec"
	"github.com/cgast/canarygate/pkg/transport"
	"github.com/cgast/canarygate/pkg/verify"
)

// verifyOptions are the flags of `canarygate verify`.
type verifyOptions struct {
	configFile   string
	configStdin  bool
	configEnv    string
	outputDir    string
	pollInterval int
	timeout      int
	verbose      bool
	record       string
	replay       string
	metricsFile  string
	traceFile    string
	statusAddr   string
	githubRepo   string
	githubSHA    string
}

// stdinIsTerminal reports whether r is an interactive terminal.
var stdinIsTerminal = func(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// NewVerifyCommand creates the verify subcommand.
func NewVerifyCommand(globals *globalOptions) *cobra.Command {
	opts := &verifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Poll the configured checks until they pass or time out",
		Long: `Run a continuous verification: every poll_interval seconds each check
queries the API, extracts a value with JSONPath and compares it against its
threshold. The run stops as soon as a poll passes under the evaluation mode,
or when no time is left for another poll.

Exactly one configuration source is required:
  --config-file PATH   YAML or JSON file
  --config-stdin       read the config from standard input
  --config-env NAME    read the config from an environment variable`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("poll-interval") {
				opts.pollInterval = 0
			}
			if !cmd.Flags().Changed("timeout") {
				opts.timeout = 0
			}
			result, err := runVerify(cmd.Context(), globals, opts, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return &exitCodeError{code: exitError, err: err}
			}
			if code := statusExitCode(result.Status); code != exitPassed {
				return &exitCodeError{code: code}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config-file", "c", "", "verification config file (YAML or JSON)")
	f.BoolVar(&opts.configStdin, "config-stdin", false, "read the verification config from stdin")
	f.StringVar(&opts.configEnv, "config-env", "", "read the verification config from this environment variable")
	f.StringVarP(&opts.outputDir, "output-dir", "o", "", "write status files and detailed results to this directory")
	f.IntVar(&opts.pollInterval, "poll-interval", spec.DefaultPollInterval, "override poll_interval (seconds)")
	f.IntVar(&opts.timeout, "timeout", spec.DefaultTimeout, "override timeout (seconds)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	f.StringVar(&opts.record, "record", "", "record API responses to this cassette file")
	f.StringVar(&opts.replay, "replay", "", "replay API responses from this cassette file instead of the network")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file when the run ends")
	f.StringVar(&opts.traceFile, "trace-file", "", "write OpenTelemetry spans to this file")
	f.StringVar(&opts.statusAddr, "status-addr", "", "serve live status on this address (e.g. 127.0.0.1:4200)")
	f.StringVar(&opts.githubRepo, "github-repo", "", "set a commit status on this repository (owner/name)")
	f.StringVar(&opts.githubSHA, "github-sha", "", "commit to set the status on (default $GITHUB_SHA)")
	cmd.MarkFlagsMutuallyExclusive("config-file", "config-stdin", "config-env")
	cmd.MarkFlagsMutuallyExclusive("record", "replay")

	return cmd
}

// runVerify performs one verification run. The returned error covers
// problems that prevent a verdict; the verdict itself is in the result.
func runVerify(ctx context.Context, globals *globalOptions, opts *verifyOptions, stdin io.Reader, stdout, stderr io.Writer) (verify.VerificationResult, error) {
	var none verify.VerificationResult

	rt, err := config.LoadConfig(globals.runtimeConfig)
	if err != nil {
		return none, err
	}
	logger := newLogger(stderr, globals, rt, opts.verbose)

	cfg, err := loadVerificationConfig(opts, stdin)
	if err != nil {
		return none, err
	}
	if opts.pollInterval > 0 {
		cfg.PollInterval = opts.pollInterval
	}
	if opts.timeout > 0 {
		cfg.Timeout = opts.timeout
	}
	if vr := spec.Validate(cfg); !vr.Valid() {
		for _, e := range vr.Errors {
			fmt.Fprintf(stderr, "  - %s: %s\n", e.Field, e.Message)
		}
		return none, vr.Err()
	}
	logger.Debug("loaded verification config", "endpoint", cfg.APIEndpoint, "auth", cfg.Redacted().Auth.Method, "checks", len(cfg.Checks))

	tr, err := buildTransport(cfg, opts)
	if err != nil {
		return none, err
	}

	bus := events.NewMemoryBus()
	recorder := metrics.New()
	verifyOpts := []verify.Option{
		verify.WithTransport(tr),
		verify.WithLogger(logger),
		verify.WithEventBus(bus),
		verify.WithMetrics(recorder),
	}

	if opts.traceFile != "" {
		tp, closeTrace, err := newTracerProvider(opts.traceFile)
		if err != nil {
			tr.Close()
			return none, err
		}
		defer closeTrace()
		verifyOpts = append(verifyOpts, verify.WithTracer(tp.Tracer("github.com/cgast/canarygate")))
	}

	v, err := verify.New(cfg, verifyOpts...)
	if err != nil {
		tr.Close()
		return none, err
	}
	defer v.Close()

	statusAddr := opts.statusAddr
	if statusAddr == "" && rt.Status.Enabled {
		statusAddr = rt.Status.Addr
	}
	if statusAddr != "" {
		stopStatus, err := startStatusServer(ctx, statusAddr, bus, recorder, logger)
		if err != nil {
			return none, err
		}
		defer stopStatus()
	}

	result := v.Run(ctx)
	report.PrintSummary(stdout, result)

	outputDir := opts.outputDir
	if outputDir == "" {
		outputDir = rt.Reporting.OutputDir
	}
	if outputDir != "" {
		if err := report.WriteOutputs(result, outputDir, cfg.Output.Format); err != nil {
			return result, fmt.Errorf("write outputs: %w", err)
		}
		logger.Info("wrote results", "dir", outputDir)
	}

	if opts.metricsFile != "" {
		if err := recorder.WriteTextfile(opts.metricsFile); err != nil {
			return result, fmt.Errorf("write metrics: %w", err)
		}
	}

	publishCommitStatus(ctx, rt, opts, result, logger)
	return result, nil
}

func newLogger(w io.Writer, globals *globalOptions, rt config.Config, verbose bool) *slog.Logger {
	level := rt.LogLevel
	if globals.logLevel != "" {
		level = globals.logLevel
	}
	if verbose {
		level = "debug"
	}
	format := rt.LogFormat
	if globals.logFormat != "" {
		format = globals.logFormat
	}
	return logging.New(w, logging.Options{Level: level, Format: format})
}

// loadVerificationConfig reads the config from the one source selected by
// the flags.
func loadVerificationConfig(opts *verifyOptions, stdin io.Reader) (spec.VerificationConfig, error) {
	switch {
	case opts.configFile != "":
		return spec.LoadFile(opts.configFile)
	case opts.configStdin:
		if stdinIsTerminal(stdin) {
			return spec.VerificationConfig{}, errors.New("--config-stdin given but stdin is a terminal; pipe the config in")
		}
		return spec.LoadReader(stdin)
	case opts.configEnv != "":
		return spec.LoadEnv(opts.configEnv)
	default:
		return spec.VerificationConfig{}, errors.New("one of --config-file, --config-stdin or --config-env is required")
	}
}

// buildTransport returns the network client, a replayer, or a recorder
// wrapping the client.
func buildTransport(cfg spec.VerificationConfig, opts *verifyOptions) (transport.Transport, error) {
	if opts.replay != "" {
		return transport.OpenReplayer(opts.replay)
	}

	client, err := transport.NewHTTPClient(transport.OptionsFromConfig(cfg))
	if err != nil {
		return nil, &spec.ConfigError{Result: spec.ValidationResult{
			Errors: []spec.ValidationError{{Field: "ca_bundle", Message: err.Error()}},
		}}
	}
	if opts.record != "" {
		rec, err := transport.NewRecorder(client, opts.record)
		if err != nil {
			client.Close()
			return nil, err
		}
		return rec, nil
	}
	return client, nil
}

// newTracerProvider exports spans as JSON lines to path.
func newTracerProvider(path string) (*sdktrace.TracerProvider, func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create trace file: %w", err)
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	return tp, func() {
		tp.Shutdown(context.Background())
		f.Close()
	}, nil
}

// startStatusServer serves the live status until the returned stop func runs.
func startStatusServer(ctx context.Context, addr string, bus *events.MemoryBus, recorder *metrics.Recorder, logger *slog.Logger) (func(), error) {
	srv := status.New(bus, recorder.Handler(), logger)
	ctx, cancel := context.WithCancel(ctx)

	ready := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, addr, ready) }()

	select {
	case <-ready:
	case err := <-done:
		cancel()
		return nil, err
	}
	return func() {
		cancel()
		if err := <-done; err != nil {
			logger.Warn("status server", "error", err)
		}
	}, nil
}

// publishCommitStatus reports the verdict to GitHub when a repository is
// configured. Failures are logged; they never change the verdict.
func publishCommitStatus(ctx context.Context, rt config.Config, opts *verifyOptions, result verify.VerificationResult, logger *slog.Logger) {
	repo := opts.githubRepo
	if repo == "" {
		repo = rt.Reporting.GitHub.Repo
	}
	if repo == "" {
		return
	}

	sha := opts.githubSHA
	if sha == "" {
		sha = os.Getenv("GITHUB_SHA")
	}
	token := rt.Reporting.GitHub.Token
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	reporter, err := report.NewGitHubReporter(report.GitHubOptions{
		Token:   token,
		Repo:    repo,
		Context: rt.Reporting.GitHub.Context,
		BaseURL: rt.Reporting.GitHub.BaseURL,
	})
	if err != nil {
		logger.Warn("github reporting disabled", "error", err)
		return
	}
	if err := reporter.Report(context.WithoutCancel(ctx), strings.TrimSpace(sha), result); err != nil {
		logger.Warn("github commit status failed", "repo", repo, "error", err)
		return
	}
	logger.Info("github commit status set", "repo", repo, "sha", sha, "state", report.CommitState(result.Status))
}
