// Package verify is the continuous-verification engine: it polls the
// configured checks until they pass or the run times out and produces a
// single VerificationResult.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cgast/canarygate/pkg/events"
	"github.com/cgast/canarygate/pkg/spec"
	"github.com/cgast/canarygate/pkg/transport"
)

const tracerName = "github.com/cgast/canarygate/pkg/verify"

// MetricsRecorder receives engine measurements.
type MetricsRecorder interface {
	PollCompleted()
	CheckCompleted(result CheckResult, elapsed time.Duration)
	RunCompleted(result VerificationResult)
}

type nopMetrics struct{}

func (nopMetrics) PollCompleted()                            {}
func (nopMetrics) CheckCompleted(CheckResult, time.Duration) {}
func (nopMetrics) RunCompleted(VerificationResult)           {}

type nopBus struct{}

func (nopBus) Publish(events.Event)                              {}
func (nopBus) Subscribe(...events.EventType) <-chan events.Event { return nil }
func (nopBus) Unsubscribe(<-chan events.Event)                   {}
func (nopBus) History(time.Time) []events.Event                  { return nil }

// Option configures a Verifier.
type Option func(*Verifier)

// WithTransport sets the transport used for every check. Without it New
// builds an HTTP client from the config.
func WithTransport(t transport.Transport) Option {
	return func(v *Verifier) {
		v.transport = t
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = l
	}
}

// WithEventBus publishes run, poll and check events to bus.
func WithEventBus(bus events.EventBus) Option {
	return func(v *Verifier) {
		v.bus = bus
	}
}

// WithMetrics records engine measurements to m.
func WithMetrics(m MetricsRecorder) Option {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// WithTracer sets the tracer for run, poll and check spans.
func WithTracer(t trace.Tracer) Option {
	return func(v *Verifier) {
		v.tracer = t
	}
}

// WithClock replaces the wall clock and the inter-poll sleep. sleep must
// return early when ctx is done.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration)) Option {
	return func(v *Verifier) {
		v.now = now
		v.sleep = sleep
	}
}

// Verifier runs the polling loop for one VerificationConfig.
type Verifier struct {
	cfg       spec.VerificationConfig
	runID     string
	transport transport.Transport
	logger    *slog.Logger
	bus       events.EventBus
	metrics   MetricsRecorder
	tracer    trace.Tracer
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration)
	closeOnce sync.Once
	closeErr  error
}

// New validates cfg and prepares a Verifier. Configuration problems are
// reported here, before any polling.
func New(cfg spec.VerificationConfig, opts ...Option) (*Verifier, error) {
	if err := spec.Validate(cfg).Err(); err != nil {
		return nil, err
	}

	checks := make([]spec.Check, len(cfg.Checks))
	for i, ch := range cfg.Checks {
		expected, err := CoerceExpected(ch.Evaluate.Value, ch.Extract.Type)
		if err != nil {
			return nil, fmt.Errorf("check %q: evaluate.value: %w", ch.Name, err)
		}
		ch.Evaluate.Value = expected
		checks[i] = ch
	}
	cfg.Checks = checks

	v := &Verifier{
		cfg:     cfg,
		runID:   uuid.NewString(),
		logger:  slog.New(slog.DiscardHandler),
		bus:     nopBus{},
		metrics: nopMetrics{},
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.transport == nil {
		client, err := transport.NewHTTPClient(transport.OptionsFromConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("create transport: %w", err)
		}
		v.transport = client
	}
	v.logger = v.logger.With("run_id", v.runID)
	return v, nil
}

// RunID identifies this run in logs, events and reports.
func (v *Verifier) RunID() string { return v.runID }

// Run polls until a poll passes or no time remains for another poll.
// Cancelling ctx aborts in-flight requests and ends the wait between polls;
// the verdict is then taken from the last completed poll.
func (v *Verifier) Run(ctx context.Context) VerificationResult {
	ctx, span := v.tracer.Start(ctx, "verify.run", trace.WithAttributes(
		attribute.String("run.id", v.runID),
		attribute.Int("checks", len(v.cfg.Checks)),
	))
	defer span.End()

	start := v.now()
	deadline := start.Add(v.cfg.TimeoutDuration())
	interval := v.cfg.PollIntervalDuration()

	var (
		all  []CheckResult
		last []CheckResult
		poll int
	)

	v.logger.Info(fmt.Sprintf("Starting verification with %d check(s)", len(v.cfg.Checks)))
	v.logger.Info(fmt.Sprintf("Polling every %ds, timeout after %ds", v.cfg.PollInterval, v.cfg.Timeout))
	v.bus.Publish(events.NewEvent(events.EventRunStart, map[string]any{
		"run_id":        v.runID,
		"checks":        len(v.cfg.Checks),
		"poll_interval": v.cfg.PollInterval,
		"timeout":       v.cfg.Timeout,
		"mode":          v.cfg.Evaluation.Mode,
	}))

	for v.now().Before(deadline) && ctx.Err() == nil {
		poll++
		elapsed := v.now().Sub(start)
		v.logger.Info(fmt.Sprintf("Poll #%d (elapsed: %ds)", poll, int64(elapsed/time.Second)))

		var status Status
		var reason string
		last, status, reason = v.runPoll(ctx, poll)
		all = append(all, last...)

		if status == StatusPassed {
			v.logger.Info(fmt.Sprintf("Verification PASSED after %d poll(s)", poll))
			return v.finish(span, StatusPassed, all, last, poll, start, "")
		}
		v.logger.Debug("Status: " + reason + ", continuing to poll...")

		if v.now().Add(interval).Before(deadline) {
			v.logger.Debug(fmt.Sprintf("Waiting %ds before next poll...", v.cfg.PollInterval))
			v.sleep(ctx, interval)
			continue
		}
		v.logger.Debug("Not enough time for another poll before timeout")
		break
	}

	if poll == 0 {
		reason := "Timeout before any polls completed"
		if ctx.Err() != nil {
			reason = "Cancelled before any polls completed"
		}
		v.logger.Error("Verification TIMEOUT: No polls completed")
		return v.finish(span, StatusTimeout, all, last, poll, start, reason)
	}

	if status, _ := EvaluateOverall(last, v.cfg.Evaluation); status == StatusPassed {
		v.logger.Info("Verification PASSED on final poll")
		return v.finish(span, StatusPassed, all, last, poll, start, "")
	}
	duration := wholeSeconds(v.now().Sub(start))
	v.logger.Warn(fmt.Sprintf("Verification FAILED: Checks did not pass within %ds", duration))
	return v.finish(span, StatusFailed, all, last, poll, start,
		fmt.Sprintf("Checks did not pass within timeout (%ds)", duration))
}

// runPoll executes one poll and evaluates it.
func (v *Verifier) runPoll(ctx context.Context, poll int) ([]CheckResult, Status, string) {
	ctx, span := v.tracer.Start(ctx, "verify.poll", trace.WithAttributes(attribute.Int("poll.number", poll)))
	defer span.End()

	v.bus.Publish(events.NewPollEvent(events.EventPollStart, poll, nil))
	start := time.Now()

	results := v.executePoll(ctx, poll)
	status, reason := EvaluateOverall(results, v.cfg.Evaluation)
	passed, failed := countPassed(results)

	v.metrics.PollCompleted()
	span.SetAttributes(
		attribute.String("poll.status", string(status)),
		attribute.Int("poll.passed", passed),
		attribute.Int("poll.failed", failed),
	)
	ev := events.NewPollEvent(events.EventPollEnd, poll, map[string]any{
		"status": status,
		"reason": reason,
		"passed": passed,
		"failed": failed,
	})
	ev.Duration = time.Since(start)
	v.bus.Publish(ev)
	return results, status, reason
}

// finish builds the one VerificationResult of the run. Counts come from the
// last poll; DetailedResults keeps every poll unless details are disabled.
func (v *Verifier) finish(span trace.Span, status Status, all, last []CheckResult, polls int, start time.Time, reason string) VerificationResult {
	end := v.now()
	passed, failed := countPassed(last)

	details := all
	if !v.cfg.Output.Details() || details == nil {
		details = []CheckResult{}
	}

	result := VerificationResult{
		RunID:           v.runID,
		Status:          status,
		ChecksPassed:    passed,
		ChecksFailed:    failed,
		TotalPolls:      polls,
		Duration:        wholeSeconds(end.Sub(start)),
		DetailedResults: details,
		FailureReason:   reason,
		StartedAt:       start,
		FinishedAt:      end,
	}

	span.SetAttributes(
		attribute.String("run.status", string(status)),
		attribute.Int("run.polls", polls),
	)
	v.metrics.RunCompleted(result)
	v.bus.Publish(events.NewEvent(events.EventRunEnd, result))
	return result
}

// Close releases the transport. It is safe to call more than once.
func (v *Verifier) Close() error {
	v.closeOnce.Do(func() {
		v.closeErr = v.transport.Close()
	})
	return v.closeErr
}

func wholeSeconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
