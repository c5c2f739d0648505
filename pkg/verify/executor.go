package verify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/cgast/canarygate/pkg/events"
	"github.com/cgast/canarygate/pkg/spec"
)

// outcome is what a check pipeline produces when every stage succeeds.
type outcome struct {
	value     any
	success   bool
	message   string
	defaulted bool
}

// pipeline runs query, extract, coerce and evaluate for one check, stopping
// at the first stage that fails.
func (v *Verifier) pipeline(ctx context.Context, check spec.Check) (outcome, *StageError) {
	doc, err := v.transport.Request(ctx, check.Query)
	if err != nil {
		return outcome{}, &StageError{Stage: StageTransport, Check: check.Name, Err: err}
	}

	raw, err := Extract(doc, check.Extract.Path)
	if err != nil {
		return outcome{}, &StageError{Stage: StageExtract, Check: check.Name, Err: err}
	}

	value, defaulted, err := CoerceWithDefault(raw, check.Extract.Type, check.Extract.Default)
	if err != nil {
		return outcome{}, &StageError{Stage: StageCoerce, Check: check.Name, Err: err}
	}
	if defaulted {
		v.logger.Warn("type conversion failed, using default",
			"check", check.Name,
			"value", formatValue(raw),
			"default", formatValue(check.Extract.Default),
		)
		v.bus.Publish(events.NewEvent(events.EventCheckDefaulted, map[string]any{
			"check":   check.Name,
			"value":   raw,
			"default": check.Extract.Default,
		}))
	}

	success, message, err := Evaluate(check.Evaluate.Operator, value, check.Evaluate.Value)
	if err != nil {
		return outcome{}, &StageError{Stage: StageEvaluate, Check: check.Name, Err: err}
	}
	return outcome{value: value, success: success, message: message, defaulted: defaulted}, nil
}

// ExecuteCheck runs one check for poll number poll. It never fails outward:
// a failing stage becomes a result with Success false and a nil Value.
func (v *Verifier) ExecuteCheck(ctx context.Context, check spec.Check, poll int) CheckResult {
	ctx, span := v.tracer.Start(ctx, "verify.check", trace.WithAttributes(
		attribute.String("check.name", check.Name),
		attribute.Int("poll.number", poll),
	))
	defer span.End()

	start := time.Now()
	out, serr := v.pipeline(ctx, check)
	elapsed := time.Since(start)

	var result CheckResult
	if serr != nil {
		result = v.failedResult(ctx, check, poll, serr)
		span.RecordError(serr)
		span.SetStatus(codes.Error, string(serr.Stage))
	} else {
		result = CheckResult{
			CheckName:  check.Name,
			Success:    out.success,
			Value:      out.value,
			Expected:   ExpectedDescription(check.Evaluate),
			Message:    out.message,
			Timestamp:  v.now(),
			PollNumber: poll,
			Defaulted:  out.defaulted,
		}
		icon := "✓"
		if !result.Success {
			icon = "✗"
		}
		v.logger.Info(fmt.Sprintf("  %s %s: %s", icon, check.Name, result.Message),
			"check", check.Name, "poll", poll, "success", result.Success)
	}
	span.SetAttributes(attribute.Bool("check.success", result.Success))

	v.metrics.CheckCompleted(result, elapsed)
	v.bus.Publish(events.Event{
		Type:      events.EventCheckResult,
		Timestamp: result.Timestamp,
		Data:      result,
		Poll:      poll,
		Duration:  elapsed,
	})
	return result
}

// failedResult maps a stage failure onto a failed CheckResult.
func (v *Verifier) failedResult(ctx context.Context, check spec.Check, poll int, serr *StageError) CheckResult {
	var level slog.Level
	switch serr.Stage {
	case StageTransport:
		level = slog.LevelWarn
	case StageExtract, StageCoerce, StageEvaluate:
		level = slog.LevelError
	default:
		panic(fmt.Sprintf("verify: unhandled stage %q", serr.Stage))
	}
	v.logger.Log(ctx, level, fmt.Sprintf("  ✗ %s: Error - %v", check.Name, serr.Err),
		"check", check.Name, "poll", poll, "stage", string(serr.Stage))

	return CheckResult{
		CheckName:  check.Name,
		Success:    false,
		Value:      nil,
		Message:    "Error: " + serr.Err.Error(),
		Timestamp:  v.now(),
		PollNumber: poll,
		Stage:      serr.Stage,
		Error:      serr,
	}
}

// executePoll runs every configured check once. With max_concurrency above 1
// checks run concurrently; results keep the configured check order either way.
func (v *Verifier) executePoll(ctx context.Context, poll int) []CheckResult {
	checks := v.cfg.Checks
	results := make([]CheckResult, len(checks))

	if v.cfg.MaxConcurrency <= 1 || len(checks) == 1 {
		for i, check := range checks {
			results[i] = v.ExecuteCheck(ctx, check, poll)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(v.cfg.MaxConcurrency)
	for i, check := range checks {
		g.Go(func() error {
			results[i] = v.ExecuteCheck(ctx, check, poll)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
