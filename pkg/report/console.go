package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/cgast/canarygate/pkg/verify"
)

func statusColor(s verify.Status) *color.Color {
	switch s {
	case verify.StatusPassed:
		return color.New(color.FgGreen, color.Bold)
	case verify.StatusFailed:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgYellow, color.Bold)
	}
}

// PrintSummary writes a short human-readable verdict to w.
func PrintSummary(w io.Writer, result verify.VerificationResult) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Verification %s\n", statusColor(result.Status).Sprint(result.Status))
	fmt.Fprintf(w, "  Checks passed: %d\n", result.ChecksPassed)
	fmt.Fprintf(w, "  Checks failed: %d\n", result.ChecksFailed)
	fmt.Fprintf(w, "  Total polls:   %d\n", result.TotalPolls)
	fmt.Fprintf(w, "  Duration:      %ds\n", result.Duration)
	if result.FailureReason != "" {
		fmt.Fprintf(w, "  Reason:        %s\n", result.FailureReason)
	}

	last := verify.PollResults(result.DetailedResults, result.TotalPolls)
	if len(last) == 0 {
		return
	}
	fmt.Fprintf(w, "\nLast poll (#%d):\n", result.TotalPolls)
	for _, r := range last {
		if r.Success {
			fmt.Fprintf(w, "  %s %s: %s\n", color.GreenString("✓"), r.CheckName, r.Message)
		} else {
			fmt.Fprintf(w, "  %s %s: %s\n", color.RedString("✗"), r.CheckName, r.Message)
		}
	}
}
