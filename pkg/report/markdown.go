package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/cgast/canarygate/pkg/verify"
)

// Markdown renders the result as a report with a summary and one table per
// poll.
func Markdown(result verify.VerificationResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Verification %s\n\n", result.Status)
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Run | `%s` |\n", result.RunID)
	fmt.Fprintf(&b, "| Checks passed | %d |\n", result.ChecksPassed)
	fmt.Fprintf(&b, "| Checks failed | %d |\n", result.ChecksFailed)
	fmt.Fprintf(&b, "| Polls | %d |\n", result.TotalPolls)
	fmt.Fprintf(&b, "| Duration | %ds |\n", result.Duration)
	if result.FailureReason != "" {
		fmt.Fprintf(&b, "| Reason | %s |\n", escapeCell(result.FailureReason))
	}

	for poll := 1; poll <= result.TotalPolls; poll++ {
		results := verify.PollResults(result.DetailedResults, poll)
		if len(results) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## Poll %d\n\n", poll)
		b.WriteString("| Check | Result | Value | Expected | Message |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, r := range results {
			mark := "✅"
			if !r.Success {
				mark = "❌"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				escapeCell(r.CheckName), mark, escapeCell(fmt.Sprintf("%v", r.Value)),
				escapeCell(r.Expected), escapeCell(r.Message))
		}
	}
	return b.String()
}

// HTML renders the Markdown report as a standalone HTML page.
func HTML(result verify.VerificationResult) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))

	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(result)), &body); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>Verification %s</title>\n", result.Status)
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
