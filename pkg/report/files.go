// Package report renders a VerificationResult for people and for the tools
// that gate on it: an output directory of status files, a console summary
// and a GitHub commit status.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"

	"github.com/cgast/canarygate/pkg/spec"
	"github.com/cgast/canarygate/pkg/verify"
)

// Files written to the output directory.
const (
	FileStatus          = "verification-status"
	FileChecksPassed    = "checks-passed"
	FileChecksFailed    = "checks-failed"
	FileDuration        = "duration"
	FilePollCount       = "poll-count"
	FileDetailedResults = "detailed-results"
	FileMarkdown        = "detailed-results.md"
	FileHTML            = "detailed-results.html"

	lockFile = ".canarygate.lock"
)

// jsonReport is the layout of the detailed-results file.
type jsonReport struct {
	RunID         string       `json:"run_id"`
	Status        string       `json:"status"`
	ChecksPassed  int          `json:"checks_passed"`
	ChecksFailed  int          `json:"checks_failed"`
	TotalPolls    int          `json:"total_polls"`
	Duration      int64        `json:"duration"`
	FailureReason *string      `json:"failure_reason"`
	Results       []jsonResult `json:"results"`
}

type jsonResult struct {
	CheckName  string `json:"check_name"`
	Success    bool   `json:"success"`
	Value      any    `json:"value"`
	Expected   string `json:"expected"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	PollNumber int    `json:"poll_number"`
}

// JSON renders the detailed-results document.
func JSON(result verify.VerificationResult) ([]byte, error) {
	rep := jsonReport{
		RunID:        result.RunID,
		Status:       string(result.Status),
		ChecksPassed: result.ChecksPassed,
		ChecksFailed: result.ChecksFailed,
		TotalPolls:   result.TotalPolls,
		Duration:     result.Duration,
		Results:      make([]jsonResult, 0, len(result.DetailedResults)),
	}
	if result.FailureReason != "" {
		reason := result.FailureReason
		rep.FailureReason = &reason
	}
	for _, r := range result.DetailedResults {
		rep.Results = append(rep.Results, jsonResult{
			CheckName:  r.CheckName,
			Success:    r.Success,
			Value:      r.Value,
			Expected:   r.Expected,
			Message:    r.Message,
			Timestamp:  r.Timestamp.Format(time.RFC3339),
			PollNumber: r.PollNumber,
		})
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal results: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteOutputs writes the status files for result into dir, creating it if
// needed. The directory is locked while writing so concurrent runs sharing
// it never interleave their files.
func WriteOutputs(result verify.VerificationResult, dir string, format spec.OutputFormat) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFile))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock output dir %s: %w", dir, err)
	}
	defer lock.Unlock()

	files := map[string][]byte{
		FileStatus:       []byte(string(result.Status)),
		FileChecksPassed: []byte(strconv.Itoa(result.ChecksPassed)),
		FileChecksFailed: []byte(strconv.Itoa(result.ChecksFailed)),
		FileDuration:     []byte(strconv.FormatInt(result.Duration, 10)),
		FilePollCount:    []byte(strconv.Itoa(result.TotalPolls)),
	}

	detailed, err := JSON(result)
	if err != nil {
		return err
	}
	files[FileDetailedResults] = detailed

	switch format {
	case spec.FormatMarkdown:
		files[FileMarkdown] = []byte(Markdown(result))
	case spec.FormatHTML:
		html, err := HTML(result)
		if err != nil {
			return err
		}
		files[FileHTML] = html
	}

	for name, data := range files {
		if err := atomicWrite(filepath.Join(dir, name), data); err != nil {
			return err
		}
	}
	return nil
}

// atomicWrite writes through a temp file and rename so readers never see a
// partial file.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
