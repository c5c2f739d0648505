package verify

import "time"

// Status is the verdict of a poll or a run. The strings are stable.
type Status string

const (
	StatusPassed  Status = "PASSED"
	StatusFailed  Status = "FAILED"
	StatusTimeout Status = "TIMEOUT"
)

// CheckResult is the outcome of one check in one poll.
type CheckResult struct {
	CheckName  string    `json:"check_name"`
	Success    bool      `json:"success"`
	Value      any       `json:"value"`
	Expected   string    `json:"expected,omitempty"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	PollNumber int       `json:"poll_number"`
	Defaulted  bool      `json:"defaulted,omitempty"`
	Stage      Stage     `json:"stage,omitempty"` // set when the pipeline failed
	Error      error     `json:"-"`
}

// VerificationResult is the final outcome of a run. ChecksPassed and
// ChecksFailed describe the last poll only; DetailedResults spans all polls.
type VerificationResult struct {
	RunID           string        `json:"run_id"`
	Status          Status        `json:"status"`
	ChecksPassed    int           `json:"checks_passed"`
	ChecksFailed    int           `json:"checks_failed"`
	TotalPolls      int           `json:"total_polls"`
	Duration        int64         `json:"duration"` // whole seconds
	DetailedResults []CheckResult `json:"detailed_results"`
	FailureReason   string        `json:"failure_reason,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
}

// PollResults returns the results tagged with poll number n.
func PollResults(results []CheckResult, n int) []CheckResult {
	var out []CheckResult
	for _, r := range results {
		if r.PollNumber == n {
			out = append(out, r)
		}
	}
	return out
}

// countPassed returns the number of successful and failed results.
func countPassed(results []CheckResult) (passed, failed int) {
	for _, r := range results {
		if r.Success {
			passed++
		}
	}
	return passed, len(results) - passed
}
