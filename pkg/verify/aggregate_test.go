package verify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cgast/canarygate/pkg/spec"
)

// pollOf builds a poll with the given number of passing and failing results.
func pollOf(passed, failed int) []CheckResult {
	var results []CheckResult
	for i := 0; i < passed; i++ {
		results = append(results, CheckResult{CheckName: fmt.Sprintf("p%d", i), Success: true, PollNumber: 1})
	}
	for i := 0; i < failed; i++ {
		results = append(results, CheckResult{CheckName: fmt.Sprintf("f%d", i), Success: false, PollNumber: 1})
	}
	return results
}

func TestEvaluateOverallAllPass(t *testing.T) {
	policy := spec.EvaluationConfig{Mode: spec.ModeAllPass}
	for total := 1; total <= 4; total++ {
		for passed := 0; passed <= total; passed++ {
			status, reason := EvaluateOverall(pollOf(passed, total-passed), policy)
			if passed == total {
				assert.Equal(t, StatusPassed, status)
				assert.Equal(t, "All checks passed", reason)
			} else {
				assert.Equal(t, StatusFailed, status)
				assert.Equal(t, fmt.Sprintf("%d check(s) failed", total-passed), reason)
			}
		}
	}
}

func TestEvaluateOverallAnyPass(t *testing.T) {
	policy := spec.EvaluationConfig{Mode: spec.ModeAnyPass}

	status, reason := EvaluateOverall(pollOf(1, 3), policy)
	assert.Equal(t, StatusPassed, status)
	assert.Equal(t, "At least one check passed", reason)

	status, reason = EvaluateOverall(pollOf(0, 3), policy)
	assert.Equal(t, StatusFailed, status)
	assert.Equal(t, "All checks failed", reason)
}

func TestEvaluateOverallThreshold(t *testing.T) {
	const total = 5
	for k := 1; k <= total; k++ {
		policy := spec.EvaluationConfig{Mode: spec.ModeThreshold, MinPassed: &k}
		for passed := 0; passed <= total; passed++ {
			status, _ := EvaluateOverall(pollOf(passed, total-passed), policy)
			if passed >= k {
				assert.Equal(t, StatusPassed, status, "k=%d passed=%d", k, passed)
			} else {
				assert.Equal(t, StatusFailed, status, "k=%d passed=%d", k, passed)
			}
		}
	}

	two := 2
	_, reason := EvaluateOverall(pollOf(1, 2), spec.EvaluationConfig{Mode: spec.ModeThreshold, MinPassed: &two})
	assert.Equal(t, "Only 1 checks passed (need >= 2)", reason)
	_, reason = EvaluateOverall(pollOf(3, 0), spec.EvaluationConfig{Mode: spec.ModeThreshold, MinPassed: &two})
	assert.Equal(t, "3 checks passed (>= 2)", reason)
}

func TestEvaluateOverallNeverTimeout(t *testing.T) {
	for _, mode := range []spec.EvaluationMode{spec.ModeAllPass, spec.ModeAnyPass, spec.ModeThreshold} {
		status, _ := EvaluateOverall(pollOf(0, 2), spec.EvaluationConfig{Mode: mode})
		assert.NotEqual(t, StatusTimeout, status)
	}
}
