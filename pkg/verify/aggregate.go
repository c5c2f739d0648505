package verify

import (
	"fmt"

	"github.com/cgast/canarygate/pkg/spec"
)

// EvaluateOverall combines one poll's results into PASSED or FAILED. It never
// returns TIMEOUT; that is a property of the whole run.
func EvaluateOverall(results []CheckResult, policy spec.EvaluationConfig) (Status, string) {
	passed, failed := countPassed(results)

	switch policy.Mode {
	case spec.ModeAllPass, "":
		if failed == 0 {
			return StatusPassed, "All checks passed"
		}
		return StatusFailed, fmt.Sprintf("%d check(s) failed", failed)

	case spec.ModeAnyPass:
		if passed > 0 {
			return StatusPassed, "At least one check passed"
		}
		return StatusFailed, "All checks failed"

	case spec.ModeThreshold:
		minPassed := 1
		if policy.MinPassed != nil {
			minPassed = *policy.MinPassed
		}
		if passed >= minPassed {
			return StatusPassed, fmt.Sprintf("%d checks passed (>= %d)", passed, minPassed)
		}
		return StatusFailed, fmt.Sprintf("Only %d checks passed (need >= %d)", passed, minPassed)
	}

	return StatusFailed, "Checks not yet passing"
}
