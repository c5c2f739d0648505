package verify

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/cgast/canarygate/pkg/spec"
)

// comparisons maps each operator to a test on the three-way comparison of
// value against the expected literal.
var comparisons = map[spec.Operator]func(cmp int) bool{
	spec.OpLess:         func(c int) bool { return c < 0 },
	spec.OpGreater:      func(c int) bool { return c > 0 },
	spec.OpLessEqual:    func(c int) bool { return c <= 0 },
	spec.OpGreaterEqual: func(c int) bool { return c >= 0 },
	spec.OpEqual:        func(c int) bool { return c == 0 },
	spec.OpNotEqual:     func(c int) bool { return c != 0 },
}

// Evaluate compares value against expected with op and returns the verdict
// with its explanation.
func Evaluate(op spec.Operator, value, expected any) (bool, string, error) {
	test, ok := comparisons[op]
	if !ok {
		return false, "", fmt.Errorf("%w: %q", ErrUnknownOperator, op)
	}

	var cmp int
	var err error
	if op.Ordering() {
		cmp, err = order(value, expected)
		if err != nil {
			return false, "", fmt.Errorf("%w: %s %s %s", err, formatValue(value), op, formatValue(expected))
		}
	} else if !equal(value, expected) {
		cmp = 1
	}

	if test(cmp) {
		return true, fmt.Sprintf("value %s %s %s", formatValue(value), op, formatValue(expected)), nil
	}
	return false, fmt.Sprintf("value %s not %s %s", formatValue(value), op, formatValue(expected)), nil
}

// ExpectedDescription renders the evaluator as "<op> <value>".
func ExpectedDescription(ev spec.ThresholdEvaluator) string {
	return fmt.Sprintf("%s %s", ev.Operator, formatValue(ev.Value))
}

// order is a three-way comparison for numbers, strings and booleans.
func order(a, b any) (int, error) {
	if x, ok := asFloat(a); ok {
		if y, ok := asFloat(b); ok {
			switch {
			case x < y:
				return -1, nil
			case x > y:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	}
	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok {
			return boolRank(x) - boolRank(y), nil
		}
	}
	return 0, ErrIncomparable
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// equal compares scalars directly and structured values by their JSON form,
// so 5 from YAML equals 5.0 from a decoded response.
func equal(a, b any) bool {
	if x, ok := asFloat(a); ok {
		if y, ok := asFloat(b); ok {
			return x == y
		}
		return false
	}
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// formatValue renders a value for messages: scalars as text, structured
// values as compact JSON.
func formatValue(v any) string {
	switch tv := v.(type) {
	case nil:
		return "null"
	case string:
		return tv
	case map[string]any, []any:
		data, err := json.Marshal(tv)
		if err != nil {
			return fmt.Sprintf("%v", tv)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", tv)
	}
}
