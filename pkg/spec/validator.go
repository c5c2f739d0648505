package spec

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult holds all validation errors for a config.
type ValidationResult struct {
	Errors []ValidationError
}

// Valid returns true if no validation errors were found.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Error returns a combined error message from all validation errors.
func (r ValidationResult) Error() string {
	if r.Valid() {
		return ""
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// Err returns nil for a valid result and a *ConfigError otherwise.
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return &ConfigError{Result: r}
}

func (r *ValidationResult) add(field, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// ConfigError is a fatal, pre-run configuration problem. The verification
// loop never starts when one is reported.
type ConfigError struct {
	Result ValidationResult
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Result.Error()
}

// configValidate checks struct-tag rules; field names are reported using
// their YAML keys.
var configValidate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a VerificationConfig for required fields, value ranges and
// the cross-field rules the engine relies on. It runs once before polling.
func Validate(cfg VerificationConfig) ValidationResult {
	var result ValidationResult

	if err := configValidate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			result.add("config", "%v", err)
			return result
		}
		for _, fe := range fieldErrs {
			result.add(fieldPath(fe.Namespace()), "%s", tagMessage(fe))
		}
	}

	names := make(map[string]int, len(cfg.Checks))
	for i, ch := range cfg.Checks {
		prefix := fmt.Sprintf("checks[%d]", i)
		if ch.Name != "" {
			if first, dup := names[ch.Name]; dup {
				result.add(prefix+".name", "duplicate check name %q (also checks[%d])", ch.Name, first)
			} else {
				names[ch.Name] = i
			}
		}
		validateBody(&result, prefix, ch.Query.Body)
		validateEvaluator(&result, prefix, ch)
	}

	validateEvaluation(&result, cfg.Evaluation, len(cfg.Checks))
	validateAuth(&result, cfg.Auth)

	return result
}

func validateBody(result *ValidationResult, prefix string, body any) {
	switch body.(type) {
	case nil, string, map[string]any:
	default:
		result.add(prefix+".query.body", "must be a string or a mapping, got %T", body)
	}
}

func validateEvaluator(result *ValidationResult, prefix string, ch Check) {
	ev := ch.Evaluate
	field := prefix + ".evaluate"
	if ev.Operator == "" {
		result.add(field+".operator", "required")
	} else if !ev.Operator.Valid() {
		result.add(field+".operator", "unknown operator %q (expected one of < > <= >= == !=)", ev.Operator)
	}
	if ev.Value == nil {
		result.add(field+".value", "required")
		return
	}

	switch ch.Extract.Type {
	case TypeNumber:
		if !numeric(ev.Value) {
			result.add(field+".value", "must be numeric for type number, got %v", ev.Value)
		}
		if ch.Extract.Default != nil && !numeric(ch.Extract.Default) {
			result.add(prefix+".extract.default", "must be numeric for type number, got %v", ch.Extract.Default)
		}
	case TypeBoolean:
		if !boolean(ev.Value) {
			result.add(field+".value", "must be a boolean for type boolean, got %v", ev.Value)
		}
	case TypeJSON:
		if ev.Operator.Ordering() {
			result.add(field+".operator", "operator %q cannot order json values (use == or !=)", ev.Operator)
		}
	}
}

func validateEvaluation(result *ValidationResult, ev EvaluationConfig, checks int) {
	switch ev.Mode {
	case ModeAllPass, ModeAnyPass:
	case ModeThreshold:
		if ev.MinPassed == nil {
			result.add("evaluation.min_passed", "required when mode is threshold")
			return
		}
		if *ev.MinPassed < 1 {
			result.add("evaluation.min_passed", "must be at least 1")
		}
		if *ev.MinPassed > checks {
			result.add("evaluation.min_passed", "min_passed (%d) cannot exceed number of checks (%d)", *ev.MinPassed, checks)
		}
	default:
		result.add("evaluation.mode", "unknown mode %q (expected all-pass, any-pass or threshold)", ev.Mode)
	}
}

func validateAuth(result *ValidationResult, auth AuthConfig) {
	switch auth.Method {
	case AuthBasic:
		if auth.Username == "" || auth.Password == "" {
			result.add("auth", "basic auth requires both username and password")
		}
	case AuthBearer:
		if auth.Token == "" {
			result.add("auth.token", "%s auth requires token", auth.Method)
		}
	case AuthAPIKey, AuthHeader:
		if auth.Token == "" {
			result.add("auth.token", "%s auth requires token", auth.Method)
		}
		if auth.HeaderName == "" {
			result.add("auth.header_name", "%s auth requires header_name", auth.Method)
		}
	}
}

// fieldPath strips the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "eq":
		return fmt.Sprintf("must be %q", fe.Param())
	case "url":
		return fmt.Sprintf("must be an absolute URL, got %q", fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("failed %q rule", fe.Tag())
	}
}

func numeric(v any) bool {
	switch n := v.(type) {
	case int, int64, float64, float32, uint64:
		return true
	case string:
		_, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return err == nil
	}
	return false
}

func boolean(v any) bool {
	switch b := v.(type) {
	case bool:
		return true
	case string:
		_, err := strconv.ParseBool(b)
		return err == nil
	}
	return false
}
