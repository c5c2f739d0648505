package spec

import (
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// VerificationConfig describes one continuous-verification run: where to
// query, which checks to run on every poll and how to combine their results.
// It is treated as immutable once a run starts.
type VerificationConfig struct {
	APIEndpoint    string           `yaml:"api_endpoint" json:"api_endpoint" validate:"required,url"`
	Auth           AuthConfig       `yaml:"auth" json:"auth"`
	Checks         []Check          `yaml:"checks" json:"checks" validate:"required,min=1,dive"`
	Evaluation     EvaluationConfig `yaml:"evaluation" json:"evaluation"`
	Output         OutputConfig     `yaml:"output" json:"output"`
	PollInterval   int              `yaml:"poll_interval" json:"poll_interval" validate:"gt=0"`
	Timeout        int              `yaml:"timeout" json:"timeout" validate:"gt=0"`
	VerifySSL      *bool            `yaml:"verify_ssl,omitempty" json:"verify_ssl,omitempty"`
	CABundle       string           `yaml:"ca_bundle,omitempty" json:"ca_bundle,omitempty"`
	MaxConcurrency int              `yaml:"max_concurrency" json:"max_concurrency" validate:"gte=1"`
	RateLimit      float64          `yaml:"rate_limit" json:"rate_limit" validate:"gte=0"`
}

// AuthMethod selects how the transport authenticates against the API.
type AuthMethod string

const (
	AuthNone   AuthMethod = "none"
	AuthBearer AuthMethod = "bearer"
	AuthBasic  AuthMethod = "basic"
	AuthAPIKey AuthMethod = "api-key"
	AuthHeader AuthMethod = "header"
)

// AuthConfig holds credentials for the metrics API.
type AuthConfig struct {
	Method     AuthMethod `yaml:"method" json:"method" validate:"omitempty,oneof=none bearer basic api-key header"`
	Token      string     `yaml:"token,omitempty" json:"token,omitempty"`
	Username   string     `yaml:"username,omitempty" json:"username,omitempty"`
	Password   string     `yaml:"password,omitempty" json:"password,omitempty"`
	HeaderName string     `yaml:"header_name,omitempty" json:"header_name,omitempty"`
}

const redacted = "***REDACTED***"

// Redacted returns a copy with secrets masked, safe for logs and reports.
func (a AuthConfig) Redacted() AuthConfig {
	if a.Token != "" {
		a.Token = redacted
	}
	if a.Password != "" {
		a.Password = redacted
	}
	return a
}

// Check is a single query + extract + evaluate unit. Name is the join key
// across polls and must be unique within a config.
type Check struct {
	Name        string             `yaml:"name" json:"name" validate:"required"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Query       Query              `yaml:"query" json:"query"`
	Extract     Extract            `yaml:"extract" json:"extract"`
	Evaluate    ThresholdEvaluator `yaml:"evaluate" json:"evaluate"`
}

// Query describes the HTTP request issued for a check.
type Query struct {
	Endpoint string            `yaml:"endpoint" json:"endpoint" validate:"required"`
	Method   string            `yaml:"method" json:"method" validate:"oneof=GET POST PUT PATCH"`
	Headers  map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body     any               `yaml:"body,omitempty" json:"body,omitempty"` // string (raw) or map (JSON)
	Params   map[string]any    `yaml:"params,omitempty" json:"params,omitempty"`
	Timeout  int               `yaml:"timeout" json:"timeout" validate:"gt=0"` // seconds
}

// TimeoutDuration returns the per-request timeout.
func (q Query) TimeoutDuration() time.Duration {
	return time.Duration(q.Timeout) * time.Second
}

// ValueType is the type an extracted value is coerced into.
type ValueType string

const (
	TypeNumber  ValueType = "number"
	TypeString  ValueType = "string"
	TypeBoolean ValueType = "boolean"
	TypeJSON    ValueType = "json"
)

// Extract locates the value to evaluate inside a JSON response.
type Extract struct {
	Path    string    `yaml:"path" json:"path" validate:"required"` // JSONPath expression
	Type    ValueType `yaml:"type" json:"type" validate:"oneof=number string boolean json"`
	Default any       `yaml:"default,omitempty" json:"default,omitempty"`
}

// Operator is a relational or equality comparison.
type Operator string

const (
	OpLess         Operator = "<"
	OpGreater      Operator = ">"
	OpLessEqual    Operator = "<="
	OpGreaterEqual Operator = ">="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// Operators lists every supported operator.
var Operators = []Operator{OpLess, OpGreater, OpLessEqual, OpGreaterEqual, OpEqual, OpNotEqual}

// Valid reports whether o is a supported operator.
func (o Operator) Valid() bool {
	for _, op := range Operators {
		if o == op {
			return true
		}
	}
	return false
}

// Ordering reports whether o needs an ordering rather than plain equality.
func (o Operator) Ordering() bool {
	return o != OpEqual && o != OpNotEqual
}

// ThresholdEvaluator compares the coerced value against a literal.
type ThresholdEvaluator struct {
	Type     string   `yaml:"type,omitempty" json:"type,omitempty" validate:"omitempty,eq=threshold"`
	Operator Operator `yaml:"operator" json:"operator"`
	Value    any      `yaml:"value" json:"value"`
}

// EvaluationMode combines the check results of one poll into a verdict.
type EvaluationMode string

const (
	ModeAllPass   EvaluationMode = "all-pass"
	ModeAnyPass   EvaluationMode = "any-pass"
	ModeThreshold EvaluationMode = "threshold"
)

// NormalizeMode accepts both "all-pass" and "ALL_PASS" spellings.
func NormalizeMode(s string) EvaluationMode {
	return EvaluationMode(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
}

// UnmarshalYAML normalizes the mode spelling.
func (m *EvaluationMode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	*m = NormalizeMode(s)
	return nil
}

// EvaluationConfig is the per-poll aggregation policy. MinPassed is only
// meaningful, and then required, in threshold mode.
type EvaluationConfig struct {
	Mode      EvaluationMode `yaml:"mode" json:"mode"`
	MinPassed *int           `yaml:"min_passed,omitempty" json:"min_passed,omitempty"`
}

// OutputFormat selects the detailed report rendering.
type OutputFormat string

const (
	FormatJSON     OutputFormat = "json"
	FormatMarkdown OutputFormat = "markdown"
	FormatHTML     OutputFormat = "html"
)

// OutputConfig controls what the final result carries and how it is rendered.
type OutputConfig struct {
	IncludeDetails *bool        `yaml:"include_details,omitempty" json:"include_details,omitempty"`
	Format         OutputFormat `yaml:"format" json:"format" validate:"oneof=json markdown html"`
}

// Details reports whether per-poll results are kept in the final result.
func (o OutputConfig) Details() bool {
	return o.IncludeDetails == nil || *o.IncludeDetails
}

// SSLVerification reports whether server certificates are verified.
func (c VerificationConfig) SSLVerification() bool {
	return c.VerifySSL == nil || *c.VerifySSL
}

// PollIntervalDuration returns the pause between polls.
func (c VerificationConfig) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// TimeoutDuration returns the overall run deadline.
func (c VerificationConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// Redacted returns a copy with credentials masked.
func (c VerificationConfig) Redacted() VerificationConfig {
	c.Auth = c.Auth.Redacted()
	return c
}

// Default values applied by the loader and ApplyDefaults.
const (
	DefaultPollInterval = 60
	DefaultTimeout      = 3600
	DefaultQueryTimeout = 30
	DefaultMethod       = "GET"
)

// DefaultConfig returns a config carrying every top-level default. Loading
// decodes on top of it, so keys absent from the document keep these values.
func DefaultConfig() VerificationConfig {
	return VerificationConfig{
		Auth:           AuthConfig{Method: AuthNone},
		Evaluation:     EvaluationConfig{Mode: ModeAllPass},
		Output:         OutputConfig{Format: FormatJSON},
		PollInterval:   DefaultPollInterval,
		Timeout:        DefaultTimeout,
		MaxConcurrency: 1,
	}
}

// ApplyDefaults fills zero-valued enum and per-check fields.
func (c *VerificationConfig) ApplyDefaults() {
	if c.Auth.Method == "" {
		c.Auth.Method = AuthNone
	}
	if c.Evaluation.Mode == "" {
		c.Evaluation.Mode = ModeAllPass
	}
	if c.Output.Format == "" {
		c.Output.Format = FormatJSON
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 1
	}
	for i := range c.Checks {
		ch := &c.Checks[i]
		if ch.Query.Method == "" {
			ch.Query.Method = DefaultMethod
		} else {
			ch.Query.Method = strings.ToUpper(ch.Query.Method)
		}
		if ch.Query.Timeout == 0 {
			ch.Query.Timeout = DefaultQueryTimeout
		}
		if ch.Extract.Type == "" {
			ch.Extract.Type = TypeNumber
		}
		if ch.Evaluate.Type == "" {
			ch.Evaluate.Type = "threshold"
		}
	}
}
