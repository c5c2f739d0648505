package spec

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
api_endpoint: http://prometheus:9090
auth:
  method: bearer
  token: "${TEST_CV_TOKEN}"
checks:
  - name: error_rate
    query:
      endpoint: /api/v1/query
      method: post
      body: "query=error_rate"
    extract:
      path: "$.data.result[0].value[1]"
    evaluate:
      operator: "<"
      value: 0.01
  - name: healthy
    query:
      endpoint: /health
      params:
        verbose: true
    extract:
      path: "$.status"
      type: string
    evaluate:
      operator: "=="
      value: ok
evaluation:
  mode: THRESHOLD
  min_passed: 1
poll_interval: 10
`

func TestLoadFile(t *testing.T) {
	t.Setenv("TEST_CV_TOKEN", "s3cret")
	dir := t.TempDir()
	path := filepath.Join(dir, "verify.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Auth.Token != "s3cret" {
		t.Errorf("Auth.Token = %q, want interpolated value", cfg.Auth.Token)
	}
	if len(cfg.Checks) != 2 {
		t.Fatalf("Checks len = %d, want 2", len(cfg.Checks))
	}
	if got := cfg.Checks[0].Query.Method; got != "POST" {
		t.Errorf("Method = %q, want POST", got)
	}
	if got := cfg.Checks[1].Query.Method; got != DefaultMethod {
		t.Errorf("default Method = %q, want %q", got, DefaultMethod)
	}
	if got := cfg.Checks[0].Query.Timeout; got != DefaultQueryTimeout {
		t.Errorf("Query.Timeout = %d, want %d", got, DefaultQueryTimeout)
	}
	if got := cfg.Checks[0].Extract.Type; got != TypeNumber {
		t.Errorf("Extract.Type = %q, want number", got)
	}
	if cfg.Evaluation.Mode != ModeThreshold {
		t.Errorf("Mode = %q, want %q", cfg.Evaluation.Mode, ModeThreshold)
	}
	if cfg.PollInterval != 10 {
		t.Errorf("PollInterval = %d, want 10", cfg.PollInterval)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %d, want default %d", cfg.Timeout, DefaultTimeout)
	}
	if !cfg.SSLVerification() || !cfg.Output.Details() {
		t.Error("verify_ssl and include_details should default to true")
	}
	if result := Validate(cfg); !result.Valid() {
		t.Errorf("loaded config invalid: %s", result.Error())
	}
}

func TestParseJSON(t *testing.T) {
	doc := `{"api_endpoint": "http://api:8080", "timeout": 5,
	  "checks": [{"name": "c", "query": {"endpoint": "/m"},
	              "extract": {"path": "$.v", "type": "boolean"},
	              "evaluate": {"operator": "==", "value": true}}]}`

	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Timeout != 5 || cfg.PollInterval != DefaultPollInterval {
		t.Errorf("timing = %d/%d", cfg.Timeout, cfg.PollInterval)
	}
	if cfg.Checks[0].Evaluate.Value != true {
		t.Errorf("Evaluate.Value = %v", cfg.Checks[0].Evaluate.Value)
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("checks: [unclosed")); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("CV_CONFIG", "api_endpoint: http://x:1\n")
	cfg, err := LoadEnv("CV_CONFIG")
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if cfg.APIEndpoint != "http://x:1" {
		t.Errorf("APIEndpoint = %q", cfg.APIEndpoint)
	}

	if _, err := LoadEnv("CV_CONFIG_UNSET_FOR_TEST"); err == nil {
		t.Error("expected error for missing variable")
	}
}

func TestLoadReader(t *testing.T) {
	cfg, err := LoadReader(strings.NewReader("api_endpoint: http://stdin:1\ntimeout: 7\n"))
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if cfg.Timeout != 7 {
		t.Errorf("Timeout = %d", cfg.Timeout)
	}
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.Auth = AuthConfig{Method: AuthBasic, Username: "bob", Password: "hunter2"}
	red := cfg.Redacted()
	if red.Auth.Password != redacted {
		t.Errorf("Password = %q", red.Auth.Password)
	}
	if cfg.Auth.Password != "hunter2" {
		t.Error("Redacted must not modify the original")
	}
}

func TestNormalizeMode(t *testing.T) {
	tests := map[string]EvaluationMode{
		"ALL_PASS":  ModeAllPass,
		"any-pass":  ModeAnyPass,
		"Threshold": ModeThreshold,
	}
	for in, want := range tests {
		if got := NormalizeMode(in); got != want {
			t.Errorf("NormalizeMode(%q) = %q, want %q", in, got, want)
		}
	}
}
