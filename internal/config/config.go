package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the tool's runtime settings from .canarygate/config.yaml.
// These are operator preferences, separate from the verification config.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"` // "text" or "json"
	Status    StatusConfig    `yaml:"status"`
	Reporting ReportingConfig `yaml:"reporting"`
}

// StatusConfig defines the live status server settings.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ReportingConfig defines where verdicts are published besides the exit code.
type ReportingConfig struct {
	OutputDir string       `yaml:"output_dir"`
	GitHub    GitHubConfig `yaml:"github"`
}

// GitHubConfig holds commit-status reporting settings.
type GitHubConfig struct {
	Token   string `yaml:"token"`
	Repo    string `yaml:"repo"`    // owner/name
	Context string `yaml:"context"` // commit status context
	BaseURL string `yaml:"base_url"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Status: StatusConfig{
			Addr: "127.0.0.1:4200",
		},
		Reporting: ReportingConfig{
			GitHub: GitHubConfig{
				Context: "canarygate",
			},
		},
	}
}

// LoadConfig reads and parses a runtime config YAML file.
// Returns default config if the file doesn't exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal([]byte(InterpolateEnv(string(data))), &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Reporting.GitHub.Token == "" {
		cfg.Reporting.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}

	return cfg, nil
}

// envVarPattern matches ${VAR_NAME} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// InterpolateEnv replaces ${VAR_NAME} patterns with environment variable values.
func InterpolateEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match // Leave unresolved if not set.
	})
}
