package spec

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cgast/canarygate/internal/config"
)

// LoadFile reads a YAML or JSON verification config from disk.
func LoadFile(path string) (VerificationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return VerificationConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return VerificationConfig{}, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadReader reads a verification config from r (typically stdin).
func LoadReader(r io.Reader) (VerificationConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return VerificationConfig{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return VerificationConfig{}, fmt.Errorf("config from stdin: %w", err)
	}
	return cfg, nil
}

// LoadEnv reads a verification config from the named environment variable.
func LoadEnv(name string) (VerificationConfig, error) {
	content, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(content) == "" {
		return VerificationConfig{}, fmt.Errorf("environment variable %q not found or empty", name)
	}
	cfg, err := Parse([]byte(content))
	if err != nil {
		return VerificationConfig{}, fmt.Errorf("config from environment variable %q: %w", name, err)
	}
	return cfg, nil
}

// Parse decodes YAML (or JSON, which YAML subsumes) into a VerificationConfig.
// ${VAR} references are replaced from the environment first so secrets can
// stay out of the file. The result is not validated.
func Parse(data []byte) (VerificationConfig, error) {
	interpolated := config.InterpolateEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return VerificationConfig{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}
