// Package config handles environment and policy-file configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DetectorPatterns selects the local pattern-rule strategy.
	DetectorPatterns = "patterns"
	// DetectorModel selects the model-backed strategy.
	DetectorModel = "model"
)

// PolicyParseError indicates a policy file exists but contains invalid
// content. This is distinct from "file not found", which uses defaults.
type PolicyParseError struct {
	Path string
	Err  error
}

func (e *PolicyParseError) Error() string {
	return fmt.Sprintf("invalid policy at %s: %v", e.Path, e.Err)
}

func (e *PolicyParseError) Unwrap() error {
	return e.Err
}

// Policy is the optional YAML review policy.
type Policy struct {
	// Detector selects the analysis strategy: "patterns" or "model".
	Detector string `yaml:"detector"`
	// Model overrides the default model for the model strategy.
	Model string `yaml:"model"`
	// AllowedExtensions replaces the built-in extension allow-list when
	// non-empty. Entries must start with a dot.
	AllowedExtensions []string `yaml:"allowed_extensions"`
	// SkipPatterns are extra case-insensitive path substrings to skip,
	// added on top of the built-in generated/vendor heuristics.
	SkipPatterns []string `yaml:"skip_patterns"`
	// MaxChangeSize overrides the additions+deletions cap when positive.
	MaxChangeSize int `yaml:"max_change_size"`
}

// DefaultPolicy returns the default review policy.
func DefaultPolicy() *Policy {
	return &Policy{Detector: DetectorPatterns}
}

// Validate validates the policy and fills defaults.
func (p *Policy) Validate() error {
	switch p.Detector {
	case DetectorPatterns, DetectorModel:
	case "":
		p.Detector = DetectorPatterns
	default:
		return fmt.Errorf("invalid detector value: %s (must be %q or %q)", p.Detector, DetectorPatterns, DetectorModel)
	}

	for _, ext := range p.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("invalid extension %q: must start with a dot", ext)
		}
	}

	if p.MaxChangeSize < 0 {
		return fmt.Errorf("max_change_size must not be negative")
	}

	return nil
}

// ParsePolicy parses a policy from YAML content.
func ParsePolicy(content []byte) (*Policy, error) {
	policy := DefaultPolicy()
	if err := yaml.Unmarshal(content, policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}

	return policy, nil
}

// LoadPolicy reads a policy file from disk. A missing file yields the
// default policy; an unreadable or invalid one yields a PolicyParseError.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}

	policy, err := ParsePolicy(content)
	if err != nil {
		return nil, &PolicyParseError{Path: path, Err: err}
	}
	return policy, nil
}

// Config carries process-level configuration from the environment.
type Config struct {
	// Token authenticates as a user or a workflow token.
	Token string
	// AppID/InstallationID/PrivateKeyPath authenticate as a GitHub App
	// installation instead of a token.
	AppID          int64
	InstallationID int64
	PrivateKeyPath string

	// APIBaseURL overrides the GitHub API endpoint (Enterprise setups).
	APIBaseURL string

	// AnthropicAPIKey is required only for the model detector.
	AnthropicAPIKey string

	// DatabaseURL enables run-history storage when set.
	DatabaseURL string
}

// FromEnv loads configuration from environment variables.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Token:           os.Getenv("GITHUB_TOKEN"),
		PrivateKeyPath:  os.Getenv("GITHUB_PRIVATE_KEY_PATH"),
		APIBaseURL:      os.Getenv("GITHUB_API_URL"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
	}

	if v := os.Getenv("GITHUB_APP_ID"); v != "" {
		appID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid GITHUB_APP_ID: %w", err)
		}
		cfg.AppID = appID
	}
	if v := os.Getenv("GITHUB_INSTALLATION_ID"); v != "" {
		installationID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid GITHUB_INSTALLATION_ID: %w", err)
		}
		cfg.InstallationID = installationID
	}

	if cfg.Token == "" && cfg.AppID == 0 {
		return nil, fmt.Errorf("either GITHUB_TOKEN or GITHUB_APP_ID/GITHUB_INSTALLATION_ID/GITHUB_PRIVATE_KEY_PATH is required")
	}
	if cfg.AppID != 0 && (cfg.InstallationID == 0 || cfg.PrivateKeyPath == "") {
		return nil, fmt.Errorf("app auth requires GITHUB_INSTALLATION_ID and GITHUB_PRIVATE_KEY_PATH")
	}

	return cfg, nil
}
