// Package config provides the process-wide ambient configuration for the
// policy engine: the forge and AI-provider wiring, the check name per
// deployment environment, the outstanding-check TTL, and the
// elevate-neutral-to-fail flag (spec §6, "Environment"). Structure and the
// env-var override idiom are grounded on the teacher's internal/config
// (config.go struct tags, envvars.go's table-driven ApplyEnvVars), trimmed
// to what this domain needs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine's process-wide configuration, loaded once at
// startup from a YAML file and then overridden by environment variables.
type Config struct {
	// CheckName is the name the engine publishes its check run under. It is
	// configured per deployment environment (spec §6) so a staging install
	// and a production install of the same app don't collide on one repo.
	CheckName string `yaml:"check_name"`

	// PolicyRoot names the policy-root directory (spec §6: policy document
	// lives at /.<policy-root>/repo-spec.yaml, rules under
	// /.<policy-root>/rules/).
	PolicyRoot string `yaml:"policy_root"`

	// ElevateNeutralToFail is loaded from YAML and from
	// POLICYENGINE_ELEVATE_NEUTRAL_TO_FAIL, but no component of the engine
	// reads it: the orchestrator (internal/runrt) elevates a neutral verdict
	// to fail only from the policy document's fail_on_error.
	ElevateNeutralToFail bool `yaml:"elevate_neutral_to_fail"`

	// OutstandingCheckTTL bounds how long a phase-1 check id is kept in the
	// outstanding-check map before the reaper evicts it as stale (spec §3,
	// §9: "TTL ≈ 1 hour covers the worst-case CI lag in practice").
	OutstandingCheckTTL time.Duration `yaml:"outstanding_check_ttl"`

	// MaxAnnotations bounds inline annotations per check update (spec §4.9,
	// default 50).
	MaxAnnotations int `yaml:"max_annotations"`

	Forge      ForgeConfig      `yaml:"forge"`
	AI         AIConfig         `yaml:"ai"`
	Governance GovernanceConfig `yaml:"governance"`
}

// ForgeConfig is the per-installation forge wiring (spec §6's forge
// client capability, instantiated via internal/hosting).
type ForgeConfig struct {
	Provider    string `yaml:"provider"`
	Owner       string `yaml:"-"`
	Repo        string `yaml:"-"`
	BaseURL     string `yaml:"base_url"`
	TokenEnvVar string `yaml:"token_env_var"`
}

// AIConfig is the AI workflow dispatcher wiring (spec §6's "AI workflow
// dispatcher instance").
type AIConfig struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	APIKeyEnvVar string `yaml:"api_key_env_var"`
}

// GovernanceConfig is the engine-level wiring for the governance-policy gate
// (spec §6, SPEC_FULL.md "DOMAIN STACK — supplemented features"): which
// status contexts are required, which workflow file is supposed to produce
// each one, and which context is the engine's own check (excluded from the
// cross-check to avoid a self-dependency). It is set once per deployment
// rather than duplicated into every repo's policy document.
type GovernanceConfig struct {
	RequiredContexts []string          `yaml:"required_contexts"`
	WorkflowPathMap  map[string]string `yaml:"workflow_path_map"`
	SelfCheckName    string            `yaml:"self_check_name"`
}

// Default returns the engine's default configuration.
func Default() *Config {
	return &Config{
		CheckName:            "policy-gate",
		PolicyRoot:           "policy",
		ElevateNeutralToFail: false,
		OutstandingCheckTTL:  time.Hour,
		MaxAnnotations:       50,
		Forge: ForgeConfig{
			TokenEnvVar: "FORGE_TOKEN",
		},
		AI: AIConfig{
			Provider:     "anthropic",
			Model:        "claude-opus-4",
			APIKeyEnvVar: "ANTHROPIC_API_KEY",
		},
		Governance: GovernanceConfig{
			SelfCheckName: "policy-gate",
		},
	}
}

// envVarMapping is the table of environment variables the engine reads,
// mirroring the teacher's EnvVarMapping idiom (internal/config/envvars.go)
// but scoped to this engine's own, much smaller surface.
var envVarMapping = map[string]func(*Config, string) error{
	"POLICYENGINE_CHECK_NAME":  func(c *Config, v string) error { c.CheckName = v; return nil },
	"POLICYENGINE_POLICY_ROOT": func(c *Config, v string) error { c.PolicyRoot = v; return nil },
	"POLICYENGINE_ELEVATE_NEUTRAL_TO_FAIL": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("POLICYENGINE_ELEVATE_NEUTRAL_TO_FAIL: %w", err)
		}
		c.ElevateNeutralToFail = b
		return nil
	},
	"POLICYENGINE_OUTSTANDING_CHECK_TTL": func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("POLICYENGINE_OUTSTANDING_CHECK_TTL: %w", err)
		}
		c.OutstandingCheckTTL = d
		return nil
	},
	"POLICYENGINE_MAX_ANNOTATIONS": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("POLICYENGINE_MAX_ANNOTATIONS: %w", err)
		}
		c.MaxAnnotations = n
		return nil
	},
	"POLICYENGINE_FORGE_PROVIDER": func(c *Config, v string) error { c.Forge.Provider = v; return nil },
	"POLICYENGINE_FORGE_BASE_URL": func(c *Config, v string) error { c.Forge.BaseURL = v; return nil },
	"POLICYENGINE_AI_PROVIDER":    func(c *Config, v string) error { c.AI.Provider = v; return nil },
	"POLICYENGINE_AI_MODEL":       func(c *Config, v string) error { c.AI.Model = v; return nil },
	"POLICYENGINE_GOVERNANCE_SELF_CHECK_NAME": func(c *Config, v string) error {
		c.Governance.SelfCheckName = v
		return nil
	},
}

// ApplyEnvVars overrides cfg's fields from whichever env vars in
// envVarMapping are set, returning the list of env var names that were
// applied.
func ApplyEnvVars(cfg *Config) ([]string, error) {
	var applied []string
	for envVar, apply := range envVarMapping {
		v, ok := os.LookupEnv(envVar)
		if !ok || v == "" {
			continue
		}
		if err := apply(cfg, v); err != nil {
			return applied, err
		}
		applied = append(applied, envVar)
	}
	return applied, nil
}

// Load reads a YAML config file, falling back to defaults for anything it
// doesn't set, then applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %q: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	if _, err := ApplyEnvVars(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate enforces the invariants the rest of the engine assumes hold.
func (c *Config) Validate() error {
	if c.CheckName == "" {
		return fmt.Errorf("check_name must not be empty")
	}
	if c.PolicyRoot == "" {
		return fmt.Errorf("policy_root must not be empty")
	}
	if c.MaxAnnotations < 0 {
		return fmt.Errorf("max_annotations must not be negative")
	}
	if c.OutstandingCheckTTL <= 0 {
		return fmt.Errorf("outstanding_check_ttl must be positive")
	}
	return nil
}
