package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() should validate: %v", err)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/to/config.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CheckName != "policy-gate" {
		t.Errorf("CheckName = %q, want default", cfg.CheckName)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("check_name: custom-check\npolicy_root: gate-policy\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cfg, err := Load(f.Name())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CheckName != "custom-check" {
		t.Errorf("CheckName = %q, want custom-check", cfg.CheckName)
	}
	if cfg.PolicyRoot != "gate-policy" {
		t.Errorf("PolicyRoot = %q, want gate-policy", cfg.PolicyRoot)
	}
}

func TestApplyEnvVarsOverridesDefaults(t *testing.T) {
	t.Setenv("POLICYENGINE_CHECK_NAME", "env-check")
	t.Setenv("POLICYENGINE_ELEVATE_NEUTRAL_TO_FAIL", "true")
	t.Setenv("POLICYENGINE_OUTSTANDING_CHECK_TTL", "90m")

	cfg := Default()
	applied, err := ApplyEnvVars(cfg)
	if err != nil {
		t.Fatalf("ApplyEnvVars() error = %v", err)
	}
	if len(applied) != 3 {
		t.Errorf("applied = %v, want 3 entries", applied)
	}
	if cfg.CheckName != "env-check" {
		t.Errorf("CheckName = %q, want env-check", cfg.CheckName)
	}
	if !cfg.ElevateNeutralToFail {
		t.Error("ElevateNeutralToFail = false, want true")
	}
	if cfg.OutstandingCheckTTL != 90*time.Minute {
		t.Errorf("OutstandingCheckTTL = %v, want 90m", cfg.OutstandingCheckTTL)
	}
}

func TestApplyEnvVarsRejectsInvalidBool(t *testing.T) {
	t.Setenv("POLICYENGINE_ELEVATE_NEUTRAL_TO_FAIL", "not-a-bool")
	if _, err := ApplyEnvVars(Default()); err == nil {
		t.Error("expected error for invalid bool env var")
	}
}

func TestValidateRejectsEmptyCheckName(t *testing.T) {
	cfg := Default()
	cfg.CheckName = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty check_name")
	}
}

func TestValidateRejectsNonPositiveTTL(t *testing.T) {
	cfg := Default()
	cfg.OutstandingCheckTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-positive outstanding_check_ttl")
	}
}
