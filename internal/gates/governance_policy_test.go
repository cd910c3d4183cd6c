package gates

import (
	"context"
	"testing"

	"github.com/policyforge/engine/internal/config"
	"github.com/policyforge/engine/internal/gatekit"
	"github.com/policyforge/engine/internal/hosting"
)

type fileForge struct {
	files map[string][]byte
}

func (f fileForge) GetContentAtRef(ctx context.Context, path, ref string) ([]byte, error) {
	content, ok := f.files[path]
	if !ok {
		return nil, hosting.ErrNotFound
	}
	return content, nil
}

func (f fileForge) ListChangedFiles(ctx context.Context, prNumber int) ([]gatekit.ChangedFile, error) {
	return nil, nil
}

func (f fileForge) ListArtifacts(ctx context.Context, headSHA, ciRunID string) ([]gatekit.Artifact, error) {
	return nil, nil
}

func (f fileForge) DownloadArtifact(ctx context.Context, artifact gatekit.Artifact) ([]byte, error) {
	return nil, nil
}

func governanceConfig(requiredContexts []string, workflowPaths map[string]string) config.GovernanceConfig {
	return config.GovernanceConfig{
		RequiredContexts: requiredContexts,
		WorkflowPathMap:  workflowPaths,
	}
}

func TestGovernancePolicyNeutralWhenNoContextsRequired(t *testing.T) {
	rc := &gatekit.RunContext{
		Context:    context.Background(),
		Governance: governanceConfig([]string{"ci"}, map[string]string{}),
	}
	rc.Governance.SelfCheckName = "ci"

	result := governancePolicy(rc, gatekit.Spec{})
	if result.Status != gatekit.StatusNeutral || result.NeutralReason != gatekit.ReasonNoContextsRequired {
		t.Fatalf("got status=%v reason=%v, want neutral/no_contexts_required", result.Status, result.NeutralReason)
	}
}

func TestGovernancePolicyPassesWhenWorkflowNameMatches(t *testing.T) {
	rc := &gatekit.RunContext{
		Context: context.Background(),
		PR:      gatekit.PR{HeadSHA: "abc123"},
		Forge: fileForge{files: map[string][]byte{
			".github/workflows/ci.yml": []byte("name: ci\n"),
		}},
		Governance: governanceConfig([]string{"ci"}, map[string]string{"ci": ".github/workflows/ci.yml"}),
	}

	result := governancePolicy(rc, gatekit.Spec{})
	if result.Status != gatekit.StatusPass {
		t.Fatalf("Status = %v, want pass, violations=%+v", result.Status, result.Violations)
	}
}

func TestGovernancePolicyFailsOnUnmappedContext(t *testing.T) {
	rc := &gatekit.RunContext{
		Context:    context.Background(),
		Forge:      fileForge{files: map[string][]byte{}},
		Governance: governanceConfig([]string{"ci"}, map[string]string{}),
	}

	result := governancePolicy(rc, gatekit.Spec{})
	if result.Status != gatekit.StatusFail || len(result.Violations) != 1 || result.Violations[0].Code != "unknown_context" {
		t.Fatalf("got status=%v violations=%+v, want fail/unknown_context", result.Status, result.Violations)
	}
}

func TestGovernancePolicyFailsWhenWorkflowMissing(t *testing.T) {
	rc := &gatekit.RunContext{
		Context:    context.Background(),
		Forge:      fileForge{files: map[string][]byte{}},
		Governance: governanceConfig([]string{"ci"}, map[string]string{"ci": ".github/workflows/ci.yml"}),
	}

	result := governancePolicy(rc, gatekit.Spec{})
	if result.Status != gatekit.StatusFail || result.Violations[0].Code != "workflow_missing" {
		t.Fatalf("got status=%v violations=%+v, want fail/workflow_missing", result.Status, result.Violations)
	}
}

func TestGovernancePolicyFailsOnNameMismatch(t *testing.T) {
	rc := &gatekit.RunContext{
		Context: context.Background(),
		Forge: fileForge{files: map[string][]byte{
			".github/workflows/ci.yml": []byte("name: not-ci\n"),
		}},
		Governance: governanceConfig([]string{"ci"}, map[string]string{"ci": ".github/workflows/ci.yml"}),
	}

	result := governancePolicy(rc, gatekit.Spec{})
	if result.Status != gatekit.StatusFail || result.Violations[0].Code != "workflow_name_mismatch" {
		t.Fatalf("got status=%v violations=%+v, want fail/workflow_name_mismatch", result.Status, result.Violations)
	}
}
