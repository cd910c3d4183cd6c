package render

import (
	"strings"
	"testing"

	"github.com/policyforge/engine/internal/gatekit"
	"github.com/policyforge/engine/internal/policy"
	"github.com/policyforge/engine/internal/runrt"
)

func TestRenderAllPassedSummary(t *testing.T) {
	result := runrt.Result{
		OverallStatus:    gatekit.StatusPass,
		ConclusionReason: runrt.ReasonAllGatesPassed,
		Gates: []gatekit.Result{
			{ID: "b-gate", Status: gatekit.StatusPass},
			{ID: "a-gate", Status: gatekit.StatusPass},
		},
		ExecutionSummary: runrt.ExecutionSummary{Total: 2, Passed: 2},
	}
	out := Render(result, &policy.Document{}, 42)
	if out.Summary != "All gates passed" {
		t.Errorf("Summary = %q", out.Summary)
	}
	if !strings.Contains(out.Text, "✅ 2 passed | ❌ 0 failed | ⚠️ 0 neutral") {
		t.Errorf("Text missing counts: %q", out.Text)
	}
	// gates within a group are sorted alphabetically by id
	if strings.Index(out.Text, "a-gate") > strings.Index(out.Text, "b-gate") {
		t.Errorf("expected a-gate before b-gate: %q", out.Text)
	}
}

func TestRenderPurity(t *testing.T) {
	result := runrt.Result{
		OverallStatus:    gatekit.StatusFail,
		ConclusionReason: runrt.ReasonGatesFailed,
		Gates: []gatekit.Result{
			{ID: "review-limits", Status: gatekit.StatusFail, Violations: []gatekit.Violation{
				{Code: "max_changed_files", Message: "max_changed_files: 45 > 30"},
			}},
		},
		ExecutionSummary: runrt.ExecutionSummary{Total: 1, Failed: 1},
	}
	doc := &policy.Document{}
	out1 := Render(result, doc, 7)
	out2 := Render(result, doc, 7)
	if out1 != out2 {
		t.Errorf("Render is not pure: %+v != %+v", out1, out2)
	}
}

func TestRenderVoteLinkOnlyOnFailureWithCompleteDAO(t *testing.T) {
	doc := &policy.Document{CogniDAO: &policy.DAOBlock{
		DAO: "mydao", Plugin: "p", Signal: "s", ChainID: "1", RepoURL: "https://github.com/acme/widgets",
	}}
	failResult := runrt.Result{OverallStatus: gatekit.StatusFail, ConclusionReason: runrt.ReasonGatesFailed}
	out := Render(failResult, doc, 99)
	if !strings.Contains(out.Text, "/merge-change?") {
		t.Errorf("expected vote link in failing output: %q", out.Text)
	}
	if !strings.Contains(out.Text, "pr=99") {
		t.Errorf("expected pr query param: %q", out.Text)
	}

	passResult := runrt.Result{OverallStatus: gatekit.StatusPass, ConclusionReason: runrt.ReasonAllGatesPassed}
	out = Render(passResult, doc, 99)
	if strings.Contains(out.Text, "/merge-change?") {
		t.Errorf("did not expect vote link on pass: %q", out.Text)
	}
}

func TestRenderVoteLinkOmittedWhenDAOPartial(t *testing.T) {
	doc := &policy.Document{CogniDAO: &policy.DAOBlock{DAO: "mydao"}}
	failResult := runrt.Result{OverallStatus: gatekit.StatusFail, ConclusionReason: runrt.ReasonGatesFailed}
	out := Render(failResult, doc, 1)
	if strings.Contains(out.Text, "/merge-change?") {
		t.Errorf("expected no vote link with partial DAO block: %q", out.Text)
	}
}

func TestRenderAIRuleCriterion(t *testing.T) {
	result := runrt.Result{
		OverallStatus:    gatekit.StatusFail,
		ConclusionReason: runrt.ReasonGatesFailed,
		Gates: []gatekit.Result{{
			ID:     "dont-rebuild-oss",
			Status: gatekit.StatusFail,
			Rule: map[string]any{
				"evaluations": map[string]string{"score": "checks for reinventing an existing library"},
				"criteria":    []map[string]any{{"group": "require", "metric": "score", "op": "gte", "threshold": 0.8}},
			},
			ProviderResult: map[string]any{
				"metrics": map[string]any{
					"score": map[string]any{"value": 0.75, "observations": []string{"found duplicate of left-pad"}},
				},
			},
		}},
	}
	out := Render(result, &policy.Document{}, 1)
	if !strings.Contains(out.Text, "**score:** 0.75 >= 0.8") {
		t.Errorf("missing criterion line: %q", out.Text)
	}
	if !strings.Contains(out.Text, "found duplicate of left-pad") {
		t.Errorf("missing metric observation: %q", out.Text)
	}
	if !strings.Contains(out.Text, "checks for reinventing an existing library") {
		t.Errorf("missing evaluation statement: %q", out.Text)
	}
}
