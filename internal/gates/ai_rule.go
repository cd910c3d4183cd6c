package gates

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/policyforge/engine/internal/gatekit"
	"github.com/policyforge/engine/internal/llmutil"
	"github.com/policyforge/engine/internal/matrix"
	"github.com/policyforge/engine/internal/policy"
	"github.com/policyforge/engine/internal/registry"
)

func init() {
	registry.Register("ai-rule", aiRule)
}

// defaultBudgets is used when a rule document sets no x_budgets (spec §3:
// budgets are optional), chosen to keep a single prompt well within a
// typical model's context window.
var defaultBudgets = policy.Budgets{
	MaxFiles:             50,
	MaxPatches:           10,
	MaxPatchBytesPerFile: 4000,
}

// providerResultSchema is the fixed JSON Schema every ai-rule invocation
// forces the model's reply against (spec §4.3 step 3): a metrics object
// keyed by metric id, a summary string, and a provenance object.
const providerResultSchema = `{
  "type": "object",
  "properties": {
    "metrics": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "value": {"type": "number"},
          "observations": {"type": "array", "items": {"type": "string"}}
        },
        "required": ["value"]
      }
    },
    "summary": {"type": "string"},
    "provenance": {"type": "object"}
  },
  "required": ["metrics", "summary"]
}`

// providerMetric is one entry of a providerResult's metrics map.
type providerMetric struct {
	Value        float64  `json:"value"`
	Observations []string `json:"observations,omitempty"`
}

// providerResult is the schema-validated shape of an AI workflow's reply
// (spec §4.3 step 3).
type providerResult struct {
	Metrics    map[string]providerMetric `json:"metrics"`
	Summary    string                    `json:"summary"`
	Provenance map[string]any            `json:"provenance,omitempty"`
}

// aiRule implements the ai-rule gate (spec §4.3): it loads and validates a
// rule document, dispatches the rule's workflow to the configured AI
// workflow client, validates the reply against the provider-result schema,
// and feeds the resulting metrics to the success-criteria matrix.
func aiRule(rc *gatekit.RunContext, spec gatekit.Spec) gatekit.Result {
	ruleFile, _ := spec.With["rule_file"].(string)
	if ruleFile == "" {
		return gatekit.Result{
			Status:        gatekit.StatusNeutral,
			NeutralReason: gatekit.ReasonInternalError,
			Stats:         map[string]any{"error": "with.rule_file is required"},
		}
	}

	if rc.Loader == nil {
		return gatekit.Result{
			Status:        gatekit.StatusNeutral,
			NeutralReason: gatekit.ReasonInternalError,
			Stats:         map[string]any{"error": "no rule-document loader configured"},
		}
	}

	rule, err := rc.Loader.LoadRule(rc.Context, rc.RepoFullName, rc.PR.HeadSHA, ruleFile)
	if err != nil {
		return gatekit.Result{
			Status:        gatekit.StatusNeutral,
			NeutralReason: gatekit.ReasonRuleSchemaInvalid,
			Violations: []gatekit.Violation{{
				Code:    "rule_load_failed",
				Message: fmt.Sprintf("could not load rule document %s: %v", ruleFile, err),
			}},
		}
	}

	client, ok := rc.AIWorkflows[rule.WorkflowID]
	if !ok {
		return gatekit.Result{
			Status:        gatekit.StatusNeutral,
			NeutralReason: gatekit.ReasonInternalError,
			Stats:         map[string]any{"error": fmt.Sprintf("no AI workflow registered for %q", rule.WorkflowID)},
		}
	}

	budgets := defaultBudgets
	if rule.XBudgets != nil {
		budgets = *rule.XBudgets
	}

	prompt, err := buildPrompt(rc, rule, budgets)
	if err != nil {
		return gatekit.Result{
			Status:        gatekit.StatusNeutral,
			NeutralReason: gatekit.ReasonInternalError,
			Stats:         map[string]any{"error": err.Error()},
		}
	}

	start := time.Now()
	result, err := llmutil.ExecuteWithSchema[providerResult](rc.Context, client, prompt, providerResultSchema)
	wallTime := time.Since(start)
	if err != nil {
		return gatekit.Result{
			Status:        gatekit.StatusNeutral,
			NeutralReason: gatekit.ReasonProviderResultBad,
			Violations: []gatekit.Violation{{
				Code:    "provider_result_invalid",
				Message: err.Error(),
			}},
		}
	}

	metrics := make(map[string]float64, len(result.Data.Metrics))
	for id, m := range result.Data.Metrics {
		metrics[id] = m.Value
	}

	evaluation, err := matrix.Evaluate(rule.SuccessCriteria, metrics)
	if err != nil {
		return gatekit.Result{
			Status:        gatekit.StatusNeutral,
			NeutralReason: gatekit.ReasonRuleSchemaInvalid,
			Violations: []gatekit.Violation{{Code: "rule_schema_invalid", Message: err.Error()}},
		}
	}

	status, violations, observations := matrixToGateOutcome(evaluation, rule, result.Data)

	return gatekit.Result{
		Status:        status,
		NeutralReason: neutralReasonFor(evaluation),
		Violations:    violations,
		Observations:  observations,
		Provenance: &gatekit.Provenance{
			ModelID:    result.Response.ModelID,
			RunID:      result.Response.RunID,
			WallTime:   wallTime,
			WorkflowID: rule.WorkflowID,
		},
		ProviderResult: providerResultToMap(result.Data),
		Rule:           ruleToMap(rule),
	}
}

func neutralReasonFor(e matrix.Evaluation) gatekit.NeutralReason {
	if e.Outcome == matrix.OutcomeNeutral {
		return gatekit.ReasonMissingMetrics
	}
	return ""
}

func matrixToGateOutcome(e matrix.Evaluation, rule *policy.RuleDocument, pr providerResult) (gatekit.Status, []gatekit.Violation, []string) {
	var violations []gatekit.Violation
	switch e.Outcome {
	case matrix.OutcomeFail:
		for _, c := range e.FailedRequire {
			violations = append(violations, gatekit.Violation{
				Code:    "success_criteria_require",
				Message: matrix.Describe(c, pr.Metrics[c.Metric].Value),
			})
		}
		for _, c := range e.FailedAnyOf {
			violations = append(violations, gatekit.Violation{
				Code:    "success_criteria_any_of",
				Message: matrix.Describe(c, pr.Metrics[c.Metric].Value),
			})
		}
	case matrix.OutcomeNeutral:
		violations = append(violations, gatekit.Violation{
			Code:    "missing_metric",
			Message: fmt.Sprintf("metric %q referenced by success_criteria is missing from the provider result", e.MissingMetric),
		})
	}

	var observations []string
	for _, id := range referencedMetrics(rule.SuccessCriteria) {
		if m, ok := pr.Metrics[id]; ok {
			for _, o := range m.Observations {
				observations = append(observations, fmt.Sprintf("%s: %s", id, o))
			}
		}
	}

	status := gatekit.StatusPass
	switch e.Outcome {
	case matrix.OutcomeFail:
		status = gatekit.StatusFail
	case matrix.OutcomeNeutral:
		status = gatekit.StatusNeutral
	}
	return status, violations, observations
}

func referencedMetrics(sc policy.SuccessCriteria) []string {
	var ids []string
	seen := map[string]bool{}
	for _, c := range append(append([]policy.Comparison{}, sc.Require...), sc.AnyOf...) {
		if !seen[c.Metric] {
			seen[c.Metric] = true
			ids = append(ids, c.Metric)
		}
	}
	return ids
}

// providerResultToMap flattens a providerResult into the free-form map
// shape gatekit.Result.ProviderResult carries, for the Renderer to walk.
func providerResultToMap(pr providerResult) map[string]any {
	metrics := make(map[string]any, len(pr.Metrics))
	for id, m := range pr.Metrics {
		metrics[id] = map[string]any{
			"value":        m.Value,
			"observations": m.Observations,
		}
	}
	return map[string]any{
		"metrics":    metrics,
		"summary":    pr.Summary,
		"provenance": pr.Provenance,
	}
}

// ruleToMap flattens the parts of a rule document the Renderer needs into
// the free-form map shape gatekit.Result.Rule carries.
func ruleToMap(rule *policy.RuleDocument) map[string]any {
	criteria := make([]map[string]any, 0, len(rule.SuccessCriteria.Require)+len(rule.SuccessCriteria.AnyOf))
	for _, c := range rule.SuccessCriteria.Require {
		criteria = append(criteria, map[string]any{"group": "require", "metric": c.Metric, "op": c.Op, "threshold": c.Threshold})
	}
	for _, c := range rule.SuccessCriteria.AnyOf {
		criteria = append(criteria, map[string]any{"group": "any_of", "metric": c.Metric, "op": c.Op, "threshold": c.Threshold})
	}
	return map[string]any{
		"id":          rule.ID,
		"evaluations": rule.Evaluations,
		"criteria":    criteria,
	}
}

// buildPrompt assembles the model prompt: PR title/body, the rule's
// evaluations map, and, per x_capabilities, a diff summary and/or bounded
// file patches (spec §4.3 "Capability handling").
func buildPrompt(rc *gatekit.RunContext, rule *policy.RuleDocument, budgets policy.Budgets) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "## Pull Request\n\n**Title:** %s\n\n**Body:**\n%s\n\n", rc.PR.Title, rc.PR.Body)

	if len(rule.Evaluations) > 0 {
		b.WriteString("## Evaluations\n\n")
		ids := make([]string, 0, len(rule.Evaluations))
		for id := range rule.Evaluations {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(&b, "- **%s:** %s\n", id, rule.Evaluations[id])
		}
		b.WriteString("\n")
	}

	hasDiffSummary := hasCapability(rule.XCapabilities, "diff_summary")
	hasFilePatches := hasCapability(rule.XCapabilities, "file_patches")
	if !hasDiffSummary && !hasFilePatches {
		return b.String(), nil
	}

	files := rc.PR.ChangedFiles
	if !rc.PR.HasFileList {
		fetched, err := rc.Forge.ListChangedFiles(rc.Context, rc.PR.Number)
		if err != nil {
			return "", fmt.Errorf("list changed files: %w", err)
		}
		files = fetched
	}

	sorted := make([]gatekit.ChangedFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool {
		churnI := sorted[i].Additions + sorted[i].Deletions
		churnJ := sorted[j].Additions + sorted[j].Deletions
		if churnI != churnJ {
			return churnI > churnJ
		}
		return sorted[i].Path < sorted[j].Path
	})

	if hasDiffSummary {
		maxFiles := budgets.MaxFiles
		if maxFiles <= 0 || maxFiles > len(sorted) {
			maxFiles = len(sorted)
		}
		totalAdd, totalDel := 0, 0
		for _, f := range sorted {
			totalAdd += f.Additions
			totalDel += f.Deletions
		}
		fmt.Fprintf(&b, "## Diff Summary\n\n%d files changed, +%d/−%d total\n", len(sorted), totalAdd, totalDel)
		for _, f := range sorted[:maxFiles] {
			fmt.Fprintf(&b, "• %s (%s) +%d/−%d\n", f.Path, f.Status, f.Additions, f.Deletions)
		}
		b.WriteString("\n")
	}

	if hasFilePatches {
		maxPatches := budgets.MaxPatches
		if maxPatches <= 0 || maxPatches > len(sorted) {
			maxPatches = len(sorted)
		}
		maxBytes := budgets.MaxPatchBytesPerFile
		b.WriteString("## File Patches\n\n")
		for _, f := range sorted[:maxPatches] {
			if f.Patch == "" {
				continue
			}
			patch := f.Patch
			truncated := maxBytes > 0 && len(patch) > maxBytes
			if truncated {
				patch = patch[:maxBytes] + "\n...[truncated at " + strconv.Itoa(maxBytes) + " bytes]"
			}
			fmt.Fprintf(&b, "### %s\n```diff\n%s\n```\n\n", path.Clean(f.Path), patch)
		}
	}

	return b.String(), nil
}

func hasCapability(caps []string, name string) bool {
	for _, c := range caps {
		if c == name {
			return true
		}
	}
	return false
}
