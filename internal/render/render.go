// Package render is the Report Renderer (spec §4.10, "C8"): a pure
// function from a run result to the check's summary line and markdown
// body. It holds no state and makes no I/O calls, so identical inputs
// always produce byte-identical output (spec §8 testable property #6,
// "Renderer purity").
package render

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/policyforge/engine/internal/gatekit"
	"github.com/policyforge/engine/internal/policy"
	"github.com/policyforge/engine/internal/runrt"
)

const (
	maxViolationsPerGate   = 20
	maxObservationsPerGate = 20
	maxObservationChars    = 1000
	maxCriterionObs        = 10
)

// Output is the rendered check content (spec §4.10).
type Output struct {
	Summary string
	Text    string
}

// opSymbols maps a comparison operator to the symbol the Renderer prints
// (spec §4.10).
var opSymbols = map[string]string{
	"gte": ">=",
	"gt":  ">",
	"lte": "<=",
	"lt":  "<",
	"eq":  "=",
}

// Render produces the check's summary and markdown body from a run result
// and its policy document (spec §4.10). prNumber is carried only to build
// the governance-vote deep link's pr query parameter on failure.
func Render(result runrt.Result, doc *policy.Document, prNumber int) Output {
	summary := summaryLine(result)

	var b strings.Builder
	if result.OverallStatus == gatekit.StatusFail {
		if link, ok := voteLink(doc, prNumber); ok {
			fmt.Fprintf(&b, "[Propose a vote to merge this change](%s)\n\n", link)
		}
	}

	b.WriteString(header(result))
	b.WriteString("\n\n")

	for _, group := range groupByStatus(result.Gates) {
		for _, g := range group {
			renderGateSection(&b, g)
		}
	}

	return Output{Summary: summary, Text: b.String()}
}

func summaryLine(result runrt.Result) string {
	switch result.ConclusionReason {
	case runrt.ReasonNoGatesExecuted:
		return "No gates were configured to run"
	case runrt.ReasonAllGatesPassed:
		return "All gates passed"
	case runrt.ReasonGatesFailed:
		return fmt.Sprintf("%d gate(s) failed", result.ExecutionSummary.Failed)
	case runrt.ReasonGateTimeouts:
		return "One or more gates timed out"
	case runrt.ReasonGatesNeutral:
		return "One or more gates returned neutral"
	default:
		return "Gate evaluation completed"
	}
}

func header(result runrt.Result) string {
	emoji := statusEmoji(result.OverallStatus)
	s := result.ExecutionSummary
	head := fmt.Sprintf("%s ✅ %d passed | ❌ %d failed | ⚠️ %d neutral", emoji, s.Passed, s.Failed, s.Neutral)
	if result.DurationMS > 0 {
		head += fmt.Sprintf(" (%s)", formatDuration(result.DurationMS))
	}
	return head
}

func statusEmoji(status gatekit.Status) string {
	switch status {
	case gatekit.StatusPass:
		return "✅"
	case gatekit.StatusFail:
		return "❌"
	default:
		return "⚠️"
	}
}

func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}

// groupByStatus buckets gate results by status (fail, neutral, pass — in
// that order, since failures are the most actionable), each group sorted
// alphabetically by id (spec §4.10: "sort alphabetically by label").
func groupByStatus(gates []gatekit.Result) [][]gatekit.Result {
	byStatus := map[gatekit.Status][]gatekit.Result{}
	for _, g := range gates {
		byStatus[g.Status] = append(byStatus[g.Status], g)
	}
	order := []gatekit.Status{gatekit.StatusFail, gatekit.StatusNeutral, gatekit.StatusPass}
	groups := make([][]gatekit.Result, 0, len(order))
	for _, status := range order {
		group := byStatus[status]
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		if len(group) > 0 {
			groups = append(groups, group)
		}
	}
	return groups
}

func renderGateSection(b *strings.Builder, g gatekit.Result) {
	fmt.Fprintf(b, "### %s %s\n\n", statusEmoji(g.Status), g.ID)

	if g.Rule != nil {
		renderAIRuleCriteria(b, g)
	}

	renderViolations(b, g.Violations)
	renderObservations(b, g)
	renderStats(b, g.Stats)

	if g.DurationMS > 0 {
		fmt.Fprintf(b, "_%s_\n", formatDuration(g.DurationMS))
	}
	if g.Provenance != nil {
		fmt.Fprintf(b, "_model: %s / workflow %s_\n", g.Provenance.ModelID, g.Provenance.WorkflowID)
	}
	if g.NeutralReason != "" {
		fmt.Fprintf(b, "_neutral reason: %s_\n", g.NeutralReason)
	}
	b.WriteString("\n")
}

func renderAIRuleCriteria(b *strings.Builder, g gatekit.Result) {
	criteria, _ := g.Rule["criteria"].([]map[string]any)
	evaluations, _ := g.Rule["evaluations"].(map[string]string)
	metrics, _ := g.ProviderResult["metrics"].(map[string]any)

	for _, c := range criteria {
		metric, _ := c["metric"].(string)
		op, _ := c["op"].(string)
		threshold, _ := c["threshold"].(float64)

		value := "?"
		var observations []string
		if m, ok := metrics[metric].(map[string]any); ok {
			if v, ok := m["value"].(float64); ok {
				value = strconv.FormatFloat(v, 'g', -1, 64)
			}
			if obs, ok := m["observations"].([]string); ok {
				observations = obs
			}
		}

		symbol := opSymbols[op]
		if symbol == "" {
			symbol = op
		}
		fmt.Fprintf(b, "- **%s:** %s %s %s\n", metric, value, symbol, strconv.FormatFloat(threshold, 'g', -1, 64))

		for i, o := range observations {
			if i >= maxCriterionObs {
				break
			}
			fmt.Fprintf(b, "  - %s\n", o)
		}

		if statement, ok := evaluations[metric]; ok && statement != "" {
			fmt.Fprintf(b, "  - _%s_\n", statement)
		}
	}
	if len(criteria) > 0 {
		b.WriteString("\n")
	}
}

func renderViolations(b *strings.Builder, violations []gatekit.Violation) {
	if len(violations) == 0 {
		return
	}
	shown := violations
	truncated := false
	if len(shown) > maxViolationsPerGate {
		shown = shown[:maxViolationsPerGate]
		truncated = true
	}
	for _, v := range shown {
		fmt.Fprintf(b, "- %s — %s\n", v.Code, v.Message)
		if v.Path != nil {
			line := ""
			if v.Line != nil {
				line = fmt.Sprintf(":%d", *v.Line)
			}
			fmt.Fprintf(b, "  - path: %s%s\n", *v.Path, line)
		}
		for k, val := range v.Meta {
			fmt.Fprintf(b, "  - %s: %v\n", k, val)
		}
	}
	if truncated {
		fmt.Fprintf(b, "_...%d more violations omitted_\n", len(violations)-maxViolationsPerGate)
	}
	b.WriteString("\n")
}

func renderObservations(b *strings.Builder, g gatekit.Result) {
	if g.Rule != nil || len(g.Observations) == 0 {
		return
	}
	shown := g.Observations
	truncated := false
	if len(shown) > maxObservationsPerGate {
		shown = shown[:maxObservationsPerGate]
		truncated = true
	}
	for _, o := range shown {
		if len(o) > maxObservationChars {
			o = o[:maxObservationChars] + "...[truncated]"
		}
		fmt.Fprintf(b, "- %s\n", o)
	}
	if truncated {
		fmt.Fprintf(b, "_...%d more observations omitted_\n", len(g.Observations)-maxObservationsPerGate)
	}
	b.WriteString("\n")
}

// internalStatKeys are excluded from the rendered stats block (spec §4.10:
// "scalar stats excluding internal keys").
var internalStatKeys = map[string]bool{"error": true}

func renderStats(b *strings.Builder, stats map[string]any) {
	if len(stats) == 0 {
		return
	}
	keys := make([]string, 0, len(stats))
	for k := range stats {
		if !internalStatKeys[k] {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "- **%s:** %v\n", k, stats[k])
	}
	b.WriteString("\n")
}

// voteLink builds the governance-vote deep link on overall failure, when
// the policy's DAO block is fully configured (spec §4.10). It is omitted
// silently otherwise.
func voteLink(doc *policy.Document, prNumber int) (string, bool) {
	if doc == nil || !doc.CogniDAO.Complete() {
		return "", false
	}
	d := doc.CogniDAO
	q := url.Values{}
	q.Set("dao", d.DAO)
	q.Set("plugin", d.Plugin)
	q.Set("signal", d.Signal)
	q.Set("chainId", d.ChainID)
	q.Set("repoUrl", d.RepoURL)
	q.Set("pr", strconv.Itoa(prNumber))
	q.Set("action", "merge")
	q.Set("target", "change")
	return "/merge-change?" + q.Encode(), true
}
