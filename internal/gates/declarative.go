package gates

import (
	"github.com/policyforge/engine/internal/gatekit"
	"github.com/policyforge/engine/internal/policy"
	"github.com/policyforge/engine/internal/registry"
)

func init() {
	registry.Register("goal-declaration", goalDeclaration)
	registry.Register("forbidden-scopes", forbiddenScopes)
}

// goalDeclaration and forbiddenScopes are the two declarative presence
// checks (spec §4.3): each reads a single sequence from the policy document
// and fails if it is empty or absent, forcing the policy author to declare
// intent rather than leave it implicit.

func goalDeclaration(rc *gatekit.RunContext, spec gatekit.Spec) gatekit.Result {
	return presenceCheck(rc, "intent.goals", func(doc *policy.Document) []string {
		return doc.Intent.Goals
	})
}

func forbiddenScopes(rc *gatekit.RunContext, spec gatekit.Spec) gatekit.Result {
	return presenceCheck(rc, "intent.non_goals", func(doc *policy.Document) []string {
		return doc.Intent.NonGoals
	})
}

func presenceCheck(rc *gatekit.RunContext, field string, get func(*policy.Document) []string) gatekit.Result {
	doc, ok := rc.Policy.(*policy.Document)
	if !ok || doc == nil {
		return gatekit.Result{
			Status:        gatekit.StatusNeutral,
			NeutralReason: gatekit.ReasonInternalError,
			Stats:         map[string]any{"error": "no policy document in run context"},
		}
	}

	values := get(doc)
	if len(values) == 0 {
		return gatekit.Result{
			Status: gatekit.StatusFail,
			Violations: []gatekit.Violation{{
				Code:    "missing_declaration",
				Message: field + " must declare at least one entry",
			}},
		}
	}

	return gatekit.Result{
		Status:       gatekit.StatusPass,
		Observations: values,
	}
}
