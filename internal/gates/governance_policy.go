package gates

import (
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/policyforge/engine/internal/gatekit"
	"github.com/policyforge/engine/internal/hosting"
	"github.com/policyforge/engine/internal/registry"
)

func init() {
	registry.Register("governance-policy", governancePolicy)
}

// workflowNameFile is the subset of a CI workflow file's YAML this gate
// cares about: its own declared name.
type workflowNameFile struct {
	Name string `yaml:"name"`
}

// governancePolicy cross-checks every externally-required status context
// against the workflow file that is supposed to produce it (spec §4.3): for
// each required context (minus the engine's own check, to avoid a
// self-dependency), it fetches the mapped workflow file and confirms its
// declared name matches the context name. The required-context list,
// workflow-path mapping, and self-check name are engine-level config (spec
// §6, SPEC_FULL.md "DOMAIN STACK — supplemented features"), not per-gate
// `with` arguments, so one deployment's wiring covers every repo's policy
// document instead of being copy-pasted into each one.
func governancePolicy(rc *gatekit.RunContext, spec gatekit.Spec) gatekit.Result {
	requiredContexts := rc.Governance.RequiredContexts
	workflowPaths := rc.Governance.WorkflowPathMap
	selfCheckName := rc.Governance.SelfCheckName

	var contexts []string
	for _, c := range requiredContexts {
		if c != selfCheckName {
			contexts = append(contexts, c)
		}
	}
	if len(contexts) == 0 {
		return gatekit.Result{
			Status:        gatekit.StatusNeutral,
			NeutralReason: gatekit.ReasonNoContextsRequired,
		}
	}

	sort.Strings(contexts)

	var violations []gatekit.Violation
	var observations []string
	for _, context := range contexts {
		path, mapped := workflowPaths[context]
		if !mapped || path == "" {
			violations = append(violations, gatekit.Violation{
				Code:    "unknown_context",
				Message: fmt.Sprintf("%s: no workflow file mapped for this required context", context),
			})
			continue
		}

		content, err := rc.Forge.GetContentAtRef(rc.Context, path, rc.PR.HeadSHA)
		if err != nil {
			if errors.Is(err, hosting.ErrNotFound) {
				violations = append(violations, gatekit.Violation{
					Code:    "workflow_missing",
					Message: fmt.Sprintf("%s: workflow file %s not found at head commit", context, path),
				})
			} else {
				violations = append(violations, gatekit.Violation{
					Code:    "workflow_check_error",
					Message: fmt.Sprintf("%s: failed to fetch %s: %v", context, path, err),
				})
			}
			continue
		}

		var wf workflowNameFile
		if yaml.Unmarshal(content, &wf) != nil || wf.Name != context {
			violations = append(violations, gatekit.Violation{
				Code:    "workflow_name_mismatch",
				Message: fmt.Sprintf("%s: workflow at %s declares name %q", context, path, wf.Name),
			})
			continue
		}

		observations = append(observations, fmt.Sprintf("%s resolved to %s", context, path))
	}

	status := gatekit.StatusPass
	if len(violations) > 0 {
		status = gatekit.StatusFail
	}

	return gatekit.Result{
		Status:       status,
		Violations:   violations,
		Observations: observations,
	}
}
