// Package gates is the collection of built-in gate handlers (spec §4.3, "C3
// Built-in Gates"). Every file in this package registers one or two gate
// types with internal/registry from an init() function, mirroring the
// teacher's init()-based provider registration (internal/hosting/github,
// internal/hosting/gitlab).
package gates

import (
	"fmt"
	"math"

	"github.com/policyforge/engine/internal/gatekit"
	"github.com/policyforge/engine/internal/registry"
)

func init() {
	registry.Register("review-limits", reviewLimits)
}

// reviewLimits implements the diff-size limits gate (spec §4.3): it reads
// with.max_changed_files and with.max_total_diff_kb, comparing them against
// the PR's changed-file count and a constant-factor diff-size heuristic.
func reviewLimits(rc *gatekit.RunContext, spec gatekit.Spec) gatekit.Result {
	maxFiles, hasMaxFiles := intArg(spec.With, "max_changed_files")
	maxKB, hasMaxKB := intArg(spec.With, "max_total_diff_kb")

	if !hasMaxFiles && !hasMaxKB {
		return gatekit.Result{
			Status:        gatekit.StatusNeutral,
			NeutralReason: gatekit.ReasonOversizeDiff,
			Stats:         map[string]any{"error": "neither max_changed_files nor max_total_diff_kb is configured"},
		}
	}

	changedFiles := rc.PR.ChangedFiles
	if !rc.PR.HasFileList {
		files, err := rc.Forge.ListChangedFiles(rc.Context, rc.PR.Number)
		if err != nil {
			return gatekit.Result{
				Status:        gatekit.StatusNeutral,
				NeutralReason: gatekit.ReasonInternalError,
				Stats:         map[string]any{"error": err.Error()},
			}
		}
		changedFiles = files
	}

	numFiles := len(changedFiles)
	totalDiffKB := int(math.Ceil(float64(rc.PR.Additions+rc.PR.Deletions) / 3))

	var violations []gatekit.Violation
	if hasMaxFiles && numFiles > maxFiles {
		violations = append(violations, gatekit.Violation{
			Code:    "max_changed_files",
			Message: fmt.Sprintf("max_changed_files: %d > %d", numFiles, maxFiles),
		})
	}
	if hasMaxKB && totalDiffKB > maxKB {
		violations = append(violations, gatekit.Violation{
			Code:    "max_total_diff_kb",
			Message: fmt.Sprintf("max_total_diff_kb: %d > %d", totalDiffKB, maxKB),
		})
	}

	status := gatekit.StatusPass
	if len(violations) > 0 {
		status = gatekit.StatusFail
	}

	return gatekit.Result{
		Status:     status,
		Violations: violations,
		Stats: map[string]any{
			"changed_files": numFiles,
			"total_diff_kb": totalDiffKB,
		},
	}
}

func intArg(with map[string]any, key string) (int, bool) {
	v, ok := with[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
