// Package matrix implements the success-criteria matrix (spec §4.4): given a
// set of observed metrics and a policy.SuccessCriteria, it decides pass,
// fail, or neutral-on-missing-metrics.
package matrix

import (
	"fmt"

	"github.com/policyforge/engine/internal/policy"
)

// Outcome is the matrix's verdict.
type Outcome string

const (
	OutcomePass    Outcome = "pass"
	OutcomeFail    Outcome = "fail"
	OutcomeNeutral Outcome = "neutral"
)

// Evaluation is the matrix's full result, including which comparisons were
// missing metrics and which failed, so a gate handler can build violations.
type Evaluation struct {
	Outcome       Outcome
	MissingMetric string // set when Outcome is neutral due to a missing metric
	FailedRequire []policy.Comparison
	FailedAnyOf   []policy.Comparison // only set if every any_of entry failed
}

// compare applies a single comparison's operator against an observed value.
func compare(c policy.Comparison, observed float64) bool {
	switch c.Op {
	case "gte":
		return observed >= c.Threshold
	case "gt":
		return observed > c.Threshold
	case "lte":
		return observed <= c.Threshold
	case "lt":
		return observed < c.Threshold
	case "eq":
		return observed == c.Threshold
	default:
		return false
	}
}

// Evaluate runs metrics against a success-criteria matrix per spec §4.4:
// every require entry must pass; if any_of is non-empty, at least one of its
// entries must also pass. A metric referenced by a comparison but absent
// from metrics is "missing": if NeutralOnMissingMetrics is true, the first
// missing metric makes the whole matrix neutral; otherwise the comparison is
// simply treated as unsatisfied, same as a failed comparison.
func Evaluate(sc policy.SuccessCriteria, metrics map[string]float64) (Evaluation, error) {
	if sc.NeutralOnMissingMetrics {
		for _, c := range sc.Require {
			if _, ok := metrics[c.Metric]; !ok {
				return Evaluation{Outcome: OutcomeNeutral, MissingMetric: c.Metric}, nil
			}
		}
		for _, c := range sc.AnyOf {
			if _, ok := metrics[c.Metric]; !ok {
				return Evaluation{Outcome: OutcomeNeutral, MissingMetric: c.Metric}, nil
			}
		}
	}

	var failedRequire []policy.Comparison
	for _, c := range sc.Require {
		observed, ok := metrics[c.Metric]
		if !ok || !compare(c, observed) {
			failedRequire = append(failedRequire, c)
		}
	}
	if len(failedRequire) > 0 {
		return Evaluation{Outcome: OutcomeFail, FailedRequire: failedRequire}, nil
	}

	if len(sc.AnyOf) > 0 {
		anyPassed := false
		var failedAnyOf []policy.Comparison
		for _, c := range sc.AnyOf {
			observed, ok := metrics[c.Metric]
			if ok && compare(c, observed) {
				anyPassed = true
			} else {
				failedAnyOf = append(failedAnyOf, c)
			}
		}
		if !anyPassed {
			return Evaluation{Outcome: OutcomeFail, FailedAnyOf: failedAnyOf}, nil
		}
	}

	return Evaluation{Outcome: OutcomePass}, nil
}

// Describe renders a human-readable explanation of a failed comparison, used
// by built-in gates to build violation messages.
func Describe(c policy.Comparison, observed float64) string {
	return fmt.Sprintf("%s: observed %v, required %s %v", c.Metric, observed, c.Op, c.Threshold)
}
