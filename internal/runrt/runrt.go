// Package runrt is the Orchestrator (spec §4.8, "C6"): given the per-run
// context its caller built, it invokes the Launcher and aggregates the
// resulting gate results into a single overall verdict. Named runrt
// (run-runtime) rather than orchestrator to avoid colliding with the
// teacher's own internal/orchestrator package. It holds no state between
// calls — one per-event run, with no mutex or cancel function of its own.
package runrt

import (
	"fmt"
	"time"

	"github.com/policyforge/engine/internal/gatekit"
	"github.com/policyforge/engine/internal/launcher"
	"github.com/policyforge/engine/internal/policy"
)

// ConclusionReason is the closed enumeration of why a run reached its
// overall status (spec §3).
type ConclusionReason string

const (
	ReasonNoGatesExecuted ConclusionReason = "no_gates_executed"
	ReasonGatesFailed     ConclusionReason = "gates_failed"
	ReasonGatesNeutral    ConclusionReason = "gates_neutral"
	ReasonGateTimeouts    ConclusionReason = "gate_timeouts"
	ReasonAllGatesPassed  ConclusionReason = "all_gates_passed"
)

// ExecutionSummary carries the counts the Renderer and check lifecycle use
// to report on a run without re-walking the gate list (spec §3).
type ExecutionSummary struct {
	Total    int
	Passed   int
	Failed   int
	Neutral  int
	Partial  bool // fewer results than the policy configured
}

// Result is the aggregated output of one event's gate execution (spec §3,
// "Run result").
type Result struct {
	OverallStatus    gatekit.Status
	ConclusionReason ConclusionReason
	Gates            []gatekit.Result
	ExecutionSummary ExecutionSummary
	DurationMS       int64
}

// Run builds nothing itself — rc is assumed already populated by the
// caller (the two-phase check lifecycle, spec §4.9) — and invokes the
// Launcher, then aggregates (spec §4.8). A fatal Launcher error (duplicate
// gate ids) and a panic escaping the Launcher itself are both recovered
// into the single synthetic "orchestrator" gate result the spec requires,
// rather than propagating to the caller.
func Run(rc *gatekit.RunContext, doc *policy.Document) (result Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = orchestratorFailure(fmt.Sprintf("panic: %v", r), start)
		}
	}()

	gateResults, err := launcher.Run(rc, doc.Gates, nil)
	if err != nil {
		return orchestratorFailure(err.Error(), start)
	}

	return aggregate(gateResults, len(doc.Gates), doc.FailOnError, start)
}

func orchestratorFailure(msg string, start time.Time) Result {
	gate := gatekit.Result{
		ID:            "orchestrator",
		Status:        gatekit.StatusNeutral,
		NeutralReason: gatekit.ReasonInternalError,
		Stats:         map[string]any{"error": msg},
	}
	return Result{
		OverallStatus:    gatekit.StatusNeutral,
		ConclusionReason: ReasonGatesNeutral,
		Gates:            []gatekit.Result{gate},
		ExecutionSummary: ExecutionSummary{Total: 1, Neutral: 1},
		DurationMS:       time.Since(start).Milliseconds(),
	}
}

// aggregate derives the overall status and conclusion reason per the
// precedence in spec §4.8: no results → neutral{no_gates_executed}; any
// fail → fail{gates_failed} (testable property #4: this dominates even on
// a partial run); else any neutral → neutral{gate_timeouts} if any neutral
// reason is timeout, else neutral{gates_neutral}; else pass{all_gates_passed}.
// If the policy's fail_on_error is set, a final neutral is elevated to
// fail, but the conclusion reason is preserved (spec §4.8, §9 Open Question).
func aggregate(results []gatekit.Result, configuredCount int, failOnError bool, start time.Time) Result {
	summary := ExecutionSummary{
		Total:   len(results),
		Partial: len(results) < configuredCount,
	}

	var anyFail, anyNeutral, anyTimeout bool
	for _, r := range results {
		switch r.Status {
		case gatekit.StatusPass:
			summary.Passed++
		case gatekit.StatusFail:
			summary.Failed++
			anyFail = true
		case gatekit.StatusNeutral:
			summary.Neutral++
			anyNeutral = true
			if r.NeutralReason == gatekit.ReasonTimeout {
				anyTimeout = true
			}
		}
	}

	var status gatekit.Status
	var reason ConclusionReason
	switch {
	case len(results) == 0:
		status, reason = gatekit.StatusNeutral, ReasonNoGatesExecuted
	case anyFail:
		status, reason = gatekit.StatusFail, ReasonGatesFailed
	case anyNeutral:
		status = gatekit.StatusNeutral
		if anyTimeout {
			reason = ReasonGateTimeouts
		} else {
			reason = ReasonGatesNeutral
		}
	default:
		status, reason = gatekit.StatusPass, ReasonAllGatesPassed
	}

	// fail_on_error elevates a neutral verdict to fail, but only when gates
	// actually ran and produced a neutral result — a no_gates_executed run
	// is never elevated, since there is nothing to have "erred" (spec §9
	// Open Question decision, recorded in DESIGN.md).
	if failOnError && status == gatekit.StatusNeutral && reason != ReasonNoGatesExecuted {
		status = gatekit.StatusFail
	}

	return Result{
		OverallStatus:    status,
		ConclusionReason: reason,
		Gates:            results,
		ExecutionSummary: summary,
		DurationMS:       time.Since(start).Milliseconds(),
	}
}
