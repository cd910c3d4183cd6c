package runrt

import (
	"context"
	"testing"
	"time"

	"github.com/policyforge/engine/internal/gatekit"
	"github.com/policyforge/engine/internal/policy"
)

func TestAggregateAllPass(t *testing.T) {
	results := []gatekit.Result{{Status: gatekit.StatusPass}, {Status: gatekit.StatusPass}}
	r := aggregate(results, 2, false, time.Now())
	if r.OverallStatus != gatekit.StatusPass || r.ConclusionReason != ReasonAllGatesPassed {
		t.Errorf("got %+v", r)
	}
}

func TestAggregateNoGatesExecuted(t *testing.T) {
	r := aggregate(nil, 0, false, time.Now())
	if r.OverallStatus != gatekit.StatusNeutral || r.ConclusionReason != ReasonNoGatesExecuted {
		t.Errorf("got %+v", r)
	}
}

func TestAggregateFailDominatesPartialExecution(t *testing.T) {
	results := []gatekit.Result{{Status: gatekit.StatusFail}}
	r := aggregate(results, 5, false, time.Now())
	if r.OverallStatus != gatekit.StatusFail || r.ConclusionReason != ReasonGatesFailed {
		t.Errorf("got %+v", r)
	}
	if !r.ExecutionSummary.Partial {
		t.Error("expected partial execution to be flagged")
	}
}

func TestAggregateNeutralTimeoutReason(t *testing.T) {
	results := []gatekit.Result{{Status: gatekit.StatusNeutral, NeutralReason: gatekit.ReasonTimeout}}
	r := aggregate(results, 1, false, time.Now())
	if r.ConclusionReason != ReasonGateTimeouts {
		t.Errorf("ConclusionReason = %v, want gate_timeouts", r.ConclusionReason)
	}
}

func TestAggregateNeutralOtherReason(t *testing.T) {
	results := []gatekit.Result{{Status: gatekit.StatusNeutral, NeutralReason: gatekit.ReasonMissingArtifact}}
	r := aggregate(results, 1, false, time.Now())
	if r.ConclusionReason != ReasonGatesNeutral {
		t.Errorf("ConclusionReason = %v, want gates_neutral", r.ConclusionReason)
	}
}

func TestAggregateFailOnErrorElevatesNeutral(t *testing.T) {
	results := []gatekit.Result{{Status: gatekit.StatusNeutral, NeutralReason: gatekit.ReasonMissingArtifact}}
	r := aggregate(results, 1, true, time.Now())
	if r.OverallStatus != gatekit.StatusFail {
		t.Errorf("OverallStatus = %v, want fail", r.OverallStatus)
	}
	if r.ConclusionReason != ReasonGatesNeutral {
		t.Errorf("ConclusionReason = %v, want preserved gates_neutral", r.ConclusionReason)
	}
}

func TestAggregateFailOnErrorNeverElevatesNoGatesExecuted(t *testing.T) {
	r := aggregate(nil, 0, true, time.Now())
	if r.OverallStatus != gatekit.StatusNeutral {
		t.Errorf("OverallStatus = %v, want neutral (not elevated)", r.OverallStatus)
	}
}

func TestRunRecoversDuplicateGateIDsIntoOrchestratorNeutral(t *testing.T) {
	doc := &policy.Document{Gates: []policy.GateSpec{
		{Type: "review-limits", ID: "dup"},
		{Type: "review-limits", ID: "dup"},
	}}
	rc := &gatekit.RunContext{Context: context.Background()}
	result := Run(rc, doc)
	if result.OverallStatus != gatekit.StatusNeutral {
		t.Errorf("OverallStatus = %v, want neutral", result.OverallStatus)
	}
	if len(result.Gates) != 1 || result.Gates[0].ID != "orchestrator" {
		t.Errorf("got %+v, want single synthetic orchestrator gate", result.Gates)
	}
}
