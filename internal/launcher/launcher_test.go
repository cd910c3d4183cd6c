package launcher

import (
	"context"
	"testing"

	"github.com/policyforge/engine/internal/gatekit"
	"github.com/policyforge/engine/internal/policy"
)

type fakeResolver map[string]gatekit.Handler

func (f fakeResolver) Lookup(gateType string) (gatekit.Handler, bool) {
	h, ok := f[gateType]
	return h, ok
}

func newRC() *gatekit.RunContext {
	return &gatekit.RunContext{Context: context.Background()}
}

func TestRunOverwritesHandlerDeclaredID(t *testing.T) {
	resolver := fakeResolver{
		"review-limits": func(rc *gatekit.RunContext, spec gatekit.Spec) gatekit.Result {
			return gatekit.Result{ID: "whatever-the-handler-wants", Status: gatekit.StatusPass}
		},
	}
	results, err := Run(newRC(), []policy.GateSpec{{Type: "review-limits"}}, resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ID != "review-limits" {
		t.Fatalf("got %+v, want id review-limits", results)
	}
}

func TestRunUsesExplicitID(t *testing.T) {
	resolver := fakeResolver{
		"review-limits": func(rc *gatekit.RunContext, spec gatekit.Spec) gatekit.Result {
			return gatekit.Result{Status: gatekit.StatusPass}
		},
	}
	results, err := Run(newRC(), []policy.GateSpec{{Type: "review-limits", ID: "my-limits"}}, resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].ID != "my-limits" {
		t.Errorf("ID = %q, want my-limits", results[0].ID)
	}
}

func TestRunRejectsDuplicateIDsBeforeAnyHandlerRuns(t *testing.T) {
	called := false
	resolver := fakeResolver{
		"review-limits": func(rc *gatekit.RunContext, spec gatekit.Spec) gatekit.Result {
			called = true
			return gatekit.Result{Status: gatekit.StatusPass}
		},
	}
	_, err := Run(newRC(), []policy.GateSpec{
		{Type: "review-limits", ID: "dup"},
		{Type: "review-limits", ID: "dup"},
	}, resolver)
	if err == nil {
		t.Fatal("expected duplicate-id error")
	}
	if called {
		t.Error("handler must not run when ids collide")
	}
}

func TestRunUnknownTypeIsSyntheticNeutral(t *testing.T) {
	results, err := Run(newRC(), []policy.GateSpec{{Type: "does-not-exist"}}, fakeResolver{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Status != gatekit.StatusNeutral || results[0].NeutralReason != gatekit.ReasonUnimplementedGate {
		t.Errorf("got %+v, want neutral/unimplemented_gate", results[0])
	}
}

func TestRunRecoversHandlerPanic(t *testing.T) {
	resolver := fakeResolver{
		"boom": func(rc *gatekit.RunContext, spec gatekit.Spec) gatekit.Result {
			panic("handler exploded")
		},
	}
	results, err := Run(newRC(), []policy.GateSpec{{Type: "boom"}}, resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Status != gatekit.StatusNeutral || results[0].NeutralReason != gatekit.ReasonInternalError {
		t.Errorf("got %+v, want neutral/internal_error", results[0])
	}
}

func TestRunPreservesOrderAndStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rc := &gatekit.RunContext{Context: ctx}

	resolver := fakeResolver{
		"first": func(rc *gatekit.RunContext, spec gatekit.Spec) gatekit.Result {
			return gatekit.Result{Status: gatekit.StatusPass}
		},
		"second": func(rc *gatekit.RunContext, spec gatekit.Spec) gatekit.Result {
			cancel()
			return gatekit.Result{Status: gatekit.StatusPass}
		},
		"third": func(rc *gatekit.RunContext, spec gatekit.Spec) gatekit.Result {
			t.Fatal("third gate must not run after cancellation")
			return gatekit.Result{}
		},
	}

	results, err := Run(rc, []policy.GateSpec{
		{Type: "first", ID: "first"},
		{Type: "second", ID: "second"},
		{Type: "third", ID: "third"},
	}, resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (partial)", len(results))
	}
	if results[0].ID != "first" || results[1].ID != "second" {
		t.Errorf("order not preserved: %+v", results)
	}
}

func TestRunDerivesAIRuleIDFromRuleFileBasename(t *testing.T) {
	resolver := fakeResolver{
		"ai-rule": func(rc *gatekit.RunContext, spec gatekit.Spec) gatekit.Result {
			return gatekit.Result{Status: gatekit.StatusPass}
		},
	}
	results, err := Run(newRC(), []policy.GateSpec{
		{Type: "ai-rule", With: map[string]any{"rule_file": "dont-rebuild-oss.yaml"}},
	}, resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].ID != "dont-rebuild-oss" {
		t.Errorf("ID = %q, want dont-rebuild-oss", results[0].ID)
	}
}

func TestRunNormalizesMissingFields(t *testing.T) {
	resolver := fakeResolver{
		"bare": func(rc *gatekit.RunContext, spec gatekit.Spec) gatekit.Result {
			return gatekit.Result{}
		},
	}
	results, err := Run(newRC(), []policy.GateSpec{{Type: "bare"}}, resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := results[0]
	if r.Status != gatekit.StatusNeutral {
		t.Errorf("Status = %v, want default neutral", r.Status)
	}
	if r.Violations == nil || r.Observations == nil || r.Stats == nil {
		t.Errorf("expected empty-not-nil slices/maps, got %+v", r)
	}
}
