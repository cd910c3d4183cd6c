package checklifecycle

import (
	"testing"

	"github.com/policyforge/engine/internal/gatekit"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestBuildAnnotationsMapsErrorLevelToFailure(t *testing.T) {
	gates := []gatekit.Result{{
		ID: "review-limits",
		Violations: []gatekit.Violation{
			{Code: "x", Message: "bad", Path: strPtr("main.go"), Line: intPtr(10), Level: "error"},
			{Code: "y", Message: "meh", Path: strPtr("main.go"), Line: intPtr(20), Level: "warning"},
		},
	}}
	annotations, truncated, eligible := buildAnnotations(gates, 50)
	if truncated || eligible != 2 || len(annotations) != 2 {
		t.Fatalf("got %d annotations, truncated=%v, eligible=%d", len(annotations), truncated, eligible)
	}
	if annotations[0].AnnotationLevel != "failure" {
		t.Errorf("AnnotationLevel = %v, want failure", annotations[0].AnnotationLevel)
	}
	if annotations[1].AnnotationLevel != "warning" {
		t.Errorf("AnnotationLevel = %v, want warning", annotations[1].AnnotationLevel)
	}
}

func TestBuildAnnotationsSkipsViolationsWithoutPathOrLine(t *testing.T) {
	gates := []gatekit.Result{{Violations: []gatekit.Violation{
		{Code: "x", Message: "no location"},
	}}}
	annotations, _, eligible := buildAnnotations(gates, 50)
	if len(annotations) != 0 || eligible != 0 {
		t.Fatalf("expected 0 eligible annotations, got %d/%d", len(annotations), eligible)
	}
}

func TestBuildAnnotationsTruncatesAtMax(t *testing.T) {
	var violations []gatekit.Violation
	for i := 0; i < 5; i++ {
		violations = append(violations, gatekit.Violation{Code: "x", Message: "m", Path: strPtr("f.go"), Line: intPtr(i)})
	}
	gates := []gatekit.Result{{Violations: violations}}

	annotations, truncated, eligible := buildAnnotations(gates, 3)
	if len(annotations) != 3 || !truncated || eligible != 5 {
		t.Fatalf("got %d annotations, truncated=%v, eligible=%d, want 3/true/5", len(annotations), truncated, eligible)
	}
}
