package checklifecycle

import (
	"fmt"

	"github.com/policyforge/engine/internal/gatekit"
	"github.com/policyforge/engine/internal/hosting"
)

// buildAnnotations derives inline annotations from every gate's violations
// that carry a normalized path and line, up to max total (spec §4.9: "up to
// 50 annotations derived from violations that have a normalized path and
// line; map level=error → failure, others → warning. If the total violation
// count exceeds 50, append a note indicating truncation").
func buildAnnotations(gates []gatekit.Result, max int) (annotations []hosting.Annotation, truncated bool, totalEligible int) {
	for _, g := range gates {
		for _, v := range g.Violations {
			if v.Path == nil || v.Line == nil {
				continue
			}
			totalEligible++
			if len(annotations) >= max {
				truncated = true
				continue
			}
			annotations = append(annotations, hosting.Annotation{
				Path:            *v.Path,
				StartLine:       *v.Line,
				EndLine:         *v.Line,
				StartColumn:     v.Column,
				EndColumn:       v.Column,
				AnnotationLevel: annotationLevel(v.Level),
				Message:         v.Message,
			})
		}
	}
	return annotations, truncated, totalEligible
}

func annotationLevel(level string) hosting.AnnotationLevel {
	if level == "error" {
		return hosting.AnnotationFailure
	}
	return hosting.AnnotationWarning
}

// truncationNote builds the text appended to a check body when the
// annotation set was truncated (spec §4.9).
func truncationNote(totalEligible, emitted int) string {
	return fmt.Sprintf("\n_%d annotation(s) omitted; %d of %d eligible violations shown._\n", totalEligible-emitted, emitted, totalEligible)
}
