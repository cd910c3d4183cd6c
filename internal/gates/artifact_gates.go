package gates

import (
	"errors"
	"fmt"

	"github.com/policyforge/engine/internal/artifact"
	"github.com/policyforge/engine/internal/gatekit"
	"github.com/policyforge/engine/internal/registry"
)

func init() {
	registry.Register("artifact.json", artifactJSON)
	registry.Register("artifact.sarif", artifactSARIF)
}

const defaultArtifactSizeMB = 25
const defaultMaxFindings = 1000
const defaultFailOn = "errors"

// artifactJSON ingests a tool-specific JSON report (ESLint or ruff) from a
// CI artifact (spec §4.3/§4.6).
func artifactJSON(rc *gatekit.RunContext, spec gatekit.Spec) gatekit.Result {
	parserName, _ := spec.With["parser"].(string)
	var format artifact.ParseFormat
	switch parserName {
	case "eslint_json":
		format = artifact.FormatESLintJSON
	case "ruff_json":
		format = artifact.FormatRuffJSON
	default:
		return gatekit.Result{
			Status:        gatekit.StatusNeutral,
			NeutralReason: gatekit.ReasonInvalidFormat,
			Stats:         map[string]any{"error": fmt.Sprintf("unknown with.parser %q", parserName)},
		}
	}
	return runArtifactGate(rc, spec, format)
}

// artifactSARIF ingests a SARIF 2.1.0 report from a CI artifact.
func artifactSARIF(rc *gatekit.RunContext, spec gatekit.Spec) gatekit.Result {
	return runArtifactGate(rc, spec, artifact.FormatSARIF)
}

func runArtifactGate(rc *gatekit.RunContext, spec gatekit.Spec, format artifact.ParseFormat) gatekit.Result {
	if rc.DeferArtifacts {
		return gatekit.Result{
			Status:       gatekit.StatusNeutral,
			Observations: []string{"external-artifact gate deferred to the CI-completion phase"},
		}
	}

	artifactName, _ := spec.With["artifact_name"].(string)
	if artifactName == "" {
		return gatekit.Result{
			Status:        gatekit.StatusNeutral,
			NeutralReason: gatekit.ReasonInternalError,
			Stats:         map[string]any{"error": "with.artifact_name is required"},
		}
	}
	artifactPath, _ := spec.With["artifact_path"].(string)
	sizeMB, ok := intArg(spec.With, "artifact_size_mb")
	if !ok {
		sizeMB = defaultArtifactSizeMB
	}
	maxFindings, ok := intArg(spec.With, "max_findings")
	if !ok {
		maxFindings = defaultMaxFindings
	}
	failOn, _ := spec.With["fail_on"].(string)
	if failOn == "" {
		failOn = defaultFailOn
	}

	locator := &artifact.Locator{Forge: rc.Forge, MaxSizeMB: sizeMB}
	archiveBytes, err := locator.Locate(rc.Context, rc.PR.HeadSHA, rc.CIRunID, artifactName)
	if err != nil {
		return neutralForArtifactError(err)
	}

	var entryData []byte
	if artifactPath != "" {
		entryData, err = artifact.SelectEntry(archiveBytes, artifactPath)
	} else {
		_, entryData, err = artifact.SelectFirstReportEntry(archiveBytes)
	}
	if err != nil {
		return neutralForArtifactError(err)
	}

	findings, err := artifact.Parse(format, entryData)
	if err != nil {
		return neutralForArtifactError(err)
	}

	truncated := len(findings) > maxFindings
	if truncated {
		findings = findings[:maxFindings]
	}

	violations := make([]gatekit.Violation, 0, len(findings)+1)
	var errorCount, warningCount int
	for _, f := range findings {
		switch f.Severity {
		case artifact.SeverityError:
			errorCount++
		case artifact.SeverityWarning:
			warningCount++
		}
		v := gatekit.Violation{
			Code:    f.RuleID,
			Message: f.Message,
			Level:   string(f.Severity),
		}
		if f.Path != "" {
			path := f.Path
			v.Path = &path
		}
		if f.Line != 0 {
			line := f.Line
			v.Line = &line
		}
		if f.Column != 0 {
			col := f.Column
			v.Column = &col
		}
		violations = append(violations, v)
	}
	if truncated {
		violations = append(violations, gatekit.Violation{
			Code:    "findings_truncated",
			Message: fmt.Sprintf("truncated to max_findings=%d", maxFindings),
			Level:   "info",
		})
	}

	status := artifactStatus(failOn, errorCount, warningCount, len(findings))

	return gatekit.Result{
		Status:     status,
		Violations: violations,
		Stats: map[string]any{
			"errors":   errorCount,
			"warnings": warningCount,
			"total":    len(findings),
		},
	}
}

func neutralForArtifactError(err error) gatekit.Result {
	reason := gatekit.ReasonInternalError
	switch {
	case errors.Is(err, artifact.ErrMissingArtifact):
		reason = gatekit.ReasonMissingArtifact
	case errors.Is(err, artifact.ErrArtifactTooLarge):
		reason = gatekit.ReasonArtifactTooLarge
	case errors.Is(err, artifact.ErrParseError):
		reason = gatekit.ReasonParseError
	case errors.Is(err, artifact.ErrInvalidFormat):
		reason = gatekit.ReasonInvalidFormat
	}
	return gatekit.Result{
		Status:        gatekit.StatusNeutral,
		NeutralReason: reason,
		Stats:         map[string]any{"error": err.Error()},
	}
}

// artifactStatus derives pass/fail from the configured fail_on policy
// (spec §4.6: errors | warnings_or_errors | any | none). "any" is stricter
// than "warnings_or_errors": it also fails on info/note-severity findings
// that carry neither error nor warning severity.
func artifactStatus(failOn string, errorCount, warningCount, totalCount int) gatekit.Status {
	switch failOn {
	case "none":
		return gatekit.StatusPass
	case "any":
		if totalCount > 0 {
			return gatekit.StatusFail
		}
	case "warnings_or_errors":
		if errorCount+warningCount > 0 {
			return gatekit.StatusFail
		}
	default: // "errors"
		if errorCount > 0 {
			return gatekit.StatusFail
		}
	}
	return gatekit.StatusPass
}
