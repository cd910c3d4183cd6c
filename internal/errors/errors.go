// Package errors provides the structured error taxonomy the policy engine
// uses at the boundaries that must surface a human-readable explanation: a
// failed policy load, an ambiguous rerun, a schema violation. Gate-handler
// errors never reach this type directly — the launcher recovers them into a
// neutral gate result (spec §4.5) — this type is for the handful of errors in
// spec §7 that propagate out to the check-writing boundary.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Code is one of the closed error codes from spec §7.
type Code string

const (
	CodePolicyMissing         Code = "policy_missing"
	CodePolicyInvalid         Code = "policy_invalid"
	CodePolicyTransient       Code = "policy_transient"
	CodeRuleSchemaInvalid     Code = "rule_schema_invalid"
	CodeProviderResultInvalid Code = "provider_result_invalid"
	CodeMissingMetrics        Code = "missing_metrics"
	CodeMissingArtifact       Code = "missing_artifact"
	CodeArtifactTooLarge      Code = "artifact_too_large"
	CodeParseError            Code = "parse_error"
	CodeInvalidFormat         Code = "invalid_format"
	CodeOversizeDiff          Code = "oversize_diff"
	CodeTimeout               Code = "timeout"
	CodeInternalError         Code = "internal_error"
	CodeUnimplementedGate     Code = "unimplemented_gate"
	CodeAmbiguousRerunPR      Code = "ambiguous_rerun_pr"
	CodeDuplicateGateID       Code = "duplicate_gate_id"
)

// Conclusion is the check conclusion a code maps to, per spec §7's table.
type Conclusion string

const (
	ConclusionFailure Conclusion = "failure"
	ConclusionNeutral Conclusion = "neutral"
)

// conclusions maps each code to how it must be surfaced on the check, per the
// spec §7 table ("Surfacing" column).
var conclusions = map[Code]Conclusion{
	CodePolicyMissing:    ConclusionFailure,
	CodePolicyInvalid:    ConclusionFailure,
	CodePolicyTransient:  ConclusionNeutral,
	CodeAmbiguousRerunPR: ConclusionNeutral,
}

// PolicyError is the structured error type for the engine.
type PolicyError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *PolicyError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause, for errors.Is/As.
func (e *PolicyError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a PolicyError with the same code.
func (e *PolicyError) Is(target error) bool {
	t, ok := target.(*PolicyError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// UserMessage renders a human-readable explanation suitable for a check body.
func (e *PolicyError) UserMessage() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\n")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\n")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Conclusion returns the check conclusion this error must be surfaced as.
// Codes absent from the table default to neutral — the safer of the two,
// since spec §7 says transient/uncertain errors must never read as failure.
func (e *PolicyError) Conclusion() Conclusion {
	if c, ok := conclusions[e.Code]; ok {
		return c
	}
	return ConclusionNeutral
}

// MarshalJSON implements json.Marshaler, flattening Cause to a string.
func (e *PolicyError) MarshalJSON() ([]byte, error) {
	type alias PolicyError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{alias: (*alias)(e)}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// WithCause returns a copy of the error with the given cause attached.
func (e *PolicyError) WithCause(err error) *PolicyError {
	return &PolicyError{Code: e.Code, What: e.What, Why: e.Why, Fix: e.Fix, Cause: err}
}

// --- constructors ---

// ErrPolicyMissing builds the error for a missing policy file (spec §4.9 phase 1).
func ErrPolicyMissing(path string) *PolicyError {
	return &PolicyError{
		Code: CodePolicyMissing,
		What: fmt.Sprintf("No policy file found at %s", path),
		Why:  "The repository has not been configured with a policy document yet.",
		Fix:  fmt.Sprintf("Add a policy document at %s and push a new commit.", path),
	}
}

// ErrPolicyInvalid builds the error for an invalid policy file.
func ErrPolicyInvalid(schemaErrors string) *PolicyError {
	return &PolicyError{
		Code: CodePolicyInvalid,
		What: "The policy document failed validation.",
		Why:  schemaErrors,
		Fix:  "Fix the reported fields and push a new commit.",
	}
}

// ErrPolicyTransient builds the error for a transient fetch failure.
func ErrPolicyTransient(cause error) *PolicyError {
	return (&PolicyError{
		Code: CodePolicyTransient,
		What: "Could not fetch the policy document.",
		Why:  "This looks like a transient error talking to the forge.",
		Fix:  "No action needed; the check will retry automatically on the next event.",
	}).WithCause(cause)
}

// ErrAmbiguousRerunPR builds the error for an unresolvable rerun target (spec §4.9).
func ErrAmbiguousRerunPR() *PolicyError {
	return &PolicyError{
		Code: CodeAmbiguousRerunPR,
		What: "Could not determine which pull request this rerun belongs to.",
		Why:  "More than one candidate PR matched, or none did, by head commit or branch.",
		Fix:  "Re-run the check directly from the pull request page instead of the check suite.",
	}
}

// ErrDuplicateGateID builds the fatal configuration error for spec §3's
// duplicate-derived-id invariant.
func ErrDuplicateGateID(id string) *PolicyError {
	return &PolicyError{
		Code: CodeDuplicateGateID,
		What: fmt.Sprintf("duplicate gate id %q in policy", id),
		Why:  "Two gate specs resolved to the same id; every gate must have a unique id.",
		Fix:  "Add an explicit `id` to one of the conflicting gate entries.",
	}
}

// As reports whether err is a *PolicyError (or wraps one) with target set.
func As(err error, target **PolicyError) bool {
	for err != nil {
		if pe, ok := err.(*PolicyError); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
