// Package gatekit defines the uniform contract every gate handler obeys: the
// context a handler receives, the spec it is configured from, and the result
// shape it must produce. It has no dependency on any specific gate
// implementation or on the forge adapters beyond the narrow Forge interface
// below, so built-in gates (internal/gates), the registry (internal/registry)
// and the launcher (internal/launcher) can all depend on it without cycles.
package gatekit

import (
	"context"
	"log/slog"
	"time"

	"github.com/policyforge/engine/internal/aiworkflow"
	"github.com/policyforge/engine/internal/config"
	"github.com/policyforge/engine/internal/policy"
)

// Status is a gate or run verdict.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusNeutral Status = "neutral"
)

// NeutralReason is a closed enumeration of why a gate returned neutral.
type NeutralReason string

const (
	ReasonUnimplementedGate    NeutralReason = "unimplemented_gate"
	ReasonTimeout              NeutralReason = "timeout"
	ReasonInternalError        NeutralReason = "internal_error"
	ReasonMissingArtifact      NeutralReason = "missing_artifact"
	ReasonArtifactTooLarge     NeutralReason = "artifact_too_large"
	ReasonParseError           NeutralReason = "parse_error"
	ReasonInvalidFormat        NeutralReason = "invalid_format"
	ReasonOversizeDiff         NeutralReason = "oversize_diff"
	ReasonMissingThreshold     NeutralReason = "missing_threshold"
	ReasonNoContextsRequired   NeutralReason = "no_contexts_required"
	ReasonRuleSchemaInvalid    NeutralReason = "rule_schema_invalid"
	ReasonProviderResultBad    NeutralReason = "provider_result_invalid"
	ReasonMissingMetrics       NeutralReason = "missing_metrics"
)

// Violation is a single finding surfaced by a gate.
type Violation struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Path    *string        `json:"path,omitempty"`
	Line    *int           `json:"line,omitempty"`
	Column  *int           `json:"column,omitempty"`
	Level   string         `json:"level,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Provenance records the AI workflow invocation metadata for an ai-rule gate.
type Provenance struct {
	ModelID    string        `json:"model_id"`
	RunID      string        `json:"run_id"`
	WallTime   time.Duration `json:"wall_time"`
	WorkflowID string        `json:"workflow_id"`
}

// Result is what every gate handler returns, before the Launcher normalizes it.
type Result struct {
	// ID is set by the handler as a hint only; the Launcher always overwrites
	// it with the derived id (spec §3, §4.5).
	ID             string
	Status         Status
	NeutralReason  NeutralReason
	Violations     []Violation
	Observations   []string
	Stats          map[string]any
	DurationMS     int64
	Provenance     *Provenance
	ProviderResult map[string]any
	Rule           map[string]any
}

// PR is the minimal pull/merge-request descriptor every handler can rely on,
// regardless of which forge adapter populated the run context.
type PR struct {
	Number        int
	Title         string
	Body          string
	HeadSHA       string
	BaseSHA       string
	HeadRef       string
	BaseRef       string
	ChangedFiles  []ChangedFile
	Additions     int
	Deletions     int
	HasFileList   bool // true if ChangedFiles was already populated from the event payload
}

// ChangedFile is one entry of a PR's file list.
type ChangedFile struct {
	Path      string
	Status    string // added, modified, removed, renamed
	Additions int
	Deletions int
	Patch     string // unified diff hunk for this file, when the forge provides it inline
}

// Artifact is a CI-produced build artifact, mirroring hosting.Artifact. It is
// redeclared here (rather than imported) so that gatekit — the package every
// gate handler and the registry depend on — never needs to import the
// hosting package; checklifecycle's forgeAdapter is what bridges the two.
type Artifact struct {
	ID        int64
	Name      string
	SizeBytes int64
}

// Forge is the narrow set of forge capabilities a gate handler may use. It is
// a subset of hosting.Provider — handlers never get the full provider, only
// what their contract allows (spec §4.2: "only the narrow capability set the
// gate needs"). ListArtifacts/DownloadArtifact are only ever called by the
// artifact-ingesting gates (spec §4.6), and only when DeferArtifacts is false.
type Forge interface {
	GetContentAtRef(ctx context.Context, path, ref string) ([]byte, error)
	ListChangedFiles(ctx context.Context, prNumber int) ([]ChangedFile, error)
	// ListArtifacts lists the artifacts of the CI run for headSHA, pinned to
	// ciRunID when the caller already knows which run it's reacting to
	// (spec §4.9 phase 2); empty ciRunID triggers the provider's own
	// most-relevant-run selection (spec §4.6/§4.7).
	ListArtifacts(ctx context.Context, headSHA, ciRunID string) ([]Artifact, error)
	DownloadArtifact(ctx context.Context, artifact Artifact) ([]byte, error)
}

// RunContext is passed to every handler invocation.
type RunContext struct {
	Context        context.Context
	PR             PR
	Policy         any // *policy.Document, typed loosely; gates type-assert it
	Forge          Forge
	Logger         *slog.Logger
	DeferArtifacts bool   // true during phase 1 (spec §4.9): artifact gates must not run yet
	CIRunID        string // populated during phase 2 so artifact gates can locate the run

	// PolicyRoot is the configured policy-root directory name (spec §6: rule
	// documents live at /.<policy-root>/rules/<name>.yaml); the ai-rule gate
	// builds its fetch path from this rather than hardcoding it.
	PolicyRoot string

	// AIWorkflows resolves a rule document's workflow_id to the dispatcher
	// that runs it (spec §6, "AI workflow capability"). A gate never talks to
	// a model provider directly; it only ever calls through this registry.
	AIWorkflows map[string]aiworkflow.Client

	// Governance is the engine-level required-contexts/workflow-path wiring
	// the governance-policy gate reads from (spec §6, SPEC_FULL.md "DOMAIN
	// STACK — supplemented features"): set once per deployment, not per
	// policy document.
	Governance config.GovernanceConfig

	// Loader is the same caching policy/rule-document collaborator the check
	// lifecycle uses to load the policy document itself (spec §3); the
	// ai-rule gate fetches rule documents through it instead of going around
	// it straight to Forge, so rule documents share the (repo, sha) cache.
	Loader policy.Loader

	// RepoFullName identifies the repository being evaluated (e.g.
	// "acme/widgets"), the cache key's repo component the Loader needs.
	RepoFullName string
}

// Spec is one entry of the policy's ordered gate list (spec §3). The
// advisory-vs-blocking fail_on_error flag lives on the policy document, not
// per gate (spec §3); the Orchestrator reads it directly when aggregating.
type Spec struct {
	Type string
	ID   string
	With map[string]any
}

// Handler is the uniform shape every gate obeys (spec §4.2).
type Handler func(rc *RunContext, spec Spec) Result
