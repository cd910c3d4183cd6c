// Package hosting provides a unified interface for the forges the policy
// engine plugs into as an installable app (GitHub, GitLab). It gives the
// orchestrator and the check-lifecycle manager everything they need to read
// a pull request, fetch file content, and publish a check run, without
// either of them knowing which forge they are talking to.
package hosting

import (
	"context"
)

// ProviderType identifies which forge is in use.
type ProviderType string

const (
	ProviderGitHub  ProviderType = "github"
	ProviderGitLab  ProviderType = "gitlab"
	ProviderUnknown ProviderType = "unknown"
)

// Config holds the per-installation forge configuration. Unlike a local CLI
// tool, the engine never has a git checkout to inspect, so owner/repo and
// the provider type are supplied directly by the webhook dispatcher rather
// than detected from a remote URL.
type Config struct {
	Provider    string `yaml:"provider" json:"provider"`
	Owner       string `yaml:"-" json:"-"`
	Repo        string `yaml:"-" json:"-"`
	BaseURL     string `yaml:"base_url" json:"base_url,omitempty"`
	TokenEnvVar string `yaml:"token_env_var" json:"token_env_var,omitempty"`
}

// Provider is the narrow set of forge operations the policy engine needs:
// read PR metadata and diffs, fetch file content at a ref, resolve a commit
// back to its PR for ambiguous reruns, list CI artifacts, and publish check
// runs. It intentionally omits PR creation, merging, and review management —
// this app only evaluates and reports, it never mutates a PR's content.
type Provider interface {
	Name() ProviderType
	OwnerRepo() (string, string)
	CheckAuth(ctx context.Context) error

	GetPR(ctx context.Context, number int) (*PR, error)
	ListChangedFiles(ctx context.Context, number int) ([]ChangedFile, error)
	GetContentAtRef(ctx context.Context, path, ref string) ([]byte, error)
	FindPRsForCommit(ctx context.Context, sha string) ([]PR, error)

	// ListArtifacts lists the artifacts of the CI run for headSHA (spec
	// §4.6/§4.7's CI-run-selection algorithm: among runs/pipelines triggered
	// by the pull request, prefer the one with a successful conclusion, else
	// the latest completed one). When ciRunID is non-empty (phase 2 pins the
	// exact run the check is reacting to), it is used directly instead of
	// running the selection.
	ListArtifacts(ctx context.Context, headSHA, ciRunID string) ([]Artifact, error)
	DownloadArtifact(ctx context.Context, artifact Artifact) ([]byte, error)

	CreateCheckRun(ctx context.Context, input CheckRunInput) (*CheckRun, error)
	UpdateCheckRun(ctx context.Context, checkRunID int64, update CheckRunUpdate) error
}

// PR is the minimal pull/merge-request descriptor the engine operates on.
type PR struct {
	Number       int
	Title        string
	Body         string
	HeadSHA      string
	BaseSHA      string
	HeadRef      string
	BaseRef      string
	Draft        bool
	Additions    int
	Deletions    int
}

// ChangedFile is one entry of a PR's file list.
type ChangedFile struct {
	Path      string
	Status    string // added, modified, removed, renamed
	Additions int
	Deletions int
	Patch     string // unified diff hunk, used by the ai-rule gate's file_patches capability
}

// Artifact is a CI-produced build artifact, addressable for download by the
// external artifact subsystem (spec §4.7).
type Artifact struct {
	ID        int64
	Name      string
	SizeBytes int64
}

// CheckRunStatus is the forge-neutral status a check run can be in.
type CheckRunStatus string

const (
	CheckRunQueued     CheckRunStatus = "queued"
	CheckRunInProgress CheckRunStatus = "in_progress"
	CheckRunCompleted  CheckRunStatus = "completed"
)

// CheckRunConclusion is the forge-neutral conclusion of a completed check run.
type CheckRunConclusion string

const (
	CheckRunSuccess CheckRunConclusion = "success"
	CheckRunFailure CheckRunConclusion = "failure"
	CheckRunNeutral CheckRunConclusion = "neutral"
)

// AnnotationLevel is the forge-neutral severity of an inline annotation
// (spec §4.9: "map level=error to a failure annotation, anything else to a
// warning annotation").
type AnnotationLevel string

const (
	AnnotationNotice  AnnotationLevel = "notice"
	AnnotationWarning AnnotationLevel = "warning"
	AnnotationFailure AnnotationLevel = "failure"
)

// Annotation is one inline file/line comment attached to a check run (spec
// §4.9). StartColumn/EndColumn are only meaningful when StartLine ==
// EndLine, per the GitHub Checks API they're modeled on.
type Annotation struct {
	Path            string
	StartLine       int
	EndLine         int
	StartColumn     *int
	EndColumn       *int
	AnnotationLevel AnnotationLevel
	Message         string
}

// CheckRunInput creates a new check run.
type CheckRunInput struct {
	Name        string
	HeadSHA     string
	Status      CheckRunStatus
	Conclusion  CheckRunConclusion // only meaningful when Status is completed
	Title       string
	Summary     string
	Text        string
	DetailsURL  string
	Annotations []Annotation
}

// CheckRunUpdate updates an existing check run in place (spec §4.9: the
// check is updated idempotently across both lifecycle phases, never
// recreated). Name and HeadSHA are redundant with the original
// CreateCheckRun call on GitHub (which addresses the check by its opaque
// ID) but are required on GitLab, whose commit-status API has no update
// operation and instead re-sets the status by (sha, name).
type CheckRunUpdate struct {
	Name        string
	HeadSHA     string
	Status      CheckRunStatus
	Conclusion  CheckRunConclusion
	Title       string
	Summary     string
	Text        string
	Annotations []Annotation
}

// CheckRun is a created or updated check run, as the forge reports it back.
type CheckRun struct {
	ID         int64
	Name       string
	Status     CheckRunStatus
	Conclusion CheckRunConclusion
}
