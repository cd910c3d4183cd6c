// Package gitlab implements hosting.Provider against the GitLab REST API via
// gitlab.com/gitlab-org/api/client-go.
package gitlab

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	gogitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/policyforge/engine/internal/hosting"
)

var _ hosting.Provider = (*GitLabProvider)(nil)

func init() {
	hosting.RegisterProvider(hosting.ProviderGitLab, newProvider)
}

// GitLabProvider implements hosting.Provider using the go-gitlab library.
type GitLabProvider struct {
	client    *gogitlab.Client
	projectID string
	owner     string
	repo      string
}

func newProvider(cfg hosting.Config) (hosting.Provider, error) {
	token, err := resolveToken(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("gitlab provider requires owner and repo")
	}

	var client *gogitlab.Client
	if cfg.BaseURL != "" {
		baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
		client, err = gogitlab.NewClient(token, gogitlab.WithBaseURL(baseURL+"/api/v4"))
	} else {
		client, err = gogitlab.NewClient(token)
	}
	if err != nil {
		return nil, fmt.Errorf("create GitLab client: %w", err)
	}

	return &GitLabProvider{
		client:    client,
		projectID: cfg.Owner + "/" + cfg.Repo,
		owner:     cfg.Owner,
		repo:      cfg.Repo,
	}, nil
}

func (g *GitLabProvider) Name() hosting.ProviderType { return hosting.ProviderGitLab }

func (g *GitLabProvider) OwnerRepo() (string, string) { return g.owner, g.repo }

func (g *GitLabProvider) CheckAuth(ctx context.Context) error {
	_, _, err := g.client.Users.CurrentUser(gogitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check auth: %w", err)
	}
	return nil
}

// GetPR fetches merge-request metadata.
func (g *GitLabProvider) GetPR(ctx context.Context, number int) (*hosting.PR, error) {
	mr, _, err := g.client.MergeRequests.GetMergeRequest(g.projectID, int64(number), nil, gogitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get MR %d: %w", number, err)
	}
	return mapMR(mr), nil
}

// ListChangedFiles lists a merge request's changed files.
func (g *GitLabProvider) ListChangedFiles(ctx context.Context, number int) ([]hosting.ChangedFile, error) {
	diffs, _, err := g.client.MergeRequests.ListMergeRequestDiffs(g.projectID, int64(number), nil, gogitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list diffs for MR %d: %w", number, err)
	}

	result := make([]hosting.ChangedFile, 0, len(diffs))
	for _, d := range diffs {
		status := "modified"
		switch {
		case d.NewFile:
			status = "added"
		case d.DeletedFile:
			status = "removed"
		case d.RenamedFile:
			status = "renamed"
		}
		additions, deletions := countDiffLines(d.Diff)
		result = append(result, hosting.ChangedFile{
			Path:      d.NewPath,
			Status:    status,
			Additions: additions,
			Deletions: deletions,
			Patch:     d.Diff,
		})
	}
	return result, nil
}

// countDiffLines counts +/- lines in a unified diff hunk, since GitLab's
// diff API does not report per-file counts the way GitHub's does.
func countDiffLines(diff string) (additions, deletions int) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			continue
		case strings.HasPrefix(line, "+"):
			additions++
		case strings.HasPrefix(line, "-"):
			deletions++
		}
	}
	return additions, deletions
}

// GetContentAtRef fetches a single file's raw content at a commit. A 404 is
// reported as hosting.ErrNotFound.
func (g *GitLabProvider) GetContentAtRef(ctx context.Context, path, ref string) ([]byte, error) {
	raw, resp, err := g.client.RepositoryFiles.GetRawFile(g.projectID, path, &gogitlab.GetRawFileOptions{
		Ref: gogitlab.Ptr(ref),
	}, gogitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("get content of %q at %q: %w", path, ref, hosting.ErrNotFound)
		}
		return nil, fmt.Errorf("get content of %q at %q: %w", path, ref, err)
	}
	return raw, nil
}

// FindPRsForCommit resolves a commit SHA back to the open merge requests it
// belongs to.
func (g *GitLabProvider) FindPRsForCommit(ctx context.Context, sha string) ([]hosting.PR, error) {
	mrs, _, err := g.client.Commits.ListMergeRequestsByCommit(g.projectID, sha, gogitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("find MRs for commit %q: %w", sha, err)
	}
	var result []hosting.PR
	for _, mr := range mrs {
		if mr.State != "opened" {
			continue
		}
		result = append(result, *mapBasicMR(mr))
	}
	return result, nil
}

// ListArtifacts lists job artifacts for the pipeline most relevant to
// headSHA (spec §4.7). When ciRunID is set (phase 2, spec §4.9) it pins the
// lookup to that pipeline directly; otherwise pipelines triggered by the
// merge request are ranked by the selection in selectPipeline (spec §4.6/C9).
func (g *GitLabProvider) ListArtifacts(ctx context.Context, headSHA, ciRunID string) ([]hosting.Artifact, error) {
	var pipelineID int64
	if ciRunID != "" {
		id, err := strconv.ParseInt(ciRunID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse CI run ID %q: %w", ciRunID, err)
		}
		pipelineID = id
	} else {
		pipelines, _, err := g.client.Pipelines.ListProjectPipelines(g.projectID, &gogitlab.ListProjectPipelinesOptions{
			SHA:         gogitlab.Ptr(headSHA),
			ListOptions: gogitlab.ListOptions{PerPage: 30},
		}, gogitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list pipelines for %q: %w", headSHA, err)
		}
		pipeline := selectPipeline(pipelines)
		if pipeline == nil {
			return nil, nil
		}
		pipelineID = pipeline.ID
	}

	jobs, _, err := g.client.Jobs.ListPipelineJobs(g.projectID, pipelineID, nil, gogitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list pipeline jobs for pipeline %d: %w", pipelineID, err)
	}

	var result []hosting.Artifact
	for _, job := range jobs {
		for _, a := range job.Artifacts {
			result = append(result, hosting.Artifact{
				ID:        int64(job.ID),
				Name:      a.Filename,
				SizeBytes: a.Size,
			})
		}
	}
	return result, nil
}

// selectPipeline implements the CI-run-selection algorithm (spec §4.6/C9):
// among pipelines triggered by the merge request event, the one with a
// successful status wins; failing that, the most recently updated one that
// has finished running.
func selectPipeline(pipelines []*gogitlab.PipelineInfo) *gogitlab.PipelineInfo {
	var candidates []*gogitlab.PipelineInfo
	for _, p := range pipelines {
		if p.Source == "merge_request_event" {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].UpdatedAt.After(*candidates[j].UpdatedAt)
	})

	for _, p := range candidates {
		if p.Status == "success" {
			return p
		}
	}
	for _, p := range candidates {
		switch p.Status {
		case "success", "failed", "canceled", "skipped":
			return p
		}
	}
	return candidates[0]
}

// DownloadArtifact downloads a job's full artifact archive (a ZIP bundle,
// matching the shape the GitHub provider returns). The Artifact.ID field
// carries the GitLab job ID (GitLab addresses artifacts by job, not by a
// standalone artifact ID).
func (g *GitLabProvider) DownloadArtifact(ctx context.Context, artifact hosting.Artifact) ([]byte, error) {
	reader, resp, err := g.client.Jobs.GetJobArtifacts(g.projectID, int(artifact.ID), gogitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("download artifacts for job %d: %w", artifact.ID, err)
	}
	if resp != nil && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download artifacts for job %d: unexpected status %d", artifact.ID, resp.StatusCode)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read artifact archive for job %d: %w", artifact.ID, err)
	}
	return data, nil
}

// CreateCheckRun creates a commit status, GitLab's equivalent of a GitHub
// check run (spec §4.9 phase 1). GitLab's commit-status API has no inline
// file/line annotation concept (unlike GitHub Checks), so annotations are
// folded into the description as a count. Only the Summary (plus that
// count) is sent as the status description, and TargetURL is set only from
// DetailsURL; Title, Text and the annotation detail are not sent, and
// nothing is posted to the merge request itself.
func (g *GitLabProvider) CreateCheckRun(ctx context.Context, in hosting.CheckRunInput) (*hosting.CheckRun, error) {
	description := in.Summary
	if n := len(in.Annotations); n > 0 {
		description = fmt.Sprintf("%s (%d annotation(s) — see details)", description, n)
	}
	opts := &gogitlab.SetCommitStatusOptions{
		State:       mapStatusToGitLabState(in.Status, in.Conclusion),
		Name:        gogitlab.Ptr(in.Name),
		Description: gogitlab.Ptr(description),
	}
	if in.DetailsURL != "" {
		opts.TargetURL = gogitlab.Ptr(in.DetailsURL)
	}

	status, _, err := g.client.Commits.SetCommitStatus(g.projectID, in.HeadSHA, opts, gogitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("create commit status %q: %w", in.Name, err)
	}
	return mapCommitStatus(status), nil
}

// UpdateCheckRun sets a new commit status; GitLab has no notion of updating
// one in place, so each call re-sets the status under the same (sha, name)
// pair, which GitLab coalesces into a single entry in its UI (spec §4.9:
// idempotent from the caller's perspective).
func (g *GitLabProvider) UpdateCheckRun(ctx context.Context, checkRunID int64, update hosting.CheckRunUpdate) error {
	if update.HeadSHA == "" || update.Name == "" {
		return fmt.Errorf("gitlab: UpdateCheckRun requires HeadSHA and Name to re-set the commit status")
	}
	_, err := g.CreateCheckRun(ctx, hosting.CheckRunInput{
		Name:        update.Name,
		HeadSHA:     update.HeadSHA,
		Status:      update.Status,
		Conclusion:  update.Conclusion,
		Title:       update.Title,
		Summary:     update.Summary,
		Text:        update.Text,
		Annotations: update.Annotations,
	})
	return err
}

func mapStatusToGitLabState(status hosting.CheckRunStatus, conclusion hosting.CheckRunConclusion) gogitlab.BuildStateValue {
	if status != hosting.CheckRunCompleted {
		return gogitlab.Running
	}
	switch conclusion {
	case hosting.CheckRunSuccess, hosting.CheckRunNeutral:
		return gogitlab.Success
	default:
		return gogitlab.Failed
	}
}

func mapCommitStatus(s *gogitlab.CommitStatus) *hosting.CheckRun {
	status := hosting.CheckRunInProgress
	var conclusion hosting.CheckRunConclusion
	switch s.Status {
	case "success":
		status, conclusion = hosting.CheckRunCompleted, hosting.CheckRunSuccess
	case "failed", "canceled":
		status, conclusion = hosting.CheckRunCompleted, hosting.CheckRunFailure
	}
	return &hosting.CheckRun{
		ID:         int64(s.ID),
		Name:       s.Name,
		Status:     status,
		Conclusion: conclusion,
	}
}

func mapMR(mr *gogitlab.MergeRequest) *hosting.PR {
	return &hosting.PR{
		Number:  int(mr.IID),
		Title:   mr.Title,
		Body:    mr.Description,
		HeadSHA: mr.SHA,
		BaseSHA: mr.DiffRefs.BaseSha,
		HeadRef: mr.SourceBranch,
		BaseRef: mr.TargetBranch,
		Draft:   mr.Draft || mr.WorkInProgress,
	}
}

func mapBasicMR(mr *gogitlab.MergeRequest) *hosting.PR {
	return &hosting.PR{
		Number:  int(mr.IID),
		Title:   mr.Title,
		Body:    mr.Description,
		HeadSHA: mr.SHA,
		HeadRef: mr.SourceBranch,
		BaseRef: mr.TargetBranch,
		Draft:   mr.Draft,
	}
}
