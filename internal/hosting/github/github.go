// Package github implements hosting.Provider against the GitHub REST API
// via go-github.
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	gogithub "github.com/google/go-github/v82/github"

	"github.com/policyforge/engine/internal/hosting"
)

var _ hosting.Provider = (*GitHubProvider)(nil)

func init() {
	hosting.RegisterProvider(hosting.ProviderGitHub, newProvider)
}

// GitHubProvider implements hosting.Provider using the go-github library.
type GitHubProvider struct {
	client *gogithub.Client
	owner  string
	repo   string
}

func newProvider(cfg hosting.Config) (hosting.Provider, error) {
	token, err := resolveToken(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("github provider requires owner and repo")
	}

	httpClient := &http.Client{Transport: &oauth2Transport{token: token}}
	client := gogithub.NewClient(httpClient)

	if cfg.BaseURL != "" {
		baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
		var parseErr error
		client.BaseURL, parseErr = client.BaseURL.Parse(baseURL + "/api/v3/")
		if parseErr != nil {
			return nil, fmt.Errorf("parse base URL %q: %w", cfg.BaseURL, parseErr)
		}
		client.UploadURL, parseErr = client.UploadURL.Parse(baseURL + "/api/uploads/")
		if parseErr != nil {
			return nil, fmt.Errorf("parse upload URL %q: %w", cfg.BaseURL, parseErr)
		}
	}

	return &GitHubProvider{client: client, owner: cfg.Owner, repo: cfg.Repo}, nil
}

// oauth2Transport adds an Authorization header to every request.
type oauth2Transport struct {
	token string
	base  http.RoundTripper
}

func (t *oauth2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "Bearer "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req2)
}

func (g *GitHubProvider) Name() hosting.ProviderType { return hosting.ProviderGitHub }

func (g *GitHubProvider) OwnerRepo() (string, string) { return g.owner, g.repo }

func (g *GitHubProvider) CheckAuth(ctx context.Context) error {
	_, _, err := g.client.Users.Get(ctx, "")
	if err != nil {
		return fmt.Errorf("check auth: %w", err)
	}
	return nil
}

// GetPR fetches PR metadata (spec §4.1: used to build the run context).
func (g *GitHubProvider) GetPR(ctx context.Context, number int) (*hosting.PR, error) {
	pr, _, err := g.client.PullRequests.Get(ctx, g.owner, g.repo, number)
	if err != nil {
		return nil, fmt.Errorf("get PR %d: %w", number, err)
	}
	return mapPR(pr), nil
}

// ListChangedFiles lists a PR's changed files, used by review-limits'
// changed-file count fallback and by the ai-rule gate's diff summary and
// patch evidence.
func (g *GitHubProvider) ListChangedFiles(ctx context.Context, number int) ([]hosting.ChangedFile, error) {
	var all []*gogithub.CommitFile
	opts := &gogithub.ListOptions{PerPage: 100}
	for {
		files, resp, err := g.client.PullRequests.ListFiles(ctx, g.owner, g.repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list files for PR %d: %w", number, err)
		}
		all = append(all, files...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	result := make([]hosting.ChangedFile, 0, len(all))
	for _, f := range all {
		result = append(result, hosting.ChangedFile{
			Path:      f.GetFilename(),
			Status:    f.GetStatus(),
			Additions: f.GetAdditions(),
			Deletions: f.GetDeletions(),
			Patch:     f.GetPatch(),
		})
	}
	return result, nil
}

// GetContentAtRef fetches a single file's content at a commit, used by the
// governance-policy gate to read the workflow files it checks (ai-rule
// loads its rule documents through the policy Loader instead). A 404 is
// reported as hosting.ErrNotFound.
func (g *GitHubProvider) GetContentAtRef(ctx context.Context, path, ref string) ([]byte, error) {
	content, _, resp, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, path,
		&gogithub.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("get content of %q at %q: %w", path, ref, hosting.ErrNotFound)
		}
		return nil, fmt.Errorf("get content of %q at %q: %w", path, ref, err)
	}
	if content == nil {
		return nil, fmt.Errorf("get content of %q at %q: not a file", path, ref)
	}
	decoded, err := content.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode content of %q at %q: %w", path, ref, err)
	}
	return []byte(decoded), nil
}

// FindPRsForCommit resolves a commit SHA back to the open PRs it belongs to,
// used when a check suite rerun arrives with only a commit SHA (spec §4.9).
func (g *GitHubProvider) FindPRsForCommit(ctx context.Context, sha string) ([]hosting.PR, error) {
	prs, _, err := g.client.PullRequests.ListPullRequestsWithCommit(ctx, g.owner, g.repo, sha, nil)
	if err != nil {
		return nil, fmt.Errorf("find PRs for commit %q: %w", sha, err)
	}
	result := make([]hosting.PR, 0, len(prs))
	for _, pr := range prs {
		if pr.GetState() != "open" {
			continue
		}
		result = append(result, *mapPR(pr))
	}
	return result, nil
}

// ListArtifacts lists the artifacts of the single workflow run most relevant
// to headSHA, so the external artifact subsystem can locate the one it needs
// by name (spec §4.7). When ciRunID is set (phase 2, spec §4.9) it is fetched
// directly; otherwise runs triggered by the pull request are ranked by the
// selection in selectWorkflowRun (spec §4.6/C9).
func (g *GitHubProvider) ListArtifacts(ctx context.Context, headSHA, ciRunID string) ([]hosting.Artifact, error) {
	var run *gogithub.WorkflowRun
	if ciRunID != "" {
		id, err := strconv.ParseInt(ciRunID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse CI run ID %q: %w", ciRunID, err)
		}
		run, _, err = g.client.Actions.GetWorkflowRunByID(ctx, g.owner, g.repo, id)
		if err != nil {
			return nil, fmt.Errorf("get workflow run %d: %w", id, err)
		}
	} else {
		runs, _, err := g.client.Actions.ListRepositoryWorkflowRuns(ctx, g.owner, g.repo, &gogithub.ListWorkflowRunsOptions{
			HeadSHA:     headSHA,
			ListOptions: gogithub.ListOptions{PerPage: 30},
		})
		if err != nil {
			return nil, fmt.Errorf("list workflow runs for %q: %w", headSHA, err)
		}
		run = selectWorkflowRun(runs.WorkflowRuns)
		if run == nil {
			return nil, nil
		}
	}

	artifacts, _, err := g.client.Actions.ListWorkflowRunArtifacts(ctx, g.owner, g.repo, run.GetID(), nil)
	if err != nil {
		return nil, fmt.Errorf("list artifacts for run %d: %w", run.GetID(), err)
	}
	result := make([]hosting.Artifact, 0, len(artifacts.Artifacts))
	for _, a := range artifacts.Artifacts {
		result = append(result, hosting.Artifact{
			ID:        a.GetID(),
			Name:      a.GetName(),
			SizeBytes: a.GetSizeInBytes(),
		})
	}
	return result, nil
}

// selectWorkflowRun implements the CI-run-selection algorithm (spec §4.6/C9):
// among runs triggered by the pull request event, the one with a successful
// conclusion wins; failing that, the most recently updated completed run.
func selectWorkflowRun(runs []*gogithub.WorkflowRun) *gogithub.WorkflowRun {
	var candidates []*gogithub.WorkflowRun
	for _, run := range runs {
		if run.GetEvent() == "pull_request" {
			candidates = append(candidates, run)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].GetUpdatedAt().After(candidates[j].GetUpdatedAt().Time)
	})

	for _, run := range candidates {
		if run.GetConclusion() == "success" {
			return run
		}
	}
	for _, run := range candidates {
		if run.GetStatus() == "completed" {
			return run
		}
	}
	return candidates[0]
}

// DownloadArtifact downloads an artifact's ZIP bundle.
func (g *GitHubProvider) DownloadArtifact(ctx context.Context, artifact hosting.Artifact) ([]byte, error) {
	url, _, err := g.client.Actions.DownloadArtifact(ctx, g.owner, g.repo, artifact.ID, 3)
	if err != nil {
		return nil, fmt.Errorf("resolve download URL for artifact %d: %w", artifact.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download artifact %d: %w", artifact.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download artifact %d: unexpected status %d", artifact.ID, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read artifact %d body: %w", artifact.ID, err)
	}
	return data, nil
}

// CreateCheckRun creates a new check run (spec §4.9 phase 1).
func (g *GitHubProvider) CreateCheckRun(ctx context.Context, in hosting.CheckRunInput) (*hosting.CheckRun, error) {
	opts := gogithub.CreateCheckRunOptions{
		Name:    in.Name,
		HeadSHA: in.HeadSHA,
		Status:  gogithub.Ptr(string(in.Status)),
	}
	if in.Status == hosting.CheckRunCompleted {
		opts.Conclusion = gogithub.Ptr(string(in.Conclusion))
	}
	if in.Title != "" || in.Summary != "" || in.Text != "" {
		opts.Output = &gogithub.CheckRunOutput{
			Title:   gogithub.Ptr(in.Title),
			Summary: gogithub.Ptr(in.Summary),
			Text:    gogithub.Ptr(in.Text),
		}
	}
	if in.DetailsURL != "" {
		opts.DetailsURL = gogithub.Ptr(in.DetailsURL)
	}
	if len(in.Annotations) > 0 {
		if opts.Output == nil {
			opts.Output = &gogithub.CheckRunOutput{Title: gogithub.Ptr(in.Title), Summary: gogithub.Ptr(in.Summary)}
		}
		opts.Output.Annotations = mapAnnotations(in.Annotations)
	}

	cr, _, err := g.client.Checks.CreateCheckRun(ctx, g.owner, g.repo, opts)
	if err != nil {
		return nil, fmt.Errorf("create check run %q: %w", in.Name, err)
	}
	return mapCheckRun(cr), nil
}

// UpdateCheckRun updates a check run in place (spec §4.9: phase 2 updates
// the same check, it never creates a second one).
func (g *GitHubProvider) UpdateCheckRun(ctx context.Context, checkRunID int64, update hosting.CheckRunUpdate) error {
	opts := gogithub.UpdateCheckRunOptions{
		Status: gogithub.Ptr(string(update.Status)),
	}
	if update.Status == hosting.CheckRunCompleted {
		opts.Conclusion = gogithub.Ptr(string(update.Conclusion))
	}
	if update.Title != "" || update.Summary != "" || update.Text != "" {
		opts.Output = &gogithub.CheckRunOutput{
			Title:   gogithub.Ptr(update.Title),
			Summary: gogithub.Ptr(update.Summary),
			Text:    gogithub.Ptr(update.Text),
		}
	}
	if len(update.Annotations) > 0 {
		if opts.Output == nil {
			opts.Output = &gogithub.CheckRunOutput{Title: gogithub.Ptr(update.Title), Summary: gogithub.Ptr(update.Summary)}
		}
		opts.Output.Annotations = mapAnnotations(update.Annotations)
	}

	_, _, err := g.client.Checks.UpdateCheckRun(ctx, g.owner, g.repo, checkRunID, opts)
	if err != nil {
		return fmt.Errorf("update check run %d: %w", checkRunID, err)
	}
	return nil
}

// mapAnnotations converts annotations into go-github's annotation type,
// without capping their number. The caller (internal/checklifecycle) is
// responsible for enforcing the overall 50-annotation limit (spec §4.9);
// this just translates whatever it's given.
func mapAnnotations(annotations []hosting.Annotation) []*gogithub.CheckRunAnnotation {
	out := make([]*gogithub.CheckRunAnnotation, 0, len(annotations))
	for _, a := range annotations {
		ann := &gogithub.CheckRunAnnotation{
			Path:            gogithub.Ptr(a.Path),
			StartLine:       gogithub.Ptr(a.StartLine),
			EndLine:         gogithub.Ptr(a.EndLine),
			AnnotationLevel: gogithub.Ptr(string(a.AnnotationLevel)),
			Message:         gogithub.Ptr(a.Message),
		}
		if a.StartLine == a.EndLine {
			ann.StartColumn = a.StartColumn
			ann.EndColumn = a.EndColumn
		}
		out = append(out, ann)
	}
	return out
}

func mapPR(pr *gogithub.PullRequest) *hosting.PR {
	return &hosting.PR{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		Body:      pr.GetBody(),
		HeadSHA:   pr.GetHead().GetSHA(),
		BaseSHA:   pr.GetBase().GetSHA(),
		HeadRef:   pr.GetHead().GetRef(),
		BaseRef:   pr.GetBase().GetRef(),
		Draft:     pr.GetDraft(),
		Additions: pr.GetAdditions(),
		Deletions: pr.GetDeletions(),
	}
}

func mapCheckRun(cr *gogithub.CheckRun) *hosting.CheckRun {
	return &hosting.CheckRun{
		ID:         cr.GetID(),
		Name:       cr.GetName(),
		Status:     hosting.CheckRunStatus(cr.GetStatus()),
		Conclusion: hosting.CheckRunConclusion(cr.GetConclusion()),
	}
}
