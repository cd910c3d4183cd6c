// Package checklifecycle is the Two-Phase Check Lifecycle (spec §4.9, "C7"):
// it is the only component that talks to the forge's check-run API. Phase 1
// runs on a PR event and publishes an in-progress check with artifact gates
// deferred; Phase 2 runs on CI completion (or an explicit rerun request) and
// patches that same check once artifact evidence is available. The
// outstanding-check map is the sole piece of state that survives between
// the two (spec §5 "Shared-resource policy").
package checklifecycle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/policyforge/engine/internal/aiworkflow"
	"github.com/policyforge/engine/internal/config"
	polerrs "github.com/policyforge/engine/internal/errors"
	"github.com/policyforge/engine/internal/gatekit"
	"github.com/policyforge/engine/internal/hosting"
	"github.com/policyforge/engine/internal/policy"
	"github.com/policyforge/engine/internal/render"
	"github.com/policyforge/engine/internal/runrt"
)

// Manager owns one repository's outstanding-check state and the
// collaborators needed to run a check through both lifecycle phases.
type Manager struct {
	Provider    hosting.Provider
	Loader      policy.Loader
	AIWorkflows map[string]aiworkflow.Client
	Config      *config.Config
	Store       *Store
	Logger      *slog.Logger
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// HandlePullRequestEvent is Phase 1 (spec §4.9): it runs on pr.opened,
// pr.synchronized, and pr.reopened alike, since all three have the same
// handling — evaluate the current head with artifact gates deferred and
// publish an in-progress check.
func (m *Manager) HandlePullRequestEvent(ctx context.Context, repoFullName string, prNumber int) error {
	pr, err := m.Provider.GetPR(ctx, prNumber)
	if err != nil {
		return polerrs.ErrPolicyTransient(err)
	}

	doc, policyHash, loadErr := m.loadPolicy(ctx, repoFullName, pr.HeadSHA)
	if loadErr != nil {
		return m.publishLoadFailure(ctx, pr, loadErr)
	}

	changedFiles, err := m.Provider.ListChangedFiles(ctx, prNumber)
	if err != nil {
		return fmt.Errorf("list changed files for PR %d: %w", prNumber, err)
	}

	rc := m.runContext(ctx, repoFullName, pr, toGatekitChangedFiles(changedFiles), doc, true, "")
	result := runrt.Run(rc, doc)
	out := render.Render(result, doc, pr.Number)

	check, err := m.Provider.CreateCheckRun(ctx, hosting.CheckRunInput{
		Name:    m.Config.CheckName,
		HeadSHA: pr.HeadSHA,
		Status:  hosting.CheckRunInProgress,
		Title:   out.Summary,
		Summary: out.Summary,
		Text:    out.Text,
	})
	if err != nil {
		return fmt.Errorf("publish in-progress check for PR %d: %w", prNumber, err)
	}

	key := Key(repoFullName, pr.Number, pr.HeadSHA, policyHash)
	m.Store.Put(key, check.ID, policyHash)
	return nil
}

// HandleCIRunCompleted is Phase 2's CI-completion path (spec §4.9): it
// locates the open PR whose head matches, enforces the staleness guard,
// re-runs the orchestrator with artifact gates enabled, and patches the
// outstanding check (or creates a fresh one on out-of-order delivery).
func (m *Manager) HandleCIRunCompleted(ctx context.Context, repoFullName, headSHA, ciRunID string) error {
	pr, err := m.resolveOpenPRForHead(ctx, headSHA)
	if err != nil {
		return err
	}
	if pr == nil {
		// Stale event: no open PR currently has this head. Silently drop it
		// rather than comment on a commit that has since been superseded.
		m.logger().Info("dropping stale CI-completion event", "repo", repoFullName, "head_sha", headSHA)
		return nil
	}

	doc, policyHash, loadErr := m.loadPolicy(ctx, repoFullName, pr.HeadSHA)
	if loadErr != nil {
		_, err := m.publishLoadFailureReturningCheck(ctx, pr, loadErr)
		return err
	}

	return m.runAndPublish(ctx, repoFullName, pr, doc, policyHash, ciRunID)
}

// HandleRerunRequested is Phase 2's rerun path (spec §4.9): it resolves the
// associated PR by the precedence order the spec mandates, and refuses to
// touch anything if resolution is ambiguous (the fork/ambiguity fail-safe).
func (m *Manager) HandleRerunRequested(ctx context.Context, repoFullName string, req RerunRequest) error {
	pr, err := m.resolveRerunPR(ctx, req)
	if err != nil {
		var pe *polerrs.PolicyError
		if polerrs.As(err, &pe) {
			_, pubErr := m.Provider.CreateCheckRun(ctx, hosting.CheckRunInput{
				Name:       m.Config.CheckName,
				HeadSHA:    req.HeadSHA,
				Status:     hosting.CheckRunCompleted,
				Conclusion: hosting.CheckRunNeutral,
				Title:      pe.What,
				Summary:    pe.What,
				Text:       pe.UserMessage(),
			})
			return pubErr
		}
		return err
	}

	doc, policyHash, loadErr := m.loadPolicy(ctx, repoFullName, pr.HeadSHA)
	if loadErr != nil {
		_, err := m.publishLoadFailureReturningCheck(ctx, pr, loadErr)
		return err
	}

	return m.runAndPublish(ctx, repoFullName, pr, doc, policyHash, "")
}

// RerunRequest carries the fields available on a check_suite/check_run
// rerequested event (spec §4.9 Phase 2 rerun).
type RerunRequest struct {
	AttachedPRNumber int // 0 if the payload carries no direct PR reference
	HeadSHA          string
	BranchName       string // "" if unavailable
}

// resolveRerunPR implements the precedence order from spec §4.9: a directly
// attached PR wins; otherwise an exact head-fingerprint match among commit
// associated PRs; otherwise a branch-name match among that same candidate
// set (the narrow hosting.Provider interface has no standalone
// list-PRs-by-branch capability, so steps 3 and 4 of the spec's order
// collapse onto the same FindPRsForCommit result — see DESIGN.md).
func (m *Manager) resolveRerunPR(ctx context.Context, req RerunRequest) (*hosting.PR, error) {
	if req.AttachedPRNumber != 0 {
		pr, err := m.Provider.GetPR(ctx, req.AttachedPRNumber)
		if err != nil {
			return nil, polerrs.ErrAmbiguousRerunPR()
		}
		return pr, nil
	}

	candidates, err := m.Provider.FindPRsForCommit(ctx, req.HeadSHA)
	if err != nil {
		return nil, polerrs.ErrAmbiguousRerunPR()
	}

	var exact []hosting.PR
	for _, c := range candidates {
		if c.HeadSHA == req.HeadSHA {
			exact = append(exact, c)
		}
	}
	if len(exact) == 1 {
		return &exact[0], nil
	}

	if req.BranchName != "" {
		var byBranch []hosting.PR
		for _, c := range candidates {
			if c.HeadRef == req.BranchName {
				byBranch = append(byBranch, c)
			}
		}
		if len(byBranch) == 1 {
			return &byBranch[0], nil
		}
	}

	return nil, polerrs.ErrAmbiguousRerunPR()
}

// resolveOpenPRForHead finds the open PR whose current head matches headSHA
// exactly, enforcing the staleness guard (spec §4.9: "reject stale events
// whose head no longer matches the current PR head"). It returns (nil, nil)
// when no open PR currently has this head — the caller treats that as a
// stale event to drop, not an error.
func (m *Manager) resolveOpenPRForHead(ctx context.Context, headSHA string) (*hosting.PR, error) {
	candidates, err := m.Provider.FindPRsForCommit(ctx, headSHA)
	if err != nil {
		return nil, fmt.Errorf("find PRs for commit %q: %w", headSHA, err)
	}
	for _, c := range candidates {
		current, err := m.Provider.GetPR(ctx, c.Number)
		if err != nil {
			continue
		}
		if current.HeadSHA == headSHA {
			return current, nil
		}
	}
	return nil, nil
}

// runAndPublish re-runs the orchestrator with artifact gates enabled and
// either patches the outstanding check or creates a fresh one (spec §4.9:
// "If no outstanding id exists (out-of-order delivery), create a fresh
// check"), attaching up to the configured cap of inline annotations.
func (m *Manager) runAndPublish(ctx context.Context, repoFullName string, pr *hosting.PR, doc *policy.Document, policyHash, ciRunID string) error {
	changedFiles, err := m.Provider.ListChangedFiles(ctx, pr.Number)
	if err != nil {
		return fmt.Errorf("list changed files for PR %d: %w", pr.Number, err)
	}

	rc := m.runContext(ctx, repoFullName, pr, toGatekitChangedFiles(changedFiles), doc, false, ciRunID)
	result := runrt.Run(rc, doc)
	out := render.Render(result, doc, pr.Number)

	maxAnnotations := 50
	if m.Config != nil && m.Config.MaxAnnotations > 0 {
		maxAnnotations = m.Config.MaxAnnotations
	}
	annotations, truncated, eligible := buildAnnotations(result.Gates, maxAnnotations)
	text := out.Text
	if truncated {
		text += truncationNote(eligible, len(annotations))
	}

	update := hosting.CheckRunUpdate{
		Name:        m.Config.CheckName,
		HeadSHA:     pr.HeadSHA,
		Status:      hosting.CheckRunCompleted,
		Conclusion:  conclusionFor(result.OverallStatus),
		Title:       out.Summary,
		Summary:     out.Summary,
		Text:        text,
		Annotations: annotations,
	}

	key := Key(repoFullName, pr.Number, pr.HeadSHA, policyHash)
	if entry, ok := m.Store.Get(key); ok {
		return m.Provider.UpdateCheckRun(ctx, entry.CheckID, update)
	}

	check, err := m.Provider.CreateCheckRun(ctx, hosting.CheckRunInput{
		Name:        update.Name,
		HeadSHA:     update.HeadSHA,
		Status:      update.Status,
		Conclusion:  update.Conclusion,
		Title:       update.Title,
		Summary:     update.Summary,
		Text:        update.Text,
		Annotations: update.Annotations,
	})
	if err != nil {
		return fmt.Errorf("create check for PR %d: %w", pr.Number, err)
	}
	m.Store.Put(key, check.ID, policyHash)
	return nil
}

// publishLoadFailure handles a policy-load error during Phase 1 (spec §4.9):
// the check is published completed, with conclusion and body driven by the
// classified error.
func (m *Manager) publishLoadFailure(ctx context.Context, pr *hosting.PR, loadErr error) error {
	_, err := m.publishLoadFailureReturningCheck(ctx, pr, loadErr)
	return err
}

func (m *Manager) publishLoadFailureReturningCheck(ctx context.Context, pr *hosting.PR, loadErr error) (*hosting.CheckRun, error) {
	var pe *polerrs.PolicyError
	if !polerrs.As(loadErr, &pe) {
		pe = polerrs.ErrPolicyTransient(loadErr)
	}

	conclusion := hosting.CheckRunNeutral
	if pe.Conclusion() == polerrs.ConclusionFailure {
		conclusion = hosting.CheckRunFailure
	}

	return m.Provider.CreateCheckRun(ctx, hosting.CheckRunInput{
		Name:       m.Config.CheckName,
		HeadSHA:    pr.HeadSHA,
		Status:     hosting.CheckRunCompleted,
		Conclusion: conclusion,
		Title:      pe.What,
		Summary:    pe.What,
		Text:       pe.UserMessage(),
	})
}

// loadPolicy fetches and hashes the policy document for (repo, headSHA).
// The hash is part of the outstanding-check key (spec §6) so that two
// policy snapshots at the same head (a rare but possible rewrite of history
// between phase 1 and phase 2) never collide on the same entry.
func (m *Manager) loadPolicy(ctx context.Context, repoFullName, headSHA string) (*policy.Document, string, error) {
	doc, err := m.Loader.LoadPolicy(ctx, repoFullName, headSHA)
	if err != nil {
		return nil, "", err
	}
	hash, err := policyHash(doc)
	if err != nil {
		return nil, "", err
	}
	return doc, hash, nil
}

func policyHash(doc *policy.Document) (string, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("hash policy document: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (m *Manager) runContext(ctx context.Context, repoFullName string, pr *hosting.PR, changedFiles []gatekit.ChangedFile, doc *policy.Document, deferArtifacts bool, ciRunID string) *gatekit.RunContext {
	policyRoot := ""
	var governance config.GovernanceConfig
	if m.Config != nil {
		policyRoot = m.Config.PolicyRoot
		governance = m.Config.Governance
	}
	return &gatekit.RunContext{
		Context:        ctx,
		PR:             mapPR(pr, changedFiles),
		Policy:         doc,
		Forge:          forgeAdapter{provider: m.Provider},
		Logger:         m.logger(),
		DeferArtifacts: deferArtifacts,
		CIRunID:        ciRunID,
		PolicyRoot:     policyRoot,
		AIWorkflows:    m.AIWorkflows,
		Governance:     governance,
		Loader:         m.Loader,
		RepoFullName:   repoFullName,
	}
}

func toGatekitChangedFiles(files []hosting.ChangedFile) []gatekit.ChangedFile {
	out := make([]gatekit.ChangedFile, len(files))
	for i, f := range files {
		out[i] = gatekit.ChangedFile{
			Path: f.Path, Status: f.Status, Additions: f.Additions, Deletions: f.Deletions, Patch: f.Patch,
		}
	}
	return out
}

func conclusionFor(status gatekit.Status) hosting.CheckRunConclusion {
	switch status {
	case gatekit.StatusPass:
		return hosting.CheckRunSuccess
	case gatekit.StatusFail:
		return hosting.CheckRunFailure
	default:
		return hosting.CheckRunNeutral
	}
}
