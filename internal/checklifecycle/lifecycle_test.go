package checklifecycle

import (
	"context"
	"fmt"
	"testing"

	"github.com/policyforge/engine/internal/config"
	polerrs "github.com/policyforge/engine/internal/errors"
	"github.com/policyforge/engine/internal/hosting"
	"github.com/policyforge/engine/internal/policy"
)

type stubProvider struct {
	prs            map[int]*hosting.PR
	commitsToPRs   map[string][]hosting.PR
	created        []hosting.CheckRunInput
	updated        []hosting.CheckRunUpdate
	nextCheckID    int64
	createCheckErr error
}

func (s *stubProvider) Name() hosting.ProviderType       { return hosting.ProviderGitHub }
func (s *stubProvider) OwnerRepo() (string, string)      { return "acme", "widgets" }
func (s *stubProvider) CheckAuth(ctx context.Context) error { return nil }

func (s *stubProvider) GetPR(ctx context.Context, number int) (*hosting.PR, error) {
	pr, ok := s.prs[number]
	if !ok {
		return nil, fmt.Errorf("no such PR %d", number)
	}
	return pr, nil
}

func (s *stubProvider) ListChangedFiles(ctx context.Context, number int) ([]hosting.ChangedFile, error) {
	return []hosting.ChangedFile{{Path: "main.go", Status: "modified", Additions: 5}}, nil
}

func (s *stubProvider) GetContentAtRef(ctx context.Context, path, ref string) ([]byte, error) {
	return nil, fmt.Errorf("not used in these tests")
}

func (s *stubProvider) FindPRsForCommit(ctx context.Context, sha string) ([]hosting.PR, error) {
	return s.commitsToPRs[sha], nil
}

func (s *stubProvider) ListArtifacts(ctx context.Context, headSHA, ciRunID string) ([]hosting.Artifact, error) {
	return nil, nil
}

func (s *stubProvider) DownloadArtifact(ctx context.Context, artifact hosting.Artifact) ([]byte, error) {
	return nil, fmt.Errorf("not used in these tests")
}

func (s *stubProvider) CreateCheckRun(ctx context.Context, in hosting.CheckRunInput) (*hosting.CheckRun, error) {
	if s.createCheckErr != nil {
		return nil, s.createCheckErr
	}
	s.nextCheckID++
	s.created = append(s.created, in)
	return &hosting.CheckRun{ID: s.nextCheckID, Name: in.Name, Status: in.Status, Conclusion: in.Conclusion}, nil
}

func (s *stubProvider) UpdateCheckRun(ctx context.Context, checkRunID int64, update hosting.CheckRunUpdate) error {
	s.updated = append(s.updated, update)
	return nil
}

var _ hosting.Provider = (*stubProvider)(nil)

type stubLoader struct {
	doc *policy.Document
	err error
}

func (l *stubLoader) LoadPolicy(ctx context.Context, repo, headSHA string) (*policy.Document, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.doc, nil
}

func (l *stubLoader) LoadRule(ctx context.Context, repo, headSHA, ruleFile string) (*policy.RuleDocument, error) {
	return nil, fmt.Errorf("not used in these tests")
}

var _ policy.Loader = (*stubLoader)(nil)

func testDoc() *policy.Document {
	return &policy.Document{Gates: []policy.GateSpec{{Type: "review-limits", ID: "review-limits"}}}
}

func newManager(provider *stubProvider, loader *stubLoader) *Manager {
	return &Manager{
		Provider: provider,
		Loader:   loader,
		Config:   config.Default(),
		Store:    NewStore(),
	}
}

func TestPhase1PublishesInProgressCheckAndStashesEntry(t *testing.T) {
	provider := &stubProvider{prs: map[int]*hosting.PR{7: {Number: 7, HeadSHA: "sha1"}}}
	m := newManager(provider, &stubLoader{doc: testDoc()})

	if err := m.HandlePullRequestEvent(context.Background(), "acme/widgets", 7); err != nil {
		t.Fatalf("HandlePullRequestEvent() error = %v", err)
	}
	if len(provider.created) != 1 {
		t.Fatalf("created = %d checks, want 1", len(provider.created))
	}
	if provider.created[0].Status != hosting.CheckRunInProgress {
		t.Errorf("Status = %v, want in_progress", provider.created[0].Status)
	}
	if m.Store.Len() != 1 {
		t.Errorf("Store.Len() = %d, want 1", m.Store.Len())
	}
}

func TestPhase1PublishesFailureCheckOnMissingPolicy(t *testing.T) {
	provider := &stubProvider{prs: map[int]*hosting.PR{7: {Number: 7, HeadSHA: "sha1"}}}
	m := newManager(provider, &stubLoader{err: polerrs.ErrPolicyMissing("/policy/repo-spec.yaml")})

	if err := m.HandlePullRequestEvent(context.Background(), "acme/widgets", 7); err != nil {
		t.Fatalf("HandlePullRequestEvent() error = %v", err)
	}
	if len(provider.created) != 1 {
		t.Fatalf("created = %d checks, want 1", len(provider.created))
	}
	if provider.created[0].Conclusion != hosting.CheckRunFailure {
		t.Errorf("Conclusion = %v, want failure", provider.created[0].Conclusion)
	}
	if m.Store.Len() != 0 {
		t.Errorf("Store.Len() = %d, want 0 on load failure", m.Store.Len())
	}
}

func TestPhase1PublishesNeutralCheckOnTransientPolicyError(t *testing.T) {
	provider := &stubProvider{prs: map[int]*hosting.PR{7: {Number: 7, HeadSHA: "sha1"}}}
	m := newManager(provider, &stubLoader{err: polerrs.ErrPolicyTransient(fmt.Errorf("connection reset"))})

	if err := m.HandlePullRequestEvent(context.Background(), "acme/widgets", 7); err != nil {
		t.Fatalf("HandlePullRequestEvent() error = %v", err)
	}
	if provider.created[0].Conclusion != hosting.CheckRunNeutral {
		t.Errorf("Conclusion = %v, want neutral", provider.created[0].Conclusion)
	}
}

func TestCIRunCompletedDropsStaleEvent(t *testing.T) {
	provider := &stubProvider{
		prs:          map[int]*hosting.PR{7: {Number: 7, HeadSHA: "sha2"}}, // head has moved on
		commitsToPRs: map[string][]hosting.PR{"sha1": {{Number: 7, HeadSHA: "sha2"}}},
	}
	m := newManager(provider, &stubLoader{doc: testDoc()})

	if err := m.HandleCIRunCompleted(context.Background(), "acme/widgets", "sha1", "run-1"); err != nil {
		t.Fatalf("HandleCIRunCompleted() error = %v", err)
	}
	if len(provider.created) != 0 || len(provider.updated) != 0 {
		t.Errorf("expected no check writes for a stale event, got created=%d updated=%d", len(provider.created), len(provider.updated))
	}
}

func TestCIRunCompletedPatchesOutstandingCheck(t *testing.T) {
	provider := &stubProvider{
		prs:          map[int]*hosting.PR{7: {Number: 7, HeadSHA: "sha1"}},
		commitsToPRs: map[string][]hosting.PR{"sha1": {{Number: 7, HeadSHA: "sha1"}}},
	}
	m := newManager(provider, &stubLoader{doc: testDoc()})

	if err := m.HandlePullRequestEvent(context.Background(), "acme/widgets", 7); err != nil {
		t.Fatalf("phase 1 error = %v", err)
	}
	if err := m.HandleCIRunCompleted(context.Background(), "acme/widgets", "sha1", "run-1"); err != nil {
		t.Fatalf("HandleCIRunCompleted() error = %v", err)
	}

	if len(provider.updated) != 1 {
		t.Fatalf("updated = %d, want 1 (patch, not create)", len(provider.updated))
	}
	if len(provider.created) != 1 {
		t.Fatalf("created = %d, want 1 (only the phase-1 check)", len(provider.created))
	}
	if provider.updated[0].Status != hosting.CheckRunCompleted {
		t.Errorf("Status = %v, want completed", provider.updated[0].Status)
	}
}

func TestCIRunCompletedCreatesFreshCheckOnOutOfOrderDelivery(t *testing.T) {
	provider := &stubProvider{
		prs:          map[int]*hosting.PR{7: {Number: 7, HeadSHA: "sha1"}},
		commitsToPRs: map[string][]hosting.PR{"sha1": {{Number: 7, HeadSHA: "sha1"}}},
	}
	m := newManager(provider, &stubLoader{doc: testDoc()})

	if err := m.HandleCIRunCompleted(context.Background(), "acme/widgets", "sha1", "run-1"); err != nil {
		t.Fatalf("HandleCIRunCompleted() error = %v", err)
	}
	if len(provider.created) != 1 {
		t.Fatalf("created = %d, want 1", len(provider.created))
	}
	if len(provider.updated) != 0 {
		t.Errorf("updated = %d, want 0", len(provider.updated))
	}
}

func TestRerunAmbiguousPublishesNeutralWithoutPRSideEffects(t *testing.T) {
	provider := &stubProvider{
		commitsToPRs: map[string][]hosting.PR{
			"sha1": {{Number: 7, HeadSHA: "sha1"}, {Number: 8, HeadSHA: "sha1"}},
		},
	}
	m := newManager(provider, &stubLoader{doc: testDoc()})

	err := m.HandleRerunRequested(context.Background(), "acme/widgets", RerunRequest{HeadSHA: "sha1"})
	if err != nil {
		t.Fatalf("HandleRerunRequested() error = %v", err)
	}
	if len(provider.created) != 1 {
		t.Fatalf("created = %d, want 1 neutral ambiguity check", len(provider.created))
	}
	if provider.created[0].Conclusion != hosting.CheckRunNeutral {
		t.Errorf("Conclusion = %v, want neutral", provider.created[0].Conclusion)
	}
	if m.Store.Len() != 0 {
		t.Errorf("Store.Len() = %d, want 0 (no PR side effects on ambiguity)", m.Store.Len())
	}
}

func TestRerunResolvesUnambiguousCommitMatch(t *testing.T) {
	provider := &stubProvider{
		prs:          map[int]*hosting.PR{7: {Number: 7, HeadSHA: "sha1"}},
		commitsToPRs: map[string][]hosting.PR{"sha1": {{Number: 7, HeadSHA: "sha1"}}},
	}
	m := newManager(provider, &stubLoader{doc: testDoc()})

	err := m.HandleRerunRequested(context.Background(), "acme/widgets", RerunRequest{HeadSHA: "sha1"})
	if err != nil {
		t.Fatalf("HandleRerunRequested() error = %v", err)
	}
	if len(provider.created) != 1 {
		t.Fatalf("created = %d, want 1", len(provider.created))
	}
	if provider.created[0].Title == "Could not determine which pull request this rerun belongs to." {
		t.Errorf("expected a real evaluation result, got the ambiguity check instead")
	}
}
