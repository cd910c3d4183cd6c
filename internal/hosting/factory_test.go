package hosting

import (
	"context"
	"testing"
)

type stubProvider struct{}

func (stubProvider) Name() ProviderType                   { return "stub" }
func (stubProvider) OwnerRepo() (string, string)           { return "acme", "widgets" }
func (stubProvider) CheckAuth(ctx context.Context) error   { return nil }
func (stubProvider) GetPR(ctx context.Context, n int) (*PR, error) { return &PR{Number: n}, nil }
func (stubProvider) ListChangedFiles(ctx context.Context, n int) ([]ChangedFile, error) {
	return nil, nil
}
func (stubProvider) GetContentAtRef(ctx context.Context, path, ref string) ([]byte, error) {
	return nil, nil
}
func (stubProvider) FindPRsForCommit(ctx context.Context, sha string) ([]PR, error) { return nil, nil }
func (stubProvider) ListArtifacts(ctx context.Context, headSHA, ciRunID string) ([]Artifact, error) {
	return nil, nil
}
func (stubProvider) DownloadArtifact(ctx context.Context, a Artifact) ([]byte, error) {
	return nil, nil
}
func (stubProvider) CreateCheckRun(ctx context.Context, in CheckRunInput) (*CheckRun, error) {
	return &CheckRun{}, nil
}
func (stubProvider) UpdateCheckRun(ctx context.Context, id int64, up CheckRunUpdate) error {
	return nil
}

func TestNewProviderUsesRegisteredConstructor(t *testing.T) {
	defer func() { delete(providerConstructors, "stub-type") }()
	RegisterProvider("stub-type", func(cfg Config) (Provider, error) {
		return stubProvider{}, nil
	})

	p, err := NewProvider(Config{Provider: "stub-type"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "stub" {
		t.Errorf("Name() = %v", p.Name())
	}
}

func TestNewProviderRejectsUnknownType(t *testing.T) {
	_, err := NewProvider(Config{Provider: "bitbucket"})
	if err == nil {
		t.Fatal("expected error for unknown provider type")
	}
}
