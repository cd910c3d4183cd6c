package checklifecycle

import (
	"context"

	"github.com/policyforge/engine/internal/gatekit"
	"github.com/policyforge/engine/internal/hosting"
)

// forgeAdapter narrows a hosting.Provider down to gatekit.Forge, the only
// capability surface gate handlers may see (spec §4.2). It exists here,
// rather than in internal/hosting or internal/gatekit, because it is the
// check lifecycle that owns the decision of which live provider backs a
// run — gatekit must not import hosting to avoid a cycle back through the
// provider packages.
type forgeAdapter struct {
	provider hosting.Provider
}

func (a forgeAdapter) GetContentAtRef(ctx context.Context, path, ref string) ([]byte, error) {
	return a.provider.GetContentAtRef(ctx, path, ref)
}

func (a forgeAdapter) ListChangedFiles(ctx context.Context, prNumber int) ([]gatekit.ChangedFile, error) {
	files, err := a.provider.ListChangedFiles(ctx, prNumber)
	if err != nil {
		return nil, err
	}
	out := make([]gatekit.ChangedFile, len(files))
	for i, f := range files {
		out[i] = gatekit.ChangedFile{
			Path:      f.Path,
			Status:    f.Status,
			Additions: f.Additions,
			Deletions: f.Deletions,
			Patch:     f.Patch,
		}
	}
	return out, nil
}

func (a forgeAdapter) ListArtifacts(ctx context.Context, headSHA, ciRunID string) ([]gatekit.Artifact, error) {
	artifacts, err := a.provider.ListArtifacts(ctx, headSHA, ciRunID)
	if err != nil {
		return nil, err
	}
	out := make([]gatekit.Artifact, len(artifacts))
	for i, art := range artifacts {
		out[i] = gatekit.Artifact{ID: art.ID, Name: art.Name, SizeBytes: art.SizeBytes}
	}
	return out, nil
}

func (a forgeAdapter) DownloadArtifact(ctx context.Context, artifact gatekit.Artifact) ([]byte, error) {
	return a.provider.DownloadArtifact(ctx, hosting.Artifact{
		ID: artifact.ID, Name: artifact.Name, SizeBytes: artifact.SizeBytes,
	})
}

// mapPR converts a forge PR descriptor and its changed-file list into the
// gatekit-facing descriptor every handler sees.
func mapPR(pr *hosting.PR, changedFiles []gatekit.ChangedFile) gatekit.PR {
	return gatekit.PR{
		Number:       pr.Number,
		Title:        pr.Title,
		Body:         pr.Body,
		HeadSHA:      pr.HeadSHA,
		BaseSHA:      pr.BaseSHA,
		HeadRef:      pr.HeadRef,
		BaseRef:      pr.BaseRef,
		ChangedFiles: changedFiles,
		Additions:    pr.Additions,
		Deletions:    pr.Deletions,
		HasFileList:  true,
	}
}
