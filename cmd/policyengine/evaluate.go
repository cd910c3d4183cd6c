package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/policyforge/engine/internal/aiworkflow"
	"github.com/policyforge/engine/internal/aiworkflow/anthropic"
	"github.com/policyforge/engine/internal/config"
	"github.com/policyforge/engine/internal/gatekit"
	"github.com/policyforge/engine/internal/policy"
	"github.com/policyforge/engine/internal/render"
	"github.com/policyforge/engine/internal/runrt"
)

// fixture is the dry-run event shape `evaluate` reads from disk: a PR
// descriptor plus its changed-file list, standing in for what a real forge
// webhook would otherwise supply.
type fixture struct {
	PR struct {
		Number    int    `json:"number"`
		Title     string `json:"title"`
		Body      string `json:"body"`
		HeadSHA   string `json:"head_sha"`
		BaseSHA   string `json:"base_sha"`
		HeadRef   string `json:"head_ref"`
		BaseRef   string `json:"base_ref"`
		Additions int    `json:"additions"`
		Deletions int    `json:"deletions"`
	} `json:"pr"`
	ChangedFiles []gatekit.ChangedFile `json:"changed_files"`
}

// fixtureForge implements gatekit.Forge by reading file content straight
// off the local checkout and serving the fixture's changed-file list; it
// never lists or downloads artifacts, since `evaluate` always runs with
// artifact gates deferred (spec §4.9 phase 1's DeferArtifacts semantics,
// repurposed here for a local dry run rather than a real two-phase split).
type fixtureForge struct {
	root         string
	changedFiles []gatekit.ChangedFile
}

func (f fixtureForge) GetContentAtRef(ctx context.Context, path, ref string) ([]byte, error) {
	return os.ReadFile(filepath.Join(f.root, path))
}

func (f fixtureForge) ListChangedFiles(ctx context.Context, prNumber int) ([]gatekit.ChangedFile, error) {
	return f.changedFiles, nil
}

func (f fixtureForge) ListArtifacts(ctx context.Context, headSHA, ciRunID string) ([]gatekit.Artifact, error) {
	return nil, nil
}

func (f fixtureForge) DownloadArtifact(ctx context.Context, artifact gatekit.Artifact) ([]byte, error) {
	return nil, fmt.Errorf("evaluate: artifact download is not supported in a dry run")
}

// fixtureLoader implements policy.Loader by reading rule documents straight
// off the local checkout, standing in for the caching collaborator a real
// deployment wires in (spec §3).
type fixtureLoader struct {
	root       string
	policyRoot string
}

func (l fixtureLoader) LoadPolicy(ctx context.Context, repo, headSHA string) (*policy.Document, error) {
	return nil, fmt.Errorf("evaluate: the policy document is already supplied via --policy")
}

func (l fixtureLoader) LoadRule(ctx context.Context, repo, headSHA, ruleFile string) (*policy.RuleDocument, error) {
	raw, err := os.ReadFile(filepath.Join(l.root, l.policyRoot, "rules", ruleFile))
	if err != nil {
		return nil, err
	}
	return policy.ParseRuleDocument(raw)
}

func newEvaluateCmd() *cobra.Command {
	var policyPath, fixturePath, root, policyRoot string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Dry-run a policy document and PR fixture through the launcher and renderer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(policyPath, fixturePath, root, policyRoot)
		},
	}

	cmd.Flags().StringVar(&policyPath, "policy", "", "path to a local policy document (repo-spec.yaml)")
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "path to a JSON fixture describing the PR and its changed files")
	cmd.Flags().StringVar(&root, "root", ".", "local directory GetContentAtRef reads files from")
	cmd.Flags().StringVar(&policyRoot, "policy-root", "policy", "policy-root directory name (spec §6)")
	cmd.MarkFlagRequired("policy")
	cmd.MarkFlagRequired("fixture")

	return cmd
}

func runEvaluate(policyPath, fixturePath, root, policyRoot string) error {
	policyBytes, err := os.ReadFile(policyPath)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	doc, err := policy.ParseDocument(policyBytes)
	if err != nil {
		return fmt.Errorf("parse policy document: %w", err)
	}

	fixtureBytes, err := os.ReadFile(fixturePath)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}
	var fx fixture
	if err := json.Unmarshal(fixtureBytes, &fx); err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}

	cfg := config.Default()

	rc := &gatekit.RunContext{
		Context: context.Background(),
		PR: gatekit.PR{
			Number:       fx.PR.Number,
			Title:        fx.PR.Title,
			Body:         fx.PR.Body,
			HeadSHA:      fx.PR.HeadSHA,
			BaseSHA:      fx.PR.BaseSHA,
			HeadRef:      fx.PR.HeadRef,
			BaseRef:      fx.PR.BaseRef,
			ChangedFiles: fx.ChangedFiles,
			Additions:    fx.PR.Additions,
			Deletions:    fx.PR.Deletions,
			HasFileList:  true,
		},
		Policy:         doc,
		Forge:          fixtureForge{root: root, changedFiles: fx.ChangedFiles},
		Logger:         slog.Default(),
		DeferArtifacts: true,
		PolicyRoot:     policyRoot,
		AIWorkflows:    aiWorkflowsFromEnv(cfg),
		Governance:     cfg.Governance,
		Loader:         fixtureLoader{root: root, policyRoot: policyRoot},
	}

	result := runrt.Run(rc, doc)
	out := render.Render(result, doc, fx.PR.Number)

	fmt.Println(out.Summary)
	fmt.Println()
	fmt.Println(out.Text)
	return nil
}

// aiWorkflowsFromEnv wires the Anthropic reference client under the
// "anthropic" workflow id when an API key is available in the environment,
// so `evaluate` can exercise ai-rule gates locally without a full
// deployment's AI dispatcher config.
func aiWorkflowsFromEnv(cfg *config.Config) map[string]aiworkflow.Client {
	apiKey := os.Getenv(cfg.AI.APIKeyEnvVar)
	if apiKey == "" {
		return nil
	}
	return map[string]aiworkflow.Client{
		cfg.AI.Provider: anthropic.New(apiKey, sdk.Model(cfg.AI.Model)),
	}
}
