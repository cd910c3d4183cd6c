// Package policy defines the data model for the per-repository policy
// document and per-rule AI documents (spec §3). Fetching and caching these
// documents from the forge is an external collaborator (spec §1); this
// package only owns the shape, the load-time invariants, and the gate-id
// derivation rule every other component depends on.
package policy

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	polerrs "github.com/policyforge/engine/internal/errors"
)

// Document is the per-repository policy document (spec §3).
type Document struct {
	Intent struct {
		Goals    []string `yaml:"goals"`
		NonGoals []string `yaml:"non_goals"`
	} `yaml:"intent"`
	Gates      []GateSpec `yaml:"gates"`
	FailOnError bool      `yaml:"fail_on_error"`
	CogniDAO   *DAOBlock   `yaml:"cogni_dao,omitempty"`
}

// GateSpec is one entry of the policy's ordered gate list.
type GateSpec struct {
	Type string         `yaml:"type"`
	ID   string         `yaml:"id,omitempty"`
	With map[string]any `yaml:"with,omitempty"`
}

// DAOBlock carries the address-like fields the Renderer uses to build the
// "propose vote to merge" deep link on failure (spec §3, §4.10).
type DAOBlock struct {
	DAO     string `yaml:"dao"`
	Plugin  string `yaml:"plugin"`
	Signal  string `yaml:"signal"`
	ChainID string `yaml:"chain_id"`
	RepoURL string `yaml:"repo_url"`
}

// Complete reports whether every field of the DAO block is populated. The
// Renderer must omit the vote link silently otherwise (spec §4.10).
func (d *DAOBlock) Complete() bool {
	if d == nil {
		return false
	}
	return d.DAO != "" && d.Plugin != "" && d.Signal != "" && d.ChainID != "" && d.RepoURL != ""
}

// RuleDocument is a per-rule AI document (spec §3).
type RuleDocument struct {
	ID             string            `yaml:"id"`
	SchemaVersion  string            `yaml:"schema_version"`
	WorkflowID     string            `yaml:"workflow_id"`
	Evaluations    map[string]string `yaml:"evaluations"`
	SuccessCriteria SuccessCriteria  `yaml:"success_criteria"`
	XBudgets       *Budgets          `yaml:"x_budgets,omitempty"`
	XCapabilities  []string          `yaml:"x_capabilities,omitempty"`

	// LegacyMetric/LegacyThreshold detect the rejected {metric, threshold}
	// shorthand from earlier schema minor versions (spec §9 Open Question).
	LegacyMetric    string  `yaml:"metric,omitempty"`
	LegacyThreshold *float64 `yaml:"threshold,omitempty"`
}

// Budgets bounds the evidence an ai-rule gate may attach (spec §3, §4.3).
type Budgets struct {
	MaxFiles             int `yaml:"max_files"`
	MaxPatches           int `yaml:"max_patches"`
	MaxPatchBytesPerFile int `yaml:"max_patch_bytes_per_file"`
}

// SuccessCriteria is the require/any_of comparison matrix (spec §4.4).
type SuccessCriteria struct {
	Require                []Comparison `yaml:"require,omitempty"`
	AnyOf                  []Comparison `yaml:"any_of,omitempty"`
	NeutralOnMissingMetrics bool        `yaml:"neutral_on_missing_metrics"`
}

// Comparison is one metric/operator/threshold triple. Exactly one operator
// field must be set; Op/Threshold are populated by Validate for convenient
// use by internal/matrix.
type Comparison struct {
	Metric string   `yaml:"metric"`
	GTE    *float64 `yaml:"gte,omitempty"`
	GT     *float64 `yaml:"gt,omitempty"`
	LTE    *float64 `yaml:"lte,omitempty"`
	LT     *float64 `yaml:"lt,omitempty"`
	EQ     *float64 `yaml:"eq,omitempty"`

	Op        string  `yaml:"-"`
	Threshold float64 `yaml:"-"`
}

// resolveOp fills Op/Threshold from whichever operator field was set, and
// errors if zero or more than one operator is present (spec §4.4 invariant).
func (c *Comparison) resolveOp() error {
	type opVal struct {
		name string
		val  *float64
	}
	candidates := []opVal{
		{"gte", c.GTE}, {"gt", c.GT}, {"lte", c.LTE}, {"lt", c.LT}, {"eq", c.EQ},
	}
	var found *opVal
	for i := range candidates {
		if candidates[i].val != nil {
			if found != nil {
				return fmt.Errorf("comparison on metric %q has more than one operator", c.Metric)
			}
			found = &candidates[i]
		}
	}
	if found == nil {
		return fmt.Errorf("comparison on metric %q has no operator", c.Metric)
	}
	c.Op = found.name
	c.Threshold = *found.val
	return nil
}

// Validate enforces the load-time invariants of §4.4: every comparison has
// exactly one operator, thresholds are numeric (guaranteed by the float64
// type once YAML decodes it), and at least one of require/any_of is present.
func (s *SuccessCriteria) Validate() error {
	if len(s.Require) == 0 && len(s.AnyOf) == 0 {
		return fmt.Errorf("success_criteria must set at least one of require/any_of")
	}
	for i := range s.Require {
		if err := s.Require[i].resolveOp(); err != nil {
			return fmt.Errorf("require[%d]: %w", i, err)
		}
	}
	for i := range s.AnyOf {
		if err := s.AnyOf[i].resolveOp(); err != nil {
			return fmt.Errorf("any_of[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate enforces rule-document invariants, including rejecting the
// legacy {metric, threshold} shorthand (spec §9 Open Question: "must be
// rejected with rule_schema_invalid").
func (r *RuleDocument) Validate() error {
	if r.LegacyMetric != "" || r.LegacyThreshold != nil {
		return fmt.Errorf("legacy {metric, threshold} rule shorthand is not supported; use success_criteria.require/any_of")
	}
	if r.WorkflowID == "" {
		return fmt.Errorf("workflow_id is required")
	}
	return r.SuccessCriteria.Validate()
}

// ParseRuleDocument decodes and validates a rule document's YAML bytes.
func ParseRuleDocument(data []byte) (*RuleDocument, error) {
	var rd RuleDocument
	if err := yaml.Unmarshal(data, &rd); err != nil {
		return nil, fmt.Errorf("parse rule document: %w", err)
	}
	if err := rd.Validate(); err != nil {
		return nil, err
	}
	return &rd, nil
}

// ParseDocument decodes a policy document's YAML bytes. It does not validate
// gate-id uniqueness — that is the Launcher's job (spec §4.5 step 1), since
// it must happen immediately before dispatch, using whatever id-derivation
// context (e.g. rule filenames) the Launcher has at hand.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy document: %w", err)
	}
	return &doc, nil
}

// CacheKey is the cache key format for (repo, sha), per SPEC_FULL.md's
// supplemented-feature note: spec §3 says the loader "caches by (repo, sha)"
// but leaves the concrete key format unstated.
func CacheKey(repo, sha string) string {
	return repo + "@" + sha
}

// Loader is the external collaborator that fetches and caches policy and
// rule documents from the forge (spec §1). The core only calls this
// interface; it never performs the network fetch itself.
type Loader interface {
	LoadPolicy(ctx context.Context, repo, headSHA string) (*Document, error)
	LoadRule(ctx context.Context, repo, headSHA, ruleFile string) (*RuleDocument, error)
}

// DerivedID computes a gate spec's id per spec §3: explicit id wins;
// otherwise for ai-rule gates it's the rule file's basename without
// extension; otherwise the type.
func DerivedID(spec GateSpec, ruleBasename func(spec GateSpec) (string, bool)) string {
	if spec.ID != "" {
		return spec.ID
	}
	if spec.Type == "ai-rule" && ruleBasename != nil {
		if base, ok := ruleBasename(spec); ok && base != "" {
			return base
		}
	}
	return spec.Type
}

// DeriveIDs computes the derived id for every gate in a document and
// validates uniqueness, per spec §3's "fatal configuration error" invariant
// and testable property #2. It returns polerrs.ErrDuplicateGateID on the
// first collision, in spec order.
func DeriveIDs(gates []GateSpec, ruleBasename func(spec GateSpec) (string, bool)) ([]string, error) {
	ids := make([]string, len(gates))
	seen := make(map[string]bool, len(gates))
	for i, g := range gates {
		id := DerivedID(g, ruleBasename)
		if seen[id] {
			return nil, polerrs.ErrDuplicateGateID(id)
		}
		seen[id] = true
		ids[i] = id
	}
	return ids, nil
}
