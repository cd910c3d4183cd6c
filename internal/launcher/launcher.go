// Package launcher is the sequential gate runner (spec §4.5, "C5
// Launcher"): it derives and validates gate ids, walks a policy's gate
// list in order, resolves each against the registry, and wraps every
// handler invocation in a safe shell that isolates crashes and observes
// cancellation. The goroutine+select+recover shape is grounded on the
// teacher's trigger.TriggerRunner.executeTrigger/fireReaction
// (internal/trigger/runner.go).
package launcher

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/policyforge/engine/internal/gatekit"
	"github.com/policyforge/engine/internal/policy"
	"github.com/policyforge/engine/internal/registry"
)

// Resolver looks up a handler for a gate type. internal/registry satisfies
// this; it is taken as an interface so tests can substitute a fake one.
type Resolver interface {
	Lookup(gateType string) (gatekit.Handler, bool)
}

// registryResolver adapts the package-level internal/registry functions to
// Resolver.
type registryResolver struct{}

func (registryResolver) Lookup(gateType string) (gatekit.Handler, bool) {
	return registry.Lookup(gateType)
}

// DefaultResolver is the production Resolver, backed by internal/registry.
var DefaultResolver Resolver = registryResolver{}

// unimplemented is the synthetic handler the spec requires for an unknown
// gate type (spec §4.1): neutral, unimplemented_gate, no violations.
func unimplemented(rc *gatekit.RunContext, spec gatekit.Spec) gatekit.Result {
	return gatekit.Result{
		Status:        gatekit.StatusNeutral,
		NeutralReason: gatekit.ReasonUnimplementedGate,
	}
}

// ruleBasename derives an ai-rule gate's rule-file basename without
// extension, used only for id derivation (spec §3) — it never fetches the
// rule document's content, since the id must be knowable before any
// handler, including ai-rule's own content fetch, has run.
func ruleBasename(spec policy.GateSpec) (string, bool) {
	if spec.Type != "ai-rule" {
		return "", false
	}
	ruleFile, _ := spec.With["rule_file"].(string)
	if ruleFile == "" {
		return "", false
	}
	base := filepath.Base(ruleFile)
	return strings.TrimSuffix(base, filepath.Ext(base)), true
}

// Run executes every gate in a document's gate list, in order, against the
// given run context (spec §4.5). It returns the derived-id-keyed results in
// spec order; on a duplicate derived id it returns an error before any
// handler runs (spec §3, testable property #2).
func Run(rc *gatekit.RunContext, gates []policy.GateSpec, resolver Resolver) ([]gatekit.Result, error) {
	if resolver == nil {
		resolver = DefaultResolver
	}

	ids, err := policy.DeriveIDs(gates, ruleBasename)
	if err != nil {
		return nil, err
	}

	results := make([]gatekit.Result, 0, len(gates))
	for i, g := range gates {
		if cancelled(rc) {
			break
		}

		handler, ok := resolver.Lookup(g.Type)
		if !ok {
			handler = unimplemented
		}

		spec := gatekit.Spec{Type: g.Type, ID: ids[i], With: g.With}
		result, ranToCompletion := invoke(rc, handler, spec)
		if !ranToCompletion {
			break
		}

		result = normalize(result, ids[i])
		results = append(results, result)
	}

	return results, nil
}

func cancelled(rc *gatekit.RunContext) bool {
	select {
	case <-rc.Context.Done():
		return true
	default:
		return false
	}
}

// invoke runs one handler inside a safe shell: it recovers any panic into a
// neutral{internal_error} result, and stops dispatching (ranToCompletion =
// false) if the run context's cancellation signal fires first (spec §4.5
// step 2c, testable property #5). The handler itself runs on the calling
// goroutine's behalf via a worker goroutine so a deadline firing mid-call
// does not block the Launcher loop — the teacher's executeTrigger uses the
// same goroutine+select(ctx.Done) shape.
func invoke(rc *gatekit.RunContext, handler gatekit.Handler, spec gatekit.Spec) (result gatekit.Result, ranToCompletion bool) {
	start := time.Now()

	type outcome struct {
		result gatekit.Result
		panicV any
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{panicV: r}
				return
			}
		}()
		ch <- outcome{result: handler(rc, spec)}
	}()

	select {
	case <-rc.Context.Done():
		return gatekit.Result{}, false
	case o := <-ch:
		if o.panicV != nil {
			return gatekit.Result{
				Status:        gatekit.StatusNeutral,
				NeutralReason: gatekit.ReasonInternalError,
				Stats:         map[string]any{"error": fmt.Sprintf("panic: %v", o.panicV)},
				DurationMS:    time.Since(start).Milliseconds(),
			}, true
		}
		o.result.DurationMS = time.Since(start).Milliseconds()
		return o.result, true
	}
}

// normalize defaults missing fields and overwrites id with the derived id,
// per spec §4.5 step 2d and testable property #1 ("handler-declared ids are
// discarded").
func normalize(r gatekit.Result, derivedID string) gatekit.Result {
	r.ID = derivedID
	if r.Status == "" {
		r.Status = gatekit.StatusNeutral
	}
	if r.Violations == nil {
		r.Violations = []gatekit.Violation{}
	}
	if r.Observations == nil {
		r.Observations = []string{}
	}
	if r.Stats == nil {
		r.Stats = map[string]any{}
	}
	return r
}
