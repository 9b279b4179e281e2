// Package stages defines the audit pipeline stages: the canonical ordering,
// dependency chain, legacy name aliases, and the per-stage executors.
package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/actualfyi/audit-service/internal/db"
	"github.com/actualfyi/audit-service/internal/fetch"
	"github.com/actualfyi/audit-service/internal/llm"
)

// Canonical stage names, in pipeline order.
const (
	ClaimMap      = "claim_map"
	GatherSignals = "gather_signals"
	VerifyFacts   = "verify_facts"
	Normalize     = "normalize"
	Verdict       = "verdict"
)

// order is the linear pipeline. Each stage depends on all stages before it.
var order = []string{ClaimMap, GatherSignals, VerifyFacts, Normalize, Verdict}

// aliases maps legacy stage labels onto canonical names. Two older naming
// generations are still seen in requests and stored state.
var aliases = map[string]string{
	"discover":  ClaimMap,
	"fetch":     GatherSignals,
	"extract":   VerifyFacts,
	"assess":    Verdict,
	"stage_1":   ClaimMap,
	"stage_2":   GatherSignals,
	"stage_3":   VerifyFacts,
	"stage_3.5": Normalize,
	"stage_4":   Verdict,
}

// Order returns the canonical stage sequence.
func Order() []string {
	out := make([]string, len(order))
	copy(out, order)
	return out
}

// Total returns the number of pipeline stages.
func Total() int {
	return len(order)
}

// Canonical resolves a stage name or legacy alias to its canonical form.
func Canonical(name string) (string, bool) {
	for _, s := range order {
		if s == name {
			return s, true
		}
	}
	if canonical, ok := aliases[name]; ok {
		return canonical, true
	}
	return "", false
}

// Deps returns the stages that must be done before the named stage runs.
func Deps(name string) []string {
	for i, s := range order {
		if s == name {
			deps := make([]string, i)
			copy(deps, order[:i])
			return deps
		}
	}
	return nil
}

// IsDeterministic reports whether a stage runs without any LLM or network
// call. Deterministic stages never produce transient failures worth retrying.
func IsDeterministic(name string) bool {
	return name == ClaimMap || name == Normalize
}

// Input carries everything an executor may need: the product under audit and
// the run's accumulated stage state (for reading upstream outputs).
type Input struct {
	Product *db.Product
	State   db.StageState
}

// Output returns a prior stage's output from the accumulated state.
func (in *Input) Output(stage string) (json.RawMessage, bool) {
	rec, ok := in.State.Get(stage)
	if !ok || rec.Status != db.StageStatusDone || rec.Output == nil {
		return nil, false
	}
	return rec.Output, true
}

// Executor runs one stage and returns its raw JSON output.
type Executor interface {
	Name() string
	Execute(ctx context.Context, in *Input) (json.RawMessage, error)
}

// Registry holds the executor set wired with its external dependencies.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry builds the full executor set.
func NewRegistry(client llm.Client, fetchOpts *fetch.Options) *Registry {
	if fetchOpts == nil {
		fetchOpts = fetch.DefaultOptions()
	}
	r := &Registry{executors: make(map[string]Executor)}
	r.register(&claimMapExecutor{})
	r.register(&gatherSignalsExecutor{llm: client, fetchOpts: fetchOpts})
	r.register(&verifyFactsExecutor{llm: client})
	r.register(&normalizeExecutor{})
	r.register(&verdictExecutor{llm: client})
	return r
}

// NewRegistryWith builds a registry from explicit executors. Tests use this to
// substitute fakes for individual stages.
func NewRegistryWith(executors ...Executor) *Registry {
	r := &Registry{executors: make(map[string]Executor)}
	for _, e := range executors {
		r.register(e)
	}
	return r
}

func (r *Registry) register(e Executor) {
	r.executors[e.Name()] = e
}

// Get returns the executor for a canonical stage name.
func (r *Registry) Get(name string) (Executor, error) {
	e, ok := r.executors[name]
	if !ok {
		return nil, fmt.Errorf("no executor registered for stage %s", name)
	}
	return e, nil
}
