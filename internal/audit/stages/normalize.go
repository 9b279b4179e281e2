package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/actualfyi/audit-service/internal/truth"
)

// factCheckContainers mirrors the container keys the verify_facts validator
// accepts, in precedence order.
var factCheckContainers = []string{"red_flags", "fact_checks", "checks", "discrepancies"}

// normalizeExecutor is deterministic: it parses both sides of every fact
// check into canonical units and classifies deviations against per-unit
// tolerances. No LLM call.
type normalizeExecutor struct{}

func (e *normalizeExecutor) Name() string { return Normalize }

// NormalizeOutput is the normalize stage output document.
type NormalizeOutput struct {
	Checks    []truth.NormalizedCheck `json:"checks"`
	Breakdown truth.ScoreBreakdown    `json:"breakdown"`
}

func (e *normalizeExecutor) Execute(_ context.Context, in *Input) (json.RawMessage, error) {
	raw, ok := in.Output(VerifyFacts)
	if !ok {
		return nil, fmt.Errorf("verify_facts output not available")
	}

	checks, err := extractFactChecks(raw)
	if err != nil {
		return nil, err
	}

	normalized := truth.Normalize(checks)
	out := NormalizeOutput{
		Checks:    normalized,
		Breakdown: truth.Score(normalized),
	}
	return json.Marshal(out)
}

// extractFactChecks pulls the fact-check array out of whichever container key
// the verification stage used.
func extractFactChecks(raw json.RawMessage) ([]truth.FactCheck, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("verify_facts output is not a JSON object: %w", err)
	}
	for _, key := range factCheckContainers {
		arr, ok := doc[key]
		if !ok {
			continue
		}
		var checks []truth.FactCheck
		if err := json.Unmarshal(arr, &checks); err != nil {
			continue
		}
		return checks, nil
	}
	return nil, fmt.Errorf("no recognized fact-check array in verify_facts output")
}
