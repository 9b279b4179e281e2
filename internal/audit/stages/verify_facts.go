package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/actualfyi/audit-service/internal/llm"
)

// verifyFactsExecutor pits the claim map against the gathered signals using
// the standard-tier model. Its output is the fact_checks array the
// deterministic normalize stage consumes.
type verifyFactsExecutor struct {
	llm llm.Client
}

func (e *verifyFactsExecutor) Name() string { return VerifyFacts }

func (e *verifyFactsExecutor) Execute(ctx context.Context, in *Input) (json.RawMessage, error) {
	claims, ok := in.Output(ClaimMap)
	if !ok {
		return nil, fmt.Errorf("claim_map output not available")
	}
	signals, ok := in.Output(GatherSignals)
	if !ok {
		return nil, fmt.Errorf("gather_signals output not available")
	}

	prompt := llm.FactCheckPrompt(in.Product.Brand, in.Product.Model, string(claims), string(signals))
	raw, err := e.llm.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, fmt.Errorf("fact check generation failed: %w", err)
	}

	// The validator owns acceptance; here we only require parseable JSON so a
	// truncated response fails with a useful excerpt instead of propagating.
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("model returned invalid JSON")
	}

	return json.RawMessage(raw), nil
}
