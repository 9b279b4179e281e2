package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/actualfyi/audit-service/internal/llm"
)

// verdictExecutor writes the final assessment. The truth index itself comes
// from the deterministic normalize stage; the advanced-tier model only writes
// the human-facing interpretation around the settled numbers.
type verdictExecutor struct {
	llm llm.Client
}

func (e *verdictExecutor) Name() string { return Verdict }

// VerdictOutput is the verdict stage output document.
type VerdictOutput struct {
	TruthIndex     float64         `json:"truth_index"`
	Interpretation string          `json:"interpretation"`
	Strengths      []string        `json:"strengths"`
	Limitations    []string        `json:"limitations"`
	Breakdown      json.RawMessage `json:"breakdown,omitempty"`
}

func (e *verdictExecutor) Execute(ctx context.Context, in *Input) (json.RawMessage, error) {
	raw, ok := in.Output(Normalize)
	if !ok {
		return nil, fmt.Errorf("normalize output not available")
	}

	var normalized struct {
		Checks    json.RawMessage `json:"checks"`
		Breakdown json.RawMessage `json:"breakdown"`
	}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, fmt.Errorf("normalize output is not a JSON object: %w", err)
	}

	var breakdown struct {
		TruthIndex float64 `json:"truth_index"`
	}
	if err := json.Unmarshal(normalized.Breakdown, &breakdown); err != nil {
		return nil, fmt.Errorf("normalize breakdown missing: %w", err)
	}

	prompt := llm.VerdictPrompt(in.Product.Brand, in.Product.Model,
		string(normalized.Breakdown), string(normalized.Checks))
	rawNarrative, err := e.llm.GenerateJSON(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		return nil, fmt.Errorf("verdict generation failed: %w", err)
	}

	var narrative struct {
		Interpretation string   `json:"interpretation"`
		Strengths      []string `json:"strengths"`
		Limitations    []string `json:"limitations"`
	}
	if err := json.Unmarshal([]byte(rawNarrative), &narrative); err != nil {
		return nil, fmt.Errorf("model returned invalid JSON: %w", err)
	}

	out := VerdictOutput{
		TruthIndex:     breakdown.TruthIndex,
		Interpretation: narrative.Interpretation,
		Strengths:      narrative.Strengths,
		Limitations:    narrative.Limitations,
		Breakdown:      normalized.Breakdown,
	}
	if out.Strengths == nil {
		out.Strengths = []string{}
	}
	if out.Limitations == nil {
		out.Limitations = []string{}
	}
	return json.Marshal(out)
}
