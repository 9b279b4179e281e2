package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// claimMapExecutor is deterministic: it projects the catalog row's
// technical_specs object into a flat list of auditable claims. No LLM call,
// and failure here is terminal for the run since nothing downstream has
// anything to verify.
type claimMapExecutor struct{}

func (e *claimMapExecutor) Name() string { return ClaimMap }

// Claim is one auditable manufacturer claim.
type Claim struct {
	Metric  string `json:"metric"`
	Claimed string `json:"claimed"`
}

// ClaimMapOutput is the claim_map stage output document.
type ClaimMapOutput struct {
	Claims []Claim `json:"claims"`
}

func (e *claimMapExecutor) Execute(_ context.Context, in *Input) (json.RawMessage, error) {
	if in.Product == nil {
		return nil, fmt.Errorf("no product loaded")
	}
	if len(in.Product.TechnicalSpecs) == 0 {
		return nil, fmt.Errorf("product %s has no technical specs", in.Product.ID)
	}

	var specs map[string]interface{}
	if err := json.Unmarshal(in.Product.TechnicalSpecs, &specs); err != nil {
		return nil, fmt.Errorf("technical_specs is not a JSON object: %w", err)
	}

	out := ClaimMapOutput{Claims: make([]Claim, 0, len(specs))}
	flattenSpecs("", specs, &out.Claims)

	// Map iteration order is random; a stable output keeps re-runs comparable.
	sort.Slice(out.Claims, func(i, j int) bool {
		return out.Claims[i].Metric < out.Claims[j].Metric
	})

	return json.Marshal(out)
}

// flattenSpecs walks nested spec objects, joining keys with dots. Scalar
// leaves become claims; anything non-scalar that is not an object is rendered
// through fmt.
func flattenSpecs(prefix string, node map[string]interface{}, claims *[]Claim) {
	for key, value := range node {
		metric := key
		if prefix != "" {
			metric = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]interface{}:
			flattenSpecs(metric, v, claims)
		case nil:
			// skip empty leaves
		case string:
			if v != "" {
				*claims = append(*claims, Claim{Metric: metric, Claimed: v})
			}
		default:
			*claims = append(*claims, Claim{Metric: metric, Claimed: fmt.Sprintf("%v", v)})
		}
	}
}
