// Package validate holds the per-stage output validators. Validators are pure
// functions over raw JSON bytes and never panic or return a Go error: a
// malformed payload is a validation failure, not an exception. The runner
// decides what a failure means (terminal error, blocked dependents).
package validate

import (
	"encoding/json"
	"fmt"

	"github.com/actualfyi/audit-service/internal/schemas"
)

// Result is the outcome of validating one stage's output.
type Result struct {
	Valid     bool
	ItemCount int
	Err       string
}

func invalid(msg string) Result {
	return Result{Valid: false, Err: msg}
}

// Func validates one stage's raw output.
type Func func(output []byte) Result

// ForStage returns the validator for a canonical stage name. Stages without a
// registered validator (the deterministic ones validate themselves by
// construction) get a presence check only.
func ForStage(name string) Func {
	switch name {
	case "claim_map":
		return ClaimMap
	case "gather_signals":
		return GatherSignals
	case "verify_facts":
		return VerifyFacts
	case "normalize":
		return Normalize
	case "verdict":
		return Verdict
	default:
		return nonEmptyObject
	}
}

func nonEmptyObject(output []byte) Result {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(output, &doc); err != nil {
		return invalid("output is not a JSON object")
	}
	return Result{Valid: true}
}

// ClaimMap requires at least one extracted claim. An empty claim map means the
// catalog row carries no auditable specs, and nothing downstream can run.
func ClaimMap(output []byte) Result {
	var doc struct {
		Claims []json.RawMessage `json:"claims"`
	}
	if err := json.Unmarshal(output, &doc); err != nil {
		return invalid("output is not a JSON object")
	}
	if doc.Claims == nil {
		return invalid("missing claims array")
	}
	if len(doc.Claims) == 0 {
		return invalid("claims array is empty")
	}
	return Result{Valid: true, ItemCount: len(doc.Claims)}
}

// GatherSignals requires at least one source entry carrying a URL. A run that
// found no evidence at all cannot verify anything downstream.
func GatherSignals(output []byte) Result {
	if err := schemas.ValidateJSONString(gatherSignalsSchema, string(output)); err != nil {
		return invalid(err.Error())
	}
	var doc struct {
		Sources []struct {
			URL string `json:"url"`
		} `json:"sources"`
	}
	if err := json.Unmarshal(output, &doc); err != nil {
		return invalid("output is not a JSON object")
	}
	if len(doc.Sources) == 0 {
		return invalid("no evidence sources gathered")
	}
	return Result{Valid: true, ItemCount: len(doc.Sources)}
}

// verifyFactsContainers lists the array keys accepted as the fact-check
// payload, in precedence order. Older model prompts used different names.
var verifyFactsContainers = []string{"red_flags", "fact_checks", "checks", "discrepancies"}

// VerifyFacts accepts output where any recognized container key holds an
// array. An empty array is valid: a clean product has no discrepancies. A
// non-empty array requires every item to identify a claim and carry at least
// one verification field, otherwise the whole output is rejected.
func VerifyFacts(output []byte) Result {
	if err := schemas.ValidateJSONString(verifyFactsSchema, string(output)); err != nil {
		return invalid(err.Error())
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(output, &doc); err != nil {
		return invalid("output is not a JSON object")
	}

	var items []map[string]json.RawMessage
	found := false
	for _, key := range verifyFactsContainers {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			continue // present but not an array of objects; try the next key
		}
		found = true
		break
	}
	if !found {
		return invalid("no recognized fact-check array present")
	}

	for i, item := range items {
		if !hasNonEmptyString(item, "claim") && !hasNonEmptyString(item, "label") {
			return invalid(itemErr(i, "missing claim/label"))
		}
		if !hasNonEmptyString(item, "reality") && !hasNonEmptyString(item, "verdict") &&
			!hasNonEmptyString(item, "severity") && !hasNonEmptyString(item, "status") {
			return invalid(itemErr(i, "missing verification field"))
		}
	}

	return Result{Valid: true, ItemCount: len(items)}
}

// Normalize checks the deterministic normalization output: a checks array
// where every entry carries a verdict. Empty is valid.
func Normalize(output []byte) Result {
	var doc struct {
		Checks []struct {
			Verdict string `json:"verdict"`
		} `json:"checks"`
	}
	if err := json.Unmarshal(output, &doc); err != nil {
		return invalid("output is not a JSON object")
	}
	if doc.Checks == nil {
		return invalid("missing checks array")
	}
	for i, c := range doc.Checks {
		if c.Verdict == "" {
			return invalid(itemErr(i, "missing verdict"))
		}
	}
	return Result{Valid: true, ItemCount: len(doc.Checks)}
}

// Verdict requires a numeric truth_index, a non-empty interpretation, and
// strengths/limitations present as string arrays.
func Verdict(output []byte) Result {
	if err := schemas.ValidateJSONString(verdictSchema, string(output)); err != nil {
		return invalid(err.Error())
	}
	var doc struct {
		TruthIndex     float64  `json:"truth_index"`
		Interpretation string   `json:"interpretation"`
		Strengths      []string `json:"strengths"`
		Limitations    []string `json:"limitations"`
	}
	if err := json.Unmarshal(output, &doc); err != nil {
		return invalid("output is not a JSON object")
	}
	if doc.TruthIndex < 0 || doc.TruthIndex > 100 {
		return invalid("truth_index out of range")
	}
	return Result{Valid: true, ItemCount: 1}
}

func hasNonEmptyString(item map[string]json.RawMessage, key string) bool {
	raw, ok := item[key]
	if !ok {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return s != ""
}

func itemErr(i int, msg string) string {
	return fmt.Sprintf("item %d: %s", i, msg)
}
