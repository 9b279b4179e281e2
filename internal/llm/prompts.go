package llm

import (
	"fmt"
	"strings"
)

// Prompt builders for the three LLM-backed audit stages. Each prompt pins the
// exact JSON shape the stage validator expects; the model returns JSON only
// (ResponseMIMEType enforces it, the instruction reinforces it).

// SignalSummaryPrompt asks the model to distill one fetched evidence page into
// structured signals relevant to the product's claims.
func SignalSummaryPrompt(brand, model, category, pageText string) string {
	var b strings.Builder
	b.WriteString("You are analyzing independent evidence about a hardware product.\n\n")
	fmt.Fprintf(&b, "Product: %s %s (%s)\n\n", brand, model, category)
	b.WriteString("Below is the text of one review, teardown, or test report. Extract every ")
	b.WriteString("concrete, measurable observation about the product: measured capacities, ")
	b.WriteString("power outputs, weights, runtimes, noise levels, failure reports.\n\n")
	b.WriteString("Return ONLY valid JSON with this structure:\n")
	b.WriteString(`{
  "signals": [
    {
      "metric": "battery_capacity",
      "observation": "measured 980Wh usable capacity under 500W constant load",
      "value": "980 Wh",
      "confidence": "high"
    }
  ],
  "source_quality": "independent_test"
}`)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Only include observations actually present in the text. Never invent measurements.\n")
	b.WriteString("- confidence is one of: high, medium, low.\n")
	b.WriteString("- source_quality is one of: independent_test, hands_on_review, spec_repost, anecdote.\n")
	b.WriteString("- If the page contains nothing measurable, return {\"signals\": [], \"source_quality\": \"anecdote\"}.\n\n")
	b.WriteString("Page text:\n")
	b.WriteString(pageText)
	return b.String()
}

// FactCheckPrompt asks the model to verify the manufacturer's claims against
// the gathered evidence signals.
func FactCheckPrompt(brand, model string, claimsJSON, signalsJSON string) string {
	var b strings.Builder
	b.WriteString("You are auditing a hardware manufacturer's spec sheet against independent evidence.\n\n")
	fmt.Fprintf(&b, "Product: %s %s\n\n", brand, model)
	b.WriteString("Manufacturer claims (JSON):\n")
	b.WriteString(claimsJSON)
	b.WriteString("\n\nIndependent evidence signals (JSON):\n")
	b.WriteString(signalsJSON)
	b.WriteString("\n\nFor each claim that the evidence can speak to, produce one fact check. ")
	b.WriteString("Return ONLY valid JSON with this structure:\n")
	b.WriteString(`{
  "fact_checks": [
    {
      "claim": "1024Wh battery capacity",
      "metric": "battery_capacity",
      "claimed": "1024 Wh",
      "reality": "980 Wh",
      "verdict": "discrepancy",
      "source_url": "https://example.com/teardown"
    }
  ]
}`)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- verdict is one of: verified, discrepancy, unverifiable.\n")
	b.WriteString("- claimed and reality must carry units when the metric is numeric (e.g. \"1024 Wh\", \"22.5 lbs\").\n")
	b.WriteString("- Use \"unverifiable\" when no evidence signal addresses the claim. Do not guess a reality value.\n")
	b.WriteString("- An empty fact_checks array is a valid answer when the evidence addresses nothing.\n")
	return b.String()
}

// VerdictPrompt asks the model to write the human-facing interpretation of an
// already-computed score. The numbers are settled upstream; the model only
// narrates them.
func VerdictPrompt(brand, model string, breakdownJSON, checksJSON string) string {
	var b strings.Builder
	b.WriteString("You are writing the final summary of a hardware spec audit. The scoring ")
	b.WriteString("is already done; do not recompute or second-guess any number.\n\n")
	fmt.Fprintf(&b, "Product: %s %s\n\n", brand, model)
	b.WriteString("Score breakdown (JSON):\n")
	b.WriteString(breakdownJSON)
	b.WriteString("\n\nNormalized fact checks (JSON):\n")
	b.WriteString(checksJSON)
	b.WriteString("\n\nReturn ONLY valid JSON with this structure:\n")
	b.WriteString(`{
  "interpretation": "Two to three sentences a shopper can act on.",
  "strengths": ["claim areas the evidence confirmed"],
  "limitations": ["claim areas with shortfalls or no independent coverage"]
}`)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- interpretation must be non-empty and reference the most significant finding.\n")
	b.WriteString("- strengths and limitations must be arrays of strings; either may be empty.\n")
	b.WriteString("- Plain language. No marketing tone, no hedging boilerplate.\n")
	return b.String()
}
