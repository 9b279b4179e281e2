package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetModelFallbackChain(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "gemini-2.5-flash-lite", cfg.GetModel(TierLite))
	assert.Equal(t, "gemini-2.5-flash", cfg.GetModel(TierStandard))
	assert.Equal(t, "gemini-2.5-pro", cfg.GetModel(TierAdvanced))

	// Missing tier falls back to standard, then lite.
	partial := &Config{Models: map[ModelTier]string{TierStandard: "gemini-2.5-flash"}}
	assert.Equal(t, "gemini-2.5-flash", partial.GetModel(TierAdvanced))

	liteOnly := &Config{Models: map[ModelTier]string{TierLite: "gemini-2.5-flash-lite"}}
	assert.Equal(t, "gemini-2.5-flash-lite", liteOnly.GetModel(TierAdvanced))

	empty := &Config{Models: map[ModelTier]string{}}
	assert.Equal(t, "", empty.GetModel(TierStandard))
}

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain json untouched", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  \n{\"a\": 1}\n  ", `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSONBlock(tt.in))
		})
	}
}

func TestPromptsCarryTheirInputs(t *testing.T) {
	signal := SignalSummaryPrompt("PowerCube", "PC-1000", "portable_power_station", "measured 1007 Wh")
	assert.Contains(t, signal, "PowerCube PC-1000")
	assert.Contains(t, signal, "measured 1007 Wh")
	assert.Contains(t, signal, `"signals"`)

	factCheck := FactCheckPrompt("PowerCube", "PC-1000",
		`{"claims": []}`, `{"sources": []}`)
	assert.Contains(t, factCheck, `{"claims": []}`)
	assert.Contains(t, factCheck, `{"sources": []}`)
	assert.Contains(t, factCheck, `"fact_checks"`)
	assert.Contains(t, factCheck, "unverifiable")

	verdict := VerdictPrompt("PowerCube", "PC-1000",
		`{"truth_index": 95}`, `{"checks": []}`)
	assert.Contains(t, verdict, `{"truth_index": 95}`)
	assert.Contains(t, verdict, `"interpretation"`)
	// The verdict prompt must forbid rescoring.
	assert.True(t, strings.Contains(verdict, "do not recompute"))
}

func TestNewGeminiClientRequiresAPIKey(t *testing.T) {
	_, err := NewGeminiClient(nil, DefaultConfig(), "")
	assert.Error(t, err)
}
