package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyFacts(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		valid     bool
		itemCount int
	}{
		{
			name:      "empty red_flags array is valid",
			output:    `{"red_flags": []}`,
			valid:     true,
			itemCount: 0,
		},
		{
			name:      "fact_checks container accepted",
			output:    `{"fact_checks": [{"claim": "1024Wh", "reality": "980Wh"}]}`,
			valid:     true,
			itemCount: 1,
		},
		{
			name:      "checks container accepted",
			output:    `{"checks": [{"label": "weight", "verdict": "verified"}]}`,
			valid:     true,
			itemCount: 1,
		},
		{
			name:      "discrepancies container accepted",
			output:    `{"discrepancies": [{"claim": "2000W", "severity": "major"}]}`,
			valid:     true,
			itemCount: 1,
		},
		{
			name:   "item missing claim and label",
			output: `{"red_flags": [{"reality": "980Wh"}]}`,
			valid:  false,
		},
		{
			name:   "item missing every verification field",
			output: `{"red_flags": [{"claim": "X"}]}`,
			valid:  false,
		},
		{
			name:   "one bad item fails the whole stage",
			output: `{"red_flags": [{"claim": "X", "verdict": "verified"}, {"claim": "Y"}]}`,
			valid:  false,
		},
		{
			name:   "no recognized container",
			output: `{"findings": []}`,
			valid:  false,
		},
		{
			name:   "not an object",
			output: `[1, 2, 3]`,
			valid:  false,
		},
		{
			name:   "not JSON at all",
			output: `I could not produce JSON, sorry`,
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := VerifyFacts([]byte(tt.output))
			assert.Equal(t, tt.valid, res.Valid, res.Err)
			if tt.valid {
				assert.Equal(t, tt.itemCount, res.ItemCount)
				assert.Empty(t, res.Err)
			} else {
				assert.NotEmpty(t, res.Err)
			}
		})
	}
}

func TestVerdict(t *testing.T) {
	tests := []struct {
		name   string
		output string
		valid  bool
	}{
		{
			name:   "complete verdict",
			output: `{"truth_index": 87.5, "interpretation": "Mostly honest claims.", "strengths": ["capacity"], "limitations": []}`,
			valid:  true,
		},
		{
			name:   "empty arrays are fine",
			output: `{"truth_index": 100, "interpretation": "Everything checked out.", "strengths": [], "limitations": []}`,
			valid:  true,
		},
		{
			name:   "missing truth_index",
			output: `{"interpretation": "ok", "strengths": [], "limitations": []}`,
			valid:  false,
		},
		{
			name:   "string truth_index",
			output: `{"truth_index": "87", "interpretation": "ok", "strengths": [], "limitations": []}`,
			valid:  false,
		},
		{
			name:   "empty interpretation",
			output: `{"truth_index": 87, "interpretation": "", "strengths": [], "limitations": []}`,
			valid:  false,
		},
		{
			name:   "strengths not an array",
			output: `{"truth_index": 87, "interpretation": "ok", "strengths": "capacity", "limitations": []}`,
			valid:  false,
		},
		{
			name:   "missing limitations",
			output: `{"truth_index": 87, "interpretation": "ok", "strengths": []}`,
			valid:  false,
		},
		{
			name:   "truth_index out of range",
			output: `{"truth_index": 140, "interpretation": "ok", "strengths": [], "limitations": []}`,
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Verdict([]byte(tt.output))
			assert.Equal(t, tt.valid, res.Valid, res.Err)
		})
	}
}

func TestClaimMap(t *testing.T) {
	res := ClaimMap([]byte(`{"claims": [{"metric": "battery", "claimed": "1024 Wh"}]}`))
	assert.True(t, res.Valid)
	assert.Equal(t, 1, res.ItemCount)

	res = ClaimMap([]byte(`{"claims": []}`))
	assert.False(t, res.Valid)

	res = ClaimMap([]byte(`{}`))
	assert.False(t, res.Valid)
}

func TestGatherSignals(t *testing.T) {
	res := GatherSignals([]byte(`{"sources": [{"url": "https://example.com/review", "signals": []}]}`))
	assert.True(t, res.Valid)
	assert.Equal(t, 1, res.ItemCount)

	res = GatherSignals([]byte(`{"sources": []}`))
	assert.False(t, res.Valid)

	res = GatherSignals([]byte(`{"sources": [{"signals": []}]}`))
	assert.False(t, res.Valid)
}

func TestNormalize(t *testing.T) {
	res := Normalize([]byte(`{"checks": [{"verdict": "verified"}, {"verdict": "discrepancy"}]}`))
	assert.True(t, res.Valid)
	assert.Equal(t, 2, res.ItemCount)

	res = Normalize([]byte(`{"checks": []}`))
	assert.True(t, res.Valid)
	assert.Equal(t, 0, res.ItemCount)

	res = Normalize([]byte(`{"checks": [{"severity": "minor"}]}`))
	assert.False(t, res.Valid)
}

func TestValidatorsNeverPanicOnGarbage(t *testing.T) {
	inputs := [][]byte{nil, {}, []byte("null"), []byte("42"), []byte(`"text"`), []byte("{")}
	stages := []string{"claim_map", "gather_signals", "verify_facts", "normalize", "verdict", "other"}
	for _, stage := range stages {
		fn := ForStage(stage)
		for _, in := range inputs {
			assert.NotPanics(t, func() { fn(in) })
		}
	}
}
