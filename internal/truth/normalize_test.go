package truth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		value    float64
		unit     string
		ok       bool
	}{
		{"plain watt hours", "1024 Wh", 1024, "Wh", true},
		{"thousands separator", "1,024 Wh", 1024, "Wh", true},
		{"no space", "2000W", 2000, "W", true},
		{"pounds to kg", "22.5 lbs", 22.5 * 0.45359237, "kg", true},
		{"kilowatt hours scaled", "1.5 kWh", 1500, "Wh", true},
		{"milliamp hours scaled", "5000 mAh", 5, "Ah", true},
		{"unit with trailing words", "1024 Wh capacity", 1024, "Wh", true},
		{"percent", "85%", 85, "%", true},
		{"decibel variant", "45 dBA", 45, "dB", true},
		{"minutes to hours", "90 min", 1.5, "h", true},
		{"no number", "fast charging", 0, "", false},
		{"empty", "", 0, "", false},
		{"unknown unit passes through", "42 flurbs", 42, "flurbs", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, u, ok := ParseQuantity(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.value, v, 1e-9)
				assert.Equal(t, tt.unit, u)
			}
		})
	}
}

func TestNormalizeVerified(t *testing.T) {
	checks := Normalize([]FactCheck{
		{Claim: "1024Wh capacity", Claimed: "1024 Wh", Reality: "1000 Wh"},
	})
	require.Len(t, checks, 1)

	// 2.3% shortfall is inside the 8% Wh tolerance.
	assert.Equal(t, VerdictVerified, checks[0].Verdict)
	assert.Equal(t, SeverityNone, checks[0].Severity)
	require.NotNil(t, checks[0].WithinTolerance)
	assert.True(t, *checks[0].WithinTolerance)
}

func TestNormalizeSeverityGrading(t *testing.T) {
	tests := []struct {
		name     string
		claimed  string
		reality  string
		verdict  string
		severity string
	}{
		// Wh tolerance 8%: minor up to 16%, moderate up to 32%, major beyond.
		{"minor shortfall", "1000 Wh", "870 Wh", VerdictDiscrepancy, SeverityMinor},
		{"moderate shortfall", "1000 Wh", "720 Wh", VerdictDiscrepancy, SeverityModerate},
		{"major shortfall", "1000 Wh", "500 Wh", VerdictDiscrepancy, SeverityMajor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checks := Normalize([]FactCheck{{Claim: "c", Claimed: tt.claimed, Reality: tt.reality}})
			require.Len(t, checks, 1)
			assert.Equal(t, tt.verdict, checks[0].Verdict)
			assert.Equal(t, tt.severity, checks[0].Severity)
		})
	}
}

func TestNormalizeOverdeliveryIsNotADiscrepancy(t *testing.T) {
	checks := Normalize([]FactCheck{
		{Claim: "1000Wh", Claimed: "1000 Wh", Reality: "1100 Wh"},
	})
	require.Len(t, checks, 1)
	assert.Equal(t, VerdictVerified, checks[0].Verdict)
}

func TestNormalizeUnparseablePassesThrough(t *testing.T) {
	checks := Normalize([]FactCheck{
		{Claim: "waterproof", Claimed: "IP67", Reality: "survives rain"},
	})
	require.Len(t, checks, 1)
	assert.Equal(t, VerdictUnverifiable, checks[0].Verdict)
	assert.Nil(t, checks[0].ClaimedValue)
}

func TestNormalizeUnitMismatchIsUnverifiable(t *testing.T) {
	checks := Normalize([]FactCheck{
		{Claim: "power", Claimed: "2000 W", Reality: "1024 Wh"},
	})
	require.Len(t, checks, 1)
	assert.Equal(t, VerdictUnverifiable, checks[0].Verdict)
}

func TestNormalizeKeepsUpstreamVerdictOnUnparseable(t *testing.T) {
	// The verification stage already judged this one; normalization must not
	// overwrite it just because the values are not numeric.
	checks := Normalize([]FactCheck{
		{Claim: "app support", Claimed: "full app control", Reality: "app crashes on pairing", Verdict: VerdictDiscrepancy},
	})
	require.Len(t, checks, 1)
	assert.Equal(t, VerdictDiscrepancy, checks[0].Verdict)
}

func TestToleranceFor(t *testing.T) {
	assert.Equal(t, 0.08, ToleranceFor("Wh"))
	assert.Equal(t, 0.05, ToleranceFor("W"))
	assert.Equal(t, DefaultTolerance, ToleranceFor("flurbs"))
}
