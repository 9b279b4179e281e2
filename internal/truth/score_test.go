package truth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreArithmetic(t *testing.T) {
	checks := []NormalizedCheck{
		{FactCheck: FactCheck{Verdict: VerdictVerified}},
		{FactCheck: FactCheck{Verdict: VerdictVerified}},
		{FactCheck: FactCheck{Verdict: VerdictDiscrepancy, Severity: SeverityMinor}},
		{FactCheck: FactCheck{Verdict: VerdictDiscrepancy, Severity: SeverityModerate}},
		{FactCheck: FactCheck{Verdict: VerdictDiscrepancy, Severity: SeverityMajor}},
		{FactCheck: FactCheck{Verdict: VerdictUnverifiable}},
	}

	b := Score(checks)
	assert.Equal(t, 2, b.Verified)
	assert.Equal(t, 1, b.Minor)
	assert.Equal(t, 1, b.Moderate)
	assert.Equal(t, 1, b.Major)
	assert.Equal(t, 1, b.Unverifiable)
	assert.Equal(t, 6, b.TotalChecks)
	// 5 + 12 + 25 + 2 = 44 deducted
	assert.InDelta(t, 44.0, b.TotalDeducted, 1e-9)
	assert.InDelta(t, 56.0, b.TruthIndex, 1e-9)
}

func TestScoreEmptyChecksIsPerfect(t *testing.T) {
	b := Score(nil)
	assert.InDelta(t, 100.0, b.TruthIndex, 1e-9)
	assert.Equal(t, 0, b.TotalChecks)
}

func TestScoreClampsAtZero(t *testing.T) {
	var checks []NormalizedCheck
	for i := 0; i < 10; i++ {
		checks = append(checks, NormalizedCheck{FactCheck: FactCheck{
			Verdict: VerdictDiscrepancy, Severity: SeverityMajor,
		}})
	}
	b := Score(checks)
	assert.InDelta(t, 0.0, b.TruthIndex, 1e-9)
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 0, Progress(0, 5))
	assert.Equal(t, 20, Progress(1, 5))
	assert.Equal(t, 40, Progress(2, 5))
	assert.Equal(t, 60, Progress(3, 5))
	assert.Equal(t, 100, Progress(5, 5))
	assert.Equal(t, 0, Progress(3, 0))
}
