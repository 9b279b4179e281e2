package truth

import "math"

// Deduction weights per discrepancy severity. The index starts at 100 and
// loses points per confirmed discrepancy; unverifiable checks cost a token
// amount so a spec sheet nobody can verify does not score as flawless.
const (
	deductionMinor        = 5.0
	deductionModerate     = 12.0
	deductionMajor        = 25.0
	deductionUnverifiable = 2.0
)

// ScoreBreakdown summarizes how a truth index was computed.
type ScoreBreakdown struct {
	TruthIndex    float64 `json:"truth_index"`
	Verified      int     `json:"verified"`
	Minor         int     `json:"minor"`
	Moderate      int     `json:"moderate"`
	Major         int     `json:"major"`
	Unverifiable  int     `json:"unverifiable"`
	TotalChecks   int     `json:"total_checks"`
	TotalDeducted float64 `json:"total_deducted"`
}

// Score computes the 0-100 truth index from normalized checks.
func Score(checks []NormalizedCheck) ScoreBreakdown {
	b := ScoreBreakdown{TotalChecks: len(checks)}

	for _, c := range checks {
		switch c.Verdict {
		case VerdictVerified:
			b.Verified++
		case VerdictUnverifiable:
			b.Unverifiable++
			b.TotalDeducted += deductionUnverifiable
		case VerdictDiscrepancy:
			switch c.Severity {
			case SeverityMajor:
				b.Major++
				b.TotalDeducted += deductionMajor
			case SeverityModerate:
				b.Moderate++
				b.TotalDeducted += deductionModerate
			default:
				b.Minor++
				b.TotalDeducted += deductionMinor
			}
		}
	}

	b.TruthIndex = clamp(100-b.TotalDeducted, 0, 100)
	return b
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// Progress converts completed/total stage counts into the 0-100 progress
// integer stored on the run row.
func Progress(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}
