// Package truth implements the deterministic normalization and scoring
// contract behind the audit pipeline: unit parsing for claimed vs measured
// values, tolerance classification, and the truth index arithmetic.
package truth

import (
	"strconv"
	"strings"
)

// Severity levels for a confirmed discrepancy, ordered by weight.
const (
	SeverityNone     = "none"
	SeverityMinor    = "minor"
	SeverityModerate = "moderate"
	SeverityMajor    = "major"
)

// Verdict labels for a normalized check.
const (
	VerdictVerified     = "verified"
	VerdictDiscrepancy  = "discrepancy"
	VerdictUnverifiable = "unverifiable"
)

// FactCheck is one claim/reality pair produced by the verification stage.
// Field names mirror the wire format; older runs used label/status synonyms.
type FactCheck struct {
	Claim     string `json:"claim,omitempty"`
	Label     string `json:"label,omitempty"`
	Metric    string `json:"metric,omitempty"`
	Claimed   string `json:"claimed,omitempty"`
	Reality   string `json:"reality,omitempty"`
	Verdict   string `json:"verdict,omitempty"`
	Severity  string `json:"severity,omitempty"`
	Status    string `json:"status,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
}

// NormalizedCheck is a fact check with both sides parsed into canonical units
// and classified against the metric's tolerance.
type NormalizedCheck struct {
	FactCheck
	ClaimedValue    *float64 `json:"claimed_value,omitempty"`
	MeasuredValue   *float64 `json:"measured_value,omitempty"`
	Unit            string   `json:"unit,omitempty"`
	DeviationPct    *float64 `json:"deviation_pct,omitempty"`
	WithinTolerance *bool    `json:"within_tolerance,omitempty"`
}

// unitDef maps a recognized unit token to its canonical unit and scale factor.
type unitDef struct {
	canonical string
	factor    float64
}

var unitTable = map[string]unitDef{
	"wh":      {"Wh", 1},
	"kwh":     {"Wh", 1000},
	"w":       {"W", 1},
	"kw":      {"W", 1000},
	"v":       {"V", 1},
	"mv":      {"V", 0.001},
	"ah":      {"Ah", 1},
	"mah":     {"Ah", 0.001},
	"kg":      {"kg", 1},
	"g":       {"kg", 0.001},
	"lb":      {"kg", 0.45359237},
	"lbs":     {"kg", 0.45359237},
	"h":       {"h", 1},
	"hr":      {"h", 1},
	"hrs":     {"h", 1},
	"hours":   {"h", 1},
	"min":     {"h", 1.0 / 60},
	"minutes": {"h", 1.0 / 60},
	"%":       {"%", 1},
	"db":      {"dB", 1},
	"dba":     {"dB", 1},
}

// toleranceByUnit holds the relative tolerance applied per canonical unit.
// Battery capacity ratings are allowed more slack than instantaneous power.
var toleranceByUnit = map[string]float64{
	"Wh": 0.08,
	"Ah": 0.08,
	"W":  0.05,
	"V":  0.03,
	"kg": 0.05,
	"h":  0.10,
	"%":  0.05,
	"dB": 0.10,
}

// DefaultTolerance applies when the unit has no specific threshold.
const DefaultTolerance = 0.05

// ParseQuantity extracts a numeric value and canonical unit from a spec string
// like "1,024 Wh", "2000W", or "22.5 lbs". Returns ok=false when no number is
// present.
func ParseQuantity(s string) (value float64, unit string, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, "", false
	}

	// Locate the leading numeric token, tolerating thousands separators.
	var numEnd int
	seenDigit := false
	for numEnd = 0; numEnd < len(s); numEnd++ {
		c := s[numEnd]
		if c >= '0' && c <= '9' {
			seenDigit = true
			continue
		}
		if (c == '.' || c == ',') && seenDigit {
			continue
		}
		if (c == '-' || c == '+') && numEnd == 0 {
			continue
		}
		break
	}
	if !seenDigit {
		return 0, "", false
	}

	numToken := strings.ReplaceAll(s[:numEnd], ",", "")
	v, err := strconv.ParseFloat(strings.TrimSuffix(numToken, "."), 64)
	if err != nil {
		return 0, "", false
	}

	unitToken := strings.ToLower(strings.TrimSpace(s[numEnd:]))
	// Take the first word of the remainder; "Wh capacity" -> "wh".
	if i := strings.IndexAny(unitToken, " \t("); i >= 0 {
		unitToken = unitToken[:i]
	}
	unitToken = strings.Trim(unitToken, ".,;:")

	if def, found := unitTable[unitToken]; found {
		return v * def.factor, def.canonical, true
	}
	return v, unitToken, true
}

// ToleranceFor returns the relative tolerance for a canonical unit.
func ToleranceFor(unit string) float64 {
	if tol, ok := toleranceByUnit[unit]; ok {
		return tol
	}
	return DefaultTolerance
}

// Normalize parses both sides of every check and classifies the deviation.
// Checks whose sides cannot both be parsed, or whose units disagree, pass
// through unchanged with verdict "unverifiable" (never dropped, never guessed).
func Normalize(checks []FactCheck) []NormalizedCheck {
	out := make([]NormalizedCheck, 0, len(checks))
	for _, fc := range checks {
		nc := NormalizedCheck{FactCheck: fc}

		cv, cu, cok := ParseQuantity(fc.Claimed)
		mv, mu, mok := ParseQuantity(fc.Reality)
		if !cok || !mok || cu != mu {
			if nc.Verdict == "" {
				nc.Verdict = VerdictUnverifiable
			}
			out = append(out, nc)
			continue
		}

		nc.ClaimedValue = &cv
		nc.MeasuredValue = &mv
		nc.Unit = cu

		var deviation float64
		if cv != 0 {
			deviation = (cv - mv) / cv
		} else if mv != 0 {
			deviation = 1
		}
		devPct := deviation * 100
		nc.DeviationPct = &devPct

		tol := ToleranceFor(cu)
		// Overdelivery is never a discrepancy.
		within := deviation <= tol
		nc.WithinTolerance = &within

		if within {
			nc.Verdict = VerdictVerified
			nc.Severity = SeverityNone
		} else {
			nc.Verdict = VerdictDiscrepancy
			nc.Severity = classifySeverity(deviation, tol)
		}
		out = append(out, nc)
	}
	return out
}

// classifySeverity grades a shortfall relative to the metric's tolerance.
func classifySeverity(deviation, tolerance float64) string {
	switch {
	case deviation <= 2*tolerance:
		return SeverityMinor
	case deviation <= 4*tolerance:
		return SeverityModerate
	default:
		return SeverityMajor
	}
}
