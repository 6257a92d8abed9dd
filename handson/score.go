package handson

import "strings"

// Section weights for the completeness score. They sum to 1.0.
const (
	weightOverview      = 0.15
	weightPrerequisites = 0.05
	weightTargetFiles   = 0.10
	weightSteps         = 0.20
	weightCodeExamples  = 0.15
	weightVerification  = 0.10
	weightCommonErrors  = 0.10
	weightReferences    = 0.05
	weightTechContext   = 0.05
	weightTips          = 0.05
)

// Minimum content thresholds per section.
const (
	minOverviewChars    = 50
	minSteps            = 3
	minCodeChars        = 20
	minTechContextChars = 40
)

// Score computes the guide's structural completeness in [0,1]: a weighted
// checklist of section presence and minimum lengths. Deliberately not a
// model judgment — the same output always scores the same, and a missing
// web reference or fetched document only ever costs its own section's
// weight.
func Score(out *TaskHandsOnOutput) float64 {
	if out == nil {
		return 0
	}
	score := 0.0

	if len(strings.TrimSpace(out.Overview)) >= minOverviewChars {
		score += weightOverview
	}
	if countNonEmpty(out.Prerequisites) > 0 {
		score += weightPrerequisites
	}

	for _, f := range out.TargetFiles {
		if f.Path != "" && (f.Action == "create" || f.Action == "modify") {
			score += weightTargetFiles
			break
		}
	}

	// Steps earn partial credit up to the minimum count.
	if n := countNonEmpty(out.ImplementationSteps); n > 0 {
		frac := float64(n) / float64(minSteps)
		if frac > 1 {
			frac = 1
		}
		score += weightSteps * frac
	}

	for _, ex := range out.CodeExamples {
		if len(strings.TrimSpace(ex.Code)) >= minCodeChars {
			score += weightCodeExamples
			break
		}
	}

	if countNonEmpty(out.Verification) > 0 {
		score += weightVerification
	}

	for _, ce := range out.CommonErrors {
		if ce.Error != "" && ce.Cause != "" && ce.Solution != "" {
			score += weightCommonErrors
			break
		}
	}

	if countNonEmpty(out.References) > 0 {
		score += weightReferences
	}
	if len(strings.TrimSpace(out.TechnicalContext)) >= minTechContextChars {
		score += weightTechContext
	}

	for _, tip := range out.ImplementationTips {
		if tip.Content != "" && validTipCategory(tip.Category) {
			score += weightTips
			break
		}
	}

	if score > 1 {
		score = 1
	}
	return score
}

func validTipCategory(c string) bool {
	switch c {
	case TipBestPractice, TipAntiPattern, TipGotcha, TipSecurity, TipPerformance:
		return true
	}
	return false
}

func countNonEmpty(items []string) int {
	n := 0
	for _, s := range items {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	return n
}
