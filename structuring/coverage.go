package structuring

import (
	"context"
	"strings"

	"github.com/planforge/planforge/llm"
	"github.com/planforge/planforge/model"
)

// Coverage classifications.
const (
	CoverageComplete = "complete"
	CoverageContinue = "continue"
	CoverageReplan   = "replan"
)

// CoverageReport is the analysis verdict on how completely the merged
// functions represent the requirement document.
type CoverageReport struct {
	Score          float64  `json:"score"`
	Classification string   `json:"classification"`
	UncoveredAreas []string `json:"uncovered_areas,omitempty"`
	Feedback       string   `json:"feedback,omitempty"`
}

// analyzeCoverage scores the merged extraction against the document with one
// analysis completion. Scores are clamped to [0,1]; a score at or above the
// configured threshold always counts as complete, whatever the model's
// classification, and an unknown classification falls back to continue.
func (w *Workflow) analyzeCoverage(ctx context.Context, requirement string, merged MergeState) (CoverageReport, error) {
	var report CoverageReport
	_, err := w.llm.CompleteStructured(ctx, llm.Request{
		Capability: string(model.CapabilityForStage("coverage")),
		Messages: []llm.Message{
			{Role: "system", Content: coverageSystemPrompt()},
			{Role: "user", Content: coverageUserPrompt(requirement, merged.Functions)},
		},
	}, &report)
	if err != nil {
		return CoverageReport{}, err
	}

	report.Score = clamp01(report.Score)
	report.Classification = strings.ToLower(strings.TrimSpace(report.Classification))
	switch report.Classification {
	case CoverageComplete, CoverageContinue, CoverageReplan:
	default:
		report.Classification = CoverageContinue
	}
	if report.Score >= w.cfg.CoverageThreshold {
		report.Classification = CoverageComplete
	}
	return report, nil
}
