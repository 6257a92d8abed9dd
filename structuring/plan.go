package structuring

import (
	"context"
	"strings"

	"github.com/planforge/planforge/llm"
	"github.com/planforge/planforge/model"
	"github.com/planforge/planforge/store"
)

// FocusArea is one topical partition of the requirement document, extracted
// independently of its siblings.
type FocusArea struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Hints       []string `json:"hints,omitempty"`
}

// ExtractionPlan partitions the requirement document for parallel extraction.
type ExtractionPlan struct {
	FocusAreas []FocusArea `json:"focus_areas"`
}

// PlanState carries one planning round's outcome into extraction.
type PlanState struct {
	Plan     ExtractionPlan
	Feedback string
}

// plan asks the structuring model for an extraction plan. The proposal is
// clamped to the configured area limit; zero usable areas degrade to a
// single whole-document area instead of failing the run.
func (w *Workflow) plan(ctx context.Context, project *store.Project, requirement, feedback string) (PlanState, error) {
	var proposed ExtractionPlan
	_, err := w.llm.CompleteStructured(ctx, llm.Request{
		Capability: string(model.CapabilityForStage("plan")),
		Messages: []llm.Message{
			{Role: "system", Content: planSystemPrompt()},
			{Role: "user", Content: planUserPrompt(project.Title, project.Idea, requirement, feedback, w.cfg.MaxFocusAreas)},
		},
	}, &proposed)
	if err != nil {
		return PlanState{}, err
	}

	areas := make([]FocusArea, 0, len(proposed.FocusAreas))
	for _, a := range proposed.FocusAreas {
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" {
			continue
		}
		areas = append(areas, a)
		if len(areas) == w.cfg.MaxFocusAreas {
			break
		}
	}
	if len(areas) == 0 {
		areas = []FocusArea{{Name: "general", Description: "the whole requirement document"}}
	}
	return PlanState{Plan: ExtractionPlan{FocusAreas: areas}, Feedback: feedback}, nil
}
