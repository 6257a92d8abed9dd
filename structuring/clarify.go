package structuring

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/planforge/planforge/llm"
	"github.com/planforge/planforge/model"
	"github.com/planforge/planforge/store"
)

// maxClarificationQuestions caps one clarification round.
const maxClarificationQuestions = 5

// ClarificationQuestion asks the project owner to confirm or correct one
// low-confidence function.
type ClarificationQuestion struct {
	FunctionCode string `json:"function_code"`
	FunctionName string `json:"function_name"`
	Question     string `json:"question"`
	Reason       string `json:"reason,omitempty"`
}

type clarifyResponse struct {
	Questions []ClarificationQuestion `json:"questions"`
}

// GenerateClarifications produces questions for the project's functions
// whose extraction confidence fell below the configured threshold. A
// project without low-confidence functions gets none, and no model call
// is made.
func (w *Workflow) GenerateClarifications(ctx context.Context, projectID uuid.UUID) ([]ClarificationQuestion, error) {
	project, err := w.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	functions, err := w.store.ListFunctions(ctx, projectID)
	if err != nil {
		return nil, err
	}

	low := make([]store.StructuredFunction, 0, len(functions))
	byCode := make(map[string]store.StructuredFunction)
	for _, f := range functions {
		if f.ExtractionConfidence < w.cfg.ConfidenceThreshold {
			low = append(low, f)
			byCode[f.FunctionCode] = f
		}
	}
	if len(low) == 0 {
		return nil, nil
	}

	var resp clarifyResponse
	_, err = w.llm.CompleteStructured(ctx, llm.Request{
		Capability: string(model.CapabilityFast),
		Messages: []llm.Message{
			{Role: "system", Content: clarifySystemPrompt()},
			{Role: "user", Content: clarifyUserPrompt(project.Title, low, maxClarificationQuestions)},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	questions := make([]ClarificationQuestion, 0, len(resp.Questions))
	for _, q := range resp.Questions {
		f, known := byCode[strings.TrimSpace(q.FunctionCode)]
		if !known || strings.TrimSpace(q.Question) == "" {
			continue
		}
		q.FunctionCode = f.FunctionCode
		q.FunctionName = f.FunctionName
		questions = append(questions, q)
		if len(questions) == maxClarificationQuestions {
			break
		}
	}

	w.logger.Info("Clarification questions generated",
		"project_id", projectID,
		"low_confidence", len(low),
		"questions", len(questions))
	return questions, nil
}
