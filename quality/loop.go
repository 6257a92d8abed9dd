package quality

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/planforge/planforge/events"
	"github.com/planforge/planforge/llm"
	"github.com/planforge/planforge/model"
	"github.com/planforge/planforge/store"
)

// Improvement loop terminal states.
const (
	StatusAccepted  = "accepted"
	StatusExhausted = "exhausted"
)

// IterationReport records one improvement round for observability.
type IterationReport struct {
	Iteration int `json:"iteration"`
	Resolved  int `json:"resolved"`
	Remaining int `json:"remaining"`
	Applied   int `json:"applied"`
}

// ImproveResult is the outcome of one improvement loop run.
type ImproveResult struct {
	// Status is "accepted" or "exhausted". An unrecoverable evaluation or
	// correction error is returned as an error instead.
	Status          string            `json:"status"`
	Final           *Evaluation       `json:"final"`
	TotalIterations int               `json:"total_iterations"`
	Iterations      []IterationReport `json:"iterations,omitempty"`
}

type correctionResponse struct {
	Edits []struct {
		IssueKey       string  `json:"issue_key"`
		TaskTitle      string  `json:"task_title"`
		NewTitle       string  `json:"new_title,omitempty"`
		NewDescription string  `json:"new_description,omitempty"`
		EstimatedHours float64 `json:"estimated_hours,omitempty"`
	} `json:"edits"`
	NewTasks []struct {
		IssueKey       string  `json:"issue_key"`
		Title          string  `json:"title"`
		Description    string  `json:"description"`
		FunctionCode   string  `json:"function_code,omitempty"`
		Category       string  `json:"category,omitempty"`
		Priority       string  `json:"priority,omitempty"`
		EstimatedHours float64 `json:"estimated_hours,omitempty"`
	} `json:"new_tasks"`
}

// Improve runs the evaluate-correct loop for the project until the task set
// is acceptable or the iteration budget is spent. An already-acceptable set
// returns accepted with zero iterations and no writes. Each issue's
// correction is applied at most once across iterations, keyed by the
// issue's normalized-description hash; a re-detected issue whose fix was
// already applied is carried as open but not re-fixed.
func (e *Evaluator) Improve(ctx context.Context, projectID uuid.UUID) (*ImproveResult, error) {
	start := time.Now()
	eval, err := e.Evaluate(ctx, projectID)
	if err != nil {
		return nil, err
	}

	res := &ImproveResult{Final: eval}
	if eval.IsAcceptable {
		res.Status = StatusAccepted
		e.finish(projectID, res, start)
		return res, nil
	}

	applied := make(map[string]bool)
	for res.TotalIterations < e.cfg.MaxIterations {
		res.TotalIterations++

		appliedNow, err := e.applyCorrections(ctx, projectID, eval.Issues, applied)
		if err != nil {
			if e.recorder != nil {
				e.recorder.RecordWorkflow("quality", "error", time.Since(start))
			}
			return nil, fmt.Errorf("apply corrections: %w", err)
		}

		next, err := e.Evaluate(ctx, projectID)
		if err != nil {
			if e.recorder != nil {
				e.recorder.RecordWorkflow("quality", "error", time.Since(start))
			}
			return nil, err
		}

		res.Iterations = append(res.Iterations, IterationReport{
			Iteration: res.TotalIterations,
			Resolved:  resolvedCount(eval.Issues, next.Issues),
			Remaining: len(next.Issues),
			Applied:   appliedNow,
		})
		eval = next
		res.Final = eval

		e.logger.Info("Improvement iteration finished",
			"project_id", projectID,
			"iteration", res.TotalIterations,
			"applied", appliedNow,
			"remaining", len(eval.Issues),
			"score", eval.OverallScore)

		if eval.IsAcceptable {
			res.Status = StatusAccepted
			e.finish(projectID, res, start)
			return res, nil
		}
	}

	res.Status = StatusExhausted
	e.finish(projectID, res, start)
	return res, nil
}

// applyCorrections asks the model for corrective modifications addressing
// the still-unhandled issues and persists them. Returns how many issues
// got their correction applied this round.
func (e *Evaluator) applyCorrections(ctx context.Context, projectID uuid.UUID, issues []Issue, applied map[string]bool) (int, error) {
	open := make([]Issue, 0, len(issues))
	for _, issue := range issues {
		if !applied[issue.Key()] {
			open = append(open, issue)
		}
	}
	if len(open) == 0 {
		return 0, nil
	}

	snap, err := e.load(ctx, projectID)
	if err != nil {
		return 0, err
	}

	var resp correctionResponse
	_, err = e.llm.CompleteStructured(ctx, llm.Request{
		Capability: string(model.CapabilityForStage("improve")),
		Messages: []llm.Message{
			{Role: "system", Content: correctionSystemPrompt()},
			{Role: "user", Content: correctionUserPrompt(snap, open)},
		},
	}, &resp)
	if err != nil {
		return 0, err
	}

	byTitle := make(map[string]store.Task, len(snap.tasks))
	for _, t := range snap.tasks {
		byTitle[normalizeText(t.Title)] = t
	}
	byCode := make(map[string]store.StructuredFunction, len(snap.functions))
	for _, f := range snap.functions {
		byCode[f.FunctionCode] = f
	}
	openKeys := make(map[string]bool, len(open))
	for _, issue := range open {
		openKeys[issue.Key()] = true
	}

	count := 0
	for _, edit := range resp.Edits {
		if edit.IssueKey != "" && !openKeys[edit.IssueKey] {
			continue
		}
		task, ok := byTitle[normalizeText(edit.TaskTitle)]
		if !ok {
			e.logger.Warn("Correction targets unknown task", "project_id", projectID, "task_title", edit.TaskTitle)
			continue
		}
		changes := store.TaskChanges{}
		if t := strings.TrimSpace(edit.NewTitle); t != "" {
			changes.Title = &t
		}
		if d := strings.TrimSpace(edit.NewDescription); d != "" {
			changes.Description = &d
		}
		if edit.EstimatedHours > 0 {
			changes.EstimatedHours = &edit.EstimatedHours
		}
		if err := e.store.UpdateTask(ctx, task.ID, changes); err != nil {
			return count, err
		}
		if edit.IssueKey != "" {
			applied[edit.IssueKey] = true
		}
		count++
	}

	for _, nt := range resp.NewTasks {
		if nt.IssueKey != "" && !openKeys[nt.IssueKey] {
			continue
		}
		if strings.TrimSpace(nt.Title) == "" {
			continue
		}
		task := &store.Task{
			ProjectID:      projectID,
			Title:          nt.Title,
			Description:    nt.Description,
			Category:       nt.Category,
			Priority:       nt.Priority,
			EstimatedHours: nt.EstimatedHours,
			OrderIndex:     len(snap.tasks) + count,
		}
		if fn, ok := byCode[nt.FunctionCode]; ok {
			fnID := fn.ID
			task.FunctionID = &fnID
			if task.Category == "" {
				task.Category = fn.Category
			}
			if task.Priority == "" {
				task.Priority = fn.Priority
			}
		}
		if err := e.store.CreateTask(ctx, task); err != nil {
			return count, err
		}
		if nt.IssueKey != "" {
			applied[nt.IssueKey] = true
		}
		count++
	}

	// Corrections the model issued without an issue key still count as
	// one applied round, but only keyed corrections are pinned against
	// re-application.
	return count, nil
}

// resolvedCount counts previous issues no longer present by key.
func resolvedCount(before, after []Issue) int {
	still := make(map[string]bool, len(after))
	for _, issue := range after {
		still[issue.Key()] = true
	}
	n := 0
	for _, issue := range before {
		if !still[issue.Key()] {
			n++
		}
	}
	return n
}

func (e *Evaluator) finish(projectID uuid.UUID, res *ImproveResult, start time.Time) {
	switch res.Status {
	case StatusAccepted:
		e.publisher.Publish(events.QualityAcceptedEvent{
			ProjectID:  projectID,
			Score:      res.Final.OverallScore,
			Iterations: res.TotalIterations,
		})
	case StatusExhausted:
		e.publisher.Publish(events.QualityExhaustedEvent{
			ProjectID:  projectID,
			Score:      res.Final.OverallScore,
			Iterations: res.TotalIterations,
			OpenIssues: len(res.Final.Issues),
		})
	}
	if e.recorder != nil {
		e.recorder.RecordWorkflow("quality", res.Status, time.Since(start))
	}
}
