package quality

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planforge/planforge/store"
)

func TestImproveAlreadyAcceptableIsNoOp(t *testing.T) {
	fake := &fakeCompleter{
		consistency:  always(cleanAxis),
		completeness: always(cleanAxis),
	}
	ev, st := newTestEvaluator(t, fake)
	p, f := seedEvalProject(t, st)
	seedEvalTask(t, st, p.ID, &f.ID, "Implement signup")

	res, err := ev.Improve(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, res.Status)
	assert.Zero(t, res.TotalIterations)
	assert.Zero(t, fake.correctionCalls, "no corrections on an acceptable set")

	tasks, err := st.ListTasksByProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1, "no writes on an acceptable set")
}

func TestImproveFixesCriticalGapInOneIteration(t *testing.T) {
	// Scenario: one critical domain-completeness gap, fixed by one
	// synthesized task; re-evaluation accepts.
	gap := Issue{Description: "No task implements password reset"}
	fake := &fakeCompleter{
		consistency: always(cleanAxis),
		completeness: func(round int) (string, error) {
			if round == 1 {
				return `{"score": 0.6, "issues": [
					{"severity": "critical", "category": "auth",
					 "description": "No task implements password reset",
					 "suggested_action": "Add a reset email task"}
				]}`, nil
			}
			return `{"score": 0.95, "issues": []}`, nil
		},
		corrections: always(fmt.Sprintf(`{"edits": [], "new_tasks": [
			{"issue_key": %q, "title": "Implement the password reset email flow",
			 "description": "Send the reset token email and verify it",
			 "function_code": "F001", "estimated_hours": 3}
		]}`, gap.Key())),
	}
	ev, st := newTestEvaluator(t, fake)
	p, f := seedEvalProject(t, st)
	seedEvalTask(t, st, p.ID, &f.ID, "Implement signup")

	res, err := ev.Improve(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, res.Status)
	assert.Equal(t, 1, res.TotalIterations)
	require.Len(t, res.Iterations, 1)
	assert.Equal(t, 1, res.Iterations[0].Applied)
	assert.Equal(t, 1, res.Iterations[0].Resolved)
	assert.Zero(t, res.Iterations[0].Remaining)

	tasks, err := st.ListTasksByProject(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	var synthesized *store.Task
	for i := range tasks {
		if tasks[i].Title == "Implement the password reset email flow" {
			synthesized = &tasks[i]
		}
	}
	require.NotNil(t, synthesized)
	assert.Equal(t, f.ID, *synthesized.FunctionID, "function_code resolved to the function")
	assert.Equal(t, store.CategoryAuth, synthesized.Category, "category inherited from the function")
}

func TestImproveExhaustsAtIterationCap(t *testing.T) {
	// The critical issue never resolves; the loop must stop at the cap
	// and report exhaustion, never spin.
	stubborn := Issue{Description: "Tasks contradict each other on the ORM"}
	fake := &fakeCompleter{
		consistency: always(fmt.Sprintf(`{"score": 0.5, "issues": [
			{"severity": "critical", "description": %q}
		]}`, stubborn.Description)),
		completeness: always(cleanAxis),
		corrections: always(fmt.Sprintf(`{"edits": [
			{"issue_key": %q, "task_title": "Implement signup", "new_description": "Use the one agreed ORM"}
		], "new_tasks": []}`, stubborn.Key())),
	}
	ev, st := newTestEvaluator(t, fake)
	p, f := seedEvalProject(t, st)
	seedEvalTask(t, st, p.ID, &f.ID, "Implement signup")

	res, err := ev.Improve(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExhausted, res.Status)
	assert.Equal(t, ev.cfg.MaxIterations, res.TotalIterations)
	require.Len(t, res.Final.Issues, 1)

	// The correction was applied exactly once across all iterations.
	assert.Equal(t, 1, fake.correctionCalls)
}

func TestImproveEditUpdatesExistingTask(t *testing.T) {
	issue := Issue{Description: "Signup task lacks validation detail"}
	fake := &fakeCompleter{
		consistency: func(round int) (string, error) {
			if round == 1 {
				return fmt.Sprintf(`{"score": 0.3, "issues": [
					{"severity": "high", "description": %q}
				]}`, issue.Description), nil
			}
			return cleanAxis, nil
		},
		completeness: always(cleanAxis),
		corrections: always(fmt.Sprintf(`{"edits": [
			{"issue_key": %q, "task_title": "Implement signup",
			 "new_description": "Implement signup with server-side email validation",
			 "estimated_hours": 4}
		], "new_tasks": []}`, issue.Key())),
	}
	ev, st := newTestEvaluator(t, fake)
	p, f := seedEvalProject(t, st)
	task := seedEvalTask(t, st, p.ID, &f.ID, "Implement signup")

	res, err := ev.Improve(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, res.Status)

	updated, err := st.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Implement signup with server-side email validation", updated.Description)
	assert.Equal(t, 4.0, updated.EstimatedHours)
	assert.Equal(t, "Implement signup", updated.Title, "title untouched by a description edit")
}

func TestImproveCorrectionFailurePropagates(t *testing.T) {
	fake := &fakeCompleter{
		consistency: always(`{"score": 0.3, "issues": [
			{"severity": "critical", "description": "broken"}
		]}`),
		completeness: always(cleanAxis),
		corrections: func(int) (string, error) {
			return "", fmt.Errorf("model unavailable")
		},
	}
	ev, st := newTestEvaluator(t, fake)
	p, f := seedEvalProject(t, st)
	seedEvalTask(t, st, p.ID, &f.ID, "Implement signup")

	_, err := ev.Improve(context.Background(), p.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply corrections")
}
