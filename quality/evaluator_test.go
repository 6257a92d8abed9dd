package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planforge/planforge/config"
	"github.com/planforge/planforge/llm"
	"github.com/planforge/planforge/store"
)

// fakeCompleter scripts structured completions by inspecting the system
// prompt, so the consistency axis, completeness axis, and correction calls
// can each be scripted independently.
type fakeCompleter struct {
	mu           sync.Mutex
	consistency  func(round int) (string, error)
	completeness func(round int) (string, error)
	corrections  func(round int) (string, error)

	consistencyCalls  int
	completenessCalls int
	correctionCalls   int
}

const (
	cleanAxis = `{"score": 1.0, "issues": []}`
)

func (f *fakeCompleter) CompleteStructured(_ context.Context, req llm.Request, out any) (*llm.Response, error) {
	f.mu.Lock()
	system := req.Messages[0].Content
	var content string
	var err error
	switch {
	case strings.Contains(system, "technical consistency"):
		f.consistencyCalls++
		content, err = f.consistency(f.consistencyCalls)
	case strings.Contains(system, "fully implements"):
		f.completenessCalls++
		content, err = f.completeness(f.completenessCalls)
	case strings.Contains(system, "fixing specific issues"):
		f.correctionCalls++
		content, err = f.corrections(f.correctionCalls)
	default:
		err = fmt.Errorf("unexpected system prompt: %s", system)
	}
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return nil, llm.NewParseError("scripted response", err)
	}
	return &llm.Response{Content: content}, nil
}

func always(content string) func(int) (string, error) {
	return func(int) (string, error) { return content, nil }
}

func newTestEvaluator(t *testing.T, fake *fakeCompleter) (*Evaluator, *store.Store) {
	t.Helper()
	st, err := store.Open(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return &Evaluator{
		store:  st,
		llm:    fake,
		logger: slog.Default(),
		cfg:    config.QualityConfig{MaxIterations: 3, MinScore: 0.7},
	}, st
}

func seedEvalProject(t *testing.T, st *store.Store) (*store.Project, *store.StructuredFunction) {
	t.Helper()
	ctx := context.Background()
	p := &store.Project{Title: "Recipe Sharing App"}
	require.NoError(t, st.CreateProject(ctx, p))
	f := &store.StructuredFunction{
		ProjectID:    p.ID,
		FunctionName: "User registration",
		Description:  "Sign up, login, and password reset over email",
		Category:     store.CategoryAuth,
		Priority:     store.PriorityMust,
	}
	require.NoError(t, st.CreateFunction(ctx, f))
	return p, f
}

func seedEvalTask(t *testing.T, st *store.Store, projectID uuid.UUID, functionID *uuid.UUID, title string) *store.Task {
	t.Helper()
	task := &store.Task{
		ProjectID:  projectID,
		FunctionID: functionID,
		Title:      title,
		Category:   store.CategoryAuth,
		Priority:   store.PriorityMust,
	}
	require.NoError(t, st.CreateTask(context.Background(), task))
	return task
}

func TestEvaluateRunsBothAxesAndConsolidates(t *testing.T) {
	fake := &fakeCompleter{
		consistency: always(`{"score": 0.9, "issues": [
			{"severity": "medium", "description": "Duplicate signup tasks"}
		]}`),
		completeness: always(`{"score": 0.7, "issues": [
			{"severity": "high", "description": "duplicate SIGNUP tasks"},
			{"severity": "low", "description": "No deployment task"}
		]}`),
	}
	ev, st := newTestEvaluator(t, fake)
	p, f := seedEvalProject(t, st)
	seedEvalTask(t, st, p.ID, &f.ID, "Implement signup")

	eval, err := ev.Evaluate(context.Background(), p.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.consistencyCalls)
	assert.Equal(t, 1, fake.completenessCalls)
	assert.InDelta(t, 0.8, eval.OverallScore, 1e-9)
	// The cross-axis duplicate collapses, keeping the higher severity.
	require.Len(t, eval.Issues, 2)
	assert.Equal(t, SeverityHigh, eval.Issues[0].Severity)
	assert.True(t, eval.IsAcceptable, "no critical issues and score above threshold")
}

func TestEvaluateCriticalIssueBlocksAcceptance(t *testing.T) {
	fake := &fakeCompleter{
		consistency: always(cleanAxis),
		completeness: always(`{"score": 0.9, "issues": [
			{"severity": "critical", "description": "No task implements password reset"}
		]}`),
	}
	ev, st := newTestEvaluator(t, fake)
	p, f := seedEvalProject(t, st)
	seedEvalTask(t, st, p.ID, &f.ID, "Implement signup")

	eval, err := ev.Evaluate(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, eval.IsAcceptable)
	assert.GreaterOrEqual(t, eval.OverallScore, 0.7, "score alone would have passed")
}

func TestEvaluateLowScoreBlocksAcceptance(t *testing.T) {
	fake := &fakeCompleter{
		consistency:  always(`{"score": 0.4, "issues": []}`),
		completeness: always(`{"score": 0.5, "issues": []}`),
	}
	ev, st := newTestEvaluator(t, fake)
	p, f := seedEvalProject(t, st)
	seedEvalTask(t, st, p.ID, &f.ID, "Implement signup")

	eval, err := ev.Evaluate(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, eval.IsAcceptable)
	assert.InDelta(t, 0.45, eval.OverallScore, 1e-9)
}

func TestEvaluateEmptyProjectIsAcceptable(t *testing.T) {
	fake := &fakeCompleter{}
	ev, st := newTestEvaluator(t, fake)
	ctx := context.Background()
	p := &store.Project{Title: "Empty"}
	require.NoError(t, st.CreateProject(ctx, p))

	eval, err := ev.Evaluate(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, eval.IsAcceptable)
	assert.Zero(t, fake.consistencyCalls, "no model call for an empty project")
}

func TestEvaluateScoreClamping(t *testing.T) {
	fake := &fakeCompleter{
		consistency:  always(`{"score": 1.7, "issues": []}`),
		completeness: always(`{"score": -0.3, "issues": []}`),
	}
	ev, st := newTestEvaluator(t, fake)
	p, f := seedEvalProject(t, st)
	seedEvalTask(t, st, p.ID, &f.ID, "Implement signup")

	eval, err := ev.Evaluate(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, eval.ConsistencyScore)
	assert.Equal(t, 0.0, eval.CompletenessScore)
}

func TestEvaluateAxisFailurePropagates(t *testing.T) {
	fake := &fakeCompleter{
		consistency: always(cleanAxis),
		completeness: func(int) (string, error) {
			return "", llm.NewFatalError(fmt.Errorf("model unavailable"))
		},
	}
	ev, st := newTestEvaluator(t, fake)
	p, f := seedEvalProject(t, st)
	seedEvalTask(t, st, p.ID, &f.ID, "Implement signup")

	_, err := ev.Evaluate(context.Background(), p.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completeness axis")
}
