// Package quality scores a project's generated task set along two
// independent axes and iteratively corrects it: intra-layer technical
// consistency and per-function domain completeness. The axes run
// concurrently over one immutable snapshot; their findings are consolidated
// into a single severity-ranked issue list driving the improvement loop.
package quality

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/planforge/planforge/config"
	"github.com/planforge/planforge/events"
	"github.com/planforge/planforge/llm"
	"github.com/planforge/planforge/metrics"
	"github.com/planforge/planforge/model"
	"github.com/planforge/planforge/store"
)

// completer is the subset of the llm client the evaluator calls.
type completer interface {
	CompleteStructured(ctx context.Context, req llm.Request, out any) (*llm.Response, error)
}

// Evaluator runs the two-axis evaluation and the improvement loop.
type Evaluator struct {
	store     *store.Store
	llm       completer
	publisher *events.Publisher
	recorder  *metrics.Recorder
	logger    *slog.Logger
	cfg       config.QualityConfig
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithPublisher sets the event publisher. Without one, events are dropped.
func WithPublisher(p *events.Publisher) Option {
	return func(e *Evaluator) { e.publisher = p }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(e *Evaluator) { e.recorder = r }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// New creates a quality evaluator. Zero config fields fall back to the
// package defaults.
func New(st *store.Store, client *llm.Client, cfg config.QualityConfig, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:  st,
		llm:    client,
		logger: slog.Default(),
		cfg:    cfg,
	}
	def := config.DefaultConfig().Quality
	if e.cfg.MaxIterations <= 0 {
		e.cfg.MaxIterations = def.MaxIterations
	}
	if e.cfg.MinScore <= 0 {
		e.cfg.MinScore = def.MinScore
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluation is the consolidated outcome of one two-axis run.
type Evaluation struct {
	ConsistencyScore  float64 `json:"consistency_score"`
	CompletenessScore float64 `json:"completeness_score"`
	OverallScore      float64 `json:"overall_score"`
	IsAcceptable      bool    `json:"is_acceptable"`
	Issues            []Issue `json:"issues"`
}

// snapshot is the immutable task/function state both axes read.
type snapshot struct {
	project   *store.Project
	functions []store.StructuredFunction
	tasks     []store.Task
}

type axisResponse struct {
	Score  float64 `json:"score"`
	Issues []Issue `json:"issues"`
}

// Evaluate scores the project's current task set. Both axes run
// concurrently over the same snapshot; the result consolidates and
// deduplicates their issues. An empty task set is acceptable only when the
// project also has no functions to cover.
func (e *Evaluator) Evaluate(ctx context.Context, projectID uuid.UUID) (*Evaluation, error) {
	snap, err := e.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(snap.tasks) == 0 && len(snap.functions) == 0 {
		return &Evaluation{ConsistencyScore: 1, CompletenessScore: 1, OverallScore: 1, IsAcceptable: true}, nil
	}

	var (
		wg           sync.WaitGroup
		consistency  axisResponse
		completeness axisResponse
		consErr      error
		compErr      error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		consErr = e.runAxis(ctx, consistencySystemPrompt(), consistencyUserPrompt(snap), &consistency)
	}()
	go func() {
		defer wg.Done()
		compErr = e.runAxis(ctx, completenessSystemPrompt(), completenessUserPrompt(snap), &completeness)
	}()
	wg.Wait()
	if consErr != nil {
		return nil, fmt.Errorf("consistency axis: %w", consErr)
	}
	if compErr != nil {
		return nil, fmt.Errorf("completeness axis: %w", compErr)
	}

	tagAxis(consistency.Issues, AxisConsistency)
	tagAxis(completeness.Issues, AxisCompleteness)
	issues := Consolidate(append(consistency.Issues, completeness.Issues...))

	eval := &Evaluation{
		ConsistencyScore:  clamp01(consistency.Score),
		CompletenessScore: clamp01(completeness.Score),
		Issues:            issues,
	}
	eval.OverallScore = clamp01((eval.ConsistencyScore + eval.CompletenessScore) / 2)
	eval.IsAcceptable = eval.OverallScore >= e.cfg.MinScore && countSeverity(issues, SeverityCritical) == 0

	e.logger.Info("Task set evaluated",
		"project_id", projectID,
		"consistency", eval.ConsistencyScore,
		"completeness", eval.CompletenessScore,
		"overall", eval.OverallScore,
		"issues", len(issues),
		"acceptable", eval.IsAcceptable)
	return eval, nil
}

func (e *Evaluator) runAxis(ctx context.Context, system, user string, out *axisResponse) error {
	_, err := e.llm.CompleteStructured(ctx, llm.Request{
		Capability: string(model.CapabilityForStage("evaluate")),
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}, out)
	return err
}

func (e *Evaluator) load(ctx context.Context, projectID uuid.UUID) (*snapshot, error) {
	project, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	functions, err := e.store.ListFunctions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tasks, err := e.store.ListTasksByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &snapshot{project: project, functions: functions, tasks: tasks}, nil
}

func tagAxis(issues []Issue, axis string) {
	for i := range issues {
		issues[i].Axis = axis
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
