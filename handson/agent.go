// Package handson generates a structured implementation guide per task
// through a plan-execute-generate pipeline: one fast model call decides what
// contextual information is needed, the gathering actions run concurrently
// with no model calls at all, and one writing call produces the guide. A
// deterministic checklist scores the output's completeness.
package handson

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/planforge/planforge/fault"
	"github.com/planforge/planforge/llm"
	"github.com/planforge/planforge/metrics"
	"github.com/planforge/planforge/store"
	"github.com/planforge/planforge/tools/docfetch"
)

// Generation result statuses.
const (
	StatusGenerated = "generated"
	StatusSkipped   = "skipped"
)

// completer is the subset of the llm client the agent calls.
type completer interface {
	CompleteStructured(ctx context.Context, req llm.Request, out any) (*llm.Response, error)
}

// fetcher retrieves documentation pages. Implemented by tools/docfetch.
type fetcher interface {
	Fetch(ctx context.Context, url string) (*docfetch.Document, error)
}

// Agent generates hands-on guides. Safe for concurrent use across tasks;
// each Generate call owns its own pipeline state.
type Agent struct {
	store    *store.Store
	llm      completer
	search   llm.Searcher
	fetch    fetcher
	recorder *metrics.Recorder
	logger   *slog.Logger

	planTimeout     time.Duration
	gatherTimeout   time.Duration
	generateTimeout time.Duration
}

// Option configures an Agent.
type Option func(*Agent)

// WithSearcher sets the web search tool. Without one (or with one that is
// not Available), search actions are skipped, not failed.
func WithSearcher(s llm.Searcher) Option {
	return func(a *Agent) { a.search = s }
}

// WithFetcher sets the document fetch tool. Without one, document actions
// are skipped.
func WithFetcher(f fetcher) Option {
	return func(a *Agent) { a.fetch = f }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(a *Agent) { a.recorder = r }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// New creates a hands-on agent.
func New(st *store.Store, client *llm.Client, opts ...Option) *Agent {
	a := &Agent{
		store:           st,
		llm:             client,
		logger:          slog.Default(),
		planTimeout:     30 * time.Second,
		gatherTimeout:   60 * time.Second,
		generateTimeout: 120 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GenerateResult is the outcome of one guide generation.
type GenerateResult struct {
	Status string `json:"status"`

	// Reason explains a skip ("already_exists").
	Reason string `json:"reason,omitempty"`

	TaskID       uuid.UUID          `json:"task_id"`
	HandsOn      *store.TaskHandsOn `json:"-"`
	Output       *TaskHandsOnOutput `json:"output,omitempty"`
	QualityScore float64            `json:"quality_score"`

	// GatherErrors lists the information-gathering actions that failed
	// and were omitted from the generation context.
	GatherErrors []GatherError `json:"gather_errors,omitempty"`
}

// Generate produces and persists the guide for taskID. A task that already
// has a guide is skipped without touching the existing record; regeneration
// requires deleting it first. Gathering failures degrade the context but
// never fail the pipeline; a Generate-stage parse failure (after the
// client's repair pass) propagates to the caller.
func (a *Agent) Generate(ctx context.Context, taskID uuid.UUID) (*GenerateResult, error) {
	if existing, err := a.store.GetHandsOnByTask(ctx, taskID); err == nil {
		a.logger.Debug("Guide already exists, skipping", "task_id", taskID)
		return &GenerateResult{
			Status:       StatusSkipped,
			Reason:       "already_exists",
			TaskID:       taskID,
			HandsOn:      existing,
			QualityScore: existing.QualityScore,
		}, nil
	} else if !fault.IsValidation(err) {
		return nil, err
	}

	task, err := a.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	project, err := a.store.GetProject(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}

	plan, err := a.plan(ctx, project, task)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	gathered := a.execute(ctx, project, task, plan)

	output, resp, err := a.generate(ctx, project, task, plan, gathered)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	score := Score(output)
	handsOn, err := a.persist(ctx, task, plan, gathered, output, resp, score)
	if err != nil {
		return nil, err
	}

	if a.recorder != nil {
		a.recorder.RecordJobUnit("handson", "completed")
	}
	a.logger.Info("Guide generated",
		"task_id", taskID,
		"quality_score", score,
		"gather_errors", len(gathered.Errors),
		"references", len(gathered.References))

	return &GenerateResult{
		Status:       StatusGenerated,
		TaskID:       taskID,
		HandsOn:      handsOn,
		Output:       output,
		QualityScore: score,
		GatherErrors: gathered.Errors,
	}, nil
}

// persist writes the TaskHandsOn row, including generation metadata.
func (a *Agent) persist(ctx context.Context, task *store.Task, plan *InformationPlan, gathered *GatheredContext, output *TaskHandsOnOutput, resp *llm.Response, score float64) (*store.TaskHandsOn, error) {
	content, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("marshal guide: %w", err)
	}

	urls := make([]string, 0, len(gathered.References)+len(gathered.Documents))
	for _, ref := range gathered.References {
		urls = append(urls, ref.URL)
	}
	for _, doc := range gathered.Documents {
		urls = append(urls, doc.URL)
	}

	now := time.Now()
	handsOn := &store.TaskHandsOn{
		TaskID:          task.ID,
		Content:         datatypes.JSON(content),
		QualityScore:    score,
		InformationDate: &now,
	}
	if resp != nil {
		handsOn.ModelName = resp.Model
	}
	if len(plan.SearchQueries) > 0 {
		if data, err := json.Marshal(plan.SearchQueries); err == nil {
			handsOn.SearchQueries = datatypes.JSON(data)
		}
	}
	if len(urls) > 0 {
		if data, err := json.Marshal(urls); err == nil {
			handsOn.ReferencedURLs = datatypes.JSON(data)
		}
	}

	if err := a.store.CreateHandsOn(ctx, handsOn); err != nil {
		return nil, fmt.Errorf("persist guide: %w", err)
	}
	return handsOn, nil
}
