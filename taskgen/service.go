// Package taskgen turns a project's structured functions into a persisted
// task graph: a small batch of implementation tasks per function, plus
// task-level dependency edges derived from the inter-function edges with a
// fixed-index selection rule that keeps the result stable across runs.
package taskgen

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/planforge/planforge/config"
	"github.com/planforge/planforge/events"
	"github.com/planforge/planforge/fault"
	"github.com/planforge/planforge/llm"
	"github.com/planforge/planforge/metrics"
	"github.com/planforge/planforge/model"
	"github.com/planforge/planforge/store"
)

// completer is the subset of the llm client the service calls.
type completer interface {
	CompleteStructured(ctx context.Context, req llm.Request, out any) (*llm.Response, error)
}

// Service generates tasks and dependency edges for one project at a time.
type Service struct {
	store     *store.Store
	llm       completer
	publisher *events.Publisher
	recorder  *metrics.Recorder
	logger    *slog.Logger
	cfg       config.TaskGenConfig
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the event publisher. Without one, events are dropped.
func WithPublisher(p *events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a task generation service.
func New(st *store.Store, client *llm.Client, cfg config.TaskGenConfig, opts ...Option) *Service {
	s := &Service{
		store:  st,
		llm:    client,
		logger: slog.Default(),
		cfg:    cfg,
	}
	if s.cfg.BatchSize <= 0 {
		s.cfg.BatchSize = config.DefaultConfig().TaskGen.BatchSize
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateOptions tune one generation run.
type GenerateOptions struct {
	// BatchSize caps the tasks generated per function. 0 uses the
	// configured default.
	BatchSize int

	// Overwrite deletes the project's existing tasks (and their edges)
	// before inserting the new set, in the same transaction.
	Overwrite bool
}

// GenerateResult is the outcome of one generation run.
type GenerateResult struct {
	Tasks []store.Task
	Edges []store.TaskDependency

	// Order is the recommended implementation order as function codes,
	// topologically sorted with priority fallback for cycle-blocked nodes.
	Order []string

	// Failures lists the functions that were skipped: malformed rows and
	// per-function generation errors. Siblings are unaffected.
	Failures []*fault.PartialFailure
}

type taskResponse struct {
	Tasks []struct {
		Title          string  `json:"title"`
		Description    string  `json:"description"`
		EstimatedHours float64 `json:"estimated_hours"`
	} `json:"tasks"`
}

// Generate produces and persists the task graph for projectID. An empty
// function list yields zero tasks, not an error. Malformed functions are
// skipped with a recorded failure rather than aborting the batch.
func (s *Service) Generate(ctx context.Context, projectID uuid.UUID, opts GenerateOptions) (*GenerateResult, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	functions, err := s.store.ListFunctions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	deps, err := s.store.ListFunctionDependencies(ctx, projectID)
	if err != nil {
		return nil, err
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = s.cfg.BatchSize
	}

	start := time.Now()
	res := &GenerateResult{}
	tasksByFunction := make(map[uuid.UUID][]store.Task, len(functions))
	orderIndex := 0

	for _, fn := range functions {
		if fn.Category == "" || fn.Priority == "" {
			res.Failures = append(res.Failures, fault.NewPartialFailure(fn.FunctionCode,
				fault.NewValidationError("function", "missing category or priority")))
			continue
		}

		tasks, err := s.generateFunctionTasks(ctx, project, fn, batchSize)
		if err != nil {
			res.Failures = append(res.Failures, fault.NewPartialFailure(fn.FunctionCode, err))
			s.logger.Warn("Task generation failed for function",
				"project_id", projectID,
				"function_code", fn.FunctionCode,
				"error", err)
			continue
		}
		for i := range tasks {
			tasks[i].OrderIndex = orderIndex
			orderIndex++
		}
		tasksByFunction[fn.ID] = tasks
		res.Tasks = append(res.Tasks, tasks...)
	}

	res.Edges = SelectEdges(deps, tasksByFunction)
	res.Order = RecommendOrder(functions, deps)

	if err := s.store.BulkCreateTasks(ctx, projectID, res.Tasks, res.Edges, opts.Overwrite); err != nil {
		s.publisher.Publish(events.TaskGenFailedEvent{ProjectID: projectID, Error: err.Error()})
		if s.recorder != nil {
			s.recorder.RecordWorkflow("taskgen", "failed", time.Since(start))
		}
		return nil, fmt.Errorf("persist tasks: %w", err)
	}

	s.publisher.Publish(events.TaskGenCompletedEvent{
		ProjectID:     projectID,
		FunctionCount: len(functions),
		TaskCount:     len(res.Tasks),
		EdgeCount:     len(res.Edges),
	})
	if s.recorder != nil {
		s.recorder.RecordWorkflow("taskgen", "completed", time.Since(start))
	}
	s.logger.Info("Task generation completed",
		"project_id", projectID,
		"functions", len(functions),
		"tasks", len(res.Tasks),
		"edges", len(res.Edges),
		"skipped_functions", len(res.Failures),
		"overwrite", opts.Overwrite)

	return res, nil
}

// generateFunctionTasks runs one structured completion for fn and maps the
// response into tasks with pre-assigned IDs, so edge selection can reference
// them before persistence.
func (s *Service) generateFunctionTasks(ctx context.Context, project *store.Project, fn store.StructuredFunction, batchSize int) ([]store.Task, error) {
	var resp taskResponse
	_, err := s.llm.CompleteStructured(ctx, llm.Request{
		Capability: string(model.CapabilityForStage("taskgen")),
		Messages: []llm.Message{
			{Role: "system", Content: taskSystemPrompt(batchSize)},
			{Role: "user", Content: taskUserPrompt(project, fn)},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Tasks) > batchSize {
		resp.Tasks = resp.Tasks[:batchSize]
	}

	tasks := make([]store.Task, 0, len(resp.Tasks))
	for _, t := range resp.Tasks {
		if t.Title == "" {
			continue
		}
		fnID := fn.ID
		tasks = append(tasks, store.Task{
			ID:             uuid.New(),
			ProjectID:      project.ID,
			FunctionID:     &fnID,
			Title:          t.Title,
			Description:    t.Description,
			Category:       fn.Category,
			Priority:       fn.Priority,
			EstimatedHours: t.EstimatedHours,
			Status:         store.TaskStatusTodo,
		})
	}
	if len(tasks) == 0 {
		return nil, fault.NewValidationError("tasks", "model produced no usable tasks")
	}
	return tasks, nil
}
