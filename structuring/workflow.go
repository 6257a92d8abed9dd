// Package structuring implements the function structuring workflow: an
// extraction plan fans out into per-focus-area pipelines whose merged
// output is scored for coverage and persisted once complete or out of
// iterations.
package structuring

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planforge/planforge/config"
	"github.com/planforge/planforge/events"
	"github.com/planforge/planforge/fault"
	"github.com/planforge/planforge/llm"
	"github.com/planforge/planforge/metrics"
	"github.com/planforge/planforge/store"
)

// completer is the subset of the llm client the workflow calls. An
// interface so tests can substitute canned responses.
type completer interface {
	CompleteStructured(ctx context.Context, req llm.Request, out any) (*llm.Response, error)
}

// Workflow runs function structuring for one project at a time.
type Workflow struct {
	store     *store.Store
	llm       completer
	publisher *events.Publisher
	recorder  *metrics.Recorder
	logger    *slog.Logger
	cfg       config.StructuringConfig
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithPublisher sets the event publisher. Without one, events are dropped.
func WithPublisher(p *events.Publisher) Option {
	return func(w *Workflow) { w.publisher = p }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(w *Workflow) { w.recorder = r }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// New creates a structuring workflow. Zero config fields fall back to the
// package defaults.
func New(st *store.Store, client *llm.Client, cfg config.StructuringConfig, opts ...Option) *Workflow {
	w := &Workflow{
		store:  st,
		llm:    client,
		logger: slog.Default(),
		cfg:    normalizeConfig(cfg),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func normalizeConfig(cfg config.StructuringConfig) config.StructuringConfig {
	def := config.DefaultConfig().Structuring
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.MaxFocusAreas <= 0 {
		cfg.MaxFocusAreas = def.MaxFocusAreas
	}
	if cfg.CoverageThreshold <= 0 {
		cfg.CoverageThreshold = def.CoverageThreshold
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if cfg.AreaConcurrency <= 0 {
		cfg.AreaConcurrency = def.AreaConcurrency
	}
	return cfg
}

// StructuringResult is the outcome of one structuring run. Functions and
// Dependencies are the persisted records with their assigned codes.
type StructuringResult struct {
	Functions    []store.StructuredFunction
	Dependencies []store.FunctionDependency
	Coverage     CoverageReport
	Iterations   int

	// RunErrors lists the per-area failures and normalization drops the
	// run absorbed without aborting.
	RunErrors []string

	// LowConfidence lists the codes of persisted functions whose
	// extraction confidence fell below the configured threshold.
	LowConfidence []string
}

// Run executes the structuring workflow for projectID over requirementText.
// It terminates within the configured iteration budget and persists the
// best available merged result even when coverage never reaches the
// threshold.
func (w *Workflow) Run(ctx context.Context, projectID uuid.UUID, requirementText string) (*StructuringResult, error) {
	requirementText = strings.TrimSpace(requirementText)
	if requirementText == "" {
		return nil, fault.NewValidationError("requirement_text", "must not be empty")
	}
	project, err := w.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	w.publisher.Publish(events.StructuringStartedEvent{ProjectID: projectID, Title: project.Title})

	planState, err := w.plan(ctx, project, requirementText, "")
	if err != nil {
		return nil, w.fail(projectID, start, fmt.Errorf("plan: %w", err))
	}

	var (
		merged     MergeState
		coverage   CoverageReport
		runErrors  []string
		iterations int
	)
	areas := planState.Plan.FocusAreas

	for {
		iterations++

		results := w.extractAreas(ctx, areas, requirementText)
		for _, res := range results {
			if res.Err != nil {
				runErrors = append(runErrors, fmt.Sprintf("area %s: %v", res.Area.Name, res.Err))
			}
			runErrors = append(runErrors, res.Warnings...)
		}
		merged = mergeResults(merged, results)

		coverage, err = w.analyzeCoverage(ctx, requirementText, merged)
		if err != nil {
			// Without a verdict there is nothing to guide another round;
			// fall through and persist what was extracted so far.
			runErrors = append(runErrors, fmt.Sprintf("coverage analysis: %v", err))
			break
		}

		w.logger.Info("Coverage assessed",
			"project_id", projectID,
			"iteration", iterations,
			"score", coverage.Score,
			"classification", coverage.Classification,
			"functions", len(merged.Functions))

		if coverage.Classification == CoverageComplete || iterations >= w.cfg.MaxIterations {
			break
		}

		if coverage.Classification == CoverageReplan {
			replanned, perr := w.plan(ctx, project, requirementText, replanFeedback(coverage))
			if perr != nil {
				runErrors = append(runErrors, fmt.Sprintf("replan: %v", perr))
				break
			}
			planState = replanned
			areas = planState.Plan.FocusAreas
			continue
		}

		// continue verdict: re-extract only what the analysis flagged as
		// uncovered.
		areas = continueAreas(coverage, areas)
	}

	functions, deps := toRecords(projectID, merged)
	if err := w.store.BulkCreateFunctions(ctx, projectID, functions, deps); err != nil {
		return nil, w.fail(projectID, start, fmt.Errorf("persist functions: %w", err))
	}

	var lowConfidence []string
	for _, f := range functions {
		if f.ExtractionConfidence < w.cfg.ConfidenceThreshold {
			lowConfidence = append(lowConfidence, f.FunctionCode)
		}
	}

	w.publisher.Publish(events.StructuringCompletedEvent{
		ProjectID:     projectID,
		AreaCount:     len(planState.Plan.FocusAreas),
		FunctionCount: len(functions),
		Iterations:    iterations,
		Coverage:      coverage.Score,
		NeedsClarity:  len(lowConfidence) > 0,
	})
	if w.recorder != nil {
		w.recorder.RecordWorkflow("structuring", "completed", time.Since(start))
	}
	w.logger.Info("Structuring completed",
		"project_id", projectID,
		"functions", len(functions),
		"dependencies", len(deps),
		"iterations", iterations,
		"coverage", coverage.Score,
		"absorbed_errors", len(runErrors))

	return &StructuringResult{
		Functions:     functions,
		Dependencies:  deps,
		Coverage:      coverage,
		Iterations:    iterations,
		RunErrors:     runErrors,
		LowConfidence: lowConfidence,
	}, nil
}

// extractAreas runs the per-area pipelines concurrently, bounded by the
// configured concurrency. Results are indexed by area so the merge input
// order does not depend on completion order. A panicking pipeline becomes
// that area's error.
func (w *Workflow) extractAreas(ctx context.Context, areas []FocusArea, requirement string) []AreaResult {
	results := make([]AreaResult, len(areas))
	sem := make(chan struct{}, w.cfg.AreaConcurrency)
	var wg sync.WaitGroup

	for i, area := range areas {
		wg.Add(1)
		go func(i int, area FocusArea) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					results[i] = AreaResult{Area: area, Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			results[i] = w.runArea(ctx, area, requirement)
		}(i, area)
	}
	wg.Wait()

	return results
}

// continueAreas converts the coverage verdict's uncovered notes into the
// next round's focus areas, falling back to the previous plan when the
// analysis named none.
func continueAreas(coverage CoverageReport, previous []FocusArea) []FocusArea {
	areas := make([]FocusArea, 0, len(coverage.UncoveredAreas))
	for _, name := range coverage.UncoveredAreas {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		areas = append(areas, FocusArea{Name: name, Description: coverage.Feedback})
	}
	if len(areas) == 0 {
		return previous
	}
	return areas
}

func replanFeedback(coverage CoverageReport) string {
	parts := make([]string, 0, 2)
	if coverage.Feedback != "" {
		parts = append(parts, coverage.Feedback)
	}
	if len(coverage.UncoveredAreas) > 0 {
		parts = append(parts, "Uncovered: "+strings.Join(coverage.UncoveredAreas, ", "))
	}
	return strings.Join(parts, "\n")
}

// toRecords converts the merged state into store records, pre-assigning
// function IDs so dependency edges can reference them before insert.
func toRecords(projectID uuid.UUID, merged MergeState) ([]store.StructuredFunction, []store.FunctionDependency) {
	functions := make([]store.StructuredFunction, len(merged.Functions))
	byName := make(map[string]uuid.UUID, len(merged.Functions))
	for i, f := range merged.Functions {
		id := uuid.New()
		byName[normalizeName(f.Name)] = id
		functions[i] = store.StructuredFunction{
			ID:                   id,
			ProjectID:            projectID,
			FunctionName:         f.Name,
			Description:          f.Description,
			Category:             f.Category,
			Priority:             f.Priority,
			ExtractionConfidence: f.Confidence,
			OrderIndex:           i,
		}
	}

	deps := make([]store.FunctionDependency, 0, len(merged.Dependencies))
	for _, d := range merged.Dependencies {
		typ := strings.ToLower(strings.TrimSpace(d.Type))
		switch typ {
		case store.DependencyRequires, store.DependencyBlocks, store.DependencyRelates:
		default:
			typ = store.DependencyRequires
		}
		deps = append(deps, store.FunctionDependency{
			ID:               uuid.New(),
			ProjectID:        projectID,
			SourceFunctionID: byName[normalizeName(d.Source)],
			TargetFunctionID: byName[normalizeName(d.Target)],
			DependencyType:   typ,
			Reason:           d.Reason,
		})
	}

	return functions, deps
}

// fail publishes the failure event, records the run outcome, and returns err.
func (w *Workflow) fail(projectID uuid.UUID, start time.Time, err error) error {
	w.publisher.Publish(events.StructuringFailedEvent{ProjectID: projectID, Error: err.Error()})
	if w.recorder != nil {
		w.recorder.RecordWorkflow("structuring", "error", time.Since(start))
	}
	return err
}
