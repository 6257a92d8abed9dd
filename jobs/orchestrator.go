// Package jobs runs project-scale batches of guide generation and task
// generation as background jobs. A job row in the store is the per-project
// mutex: it is acquired before any work starts, updated as units progress,
// and deleted on completion and on terminal failure alike so a fresh job
// can always be started.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/planforge/planforge/config"
	"github.com/planforge/planforge/events"
	"github.com/planforge/planforge/fault"
	"github.com/planforge/planforge/handson"
	"github.com/planforge/planforge/metrics"
	"github.com/planforge/planforge/store"
	"github.com/planforge/planforge/taskgen"
)

// Job type labels used in events and metrics.
const (
	JobTypeHandsOn = "handson"
	JobTypeTaskGen = "taskgen"
)

// handsOnGenerator is the subset of the hands-on agent the orchestrator
// dispatches to. Implemented by *handson.Agent.
type handsOnGenerator interface {
	Generate(ctx context.Context, taskID uuid.UUID) (*handson.GenerateResult, error)
}

// taskGenerator is the subset of the task generation service the
// orchestrator dispatches to. Implemented by *taskgen.Service.
type taskGenerator interface {
	Generate(ctx context.Context, projectID uuid.UUID, opts taskgen.GenerateOptions) (*taskgen.GenerateResult, error)
}

// Orchestrator schedules batches over a worker pool with per-unit retries.
type Orchestrator struct {
	store     *store.Store
	handsOn   handsOnGenerator
	taskGen   taskGenerator
	publisher *events.Publisher
	recorder  *metrics.Recorder
	logger    *slog.Logger
	cfg       config.JobsConfig
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPublisher sets the event publisher. Without one, events are dropped.
func WithPublisher(p *events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates a batch orchestrator. Zero config fields fall back to the
// package defaults (4 workers, 60s/10s cooldowns, 3 attempts, 30m hard
// timeout).
func New(st *store.Store, agent *handson.Agent, svc *taskgen.Service, cfg config.JobsConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   st,
		handsOn: agent,
		taskGen: svc,
		logger:  slog.Default(),
		cfg:     cfg,
	}
	defaults := config.DefaultConfig().Jobs
	if o.cfg.Workers <= 0 {
		o.cfg.Workers = defaults.Workers
	}
	if o.cfg.TransientCooldown <= 0 {
		o.cfg.TransientCooldown = defaults.TransientCooldown
	}
	if o.cfg.FailureCooldown <= 0 {
		o.cfg.FailureCooldown = defaults.FailureCooldown
	}
	if o.cfg.MaxAttempts <= 0 {
		o.cfg.MaxAttempts = defaults.MaxAttempts
	}
	if o.cfg.HardTimeout <= 0 {
		o.cfg.HardTimeout = defaults.HardTimeout
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// BatchResult reports a finished batch as counts, never all-or-nothing.
type BatchResult struct {
	JobID     uuid.UUID               `json:"job_id"`
	Completed int                     `json:"completed"`
	Skipped   int                     `json:"skipped"`
	Failed    int                     `json:"failed"`
	Failures  []*fault.PartialFailure `json:"-"`
}

func (o *Orchestrator) retryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       o.cfg.MaxAttempts,
		TransientCooldown: o.cfg.TransientCooldown,
		FailureCooldown:   o.cfg.FailureCooldown,
	}
}

// RunHandsOnBatch generates guides for every task in the project. Tasks are
// dispatched to the worker pool as a fully parallel group; the agent skips
// tasks that already have a guide, so re-running a batch fills only the
// gaps. Returns store.ErrJobActive when the project already has an
// in-flight hands-on job.
func (o *Orchestrator) RunHandsOnBatch(ctx context.Context, projectID uuid.UUID) (*BatchResult, error) {
	tasks, err := o.store.ListTasksByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	job, err := o.store.AcquireHandsOnJob(ctx, projectID, len(tasks))
	if err != nil {
		return nil, err
	}

	o.publisher.Publish(events.JobStartedEvent{
		JobID:     job.ID,
		JobType:   JobTypeHandsOn,
		ProjectID: projectID,
		UnitCount: len(tasks),
	})
	o.logger.Info("Hands-on batch started",
		"job_id", job.ID,
		"project_id", projectID,
		"tasks", len(tasks),
		"workers", o.cfg.Workers)

	batchCtx, cancel := context.WithTimeout(ctx, o.cfg.HardTimeout)
	defer cancel()
	softTimer := time.AfterFunc(o.cfg.HardTimeout/2, func() {
		o.logger.Warn("Hands-on batch past soft time limit",
			"job_id", job.ID,
			"project_id", projectID,
			"soft_limit", o.cfg.HardTimeout/2)
	})
	defer softTimer.Stop()

	start := time.Now()
	tracker := newUnitTracker(len(tasks))
	policy := o.retryPolicy()

	// Buffered-channel semaphore bounds the pool; the WaitGroup is the join
	// barrier. Each unit runs against its own store session inside the
	// agent, so units never share connection state.
	sem := make(chan struct{}, o.cfg.Workers)
	var wg sync.WaitGroup
	for _, task := range tasks {
		if batchCtx.Err() != nil {
			tracker.fail(task.ID.String(), batchCtx.Err())
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-batchCtx.Done():
			tracker.fail(task.ID.String(), batchCtx.Err())
			continue
		}

		wg.Add(1)
		go func(task store.Task) {
			defer wg.Done()
			defer func() { <-sem }()

			o.markProcessing(ctx, job.ID, tracker.begin(task.ID))

			var res *handson.GenerateResult
			err := policy.runWithRetry(batchCtx, func(ctx context.Context) error {
				var genErr error
				res, genErr = o.handsOn.Generate(ctx, task.ID)
				return genErr
			})

			outcome := tracker.settle(task.ID, res, err)
			o.markProcessing(ctx, job.ID, tracker.inFlight())
			if o.recorder != nil {
				o.recorder.RecordJobUnit(JobTypeHandsOn, outcome)
			}
			o.publisher.Publish(events.JobUnitCompletedEvent{
				JobID:     job.ID,
				JobType:   JobTypeHandsOn,
				Unit:      task.ID.String(),
				Succeeded: err == nil,
				Remaining: tracker.remaining(),
			})
			if err != nil {
				o.logger.Warn("Hands-on unit failed after retries",
					"job_id", job.ID,
					"task_id", task.ID,
					"error", err)
			}
		}(task)
	}
	wg.Wait()

	result := tracker.result(job.ID)
	if batchCtx.Err() != nil {
		return nil, o.failJob(ctx, JobTypeHandsOn, job.ID, projectID, start,
			fmt.Errorf("batch aborted at hard time limit: %w", batchCtx.Err()))
	}
	return result, o.completeJob(ctx, JobTypeHandsOn, job.ID, projectID, start, result)
}

// RunTaskGenBatch generates the project's task graph as a tracked job. The
// generation service fans out per function internally; the job row still
// serves as the project mutex and the per-function failures it reports
// become the batch's failed units. Returns store.ErrJobActive when a
// taskgen job is already in flight.
func (o *Orchestrator) RunTaskGenBatch(ctx context.Context, projectID uuid.UUID, opts taskgen.GenerateOptions) (*BatchResult, error) {
	functions, err := o.store.ListFunctions(ctx, projectID)
	if err != nil {
		return nil, err
	}

	job, err := o.store.AcquireTaskGenJob(ctx, projectID, len(functions))
	if err != nil {
		return nil, err
	}

	o.publisher.Publish(events.JobStartedEvent{
		JobID:     job.ID,
		JobType:   JobTypeTaskGen,
		ProjectID: projectID,
		UnitCount: len(functions),
	})
	o.logger.Info("Task generation batch started",
		"job_id", job.ID,
		"project_id", projectID,
		"functions", len(functions))

	batchCtx, cancel := context.WithTimeout(ctx, o.cfg.HardTimeout)
	defer cancel()

	start := time.Now()
	if err := o.store.UpdateTaskGenJob(ctx, job.ID, store.JobStatusProcessing, nil); err != nil {
		o.logger.Warn("Job status update failed", "job_id", job.ID, "error", err)
	}

	var res *taskgen.GenerateResult
	runErr := o.retryPolicy().runWithRetry(batchCtx, func(ctx context.Context) error {
		var genErr error
		res, genErr = o.taskGen.Generate(ctx, projectID, opts)
		return genErr
	})
	if runErr != nil {
		return nil, o.failJobTaskGen(ctx, job.ID, projectID, start, runErr)
	}

	result := &BatchResult{
		JobID:     job.ID,
		Completed: len(functions) - len(res.Failures),
		Failed:    len(res.Failures),
		Failures:  res.Failures,
	}
	for _, f := range res.Failures {
		if o.recorder != nil {
			o.recorder.RecordJobUnit(JobTypeTaskGen, "failed")
		}
		o.logger.Warn("Task generation unit failed",
			"job_id", job.ID,
			"function_code", f.Unit,
			"error", f.Err)
	}
	if o.recorder != nil {
		for i := 0; i < result.Completed; i++ {
			o.recorder.RecordJobUnit(JobTypeTaskGen, "success")
		}
	}
	return result, o.completeJobTaskGen(ctx, job.ID, projectID, start, result)
}

func (o *Orchestrator) completeJob(ctx context.Context, jobType string, jobID, projectID uuid.UUID, start time.Time, result *BatchResult) error {
	if err := o.store.FinalizeHandsOnJob(ctx, jobID); err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}
	o.publisher.Publish(events.JobCompletedEvent{
		JobID:     jobID,
		JobType:   jobType,
		ProjectID: projectID,
		Succeeded: result.Completed + result.Skipped,
		Failed:    result.Failed,
	})
	if o.recorder != nil {
		o.recorder.RecordWorkflow(jobType+"_batch", "completed", time.Since(start))
	}
	o.logger.Info("Batch completed",
		"job_id", jobID,
		"job_type", jobType,
		"completed", result.Completed,
		"skipped", result.Skipped,
		"failed", result.Failed)
	return nil
}

func (o *Orchestrator) failJob(ctx context.Context, jobType string, jobID, projectID uuid.UUID, start time.Time, cause error) error {
	// Finalize with a fresh context: the batch context is already dead and
	// the row must still be released.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.store.FinalizeHandsOnJob(cleanupCtx, jobID); err != nil {
		o.logger.Error("Failed to release job row", "job_id", jobID, "error", err)
	}
	o.publisher.Publish(events.JobFailedEvent{
		JobID:     jobID,
		JobType:   jobType,
		ProjectID: projectID,
		Error:     cause.Error(),
	})
	if o.recorder != nil {
		o.recorder.RecordWorkflow(jobType+"_batch", "failed", time.Since(start))
	}
	o.logger.Error("Batch failed",
		"job_id", jobID,
		"job_type", jobType,
		"error", cause)
	return cause
}

func (o *Orchestrator) completeJobTaskGen(ctx context.Context, jobID, projectID uuid.UUID, start time.Time, result *BatchResult) error {
	if err := o.store.FinalizeTaskGenJob(ctx, jobID); err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}
	o.publisher.Publish(events.JobCompletedEvent{
		JobID:     jobID,
		JobType:   JobTypeTaskGen,
		ProjectID: projectID,
		Succeeded: result.Completed,
		Failed:    result.Failed,
	})
	if o.recorder != nil {
		o.recorder.RecordWorkflow(JobTypeTaskGen+"_batch", "completed", time.Since(start))
	}
	return nil
}

func (o *Orchestrator) failJobTaskGen(ctx context.Context, jobID, projectID uuid.UUID, start time.Time, cause error) error {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.store.FinalizeTaskGenJob(cleanupCtx, jobID); err != nil {
		o.logger.Error("Failed to release job row", "job_id", jobID, "error", err)
	}
	o.publisher.Publish(events.JobFailedEvent{
		JobID:     jobID,
		JobType:   JobTypeTaskGen,
		ProjectID: projectID,
		Error:     cause.Error(),
	})
	if o.recorder != nil {
		o.recorder.RecordWorkflow(JobTypeTaskGen+"_batch", "failed", time.Since(start))
	}
	return cause
}

// markProcessing mirrors the in-flight unit set onto the job row.
func (o *Orchestrator) markProcessing(ctx context.Context, jobID uuid.UUID, inFlight []string) {
	data, err := json.Marshal(inFlight)
	if err != nil {
		return
	}
	if err := o.store.UpdateHandsOnJob(ctx, jobID, store.JobStatusProcessing, datatypes.JSON(data)); err != nil {
		o.logger.Warn("Job progress update failed", "job_id", jobID, "error", err)
	}
}

// unitTracker is the shared fan-in state of one batch: in-flight units,
// counts, and enumerated failures, guarded by a single mutex.
type unitTracker struct {
	mu        sync.Mutex
	total     int
	settled   int
	completed int
	skipped   int
	failed    int
	inflight  map[uuid.UUID]struct{}
	failures  []*fault.PartialFailure
}

func newUnitTracker(total int) *unitTracker {
	return &unitTracker{total: total, inflight: make(map[uuid.UUID]struct{})}
}

// begin marks a unit in flight and returns the current in-flight set.
func (t *unitTracker) begin(id uuid.UUID) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id] = struct{}{}
	return t.inFlightLocked()
}

// settle records a finished unit and returns its outcome label.
func (t *unitTracker) settle(id uuid.UUID, res *handson.GenerateResult, err error) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, id)
	t.settled++
	switch {
	case err != nil:
		t.failed++
		t.failures = append(t.failures, fault.NewPartialFailure(id.String(), err))
		return "failed"
	case res != nil && res.Status == handson.StatusSkipped:
		t.skipped++
		return "skipped"
	default:
		t.completed++
		return "success"
	}
}

// fail records a unit that never started (dispatch cancelled).
func (t *unitTracker) fail(unit string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.settled++
	t.failed++
	t.failures = append(t.failures, fault.NewPartialFailure(unit, err))
}

func (t *unitTracker) inFlight() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlightLocked()
}

func (t *unitTracker) inFlightLocked() []string {
	ids := make([]string, 0, len(t.inflight))
	for id := range t.inflight {
		ids = append(ids, id.String())
	}
	return ids
}

func (t *unitTracker) remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total - t.settled
}

func (t *unitTracker) result(jobID uuid.UUID) *BatchResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &BatchResult{
		JobID:     jobID,
		Completed: t.completed,
		Skipped:   t.skipped,
		Failed:    t.failed,
		Failures:  t.failures,
	}
}
