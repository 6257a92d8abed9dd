// Package events provides typed NATS domain events for planforge workflows.
//
// Each workflow publishes lifecycle events under a per-event subject
// ("planforge.events.<domain>.<action>") so consumers can subscribe by type
// and route on subject. Payloads are plain JSON structs; the Subject method
// binds each payload to its subject.
package events

import "github.com/google/uuid"

// Subjects for planforge domain events.
const (
	SubjectStructuringStarted   = "planforge.events.structuring.started"
	SubjectStructuringCompleted = "planforge.events.structuring.completed"
	SubjectStructuringFailed    = "planforge.events.structuring.failed"

	SubjectTaskGenCompleted = "planforge.events.taskgen.completed"
	SubjectTaskGenFailed    = "planforge.events.taskgen.failed"

	SubjectQualityAccepted  = "planforge.events.quality.accepted"
	SubjectQualityExhausted = "planforge.events.quality.exhausted"

	SubjectJobStarted       = "planforge.events.jobs.started"
	SubjectJobUnitCompleted = "planforge.events.jobs.unit_completed"
	SubjectJobCompleted     = "planforge.events.jobs.completed"
	SubjectJobFailed        = "planforge.events.jobs.failed"
)

// Event is a publishable domain event bound to a NATS subject.
type Event interface {
	Subject() string
}

// Structuring lifecycle events

// StructuringStartedEvent is published when function structuring begins.
type StructuringStartedEvent struct {
	ProjectID uuid.UUID `json:"project_id"`
	Title     string    `json:"title,omitempty"`
}

// Subject returns the NATS subject for this event.
func (StructuringStartedEvent) Subject() string { return SubjectStructuringStarted }

// StructuringCompletedEvent is published when structuring converges or hits
// its iteration cap with a usable result.
type StructuringCompletedEvent struct {
	ProjectID     uuid.UUID `json:"project_id"`
	AreaCount     int       `json:"area_count"`
	FunctionCount int       `json:"function_count"`
	Iterations    int       `json:"iterations"`
	Coverage      float64   `json:"coverage"`
	NeedsClarity  bool      `json:"needs_clarity,omitempty"`
}

// Subject returns the NATS subject for this event.
func (StructuringCompletedEvent) Subject() string { return SubjectStructuringCompleted }

// StructuringFailedEvent is published when structuring fails terminally.
type StructuringFailedEvent struct {
	ProjectID uuid.UUID `json:"project_id"`
	Error     string    `json:"error"`
}

// Subject returns the NATS subject for this event.
func (StructuringFailedEvent) Subject() string { return SubjectStructuringFailed }

// Task generation lifecycle events

// TaskGenCompletedEvent is published when task generation finishes for a
// project.
type TaskGenCompletedEvent struct {
	ProjectID     uuid.UUID `json:"project_id"`
	FunctionCount int       `json:"function_count"`
	TaskCount     int       `json:"task_count"`
	EdgeCount     int       `json:"edge_count,omitempty"`
}

// Subject returns the NATS subject for this event.
func (TaskGenCompletedEvent) Subject() string { return SubjectTaskGenCompleted }

// TaskGenFailedEvent is published when task generation fails terminally.
type TaskGenFailedEvent struct {
	ProjectID uuid.UUID `json:"project_id"`
	Error     string    `json:"error"`
}

// Subject returns the NATS subject for this event.
func (TaskGenFailedEvent) Subject() string { return SubjectTaskGenFailed }

// Quality loop lifecycle events

// QualityAcceptedEvent is published when the quality loop accepts a plan.
type QualityAcceptedEvent struct {
	ProjectID  uuid.UUID `json:"project_id"`
	Score      float64   `json:"score"`
	Iterations int       `json:"iterations"`
}

// Subject returns the NATS subject for this event.
func (QualityAcceptedEvent) Subject() string { return SubjectQualityAccepted }

// QualityExhaustedEvent is published when the quality loop hits its
// iteration cap without reaching the acceptance score.
type QualityExhaustedEvent struct {
	ProjectID  uuid.UUID `json:"project_id"`
	Score      float64   `json:"score"`
	Iterations int       `json:"iterations"`
	OpenIssues int       `json:"open_issues,omitempty"`
}

// Subject returns the NATS subject for this event.
func (QualityExhaustedEvent) Subject() string { return SubjectQualityExhausted }

// Background job lifecycle events

// JobStartedEvent is published when the orchestrator starts a job.
type JobStartedEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	JobType   string    `json:"job_type"`
	ProjectID uuid.UUID `json:"project_id"`
	UnitCount int       `json:"unit_count"`
}

// Subject returns the NATS subject for this event.
func (JobStartedEvent) Subject() string { return SubjectJobStarted }

// JobUnitCompletedEvent is published after each unit of work finishes,
// success or not.
type JobUnitCompletedEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	JobType   string    `json:"job_type"`
	Unit      string    `json:"unit"`
	Succeeded bool      `json:"succeeded"`
	Remaining int       `json:"remaining"`
}

// Subject returns the NATS subject for this event.
func (JobUnitCompletedEvent) Subject() string { return SubjectJobUnitCompleted }

// JobCompletedEvent is published when all units of a job have finished.
type JobCompletedEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	JobType   string    `json:"job_type"`
	ProjectID uuid.UUID `json:"project_id"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
}

// Subject returns the NATS subject for this event.
func (JobCompletedEvent) Subject() string { return SubjectJobCompleted }

// JobFailedEvent is published when a job fails terminally before its units
// complete.
type JobFailedEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	JobType   string    `json:"job_type"`
	ProjectID uuid.UUID `json:"project_id"`
	Error     string    `json:"error"`
}

// Subject returns the NATS subject for this event.
func (JobFailedEvent) Subject() string { return SubjectJobFailed }
