package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Function categories.
const (
	CategoryAuth       = "auth"
	CategoryData       = "data"
	CategoryLogic      = "logic"
	CategoryUI         = "ui"
	CategoryAPI        = "api"
	CategoryDeployment = "deployment"
)

// MoSCoW priorities. "Wont" is stored without the apostrophe by DB
// constraint convention.
const (
	PriorityMust   = "Must"
	PriorityShould = "Should"
	PriorityCould  = "Could"
	PriorityWont   = "Wont"
)

// Function dependency types.
const (
	DependencyRequires = "requires"
	DependencyBlocks   = "blocks"
	DependencyRelates  = "relates"
)

// Task status default. Tasks carry free-form board statuses; only the
// initial value is fixed.
const TaskStatusTodo = "TODO"

// Background job statuses.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Generation session statuses.
const (
	SessionStatusActive        = "active"
	SessionStatusAwaitingInput = "awaiting_input"
	SessionStatusResumed       = "resumed"
	SessionStatusCompleted     = "completed"
	SessionStatusExpired       = "expired"
	SessionStatusFailed        = "failed"
)

// Pending-state types for paused interactive generation.
const (
	PendingTypeChoice           = "choice"
	PendingTypeInput            = "input"
	PendingTypeStepConfirmation = "step_confirmation"
)

// IsValidCategory reports whether c is a known function category.
func IsValidCategory(c string) bool {
	switch c {
	case CategoryAuth, CategoryData, CategoryLogic, CategoryUI, CategoryAPI, CategoryDeployment:
		return true
	}
	return false
}

// IsValidPriority reports whether p is a known MoSCoW priority.
func IsValidPriority(p string) bool {
	switch p {
	case PriorityMust, PriorityShould, PriorityCould, PriorityWont:
		return true
	}
	return false
}

// PriorityRank orders priorities for deterministic tie-breaking; lower is
// more important. Unknown priorities sort last.
func PriorityRank(p string) int {
	switch p {
	case PriorityMust:
		return 0
	case PriorityShould:
		return 1
	case PriorityCould:
		return 2
	case PriorityWont:
		return 3
	}
	return 4
}

// PhaseTransition is one immutable entry of a project's phase history.
type PhaseTransition struct {
	FromPhase string    `json:"from_phase"`
	ToPhase   string    `json:"to_phase"`
	Timestamp time.Time `json:"timestamp"`
}

// Project is the top-level planning container.
type Project struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"project_id"`
	Title        string         `gorm:"size:200;not null" json:"title"`
	Idea         string         `gorm:"type:text" json:"idea"`
	StartDate    *time.Time     `json:"start_date,omitempty"`
	EndDate      *time.Time     `json:"end_date,omitempty"`
	CurrentPhase string         `gorm:"size:50;not null" json:"current_phase"`
	PhaseHistory datatypes.JSON `json:"phase_history"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName specifies the table name for Project.
func (Project) TableName() string { return "projects" }

// BeforeCreate assigns the ID and initial phase state.
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CurrentPhase == "" {
		p.CurrentPhase = PhaseInitial
	}
	if p.PhaseHistory == nil {
		p.PhaseHistory = datatypes.JSON("[]")
	}
	return nil
}

// StructuredFunction is one extracted function of a project. Codes are
// F001-style, zero padded, unique per project.
type StructuredFunction struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey" json:"function_id"`
	ProjectID            uuid.UUID `gorm:"type:uuid;not null;index;index:idx_functions_project_code,unique" json:"project_id"`
	FunctionCode         string    `gorm:"size:10;not null;index:idx_functions_project_code,unique" json:"function_code"`
	FunctionName         string    `gorm:"size:200;not null" json:"function_name"`
	Description          string    `gorm:"type:text" json:"description"`
	Category             string    `gorm:"size:20;not null" json:"category"`
	Priority             string    `gorm:"size:10;not null" json:"priority"`
	ExtractionConfidence float64   `json:"extraction_confidence"`
	OrderIndex           int       `json:"order_index"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// TableName specifies the table name for StructuredFunction.
func (StructuredFunction) TableName() string { return "structured_functions" }

// BeforeCreate assigns the ID.
func (f *StructuredFunction) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// FunctionDependency is a directed edge between two functions of the same
// project: source blocks target / target requires source.
type FunctionDependency struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"dependency_id"`
	ProjectID        uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	SourceFunctionID uuid.UUID `gorm:"type:uuid;not null;index" json:"source_function_id"`
	TargetFunctionID uuid.UUID `gorm:"type:uuid;not null;index" json:"target_function_id"`
	DependencyType   string    `gorm:"size:20;not null;default:requires" json:"dependency_type"`
	Reason           string    `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName specifies the table name for FunctionDependency.
func (FunctionDependency) TableName() string { return "function_dependencies" }

// BeforeCreate assigns the ID and default type.
func (d *FunctionDependency) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.DependencyType == "" {
		d.DependencyType = DependencyRequires
	}
	return nil
}

// Task is one unit of planned work, usually derived from a function.
type Task struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"task_id"`
	ProjectID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"project_id"`
	FunctionID     *uuid.UUID `gorm:"type:uuid;index" json:"function_id,omitempty"`
	Title          string     `gorm:"size:200;not null" json:"title"`
	Description    string     `gorm:"type:text" json:"description"`
	Category       string     `gorm:"size:20" json:"category"`
	Priority       string     `gorm:"size:10" json:"priority"`
	EstimatedHours float64    `json:"estimated_hours"`
	Status         string     `gorm:"size:20;not null;default:TODO" json:"status"`
	OrderIndex     int        `json:"order_index"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Task.
func (Task) TableName() string { return "tasks" }

// BeforeCreate assigns the ID and default status.
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TaskStatusTodo
	}
	return nil
}

// TaskDependency is a directed edge between tasks, with the node IDs and
// flags the board UI renders. The edge set stays acyclic.
type TaskDependency struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"dependency_id"`
	ProjectID    uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	SourceTaskID uuid.UUID `gorm:"type:uuid;not null;index" json:"source_task_id"`
	TargetTaskID uuid.UUID `gorm:"type:uuid;not null;index" json:"target_task_id"`
	SourceNodeID string    `gorm:"size:64" json:"source_node_id"`
	TargetNodeID string    `gorm:"size:64" json:"target_node_id"`
	IsAnimated   bool      `gorm:"default:false" json:"is_animated"`
	IsNextDay    bool      `gorm:"default:false" json:"is_next_day"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName specifies the table name for TaskDependency.
func (TaskDependency) TableName() string { return "task_dependencies" }

// BeforeCreate assigns the ID and mirrors node IDs from task IDs.
func (d *TaskDependency) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.SourceNodeID == "" {
		d.SourceNodeID = d.SourceTaskID.String()
	}
	if d.TargetNodeID == "" {
		d.TargetNodeID = d.TargetTaskID.String()
	}
	return nil
}

// TaskHandsOn holds the generated hands-on guide for one task. At most one
// per task; regeneration requires explicit deletion.
type TaskHandsOn struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"handson_id"`
	TaskID          uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"task_id"`
	Content         datatypes.JSON `json:"content"`
	QualityScore    float64        `json:"quality_score"`
	ModelName       string         `gorm:"size:100" json:"model_name,omitempty"`
	SearchQueries   datatypes.JSON `json:"search_queries,omitempty"`
	ReferencedURLs  datatypes.JSON `json:"referenced_urls,omitempty"`
	InformationDate *time.Time     `json:"information_date,omitempty"`
	PendingState    datatypes.JSON `json:"pending_state,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// TableName specifies the table name for TaskHandsOn.
func (TaskHandsOn) TableName() string { return "task_handson" }

// BeforeCreate assigns the ID.
func (h *TaskHandsOn) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// PendingState describes why an interactive generation is paused.
type PendingState struct {
	Type      string         `json:"type"`
	State     map[string]any `json:"state,omitempty"`
	EnteredAt time.Time      `json:"entered_at"`
	Phase     string         `json:"phase,omitempty"`
}

// HandsOnGenerationJob is the mutex row for an in-flight hands-on batch.
// The unique project index enforces one active job per project; the row is
// deleted on completion and on terminal failure alike.
type HandsOnGenerationJob struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"job_id"`
	ProjectID         uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"project_id"`
	Status            string         `gorm:"size:20;not null;default:pending" json:"status"`
	TotalTasks        int            `json:"total_tasks"`
	CurrentProcessing datatypes.JSON `json:"current_processing,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// TableName specifies the table name for HandsOnGenerationJob.
func (HandsOnGenerationJob) TableName() string { return "handson_generation_jobs" }

// BeforeCreate assigns the ID and default status.
func (j *HandsOnGenerationJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Status == "" {
		j.Status = JobStatusPending
	}
	return nil
}

// TaskGenerationJob is the mutex row for an in-flight task generation batch.
type TaskGenerationJob struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"job_id"`
	ProjectID         uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"project_id"`
	Status            string         `gorm:"size:20;not null;default:pending" json:"status"`
	TotalTasks        int            `json:"total_tasks"`
	CurrentProcessing datatypes.JSON `json:"current_processing,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// TableName specifies the table name for TaskGenerationJob.
func (TaskGenerationJob) TableName() string { return "task_generation_jobs" }

// BeforeCreate assigns the ID and default status.
func (j *TaskGenerationJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Status == "" {
		j.Status = JobStatusPending
	}
	return nil
}

// TechDomain is a technology decision point ("ORM choice"). Master data.
type TechDomain struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"domain_id"`
	Name         string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Description  string    `gorm:"type:text" json:"description"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName specifies the table name for TechDomain.
func (TechDomain) TableName() string { return "tech_domains" }

// BeforeCreate assigns the ID.
func (d *TechDomain) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// TechStack is one selectable option inside a TechDomain. Master data.
type TechStack struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"stack_id"`
	DomainID    uuid.UUID `gorm:"type:uuid;not null;index" json:"domain_id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Homepage    string    `gorm:"size:500" json:"homepage,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for TechStack.
func (TechStack) TableName() string { return "tech_stacks" }

// BeforeCreate assigns the ID.
func (s *TechStack) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// TechSelection is a project's chosen stack for one domain, with the
// grounded references behind the recommendation.
type TechSelection struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"selection_id"`
	ProjectID  uuid.UUID      `gorm:"type:uuid;not null;index:idx_selections_project_domain,unique" json:"project_id"`
	DomainID   uuid.UUID      `gorm:"type:uuid;not null;index:idx_selections_project_domain,unique" json:"domain_id"`
	StackID    uuid.UUID      `gorm:"type:uuid;not null" json:"stack_id"`
	Reason     string         `gorm:"type:text" json:"reason"`
	References datatypes.JSON `json:"references,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// TableName specifies the table name for TechSelection.
func (TechSelection) TableName() string { return "tech_selections" }

// BeforeCreate assigns the ID.
func (s *TechSelection) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// GenerationSession tracks one interactive hands-on generation with explicit
// expiry, replacing ambient module state.
type GenerationSession struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"session_id"`
	TaskID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"task_id"`
	Status       string         `gorm:"size:20;not null;default:active" json:"status"`
	PendingState datatypes.JSON `json:"pending_state,omitempty"`
	ExpiresAt    time.Time      `json:"expires_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName specifies the table name for GenerationSession.
func (GenerationSession) TableName() string { return "generation_sessions" }

// BeforeCreate assigns the ID and default status.
func (s *GenerationSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = SessionStatusActive
	}
	return nil
}
