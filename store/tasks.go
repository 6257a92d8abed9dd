package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/planforge/planforge/fault"
)

// CreateTask persists one manually authored task.
func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	if t.ProjectID == uuid.Nil {
		return fault.NewValidationError("project_id", "must not be empty")
	}
	if t.Title == "" {
		return fault.NewValidationError("title", "must not be empty")
	}

	return s.Transaction(ctx, func(tx *gorm.DB) error {
		if _, err := lockProject(tx, t.ProjectID); err != nil {
			return err
		}
		if t.FunctionID != nil {
			var f StructuredFunction
			if err := tx.First(&f, "id = ?", *t.FunctionID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fault.NewValidationErrorf("function_id", "function %s not found", *t.FunctionID)
				}
				return fmt.Errorf("get function: %w", err)
			}
			if f.ProjectID != t.ProjectID {
				return fault.NewConsistencyViolation("task", "function belongs to a different project")
			}
		}
		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		return nil
	})
}

// BulkCreateTasks persists a generated task set and its edges in one
// transaction. With overwrite the project's existing edges and tasks are
// deleted first, so no reader observes an empty project mid-swap. Tasks may
// carry pre-assigned IDs so edges can reference them. The resulting edge set
// must be acyclic.
func (s *Store) BulkCreateTasks(ctx context.Context, projectID uuid.UUID, tasks []Task, dependencies []TaskDependency, overwrite bool) error {
	return s.Transaction(ctx, func(tx *gorm.DB) error {
		if _, err := lockProject(tx, projectID); err != nil {
			return err
		}

		if overwrite {
			if err := deleteProjectTasks(tx, projectID); err != nil {
				return err
			}
		}

		known := make(map[uuid.UUID]bool)
		var existing []uuid.UUID
		if err := tx.Model(&Task{}).Where("project_id = ?", projectID).
			Pluck("id", &existing).Error; err != nil {
			return fmt.Errorf("list existing tasks: %w", err)
		}
		for _, id := range existing {
			known[id] = true
		}

		for i := range tasks {
			t := &tasks[i]
			t.ProjectID = projectID
			if t.ID == uuid.Nil {
				t.ID = uuid.New()
			}
			known[t.ID] = true
			if err := tx.Create(t).Error; err != nil {
				return fmt.Errorf("create task %q: %w", t.Title, err)
			}
		}

		var edges []TaskDependency
		if err := tx.Where("project_id = ?", projectID).Find(&edges).Error; err != nil {
			return fmt.Errorf("list existing edges: %w", err)
		}

		for i := range dependencies {
			d := &dependencies[i]
			d.ProjectID = projectID
			if d.SourceTaskID == d.TargetTaskID {
				return fault.NewConsistencyViolation("task_dependency", "self-loop")
			}
			if !known[d.SourceTaskID] || !known[d.TargetTaskID] {
				return fault.NewConsistencyViolationf("task_dependency",
					"edge references a task outside project %s", projectID)
			}
			if wouldCloseCycle(edges, d.SourceTaskID, d.TargetTaskID) {
				return fault.NewConsistencyViolationf("task_dependency",
					"edge %s -> %s closes a cycle", d.SourceTaskID, d.TargetTaskID)
			}
			if err := tx.Create(d).Error; err != nil {
				return fmt.Errorf("create edge: %w", err)
			}
			edges = append(edges, *d)
		}
		return nil
	})
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	var t Task
	err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fault.NewValidationErrorf("task_id", "task %s not found", id)
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &t, nil
}

// ListTasksByProject returns a project's tasks in display order.
func (s *Store) ListTasksByProject(ctx context.Context, projectID uuid.UUID) ([]Task, error) {
	var tasks []Task
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("order_index ASC, created_at ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListTasksByFunction returns the ordered task list of one function.
func (s *Store) ListTasksByFunction(ctx context.Context, functionID uuid.UUID) ([]Task, error) {
	var tasks []Task
	err := s.db.WithContext(ctx).
		Where("function_id = ?", functionID).
		Order("order_index ASC, created_at ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list function tasks: %w", err)
	}
	return tasks, nil
}

// TaskChanges carries a partial update; nil fields are left untouched.
type TaskChanges struct {
	Title          *string
	Description    *string
	Category       *string
	Priority       *string
	EstimatedHours *float64
	Status         *string
	OrderIndex     *int
}

// UpdateTask applies a partial update to one task.
func (s *Store) UpdateTask(ctx context.Context, id uuid.UUID, changes TaskChanges) error {
	updates := map[string]any{}
	if changes.Title != nil {
		if *changes.Title == "" {
			return fault.NewValidationError("title", "must not be empty")
		}
		updates["title"] = *changes.Title
	}
	if changes.Description != nil {
		updates["description"] = *changes.Description
	}
	if changes.Category != nil {
		updates["category"] = *changes.Category
	}
	if changes.Priority != nil {
		updates["priority"] = *changes.Priority
	}
	if changes.EstimatedHours != nil {
		updates["estimated_hours"] = *changes.EstimatedHours
	}
	if changes.Status != nil {
		updates["status"] = *changes.Status
	}
	if changes.OrderIndex != nil {
		updates["order_index"] = *changes.OrderIndex
	}
	if len(updates) == 0 {
		return nil
	}

	result := s.db.WithContext(ctx).Model(&Task{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fault.NewValidationErrorf("task_id", "task %s not found", id)
	}
	return nil
}

// DeleteTask removes a task together with its edges, guide, and sessions.
func (s *Store) DeleteTask(ctx context.Context, id uuid.UUID) error {
	return s.Transaction(ctx, func(tx *gorm.DB) error {
		var t Task
		if err := tx.First(&t, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fault.NewValidationErrorf("task_id", "task %s not found", id)
			}
			return fmt.Errorf("get task: %w", err)
		}
		if err := tx.Where("source_task_id = ? OR target_task_id = ?", id, id).
			Delete(&TaskDependency{}).Error; err != nil {
			return fmt.Errorf("delete edges: %w", err)
		}
		if err := tx.Where("task_id = ?", id).Delete(&TaskHandsOn{}).Error; err != nil {
			return fmt.Errorf("delete guide: %w", err)
		}
		if err := tx.Where("task_id = ?", id).Delete(&GenerationSession{}).Error; err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		if err := tx.Delete(&t).Error; err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	})
}

// DeleteProjectTasks removes all tasks and task edges of a project.
func (s *Store) DeleteProjectTasks(ctx context.Context, projectID uuid.UUID) error {
	return s.Transaction(ctx, func(tx *gorm.DB) error {
		return deleteProjectTasks(tx, projectID)
	})
}

func deleteProjectTasks(tx *gorm.DB, projectID uuid.UUID) error {
	taskIDs := tx.Model(&Task{}).Select("id").Where("project_id = ?", projectID)
	if err := tx.Where("task_id IN (?)", taskIDs).Delete(&TaskHandsOn{}).Error; err != nil {
		return fmt.Errorf("delete guides: %w", err)
	}
	if err := tx.Where("task_id IN (?)", taskIDs).Delete(&GenerationSession{}).Error; err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	if err := tx.Where("project_id = ?", projectID).Delete(&TaskDependency{}).Error; err != nil {
		return fmt.Errorf("delete task dependencies: %w", err)
	}
	if err := tx.Where("project_id = ?", projectID).Delete(&Task{}).Error; err != nil {
		return fmt.Errorf("delete tasks: %w", err)
	}
	return nil
}

// CreateTaskDependency persists one edge after validating endpoints,
// project consistency, and acyclicity.
func (s *Store) CreateTaskDependency(ctx context.Context, d *TaskDependency) error {
	if d.SourceTaskID == d.TargetTaskID {
		return fault.NewConsistencyViolation("task_dependency", "self-loop")
	}

	return s.Transaction(ctx, func(tx *gorm.DB) error {
		var endpoints []Task
		if err := tx.Where("id IN ?", []uuid.UUID{d.SourceTaskID, d.TargetTaskID}).
			Find(&endpoints).Error; err != nil {
			return fmt.Errorf("load endpoints: %w", err)
		}
		if len(endpoints) != 2 {
			return fault.NewValidationError("task_dependency", "both endpoints must exist")
		}
		if endpoints[0].ProjectID != endpoints[1].ProjectID {
			return fault.NewConsistencyViolation("task_dependency", "endpoints belong to different projects")
		}
		d.ProjectID = endpoints[0].ProjectID

		var edges []TaskDependency
		if err := tx.Where("project_id = ?", d.ProjectID).Find(&edges).Error; err != nil {
			return fmt.Errorf("list edges: %w", err)
		}
		if wouldCloseCycle(edges, d.SourceTaskID, d.TargetTaskID) {
			return fault.NewConsistencyViolationf("task_dependency",
				"edge %s -> %s closes a cycle", d.SourceTaskID, d.TargetTaskID)
		}

		if err := tx.Create(d).Error; err != nil {
			return fmt.Errorf("create edge: %w", err)
		}
		return nil
	})
}

// ListTaskDependencies returns a project's task edges.
func (s *Store) ListTaskDependencies(ctx context.Context, projectID uuid.UUID) ([]TaskDependency, error) {
	var deps []TaskDependency
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&deps).Error
	if err != nil {
		return nil, fmt.Errorf("list task dependencies: %w", err)
	}
	return deps, nil
}

// DeleteTaskDependency removes one edge.
func (s *Store) DeleteTaskDependency(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&TaskDependency{})
	if result.Error != nil {
		return fmt.Errorf("delete task dependency: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fault.NewValidationErrorf("dependency_id", "dependency %s not found", id)
	}
	return nil
}

// wouldCloseCycle reports whether adding source -> target creates a cycle,
// which is the case exactly when source is already reachable from target.
func wouldCloseCycle(edges []TaskDependency, source, target uuid.UUID) bool {
	adjacency := make(map[uuid.UUID][]uuid.UUID, len(edges))
	for _, e := range edges {
		adjacency[e.SourceTaskID] = append(adjacency[e.SourceTaskID], e.TargetTaskID)
	}

	seen := map[uuid.UUID]bool{target: true}
	queue := []uuid.UUID{target}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node == source {
			return true
		}
		for _, next := range adjacency[node] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}
