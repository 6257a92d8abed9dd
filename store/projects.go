package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/planforge/planforge/fault"
)

// CreateProject persists a new project.
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	if p.Title == "" {
		return fault.NewValidationError("title", "must not be empty")
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID.
func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	var p Project
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fault.NewValidationErrorf("project_id", "project %s not found", id)
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// ListProjects returns all projects, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// UpdateProject saves changes to an existing project. Phase fields are owned
// by the phase manager and must not be modified here.
func (s *Store) UpdateProject(ctx context.Context, p *Project) error {
	if p.ID == uuid.Nil {
		return fault.NewValidationError("project_id", "must not be empty")
	}
	result := s.db.WithContext(ctx).Model(&Project{}).Where("id = ?", p.ID).
		Updates(map[string]any{
			"title":      p.Title,
			"idea":       p.Idea,
			"start_date": p.StartDate,
			"end_date":   p.EndDate,
		})
	if result.Error != nil {
		return fmt.Errorf("update project: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fault.NewValidationErrorf("project_id", "project %s not found", p.ID)
	}
	return nil
}

// DeleteProject removes a project and everything hanging off it in one
// transaction: guides, task edges, tasks, function edges, functions,
// selections, sessions, and job rows.
func (s *Store) DeleteProject(ctx context.Context, id uuid.UUID) error {
	return s.Transaction(ctx, func(tx *gorm.DB) error {
		var p Project
		if err := tx.First(&p, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fault.NewValidationErrorf("project_id", "project %s not found", id)
			}
			return fmt.Errorf("get project: %w", err)
		}

		taskIDs := tx.Model(&Task{}).Select("id").Where("project_id = ?", id)
		if err := tx.Where("task_id IN (?)", taskIDs).Delete(&TaskHandsOn{}).Error; err != nil {
			return fmt.Errorf("delete guides: %w", err)
		}
		if err := tx.Where("task_id IN (?)", taskIDs).Delete(&GenerationSession{}).Error; err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		if err := tx.Where("project_id = ?", id).Delete(&TaskDependency{}).Error; err != nil {
			return fmt.Errorf("delete task dependencies: %w", err)
		}
		if err := tx.Where("project_id = ?", id).Delete(&Task{}).Error; err != nil {
			return fmt.Errorf("delete tasks: %w", err)
		}
		if err := tx.Where("project_id = ?", id).Delete(&FunctionDependency{}).Error; err != nil {
			return fmt.Errorf("delete function dependencies: %w", err)
		}
		if err := tx.Where("project_id = ?", id).Delete(&StructuredFunction{}).Error; err != nil {
			return fmt.Errorf("delete functions: %w", err)
		}
		if err := tx.Where("project_id = ?", id).Delete(&TechSelection{}).Error; err != nil {
			return fmt.Errorf("delete selections: %w", err)
		}
		if err := tx.Where("project_id = ?", id).Delete(&HandsOnGenerationJob{}).Error; err != nil {
			return fmt.Errorf("delete handson jobs: %w", err)
		}
		if err := tx.Where("project_id = ?", id).Delete(&TaskGenerationJob{}).Error; err != nil {
			return fmt.Errorf("delete taskgen jobs: %w", err)
		}
		if err := tx.Delete(&p).Error; err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		return nil
	})
}
