package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrJobActive is returned when a project already has an in-flight job of
// the requested kind. The job row is the mutex; callers wait and retry.
var ErrJobActive = errors.New("a job is already active for this project")

// AcquireHandsOnJob inserts the mutex row for a hands-on batch. The unique
// project index turns a concurrent acquire into ErrJobActive.
func (s *Store) AcquireHandsOnJob(ctx context.Context, projectID uuid.UUID, totalTasks int) (*HandsOnGenerationJob, error) {
	job := &HandsOnGenerationJob{
		ProjectID:  projectID,
		Status:     JobStatusPending,
		TotalTasks: totalTasks,
	}
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		if _, err := lockProject(tx, projectID); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&HandsOnGenerationJob{}).Where("project_id = ?", projectID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("check active job: %w", err)
		}
		if count > 0 {
			return ErrJobActive
		}
		if err := tx.Create(job).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrJobActive
			}
			return fmt.Errorf("create job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateHandsOnJob updates the status and in-flight unit list of a job.
func (s *Store) UpdateHandsOnJob(ctx context.Context, jobID uuid.UUID, status string, currentProcessing datatypes.JSON) error {
	err := s.db.WithContext(ctx).Model(&HandsOnGenerationJob{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"status":             status,
			"current_processing": currentProcessing,
		}).Error
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// FinalizeHandsOnJob deletes the job row, releasing the project mutex.
/// Idempotent: finalizing an already-deleted job is not an error.
func (s *Store) FinalizeHandsOnJob(ctx context.Context, jobID uuid.UUID) error {
	if err := s.db.WithContext(ctx).Where("id = ?", jobID).
		Delete(&HandsOnGenerationJob{}).Error; err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}
	return nil
}

// GetActiveHandsOnJob returns the project's in-flight hands-on job, or nil.
func (s *Store) GetActiveHandsOnJob(ctx context.Context, projectID uuid.UUID) (*HandsOnGenerationJob, error) {
	var job HandsOnGenerationJob
	err := s.db.WithContext(ctx).First(&job, "project_id = ?", projectID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active job: %w", err)
	}
	return &job, nil
}

// AcquireTaskGenJob inserts the mutex row for a task generation batch.
func (s *Store) AcquireTaskGenJob(ctx context.Context, projectID uuid.UUID, totalTasks int) (*TaskGenerationJob, error) {
	job := &TaskGenerationJob{
		ProjectID:  projectID,
		Status:     JobStatusPending,
		TotalTasks: totalTasks,
	}
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		if _, err := lockProject(tx, projectID); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&TaskGenerationJob{}).Where("project_id = ?", projectID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("check active job: %w", err)
		}
		if count > 0 {
			return ErrJobActive
		}
		if err := tx.Create(job).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrJobActive
			}
			return fmt.Errorf("create job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateTaskGenJob updates the status and in-flight unit list of a job.
func (s *Store) UpdateTaskGenJob(ctx context.Context, jobID uuid.UUID, status string, currentProcessing datatypes.JSON) error {
	err := s.db.WithContext(ctx).Model(&TaskGenerationJob{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"status":             status,
			"current_processing": currentProcessing,
		}).Error
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// FinalizeTaskGenJob deletes the job row, releasing the project mutex.
func (s *Store) FinalizeTaskGenJob(ctx context.Context, jobID uuid.UUID) error {
	if err := s.db.WithContext(ctx).Where("id = ?", jobID).
		Delete(&TaskGenerationJob{}).Error; err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}
	return nil
}

// GetActiveTaskGenJob returns the project's in-flight taskgen job, or nil.
func (s *Store) GetActiveTaskGenJob(ctx context.Context, projectID uuid.UUID) (*TaskGenerationJob, error) {
	var job TaskGenerationJob
	err := s.db.WithContext(ctx).First(&job, "project_id = ?", projectID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active job: %w", err)
	}
	return &job, nil
}
