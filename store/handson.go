package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/planforge/planforge/fault"
)

// CreateHandsOn persists a task's guide. Each task holds at most one;
// regenerating requires deleting the existing row first.
func (s *Store) CreateHandsOn(ctx context.Context, h *TaskHandsOn) error {
	if h.TaskID == uuid.Nil {
		return fault.NewValidationError("task_id", "must not be empty")
	}

	return s.Transaction(ctx, func(tx *gorm.DB) error {
		var t Task
		if err := tx.First(&t, "id = ?", h.TaskID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fault.NewValidationErrorf("task_id", "task %s not found", h.TaskID)
			}
			return fmt.Errorf("get task: %w", err)
		}

		var count int64
		if err := tx.Model(&TaskHandsOn{}).Where("task_id = ?", h.TaskID).Count(&count).Error; err != nil {
			return fmt.Errorf("check existing guide: %w", err)
		}
		if count > 0 {
			return fault.NewValidationErrorf("task_id", "guide already exists for task %s", h.TaskID)
		}

		if err := tx.Create(h).Error; err != nil {
			return fmt.Errorf("create guide: %w", err)
		}
		return nil
	})
}

// GetHandsOnByTask retrieves the guide for one task. A missing guide is a
// ValidationError so callers can branch with fault.IsValidation.
func (s *Store) GetHandsOnByTask(ctx context.Context, taskID uuid.UUID) (*TaskHandsOn, error) {
	var h TaskHandsOn
	err := s.db.WithContext(ctx).First(&h, "task_id = ?", taskID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fault.NewValidationErrorf("task_id", "no guide for task %s", taskID)
		}
		return nil, fmt.Errorf("get guide: %w", err)
	}
	return &h, nil
}

// DeleteHandsOn removes a task's guide so it can be regenerated.
func (s *Store) DeleteHandsOn(ctx context.Context, taskID uuid.UUID) error {
	result := s.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&TaskHandsOn{})
	if result.Error != nil {
		return fmt.Errorf("delete guide: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fault.NewValidationErrorf("task_id", "no guide for task %s", taskID)
	}
	return nil
}

// SetHandsOnPendingState mirrors a paused session's pending state onto the
// task's guide row if one exists. Pass nil to clear. Missing guides are not
// an error; the session row remains authoritative.
func (s *Store) SetHandsOnPendingState(ctx context.Context, taskID uuid.UUID, state datatypes.JSON) error {
	err := s.db.WithContext(ctx).Model(&TaskHandsOn{}).
		Where("task_id = ?", taskID).
		Update("pending_state", state).Error
	if err != nil {
		return fmt.Errorf("set pending state: %w", err)
	}
	return nil
}

// CreateSession persists a new interactive generation session.
func (s *Store) CreateSession(ctx context.Context, sess *GenerationSession) error {
	if sess.TaskID == uuid.Nil {
		return fault.NewValidationError("task_id", "must not be empty")
	}
	if sess.ExpiresAt.IsZero() {
		return fault.NewValidationError("expires_at", "must be set")
	}
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*GenerationSession, error) {
	var sess GenerationSession
	err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fault.NewValidationErrorf("session_id", "session %s not found", id)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// UpdateSessionState moves a session to a new status, replacing its pending
// state (nil clears it).
func (s *Store) UpdateSessionState(ctx context.Context, id uuid.UUID, status string, pending datatypes.JSON) error {
	result := s.db.WithContext(ctx).Model(&GenerationSession{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        status,
			"pending_state": pending,
		})
	if result.Error != nil {
		return fmt.Errorf("update session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fault.NewValidationErrorf("session_id", "session %s not found", id)
	}
	return nil
}

// ExpireStaleSessions marks sessions past their expiry as expired and
// returns how many were affected.
func (s *Store) ExpireStaleSessions(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&GenerationSession{}).
		Where("status IN ? AND expires_at < ?",
			[]string{SessionStatusActive, SessionStatusAwaitingInput}, time.Now()).
		Update("status", SessionStatusExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("expire sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
