package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/planforge/planforge/fault"
)

// Canonical project phases, in forward order.
const (
	PhaseInitial             = "initial"
	PhaseQAEditing           = "qa_editing"
	PhaseSummaryReview       = "summary_review"
	PhaseFunctionReview      = "function_review"
	PhaseFrameworkSelection  = "framework_selection"
	PhaseFunctionStructuring = "function_structuring"
	PhaseTaskManagement      = "task_management"
)

// PhaseOrder returns the canonical phase sequence.
func PhaseOrder() []string {
	return []string{
		PhaseInitial,
		PhaseQAEditing,
		PhaseSummaryReview,
		PhaseFunctionReview,
		PhaseFrameworkSelection,
		PhaseFunctionStructuring,
		PhaseTaskManagement,
	}
}

func phaseIndex(phase string) int {
	for i, p := range PhaseOrder() {
		if p == phase {
			return i
		}
	}
	return -1
}

// AdvancePhase moves the project to the next canonical phase and appends
// the transition to its history.
func (s *Store) AdvancePhase(ctx context.Context, projectID uuid.UUID) (*Project, error) {
	var advanced *Project
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		p, err := lockProject(tx, projectID)
		if err != nil {
			return err
		}

		idx := phaseIndex(p.CurrentPhase)
		if idx < 0 {
			return fault.NewValidationErrorf("current_phase", "unknown phase %q", p.CurrentPhase)
		}
		order := PhaseOrder()
		if idx == len(order)-1 {
			return fault.NewValidationErrorf("current_phase", "project already at final phase %q", p.CurrentPhase)
		}

		if err := transitionPhase(tx, p, order[idx+1]); err != nil {
			return err
		}
		advanced = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return advanced, nil
}

// SetPhase moves the project to a specific phase. Backward and same-phase
// moves are rejected unless force is set; history is appended either way.
func (s *Store) SetPhase(ctx context.Context, projectID uuid.UUID, phase string, force bool) (*Project, error) {
	target := phaseIndex(phase)
	if target < 0 {
		return nil, fault.NewValidationErrorf("phase", "unknown phase %q", phase)
	}

	var updated *Project
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		p, err := lockProject(tx, projectID)
		if err != nil {
			return err
		}

		current := phaseIndex(p.CurrentPhase)
		if !force && target <= current {
			return fault.NewValidationErrorf("phase",
				"cannot move backward from %q to %q without force", p.CurrentPhase, phase)
		}

		if err := transitionPhase(tx, p, phase); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// lockProject fetches the project row inside tx.
func lockProject(tx *gorm.DB, projectID uuid.UUID) (*Project, error) {
	var p Project
	if err := tx.First(&p, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fault.NewValidationErrorf("project_id", "project %s not found", projectID)
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// transitionPhase appends the history entry and persists the new phase.
// Existing history entries are never rewritten.
func transitionPhase(tx *gorm.DB, p *Project, to string) error {
	var history []PhaseTransition
	if len(p.PhaseHistory) > 0 {
		if err := json.Unmarshal(p.PhaseHistory, &history); err != nil {
			return fmt.Errorf("decode phase history: %w", err)
		}
	}
	history = append(history, PhaseTransition{
		FromPhase: p.CurrentPhase,
		ToPhase:   to,
		Timestamp: time.Now().UTC(),
	})

	encoded, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode phase history: %w", err)
	}

	p.CurrentPhase = to
	p.PhaseHistory = datatypes.JSON(encoded)

	if err := tx.Model(&Project{}).Where("id = ?", p.ID).
		Updates(map[string]any{
			"current_phase": p.CurrentPhase,
			"phase_history": p.PhaseHistory,
		}).Error; err != nil {
		return fmt.Errorf("update phase: %w", err)
	}
	return nil
}
