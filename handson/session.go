package handson

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/planforge/planforge/fault"
	"github.com/planforge/planforge/store"
)

// sessionTTL bounds how long a paused interactive generation waits for the
// user before expiring.
const sessionTTL = 30 * time.Minute

// InteractiveStart is the paused state returned after the plan stage: the
// proposed plan awaits the user's confirmation or edits.
type InteractiveStart struct {
	SessionID uuid.UUID          `json:"session_id"`
	TaskID    uuid.UUID          `json:"task_id"`
	Plan      *InformationPlan   `json:"plan"`
	Pending   store.PendingState `json:"pending"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// StartInteractive runs the plan stage for taskID and pauses, persisting a
// session row the user resumes with ResumeInteractive. The pending state is
// mirrored onto the task's guide row when one exists.
func (a *Agent) StartInteractive(ctx context.Context, taskID uuid.UUID) (*InteractiveStart, error) {
	if _, err := a.store.GetHandsOnByTask(ctx, taskID); err == nil {
		return nil, fault.NewValidationErrorf("task_id", "guide already exists for task %s", taskID)
	} else if !fault.IsValidation(err) {
		return nil, err
	}

	task, err := a.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	project, err := a.store.GetProject(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}

	plan, err := a.plan(ctx, project, task)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	pending := store.PendingState{
		Type:      store.PendingTypeChoice,
		State:     map[string]any{"plan": plan},
		EnteredAt: time.Now(),
		Phase:     "plan",
	}
	pendingJSON, err := json.Marshal(pending)
	if err != nil {
		return nil, fmt.Errorf("marshal pending state: %w", err)
	}

	sess := &store.GenerationSession{
		TaskID:       taskID,
		Status:       store.SessionStatusAwaitingInput,
		PendingState: datatypes.JSON(pendingJSON),
		ExpiresAt:    time.Now().Add(sessionTTL),
	}
	if err := a.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	if err := a.store.SetHandsOnPendingState(ctx, taskID, datatypes.JSON(pendingJSON)); err != nil {
		a.logger.Warn("Failed to mirror pending state", "task_id", taskID, "error", err)
	}

	a.logger.Info("Interactive generation paused after plan",
		"task_id", taskID,
		"session_id", sess.ID,
		"expires_at", sess.ExpiresAt)

	return &InteractiveStart{
		SessionID: sess.ID,
		TaskID:    taskID,
		Plan:      plan,
		Pending:   pending,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// ResumeInteractive continues a paused session through execute and
// generate. planOverride, when non-nil, replaces the paused plan (the
// user's edits); it is normalized under the same limits. Expired or
// already-resumed sessions fail with a ValidationError.
func (a *Agent) ResumeInteractive(ctx context.Context, sessionID uuid.UUID, planOverride *InformationPlan) (*GenerateResult, error) {
	sess, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == store.SessionStatusExpired || time.Now().After(sess.ExpiresAt) {
		_ = a.store.UpdateSessionState(ctx, sessionID, store.SessionStatusExpired, nil)
		return nil, fault.NewValidationErrorf("session_id", "session %s has expired", sessionID)
	}
	if sess.Status != store.SessionStatusAwaitingInput {
		return nil, fault.NewValidationErrorf("session_id", "session %s is %s, not awaiting input", sessionID, sess.Status)
	}

	plan := planOverride
	if plan == nil {
		plan, err = planFromPending(sess.PendingState)
		if err != nil {
			return nil, err
		}
	}
	normalizePlan(plan)

	if err := a.store.UpdateSessionState(ctx, sessionID, store.SessionStatusResumed, nil); err != nil {
		return nil, err
	}

	task, err := a.store.GetTask(ctx, sess.TaskID)
	if err != nil {
		return nil, err
	}
	project, err := a.store.GetProject(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}

	gathered := a.execute(ctx, project, task, plan)
	output, resp, err := a.generate(ctx, project, task, plan, gathered)
	if err != nil {
		_ = a.store.UpdateSessionState(ctx, sessionID, store.SessionStatusFailed, nil)
		return nil, fmt.Errorf("generate: %w", err)
	}

	score := Score(output)
	handsOn, err := a.persist(ctx, task, plan, gathered, output, resp, score)
	if err != nil {
		_ = a.store.UpdateSessionState(ctx, sessionID, store.SessionStatusFailed, nil)
		return nil, err
	}

	if err := a.store.UpdateSessionState(ctx, sessionID, store.SessionStatusCompleted, nil); err != nil {
		a.logger.Warn("Failed to complete session", "session_id", sessionID, "error", err)
	}
	if err := a.store.SetHandsOnPendingState(ctx, sess.TaskID, nil); err != nil {
		a.logger.Warn("Failed to clear pending state", "task_id", sess.TaskID, "error", err)
	}

	return &GenerateResult{
		Status:       StatusGenerated,
		TaskID:       sess.TaskID,
		HandsOn:      handsOn,
		Output:       output,
		QualityScore: score,
		GatherErrors: gathered.Errors,
	}, nil
}

func planFromPending(pending datatypes.JSON) (*InformationPlan, error) {
	if len(pending) == 0 {
		return nil, fault.NewValidationError("pending_state", "session has no paused plan")
	}
	var state struct {
		State struct {
			Plan *InformationPlan `json:"plan"`
		} `json:"state"`
	}
	if err := json.Unmarshal(pending, &state); err != nil || state.State.Plan == nil {
		return nil, fault.NewValidationError("pending_state", "paused plan is unreadable")
	}
	return state.State.Plan, nil
}
