package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planforge/planforge/fault"
)

func TestAdvancePhaseWalksOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	order := PhaseOrder()
	for _, want := range order[1:] {
		got, err := s.AdvancePhase(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got.CurrentPhase)
	}

	_, err := s.AdvancePhase(ctx, p.ID)
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))
}

func TestAdvancePhaseRecordsHistory(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	_, err := s.AdvancePhase(ctx, p.ID)
	require.NoError(t, err)
	got, err := s.AdvancePhase(ctx, p.ID)
	require.NoError(t, err)

	var history []PhaseTransition
	require.NoError(t, json.Unmarshal(got.PhaseHistory, &history))
	require.Len(t, history, 2)
	assert.Equal(t, PhaseInitial, history[0].FromPhase)
	assert.Equal(t, PhaseQAEditing, history[0].ToPhase)
	assert.Equal(t, PhaseQAEditing, history[1].FromPhase)
	assert.Equal(t, PhaseSummaryReview, history[1].ToPhase)
	assert.False(t, history[0].Timestamp.IsZero())
}

func TestSetPhaseForward(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	got, err := s.SetPhase(ctx, p.ID, PhaseFrameworkSelection, false)
	require.NoError(t, err)
	assert.Equal(t, PhaseFrameworkSelection, got.CurrentPhase)

	var history []PhaseTransition
	require.NoError(t, json.Unmarshal(got.PhaseHistory, &history))
	require.Len(t, history, 1)
	assert.Equal(t, PhaseInitial, history[0].FromPhase)
	assert.Equal(t, PhaseFrameworkSelection, history[0].ToPhase)
}

func TestSetPhaseBackwardRequiresForce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	_, err := s.SetPhase(ctx, p.ID, PhaseSummaryReview, false)
	require.NoError(t, err)

	_, err = s.SetPhase(ctx, p.ID, PhaseQAEditing, false)
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))

	got, err := s.SetPhase(ctx, p.ID, PhaseQAEditing, true)
	require.NoError(t, err)
	assert.Equal(t, PhaseQAEditing, got.CurrentPhase)

	var history []PhaseTransition
	require.NoError(t, json.Unmarshal(got.PhaseHistory, &history))
	require.Len(t, history, 2)
	assert.Equal(t, PhaseSummaryReview, history[1].FromPhase)
	assert.Equal(t, PhaseQAEditing, history[1].ToPhase)
}

func TestSetPhaseUnknownPhase(t *testing.T) {
	s := testStore(t)
	p := seedProject(t, s)

	_, err := s.SetPhase(context.Background(), p.ID, "shipping", false)
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))
}

func TestSetPhaseMissingProject(t *testing.T) {
	s := testStore(t)

	_, err := s.SetPhase(context.Background(), uuid.New(), PhaseQAEditing, false)
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))
}

func TestPhaseHistorySurvivesOtherUpdates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	_, err := s.AdvancePhase(ctx, p.ID)
	require.NoError(t, err)

	p.Title = "Renamed"
	require.NoError(t, s.UpdateProject(ctx, p))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseQAEditing, got.CurrentPhase)

	var history []PhaseTransition
	require.NoError(t, json.Unmarshal(got.PhaseHistory, &history))
	assert.Len(t, history, 1)
}
