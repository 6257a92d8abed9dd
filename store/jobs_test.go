package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAcquireHandsOnJobIsExclusive(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	job, err := s.AcquireHandsOnJob(ctx, p.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, 5, job.TotalTasks)

	_, err = s.AcquireHandsOnJob(ctx, p.ID, 5)
	require.ErrorIs(t, err, ErrJobActive)
}

func TestAcquireHandsOnJobPerProject(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	pA := seedProject(t, s)
	pB := seedProject(t, s)

	_, err := s.AcquireHandsOnJob(ctx, pA.ID, 3)
	require.NoError(t, err)

	_, err = s.AcquireHandsOnJob(ctx, pB.ID, 3)
	require.NoError(t, err, "jobs on different projects do not conflict")
}

func TestFinalizeHandsOnJobReleasesLock(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	job, err := s.AcquireHandsOnJob(ctx, p.ID, 2)
	require.NoError(t, err)

	require.NoError(t, s.FinalizeHandsOnJob(ctx, job.ID))
	require.NoError(t, s.FinalizeHandsOnJob(ctx, job.ID), "finalize is idempotent")

	_, err = s.AcquireHandsOnJob(ctx, p.ID, 2)
	require.NoError(t, err, "lock is free after finalize")
}

func TestUpdateHandsOnJobProgress(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	job, err := s.AcquireHandsOnJob(ctx, p.ID, 2)
	require.NoError(t, err)

	processing := datatypes.JSON(`["Design schema","Build form"]`)
	require.NoError(t, s.UpdateHandsOnJob(ctx, job.ID, JobStatusProcessing, processing))

	got, err := s.GetActiveHandsOnJob(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, JobStatusProcessing, got.Status)
	assert.JSONEq(t, `["Design schema","Build form"]`, string(got.CurrentProcessing))
}

func TestGetActiveHandsOnJobAbsent(t *testing.T) {
	s := testStore(t)

	got, err := s.GetActiveHandsOnJob(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTaskGenJobLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	job, err := s.AcquireTaskGenJob(ctx, p.ID, 4)
	require.NoError(t, err)

	_, err = s.AcquireTaskGenJob(ctx, p.ID, 4)
	require.ErrorIs(t, err, ErrJobActive)

	require.NoError(t, s.UpdateTaskGenJob(ctx, job.ID, JobStatusProcessing, nil))
	got, err := s.GetActiveTaskGenJob(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, JobStatusProcessing, got.Status)

	require.NoError(t, s.FinalizeTaskGenJob(ctx, job.ID))
	got, err = s.GetActiveTaskGenJob(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestJobTypesLockIndependently(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	_, err := s.AcquireHandsOnJob(ctx, p.ID, 2)
	require.NoError(t, err)

	_, err = s.AcquireTaskGenJob(ctx, p.ID, 2)
	require.NoError(t, err, "guide and task generation jobs use separate locks")
}
