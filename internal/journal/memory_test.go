package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateStartCompleteLifecycle(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()

	require.NoError(t, j.CreateTransfer(ctx, &Record{ID: "t1", PartnerID: "P1", Direction: DirectionReceive}))
	require.NoError(t, j.StartTransfer(ctx, "t1"))
	require.NoError(t, j.UpdateProgress(ctx, "t1", 4096, 4))
	require.NoError(t, j.RecordSyncPoint(ctx, "t1", 4096, 1))
	require.NoError(t, j.CompleteTransfer(ctx, "t1"))

	rec, err := j.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, int64(4096), rec.BytesTransferred)
	assert.GreaterOrEqual(t, rec.BytesTransferred, rec.LastSyncPoint)
}

func TestCannotCompleteAlreadyCompletedTransfer(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	require.NoError(t, j.CreateTransfer(ctx, &Record{ID: "t1"}))
	require.NoError(t, j.StartTransfer(ctx, "t1"))
	require.NoError(t, j.CompleteTransfer(ctx, "t1"))

	err := j.CompleteTransfer(ctx, "t1")
	assert.ErrorIs(t, err, ErrIllegalStatusTransition)
}

func TestPauseResumeRoundTrip(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	require.NoError(t, j.CreateTransfer(ctx, &Record{ID: "t1"}))
	require.NoError(t, j.StartTransfer(ctx, "t1"))
	require.NoError(t, j.PauseTransfer(ctx, "t1"))

	rec, err := j.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, rec.Status)

	require.NoError(t, j.ResumeTransfer(ctx, "t1"))
	rec, err = j.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, rec.Status)
}

func TestMarkInterruptedTransfersOnlyAffectsInProgress(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	require.NoError(t, j.CreateTransfer(ctx, &Record{ID: "t1", ServerID: "server1"}))
	require.NoError(t, j.StartTransfer(ctx, "t1"))
	require.NoError(t, j.CreateTransfer(ctx, &Record{ID: "t2", ServerID: "server1"})) // left at StatusCreated
	require.NoError(t, j.CreateTransfer(ctx, &Record{ID: "t3", ServerID: "server2"}))
	require.NoError(t, j.StartTransfer(ctx, "t3")) // in progress but on a different listener

	moved, err := j.MarkInterruptedTransfers(ctx, "server1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1"}, moved)

	rec3, _ := j.Get(ctx, "t3")
	assert.Equal(t, StatusInProgress, rec3.Status, "a different listener's in-progress transfer must not be swept")

	rec1, _ := j.Get(ctx, "t1")
	assert.Equal(t, StatusInterrupted, rec1.Status)
	rec2, _ := j.Get(ctx, "t2")
	assert.Equal(t, StatusCreated, rec2.Status)
}

func TestRetryTransferChainsFromLastSyncPoint(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	require.NoError(t, j.CreateTransfer(ctx, &Record{ID: "t1", PartnerID: "P1"}))
	require.NoError(t, j.StartTransfer(ctx, "t1"))
	require.NoError(t, j.RecordSyncPoint(ctx, "t1", 8192, 3))
	require.NoError(t, j.InterruptTransfer(ctx, "t1"))

	retry, err := j.RetryTransfer(ctx, "t1", "t2")
	require.NoError(t, err)
	assert.Equal(t, "t1", retry.ParentTransferID)
	assert.Equal(t, int64(8192), retry.LastSyncPoint)
	assert.Equal(t, StatusCreated, retry.Status)

	// Original record is left alone as audit history.
	original, err := j.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusInterrupted, original.Status)
}

func TestRetryTransferRejectsNonInterruptedSource(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	require.NoError(t, j.CreateTransfer(ctx, &Record{ID: "t1"}))

	_, err := j.RetryTransfer(ctx, "t1", "t2")
	assert.ErrorIs(t, err, ErrIllegalStatusTransition)
}

func TestListFiltersByPartnerAndStatus(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	require.NoError(t, j.CreateTransfer(ctx, &Record{ID: "t1", PartnerID: "P1"}))
	require.NoError(t, j.CreateTransfer(ctx, &Record{ID: "t2", PartnerID: "P2"}))
	require.NoError(t, j.StartTransfer(ctx, "t2"))

	results, err := j.List(ctx, ListFilter{PartnerID: "P1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "t1", results[0].ID)

	results, err = j.List(ctx, ListFilter{Status: StatusInProgress})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "t2", results[0].ID)
}
