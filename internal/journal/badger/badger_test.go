package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horssit/pesitd/internal/journal"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBadgerLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.CreateTransfer(ctx, &journal.Record{ID: "t1", PartnerID: "P1"}))
	require.NoError(t, store.StartTransfer(ctx, "t1"))
	require.NoError(t, store.UpdateProgress(ctx, "t1", 2048, 2))
	require.NoError(t, store.CompleteTransfer(ctx, "t1"))

	rec, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, journal.StatusCompleted, rec.Status)
	assert.Equal(t, int64(2048), rec.BytesTransferred)
}

func TestBadgerRetryChainAndList(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.CreateTransfer(ctx, &journal.Record{ID: "t1", PartnerID: "P1"}))
	require.NoError(t, store.StartTransfer(ctx, "t1"))
	require.NoError(t, store.RecordSyncPoint(ctx, "t1", 1024, 1))
	require.NoError(t, store.InterruptTransfer(ctx, "t1"))

	retry, err := store.RetryTransfer(ctx, "t1", "t2")
	require.NoError(t, err)
	assert.Equal(t, "t1", retry.ParentTransferID)
	assert.Equal(t, int64(1024), retry.LastSyncPoint)

	all, err := store.List(ctx, journal.ListFilter{PartnerID: "P1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestBadgerGetMissingReturnsNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, journal.ErrNotFound)
}
