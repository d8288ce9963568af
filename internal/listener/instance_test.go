package listener

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horssit/pesitd/internal/journal"
	"github.com/horssit/pesitd/internal/transport"
)

func TestStartRejectsMissingReceiveDirectory(t *testing.T) {
	j := journal.NewMemoryJournal()
	cfg := Config{
		ServerID:   "SRV1",
		ReceiveDir: "/nonexistent/path/does-not-exist",
		Transport: transport.Config{
			BindAddress: "127.0.0.1",
			Port:        freePort(t),
		},
	}
	li := NewListenerInstance(cfg, j, nil, noopHandle)
	err := li.Start(context.Background())
	assert.Error(t, err)
}

func TestGCTimerSweepsTerminalTransfersPastRetention(t *testing.T) {
	j := journal.NewMemoryJournal()
	ctx := context.Background()
	require.NoError(t, j.CreateTransfer(ctx, &journal.Record{ID: "t1", ServerID: "SRV1"}))
	require.NoError(t, j.StartTransfer(ctx, "t1"))
	require.NoError(t, j.CompleteTransfer(ctx, "t1"))

	cfg := Config{
		ServerID: "SRV1",
		Transport: transport.Config{
			BindAddress: "127.0.0.1",
			Port:        freePort(t),
		},
		GCInterval:   10 * time.Millisecond,
		GCRetention:  -time.Hour, // everything already terminal qualifies immediately
		DrainTimeout: time.Second,
	}
	li := NewListenerInstance(cfg, j, nil, noopHandle)
	require.NoError(t, li.Start(ctx))
	defer li.Stop()

	require.Eventually(t, func() bool {
		_, err := j.Get(ctx, "t1")
		return err == journal.ErrNotFound
	}, time.Second, 10*time.Millisecond)
}
