package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandaloneAlwaysLeaderAndConnected(t *testing.T) {
	s := NewStandalone("node1")
	assert.False(t, s.IsClusterEnabled())
	assert.True(t, s.IsLeader())
	assert.True(t, s.IsConnected())
	assert.Equal(t, "node1", s.GetNodeName())
}

func TestStandaloneOwnershipAlwaysGranted(t *testing.T) {
	s := NewStandalone("node1")
	ctx := context.Background()

	ok, err := s.AcquireServerOwnership(ctx, "srv1")
	require.NoError(t, err)
	assert.True(t, ok)

	owner, err := s.GetServerOwner(ctx, "srv1")
	require.NoError(t, err)
	assert.Equal(t, "node1", owner)

	require.NoError(t, s.ReleaseServerOwnership(ctx, "srv1"))
	owner, err = s.GetServerOwner(ctx, "srv1")
	require.NoError(t, err)
	assert.Empty(t, owner)
}
