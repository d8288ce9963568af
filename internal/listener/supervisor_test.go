package listener

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horssit/pesitd/internal/cluster"
	"github.com/horssit/pesitd/internal/journal"
	"github.com/horssit/pesitd/internal/transport"
)

func freePort(t *testing.T) int {
	t.Helper()
	raw, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer raw.Close()
	return raw.Addr().(*net.TCPAddr).Port
}

func noopHandle(ctx context.Context, serverID string, conn *transport.Conn) {
	buf := make([]byte, 1)
	_, _ = conn.Read(buf)
	_ = conn.Close()
}

func testConfig(t *testing.T, serverID string, autoStart bool) Config {
	return Config{
		ServerID:  serverID,
		NodeID:    "node1",
		AutoStart: autoStart,
		Transport: transport.Config{
			BindAddress:       "127.0.0.1",
			Port:              freePort(t),
			ReadTimeout:       time.Second,
			ConnectionTimeout: time.Second,
		},
		DrainTimeout: time.Second,
	}
}

func TestSupervisorStartAcquiresOwnershipAndStatusReflectsRunning(t *testing.T) {
	c := cluster.NewStandalone("node1")
	j := journal.NewMemoryJournal()
	sup := NewSupervisor(c, j, nil, "node1", noopHandle)

	cfg := testConfig(t, "SRV1", false)
	require.NoError(t, sup.Create(cfg))

	ctx := context.Background()
	require.NoError(t, sup.Start(ctx, "SRV1"))
	t.Cleanup(func() { _ = sup.Stop(ctx, "SRV1") })

	st, err := sup.Status("SRV1")
	require.NoError(t, err)
	assert.True(t, st.Running)

	owner, err := c.GetServerOwner(ctx, "SRV1")
	require.NoError(t, err)
	assert.Equal(t, "node1", owner)
}

func TestSupervisorStopReleasesOwnership(t *testing.T) {
	c := cluster.NewStandalone("node1")
	j := journal.NewMemoryJournal()
	sup := NewSupervisor(c, j, nil, "node1", noopHandle)

	cfg := testConfig(t, "SRV1", false)
	require.NoError(t, sup.Create(cfg))

	ctx := context.Background()
	require.NoError(t, sup.Start(ctx, "SRV1"))
	require.NoError(t, sup.Stop(ctx, "SRV1"))

	st, err := sup.Status("SRV1")
	require.NoError(t, err)
	assert.False(t, st.Running)

	owner, err := c.GetServerOwner(ctx, "SRV1")
	require.NoError(t, err)
	assert.Empty(t, owner)
}

func TestSupervisorRunAutoStartsOnStandaloneLeader(t *testing.T) {
	c := cluster.NewStandalone("node1")
	j := journal.NewMemoryJournal()
	sup := NewSupervisor(c, j, nil, "node1", noopHandle)

	cfg := testConfig(t, "SRV1", true)
	require.NoError(t, sup.Create(cfg))

	ctx := context.Background()
	require.NoError(t, sup.Run(ctx))
	t.Cleanup(func() { _ = sup.Stop(ctx, "SRV1") })

	require.Eventually(t, func() bool {
		st, err := sup.Status("SRV1")
		return err == nil && st.Running
	}, time.Second, 10*time.Millisecond)
}

func TestSupervisorRejectsDuplicateServerID(t *testing.T) {
	c := cluster.NewStandalone("node1")
	j := journal.NewMemoryJournal()
	sup := NewSupervisor(c, j, nil, "node1", noopHandle)

	cfg := testConfig(t, "SRV1", false)
	require.NoError(t, sup.Create(cfg))
	assert.Error(t, sup.Create(cfg))
}

// fakeClusterProvider is a minimal cluster.Provider whose leadership can
// be driven by hand, for exercising Supervisor.Run's EventBecameLeader/
// EventLostLeadership handling without a real raft.Provider.
type fakeClusterProvider struct {
	nodeName string
	leader   bool
	owners   map[string]string
	onEvent  []func(cluster.Event)
}

func newFakeClusterProvider(nodeName string, leader bool) *fakeClusterProvider {
	return &fakeClusterProvider{nodeName: nodeName, leader: leader, owners: make(map[string]string)}
}

func (f *fakeClusterProvider) IsClusterEnabled() bool { return true }
func (f *fakeClusterProvider) IsLeader() bool         { return f.leader }
func (f *fakeClusterProvider) IsConnected() bool      { return true }
func (f *fakeClusterProvider) GetNodeName() string    { return f.nodeName }
func (f *fakeClusterProvider) ClusterMembers() []cluster.Member {
	return []cluster.Member{{NodeName: f.nodeName}}
}

func (f *fakeClusterProvider) AcquireServerOwnership(ctx context.Context, serverID string) (bool, error) {
	f.owners[serverID] = f.nodeName
	return true, nil
}

func (f *fakeClusterProvider) ReleaseServerOwnership(ctx context.Context, serverID string) error {
	delete(f.owners, serverID)
	return nil
}

func (f *fakeClusterProvider) GetServerOwner(ctx context.Context, serverID string) (string, error) {
	return f.owners[serverID], nil
}

func (f *fakeClusterProvider) AddListener(fn func(cluster.Event)) {
	f.onEvent = append(f.onEvent, fn)
}

// fire synchronously delivers ev to every registered listener, simulating
// what a real raft.Provider would emit asynchronously on a leadership
// change.
func (f *fakeClusterProvider) fire(ev cluster.Event) {
	f.leader = ev.Type == cluster.EventBecameLeader
	for _, fn := range f.onEvent {
		fn(ev)
	}
}

// TestSupervisorStopsListenersOnLostLeadership covers the leadership-loss
// seed scenario: a node running as leader with an active listener must
// stop it the moment it is told it lost leadership, and resume it if
// leadership is reacquired.
func TestSupervisorStopsListenersOnLostLeadership(t *testing.T) {
	c := newFakeClusterProvider("node1", true)
	j := journal.NewMemoryJournal()
	sup := NewSupervisor(c, j, nil, "node1", noopHandle)

	cfg := testConfig(t, "SRV1", true)
	require.NoError(t, sup.Create(cfg))

	ctx := context.Background()
	require.NoError(t, sup.Run(ctx))

	require.Eventually(t, func() bool {
		st, err := sup.Status("SRV1")
		return err == nil && st.Running
	}, time.Second, 10*time.Millisecond)

	c.fire(cluster.Event{Type: cluster.EventLostLeadership, Node: "node2"})

	require.Eventually(t, func() bool {
		st, err := sup.Status("SRV1")
		return err == nil && !st.Running
	}, time.Second, 10*time.Millisecond)

	c.fire(cluster.Event{Type: cluster.EventBecameLeader, Node: "node1"})

	require.Eventually(t, func() bool {
		st, err := sup.Status("SRV1")
		return err == nil && st.Running
	}, time.Second, 10*time.Millisecond)
	t.Cleanup(func() { _ = sup.Stop(ctx, "SRV1") })
}

func TestSupervisorUpdateRejectedWhileRunning(t *testing.T) {
	c := cluster.NewStandalone("node1")
	j := journal.NewMemoryJournal()
	sup := NewSupervisor(c, j, nil, "node1", noopHandle)

	cfg := testConfig(t, "SRV1", false)
	require.NoError(t, sup.Create(cfg))

	ctx := context.Background()
	require.NoError(t, sup.Start(ctx, "SRV1"))
	t.Cleanup(func() { _ = sup.Stop(ctx, "SRV1") })

	assert.Error(t, sup.Update(cfg))
}
