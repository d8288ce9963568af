package raft

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lni/dragonboat/v3"
	"github.com/lni/dragonboat/v3/config"
	sm "github.com/lni/dragonboat/v3/statemachine"

	"github.com/horssit/pesitd/internal/cluster"
)

// shardID is the single Raft shard this provider replicates ownership
// state on. One shard is enough: listener ownership for an entire server
// fleet is a small, infrequently-changing map.
const shardID = 1

// Provider is a cluster.Provider backed by a dragonboat Raft group.
type Provider struct {
	nh       *dragonboat.NodeHost
	nodeName string
	replicaID uint64

	mu        sync.Mutex
	listeners []func(cluster.Event)
	lastLeader bool
}

// Config configures a Provider's Raft group membership.
type Config struct {
	NodeName    string
	ReplicaID   uint64
	RaftAddress string
	DataDir     string
	// InitialMembers maps replica id -> raft address for a fresh cluster.
	// Leave empty when joining an already-initialized group.
	InitialMembers map[uint64]string
	Join           bool
}

// New starts a NodeHost and joins (or bootstraps) the ownership shard.
func New(cfg Config) (*Provider, error) {
	nhc := config.NodeHostConfig{
		NodeHostDir:    cfg.DataDir,
		RTTMillisecond: 200,
		RaftAddress:    cfg.RaftAddress,
	}
	nh, err := dragonboat.NewNodeHost(nhc)
	if err != nil {
		return nil, fmt.Errorf("cluster/raft: starting node host: %w", err)
	}

	rc := config.Config{
		ReplicaID:          cfg.ReplicaID,
		ShardID:            shardID,
		ElectionRTT:        10,
		HeartbeatRTT:       1,
		CheckQuorum:        true,
		SnapshotEntries:    1000,
		CompactionOverhead: 500,
	}

	factory := func(shardID, replicaID uint64) sm.IStateMachine {
		return newOwnershipStateMachine()
	}

	if err := nh.StartReplica(cfg.InitialMembers, cfg.Join, factory, rc); err != nil {
		return nil, fmt.Errorf("cluster/raft: starting replica: %w", err)
	}

	p := &Provider{nh: nh, nodeName: cfg.NodeName, replicaID: cfg.ReplicaID}
	go p.watchLeadership()
	return p, nil
}

func (p *Provider) watchLeadership() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		leaderID, _, ok, err := p.nh.GetLeaderID(shardID)
		if err != nil || !ok {
			continue
		}
		isLeader := leaderID == p.replicaID
		p.mu.Lock()
		changed := isLeader != p.lastLeader
		p.lastLeader = isLeader
		fns := append([]func(cluster.Event){}, p.listeners...)
		p.mu.Unlock()
		if !changed {
			continue
		}
		ev := cluster.Event{Node: p.nodeName}
		if isLeader {
			ev.Type = cluster.EventBecameLeader
		} else {
			ev.Type = cluster.EventLostLeadership
		}
		for _, fn := range fns {
			fn(ev)
		}
	}
}

func (p *Provider) IsClusterEnabled() bool { return true }

func (p *Provider) IsLeader() bool {
	leaderID, _, ok, err := p.nh.GetLeaderID(shardID)
	return err == nil && ok && leaderID == p.replicaID
}

func (p *Provider) IsConnected() bool {
	_, _, ok, err := p.nh.GetLeaderID(shardID)
	return err == nil && ok
}

func (p *Provider) GetNodeName() string { return p.nodeName }

func (p *Provider) ClusterMembers() []cluster.Member {
	membership, err := p.nh.SyncGetShardMembership(context.Background(), shardID)
	if err != nil {
		return nil
	}
	out := make([]cluster.Member, 0, len(membership.Nodes))
	for replicaID, addr := range membership.Nodes {
		out = append(out, cluster.Member{NodeName: fmt.Sprintf("replica-%d", replicaID), Address: addr})
	}
	return out
}

func (p *Provider) AcquireServerOwnership(ctx context.Context, serverID string) (bool, error) {
	cmd := command{Kind: cmdAcquire, ServerID: serverID, NodeName: p.nodeName}
	data, err := json.Marshal(cmd)
	if err != nil {
		return false, err
	}
	session := p.nh.GetNoOPSession(shardID)
	result, err := p.nh.SyncPropose(ctx, session, data)
	if err != nil {
		return false, fmt.Errorf("cluster/raft: proposing acquire: %w", err)
	}
	return result.Value == 1, nil
}

func (p *Provider) ReleaseServerOwnership(ctx context.Context, serverID string) error {
	cmd := command{Kind: cmdRelease, ServerID: serverID, NodeName: p.nodeName}
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	session := p.nh.GetNoOPSession(shardID)
	_, err = p.nh.SyncPropose(ctx, session, data)
	if err != nil {
		return fmt.Errorf("cluster/raft: proposing release: %w", err)
	}
	return nil
}

func (p *Provider) GetServerOwner(ctx context.Context, serverID string) (string, error) {
	result, err := p.nh.SyncRead(ctx, shardID, serverID)
	if err != nil {
		return "", fmt.Errorf("cluster/raft: reading owner: %w", err)
	}
	owner, _ := result.(string)
	return owner, nil
}

func (p *Provider) AddListener(fn func(cluster.Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Close stops the NodeHost, releasing its Raft group membership.
func (p *Provider) Close() {
	p.nh.Close()
}
