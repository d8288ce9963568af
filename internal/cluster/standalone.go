package cluster

import (
	"context"
	"sync"
)

// Standalone is the always-leader Provider used when no cluster backend is
// configured: this node owns every listener it is asked to own, and
// ownership acquisition never fails. It exists so the listener supervisor
// never has to special-case "no cluster" — it always talks to a Provider.
type Standalone struct {
	nodeName string

	mu      sync.Mutex
	owned   map[string]bool
	onEvent []func(Event)
}

// NewStandalone builds a Standalone Provider for the given node name.
func NewStandalone(nodeName string) *Standalone {
	return &Standalone{nodeName: nodeName, owned: make(map[string]bool)}
}

func (s *Standalone) IsClusterEnabled() bool { return false }
func (s *Standalone) IsLeader() bool         { return true }
func (s *Standalone) IsConnected() bool      { return true }
func (s *Standalone) GetNodeName() string    { return s.nodeName }

func (s *Standalone) ClusterMembers() []Member {
	return []Member{{NodeName: s.nodeName}}
}

func (s *Standalone) AcquireServerOwnership(ctx context.Context, serverID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owned[serverID] = true
	return true, nil
}

func (s *Standalone) ReleaseServerOwnership(ctx context.Context, serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owned, serverID)
	return nil
}

func (s *Standalone) GetServerOwner(ctx context.Context, serverID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owned[serverID] {
		return s.nodeName, nil
	}
	return "", nil
}

func (s *Standalone) AddListener(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = append(s.onEvent, fn)
	// A Standalone node is leader from the moment it starts; notify
	// immediately so a newly registered listener doesn't have to special
	// case the first observation.
	go fn(Event{Type: EventBecameLeader, Node: s.nodeName})
}
