package listener

import (
	"context"
	"fmt"
	"sync"

	"github.com/horssit/pesitd/internal/cluster"
	"github.com/horssit/pesitd/internal/journal"
	"github.com/horssit/pesitd/internal/logger"
	"github.com/horssit/pesitd/internal/metrics"
)

// Supervisor maintains the { serverId -> *ListenerInstance } map and drives
// start/stop decisions from cluster leadership events, per the "cooperative
// timers, not owned threads" design: the supervisor never spawns a
// long-running thread of its own beyond the per-instance maintenance
// timers it starts as part of ListenerInstance.Start.
type Supervisor struct {
	cluster cluster.Provider
	journal journal.Journal
	metrics metrics.Metrics
	nodeID  string
	handle  HandlerFunc

	mu        sync.RWMutex
	instances map[string]*ListenerInstance
	configs   map[string]Config
	handlers  map[string]HandlerFunc
}

// NewSupervisor builds a Supervisor. Run must be called once to register
// for cluster events and perform the startup sequence.
func NewSupervisor(c cluster.Provider, j journal.Journal, m metrics.Metrics, nodeID string, handle HandlerFunc) *Supervisor {
	return &Supervisor{
		cluster:   c,
		journal:   j,
		metrics:   m,
		nodeID:    nodeID,
		handle:    handle,
		instances: make(map[string]*ListenerInstance),
		configs:   make(map[string]Config),
		handlers:  make(map[string]HandlerFunc),
	}
}

// Create registers a new listener configuration. It does not start it;
// startup happens via Run's cluster-driven sequence or an explicit Start.
func (s *Supervisor) Create(cfg Config) error {
	return s.CreateWithHandler(cfg, s.handle)
}

// CreateWithHandler registers a new listener configuration bound to its own
// handler rather than the Supervisor's default one. Each configured server
// typically carries its own receive/send directories and entity-size
// policy, so every listener gets its own *engine.Engine rather than sharing
// the default handler passed to NewSupervisor.
func (s *Supervisor) CreateWithHandler(cfg Config, handle HandlerFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.configs[cfg.ServerID]; exists {
		return fmt.Errorf("listener supervisor: server id %q already registered", cfg.ServerID)
	}
	s.configs[cfg.ServerID] = cfg
	s.handlers[cfg.ServerID] = handle
	s.instances[cfg.ServerID] = NewListenerInstance(cfg, s.journal, s.metrics, handle)
	return nil
}

// Update replaces a listener's configuration, keeping its existing handler.
// Rejected while the listener is running — stop it first.
func (s *Supervisor) Update(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[cfg.ServerID]
	if !ok {
		return fmt.Errorf("listener supervisor: unknown server id %q", cfg.ServerID)
	}
	if inst.Status().Running {
		return fmt.Errorf("listener supervisor: %q is running, stop it before updating", cfg.ServerID)
	}
	handle := s.handlers[cfg.ServerID]
	if handle == nil {
		handle = s.handle
	}
	s.configs[cfg.ServerID] = cfg
	s.instances[cfg.ServerID] = NewListenerInstance(cfg, s.journal, s.metrics, handle)
	return nil
}

// Delete stops (if running) and removes a listener configuration.
func (s *Supervisor) Delete(ctx context.Context, serverID string) error {
	if err := s.Stop(ctx, serverID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, serverID)
	delete(s.configs, serverID)
	delete(s.handlers, serverID)
	return nil
}

// Start acquires cluster ownership of serverID and, if granted, starts the
// accept loop. Returns an error naming the owning node if another node
// already holds this listener.
func (s *Supervisor) Start(ctx context.Context, serverID string) error {
	s.mu.RLock()
	inst, ok := s.instances[serverID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("listener supervisor: unknown server id %q", serverID)
	}

	acquired, err := s.cluster.AcquireServerOwnership(ctx, serverID)
	if err != nil {
		return fmt.Errorf("listener supervisor: acquiring ownership of %q: %w", serverID, err)
	}
	if !acquired {
		owner, _ := s.cluster.GetServerOwner(ctx, serverID)
		return fmt.Errorf("listener supervisor: %q already owned by %s", serverID, owner)
	}

	if err := inst.Start(ctx); err != nil {
		_ = s.cluster.ReleaseServerOwnership(ctx, serverID)
		return err
	}
	return nil
}

// Stop stops a running listener and releases its cluster ownership.
func (s *Supervisor) Stop(ctx context.Context, serverID string) error {
	s.mu.RLock()
	inst, ok := s.instances[serverID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	err := inst.Stop()
	if relErr := s.cluster.ReleaseServerOwnership(ctx, serverID); relErr != nil {
		logger.Warn("releasing server ownership failed", "server_id", serverID, "error", relErr)
	}
	return err
}

// Status returns the current status of one listener.
func (s *Supervisor) Status(serverID string) (Status, error) {
	s.mu.RLock()
	inst, ok := s.instances[serverID]
	s.mu.RUnlock()
	if !ok {
		return Status{}, fmt.Errorf("listener supervisor: unknown server id %q", serverID)
	}
	return inst.Status(), nil
}

// ActiveConnectionCount returns how many connections a listener currently
// holds open.
func (s *Supervisor) ActiveConnectionCount(serverID string) (int32, error) {
	st, err := s.Status(serverID)
	if err != nil {
		return 0, err
	}
	return st.ActiveConnections, nil
}

// AllStatuses returns a Status snapshot for every registered listener.
func (s *Supervisor) AllStatuses() []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Status, 0, len(s.instances))
	for _, inst := range s.instances {
		out = append(out, inst.Status())
	}
	return out
}

// Run performs the startup sequence from the design: sweep this node's
// interrupted transfers, register for cluster events, then either
// auto-start every autoStart listener immediately (standalone, or already
// leader) or wait for a BECAME_LEADER event.
func (s *Supervisor) Run(ctx context.Context) error {
	if _, err := s.journal.MarkInterruptedTransfers(ctx, s.nodeID); err != nil {
		return fmt.Errorf("listener supervisor: sweeping interrupted transfers: %w", err)
	}

	s.cluster.AddListener(func(ev cluster.Event) {
		switch ev.Type {
		case cluster.EventBecameLeader:
			s.autoStartAll(ctx)
		case cluster.EventLostLeadership:
			s.stopAll(ctx)
		}
	})

	if !s.cluster.IsClusterEnabled() || s.cluster.IsLeader() {
		s.autoStartAll(ctx)
	}
	return nil
}

func (s *Supervisor) autoStartAll(ctx context.Context) {
	s.mu.RLock()
	var ids []string
	for id, cfg := range s.configs {
		if cfg.AutoStart {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	for _, id := range ids {
		if err := s.Start(ctx, id); err != nil {
			logger.Warn("auto-start failed", "server_id", id, "error", err)
		}
	}
}

func (s *Supervisor) stopAll(ctx context.Context) {
	s.mu.RLock()
	var ids []string
	for id := range s.instances {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	for _, id := range ids {
		if err := s.Stop(ctx, id); err != nil {
			logger.Warn("stop on leadership loss failed", "server_id", id, "error", err)
		}
	}
}
