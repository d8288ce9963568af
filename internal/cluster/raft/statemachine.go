// Package raft implements cluster.Provider on top of a dragonboat Raft
// group replicating a single piece of state: which node owns each listener
// server id. The leader is not part of the replicated state. Ownership changes are proposed
// through the Raft log so every node agrees on the outcome even across a
// leader change; reads of "am I leader" come directly from the local
// NodeHost, which dragonboat keeps current without a round trip.
package raft

import (
	"encoding/json"
	"io"
	"sync"

	sm "github.com/lni/dragonboat/v3/statemachine"
)

// commandKind distinguishes the two operations the state machine accepts.
type commandKind string

const (
	cmdAcquire commandKind = "acquire"
	cmdRelease commandKind = "release"
)

// command is Raft-log payload for an ownership change.
type command struct {
	Kind     commandKind `json:"kind"`
	ServerID string      `json:"server_id"`
	NodeName string      `json:"node_name"`
}

// ownershipStateMachine is the replicated state: serverID -> owning node
// name. It implements dragonboat's sm.IStateMachine.
type ownershipStateMachine struct {
	mu     sync.RWMutex
	owners map[string]string
}

func newOwnershipStateMachine() *ownershipStateMachine {
	return &ownershipStateMachine{owners: make(map[string]string)}
}

// Lookup implements sm.IStateMachine: a linearizable-enough read of the
// current owner map snapshot for a given server id.
func (s *ownershipStateMachine) Lookup(query interface{}) (interface{}, error) {
	serverID, _ := query.(string)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owners[serverID], nil
}

// Update applies one proposed command, acquiring or releasing ownership.
// Acquire is idempotent and first-come: if another node already owns the
// server id, the proposing node's request is simply rejected (the command
// still commits — state doesn't change — so the log stays linear).
func (s *ownershipStateMachine) Update(data []byte) (sm.Result, error) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return sm.Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd.Kind {
	case cmdAcquire:
		current, held := s.owners[cmd.ServerID]
		if held && current != cmd.NodeName {
			return sm.Result{Value: 0}, nil // denied
		}
		s.owners[cmd.ServerID] = cmd.NodeName
		return sm.Result{Value: 1}, nil // granted
	case cmdRelease:
		if s.owners[cmd.ServerID] == cmd.NodeName {
			delete(s.owners, cmd.ServerID)
		}
		return sm.Result{Value: 1}, nil
	default:
		return sm.Result{}, nil
	}
}

// SaveSnapshot and RecoverFromSnapshot persist/restore the owner map for
// Raft log compaction.
func (s *ownershipStateMachine) SaveSnapshot(w io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enc, err := json.Marshal(s.owners)
	if err != nil {
		return err
	}
	_, err = w.Write(enc)
	return err
}

func (s *ownershipStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	owners := make(map[string]string)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &owners); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.owners = owners
	s.mu.Unlock()
	return nil
}

func (s *ownershipStateMachine) Close() error { return nil }
