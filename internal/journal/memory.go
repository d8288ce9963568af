package journal

import (
	"context"
	"sync"
	"time"
)

// MemoryJournal is a Journal backed by an in-process map, guarded by a
// single mutex. Every operation runs under the lock, which is what gives
// each record's history its total order: two goroutines racing to update
// the same transfer id never interleave.
type MemoryJournal struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryJournal builds an empty MemoryJournal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{records: make(map[string]*Record)}
}

func (j *MemoryJournal) CreateTransfer(ctx context.Context, rec *Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	rec.Status = StatusCreated
	rec.CreatedAt = now
	rec.UpdatedAt = now
	cp := *rec
	j.records[rec.ID] = &cp
	return nil
}

func (j *MemoryJournal) StartTransfer(ctx context.Context, id string) error {
	return j.transition(id, StatusInProgress, func(r *Record) {
		r.StartedAt = time.Now()
	})
}

func (j *MemoryJournal) UpdateProgress(ctx context.Context, id string, bytesTransferred, recordCount int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	r, ok := j.records[id]
	if !ok {
		return ErrNotFound
	}
	r.BytesTransferred = bytesTransferred
	r.RecordCount = recordCount
	r.UpdatedAt = time.Now()
	return nil
}

func (j *MemoryJournal) RecordSyncPoint(ctx context.Context, id string, offset int64, seq uint32) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	r, ok := j.records[id]
	if !ok {
		return ErrNotFound
	}
	r.LastSyncPoint = offset
	r.SyncPointSeq = seq
	r.UpdatedAt = time.Now()
	return nil
}

func (j *MemoryJournal) CompleteTransfer(ctx context.Context, id string) error {
	return j.transition(id, StatusCompleted, func(r *Record) {
		r.CompletedAt = time.Now()
	})
}

func (j *MemoryJournal) FailTransfer(ctx context.Context, id string, diagCode, diagMessage string) error {
	return j.transition(id, StatusFailed, func(r *Record) {
		r.DiagCode = diagCode
		r.DiagMessage = diagMessage
	})
}

func (j *MemoryJournal) CancelTransfer(ctx context.Context, id string) error {
	return j.transition(id, StatusCancelled, nil)
}

func (j *MemoryJournal) InterruptTransfer(ctx context.Context, id string) error {
	return j.transition(id, StatusInterrupted, nil)
}

func (j *MemoryJournal) PauseTransfer(ctx context.Context, id string) error {
	return j.transition(id, StatusPaused, nil)
}

func (j *MemoryJournal) ResumeTransfer(ctx context.Context, id string) error {
	return j.transition(id, StatusInProgress, nil)
}

func (j *MemoryJournal) transition(id string, to Status, mutate func(*Record)) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	r, ok := j.records[id]
	if !ok {
		return ErrNotFound
	}
	if err := CheckTransition(r.Status, to); err != nil {
		return err
	}
	r.Status = to
	r.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(r)
	}
	return nil
}

func (j *MemoryJournal) MarkInterruptedTransfers(ctx context.Context, serverID string) ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var moved []string
	for id, r := range j.records {
		if r.Status != StatusInProgress || r.ServerID != serverID {
			continue
		}
		r.Status = StatusInterrupted
		r.UpdatedAt = time.Now()
		moved = append(moved, id)
	}
	return moved, nil
}

func (j *MemoryJournal) RetryTransfer(ctx context.Context, interruptedID, newID string) (*Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	src, ok := j.records[interruptedID]
	if !ok {
		return nil, ErrNotFound
	}
	if src.Status != StatusInterrupted {
		return nil, ErrIllegalStatusTransition
	}
	now := time.Now()
	next := &Record{
		ID:               newID,
		ServerID:         src.ServerID,
		NodeID:           src.NodeID,
		PartnerID:        src.PartnerID,
		SessionID:        src.SessionID,
		FileName:         src.FileName,
		LocalPath:        src.LocalPath,
		Direction:        src.Direction,
		Status:           StatusCreated,
		LastSyncPoint:    src.LastSyncPoint,
		SyncPointSeq:     src.SyncPointSeq,
		ParentTransferID: interruptedID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	j.records[newID] = next
	cp := *next
	return &cp, nil
}

func (j *MemoryJournal) Get(ctx context.Context, id string) (*Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	r, ok := j.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (j *MemoryJournal) GCTerminalTransfers(ctx context.Context, cutoff time.Time) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var n int
	for id, r := range j.records {
		if IsTerminal(r.Status) && r.UpdatedAt.Before(cutoff) {
			delete(j.records, id)
			n++
		}
	}
	return n, nil
}

func (j *MemoryJournal) List(ctx context.Context, filter ListFilter) ([]*Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*Record
	for _, r := range j.records {
		if filter.ServerID != "" && r.ServerID != filter.ServerID {
			continue
		}
		if filter.PartnerID != "" && r.PartnerID != filter.PartnerID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if !filter.Since.IsZero() && r.UpdatedAt.Before(filter.Since) {
			continue
		}
		cp := *r
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
