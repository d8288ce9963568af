// Package badger implements journal.Journal on an embedded BadgerDB, for
// single-node deployments that want crash-safe persistence without standing
// up Postgres. Records are JSON-encoded under a "t:<id>" key; there is no
// secondary index, so List scans the full key range — acceptable for the
// modest record counts a single PeSIT listener accumulates.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bdg "github.com/dgraph-io/badger/v4"

	"github.com/horssit/pesitd/internal/journal"
)

const keyPrefix = "t:"

func key(id string) []byte { return []byte(keyPrefix + id) }

// Store is a journal.Journal backed by an embedded BadgerDB instance.
type Store struct {
	db *bdg.DB
}

// Open opens (creating if absent) a BadgerDB at dir and returns a Store
// wrapping it. The caller owns the returned DB's lifetime; Close it on
// shutdown.
func Open(dir string) (*Store, error) {
	opts := bdg.DefaultOptions(dir).WithLogger(nil)
	db, err := bdg.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("journal/badger: opening database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying BadgerDB.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) get(txn *bdg.Txn, id string) (*journal.Record, error) {
	item, err := txn.Get(key(id))
	if err == bdg.ErrKeyNotFound {
		return nil, journal.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec journal.Record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) put(txn *bdg.Txn, rec *journal.Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(key(rec.ID), val)
}

func (s *Store) CreateTransfer(ctx context.Context, rec *journal.Record) error {
	now := time.Now()
	cp := *rec
	cp.Status = journal.StatusCreated
	cp.CreatedAt = now
	cp.UpdatedAt = now
	return s.db.Update(func(txn *bdg.Txn) error {
		return s.put(txn, &cp)
	})
}

func (s *Store) mutate(id string, to journal.Status, mutate func(*journal.Record)) error {
	return s.db.Update(func(txn *bdg.Txn) error {
		rec, err := s.get(txn, id)
		if err != nil {
			return err
		}
		if to != "" {
			if err := journal.CheckTransition(rec.Status, to); err != nil {
				return err
			}
			rec.Status = to
		}
		if mutate != nil {
			mutate(rec)
		}
		rec.UpdatedAt = time.Now()
		return s.put(txn, rec)
	})
}

func (s *Store) StartTransfer(ctx context.Context, id string) error {
	return s.mutate(id, journal.StatusInProgress, nil)
}

func (s *Store) UpdateProgress(ctx context.Context, id string, bytesTransferred, recordCount int64) error {
	return s.mutate(id, "", func(r *journal.Record) {
		r.BytesTransferred = bytesTransferred
		r.RecordCount = recordCount
	})
}

func (s *Store) RecordSyncPoint(ctx context.Context, id string, offset int64, seq uint32) error {
	return s.mutate(id, "", func(r *journal.Record) {
		r.LastSyncPoint = offset
		r.SyncPointSeq = seq
	})
}

func (s *Store) CompleteTransfer(ctx context.Context, id string) error {
	return s.mutate(id, journal.StatusCompleted, nil)
}

func (s *Store) FailTransfer(ctx context.Context, id string, diagCode, diagMessage string) error {
	return s.db.Update(func(txn *bdg.Txn) error {
		rec, err := s.get(txn, id)
		if err != nil {
			return err
		}
		rec.Status = journal.StatusFailed
		rec.DiagCode = diagCode
		rec.DiagMessage = diagMessage
		rec.UpdatedAt = time.Now()
		return s.put(txn, rec)
	})
}

func (s *Store) CancelTransfer(ctx context.Context, id string) error {
	return s.mutate(id, journal.StatusCancelled, nil)
}

func (s *Store) InterruptTransfer(ctx context.Context, id string) error {
	return s.mutate(id, journal.StatusInterrupted, nil)
}

func (s *Store) PauseTransfer(ctx context.Context, id string) error {
	return s.mutate(id, journal.StatusPaused, nil)
}

func (s *Store) ResumeTransfer(ctx context.Context, id string) error {
	return s.mutate(id, journal.StatusInProgress, nil)
}

func (s *Store) MarkInterruptedTransfers(ctx context.Context, serverID string) ([]string, error) {
	var moved []string
	err := s.db.Update(func(txn *bdg.Txn) error {
		it := txn.NewIterator(bdg.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec journal.Record
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			if rec.Status != journal.StatusInProgress || rec.ServerID != serverID {
				continue
			}
			rec.Status = journal.StatusInterrupted
			rec.UpdatedAt = time.Now()
			if err := s.put(txn, &rec); err != nil {
				return err
			}
			moved = append(moved, rec.ID)
		}
		return nil
	})
	return moved, err
}

func (s *Store) RetryTransfer(ctx context.Context, interruptedID, newID string) (*journal.Record, error) {
	var next *journal.Record
	err := s.db.Update(func(txn *bdg.Txn) error {
		src, err := s.get(txn, interruptedID)
		if err != nil {
			return err
		}
		if src.Status != journal.StatusInterrupted {
			return journal.ErrIllegalStatusTransition
		}
		now := time.Now()
		next = &journal.Record{
			ID:               newID,
			ServerID:         src.ServerID,
			NodeID:           src.NodeID,
			PartnerID:        src.PartnerID,
			SessionID:        src.SessionID,
			FileName:         src.FileName,
			LocalPath:        src.LocalPath,
			Direction:        src.Direction,
			Status:           journal.StatusCreated,
			LastSyncPoint:    src.LastSyncPoint,
			SyncPointSeq:     src.SyncPointSeq,
			ParentTransferID: interruptedID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		return s.put(txn, next)
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (s *Store) GCTerminalTransfers(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := s.db.Update(func(txn *bdg.Txn) error {
		it := txn.NewIterator(bdg.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		var toDelete [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec journal.Record
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			if journal.IsTerminal(rec.Status) && rec.UpdatedAt.Before(cutoff) {
				toDelete = append(toDelete, append([]byte(nil), item.Key()...))
			}
		}
		for _, k := range toDelete {
			if err := txn.Delete(k); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func (s *Store) Get(ctx context.Context, id string) (*journal.Record, error) {
	var rec *journal.Record
	err := s.db.View(func(txn *bdg.Txn) error {
		r, err := s.get(txn, id)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	return rec, err
}

func (s *Store) List(ctx context.Context, filter journal.ListFilter) ([]*journal.Record, error) {
	var out []*journal.Record
	err := s.db.View(func(txn *bdg.Txn) error {
		it := txn.NewIterator(bdg.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec journal.Record
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			if filter.ServerID != "" && rec.ServerID != filter.ServerID {
				continue
			}
			if filter.PartnerID != "" && rec.PartnerID != filter.PartnerID {
				continue
			}
			if filter.Status != "" && rec.Status != filter.Status {
				continue
			}
			if !filter.Since.IsZero() && rec.UpdatedAt.Before(filter.Since) {
				continue
			}
			cp := rec
			out = append(out, &cp)
			if filter.Limit > 0 && len(out) >= filter.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}
