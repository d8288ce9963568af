// Package postgres implements journal.Journal on top of a pgx connection
// pool. Every write is a single UPDATE round trip. Start, complete,
// interrupt, pause and resume carry a WHERE clause on the expected current
// status, so concurrent callers never race a record through two of those
// transitions at once; progress, sync-point, fail and cancel writes match
// on the id alone and do not check the current status.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/horssit/pesitd/internal/journal"
)

// Store is a journal.Journal backed by Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool. Schema migration is applied
// separately via golang-migrate against the migrations embedded alongside
// this package.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateTransfer(ctx context.Context, rec *journal.Record) error {
	now := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pesit_transfers (
			id, server_id, node_id, partner_id, session_id, file_name, local_path, direction, status,
			parent_transfer_id, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
	`, rec.ID, rec.ServerID, rec.NodeID, rec.PartnerID, rec.SessionID, rec.FileName, rec.LocalPath,
		string(rec.Direction), string(journal.StatusCreated), nullableString(rec.ParentTransferID), now)
	if err != nil {
		return fmt.Errorf("journal/postgres: create transfer: %w", err)
	}
	return nil
}

func (s *Store) StartTransfer(ctx context.Context, id string) error {
	return s.transition(ctx, id, journal.StatusCreated, journal.StatusInProgress, `started_at = now()`)
}

func (s *Store) UpdateProgress(ctx context.Context, id string, bytesTransferred, recordCount int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pesit_transfers SET bytes_transferred = $2, record_count = $3, updated_at = now()
		WHERE id = $1
	`, id, bytesTransferred, recordCount)
	if err != nil {
		return fmt.Errorf("journal/postgres: update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return journal.ErrNotFound
	}
	return nil
}

func (s *Store) RecordSyncPoint(ctx context.Context, id string, offset int64, seq uint32) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pesit_transfers SET last_sync_point = $2, sync_point_seq = $3, updated_at = now()
		WHERE id = $1
	`, id, offset, seq)
	if err != nil {
		return fmt.Errorf("journal/postgres: record sync point: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return journal.ErrNotFound
	}
	return nil
}

func (s *Store) CompleteTransfer(ctx context.Context, id string) error {
	return s.transition(ctx, id, journal.StatusInProgress, journal.StatusCompleted, `completed_at = now()`)
}

func (s *Store) FailTransfer(ctx context.Context, id string, diagCode, diagMessage string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pesit_transfers SET status = $2, diag_code = $3, diag_message = $4, updated_at = now()
		WHERE id = $1
	`, id, string(journal.StatusFailed), diagCode, diagMessage)
	if err != nil {
		return fmt.Errorf("journal/postgres: fail transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return journal.ErrNotFound
	}
	return nil
}

func (s *Store) CancelTransfer(ctx context.Context, id string) error {
	return s.transitionFromAny(ctx, id, journal.StatusCancelled, "")
}

func (s *Store) InterruptTransfer(ctx context.Context, id string) error {
	return s.transition(ctx, id, journal.StatusInProgress, journal.StatusInterrupted, "")
}

func (s *Store) PauseTransfer(ctx context.Context, id string) error {
	return s.transition(ctx, id, journal.StatusInProgress, journal.StatusPaused, "")
}

func (s *Store) ResumeTransfer(ctx context.Context, id string) error {
	return s.transition(ctx, id, journal.StatusPaused, journal.StatusInProgress, "")
}

func (s *Store) transition(ctx context.Context, id string, from, to journal.Status, extraSet string) error {
	set := "status = $3, updated_at = now()"
	if extraSet != "" {
		set += ", " + extraSet
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE pesit_transfers SET %s WHERE id = $1 AND status = $2
	`, set), id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("journal/postgres: transition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return journal.ErrNotFound
		}
		return journal.ErrIllegalStatusTransition
	}
	return nil
}

func (s *Store) transitionFromAny(ctx context.Context, id string, to journal.Status, extraSet string) error {
	set := "status = $2, updated_at = now()"
	if extraSet != "" {
		set += ", " + extraSet
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`UPDATE pesit_transfers SET %s WHERE id = $1`, set), id, string(to))
	if err != nil {
		return fmt.Errorf("journal/postgres: transition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return journal.ErrNotFound
	}
	return nil
}

func (s *Store) MarkInterruptedTransfers(ctx context.Context, serverID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE pesit_transfers SET status = $1, updated_at = now()
		WHERE status = $2 AND server_id = $3
		RETURNING id
	`, string(journal.StatusInterrupted), string(journal.StatusInProgress), serverID)
	if err != nil {
		return nil, fmt.Errorf("journal/postgres: mark interrupted: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) RetryTransfer(ctx context.Context, interruptedID, newID string) (*journal.Record, error) {
	src, err := s.Get(ctx, interruptedID)
	if err != nil {
		return nil, err
	}
	if src.Status != journal.StatusInterrupted {
		return nil, journal.ErrIllegalStatusTransition
	}
	now := time.Now()
	next := &journal.Record{
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
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pesit_transfers (
			id, server_id, node_id, partner_id, session_id, file_name, local_path, direction, status,
			last_sync_point, sync_point_seq, parent_transfer_id, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
	`, next.ID, next.ServerID, next.NodeID, next.PartnerID, next.SessionID, next.FileName, next.LocalPath,
		string(next.Direction), string(next.Status), next.LastSyncPoint, next.SyncPointSeq,
		next.ParentTransferID, now)
	if err != nil {
		return nil, fmt.Errorf("journal/postgres: retry transfer: %w", err)
	}
	return next, nil
}

func (s *Store) GCTerminalTransfers(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM pesit_transfers
		WHERE status IN ($1, $2, $3) AND updated_at < $4
	`, string(journal.StatusCompleted), string(journal.StatusFailed), string(journal.StatusCancelled), cutoff)
	if err != nil {
		return 0, fmt.Errorf("journal/postgres: gc terminal transfers: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) Get(ctx context.Context, id string) (*journal.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, server_id, node_id, partner_id, session_id, file_name, local_path, direction, status,
			bytes_transferred, record_count, last_sync_point, sync_point_seq,
			coalesce(parent_transfer_id, ''), created_at, started_at, updated_at, completed_at,
			coalesce(diag_code, ''), coalesce(diag_message, '')
		FROM pesit_transfers WHERE id = $1
	`, id)
	return scanRecord(row)
}

func (s *Store) List(ctx context.Context, filter journal.ListFilter) ([]*journal.Record, error) {
	query := `
		SELECT id, server_id, node_id, partner_id, session_id, file_name, local_path, direction, status,
			bytes_transferred, record_count, last_sync_point, sync_point_seq,
			coalesce(parent_transfer_id, ''), created_at, started_at, updated_at, completed_at,
			coalesce(diag_code, ''), coalesce(diag_message, '')
		FROM pesit_transfers WHERE true
	`
	args := []any{}
	if filter.ServerID != "" {
		args = append(args, filter.ServerID)
		query += fmt.Sprintf(" AND server_id = $%d", len(args))
	}
	if filter.PartnerID != "" {
		args = append(args, filter.PartnerID)
		query += fmt.Sprintf(" AND partner_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND updated_at >= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal/postgres: list: %w", err)
	}
	defer rows.Close()

	var out []*journal.Record
	for rows.Next() {
		rec, err := scanRecordRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row pgx.Row) (*journal.Record, error) {
	return scanRecordRow(row)
}

func scanRecordRow(row rowScanner) (*journal.Record, error) {
	var r journal.Record
	var direction, status string
	var startedAt, completedAt *time.Time
	err := row.Scan(
		&r.ID, &r.ServerID, &r.NodeID, &r.PartnerID, &r.SessionID, &r.FileName, &r.LocalPath, &direction, &status,
		&r.BytesTransferred, &r.RecordCount, &r.LastSyncPoint, &r.SyncPointSeq,
		&r.ParentTransferID, &r.CreatedAt, &startedAt, &r.UpdatedAt, &completedAt,
		&r.DiagCode, &r.DiagMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, journal.ErrNotFound
		}
		return nil, err
	}
	r.Direction = journal.Direction(direction)
	r.Status = journal.Status(status)
	if startedAt != nil {
		r.StartedAt = *startedAt
	}
	if completedAt != nil {
		r.CompletedAt = *completedAt
	}
	return &r, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
