// Package journal implements the transfer journal: the persistent record of
// every file transfer a server has attempted, from creation through
// completion, failure, interruption, or retry. It is the single source of
// truth restart and resume logic consult — a transfer's on-wire state is
// reconstructed from its journal record, never the other way around.
package journal

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup finds no record for the given id.
var ErrNotFound = errors.New("journal: transfer not found")

// ErrIllegalStatusTransition is returned when an operation would move a
// transfer record through a status change its current status does not
// permit (e.g. completing an already-completed transfer).
var ErrIllegalStatusTransition = errors.New("journal: illegal transfer status transition")

// Status is the lifecycle stage of a transfer record.
type Status string

const (
	StatusCreated     Status = "created"
	StatusInProgress  Status = "in_progress"
	StatusPaused      Status = "paused"
	StatusInterrupted Status = "interrupted"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Direction is the transfer's data flow relative to this server.
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// Record is one transfer's persistent journal entry.
type Record struct {
	ID string

	ServerID    string
	NodeID      string
	PartnerID   string
	SessionID   string
	FileName    string
	LocalPath   string
	Direction   Direction
	Status      Status

	BytesTransferred int64
	RecordCount      int64

	LastSyncPoint int64
	SyncPointSeq  uint32

	// ParentTransferID is set when this record was created by retryTransfer
	// from an interrupted predecessor, forming a retry chain.
	ParentTransferID string

	CreatedAt   time.Time
	StartedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time

	DiagCode    string
	DiagMessage string
}

// ListFilter narrows List to a subset of records. Zero-valued fields are
// not applied as filters.
type ListFilter struct {
	ServerID  string
	PartnerID string
	Status    Status
	Since     time.Time
	Limit     int
}

// Journal is the full set of operations a session, the listener supervisor,
// and operator tooling perform against the transfer record store. Every
// method is safe for concurrent use; implementations serialize writes
// per-transfer-id so a record's history is always totally ordered.
type Journal interface {
	CreateTransfer(ctx context.Context, rec *Record) error
	StartTransfer(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, bytesTransferred, recordCount int64) error
	RecordSyncPoint(ctx context.Context, id string, offset int64, seq uint32) error
	CompleteTransfer(ctx context.Context, id string) error
	FailTransfer(ctx context.Context, id string, diagCode, diagMessage string) error
	CancelTransfer(ctx context.Context, id string) error
	InterruptTransfer(ctx context.Context, id string) error
	PauseTransfer(ctx context.Context, id string) error
	ResumeTransfer(ctx context.Context, id string) error

	// MarkInterruptedTransfers sweeps every record still InProgress for the
	// given server that was left behind by an ungraceful restart
	// (no matching CompleteTransfer/FailTransfer/CancelTransfer was ever
	// recorded) and moves it to StatusInterrupted. Returns the ids moved.
	MarkInterruptedTransfers(ctx context.Context, serverID string) ([]string, error)

	// RetryTransfer creates a fresh record carrying forward the interrupted
	// transfer's sync point as the new record's starting LastSyncPoint, and
	// links it via ParentTransferID. The interrupted record itself is left
	// untouched for audit history.
	RetryTransfer(ctx context.Context, interruptedID string, newID string) (*Record, error)

	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, filter ListFilter) ([]*Record, error)

	// GCTerminalTransfers deletes every record in a terminal status
	// (completed, failed, cancelled) last updated before cutoff. Returns
	// the number of records removed. Interrupted records are never swept
	// here — they remain addressable as RetryTransfer parents.
	GCTerminalTransfers(ctx context.Context, cutoff time.Time) (int, error)
}

// IsTerminal reports whether a status will never change again outside of
// RetryTransfer creating a fresh, separate record.
func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// legalNext enumerates the statuses reachable from each status, mirroring
// the protocol-level state machine's shape: a static table rather than
// scattered if-chains.
var legalNext = map[Status]map[Status]bool{
	StatusCreated:     {StatusInProgress: true, StatusCancelled: true, StatusFailed: true},
	StatusInProgress:  {StatusCompleted: true, StatusFailed: true, StatusCancelled: true, StatusInterrupted: true, StatusPaused: true},
	StatusPaused:      {StatusInProgress: true, StatusCancelled: true, StatusFailed: true},
	StatusInterrupted: {StatusFailed: true}, // recovery happens via RetryTransfer, a new record
}

// CheckTransition reports whether moving a record from `from` to `to` is
// legal, per legalNext.
func CheckTransition(from, to Status) error {
	next, ok := legalNext[from]
	if !ok || !next[to] {
		return ErrIllegalStatusTransition
	}
	return nil
}
