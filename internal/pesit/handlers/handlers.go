package handlers

import (
	"context"
	"errors"

	"github.com/horssit/pesitd/internal/audit"
	"github.com/horssit/pesitd/internal/fileio"
	"github.com/horssit/pesitd/internal/journal"
	"github.com/horssit/pesitd/internal/logicalfile"
	"github.com/horssit/pesitd/internal/metrics"
	"github.com/horssit/pesitd/internal/partner"
	"github.com/horssit/pesitd/internal/pesit/session"
	"github.com/horssit/pesitd/internal/pesit/wire"
	"github.com/horssit/pesitd/internal/secrets"
)

// ErrNoHandler is returned by Dispatch when no handler is registered for an
// FPDU kind that the state machine otherwise considers legal.
var ErrNoHandler = errors.New("handlers: no handler registered for kind")

// Conn is the narrow duplex FPDU stream a handler needs. The engine
// package supplies the concrete implementation (wire codec over a
// transport.Conn); handlers never see the raw socket or the frame format.
type Conn interface {
	ReadFPDU() (*wire.FPDU, error)
	WriteFPDU(*wire.FPDU) error
}

// Policy carries the per-listener settings a handler needs to enforce
// (negotiated protocol version, size ceilings, directory roots) without
// reaching back into the full listener config type.
type Policy struct {
	ServerID        string
	ProtocolVersion uint32
	MaxEntitySize   int64
	SyncIntervalKB  uint32
	ReceiveDir      string
	SendDir         string
}

// Deps bundles every collaborator a handler may need to resolve identities,
// record progress, or move bytes. All fields are safe for concurrent use
// across sessions; a *Deps is shared read-only by every session a listener
// serves.
type Deps struct {
	Policy       Policy
	Partners     partner.Store
	LogicalFiles logicalfile.Store
	Secrets      *secrets.Service
	Journal      journal.Journal
	Audit        *audit.Sink
	Metrics      metrics.Metrics
	Archival     *fileio.Archiver // nil when archival mirroring is disabled
	Paths        *PathRegistry
	Files        *FileHandles
}

// Result is what a handler hands back to the engine: the response FPDU to
// write (nil if the handler already wrote everything itself, as the send
// handler does for its DTF stream), and whether the connection should be
// torn down once it is written.
type Result struct {
	Response *wire.FPDU
	Terminal bool
}

// HandlerFunc processes one inbound FPDU against the current session
// state.
type HandlerFunc func(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error)

// Table is the dispatch table from FPDU kind to the handler that processes
// it, built once and shared by every session. The engine looks up the
// incoming FPDU's kind here after confirming with the state machine that
// the kind is legal from the session's current state; a kind missing from
// this table despite being FSM-legal is a wiring bug, not a protocol error.
type Table map[wire.Kind]HandlerFunc

// NewTable builds the full dispatch table.
func NewTable() Table {
	return Table{
		wire.KindConnect: HandleConnect,
		wire.KindRelease: HandleRelease,

		wire.KindCreate:   HandleCreate,
		wire.KindSelect:   HandleSelect,
		wire.KindDeselect: HandleDeselect,

		wire.KindOpen:  HandleOpen,
		wire.KindClose: HandleClose,

		wire.KindWrite:    HandleWrite,
		wire.KindDTF:      HandleDTF,
		wire.KindSyn:      HandleSyn,
		wire.KindDTFEnd:   HandleDTFEnd,
		wire.KindTransEnd: HandleTransEndReceive,

		wire.KindRead: HandleRead,

		wire.KindMsg:   HandleMsg,
		wire.KindMsgDM: HandleMsgDM,
		wire.KindMsgMM: HandleMsgMM,
		wire.KindMsgFM: HandleMsgFM,
	}
}

// Dispatch looks up and invokes the handler for f.Kind.
func (t Table) Dispatch(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error) {
	h, ok := t[f.Kind]
	if !ok {
		return nil, ErrNoHandler
	}
	return h(ctx, deps, conn, sess, f)
}
