// Package session holds the per-connection state a PeSIT-E session carries
// across its lifetime: the negotiated identity of the peer, the connection's
// protocol options, and — while one is open — the transfer currently in
// flight. Handlers read and mutate a *Context; nothing here owns I/O.
package session

import (
	"net"
	"time"

	"github.com/horssit/pesitd/internal/journal"
	"github.com/horssit/pesitd/internal/partner"
	"github.com/horssit/pesitd/internal/logicalfile"
	"github.com/horssit/pesitd/internal/pesit/fsm"
)

// AccessType mirrors the PeSIT access type negotiated at CONNECT/SELECT.
type AccessType int

const (
	AccessUnspecified AccessType = iota
	AccessRead
	AccessWrite
	AccessReadWrite
)

// Context is the mutable state of one accepted PeSIT-E connection, held for
// the lifetime of the session and threaded through every handler call. A
// Context is never shared between goroutines — one worker goroutine owns it
// end to end.
type Context struct {
	SessionID string

	State fsm.State

	LocalConnID  uint32 // PI_03 assigned to this connection by us
	RemoteConnID uint32 // PI_03 most recently supplied by the peer

	RequestedServerID string // server identifier the peer asked to reach
	PartnerID         string // negotiated/authenticated partner identifier
	ProtocolVersion   uint32

	AccessType    AccessType
	SyncPointOpt  bool
	SyncInterval  uint32
	ResyncOpt     bool
	CRCOpt        bool

	RemoteAddr string
	StartedAt  time.Time
	LastActive time.Time

	Transfer      *TransferContext
	TransferID    string // journal record id, once createTransfer has run

	Aborted bool

	Partner     *partner.Record
	LogicalFile *logicalfile.Record

	// MessageBuffer accumulates MSGDM/MSGMM fragments until a final MSGFM,
	// per spec message reassembly rules. Nil when no reassembly is active.
	MessageBuffer []byte

	// PreConnectionHandled marks that the EBCDIC/IBM handshake filter has
	// already run for this TCP connection, so it is only ever applied once.
	PreConnectionHandled bool
}

// NewContext builds a fresh session Context for a just-accepted connection.
func NewContext(sessionID string, remote net.Addr) *Context {
	now := time.Now()
	host := ""
	if remote != nil {
		if tcp, ok := remote.(*net.TCPAddr); ok {
			host = tcp.IP.String()
		} else {
			host = remote.String()
		}
	}
	return &Context{
		SessionID:  sessionID,
		State:      fsm.StateReposition,
		RemoteAddr: host,
		StartedAt:  now,
		LastActive: now,
	}
}

// Touch records activity for idle-timeout bookkeeping.
func (c *Context) Touch() {
	c.LastActive = time.Now()
}

// TransferContext is the state of a single file transfer currently open on a
// session, created at OPEN and discarded (or archived into the journal) at
// CLOSE.
type TransferContext struct {
	FileName       string
	VirtualFileID  string
	FileType       string
	RecordFormat   string
	RecordLength   uint32
	MaxReservation uint64

	// Direction is fixed at CREATE/SELECT time: receive transfers were
	// selected via CREATE, send transfers via SELECT.
	Direction journal.Direction

	LocalPath string

	BytesTransferred int64
	RecordCount      int64

	StartedAt time.Time
	EndedAt   time.Time

	// LastSyncPoint is the byte offset of the most recently acknowledged
	// synchronization point; restart resumes from here, never beyond it.
	LastSyncPoint int64
	SyncPointSeq  uint32
}
