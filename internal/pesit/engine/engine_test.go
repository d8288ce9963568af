package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horssit/pesitd/internal/journal"
	"github.com/horssit/pesitd/internal/logicalfile"
	"github.com/horssit/pesitd/internal/partner"
	"github.com/horssit/pesitd/internal/pesit/handlers"
	"github.com/horssit/pesitd/internal/pesit/wire"
	"github.com/horssit/pesitd/internal/secrets"
	"github.com/horssit/pesitd/internal/transport"
)

// harness drives one Engine.Handle over an in-memory net.Pipe, the same
// shape a real listener.HandlerFunc runs against, and gives the test the
// peer half of the pipe to script FPDU exchanges on.
type harness struct {
	t    *testing.T
	peer *wireConn
	done chan struct{}
}

func newHarness(t *testing.T, deps *handlers.Deps) *harness {
	t.Helper()
	server, client := net.Pipe()
	serverConn := transport.NewConn(server, time.Second, time.Second)
	peerConn := transport.NewConn(client, time.Second, time.Second)

	eng := New(deps)
	done := make(chan struct{})
	go func() {
		eng.Handle(context.Background(), "PESITSRV", serverConn)
		close(done)
	}()

	return &harness{t: t, peer: &wireConn{raw: peerConn}, done: done}
}

func (h *harness) send(f *wire.FPDU) {
	h.t.Helper()
	require.NoError(h.t, h.peer.WriteFPDU(f))
}

func (h *harness) recv() *wire.FPDU {
	h.t.Helper()
	f, err := h.peer.ReadFPDU()
	require.NoError(h.t, err)
	return f
}

func (h *harness) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
}

func (h *harness) close() { _ = h.peer.raw.Close() }

const (
	piPartnerID       = 3
	piRequestedServer = 4
	piPassword        = 5
	piProtocolVersion = 6
	piFilename        = 12
	piAccessType      = 22
	piRestartPosition = 43
	piChecksum        = 44
	piDiagnostic      = 2
	pgiFileID         = 9
)

func testPartner(id, password string) *partner.Record {
	return &partner.Record{
		ID:            id,
		Enabled:       true,
		AllowedAccess: partner.AccessReadWrite,
		PasswordRef:   password,
	}
}

func testDeps(t *testing.T, partners []*partner.Record, files []*logicalfile.Record) *handlers.Deps {
	t.Helper()
	return &handlers.Deps{
		Policy: handlers.Policy{
			ServerID:        "PESITSRV",
			ProtocolVersion: 2,
			MaxEntitySize:   1 << 20,
		},
		Partners:     partner.NewMemoryStore(partners),
		LogicalFiles: logicalfile.NewMemoryStore(files),
		Journal:      journal.NewMemoryJournal(),
		Paths:        handlers.NewPathRegistry(),
		Files:        handlers.NewFileHandles(),
	}
}

func connectFPDU(partnerID string, password string) *wire.FPDU {
	return &wire.FPDU{
		Kind:   wire.KindConnect,
		Source: 1,
		Params: []wire.Param{
			wire.NewStringPrimitive(piPartnerID, partnerID),
			wire.NewStringPrimitive(piRequestedServer, "PESITSRV"),
			wire.NewUint32Primitive(piProtocolVersion, 2),
			wire.NewStringPrimitive(piPassword, password),
			wire.NewUint32Primitive(piAccessType, 2), // write
		},
	}
}

// happyReceive exercises CONNECT, CREATE, OPEN, WRITE, DTF, DTF_END and
// TRANS_END end to end, the way a single-shot inbound transfer runs.
func TestEngine_HappyReceive(t *testing.T) {
	dir := t.TempDir()
	deps := testDeps(t, []*partner.Record{testPartner("PARTNER1", "secret")}, []*logicalfile.Record{{
		LogicalName:     "INBOX",
		FilenamePattern: "{name}",
		BackingRoot:     dir,
		Enabled:         true,
	}})
	h := newHarness(t, deps)
	defer h.close()

	h.send(connectFPDU("PARTNER1", "secret"))
	resp := h.recv()
	assert.Equal(t, wire.KindAConnect, resp.Kind)

	h.send(&wire.FPDU{Kind: wire.KindCreate, Source: 1, Params: []wire.Param{
		wire.NewGroup(pgiFileID, wire.NewStringPrimitive(piFilename, "inbox.dat")),
	}})
	resp = h.recv()
	require.Equal(t, wire.KindAckCreate, resp.Kind)
	diagVal, _ := resp.Param(piDiagnostic)
	assert.Equal(t, byte(0), diagVal.Bytes[0], "CREATE should be accepted")

	h.send(&wire.FPDU{Kind: wire.KindOpen, Source: 1})
	resp = h.recv()
	require.Equal(t, wire.KindAckOpen, resp.Kind)

	h.send(&wire.FPDU{Kind: wire.KindWrite, Source: 1})
	resp = h.recv()
	require.Equal(t, wire.KindAckWrite, resp.Kind)

	payload := []byte("hello, pesit")
	h.send(&wire.FPDU{Kind: wire.KindDTF, Source: 1, Payload: payload})
	h.send(&wire.FPDU{Kind: wire.KindDTFEnd, Source: 1})

	sum := sha256.Sum256(payload)
	h.send(&wire.FPDU{Kind: wire.KindTransEnd, Source: 1, Params: []wire.Param{
		wire.NewStringPrimitive(piChecksum, hex.EncodeToString(sum[:])),
	}})
	resp = h.recv()
	require.Equal(t, wire.KindAckTransEnd, resp.Kind)
	diagVal, _ = resp.Param(piDiagnostic)
	assert.Equal(t, byte(0), diagVal.Bytes[0], "TRANS_END should complete without checksum mismatch")
}

// authFailure exercises an unknown partner id: CONNECT is rejected and the
// session ends immediately.
func TestEngine_AuthFailure(t *testing.T) {
	deps := testDeps(t, nil, nil)
	h := newHarness(t, deps)
	defer h.close()

	h.send(connectFPDU("NOBODY", "whatever"))
	resp := h.recv()
	assert.Equal(t, wire.KindRConnect, resp.Kind)
	h.waitDone(t)
}

// badPassword exercises the password-mismatch branch specifically, with a
// secrets.Service in the loop so the stored reference is actually
// encrypted the way a real partner record would be.
func TestEngine_AuthFailure_BadPassword(t *testing.T) {
	svc := secrets.New("test-passphrase", []byte("0123456789abcdef"), nil)
	encrypted, err := svc.Encrypt("correct-horse")
	require.NoError(t, err)

	deps := testDeps(t, []*partner.Record{testPartner("PARTNER1", encrypted)}, nil)
	deps.Secrets = svc
	h := newHarness(t, deps)
	defer h.close()

	h.send(connectFPDU("PARTNER1", "wrong-password"))
	resp := h.recv()
	assert.Equal(t, wire.KindRConnect, resp.Kind)
	h.waitDone(t)
}

// invalidTransition exercises sending OPEN before any file has been
// selected: the FSM rejects it and the engine aborts the session.
func TestEngine_InvalidTransition(t *testing.T) {
	deps := testDeps(t, []*partner.Record{testPartner("PARTNER1", "secret")}, nil)
	h := newHarness(t, deps)
	defer h.close()

	h.send(connectFPDU("PARTNER1", "secret"))
	resp := h.recv()
	require.Equal(t, wire.KindAConnect, resp.Kind)

	h.send(&wire.FPDU{Kind: wire.KindOpen, Source: 1})
	resp = h.recv()
	assert.Equal(t, wire.KindAbort, resp.Kind)
	h.waitDone(t)
}

// syncAndInterrupt exercises a sync point landing mid-transfer, then the
// peer vanishing before TRANS_END: the journal should show the transfer
// interrupted at the last acknowledged sync point, not merely in progress
// from the original CREATE.
func TestEngine_SyncPointThenInterrupt(t *testing.T) {
	dir := t.TempDir()
	j := journal.NewMemoryJournal()
	deps := testDeps(t, []*partner.Record{testPartner("PARTNER1", "secret")}, []*logicalfile.Record{{
		LogicalName:     "INBOX",
		FilenamePattern: "{name}",
		BackingRoot:     dir,
		Enabled:         true,
	}})
	deps.Journal = j
	h := newHarness(t, deps)

	h.send(connectFPDU("PARTNER1", "secret"))
	require.Equal(t, wire.KindAConnect, h.recv().Kind)

	h.send(&wire.FPDU{Kind: wire.KindCreate, Source: 1, Params: []wire.Param{
		wire.NewGroup(pgiFileID, wire.NewStringPrimitive(piFilename, "partial.dat")),
	}})
	require.Equal(t, wire.KindAckCreate, h.recv().Kind)

	h.send(&wire.FPDU{Kind: wire.KindOpen, Source: 1})
	require.Equal(t, wire.KindAckOpen, h.recv().Kind)

	h.send(&wire.FPDU{Kind: wire.KindWrite, Source: 1})
	require.Equal(t, wire.KindAckWrite, h.recv().Kind)

	h.send(&wire.FPDU{Kind: wire.KindDTF, Source: 1, Payload: []byte("first chunk")})
	h.send(&wire.FPDU{Kind: wire.KindSyn, Source: 1})
	synResp := h.recv()
	require.Equal(t, wire.KindAckSyn, synResp.Kind)

	// The peer disappears without ever sending DTF_END/TRANS_END.
	h.close()
	h.waitDone(t)

	records, err := j.List(context.Background(), journal.ListFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, journal.StatusInterrupted, records[0].Status)
	assert.Equal(t, int64(len("first chunk")), records[0].BytesTransferred)
}
