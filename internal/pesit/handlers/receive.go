package handlers

import (
	"context"

	"github.com/horssit/pesitd/internal/audit"
	"github.com/horssit/pesitd/internal/logger"
	"github.com/horssit/pesitd/internal/pesit/diag"
	"github.com/horssit/pesitd/internal/pesit/session"
	"github.com/horssit/pesitd/internal/pesit/wire"
)

// HandleWrite processes WRITE, acknowledging with the restart position
// the receiver should resume from — zero for a fresh transfer, or the
// last acknowledged sync point carried forward from a retried one.
func HandleWrite(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error) {
	restart := int64(0)
	if sess.Transfer != nil {
		restart = sess.Transfer.LastSyncPoint
	}
	return &Result{Response: &wire.FPDU{
		Kind:        wire.KindAckWrite,
		Destination: f.Source,
		Source:      sess.LocalConnID,
		Params: []wire.Param{
			wire.NewPrimitive(piDiagnostic, diag.Success[:]),
			wire.NewUint32Primitive(piRestartPosition, uint32(restart)),
		},
	}}, nil
}

// HandleDTF appends one data transfer frame's payload to the open
// receiver. DTF carries no acknowledgement on the wire; the response is
// nil and the engine moves straight on to the next frame.
func HandleDTF(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error) {
	recv, ok := deps.Files.receiver(sess.SessionID)
	if !ok || sess.Transfer == nil {
		return nil, protocolError(diag.InvalidTransition)
	}
	if deps.Policy.MaxEntitySize > 0 && recv.Offset()+int64(len(f.Payload)) > deps.Policy.MaxEntitySize {
		return nil, protocolError(diag.FileIOError)
	}
	if _, err := recv.Write(f.Payload); err != nil {
		logger.ErrorCtx(ctx, "receive write failed", "error", err)
		return nil, err
	}
	sess.Transfer.BytesTransferred = recv.Offset()
	sess.Transfer.RecordCount++
	return &Result{}, nil
}

// HandleSyn processes a synchronization point request: flushes the
// received bytes to durable storage, records the sync point in the
// journal (so an interruption after this point resumes from here, never
// earlier), and acknowledges.
func HandleSyn(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error) {
	recv, ok := deps.Files.receiver(sess.SessionID)
	if !ok || sess.Transfer == nil {
		return nil, protocolError(diag.InvalidTransition)
	}
	if err := recv.Flush(); err != nil {
		logger.ErrorCtx(ctx, "sync point flush failed", "error", err)
		return &Result{Response: synNack(f, sess)}, nil
	}

	sess.Transfer.LastSyncPoint = recv.Offset()
	sess.Transfer.SyncPointSeq++

	if deps.Journal != nil {
		if err := deps.Journal.RecordSyncPoint(ctx, sess.TransferID, sess.Transfer.LastSyncPoint, sess.Transfer.SyncPointSeq); err != nil {
			logger.ErrorCtx(ctx, "journal record sync point failed", "error", err)
		}
		_ = deps.Journal.UpdateProgress(ctx, sess.TransferID, sess.Transfer.BytesTransferred, sess.Transfer.RecordCount)
	}

	return &Result{Response: &wire.FPDU{
		Kind:        wire.KindAckSyn,
		Destination: f.Source,
		Source:      sess.LocalConnID,
		Params: []wire.Param{
			wire.NewPrimitive(piDiagnostic, diag.Success[:]),
			wire.NewUint32Primitive(piSyncPointNumber, sess.Transfer.SyncPointSeq),
		},
	}}, nil
}

func synNack(f *wire.FPDU, sess *session.Context) *wire.FPDU {
	return &wire.FPDU{
		Kind:        wire.KindAckSyn,
		Destination: f.Source,
		Source:      sess.LocalConnID,
		Params:      []wire.Param{wire.NewPrimitive(piDiagnostic, diag.FileIOError[:])},
	}
}

// HandleDTFEnd processes DTF_END, the terminal data marker. It carries no
// acknowledgement of its own; the receive completes when TRANS_END
// follows (see HandleTransEndReceive).
func HandleDTFEnd(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error) {
	recv, ok := deps.Files.receiver(sess.SessionID)
	if !ok || sess.Transfer == nil {
		return nil, protocolError(diag.InvalidTransition)
	}
	if err := recv.Flush(); err != nil {
		logger.ErrorCtx(ctx, "dtf_end flush failed", "error", err)
	}
	return &Result{}, nil
}

// HandleTransEndReceive processes TRANS_END for a receive-direction
// transfer: closes the destination file, verifies the peer-reported
// checksum when present, completes the journal record, and schedules
// archival.
func HandleTransEndReceive(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error) {
	recv, ok := deps.Files.receiver(sess.SessionID)
	if !ok || sess.Transfer == nil {
		return nil, protocolError(diag.InvalidTransition)
	}
	checksum, err := recv.Close()
	deps.Files.dropReceiver(sess.SessionID)
	deps.Paths.Release(sess.Transfer.LocalPath)
	if err != nil {
		logger.ErrorCtx(ctx, "closing receive file failed", "error", err)
		return nackTransEnd(f, sess, diag.FileIOError), nil
	}

	if want, ok := f.Param(piChecksum); ok && want.String() != "" && want.String() != checksum {
		logger.WarnCtx(ctx, "checksum mismatch on receive", "expected", want.String(), "got", checksum)
		if deps.Journal != nil {
			_ = deps.Journal.FailTransfer(ctx, sess.TransferID, diag.ChecksumMismatch.String(), diag.Reason(diag.ChecksumMismatch))
		}
		return nackTransEnd(f, sess, diag.ChecksumMismatch), nil
	}

	if deps.Journal != nil {
		_ = deps.Journal.UpdateProgress(ctx, sess.TransferID, sess.Transfer.BytesTransferred, sess.Transfer.RecordCount)
		if err := deps.Journal.CompleteTransfer(ctx, sess.TransferID); err != nil {
			logger.ErrorCtx(ctx, "journal complete transfer failed", "error", err)
		}
	}

	if deps.Archival != nil {
		deps.Archival.Enqueue(sess.Transfer.LocalPath, sess.Transfer.FileName)
	}

	if deps.Audit != nil {
		deps.Audit.Record(ctx, audit.Event{
			Category:         audit.CategoryTransfer,
			EventType:        "transfer.completed",
			Outcome:          audit.OutcomeSuccess,
			PartnerID:        sess.PartnerID,
			SessionID:        sess.SessionID,
			TransferID:       sess.TransferID,
			FileName:         sess.Transfer.FileName,
			BytesTransferred: sess.Transfer.BytesTransferred,
		})
	}

	return &Result{Response: &wire.FPDU{
		Kind:        wire.KindAckTransEnd,
		Destination: f.Source,
		Source:      sess.LocalConnID,
		Params: []wire.Param{
			wire.NewPrimitive(piDiagnostic, diag.Success[:]),
			wire.NewUint32Primitive(piTotalBytes, uint32(sess.Transfer.BytesTransferred)),
			wire.NewUint32Primitive(piRecordCount, uint32(sess.Transfer.RecordCount)),
		},
	}}, nil
}

func nackTransEnd(f *wire.FPDU, sess *session.Context, code diag.Code) *Result {
	return &Result{Response: &wire.FPDU{
		Kind:        wire.KindAckTransEnd,
		Destination: f.Source,
		Source:      sess.LocalConnID,
		Params:      []wire.Param{wire.NewPrimitive(piDiagnostic, code[:])},
	}}
}
