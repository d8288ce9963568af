package handlers

import (
	"context"

	"github.com/horssit/pesitd/internal/audit"
	"github.com/horssit/pesitd/internal/fileio"
	"github.com/horssit/pesitd/internal/logger"
	"github.com/horssit/pesitd/internal/pesit/diag"
	"github.com/horssit/pesitd/internal/pesit/fsm"
	"github.com/horssit/pesitd/internal/pesit/session"
	"github.com/horssit/pesitd/internal/pesit/wire"
)

// sendChunkSize bounds one DTF payload, matching the teacher's streaming
// I/O chunk size for large transfers rather than buffering a whole file.
const sendChunkSize = 32 * 1024

// HandleRead processes READ: opens the source file at the requested
// restart position and, unlike every other handler, does not return after
// writing a single response — it owns the socket for the remainder of the
// send-direction exchange, streaming DTF frames and periodic SYN points
// until TRANS_END, then blocking for the peer's final ACK_TRANS_END. This
// mirrors how the protocol itself treats READ as opening an uninterrupted
// data phase rather than a request/response pair.
func HandleRead(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error) {
	if sess.Transfer == nil {
		return nil, protocolError(diag.InvalidTransition)
	}

	restart := int64(0)
	if pos, ok := f.Param(piRestartPosition); ok {
		restart = int64(pos.Uint32())
	}

	snd, err := fileio.OpenSender(sess.Transfer.LocalPath, restart)
	if err != nil {
		logger.ErrorCtx(ctx, "opening send file failed", "path", sess.Transfer.LocalPath, "error", err)
		if writeErr := conn.WriteFPDU(&wire.FPDU{
			Kind:        wire.KindAckRead,
			Destination: f.Source,
			Source:      sess.LocalConnID,
			Params:      []wire.Param{wire.NewPrimitive(piDiagnostic, diag.FileIOError[:])},
		}); writeErr != nil {
			return nil, writeErr
		}
		return &Result{Terminal: true}, nil
	}
	deps.Files.putSender(sess.SessionID, snd)
	sess.Transfer.BytesTransferred = restart

	if err := conn.WriteFPDU(&wire.FPDU{
		Kind:        wire.KindAckRead,
		Destination: f.Source,
		Source:      sess.LocalConnID,
		Params: []wire.Param{
			wire.NewPrimitive(piDiagnostic, diag.Success[:]),
			wire.NewUint32Primitive(piTotalBytes, uint32(snd.Size())),
		},
	}); err != nil {
		return nil, err
	}

	if err := streamSend(ctx, deps, conn, sess, f, snd); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

func streamSend(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU, snd *fileio.Sender) error {
	sess.State = fsm.StateSendingData

	buf := make([]byte, sendChunkSize)
	sinceSyncBytes := int64(0)
	syncThreshold := int64(deps.Policy.SyncIntervalKB) * 1024
	if syncThreshold <= 0 {
		syncThreshold = 1024 * 1024
	}

	for {
		n, readErr := snd.ReadChunk(buf)
		if n > 0 {
			if writeErr := conn.WriteFPDU(&wire.FPDU{
				Kind:        wire.KindDTF,
				Destination: f.Source,
				Source:      sess.LocalConnID,
				Payload:     append([]byte(nil), buf[:n]...),
			}); writeErr != nil {
				return writeErr
			}
			sess.Transfer.BytesTransferred += int64(n)
			sess.Transfer.RecordCount++
			sinceSyncBytes += int64(n)
		}

		if sinceSyncBytes >= syncThreshold && readErr == nil {
			if err := emitSyncPoint(ctx, deps, conn, sess, f); err != nil {
				return err
			}
			sinceSyncBytes = 0
		}

		if readErr != nil {
			break
		}
	}

	if err := conn.WriteFPDU(&wire.FPDU{
		Kind:        wire.KindDTFEnd,
		Destination: f.Source,
		Source:      sess.LocalConnID,
	}); err != nil {
		return err
	}

	checksum, err := snd.Close()
	deps.Files.dropSender(sess.SessionID)
	if err != nil {
		logger.ErrorCtx(ctx, "closing send file failed", "error", err)
	}

	if err := conn.WriteFPDU(&wire.FPDU{
		Kind:        wire.KindTransEnd,
		Destination: f.Source,
		Source:      sess.LocalConnID,
		Params: []wire.Param{
			wire.NewUint32Primitive(piTotalBytes, uint32(sess.Transfer.BytesTransferred)),
			wire.NewUint32Primitive(piRecordCount, uint32(sess.Transfer.RecordCount)),
			wire.NewStringPrimitive(piChecksum, checksum),
		},
	}); err != nil {
		return err
	}

	ack, err := conn.ReadFPDU()
	if err != nil {
		return err
	}
	if ack.Kind != wire.KindAckTransEnd {
		return protocolError(diag.InvalidTransition)
	}

	if deps.Journal != nil {
		_ = deps.Journal.UpdateProgress(ctx, sess.TransferID, sess.Transfer.BytesTransferred, sess.Transfer.RecordCount)
		_ = deps.Journal.CompleteTransfer(ctx, sess.TransferID)
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

	sess.State = fsm.StateTransferReady
	return nil
}

func emitSyncPoint(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) error {
	sess.Transfer.SyncPointSeq++
	sess.Transfer.LastSyncPoint = sess.Transfer.BytesTransferred

	if err := conn.WriteFPDU(&wire.FPDU{
		Kind:        wire.KindSyn,
		Destination: f.Source,
		Source:      sess.LocalConnID,
		Params:      []wire.Param{wire.NewUint32Primitive(piSyncPointNumber, sess.Transfer.SyncPointSeq)},
	}); err != nil {
		return err
	}

	ack, err := conn.ReadFPDU()
	if err != nil {
		return err
	}
	if ack.Kind != wire.KindAckSyn {
		return protocolError(diag.InvalidTransition)
	}

	if deps.Journal != nil {
		_ = deps.Journal.RecordSyncPoint(ctx, sess.TransferID, sess.Transfer.LastSyncPoint, sess.Transfer.SyncPointSeq)
	}
	return nil
}
