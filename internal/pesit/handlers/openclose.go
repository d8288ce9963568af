package handlers

import (
	"context"

	"github.com/horssit/pesitd/internal/fileio"
	"github.com/horssit/pesitd/internal/journal"
	"github.com/horssit/pesitd/internal/logger"
	"github.com/horssit/pesitd/internal/pesit/diag"
	"github.com/horssit/pesitd/internal/pesit/session"
	"github.com/horssit/pesitd/internal/pesit/wire"
)

// HandleOpen processes OPEN: moves the transfer record to in-progress and,
// for a receive-direction transfer, opens the destination file so WRITE
// can start streaming into it immediately. A send-direction OPEN defers
// opening the source file to HandleRead, since a resume offset (from
// PI_43) is only known once READ names it.
func HandleOpen(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error) {
	nack := func(code diag.Code) *Result {
		return &Result{Response: &wire.FPDU{
			Kind:        wire.KindAckOpen,
			Destination: f.Source,
			Source:      sess.LocalConnID,
			Params:      []wire.Param{wire.NewPrimitive(piDiagnostic, code[:])},
		}}
	}

	if sess.Transfer == nil {
		return nack(diag.InvalidTransition), nil
	}

	if deps.Journal != nil && sess.TransferID != "" {
		if err := deps.Journal.StartTransfer(ctx, sess.TransferID); err != nil {
			logger.ErrorCtx(ctx, "journal start transfer failed", "error", err)
			return nack(diag.FileIOError), nil
		}
	}

	if sess.Transfer.Direction == journal.DirectionReceive {
		resumeOffset := int64(0)
		if pos, ok := f.Param(piRestartPosition); ok {
			resumeOffset = int64(pos.Uint32())
		}
		recv, err := fileio.CreateReceiver(sess.Transfer.LocalPath, resumeOffset)
		if err != nil {
			logger.ErrorCtx(ctx, "opening receive file failed", "path", sess.Transfer.LocalPath, "error", err)
			return nack(diag.FileIOError), nil
		}
		deps.Files.putReceiver(sess.SessionID, recv)
		sess.Transfer.BytesTransferred = resumeOffset
		sess.Transfer.LastSyncPoint = resumeOffset
	}

	sess.Transfer.StartedAt = sess.LastActive

	return &Result{Response: &wire.FPDU{
		Kind:        wire.KindAckOpen,
		Destination: f.Source,
		Source:      sess.LocalConnID,
		Params:      []wire.Param{wire.NewPrimitive(piDiagnostic, diag.Success[:])},
	}}, nil
}

// HandleClose processes CLOSE, closing any still-open file handle (the
// normal path already closed it at DTF_END/TRANS_END; this is a backstop
// for a transfer aborted before reaching that point).
func HandleClose(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error) {
	if recv, ok := deps.Files.receiver(sess.SessionID); ok {
		_ = recv.Abort()
		deps.Files.dropReceiver(sess.SessionID)
	}
	if snd, ok := deps.Files.sender(sess.SessionID); ok {
		_, _ = snd.Close()
		deps.Files.dropSender(sess.SessionID)
	}

	return &Result{Response: &wire.FPDU{
		Kind:        wire.KindAckClose,
		Destination: f.Source,
		Source:      sess.LocalConnID,
		Params:      []wire.Param{wire.NewPrimitive(piDiagnostic, diag.Success[:])},
	}}, nil
}
