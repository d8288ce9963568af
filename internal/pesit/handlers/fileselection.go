package handlers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/horssit/pesitd/internal/audit"
	"github.com/horssit/pesitd/internal/journal"
	"github.com/horssit/pesitd/internal/logger"
	"github.com/horssit/pesitd/internal/logicalfile"
	"github.com/horssit/pesitd/internal/pesit/diag"
	"github.com/horssit/pesitd/internal/pesit/session"
	"github.com/horssit/pesitd/internal/pesit/wire"
)

// HandleCreate processes CREATE: the peer is about to WRITE a new file
// under a logical file name the server exposes. Resolves the logical file,
// computes the concrete local path, and reserves it so no other session
// can be handed the same path concurrently.
func HandleCreate(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error) {
	return selectLogicalFile(ctx, deps, sess, f, wire.KindAckCreate, journal.DirectionReceive)
}

// HandleSelect processes SELECT: the peer names an existing logical file
// it intends to READ. The transfer is always set up in the send direction
// (the server reads the file back to the peer).
func HandleSelect(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error) {
	return selectLogicalFile(ctx, deps, sess, f, wire.KindAckSelect, journal.DirectionSend)
}

func selectLogicalFile(ctx context.Context, deps *Deps, sess *session.Context, f *wire.FPDU, ackKind wire.Kind, dir journal.Direction) (*Result, error) {
	fileID, _ := f.Group(pgiFileID)
	name, _ := fileID.Param(piFilename)

	nack := func(code diag.Code) *Result {
		return &Result{Response: &wire.FPDU{
			Kind:        ackKind,
			Destination: f.Source,
			Source:      sess.LocalConnID,
			Params:      []wire.Param{wire.NewPrimitive(piDiagnostic, code[:])},
		}}
	}

	rec, err := deps.LogicalFiles.Get(name.String())
	if err != nil || rec == nil || !rec.Enabled {
		logger.WarnCtx(ctx, "unknown logical file", "name", name.String())
		return nack(diag.UnknownFile), nil
	}

	localPath, err := resolveLocalPath(rec, name.String())
	if err != nil {
		logger.WarnCtx(ctx, "logical file path resolution failed", "name", name.String(), "error", err)
		return nack(diag.FileIOError), nil
	}

	if !deps.Paths.Reserve(localPath, sess.SessionID) {
		return nack(diag.FileCollision), nil
	}

	transferID := uuid.NewString()
	sess.TransferID = transferID
	sess.Transfer = &session.TransferContext{
		FileName:      name.String(),
		VirtualFileID: rec.LogicalName,
		FileType:      rec.DefaultFileType,
		RecordFormat:  rec.DefaultRecordFormat,
		RecordLength:  rec.DefaultRecordLength,
		Direction:     dir,
		LocalPath:     localPath,
	}
	sess.LogicalFile = rec

	if deps.Journal != nil {
		err := deps.Journal.CreateTransfer(ctx, &journal.Record{
			ID:        transferID,
			ServerID:  deps.Policy.ServerID,
			PartnerID: sess.PartnerID,
			SessionID: sess.SessionID,
			FileName:  name.String(),
			LocalPath: localPath,
			Direction: dir,
			Status:    journal.StatusCreated,
			CreatedAt: time.Now(),
		})
		if err != nil {
			deps.Paths.Release(localPath)
			logger.ErrorCtx(ctx, "journal create transfer failed", "error", err)
			return nack(diag.FileIOError), nil
		}
	}

	if deps.Audit != nil {
		deps.Audit.Record(ctx, audit.Event{
			Category:   audit.CategoryTransfer,
			EventType:  "file.selected",
			Outcome:    audit.OutcomeSuccess,
			PartnerID:  sess.PartnerID,
			SessionID:  sess.SessionID,
			TransferID: transferID,
			FileName:   name.String(),
		})
	}

	return &Result{Response: &wire.FPDU{
		Kind:        ackKind,
		Destination: f.Source,
		Source:      sess.LocalConnID,
		Params: []wire.Param{
			wire.NewPrimitive(piDiagnostic, diag.Success[:]),
			wire.NewStringPrimitive(piTransferID, transferID),
		},
	}}, nil
}

// resolveLocalPath expands rec.FilenamePattern against the peer-supplied
// name and guards against path traversal escaping BackingRoot.
func resolveLocalPath(rec *logicalfile.Record, name string) (string, error) {
	pattern := rec.FilenamePattern
	if pattern == "" {
		pattern = "{name}"
	}
	relative := strings.ReplaceAll(pattern, "{name}", name)
	joined := filepath.Join(rec.BackingRoot, relative)
	root := filepath.Clean(rec.BackingRoot)
	clean := filepath.Clean(joined)
	if clean != root && !strings.HasPrefix(clean, root+string(filepath.Separator)) {
		return "", fmt.Errorf("resolved path %q escapes backing root %q", clean, root)
	}
	return clean, nil
}

// HandleDeselect processes DESELECT, releasing the reserved local path and
// clearing the transfer context. It never touches the journal record: the
// record's terminal status was already set by the last TRANS_END/abort.
func HandleDeselect(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error) {
	if sess.Transfer != nil {
		deps.Paths.Release(sess.Transfer.LocalPath)
	}
	sess.Transfer = nil
	sess.LogicalFile = nil
	sess.TransferID = ""

	return &Result{Response: &wire.FPDU{
		Kind:        wire.KindAckDeselec,
		Destination: f.Source,
		Source:      sess.LocalConnID,
		Params:      []wire.Param{wire.NewPrimitive(piDiagnostic, diag.Success[:])},
	}}, nil
}
