package engine

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/horssit/pesitd/internal/audit"
	"github.com/horssit/pesitd/internal/logger"
	"github.com/horssit/pesitd/internal/pesit/diag"
	"github.com/horssit/pesitd/internal/pesit/fsm"
	"github.com/horssit/pesitd/internal/pesit/handlers"
	"github.com/horssit/pesitd/internal/pesit/session"
	"github.com/horssit/pesitd/internal/pesit/wire"
	"github.com/horssit/pesitd/internal/transport"
)

// Engine owns the handler dispatch table and the collaborators every
// session needs, and exposes Handle as a listener.HandlerFunc.
type Engine struct {
	Deps  *handlers.Deps
	Table handlers.Table
}

// New builds an Engine around deps, constructing the full handler dispatch
// table.
func New(deps *handlers.Deps) *Engine {
	return &Engine{Deps: deps, Table: handlers.NewTable()}
}

// Handle runs one accepted connection's session loop end to end. It
// matches listener.HandlerFunc's signature so an *Engine can be passed
// directly to listener.NewSupervisor.
func (e *Engine) Handle(ctx context.Context, serverID string, conn *transport.Conn) {
	sessionID := uuid.NewString()
	sess := session.NewContext(sessionID, conn.RemoteAddr())

	lc := logger.NewLogContext(sess.RemoteAddr).WithPartner(serverID, "", 0)
	ctx = logger.WithContext(ctx, lc)
	logger.InfoCtx(ctx, "session started", "session_id", sessionID)

	defer e.cleanup(sess)

	w := &wireConn{raw: conn}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		f, err := wire.Decode(conn)
		if err != nil {
			e.handleDecodeError(ctx, w, sess, err)
			return
		}
		sess.Touch()

		ctx = logger.WithContext(ctx, logger.FromContext(ctx).WithFPDU(f.Kind.String()))

		if f.Kind == wire.KindAbort {
			logger.WarnCtx(ctx, "session aborted by peer", "state", string(sess.State))
			sess.Aborted = true
			sess.State = fsm.StateError
			return
		}

		if !e.transition(ctx, w, sess, f.Kind) {
			return
		}

		result, err := e.Table.Dispatch(ctx, e.Deps, w, sess, f)
		if err != nil {
			e.abort(ctx, w, sess, diagFromError(err))
			return
		}

		if result != nil && result.Response != nil {
			// Self-transition: emitting this response kind is itself a
			// state-machine event (see fsm.Transition's doc comment), the
			// same way receiving an inbound FPDU is.
			if next, err := fsm.Transition(sess.State, result.Response.Kind); err == nil {
				sess.State = next
			}
			if err := w.WriteFPDU(result.Response); err != nil {
				logger.WarnCtx(ctx, "writing response failed", "error", err)
				return
			}
		}

		if e.Deps.Metrics != nil {
			e.Deps.Metrics.RecordFPDU(f.Kind.String(), serverID, time.Since(start))
		}

		if result != nil && result.Terminal {
			logger.InfoCtx(ctx, "session ended", "session_id", sessionID)
			return
		}
	}
}

// transition validates kind against the state machine and advances
// sess.State, aborting the session on an illegal transition. It special-
// cases the one kind the table does not enumerate by name: an inbound
// TRANS_END while a receive-direction transfer is in StateWriteEnd, whose
// completion is recorded by the ACK_TRANS_END the handler emits in
// response, not by a dedicated table row for the request itself.
func (e *Engine) transition(ctx context.Context, w *wireConn, sess *session.Context, kind wire.Kind) bool {
	if kind == wire.KindTransEnd && sess.State == fsm.StateWriteEnd {
		return true
	}
	next, err := fsm.Transition(sess.State, kind)
	if err != nil {
		logger.WarnCtx(ctx, "illegal transition", "state", string(sess.State), "kind", kind.String())
		e.abort(ctx, w, sess, diag.InvalidTransition)
		return false
	}
	sess.State = next
	return true
}

func (e *Engine) handleDecodeError(ctx context.Context, w *wireConn, sess *session.Context, err error) {
	if errors.Is(err, io.EOF) {
		logger.InfoCtx(ctx, "session closed by peer")
		return
	}
	if errors.Is(err, transport.ErrIdleTimeout) {
		logger.WarnCtx(ctx, "session idle timeout")
		e.failInFlightTransfer(ctx, sess, diag.TransferInterrupted)
		return
	}
	if errors.Is(err, wire.ErrMalformedFrame) || errors.Is(err, wire.ErrFrameTooLarge) {
		logger.WarnCtx(ctx, "malformed frame", "error", err)
		e.abort(ctx, w, sess, diag.MalformedFPDU)
		return
	}
	if errors.Is(err, wire.ErrUnknownKind) {
		logger.WarnCtx(ctx, "unknown FPDU kind", "error", err)
		e.abort(ctx, w, sess, diag.UnknownFPDU)
		return
	}
	logger.WarnCtx(ctx, "connection read failed", "error", err)
	e.failInFlightTransfer(ctx, sess, diag.TransferInterrupted)
}

func (e *Engine) abort(ctx context.Context, w *wireConn, sess *session.Context, code diag.Code) {
	_ = w.WriteFPDU(&wire.FPDU{
		Kind:   wire.KindAbort,
		Source: sess.LocalConnID,
		Params: []wire.Param{wire.NewPrimitive(2, code[:])},
	})
	sess.State = fsm.StateError
	if e.Deps.Audit != nil {
		e.Deps.Audit.Record(ctx, audit.Event{
			Category:     audit.CategorySecurity,
			EventType:    "session.aborted",
			Outcome:      audit.OutcomeFailure,
			PartnerID:    sess.PartnerID,
			SessionID:    sess.SessionID,
			ErrorCode:    code.String(),
			ErrorMessage: diag.Reason(code),
		})
	}
	e.failInFlightTransfer(ctx, sess, code)
}

// failInFlightTransfer marks an open transfer as interrupted so a later
// MarkInterruptedTransfers sweep or manual RetryTransfer is never needed
// for a session this engine already knows has died.
func (e *Engine) failInFlightTransfer(ctx context.Context, sess *session.Context, code diag.Code) {
	if sess.Transfer == nil || sess.TransferID == "" || e.Deps.Journal == nil {
		return
	}
	if err := e.Deps.Journal.InterruptTransfer(ctx, sess.TransferID); err != nil {
		logger.WarnCtx(ctx, "marking transfer interrupted failed", "error", err)
	}
}

func (e *Engine) cleanup(sess *session.Context) {
	if e.Deps.Files != nil {
		e.Deps.Files.Abort(sess.SessionID)
	}
	if sess.Transfer != nil && e.Deps.Paths != nil {
		e.Deps.Paths.Release(sess.Transfer.LocalPath)
	}
}

func diagFromError(err error) diag.Code {
	var pe *handlers.ProtocolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return diag.FileIOError
}
