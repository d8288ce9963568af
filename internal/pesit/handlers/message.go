package handlers

import (
	"context"

	"github.com/horssit/pesitd/internal/logger"
	"github.com/horssit/pesitd/internal/pesit/diag"
	"github.com/horssit/pesitd/internal/pesit/session"
	"github.com/horssit/pesitd/internal/pesit/wire"
)

// HandleMsg processes a short, unsegmented MSG: the whole message arrives
// in this one FPDU, is logged, and is acknowledged at once with ACK_MSG.
func HandleMsg(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error) {
	sess.MessageBuffer = nil
	appendFragment(sess, f)
	logger.InfoCtx(ctx, "message received", "partner_id", sess.PartnerID, "length", len(sess.MessageBuffer))
	sess.MessageBuffer = nil
	return &Result{Response: &wire.FPDU{
		Kind:        wire.KindAckMsg,
		Destination: f.Source,
		Source:      sess.LocalConnID,
		Params:      []wire.Param{wire.NewPrimitive(piDiagnostic, diag.Success[:])},
	}}, nil
}

// HandleMsgDM appends the first fragment of a segmented message to the
// session's reassembly buffer; no acknowledgement is sent until MSGFM.
func HandleMsgDM(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error) {
	appendFragment(sess, f)
	return &Result{}, nil
}

// HandleMsgMM appends a middle fragment; more are still coming, so nothing
// is acknowledged yet and the session stays in MSG_RECEIVING.
func HandleMsgMM(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error) {
	appendFragment(sess, f)
	return &Result{}, nil
}

// HandleMsgFM appends the final fragment, completes reassembly, logs the
// fully assembled message, and acknowledges.
func HandleMsgFM(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error) {
	appendFragment(sess, f)
	logger.InfoCtx(ctx, "message received", "partner_id", sess.PartnerID, "length", len(sess.MessageBuffer))
	sess.MessageBuffer = nil
	return &Result{Response: &wire.FPDU{
		Kind:        wire.KindAckMsg,
		Destination: f.Source,
		Source:      sess.LocalConnID,
		Params:      []wire.Param{wire.NewPrimitive(piDiagnostic, diag.Success[:])},
	}}, nil
}

func appendFragment(sess *session.Context, f *wire.FPDU) {
	if text, ok := f.Param(piMessageText); ok {
		sess.MessageBuffer = append(sess.MessageBuffer, text.Bytes...)
		return
	}
	if text, ok := f.Param(piMessageFree); ok {
		sess.MessageBuffer = append(sess.MessageBuffer, text.Bytes...)
	}
}
