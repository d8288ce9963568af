package handlers

import (
	"context"
	"net"

	"github.com/horssit/pesitd/internal/audit"
	"github.com/horssit/pesitd/internal/logger"
	"github.com/horssit/pesitd/internal/partner"
	"github.com/horssit/pesitd/internal/pesit/diag"
	"github.com/horssit/pesitd/internal/pesit/session"
	"github.com/horssit/pesitd/internal/pesit/wire"
)

var connIDSeq uint32

func nextConnID() uint32 {
	connIDSeq++
	return connIDSeq
}

// HandleConnect processes an inbound CONNECT, validating in the fixed
// order the protocol requires: the partner must exist and be enabled
// before its claimed server name is checked, which must match before the
// protocol version is checked, which must be supported before the
// password is checked, which must match before access rights are
// evaluated. Each step short-circuits with its own diagnostic so the
// audit trail records exactly which check failed, never a later one.
func HandleConnect(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error) {
	partnerID, _ := f.Param(piPartnerID)
	requestedServer, _ := f.Param(piRequestedServer)
	version, _ := f.Param(piProtocolVersion)
	password, _ := f.Param(piPassword)
	access, _ := f.Param(piAccessType)

	sess.RequestedServerID = requestedServer.String()

	lc := logger.FromContext(ctx).WithFPDU(f.Kind.String()).WithPartner(deps.Policy.ServerID, partnerID.String(), sess.RemoteConnID)
	ctx = logger.WithContext(ctx, lc)

	deny := func(code diag.Code, eventType string) *Result {
		logger.WarnCtx(ctx, "connect rejected", "diag", code.String(), "reason", diag.Reason(code))
		if deps.Audit != nil {
			deps.Audit.Record(ctx, audit.Event{
				Category:     audit.CategoryAuthentication,
				EventType:    eventType,
				Outcome:      audit.OutcomeDenied,
				PartnerID:    partnerID.String(),
				ClientIP:     sess.RemoteAddr,
				SessionID:    sess.SessionID,
				ErrorCode:    code.String(),
				ErrorMessage: diag.Reason(code),
			})
		}
		return &Result{Response: rconnect(f, code), Terminal: true}
	}

	rec, err := deps.Partners.Get(partnerID.String())
	if err != nil || rec == nil || !rec.Enabled {
		return deny(diag.UnknownPartner, "connect.unknown_partner"), nil
	}

	if requestedServer.String() != deps.Policy.ServerID {
		return deny(diag.UnknownPartner, "connect.unknown_server"), nil
	}

	if version.Uint32() != deps.Policy.ProtocolVersion {
		return deny(diag.UnsupportedVersion, "connect.unsupported_version"), nil
	}

	if deps.Secrets != nil && rec.PasswordRef != "" {
		expected, err := deps.Secrets.Decrypt(rec.PasswordRef)
		if err != nil || expected != password.String() {
			return deny(diag.AccessDenied, "connect.bad_password"), nil
		}
	}

	if !accessAllowed(rec.AllowedAccess, access.Uint32()) {
		return deny(diag.AccessDenied, "connect.access_denied"), nil
	}

	if len(rec.AllowedCIDRs) > 0 && !cidrAllows(rec.AllowedCIDRs, sess.RemoteAddr) {
		return deny(diag.AccessDenied, "connect.cidr_denied"), nil
	}

	sess.PartnerID = rec.ID
	sess.Partner = rec
	sess.ProtocolVersion = version.Uint32()
	sess.AccessType = session.AccessType(access.Uint32())
	sess.LocalConnID = nextConnID()
	sess.RemoteConnID = partnerID.Uint32()

	if opt, ok := f.Param(piSyncPointOption); ok {
		sess.SyncPointOpt = true
		sess.SyncInterval = opt.Uint32()
	}
	if _, ok := f.Param(piResyncOption); ok {
		sess.ResyncOpt = true
	}
	if _, ok := f.Param(piCRCOption); ok {
		sess.CRCOpt = true
	}

	if deps.Audit != nil {
		deps.Audit.Record(ctx, audit.Event{
			Category:  audit.CategoryAuthentication,
			EventType: "connect.accepted",
			Outcome:   audit.OutcomeSuccess,
			PartnerID: rec.ID,
			ClientIP:  sess.RemoteAddr,
			SessionID: sess.SessionID,
		})
	}
	logger.InfoCtx(ctx, "connect accepted", "partner_id", rec.ID)

	resp := &wire.FPDU{
		Kind:        wire.KindAConnect,
		Destination: f.Source,
		Source:      sess.LocalConnID,
		Params: []wire.Param{
			wire.NewUint32Primitive(piPartnerID, sess.LocalConnID),
			wire.NewUint32Primitive(piProtocolVersion, sess.ProtocolVersion),
			wire.NewUint32Primitive(piDiagnostic, 0),
		},
	}
	return &Result{Response: resp}, nil
}

func rconnect(f *wire.FPDU, code diag.Code) *wire.FPDU {
	return &wire.FPDU{
		Kind:        wire.KindRConnect,
		Destination: f.Source,
		Params: []wire.Param{
			wire.NewPrimitive(piDiagnostic, code[:]),
		},
	}
}

func accessAllowed(allowed partner.AccessType, requested uint32) bool {
	switch session.AccessType(requested) {
	case session.AccessRead:
		return allowed == partner.AccessRead || allowed == partner.AccessReadWrite
	case session.AccessWrite:
		return allowed == partner.AccessWrite || allowed == partner.AccessReadWrite
	case session.AccessReadWrite:
		return allowed == partner.AccessReadWrite
	default:
		return true
	}
}

func cidrAllows(cidrs []string, remote string) bool {
	ip := net.ParseIP(remote)
	if ip == nil {
		return false
	}
	for _, c := range cidrs {
		_, network, err := net.ParseCIDR(c)
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// HandleRelease processes an inbound RELEASE, acknowledging with RELCONF
// and ending the session. Any in-flight transfer is not expected here: the
// state machine only accepts RELEASE from StateConnected, after any
// transfer has already reached StateTransferReady and been deselected.
func HandleRelease(ctx context.Context, deps *Deps, conn Conn, sess *session.Context, f *wire.FPDU) (*Result, error) {
	if deps.Audit != nil {
		deps.Audit.Record(ctx, audit.Event{
			Category:  audit.CategoryAuthentication,
			EventType: "release",
			Outcome:   audit.OutcomeSuccess,
			PartnerID: sess.PartnerID,
			SessionID: sess.SessionID,
		})
	}
	resp := &wire.FPDU{
		Kind:        wire.KindRelConf,
		Destination: f.Source,
		Source:      sess.LocalConnID,
	}
	return &Result{Response: resp, Terminal: true}, nil
}
