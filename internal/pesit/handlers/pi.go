// Package handlers implements the per-phase PeSIT-E protocol handlers: one
// file per phase (connection, file selection, open/close, data transfer
// receive, data transfer send, message), dispatched from a table keyed by
// FPDU kind. Handlers read and mutate a *session.Context and the directory
// stores; they never touch the socket directly — the engine package owns
// framing and I/O.
package handlers

// Parameter identifiers (PI_nn) and parameter group identifiers (PGI_nn)
// this server recognizes. The wire codec treats every Param.ID as an
// opaque byte; these constants are the handlers' private map from that
// byte to PeSIT-E's published parameter semantics.
const (
	piCRCOption        = 1  // PI_01
	piDiagnostic       = 2  // PI_02
	piPartnerID        = 3  // PI_03 (doubles as local/remote connection id on CONNECT)
	piRequestedServer  = 4  // PI_04
	piPassword         = 5  // PI_05
	piProtocolVersion  = 6  // PI_06
	piSyncPointOption  = 7  // PI_07, interval in KB when sync points are enabled
	piFilename         = 12 // PI_12, nested in pgiFileID
	piFileType         = 11 // PI_11, nested in pgiFileID
	piTransferID       = 13 // PI_13
	piSyncPointNumber  = 20 // PI_20
	piAccessType       = 22 // PI_22
	piResyncOption     = 23 // PI_23
	piMaxEntitySize    = 25 // PI_25
	piTotalBytes       = 27 // PI_27
	piRecordCount      = 28 // PI_28
	piRecordFormat     = 31 // PI_31, nested in pgiLogicalAttrs
	piRecordLength     = 32 // PI_32, nested in pgiLogicalAttrs
	piMaxReservation   = 42 // PI_42, nested in pgiPhysicalAttrs
	piRestartPosition  = 43 // PI_43, echoed on ACK_WRITE/ACK_READ to signal resume point
	piChecksum         = 44 // PI_44, SHA-256 hex digest on TRANS_END
	piMessageText      = 91 // PI_91
	piMessageFree      = 99 // PI_99

	pgiFileID         = 9  // PGI_09
	pgiLogicalAttrs   = 30 // PGI_30
	pgiPhysicalAttrs  = 40 // PGI_40
)
