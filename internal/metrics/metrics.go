// Package metrics declares the observability surface the session runtime
// and listener supervisor report through. It is optional end to end: pass
// nil wherever a Metrics is expected and every call site in this module
// treats it as a no-op, matching the teacher's "pass nil for zero
// overhead" convention.
package metrics

import "time"

// Metrics is the PeSIT-shaped metrics surface. Implementations must treat
// a nil receiver as a no-op so callers never have to branch on whether
// metrics are enabled.
type Metrics interface {
	// RecordFPDU records how long one FPDU took to handle on a listener.
	RecordFPDU(kind, serverID string, dur time.Duration)

	// RecordTransferBytes records bytes moved on a listener in a
	// direction ("send" or "receive").
	RecordTransferBytes(serverID, direction string, n int64)

	// SetActiveSessions updates the current session gauge for a listener.
	SetActiveSessions(serverID string, n int32)

	// RecordTransferOutcome records one transfer on a listener reaching a
	// terminal status ("completed", "failed", "interrupted", "cancelled").
	RecordTransferOutcome(serverID, status string)

	// RecordClusterLeadership records a leadership transition for this
	// node (true = became leader, false = lost leadership).
	RecordClusterLeadership(isLeader bool)
}
