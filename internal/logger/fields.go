package logger

import "log/slog"

// Standard field keys for structured logging across the PeSIT engine.
// Use these keys consistently so log lines can be aggregated and queried.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Protocol & Session
	// ========================================================================
	KeyFPDU       = "fpdu"        // FPDU kind: CONNECT, CREATE, WRITE, DTF, SYN, ...
	KeyServerID   = "server_id"   // Local listener/server identifier
	KeyPartnerID  = "partner_id"  // Remote partner identifier
	KeyConnID     = "conn_id"     // PeSIT connection identifier (PI_03)
	KeyState      = "state"       // Session state machine state
	KeyDiagCode   = "diag_code"   // Diagnostic code (e.g. D0_000, D3_301)
	KeyDiagReason = "diag_reason" // Human-readable diagnostic reason

	// ========================================================================
	// File Transfer
	// ========================================================================
	KeyTransferID   = "transfer_id"   // Transfer journal identifier
	KeyFileName     = "file_name"     // PeSIT logical file name (PI_12)
	KeyDirection    = "direction"     // send or receive
	KeyBytesRead    = "bytes_read"    // Actual bytes read
	KeyBytesWritten = "bytes_written" // Actual bytes written
	KeySyncPoint    = "sync_point"    // Sync point sequence number
	KeyOffset       = "offset"        // Restart/sync point byte offset

	// ========================================================================
	// Client Identification
	// ========================================================================
	KeyClientIP   = "client_ip"   // Remote peer IP address
	KeyClientPort = "client_port" // Remote peer source port

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeySource     = "source"      // Subsystem: journal, supervisor, codec, cluster
	KeyOperation  = "operation"   // Sub-operation within a subsystem
	KeyAttempt    = "attempt"     // Retry attempt number

	// ========================================================================
	// Cluster
	// ========================================================================
	KeyNodeName = "node_name" // Cluster node identifier
	KeyLeader   = "leader"    // Whether this node currently holds leadership
)

// FPDU returns a slog.Attr for the FPDU kind
func FPDU(kind string) slog.Attr { return slog.String(KeyFPDU, kind) }

// ServerID returns a slog.Attr for the local server/listener identifier
func ServerID(id string) slog.Attr { return slog.String(KeyServerID, id) }

// PartnerID returns a slog.Attr for the remote partner identifier
func PartnerID(id string) slog.Attr { return slog.String(KeyPartnerID, id) }

// ConnID returns a slog.Attr for the PeSIT connection identifier
func ConnID(id uint32) slog.Attr { return slog.Uint64(KeyConnID, uint64(id)) }

// State returns a slog.Attr for the session state machine state
func State(state string) slog.Attr { return slog.String(KeyState, state) }

// DiagCode returns a slog.Attr for a diagnostic code
func DiagCode(code string) slog.Attr { return slog.String(KeyDiagCode, code) }

// DiagReason returns a slog.Attr for a diagnostic reason
func DiagReason(reason string) slog.Attr { return slog.String(KeyDiagReason, reason) }

// TransferID returns a slog.Attr for the transfer journal identifier
func TransferID(id string) slog.Attr { return slog.String(KeyTransferID, id) }

// FileName returns a slog.Attr for the PeSIT logical file name
func FileName(name string) slog.Attr { return slog.String(KeyFileName, name) }

// Direction returns a slog.Attr for transfer direction
func Direction(dir string) slog.Attr { return slog.String(KeyDirection, dir) }

// BytesRead returns a slog.Attr for actual bytes read
func BytesRead(n int64) slog.Attr { return slog.Int64(KeyBytesRead, n) }

// BytesWritten returns a slog.Attr for actual bytes written
func BytesWritten(n int64) slog.Attr { return slog.Int64(KeyBytesWritten, n) }

// SyncPoint returns a slog.Attr for a sync point sequence number
func SyncPoint(n uint32) slog.Attr { return slog.Uint64(KeySyncPoint, uint64(n)) }

// Offset returns a slog.Attr for a restart/sync point byte offset
func Offset(off int64) slog.Attr { return slog.Int64(KeyOffset, off) }

// ClientIP returns a slog.Attr for the remote peer IP address
func ClientIP(addr string) slog.Attr { return slog.String(KeyClientIP, addr) }

// ClientPort returns a slog.Attr for the remote peer source port
func ClientPort(port int) slog.Attr { return slog.Int(KeyClientPort, port) }

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Source returns a slog.Attr for the emitting subsystem
func Source(src string) slog.Attr { return slog.String(KeySource, src) }

// Operation returns a slog.Attr for a sub-operation name
func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }

// NodeName returns a slog.Attr for the cluster node identifier
func NodeName(name string) slog.Attr { return slog.String(KeyNodeName, name) }

// Leader returns a slog.Attr for cluster leadership state
func Leader(isLeader bool) slog.Attr { return slog.Bool(KeyLeader, isLeader) }
