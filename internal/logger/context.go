package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for a PeSIT session.
type LogContext struct {
	TraceID    string    // OpenTelemetry trace ID
	SpanID     string    // OpenTelemetry span ID
	FPDU       string    // Current FPDU kind being processed (CONNECT, WRITE, DTF, ...)
	ServerID   string    // Local listener/server identifier
	PartnerID  string    // Remote partner identifier (from CONNECT)
	ConnID     uint32    // PeSIT connection identifier (PI_03)
	TransferID string    // Transfer journal identifier, once a transfer is open
	ClientIP   string    // Remote peer IP address (without port)
	StartTime  time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given client IP
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithFPDU returns a copy with the current FPDU kind set
func (lc *LogContext) WithFPDU(kind string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.FPDU = kind
	}
	return clone
}

// WithPartner returns a copy with the partner identifier set
func (lc *LogContext) WithPartner(serverID, partnerID string, connID uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ServerID = serverID
		clone.PartnerID = partnerID
		clone.ConnID = connID
	}
	return clone
}

// WithTransfer returns a copy with the transfer identifier set
func (lc *LogContext) WithTransfer(transferID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TransferID = transferID
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
