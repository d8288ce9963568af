// Package audit emits a structured, append-only record of every
// security-relevant and transfer-relevant event a PeSIT-E server produces:
// connect attempts, file selection, transfer completion, cluster ownership
// changes. It is built on top of internal/logger rather than a bespoke
// writer — audit lines are ordinary structured log lines (Info, or Warn for
// failed and denied outcomes), so they flow through whatever sink operations has already wired up
// for logs (file, syslog forwarder, log shipper).
package audit

import (
	"context"
	"time"

	"github.com/horssit/pesitd/internal/logger"
)

// Category groups related event types for filtering.
type Category string

const (
	CategoryAuthentication Category = "AUTHENTICATION"
	CategoryAuthorization  Category = "AUTHORIZATION"
	CategoryTransfer       Category = "TRANSFER"
	CategoryConfiguration  Category = "CONFIGURATION"
	CategorySecurity       Category = "SECURITY"
	CategoryAdmin          Category = "ADMIN"
)

// Outcome is the result of the audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Event is one audit record. Fields left zero-valued are simply omitted
// from the emitted line.
type Event struct {
	Category   Category
	EventType  string
	Outcome    Outcome
	Username   string
	PartnerID  string
	ClientIP   string
	SessionID  string
	TransferID string
	FileName   string

	BytesTransferred int64
	DurationMs       float64

	ErrorCode    string
	ErrorMessage string
}

// Sink appends audit events to whatever destination the logger is
// currently configured for.
type Sink struct{}

// New builds a Sink. There is no configuration of its own: destination and
// format follow the process-wide logger configuration.
func New() *Sink { return &Sink{} }

// Record emits one audit event, attaching any LogContext already present on
// ctx (trace id, connection id, etc.) alongside the event's own fields.
func (s *Sink) Record(ctx context.Context, ev Event) {
	attrs := []any{
		"audit_category", string(ev.Category),
		"audit_event_type", ev.EventType,
		"audit_outcome", string(ev.Outcome),
		"audit_timestamp", time.Now().UTC().Format(time.RFC3339Nano),
	}
	if ev.Username != "" {
		attrs = append(attrs, "audit_username", ev.Username)
	}
	if ev.PartnerID != "" {
		attrs = append(attrs, "audit_partner_id", ev.PartnerID)
	}
	if ev.ClientIP != "" {
		attrs = append(attrs, "audit_client_ip", ev.ClientIP)
	}
	if ev.SessionID != "" {
		attrs = append(attrs, "audit_session_id", ev.SessionID)
	}
	if ev.TransferID != "" {
		attrs = append(attrs, "audit_transfer_id", ev.TransferID)
	}
	if ev.FileName != "" {
		attrs = append(attrs, "audit_file_name", ev.FileName)
	}
	if ev.BytesTransferred != 0 {
		attrs = append(attrs, "audit_bytes_transferred", ev.BytesTransferred)
	}
	if ev.DurationMs != 0 {
		attrs = append(attrs, "audit_duration_ms", ev.DurationMs)
	}
	if ev.ErrorCode != "" {
		attrs = append(attrs, "audit_error_code", ev.ErrorCode)
	}
	if ev.ErrorMessage != "" {
		attrs = append(attrs, "audit_error_message", ev.ErrorMessage)
	}

	switch ev.Outcome {
	case OutcomeFailure, OutcomeDenied:
		logger.WarnCtx(ctx, "audit event", attrs...)
	default:
		logger.InfoCtx(ctx, "audit event", attrs...)
	}
}
