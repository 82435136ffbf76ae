// Package audit provides the append-only record of security and
// operational events.
//
// Entries are immutable once written. The Logger never fails its caller:
// store failures are reported through the logger's own error log and
// swallowed, so a broken audit store cannot take down a command pipeline.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Category classifies an audit entry.
type Category string

// Category constants.
const (
	CategoryDeviceControl  Category = "deviceControl"
	CategorySecurity       Category = "security"
	CategoryDeviceEvent    Category = "deviceEvent"
	CategoryAuthentication Category = "authentication"
)

// Status records the outcome of the audited action.
type Status string

// Status constants.
const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusDenied  Status = "denied"
)

// Well-known audit actions.
const (
	ActionCommandExecuted   = "commandExecuted"
	ActionPermissionGranted = "permissionGranted"
	ActionPermissionDenied  = "permissionDenied"
	ActionRateLimitExceeded = "rateLimitExceeded"
	ActionWebhookReceived   = "webhookReceived"
	ActionDeviceAdded       = "deviceAdded"
	ActionDeviceRemoved     = "deviceRemoved"
	ActionDeviceHealth      = "deviceHealthChanged"
)

// Entry is one immutable audit record.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Category  Category       `json:"category"`
	Action    string         `json:"action"`
	Status    Status         `json:"status"`
	UserID    string         `json:"user_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Filter controls which audit entries a query returns.
// Zero time values mean unbounded; a zero limit applies the default.
type Filter struct {
	Start    time.Time
	End      time.Time
	Category Category
	Limit    int
}

// Store persists audit entries. Implementations must be safe for
// concurrent appends; no inter-entry ordering is required beyond the
// entry timestamps.
type Store interface {
	// Append writes one entry. Entries are never updated or deleted.
	Append(ctx context.Context, e *Entry) error

	// Query returns entries matching the filter, newest first.
	Query(ctx context.Context, f Filter) ([]Entry, error)
}

// errorLogger is the narrow logging interface the Logger needs to report
// swallowed store failures.
type errorLogger interface {
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

// Logger writes audit entries to a Store without ever propagating store
// failures to the caller.
type Logger struct {
	store Store
	log   errorLogger
}

// NewLogger creates an audit logger over the given store.
func NewLogger(store Store) *Logger {
	return &Logger{store: store, log: noopLogger{}}
}

// SetLogger sets the error logger used to report swallowed failures.
func (l *Logger) SetLogger(log errorLogger) {
	l.log = log
}

// Log appends an audit entry. The ID and timestamp are generated here so
// callers only supply the event's substance. Failures are reported to the
// error logger and swallowed.
func (l *Logger) Log(ctx context.Context, category Category, action string, status Status, userID string, details map[string]any) {
	e := &Entry{
		ID:        "aud-" + uuid.NewString()[:8],
		Timestamp: time.Now().UTC(),
		Category:  category,
		Action:    action,
		Status:    status,
		UserID:    userID,
		Details:   details,
	}
	if err := l.store.Append(ctx, e); err != nil {
		l.log.Error("audit append failed", "action", action, "category", category, "error", err)
	}
}

// Query returns entries matching the filter, newest first.
func (l *Logger) Query(ctx context.Context, f Filter) ([]Entry, error) {
	return l.store.Query(ctx, f)
}
