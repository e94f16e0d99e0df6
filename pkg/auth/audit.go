package auth

import (
	"net/http"
	"time"

	"github.com/platinummonkey/kennel/pkg/contextkeys"
	"github.com/platinummonkey/kennel/pkg/observability"
)

// AuditLog represents a security audit log entry
type AuditLog struct {
	Username  string    `json:"username,omitempty"`
	Action    string    `json:"action"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditLogger writes authentication audit events to the structured log
type AuditLogger struct {
	logger    *observability.Logger
	clientIPs *ClientIPResolver
	now       func() time.Time
}

// NewAuditLogger creates a new audit logger. clientIPs may be nil, in which
// case the peer address is recorded.
func NewAuditLogger(logger *observability.Logger, clientIPs *ClientIPResolver) *AuditLogger {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &AuditLogger{
		logger:    logger.WithField("component", "audit"),
		clientIPs: clientIPs,
		now:       time.Now,
	}
}

// LogAction logs an audit event
func (al *AuditLogger) LogAction(entry *AuditLog) {
	entry.CreatedAt = al.now()

	fields := map[string]interface{}{
		"action":     entry.Action,
		"status":     entry.Status,
		"created_at": entry.CreatedAt,
	}
	if entry.Username != "" {
		fields["username"] = entry.Username
	}
	if entry.IPAddress != "" {
		fields["ip_address"] = entry.IPAddress
	}
	if entry.UserAgent != "" {
		fields["user_agent"] = entry.UserAgent
	}
	if entry.RequestID != "" {
		fields["request_id"] = entry.RequestID
	}
	if entry.Reason != "" {
		fields["reason"] = entry.Reason
	}

	al.logger.WithFields(fields).Info("audit event")
}

// LogFromRequest creates an audit log from an HTTP request.
// reason is an internal classification and is never sent to the caller.
func (al *AuditLogger) LogFromRequest(r *http.Request, action, username, status, reason string) {
	al.LogAction(&AuditLog{
		Username:  username,
		Action:    action,
		IPAddress: al.clientIPs.ClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: contextkeys.GetRequestID(r.Context()),
		Status:    status,
		Reason:    reason,
	})
}

// Common audit action constants
const (
	ActionLogin       = "auth.login"
	ActionLogout      = "auth.logout"
	ActionAuthFailure = "auth.failure"
	ActionAccessDeny  = "auth.denied"
)

// Status constants
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)
