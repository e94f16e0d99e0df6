package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/platinummonkey/kennel/pkg/auth"
	"github.com/platinummonkey/kennel/pkg/contextkeys"
	"github.com/platinummonkey/kennel/pkg/observability"
)

// Fixed response bodies. The triggering error never reaches the caller.
const (
	UnauthorizedBody = "Error: Unauthorized"
	ForbiddenBody    = "Error: Forbidden"
)

var (
	// ErrAuthenticationRequired is raised when a route needs a principal and the request has none
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrInsufficientRole is raised when the principal's role does not grant access
	ErrInsufficientRole = errors.New("insufficient role")
)

// Responder turns an access failure into a rejection response
type Responder interface {
	Commence(w http.ResponseWriter, r *http.Request, cause error) error
}

// ResponderOption customises a rejection responder
type ResponderOption func(*responderBase)

// WithRejectionAudit records every rejection as an auth.denied audit event
func WithRejectionAudit(audit *auth.AuditLogger) ResponderOption {
	return func(b *responderBase) {
		b.audit = audit
	}
}

type responderBase struct {
	logger *observability.Logger
	audit  *auth.AuditLogger
}

func newResponderBase(logger *observability.Logger, opts []ResponderOption) responderBase {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	b := responderBase{logger: logger}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *responderBase) respond(w http.ResponseWriter, r *http.Request, status int, body string, cause error) error {
	logRejection(b.logger, r, status, cause)
	if b.audit != nil {
		var username, reason string
		if principal := auth.PrincipalFromContext(r.Context()); principal != nil {
			username = principal.Name
		}
		if cause != nil {
			reason = cause.Error()
		}
		b.audit.LogFromRequest(r, auth.ActionAccessDeny, username, auth.StatusDenied, reason)
	}
	return writePlain(w, status, body)
}

// UnauthorizedResponder rejects unauthenticated requests with 401
type UnauthorizedResponder struct {
	responderBase
}

// NewUnauthorizedResponder creates a 401 responder
func NewUnauthorizedResponder(logger *observability.Logger, opts ...ResponderOption) *UnauthorizedResponder {
	return &UnauthorizedResponder{responderBase: newResponderBase(logger, opts)}
}

// Commence writes 401 with the body "Error: Unauthorized".
// It returns an error only if the response could not be written.
func (u *UnauthorizedResponder) Commence(w http.ResponseWriter, r *http.Request, cause error) error {
	return u.respond(w, r, http.StatusUnauthorized, UnauthorizedBody, cause)
}

// ForbiddenResponder rejects authenticated requests lacking the required role with 403
type ForbiddenResponder struct {
	responderBase
}

// NewForbiddenResponder creates a 403 responder
func NewForbiddenResponder(logger *observability.Logger, opts ...ResponderOption) *ForbiddenResponder {
	return &ForbiddenResponder{responderBase: newResponderBase(logger, opts)}
}

// Commence writes 403 with the body "Error: Forbidden"
func (f *ForbiddenResponder) Commence(w http.ResponseWriter, r *http.Request, cause error) error {
	return f.respond(w, r, http.StatusForbidden, ForbiddenBody, cause)
}

func logRejection(logger *observability.Logger, r *http.Request, status int, cause error) {
	fields := map[string]interface{}{
		"status": status,
		"method": r.Method,
		"path":   r.URL.Path,
	}
	if requestID := contextkeys.GetRequestID(r.Context()); requestID != "" {
		fields["request_id"] = requestID
	}
	logger.WithFields(fields).WithError(cause).Warn("request rejected")
}

func writePlain(w http.ResponseWriter, status int, body string) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		return fmt.Errorf("failed to write %d response: %w", status, err)
	}
	return nil
}
