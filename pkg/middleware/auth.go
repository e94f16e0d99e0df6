package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/kennel/pkg/auth"
	"github.com/platinummonkey/kennel/pkg/contextkeys"
	"github.com/platinummonkey/kennel/pkg/observability"
)

const tracerName = "github.com/platinummonkey/kennel/pkg/middleware"

// BearerPrefix is the case-sensitive scheme prefix of the Authorization header
const BearerPrefix = "Bearer "

// Authentication outcomes, one per exit of the authenticator
const (
	OutcomeAuthenticated   = "authenticated"
	OutcomeNoHeader        = "no_header"
	OutcomeMalformedHeader = "malformed_header"
	OutcomeBadToken        = "bad_token"
	OutcomeUnknownIdentity = "unknown_identity"
	OutcomeInvalidToken    = "invalid_token"
	OutcomeDisabled        = "disabled"
)

// AuthRecorder receives the outcome of every authentication pass
type AuthRecorder interface {
	RecordAuthentication(outcome string)
}

// AuthOption customises an AuthMiddleware
type AuthOption func(*AuthMiddleware)

// WithAuthLogger sets the logger used for authentication diagnostics
func WithAuthLogger(logger *observability.Logger) AuthOption {
	return func(m *AuthMiddleware) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithAuthRecorder sets the recorder notified of authentication outcomes
func WithAuthRecorder(recorder AuthRecorder) AuthOption {
	return func(m *AuthMiddleware) {
		m.recorder = recorder
	}
}

// AuthMiddleware authenticates bearer tokens on every request.
//
// Authentication failures never reject the request. The middleware only
// attaches an *auth.Principal to the request context when the token verifies
// and names an active identity; otherwise the context is left empty and
// route-level checks (RequireAuthenticated, RequireRole) reject later.
type AuthMiddleware struct {
	codec    *auth.TokenCodec
	store    auth.IdentityStore
	logger   *observability.Logger
	recorder AuthRecorder
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(codec *auth.TokenCodec, store auth.IdentityStore, opts ...AuthOption) *AuthMiddleware {
	m := &AuthMiddleware{
		codec:  codec,
		store:  store,
		logger: observability.NewLogger(observability.InfoLevel, nil),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler wraps an HTTP handler with authentication.
// next is invoked exactly once on every path.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, outcome := m.authenticate(r)

		if m.recorder != nil {
			m.recorder.RecordAuthentication(outcome)
		}

		if principal == nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// authenticate runs the verification steps and returns the principal, or nil
// with the outcome that stopped it
func (m *AuthMiddleware) authenticate(r *http.Request) (*auth.Principal, string) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "auth.Authenticate")
	defer span.End()

	principal, outcome, err := m.verify(ctx, r)
	span.SetAttributes(attribute.String("auth.outcome", outcome))

	if outcome != OutcomeAuthenticated && outcome != OutcomeNoHeader {
		log := m.logger.WithFields(map[string]interface{}{
			"request_id": contextkeys.GetRequestID(ctx),
			"outcome":    outcome,
			"path":       r.URL.Path,
		})
		// Token contents are never logged
		log.WithError(err).Debug("request not authenticated")
	}
	return principal, outcome
}

func (m *AuthMiddleware) verify(ctx context.Context, r *http.Request) (*auth.Principal, string, error) {
	token, outcome := BearerToken(r.Header.Get("Authorization"))
	if outcome != "" {
		return nil, outcome, nil
	}

	subject, err := m.codec.SubjectOf(token)
	if err != nil {
		return nil, OutcomeBadToken, err
	}

	identity, err := m.store.FindByName(ctx, subject)
	if err != nil || identity == nil {
		if err != nil && !errors.Is(err, auth.ErrIdentityNotFound) {
			m.logger.WithField("request_id", contextkeys.GetRequestID(ctx)).
				WithError(err).
				Warn("identity lookup failed during authentication")
		}
		return nil, OutcomeUnknownIdentity, err
	}

	ok, err := m.codec.IsValid(token, identity.Name)
	if err != nil || !ok {
		return nil, OutcomeInvalidToken, err
	}

	if !identity.Active {
		return nil, OutcomeDisabled, nil
	}

	return auth.NewPrincipal(identity, requestDetails(r)), OutcomeAuthenticated, nil
}

// BearerToken extracts the token from an Authorization header value.
// It returns a non-empty outcome (OutcomeNoHeader or OutcomeMalformedHeader)
// when no usable token is present.
func BearerToken(header string) (string, string) {
	if header == "" {
		return "", OutcomeNoHeader
	}
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", OutcomeMalformedHeader
	}
	token := header[len(BearerPrefix):]
	if strings.TrimSpace(token) == "" {
		return "", OutcomeNoHeader
	}
	return token, ""
}

func requestDetails(r *http.Request) auth.RequestDetails {
	return auth.RequestDetails{
		RemoteAddr:   r.RemoteAddr,
		ForwardedFor: r.Header.Get("X-Forwarded-For"),
		UserAgent:    r.UserAgent(),
		Method:       r.Method,
		Path:         r.URL.Path,
		RequestID:    contextkeys.GetRequestID(r.Context()),
	}
}
