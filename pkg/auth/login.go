package auth

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/kennel/pkg/contextkeys"
	"github.com/platinummonkey/kennel/pkg/observability"
)

const tracerName = "github.com/platinummonkey/kennel/pkg/auth"

// IdentityStore looks identities up by name.
// Implementations return ErrIdentityNotFound when no identity has the name.
type IdentityStore interface {
	FindByName(ctx context.Context, name string) (*Identity, error)
}

// Login outcomes reported to a LoginRecorder
const (
	LoginOutcomeSuccess            = "success"
	LoginOutcomeInvalidCredentials = "invalid_credentials"
	LoginOutcomeDisabled           = "disabled"
	LoginOutcomeError              = "error"
)

// LoginRecorder receives the outcome of every login attempt
type LoginRecorder interface {
	RecordLogin(outcome string)
}

// credentialOutcome is the unmerged result of checking a name and secret
type credentialOutcome int

const (
	credentialsOK credentialOutcome = iota
	credentialsNotFound
	credentialsMismatch
	credentialsDisabled
)

// LoginServiceOption customises a LoginService
type LoginServiceOption func(*LoginService)

// WithLoginLogger sets the logger used for login diagnostics
func WithLoginLogger(logger *observability.Logger) LoginServiceOption {
	return func(s *LoginService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLoginRecorder sets the recorder notified of login outcomes
func WithLoginRecorder(recorder LoginRecorder) LoginServiceOption {
	return func(s *LoginService) {
		s.recorder = recorder
	}
}

// LoginService verifies credentials and issues session tokens.
// It keeps no state between calls.
type LoginService struct {
	store     IdentityStore
	verifier  CredentialVerifier
	codec     *TokenCodec
	logger    *observability.Logger
	recorder  LoginRecorder
	dummyHash string
}

// NewLoginService creates a login service
func NewLoginService(store IdentityStore, verifier CredentialVerifier, codec *TokenCodec, opts ...LoginServiceOption) *LoginService {
	s := &LoginService{
		store:    store,
		verifier: verifier,
		codec:    codec,
		logger:   observability.NewLogger(observability.InfoLevel, nil),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Unknown names are compared against a throwaway hash so both failure
	// paths pay for one hash comparison.
	if hasher, ok := verifier.(interface{ Hash(string) (string, error) }); ok {
		if h, err := hasher.Hash("kennel-unknown-identity"); err == nil {
			s.dummyHash = h
		}
	}
	return s
}

// Login checks name and secret and, on success, issues a bearer token.
//
// An unknown name and a wrong secret both fail with ErrInvalidCredentials.
// A correct secret for an inactive identity fails with ErrAccountDisabled.
func (s *LoginService) Login(ctx context.Context, name, secret string) (*LoginResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "auth.Login")
	defer span.End()

	identity, outcome := s.checkCredentials(ctx, name, secret)

	switch outcome {
	case credentialsNotFound, credentialsMismatch:
		s.record(LoginOutcomeInvalidCredentials)
		span.SetAttributes(attribute.String("login.outcome", LoginOutcomeInvalidCredentials))
		return nil, ErrInvalidCredentials
	case credentialsDisabled:
		s.record(LoginOutcomeDisabled)
		span.SetAttributes(attribute.String("login.outcome", LoginOutcomeDisabled))
		return nil, ErrAccountDisabled
	}

	now := s.codec.Now()
	token, err := s.codec.Issue(identity.Name, now)
	if err != nil {
		s.record(LoginOutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "token issue failed")
		return nil, err
	}

	s.record(LoginOutcomeSuccess)
	span.SetAttributes(attribute.String("login.outcome", LoginOutcomeSuccess))

	return &LoginResult{
		Token:     token,
		TokenType: TokenTypeBearer,
		ExpiresAt: s.codec.ExpiryFor(now),
		Identity:  identity.View(),
	}, nil
}

func (s *LoginService) checkCredentials(ctx context.Context, name, secret string) (*Identity, credentialOutcome) {
	identity, err := s.store.FindByName(ctx, name)
	if err != nil || identity == nil {
		if err != nil && !errors.Is(err, ErrIdentityNotFound) {
			s.logger.WithField("request_id", contextkeys.GetRequestID(ctx)).
				WithError(err).
				Warn("identity lookup failed during login")
		}
		if s.dummyHash != "" {
			s.verifier.Matches(secret, s.dummyHash)
		}
		return nil, credentialsNotFound
	}

	if !s.verifier.Matches(secret, identity.PasswordHash) {
		return nil, credentialsMismatch
	}
	if !identity.Active {
		return identity, credentialsDisabled
	}
	return identity, credentialsOK
}

func (s *LoginService) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordLogin(outcome)
	}
}
