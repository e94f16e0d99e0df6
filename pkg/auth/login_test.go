package auth

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/kennel/pkg/observability"
)

type stubStore struct {
	identities map[string]*Identity
	err        error
	lookups    []string
}

func (s *stubStore) FindByName(_ context.Context, name string) (*Identity, error) {
	s.lookups = append(s.lookups, name)
	if s.err != nil {
		return nil, s.err
	}
	identity, ok := s.identities[name]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	copied := *identity
	return &copied, nil
}

type countingVerifier struct {
	*BcryptVerifier
	calls int
}

func (v *countingVerifier) Matches(presented, storedHash string) bool {
	v.calls++
	return v.BcryptVerifier.Matches(presented, storedHash)
}

type recordedOutcomes struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordedOutcomes) RecordLogin(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func newLoginFixture(t *testing.T) (*stubStore, *BcryptVerifier, *TokenCodec) {
	t.Helper()
	verifier := NewBcryptVerifier(bcrypt.MinCost)

	adminHash, err := verifier.Hash("admin123")
	require.NoError(t, err)
	guestHash, err := verifier.Hash("guest123")
	require.NoError(t, err)
	retiredHash, err := verifier.Hash("retired123")
	require.NoError(t, err)

	store := &stubStore{identities: map[string]*Identity{
		"admin":   {ID: 1, Name: "admin", PasswordHash: adminHash, Email: "admin@springdogs.com", Role: RoleAdmin, Active: true},
		"guest":   {ID: 2, Name: "guest", PasswordHash: guestHash, Role: RoleGuest, Active: true},
		"retired": {ID: 3, Name: "retired", PasswordHash: retiredHash, Role: RoleGuest, Active: false},
	}}

	clock := &fakeClock{now: time.Unix(1_700_000_000, 500_000_000)}
	codec := newTestCodec(t, time.Hour, clock)
	return store, verifier, codec
}

func TestLoginService_Success(t *testing.T) {
	store, verifier, codec := newLoginFixture(t)
	recorder := &recordedOutcomes{}
	svc := NewLoginService(store, verifier, codec, WithLoginRecorder(recorder))

	result, err := svc.Login(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, TokenTypeBearer, result.TokenType)
	assert.Equal(t, "admin", result.Identity.Name)
	assert.Equal(t, RoleAdmin, result.Identity.Role)
	assert.Equal(t, "admin@springdogs.com", result.Identity.Email)
	assert.True(t, result.ExpiresAt.Equal(time.Unix(1_700_000_000+3600, 500_000_000)), "expiresAt = %s", result.ExpiresAt)

	subject, err := codec.SubjectOf(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", subject)

	ok, err := codec.IsValid(result.Token, "admin")
	require.NoError(t, err)
	assert.True(t, ok)

	expiry, err := codec.ExpiryOf(result.Token)
	require.NoError(t, err)
	assert.True(t, expiry.Equal(result.ExpiresAt))

	assert.Equal(t, []string{LoginOutcomeSuccess}, recorder.outcomes)
}

func TestLoginService_IndistinguishableFailures(t *testing.T) {
	store, verifier, codec := newLoginFixture(t)
	svc := NewLoginService(store, verifier, codec)

	_, unknownErr := svc.Login(context.Background(), "nonexistent", "whatever")
	_, wrongErr := svc.Login(context.Background(), "admin", "wrongpassword")

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.ErrorIs(t, unknownErr, ErrInvalidCredentials)
	assert.ErrorIs(t, wrongErr, ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
	assert.Equal(t, "Invalid credentials", wrongErr.Error())
}

func TestLoginService_UnknownNameStillCompares(t *testing.T) {
	store, _, codec := newLoginFixture(t)
	verifier := &countingVerifier{BcryptVerifier: NewBcryptVerifier(bcrypt.MinCost)}
	svc := NewLoginService(store, verifier, codec)

	_, err := svc.Login(context.Background(), "nonexistent", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, verifier.calls)
}

// nilStore reports no identity and no error for every name
type nilStore struct{}

func (nilStore) FindByName(context.Context, string) (*Identity, error) { return nil, nil }

func TestLoginService_NilIdentityStillCompares(t *testing.T) {
	_, _, codec := newLoginFixture(t)
	verifier := &countingVerifier{BcryptVerifier: NewBcryptVerifier(bcrypt.MinCost)}
	svc := NewLoginService(nilStore{}, verifier, codec)

	result, err := svc.Login(context.Background(), "ghost", "whatever")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, verifier.calls)
}

func TestLoginService_Disabled(t *testing.T) {
	store, verifier, codec := newLoginFixture(t)
	recorder := &recordedOutcomes{}
	svc := NewLoginService(store, verifier, codec, WithLoginRecorder(recorder))

	result, err := svc.Login(context.Background(), "retired", "retired123")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrAccountDisabled)
	assert.Equal(t, "User account is deactivated", err.Error())

	// A wrong secret on a disabled identity does not reveal the account state
	result, err = svc.Login(context.Background(), "retired", "nope")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Equal(t, []string{LoginOutcomeDisabled, LoginOutcomeInvalidCredentials}, recorder.outcomes)
}

func TestLoginService_StoreFailure(t *testing.T) {
	store, verifier, codec := newLoginFixture(t)
	store.err = errors.New("connection refused")

	var buf bytes.Buffer
	logger := observability.NewLogger(observability.DebugLevel, &buf)
	svc := NewLoginService(store, verifier, codec, WithLoginLogger(logger))

	result, err := svc.Login(context.Background(), "admin", "admin123")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Contains(t, buf.String(), "identity lookup failed during login")
	assert.Contains(t, buf.String(), "connection refused")
}

func TestLoginService_NotFoundNotLogged(t *testing.T) {
	store, verifier, codec := newLoginFixture(t)

	var buf bytes.Buffer
	logger := observability.NewLogger(observability.DebugLevel, &buf)
	svc := NewLoginService(store, verifier, codec, WithLoginLogger(logger))

	_, err := svc.Login(context.Background(), "nonexistent", "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, buf.String())
}

func TestLoginService_GuestToken(t *testing.T) {
	store, verifier, codec := newLoginFixture(t)
	svc := NewLoginService(store, verifier, codec)

	result, err := svc.Login(context.Background(), "guest", "guest123")
	require.NoError(t, err)
	assert.Equal(t, RoleGuest, result.Identity.Role)

	ok, err := codec.IsValid(result.Token, "admin")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"guest"}, store.lookups)
}
