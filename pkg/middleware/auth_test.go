package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/kennel/pkg/auth"
)

const testSecret = "testSecretKeyThatIsLongEnoughForHS256Algorithm"

type mapStore struct {
	identities map[string]*auth.Identity
	err        error
	calls      int
}

func (s *mapStore) FindByName(_ context.Context, name string) (*auth.Identity, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	identity, ok := s.identities[name]
	if !ok {
		return nil, auth.ErrIdentityNotFound
	}
	return identity, nil
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *outcomeRecorder) RecordAuthentication(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

// capture records how often the downstream handler ran and what principal it saw
type capture struct {
	calls     int
	principal *auth.Principal
}

func (c *capture) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.calls++
		c.principal = auth.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func setupAuth(t *testing.T) (*auth.TokenCodec, *mapStore, *clock) {
	t.Helper()
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	codec, err := auth.NewTokenCodec([]byte(testSecret), time.Hour, auth.WithClock(c.Now))
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword() error = %v", err)
	}
	store := &mapStore{identities: map[string]*auth.Identity{
		"admin":   {ID: 1, Name: "admin", PasswordHash: string(hash), Role: auth.RoleAdmin, Active: true},
		"guest":   {ID: 2, Name: "guest", PasswordHash: string(hash), Role: auth.RoleGuest, Active: true},
		"retired": {ID: 3, Name: "retired", PasswordHash: string(hash), Role: auth.RoleGuest, Active: false},
	}}
	return codec, store, c
}

func issue(t *testing.T, codec *auth.TokenCodec, subject string, now time.Time) string {
	t.Helper()
	token, err := codec.Issue(subject, now)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return token
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	codec, store, c := setupAuth(t)
	recorder := &outcomeRecorder{}
	mw := NewAuthMiddleware(codec, store, WithAuthRecorder(recorder))

	token := issue(t, codec, "admin", c.now)

	var got capture
	req := httptest.NewRequest("GET", "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", "kennel-test")
	req.RemoteAddr = "192.0.2.10:4321"
	w := httptest.NewRecorder()

	mw.Handler(got.handler()).ServeHTTP(w, req)

	if got.calls != 1 {
		t.Fatalf("downstream calls = %d, want 1", got.calls)
	}
	if got.principal == nil {
		t.Fatal("Expected principal in context")
	}
	if got.principal.Name != "admin" || got.principal.Role != auth.RoleAdmin {
		t.Errorf("principal = %+v, want admin/ADMIN", got.principal)
	}
	if len(got.principal.Authorities) != 1 || got.principal.Authorities[0] != "ROLE_ADMIN" {
		t.Errorf("Authorities = %v, want [ROLE_ADMIN]", got.principal.Authorities)
	}
	if got.principal.Details.RemoteAddr != "192.0.2.10:4321" {
		t.Errorf("Details.RemoteAddr = %q", got.principal.Details.RemoteAddr)
	}
	if got.principal.Details.Path != "/api/auth/me" || got.principal.Details.UserAgent != "kennel-test" {
		t.Errorf("Details = %+v", got.principal.Details)
	}
	if len(recorder.outcomes) != 1 || recorder.outcomes[0] != OutcomeAuthenticated {
		t.Errorf("outcomes = %v, want [%s]", recorder.outcomes, OutcomeAuthenticated)
	}
}

func TestAuthMiddleware_SilentDeny(t *testing.T) {
	codec, store, c := setupAuth(t)

	valid := issue(t, codec, "admin", c.now)
	expired := issue(t, codec, "admin", c.now.Add(-2*time.Hour))
	unknown := issue(t, codec, "nobody", c.now)
	disabled := issue(t, codec, "retired", c.now)

	otherCodec, err := auth.NewTokenCodec([]byte("anotherSecretKeyThatIsAlsoLongEnoughForHS256"), time.Hour)
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}
	forged := issue(t, otherCodec, "admin", c.now)

	tests := []struct {
		name    string
		header  string
		set     bool
		outcome string
	}{
		{"missing header", "", false, OutcomeNoHeader},
		{"empty header", "", true, OutcomeNoHeader},
		{"scheme only", "Bearer", true, OutcomeMalformedHeader},
		{"scheme with space", "Bearer ", true, OutcomeNoHeader},
		{"scheme with blanks", "Bearer    ", true, OutcomeNoHeader},
		{"wrong scheme", "Basic dXNlcjpwYXNz", true, OutcomeMalformedHeader},
		{"no scheme", "InvalidFormat token", true, OutcomeMalformedHeader},
		{"lowercase scheme", "bearer " + valid, true, OutcomeMalformedHeader},
		{"raw token", valid, true, OutcomeMalformedHeader},
		{"garbage token", "Bearer invalid.token.here", true, OutcomeBadToken},
		{"two segment token", "Bearer malformed.token", true, OutcomeBadToken},
		{"foreign signature", "Bearer " + forged, true, OutcomeBadToken},
		{"unknown subject", "Bearer " + unknown, true, OutcomeUnknownIdentity},
		{"expired token", "Bearer " + expired, true, OutcomeInvalidToken},
		{"disabled identity", "Bearer " + disabled, true, OutcomeDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &outcomeRecorder{}
			mw := NewAuthMiddleware(codec, store, WithAuthRecorder(recorder))

			var got capture
			req := httptest.NewRequest("GET", "/api/test", nil)
			if tt.set {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			mw.Handler(got.handler()).ServeHTTP(w, req)

			if got.calls != 1 {
				t.Errorf("downstream calls = %d, want 1", got.calls)
			}
			if got.principal != nil {
				t.Errorf("principal = %+v, want nil", got.principal)
			}
			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d (authenticator must not reject)", w.Code, http.StatusOK)
			}
			if len(recorder.outcomes) != 1 || recorder.outcomes[0] != tt.outcome {
				t.Errorf("outcomes = %v, want [%s]", recorder.outcomes, tt.outcome)
			}
		})
	}
}

func TestAuthMiddleware_StoreFailure(t *testing.T) {
	codec, store, c := setupAuth(t)
	store.err = errors.New("connection reset")
	mw := NewAuthMiddleware(codec, store)

	var got capture
	req := httptest.NewRequest("GET", "/api/test", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, codec, "admin", c.now))
	mw.Handler(got.handler()).ServeHTTP(httptest.NewRecorder(), req)

	if got.calls != 1 {
		t.Errorf("downstream calls = %d, want 1", got.calls)
	}
	if got.principal != nil {
		t.Error("Expected empty context on store failure")
	}
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1 (no retry)", store.calls)
	}
}

func TestAuthMiddleware_NoLookupForBadToken(t *testing.T) {
	codec, store, _ := setupAuth(t)
	mw := NewAuthMiddleware(codec, store)

	req := httptest.NewRequest("GET", "/api/test", nil)
	req.Header.Set("Authorization", "Bearer invalid.token.here")
	mw.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(httptest.NewRecorder(), req)

	if store.calls != 0 {
		t.Errorf("store calls = %d, want 0", store.calls)
	}
}

func TestAuthMiddleware_ExpiryBoundary(t *testing.T) {
	codec, store, c := setupAuth(t)
	mw := NewAuthMiddleware(codec, store)
	issuedAt := c.now
	token := issue(t, codec, "guest", issuedAt)

	tests := []struct {
		name   string
		now    time.Time
		authed bool
	}{
		{"one second before expiry", issuedAt.Add(time.Hour - time.Second), true},
		{"at expiry", issuedAt.Add(time.Hour), false},
		{"after expiry", issuedAt.Add(time.Hour + time.Millisecond), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.now = tt.now
			var got capture
			req := httptest.NewRequest("GET", "/api/test", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			mw.Handler(got.handler()).ServeHTTP(httptest.NewRecorder(), req)

			if (got.principal != nil) != tt.authed {
				t.Errorf("authenticated = %v, want %v", got.principal != nil, tt.authed)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		token   string
		outcome string
	}{
		{"", "", OutcomeNoHeader},
		{"Bearer abc.def.ghi", "abc.def.ghi", ""},
		{"Bearer  abc", " abc", ""},
		{"Bearer", "", OutcomeMalformedHeader},
		{"Bearer ", "", OutcomeNoHeader},
		{"Token abc", "", OutcomeMalformedHeader},
		{"BEARER abc", "", OutcomeMalformedHeader},
	}

	for _, tt := range tests {
		token, outcome := BearerToken(tt.header)
		if token != tt.token || outcome != tt.outcome {
			t.Errorf("BearerToken(%q) = (%q, %q), want (%q, %q)", tt.header, token, outcome, tt.token, tt.outcome)
		}
	}
}
