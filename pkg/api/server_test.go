package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/kennel/pkg/auth"
	"github.com/platinummonkey/kennel/pkg/httputil"
	"github.com/platinummonkey/kennel/pkg/middleware"
	"github.com/platinummonkey/kennel/pkg/observability"
	"github.com/platinummonkey/kennel/pkg/storage"
)

const testSecret = "kennel-api-test-secret-0123456789abcdef"

type fixture struct {
	server   *Server
	store    *storage.MemoryIdentityStore
	metrics  *observability.Metrics
	registry *prometheus.Registry
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, limiter middleware.Limiter) *fixture {
	t.Helper()
	ctx := context.Background()

	verifier := auth.NewBcryptVerifier(bcrypt.MinCost)
	store := storage.NewMemoryIdentityStore()
	_, err := storage.Seed(ctx, store, storage.DefaultSeed(), verifier)
	require.NoError(t, err)

	hash, err := verifier.Hash("retired123")
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, &auth.Identity{
		Name:         "retired",
		PasswordHash: hash,
		Role:         auth.RoleGuest,
		Active:       false,
	}))

	codec, err := auth.NewTokenCodec([]byte(testSecret), time.Hour)
	require.NoError(t, err)

	logs := &bytes.Buffer{}
	logger := observability.NewLogger(observability.DebugLevel, logs)
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	server := NewServer(Options{
		Codec:        codec,
		Login:        auth.NewLoginService(store, verifier, codec, auth.WithLoginLogger(logger), auth.WithLoginRecorder(metrics)),
		Store:        store,
		Directory:    store,
		LoginLimiter: limiter,
		Metrics:      metrics,
		Logger:       logger,
		CORS:         httputil.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	})

	return &fixture{server: server, store: store, metrics: metrics, registry: registry, logs: logs}
}

func (f *fixture) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/auth/login", `{"username":"`+username+`","password":"`+password+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result auth.LoginResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	return result.Token
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"admin123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(httputil.RequestIDHeader))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Bearer", body["tokenType"])
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEmpty(t, body["expiresAt"])

	user, ok := body["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "admin", user["username"])
	assert.Equal(t, "ADMIN", user["role"])
	assert.NotContains(t, rec.Body.String(), "$2a$")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LoginAttemptsTotal.WithLabelValues(auth.LoginOutcomeSuccess)))
	assert.Contains(t, f.logs.String(), `"action":"auth.login"`)
	assert.NotContains(t, f.logs.String(), "admin123")
}

func TestLogin_Failures(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"wrong password", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized, "Invalid credentials"},
		{"unknown user", `{"username":"nobody","password":"admin123"}`, http.StatusUnauthorized, "Invalid credentials"},
		{"disabled with correct password", `{"username":"retired","password":"retired123"}`, http.StatusForbidden, "User account is deactivated"},
		{"disabled with wrong password", `{"username":"retired","password":"nope"}`, http.StatusUnauthorized, "Invalid credentials"},
		{"missing password", `{"username":"admin"}`, http.StatusBadRequest, "username and password are required"},
		{"blank username", `{"username":"  ","password":"x"}`, http.StatusBadRequest, "username and password are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/auth/login", tt.body, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, errorBody(t, rec))
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/auth/login", `{"username":`, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, errorBody(t, rec), "invalid JSON")
	})

	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.LoginAttemptsTotal.WithLabelValues(auth.LoginOutcomeInvalidCredentials)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LoginAttemptsTotal.WithLabelValues(auth.LoginOutcomeDisabled)))
}

func TestLogin_RateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(&middleware.RateLimitConfig{
		RequestsPerWindow: 2,
		WindowDuration:    time.Minute,
	})
	f := newFixture(t, limiter)

	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"wrong"}`, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"admin123"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	// 2 per minute frees one attempt every 30 seconds
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", errorBody(t, rec))
}

func TestMe(t *testing.T) {
	f := newFixture(t, nil)

	t.Run("unauthenticated", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/auth/me", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Error: Unauthorized", rec.Body.String())
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/auth/me", "", "not-a-token")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Error: Unauthorized", rec.Body.String())
	})

	t.Run("guest", func(t *testing.T) {
		token := f.login(t, "guest", "guest123")
		rec := f.do(t, http.MethodGet, "/api/auth/me", "", token)
		require.Equal(t, http.StatusOK, rec.Code)

		var me MeResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
		assert.Equal(t, "guest", me.Name)
		assert.Equal(t, auth.RoleGuest, me.Role)
		assert.Equal(t, "guest@example.com", me.Email)
		assert.Equal(t, []string{"ROLE_GUEST"}, me.Authorities)
	})

	t.Run("deactivated after login", func(t *testing.T) {
		token := f.login(t, "guest", "guest123")

		guest, err := f.store.FindByName(context.Background(), "guest")
		require.NoError(t, err)
		guest.Active = false
		require.NoError(t, f.store.Upsert(context.Background(), guest))
		t.Cleanup(func() {
			guest.Active = true
			_ = f.store.Upsert(context.Background(), guest)
		})

		rec := f.do(t, http.MethodGet, "/api/auth/me", "", token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuthAttemptsTotal.WithLabelValues(middleware.OutcomeBadToken)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuthAttemptsTotal.WithLabelValues(middleware.OutcomeDisabled)))
}

func TestIdentities_AdminOnly(t *testing.T) {
	f := newFixture(t, nil)
	adminToken := f.login(t, "admin", "admin123")
	guestToken := f.login(t, "guest", "guest123")

	t.Run("anonymous gets 401", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/identities", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Error: Unauthorized", rec.Body.String())
	})

	t.Run("guest gets 403", func(t *testing.T) {
		f.logs.Reset()
		rec := f.do(t, http.MethodGet, "/api/identities/admin", "", guestToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Error: Forbidden", rec.Body.String())
		assert.Contains(t, f.logs.String(), `"action":"auth.denied"`)
		assert.Contains(t, f.logs.String(), `"username":"guest"`)
	})

	t.Run("admin lists identities", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/identities", "", adminToken)
		require.Equal(t, http.StatusOK, rec.Code)

		var views []auth.IdentityView
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
		require.Len(t, views, 3)
		assert.Equal(t, "admin", views[0].Name)
		assert.Equal(t, "retired", views[2].Name)
		assert.False(t, views[2].Active)
	})

	t.Run("admin reads one identity", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/identities/guest", "", adminToken)
		require.Equal(t, http.StatusOK, rec.Code)

		var view auth.IdentityView
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
		assert.Equal(t, "guest", view.Name)
		assert.NotContains(t, rec.Body.String(), "password")
	})

	t.Run("unknown identity", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/identities/nobody", "", adminToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "identity not found", errorBody(t, rec))
	})
}

func TestLogout(t *testing.T) {
	f := newFixture(t, nil)

	t.Run("anonymous", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/auth/logout", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"Logout successful"}`, rec.Body.String())
	})

	t.Run("authenticated is audited", func(t *testing.T) {
		token := f.login(t, "admin", "admin123")
		f.logs.Reset()

		rec := f.do(t, http.MethodPost, "/api/auth/logout", "", token)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, f.logs.String(), `"action":"auth.logout"`)
		assert.NotContains(t, f.logs.String(), token)
	})
}

func TestRouting(t *testing.T) {
	f := newFixture(t, nil)

	t.Run("unknown route", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/unknown", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not found", errorBody(t, rec))
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/auth/login", "", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("request metrics use route templates", func(t *testing.T) {
		token := f.login(t, "admin", "admin123")
		f.do(t, http.MethodGet, "/api/identities/guest", "", token)

		assert.Equal(t, 1.0, testutil.ToFloat64(
			f.metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/identities/{name}", "200")))
	})
}

func TestHealthRouter(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/api/auth/me", "", "")
	router := NewHealthRouter(observability.NewHealthChecker(nil, nil, "test"), f.registry)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kennel_auth_attempts_total")

	t.Run("metrics disabled", func(t *testing.T) {
		router := NewHealthRouter(observability.NewHealthChecker(nil, nil, "test"), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
