// Package auth provides stateless session authentication for kennel.
//
// # Overview
//
// This package implements the authentication core: signed session tokens,
// password verification, the login flow and the request-scoped principal
// that downstream authorization checks consult. Nothing is stored between
// requests; a token is valid purely by its signature and expiry.
//
// # Key Components
//
// TokenCodec: HS256 compact JWTs carrying sub, iat and exp
//
//	codec, err := auth.NewTokenCodec([]byte(secret), 24*time.Hour)
//	token, err := codec.Issue("alice", time.Now())
//	subject, err := codec.SubjectOf(token)    // ErrTokenMalformed, ErrTokenInvalidSignature
//	ok, err := codec.IsValid(token, "alice")  // ErrTokenExpired is an error, mismatch is false
//
// BcryptVerifier: one-way password hashes
//
//	verifier := auth.NewBcryptVerifier(bcrypt.DefaultCost)
//	hash, err := verifier.Hash("admin123")
//	verifier.Matches("admin123", hash) // true
//
// LoginService: credentials in, bearer token out
//
//	svc := auth.NewLoginService(store, verifier, codec)
//	result, err := svc.Login(ctx, "alice", "secret")
//	// err is ErrInvalidCredentials for an unknown name or a wrong secret,
//	// ErrAccountDisabled for an inactive identity with a correct secret
//
// Roles: closed enumeration, one per identity
//
//	RoleAdmin - ROLE_ADMIN
//	RoleGuest - ROLE_GUEST
//
// # Principal
//
// The request authenticator in pkg/middleware stores a *Principal on the
// request context after a successful verification. Handlers read it back
// with PrincipalFromContext; a nil principal means the request is
// unauthenticated.
//
// # Related Packages
//
//   - pkg/middleware: Request authenticator, role checks, 401/403 responders
//   - pkg/storage: Identity store adapters
//   - pkg/api: Login HTTP endpoints
package auth
