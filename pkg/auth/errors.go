package auth

import "errors"

// Login failures. Their messages are caller visible.
var (
	// ErrInvalidCredentials covers both an unknown name and a wrong secret
	ErrInvalidCredentials = errors.New("Invalid credentials")
	// ErrAccountDisabled is returned when the secret matches an inactive identity
	ErrAccountDisabled = errors.New("User account is deactivated")
)

// Token failures. Surfaced to callers only as a silent deny.
var (
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenInvalidSignature = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")
)

// ErrIdentityNotFound is returned by an IdentityStore when no identity has the name
var ErrIdentityNotFound = errors.New("identity not found")
