package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// MinSecretLength is the minimum HS256 key size in bytes (256 bits)
	MinSecretLength = 32
	// DefaultTokenTTL matches the default session length of 24 hours
	DefaultTokenTTL = 24 * time.Hour
)

// TokenCodecOption customises a TokenCodec
type TokenCodecOption func(*TokenCodec)

// WithClock overrides the clock used to check token expiry
func WithClock(now func() time.Time) TokenCodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// TokenCodec issues and verifies HS256 signed session tokens.
// Tokens are compact JWTs carrying sub, iat and exp. Validity depends only on
// the signature and the expiry; there is no server-side revocation.
//
// A TokenCodec is immutable after construction and safe for concurrent use.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec creates a codec signing with secret and issuing tokens valid for ttl
func NewTokenCodec(secret []byte, ttl time.Duration, opts ...TokenCodecOption) (*TokenCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured token lifetime
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Now returns the current time according to the codec's clock
func (c *TokenCodec) Now() time.Time {
	return c.now()
}

// ExpiryFor returns the expiry of a token issued at now, in whole milliseconds
func (c *TokenCodec) ExpiryFor(now time.Time) time.Time {
	return toMillis(now).Add(c.ttl).Truncate(time.Millisecond)
}

// Issue signs a token for subject with iat=now and exp=now+ttl.
// Both timestamps keep millisecond precision.
func (c *TokenCodec) Issue(subject string, now time.Time) (string, error) {
	claims := &sessionClaims{
		Subject:   subject,
		IssuedAt:  newMillisDate(now),
		ExpiresAt: newMillisDate(c.ExpiryFor(now)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// SubjectOf returns the subject of a token whose signature verifies.
// Expiry is not checked; use IsValid for that.
func (c *TokenCodec) SubjectOf(token string) (string, error) {
	claims, err := c.parse(token, false)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}
	return claims.Subject, nil
}

// ExpiryOf returns the expiry of a token whose signature verifies
func (c *TokenCodec) ExpiryOf(token string) (time.Time, error) {
	claims, err := c.parse(token, false)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp", ErrTokenMalformed)
	}
	return claims.ExpiresAt.Time(), nil
}

// IsValid reports whether token is signed with the codec's secret, names
// expectedSubject and has not expired. A token whose expiry equals the
// current instant is expired.
//
// Signature, expiry and decoding failures are returned as errors
// (ErrTokenInvalidSignature, ErrTokenExpired, ErrTokenMalformed); a subject
// mismatch returns false with a nil error. Callers must treat both as deny.
func (c *TokenCodec) IsValid(token, expectedSubject string) (bool, error) {
	claims, err := c.parse(token, true)
	if err != nil {
		return false, err
	}
	return claims.Subject == expectedSubject, nil
}

func (c *TokenCodec) parse(token string, validateClaims bool) (*sessionClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	}
	if !validateClaims {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	return claims, nil
}

// classifyTokenError maps golang-jwt failures onto the package's token errors
func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrTokenInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
