package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is the single access tag carried by an identity
type Role string

const (
	RoleAdmin Role = "ADMIN" // Full access, including identity administration
	RoleGuest Role = "GUEST" // Authenticated read-only access
)

// AuthorityPrefix is prepended to a role to form its authority string
const AuthorityPrefix = "ROLE_"

// Roles returns every role of the closed enumeration
func Roles() []Role {
	return []Role{RoleAdmin, RoleGuest}
}

// ParseRole parses a role name, case-insensitively
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return role, nil
}

// Valid reports whether r belongs to the closed role enumeration
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleGuest:
		return true
	}
	return false
}

// Authority returns the authority string derived from the role
func (r Role) Authority() string {
	return AuthorityPrefix + string(r)
}

// Authorities returns the authority set granted by the role.
// Every identity has exactly one role, so the set always has one element.
func (r Role) Authorities() []string {
	return []string{r.Authority()}
}

// Identity is a stored identity record as returned by an IdentityStore
type Identity struct {
	ID           int64     `json:"id"`
	Name         string    `json:"username"`
	PasswordHash string    `json:"-"` // Never expose hash
	Email        string    `json:"email,omitempty"`
	FirstName    string    `json:"firstName,omitempty"`
	LastName     string    `json:"lastName,omitempty"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// View returns the read-only projection of the identity without its secret hash
func (i *Identity) View() IdentityView {
	return IdentityView{
		ID:        i.ID,
		Name:      i.Name,
		Email:     i.Email,
		FirstName: i.FirstName,
		LastName:  i.LastName,
		Role:      i.Role,
		Active:    i.Active,
	}
}

// IdentityView is the caller-visible projection of an Identity
type IdentityView struct {
	ID        int64  `json:"id"`
	Name      string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Role      Role   `json:"role"`
	Active    bool   `json:"active"`
}

// RequestDetails tags a principal with the request it was authenticated on
type RequestDetails struct {
	RemoteAddr   string `json:"remoteAddr"`
	ForwardedFor string `json:"forwardedFor,omitempty"`
	UserAgent    string `json:"userAgent,omitempty"`
	Method       string `json:"method"`
	Path         string `json:"path"`
	RequestID    string `json:"requestId,omitempty"`
}

// Principal is the request-scoped result of a successful token verification
type Principal struct {
	ID          int64          `json:"id"`
	Name        string         `json:"username"`
	Role        Role           `json:"role"`
	Enabled     bool           `json:"enabled"`
	Authorities []string       `json:"authorities"`
	Details     RequestDetails `json:"details"`
}

// NewPrincipal derives a principal from a loaded identity
func NewPrincipal(identity *Identity, details RequestDetails) *Principal {
	return &Principal{
		ID:          identity.ID,
		Name:        identity.Name,
		Role:        identity.Role,
		Enabled:     identity.Active,
		Authorities: identity.Role.Authorities(),
		Details:     details,
	}
}

// HasRole checks if the principal carries the given role
func (p *Principal) HasRole(role Role) bool {
	return p != nil && p.Role == role
}

// HasAuthority checks if the principal was granted the given authority string
func (p *Principal) HasAuthority(authority string) bool {
	if p == nil {
		return false
	}
	for _, a := range p.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

// TokenTypeBearer is the token type reported to login callers
const TokenTypeBearer = "Bearer"

// LoginResult is returned by a successful login
type LoginResult struct {
	Token     string       `json:"accessToken"`
	TokenType string       `json:"tokenType"`
	ExpiresAt time.Time    `json:"expiresAt"`
	Identity  IdentityView `json:"user"`
}
