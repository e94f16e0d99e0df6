package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/kennel/pkg/auth"
)

// SeedFile is the YAML document listing identities to provision
type SeedFile struct {
	Identities []SeedIdentity `yaml:"identities"`
}

// SeedIdentity is one identity in a seed file.
// Exactly one of Password or PasswordHash must be set.
type SeedIdentity struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password,omitempty"`
	PasswordHash string `yaml:"password_hash,omitempty"`
	Email        string `yaml:"email,omitempty"`
	FirstName    string `yaml:"first_name,omitempty"`
	LastName     string `yaml:"last_name,omitempty"`
	Role         string `yaml:"role"`
	Active       *bool  `yaml:"active,omitempty"`
}

// Hasher produces password hashes for seeded identities
type Hasher interface {
	Hash(plain string) (string, error)
}

// DefaultSeed returns the built-in admin and guest identities
func DefaultSeed() *SeedFile {
	return &SeedFile{Identities: []SeedIdentity{
		{
			Username:  "admin",
			Password:  "admin123",
			Email:     "admin@example.com",
			FirstName: "Admin",
			LastName:  "User",
			Role:      string(auth.RoleAdmin),
		},
		{
			Username:  "guest",
			Password:  "guest123",
			Email:     "guest@example.com",
			FirstName: "Guest",
			LastName:  "User",
			Role:      string(auth.RoleGuest),
		},
	}}
}

// LoadSeedFile reads and validates a seed file from disk
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates a YAML seed document
func ParseSeed(data []byte) (*SeedFile, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	seen := make(map[string]bool, len(seed.Identities))
	for i, entry := range seed.Identities {
		if entry.Username == "" {
			return nil, fmt.Errorf("seed identity %d: username is required", i)
		}
		if seen[entry.Username] {
			return nil, fmt.Errorf("seed identity %q: duplicate username", entry.Username)
		}
		seen[entry.Username] = true

		if (entry.Password == "") == (entry.PasswordHash == "") {
			return nil, fmt.Errorf("seed identity %q: exactly one of password or password_hash is required", entry.Username)
		}
		if _, err := auth.ParseRole(entry.Role); err != nil {
			return nil, fmt.Errorf("seed identity %q: %w", entry.Username, err)
		}
	}
	return &seed, nil
}

// Seed inserts every seed identity whose name does not exist in store yet.
// Existing identities are left untouched. It returns the number inserted.
func Seed(ctx context.Context, store IdentityWriter, seed *SeedFile, hasher Hasher) (int, error) {
	created := 0
	for _, entry := range seed.Identities {
		_, err := store.FindByName(ctx, entry.Username)
		if err == nil {
			continue
		}
		if !errors.Is(err, auth.ErrIdentityNotFound) {
			return created, fmt.Errorf("failed to look up %q: %w", entry.Username, err)
		}

		identity, err := entry.toIdentity(hasher)
		if err != nil {
			return created, err
		}
		if err := store.Upsert(ctx, identity); err != nil {
			return created, fmt.Errorf("failed to create %q: %w", entry.Username, err)
		}
		created++
	}
	return created, nil
}

func (e SeedIdentity) toIdentity(hasher Hasher) (*auth.Identity, error) {
	role, err := auth.ParseRole(e.Role)
	if err != nil {
		return nil, fmt.Errorf("seed identity %q: %w", e.Username, err)
	}

	hash := e.PasswordHash
	if hash == "" {
		hash, err = hasher.Hash(e.Password)
		if err != nil {
			return nil, fmt.Errorf("seed identity %q: %w", e.Username, err)
		}
	}

	active := true
	if e.Active != nil {
		active = *e.Active
	}

	return &auth.Identity{
		Name:         e.Username,
		PasswordHash: hash,
		Email:        e.Email,
		FirstName:    e.FirstName,
		LastName:     e.LastName,
		Role:         role,
		Active:       active,
	}, nil
}
