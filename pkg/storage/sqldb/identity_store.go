package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/kennel/pkg/auth"
)

const identityColumns = `id, username, password_hash, email, first_name, last_name, role, active, created_at, updated_at`

// IdentityStore persists identities in a SQL database
type IdentityStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewIdentityStore creates a SQL identity store
func NewIdentityStore(db *sql.DB, dialect Dialect) *IdentityStore {
	return &IdentityStore{
		db:      db,
		dialect: dialect,
		now:     time.Now,
	}
}

// Migrate creates the identities table if it does not exist
func (s *IdentityStore) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS identities (
			id %s,
			username VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL DEFAULT '',
			first_name VARCHAR(255) NOT NULL DEFAULT '',
			last_name VARCHAR(255) NOT NULL DEFAULT '',
			role VARCHAR(32) NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`, s.dialect.idColumn())

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create identities table: %w", err)
	}
	return nil
}

// FindByName returns the identity with the given username
func (s *IdentityStore) FindByName(ctx context.Context, name string) (*auth.Identity, error) {
	query := s.dialect.rebind(`SELECT ` + identityColumns + ` FROM identities WHERE username = ?`)

	identity, err := scanIdentity(s.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, auth.ErrIdentityNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return identity, nil
}

// List returns all identities ordered by id
func (s *IdentityStore) List(ctx context.Context) ([]*auth.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var identities []*auth.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	return identities, nil
}

// Upsert inserts identity or updates the row with the same username.
// ID and timestamps are written back to identity.
func (s *IdentityStore) Upsert(ctx context.Context, identity *auth.Identity) error {
	if identity.Name == "" {
		return fmt.Errorf("identity name is required")
	}
	if !identity.Role.Valid() {
		return fmt.Errorf("identity %q: invalid role %q", identity.Name, identity.Role)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC().Truncate(time.Microsecond)
	upsert := s.dialect.rebind(`
		INSERT INTO identities (username, password_hash, email, first_name, last_name, role, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (username) DO UPDATE SET
			password_hash = excluded.password_hash,
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			role = excluded.role,
			active = excluded.active,
			updated_at = excluded.updated_at
	`)
	_, err = tx.ExecContext(ctx, upsert,
		identity.Name,
		identity.PasswordHash,
		identity.Email,
		identity.FirstName,
		identity.LastName,
		string(identity.Role),
		identity.Active,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert identity: %w", err)
	}

	query := s.dialect.rebind(`SELECT id, created_at, updated_at FROM identities WHERE username = ?`)
	if err := tx.QueryRowContext(ctx, query, identity.Name).Scan(&identity.ID, &identity.CreatedAt, &identity.UpdatedAt); err != nil {
		return fmt.Errorf("failed to read back identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit identity: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIdentity(row rowScanner) (*auth.Identity, error) {
	var (
		identity auth.Identity
		role     string
	)
	err := row.Scan(
		&identity.ID,
		&identity.Name,
		&identity.PasswordHash,
		&identity.Email,
		&identity.FirstName,
		&identity.LastName,
		&role,
		&identity.Active,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := auth.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("stored identity %q: %w", identity.Name, err)
	}
	identity.Role = parsed
	return &identity, nil
}
