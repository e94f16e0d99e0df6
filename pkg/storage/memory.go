package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/kennel/pkg/auth"
)

// IdentityWriter is an identity store that can also create and update identities
type IdentityWriter interface {
	auth.IdentityStore
	Upsert(ctx context.Context, identity *auth.Identity) error
}

// MemoryIdentityStore keeps identities in process memory
type MemoryIdentityStore struct {
	mu         sync.RWMutex
	identities map[string]*auth.Identity
	nextID     int64
	now        func() time.Time
}

// NewMemoryIdentityStore creates an empty in-memory store
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		identities: make(map[string]*auth.Identity),
		nextID:     1,
		now:        time.Now,
	}
}

// FindByName returns a copy of the identity named name
func (s *MemoryIdentityStore) FindByName(ctx context.Context, name string) (*auth.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[name]
	if !ok {
		return nil, auth.ErrIdentityNotFound
	}
	copied := *identity
	return &copied, nil
}

// Upsert inserts identity or replaces the one with the same name.
// ID and CreatedAt are assigned on insert and written back to identity.
func (s *MemoryIdentityStore) Upsert(ctx context.Context, identity *auth.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if identity.Name == "" {
		return fmt.Errorf("identity name is required")
	}
	if !identity.Role.Valid() {
		return fmt.Errorf("identity %q: invalid role %q", identity.Name, identity.Role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if existing, ok := s.identities[identity.Name]; ok {
		identity.ID = existing.ID
		identity.CreatedAt = existing.CreatedAt
	} else {
		identity.ID = s.nextID
		s.nextID++
		identity.CreatedAt = now
	}
	identity.UpdatedAt = now

	stored := *identity
	s.identities[identity.Name] = &stored
	return nil
}

// List returns copies of all identities ordered by ID
func (s *MemoryIdentityStore) List(ctx context.Context) ([]*auth.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*auth.Identity, 0, len(s.identities))
	for _, identity := range s.identities {
		copied := *identity
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
