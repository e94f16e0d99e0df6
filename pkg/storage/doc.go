// Package storage provides identity store backends for kennel.
//
// # Overview
//
// Every backend satisfies auth.IdentityStore, the single lookup the
// authentication core depends on. Writers additionally implement
// IdentityWriter so the seed loader can provision default identities.
//
// # Backends
//
// MemoryIdentityStore: map-backed store for development and tests
//
//	store := storage.NewMemoryIdentityStore()
//
// sqldb.IdentityStore: SQL store over PostgreSQL or SQLite (subpackage sqldb)
//
//	db, err := sqldb.Open(ctx, sqldb.DefaultConfig(sqldb.DialectPostgres, url))
//	store := sqldb.NewIdentityStore(db, sqldb.DialectPostgres)
//
// CachedIdentityStore: bounded, expiring LRU in front of any store
//
//	cached := storage.NewCachedIdentityStore(store, 1024, time.Minute)
//
// # Seeding
//
// LoadSeedFile reads a YAML list of identities. Seed inserts those whose
// name is not present yet, hashing plaintext passwords on the way in.
//
//	identities:
//	  - username: admin
//	    password: admin123
//	    role: ADMIN
//
// # Related Packages
//
//   - pkg/auth: Identity type and the IdentityStore interface
//   - pkg/storage/sqldb: SQL backend
package storage
