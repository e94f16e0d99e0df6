package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Config holds database connection configuration
type Config struct {
	Dialect     Dialect
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// DefaultConfig returns pool defaults for dialect
func DefaultConfig(dialect Dialect, url string) Config {
	return Config{
		Dialect:     dialect,
		URL:         url,
		MaxConns:    20,
		MinConns:    2,
		Timeout:     10 * time.Second,
		MaxLifetime: time.Hour,
		MaxIdleTime: 10 * time.Minute,
	}
}

// Open opens a connection pool for the configured dialect and verifies it with a ping
func Open(ctx context.Context, config Config) (*sql.DB, error) {
	driver, err := config.Dialect.driverName()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", config.Dialect, err)
	}

	maxConns, maxLifetime, maxIdleTime := config.MaxConns, config.MaxLifetime, config.MaxIdleTime
	if config.Dialect == DialectSQLite {
		// A single long-lived connection keeps :memory: databases alive and shared
		maxConns, maxLifetime, maxIdleTime = 1, 0, 0
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(config.MinConns)
	db.SetConnMaxLifetime(maxLifetime)
	db.SetConnMaxIdleTime(maxIdleTime)

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", config.Dialect, err)
	}

	return db, nil
}
