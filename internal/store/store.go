// Package store provides persistence for gateway accounts and projects,
// backed by SQLite or PostgreSQL.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DriverType represents the database driver type.
type DriverType string

const (
	// DriverSQLite represents the SQLite database driver.
	DriverSQLite DriverType = "sqlite"
	// DriverPostgres represents the PostgreSQL database driver.
	DriverPostgres DriverType = "postgres"
)

var (
	// ErrAccountNotFound is returned when an account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrEmailTaken is returned when an account with the email already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrProjectNotFound is returned when a project does not exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrProjectLimitReached is returned when an account is at its project limit.
	ErrProjectLimitReached = errors.New("project limit reached")
	// ErrInsufficientCredits is returned when a debit would take the balance negative.
	ErrInsufficientCredits = errors.New("insufficient rpc credits")
)

// Config contains the complete database configuration for all drivers.
type Config struct {
	// Driver specifies which database driver to use (sqlite, postgres).
	Driver DriverType
	// Path is the path to the SQLite database file.
	Path string
	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string
	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int
	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int
	// ConnMaxLifetime is the maximum amount of time a connection may be reused.
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a default database configuration.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		Path:            "data/rpc-gateway.db",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// DB represents the database connection.
type DB struct {
	db     *sql.DB
	driver DriverType
}

// New creates a new database connection based on the configuration.
func New(config Config) (*DB, error) {
	switch config.Driver {
	case DriverSQLite:
		return newSQLiteDB(config)
	case DriverPostgres:
		return newPostgresDB(config)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", config.Driver)
	}
}

// newSQLiteDB creates a new SQLite database connection.
func newSQLiteDB(config Config) (*DB, error) {
	// Ensure database directory exists (skip for in-memory databases)
	if config.Path != ":memory:" {
		if err := ensureDirExists(filepath.Dir(config.Path)); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// NOTE: We persist and interpret timestamps in UTC to avoid timezone drift.
	// SQLite stores timestamps without timezone info; `_loc=UTC` forces parsing as UTC.
	db, err := sql.Open("sqlite3", config.Path+"?_journal=WAL&_foreign_keys=on&_loc=UTC")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Special case: in-memory SQLite databases are per-connection. Use a single connection
	// to ensure schema and data are visible across queries within the same *sql.DB handle.
	if config.Path == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize SQLite schema: %w", err)
	}

	return &DB{db: db, driver: DriverSQLite}, nil
}

// newPostgresDB creates a new PostgreSQL database connection.
func newPostgresDB(config Config) (*DB, error) {
	if config.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for PostgreSQL driver")
	}

	db, err := sql.Open("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}

	if _, err := db.Exec(postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize PostgreSQL schema: %w", err)
	}

	return &DB{db: db, driver: DriverPostgres}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		_ = d.db.Close()
	}
	return nil
}

// ensureDirExists creates the directory if it doesn't exist.
func ensureDirExists(dir string) error {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return os.MkdirAll(dir, 0755)
	} else if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path %s exists and is not a directory", dir)
	}
	return nil
}

// rebind converts a query from ? placeholders to the appropriate
// placeholder style for the database driver.
func (d *DB) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}

	var builder strings.Builder
	builder.Grow(len(query) + 10)
	count := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			count++
			builder.WriteString(fmt.Sprintf("$%d", count))
		} else {
			builder.WriteByte(query[i])
		}
	}
	return builder.String()
}

const sqliteSchema = `
-- Accounts table
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	auth_providers TEXT NOT NULL DEFAULT 'password',
	password_hash TEXT NOT NULL DEFAULT '',
	plan TEXT NOT NULL DEFAULT 'free',
	rpc_credits INTEGER NOT NULL DEFAULT 100000,
	project_limit INTEGER NOT NULL DEFAULT 3,
	verified BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email);

-- Projects table
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	name TEXT NOT NULL,
	whitelisted_domain TEXT NOT NULL DEFAULT '',
	dev_mode BOOLEAN NOT NULL DEFAULT 0,
	epoch INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_projects_account_id ON projects(account_id);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	auth_providers TEXT NOT NULL DEFAULT 'password',
	password_hash TEXT NOT NULL DEFAULT '',
	plan TEXT NOT NULL DEFAULT 'free',
	rpc_credits BIGINT NOT NULL DEFAULT 100000,
	project_limit INTEGER NOT NULL DEFAULT 3,
	verified BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email);

CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	whitelisted_domain TEXT NOT NULL DEFAULT '',
	dev_mode BOOLEAN NOT NULL DEFAULT FALSE,
	epoch BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_projects_account_id ON projects(account_id);
`
