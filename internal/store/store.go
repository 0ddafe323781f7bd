package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// ErrStore wraps every database failure. Absence and insert conflicts are
// not errors; they are reported through the found/inserted results.
var ErrStore = errors.New("database failure")

// Store is the relational persistence of users, accounts and transactions.
// Addresses and hashes are kept lowercase without 0x.
type Store struct {
	db *sqlx.DB
}

// Open connects to the database and sizes the pool.
func Open(driver, dsn string, maxOpen int) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", ErrStore, err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	return New(db), nil
}

// New wraps an open database.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrStore, err)
	}
	return nil
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	tsType := "TIMESTAMP"
	if s.db.DriverName() == DriverPostgres {
		tsType = "TIMESTAMPTZ"
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, strings.ReplaceAll(stmt, "{{ts}}", tsType)); err != nil {
			return fmt.Errorf("%w: migrate: %w", ErrStore, err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id      VARCHAR(36) PRIMARY KEY,
		realm        VARCHAR(255) NOT NULL,
		user_login   VARCHAR(1024) NOT NULL,
		created_date {{ts}} NOT NULL,
		UNIQUE (realm, user_login)
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		account_id      VARCHAR(36) PRIMARY KEY,
		user_id         VARCHAR(36) NOT NULL REFERENCES users (user_id),
		account_address VARCHAR(40) NOT NULL UNIQUE,
		account_name    VARCHAR(255) NOT NULL,
		encrypted_key   TEXT NOT NULL,
		salt            VARCHAR(64) NOT NULL,
		created_date    {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS accounts_user_id_idx ON accounts (user_id)`,
	`CREATE TABLE IF NOT EXISTS txs (
		tx_hash        VARCHAR(64) PRIMARY KEY,
		source_address VARCHAR(40) NOT NULL,
		dest_address   VARCHAR(40) NOT NULL,
		wei_value      TEXT NOT NULL,
		created_date   {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS txs_source_idx ON txs (source_address, created_date)`,
	`CREATE INDEX IF NOT EXISTS txs_dest_idx ON txs (dest_address, created_date)`,
}

// now is the creation timestamp of new rows, at the precision both
// drivers keep.
var now = func() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func inserted(res interface{ RowsAffected() (int64, error) }) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %w", ErrStore, err)
	}
	return n > 0, nil
}
