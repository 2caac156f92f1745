package store

import (
	"context"
	"database/sql"
	_ "embed"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

const (
	selectEntrySQL = `SELECT value FROM kv_entries WHERE key = $1`
	upsertEntrySQL = `INSERT INTO kv_entries (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
)

// PostgresStore keeps key-value entries in the kv_entries table and also
// serves the products/stock inventory (see inventory.go).
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	DB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := DB.Ping(); err != nil {
		DB.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return &PostgresStore{DB: DB}, nil
}

// Migrate creates the tables if they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.DB.Close() }

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.DB.QueryRowContext(ctx, selectEntrySQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "select %q", key)
	}
	return value, nil
}

// Set overwrites the entry in a single statement, so readers see either
// the old or the new value.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.DB.ExecContext(ctx, upsertEntrySQL, key, value); err != nil {
		return errors.Wrapf(err, "upsert %q", key)
	}
	return nil
}
