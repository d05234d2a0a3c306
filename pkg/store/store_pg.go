package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore keeps definition records in PostgreSQL
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to databaseURL and creates the schema
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	s := &PGStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

// migrate creates the definitions table
func (s *PGStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS apx_definitions (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		checksum TEXT NOT NULL,
		definition TEXT NOT NULL,
		in_port_len INTEGER NOT NULL,
		out_port_len INTEGER NOT NULL,
		first_seen TIMESTAMPTZ NOT NULL,
		last_seen TIMESTAMPTZ NOT NULL,
		seen INTEGER NOT NULL DEFAULT 1,
		UNIQUE (name, checksum)
	);

	CREATE INDEX IF NOT EXISTS idx_apx_definitions_name ON apx_definitions(name);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Put inserts rec or refreshes the existing row with the same checksum
func (s *PGStore) Put(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	seen := now()

	query := `
		INSERT INTO apx_definitions (id, name, checksum, definition, in_port_len, out_port_len, first_seen, last_seen, seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, 1)
		ON CONFLICT (name, checksum) DO UPDATE
		SET last_seen = EXCLUDED.last_seen, seen = apx_definitions.seen + 1
		RETURNING id, first_seen, last_seen, seen
	`
	err := s.pool.QueryRow(ctx, query,
		rec.ID,
		rec.Name,
		rec.Checksum,
		rec.Definition,
		rec.InPortLen,
		rec.OutPortLen,
		seen,
	).Scan(&rec.ID, &rec.FirstSeen, &rec.LastSeen, &rec.Seen)
	if err != nil {
		return fmt.Errorf("failed to store definition %s: %w", rec.Name, err)
	}
	return nil
}

const selectColumns = `id, name, checksum, definition, in_port_len, out_port_len, first_seen, last_seen, seen`

func scanRecord(row pgx.Row) (*Record, error) {
	r := &Record{}
	err := row.Scan(&r.ID, &r.Name, &r.Checksum, &r.Definition, &r.InPortLen, &r.OutPortLen, &r.FirstSeen, &r.LastSeen, &r.Seen)
	return r, err
}

// Get returns the latest record for name
func (s *PGStore) Get(ctx context.Context, name string) (*Record, error) {
	query := `SELECT ` + selectColumns + ` FROM apx_definitions WHERE name = $1 ORDER BY last_seen DESC LIMIT 1`
	r, err := scanRecord(s.pool.QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}
	return r, nil
}

// List returns every record
func (s *PGStore) List(ctx context.Context) ([]*Record, error) {
	query := `SELECT ` + selectColumns + ` FROM apx_definitions ORDER BY name, last_seen`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Ping checks database connectivity
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}
