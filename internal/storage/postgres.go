// Package storage persists drafts, categories, settings and model
// conversations, caches fetched pages and stores mirrored media.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flyspark015/nexacat/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	version    INTEGER     NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_updated_idx ON documents (collection, updated_at DESC);
`

// PostgresStore is a DocumentStore over a single JSONB table.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// EnsureSchema creates the documents table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var d Document
	err := s.db.QueryRow(ctx,
		`SELECT id, version, data, updated_at FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&d.ID, &d.Version, &d.Data, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s/%s: %w", collection, id, err)
	}
	return &d, nil
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, doc any) (int, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, err
	}
	var version int
	err = s.db.QueryRow(ctx,
		`INSERT INTO documents (collection, id, data)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id) DO UPDATE SET
		   data = EXCLUDED.data, version = documents.version + 1, updated_at = NOW()
		 RETURNING version`,
		collection, id, data,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("saving %s/%s: %w", collection, id, err)
	}
	return version, nil
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, expected int, doc any) (int, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var current int
	err = tx.QueryRow(ctx,
		`SELECT version FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
		collection, id,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if current != expected {
		return 0, domain.ErrVersionConflict
	}

	var version int
	err = tx.QueryRow(ctx,
		`UPDATE documents SET data = $3, version = version + 1, updated_at = NOW()
		 WHERE collection = $1 AND id = $2
		 RETURNING version`,
		collection, id, data,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("updating %s/%s: %w", collection, id, err)
	}
	return version, tx.Commit(ctx)
}

func (s *PostgresStore) Query(ctx context.Context, collection, field, value string) ([]Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, version, data, updated_at FROM documents
		 WHERE collection = $1 AND data->>$2 = $3
		 ORDER BY updated_at DESC`,
		collection, field, value,
	)
	if err != nil {
		return nil, fmt.Errorf("querying %s by %s: %w", collection, field, err)
	}
	return collect(rows)
}

func (s *PostgresStore) List(ctx context.Context, collection string, limit int) ([]Document, error) {
	query := `SELECT id, version, data, updated_at FROM documents WHERE collection = $1 ORDER BY updated_at DESC`
	args := []any{collection}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", collection, err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Document, error) {
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Document, error) {
		var d Document
		err := row.Scan(&d.ID, &d.Version, &d.Data, &d.UpdatedAt)
		return d, err
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}
