package document

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore keeps documents in a single jsonb table keyed by
// (collection, id).
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to PostgreSQL and verifies the connection.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("document: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("document: postgres connection failed: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Migrate applies the embedded schema migrations.
func (s *PostgresStore) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("document: load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(s.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("document: migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("document: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("document: migrate up: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Get returns the record at (collection, id), or nil if absent.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Record, error) {
	const query = `SELECT data FROM documents WHERE collection = $1 AND id = $2`

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("document: get %s/%s: %w", collection, id, err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("document: decode %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

// SetField upserts a single field of a document.
func (s *PostgresStore) SetField(ctx context.Context, collection, id, field string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("document: marshal %s/%s.%s: %w", collection, id, field, err)
	}

	const query = `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, jsonb_build_object($3::text, $4::jsonb))
		ON CONFLICT (collection, id)
		DO UPDATE SET data = jsonb_set(documents.data, ARRAY[$3::text], $4::jsonb, true),
		              updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, collection, id, field, raw); err != nil {
		return fmt.Errorf("document: set %s/%s.%s: %w", collection, id, field, err)
	}
	return nil
}

// List returns every document in a collection.
func (s *PostgresStore) List(ctx context.Context, collection string) ([]Document, error) {
	const query = `SELECT id, data FROM documents WHERE collection = $1 ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("document: list %s: %w", collection, err)
	}
	defer rows.Close()
	return scanDocuments(rows, collection)
}

// Query returns the documents whose field equals value. Equality uses jsonb
// containment so numbers and booleans compare by value, not text.
func (s *PostgresStore) Query(ctx context.Context, collection, field string, value any) ([]Document, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("document: marshal query value: %w", err)
	}

	const query = `
		SELECT id, data FROM documents
		WHERE collection = $1 AND data @> jsonb_build_object($2::text, $3::jsonb)
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, collection, field, raw)
	if err != nil {
		return nil, fmt.Errorf("document: query %s.%s: %w", collection, field, err)
	}
	defer rows.Close()
	return scanDocuments(rows, collection)
}

func scanDocuments(rows *sql.Rows, collection string) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("document: scan %s: %w", collection, err)
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("document: decode %s/%s: %w", collection, id, err)
		}
		docs = append(docs, Document{ID: id, Data: rec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("document: iterate %s: %w", collection, err)
	}
	return docs, nil
}
