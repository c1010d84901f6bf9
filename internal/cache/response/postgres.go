package response

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // postgres driver
	"github.com/pgvector/pgvector-go"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS neo_response_cache (
    id         TEXT PRIMARY KEY,
    question   TEXT NOT NULL,
    embedding  vector(384),
    answer     TEXT NOT NULL,
    tool_calls JSONB NOT NULL DEFAULT '[]',
    insights   JSONB NOT NULL DEFAULT '[]',
    entities   JSONB NOT NULL DEFAULT '[]',
    cached_at  DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_neo_response_cache_cached_at ON neo_response_cache (cached_at);
`

// PostgresRepository stores cache entries in Postgres and ranks them with
// pgvector's cosine distance operator. The pgvector extension must be
// installed; the embedding column is sized for 384-wide vectors.
type PostgresRepository struct {
	db *sql.DB
}

// OpenPostgres connects and ensures the cache table exists.
func OpenPostgres(dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error { return r.db.Close() }

// GetByID returns the entry with this ID, or nil when absent.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, question, answer, tool_calls, insights, entities, cached_at
		FROM neo_response_cache WHERE id = $1`, id)

	var entry Entry
	var toolCalls, insights, entities []byte
	err := row.Scan(&entry.ID, &entry.Question, &entry.Answer,
		&toolCalls, &insights, &entities, &entry.CachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := unmarshalPayload(&entry, toolCalls, insights, entities); err != nil {
		return nil, err
	}
	return &entry, nil
}

// BestMatch lets Postgres rank the whole store by cosine distance. The
// candidate limit is not needed here; ordering by similarity already
// yields the single best entry.
func (r *PostgresRepository) BestMatch(ctx context.Context, vec []float32, _ int) (*Entry, float64, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, question, answer, tool_calls, insights, entities, cached_at,
		       1 - (embedding <=> $1::vector) AS similarity
		FROM neo_response_cache
		WHERE embedding IS NOT NULL
		ORDER BY similarity DESC
		LIMIT 1`, pgvector.NewVector(vec))

	var entry Entry
	var toolCalls, insights, entities []byte
	var similarity float64
	err := row.Scan(&entry.ID, &entry.Question, &entry.Answer,
		&toolCalls, &insights, &entities, &entry.CachedAt, &similarity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	if err := unmarshalPayload(&entry, toolCalls, insights, entities); err != nil {
		return nil, 0, err
	}
	return &entry, similarity, nil
}

// Upsert inserts the entry or replaces the one sharing its ID.
func (r *PostgresRepository) Upsert(ctx context.Context, entry *Entry) error {
	toolCalls, insights, entities, err := marshalPayload(entry)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO neo_response_cache (id, question, embedding, answer, tool_calls, insights, entities, cached_at)
		VALUES ($1, $2, $3::vector, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			question   = EXCLUDED.question,
			embedding  = EXCLUDED.embedding,
			answer     = EXCLUDED.answer,
			tool_calls = EXCLUDED.tool_calls,
			insights   = EXCLUDED.insights,
			entities   = EXCLUDED.entities,
			cached_at  = EXCLUDED.cached_at`,
		entry.ID, entry.Question, pgvector.NewVector(entry.Embedding), entry.Answer,
		toolCalls, insights, entities, entry.CachedAt,
	)
	return err
}

// Delete removes one entry.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM neo_response_cache WHERE id = $1`, id)
	return err
}

// DeleteOldest removes the n entries with the smallest cached_at.
func (r *PostgresRepository) DeleteOldest(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM neo_response_cache
		WHERE id IN (SELECT id FROM neo_response_cache ORDER BY cached_at ASC LIMIT $1)`, n)
	return err
}

// Count returns the number of stored entries.
func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM neo_response_cache`).Scan(&count)
	return count, err
}

// Clear removes every entry.
func (r *PostgresRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM neo_response_cache`)
	return err
}
