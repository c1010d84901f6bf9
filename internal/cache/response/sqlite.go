package response

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache (
    id         TEXT PRIMARY KEY,
    question   TEXT NOT NULL,
    embedding  BLOB NOT NULL,
    answer     TEXT NOT NULL,
    tool_calls TEXT NOT NULL DEFAULT '[]',
    insights   TEXT NOT NULL DEFAULT '[]',
    entities   TEXT NOT NULL DEFAULT '[]',
    cached_at  REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_cached_at ON cache(cached_at);
`

// SQLiteRepository stores cache entries in a single local database file.
// Similarity is computed in process over a window of recent entries, so
// no vector extension is required.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens or creates the cache database at path.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error { return r.db.Close() }

// GetByID returns the entry with this ID, or nil when absent.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, question, embedding, answer, tool_calls, insights, entities, cached_at
		FROM cache WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

// Recent returns entries with cached_at above cutoff (unix seconds),
// newest first. A zero cutoff returns the most recent entries
// regardless of age.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int, cutoff float64) ([]*Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, question, embedding, answer, tool_calls, insights, entities, cached_at
		FROM cache WHERE cached_at > ? ORDER BY cached_at DESC LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// BestMatch scans the limit most recent entries and returns the one with
// the highest cosine similarity to vec. Expired entries are included;
// the service decides whether the winner is still usable.
func (r *SQLiteRepository) BestMatch(ctx context.Context, vec []float32, limit int) (*Entry, float64, error) {
	entries, err := r.Recent(ctx, limit, 0)
	if err != nil {
		return nil, 0, err
	}
	entry, sim := bestByCosine(entries, vec)
	return entry, sim, nil
}

// Upsert inserts the entry or replaces the one sharing its ID.
func (r *SQLiteRepository) Upsert(ctx context.Context, entry *Entry) error {
	toolCalls, insights, entities, err := marshalPayload(entry)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cache (id, question, embedding, answer, tool_calls, insights, entities, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			question   = excluded.question,
			embedding  = excluded.embedding,
			answer     = excluded.answer,
			tool_calls = excluded.tool_calls,
			insights   = excluded.insights,
			entities   = excluded.entities,
			cached_at  = excluded.cached_at`,
		entry.ID, entry.Question, packVector(entry.Embedding), entry.Answer,
		toolCalls, insights, entities, entry.CachedAt,
	)
	return err
}

// Delete removes one entry.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cache WHERE id = ?`, id)
	return err
}

// DeleteOldest removes the n entries with the smallest cached_at.
func (r *SQLiteRepository) DeleteOldest(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM cache WHERE id IN (SELECT id FROM cache ORDER BY cached_at ASC LIMIT ?)`, n)
	return err
}

// Count returns the number of stored entries.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache`).Scan(&count)
	return count, err
}

// Clear removes every entry.
func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cache`)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var entry Entry
	var blob, toolCalls, insights, entities []byte
	if err := row.Scan(&entry.ID, &entry.Question, &blob, &entry.Answer,
		&toolCalls, &insights, &entities, &entry.CachedAt); err != nil {
		return nil, err
	}
	entry.Embedding = unpackVector(blob)
	if err := unmarshalPayload(&entry, toolCalls, insights, entities); err != nil {
		return nil, err
	}
	return &entry, nil
}

// packVector encodes a vector as little-endian float32 bytes.
func packVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func unpackVector(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
