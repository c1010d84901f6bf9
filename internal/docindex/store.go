// Package docindex maintains an embedded vector index of documents pulled
// from the upstream sources, backing the RAG search and Q&A endpoints.
// Documents live in the same SQLite file as the response cache; similarity
// is computed in process over packed float32 embeddings.
package docindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
    id         TEXT NOT NULL,
    collection TEXT NOT NULL,
    title      TEXT NOT NULL DEFAULT '',
    snippet    TEXT NOT NULL DEFAULT '',
    url        TEXT NOT NULL DEFAULT '',
    doc_date   TEXT NOT NULL DEFAULT '',
    metadata   TEXT NOT NULL DEFAULT '{}',
    embedding  BLOB NOT NULL,
    indexed_at REAL NOT NULL,
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
`

// Collections indexed by the service, in indexing order.
var Collections = []string{"patents", "grants", "researchers", "policies", "fda_calendar"}

// Document is one indexed record.
type Document struct {
	ID         string
	Collection string
	Title      string
	Snippet    string
	URL        string
	Date       string
	Metadata   map[string]any
	Embedding  []float32
	IndexedAt  float64
}

// Store persists documents in a local SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens or creates the document index at path.
func Open(path string) (*Store, error) {
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
	if _, err := db.Exec(documentsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// UpsertBatch writes a batch of documents in one transaction. Documents
// replace earlier versions sharing their (collection, id).
func (s *Store) UpsertBatch(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, collection, title, snippet, url, doc_date, metadata, embedding, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			title      = excluded.title,
			snippet    = excluded.snippet,
			url        = excluded.url,
			doc_date   = excluded.doc_date,
			metadata   = excluded.metadata,
			embedding  = excluded.embedding,
			indexed_at = excluded.indexed_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, doc := range docs {
		meta, err := metadataJSON(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s/%s: %w", doc.Collection, doc.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			doc.ID, doc.Collection, doc.Title, doc.Snippet, doc.URL, doc.Date,
			meta, packVector(doc.Embedding), doc.IndexedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Scan returns the documents of one collection, optionally restricted to a
// doc_date range. Documents without a date pass an empty-bounded filter but
// are excluded once either bound is set.
func (s *Store) Scan(ctx context.Context, collection, dateFrom, dateTo string) ([]*Document, error) {
	query := `SELECT id, collection, title, snippet, url, doc_date, metadata, embedding, indexed_at
		FROM documents WHERE collection = ?`
	args := []any{collection}
	if dateFrom != "" {
		query += ` AND doc_date >= ?`
		args = append(args, dateFrom)
	}
	if dateTo != "" {
		query += ` AND doc_date != '' AND doc_date <= ?`
		args = append(args, dateTo)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		var meta string
		var blob []byte
		if err := rows.Scan(&doc.ID, &doc.Collection, &doc.Title, &doc.Snippet,
			&doc.URL, &doc.Date, &meta, &blob, &doc.IndexedAt); err != nil {
			return nil, err
		}
		doc.Embedding = unpackVector(blob)
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s/%s: %w", doc.Collection, doc.ID, err)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// Counts reports how many documents each collection holds.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT collection, COUNT(*) FROM documents GROUP BY collection`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int, len(Collections))
	for _, c := range Collections {
		counts[c] = 0
	}
	for rows.Next() {
		var collection string
		var n int
		if err := rows.Scan(&collection, &n); err != nil {
			return nil, err
		}
		counts[collection] = n
	}
	return counts, rows.Err()
}

// ClearCollection removes every document in one collection.
func (s *Store) ClearCollection(ctx context.Context, collection string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection)
	return err
}

func metadataJSON(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	out, err := json.Marshal(m)
	return string(out), err
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
