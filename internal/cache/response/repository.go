// Package response caches completed agent answers keyed by question
// embeddings, so a rephrased question can reuse an earlier analysis
// instead of running the full LLM loop again.
package response

import (
	"context"
	"encoding/json"
	"fmt"

	"neoquery/internal/config"
	"neoquery/internal/domain"
	"neoquery/internal/embedding"
)

// Entry is one cached question/answer pair.
type Entry struct {
	ID        string
	Question  string
	Embedding []float32
	Answer    string
	ToolCalls []domain.ToolCall
	Insights  []string
	Entities  []domain.Entity
	CachedAt  float64 // unix seconds
}

// Repository stores cache entries and finds the best candidate for a
// query vector. Reads signal a miss with a nil entry, not an error.
type Repository interface {
	// GetByID returns the entry with the exact question identity, or nil.
	GetByID(ctx context.Context, id string) (*Entry, error)
	// BestMatch returns the entry closest to vec together with its cosine
	// similarity. Implementations that scan in process consider the limit
	// most recent entries; vector databases may rank the whole store.
	BestMatch(ctx context.Context, vec []float32, limit int) (*Entry, float64, error)
	// Upsert inserts the entry or replaces the one sharing its ID.
	Upsert(ctx context.Context, entry *Entry) error
	// Delete removes one entry. Missing IDs are not an error.
	Delete(ctx context.Context, id string) error
	// DeleteOldest removes the n entries with the smallest cached_at.
	DeleteOldest(ctx context.Context, n int) error
	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)
	// Clear removes every entry.
	Clear(ctx context.Context) error
	Close() error
}

// NewRepository opens the repository selected by the configured driver.
func NewRepository(cfg config.CacheConfig) (Repository, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return OpenSQLite(cfg.Path)
	case "postgres":
		return OpenPostgres(cfg.PostgresDSN)
	case "memory":
		return NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// bestByCosine returns the candidate most similar to vec, or nil when
// the list is empty.
func bestByCosine(entries []*Entry, vec []float32) (*Entry, float64) {
	var best *Entry
	var bestSim float64
	for _, e := range entries {
		sim := embedding.Cosine(vec, e.Embedding)
		if best == nil || sim > bestSim {
			best, bestSim = e, sim
		}
	}
	return best, bestSim
}

// jsonList marshals a slice for storage, mapping nil to the empty list
// so readers never see SQL nulls.
func jsonList(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return "[]", nil
	}
	return string(b), nil
}

func marshalPayload(entry *Entry) (toolCalls, insights, entities string, err error) {
	if toolCalls, err = jsonList(entry.ToolCalls); err != nil {
		return "", "", "", err
	}
	if insights, err = jsonList(entry.Insights); err != nil {
		return "", "", "", err
	}
	if entities, err = jsonList(entry.Entities); err != nil {
		return "", "", "", err
	}
	return toolCalls, insights, entities, nil
}

func unmarshalPayload(entry *Entry, toolCalls, insights, entities []byte) error {
	if len(toolCalls) > 0 {
		if err := json.Unmarshal(toolCalls, &entry.ToolCalls); err != nil {
			return fmt.Errorf("decode tool_calls for %s: %w", entry.ID, err)
		}
	}
	if len(insights) > 0 {
		if err := json.Unmarshal(insights, &entry.Insights); err != nil {
			return fmt.Errorf("decode insights for %s: %w", entry.ID, err)
		}
	}
	if len(entities) > 0 {
		if err := json.Unmarshal(entities, &entry.Entities); err != nil {
			return fmt.Errorf("decode entities for %s: %w", entry.ID, err)
		}
	}
	return nil
}
