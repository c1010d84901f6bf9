package docindex

import (
	"context"
	"math"
	"sort"

	"neoquery/internal/embedding"
	"neoquery/internal/telemetry"
)

const (
	defaultResults = 10
	maxResults     = 50
)

// SearchResult is one ranked document returned to the caller.
type SearchResult struct {
	ID       string         `json:"id"`
	Source   string         `json:"source"`
	Title    string         `json:"title"`
	Snippet  string         `json:"snippet"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
	URL      string         `json:"url"`
}

// Service answers semantic searches over the document index.
type Service struct {
	store    *Store
	embedder embedding.Embedder
	logger   telemetry.Logger
}

// NewService wires the search service over a store and an embedder.
func NewService(store *Store, embedder embedding.Embedder, logger telemetry.Logger) *Service {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Service{store: store, embedder: embedder, logger: logger}
}

// Search ranks documents in the requested collections by cosine similarity
// to the query. Empty collections means all of them; n is clamped to 1-50.
func (s *Service) Search(ctx context.Context, query string, collections []string, n int, dateFrom, dateTo string) ([]SearchResult, error) {
	if n <= 0 {
		n = defaultResults
	}
	if n > maxResults {
		n = maxResults
	}
	if len(collections) == 0 {
		collections = Collections
	}

	vec, err := s.embedder.Embed(ctx, embedding.Normalize(query))
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, collection := range collections {
		docs, err := s.store.Scan(ctx, collection, dateFrom, dateTo)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			score := embedding.Cosine(vec, doc.Embedding)
			results = append(results, SearchResult{
				ID:       doc.ID,
				Source:   doc.Collection,
				Title:    doc.Title,
				Snippet:  doc.Snippet,
				Score:    math.Round(score*1000) / 1000,
				Metadata: doc.Metadata,
				URL:      doc.URL,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > n {
		results = results[:n]
	}
	return results, nil
}

// Stats reports per-collection document counts.
func (s *Service) Stats(ctx context.Context) (map[string]int, error) {
	return s.store.Counts(ctx)
}
