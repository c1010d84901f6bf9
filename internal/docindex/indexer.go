package docindex

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"neoquery/internal/domain"
	"neoquery/internal/embedding"
	"neoquery/internal/entity"
	"neoquery/internal/telemetry"
)

const upsertBatchSize = 100

// Querier is the slice of the SQL client the indexer pulls rows through.
type Querier interface {
	Execute(ctx context.Context, source domain.Source, query string) (*domain.QueryResult, error)
}

// Indexer rebuilds index collections from the upstream sources.
type Indexer struct {
	store    *Store
	db       Querier
	embedder embedding.Embedder
	maxRows  int
	metrics  *telemetry.Metrics
	logger   telemetry.Logger
}

// NewIndexer wires an indexer. maxRows caps how many rows one collection
// pulls per reindex; zero means the default 2000.
func NewIndexer(store *Store, db Querier, embedder embedding.Embedder, maxRows int, metrics *telemetry.Metrics, logger telemetry.Logger) *Indexer {
	if maxRows <= 0 {
		maxRows = 2000
	}
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Indexer{
		store:    store,
		db:       db,
		embedder: embedder,
		maxRows:  maxRows,
		metrics:  metrics,
		logger:   logger,
	}
}

// collectionSpec maps one collection to its source query and document shape.
type collectionSpec struct {
	source domain.Source
	query  string
	build  func(row map[string]any) *Document
}

func (ix *Indexer) specs() map[string]collectionSpec {
	return map[string]collectionSpec{
		"patents": {
			source: domain.SourcePatents,
			query: fmt.Sprintf(`SELECT id, patent_number, title, abstract, primary_assignee, grant_date
				FROM patents ORDER BY grant_date DESC LIMIT %d`, ix.maxRows),
			build: func(row map[string]any) *Document {
				id := idString(row["id"])
				if id == "" {
					return nil
				}
				return &Document{
					ID:         id,
					Collection: "patents",
					Title:      str(row["title"]),
					Snippet:    clip(str(row["abstract"]), 1000),
					URL:        entity.DetailURL(domain.SourcePatents, id),
					Date:       str(row["grant_date"]),
					Metadata: map[string]any{
						"patent_number": row["patent_number"],
						"assignee":      row["primary_assignee"],
						"grant_date":    row["grant_date"],
					},
				}
			},
		},
		"grants": {
			source: domain.SourceGrants,
			query: fmt.Sprintf(`SELECT id, title, abstract, organization, institute, total_cost, start_date
				FROM grants ORDER BY total_cost DESC LIMIT %d`, ix.maxRows),
			build: func(row map[string]any) *Document {
				id := idString(row["id"])
				if id == "" {
					return nil
				}
				return &Document{
					ID:         id,
					Collection: "grants",
					Title:      str(row["title"]),
					Snippet:    clip(str(row["abstract"]), 1000),
					URL:        entity.DetailURL(domain.SourceGrants, id),
					Date:       str(row["start_date"]),
					Metadata: map[string]any{
						"organization": row["organization"],
						"institute":    row["institute"],
						"total_cost":   row["total_cost"],
					},
				}
			},
		},
		"researchers": {
			source: domain.SourceResearchers,
			query: fmt.Sprintf(`SELECT id, name, h_index, topics, affiliations, primary_category
				FROM researchers ORDER BY h_index DESC LIMIT %d`, ix.maxRows),
			build: func(row map[string]any) *Document {
				id := idString(row["id"])
				name := str(row["name"])
				if id == "" || name == "" {
					return nil
				}
				return &Document{
					ID:         id,
					Collection: "researchers",
					Title:      fmt.Sprintf("%s (h-index: %v)", name, row["h_index"]),
					Snippet:    clip(str(row["topics"])+" "+str(row["affiliations"]), 1000),
					URL:        entity.DetailURL(domain.SourceResearchers, id),
					Metadata: map[string]any{
						"h_index":          row["h_index"],
						"primary_category": row["primary_category"],
					},
				}
			},
		},
		"policies": {
			source: domain.SourcePolicies,
			query: fmt.Sprintf(`SELECT id, title, summary, status, relevance_score, published_date
				FROM policies ORDER BY published_date DESC LIMIT %d`, ix.maxRows),
			build: func(row map[string]any) *Document {
				id := idString(row["id"])
				if id == "" {
					return nil
				}
				return &Document{
					ID:         id,
					Collection: "policies",
					Title:      str(row["title"]),
					Snippet:    clip(str(row["summary"]), 1000),
					URL:        entity.DetailURL(domain.SourcePolicies, id),
					Date:       str(row["published_date"]),
					Metadata: map[string]any{
						"status":          row["status"],
						"relevance_score": row["relevance_score"],
					},
				}
			},
		},
		"fda_calendar": {
			source: domain.SourceMarketData,
			query: fmt.Sprintf(`SELECT id, event_type, ticker, company, drug, indication, event_date, url
				FROM fda_events ORDER BY event_date DESC LIMIT %d`, ix.maxRows),
			build: func(row map[string]any) *Document {
				id := idString(row["id"])
				if id == "" {
					return nil
				}
				title := str(row["company"])
				if drug := str(row["drug"]); drug != "" {
					title += ": " + drug
				}
				if et := str(row["event_type"]); et != "" {
					title += " (" + et + ")"
				}
				return &Document{
					ID:         id,
					Collection: "fda_calendar",
					Title:      title,
					Snippet:    clip(str(row["indication"]), 1000),
					URL:        str(row["url"]),
					Date:       str(row["event_date"]),
					Metadata: map[string]any{
						"ticker":     row["ticker"],
						"company":    row["company"],
						"drug":       row["drug"],
						"event_type": row["event_type"],
						"event_date": row["event_date"],
					},
				}
			},
		},
	}
}

// Reindex rebuilds the named collections (all of them when empty) and
// returns per-collection indexed counts. A collection that fails reports
// its error in the result instead of aborting the rest.
func (ix *Indexer) Reindex(ctx context.Context, collections []string) map[string]any {
	if len(collections) == 0 {
		collections = Collections
	}
	specs := ix.specs()

	results := make(map[string]any, len(collections))
	for _, collection := range collections {
		spec, ok := specs[collection]
		if !ok {
			results[collection] = map[string]any{"error": "unknown collection: " + collection}
			continue
		}
		count, err := ix.reindexOne(ctx, collection, spec)
		if err != nil {
			ix.logger.Warn("reindex failed", "collection", collection, "error", err)
			results[collection] = map[string]any{"error": err.Error()}
			continue
		}
		if ix.metrics != nil {
			ix.metrics.IndexedDocuments.WithLabelValues(collection).Set(float64(count))
		}
		ix.logger.Info("collection reindexed", "collection", collection, "documents", count)
		results[collection] = count
	}
	return results
}

func (ix *Indexer) reindexOne(ctx context.Context, collection string, spec collectionSpec) (int, error) {
	result, err := ix.db.Execute(ctx, spec.source, spec.query)
	if err != nil {
		return 0, err
	}

	now := unixNow()
	batch := make([]*Document, 0, upsertBatchSize)
	count := 0
	for _, row := range result.Rows {
		doc := spec.build(row)
		if doc == nil {
			continue
		}
		vec, err := ix.embedder.Embed(ctx, embedding.Normalize(doc.Title+"\n"+doc.Snippet))
		if err != nil {
			return count, fmt.Errorf("embed document %s/%s: %w", collection, doc.ID, err)
		}
		doc.Embedding = vec
		doc.IndexedAt = now

		batch = append(batch, doc)
		if len(batch) >= upsertBatchSize {
			if err := ix.store.UpsertBatch(ctx, batch); err != nil {
				return count, err
			}
			count += len(batch)
			batch = batch[:0]
		}
	}
	if err := ix.store.UpsertBatch(ctx, batch); err != nil {
		return count, err
	}
	return count + len(batch), nil
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func clip(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// idString renders an id column; upstream ids arrive as strings or JSON
// numbers depending on the source schema.
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	case int:
		return strconv.Itoa(id)
	}
	return ""
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
