package docindex

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"neoquery/internal/domain"
	"neoquery/internal/embedding"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "index_test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedDoc(t *testing.T, store *Store, emb embedding.Embedder, collection, id, title, snippet, date string) {
	t.Helper()
	vec, err := emb.Embed(context.Background(), embedding.Normalize(title+"\n"+snippet))
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	err = store.UpsertBatch(context.Background(), []*Document{{
		ID:         id,
		Collection: collection,
		Title:      title,
		Snippet:    snippet,
		URL:        "https://example.test/" + collection + "/" + id,
		Date:       date,
		Metadata:   map[string]any{"seed": true},
		Embedding:  vec,
		IndexedAt:  1000,
	}})
	if err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	t.Run("stores and scans back every field", func(t *testing.T) {
		err := store.UpsertBatch(ctx, []*Document{{
			ID:         "p1",
			Collection: "patents",
			Title:      "Lipid nanoparticle composition",
			Snippet:    "A composition for mRNA delivery.",
			URL:        "https://example.test/patent/p1",
			Date:       "2024-03-01",
			Metadata:   map[string]any{"patent_number": "US123"},
			Embedding:  []float32{0.5, -0.25, 0.75},
			IndexedAt:  42,
		}})
		if err != nil {
			t.Fatalf("UpsertBatch: %v", err)
		}

		docs, err := store.Scan(ctx, "patents", "", "")
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		if len(docs) != 1 {
			t.Fatalf("expected 1 document, got %d", len(docs))
		}
		doc := docs[0]
		if doc.Title != "Lipid nanoparticle composition" || doc.Date != "2024-03-01" {
			t.Errorf("got %+v", doc)
		}
		if doc.Metadata["patent_number"] != "US123" {
			t.Errorf("metadata lost: %v", doc.Metadata)
		}
		if len(doc.Embedding) != 3 || doc.Embedding[1] != -0.25 {
			t.Errorf("embedding mangled: %v", doc.Embedding)
		}
	})

	t.Run("upsert replaces by collection and id", func(t *testing.T) {
		err := store.UpsertBatch(ctx, []*Document{{
			ID:         "p1",
			Collection: "patents",
			Title:      "Updated title",
			Embedding:  []float32{1},
			IndexedAt:  43,
		}})
		if err != nil {
			t.Fatalf("UpsertBatch: %v", err)
		}
		docs, err := store.Scan(ctx, "patents", "", "")
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		if len(docs) != 1 || docs[0].Title != "Updated title" {
			t.Errorf("expected replacement, got %+v", docs)
		}
	})

	t.Run("date range filters scan", func(t *testing.T) {
		emb := embedding.NewLocalEmbedder()
		seedDoc(t, store, emb, "grants", "g1", "Old grant", "aging research", "2020-01-01")
		seedDoc(t, store, emb, "grants", "g2", "New grant", "aging research", "2025-06-01")

		docs, err := store.Scan(ctx, "grants", "2024-01-01", "")
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		if len(docs) != 1 || docs[0].ID != "g2" {
			t.Errorf("date_from filter failed: %+v", docs)
		}

		docs, err = store.Scan(ctx, "grants", "", "2021-01-01")
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		if len(docs) != 1 || docs[0].ID != "g1" {
			t.Errorf("date_to filter failed: %+v", docs)
		}
	})

	t.Run("counts cover every collection", func(t *testing.T) {
		counts, err := store.Counts(ctx)
		if err != nil {
			t.Fatalf("Counts: %v", err)
		}
		if counts["patents"] != 1 || counts["grants"] != 2 {
			t.Errorf("counts: %v", counts)
		}
		if _, ok := counts["policies"]; !ok {
			t.Error("empty collections should still report a count")
		}
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	emb := embedding.NewLocalEmbedder()
	svc := NewService(store, emb, nil)

	seedDoc(t, store, emb, "patents", "p1", "CRISPR gene editing system", "Guide RNA compositions for genome editing", "2024-01-10")
	seedDoc(t, store, emb, "patents", "p2", "Lipid nanoparticle formulation", "Delivery vehicles for mRNA vaccines", "2024-02-20")
	seedDoc(t, store, emb, "grants", "g1", "CRISPR screening of tumor suppressors", "Genome editing screens in cancer models", "2023-05-01")

	t.Run("ranks the matching document first", func(t *testing.T) {
		results, err := svc.Search(ctx, "CRISPR gene editing system", nil, 10, "", "")
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}
		if results[0].ID != "p1" {
			t.Errorf("expected p1 first, got %s (score %v)", results[0].ID, results[0].Score)
		}
		if results[0].Score < results[1].Score {
			t.Error("results not sorted by score")
		}
	})

	t.Run("restricts to requested collections", func(t *testing.T) {
		results, err := svc.Search(ctx, "CRISPR", []string{"grants"}, 10, "", "")
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		for _, r := range results {
			if r.Source != "grants" {
				t.Errorf("unexpected source %s", r.Source)
			}
		}
	})

	t.Run("clamps result count", func(t *testing.T) {
		results, err := svc.Search(ctx, "gene", nil, 1, "", "")
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 1 {
			t.Errorf("expected 1 result, got %d", len(results))
		}
	})

	t.Run("exact repeat scores 1.0", func(t *testing.T) {
		results, err := svc.Search(ctx, "Lipid nanoparticle formulation\nDelivery vehicles for mRNA vaccines", []string{"patents"}, 1, "", "")
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 1 || results[0].Score < 0.999 {
			t.Errorf("expected self-similarity 1.0, got %+v", results)
		}
	})
}

// fakeQuerier serves canned rows per source table.
type fakeQuerier struct {
	rows map[domain.Source][]map[string]any
}

func (f *fakeQuerier) Execute(_ context.Context, source domain.Source, query string) (*domain.QueryResult, error) {
	rows, ok := f.rows[source]
	if !ok {
		return nil, fmt.Errorf("no fixture for %s", source)
	}
	return &domain.QueryResult{Rows: rows, RowCount: len(rows)}, nil
}

func TestReindex(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	emb := embedding.NewLocalEmbedder()

	db := &fakeQuerier{rows: map[domain.Source][]map[string]any{
		domain.SourcePatents: {
			{"id": "p1", "patent_number": "US111", "title": "Antibody conjugate", "abstract": "An ADC.", "primary_assignee": "Genentech", "grant_date": "2024-05-01"},
			{"id": float64(2), "patent_number": "US222", "title": "Second patent", "abstract": "", "primary_assignee": "Moderna", "grant_date": "2024-04-01"},
			{"patent_number": "US333", "title": "No id, skipped"},
		},
		domain.SourceResearchers: {
			{"id": "r1", "name": "Ada Chen", "h_index": float64(44), "topics": `["immunology"]`, "affiliations": `["MIT"]`, "primary_category": "immunology"},
		},
	}}
	ix := NewIndexer(store, db, emb, 100, nil, nil)

	t.Run("indexes requested collections", func(t *testing.T) {
		results := ix.Reindex(ctx, []string{"patents", "researchers"})
		if results["patents"] != 2 {
			t.Errorf("patents: %v", results["patents"])
		}
		if results["researchers"] != 1 {
			t.Errorf("researchers: %v", results["researchers"])
		}

		docs, err := store.Scan(ctx, "researchers", "", "")
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		if len(docs) != 1 || !strings.Contains(docs[0].Title, "Ada Chen (h-index: 44)") {
			t.Errorf("researcher title: %+v", docs)
		}
	})

	t.Run("numeric ids become strings", func(t *testing.T) {
		docs, err := store.Scan(ctx, "patents", "", "")
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		ids := map[string]bool{}
		for _, d := range docs {
			ids[d.ID] = true
		}
		if !ids["p1"] || !ids["2"] {
			t.Errorf("ids: %v", ids)
		}
	})

	t.Run("failing collection reports its error", func(t *testing.T) {
		results := ix.Reindex(ctx, []string{"grants"})
		section, ok := results["grants"].(map[string]any)
		if !ok || section["error"] == nil {
			t.Errorf("expected error section, got %v", results["grants"])
		}
	})

	t.Run("unknown collection rejected", func(t *testing.T) {
		results := ix.Reindex(ctx, []string{"filings"})
		section, ok := results["filings"].(map[string]any)
		if !ok || !strings.Contains(fmt.Sprint(section["error"]), "unknown collection") {
			t.Errorf("got %v", results["filings"])
		}
	})
}
