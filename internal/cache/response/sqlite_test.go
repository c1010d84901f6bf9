package response

import (
	"context"
	"path/filepath"
	"testing"

	"neoquery/internal/domain"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "cache_test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedEntry(id string, cachedAt float64, vec []float32) *Entry {
	return &Entry{
		ID:        id,
		Question:  "question " + id,
		Embedding: vec,
		Answer:    "answer " + id,
		CachedAt:  cachedAt,
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()

	t.Run("stores and reads back every field", func(t *testing.T) {
		repo := openTestRepo(t)
		entry := &Entry{
			ID:        "abc123",
			Question:  "How many patents does Pfizer have?",
			Embedding: []float32{0.25, -0.5, 0.75},
			Answer:    "120 patents.",
			ToolCalls: []domain.ToolCall{{Tool: "get_patents", Input: map[string]any{"company": "pfizer"}, ResultPreview: "rows"}},
			Insights:  []string{"oncology heavy portfolio"},
			Entities:  []domain.Entity{{Type: domain.EntityPatent, ID: "US123", DisplayName: "Vaccine composition", URL: "/patent/US123"}},
			CachedAt:  1234.5,
		}
		if err := repo.Upsert(ctx, entry); err != nil {
			t.Fatalf("Upsert: %v", err)
		}

		got, err := repo.GetByID(ctx, "abc123")
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got == nil {
			t.Fatal("entry not found")
		}
		if got.Question != entry.Question || got.Answer != entry.Answer || got.CachedAt != 1234.5 {
			t.Errorf("got %+v", got)
		}
		if len(got.Embedding) != 3 || got.Embedding[1] != -0.5 {
			t.Errorf("embedding = %v", got.Embedding)
		}
		if len(got.ToolCalls) != 1 || got.ToolCalls[0].Tool != "get_patents" {
			t.Errorf("tool calls = %v", got.ToolCalls)
		}
		if got.ToolCalls[0].Input["company"] != "pfizer" {
			t.Errorf("tool input = %v", got.ToolCalls[0].Input)
		}
		if len(got.Insights) != 1 || got.Insights[0] != "oncology heavy portfolio" {
			t.Errorf("insights = %v", got.Insights)
		}
		if len(got.Entities) != 1 || got.Entities[0].URL != "/patent/US123" {
			t.Errorf("entities = %v", got.Entities)
		}
	})

	t.Run("nil payload slices come back empty", func(t *testing.T) {
		repo := openTestRepo(t)
		if err := repo.Upsert(ctx, seedEntry("bare", 1, []float32{1})); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		got, err := repo.GetByID(ctx, "bare")
		if err != nil || got == nil {
			t.Fatalf("GetByID: %v, %v", got, err)
		}
		if len(got.ToolCalls) != 0 || len(got.Insights) != 0 || len(got.Entities) != 0 {
			t.Errorf("payloads not empty: %+v", got)
		}
	})

	t.Run("missing id is a nil miss", func(t *testing.T) {
		repo := openTestRepo(t)
		got, err := repo.GetByID(ctx, "nope")
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got != nil {
			t.Errorf("got %+v for a missing id", got)
		}
	})

	t.Run("upsert replaces the entry with the same id", func(t *testing.T) {
		repo := openTestRepo(t)
		repo.Upsert(ctx, seedEntry("dup", 1, []float32{1}))
		updated := seedEntry("dup", 2, []float32{0.5})
		updated.Answer = "revised answer"
		if err := repo.Upsert(ctx, updated); err != nil {
			t.Fatalf("Upsert: %v", err)
		}

		count, _ := repo.Count(ctx)
		if count != 1 {
			t.Errorf("count = %d, want 1", count)
		}
		got, _ := repo.GetByID(ctx, "dup")
		if got.Answer != "revised answer" || got.CachedAt != 2 {
			t.Errorf("got %+v", got)
		}
	})
}

func TestSQLiteRecent(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	for i, id := range []string{"old", "mid", "new"} {
		repo.Upsert(ctx, seedEntry(id, float64(100*(i+1)), []float32{1}))
	}

	t.Run("orders newest first", func(t *testing.T) {
		entries, err := repo.Recent(ctx, 10, 0)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(entries) != 3 || entries[0].ID != "new" || entries[2].ID != "old" {
			t.Errorf("order = %v", ids(entries))
		}
	})

	t.Run("cutoff excludes older entries", func(t *testing.T) {
		entries, err := repo.Recent(ctx, 10, 150)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(entries) != 2 || entries[0].ID != "new" || entries[1].ID != "mid" {
			t.Errorf("entries = %v", ids(entries))
		}
	})

	t.Run("limit truncates the window", func(t *testing.T) {
		entries, err := repo.Recent(ctx, 1, 0)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(entries) != 1 || entries[0].ID != "new" {
			t.Errorf("entries = %v", ids(entries))
		}
	})
}

func TestSQLiteBestMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the closest entry by cosine", func(t *testing.T) {
		repo := openTestRepo(t)
		repo.Upsert(ctx, seedEntry("x", 100, []float32{1, 0, 0}))
		repo.Upsert(ctx, seedEntry("y", 200, []float32{0, 1, 0}))
		repo.Upsert(ctx, seedEntry("z", 300, []float32{0, 0, 1}))

		entry, sim, err := repo.BestMatch(ctx, []float32{0.9, 0.1, 0}, 10)
		if err != nil {
			t.Fatalf("BestMatch: %v", err)
		}
		if entry == nil || entry.ID != "x" {
			t.Fatalf("best = %+v", entry)
		}
		if sim < 0.9 {
			t.Errorf("similarity = %v, want > 0.9", sim)
		}
	})

	t.Run("window limit only considers the newest entries", func(t *testing.T) {
		repo := openTestRepo(t)
		repo.Upsert(ctx, seedEntry("closest", 100, []float32{1, 0}))
		repo.Upsert(ctx, seedEntry("newest", 200, []float32{0, 1}))

		entry, sim, err := repo.BestMatch(ctx, []float32{1, 0}, 1)
		if err != nil {
			t.Fatalf("BestMatch: %v", err)
		}
		if entry == nil || entry.ID != "newest" {
			t.Errorf("best = %+v, want the only windowed candidate", entry)
		}
		if sim != 0 {
			t.Errorf("similarity = %v, want 0 for the orthogonal candidate", sim)
		}
	})

	t.Run("empty store is a nil miss", func(t *testing.T) {
		repo := openTestRepo(t)
		entry, sim, err := repo.BestMatch(ctx, []float32{1}, 10)
		if err != nil || entry != nil || sim != 0 {
			t.Errorf("got %+v, %v, %v", entry, sim, err)
		}
	})
}

func TestSQLiteMaintenance(t *testing.T) {
	ctx := context.Background()

	t.Run("delete oldest keeps the newest entries", func(t *testing.T) {
		repo := openTestRepo(t)
		for i, id := range []string{"a", "b", "c", "d"} {
			repo.Upsert(ctx, seedEntry(id, float64(i+1), []float32{1}))
		}
		if err := repo.DeleteOldest(ctx, 2); err != nil {
			t.Fatalf("DeleteOldest: %v", err)
		}
		entries, _ := repo.Recent(ctx, 10, 0)
		if len(entries) != 2 || entries[0].ID != "d" || entries[1].ID != "c" {
			t.Errorf("remaining = %v", ids(entries))
		}
	})

	t.Run("delete removes a single entry", func(t *testing.T) {
		repo := openTestRepo(t)
		repo.Upsert(ctx, seedEntry("gone", 1, []float32{1}))
		if err := repo.Delete(ctx, "gone"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if got, _ := repo.GetByID(ctx, "gone"); got != nil {
			t.Errorf("entry survived delete: %+v", got)
		}
	})

	t.Run("clear empties the table", func(t *testing.T) {
		repo := openTestRepo(t)
		repo.Upsert(ctx, seedEntry("one", 1, []float32{1}))
		repo.Upsert(ctx, seedEntry("two", 2, []float32{1}))
		if err := repo.Clear(ctx); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		if count, _ := repo.Count(ctx); count != 0 {
			t.Errorf("count = %d after clear", count)
		}
	})
}

func ids(entries []*Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
