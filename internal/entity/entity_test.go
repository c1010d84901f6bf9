package entity

import (
	"strings"
	"testing"

	"neoquery/internal/domain"
)

func TestFromRows(t *testing.T) {
	t.Run("researchers need id and name", func(t *testing.T) {
		rows := []map[string]any{
			{"id": "r1", "name": "Jennifer Doudna", "h_index": 140.0},
			{"id": "r2"},
			{"name": "No ID"},
		}
		entities := FromRows(domain.SourceResearchers, rows)

		if len(entities) != 1 {
			t.Fatalf("entities = %d, want 1", len(entities))
		}
		e := entities[0]
		if e.Type != domain.EntityResearcher || e.ID != "r1" {
			t.Errorf("entity = %+v", e)
		}
		if e.URL != "https://kdttalentscout.up.railway.app/researcher/r1" {
			t.Errorf("url = %s", e.URL)
		}
		if e.Meta != "h-index: 140" {
			t.Errorf("meta = %s", e.Meta)
		}
	})

	t.Run("missing h-index shows question mark", func(t *testing.T) {
		entities := FromRows(domain.SourceResearchers, []map[string]any{
			{"id": "r1", "name": "Unknown Impact"},
		})
		if entities[0].Meta != "h-index: ?" {
			t.Errorf("meta = %s", entities[0].Meta)
		}
	})

	t.Run("patents fall back to patent_id and ellipsize titles", func(t *testing.T) {
		long := strings.Repeat("x", 70)
		rows := []map[string]any{
			{"patent_id": "p1", "title": long, "patent_number": "US1234567"},
			{"id": "p2"},
		}
		entities := FromRows(domain.SourcePatents, rows)

		if len(entities) != 2 {
			t.Fatalf("entities = %d, want 2", len(entities))
		}
		if entities[0].DisplayName != strings.Repeat("x", 60)+"..." {
			t.Errorf("display_name = %q", entities[0].DisplayName)
		}
		if entities[0].Meta != "US1234567" {
			t.Errorf("meta = %s", entities[0].Meta)
		}
		if entities[1].DisplayName != "Untitled Patent" {
			t.Errorf("display_name = %q", entities[1].DisplayName)
		}
	})

	t.Run("grants format total cost as currency", func(t *testing.T) {
		rows := []map[string]any{
			{"id": "g1", "title": "CRISPR delivery", "total_cost": 2345678.0},
			{"id": "g2", "title": "Unfunded"},
			{"grant_id": "g3", "title": "Zero", "total_cost": 0.0},
		}
		entities := FromRows(domain.SourceGrants, rows)

		if entities[0].Meta != "$2,345,678" {
			t.Errorf("meta = %s", entities[0].Meta)
		}
		if entities[1].Meta != "" || entities[2].Meta != "" {
			t.Errorf("empty-cost meta = %q, %q", entities[1].Meta, entities[2].Meta)
		}
		if entities[2].ID != "g3" {
			t.Errorf("grant_id fallback gave %s", entities[2].ID)
		}
	})

	t.Run("policies carry status", func(t *testing.T) {
		entities := FromRows(domain.SourcePolicies, []map[string]any{
			{"bill_id": "hr-123", "title": "Research Funding Act", "status": "In Committee"},
		})
		e := entities[0]
		if e.Type != domain.EntityPolicy || e.Meta != "In Committee" {
			t.Errorf("entity = %+v", e)
		}
		if e.URL != "https://policywatch.up.railway.app/bill/hr-123" {
			t.Errorf("url = %s", e.URL)
		}
	})

	t.Run("portfolio companies default their name", func(t *testing.T) {
		entities := FromRows(domain.SourcePortfolio, []map[string]any{
			{"company_id": "c9", "modality": "mRNA"},
		})
		e := entities[0]
		if e.DisplayName != "Unknown Company" || e.Meta != "mRNA" {
			t.Errorf("entity = %+v", e)
		}
	})

	t.Run("trials key on nct_id and link to ClinicalTrials.gov", func(t *testing.T) {
		long := strings.Repeat("t", 55)
		rows := []map[string]any{
			{"nct_id": "NCT01234567", "title": long, "status": "RECRUITING", "phase": "PHASE3"},
			{"id": "ignored-without-nct"},
		}
		entities := FromRows(domain.SourceMarketData, rows)

		if len(entities) != 1 {
			t.Fatalf("entities = %d, want 1", len(entities))
		}
		e := entities[0]
		if e.Type != domain.EntityClinicalTrial {
			t.Errorf("type = %s", e.Type)
		}
		if e.DisplayName != strings.Repeat("t", 50)+"..." {
			t.Errorf("display_name = %q", e.DisplayName)
		}
		if e.URL != "https://clinicaltrials.gov/study/NCT01234567" {
			t.Errorf("url = %s", e.URL)
		}
		if e.Meta != "RECRUITING | PHASE3" {
			t.Errorf("meta = %s", e.Meta)
		}
	})

	t.Run("numeric ids render without decimals", func(t *testing.T) {
		entities := FromRows(domain.SourceResearchers, []map[string]any{
			{"id": 4211.0, "name": "Numeric"},
		})
		if entities[0].ID != "4211" {
			t.Errorf("id = %s", entities[0].ID)
		}
	})

	t.Run("caps extraction at ten rows", func(t *testing.T) {
		var rows []map[string]any
		for i := 0; i < 15; i++ {
			rows = append(rows, map[string]any{"id": float64(i), "name": "n"})
		}
		if got := len(FromRows(domain.SourceResearchers, rows)); got != 10 {
			t.Errorf("entities = %d, want 10", got)
		}
	})

	t.Run("unlinkable sources return nothing", func(t *testing.T) {
		if got := FromRows(domain.SourceSECSentinel, []map[string]any{{"id": "x"}}); got != nil {
			t.Errorf("entities = %v", got)
		}
	})
}

func TestDedupe(t *testing.T) {
	entities := []domain.Entity{
		{Type: "patent", ID: "p1", DisplayName: "first"},
		{Type: "grant", ID: "p1"},
		{Type: "patent", ID: "p1", DisplayName: "second"},
		{Type: "patent", ID: "p2"},
	}

	unique := Dedupe(entities)

	if len(unique) != 3 {
		t.Fatalf("unique = %d, want 3", len(unique))
	}
	if unique[0].DisplayName != "first" {
		t.Error("first occurrence not preserved")
	}
	if unique[1].Type != "grant" {
		t.Error("same id under different type dropped")
	}
}
