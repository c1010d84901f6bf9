package semantic

import (
	"context"
	"fmt"

	"neoquery/internal/domain"
)

const schemaDocsQuery = `
        SELECT table_name, description, key_columns, business_context, example_questions
        FROM _schema_docs
        ORDER BY table_name`

// SchemaDocs reads the per-database _schema_docs table, which carries the
// business context injected into the agent's system prompt. Missing docs are
// not an error.
func (s *Service) SchemaDocs(ctx context.Context, source domain.Source) []map[string]any {
	result, err := s.db.Execute(ctx, source, schemaDocsQuery)
	if err != nil {
		return []map[string]any{}
	}
	return rowsOf(result)
}

// AllSchemaContext gathers schema docs from every documented database,
// including the SEC service's own SQL endpoint.
func (s *Service) AllSchemaContext(ctx context.Context) map[string][]map[string]any {
	all := make(map[string][]map[string]any)
	for _, source := range []domain.Source{domain.SourceResearchers, domain.SourcePatents, domain.SourceGrants} {
		if docs := s.SchemaDocs(ctx, source); len(docs) > 0 {
			all[string(source)] = docs
		}
	}

	result, err := s.db.ExecuteSECSQL(ctx, "SELECT table_name, description, key_columns, business_context FROM _schema_docs")
	if err == nil && len(result.Rows) > 0 {
		all["sec_sentinel"] = result.Rows
	}

	return all
}

// RecentChanges summarizes new records across all databases in a trailing
// window. Each section degrades independently when its source is down.
func (s *Service) RecentChanges(ctx context.Context, days int) map[string]any {
	days = orDefault(days, 7)

	results := map[string]any{
		"period":    fmt.Sprintf("last %d days", days),
		"databases": map[string]any{},
		"_context": map[string]any{
			"insight": fmt.Sprintf("Summary of new data across all databases in the last %d days", days),
		},
	}
	databases := results["databases"].(map[string]any)

	// SEC filings feed plus aggregate counts.
	if filings, err := s.db.RecentFilings(ctx, days, 5); err != nil {
		databases["sec_sentinel"] = map[string]any{"error": err.Error()}
	} else {
		stats, _ := s.db.FilingStats(ctx)
		sample := []map[string]any{}
		for i, f := range filings {
			if i >= 3 {
				break
			}
			sample = append(sample, map[string]any{
				"ticker":       f["ticker"],
				"form_type":    f["form_type"],
				"filing_date":  f["filing_date"],
				"company_name": f["company_name"],
			})
		}
		databases["sec_sentinel"] = map[string]any{
			"recent_filings":     len(filings),
			"total_filings_week": statsTotal(stats),
			"sample":             sample,
		}
	}

	// Recently granted patents.
	patentsSummary := map[string]any{"new_patents": 0}
	countResult, err := s.db.Execute(ctx, "patents", fmt.Sprintf(`
        SELECT COUNT(*) as count,
               MAX(grant_date) as latest_date
        FROM patents
        WHERE grant_date >= date('now', '-%d days')`, days))
	if err == nil && len(countResult.Rows) > 0 {
		row := countResult.Rows[0]
		patentsSummary = map[string]any{
			"new_patents": row["count"],
			"latest_date": row["latest_date"],
		}
		if asFloat(row["count"]) > 0 {
			sample, err := s.db.Execute(ctx, "patents", fmt.Sprintf(`
        SELECT id, title, primary_assignee, grant_date
        FROM patents
        WHERE grant_date >= date('now', '-%d days')
        ORDER BY grant_date DESC LIMIT 3`, days))
			if err == nil {
				patentsSummary["sample"] = rowsOf(sample)
			}
		}
	}
	databases["patents"] = patentsSummary

	// Recently awarded grants.
	grantsSummary := map[string]any{"new_grants": 0}
	grantsResult, err := s.db.Execute(ctx, "grants", fmt.Sprintf(`
        SELECT COUNT(*) as count,
               MAX(award_notice_date) as latest_date,
               SUM(total_cost) as total_new_funding
        FROM grants
        WHERE award_notice_date >= date('now', '-%d days')`, days))
	if err == nil && len(grantsResult.Rows) > 0 {
		row := grantsResult.Rows[0]
		grantsSummary = map[string]any{
			"new_grants":        row["count"],
			"latest_date":       row["latest_date"],
			"total_new_funding": row["total_new_funding"],
		}
	}
	databases["grants"] = grantsSummary

	// Researcher metric refreshes land on a weekly cadence.
	researchersSummary := map[string]any{"recently_updated": 0}
	researchersResult, err := s.db.Execute(ctx, "researchers", `
        SELECT COUNT(*) as count FROM researchers
        WHERE updated_at >= date('now', '-7 days')`)
	if err == nil && len(researchersResult.Rows) > 0 {
		researchersSummary = map[string]any{
			"recently_updated": researchersResult.Rows[0]["count"],
		}
	}
	databases["researchers"] = researchersSummary

	return results
}

func statsTotal(stats map[string]any) any {
	if stats == nil {
		return 0
	}
	if total, ok := stats["total"]; ok {
		return total
	}
	return 0
}
