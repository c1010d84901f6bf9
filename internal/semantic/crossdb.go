package semantic

import (
	"context"
	"fmt"
	"sync"

	"neoquery/internal/domain"
)

// SearchEntity probes every source for an organization or person name. Each
// probe failure is skipped rather than failing the search, so a degraded
// source only narrows the answer.
func (s *Service) SearchEntity(ctx context.Context, name string) map[string]any {
	linksQuery := fmt.Sprintf(`
        SELECT * FROM entity_links
        WHERE %s
           OR %s
           OR %s
           OR %s
        LIMIT 5`,
		like("canonical_name", name),
		like("aliases", name),
		like("patent_assignee_name", name),
		like("grant_org_name", name))

	patentsQuery := fmt.Sprintf(`
        SELECT COUNT(*) as count FROM patents
        WHERE %s`, like("primary_assignee", name))

	grantsQuery := fmt.Sprintf(`
        SELECT COUNT(*) as count, SUM(total_cost) as total_funding
        FROM grants WHERE %s`, like("organization", name))

	researchersQuery := fmt.Sprintf(`
        SELECT COUNT(*) as count FROM researchers
        WHERE %s`, like("affiliations", name))

	var (
		wg          sync.WaitGroup
		links       *domain.QueryResult
		patents     *domain.QueryResult
		grants      *domain.QueryResult
		researchers *domain.QueryResult
	)
	probe := func(dst **domain.QueryResult, source domain.Source, query string) {
		defer wg.Done()
		if r, err := s.db.Execute(ctx, source, query); err == nil {
			*dst = r
		}
	}
	wg.Add(4)
	go probe(&links, "grants", linksQuery)
	go probe(&patents, "patents", patentsQuery)
	go probe(&grants, "grants", grantsQuery)
	go probe(&researchers, "researchers", researchersQuery)
	wg.Wait()

	results := map[string]any{
		"query":    name,
		"found_in": []string{},
		"details":  map[string]any{},
	}
	foundIn := []string{}
	details := map[string]any{}

	if links != nil && len(links.Rows) > 0 {
		results["entity_links"] = links.Rows
	}
	if patents != nil && len(patents.Rows) > 0 && asFloat(patents.Rows[0]["count"]) > 0 {
		foundIn = append(foundIn, "patents")
		details["patents"] = map[string]any{
			"count": patents.Rows[0]["count"],
			"type":  "assignee",
		}
	}
	if grants != nil && len(grants.Rows) > 0 && asFloat(grants.Rows[0]["count"]) > 0 {
		foundIn = append(foundIn, "grants")
		details["grants"] = map[string]any{
			"count":         grants.Rows[0]["count"],
			"total_funding": grants.Rows[0]["total_funding"],
		}
	}
	if researchers != nil && len(researchers.Rows) > 0 && asFloat(researchers.Rows[0]["count"]) > 0 {
		foundIn = append(foundIn, "researchers")
		details["researchers"] = map[string]any{
			"affiliated_count": researchers.Rows[0]["count"],
		}
	}

	results["found_in"] = foundIn
	results["details"] = details
	results["_context"] = map[string]any{
		"insight": fmt.Sprintf("Cross-database search for '%s'", name),
	}
	return results
}

// CompanyProfile assembles a unified view of one company: patent portfolio,
// funding summary, and affiliated researchers. The three sections load
// concurrently and fail independently.
func (s *Service) CompanyProfile(ctx context.Context, name string) map[string]any {
	profile := map[string]any{
		"name": name,
	}

	var (
		wg          sync.WaitGroup
		patents     any
		grants      any
		researchers any
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		if p, err := s.PatentPortfolio(ctx, name); err != nil {
			patents = map[string]any{"error": err.Error()}
		} else {
			patents = p
		}
	}()
	go func() {
		defer wg.Done()
		if g, err := s.FundingSummary(ctx, name); err != nil {
			grants = map[string]any{"error": err.Error()}
		} else {
			grants = g
		}
	}()
	go func() {
		defer wg.Done()
		query := fmt.Sprintf(`
            SELECT id, name, h_index, slope, primary_category
            FROM researchers
            WHERE %s
            ORDER BY h_index DESC
            LIMIT 10`, like("affiliations", name))
		r, err := s.db.Execute(ctx, "researchers", query)
		if err != nil {
			researchers = map[string]any{"error": err.Error()}
			return
		}
		researchers = map[string]any{
			"top_researchers": rowsOf(r),
			"count":           len(r.Rows),
		}
	}()
	wg.Wait()

	profile["patents"] = patents
	profile["grants"] = grants
	profile["researchers"] = researchers
	profile["_context"] = map[string]any{
		"insight": fmt.Sprintf("360-degree view of %s across patents, grants, and researchers", name),
	}
	return profile
}
