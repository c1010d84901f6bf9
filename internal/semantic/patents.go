package semantic

import (
	"context"
	"fmt"
	"strings"
)

// PatentFilter narrows a patent search. Days restricts to patents granted in
// the trailing window.
type PatentFilter struct {
	Assignee string
	Inventor string
	CPCCode  string
	Days     int
	Keyword  string
	Limit    int
}

// Patents searches patents ordered by grant date.
func (s *Service) Patents(ctx context.Context, f PatentFilter) (map[string]any, error) {
	var conditions []string
	joins := ""

	if f.Assignee != "" {
		conditions = append(conditions, like("p.primary_assignee", f.Assignee))
	}
	if f.Inventor != "" {
		joins = "JOIN inventors i ON p.id = i.patent_id"
		conditions = append(conditions, like("i.name", f.Inventor))
	}
	if f.CPCCode != "" {
		conditions = append(conditions, like("p.cpc_codes", f.CPCCode))
	}
	if f.Days > 0 {
		conditions = append(conditions, fmt.Sprintf("p.grant_date >= date('now', '-%d days')", f.Days))
	}
	if f.Keyword != "" {
		conditions = append(conditions, fmt.Sprintf("(%s OR %s)", like("p.title", f.Keyword), like("p.abstract", f.Keyword)))
	}

	where := "1=1"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
        SELECT DISTINCT p.id, p.patent_number, p.title, p.grant_date, p.filing_date,
               p.primary_assignee, p.cpc_codes, p.claims_count
        FROM patents p
        %s
        WHERE %s
        ORDER BY p.grant_date DESC
        LIMIT %d`, joins, where, orDefault(f.Limit, 20))

	result, err := s.db.Execute(ctx, "patents", query)
	if err != nil {
		return nil, err
	}
	return resultMap(result), nil
}

// PatentPortfolio summarizes a company's patent holdings: the most recent
// fifty patents plus aggregate stats.
func (s *Service) PatentPortfolio(ctx context.Context, assignee string) (map[string]any, error) {
	patentsQuery := fmt.Sprintf(`
        SELECT id, patent_number, title, grant_date, cpc_codes, claims_count
        FROM patents
        WHERE %s
        ORDER BY grant_date DESC
        LIMIT 50`, like("primary_assignee", assignee))

	patents, err := s.db.Execute(ctx, "patents", patentsQuery)
	if err != nil {
		return nil, err
	}

	statsQuery := fmt.Sprintf(`
        SELECT
            COUNT(*) as total_patents,
            MIN(grant_date) as earliest_patent,
            MAX(grant_date) as latest_patent,
            AVG(claims_count) as avg_claims
        FROM patents
        WHERE %s`, like("primary_assignee", assignee))

	stats, err := s.db.Execute(ctx, "patents", statsQuery)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"assignee":  assignee,
		"summary":   firstRow(stats),
		"patents":   rowsOf(patents),
		"row_count": patents.RowCount,
		"_context": map[string]any{
			"insight": fmt.Sprintf("Patent portfolio analysis for %s", assignee),
		},
	}, nil
}

// InventorsByCompany lists the most prolific inventors on a company's patents.
func (s *Service) InventorsByCompany(ctx context.Context, assignee string, limit int) (map[string]any, error) {
	query := fmt.Sprintf(`
        SELECT i.name, COUNT(*) as patent_count,
               GROUP_CONCAT(DISTINCT p.cpc_codes) as technology_areas
        FROM inventors i
        JOIN patents p ON i.patent_id = p.id
        WHERE %s
        GROUP BY i.name
        ORDER BY patent_count DESC
        LIMIT %d`, like("p.primary_assignee", assignee), orDefault(limit, 20))

	result, err := s.db.Execute(ctx, "patents", query)
	if err != nil {
		return nil, err
	}

	out := resultMap(result)
	out["_context"] = map[string]any{
		"assignee": assignee,
		"insight":  fmt.Sprintf("Prolific inventors at %s - potential key personnel", assignee),
	}
	return out, nil
}

// PatentsByTopic searches patent titles and abstracts for a technology area.
func (s *Service) PatentsByTopic(ctx context.Context, keywords string, limit int) (map[string]any, error) {
	query := fmt.Sprintf(`
        SELECT id, patent_number, title, grant_date, primary_assignee, cpc_codes, abstract
        FROM patents
        WHERE %s OR %s
        ORDER BY grant_date DESC
        LIMIT %d`, like("title", keywords), like("abstract", keywords), orDefault(limit, 20))

	result, err := s.db.Execute(ctx, "patents", query)
	if err != nil {
		return nil, err
	}

	out := resultMap(result)
	out["_context"] = map[string]any{
		"keywords": keywords,
		"insight":  fmt.Sprintf("Patent landscape for '%s'", keywords),
	}
	return out, nil
}
