package semantic

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"neoquery/internal/domain"
)

// GrantFilter narrows a grant search.
type GrantFilter struct {
	Organization string
	PIName       string
	Mechanism    string
	MinAmount    int
	Institute    string
	Keyword      string
	Limit        int
}

// Grants searches grants ordered by total cost.
func (s *Service) Grants(ctx context.Context, f GrantFilter) (map[string]any, error) {
	var conditions []string
	joins := ""

	if f.Organization != "" {
		conditions = append(conditions, like("g.organization", f.Organization))
	}
	if f.PIName != "" {
		joins = "JOIN principal_investigators pi ON g.id = pi.grant_id"
		conditions = append(conditions, like("pi.name", f.PIName))
	}
	if f.Mechanism != "" {
		conditions = append(conditions, like("g.mechanism", f.Mechanism))
	}
	if f.MinAmount > 0 {
		conditions = append(conditions, fmt.Sprintf("g.total_cost >= %d", f.MinAmount))
	}
	if f.Institute != "" {
		conditions = append(conditions, like("g.institute", f.Institute))
	}
	if f.Keyword != "" {
		conditions = append(conditions, fmt.Sprintf("(%s OR %s)", like("g.title", f.Keyword), like("g.abstract", f.Keyword)))
	}

	where := "1=1"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
        SELECT DISTINCT g.id, g.title, g.organization, g.mechanism, g.institute,
               g.total_cost, g.start_date, g.end_date, g.fiscal_year
        FROM grants g
        %s
        WHERE %s
        ORDER BY g.total_cost DESC
        LIMIT %d`, joins, where, orDefault(f.Limit, 20))

	result, err := s.db.Execute(ctx, "grants", query)
	if err != nil {
		return nil, err
	}
	return resultMap(result), nil
}

// FundingSummary aggregates an organization's research funding: totals, a
// mechanism breakdown, and the ten largest grants. The three queries run
// concurrently.
func (s *Service) FundingSummary(ctx context.Context, organization string) (map[string]any, error) {
	orgClause := like("organization", organization)

	totalQuery := fmt.Sprintf(`
        SELECT
            COUNT(*) as grant_count,
            SUM(total_cost) as total_funding,
            AVG(total_cost) as avg_grant_size,
            MIN(start_date) as earliest_grant,
            MAX(start_date) as latest_grant
        FROM grants
        WHERE %s`, orgClause)

	mechanismQuery := fmt.Sprintf(`
        SELECT mechanism, COUNT(*) as count, SUM(total_cost) as funding
        FROM grants
        WHERE %s
        GROUP BY mechanism
        ORDER BY funding DESC
        LIMIT 10`, orgClause)

	topQuery := fmt.Sprintf(`
        SELECT id, title, mechanism, total_cost, start_date
        FROM grants
        WHERE %s
        ORDER BY total_cost DESC
        LIMIT 10`, orgClause)

	results, errs := s.executeAll(ctx, "grants", totalQuery, mechanismQuery, topQuery)
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return map[string]any{
		"organization": organization,
		"summary":      firstRow(results[0]),
		"by_mechanism": rowsOf(results[1]),
		"top_grants":   rowsOf(results[2]),
		"_context": map[string]any{
			"insight": fmt.Sprintf("Research funding analysis for %s", organization),
		},
	}, nil
}

// PIsByOrganization lists the top-funded principal investigators at an
// organization.
func (s *Service) PIsByOrganization(ctx context.Context, organization string, limit int) (map[string]any, error) {
	query := fmt.Sprintf(`
        SELECT pi.name, COUNT(*) as grant_count, SUM(g.total_cost) as total_funding
        FROM principal_investigators pi
        JOIN grants g ON pi.grant_id = g.id
        WHERE %s
        GROUP BY pi.name
        ORDER BY total_funding DESC
        LIMIT %d`, like("g.organization", organization), orDefault(limit, 20))

	result, err := s.db.Execute(ctx, "grants", query)
	if err != nil {
		return nil, err
	}

	out := resultMap(result)
	out["_context"] = map[string]any{
		"organization": organization,
		"insight":      fmt.Sprintf("Top-funded researchers at %s", organization),
	}
	return out, nil
}

// GrantsByTopic searches grant titles and abstracts for a research topic.
func (s *Service) GrantsByTopic(ctx context.Context, keywords string, limit int) (map[string]any, error) {
	query := fmt.Sprintf(`
        SELECT id, title, organization, mechanism, institute, total_cost, start_date
        FROM grants
        WHERE %s OR %s
        ORDER BY total_cost DESC
        LIMIT %d`, like("title", keywords), like("abstract", keywords), orDefault(limit, 20))

	result, err := s.db.Execute(ctx, "grants", query)
	if err != nil {
		return nil, err
	}

	out := resultMap(result)
	out["_context"] = map[string]any{
		"keywords": keywords,
		"insight":  fmt.Sprintf("Research funding landscape for '%s'", keywords),
	}
	return out, nil
}

// executeAll runs several statements against one source concurrently,
// preserving input order in the results.
func (s *Service) executeAll(ctx context.Context, source domain.Source, queries ...string) ([]*domain.QueryResult, []error) {
	results := make([]*domain.QueryResult, len(queries))
	errs := make([]error, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			results[i], errs[i] = s.db.Execute(ctx, source, q)
		}(i, q)
	}
	wg.Wait()

	return results, errs
}
