package semantic

import (
	"context"
	"fmt"
	"strings"
)

// ResearcherFilter narrows a researcher search. Zero values mean "no filter";
// Limit defaults to 20.
type ResearcherFilter struct {
	MinHIndex   int
	Topic       string
	Affiliation string
	Limit       int
}

// Researchers finds researchers ordered by h-index.
func (s *Service) Researchers(ctx context.Context, f ResearcherFilter) (map[string]any, error) {
	var conditions []string
	if f.MinHIndex > 0 {
		conditions = append(conditions, fmt.Sprintf("h_index >= %d", f.MinHIndex))
	}
	if f.Topic != "" {
		conditions = append(conditions, like("topics", f.Topic))
	}
	if f.Affiliation != "" {
		conditions = append(conditions, like("affiliations", f.Affiliation))
	}
	where := "1=1"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
        SELECT id, name, h_index, slope, affiliations, topics, primary_category,
               works_count, cited_by_count
        FROM researchers
        WHERE %s
        ORDER BY h_index DESC
        LIMIT %d`, where, orDefault(f.Limit, 20))

	result, err := s.db.Execute(ctx, "researchers", query)
	if err != nil {
		return nil, err
	}
	return resultMap(result), nil
}

// ResearcherProfile looks up researchers by name and annotates each row with
// a career trajectory reading derived from h-index slope.
func (s *Service) ResearcherProfile(ctx context.Context, name string) (map[string]any, error) {
	query := fmt.Sprintf(`
        SELECT r.*,
               (SELECT GROUP_CONCAT(year || ':' || h_index, ', ')
                FROM h_index_history
                WHERE researcher_id = r.id
                ORDER BY year DESC
                LIMIT 10) as recent_history
        FROM researchers r
        WHERE r.name LIKE '%%%s%%'
        LIMIT 5`, escape(name))

	result, err := s.db.Execute(ctx, "researchers", query)
	if err != nil {
		return nil, err
	}

	// rows may be shared with the query cache; annotate copies
	annotated := make([]map[string]any, len(result.Rows))
	for i, row := range result.Rows {
		clone := make(map[string]any, len(row)+1)
		for k, v := range row {
			clone[k] = v
		}
		clone["trajectory"] = trajectory(asFloat(row["slope"]), asFloat(row["h_index"]))
		annotated[i] = clone
	}
	out := resultMap(result)
	out["rows"] = annotated
	return out, nil
}

func trajectory(slope, hIndex float64) string {
	switch {
	case slope > 3 && hIndex < 60:
		return "Rising Star - fast-growing impact"
	case slope > 1.5:
		return "Growing - strong upward trend"
	case slope > 0:
		return "Stable - steady output"
	default:
		return "Established - mature career"
	}
}

// RisingStarsFilter tunes the rising-stars search. Zero values take the
// defaults: slope 2.0, h-index 15 to 80, limit 20.
type RisingStarsFilter struct {
	MinSlope  float64
	MinHIndex int
	MaxHIndex int
	Topic     string
	Limit     int
}

// RisingStars finds researchers whose h-index is growing fastest.
func (s *Service) RisingStars(ctx context.Context, f RisingStarsFilter) (map[string]any, error) {
	if f.MinSlope <= 0 {
		f.MinSlope = 2.0
	}
	f.MinHIndex = orDefault(f.MinHIndex, 15)
	f.MaxHIndex = orDefault(f.MaxHIndex, 80)

	topicFilter := ""
	if f.Topic != "" {
		topicFilter = "AND " + like("topics", f.Topic)
	}

	query := fmt.Sprintf(`
        SELECT id, name, h_index, slope, affiliations, topics, primary_category
        FROM researchers
        WHERE slope >= %g
          AND h_index >= %d
          AND h_index <= %d
          %s
        ORDER BY slope DESC
        LIMIT %d`, f.MinSlope, f.MinHIndex, f.MaxHIndex, topicFilter, orDefault(f.Limit, 20))

	result, err := s.db.Execute(ctx, "researchers", query)
	if err != nil {
		return nil, err
	}

	out := resultMap(result)
	out["_context"] = map[string]any{
		"description": "Rising stars are researchers with h-index growth rate above peers",
		"criteria":    fmt.Sprintf("slope >= %g, h-index %d-%d", f.MinSlope, f.MinHIndex, f.MaxHIndex),
		"insight":     "High slope indicates rapid career growth - good candidates for collaboration or hiring",
	}
	return out, nil
}

// ResearchersByTopic lists the top researchers in one topic area.
func (s *Service) ResearchersByTopic(ctx context.Context, topic string, limit int) (map[string]any, error) {
	query := fmt.Sprintf(`
        SELECT id, name, h_index, slope, affiliations, topics, primary_category
        FROM researchers
        WHERE %s
        ORDER BY h_index DESC
        LIMIT %d`, like("topics", topic), orDefault(limit, 20))

	result, err := s.db.Execute(ctx, "researchers", query)
	if err != nil {
		return nil, err
	}

	out := resultMap(result)
	out["_context"] = map[string]any{
		"topic":   topic,
		"insight": fmt.Sprintf("Top researchers by h-index in %s", topic),
	}
	return out, nil
}
