package router

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"neoquery/internal/domain"
)

// formatScalar renders a single Tier 1 value. Funding and cost columns come
// out as whole dollars, other numbers comma-grouped, everything else as-is.
func formatScalar(key string, value any) string {
	if strings.Contains(key, "funding") || strings.Contains(key, "cost") {
		if v, ok := toFloat(value); ok && v != 0 {
			return money(v)
		}
		return "$0"
	}
	if v, ok := toFloat(value); ok {
		if v == math.Trunc(v) {
			return humanize.Comma(int64(v))
		}
		return humanize.Commaf(v)
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

// formatAggregation renders a group-by result as a Markdown table, capped at
// fifteen rows.
func formatAggregation(result *domain.QueryResult, description string) string {
	if len(result.Rows) == 0 {
		return "No data found."
	}
	headers := result.Columns
	if len(headers) == 0 {
		headers = rowKeys(result.Rows[0])
	}

	titled := make([]string, len(headers))
	dashes := make([]string, len(headers))
	for i, h := range headers {
		titled[i] = titleWords(h)
		dashes[i] = strings.Repeat("-", len(h)+2)
	}
	lines := []string{
		"**" + description + "**",
		"",
		"| " + strings.Join(titled, " | ") + " |",
		"|" + strings.Join(dashes, "|") + "|",
	}

	for _, row := range capRows(result.Rows, 15) {
		values := make([]string, len(headers))
		for i, h := range headers {
			values[i] = clip(aggregationValue(h, row[h]), 30)
		}
		lines = append(lines, "| "+strings.Join(values, " | ")+" |")
	}
	return strings.Join(lines, "\n")
}

func aggregationValue(header string, value any) string {
	v, ok := toFloat(value)
	if !ok {
		if s, isStr := value.(string); isStr {
			return s
		}
		if value == nil {
			return ""
		}
		return fmt.Sprintf("%v", value)
	}
	switch {
	case header == "total_funding" || header == "total_cost":
		return money(v)
	case v != math.Trunc(v):
		return fmt.Sprintf("%.1f", v)
	default:
		return humanize.Comma(int64(v))
	}
}

// formatRows renders a Tier 2 result in the layout readers expect for the
// source: a Markdown table for most, a card for portfolio companies.
func formatRows(source domain.Source, result *domain.QueryResult) string {
	rows := result.Rows
	if len(rows) == 0 {
		return "No results found."
	}

	switch source {
	case domain.SourceResearchers:
		lines := []string{"| Name | H-Index | Slope | Category |", "|------|---------|-------|----------|"}
		for _, r := range capRows(rows, 10) {
			lines = append(lines, fmt.Sprintf("| %s | %s | %s | %s |",
				clip(cell(r, "name"), 30), cell(r, "h_index"), cell(r, "slope"), clip(cell(r, "primary_category"), 20)))
		}
		return strings.Join(lines, "\n")

	case domain.SourcePatents:
		lines := []string{"| Title | Patent # | Filing Date |", "|-------|----------|-------------|"}
		for _, r := range capRows(rows, 10) {
			lines = append(lines, fmt.Sprintf("| %s | %s | %s |",
				clip(cell(r, "title"), 40), cell(r, "patent_number"), cell(r, "filing_date")))
		}
		return strings.Join(lines, "\n")

	case domain.SourceGrants:
		lines := []string{"| Title | Amount | Institute |", "|-------|--------|-----------|"}
		for _, r := range capRows(rows, 10) {
			amount := "?"
			if v, ok := toFloat(r["total_cost"]); ok && v != 0 {
				amount = money(v)
			}
			lines = append(lines, fmt.Sprintf("| %s | %s | %s |",
				clip(cell(r, "title"), 40), amount, clip(cell(r, "institute"), 20)))
		}
		return strings.Join(lines, "\n")

	case domain.SourcePortfolio:
		r := rows[0]
		return fmt.Sprintf("**%s**\n- Modality: %s\n- Advantage: %s\n- Indications: %s",
			cell(r, "name"), cell(r, "modality"), cell(r, "competitive_advantage"), cell(r, "indications"))

	case domain.SourceMarketData:
		lines := []string{"| Title | Status | Phase | Sponsor |", "|-------|--------|-------|---------|"}
		for _, r := range capRows(rows, 10) {
			lines = append(lines, fmt.Sprintf("| %s | %s | %s | %s |",
				clip(cell(r, "title"), 35), clip(cell(r, "status"), 12), clip(cell(r, "phase"), 10), clip(cell(r, "sponsor"), 20)))
		}
		return strings.Join(lines, "\n")

	default:
		raw, err := json.MarshalIndent(capRows(rows, 5), "", "  ")
		if err != nil {
			return "No results found."
		}
		return string(raw)
	}
}

// cell renders one column value for display. Missing, null, and empty values
// all come out as "?".
func cell(row map[string]any, key string) string {
	value, ok := row[key]
	if !ok || value == nil {
		return "?"
	}
	switch v := value.(type) {
	case string:
		if v == "" {
			return "?"
		}
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func money(v float64) string {
	return "$" + humanize.Comma(int64(math.Round(v)))
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func capRows(rows []map[string]any, max int) []map[string]any {
	if len(rows) <= max {
		return rows
	}
	return rows[:max]
}

func rowKeys(row map[string]any) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	return keys
}

// titleWords turns a column name like total_funding into Total Funding.
func titleWords(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
