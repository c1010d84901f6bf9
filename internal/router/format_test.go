package router

import (
	"fmt"
	"strings"
	"testing"

	"neoquery/internal/domain"
)

func TestFormatScalar(t *testing.T) {
	t.Run("funding and cost keys become whole dollars", func(t *testing.T) {
		if got := formatScalar("total_funding", float64(81309562)); got != "$81,309,562" {
			t.Errorf("got %q", got)
		}
		if got := formatScalar("total_cost", 1234567.89); got != "$1,234,568" {
			t.Errorf("got %q", got)
		}
		if got := formatScalar("total_funding", float64(0)); got != "$0" {
			t.Errorf("got %q", got)
		}
		if got := formatScalar("total_funding", nil); got != "$0" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("plain numbers are comma grouped", func(t *testing.T) {
		if got := formatScalar("count", float64(1234567)); got != "1,234,567" {
			t.Errorf("got %q", got)
		}
		if got := formatScalar("count", 12.5); got != "12.5" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("strings pass through", func(t *testing.T) {
		if got := formatScalar("status", "RECRUITING"); got != "RECRUITING" {
			t.Errorf("got %q", got)
		}
	})
}

func TestFormatAggregation(t *testing.T) {
	t.Run("empty result reads as no data", func(t *testing.T) {
		got := formatAggregation(&domain.QueryResult{}, "Anything")
		if got != "No data found." {
			t.Errorf("got %q", got)
		}
	})

	t.Run("rounds averages to one decimal", func(t *testing.T) {
		result := tableResult([]string{"primary_category", "count", "avg_h_index"},
			map[string]any{"primary_category": "Oncology", "count": float64(230), "avg_h_index": 43.274},
		)
		got := formatAggregation(result, "Top 20 research categories")
		if !strings.Contains(got, "| Oncology | 230 | 43.3 |") {
			t.Errorf("got %q", got)
		}
	})

	t.Run("caps output at fifteen rows", func(t *testing.T) {
		rows := make([]map[string]any, 0, 20)
		for i := 0; i < 20; i++ {
			rows = append(rows, map[string]any{"status": fmt.Sprintf("S%d", i), "count": float64(i)})
		}
		got := formatAggregation(tableResult([]string{"status", "count"}, rows...), "By status")
		// title, blank, header, separator, then the rows
		if lines := strings.Split(got, "\n"); len(lines) != 4+15 {
			t.Errorf("expected 19 lines, got %d", len(lines))
		}
	})

	t.Run("clips long values at thirty characters", func(t *testing.T) {
		long := strings.Repeat("x", 45)
		got := formatAggregation(tableResult([]string{"institute"}, map[string]any{"institute": long}), "Institutes")
		if strings.Contains(got, long) {
			t.Error("value should have been clipped")
		}
		if !strings.Contains(got, "| "+strings.Repeat("x", 30)+" |") {
			t.Errorf("got %q", got)
		}
	})
}

func TestFormatRows(t *testing.T) {
	t.Run("missing researcher fields render as question marks", func(t *testing.T) {
		result := tableResult([]string{"id", "name", "h_index", "slope", "primary_category"},
			map[string]any{"id": float64(1), "name": "Jan Novak", "h_index": float64(33), "slope": 2.4, "primary_category": nil},
		)
		got := formatRows(domain.SourceResearchers, result)
		if !strings.Contains(got, "| Jan Novak | 33 | 2.4 | ? |") {
			t.Errorf("got %q", got)
		}
	})

	t.Run("grants without a cost show a placeholder amount", func(t *testing.T) {
		result := tableResult([]string{"id", "title", "total_cost", "institute"},
			map[string]any{"id": float64(1), "title": "CRISPR delivery", "total_cost": float64(0), "institute": "NIGMS"},
			map[string]any{"id": float64(2), "title": "Funded work", "total_cost": float64(2400000), "institute": "NCI"},
		)
		got := formatRows(domain.SourceGrants, result)
		if !strings.Contains(got, "| CRISPR delivery | ? | NIGMS |") {
			t.Errorf("got %q", got)
		}
		if !strings.Contains(got, "| Funded work | $2,400,000 | NCI |") {
			t.Errorf("got %q", got)
		}
	})

	t.Run("caps tables at ten rows", func(t *testing.T) {
		rows := make([]map[string]any, 0, 12)
		for i := 0; i < 12; i++ {
			rows = append(rows, map[string]any{"id": float64(i), "name": fmt.Sprintf("R%d", i)})
		}
		got := formatRows(domain.SourceResearchers, tableResult([]string{"id", "name"}, rows...))
		if lines := strings.Split(got, "\n"); len(lines) != 2+10 {
			t.Errorf("expected 12 lines, got %d", len(lines))
		}
	})

	t.Run("unrecognized sources fall back to json", func(t *testing.T) {
		result := tableResult([]string{"id", "title"},
			map[string]any{"id": float64(12), "title": "An Act"},
		)
		got := formatRows(domain.SourcePolicies, result)
		if !strings.HasPrefix(got, "[") || !strings.Contains(got, `"title": "An Act"`) {
			t.Errorf("got %q", got)
		}
	})

	t.Run("empty rows read as no results", func(t *testing.T) {
		if got := formatRows(domain.SourceResearchers, &domain.QueryResult{}); got != "No results found." {
			t.Errorf("got %q", got)
		}
	})
}

func TestTitleWords(t *testing.T) {
	cases := map[string]string{
		"total_funding": "Total Funding",
		"count":         "Count",
		"avg_h_index":   "Avg H Index",
	}
	for in, want := range cases {
		if got := titleWords(in); got != want {
			t.Errorf("titleWords(%q) = %q, want %q", in, got, want)
		}
	}
}
