// Package semantic provides curated, pre-shaped queries over the upstream
// sources. Each function owns its SQL so the agent's tools and the HTTP
// facade never assemble statements from raw user text.
package semantic

import (
	"context"
	"strings"

	"neoquery/internal/domain"
	"neoquery/internal/telemetry"
)

// Querier is the slice of the SQL client this package consumes.
type Querier interface {
	Execute(ctx context.Context, source domain.Source, query string) (*domain.QueryResult, error)
	ExecuteSECSQL(ctx context.Context, query string) (*domain.QueryResult, error)
	RecentFilings(ctx context.Context, days, limit int) ([]map[string]any, error)
	FilingStats(ctx context.Context) (map[string]any, error)
}

// Service exposes the curated query functions.
type Service struct {
	db     Querier
	logger telemetry.Logger
}

func New(db Querier, logger telemetry.Logger) *Service {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Service{db: db, logger: logger}
}

// escape doubles single quotes so interpolated names cannot break out of
// their string literal. The upstream endpoints are read-only; this guards
// syntax, not writes.
func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func like(column, value string) string {
	return column + " LIKE '%" + escape(value) + "%'"
}

func resultMap(r *domain.QueryResult) map[string]any {
	columns := r.Columns
	if columns == nil {
		columns = []string{}
	}
	rows := r.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	return map[string]any{
		"columns":   columns,
		"rows":      rows,
		"row_count": r.RowCount,
	}
}

func firstRow(r *domain.QueryResult) map[string]any {
	if len(r.Rows) == 0 {
		return map[string]any{}
	}
	return r.Rows[0]
}

func rowsOf(r *domain.QueryResult) []map[string]any {
	if r == nil || r.Rows == nil {
		return []map[string]any{}
	}
	return r.Rows
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func orDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
