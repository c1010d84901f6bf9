// Package router classifies incoming questions into response tiers. Simple
// counts and canned aggregations are answered straight from the upstream
// databases (Tier 1), parameterized lookups run a templated query and format
// the rows (Tier 2), and everything else is handed to the agent with routing
// hints (Tier 3). Classification costs no LLM tokens.
package router

import (
	"context"
	"fmt"
	"strings"

	"neoquery/internal/domain"
	"neoquery/internal/entity"
	"neoquery/internal/telemetry"
)

// Executor runs queries against the upstream data services.
type Executor interface {
	Execute(ctx context.Context, source domain.Source, query string) (*domain.QueryResult, error)
	ListTables(ctx context.Context, source domain.Source) ([]domain.TableInfo, error)
}

// Router answers cheap questions inline and flags the rest for the agent.
type Router struct {
	db      Executor
	agg     *aggregationCache
	metrics *telemetry.Metrics
	logger  telemetry.Logger
}

// New builds a Router over the given query executor.
func New(db Executor, metrics *telemetry.Metrics, logger telemetry.Logger) *Router {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Router{
		db:      db,
		agg:     newAggregationCache(aggregationTTL),
		metrics: metrics,
		logger:  logger,
	}
}

// Route classifies a question and executes Tier 1 and Tier 2 queries inline.
// It always returns a decision; upstream failures during classification
// demote the question to Tier 3 rather than surfacing an error.
func (r *Router) Route(ctx context.Context, question string) domain.RouteDecision {
	decision := r.classify(ctx, question)
	if r.metrics != nil {
		r.metrics.RecordRouterDecision(domain.TierName(decision.Tier))
	}
	r.logger.Debug("question routed", "tier", decision.Tier, "needs_agent", decision.NeedsAgent)
	return decision
}

func (r *Router) classify(ctx context.Context, question string) domain.RouteDecision {
	q := strings.ToLower(strings.TrimSpace(question))
	intents := DetectIntents(q)
	sources := DetectSources(q)

	if decision, ok := r.cannedAggregation(ctx, q); ok {
		return decision
	}
	if decision, ok := r.instantAnswer(ctx, q); ok {
		return decision
	}
	if decision, ok := r.fastAnswer(ctx, q); ok {
		return decision
	}
	if decision, ok := crossSourceDecision(q, sources, intents); ok {
		return decision
	}

	if len(sources) == 0 && len(intents) == 1 && intents[0] == intentGeneral {
		return domain.AgentDecision(nil)
	}
	return domain.AgentDecision(&domain.RoutingHints{
		Hint:        domain.HintComplex,
		DetectedDBs: sourceNames(sources),
		Intents:     intents,
	})
}

// cannedAggregation serves the popular group-by questions, consulting the
// TTL cache before running the canned query. A failed or empty aggregation
// falls through to the regular tiers.
func (r *Router) cannedAggregation(ctx context.Context, q string) (domain.RouteDecision, bool) {
	for _, agg := range cannedAggregations {
		if !agg.trigger.MatchString(q) {
			continue
		}
		if entry, ok := r.agg.get(agg.name); ok {
			if r.metrics != nil {
				r.metrics.RecordCacheLookup("aggregation", true)
			}
			return domain.InstantDecision(entry.answer, entry.rows), true
		}
		if r.metrics != nil {
			r.metrics.RecordCacheLookup("aggregation", false)
		}
		result, err := r.db.Execute(ctx, agg.source, agg.query)
		if err != nil {
			r.logger.Warn("aggregation query failed", "name", agg.name, "error", err)
			continue
		}
		if len(result.Rows) == 0 {
			continue
		}
		answer := formatAggregation(result, agg.description)
		r.agg.set(agg.name, answer, result.Rows)
		return domain.InstantDecision(answer, result.Rows), true
	}
	return domain.RouteDecision{}, false
}

// instantAnswer handles the fixed count, total, and table-listing patterns.
func (r *Router) instantAnswer(ctx context.Context, q string) (domain.RouteDecision, bool) {
	for _, p := range tierOnePatterns {
		if !p.re.MatchString(q) {
			continue
		}
		if p.sql == "" {
			tables, err := r.db.ListTables(ctx, p.source)
			if err != nil {
				r.logger.Warn("table listing failed during routing", "source", p.source, "error", err)
				return domain.AgentDecision(nil), true
			}
			names := make([]string, len(tables))
			for i, t := range tables {
				names[i] = t.Name
			}
			answer := fmt.Sprintf("Tables in %s database: %s", p.source, strings.Join(names, ", "))
			return domain.InstantDecision(answer, map[string]any{"tables": names}), true
		}

		result, err := r.db.Execute(ctx, p.source, p.sql)
		if err != nil {
			r.logger.Warn("canned query failed during routing", "source", p.source, "error", err)
			return domain.AgentDecision(nil), true
		}
		if len(result.Rows) == 0 {
			continue
		}
		row := result.Rows[0]
		key := firstColumn(result, row)
		return domain.InstantDecision(formatScalar(key, row[key]), row), true
	}
	return domain.RouteDecision{}, false
}

// fastAnswer handles the templated lookups. Matched patterns with empty
// results fall through to later patterns so a near-miss template does not
// swallow the question.
func (r *Router) fastAnswer(ctx context.Context, q string) (domain.RouteDecision, bool) {
	for _, p := range tierTwoPatterns {
		matched := p.re.FindStringSubmatch(q)
		if matched == nil {
			continue
		}
		query := p.build(groups{re: p.re, matched: matched})
		result, err := r.db.Execute(ctx, p.source, query)
		if err != nil {
			r.logger.Warn("templated query failed during routing", "source", p.source, "error", err)
			return domain.AgentDecision(nil), true
		}
		if len(result.Rows) == 0 {
			continue
		}
		entities := entity.FromRows(p.source, result.Rows)
		answer := formatRows(p.source, result)
		return domain.FastDecision(answer, result.Rows, strings.TrimSpace(query), entities), true
	}
	return domain.RouteDecision{}, false
}

// crossSourceDecision matches questions that span sources and attaches the
// starting queries the agent should run. It only fires when the question
// carries a cross-source intent or mentions more than one source.
func crossSourceDecision(q string, sources []domain.Source, intents []string) (domain.RouteDecision, bool) {
	if !hasIntent(intents, intentCrossDB) && len(sources) < 2 {
		return domain.RouteDecision{}, false
	}
	for _, p := range crossSourcePatterns {
		if !p.re.MatchString(q) {
			continue
		}
		return domain.AgentDecision(&domain.RoutingHints{
			Hint:             domain.HintCrossDB,
			DetectedDBs:      sourceNames(sources),
			Intents:          intents,
			SuggestedQueries: p.queries,
		}), true
	}
	return domain.RouteDecision{}, false
}

// firstColumn picks the column used for scalar formatting. Column order
// comes from the upstream response; any row key is the fallback.
func firstColumn(result *domain.QueryResult, row map[string]any) string {
	if len(result.Columns) > 0 {
		return result.Columns[0]
	}
	for k := range row {
		return k
	}
	return ""
}
