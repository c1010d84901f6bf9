// Package domain defines core domain types for the NeoQuery analyst service.
package domain

import (
	"fmt"
	"strings"
)

// =============================================================================
// Sources
// =============================================================================

// Source identifies an upstream data service.
type Source string

const (
	SourceResearchers Source = "researchers"
	SourcePatents     Source = "patents"
	SourceGrants      Source = "grants"
	SourcePolicies    Source = "policies"
	SourcePortfolio   Source = "portfolio"
	SourceMarketData  Source = "market_data"
	SourceSECSentinel Source = "sec_sentinel"
)

// AllSources returns every upstream source, including SEC Sentinel.
func AllSources() []Source {
	return []Source{
		SourceResearchers,
		SourcePatents,
		SourceGrants,
		SourcePolicies,
		SourcePortfolio,
		SourceMarketData,
		SourceSECSentinel,
	}
}

// SQLSources returns the sources that accept raw SQL through /api/sql.
func SQLSources() []Source {
	return []Source{
		SourceResearchers,
		SourcePatents,
		SourceGrants,
		SourcePolicies,
		SourcePortfolio,
		SourceMarketData,
	}
}

// ParseSource parses a source name.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceResearchers:
		return SourceResearchers, nil
	case SourcePatents:
		return SourcePatents, nil
	case SourceGrants:
		return SourceGrants, nil
	case SourcePolicies:
		return SourcePolicies, nil
	case SourcePortfolio:
		return SourcePortfolio, nil
	case SourceMarketData:
		return SourceMarketData, nil
	case SourceSECSentinel:
		return SourceSECSentinel, nil
	default:
		return "", &UnknownSourceError{Name: s}
	}
}

// =============================================================================
// Query Types
// =============================================================================

// QueryRequest is a raw SQL request against one source.
type QueryRequest struct {
	Source Source `json:"source"`
	SQL    string `json:"query"`
}

// QueryResult is the upstream /api/sql response shape.
type QueryResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// TableInfo names a table in an upstream database.
type TableInfo struct {
	Name string `json:"name"`
}

// =============================================================================
// Entities
// =============================================================================

// Entity is a clickable reference extracted from query results.
type Entity struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
	Meta        string `json:"meta"`
}

// Entity type values.
const (
	EntityResearcher    = "researcher"
	EntityPatent        = "patent"
	EntityGrant         = "grant"
	EntityPolicy        = "policy"
	EntityCompany       = "company"
	EntityClinicalTrial = "clinical_trial"
)

// =============================================================================
// Routing
// =============================================================================

// Tier names reported alongside the numeric tier.
const (
	TierInstant = 1
	TierFast    = 2
	TierAgent   = 3
)

// TierName maps a tier number to its reporting name.
func TierName(tier int) string {
	switch tier {
	case TierInstant:
		return "instant"
	case TierFast:
		return "fast"
	default:
		return "agent"
	}
}

// Routing hint values attached to Tier 3 decisions.
const (
	HintComplex = "complex"
	HintCrossDB = "cross_db"
)

// HintQuery suggests a query the agent could run for a cross-database question.
type HintQuery struct {
	Source Source `json:"source"`
	SQL    string `json:"query"`
}

// RoutingHints carries pre-computed routing context for the agent tier.
type RoutingHints struct {
	Hint             string      `json:"hint"`
	DetectedDBs      []string    `json:"detected_dbs"`
	Intents          []string    `json:"intents"`
	SuggestedQueries []HintQuery `json:"suggested_queries,omitempty"`
}

// RouteDecision is the tagged outcome of classifying a question. Exactly one
// payload is populated: a scalar answer (Tier 1), a formatted table with rows
// and entities (Tier 2), or agent hints (Tier 3).
type RouteDecision struct {
	Tier       int           `json:"tier"`
	TierName   string        `json:"tier_name"`
	Answer     string        `json:"answer,omitempty"`
	Data       any           `json:"data,omitempty"`
	Query      string        `json:"query,omitempty"`
	Entities   []Entity      `json:"entities,omitempty"`
	NeedsAgent bool          `json:"needs_agent"`
	Hints      *RoutingHints `json:"routing_hints,omitempty"`
}

// InstantDecision builds a Tier 1 decision with a scalar or table answer.
func InstantDecision(answer string, data any) RouteDecision {
	return RouteDecision{
		Tier:     TierInstant,
		TierName: TierName(TierInstant),
		Answer:   answer,
		Data:     data,
	}
}

// FastDecision builds a Tier 2 decision from a templated query result.
func FastDecision(answer string, rows []map[string]any, query string, entities []Entity) RouteDecision {
	return RouteDecision{
		Tier:     TierFast,
		TierName: TierName(TierFast),
		Answer:   answer,
		Data:     rows,
		Query:    query,
		Entities: entities,
	}
}

// AgentDecision builds a Tier 3 decision. hints may be nil when nothing was
// detected in the question.
func AgentDecision(hints *RoutingHints) RouteDecision {
	return RouteDecision{
		Tier:       TierAgent,
		TierName:   TierName(TierAgent),
		NeedsAgent: true,
		Hints:      hints,
	}
}

// =============================================================================
// Agent Types
// =============================================================================

// ToolCall records one tool invocation during an agent run.
type ToolCall struct {
	Tool          string         `json:"tool"`
	Input         map[string]any `json:"input"`
	ResultPreview string         `json:"result_preview"`
}

// ToolCallPreviewLimit caps the serialized result preview stored per call.
const ToolCallPreviewLimit = 500

// AgentRun error and warning codes.
const (
	ErrCodeMissingAPIKey = "missing_api_key"
	ErrCodeAPIError      = "api_error"
	WarnMaxTurns         = "max_turns_exceeded"
)

// AgentRun is the result of answering one question, whichever tier served it.
type AgentRun struct {
	RunID            string        `json:"run_id,omitempty"`
	Answer           string        `json:"answer"`
	ToolCalls        []ToolCall    `json:"tool_calls"`
	Insights         []string      `json:"insights"`
	Entities         []Entity      `json:"entities,omitempty"`
	Model            string        `json:"model,omitempty"`
	TurnsUsed        int           `json:"turns_used"`
	Tier             int           `json:"tier,omitempty"`
	TierName         string        `json:"tier_name,omitempty"`
	Routed           bool          `json:"routed,omitempty"`
	Cached           bool          `json:"cached,omitempty"`
	Similarity       float64       `json:"similarity,omitempty"`
	OriginalQuestion string        `json:"original_question,omitempty"`
	Error            string        `json:"error,omitempty"`
	Warning          string        `json:"warning,omitempty"`
	Hints            *RoutingHints `json:"routing_hints,omitempty"`
}

// HistoryMessage is one prior conversation turn supplied by the caller.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// =============================================================================
// Errors
// =============================================================================

// UnknownSourceError reports a request against a source that does not exist.
type UnknownSourceError struct {
	Name string
}

func (e *UnknownSourceError) Error() string {
	names := make([]string, 0, len(AllSources()))
	for _, s := range AllSources() {
		names = append(names, string(s))
	}
	return fmt.Sprintf("unknown database: %s (valid: %s)", e.Name, strings.Join(names, ", "))
}
