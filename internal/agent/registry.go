package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/xeipuuv/gojsonschema"

	"neoquery/internal/domain"
	"neoquery/internal/entity"
	"neoquery/internal/provider"
	"neoquery/internal/telemetry"
)

// ResultKind tags what a tool's result carries so entity extraction can
// match on the tag instead of probing result keys.
type ResultKind int

const (
	// KindRaw results carry nothing linkable.
	KindRaw ResultKind = iota
	// Rowset results keyed by "rows".
	KindResearchers
	KindPatents
	KindGrants
	KindPolicies
	KindPortfolio
	// KindClinicalTrials rows have no detail pages to link yet.
	KindClinicalTrials
	// KindCrossSearch results summarize per-source hit counts, no rows.
	KindCrossSearch
	// KindPatentPortfolio results keep their patent rows under "patents".
	KindPatentPortfolio
	// KindFundingSummary results keep their grant rows under "top_grants".
	KindFundingSummary
	// KindCompanyProfile results nest patent, grant and researcher rows.
	KindCompanyProfile
)

// RunState accumulates what one agent run discovers across tool calls.
type RunState struct {
	ToolCalls []domain.ToolCall
	Insights  []string
	Entities  []domain.Entity
}

// Handler executes one tool call. It may extend the run state and returns
// the result value that is serialized back to the model.
type Handler func(ctx context.Context, input map[string]any, run *RunState) (any, error)

// Tool pairs a definition advertised to the model with the handler that
// serves it.
type Tool struct {
	Definition provider.ToolDef
	Kind       ResultKind
	Handler    Handler

	schema *gojsonschema.Schema
}

// Registry holds the tool catalog and dispatches calls by name.
type Registry struct {
	tools   map[string]*Tool
	names   []string
	defs    []provider.ToolDef
	metrics *telemetry.Metrics
	logger  telemetry.Logger
}

// suggestionDistance bounds how far a mistyped tool name may be from a
// registered one before the suggestion is dropped.
const suggestionDistance = 2

func newRegistry(metrics *telemetry.Metrics, logger telemetry.Logger) *Registry {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Registry{
		tools:   make(map[string]*Tool),
		metrics: metrics,
		logger:  logger,
	}
}

// add compiles the tool's input schema and registers it. The schemas are
// static literals, so a failure to compile is a programming error.
func (r *Registry) add(t Tool) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(t.Definition.InputSchema))
	if err != nil {
		panic(fmt.Sprintf("tool %s: invalid input schema: %v", t.Definition.Name, err))
	}
	t.schema = schema
	r.tools[t.Definition.Name] = &t
	r.names = append(r.names, t.Definition.Name)
	r.defs = append(r.defs, t.Definition)
}

// Definitions returns the catalog in registration order, ready to advertise
// to the model.
func (r *Registry) Definitions() []provider.ToolDef {
	return r.defs
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return r.names
}

// Execute runs the named tool and returns the serialized result. Failures
// of every kind fold into an {"error": ...} payload so the model always
// receives a tool result it can read.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any, run *RunState) string {
	tool, ok := r.tools[name]
	if !ok {
		r.record(name, "unknown")
		return r.unknownTool(name)
	}

	if input == nil {
		input = map[string]any{}
	}
	if detail := r.validateInput(tool, input); detail != "" {
		r.record(name, "invalid")
		return errorPayload(detail, "")
	}

	result, err := tool.Handler(ctx, input, run)
	if err != nil {
		r.record(name, "error")
		r.logger.Warn("tool call failed", "tool", name, "error", err)
		return errorPayload(err.Error(), "")
	}

	if extracted := extract(tool.Kind, result); len(extracted) > 0 {
		run.Entities = append(run.Entities, extracted...)
	}
	r.record(name, "ok")

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errorPayload(fmt.Sprintf("serialize result: %v", err), "")
	}
	return string(out)
}

func (r *Registry) validateInput(tool *Tool, input map[string]any) string {
	result, err := tool.schema.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return fmt.Sprintf("validate input: %v", err)
	}
	if result.Valid() {
		return ""
	}
	var errs []string
	for _, verr := range result.Errors() {
		errs = append(errs, verr.String())
	}
	return "invalid input: " + strings.Join(errs, "; ")
}

// unknownTool reports an unregistered name, suggesting the closest catalog
// entry when one is plausibly a typo away.
func (r *Registry) unknownTool(name string) string {
	best := ""
	bestDist := suggestionDistance + 1
	for _, candidate := range r.names {
		if d := levenshtein.ComputeDistance(name, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return errorPayload("Unknown tool: "+name, best)
}

func (r *Registry) record(tool, status string) {
	if r.metrics != nil {
		r.metrics.RecordToolCall(tool, status)
	}
}

type toolError struct {
	Error      string `json:"error"`
	DidYouMean string `json:"did_you_mean,omitempty"`
}

func errorPayload(msg, suggestion string) string {
	out, _ := json.Marshal(toolError{Error: msg, DidYouMean: suggestion})
	return string(out)
}

// extract pulls linkable entities out of a tool result according to its
// kind.
func extract(kind ResultKind, result any) []domain.Entity {
	m, ok := result.(map[string]any)
	if !ok {
		return nil
	}

	switch kind {
	case KindResearchers:
		return entity.FromRows(domain.SourceResearchers, rowsIn(m, "rows"))
	case KindPatents:
		return entity.FromRows(domain.SourcePatents, rowsIn(m, "rows"))
	case KindGrants:
		return entity.FromRows(domain.SourceGrants, rowsIn(m, "rows"))
	case KindPolicies:
		return entity.FromRows(domain.SourcePolicies, rowsIn(m, "rows"))
	case KindPortfolio:
		return entity.FromRows(domain.SourcePortfolio, rowsIn(m, "rows"))
	case KindPatentPortfolio:
		return entity.FromRows(domain.SourcePatents, rowsIn(m, "patents"))
	case KindFundingSummary:
		return entity.FromRows(domain.SourceGrants, rowsIn(m, "top_grants"))
	case KindCompanyProfile:
		var out []domain.Entity
		if nested, ok := m["patents"].(map[string]any); ok {
			out = append(out, entity.FromRows(domain.SourcePatents, rowsIn(nested, "patents"))...)
		}
		if nested, ok := m["grants"].(map[string]any); ok {
			out = append(out, entity.FromRows(domain.SourceGrants, rowsIn(nested, "top_grants"))...)
		}
		if nested, ok := m["researchers"].(map[string]any); ok {
			out = append(out, entity.FromRows(domain.SourceResearchers, rowsIn(nested, "top_researchers"))...)
		}
		return out
	}
	return nil
}

// rowsIn pulls a row list out of a result map, tolerating both the typed
// slices the semantic layer produces and decoded-JSON []any values.
func rowsIn(m map[string]any, key string) []map[string]any {
	switch rows := m[key].(type) {
	case []map[string]any:
		return rows
	case []any:
		out := make([]map[string]any, 0, len(rows))
		for _, r := range rows {
			if row, ok := r.(map[string]any); ok {
				out = append(out, row)
			}
		}
		return out
	}
	return nil
}
