// Package agent answers analyst questions with a tool-using LLM loop. A
// question first passes the router (Tier 1/2 answers skip the LLM) and the
// response cache; what remains runs up to MaxTurns rounds of model tool
// calls against the six sources.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"neoquery/internal/cache/response"
	"neoquery/internal/config"
	"neoquery/internal/domain"
	"neoquery/internal/entity"
	"neoquery/internal/provider"
	"neoquery/internal/telemetry"
)

// Router short-circuits questions that do not need the LLM.
type Router interface {
	Route(ctx context.Context, question string) domain.RouteDecision
}

// ResponseCache remembers completed answers keyed by question similarity.
type ResponseCache interface {
	Lookup(ctx context.Context, question string) *response.Hit
	Store(ctx context.Context, question, answer string, toolCalls []domain.ToolCall, insights []string, entities []domain.Entity)
}

// Canned answers for runs that never reach a model reply.
const (
	notConfiguredAnswer = "Neo SQL agent is not configured. Please set ANTHROPIC_API_KEY."
	maxTurnsAnswer      = "I've reached the maximum number of analysis steps. Here's what I found so far based on my queries."
)

// Request is one question for the agent.
type Request struct {
	Question   string
	Model      string
	MaxTurns   int
	History    []domain.HistoryMessage
	SkipCache  bool
	SkipRouter bool
}

// Agent owns the analyst loop.
type Agent struct {
	cfg      config.AgentConfig
	llm      provider.Transport
	registry *Registry
	router   Router
	cache    ResponseCache
	metrics  *telemetry.Metrics
	logger   telemetry.Logger
}

// New wires the agent. router and cache may be nil, which disables those
// preflight steps.
func New(cfg config.AgentConfig, llm provider.Transport, registry *Registry, rt Router, cache ResponseCache, metrics *telemetry.Metrics, logger telemetry.Logger) *Agent {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Agent{
		cfg:      cfg,
		llm:      llm,
		registry: registry,
		router:   rt,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
	}
}

// Registry exposes the tool catalog backing this agent.
func (a *Agent) Registry() *Registry {
	return a.registry
}

// Run answers one question, blocking until the final result. Failures are
// reported inside the AgentRun rather than as errors so callers always get
// a serializable outcome.
func (a *Agent) Run(ctx context.Context, req Request) *domain.AgentRun {
	return a.run(ctx, req, func(Event) {})
}

// RunStream answers one question while emitting progress events. The
// channel closes after the terminal complete event; an abandoned consumer
// only blocks the run until ctx ends.
func (a *Agent) RunStream(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event, streamBuffer)
	go func() {
		defer close(events)
		emit := func(ev Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
		final := a.run(ctx, req, emit)
		emit(Event{Type: EventComplete, Data: final})
	}()
	return events
}

func (a *Agent) run(ctx context.Context, req Request, emit func(Event)) *domain.AgentRun {
	var hints *domain.RoutingHints

	// Tier 1/2 answers skip the LLM entirely. Follow-up turns always go to
	// the full agent because the router only sees single questions.
	if a.router != nil && !req.SkipRouter && len(req.History) == 0 {
		emit(Event{Type: EventStatus, Message: "Checking if I can answer instantly..."})
		decision := a.router.Route(ctx, req.Question)
		if !decision.NeedsAgent {
			return &domain.AgentRun{
				Answer:    decision.Answer,
				ToolCalls: []domain.ToolCall{},
				Insights:  []string{},
				Entities:  decision.Entities,
				Tier:      decision.Tier,
				TierName:  decision.TierName,
				Routed:    true,
			}
		}
		hints = decision.Hints
	}

	if a.cache != nil && !req.SkipCache && len(req.History) == 0 {
		emit(Event{Type: EventStatus, Message: "Checking memory for similar questions..."})
		if hit := a.cache.Lookup(ctx, req.Question); hit != nil {
			return &domain.AgentRun{
				Answer:           hit.Answer,
				ToolCalls:        orEmpty(hit.ToolCalls),
				Insights:         orEmpty(hit.Insights),
				Entities:         hit.Entities,
				Cached:           true,
				Similarity:       hit.Similarity,
				OriginalQuestion: hit.OriginalQuestion,
			}
		}
	}

	emit(Event{Type: EventStatus, Message: "Starting analysis..."})

	if !a.configured() {
		return &domain.AgentRun{
			Answer:    notConfiguredAnswer,
			ToolCalls: []domain.ToolCall{},
			Insights:  []string{},
			Error:     domain.ErrCodeMissingAPIKey,
		}
	}

	model := req.Model
	if model == "" {
		model = a.cfg.Model
	}
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = a.cfg.MaxTurns
	}

	runID := uuid.NewString()
	logger := a.logger.With("run_id", runID)

	messages := make([]provider.Message, 0, len(req.History)+1)
	for _, m := range req.History {
		messages = append(messages, provider.Message{
			Role:    m.Role,
			Content: []provider.ContentBlock{provider.TextBlock(m.Content)},
		})
	}
	messages = append(messages, provider.UserText(req.Question))

	run := &RunState{ToolCalls: []domain.ToolCall{}, Insights: []string{}}
	turns := 0

	for turns < maxTurns {
		turns++
		emit(Event{Type: EventStatus, Message: fmt.Sprintf("Thinking... (step %d)", turns)})

		resp, err := a.llm.CreateMessage(ctx, &provider.MessageRequest{
			Model:     model,
			MaxTokens: a.cfg.MaxTokens,
			System:    systemPrompt,
			Tools:     a.registry.Definitions(),
			Messages:  messages,
		})
		if err != nil {
			logger.Warn("agent provider call failed", "model", model, "turn", turns, "error", err)
			return &domain.AgentRun{
				RunID:     runID,
				Answer:    "API error: " + err.Error(),
				ToolCalls: run.ToolCalls,
				Insights:  run.Insights,
				Model:     model,
				TurnsUsed: turns,
				Error:     domain.ErrCodeAPIError,
			}
		}

		switch resp.StopReason {
		case provider.StopEndTurn:
			emit(Event{Type: EventStatus, Message: "Composing response..."})
			answer := resp.Text()
			unique := entity.Dedupe(run.Entities)

			if a.cache != nil && !req.SkipCache && len(req.History) == 0 && answer != "" && ctx.Err() == nil {
				a.cache.Store(ctx, req.Question, answer, run.ToolCalls, run.Insights, unique)
			}
			a.recordRun(turns)
			logger.Info("agent run complete", "model", model, "turns", turns, "tool_calls", len(run.ToolCalls))
			return &domain.AgentRun{
				RunID:     runID,
				Answer:    answer,
				ToolCalls: run.ToolCalls,
				Insights:  run.Insights,
				Entities:  unique,
				Model:     model,
				TurnsUsed: turns,
				Tier:      domain.TierAgent,
				TierName:  domain.TierName(domain.TierAgent),
				Hints:     hints,
			}

		case provider.StopToolUse:
			var results []provider.ContentBlock
			for _, block := range resp.Content {
				if block.Type != provider.BlockToolUse {
					continue
				}
				input := block.Input
				if input == nil {
					input = map[string]any{}
				}

				emit(Event{Type: EventTool, Tool: block.Name, Message: statusMessage(block.Name)})
				result := a.registry.Execute(ctx, block.Name, input, run)
				if n, ok := resultRows(result); ok {
					emit(Event{Type: EventToolResult, Tool: block.Name, Rows: &n})
				}

				run.ToolCalls = append(run.ToolCalls, domain.ToolCall{
					Tool:          block.Name,
					Input:         input,
					ResultPreview: preview(result),
				})
				results = append(results, provider.ToolResultBlock(block.ID, result, false))
			}
			// Tool results must answer the assistant turn that requested
			// them, in block order.
			messages = append(messages,
				provider.Message{Role: provider.RoleAssistant, Content: resp.Content},
				provider.Message{Role: provider.RoleUser, Content: results},
			)

		default:
			answer := resp.Text()
			if answer == "" {
				answer = "Unexpected stop reason: " + resp.StopReason
			}
			a.recordRun(turns)
			logger.Warn("agent stopped early", "stop_reason", resp.StopReason, "turns", turns)
			return &domain.AgentRun{
				RunID:     runID,
				Answer:    answer,
				ToolCalls: run.ToolCalls,
				Insights:  run.Insights,
				Entities:  entity.Dedupe(run.Entities),
				Model:     model,
				TurnsUsed: turns,
			}
		}
	}

	a.recordRun(turns)
	logger.Warn("agent exhausted turn budget", "model", model, "turns", turns)
	return &domain.AgentRun{
		RunID:     runID,
		Answer:    maxTurnsAnswer,
		ToolCalls: run.ToolCalls,
		Insights:  run.Insights,
		Entities:  entity.Dedupe(run.Entities),
		Model:     model,
		TurnsUsed: turns,
		Warning:   domain.WarnMaxTurns,
		Hints:     hints,
	}
}

// configured reports whether the transport is ready to serve. Transports
// without a Configured method are assumed ready.
func (a *Agent) configured() bool {
	if a.llm == nil {
		return false
	}
	if c, ok := a.llm.(interface{ Configured() bool }); ok {
		return c.Configured()
	}
	return true
}

func (a *Agent) recordRun(turns int) {
	if a.metrics != nil {
		a.metrics.RecordAgentRun(turns)
	}
}

// resultRows reports the row count when a serialized tool result carries a
// rowset.
func resultRows(result string) (int, bool) {
	var parsed struct {
		Rows []json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal([]byte(result), &parsed); err != nil || parsed.Rows == nil {
		return 0, false
	}
	return len(parsed.Rows), true
}

// preview truncates a tool result for the run record.
func preview(result string) string {
	if len(result) > domain.ToolCallPreviewLimit {
		return result[:domain.ToolCallPreviewLimit]
	}
	return result
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
