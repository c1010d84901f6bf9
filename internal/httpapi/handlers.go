package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"neoquery/internal/agent"
	"neoquery/internal/docindex"
	"neoquery/internal/domain"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "neoquery",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// =============================================================================
// RAG endpoints
// =============================================================================

func (s *Server) handleRAGSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "q is required", "")
		return
	}
	if s.deps.Index == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Search unavailable", "document index is disabled")
		return
	}

	sources := splitCSV(r.URL.Query().Get("sources"))
	n := intParam(r, "n_results", 10)
	dateFrom := r.URL.Query().Get("date_from")
	dateTo := r.URL.Query().Get("date_to")

	results, err := s.deps.Index.Search(r.Context(), query, sources, n, dateFrom, dateTo)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Search failed", err.Error())
		return
	}

	searched := sources
	if len(searched) == 0 {
		searched = docindex.Collections
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"query":            query,
		"results":          results,
		"count":            len(results),
		"sources_searched": searched,
	})
}

func (s *Server) handleRAGStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Index == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Search unavailable", "document index is disabled")
		return
	}
	counts, err := s.deps.Index.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Stats failed", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"collections": counts})
}

type ragAskRequest struct {
	Question string                  `json:"question"`
	Sources  []string                `json:"sources,omitempty"`
	NResults int                     `json:"n_results,omitempty"`
	History  []domain.HistoryMessage `json:"history,omitempty"`
	Model    string                  `json:"model,omitempty"`
}

func (s *Server) handleRAGAsk(w http.ResponseWriter, r *http.Request) {
	var req ragAskRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, http.StatusBadRequest, "question is required", "")
		return
	}

	var docs []docindex.SearchResult
	if s.deps.Index != nil {
		found, err := s.deps.Index.Search(r.Context(), req.Question, req.Sources, req.NResults, "", "")
		if err != nil {
			s.logger.Warn("rag-ask search failed, answering without context", "error", err)
		} else {
			docs = found
		}
	}

	answer := s.deps.RAG.Ask(r.Context(), req.Question, docs, req.History, req.Model)
	body := map[string]any{
		"question":      req.Question,
		"answer":        answer.Answer,
		"sources":       answer.Sources,
		"results":       docs,
		"context_count": answer.ContextCount,
		"model":         answer.Model,
	}
	if answer.Error != "" {
		body["error"] = answer.Error
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleRAGIndex(w http.ResponseWriter, r *http.Request) {
	if s.deps.Indexer == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Indexing unavailable", "document index is disabled")
		return
	}
	var req struct {
		Collections []string `json:"collections,omitempty"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"indexed": s.deps.Indexer.Reindex(r.Context(), req.Collections),
	})
}

// =============================================================================
// Agent endpoints
// =============================================================================

type analyzeRequest struct {
	Question   string                  `json:"question"`
	Model      string                  `json:"model,omitempty"`
	MaxTurns   int                     `json:"max_turns,omitempty"`
	History    []domain.HistoryMessage `json:"history,omitempty"`
	SkipCache  bool                    `json:"skip_cache,omitempty"`
	SkipRouter bool                    `json:"skip_router,omitempty"`
}

func (s *Server) decodeAnalyzeRequest(w http.ResponseWriter, r *http.Request) (agent.Request, bool) {
	var req analyzeRequest
	if !s.decodeBody(w, r, &req) {
		return agent.Request{}, false
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, http.StatusBadRequest, "question is required", "")
		return agent.Request{}, false
	}
	return agent.Request{
		Question:   req.Question,
		Model:      req.Model,
		MaxTurns:   req.MaxTurns,
		History:    req.History,
		SkipCache:  req.SkipCache,
		SkipRouter: req.SkipRouter,
	}, true
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAnalyzeRequest(w, r)
	if !ok {
		return
	}
	run := s.deps.Agent.Run(r.Context(), req)
	s.writeJSON(w, http.StatusOK, analyzeResponse(req.Question, run))
}

func (s *Server) handleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAnalyzeRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported", "")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range s.deps.Agent.RunStream(r.Context(), req) {
		payload, err := json.Marshal(event)
		if err != nil {
			s.logger.Warn("failed to encode stream event", "error", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}

// analyzeResponse flattens an AgentRun into the response body, echoing the
// question back the way the original API did.
func analyzeResponse(question string, run *domain.AgentRun) map[string]any {
	body := map[string]any{
		"question":   question,
		"answer":     run.Answer,
		"tool_calls": run.ToolCalls,
		"insights":   run.Insights,
		"entities":   run.Entities,
		"model":      run.Model,
		"turns_used": run.TurnsUsed,
	}
	if run.Tier != 0 {
		body["tier"] = run.Tier
		body["tier_name"] = run.TierName
	}
	if run.Routed {
		body["routed"] = true
	}
	if run.Cached {
		body["cached"] = true
		body["similarity"] = run.Similarity
		body["original_question"] = run.OriginalQuestion
	}
	if run.Error != "" {
		body["error"] = run.Error
	}
	if run.Warning != "" {
		body["warning"] = run.Warning
	}
	if run.Hints != nil {
		body["routing_hints"] = run.Hints
	}
	return body
}

// =============================================================================
// Introspection and administration
// =============================================================================

func (s *Server) handleDBStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"databases": s.deps.DB.DatabaseStats(r.Context()),
	})
}

// handleQuery is a debug passthrough: one SQL statement against one named
// source, answered with the raw QueryResult. The SELECT-only gate and the
// query cache in the SQL client both still apply.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	database := strings.TrimSpace(r.URL.Query().Get("database"))
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if database == "" || query == "" {
		s.writeError(w, http.StatusBadRequest, "database and query are required", "")
		return
	}
	source, err := domain.ParseSource(database)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unknown database", err.Error())
		return
	}
	result, err := s.deps.DB.Execute(r.Context(), source, query)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "query failed", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleDebugRoute exposes the router's decision for a question without
// running the agent; useful for tuning patterns.
func (s *Server) handleDebugRoute(w http.ResponseWriter, r *http.Request) {
	question := strings.TrimSpace(r.URL.Query().Get("q"))
	if question == "" {
		s.writeError(w, http.StatusBadRequest, "q is required", "")
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Router.Route(r.Context(), question))
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"query_cache": s.deps.DB.CacheStats(),
	}
	if s.deps.Cache != nil {
		stats["response_cache"] = s.deps.Cache.Stats(r.Context())
	} else {
		stats["response_cache"] = map[string]any{"enabled": false}
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.deps.DB.ClearCache()
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Clear(r.Context()); err != nil {
			s.writeError(w, http.StatusInternalServerError, "cache clear failed", err.Error())
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleRecentChanges(w http.ResponseWriter, r *http.Request) {
	days := intParam(r, "days", 7)
	s.writeJSON(w, http.StatusOK, s.deps.Semantic.RecentChanges(r.Context(), days))
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if s.deps.Models == nil {
		s.writeError(w, http.StatusServiceUnavailable, "model listing unavailable", "")
		return
	}
	models, err := s.deps.Models.Models(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "model listing failed", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// =============================================================================
// Helpers
// =============================================================================

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func intParam(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
