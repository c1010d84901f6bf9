// Package rag answers questions over documents retrieved from the index.
// Unlike the agent, it runs a single LLM call anchored to the retrieved
// context and cites documents by number.
package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"neoquery/internal/config"
	"neoquery/internal/docindex"
	"neoquery/internal/domain"
	"neoquery/internal/provider"
	"neoquery/internal/telemetry"
)

const (
	maxSnippetBytes = 1000
	maxAnswerTokens = 1024

	notConfiguredAnswer = "AI Q&A is not configured. Please set ANTHROPIC_API_KEY."
	noDocumentsAnswer   = "I don't have any relevant documents in the knowledge base for that question yet. " +
		"Try a different phrasing, or ask about patents, grants, researchers, or policy."
)

const systemPrompt = `You are a research analyst assistant for KdT Ventures, a deeptech/biotech venture fund.

You answer questions using ONLY the documents provided in the CONTEXT block. Each document is numbered and tagged with its source database (PATENTS, GRANTS, RESEARCHERS, POLICIES, FDA_CALENDAR).

Guidelines:
- Cite documents by their number, e.g. [1] or [2][4], next to every claim they support.
- If the context does not contain the answer, say so plainly instead of speculating.
- Keep answers concise and analytical; lead with the finding, not the process.
- Dollar amounts, dates and proper nouns must come verbatim from the context.`

// SourceRef points a cited answer back at an indexed document.
type SourceRef struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	URL    string `json:"url,omitempty"`
	ID     string `json:"id,omitempty"`
}

// Answer is the result of one context-anchored question.
type Answer struct {
	Answer       string      `json:"answer"`
	Sources      []SourceRef `json:"sources"`
	ContextCount int         `json:"context_count"`
	Model        string      `json:"model"`
	Error        string      `json:"error,omitempty"`
}

// Service runs single-shot RAG answers through the LLM transport.
type Service struct {
	cfg    config.AgentConfig
	llm    provider.Transport
	logger telemetry.Logger
}

// New wires the RAG answerer.
func New(cfg config.AgentConfig, llm provider.Transport, logger telemetry.Logger) *Service {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Service{cfg: cfg, llm: llm, logger: logger}
}

// Ask answers a question against the retrieved documents. History rides
// ahead of the context message so follow-ups keep their thread; unlike the
// agent there is no cache to skip. Failures come back inside the Answer.
func (s *Service) Ask(ctx context.Context, question string, docs []docindex.SearchResult, history []domain.HistoryMessage, model string) *Answer {
	if model == "" {
		model = s.cfg.RAGModel
	}

	if !s.configured() {
		return &Answer{
			Answer:  notConfiguredAnswer,
			Sources: []SourceRef{},
			Model:   model,
			Error:   domain.ErrCodeMissingAPIKey,
		}
	}

	if len(docs) == 0 && len(history) == 0 {
		return &Answer{
			Answer:  noDocumentsAnswer,
			Sources: []SourceRef{},
			Model:   model,
		}
	}

	messages := make([]provider.Message, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, provider.Message{
			Role:    m.Role,
			Content: []provider.ContentBlock{provider.TextBlock(m.Content)},
		})
	}
	messages = append(messages, provider.UserText(userMessage(question, docs)))

	resp, err := s.llm.CreateMessage(ctx, &provider.MessageRequest{
		Model:     model,
		MaxTokens: maxAnswerTokens,
		System:    systemPrompt,
		Messages:  messages,
	})
	if err != nil {
		s.logger.Warn("rag ask failed", "model", model, "error", err)
		return &Answer{
			Answer:       "API error: " + err.Error(),
			Sources:      []SourceRef{},
			ContextCount: len(docs),
			Model:        model,
			Error:        errorCode(err),
		}
	}

	return &Answer{
		Answer:       resp.Text(),
		Sources:      sourceRefs(docs),
		ContextCount: len(docs),
		Model:        model,
	}
}

func (s *Service) configured() bool {
	if s.llm == nil {
		return false
	}
	if c, ok := s.llm.(interface{ Configured() bool }); ok {
		return c.Configured()
	}
	return true
}

// userMessage assembles the context block and the anchored question.
func userMessage(question string, docs []docindex.SearchResult) string {
	if len(docs) == 0 {
		return "QUESTION: " + question
	}

	blocks := make([]string, 0, len(docs))
	for i, doc := range docs {
		var b strings.Builder
		fmt.Fprintf(&b, "[%d] [%s] %s", i+1, strings.ToUpper(doc.Source), doc.Title)
		if meta := metaLine(doc); meta != "" {
			b.WriteString("\n" + meta)
		}
		if doc.Snippet != "" {
			snippet := doc.Snippet
			if len(snippet) > maxSnippetBytes {
				snippet = snippet[:maxSnippetBytes]
			}
			b.WriteString("\n" + snippet)
		}
		blocks = append(blocks, b.String())
	}

	return fmt.Sprintf(
		"CONTEXT:\n%s\n\nQUESTION: %s\n\nAnswer based ONLY on the context above. Cite sources by their document number [1], [2], etc.",
		strings.Join(blocks, "\n\n---\n\n"), question)
}

// metaLine renders the one-line document header for each source kind.
func metaLine(doc docindex.SearchResult) string {
	m := doc.Metadata
	switch doc.Source {
	case "patents":
		return joinMeta(
			labeled("Patent", m["patent_number"]),
			labeled("Assignee", m["assignee"]),
			labeled("Date", m["grant_date"]),
		)
	case "grants":
		parts := []string{labeled("Agency", m["institute"])}
		if cost := asFloat(m["total_cost"]); cost > 0 {
			parts = append(parts, "Funding: $"+humanize.Comma(int64(math.Round(cost))))
		}
		return joinMeta(parts...)
	case "policies":
		return joinMeta(
			labeled("Status", m["status"]),
			labeled("Relevance", m["relevance_score"]),
		)
	case "fda_calendar":
		return joinMeta(
			labeled("Company", m["company"]),
			labeled("Drug", m["drug"]),
			labeled("Date", m["event_date"]),
		)
	}
	return ""
}

func labeled(label string, v any) string {
	if v == nil {
		return ""
	}
	s := fmt.Sprintf("%v", v)
	if s == "" {
		return ""
	}
	return label + ": " + s
}

func joinMeta(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " | ")
}

func sourceRefs(docs []docindex.SearchResult) []SourceRef {
	refs := make([]SourceRef, 0, len(docs))
	for _, doc := range docs {
		refs = append(refs, SourceRef{
			Source: doc.Source,
			Title:  doc.Title,
			URL:    doc.URL,
			ID:     doc.ID,
		})
	}
	return refs
}

func errorCode(err error) string {
	var apiErr *provider.LLMApiError
	if errors.As(err, &apiErr) || errors.Is(err, domain.ErrNotConfigured) {
		return domain.ErrCodeAPIError
	}
	return "unexpected_error"
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}
