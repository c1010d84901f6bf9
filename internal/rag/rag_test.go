package rag

import (
	"context"
	"strings"
	"testing"

	"neoquery/internal/config"
	"neoquery/internal/docindex"
	"neoquery/internal/domain"
	"neoquery/internal/provider"
)

// fakeTransport records the last request and returns a canned reply.
type fakeTransport struct {
	configured bool
	lastReq    *provider.MessageRequest
	reply      string
	err        error
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Configured() bool { return f.configured }

func (f *fakeTransport) CreateMessage(_ context.Context, req *provider.MessageRequest) (*provider.MessageResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &provider.MessageResponse{
		Content:    []provider.ContentBlock{provider.TextBlock(f.reply)},
		StopReason: provider.StopEndTurn,
		Model:      req.Model,
	}, nil
}

func testDocs() []docindex.SearchResult {
	return []docindex.SearchResult{
		{
			ID:      "p1",
			Source:  "patents",
			Title:   "Lipid nanoparticle composition",
			Snippet: "A composition for mRNA delivery.",
			URL:     "https://example.test/patent/p1",
			Metadata: map[string]any{
				"patent_number": "US111",
				"assignee":      "Moderna",
				"grant_date":    "2024-05-01",
			},
		},
		{
			ID:      "g1",
			Source:  "grants",
			Title:   "mRNA vaccine stability",
			Snippet: "Improving thermostability of mRNA vaccines.",
			URL:     "https://example.test/grant/g1",
			Metadata: map[string]any{
				"institute":  "NIAID",
				"total_cost": float64(2500000),
			},
		},
	}
}

func newTestService(llm provider.Transport) *Service {
	cfg := config.Default().Agent
	return New(cfg, llm, nil)
}

func TestAsk(t *testing.T) {
	ctx := context.Background()

	t.Run("unconfigured transport returns canned answer", func(t *testing.T) {
		svc := newTestService(&fakeTransport{configured: false})
		got := svc.Ask(ctx, "what's new?", testDocs(), nil, "")
		if got.Error != domain.ErrCodeMissingAPIKey {
			t.Errorf("error = %q", got.Error)
		}
		if !strings.Contains(got.Answer, "not configured") {
			t.Errorf("answer = %q", got.Answer)
		}
	})

	t.Run("no documents and no history skips the LLM", func(t *testing.T) {
		llm := &fakeTransport{configured: true, reply: "should not be called"}
		svc := newTestService(llm)
		got := svc.Ask(ctx, "anything", nil, nil, "")
		if llm.lastReq != nil {
			t.Error("LLM called without context")
		}
		if !strings.Contains(got.Answer, "don't have any relevant documents") {
			t.Errorf("answer = %q", got.Answer)
		}
		if got.Error != "" {
			t.Errorf("unexpected error %q", got.Error)
		}
	})

	t.Run("context block carries numbered documents and metadata", func(t *testing.T) {
		llm := &fakeTransport{configured: true, reply: "Moderna holds the LNP patent [1]."}
		svc := newTestService(llm)
		got := svc.Ask(ctx, "who owns LNP IP?", testDocs(), nil, "claude-test")

		if got.Answer != "Moderna holds the LNP patent [1]." {
			t.Errorf("answer = %q", got.Answer)
		}
		if got.ContextCount != 2 || got.Model != "claude-test" {
			t.Errorf("got %+v", got)
		}
		if len(got.Sources) != 2 || got.Sources[0].ID != "p1" || got.Sources[1].Source != "grants" {
			t.Errorf("sources = %+v", got.Sources)
		}

		msg := llm.lastReq.Messages[len(llm.lastReq.Messages)-1].Content[0].Text
		for _, want := range []string{
			"[1] [PATENTS] Lipid nanoparticle composition",
			"Patent: US111 | Assignee: Moderna | Date: 2024-05-01",
			"[2] [GRANTS] mRNA vaccine stability",
			"Funding: $2,500,000",
			"QUESTION: who owns LNP IP?",
			"Cite sources by their document number",
		} {
			if !strings.Contains(msg, want) {
				t.Errorf("context missing %q in:\n%s", want, msg)
			}
		}
		if llm.lastReq.MaxTokens != 1024 {
			t.Errorf("max_tokens = %d", llm.lastReq.MaxTokens)
		}
		if len(llm.lastReq.Tools) != 0 {
			t.Error("rag ask must not advertise tools")
		}
	})

	t.Run("history rides ahead of the context message", func(t *testing.T) {
		llm := &fakeTransport{configured: true, reply: "ok"}
		svc := newTestService(llm)
		history := []domain.HistoryMessage{
			{Role: "user", Content: "earlier question"},
			{Role: "assistant", Content: "earlier answer"},
		}
		svc.Ask(ctx, "follow-up", testDocs(), history, "")

		msgs := llm.lastReq.Messages
		if len(msgs) != 3 {
			t.Fatalf("expected 3 messages, got %d", len(msgs))
		}
		if msgs[0].Content[0].Text != "earlier question" || msgs[1].Role != "assistant" {
			t.Errorf("history order wrong: %+v", msgs)
		}
	})

	t.Run("api failure reports api_error with the message", func(t *testing.T) {
		llm := &fakeTransport{configured: true, err: &provider.LLMApiError{StatusCode: 529, Message: "overloaded"}}
		svc := newTestService(llm)
		got := svc.Ask(ctx, "q", testDocs(), nil, "")
		if got.Error != domain.ErrCodeAPIError {
			t.Errorf("error = %q", got.Error)
		}
		if !strings.Contains(got.Answer, "overloaded") {
			t.Errorf("answer = %q", got.Answer)
		}
	})

	t.Run("default model comes from config", func(t *testing.T) {
		llm := &fakeTransport{configured: true, reply: "ok"}
		svc := newTestService(llm)
		got := svc.Ask(ctx, "q", testDocs(), nil, "")
		if got.Model != config.Default().Agent.RAGModel {
			t.Errorf("model = %q", got.Model)
		}
	})
}
