// Package provider carries agent conversations to an LLM backend. The
// default transport speaks the Anthropic Messages API over plain HTTP; an
// alternate transport drives the same conversation shape through the AWS
// Bedrock Converse API.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"neoquery/internal/config"
	"neoquery/internal/telemetry"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content block types.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Stop reasons. Backends that report anything else pass their own value
// through unchanged.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
)

// Transport sends one conversation turn to an LLM backend.
type Transport interface {
	Name() string
	CreateMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error)
}

// ModelLister is implemented by transports that can enumerate the models
// available behind them.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// MessageRequest is one turn of an agent conversation.
type MessageRequest struct {
	Model     string
	MaxTokens int
	System    string
	Tools     []ToolDef
	Messages  []Message
}

// ToolDef describes a tool the model may call. The schema travels to the
// backend verbatim.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Message is a single conversation message.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one piece of message content. Different types use
// different fields:
//   - text: Text
//   - tool_use: ID, Name, Input
//   - tool_result: ToolUseID, Content, IsError
type ContentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

// MarshalJSON keeps the input field on tool_use blocks even when the model
// called the tool with no arguments; the Messages API rejects tool_use
// blocks without it.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	type alias ContentBlock

	if b.Type == BlockToolUse {
		m := map[string]any{
			"type": b.Type,
			"id":   b.ID,
			"name": b.Name,
		}
		if b.Input != nil {
			m["input"] = b.Input
		} else {
			m["input"] = map[string]any{}
		}
		return json.Marshal(m)
	}

	return json.Marshal(alias(b))
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolResultBlock builds a tool_result block answering the tool_use block
// with the given id.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// UserText builds a plain-text user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// MessageResponse is the model's reply to one conversation turn.
type MessageResponse struct {
	Content    []ContentBlock
	StopReason string
	Model      string
	Usage      Usage
}

// Usage counts the tokens one request consumed.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Text concatenates the text blocks of the response.
func (r *MessageResponse) Text() string {
	var b strings.Builder
	for _, block := range r.Content {
		if block.Type == BlockText {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// LLMApiError is a non-2xx reply from an LLM backend.
type LLMApiError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *LLMApiError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Type)
	}
	return e.Message
}

// New builds the transport named by the agent configuration.
func New(cfg config.AgentConfig, metrics *telemetry.Metrics, logger telemetry.Logger) (Transport, error) {
	switch cfg.Provider {
	case "", "anthropic":
		return NewAnthropic(cfg, metrics, logger), nil
	case "bedrock":
		return NewBedrock(cfg, metrics, logger)
	default:
		return nil, fmt.Errorf("unknown agent provider %q", cfg.Provider)
	}
}
