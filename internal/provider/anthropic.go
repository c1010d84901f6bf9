package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"neoquery/internal/config"
	"neoquery/internal/domain"
	"neoquery/internal/telemetry"
)

const (
	anthropicAPIVersion = "2023-06-01"

	defaultAnthropicBaseURL = "https://api.anthropic.com"
)

// AnthropicTransport talks to the Anthropic Messages API directly. An empty
// API key builds a transport that reports domain.ErrNotConfigured on every
// call, so the server can boot without a credential and answer with a
// helpful message instead.
type AnthropicTransport struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	metrics    *telemetry.Metrics
	logger     telemetry.Logger
}

// NewAnthropic builds the direct Anthropic transport.
func NewAnthropic(cfg config.AgentConfig, metrics *telemetry.Metrics, logger telemetry.Logger) *AnthropicTransport {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	baseURL := cfg.AnthropicBaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &AnthropicTransport{
		apiKey:     cfg.AnthropicAPIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		metrics:    metrics,
		logger:     logger,
	}
}

// Name identifies the transport in metrics and run metadata.
func (t *AnthropicTransport) Name() string { return "anthropic" }

// Configured reports whether an API key is present.
func (t *AnthropicTransport) Configured() bool { return t.apiKey != "" }

type anthropicRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Tools     []ToolDef `json:"tools,omitempty"`
	Messages  []Message `json:"messages"`
}

type anthropicResponse struct {
	ID         string         `json:"id"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// CreateMessage sends one conversation turn to the Messages API.
func (t *AnthropicTransport) CreateMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error) {
	if t.apiKey == "" {
		return nil, domain.ErrNotConfigured
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     req.Model,
		MaxTokens: maxTokens,
		System:    req.System,
		Tools:     req.Tools,
		Messages:  req.Messages,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", t.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		t.record(req.Model, "error", 0, 0)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		t.record(req.Model, "error", 0, 0)
		apiErr := decodeAPIError(resp)
		t.logger.Warn("anthropic request failed", "status", resp.StatusCode, "error", apiErr.Message)
		return nil, apiErr
	}

	var result anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.record(req.Model, "error", 0, 0)
		return nil, fmt.Errorf("decode response: %w", err)
	}

	t.record(req.Model, "ok", result.Usage.InputTokens, result.Usage.OutputTokens)
	t.logger.Debug("anthropic response",
		"model", result.Model,
		"stop_reason", result.StopReason,
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens)

	return &MessageResponse{
		Content:    result.Content,
		StopReason: result.StopReason,
		Model:      result.Model,
		Usage:      Usage{InputTokens: result.Usage.InputTokens, OutputTokens: result.Usage.OutputTokens},
	}, nil
}

// ListModels pages through GET /v1/models and returns every model id the
// key can see.
func (t *AnthropicTransport) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if t.apiKey == "" {
		return nil, domain.ErrNotConfigured
	}

	var models []ModelInfo
	afterID := ""
	for {
		page, err := t.listModelsPage(ctx, afterID)
		if err != nil {
			return nil, err
		}
		for _, m := range page.Data {
			models = append(models, ModelInfo{ID: m.ID, Name: m.DisplayName})
		}
		if !page.HasMore || page.LastID == "" {
			return models, nil
		}
		afterID = page.LastID
	}
}

type anthropicModelPage struct {
	Data []struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	} `json:"data"`
	HasMore bool   `json:"has_more"`
	LastID  string `json:"last_id"`
}

func (t *AnthropicTransport) listModelsPage(ctx context.Context, afterID string) (*anthropicModelPage, error) {
	endpoint := t.baseURL + "/v1/models?limit=100"
	if afterID != "" {
		endpoint += "&after_id=" + url.QueryEscape(afterID)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-api-key", t.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp)
	}

	var page anthropicModelPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}
	return &page, nil
}

func (t *AnthropicTransport) record(model, status string, inputTokens, outputTokens int) {
	if t.metrics != nil {
		t.metrics.RecordLLMRequest(t.Name(), model, status, int64(inputTokens), int64(outputTokens))
	}
}

// decodeAPIError turns a non-2xx reply into an LLMApiError, pulling the
// message out of the standard error envelope when the body carries one.
func decodeAPIError(resp *http.Response) *LLMApiError {
	body, _ := io.ReadAll(resp.Body)

	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return &LLMApiError{
			StatusCode: resp.StatusCode,
			Type:       envelope.Error.Type,
			Message:    envelope.Error.Message,
		}
	}

	return &LLMApiError{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("%s - %s", resp.Status, strings.TrimSpace(string(body))),
	}
}
