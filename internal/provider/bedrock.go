package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"neoquery/internal/config"
	"neoquery/internal/telemetry"
)

// BedrockTransport drives conversations through the AWS Bedrock Converse
// API. Credentials come from the standard AWS chain; static keys in the
// agent configuration take precedence when both are set.
type BedrockTransport struct {
	runtime *bedrockruntime.Client
	control *bedrock.Client
	metrics *telemetry.Metrics
	logger  telemetry.Logger
}

// NewBedrock builds the Bedrock transport for the configured region.
func NewBedrock(cfg config.AgentConfig, metrics *telemetry.Metrics, logger telemetry.Logger) (*BedrockTransport, error) {
	if logger == nil {
		logger = telemetry.NopLogger()
	}

	region := cfg.AWSRegion
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &BedrockTransport{
		runtime: bedrockruntime.NewFromConfig(awsCfg),
		control: bedrock.NewFromConfig(awsCfg),
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Name identifies the transport in metrics and run metadata.
func (t *BedrockTransport) Name() string { return "bedrock" }

// CreateMessage sends one conversation turn through the Converse API.
func (t *BedrockTransport) CreateMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	toolConfig, err := converseTools(req.Tools)
	if err != nil {
		return nil, err
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.Model),
		Messages: converseMessages(req.Messages),
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(maxTokens)),
		},
		ToolConfig: toolConfig,
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}

	output, err := t.runtime.Converse(ctx, input)
	if err != nil {
		t.record(req.Model, "error", 0, 0)
		t.logger.Warn("bedrock request failed", "model", req.Model, "error", err)
		return nil, fmt.Errorf("bedrock Converse API error: %w", err)
	}

	res := &MessageResponse{Model: req.Model}

	if msg, ok := output.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *types.ContentBlockMemberText:
				res.Content = append(res.Content, ContentBlock{Type: BlockText, Text: v.Value})
			case *types.ContentBlockMemberToolUse:
				blockInput := map[string]any{}
				if v.Value.Input != nil {
					v.Value.Input.UnmarshalSmithyDocument(&blockInput)
				}
				res.Content = append(res.Content, ContentBlock{
					Type:  BlockToolUse,
					ID:    aws.ToString(v.Value.ToolUseId),
					Name:  aws.ToString(v.Value.Name),
					Input: blockInput,
				})
			}
		}
	}

	if output.Usage != nil {
		res.Usage = Usage{
			InputTokens:  int(aws.ToInt32(output.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(output.Usage.OutputTokens)),
		}
	}

	switch output.StopReason {
	case types.StopReasonEndTurn:
		res.StopReason = StopEndTurn
	case types.StopReasonToolUse:
		res.StopReason = StopToolUse
	case types.StopReasonMaxTokens:
		res.StopReason = StopMaxTokens
	default:
		res.StopReason = string(output.StopReason)
	}

	t.record(req.Model, "ok", res.Usage.InputTokens, res.Usage.OutputTokens)
	t.logger.Debug("bedrock response",
		"model", req.Model,
		"stop_reason", res.StopReason,
		"input_tokens", res.Usage.InputTokens,
		"output_tokens", res.Usage.OutputTokens)

	return res, nil
}

// ListModels asks the Bedrock control plane for the Anthropic foundation
// models available in the region.
func (t *BedrockTransport) ListModels(ctx context.Context) ([]ModelInfo, error) {
	out, err := t.control.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{
		ByProvider: aws.String("anthropic"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list foundation models: %w", err)
	}

	var models []ModelInfo
	for _, summary := range out.ModelSummaries {
		if summary.ModelId == nil {
			continue
		}
		models = append(models, ModelInfo{
			ID:   aws.ToString(summary.ModelId),
			Name: aws.ToString(summary.ModelName),
		})
	}
	return models, nil
}

func (t *BedrockTransport) record(model, status string, inputTokens, outputTokens int) {
	if t.metrics != nil {
		t.metrics.RecordLLMRequest(t.Name(), model, status, int64(inputTokens), int64(outputTokens))
	}
}

// converseMessages maps conversation messages onto Converse content
// blocks. The Converse API only knows user and assistant roles; tool
// results already live in user messages, so the mapping is per block.
func converseMessages(msgs []Message) []types.Message {
	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		role := types.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = types.ConversationRoleAssistant
		}

		var blocks []types.ContentBlock
		for _, b := range m.Content {
			switch b.Type {
			case BlockText:
				if b.Text != "" {
					blocks = append(blocks, &types.ContentBlockMemberText{Value: b.Text})
				}
			case BlockToolUse:
				input := b.Input
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{
						ToolUseId: aws.String(b.ID),
						Name:      aws.String(b.Name),
						Input:     document.NewLazyDocument(input),
					},
				})
			case BlockToolResult:
				result := types.ToolResultBlock{
					ToolUseId: aws.String(b.ToolUseID),
					Content: []types.ToolResultContentBlock{
						&types.ToolResultContentBlockMemberText{Value: b.Content},
					},
				}
				if b.IsError {
					result.Status = types.ToolResultStatusError
				}
				blocks = append(blocks, &types.ContentBlockMemberToolResult{Value: result})
			}
		}

		if len(blocks) > 0 {
			out = append(out, types.Message{Role: role, Content: blocks})
		}
	}
	return out
}

// converseTools maps tool definitions onto a Converse tool configuration,
// decoding each verbatim JSON schema into the document form the SDK wants.
func converseTools(tools []ToolDef) (*types.ToolConfiguration, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	out := make([]types.Tool, 0, len(tools))
	for _, td := range tools {
		var schema map[string]any
		if len(td.InputSchema) > 0 {
			if err := json.Unmarshal(td.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("decode input schema for %s: %w", td.Name, err)
			}
		}
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}

		spec := types.ToolSpecification{
			Name: aws.String(td.Name),
			InputSchema: &types.ToolInputSchemaMemberJson{
				Value: document.NewLazyDocument(schema),
			},
		}
		if td.Description != "" {
			spec.Description = aws.String(td.Description)
		}
		out = append(out, &types.ToolMemberToolSpec{Value: spec})
	}

	return &types.ToolConfiguration{Tools: out}, nil
}
