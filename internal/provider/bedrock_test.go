package provider

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

func TestConverseMessages(t *testing.T) {
	msgs := []Message{
		UserText("How many patents?"),
		{Role: RoleAssistant, Content: []ContentBlock{
			{Type: BlockText, Text: "Checking."},
			{Type: BlockToolUse, ID: "toolu_01", Name: "get_patents"},
		}},
		{Role: RoleUser, Content: []ContentBlock{
			ToolResultBlock("toolu_01", `{"error": "service unavailable"}`, true),
		}},
		{Role: RoleUser, Content: []ContentBlock{{Type: BlockText, Text: ""}}},
	}

	out := converseMessages(msgs)
	if len(out) != 3 {
		t.Fatalf("got %d messages, want 3 (empty one dropped)", len(out))
	}

	if out[0].Role != types.ConversationRoleUser {
		t.Errorf("out[0].Role = %v", out[0].Role)
	}
	if text, ok := out[0].Content[0].(*types.ContentBlockMemberText); !ok || text.Value != "How many patents?" {
		t.Errorf("out[0].Content[0] = %#v", out[0].Content[0])
	}

	if out[1].Role != types.ConversationRoleAssistant {
		t.Errorf("out[1].Role = %v", out[1].Role)
	}
	if len(out[1].Content) != 2 {
		t.Fatalf("assistant message has %d blocks", len(out[1].Content))
	}
	use, ok := out[1].Content[1].(*types.ContentBlockMemberToolUse)
	if !ok {
		t.Fatalf("out[1].Content[1] = %#v", out[1].Content[1])
	}
	if aws.ToString(use.Value.ToolUseId) != "toolu_01" || aws.ToString(use.Value.Name) != "get_patents" {
		t.Errorf("tool use block = %+v", use.Value)
	}
	var input map[string]any
	if err := use.Value.Input.UnmarshalSmithyDocument(&input); err != nil {
		t.Fatalf("unmarshal tool input: %v", err)
	}
	if len(input) != 0 {
		t.Errorf("tool input = %v, want empty object", input)
	}

	result, ok := out[2].Content[0].(*types.ContentBlockMemberToolResult)
	if !ok {
		t.Fatalf("out[2].Content[0] = %#v", out[2].Content[0])
	}
	if aws.ToString(result.Value.ToolUseId) != "toolu_01" {
		t.Errorf("tool result id = %v", result.Value.ToolUseId)
	}
	if result.Value.Status != types.ToolResultStatusError {
		t.Errorf("tool result status = %v", result.Value.Status)
	}
	if text, ok := result.Value.Content[0].(*types.ToolResultContentBlockMemberText); !ok || !strings.Contains(text.Value, "service unavailable") {
		t.Errorf("tool result content = %#v", result.Value.Content[0])
	}
}

func TestConverseTools(t *testing.T) {
	t.Run("no tools means no tool configuration", func(t *testing.T) {
		cfg, err := converseTools(nil)
		if err != nil {
			t.Fatalf("converseTools: %v", err)
		}
		if cfg != nil {
			t.Errorf("cfg = %+v, want nil", cfg)
		}
	})

	t.Run("maps schemas onto tool specs", func(t *testing.T) {
		cfg, err := converseTools([]ToolDef{
			{
				Name:        "get_patents",
				Description: "List patents",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"limit":{"type":"integer"}}}`),
			},
			{Name: "list_tables"},
		})
		if err != nil {
			t.Fatalf("converseTools: %v", err)
		}
		if len(cfg.Tools) != 2 {
			t.Fatalf("got %d tools", len(cfg.Tools))
		}

		spec, ok := cfg.Tools[0].(*types.ToolMemberToolSpec)
		if !ok {
			t.Fatalf("tools[0] = %#v", cfg.Tools[0])
		}
		if aws.ToString(spec.Value.Name) != "get_patents" || aws.ToString(spec.Value.Description) != "List patents" {
			t.Errorf("spec = %+v", spec.Value)
		}
		schemaDoc, ok := spec.Value.InputSchema.(*types.ToolInputSchemaMemberJson)
		if !ok {
			t.Fatalf("input schema = %#v", spec.Value.InputSchema)
		}
		var schema map[string]any
		if err := schemaDoc.Value.UnmarshalSmithyDocument(&schema); err != nil {
			t.Fatalf("unmarshal schema: %v", err)
		}
		if schema["type"] != "object" {
			t.Errorf("schema type = %v", schema["type"])
		}
		if _, ok := schema["properties"]; !ok {
			t.Errorf("schema dropped properties: %v", schema)
		}

		// A tool declared without a schema still gets a minimal object
		// schema; Converse rejects tool specs without one.
		bare, ok := cfg.Tools[1].(*types.ToolMemberToolSpec)
		if !ok {
			t.Fatalf("tools[1] = %#v", cfg.Tools[1])
		}
		if bare.Value.Description != nil {
			t.Errorf("empty description should stay unset, got %q", aws.ToString(bare.Value.Description))
		}
		bareDoc := bare.Value.InputSchema.(*types.ToolInputSchemaMemberJson)
		var bareSchema map[string]any
		if err := bareDoc.Value.UnmarshalSmithyDocument(&bareSchema); err != nil {
			t.Fatalf("unmarshal bare schema: %v", err)
		}
		if bareSchema["type"] != "object" {
			t.Errorf("bare schema = %v", bareSchema)
		}
	})

	t.Run("rejects schemas that are not valid JSON", func(t *testing.T) {
		_, err := converseTools([]ToolDef{{
			Name:        "broken_tool",
			InputSchema: json.RawMessage(`{"type": "object",`),
		}})
		if err == nil || !strings.Contains(err.Error(), "broken_tool") {
			t.Errorf("err = %v, want schema error naming the tool", err)
		}
	})
}
