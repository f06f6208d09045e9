package toolconv

import (
	"encoding/json"
	"testing"

	"google.golang.org/genai"

	"github.com/nexuscore/agentrt/internal/agent"
)

func TestToGeminiToolsSkipsUnparseableSchemas(t *testing.T) {
	tools := []agent.Tool{
		stubTool{
			name:        "search",
			description: "Search tool",
			schema:      json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`),
		},
		stubTool{
			name:   "broken",
			schema: json.RawMessage(`{not-json}`),
		},
	}

	result := ToGeminiTools(tools)
	if len(result) != 1 || len(result[0].FunctionDeclarations) != 1 {
		t.Fatalf("expected one declaration, unparseable schema skipped, got %#v", result)
	}
	decl := result[0].FunctionDeclarations[0]
	if decl.Name != "search" {
		t.Fatalf("unexpected name: %q", decl.Name)
	}
	if decl.Parameters == nil || decl.Parameters.Type != genai.TypeObject {
		t.Fatalf("schema type not converted: %#v", decl.Parameters)
	}
	if len(decl.Parameters.Required) != 1 || decl.Parameters.Required[0] != "q" {
		t.Fatalf("required fields not carried: %#v", decl.Parameters.Required)
	}
}

func TestToGeminiSchemaNested(t *testing.T) {
	schema := ToGeminiSchema(map[string]any{
		"type":        "object",
		"description": "outer",
		"properties": map[string]any{
			"tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
	})

	if schema.Type != genai.TypeObject || schema.Description != "outer" {
		t.Fatalf("outer schema wrong: %#v", schema)
	}
	tags := schema.Properties["tags"]
	if tags == nil || tags.Type != genai.TypeArray || tags.Items == nil || tags.Items.Type != genai.TypeString {
		t.Fatalf("nested array schema wrong: %#v", tags)
	}
}
