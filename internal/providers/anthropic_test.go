package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicBuildRequestShape(t *testing.T) {
	p := NewAnthropicProvider("k")
	req := ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "You are a test."},
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "checking", ToolCalls: []ToolCall{
				{ID: "tc1", Name: "lookup", Arguments: map[string]interface{}{"q": "x"}},
			}},
			{Role: "tool", Content: "result text", ToolCallID: "tc1"},
		},
		Tools: []ToolDefinition{{
			Type: "function",
			Function: ToolFunctionSchema{
				Name:        "lookup",
				Description: "look things up",
				Parameters:  map[string]interface{}{"type": "object"},
			},
		}},
		Options: map[string]interface{}{"max_tokens": 512, "temperature": 0.2},
	}

	wire := p.buildRequest(req, false)

	if wire.System != "You are a test." {
		t.Errorf("system prompt not lifted out-of-band: %q", wire.System)
	}
	if wire.MaxTokens != 512 {
		t.Errorf("max tokens = %d", wire.MaxTokens)
	}
	if wire.Temperature == nil || *wire.Temperature != 0.2 {
		t.Errorf("temperature = %v", wire.Temperature)
	}
	if len(wire.Messages) != 3 {
		t.Fatalf("wire messages = %d, want 3 (system excluded)", len(wire.Messages))
	}

	assistant := wire.Messages[1]
	if assistant.Role != "assistant" || len(assistant.Content) != 2 {
		t.Fatalf("assistant message = %+v", assistant)
	}
	if assistant.Content[1].Type != "tool_use" || assistant.Content[1].ID != "tc1" {
		t.Errorf("tool_use block = %+v", assistant.Content[1])
	}

	toolResult := wire.Messages[2]
	if toolResult.Role != "user" || toolResult.Content[0].Type != "tool_result" || toolResult.Content[0].ToolUseID != "tc1" {
		t.Errorf("tool_result block = %+v", toolResult)
	}

	if len(wire.Tools) != 1 || wire.Tools[0].Name != "lookup" {
		t.Errorf("tools = %+v", wire.Tools)
	}
}

func TestAnthropicChatParsesToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "k" || r.Header.Get("Anthropic-Version") == "" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": "Let me check."},
				{"type": "tool_use", "id": "call-1", "name": "lookup", "input": map[string]interface{}{"q": "weather"}},
			},
			"stop_reason": "tool_use",
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", WithAnthropicBaseURL(srv.URL))
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "weather?"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Let me check." {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "lookup" || resp.ToolCalls[0].Arguments["q"] != "weather" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("finish reason = %q", resp.FinishReason)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestOpenAIChatParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing bearer token")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{{
				"message": map[string]interface{}{
					"content": "",
					"tool_calls": []map[string]interface{}{{
						"id":   "call-1",
						"type": "function",
						"function": map[string]interface{}{
							"name":      "lookup",
							"arguments": `{"q":"news"}`,
						},
					}},
				},
				"finish_reason": "tool_calls",
			}},
			"usage": map[string]int{"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider("deepseek", "k", srv.URL, "deepseek-chat")
	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "news?"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Arguments["q"] != "news" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 10 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestStubProviderReplaysScript(t *testing.T) {
	p := NewStubProvider(
		ChatResponse{Content: "first"},
		ChatResponse{Content: "second"},
	)
	ctx := context.Background()
	for i, want := range []string{"first", "second", "second"} {
		resp, err := p.Chat(ctx, ChatRequest{})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if resp.Content != want {
			t.Errorf("call %d = %q, want %q", i, resp.Content, want)
		}
	}
	if p.Calls() != 3 {
		t.Errorf("calls = %d", p.Calls())
	}
}
