// Package providers defines the "completion with tool-call round-trips"
// interface the agent loop drives, plus concrete drivers for the
// Anthropic Messages API and for OpenAI-compatible endpoints (OpenAI,
// OpenRouter, DeepSeek, Moonshot, Ollama, and friends). The kernel treats
// everything behind Provider as an external collaborator: the loop only
// ever sees Message/ToolCall/ChatResponse values.
package providers

import "context"

// Provider is one chat-completion backend.
type Provider interface {
	// Chat runs a single completion round trip.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ChatStream runs a completion, delivering incremental chunks through
	// onChunk, and returns the assembled final response.
	ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error)

	// DefaultModel is used when ChatRequest.Model is empty.
	DefaultModel() string

	// Name identifies the driver ("anthropic", "openai", "deepseek", ...).
	Name() string
}

// ChatRequest is the provider-independent completion input.
type ChatRequest struct {
	Messages []Message              `json:"messages"`
	Tools    []ToolDefinition       `json:"tools,omitempty"`
	Model    string                 `json:"model,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"` // max_tokens, temperature, context_window
}

// intOption reads an integer option, tolerating the float64 that
// JSON-decoded option maps carry.
func (r ChatRequest) intOption(key string, def int) int {
	switch v := r.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func (r ChatRequest) floatOption(key string, def float64) float64 {
	switch v := r.Options[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}

// ChatResponse is the provider-independent completion output. A response
// carries either plain Content, or ToolCalls the agent loop must execute
// and feed back.
type ChatResponse struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason"` // "stop" | "tool_calls" | "length"
	Usage        *Usage     `json:"usage,omitempty"`
}

// StreamChunk is one increment of a streaming completion.
type StreamChunk struct {
	Content  string `json:"content,omitempty"`
	Thinking string `json:"thinking,omitempty"`
	Done     bool   `json:"done,omitempty"`
}

// Message is one conversation entry in the provider wire shape.
type Message struct {
	Role       string         `json:"role"` // system | user | assistant | tool
	Content    string         `json:"content"`
	Images     []ImageContent `json:"images,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// ImageContent is a base64 image attached to a user message for
// vision-capable models.
type ImageContent struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// ToolCall is one tool invocation the model requested.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolDefinition is one entry of the tool schema handed to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // always "function"
	Function ToolFunctionSchema `json:"function"`
}

// ToolFunctionSchema carries a tool's name, description, and JSON-Schema
// parameter object.
type ToolFunctionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Usage is the token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates u2 into u. The agent loop sums usage across every
// iteration of a turn's tool loop.
func (u *Usage) Add(u2 *Usage) {
	if u2 == nil {
		return
	}
	u.PromptTokens += u2.PromptTokens
	u.CompletionTokens += u2.CompletionTokens
	u.TotalTokens += u2.TotalTokens
}
