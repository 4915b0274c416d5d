package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicAPIVersion     = "2023-06-01"
	anthropicDefaultModel   = "claude-sonnet-4-5-20250929"
	anthropicMaxTokensCap   = 64000
)

// AnthropicProvider drives the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// AnthropicOption customizes an AnthropicProvider at construction.
type AnthropicOption func(*AnthropicProvider)

// WithAnthropicBaseURL overrides the API base URL (proxies, regional
// endpoints). An empty value keeps the default.
func WithAnthropicBaseURL(base string) AnthropicOption {
	return func(p *AnthropicProvider) {
		if base != "" {
			p.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// NewAnthropicProvider constructs a driver for the given API key.
func NewAnthropicProvider(apiKey string, opts ...AnthropicOption) *AnthropicProvider {
	p := &AnthropicProvider{
		apiKey:  apiKey,
		baseURL: anthropicDefaultBaseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) DefaultModel() string { return anthropicDefaultModel }

// anthropicContentBlock is one element of a message's content array;
// text, image, tool_use, or tool_result depending on which fields are
// set.
type anthropicContentBlock struct {
	Type      string                 `json:"type"`
	Text      string                 `json:"text,omitempty"`
	Source    *anthropicImageSource  `json:"source,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Input     map[string]interface{} `json:"input,omitempty"`
	ToolUseID string                 `json:"tool_use_id,omitempty"`
	Content   string                 `json:"content,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// buildRequest translates the provider-independent request. The Messages
// API wants the system prompt out-of-band, tool results as user-role
// tool_result blocks, and assistant tool calls as tool_use blocks.
func (p *AnthropicProvider) buildRequest(req ChatRequest, stream bool) anthropicRequest {
	model := req.Model
	if model == "" {
		model = p.DefaultModel()
	}
	maxTokens := req.intOption("max_tokens", 8192)
	if maxTokens > anthropicMaxTokensCap {
		maxTokens = anthropicMaxTokensCap
	}

	out := anthropicRequest{Model: model, MaxTokens: maxTokens, Stream: stream}
	if t := req.floatOption("temperature", -1); t >= 0 {
		out.Temperature = &t
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			if out.System != "" {
				out.System += "\n\n"
			}
			out.System += m.Content
		case "tool":
			out.Messages = append(out.Messages, anthropicMessage{
				Role: "user",
				Content: []anthropicContentBlock{{
					Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content,
				}},
			})
		case "assistant":
			blocks := []anthropicContentBlock{}
			if m.Content != "" {
				blocks = append(blocks, anthropicContentBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropicContentBlock{
					Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: tc.Arguments,
				})
			}
			if len(blocks) > 0 {
				out.Messages = append(out.Messages, anthropicMessage{Role: "assistant", Content: blocks})
			}
		default: // user
			blocks := []anthropicContentBlock{}
			for _, img := range m.Images {
				blocks = append(blocks, anthropicContentBlock{
					Type:   "image",
					Source: &anthropicImageSource{Type: "base64", MediaType: img.MimeType, Data: img.Data},
				})
			}
			if m.Content != "" || len(blocks) == 0 {
				blocks = append(blocks, anthropicContentBlock{Type: "text", Text: m.Content})
			}
			out.Messages = append(out.Messages, anthropicMessage{Role: "user", Content: blocks})
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, anthropicTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	return out
}

func (p *AnthropicProvider) post(ctx context.Context, body anthropicRequest) (*http.Response, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", p.apiKey)
	httpReq.Header.Set("Anthropic-Version", anthropicAPIVersion)
	return p.client.Do(httpReq)
}

// Chat runs one non-streaming completion.
func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := p.post(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("anthropic: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("anthropic: read response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("anthropic: parse response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("anthropic: api error %s: %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, truncateForError(raw))
	}

	out := &ChatResponse{
		FinishReason: mapAnthropicStop(parsed.StopReason),
		Usage: &Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}
	var text strings.Builder
	for _, b := range parsed.Content {
		switch b.Type {
		case "text":
			text.WriteString(b.Text)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: b.ID, Name: b.Name, Arguments: b.Input})
		}
	}
	out.Content = text.String()
	return out, nil
}

// ChatStream runs a streaming completion over SSE, forwarding text deltas
// through onChunk and assembling the final response (including any
// tool_use blocks, whose JSON input arrives as partial deltas).
func (p *AnthropicProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	resp, err := p.post(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("anthropic: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, truncateForError(raw))
	}

	type toolAccum struct {
		id, name string
		argJSON  strings.Builder
	}
	var (
		text       strings.Builder
		tools      []*toolAccum
		current    *toolAccum
		stopReason string
		usage      Usage
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		var ev struct {
			Type  string `json:"type"`
			Delta struct {
				Type        string `json:"type"`
				Text        string `json:"text"`
				PartialJSON string `json:"partial_json"`
				StopReason  string `json:"stop_reason"`
			} `json:"delta"`
			ContentBlock struct {
				Type string `json:"type"`
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"content_block"`
			Usage struct {
				InputTokens  int `json:"input_tokens"`
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
			Message struct {
				Usage struct {
					InputTokens  int `json:"input_tokens"`
					OutputTokens int `json:"output_tokens"`
				} `json:"usage"`
			} `json:"message"`
		}
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "message_start":
			usage.PromptTokens = ev.Message.Usage.InputTokens
		case "content_block_start":
			if ev.ContentBlock.Type == "tool_use" {
				current = &toolAccum{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
				tools = append(tools, current)
			} else {
				current = nil
			}
		case "content_block_delta":
			if ev.Delta.Type == "input_json_delta" && current != nil {
				current.argJSON.WriteString(ev.Delta.PartialJSON)
			} else if ev.Delta.Text != "" {
				text.WriteString(ev.Delta.Text)
				if onChunk != nil {
					onChunk(StreamChunk{Content: ev.Delta.Text})
				}
			}
		case "message_delta":
			if ev.Delta.StopReason != "" {
				stopReason = ev.Delta.StopReason
			}
			usage.CompletionTokens = ev.Usage.OutputTokens
		case "message_stop":
			if onChunk != nil {
				onChunk(StreamChunk{Done: true})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("anthropic: stream read: %w", err)
	}

	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	out := &ChatResponse{
		Content:      text.String(),
		FinishReason: mapAnthropicStop(stopReason),
		Usage:        &usage,
	}
	for _, t := range tools {
		args := map[string]interface{}{}
		if s := t.argJSON.String(); s != "" {
			_ = json.Unmarshal([]byte(s), &args)
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: t.id, Name: t.name, Arguments: args})
	}
	return out, nil
}

func mapAnthropicStop(reason string) string {
	switch reason {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	default:
		return "stop"
	}
}

func truncateForError(raw []byte) string {
	s := string(bytes.TrimSpace(raw))
	if len(s) > 400 {
		s = s[:400] + "..."
	}
	return s
}
