package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/bus"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/config"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/memory"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/providers"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/sessions"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/tools"
	"github.com/nextlevelbuilder/goclaw-kernel/pkg/protocol"
)

// Loop drives the think -> act -> observe cycle for one role: it loads or
// creates a session, assembles the system prompt, round-trips with a
// provider through the tool registry, and persists the turn.
type Loop struct {
	roleName       string
	rolePromptText string
	isSubagent     bool
	provider       providers.Provider
	model          string
	maxTokens      int
	temperature    float64
	contextWindow  int
	maxIterations  int
	workspace      string

	bus             *bus.Bus
	store           *sessions.Store
	toolRegistry    *tools.Registry
	toolPolicy      *tools.PolicyEngine
	agentToolPolicy *config.ToolPolicySpec
	memoryIdx       *memory.Index
	compression     config.CompressionConfig

	subagents *SubagentManager

	onEvent func(Event)
}

// Event is an in-process notification of agent-loop progress, separate
// from the bus-level OutboundMessage that actually reaches a channel.
// Kept for observability hooks (the CLI logs these; a future channel
// adapter could subscribe to richer progress than ToolProgress alone).
type Event struct {
	Type    string
	RunID   string
	Payload map[string]interface{}
}

func (l *Loop) emit(e Event) {
	if l.onEvent != nil {
		l.onEvent(e)
	}
}

// Config configures a new Loop.
type Config struct {
	RoleName        string
	RolePrompt      string
	IsSubagent      bool
	Provider        providers.Provider
	Model           string
	MaxTokens       int
	Temperature     float64
	ContextWindow   int
	MaxIterations   int
	Workspace       string
	Bus             *bus.Bus
	Store           *sessions.Store
	ToolRegistry    *tools.Registry
	ToolPolicy      *tools.PolicyEngine
	AgentToolPolicy *config.ToolPolicySpec
	MemoryIndex     *memory.Index
	Compression     config.CompressionConfig
	Subagents       *SubagentManager
	OnEvent         func(Event)
}

// New constructs a Loop, defaulting the iteration cap and context
// window when the config leaves them unset.
func New(cfg Config) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 20
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 200000
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	return &Loop{
		roleName:        cfg.RoleName,
		rolePromptText:  cfg.RolePrompt,
		isSubagent:      cfg.IsSubagent,
		provider:        cfg.Provider,
		model:           cfg.Model,
		maxTokens:       cfg.MaxTokens,
		temperature:     cfg.Temperature,
		contextWindow:   cfg.ContextWindow,
		maxIterations:   cfg.MaxIterations,
		workspace:       cfg.Workspace,
		bus:             cfg.Bus,
		store:           cfg.Store,
		toolRegistry:    cfg.ToolRegistry,
		toolPolicy:      cfg.ToolPolicy,
		agentToolPolicy: cfg.AgentToolPolicy,
		memoryIdx:       cfg.MemoryIndex,
		compression:     cfg.Compression,
		subagents:       cfg.Subagents,
		onEvent:         cfg.OnEvent,
	}
}

// Role returns the role name this Loop runs as.
func (l *Loop) Role() string { return l.roleName }

// RunResult is the outcome of one completed turn.
type RunResult struct {
	Content    string
	RunID      string
	Iterations int
	Usage      providers.Usage
	Silent     bool
}

// RunTurn processes one inbound message end to end: load-or-create the
// session named by sessionKey, append the user message, drive the
// provider/tool round trip, sanitize and persist the assistant's reply,
// and return it for delivery. It is safe to call concurrently for
// different sessionKeys; callers serializing a single sessionKey's calls
// (see Dispatcher) get the "at most one active turn per session"
// guarantee the session store's atomic writes depend on.
func (l *Loop) RunTurn(ctx context.Context, sessionKey string, msg bus.InboundMessage) (*RunResult, error) {
	runID := uuid.NewString()
	l.emit(Event{Type: protocol.AgentEventRunStarted, RunID: runID})

	result, err := l.runTurn(ctx, sessionKey, msg, runID)
	if err != nil {
		l.emit(Event{Type: protocol.AgentEventRunFailed, RunID: runID, Payload: map[string]interface{}{"error": err.Error()}})
		return nil, err
	}
	l.emit(Event{Type: protocol.AgentEventRunCompleted, RunID: runID})
	return result, nil
}

func (l *Loop) runTurn(ctx context.Context, sessionKey string, msg bus.InboundMessage, runID string) (*RunResult, error) {
	data, err := l.store.LoadOrCreate(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("agent: load session: %w", err)
	}
	data.Meta.AddParticipant("user:" + msg.SenderID)
	data.Meta.AddParticipant("agent:" + l.roleName)

	images := loadImages(msg.Media)
	ctx = l.withToolContext(ctx, msg, images)

	systemPrompt := l.buildSystemPrompt(ctx, msg.Content)
	providerMsgs := buildProviderMessages(systemPrompt, data.Messages)
	providerMsgs = append(providerMsgs, providers.Message{Role: "user", Content: msg.Content, Images: images})

	userMsg := sessions.NewMessage(sessions.RoleUser, msg.Content)
	data.Append(userMsg)

	var loopDetector toolLoopState
	var totalUsage providers.Usage
	var finalContent string
	var lastAssistantText string
	iteration := 0

	for iteration < l.maxIterations {
		iteration++

		var toolDefs []providers.ToolDefinition
		if l.toolPolicy != nil {
			toolDefs = l.toolPolicy.FilterTools(l.toolRegistry, l.roleName, l.provider.Name(), l.agentToolPolicy, nil, l.isSubagent, false)
		}

		req := providers.ChatRequest{
			Messages: providerMsgs,
			Tools:    toolDefs,
			Model:    l.model,
			Options: map[string]interface{}{
				"max_tokens":     l.maxTokens,
				"temperature":    l.temperature,
				"context_window": l.contextWindow,
			},
		}

		resp, err := l.provider.Chat(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("agent: llm call (iteration %d): %w", iteration, err)
		}
		totalUsage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			finalContent = resp.Content
			break
		}

		if resp.Content != "" {
			lastAssistantText = resp.Content
		}
		assistantMsg := providers.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls}
		providerMsgs = append(providerMsgs, assistantMsg)
		data.Append(sessions.NewMessage(sessions.RoleToolCall, describeToolCalls(resp.ToolCalls)))

		toolMsgs, toolUsage, stuckMsg := l.executeToolCalls(ctx, msg, runID, resp.ToolCalls, &loopDetector, data)
		providerMsgs = append(providerMsgs, toolMsgs...)
		totalUsage.Add(&toolUsage)
		if stuckMsg != "" {
			finalContent = stuckMsg
			break
		}
	}

	if finalContent == "" && iteration >= l.maxIterations {
		notice := "I reached my tool-call iteration limit for this turn without finishing."
		if lastAssistantText != "" {
			finalContent = lastAssistantText + "\n\n" + notice
		} else {
			finalContent = notice
		}
	}

	finalContent = SanitizeAssistantContent(finalContent)
	silent := IsSilentReply(finalContent)
	if finalContent == "" {
		finalContent = "..."
	}

	data.Append(sessions.NewMessage(sessions.RoleAssistant, finalContent))
	if err := l.store.Save(sessionKey, data); err != nil {
		slog.Error("agent: failed to persist session", "session", sessionKey, "error", err)
	}

	if l.compression.ShouldCompress(len(data.Messages)) {
		slog.Info("agent: session crossed compression threshold", "session", sessionKey, "messages", len(data.Messages))
	}

	deliverable := finalContent
	if silent {
		deliverable = ""
	}
	return &RunResult{Content: deliverable, RunID: runID, Iterations: iteration, Usage: totalUsage, Silent: silent}, nil
}

// withToolContext attaches the per-turn routing values tools read from
// ctx (workspace, sandbox key, approval addressing, vision/image-gen
// overrides, media attachments, memory index).
func (l *Loop) withToolContext(ctx context.Context, msg bus.InboundMessage, images []providers.ImageContent) context.Context {
	if l.workspace != "" {
		ctx = tools.WithToolWorkspace(ctx, l.workspace)
	}
	ctx = tools.WithToolSandboxKey(ctx, msg.SessionKey())
	ctx = tools.WithApprovalSession(ctx, msg.SessionKey(), msg.Channel, msg.ChatID)
	if l.agentToolPolicy != nil {
		if l.agentToolPolicy.Vision != nil {
			ctx = tools.WithVisionConfig(ctx, l.agentToolPolicy.Vision)
		}
		if l.agentToolPolicy.ImageGen != nil {
			ctx = tools.WithImageGenConfig(ctx, l.agentToolPolicy.ImageGen)
		}
	}
	if l.memoryIdx != nil {
		ctx = tools.WithMemoryIndex(ctx, l.memoryIdx)
	}
	if len(images) > 0 {
		ctx = tools.WithMediaImages(ctx, images)
	}
	return ctx
}

// executeToolCalls runs every requested tool call; sequentially for a
// single call, concurrently via errgroup for several; replays the
// results into the session in original-call order, accumulates any
// tool-internal LLM usage, and reports a critical-loop abort message
// when the loop detector trips.
func (l *Loop) executeToolCalls(ctx context.Context, msg bus.InboundMessage, runID string, calls []providers.ToolCall, loopDetector *toolLoopState, data *sessions.Data) ([]providers.Message, providers.Usage, string) {
	type outcome struct {
		msg   providers.Message
		usage *providers.Usage
	}
	results := make([]outcome, len(calls))

	exec := func(i int) {
		tc := calls[i]
		l.emit(Event{Type: protocol.AgentEventToolCall, RunID: runID, Payload: map[string]interface{}{"name": tc.Name, "id": tc.ID}})
		l.publishToolProgress(msg, tc.Name, "started", "")

		argsHash := loopDetector.record(tc.Name, tc.Arguments)
		result := l.invokeTool(ctx, tc)
		loopDetector.recordResult(argsHash, result.ForLLM)

		if result.Err != nil {
			slog.Warn("agent: tool reported internal error", "tool", tc.Name, "error", result.Err)
		}

		payload := map[string]interface{}{"name": tc.Name, "id": tc.ID, "is_error": result.IsError}
		if result.Provider != "" {
			payload["provider"] = result.Provider
		}
		if result.Model != "" {
			payload["model"] = result.Model
		}
		l.emit(Event{Type: protocol.AgentEventToolResult, RunID: runID, Payload: payload})

		preview := ""
		if !result.Silent {
			preview = result.ForUser
		}
		l.publishToolProgress(msg, tc.Name, statusFor(result), preview)

		argsJSON, _ := json.Marshal(tc.Arguments)
		data.Append(sessions.NewMessage(sessions.RoleToolResult, fmt.Sprintf("%s(%s) -> %s", tc.Name,
			sessions.ToolCallArgsPreview(string(argsJSON)), sessions.ToolResultPreview(result.ForLLM))))

		results[i] = outcome{
			msg:   providers.Message{Role: "tool", Content: result.ForLLM, ToolCallID: tc.ID},
			usage: result.Usage,
		}
	}

	if len(calls) == 1 {
		exec(0)
	} else {
		// Multiple tool calls in one turn execute concurrently; tools are
		// built to be safe for concurrent use (state travels through ctx,
		// not instance fields; see internal/tools/context_keys.go), and
		// results are replayed into the session in original call order
		// below for deterministic history regardless of finish order.
		var g errgroup.Group
		for i := range calls {
			i := i
			g.Go(func() error { exec(i); return nil })
		}
		_ = g.Wait()
	}

	out := make([]providers.Message, len(results))
	var toolUsage providers.Usage
	for i, r := range results {
		out[i] = r.msg
		toolUsage.Add(r.usage)
	}

	for _, tc := range calls {
		hash := hashArgs(tc.Arguments)
		if level, note := loopDetector.detect(tc.Name, hash); level == loopLevelCritical {
			slog.Warn("agent: tool-call loop detected, aborting turn", "tool", tc.Name, "note", note)
			return out, toolUsage, "I got stuck repeatedly calling " + tc.Name + " without making progress. Could you rephrase what you'd like me to do?"
		}
	}
	return out, toolUsage, ""
}

func statusFor(r *tools.Result) string {
	if r.IsError {
		return "error"
	}
	return "done"
}

func (l *Loop) publishToolProgress(msg bus.InboundMessage, toolName, status, preview string) {
	if l.bus == nil {
		return
	}
	l.bus.PublishOutbound(bus.ToolProgress(msg.Channel, msg.ChatID, bus.ToolProgressPayload{
		ToolName: toolName,
		Status:   status,
		Preview:  preview,
	}))
}

func (l *Loop) invokeTool(ctx context.Context, tc providers.ToolCall) *tools.Result {
	t, ok := l.toolRegistry.Get(tc.Name)
	if !ok {
		return tools.ErrorResult(fmt.Sprintf("unknown tool %q", tc.Name))
	}
	return t.Execute(ctx, tc.Arguments)
}

func describeToolCalls(calls []providers.ToolCall) string {
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// buildProviderMessages converts persisted session history into the
// provider wire format, prefixed by the assembled system prompt. Tool
// call/result history is not currently replayed to the provider (the
// session store keeps only human-readable previews of those turns); only
// user/assistant text round-trips across turns.
func buildProviderMessages(systemPrompt string, history []sessions.Message) []providers.Message {
	msgs := make([]providers.Message, 0, len(history)+1)
	msgs = append(msgs, providers.Message{Role: "system", Content: systemPrompt})
	for _, m := range history {
		if m.Role != sessions.RoleUser && m.Role != sessions.RoleAssistant {
			continue
		}
		msgs = append(msgs, providers.Message{Role: m.Role, Content: m.Content})
	}
	return msgs
}
