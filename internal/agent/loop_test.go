package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/approval"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/bus"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/providers"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/sessions"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/tools"
)

// fakeTool is a registry entry with a canned response, recording every
// invocation.
type fakeTool struct {
	name   string
	mu     sync.Mutex
	calls  int
	result func(args map[string]interface{}) *tools.Result
}

func (f *fakeTool) Name() string                        { return f.name }
func (f *fakeTool) Description() string                 { return "test tool" }
func (f *fakeTool) Parameters() map[string]interface{}  { return map[string]interface{}{"type": "object"} }
func (f *fakeTool) Execute(_ context.Context, args map[string]interface{}) *tools.Result {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.result(args)
}

func (f *fakeTool) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func inbound(content string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:   "cli",
		SenderID:  "tester",
		ChatID:    "1",
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

func newTestLoop(t *testing.T, provider providers.Provider, registry *tools.Registry, maxIter int) (*Loop, *sessions.Store) {
	t.Helper()
	store := sessions.NewStore(t.TempDir())
	if registry == nil {
		registry = tools.NewRegistry()
	}
	loop := New(Config{
		RoleName:      "main",
		Provider:      provider,
		MaxIterations: maxIter,
		Store:         store,
		ToolRegistry:  registry,
	})
	return loop, store
}

func TestRunTurnPlainTextReply(t *testing.T) {
	provider := providers.NewStubProvider(providers.ChatResponse{Content: "hello back"})
	loop, store := newTestLoop(t, provider, nil, 5)

	result, err := loop.RunTurn(context.Background(), "agent:main:cli:direct:1", inbound("hello"))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.Content != "hello back" {
		t.Errorf("content = %q", result.Content)
	}
	if result.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", result.Iterations)
	}

	data, err := store.Load("agent:main:cli:direct:1")
	if err != nil || data == nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if len(data.Messages) != 2 || data.Messages[0].Role != sessions.RoleUser || data.Messages[1].Role != sessions.RoleAssistant {
		t.Fatalf("session messages = %+v", data.Messages)
	}
}

func TestRunTurnToolRoundTrip(t *testing.T) {
	echo := &fakeTool{name: "echo_tool", result: func(args map[string]interface{}) *tools.Result {
		text, _ := args["text"].(string)
		return tools.NewResult("echoed: " + text)
	}}
	registry := tools.NewRegistry()
	registry.MustRegister(echo)

	provider := providers.NewStubProvider(
		providers.ChatResponse{ToolCalls: []providers.ToolCall{
			{ID: "t1", Name: "echo_tool", Arguments: map[string]interface{}{"text": "hi"}},
		}},
		providers.ChatResponse{Content: "done"},
	)
	loop, store := newTestLoop(t, provider, registry, 5)

	result, err := loop.RunTurn(context.Background(), "agent:main:cli:direct:2", inbound("use the tool"))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.Content != "done" || result.Iterations != 2 {
		t.Fatalf("result = %+v", result)
	}
	if echo.callCount() != 1 {
		t.Errorf("tool called %d times, want 1", echo.callCount())
	}

	data, _ := store.Load("agent:main:cli:direct:2")
	var roles []string
	for _, m := range data.Messages {
		roles = append(roles, m.Role)
	}
	want := []string{sessions.RoleUser, sessions.RoleToolCall, sessions.RoleToolResult, sessions.RoleAssistant}
	if strings.Join(roles, ",") != strings.Join(want, ",") {
		t.Fatalf("session roles = %v, want %v", roles, want)
	}
	if !strings.Contains(data.Messages[2].Content, "echoed: hi") {
		t.Errorf("tool result preview = %q", data.Messages[2].Content)
	}
}

func TestRunTurnDenyRuleBlocksExec(t *testing.T) {
	policy := approval.Policy{
		Rules:        []approval.Rule{{Pattern: "rm*", Level: approval.LevelDeny}},
		DefaultLevel: approval.LevelAllow,
	}
	eng := approval.NewEngine(policy, nil)

	execTool := tools.NewExecTool(t.TempDir(), false)
	execTool.SetApprovalEngine(eng)
	registry := tools.NewRegistry()
	registry.MustRegister(execTool)

	provider := providers.NewStubProvider(
		providers.ChatResponse{ToolCalls: []providers.ToolCall{
			{ID: "t1", Name: "exec", Arguments: map[string]interface{}{"command": "rm /tmp/x"}},
		}},
		providers.ChatResponse{Content: "understood, I won't"},
	)
	loop, store := newTestLoop(t, provider, registry, 5)

	result, err := loop.RunTurn(context.Background(), "agent:main:cli:direct:3", inbound("please delete /tmp/x"))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.Content != "understood, I won't" {
		t.Errorf("final content = %q", result.Content)
	}

	data, _ := store.Load("agent:main:cli:direct:3")
	var toolResult string
	for _, m := range data.Messages {
		if m.Role == sessions.RoleToolResult {
			toolResult = m.Content
		}
	}
	if !strings.Contains(toolResult, "denied") {
		t.Fatalf("tool_result = %q, want a denial surfaced to the LLM", toolResult)
	}
}

func TestRunTurnIterationCap(t *testing.T) {
	busy := &fakeTool{name: "busy", result: func(map[string]interface{}) *tools.Result {
		return tools.NewResult("still working")
	}}
	registry := tools.NewRegistry()
	registry.MustRegister(busy)

	// The stub replays its last response forever: an endless tool loop.
	provider := providers.NewStubProvider(providers.ChatResponse{ToolCalls: []providers.ToolCall{
		{ID: "t", Name: "busy", Arguments: map[string]interface{}{"n": 1.0}},
	}})
	loop, _ := newTestLoop(t, provider, registry, 3)

	result, err := loop.RunTurn(context.Background(), "agent:main:cli:direct:4", inbound("loop forever"))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.Iterations != 3 {
		t.Errorf("iterations = %d, want the cap of 3", result.Iterations)
	}
	if !strings.Contains(result.Content, "iteration limit") {
		t.Errorf("capped turn content = %q, want the limit notice", result.Content)
	}
}

func TestRunTurnSessionIsolation(t *testing.T) {
	store := sessions.NewStore(t.TempDir())
	newLoop := func(reply string) *Loop {
		return New(Config{
			RoleName:     "main",
			Provider:     providers.NewStubProvider(providers.ChatResponse{Content: reply}),
			Store:        store,
			ToolRegistry: tools.NewRegistry(),
		})
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("agent:main:cli:direct:iso%d", i)
			msg := inbound(fmt.Sprintf("hello from chat %d", i))
			msg.ChatID = fmt.Sprintf("iso%d", i)
			if _, err := newLoop(fmt.Sprintf("reply %d", i)).RunTurn(context.Background(), key, msg); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent turn failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		key := fmt.Sprintf("agent:main:cli:direct:iso%d", i)
		data, err := store.Load(key)
		if err != nil || data == nil {
			t.Fatalf("session %d missing: %v", i, err)
		}
		wantUser := fmt.Sprintf("hello from chat %d", i)
		if data.Messages[0].Content != wantUser {
			t.Errorf("session %d cross-contaminated: first message %q", i, data.Messages[0].Content)
		}
	}
}

func TestRunTurnLoopDetectorAbortsCriticalLoop(t *testing.T) {
	same := &fakeTool{name: "same", result: func(map[string]interface{}) *tools.Result {
		return tools.NewResult("identical result")
	}}
	registry := tools.NewRegistry()
	registry.MustRegister(same)

	provider := providers.NewStubProvider(providers.ChatResponse{ToolCalls: []providers.ToolCall{
		{ID: "t", Name: "same", Arguments: map[string]interface{}{"q": "x"}},
	}})
	loop, _ := newTestLoop(t, provider, registry, 20)

	result, err := loop.RunTurn(context.Background(), "agent:main:cli:direct:5", inbound("spin"))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.Iterations >= 20 {
		t.Errorf("loop detector never tripped: %d iterations", result.Iterations)
	}
	if !strings.Contains(result.Content, "stuck") {
		t.Errorf("aborted turn content = %q", result.Content)
	}
}

func TestRunTurnSilentReply(t *testing.T) {
	provider := providers.NewStubProvider(providers.ChatResponse{Content: "NO_REPLY"})
	loop, _ := newTestLoop(t, provider, nil, 5)

	result, err := loop.RunTurn(context.Background(), "agent:main:cli:direct:6", inbound("nothing to say"))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if !result.Silent || result.Content != "" {
		t.Errorf("NO_REPLY should produce a silent result, got %+v", result)
	}
}
