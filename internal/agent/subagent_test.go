package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/providers"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/sessions"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/tools"
)

func stubLoopFactory(t *testing.T, reply string) LoopFactory {
	t.Helper()
	store := sessions.NewStore(t.TempDir())
	return func(roleName string) (*Loop, error) {
		return New(Config{
			RoleName:     "helper",
			IsSubagent:   true,
			Provider:     providers.NewStubProvider(providers.ChatResponse{Content: reply}),
			Store:        store,
			ToolRegistry: tools.NewRegistry(),
		}), nil
	}
}

func TestSpawnReturnsChildReply(t *testing.T) {
	m := NewSubagentManager(2, stubLoopFactory(t, "child answer"))
	reply, err := m.Spawn(context.Background(), "agent:main:cli:direct:p", "helper", "do a thing")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if reply != "child answer" {
		t.Errorf("reply = %q", reply)
	}
}

func TestSpawnRejectsBeyondCap(t *testing.T) {
	m := NewSubagentManager(1, stubLoopFactory(t, "x"))

	// Saturate the only slot, then verify the next spawn fails fast
	// instead of queueing.
	m.sem <- struct{}{}
	defer func() { <-m.sem }()

	_, err := m.Spawn(context.Background(), "parent", "helper", "task")
	if err == nil || !strings.Contains(err.Error(), "too many sub-agents") {
		t.Fatalf("over-cap spawn = %v, want immediate well-formed error", err)
	}
}

func TestSpawnToolRequiresTask(t *testing.T) {
	tool := NewSpawnTool(NewSubagentManager(1, stubLoopFactory(t, "x")), "main")
	res := tool.Execute(context.Background(), map[string]interface{}{})
	if !res.IsError {
		t.Fatal("spawn without a task should be a tool error")
	}
}

func TestSpawnToolRunsTask(t *testing.T) {
	tool := NewSpawnTool(NewSubagentManager(1, stubLoopFactory(t, "delegated result")), "main")
	res := tool.Execute(context.Background(), map[string]interface{}{"task": "summarize"})
	if res.IsError {
		t.Fatalf("spawn tool errored: %s", res.ForLLM)
	}
	if res.ForLLM != "delegated result" {
		t.Errorf("spawn result = %q", res.ForLLM)
	}
}
