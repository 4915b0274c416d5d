package tools

import (
	"context"
	"sort"
	"testing"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/config"
)

type namedTool struct{ name string }

func (t *namedTool) Name() string                       { return t.name }
func (t *namedTool) Description() string                { return t.name }
func (t *namedTool) Parameters() map[string]interface{} { return map[string]interface{}{"type": "object"} }
func (t *namedTool) Execute(context.Context, map[string]interface{}) *Result {
	return NewResult("ok")
}

func policyRegistry(t *testing.T, names ...string) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, n := range names {
		r.MustRegister(&namedTool{name: n})
	}
	return r
}

func namesOf(pe *PolicyEngine, r *Registry, agentPolicy *config.ToolPolicySpec, isSubagent bool) []string {
	defs := pe.FilterTools(r, "main", "stub", agentPolicy, nil, isSubagent, false)
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Function.Name)
	}
	sort.Strings(out)
	return out
}

func TestPolicyFullProfileAllowsEverything(t *testing.T) {
	r := policyRegistry(t, "read_file", "exec", "web_search")
	pe := NewPolicyEngine(&config.ToolsConfig{Profile: "full"})
	got := namesOf(pe, r, nil, false)
	if len(got) != 3 {
		t.Fatalf("full profile = %v, want all 3 tools", got)
	}
}

func TestPolicyMinimalProfileRestrictsToFS(t *testing.T) {
	r := policyRegistry(t, "read_file", "write_file", "exec", "web_search")
	pe := NewPolicyEngine(&config.ToolsConfig{Profile: "minimal"})
	got := namesOf(pe, r, nil, false)
	want := []string{"read_file", "write_file"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("minimal profile = %v, want %v", got, want)
	}
}

func TestPolicyGlobalDenyWins(t *testing.T) {
	r := policyRegistry(t, "read_file", "exec")
	pe := NewPolicyEngine(&config.ToolsConfig{Profile: "full", Deny: config.FlexibleStringSlice{"exec"}})
	got := namesOf(pe, r, nil, false)
	if len(got) != 1 || got[0] != "read_file" {
		t.Fatalf("deny list ignored: %v", got)
	}
}

func TestPolicySubagentLosesExecAndSpawn(t *testing.T) {
	r := policyRegistry(t, "read_file", "exec", "spawn", "memory_search")
	pe := NewPolicyEngine(&config.ToolsConfig{Profile: "full"})
	got := namesOf(pe, r, nil, true)
	for _, name := range got {
		if name == "exec" || name == "spawn" {
			t.Fatalf("subagent tool list still contains %q: %v", name, got)
		}
	}
	if len(got) != 2 {
		t.Fatalf("subagent tools = %v", got)
	}
}

func TestPolicyAgentAllowNarrows(t *testing.T) {
	r := policyRegistry(t, "read_file", "exec", "web_search")
	pe := NewPolicyEngine(&config.ToolsConfig{Profile: "full"})
	agentPolicy := &config.ToolPolicySpec{Allow: config.FlexibleStringSlice{"group:web"}}
	got := namesOf(pe, r, agentPolicy, false)
	if len(got) != 1 || got[0] != "web_search" {
		t.Fatalf("agent allow overlay = %v, want [web_search]", got)
	}
}

func TestRegistryRefusesDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&namedTool{name: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&namedTool{name: "x"}); err == nil {
		t.Fatal("duplicate registration accepted")
	}
}
