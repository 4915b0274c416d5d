package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/agent"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/approval"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/bus"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/config"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/memory"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/providers"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/sandbox"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/sessions"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/tools"
)

// Runtime is the composition root: it owns every process-wide dependency
// the agent loop needs and knows how to build a role's Loop on demand.
// Exactly one Runtime is constructed per process invocation (one-shot
// chat, interactive REPL, or the long-running "start" service all share
// this assembly).
type Runtime struct {
	cfg *config.Config

	Bus          *bus.Bus
	Store        *sessions.Store
	Providers    *providers.Registry
	ToolRegistry *tools.Registry
	ToolPolicy   *tools.PolicyEngine
	Approval     *approval.Engine
	SandboxMgr   sandbox.Manager

	memMu   sync.Mutex
	memIdx  map[string]*memory.Index
	subMgr  *agent.SubagentManager
	dispatch *agent.Dispatcher
}

// NewRuntime assembles every kernel component from cfg. It registers the
// builtin tool set, wires the approval engine's publisher onto the bus,
// and; if a tool-sandbox override is configured; starts the sandbox
// manager so the exec/fs tools route through it instead of the host.
func NewRuntime(cfg *config.Config) (*Runtime, error) {
	workspace := cfg.WorkspacePath()

	rt := &Runtime{
		cfg:       cfg,
		Bus:       bus.New(),
		Store:     sessions.NewStore(filepath.Join(configHome(), "sessions")),
		Providers: providers.BuildRegistry(cfg.Providers),
		memIdx:    make(map[string]*memory.Index),
	}

	rt.Approval = approval.NewEngine(cfg.Tools.Exec.ToApprovalPolicy(), &agent.BusApprovalPublisher{Bus: rt.Bus})

	if cfg.ToolSandbox != nil {
		mgrCfg := cfg.ToManagerConfig()
		rt.SandboxMgr = sandbox.NewToolSandboxManager(mgrCfg, cfg.ToolSandbox.AllowInsecureFallback)
	}

	registry := tools.NewRegistry()
	if rt.SandboxMgr != nil {
		registry.MustRegister(tools.NewSandboxedReadFileTool(workspace, cfg.Tools.Exec.RestrictToWorkspace, rt.SandboxMgr))
		registry.MustRegister(tools.NewSandboxedWriteFileTool(workspace, cfg.Tools.Exec.RestrictToWorkspace, rt.SandboxMgr))
		registry.MustRegister(tools.NewSandboxedEditFileTool(workspace, cfg.Tools.Exec.RestrictToWorkspace, rt.SandboxMgr))
		registry.MustRegister(tools.NewSandboxedListDirTool(workspace, cfg.Tools.Exec.RestrictToWorkspace, rt.SandboxMgr))
		execTool := tools.NewSandboxedExecTool(workspace, cfg.Tools.Exec.RestrictToWorkspace, rt.SandboxMgr)
		execTool.SetApprovalEngine(rt.Approval)
		registry.MustRegister(execTool)
	} else {
		registry.MustRegister(tools.NewReadFileTool(workspace, cfg.Tools.Exec.RestrictToWorkspace))
		registry.MustRegister(tools.NewWriteFileTool(workspace, cfg.Tools.Exec.RestrictToWorkspace))
		registry.MustRegister(tools.NewEditFileTool(workspace, cfg.Tools.Exec.RestrictToWorkspace))
		registry.MustRegister(tools.NewListDirTool(workspace, cfg.Tools.Exec.RestrictToWorkspace))
		execTool := tools.NewExecTool(workspace, cfg.Tools.Exec.RestrictToWorkspace)
		execTool.SetApprovalEngine(rt.Approval)
		registry.MustRegister(execTool)
	}

	registry.MustRegister(tools.NewMemorySearchTool(cfg.Memory))
	registry.MustRegister(tools.NewWebSearchTool(tools.WebSearchConfig{
		Backend:     cfg.Tools.Web.SearchBackend,
		BraveAPIKey: cfg.Tools.Web.Brave.APIKey,
		SearxNGURL:  cfg.Tools.Web.SearxNGURL,
		SearchCount: cfg.Tools.Web.SearchCount,
	}))
	registry.MustRegister(tools.NewWebFetchTool(tools.WebFetchConfig{}))
	registry.MustRegister(tools.NewReadImageTool(rt.Providers))
	registry.MustRegister(tools.NewCreateImageTool(cfg.Providers))

	rt.ToolRegistry = registry
	rt.ToolPolicy = tools.NewPolicyEngine(&cfg.Tools)

	rt.subMgr = agent.NewSubagentManager(cfg.Agent.MaxConcurrentSubagents, rt.NewSubagentLoop)
	registry.MustRegister(agent.NewSpawnTool(rt.subMgr, config.DefaultAgentID))

	rt.dispatch = agent.NewDispatcher(rt.Bus, rt.resolveRole, rt.NewLoop)

	return rt, nil
}

func configHome() string {
	return config.ExpandHome("~/.synbot")
}

// memoryIndexFor returns (creating on first use) the per-agent hybrid
// search index rooted at <home>/.synbot/memory/<agentID>. With autoIndex
// enabled, a freshly opened index catches up with any markdown edits
// made since the last run before the first search hits it; a reindex
// failure keeps the last successful index rather than failing the open.
func (rt *Runtime) memoryIndexFor(agentID string) (*memory.Index, error) {
	rt.memMu.Lock()
	defer rt.memMu.Unlock()
	if idx, ok := rt.memIdx[agentID]; ok {
		return idx, nil
	}
	idx, err := memory.Open(agentID, filepath.Join(configHome(), "memory"), rt.cfg.Memory, rt.cfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("runtime: open memory index for %q: %w", agentID, err)
	}
	if rt.cfg.Memory.AutoIndex {
		if n, err := idx.ReindexIfChanged(context.Background()); err == nil && n > 0 {
			slog.Info("runtime: memory index refreshed", "agent", agentID, "chunks", n)
		}
	}
	rt.memIdx[agentID] = idx
	return idx, nil
}

// resolveRole picks the role name an inbound message should be handled
// by. The CLI channel always runs the agent's default/main role; a
// future multi-role channel adapter could inspect msg.Metadata here.
func (rt *Runtime) resolveRole(bus.InboundMessage) string { return "" }

// NewLoop builds a Loop for roleName (or the configured default role
// when roleName is ""), satisfying agent.LoopFactory. Every Loop shares
// this Runtime's bus, tool registry, policy engine, and provider
// registry; only the role-specific system prompt, workspace, and memory
// index differ. Every role uses the agent-wide provider and model.
func (rt *Runtime) NewLoop(roleName string) (*agent.Loop, error) {
	return rt.newLoop(roleName, false)
}

// NewSubagentLoop is the factory the sub-agent manager spawns children
// through; the resulting Loop carries the sub-agent tool restrictions
// (no exec, no further spawn).
func (rt *Runtime) NewSubagentLoop(roleName string) (*agent.Loop, error) {
	return rt.newLoop(roleName, true)
}

func (rt *Runtime) newLoop(roleName string, isSubagent bool) (*agent.Loop, error) {
	role, ok := rt.cfg.ResolveRole(roleName)
	if !ok && roleName != "" {
		return nil, fmt.Errorf("runtime: unknown role %q", roleName)
	}
	name := role.Name
	if name == "" {
		name = config.DefaultAgentID
	}

	providerName := rt.cfg.Agent.Provider
	model := rt.cfg.Agent.Model
	workspace := rt.cfg.WorkspacePath()
	if role.Workspace != "" {
		workspace = config.ExpandHome(role.Workspace)
	}

	provider, err := rt.Providers.Get(providerName)
	if err != nil {
		return nil, fmt.Errorf("runtime: resolve provider for role %q: %w", name, err)
	}

	memIdx, err := rt.memoryIndexFor(name)
	if err != nil {
		slog.Warn("runtime: memory index unavailable, role runs without memory", "role", name, "error", err)
		memIdx = nil
	}

	var agentToolPolicy *config.ToolPolicySpec
	if role.Tools != nil {
		agentToolPolicy = role.Tools
	}

	return agent.New(agent.Config{
		RoleName:        name,
		RolePrompt:      role.SystemPrompt,
		IsSubagent:      isSubagent,
		Provider:        provider,
		Model:           model,
		MaxTokens:       rt.cfg.Agent.MaxTokens,
		Temperature:     rt.cfg.Agent.Temperature,
		ContextWindow:   rt.cfg.Agent.ContextWindow,
		MaxIterations:   rt.cfg.Agent.MaxToolIterations,
		Workspace:       workspace,
		Bus:             rt.Bus,
		Store:           rt.Store,
		ToolRegistry:    rt.ToolRegistry,
		ToolPolicy:      rt.ToolPolicy,
		AgentToolPolicy: agentToolPolicy,
		MemoryIndex:     memIdx,
		Compression:     rt.cfg.Memory.Compression,
		Subagents:       rt.subMgr,
	}), nil
}

// RunDispatcher drains the bus until ctx is canceled, fanning every
// inbound message out to its resolved role's Loop.
func (rt *Runtime) RunDispatcher(ctx context.Context) error {
	return rt.dispatch.Run(ctx)
}

// Shutdown releases long-lived resources (sandbox containers, memory
// index database handles, pending approval requests).
func (rt *Runtime) Shutdown(ctx context.Context) {
	rt.Approval.Shutdown()
	if rt.SandboxMgr != nil {
		if err := rt.SandboxMgr.Shutdown(ctx); err != nil {
			slog.Warn("runtime: sandbox manager shutdown failed", "error", err)
		}
	}
	rt.memMu.Lock()
	defer rt.memMu.Unlock()
	for id, idx := range rt.memIdx {
		if err := idx.Close(); err != nil {
			slog.Warn("runtime: close memory index failed", "agent", id, "error", err)
		}
	}
}
