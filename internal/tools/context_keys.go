package tools

import (
	"context"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/config"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/memory"
)

// toolContextKey namespaces context values set by the agent loop for tools
// that need per-call routing information (sandbox key, workspace root,
// vision/image-gen overrides) without threading extra parameters through
// every Execute signature.
type toolContextKey string

const (
	ctxToolWorkspace        toolContextKey = "tool_workspace"
	ctxToolSandboxKey       toolContextKey = "tool_sandbox_key"
	ctxVisionConfig         toolContextKey = "vision_config"
	ctxImageGenConfig       toolContextKey = "image_gen_config"
	ctxMemoryIndex          toolContextKey = "memory_index"
	ctxApprovalSession      toolContextKey = "approval_session"
)

// ApprovalSession addresses an approval request back to the channel that
// should render it.
type ApprovalSession struct {
	SessionID string
	Channel   string
	ChatID    string
}

// WithToolWorkspace attaches the workspace root a tool call should operate
// against, overriding the tool's own default workspace.
func WithToolWorkspace(ctx context.Context, workspace string) context.Context {
	return context.WithValue(ctx, ctxToolWorkspace, workspace)
}

// ToolWorkspaceFromCtx returns the workspace set by WithToolWorkspace, or
// "" if none was set.
func ToolWorkspaceFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxToolWorkspace).(string)
	return v
}

// WithToolSandboxKey attaches the sandbox identity a tool call should be
// routed through. An empty key means "execute on host".
func WithToolSandboxKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ctxToolSandboxKey, key)
}

// ToolSandboxKeyFromCtx returns the sandbox key set by WithToolSandboxKey,
// or "" if none was set (host execution).
func ToolSandboxKeyFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxToolSandboxKey).(string)
	return v
}

// WithVisionConfig attaches a per-agent vision provider/model override for
// read_image.
func WithVisionConfig(ctx context.Context, cfg *config.VisionConfig) context.Context {
	return context.WithValue(ctx, ctxVisionConfig, cfg)
}

// VisionConfigFromCtx returns the override set by WithVisionConfig, or nil.
func VisionConfigFromCtx(ctx context.Context) *config.VisionConfig {
	v, _ := ctx.Value(ctxVisionConfig).(*config.VisionConfig)
	return v
}

// WithImageGenConfig attaches a per-agent image-generation provider/model
// override for create_image.
func WithImageGenConfig(ctx context.Context, cfg *config.ImageGenConfig) context.Context {
	return context.WithValue(ctx, ctxImageGenConfig, cfg)
}

// ImageGenConfigFromCtx returns the override set by WithImageGenConfig, or
// nil.
func ImageGenConfigFromCtx(ctx context.Context) *config.ImageGenConfig {
	v, _ := ctx.Value(ctxImageGenConfig).(*config.ImageGenConfig)
	return v
}

// WithMemoryIndex attaches the memory index for the current turn's
// agent_id so memory_search can query it without a global registry.
func WithMemoryIndex(ctx context.Context, idx *memory.Index) context.Context {
	return context.WithValue(ctx, ctxMemoryIndex, idx)
}

// MemoryIndexFromCtx returns the index set by WithMemoryIndex, or nil if
// this agent has no memory index configured.
func MemoryIndexFromCtx(ctx context.Context) *memory.Index {
	v, _ := ctx.Value(ctxMemoryIndex).(*memory.Index)
	return v
}

// WithApprovalSession attaches the session/channel/chat a tool call's
// approval requests should be addressed to. The exec tool is built once at
// registry construction and shared across every concurrent session, so this
// travels per-call through ctx rather than being fixed on the tool instance.
func WithApprovalSession(ctx context.Context, sessionID, channel, chatID string) context.Context {
	return context.WithValue(ctx, ctxApprovalSession, ApprovalSession{
		SessionID: sessionID,
		Channel:   channel,
		ChatID:    chatID,
	})
}

// ApprovalSessionFromCtx returns the session set by WithApprovalSession, or
// the zero value if none was set.
func ApprovalSessionFromCtx(ctx context.Context) ApprovalSession {
	v, _ := ctx.Value(ctxApprovalSession).(ApprovalSession)
	return v
}
