package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/bus"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/tools"
)

// LoopFactory builds a fresh Loop configured for roleName, sharing every
// process-wide dependency (bus, tool registry, providers, memory index
// set) with the caller. Supplied by the composition root (cmd/) so this
// package never has to know how a role's Loop is assembled. The factory
// given to NewSubagentManager must return Loops with Config.IsSubagent
// set so their tool policy excludes subagentDenyList entries.
type LoopFactory func(roleName string) (*Loop, error)

// SubagentManager enforces the global max_concurrent_subagents cap with a
// buffered-channel semaphore and re-enters the same Agent Loop machinery
// for a child turn, addressed under a synthetic session key derived from
// the parent's.
type SubagentManager struct {
	sem     chan struct{}
	newLoop LoopFactory
}

// NewSubagentManager constructs a manager allowing at most maxConcurrent
// spawned sub-agent turns to run at once. maxConcurrent <= 0 means 1.
func NewSubagentManager(maxConcurrent int, newLoop LoopFactory) *SubagentManager {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &SubagentManager{sem: make(chan struct{}, maxConcurrent), newLoop: newLoop}
}

// errTooManySubagents is returned (as a well-formed tool error, not a
// panic or silent drop) when the concurrency cap is already saturated.
var errTooManySubagents = fmt.Errorf("too many sub-agents already running; try again shortly")

// Spawn runs task through roleName's Agent Loop as a child turn under a
// synthetic session key "<parentKey>:subagent:<id>", and returns the
// child's final assistant text.
func (m *SubagentManager) Spawn(ctx context.Context, parentSessionKey, roleName, task string) (string, error) {
	select {
	case m.sem <- struct{}{}:
	default:
		return "", errTooManySubagents
	}
	defer func() { <-m.sem }()

	loop, err := m.newLoop(roleName)
	if err != nil {
		return "", fmt.Errorf("subagent: resolve role %q: %w", roleName, err)
	}

	childKey := fmt.Sprintf("%s:subagent:%s", parentSessionKey, uuid.NewString())
	msg := bus.InboundMessage{
		Channel:   "subagent",
		SenderID:  "parent:" + parentSessionKey,
		ChatID:    childKey,
		Content:   task,
		Timestamp: time.Now().UTC(),
	}

	result, err := loop.RunTurn(ctx, childKey, msg)
	if err != nil {
		return "", fmt.Errorf("subagent: run: %w", err)
	}
	return result.Content, nil
}

// SpawnTool is the spawn tool: it hands a task
// to a named role's own Agent Loop and returns its answer. It is always
// excluded from a sub-agent's own tool list (internal/tools/policy.go's
// subagentDenyList), so a spawned agent can never itself spawn further
// sub-agents.
type SpawnTool struct {
	manager     *SubagentManager
	defaultRole string
}

// NewSpawnTool builds the spawn tool. defaultRole is used when a call
// omits "role".
func NewSpawnTool(manager *SubagentManager, defaultRole string) *SpawnTool {
	return &SpawnTool{manager: manager, defaultRole: defaultRole}
}

func (t *SpawnTool) Name() string { return "spawn" }

func (t *SpawnTool) Description() string {
	return "Delegate a self-contained task to another agent role and return its final answer. Use for focused sub-tasks that don't need the full conversation history."
}

func (t *SpawnTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"role": map[string]interface{}{
				"type":        "string",
				"description": "Name of the role to run the task as. Defaults to the agent's default role.",
			},
			"task": map[string]interface{}{
				"type":        "string",
				"description": "The self-contained task for the sub-agent to complete.",
			},
		},
		"required": []string{"task"},
	}
}

func (t *SpawnTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	task, _ := args["task"].(string)
	if task == "" {
		return tools.ErrorResult("spawn: \"task\" is required")
	}
	role, _ := args["role"].(string)
	if role == "" {
		role = t.defaultRole
	}

	parentKey := tools.ApprovalSessionFromCtx(ctx).SessionID
	reply, err := t.manager.Spawn(ctx, parentKey, role, task)
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("spawn: %v", err))
	}
	return tools.NewResult(reply)
}
