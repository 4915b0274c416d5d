package sessions

import (
	"fmt"
	"strings"
)

// ID is the parsed form of a colon-delimited session key
// "agent:<agent_id>:<channel>:<scope>:<chat_id>" agent_id
// "main" designates the default role.
type ID struct {
	AgentID string
	Channel string
	Scope   string
	ChatID  string
}

// DefaultAgentID is the role name used when a session key carries no
// parseable agent component.
const DefaultAgentID = "main"

// Format renders the canonical colon-delimited key.
func (id ID) Format() string {
	return fmt.Sprintf("agent:%s:%s:%s:%s", id.AgentID, id.Channel, id.Scope, id.ChatID)
}

// Simple builds an ID that carries only an agent id and an opaque scope,
// used when a legacy key cannot be parsed into its full components.
func Simple(agentID, rest string) ID {
	return ID{AgentID: agentID, Channel: "", Scope: "", ChatID: rest}
}

// ParseID parses a session key of the form
// "agent:<agent_id>:<channel>:<scope>:<chat_id>". Keys that don't match
// this exact shape still parse when they at least carry an
// "agent:<agent_id>:" prefix, synthesizing Simple(agentID, rest) for the
// remainder, degrading gracefully instead of erroring on keys written
// by older versions.
func ParseID(key string) (ID, error) {
	if key == "" {
		return ID{}, fmt.Errorf("sessions: empty session key")
	}
	parts := strings.SplitN(key, ":", 5)
	if len(parts) == 5 && parts[0] == "agent" {
		return ID{AgentID: parts[1], Channel: parts[2], Scope: parts[3], ChatID: parts[4]}, nil
	}
	if len(parts) >= 2 && parts[0] == "agent" {
		rest := strings.SplitN(key, ":", 2)[1]
		return Simple(parts[1], rest), nil
	}
	return ID{}, fmt.Errorf("sessions: key %q does not start with \"agent:\"", key)
}

// ParseIDOrDefault parses key and falls back to Simple(DefaultAgentID, key)
// when it cannot be parsed at all; an unparseable key degrades to a
// synthesized default meta rather than an error.
func ParseIDOrDefault(key string) ID {
	id, err := ParseID(key)
	if err != nil {
		return Simple(DefaultAgentID, key)
	}
	return id
}
