// Package protocol holds the wire-level names shared between the kernel
// and anything that renders its output: the outbound message type tags a
// channel adapter must understand, the agent progress event subtypes, and
// the protocol version a client can check before speaking to us.
package protocol

// ProtocolVersion is bumped whenever an outbound wire shape changes
// incompatibly.
const ProtocolVersion = 1

// Outbound message type tags. Adapters that cannot render rich UI for
// approval_request or tool_progress fall back to plain text.
const (
	OutboundTypeChat            = "chat"
	OutboundTypeApprovalRequest = "approval_request"
	OutboundTypeToolProgress    = "tool_progress"
)

// Agent progress event subtypes, emitted by the agent loop through its
// OnEvent hook. These are in-process observability names, not bus
// messages; the CLI logs them and a future dashboard could stream them.
const (
	AgentEventRunStarted   = "run.started"
	AgentEventRunCompleted = "run.completed"
	AgentEventRunFailed    = "run.failed"
	AgentEventToolCall     = "tool.call"
	AgentEventToolResult   = "tool.result"
)

// System channel error kinds carried in InboundMessage.Metadata when a
// channel adapter surfaces a failure the agent should observe.
const (
	ErrorKindUnrecoverable = "unrecoverable"
	ErrorKindTransient     = "transient"
)
