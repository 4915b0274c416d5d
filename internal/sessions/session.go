package sessions

import (
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// Role values for SessionMessage
const (
	RoleUser       = "user"
	RoleAssistant  = "assistant"
	RoleToolCall   = "tool_call"
	RoleToolResult = "tool_result"
)

const (
	toolCallArgsPreviewWidth = 80
	toolResultPreviewWidth   = 150
)

// truncatePreview trims s to at most max display columns (wide CJK runes
// count as two), appending "..." when truncated. Persisted previews are
// display-ready, so the budget is terminal columns rather than bytes.
func truncatePreview(s string, max int) string {
	return runewidth.Truncate(strings.TrimSpace(s), max, "...")
}

// ToolCallArgsPreview truncates tool-call argument text to an
// 80-column display budget.
func ToolCallArgsPreview(args string) string {
	return truncatePreview(args, toolCallArgsPreviewWidth)
}

// ToolResultPreview truncates tool output text to a 150-column
// display budget.
func ToolResultPreview(output string) string {
	return truncatePreview(output, toolResultPreviewWidth)
}

// Message is one entry of a persisted conversation, human-readable without
// needing the raw LLM wire structure.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage stamps Timestamp with the current time.
func NewMessage(role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// Meta is the addressable, timestamped identity of a session.
type Meta struct {
	ID           ID        `json:"id"`
	Participants []string  `json:"participants,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AddParticipant appends p to Participants if not already present.
func (m *Meta) AddParticipant(p string) {
	for _, existing := range m.Participants {
		if existing == p {
			return
		}
	}
	m.Participants = append(m.Participants, p)
}

// Data is the full persisted state of one session: its meta and its
// ordered message history.
//
// Invariants : messages are append-only within a turn;
// meta.UpdatedAt >= max(message.Timestamp); two encodings are readable;
// the current {meta,messages} object and a legacy bare message array.
type Data struct {
	Meta     Meta      `json:"meta"`
	Messages []Message `json:"messages"`
}

// Append adds msg to the session and advances Meta.UpdatedAt to at least
// msg.Timestamp.
func (d *Data) Append(msg Message) {
	d.Messages = append(d.Messages, msg)
	if msg.Timestamp.After(d.Meta.UpdatedAt) {
		d.Meta.UpdatedAt = msg.Timestamp
	}
}

// NewData creates an empty session for id, with both timestamps set to
// now.
func NewData(id ID) *Data {
	now := time.Now().UTC()
	return &Data{Meta: Meta{ID: id, CreatedAt: now, UpdatedAt: now}}
}
