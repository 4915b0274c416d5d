// Package bus implements the process-wide message bus: a bounded
// multi-producer/single-consumer inbound queue and a bounded broadcast
// outbound channel, connecting channel adapters to the agent loop.
package bus

import (
	"context"
	"sync"
	"time"
)

// Capacity is the bound on both the inbound queue and each outbound
// subscriber's buffer.
const Capacity = 256

// SystemChannel is reserved for channel adapters to surface unrecoverable
// errors as inbound notifications the agent loop can observe and react to.
const SystemChannel = "system"

// MediaAttachment describes a file referenced by an inbound or outbound
// message.
type MediaAttachment struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Caption     string `json:"caption,omitempty"`
}

// InboundMessage is a message received from a channel adapter.
// Immutable once published.
type InboundMessage struct {
	Channel   string            `json:"channel"`
	SenderID  string            `json:"sender_id"`
	ChatID    string            `json:"chat_id"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Media     []string          `json:"media,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SessionKey returns the "<channel>:<chat_id>" identifier for the
// conversation this message belongs to
func (m InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// IsUnrecoverableSystemError reports whether this inbound message signals
// a channel adapter's unrecoverable failure .
func (m InboundMessage) IsUnrecoverableSystemError() bool {
	return m.Channel == SystemChannel && m.ChatID == SystemChannel && m.Metadata["error_kind"] == "unrecoverable"
}

// OutboundKind tags the variant of an OutboundMessage.
type OutboundKind string

const (
	OutboundChat             OutboundKind = "chat"
	OutboundApprovalRequest  OutboundKind = "approval_request"
	OutboundToolProgress     OutboundKind = "tool_progress"
)

// ApprovalRequestPayload is carried by an OutboundMessage of kind
// OutboundApprovalRequest. The concrete approval.Request type is not
// imported here to avoid a dependency cycle; channels read it as
// map[string]interface{} or via the approval package's own helpers.
type ApprovalRequestPayload struct {
	ID             string `json:"id"`
	Command        string `json:"command"`
	WorkingDir     string `json:"working_dir"`
	Context        string `json:"context,omitempty"`
	TimeoutSecs    int    `json:"timeout_secs"`
	DisplayMessage string `json:"display_message,omitempty"`
}

// ToolProgressPayload is carried by an OutboundMessage of kind
// OutboundToolProgress.
type ToolProgressPayload struct {
	ToolName string `json:"tool_name"`
	Status   string `json:"status"`
	Preview  string `json:"preview,omitempty"`
}

// OutboundMessage is a tagged union addressed to a channel adapter.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	ReplyTo  string            `json:"reply_to,omitempty"`
	Type     OutboundKind      `json:"type"`
	Content  string            `json:"content,omitempty"`
	Media    []MediaAttachment `json:"media,omitempty"`
	Approval *ApprovalRequestPayload `json:"approval,omitempty"`
	Progress *ToolProgressPayload    `json:"progress,omitempty"`
}

// Chat builds a chat-kind outbound message.
func Chat(channel, chatID, content string, media ...MediaAttachment) OutboundMessage {
	return OutboundMessage{Channel: channel, ChatID: chatID, Type: OutboundChat, Content: content, Media: media}
}

// ApprovalRequestMessage builds an approval_request-kind outbound message.
func ApprovalRequestMessage(channel, chatID string, p ApprovalRequestPayload) OutboundMessage {
	return OutboundMessage{Channel: channel, ChatID: chatID, Type: OutboundApprovalRequest, Approval: &p}
}

// ToolProgress builds a tool_progress-kind outbound message.
func ToolProgress(channel, chatID string, p ToolProgressPayload) OutboundMessage {
	return OutboundMessage{Channel: channel, ChatID: chatID, Type: OutboundToolProgress, Progress: &p}
}

// outboundSub is one broadcast subscriber. ch is drop-oldest under
// backpressure: a full channel has its oldest message discarded to make
// room, so slow subscribers lose history rather than stall the publisher.
type outboundSub struct {
	ch chan OutboundMessage
}

// Bus is the process-wide message bus connecting channel adapters to
// the agent loop.
type Bus struct {
	inbound    chan InboundMessage
	takenOnce  sync.Once
	taken      bool
	takenMu    sync.Mutex

	subMu sync.Mutex
	subs  map[string]*outboundSub
}

// New constructs a Bus with the fixed capacity.
func New() *Bus {
	return &Bus{
		inbound: make(chan InboundMessage, Capacity),
		subs:    make(map[string]*outboundSub),
	}
}

// PublishInbound enqueues msg. It blocks if the inbound queue is full,
// applying backpressure to the calling channel adapter.
func (b *Bus) PublishInbound(ctx context.Context, msg InboundMessage) error {
	select {
	case b.inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TakeInboundReceiver returns the inbound channel exactly once. Subsequent
// calls return ok=false; only the agent loop may hold this handle.
func (b *Bus) TakeInboundReceiver() (<-chan InboundMessage, bool) {
	b.takenMu.Lock()
	defer b.takenMu.Unlock()
	if b.taken {
		return nil, false
	}
	b.taken = true
	return b.inbound, true
}

// SubscribeOutbound registers a new outbound subscriber identified by id
// and returns its receive channel. Call UnsubscribeOutbound to release it.
func (b *Bus) SubscribeOutbound(id string) <-chan OutboundMessage {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	s := &outboundSub{ch: make(chan OutboundMessage, Capacity)}
	b.subs[id] = s
	return s.ch
}

// UnsubscribeOutbound removes and closes a subscriber's channel.
func (b *Bus) UnsubscribeOutbound(id string) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if s, ok := b.subs[id]; ok {
		close(s.ch)
		delete(b.subs, id)
	}
}

// PublishOutbound fans msg out to every subscriber. A subscriber whose
// buffer is full has its oldest queued message dropped to make room,
// matching the "slow subscribers lose oldest" rule.
func (b *Bus) PublishOutbound(msg OutboundMessage) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for _, s := range b.subs {
		for {
			select {
			case s.ch <- msg:
			default:
				select {
				case <-s.ch:
				default:
				}
				continue
			}
			break
		}
	}
}
