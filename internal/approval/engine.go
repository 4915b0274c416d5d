// Package approval implements the Approval & Permission Engine: rule-based
// command classification plus a human-in-the-loop approval gate.
//
// Rules evaluate in declaration order as a declarative policy pipeline;
// the approval vocabulary recognizes a fixed bilingual word list.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Request is a human-in-the-loop approval gate for one tool invocation.
type Request struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	Channel        string    `json:"channel"`
	ChatID         string    `json:"chat_id"`
	Command        string    `json:"command"`
	WorkingDir     string    `json:"working_dir"`
	Context        string    `json:"context,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	TimeoutSecs    int       `json:"timeout_secs"`
	DisplayMessage string    `json:"display_message,omitempty"`
}

// Response answers a pending Request.
type Response struct {
	RequestID string    `json:"request_id"`
	Approved  bool      `json:"approved"`
	Responder string    `json:"responder"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// ErrDenied is returned (wrapped with a reason) when a command is denied,
// rejected, or its approval request times out.
var ErrDenied = errors.New("operation denied")

// Publisher broadcasts an approval request to its originating channel.
// Implemented by the bus in production; a no-op/fake in tests.
type Publisher interface {
	PublishApprovalRequest(req Request)
}

type pending struct {
	notify chan Response
}

// Engine classifies commands via a Policy and brokers approval requests
// through a Publisher
type Engine struct {
	policy    Policy
	publisher Publisher

	mu      sync.Mutex
	waiting map[string]*pending
}

// NewEngine constructs an Engine with the given policy and outbound
// publisher.
func NewEngine(policy Policy, publisher Publisher) *Engine {
	return &Engine{
		policy:    policy,
		publisher: publisher,
		waiting:   make(map[string]*pending),
	}
}

// Classify exposes the underlying policy classification for callers (e.g.
// the exec tool) that want to short-circuit on Deny without constructing
// a request.
func (e *Engine) Classify(command string, args []string) Level {
	return e.policy.Classify(command, args)
}

// RequestApproval classifies the command; if the result is
// RequireApproval it constructs a Request, registers a one-shot waiter,
// publishes it, and blocks until a Response arrives, the context is
// cancelled, or timeoutSecs elapses (whichever first). Deny short-circuits
// without ever publishing a request. Allow returns immediately with no
// request.
func (e *Engine) RequestApproval(ctx context.Context, sessionID, channel, chatID, command, workingDir, context_ string, args []string, timeoutSecs int) error {
	switch e.policy.Classify(command, args) {
	case LevelAllow:
		return nil
	case LevelDeny:
		return fmt.Errorf("%w: command denied by policy", ErrDenied)
	}

	req := Request{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Channel:     channel,
		ChatID:      chatID,
		Command:     command,
		WorkingDir:  workingDir,
		Context:     context_,
		Timestamp:   time.Now().UTC(),
		TimeoutSecs: timeoutSecs,
	}

	p := &pending{notify: make(chan Response, 1)}
	e.mu.Lock()
	e.waiting[req.ID] = p
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.waiting, req.ID)
		e.mu.Unlock()
	}()

	if e.publisher != nil {
		e.publisher.PublishApprovalRequest(req)
	}

	timeout := time.Duration(timeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-p.notify:
		if !resp.Approved {
			return fmt.Errorf("%w: rejected by %s", ErrDenied, resp.Responder)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: timeout", ErrDenied)
	case <-ctx.Done():
		return fmt.Errorf("%w: cancelled", ErrDenied)
	}
}

// Resolve dispatches a Response to its matching pending Request. Each id
// is delivered at most once; unknown ids are dropped silently.
func (e *Engine) Resolve(resp Response) {
	e.mu.Lock()
	p, ok := e.waiting[resp.RequestID]
	if ok {
		delete(e.waiting, resp.RequestID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	select {
	case p.notify <- resp:
	default:
	}
}

// ResolveText is a convenience wrapper: it parses free channel text via
// ParseResponseText and, if recognized, resolves requestID accordingly.
// Returns false if the text was not a recognized approval/rejection
// phrase.
func (e *Engine) ResolveText(requestID, responder, text string) bool {
	approved, ok := ParseResponseText(text)
	if !ok {
		return false
	}
	e.Resolve(Response{RequestID: requestID, Approved: approved, Responder: responder, Timestamp: time.Now().UTC()})
	return true
}

// Shutdown cancels every pending request with denial, so the engine
// survives process-wide shutdown without leaking goroutines blocked in
// RequestApproval.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	waiting := e.waiting
	e.waiting = make(map[string]*pending)
	e.mu.Unlock()
	for id, p := range waiting {
		select {
		case p.notify <- Response{RequestID: id, Approved: false, Responder: "system", Reason: "shutdown", Timestamp: time.Now().UTC()}:
		default:
		}
	}
}
