package agent

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/bus"
)

// RoleResolver picks which role's Loop should handle an inbound message,
// e.g. by channel, sender allow-list, or a per-session override stored in
// the session's own metadata. Returning "" selects the agent's default
// role.
type RoleResolver func(msg bus.InboundMessage) string

// Dispatcher drains the bus's inbound queue and fans each message out to
// the resolved role's Loop, serializing turns per session key so two
// messages for the same conversation never race on the same session
// file, while distinct session keys run fully in parallel.
type Dispatcher struct {
	bus     *bus.Bus
	resolve RoleResolver
	newLoop LoopFactory

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDispatcher constructs a Dispatcher. resolve may be nil, in which
// case every message routes to the default role (newLoop("")).
func NewDispatcher(b *bus.Bus, resolve RoleResolver, newLoop LoopFactory) *Dispatcher {
	if resolve == nil {
		resolve = func(bus.InboundMessage) string { return "" }
	}
	return &Dispatcher{bus: b, resolve: resolve, newLoop: newLoop, locks: make(map[string]*sync.Mutex)}
}

// sessionLock returns the mutex guarding sessionKey's turns, creating one
// on first use. Locks are never removed; session keys are bounded by the
// number of distinct conversations an install ever sees, not unbounded
// per-message churn.
func (d *Dispatcher) sessionLock(sessionKey string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[sessionKey]
	if !ok {
		l = &sync.Mutex{}
		d.locks[sessionKey] = l
	}
	return l
}

// Run drains the bus's inbound receiver until ctx is canceled or the
// channel closes, spawning one goroutine per message so that different
// session keys process concurrently; same-key messages still serialize
// because they share sessionLock.
func (d *Dispatcher) Run(ctx context.Context) error {
	recv, ok := d.bus.TakeInboundReceiver()
	if !ok {
		return errDispatcherAlreadyStarted
	}

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case msg, open := <-recv:
			if !open {
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func(m bus.InboundMessage) {
				defer wg.Done()
				d.handle(ctx, m)
			}(msg)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg bus.InboundMessage) {
	if msg.IsUnrecoverableSystemError() {
		slog.Error("agent: channel adapter reported unrecoverable error", "channel", msg.Channel, "metadata", msg.Metadata)
		return
	}

	sessionKey := msg.SessionKey()
	lock := d.sessionLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	roleName := d.resolve(msg)
	loop, err := d.newLoop(roleName)
	if err != nil {
		slog.Error("agent: resolve role failed", "role", roleName, "error", err)
		d.bus.PublishOutbound(bus.Chat(msg.Channel, msg.ChatID, "Sorry, I couldn't find an agent role to handle this."))
		return
	}

	result, err := loop.RunTurn(ctx, sessionKey, msg)
	if err != nil {
		slog.Error("agent: run turn failed", "session", sessionKey, "error", err)
		d.bus.PublishOutbound(bus.Chat(msg.Channel, msg.ChatID, "Sorry, something went wrong handling that."))
		return
	}
	if result.Silent {
		return
	}
	d.bus.PublishOutbound(bus.Chat(msg.Channel, msg.ChatID, result.Content))
}

type dispatcherError string

func (e dispatcherError) Error() string { return string(e) }

const errDispatcherAlreadyStarted = dispatcherError("agent: inbound receiver already taken (Dispatcher.Run called twice?)")
