package sandbox

import (
	"sync"
	"time"
)

// fallbackRingSize is the fixed length of the fallback event history,
//
const fallbackRingSize = 100

// FallbackEvent records one substitution of a less-isolating
// implementation for a primary one.
type FallbackEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	SandboxID    string    `json:"sandbox_id"`
	PrimaryImpl  string    `json:"primary_impl"`
	FallbackImpl string    `json:"fallback_impl"`
	Reason       string    `json:"reason"`
}

// FallbackManager decides whether a failed primary tool-sandbox
// implementation may be substituted with a less-isolating one, and keeps
// a bounded history of every substitution.
type FallbackManager struct {
	allowInsecureFallback bool

	mu      sync.Mutex
	history []FallbackEvent
}

// NewFallbackManager constructs a FallbackManager. allowInsecureFallback
// must be explicitly opted into; it defaults to false.
func NewFallbackManager(allowInsecureFallback bool) *FallbackManager {
	return &FallbackManager{allowInsecureFallback: allowInsecureFallback}
}

// MaySubstitute reports whether a fallback implementation may be used in
// place of the primary one.
func (m *FallbackManager) MaySubstitute() bool {
	return m.allowInsecureFallback
}

// RecordFallback appends an event to the ring buffer, dropping the
// oldest entry once History exceeds fallbackRingSize.
func (m *FallbackManager) RecordFallback(sandboxID, primaryImpl, fallbackImpl, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, FallbackEvent{
		Timestamp:    time.Now().UTC(),
		SandboxID:    sandboxID,
		PrimaryImpl:  primaryImpl,
		FallbackImpl: fallbackImpl,
		Reason:       reason,
	})
	if len(m.history) > fallbackRingSize {
		m.history = m.history[len(m.history)-fallbackRingSize:]
	}
}

// History returns a copy of the recorded fallback events, oldest first.
func (m *FallbackManager) History() []FallbackEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FallbackEvent, len(m.history))
	copy(out, m.history)
	return out
}
