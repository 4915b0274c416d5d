package sandbox

import (
	"fmt"
	"testing"
)

func TestFallbackDisabledByDefault(t *testing.T) {
	m := NewFallbackManager(false)
	if m.MaySubstitute() {
		t.Fatal("insecure fallback must be opt-in")
	}
}

func TestFallbackRingBufferBounded(t *testing.T) {
	m := NewFallbackManager(true)
	for i := 0; i < fallbackRingSize+25; i++ {
		m.RecordFallback(fmt.Sprintf("sb-%d", i), ImplGVisorDocker, ImplPlainDocker, "gvisor missing")
	}
	history := m.History()
	if len(history) != fallbackRingSize {
		t.Fatalf("history length = %d, want %d", len(history), fallbackRingSize)
	}
	if history[0].SandboxID != "sb-25" {
		t.Errorf("oldest surviving event = %s, want sb-25 (oldest dropped first)", history[0].SandboxID)
	}
	if history[len(history)-1].SandboxID != fmt.Sprintf("sb-%d", fallbackRingSize+24) {
		t.Errorf("newest event = %s", history[len(history)-1].SandboxID)
	}
}

func TestToolSandboxFallbackMapping(t *testing.T) {
	if got := ToolSandboxFallback(ImplGVisorDocker); got != ImplPlainDocker {
		t.Errorf("fallback for gvisor-docker = %s", got)
	}
	if got := ToolSandboxFallback(ImplWSL2GVisor); got != ImplPlainDocker {
		t.Errorf("fallback for wsl2-gvisor = %s", got)
	}
}
