package sandbox

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// AuditLogger appends AuditEvent records as JSON lines to a file. A
// zero-value path disables persistence: events are dropped after being
// logged through slog; monitoring is best-effort, never load-bearing
// for correctness.
type AuditLogger struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewAuditLogger opens (creating if needed) the audit log at path. path
// may be empty, in which case events are only logged through slog.
func NewAuditLogger(path string) *AuditLogger {
	l := &AuditLogger{path: path}
	if path == "" {
		return l
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Warn("sandbox: audit log directory create failed", "path", path, "error", err)
		return l
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		slog.Warn("sandbox: audit log open failed", "path", path, "error", err)
		return l
	}
	l.f = f
	return l
}

// Log appends e to the audit log, if one is open.
func (l *AuditLogger) Log(e AuditEvent) {
	slog.Debug("sandbox audit", "event_type", e.EventType, "sandbox_id", e.SandboxID)
	if l.f == nil {
		return
	}
	line, err := e.ToJSONLine()
	if err != nil {
		slog.Warn("sandbox: audit event marshal failed", "error", err)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.WriteString(line + "\n"); err != nil {
		slog.Warn("sandbox: audit log write failed", "error", err)
	}
}

// Close closes the underlying file, if any.
func (l *AuditLogger) Close() error {
	if l.f == nil {
		return nil
	}
	return l.f.Close()
}

// jsonDetails marshals a flat string map into the json.RawMessage
// AuditEvent.Details expects, falling back to "{}" on (impossible)
// marshal failure so a logging call can never itself panic.
func jsonDetails(m map[string]string) json.RawMessage {
	buf, err := json.Marshal(m)
	if err != nil {
		return json.RawMessage("{}")
	}
	return buf
}
