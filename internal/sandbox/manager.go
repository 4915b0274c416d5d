package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrSandboxDisabled is returned by Manager.Get when the runtime was
// started with no tool-sandbox configuration at all; callers fall back
// to executing directly on the host.
var ErrSandboxDisabled = errors.New("sandbox: disabled")

// Manager is the entry point tools use to obtain a live sandbox for a
// given routing key (typically a session key), creating one on first use
// and reusing it for the rest of that key's lifetime.
type Manager interface {
	// Get returns the sandbox for key, creating and starting one rooted
	// at workspace if this is the first call for that key.
	Get(ctx context.Context, key, workspace string) (Handle, error)
	// Destroy stops and discards the sandbox for key, if any.
	Destroy(ctx context.Context, key string) error
	// Shutdown stops every sandbox the manager owns.
	Shutdown(ctx context.Context) error
}

// Handle is the narrow view of a running sandbox that tools exec through.
type Handle interface {
	ID() string
	Exec(ctx context.Context, args []string, cwd string) (ExecResult, error)
}

// ExecResult is the tool-facing outcome of one Handle.Exec call.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ManagerConfig configures a ToolSandboxManager.
type ManagerConfig struct {
	Template              Config
	MaxResourceLimits      MaxResourceLimits
	Recovery               RecoveryConfig
	AuditLogPath           string
	IdleTimeout            time.Duration // sandboxes unused this long are reaped by Reap
}

// DefaultManagerConfig returns sane defaults for a Linux gVisor-Docker
// tool sandbox.
func DefaultManagerConfig() ManagerConfig {
	plat := DetectPlatform()
	return ManagerConfig{
		Template: Config{
			Kind:     KindTool,
			Platform: plat.OS,
			Filesystem: FilesystemConfig{
				WritablePaths: []string{"/workspace"},
				HiddenPaths:   []string{"/etc/shadow", "/etc/sudoers", "/root"},
			},
			Resources: ResourceConfig{
				MaxMemory: 512 * 1024 * 1024,
				MaxCPU:    1.0,
				MaxDisk:   2 * 1024 * 1024 * 1024,
			},
			Process: ProcessConfig{
				AllowFork:    true,
				MaxProcesses: 64,
			},
			Monitoring: DefaultMonitoringConfig(),
		},
		MaxResourceLimits: DefaultMaxResourceLimits(),
		Recovery:          DefaultRecoveryConfig(),
		IdleTimeout:       30 * time.Minute,
	}
}

type sandboxEntry struct {
	sb       Sandbox
	handle   *handle
	lastUsed time.Time
}

// ToolSandboxManager is the concrete Manager: one Sandbox per routing key,
// validated at creation, recovered when an exec fails with a recoverable
// error kind, and audited
// at every create/exec/payload-reject boundary.
type ToolSandboxManager struct {
	cfg       ManagerConfig
	validator *Validator
	recoverer *Recoverer
	filter    *PayloadFilter
	fallback  *FallbackManager
	audit     *AuditLogger
	platform  PlatformInfo

	// newSandbox builds the backend for one (config, impl) pair. Defaults
	// to the Docker-CLI backend; tests substitute an in-process fake.
	newSandbox func(cfg Config, impl, workspace string) (Sandbox, error)

	mu        sync.Mutex
	sandboxes map[string]*sandboxEntry
}

// NewToolSandboxManager wires up the validator, recoverer, payload
// filter, fallback manager, and audit log around a per-key sandbox cache.
func NewToolSandboxManager(cfg ManagerConfig, allowInsecureFallback bool) *ToolSandboxManager {
	return &ToolSandboxManager{
		cfg:       cfg,
		validator: NewValidator(cfg.MaxResourceLimits),
		recoverer: NewRecoverer(cfg.Recovery),
		filter:    NewPayloadFilter(),
		fallback:  NewFallbackManager(allowInsecureFallback),
		audit:     NewAuditLogger(cfg.AuditLogPath),
		platform:  DetectPlatform(),
		newSandbox: func(cfg Config, impl, workspace string) (Sandbox, error) {
			return newDockerSandbox(cfg, impl, workspace)
		},
		sandboxes: make(map[string]*sandboxEntry),
	}
}

// Get returns the sandbox handle for key, creating and starting one
// rooted at workspace on first use.
func (m *ToolSandboxManager) Get(ctx context.Context, key, workspace string) (Handle, error) {
	m.mu.Lock()
	if e, ok := m.sandboxes[key]; ok {
		e.lastUsed = time.Now()
		m.mu.Unlock()
		return e.handle, nil
	}
	m.mu.Unlock()

	sb, impl, err := m.create(ctx, key, workspace)
	if err != nil {
		return nil, err
	}

	h := &handle{id: sb.Info().SandboxID, sb: sb, mgr: m}
	m.mu.Lock()
	m.sandboxes[key] = &sandboxEntry{sb: sb, handle: h, lastUsed: time.Now()}
	m.mu.Unlock()

	m.audit.Log(AuditEvent{
		Timestamp: time.Now().UTC(),
		SandboxID: h.id,
		EventType: EventSandboxCreated,
		Details:   jsonDetails(map[string]string{"key": key, "impl": impl, "workspace": workspace}),
	})
	return h, nil
}

func (m *ToolSandboxManager) create(ctx context.Context, key, workspace string) (Sandbox, string, error) {
	cfg := m.cfg.Template
	cfg.SandboxID = fmt.Sprintf("tool-%s", key)
	cfg.Filesystem.WritablePaths = []string{workspace}

	if err := m.validator.ValidateConfig(cfg); err != nil {
		return nil, "", err
	}

	impl := m.platform.RecommendedToolSandbox
	sb, err := m.newSandbox(cfg, impl, workspace)
	if err != nil {
		if !m.fallback.MaySubstitute() {
			return nil, "", err
		}
		fallbackImpl := ToolSandboxFallback(impl)
		slog.Warn("sandbox: primary tool sandbox failed, substituting fallback",
			"primary", impl, "fallback", fallbackImpl, "error", err)
		m.fallback.RecordFallback(cfg.SandboxID, impl, fallbackImpl, err.Error())
		impl = fallbackImpl
		sb, err = m.newSandbox(cfg, impl, workspace)
		if err != nil {
			return nil, "", err
		}
	}

	if err := sb.Start(ctx); err != nil {
		return nil, "", err
	}
	return sb, impl, nil
}

// Destroy stops and discards the sandbox for key.
func (m *ToolSandboxManager) Destroy(ctx context.Context, key string) error {
	m.mu.Lock()
	e, ok := m.sandboxes[key]
	if ok {
		delete(m.sandboxes, key)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return e.sb.Stop(ctx)
}

// Shutdown stops every sandbox the manager owns.
func (m *ToolSandboxManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	entries := make([]*sandboxEntry, 0, len(m.sandboxes))
	for _, e := range m.sandboxes {
		entries = append(entries, e)
	}
	m.sandboxes = make(map[string]*sandboxEntry)
	m.mu.Unlock()

	var firstErr error
	for _, e := range entries {
		if err := e.sb.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Reap stops and discards every sandbox whose last use exceeds
// cfg.IdleTimeout.
func (m *ToolSandboxManager) Reap(ctx context.Context) {
	if m.cfg.IdleTimeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var stale []*sandboxEntry
	for key, e := range m.sandboxes {
		if e.lastUsed.Before(cutoff) {
			stale = append(stale, e)
			delete(m.sandboxes, key)
		}
	}
	m.mu.Unlock()

	for _, e := range stale {
		if err := e.sb.Stop(ctx); err != nil {
			slog.Warn("sandbox: reap stop failed", "sandbox_id", e.sb.Info().SandboxID, "error", err)
		}
	}
}

// handle implements Handle against a concrete Sandbox, applying the
// Cross-Sandbox Payload Filter to every exec result and, when an exec
// fails with a recoverable error kind, recovering the sandbox and retrying
// the exec once.
type handle struct {
	id  string
	sb  Sandbox
	mgr *ToolSandboxManager
}

func (h *handle) ID() string { return h.id }

func (h *handle) Exec(ctx context.Context, args []string, cwd string) (ExecResult, error) {
	if len(args) == 0 {
		return ExecResult{}, New(ErrConfiguration, "exec requires at least a command name")
	}
	if err := h.mgr.validator.ValidateCommand(args[0], args[1:]); err != nil {
		h.mgr.audit.Log(AuditEvent{
			Timestamp: time.Now().UTC(), SandboxID: h.id, EventType: EventViolation,
			Details: jsonDetails(map[string]string{"reason": err.Error(), "command": args[0]}),
		})
		return ExecResult{}, err
	}

	timeout := 2 * time.Minute
	res, err := h.sb.Exec(ctx, args[0], args[1:], timeout, cwd)
	if err != nil {
		var sbErr *Error
		if asErr, ok := err.(*Error); ok {
			sbErr = asErr
		} else {
			sbErr = Wrap(ErrExecutionFailed, err)
		}
		if sbErr.Kind.Recoverable() {
			if recErr := h.mgr.recoverer.Recover(ctx, h.sb); recErr == nil {
				res, err = h.sb.Exec(ctx, args[0], args[1:], timeout, cwd)
			}
		}
		if err != nil {
			return ExecResult{}, err
		}
	}

	filtered, ferr := h.mgr.filter.FilterResult(res)
	if ferr != nil {
		h.mgr.audit.Log(AuditEvent{
			Timestamp: time.Now().UTC(), SandboxID: h.id, EventType: EventViolation,
			Details: jsonDetails(map[string]string{"reason": ferr.Error()}),
		})
		return ExecResult{}, ferr
	}

	h.mgr.audit.Log(AuditEvent{
		Timestamp: time.Now().UTC(), SandboxID: h.id, EventType: EventProcessCreation,
		Details: jsonDetails(map[string]string{"command": args[0]}),
	})

	return ExecResult{
		Stdout:   string(filtered.Stdout),
		Stderr:   string(filtered.Stderr),
		ExitCode: filtered.ExitCode,
	}, nil
}
