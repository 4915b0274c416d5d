package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeSandbox is an in-process Sandbox for lifecycle tests: no Docker
// daemon, deterministic state transitions.
type fakeSandbox struct {
	id         string
	impl       string
	state      State
	startCalls int
	stopCalls  int
	startErrs  []error // consumed one per Start call; nil entry = success
	unhealthy  bool
	execOut    []byte
	execErr    error
}

func newFakeSandbox(id string) *fakeSandbox {
	return &fakeSandbox{id: id, impl: ImplGVisorDocker, state: StateCreated, execOut: []byte("ok\n")}
}

func (f *fakeSandbox) Start(context.Context) error {
	f.startCalls++
	if len(f.startErrs) > 0 {
		err := f.startErrs[0]
		f.startErrs = f.startErrs[1:]
		if err != nil {
			f.state = StateError
			return err
		}
	}
	f.state = StateRunning
	return nil
}

func (f *fakeSandbox) Stop(context.Context) error {
	f.stopCalls++
	f.state = StateStopped
	return nil
}

func (f *fakeSandbox) Exec(_ context.Context, cmd string, args []string, _ time.Duration, _ string) (ExecutionResult, error) {
	if f.state != StateRunning {
		return ExecutionResult{}, New(ErrNotStarted, "sandbox %s is not running", f.id)
	}
	if f.execErr != nil {
		return ExecutionResult{}, f.execErr
	}
	return ExecutionResult{ExitCode: 0, Stdout: f.execOut}, nil
}

func (f *fakeSandbox) Status() Status {
	return Status{SandboxID: f.id, State: f.state}
}

func (f *fakeSandbox) HealthCheck(context.Context) HealthStatus {
	if f.unhealthy || f.state != StateRunning {
		return HealthStatus{Healthy: false, Message: "not running"}
	}
	return HealthStatus{Healthy: true}
}

func (f *fakeSandbox) Info() Info {
	return Info{SandboxID: f.id, Platform: PlatformLinux, Kind: KindTool, Impl: f.impl}
}

func testManagerConfig() ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.Recovery = fastRecovery()
	return cfg
}

func TestLifecycleStartStop(t *testing.T) {
	sb := newFakeSandbox("lc1")
	ctx := context.Background()

	if err := sb.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sb.Status().State != StateRunning {
		t.Fatalf("state after Start = %v", sb.Status().State)
	}
	if err := sb.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sb.Status().State != StateStopped {
		t.Fatalf("state after Stop = %v, want Stopped", sb.Status().State)
	}
}

func TestExecOnNonRunningSandboxReturnsNotStarted(t *testing.T) {
	sb := newFakeSandbox("lc2")
	_, err := sb.Exec(context.Background(), "true", nil, time.Second, "")
	var sbErr *Error
	if !errors.As(err, &sbErr) || sbErr.Kind != ErrNotStarted {
		t.Fatalf("exec on created sandbox = %v, want NotStarted", err)
	}
}

func TestManagerGetCreatesOncePerKey(t *testing.T) {
	created := 0
	m := NewToolSandboxManager(testManagerConfig(), false)
	m.newSandbox = func(cfg Config, impl, workspace string) (Sandbox, error) {
		created++
		return newFakeSandbox(cfg.SandboxID), nil
	}

	ctx := context.Background()
	ws := t.TempDir()
	h1, err := m.Get(ctx, "sess-1", ws)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	h2, err := m.Get(ctx, "sess-1", ws)
	if err != nil {
		t.Fatalf("Get again: %v", err)
	}
	if h1 != h2 {
		t.Error("same key should reuse the same handle")
	}
	if created != 1 {
		t.Errorf("backend created %d times, want 1", created)
	}

	if _, err := m.Get(ctx, "sess-2", ws); err != nil {
		t.Fatalf("Get second key: %v", err)
	}
	if created != 2 {
		t.Errorf("distinct keys share a backend: created = %d", created)
	}
}

func TestManagerExecFiltersAndValidates(t *testing.T) {
	m := NewToolSandboxManager(testManagerConfig(), false)
	m.newSandbox = func(cfg Config, impl, workspace string) (Sandbox, error) {
		return newFakeSandbox(cfg.SandboxID), nil
	}

	ctx := context.Background()
	h, err := m.Get(ctx, "sess", t.TempDir())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	res, err := h.Exec(ctx, []string{"echo", "hi"}, "")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Stdout != "ok\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}

	// Privilege escalation is rejected before the backend ever runs.
	_, err = h.Exec(ctx, []string{"sudo", "ls"}, "")
	var sbErr *Error
	if !errors.As(err, &sbErr) || sbErr.Kind != ErrSecurityViolation {
		t.Fatalf("sudo through handle = %v, want SecurityViolation", err)
	}
}

func TestManagerExecRejectsExecutableOutput(t *testing.T) {
	m := NewToolSandboxManager(testManagerConfig(), false)
	fake := newFakeSandbox("sb")
	fake.execOut = append([]byte{0x7F, 'E', 'L', 'F'}, []byte("binary")...)
	m.newSandbox = func(cfg Config, impl, workspace string) (Sandbox, error) { return fake, nil }

	ctx := context.Background()
	h, err := m.Get(ctx, "sess", t.TempDir())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	_, err = h.Exec(ctx, []string{"cat", "payload"}, "")
	var sbErr *Error
	if !errors.As(err, &sbErr) || sbErr.Kind != ErrSecurityViolation {
		t.Fatalf("ELF output crossed the payload filter: %v", err)
	}
}

func TestManagerFallbackNotPermitted(t *testing.T) {
	m := NewToolSandboxManager(testManagerConfig(), false)
	m.newSandbox = func(cfg Config, impl, workspace string) (Sandbox, error) {
		return nil, New(ErrCreationFailed, "gvisor runtime missing")
	}

	_, err := m.Get(context.Background(), "sess", t.TempDir())
	var sbErr *Error
	if !errors.As(err, &sbErr) || sbErr.Kind != ErrCreationFailed {
		t.Fatalf("create without fallback = %v, want CreationFailed", err)
	}
	if events := m.fallback.History(); len(events) != 0 {
		t.Errorf("no fallback event should be recorded when fallback is not permitted: %v", events)
	}
}

func TestManagerFallbackPermittedSubstitutesAndRecords(t *testing.T) {
	m := NewToolSandboxManager(testManagerConfig(), true)
	calls := 0
	m.newSandbox = func(cfg Config, impl, workspace string) (Sandbox, error) {
		calls++
		if impl != ImplPlainDocker {
			return nil, New(ErrCreationFailed, "gvisor runtime missing")
		}
		sb := newFakeSandbox(cfg.SandboxID)
		sb.impl = impl
		return sb, nil
	}

	h, err := m.Get(context.Background(), "sess", t.TempDir())
	if err != nil {
		t.Fatalf("Get with fallback: %v", err)
	}
	if h == nil || calls != 2 {
		t.Fatalf("fallback path should construct twice, got %d", calls)
	}
	events := m.fallback.History()
	if len(events) != 1 || events[0].FallbackImpl != ImplPlainDocker {
		t.Fatalf("fallback events = %+v", events)
	}
}

func TestManagerDestroyStopsSandbox(t *testing.T) {
	fake := newFakeSandbox("sb")
	m := NewToolSandboxManager(testManagerConfig(), false)
	m.newSandbox = func(cfg Config, impl, workspace string) (Sandbox, error) { return fake, nil }

	ctx := context.Background()
	if _, err := m.Get(ctx, "sess", t.TempDir()); err != nil {
		t.Fatal(err)
	}
	if err := m.Destroy(ctx, "sess"); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if fake.state != StateStopped {
		t.Errorf("destroyed sandbox state = %v, want Stopped", fake.state)
	}
	if err := m.Destroy(ctx, "sess"); err != nil {
		t.Errorf("destroying an unknown key should be a no-op: %v", err)
	}
}

func TestManagerShutdownStopsEverything(t *testing.T) {
	var fakes []*fakeSandbox
	m := NewToolSandboxManager(testManagerConfig(), false)
	m.newSandbox = func(cfg Config, impl, workspace string) (Sandbox, error) {
		f := newFakeSandbox(cfg.SandboxID)
		fakes = append(fakes, f)
		return f, nil
	}

	ctx := context.Background()
	ws := t.TempDir()
	for _, key := range []string{"a", "b", "c"} {
		if _, err := m.Get(ctx, key, ws); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	for _, f := range fakes {
		if f.state != StateStopped {
			t.Errorf("sandbox %s state = %v after shutdown", f.id, f.state)
		}
	}
}

func TestErrorKindTaxonomy(t *testing.T) {
	if ErrSecurityViolation.Severity() != SeverityCritical || ErrResourceExhausted.Severity() != SeverityCritical {
		t.Error("SecurityViolation/ResourceExhausted must be Critical")
	}
	if ErrCreationFailed.Severity() != SeverityError || ErrIo.Severity() != SeverityError {
		t.Error("CreationFailed/Io must be Error severity")
	}
	if ErrTimeout.Severity() != SeverityWarning {
		t.Error("Timeout must be Warning severity")
	}

	recoverable := []ErrorKind{ErrTimeout, ErrExecutionFailed, ErrResourceExhausted, ErrNotStarted, ErrIo}
	for _, k := range recoverable {
		if !k.Recoverable() {
			t.Errorf("%s should be recoverable", k)
		}
	}
	for _, k := range []ErrorKind{ErrSecurityViolation, ErrConfiguration, ErrUnsupportedPlatform, ErrParse, ErrNotFound, ErrCreationFailed} {
		if k.Recoverable() {
			t.Errorf("%s should not be recoverable", k)
		}
	}
}
