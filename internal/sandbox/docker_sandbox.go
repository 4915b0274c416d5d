package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// dockerSandbox is a tool sandbox backed by a long-lived Docker container,
// driven entirely through the `docker` CLI via os/exec; matching the
// subprocess-exec style every other externally-driven tool in this
// codebase uses (internal/tools/shell.go) rather than importing a
// container-runtime client library. When impl is ImplGVisorDocker the container runs under
// the runsc runtime; ImplPlainDocker/ImplWSL2GVisor omit --runtime and
// accept the weaker isolation the Fallback Manager recorded.
type dockerSandbox struct {
	cfg  Config
	impl string

	mu        sync.Mutex
	state     State
	createdAt time.Time
	startedAt *time.Time
	stoppedAt *time.Time
	lastErr   string
}

const defaultSandboxImage = "goclaw-sandbox:bookworm-slim"

func newDockerSandbox(cfg Config, impl, workspace string) (*dockerSandbox, error) {
	if _, err := exec.LookPath("docker"); err != nil {
		return nil, Wrap(ErrCreationFailed, fmt.Errorf("docker not found in PATH: %w", err))
	}
	return &dockerSandbox{cfg: cfg, impl: impl, state: StateCreated, createdAt: time.Now().UTC()}, nil
}

func (s *dockerSandbox) containerName() string {
	return "goclaw-sandbox-" + s.cfg.SandboxID
}

// Start is idempotent: if a container by this name is already running it
// is reused; otherwise a fresh one is launched detached with `sleep
// infinity` as its entrypoint so docker exec can be used per command.
func (s *dockerSandbox) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return nil
	}
	s.state = StateStarting

	if running(ctx, s.containerName()) {
		s.state = StateRunning
		now := time.Now().UTC()
		s.startedAt = &now
		return nil
	}

	cmd := exec.CommandContext(ctx, "docker", s.runArgs()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		s.state = StateError
		s.lastErr = stderr.String()
		return Wrap(ErrCreationFailed, fmt.Errorf("docker run: %w: %s", err, stderr.String()))
	}

	s.state = StateRunning
	now := time.Now().UTC()
	s.startedAt = &now
	return nil
}

// runArgs builds the `docker run` argv for this sandbox's config.
// Drop-all-capabilities and no-new-privileges are unconditional for
// every container-backed sandbox, including the plain-Docker fallback.
func (s *dockerSandbox) runArgs() []string {
	args := []string{
		"run", "-d", "--name", s.containerName(), "--rm",
		"--cap-drop=ALL", "--security-opt=no-new-privileges",
	}
	if s.impl == ImplGVisorDocker {
		args = append(args, "--runtime=runsc")
	}
	if !s.cfg.Network.Enabled {
		args = append(args, "--network=none")
	}
	if s.cfg.Resources.MaxMemory > 0 {
		args = append(args, "--memory="+strconv.FormatUint(s.cfg.Resources.MaxMemory, 10))
	}
	if s.cfg.Resources.MaxCPU > 0 {
		args = append(args, "--cpus="+strconv.FormatFloat(s.cfg.Resources.MaxCPU, 'f', -1, 64))
	}
	if s.cfg.Process.MaxProcesses > 0 {
		args = append(args, "--pids-limit="+strconv.FormatUint(uint64(s.cfg.Process.MaxProcesses), 10))
	}
	for _, w := range s.cfg.Filesystem.WritablePaths {
		args = append(args, "-v", w+":/workspace")
	}
	return append(args, defaultSandboxImage, "sleep", "infinity")
}

func running(ctx context.Context, name string) bool {
	cmd := exec.CommandContext(ctx, "docker", "inspect", "-f", "{{.State.Running}}", name)
	out, err := cmd.Output()
	return err == nil && bytes.Contains(out, []byte("true"))
}

func (s *dockerSandbox) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return nil
	}
	s.state = StateStopping
	cmd := exec.CommandContext(ctx, "docker", "stop", "-t", "5", s.containerName())
	_ = cmd.Run() // stopping a container that never started is not an error here
	s.state = StateStopped
	now := time.Now().UTC()
	s.stoppedAt = &now
	return nil
}

func (s *dockerSandbox) Exec(ctx context.Context, cmdName string, args []string, timeout time.Duration, cwd string) (ExecutionResult, error) {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	if st != StateRunning {
		return ExecutionResult{}, New(ErrNotStarted, "sandbox %s is not running", s.cfg.SandboxID)
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dockerArgs := []string{"exec"}
	if cwd != "" {
		dockerArgs = append(dockerArgs, "-w", cwd)
	}
	dockerArgs = append(dockerArgs, s.containerName(), cmdName)
	dockerArgs = append(dockerArgs, args...)

	start := time.Now()
	cmd := exec.CommandContext(execCtx, "docker", dockerArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	dur := time.Since(start)

	exitCode := 0
	if runErr != nil {
		if execCtx.Err() != nil {
			return ExecutionResult{Duration: dur}, New(ErrTimeout, "command timed out after %s", timeout)
		}
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return ExecutionResult{Duration: dur}, Wrap(ErrExecutionFailed, runErr)
		}
	}

	return ExecutionResult{
		ExitCode: exitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: dur,
	}, nil
}

func (s *dockerSandbox) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		SandboxID: s.cfg.SandboxID,
		State:     s.state,
		CreatedAt: s.createdAt,
		StartedAt: s.startedAt,
		StoppedAt: s.stoppedAt,
		Error:     s.lastErr,
	}
}

func (s *dockerSandbox) HealthCheck(ctx context.Context) HealthStatus {
	ok := running(ctx, s.containerName())
	checks := map[string]bool{"container_running": ok}
	if !ok {
		return HealthStatus{Healthy: false, Checks: checks, Message: "container not running"}
	}
	res, err := s.Exec(ctx, "true", nil, 5*time.Second, "")
	execOK := err == nil && res.ExitCode == 0
	checks["exec_responsive"] = execOK
	if !execOK {
		msg := "exec probe failed"
		if err != nil {
			msg = err.Error()
		}
		return HealthStatus{Healthy: false, Checks: checks, Message: msg}
	}
	return HealthStatus{Healthy: true, Checks: checks}
}

func (s *dockerSandbox) Info() Info {
	return Info{SandboxID: s.cfg.SandboxID, Platform: s.cfg.Platform, Kind: KindTool, Impl: s.impl}
}
