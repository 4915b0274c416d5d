package tools

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/approval"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/sandbox"
)

// denyCategories groups the command patterns the exec tool refuses
// outright, before the approval engine or sandbox ever sees them. The
// sandbox manager's coarse validator handles sandbox-level acceptance;
// this list is the tool-level layer underneath it.
var denyCategories = map[string][]string{
	"destructive-fs": {
		`\brm\s+-[rf]{1,2}\b`,
		`\brm\s+.*--recursive`,
		`\brm\s+.*--force`,
		`\bdel\s+/[fq]\b`,
		`\brmdir\s+/s\b`,
		`\b(mkfs|diskpart)\b|\bformat\s`,
		`\bdd\s+if=`,
		`>\s*/dev/sd[a-z]\b`,
		`\b(shutdown|reboot|poweroff)\b`,
		`:\(\)\s*\{.*\};\s*:`, // fork bomb
	},
	"exfiltration": {
		`\bcurl\b.*\|\s*(ba)?sh\b`,
		`\bcurl\b.*(-d\b|-F\b|--data|--upload|--form|-T\b|-X\s*P(UT|OST|ATCH))`,
		`\bwget\b.*-O\s*-\s*\|\s*(ba)?sh\b`,
		`\bwget\b.*--post-(data|file)`,
		`\b(nslookup|dig|host)\b`,
		`/dev/tcp/`,
	},
	"reverse-shell": {
		`\b(nc|ncat|netcat)\b.*-[el]\b`,
		`\bsocat\b`,
		`\bopenssl\b.*s_client`,
		`\btelnet\b.*\d+`,
		`\bpython[23]?\b.*\bimport\s+(socket|http\.client|urllib|requests)\b`,
		`\bperl\b.*-e\s*.*\b[Ss]ocket\b`,
		`\bruby\b.*-e\s*.*\b(TCPSocket|Socket)\b`,
		`\bnode\b.*-e\s*.*\b(net\.connect|child_process)\b`,
		`\bawk\b.*/inet/`,
		`\bmkfifo\b`,
	},
	"code-injection": {
		`\beval\s*\$`,
		`\bbase64\s+-d\b.*\|\s*(ba)?sh\b`,
	},
	"privilege-escalation": {
		`\bsudo\b`,
		`\bsu\s+-`,
		`\bnsenter\b`,
		`\bunshare\b`,
		`\b(mount|umount)\b`,
		`\b(capsh|setcap|getcap)\b`,
	},
	"dangerous-paths": {
		`\bchmod\s+[0-7]{3,4}\s+/`,
		`\bchown\b.*\s+/`,
		`\bchmod\b.*\+x.*/tmp/`,
		`\bchmod\b.*\+x.*/var/tmp/`,
		`\bchmod\b.*\+x.*/dev/shm/`,
	},
	"env-injection": {
		`\bLD_PRELOAD\s*=`,
		`\bDYLD_INSERT_LIBRARIES\s*=`,
		`\bLD_LIBRARY_PATH\s*=`,
		`/etc/ld\.so\.preload`,
		`\bGIT_EXTERNAL_DIFF\s*=`,
		`\bGIT_DIFF_OPTS\s*=`,
		`\bBASH_ENV\s*=`,
		`\bENV\s*=.*\bsh\b`,
	},
	"container-escape": {
		`/var/run/docker\.sock|docker\.(sock|socket)`,
		`/proc/sys/(kernel|fs|net)/`,
		`/sys/(kernel|fs|class|devices)/`,
	},
	"crypto-mining": {
		`\b(xmrig|cpuminer|minerd|cgminer|bfgminer|ethminer|nbminer|t-rex|phoenixminer|lolminer|gminer|claymore)\b`,
		`stratum\+tcp://|stratum\+ssl://`,
	},
	"filter-bypass": {
		`\bsed\b.*['"]/e\b`,
		`\bsort\b.*--compress-program`,
		`\bgit\b.*(--upload-pack|--receive-pack|--exec)=`,
		`\b(rg|grep)\b.*--pre=`,
		`\bman\b.*--html=`,
		`\bhistory\b.*-[saw]\b`,
		`\$\{[^}]*@[PpEeAaKk]\}`, // ${var@P} parameter expansion
	},
	"network-recon": {
		`\b(nmap|masscan|zmap|rustscan)\b`,
		`\b(ssh|scp|sftp)\b.*@`,
		`\b(chisel|frp|ngrok|cloudflared|bore|localtunnel)\b`,
	},
	"persistence": {
		`\bcrontab\b`,
		`>\s*~/?\.(bashrc|bash_profile|profile|zshrc)`,
		`\btee\b.*\.(bashrc|bash_profile|profile|zshrc)`,
	},
	"process-kill": {
		`\bkill\s+-9\s`,
		`\b(killall|pkill)\b`,
	},
	// Bare env/printenv/set dumps expose every secret in the process
	// environment; `env VAR=val cmd` stays allowed.
	"env-dump": {
		`^\s*env\s*$`,
		`^\s*env\s*\|`,
		`^\s*env\s*>\s`,
		`\bprintenv\b`,
		`^\s*(set|export\s+-p|declare\s+-x)\s*($|\|)`,
		`\bcompgen\s+-e\b`,
	},
}

var defaultDenyPatterns = compileDenyCategories()

func compileDenyCategories() []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, patterns := range denyCategories {
		for _, p := range patterns {
			out = append(out, regexp.MustCompile(p))
		}
	}
	return out
}

// ExecTool executes shell commands, optionally inside a sandbox container.
type ExecTool struct {
	workingDir   string
	timeout      time.Duration
	denyPatterns []*regexp.Regexp
	restrict     bool
	sandboxMgr   sandbox.Manager  // nil = no sandbox, execute on host
	approvalEng  *approval.Engine // nil = no approval gate
}

// NewExecTool creates an exec tool that runs commands directly on the host.
func NewExecTool(workingDir string, restrict bool) *ExecTool {
	return &ExecTool{
		workingDir:   workingDir,
		timeout:      60 * time.Second,
		denyPatterns: defaultDenyPatterns,
		restrict:     restrict,
	}
}

// NewSandboxedExecTool creates an exec tool that routes commands through a sandbox container.
func NewSandboxedExecTool(workingDir string, restrict bool, mgr sandbox.Manager) *ExecTool {
	return &ExecTool{
		workingDir:   workingDir,
		timeout:      300 * time.Second, // sandbox allows longer timeout
		denyPatterns: defaultDenyPatterns,
		restrict:     restrict,
		sandboxMgr:   mgr,
	}
}

// SetSandboxKey is a no-op; sandbox key is now read from ctx (thread-safe).
func (t *ExecTool) SetSandboxKey(key string) {}

// SetApprovalEngine wires the command-approval gate for this tool. The
// tool instance is shared across every concurrent session, so the
// session/channel/chat an approval request should be addressed to is read
// per-call from ctx (see WithApprovalSession) rather than fixed here.
func (t *ExecTool) SetApprovalEngine(eng *approval.Engine) {
	t.approvalEng = eng
}

func (t *ExecTool) Name() string        { return "exec" }
func (t *ExecTool) Description() string { return "Execute a shell command and return its output" }
func (t *ExecTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"working_dir": map[string]interface{}{
				"type":        "string",
				"description": "Optional working directory for the command",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	command, _ := args["command"].(string)
	if command == "" {
		return ErrorResult("command is required")
	}

	// Check for dangerous commands (applies to both host and sandbox)
	for _, pattern := range t.denyPatterns {
		if pattern.MatchString(command) {
			return ErrorResult(fmt.Sprintf("command denied by safety policy: matches pattern %s", pattern.String()))
		}
	}

	// Exec approval check: classify/request through the approval engine,
	// Deny short-circuits; require_approval blocks until a
	// human responds or the request times out (120s).
	if t.approvalEng != nil {
		as := ApprovalSessionFromCtx(ctx)
		if err := t.approvalEng.RequestApproval(ctx, as.SessionID, as.Channel, as.ChatID, command, t.workingDir, "", nil, 120); err != nil {
			return ErrorResult(fmt.Sprintf("exec approval: %v", err))
		}
	}

	// Use per-user workspace from context if available (managed mode), fallback to struct field
	cwd := ToolWorkspaceFromCtx(ctx)
	if cwd == "" {
		cwd = t.workingDir
	}
	if wd, _ := args["working_dir"].(string); wd != "" {
		if t.restrict {
			resolved, err := securePath(wd, t.workingDir, true)
			if err != nil {
				return ErrorResult(err.Error())
			}
			cwd = resolved
		} else {
			cwd = wd
		}
	}

	// Sandbox routing (sandboxKey from ctx; thread-safe)
	sandboxKey := ToolSandboxKeyFromCtx(ctx)
	if t.sandboxMgr != nil && sandboxKey != "" {
		return t.executeInSandbox(ctx, command, cwd, sandboxKey)
	}

	// Host execution
	return t.executeOnHost(ctx, command, cwd)
}

// executeOnHost runs a command directly on the host (original behavior).
func (t *ExecTool) executeOnHost(ctx context.Context, command, cwd string) *Result {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var result string
	if stdout.Len() > 0 {
		result = stdout.String()
	}
	if stderr.Len() > 0 {
		if result != "" {
			result += "\n"
		}
		result += "STDERR:\n" + stderr.String()
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ErrorResult(fmt.Sprintf("command timed out after %s", t.timeout))
		}
		if result == "" {
			result = err.Error()
		}
		return ErrorResult(result)
	}

	if result == "" {
		result = "(command completed with no output)"
	}

	return SilentResult(result)
}

// executeInSandbox routes a command through a Docker sandbox container.
func (t *ExecTool) executeInSandbox(ctx context.Context, command, cwd, sandboxKey string) *Result {
	sb, err := t.sandboxMgr.Get(ctx, sandboxKey, t.workingDir)
	if err != nil {
		if err == sandbox.ErrSandboxDisabled {
			return t.executeOnHost(ctx, command, cwd)
		}
		// Docker unavailable (binary missing, daemon down) → fallback to host
		slog.Warn("sandbox unavailable, falling back to host exec",
			"error", err,
			"command", truncateCmd(command, 80),
		)
		return t.executeOnHost(ctx, command, cwd)
	}

	// Map host workdir to container workdir
	containerCwd := "/workspace"
	if cwd != t.workingDir {
		rel, relErr := filepath.Rel(t.workingDir, cwd)
		if relErr == nil {
			containerCwd = filepath.Join("/workspace", rel)
		}
	}

	result, err := sb.Exec(ctx, []string{"sh", "-c", command}, containerCwd)
	if err != nil {
		return ErrorResult(fmt.Sprintf("sandbox exec: %v", err))
	}

	// Format output same as host execution
	output := result.Stdout
	if result.Stderr != "" {
		if output != "" {
			output += "\n"
		}
		output += "STDERR:\n" + result.Stderr
	}
	if result.ExitCode != 0 {
		if output == "" {
			output = fmt.Sprintf("command exited with code %d", result.ExitCode)
		}
		return ErrorResult(output)
	}
	if output == "" {
		output = "(command completed with no output)"
	}

	return SilentResult(output)
}
