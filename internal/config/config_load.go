package config

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/titanous/json5"
)

// DefaultAgentID names the role used when none is selected explicitly.
const DefaultAgentID = "main"

// roleNameRe bounds what a role may be called; role names become
// directory names and session-key components.
var roleNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

const maxBackups = 5

// Default returns a Config with sensible defaults, matching what onboard
// writes out for a brand-new workspace.
func Default() *Config {
	return &Config{
		MainChannel: "cli",
		Agent: AgentConfig{
			Workspace:              "~/.goclaw/workspace",
			Provider:               "anthropic",
			Model:                  "claude-sonnet-4-5-20250929",
			MaxTokens:              8192,
			Temperature:            0.7,
			MaxToolIterations:      20,
			MaxConcurrentSubagents: 8,
			ContextWindow:          200000,
		},
		Memory: MemoryConfig{
			Backend:        "sqlite",
			EmbeddingModel: "text-embedding-3-small",
			VectorWeight:   0.6,
			TextWeight:     0.4,
			AutoIndex:      true,
			Compression: CompressionConfig{
				Enabled:              true,
				MaxConversationTurns: 50,
			},
		},
		Tools: ToolsConfig{
			Profile: "full",
			Exec: ExecToolsConfig{
				TimeoutSecs:         120,
				RestrictToWorkspace: true,
			},
			Web: WebToolsConfig{
				SearchBackend: "duckduckgo",
				SearchCount:   5,
				DuckDuckGo:    DuckDuckGoConfig{Enabled: true, MaxResults: 5},
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Heartbeat: HeartbeatConfig{
			Interval: "30m",
		},
	}
}

// Load reads config from a JSON5 file (permissive: comments, trailing
// commas, unquoted keys), overlays environment variables, then validates.
// A missing file is not an error; it returns Default() with env overrides
// applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", joinErrors(errs))
	}
	return cfg, nil
}

// joinErrors folds a slice of validation errors into one error whose
// message lists every violation, so a single bad field doesn't hide the
// rest.
func joinErrors(errs []error) error {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// Validate checks every numeric/range constraint the schema imposes and
// returns every violation found, rather than stopping at the first.
func (c *Config) Validate() []error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		errs = append(errs, fmt.Errorf("agent.temperature must be in [0,2], got %v", c.Agent.Temperature))
	}
	if c.Agent.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("agent.maxTokens must be > 0, got %d", c.Agent.MaxTokens))
	}
	if c.Agent.Workspace == "" {
		errs = append(errs, fmt.Errorf("agent.workspace must not be empty"))
	}
	if c.Tools.Exec.TimeoutSecs < 0 {
		errs = append(errs, fmt.Errorf("tools.exec.timeoutSecs must be >= 0, got %d", c.Tools.Exec.TimeoutSecs))
	}
	if c.Memory.VectorWeight < 0 || c.Memory.VectorWeight > 1 {
		errs = append(errs, fmt.Errorf("memory.vectorWeight must be in [0,1], got %v", c.Memory.VectorWeight))
	}
	if c.Memory.TextWeight < 0 || c.Memory.TextWeight > 1 {
		errs = append(errs, fmt.Errorf("memory.textWeight must be in [0,1], got %v", c.Memory.TextWeight))
	}
	seenRoles := make(map[string]bool)
	defaults := 0
	for _, r := range c.Agent.Roles {
		if !roleNameRe.MatchString(r.Name) {
			errs = append(errs, fmt.Errorf("agent.roles: role name %q must match [A-Za-z0-9_]+", r.Name))
			continue
		}
		if seenRoles[r.Name] {
			errs = append(errs, fmt.Errorf("agent.roles: duplicate role name %q", r.Name))
		}
		seenRoles[r.Name] = true
		if r.Default {
			defaults++
		}
	}
	if defaults > 1 {
		errs = append(errs, fmt.Errorf("agent.roles: at most one role may be the default"))
	}
	switch c.Tools.Web.SearchBackend {
	case "", "duckduckgo":
	case "brave":
		if c.Tools.Web.Brave.APIKey == "" {
			errs = append(errs, fmt.Errorf("tools.web: searchBackend is \"brave\" but no brave API key is configured"))
		}
	case "searxng":
		if c.Tools.Web.SearxNGURL == "" {
			errs = append(errs, fmt.Errorf("tools.web: searchBackend is \"searxng\" but searxngUrl is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("tools.web: unknown searchBackend %q", c.Tools.Web.SearchBackend))
	}
	for _, t := range c.Cron.Tasks {
		set := 0
		for _, v := range []string{t.At, t.Every, t.Cron} {
			if v != "" {
				set++
			}
		}
		if set == 0 {
			errs = append(errs, fmt.Errorf("cron.tasks[%q]: exactly one of at/every/cron must be set", t.Name))
		}
	}
	return errs
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values and are never persisted back by Save.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("GOCLAW_ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("GOCLAW_ANTHROPIC_BASE_URL", &c.Providers.Anthropic.APIBase)
	envStr("GOCLAW_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("GOCLAW_OPENROUTER_API_KEY", &c.Providers.OpenRouter.APIKey)
	envStr("GOCLAW_DEEPSEEK_API_KEY", &c.Providers.DeepSeek.APIKey)
	envStr("GOCLAW_MOONSHOT_API_KEY", &c.Providers.Moonshot.APIKey)
	envStr("GOCLAW_OLLAMA_BASE_URL", &c.Providers.Ollama.APIBase)
	envStr("GOCLAW_GROQ_API_KEY", &c.Providers.Groq.APIKey)
	envStr("GOCLAW_GEMINI_API_KEY", &c.Providers.Gemini.APIKey)
	envStr("GOCLAW_MISTRAL_API_KEY", &c.Providers.Mistral.APIKey)
	envStr("GOCLAW_XAI_API_KEY", &c.Providers.XAI.APIKey)
	envStr("GOCLAW_BRAVE_API_KEY", &c.Tools.Web.Brave.APIKey)

	envStr("GOCLAW_PROVIDER", &c.Agent.Provider)
	envStr("GOCLAW_MODEL", &c.Agent.Model)
	envStr("GOCLAW_WORKSPACE", &c.Agent.Workspace)

	if v := os.Getenv("GOCLAW_MAX_TOOL_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Agent.MaxToolIterations = n
		}
	}
	if v := os.Getenv("GOCLAW_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// ApplyEnvOverrides re-applies environment variable overrides onto the
// config. Call after an in-process mutation (e.g. hot-reload) to restore
// runtime secrets that are deliberately never written to disk.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyEnvOverrides()
}

// Save writes the config to path as indented JSON, rotating up to
// maxBackups numbered backups (path+".bak.1" most recent, oldest
// overwritten first) before replacing the target, then performs the same
// write-temp-fsync-rename dance the session store uses so a crash mid-write
// never corrupts the live config.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	data, err := json.MarshalIndent(cfg, "", "  ")
	cfg.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := rotateBackups(path); err != nil {
			return fmt.Errorf("config: rotate backups: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("config: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("config: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("config: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: rename: %w", err)
	}
	return nil
}

// rotateBackups shifts path+".bak.1".."bak.maxBackups" up by one slot,
// oldest dropped, and copies the current file into ".bak.1". Backups are
// best-effort: a failure to rotate an individual slot is logged, not fatal,
// since the primary write still has to happen.
func rotateBackups(path string) error {
	for i := maxBackups; i >= 1; i-- {
		src := backupPath(path, i)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if i == maxBackups {
			if err := os.Remove(src); err != nil {
				slog.Warn("config: drop oldest backup failed", "path", src, "error", err)
			}
			continue
		}
		dst := backupPath(path, i+1)
		if err := os.Rename(src, dst); err != nil {
			slog.Warn("config: rotate backup failed", "src", src, "dst", dst, "error", err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(backupPath(path, 1), data, 0o600)
}

func backupPath(path string, n int) string {
	return fmt.Sprintf("%s.bak.%d", path, n)
}

// Hash returns a short SHA-256 digest of the config, used for optimistic
// concurrency checks by callers that poll for external edits.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// WorkspacePath returns the expanded workspace path.
func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Agent.Workspace)
}

// ExpandHome replaces a leading "~" with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}

// ChangeListener is notified whenever Watch picks up an on-disk edit to
// the config file that parses and validates cleanly.
type ChangeListener func(cfg *Config)

// Watch starts an fsnotify watch on path's directory (watching the file
// directly misses editors that replace it via rename-on-save) and keeps
// cfg's contents in sync with disk, invoking every registered listener
// after each successful reload. It runs until ctx is canceled.
func Watch(ctx context.Context, path string, cfg *Config, listeners ...ChangeListener) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: new watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				reloaded, err := Load(path)
				if err != nil {
					slog.Warn("config: reload after change skipped", "error", err)
					continue
				}
				cfg.ReplaceFrom(reloaded)
				for _, l := range listeners {
					l(cfg)
				}
				slog.Info("config: reloaded from disk", "path", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config: watcher error", "error", err)
			}
		}
	}()
	return nil
}

// ListBackups returns backup paths that currently exist for path, ordered
// newest-first.
func ListBackups(path string) []string {
	var found []string
	for i := 1; i <= maxBackups; i++ {
		p := backupPath(path, i)
		if _, err := os.Stat(p); err == nil {
			found = append(found, p)
		}
	}
	sort.Strings(found)
	return found
}
