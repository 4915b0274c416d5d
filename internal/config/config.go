package config

import (
	"encoding/json"
	"fmt"
	"sync"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON, tolerating
// sloppily hand-edited config files.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the agent runtime kernel.
type Config struct {
	ShowToolCalls     bool                      `json:"showToolCalls,omitempty"`
	MainChannel       string                    `json:"mainChannel,omitempty"`
	Channels          ChannelsConfig            `json:"channels,omitempty"`
	Providers         ProvidersConfig           `json:"providers"`
	Agent             AgentConfig               `json:"agent"`
	Memory            MemoryConfig              `json:"memory,omitempty"`
	Tools             ToolsConfig               `json:"tools,omitempty"`
	Web               WebUIConfig               `json:"web,omitempty"`
	Log               LogConfig                 `json:"log,omitempty"`
	Heartbeat         HeartbeatConfig           `json:"heartbeat,omitempty"`
	Cron              CronConfig                `json:"cron,omitempty"`
	AppSandbox        *SandboxJSONConfig        `json:"appSandbox,omitempty"`
	ToolSandbox       *SandboxJSONConfig        `json:"toolSandbox,omitempty"`
	SandboxMonitoring *SandboxMonitoringConfig  `json:"sandboxMonitoring,omitempty"`

	mu sync.RWMutex
}

// ChannelsConfig holds per-channel account lists. Channel adapters
// themselves are out of scope for this runtime; the shape is kept opaque
// so downstream tooling (or a future adapter) can read it without a config
// migration.
type ChannelsConfig struct {
	Telegram []ChannelAccount `json:"telegram,omitempty"`
	Discord  []ChannelAccount `json:"discord,omitempty"`
	Feishu   []ChannelAccount `json:"feishu,omitempty"`
}

// ChannelAccount is one configured bot account for a channel.
type ChannelAccount struct {
	Name    string `json:"name,omitempty"`
	Token   string `json:"token,omitempty"`
	Enabled bool   `json:"enabled,omitempty"`
}

// ProvidersConfig holds API credentials for every chat-completion backend
// the agent loop can dispatch to.
type ProvidersConfig struct {
	Anthropic  ProviderConfig `json:"anthropic,omitempty"`
	OpenAI     ProviderConfig `json:"openai,omitempty"`
	OpenRouter ProviderConfig `json:"openrouter,omitempty"`
	DeepSeek   ProviderConfig `json:"deepseek,omitempty"`
	Moonshot   ProviderConfig `json:"moonshot,omitempty"`
	Ollama     ProviderConfig `json:"ollama,omitempty"`
	Groq       ProviderConfig `json:"groq,omitempty"`
	Gemini     ProviderConfig `json:"gemini,omitempty"`
	Mistral    ProviderConfig `json:"mistral,omitempty"`
	XAI        ProviderConfig `json:"xai,omitempty"`
}

// ProviderConfig is one provider's credentials and endpoint override.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	APIBase string `json:"apiBase,omitempty"`
}

// HasAnyProvider reports whether at least one provider carries a key.
func (p ProvidersConfig) HasAnyProvider() bool {
	for _, pc := range []ProviderConfig{
		p.Anthropic, p.OpenAI, p.OpenRouter, p.DeepSeek, p.Moonshot,
		p.Ollama, p.Groq, p.Gemini, p.Mistral, p.XAI,
	} {
		if pc.APIKey != "" || pc.APIBase != "" {
			return true
		}
	}
	return false
}

// AgentConfig holds the single-tenant agent's runtime defaults and its
// named roles.
type AgentConfig struct {
	Workspace              string    `json:"workspace"`
	Provider               string    `json:"provider"`
	Model                  string    `json:"model"`
	MaxTokens              int       `json:"maxTokens,omitempty"`
	Temperature            float64   `json:"temperature"`
	MaxToolIterations      int       `json:"maxToolIterations,omitempty"`
	MaxConcurrentSubagents int       `json:"maxConcurrentSubagents,omitempty"`
	ContextWindow          int       `json:"contextWindow,omitempty"`
	Roles                  []RoleSpec `json:"roles,omitempty"`
}

// RoleSpec is a named persona the agent can run as, selected per session.
type RoleSpec struct {
	Name         string          `json:"name"`
	SystemPrompt string          `json:"systemPrompt,omitempty"`
	Workspace    string          `json:"workspace,omitempty"`
	Skills       FlexibleStringSlice `json:"skills,omitempty"`
	Tools        *ToolPolicySpec `json:"tools,omitempty"`
	Default      bool            `json:"default,omitempty"`
}

// MemoryConfig configures the hybrid vector+FTS memory index.
type MemoryConfig struct {
	Backend        string            `json:"backend,omitempty"` // "sqlite" (default)
	EmbeddingModel string            `json:"embeddingModel,omitempty"`
	VectorWeight   float64           `json:"vectorWeight,omitempty"` // default 0.6
	TextWeight     float64           `json:"textWeight,omitempty"`   // default 0.4
	AutoIndex      bool              `json:"autoIndex,omitempty"`
	Compression    CompressionConfig `json:"compression,omitempty"`
}

// CompressionConfig gates when a session's history is summarized.
type CompressionConfig struct {
	Enabled              bool `json:"enabled,omitempty"`
	MaxConversationTurns int  `json:"maxConversationTurns,omitempty"` // default 50
}

// ShouldCompress reports whether a session with messageCount messages has
// crossed the compaction threshold.
func (c CompressionConfig) ShouldCompress(messageCount int) bool {
	return c.Enabled && messageCount > c.MaxConversationTurns
}

// ToolsConfig is the global tool-access policy plus per-tool-family
// settings, evaluated by the policy engine's 7-step pipeline.
type ToolsConfig struct {
	Profile          string                     `json:"profile,omitempty"`
	Allow            FlexibleStringSlice        `json:"allow,omitempty"`
	Deny             FlexibleStringSlice        `json:"deny,omitempty"`
	AlsoAllow        FlexibleStringSlice        `json:"alsoAllow,omitempty"`
	ByProvider       map[string]*ToolPolicySpec `json:"byProvider,omitempty"`
	Exec             ExecToolsConfig            `json:"exec,omitempty"`
	Web              WebToolsConfig             `json:"web,omitempty"`
	Vision           *VisionConfig              `json:"vision,omitempty"`
	ImageGen         *ImageGenConfig            `json:"imageGen,omitempty"`
	RateLimitPerHour int                        `json:"rateLimitPerHour,omitempty"`
	ScrubCredentials *bool                      `json:"scrubCredentials,omitempty"` // default true (nil = enabled)
}

// ToolPolicySpec is a narrower allow/deny overlay, usable both per-agent and
// per-provider (config.ToolsConfig.ByProvider / AgentConfig role tool
// overrides).
type ToolPolicySpec struct {
	Profile    string                     `json:"profile,omitempty"`
	Allow      FlexibleStringSlice        `json:"allow,omitempty"`
	Deny       FlexibleStringSlice        `json:"deny,omitempty"`
	AlsoAllow  FlexibleStringSlice        `json:"alsoAllow,omitempty"`
	ByProvider map[string]*ToolPolicySpec `json:"byProvider,omitempty"`
	Vision     *VisionConfig              `json:"vision,omitempty"`
	ImageGen   *ImageGenConfig            `json:"imageGen,omitempty"`
}

// VisionConfig overrides the provider/model used by the read_image tool.
type VisionConfig struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// ImageGenConfig overrides the provider/model/size/quality used by the
// create_image tool.
type ImageGenConfig struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Size     string `json:"size,omitempty"`
	Quality  string `json:"quality,omitempty"`
}

// ExecApprovalRule is one glob-anchored approval classification rule,
// surfaced to the approval engine at startup.
type ExecApprovalRule struct {
	Pattern     string `json:"pattern"`
	Level       string `json:"level"` // "auto_allow", "ask", "deny"
	Description string `json:"description,omitempty"`
}

// ExecToolsConfig configures the shell/exec tool and the command-approval
// rules it is subject to.
type ExecToolsConfig struct {
	TimeoutSecs         int                 `json:"timeoutSecs,omitempty"` // default 120
	RestrictToWorkspace bool                `json:"restrictToWorkspace,omitempty"`
	DenyPatterns        FlexibleStringSlice `json:"denyPatterns,omitempty"`
	AllowPatterns       FlexibleStringSlice `json:"allowPatterns,omitempty"`
	Permissions         []ExecApprovalRule  `json:"permissions,omitempty"`
}

// WebToolsConfig configures the web_search/web_fetch tools.
type WebToolsConfig struct {
	SearchBackend string           `json:"searchBackend,omitempty"` // "duckduckgo" (default), "searxng", "brave"
	SearxNGURL    string           `json:"searxngUrl,omitempty"`
	SearchCount   int              `json:"searchCount,omitempty"` // default 5
	Brave         BraveConfig      `json:"brave,omitempty"`
	DuckDuckGo    DuckDuckGoConfig `json:"duckduckgo,omitempty"`
}

// BraveConfig configures the Brave Search API backend.
type BraveConfig struct {
	Enabled    bool   `json:"enabled,omitempty"`
	APIKey     string `json:"apiKey,omitempty"`
	MaxResults int    `json:"maxResults,omitempty"`
}

// DuckDuckGoConfig configures the keyless DuckDuckGo HTML backend.
type DuckDuckGoConfig struct {
	Enabled    bool `json:"enabled,omitempty"`
	MaxResults int  `json:"maxResults,omitempty"`
}

// WebUIConfig configures the optional local status/control surface.
// Serving it is outside this kernel's scope; the shape is kept so a
// config file written against the full schema round-trips losslessly.
type WebUIConfig struct {
	Enabled     bool     `json:"enabled,omitempty"`
	Port        int      `json:"port,omitempty"`
	Host        string   `json:"host,omitempty"`
	Auth        string   `json:"auth,omitempty"`
	CorsOrigins []string `json:"corsOrigins,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `json:"level,omitempty"`  // "debug","info","warn","error" (default "info")
	Format string `json:"format,omitempty"` // "text" (default) or "json"
}

// HeartbeatConfig configures the periodic idle-agent heartbeat.
type HeartbeatConfig struct {
	Enabled  bool                `json:"enabled,omitempty"`
	Interval string              `json:"interval,omitempty"` // Go duration string, e.g. "30m"
	Tasks    FlexibleStringSlice `json:"tasks,omitempty"`
}

// CronConfig lists scheduled one-shot and recurring agent tasks.
type CronConfig struct {
	Tasks []CronTaskConfig `json:"tasks,omitempty"`
}

// CronTaskConfig is one scheduled task. Exactly one of At, Every, or Cron
// should be set; At wins if more than one is present.
type CronTaskConfig struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	At      string `json:"at,omitempty"`    // RFC3339 one-shot
	Every   string `json:"every,omitempty"` // Go duration, recurring
	Cron    string `json:"cron,omitempty"`  // 5-field cron expression
}

// SandboxJSONConfig is the on-disk shape of an app-sandbox or tool-sandbox
// override, translated per-platform by the sandbox manager.
type SandboxJSONConfig struct {
	SandboxID             string           `json:"sandboxId,omitempty"`
	Platform              string           `json:"platform,omitempty"` // "auto" (default), "linux", "darwin", "windows"
	Filesystem            FilesystemConfig `json:"filesystem,omitempty"`
	Network               NetworkConfig    `json:"network,omitempty"`
	Resources             ResourcesConfig  `json:"resources,omitempty"`
	Process               ProcessConfig    `json:"process,omitempty"`
	AllowInsecureFallback bool             `json:"allowInsecureFallback,omitempty"`
}

// FilesystemConfig lists the sandbox's filesystem access grants.
type FilesystemConfig struct {
	RO     FlexibleStringSlice `json:"ro,omitempty"`
	RW     FlexibleStringSlice `json:"rw,omitempty"`
	Hidden FlexibleStringSlice `json:"hidden,omitempty"`
}

// NetworkConfig constrains the sandbox's outbound network access.
type NetworkConfig struct {
	Enabled      bool                `json:"enabled,omitempty"`
	AllowedHosts FlexibleStringSlice `json:"allowedHosts,omitempty"`
	AllowedPorts []int               `json:"allowedPorts,omitempty"`
}

// ResourcesConfig caps the sandbox's resource consumption. MaxMemory and
// MaxDisk accept humanized sizes ("512M", "2G"); empty means unlimited.
type ResourcesConfig struct {
	MaxMemory string `json:"maxMemory,omitempty"`
	MaxCPU    int    `json:"maxCpu,omitempty"`
	MaxDisk   string `json:"maxDisk,omitempty"`
}

// ProcessConfig constrains process spawning inside the sandbox.
type ProcessConfig struct {
	AllowFork    bool `json:"allowFork,omitempty"`
	MaxProcesses int  `json:"maxProcesses,omitempty"`
}

// SandboxMonitoringConfig configures sandbox health checks and audit
// logging.
type SandboxMonitoringConfig struct {
	Enabled         bool   `json:"enabled,omitempty"`
	AuditLogPath    string `json:"auditLogPath,omitempty"`
	HealthCheckSecs int    `json:"healthCheckSecs,omitempty"` // default 30
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
// Used by the hot-reload watcher to swap in a freshly loaded config without
// invalidating pointers callers already hold to c.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ShowToolCalls = src.ShowToolCalls
	c.MainChannel = src.MainChannel
	c.Channels = src.Channels
	c.Providers = src.Providers
	c.Agent = src.Agent
	c.Memory = src.Memory
	c.Tools = src.Tools
	c.Web = src.Web
	c.Log = src.Log
	c.Heartbeat = src.Heartbeat
	c.Cron = src.Cron
	c.AppSandbox = src.AppSandbox
	c.ToolSandbox = src.ToolSandbox
	c.SandboxMonitoring = src.SandboxMonitoring
}

// Snapshot returns a shallow copy of the config safe for read-only use
// outside the lock (the slices/maps it holds are shared, matching the rest
// of this package's "config is read far more than it's written" tradeoff).
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := *c
	return cp
}

// ResolveRole returns the named role, or the role marked Default, or the
// zero RoleSpec if neither exists.
func (c *Config) ResolveRole(name string) (RoleSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if name != "" {
		for _, r := range c.Agent.Roles {
			if r.Name == name {
				return r, true
			}
		}
		return RoleSpec{}, false
	}
	for _, r := range c.Agent.Roles {
		if r.Default {
			return r, true
		}
	}
	return RoleSpec{}, false
}
