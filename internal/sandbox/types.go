// Package sandbox implements the Sandbox Manager: platform-selected
// app/tool sandbox lifecycle, a security validator, an isolation
// verifier, a cross-sandbox payload filter, recovery with backoff, and a
// fallback manager.
//
// Container-backed tool sandboxes are driven the same way every other
// subprocess in internal/tools is: via os/exec against the
// `docker`/`runsc` CLIs, not by importing a container-runtime library;
// gVisor's own Go packages implement a sandboxed kernel's internals, not
// a client API for launching one.
package sandbox

import (
	"encoding/json"
	"time"
)

// Kind distinguishes an app sandbox (isolates the assistant process
// itself; at most one) from a tool sandbox (isolates the exec tool; the
// manager keeps one per routing key)
type Kind string

const (
	KindApp  Kind = "app"
	KindTool Kind = "tool"
)

// State is a sandbox's lifecycle state
type State string

const (
	StateCreated  State = "created"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateError    State = "error"
)

// Platform names, used both for config.Platform and SandboxInfo.
const (
	PlatformLinux   = "linux"
	PlatformMacOS   = "darwin"
	PlatformWindows = "windows"
)

// Implementation names used by the Fallback Manager and SandboxInfo.
const (
	ImplAppContainer  = "appcontainer"
	ImplLandlockNono  = "landlock-nono"
	ImplSeatbeltNono  = "seatbelt-nono"
	ImplGVisorDocker  = "gvisor-docker"
	ImplPlainDocker   = "plain-docker"
	ImplWSL2GVisor    = "wsl2-gvisor"
)

// FilesystemConfig controls path visibility inside a sandbox.
type FilesystemConfig struct {
	ReadonlyPaths []string `json:"readonly_paths"`
	WritablePaths []string `json:"writable_paths"`
	HiddenPaths   []string `json:"hidden_paths"`
}

// NetworkConfig controls outbound network access.
type NetworkConfig struct {
	Enabled      bool     `json:"enabled"`
	AllowedHosts []string `json:"allowed_hosts"`
	AllowedPorts []int    `json:"allowed_ports"`
}

// ResourceConfig bounds memory/CPU/disk.
type ResourceConfig struct {
	MaxMemory uint64  `json:"max_memory"` // bytes
	MaxCPU    float64 `json:"max_cpu"`    // cores
	MaxDisk   uint64  `json:"max_disk"`   // bytes
}

// ProcessConfig controls subprocess creation.
type ProcessConfig struct {
	AllowFork    bool `json:"allow_fork"`
	MaxProcesses uint32 `json:"max_processes"`
}

// AuditConfig lists the audit event categories a template enables. No
// code reads these fields: the manager logs every audit event it emits
// regardless of them.
type AuditConfig struct {
	FileAccess      bool `json:"file_access"`
	NetworkAccess   bool `json:"network_access"`
	ProcessCreation bool `json:"process_creation"`
	Violations      bool `json:"violations"`
}

// DefaultAuditConfig enables every audit event category.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{FileAccess: true, NetworkAccess: true, ProcessCreation: true, Violations: true}
}

// MetricsConfig holds metrics-export settings for a template. No
// component in this module reads it or exports metrics.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Interval uint64 `json:"interval"` // seconds
	Endpoint string `json:"endpoint,omitempty"`
}

// DefaultMetricsConfig sets Enabled to false and a 60s interval.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: false, Interval: 60}
}

// MonitoringConfig groups logging, audit, and metrics settings.
type MonitoringConfig struct {
	LogLevel string      `json:"log_level"`
	Audit    AuditConfig `json:"audit"`
	Metrics  MetricsConfig `json:"metrics"`
}

// DefaultMonitoringConfig combines the audit and metrics defaults under
// info-level logging.
func DefaultMonitoringConfig() MonitoringConfig {
	return MonitoringConfig{LogLevel: "info", Audit: DefaultAuditConfig(), Metrics: DefaultMetricsConfig()}
}

// Config is the full configuration of one sandbox
type Config struct {
	SandboxID  string           `json:"sandbox_id"`
	Kind       Kind             `json:"kind"`
	Platform   string           `json:"platform"`
	Filesystem FilesystemConfig `json:"filesystem"`
	Network    NetworkConfig    `json:"network"`
	Resources  ResourceConfig   `json:"resources"`
	Process    ProcessConfig    `json:"process"`
	Monitoring MonitoringConfig `json:"monitoring"`

	// AllowInsecureFallback permits the Fallback Manager to substitute a
	// less-isolating tool-sandbox implementation when the primary one
	// fails to create.
	AllowInsecureFallback bool `json:"allow_insecure_fallback"`
}

// MaxResourceLimits is the global ceiling every Config.Resources/Process
// must fit within .
type MaxResourceLimits struct {
	MaxMemory    uint64
	MaxCPU       float64
	MaxDisk      uint64
	MaxProcesses uint32
}

// DefaultMaxResourceLimits returns the global resource ceiling: 16 GiB
// memory, all cores, 100 GiB disk, 1000 processes.
func DefaultMaxResourceLimits() MaxResourceLimits {
	return MaxResourceLimits{
		MaxMemory:    16 * 1024 * 1024 * 1024,
		MaxCPU:       0, // 0 means "all cores"; no ceiling enforced
		MaxDisk:      100 * 1024 * 1024 * 1024,
		MaxProcesses: 1000,
	}
}

const minMemoryBytes = 64 * 1024 * 1024

// Status is the externally observable lifecycle snapshot of a sandbox.
type Status struct {
	SandboxID string     `json:"sandbox_id"`
	State     State      `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ExecutionResult is the raw outcome of one Exec call.
type ExecutionResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
	Err      error
}

// HealthStatus is the outcome of a sandbox health check.
type HealthStatus struct {
	Healthy bool
	Checks  map[string]bool
	Message string
}

// Info is the minimal identity of a sandbox, used by the Isolation
// Verifier.
type Info struct {
	SandboxID string
	Platform  string
	Kind      Kind
	Impl      string
}

// AuditEvent is one JSON-line audit log entry
type AuditEvent struct {
	Timestamp time.Time       `json:"timestamp"`
	SandboxID string          `json:"sandbox_id"`
	EventType string          `json:"event_type"` // sandbox_created | file_access | network_access | process_creation | violation
	Details   json.RawMessage `json:"details"`
}

// Audit event type constants.
const (
	EventSandboxCreated  = "sandbox_created"
	EventFileAccess      = "file_access"
	EventNetworkAccess   = "network_access"
	EventProcessCreation = "process_creation"
	EventViolation       = "violation"
)

// ToJSONLine renders e as a single JSON-lines record.
func (e AuditEvent) ToJSONLine() (string, error) {
	buf, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}
