package config

import (
	"github.com/dustin/go-humanize"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/sandbox"
)

// ToSandboxConfig translates the on-disk sandbox override into a
// sandbox.Config, applying the package's own defaults for anything left
// unset. MaxMemory/MaxDisk are humanized sizes ("512M", "2G"); an
// unparseable or empty value falls back to the default.
func (sc *SandboxJSONConfig) ToSandboxConfig(kind sandbox.Kind) sandbox.Config {
	def := sandbox.DefaultManagerConfig().Template
	def.Kind = kind

	if sc == nil {
		return def
	}

	cfg := def
	if sc.SandboxID != "" {
		cfg.SandboxID = sc.SandboxID
	}
	if sc.Platform != "" && sc.Platform != "auto" {
		cfg.Platform = sc.Platform
	}

	if len(sc.Filesystem.RO) > 0 {
		cfg.Filesystem.ReadonlyPaths = []string(sc.Filesystem.RO)
	}
	if len(sc.Filesystem.RW) > 0 {
		cfg.Filesystem.WritablePaths = []string(sc.Filesystem.RW)
	}
	if len(sc.Filesystem.Hidden) > 0 {
		cfg.Filesystem.HiddenPaths = []string(sc.Filesystem.Hidden)
	}

	cfg.Network.Enabled = sc.Network.Enabled
	if len(sc.Network.AllowedHosts) > 0 {
		cfg.Network.AllowedHosts = []string(sc.Network.AllowedHosts)
	}
	if len(sc.Network.AllowedPorts) > 0 {
		cfg.Network.AllowedPorts = sc.Network.AllowedPorts
	}

	if sc.Resources.MaxMemory != "" {
		if n, err := humanize.ParseBytes(sc.Resources.MaxMemory); err == nil {
			cfg.Resources.MaxMemory = n
		}
	}
	if sc.Resources.MaxCPU > 0 {
		cfg.Resources.MaxCPU = float64(sc.Resources.MaxCPU)
	}
	if sc.Resources.MaxDisk != "" {
		if n, err := humanize.ParseBytes(sc.Resources.MaxDisk); err == nil {
			cfg.Resources.MaxDisk = n
		}
	}

	cfg.Process.AllowFork = sc.Process.AllowFork
	if sc.Process.MaxProcesses > 0 {
		cfg.Process.MaxProcesses = uint32(sc.Process.MaxProcesses)
	}

	cfg.AllowInsecureFallback = sc.AllowInsecureFallback

	return cfg
}

// ToManagerConfig builds a sandbox.ManagerConfig for the tool sandbox,
// layering monitoring settings from the top-level sandboxMonitoring block.
func (c *Config) ToManagerConfig() sandbox.ManagerConfig {
	mc := sandbox.DefaultManagerConfig()
	mc.Template = c.ToolSandbox.ToSandboxConfig(sandbox.KindTool)
	if c.SandboxMonitoring != nil && c.SandboxMonitoring.Enabled {
		mc.AuditLogPath = c.SandboxMonitoring.AuditLogPath
		mc.Template.Monitoring.Audit = sandbox.DefaultAuditConfig()
	} else {
		mc.Template.Monitoring.Audit = sandbox.AuditConfig{}
	}
	return mc
}
