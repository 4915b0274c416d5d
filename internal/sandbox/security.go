package sandbox

import (
	"log/slog"
	"path/filepath"
	"strings"
)

// dangerousPaths is the fixed list of locations that must never be
// writable and must be explicitly hidden if they fall under a granted
// prefix.
var dangerousPaths = []string{
	"/etc/shadow", "/etc/sudoers", "/etc/passwd",
	"/root", "/boot", "/sys", "/proc/sys", "/dev/mem", "/dev/kmem",
	`C:\Windows\System32\config`, `C:\Windows\System32\SAM`,
	`C:\Windows\System32\SECURITY`, `C:\ProgramData\Microsoft\Crypto`,
}

// dangerousCapabilities is the fixed list of Linux capabilities that
// enable privilege escalation and must never be granted.
var dangerousCapabilities = []string{
	"CAP_SYS_ADMIN", "CAP_SYS_MODULE", "CAP_SYS_RAWIO", "CAP_SYS_PTRACE",
	"CAP_SYS_BOOT", "CAP_MAC_ADMIN", "CAP_MAC_OVERRIDE",
	"CAP_SETUID", "CAP_SETGID", "CAP_SETFCAP",
}

// dangerousCommands is the fixed list of privilege-escalation/
// mount-manipulation binaries rejected by ValidateCommand.
var dangerousCommands = map[string]bool{
	"sudo": true, "su": true, "doas": true, "pkexec": true,
	"chmod": true, "chown": true, "chgrp": true,
	"mount": true, "umount": true,
	"insmod": true, "rmmod": true, "modprobe": true,
}

// dangerousShellChars are shell metacharacters rejected anywhere in a
// command or argument string.
var dangerousShellChars = "|&;\n`$()<>\"'"

// Validator performs the security checks required before every sandbox
// create and every exec
type Validator struct {
	maxResourceLimits MaxResourceLimits
}

// NewValidator constructs a Validator against the global resource
// ceiling.
func NewValidator(limits MaxResourceLimits) *Validator {
	return &Validator{maxResourceLimits: limits}
}

func isDangerousPath(path string) bool {
	for _, d := range dangerousPaths {
		if path == d || strings.HasPrefix(path, d) {
			return true
		}
	}
	return false
}

// DangerousCapabilities reports whether any of caps is in the fixed deny
// list.
func DangerousCapabilities(caps []string) []string {
	var found []string
	for _, c := range caps {
		for _, d := range dangerousCapabilities {
			if strings.EqualFold(c, d) {
				found = append(found, c)
			}
		}
	}
	return found
}

// ValidateConfig runs every structural security check against cfg.
func (v *Validator) ValidateConfig(cfg Config) *Error {
	if err := v.validateFilesystem(cfg); err != nil {
		return err
	}
	if err := v.validateResources(cfg); err != nil {
		return err
	}
	v.validateNetwork(cfg) // only emits warnings, no hard rejection besides wildcard below
	if err := v.validateNetworkStrict(cfg); err != nil {
		return err
	}
	v.validateProcess(cfg)
	return nil
}

func (v *Validator) validateFilesystem(cfg Config) *Error {
	for _, path := range cfg.Filesystem.WritablePaths {
		if isDangerousPath(path) {
			return New(ErrSecurityViolation, "writable access to dangerous path not allowed: %s", path)
		}
		if strings.Contains(path, "..") {
			return New(ErrSecurityViolation, "path traversal detected in writable path: %s", path)
		}
	}
	for _, path := range cfg.Filesystem.ReadonlyPaths {
		if strings.Contains(path, "..") {
			return New(ErrSecurityViolation, "path traversal detected in readonly path: %s", path)
		}
	}
	for _, dangerous := range dangerousPaths {
		isHidden := false
		for _, p := range cfg.Filesystem.HiddenPaths {
			if p == dangerous || strings.HasPrefix(dangerous, p) {
				isHidden = true
				break
			}
		}
		isWritable := false
		for _, p := range cfg.Filesystem.WritablePaths {
			if strings.HasPrefix(dangerous, p) {
				isWritable = true
				break
			}
		}
		if isWritable && !isHidden {
			return New(ErrSecurityViolation, "dangerous path %s must be explicitly hidden", dangerous)
		}
	}
	return nil
}

func (v *Validator) validateResources(cfg Config) *Error {
	if v.maxResourceLimits.MaxMemory > 0 && cfg.Resources.MaxMemory > v.maxResourceLimits.MaxMemory {
		return New(ErrSecurityViolation, "memory limit %d exceeds maximum allowed %d", cfg.Resources.MaxMemory, v.maxResourceLimits.MaxMemory)
	}
	if cfg.Resources.MaxMemory < minMemoryBytes {
		return New(ErrSecurityViolation, "memory limit %d is below minimum %d", cfg.Resources.MaxMemory, minMemoryBytes)
	}
	if v.maxResourceLimits.MaxCPU > 0 && cfg.Resources.MaxCPU > v.maxResourceLimits.MaxCPU {
		return New(ErrSecurityViolation, "CPU limit %f exceeds maximum allowed %f", cfg.Resources.MaxCPU, v.maxResourceLimits.MaxCPU)
	}
	if cfg.Resources.MaxCPU <= 0 {
		return New(ErrSecurityViolation, "CPU limit must be greater than 0")
	}
	if v.maxResourceLimits.MaxDisk > 0 && cfg.Resources.MaxDisk > v.maxResourceLimits.MaxDisk {
		return New(ErrSecurityViolation, "disk limit %d exceeds maximum allowed %d", cfg.Resources.MaxDisk, v.maxResourceLimits.MaxDisk)
	}
	if v.maxResourceLimits.MaxProcesses > 0 && cfg.Process.MaxProcesses > v.maxResourceLimits.MaxProcesses {
		return New(ErrSecurityViolation, "process limit %d exceeds maximum allowed %d", cfg.Process.MaxProcesses, v.maxResourceLimits.MaxProcesses)
	}
	if cfg.Process.MaxProcesses == 0 {
		return New(ErrSecurityViolation, "process limit must be at least 1")
	}
	return nil
}

func (v *Validator) validateNetwork(cfg Config) {
	if !cfg.Network.Enabled {
		return
	}
	for _, host := range cfg.Network.AllowedHosts {
		if strings.Contains(host, "localhost") || strings.Contains(host, "127.0.0.1") || strings.Contains(host, "::1") {
			slog.Warn("sandbox: network access to localhost/loopback allowed", "host", host)
		}
	}
	for _, port := range cfg.Network.AllowedPorts {
		if port < 1024 {
			slog.Warn("sandbox: privileged port allowed", "port", port)
		}
	}
}

func (v *Validator) validateNetworkStrict(cfg Config) *Error {
	if !cfg.Network.Enabled {
		return nil
	}
	for _, host := range cfg.Network.AllowedHosts {
		if host == "*" || host == "0.0.0.0" || host == "::" {
			return New(ErrSecurityViolation, "overly permissive network host pattern: %q (use specific hostnames, not 0.0.0.0 or *)", host)
		}
	}
	return nil
}

func (v *Validator) validateProcess(cfg Config) {
	if cfg.Process.AllowFork {
		slog.Warn("sandbox: process forking enabled, may allow fork bombs")
	}
	if cfg.Process.MaxProcesses > 100 {
		slog.Warn("sandbox: high process limit may enable resource exhaustion", "max_processes", cfg.Process.MaxProcesses)
	}
}

// ValidateCommand rejects shell metacharacters in cmd/args and the fixed
// privilege-escalation binary list "Security validator".
func (v *Validator) ValidateCommand(cmd string, args []string) *Error {
	if strings.ContainsAny(cmd, dangerousShellChars) {
		return New(ErrSecurityViolation, "command contains dangerous shell metacharacters: %s", cmd)
	}
	for _, a := range args {
		if strings.ContainsAny(a, dangerousShellChars) {
			return New(ErrSecurityViolation, "argument contains dangerous shell metacharacters: %s", a)
		}
	}
	base := filepath.Base(cmd)
	if dangerousCommands[base] {
		return New(ErrSecurityViolation, "command %q is a privilege-escalation binary and is not allowed", base)
	}
	return nil
}
