package sandbox

import (
	"strings"
	"testing"
)

func validResources() (ResourceConfig, ProcessConfig) {
	return ResourceConfig{MaxMemory: 512 * 1024 * 1024, MaxCPU: 1.0, MaxDisk: 1024 * 1024 * 1024},
		ProcessConfig{MaxProcesses: 32}
}

func validConfig() Config {
	res, proc := validResources()
	return Config{
		SandboxID: "t1",
		Kind:      KindTool,
		Platform:  PlatformLinux,
		Resources: res,
		Process:   proc,
	}
}

func TestValidateCommandRejectsPrivilegeEscalation(t *testing.T) {
	v := NewValidator(DefaultMaxResourceLimits())
	for _, cmd := range []string{"sudo", "su", "doas", "pkexec", "mount", "umount", "insmod", "rmmod", "modprobe", "chmod", "chown", "chgrp"} {
		err := v.ValidateCommand(cmd, []string{"ls"})
		if err == nil {
			t.Errorf("ValidateCommand(%q) accepted a privilege-escalation binary", cmd)
			continue
		}
		if err.Kind != ErrSecurityViolation {
			t.Errorf("ValidateCommand(%q) kind = %v, want SecurityViolation", cmd, err.Kind)
		}
	}
	// Path-qualified invocations are judged by basename.
	if err := v.ValidateCommand("/usr/bin/sudo", nil); err == nil {
		t.Error("path-qualified sudo accepted")
	}
}

func TestValidateCommandRejectsShellMetacharacters(t *testing.T) {
	v := NewValidator(DefaultMaxResourceLimits())
	for _, cmd := range []string{"ls; rm", "cat|wc", "echo $(id)", "a`b`", "x > y"} {
		if err := v.ValidateCommand(cmd, nil); err == nil {
			t.Errorf("ValidateCommand(%q) accepted shell metacharacters", cmd)
		}
	}
	if err := v.ValidateCommand("echo", []string{"a;b"}); err == nil {
		t.Error("metacharacters in arguments accepted")
	}
	if err := v.ValidateCommand("ls", []string{"-la", "/tmp"}); err != nil {
		t.Errorf("plain command rejected: %v", err)
	}
}

func TestValidateConfigDangerousWritablePath(t *testing.T) {
	v := NewValidator(DefaultMaxResourceLimits())

	cfg := validConfig()
	cfg.Filesystem.WritablePaths = []string{"/etc/shadow"}
	if err := v.ValidateConfig(cfg); err == nil || err.Kind != ErrSecurityViolation {
		t.Fatalf("writable /etc/shadow = %v, want SecurityViolation", err)
	}
}

func TestValidateConfigDangerousPathUnderGrantMustBeHidden(t *testing.T) {
	v := NewValidator(DefaultMaxResourceLimits())

	cfg := validConfig()
	cfg.Filesystem.WritablePaths = []string{"/"}
	err := v.ValidateConfig(cfg)
	if err == nil || !strings.Contains(err.Message, "hidden") {
		t.Fatalf("dangerous path under writable prefix without hiding = %v", err)
	}

	cfg.Filesystem.HiddenPaths = []string{"/etc", "/root", "/boot", "/sys", "/proc", "/dev", `C:\Windows`, `C:\ProgramData`}
	if err := v.ValidateConfig(cfg); err != nil {
		t.Fatalf("hidden dangerous paths should validate: %v", err)
	}
}

func TestValidateConfigPathTraversal(t *testing.T) {
	v := NewValidator(DefaultMaxResourceLimits())
	cfg := validConfig()
	cfg.Filesystem.WritablePaths = []string{"/workspace/../etc"}
	if err := v.ValidateConfig(cfg); err == nil {
		t.Fatal("path traversal in writable path accepted")
	}
	cfg = validConfig()
	cfg.Filesystem.ReadonlyPaths = []string{"/data/../../x"}
	if err := v.ValidateConfig(cfg); err == nil {
		t.Fatal("path traversal in readonly path accepted")
	}
}

func TestValidateConfigResourceBounds(t *testing.T) {
	v := NewValidator(DefaultMaxResourceLimits())

	cfg := validConfig()
	cfg.Resources.MaxMemory = 16 * 1024 * 1024 // below the 64 MiB floor
	if err := v.ValidateConfig(cfg); err == nil {
		t.Error("sub-minimum memory accepted")
	}

	cfg = validConfig()
	cfg.Resources.MaxMemory = 32 * 1024 * 1024 * 1024 // above the 16 GiB ceiling
	if err := v.ValidateConfig(cfg); err == nil {
		t.Error("above-maximum memory accepted")
	}

	cfg = validConfig()
	cfg.Process.MaxProcesses = 0
	if err := v.ValidateConfig(cfg); err == nil {
		t.Error("zero process limit accepted")
	}

	cfg = validConfig()
	cfg.Resources.MaxCPU = 0
	if err := v.ValidateConfig(cfg); err == nil {
		t.Error("zero CPU limit accepted")
	}
}

func TestValidateConfigNetworkWildcard(t *testing.T) {
	v := NewValidator(DefaultMaxResourceLimits())
	for _, host := range []string{"*", "0.0.0.0", "::"} {
		cfg := validConfig()
		cfg.Network = NetworkConfig{Enabled: true, AllowedHosts: []string{host}}
		if err := v.ValidateConfig(cfg); err == nil {
			t.Errorf("wildcard host %q accepted", host)
		}
	}
	// Loopback is permitted (with a warning), not rejected.
	cfg := validConfig()
	cfg.Network = NetworkConfig{Enabled: true, AllowedHosts: []string{"127.0.0.1"}}
	if err := v.ValidateConfig(cfg); err != nil {
		t.Errorf("loopback host rejected: %v", err)
	}
}

func TestDangerousCapabilities(t *testing.T) {
	found := DangerousCapabilities([]string{"CAP_NET_BIND_SERVICE", "cap_sys_admin"})
	if len(found) != 1 || found[0] != "cap_sys_admin" {
		t.Errorf("DangerousCapabilities = %v", found)
	}
}
