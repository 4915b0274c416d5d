package sandbox

import "testing"

func hasArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func TestRunArgsMandatoryHardening(t *testing.T) {
	cfg := validConfig()
	cfg.Filesystem.WritablePaths = []string{"/tmp/ws"}

	// Both the gVisor runtime and the plain-Docker fallback must drop all
	// capabilities and forbid privilege gain.
	for _, impl := range []string{ImplGVisorDocker, ImplPlainDocker, ImplWSL2GVisor} {
		sb := &dockerSandbox{cfg: cfg, impl: impl}
		args := sb.runArgs()
		if !hasArg(args, "--cap-drop=ALL") {
			t.Errorf("%s: run argv missing --cap-drop=ALL: %v", impl, args)
		}
		if !hasArg(args, "--security-opt=no-new-privileges") {
			t.Errorf("%s: run argv missing --security-opt=no-new-privileges: %v", impl, args)
		}
	}
}

func TestRunArgsRuntimeAndLimits(t *testing.T) {
	cfg := validConfig()
	cfg.Filesystem.WritablePaths = []string{"/tmp/ws"}

	gvisor := &dockerSandbox{cfg: cfg, impl: ImplGVisorDocker}
	if !hasArg(gvisor.runArgs(), "--runtime=runsc") {
		t.Error("gvisor-docker argv missing --runtime=runsc")
	}
	plain := &dockerSandbox{cfg: cfg, impl: ImplPlainDocker}
	if hasArg(plain.runArgs(), "--runtime=runsc") {
		t.Error("plain-docker argv must not request the runsc runtime")
	}

	args := plain.runArgs()
	if !hasArg(args, "--network=none") {
		t.Errorf("network-disabled config argv missing --network=none: %v", args)
	}
	if !hasArg(args, "--pids-limit=32") {
		t.Errorf("argv missing pids limit: %v", args)
	}
	if !hasArg(args, "--memory=536870912") {
		t.Errorf("argv missing memory limit: %v", args)
	}
}
