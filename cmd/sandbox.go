package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/config"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/sandbox"
)

// inAppSandboxEnv marks a child process as running inside the app
// sandbox so the process-wide HTTP client switches to its sandbox-safe
// DNS path. Must match the tools package's constant.
const inAppSandboxEnv = "SYNBOT_IN_APP_SANDBOX"

func sandboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sandbox [child command...]",
		Short: "Inspect sandbox support, or relaunch a command inside the app sandbox",
		Long: `Without arguments: reports the detected platform, its recommended
app/tool sandbox implementations, and whether the configured sandbox
settings validate.

With arguments (the Windows app-sandbox child entrypoint, usable on any
platform): engages the platform app-sandbox primitive, marks the
environment so the process-wide HTTP client uses its sandbox-safe DNS
path, and executes the given command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			if len(args) == 0 {
				return runSandboxStatus()
			}
			return runSandboxChild(args)
		},
	}
}

func runSandboxStatus() error {
	plat := sandbox.DetectPlatform()
	fmt.Printf("platform: %s/%s\n", plat.OS, plat.Arch)
	if !plat.Supported {
		fmt.Println("sandboxing: unsupported on this platform")
		os.Exit(2)
	}
	fmt.Printf("app sandbox:  %s\n", plat.RecommendedAppSandbox)
	fmt.Printf("tool sandbox: %s\n", plat.RecommendedToolSandbox)
	if runtime.GOOS == sandbox.PlatformWindows {
		fmt.Println("tool sandbox runs inside WSL2; ensure a WSL2 distro with Docker+gVisor is installed")
	}

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}
	validator := sandbox.NewValidator(sandbox.DefaultMaxResourceLimits())
	for _, probe := range []struct {
		name string
		spec *config.SandboxJSONConfig
		kind sandbox.Kind
	}{
		{"appSandbox", cfg.AppSandbox, sandbox.KindApp},
		{"toolSandbox", cfg.ToolSandbox, sandbox.KindTool},
	} {
		if probe.spec == nil {
			fmt.Printf("%s: not configured\n", probe.name)
			continue
		}
		if err := validator.ValidateConfig(probe.spec.ToSandboxConfig(probe.kind)); err != nil {
			fmt.Fprintf(os.Stderr, "%s: invalid: %v\n", probe.name, err)
			os.Exit(2)
		}
		fmt.Printf("%s: ok\n", probe.name)
	}
	return nil
}

// runSandboxChild is the app-sandbox child entrypoint: the parent
// process sets up the OS isolation primitive, then relaunches the
// assistant through this path so the child inherits the restricted
// environment.
func runSandboxChild(args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	appCfg := cfg.AppSandbox.ToSandboxConfig(sandbox.KindApp)
	if appCfg.SandboxID == "" {
		appCfg.SandboxID = "app"
	}
	ctx := context.Background()
	sb := sandbox.NewAppSandbox(appCfg)
	if err := sb.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: engage app sandbox: %v\n", err)
		os.Exit(2)
	}
	defer sb.Stop(ctx)

	child := exec.Command(args[0], args[1:]...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	child.Env = append(os.Environ(), inAppSandboxEnv+"=1")
	if err := child.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: run child: %v\n", err)
		os.Exit(2)
	}
	return nil
}
