package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/config"
)

func onboardCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Write a default config file if one doesn't already exist",
		Long: `Writes a default config.json at the config path and creates the
configured workspace directory. Provider credentials are read from
environment variables at startup, not written to disk; run this once,
then export GOCLAW_ANTHROPIC_API_KEY / GOCLAW_OPENAI_API_KEY / etc.
before "goclaw agent" or "goclaw start".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func runOnboard(force bool) error {
	path := resolveConfigPath()

	if _, err := os.Stat(path); err == nil && !force {
		fmt.Printf("config already exists at %s (use --force to overwrite)\n", path)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	cfg := config.Default()
	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace directory: %w", err)
	}

	fmt.Printf("wrote default config to %s\n", path)
	fmt.Printf("workspace: %s\n", workspace)
	fmt.Println("set a provider API key (e.g. GOCLAW_ANTHROPIC_API_KEY) and run: goclaw agent -m \"hello\"")
	return nil
}
