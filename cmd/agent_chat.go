package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/agent"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/bus"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/config"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/sessions"
)

// cliChannel names the InboundMessage.Channel used for messages the CLI
// itself originates, distinct from any channel adapter.
const cliChannel = "cli"

// agentLoop is the slice of agent.Loop the chat commands drive; the
// indirection keeps the REPL testable against a fake.
type agentLoop interface {
	Role() string
	RunTurn(ctx context.Context, sessionKey string, msg bus.InboundMessage) (*agent.RunResult, error)
}

func agentCmd() *cobra.Command {
	var (
		roleName   string
		message    string
		sessionKey string
	)

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Chat with the agent interactively or send a one-shot message",
		Long: `Drives the agent loop directly, with no channel adapter or gateway
process in between.

Examples:
  goclaw agent                        # interactive REPL
  goclaw agent --role researcher      # chat with a named role
  goclaw agent -m "what time is it?"  # one-shot message
  goclaw agent -s my-session          # continue a named session`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentChat(roleName, message, sessionKey)
		},
	}

	cmd.Flags().StringVar(&roleName, "role", "", "role name (default: the config's default role)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "one-shot message (omit for interactive mode)")
	cmd.Flags().StringVarP(&sessionKey, "session", "s", "", "session scope (default: a new one per run)")

	return cmd
}

func runAgentChat(roleName, message, sessionScope string) error {
	setupLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := NewRuntime(cfg)
	if err != nil {
		return fmt.Errorf("assemble runtime: %w", err)
	}
	defer rt.Shutdown(context.Background())

	loop, err := rt.NewLoop(roleName)
	if err != nil {
		return err
	}

	if sessionScope == "" {
		sessionScope = uuid.NewString()
	}
	sessionID := sessions.ID{AgentID: loop.Role(), Channel: cliChannel, Scope: "direct", ChatID: sessionScope}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if message != "" {
		return sendOneShot(ctx, loop, sessionID, message)
	}
	return runREPL(ctx, loop, sessionID)
}

func sendOneShot(ctx context.Context, loop agentLoop, sessionID sessions.ID, content string) error {
	msg := bus.InboundMessage{
		Channel:   cliChannel,
		SenderID:  "local",
		ChatID:    sessionID.ChatID,
		Content:   content,
		Timestamp: time.Now(),
	}
	result, err := loop.RunTurn(ctx, sessionID.Format(), msg)
	if err != nil {
		return fmt.Errorf("agent turn: %w", err)
	}
	if !result.Silent {
		fmt.Println(result.Content)
	}
	return nil
}

func runREPL(ctx context.Context, loop agentLoop, sessionID sessions.ID) error {
	fmt.Println("goclaw agent; interactive session. Ctrl-D to exit.")
	reader := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !reader.Scan() {
			fmt.Println()
			return reader.Err()
		}
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}
		if err := sendOneShot(ctx, loop, sessionID, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}
