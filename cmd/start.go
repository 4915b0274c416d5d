package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/bus"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/config"
)

// shutdownGrace is how long outstanding turns get to finish after the
// first interrupt before the process exits hard.
const shutdownGrace = 10 * time.Second

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the agent service until interrupted",
		Long: `Starts the kernel as a long-running service: the bus drains inbound
messages, the dispatcher fans them out to per-session agent turns, and
the config file is watched for live edits. Channel adapters connect by
publishing onto the bus; none is built into this binary, and nothing in
the process publishes cron- or heartbeat-originated messages.

A first Ctrl-C starts a graceful shutdown (pending approvals denied,
sandboxes stopped, in-flight turns given a grace period); a second one
exits immediately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart()
		},
	}
}

func runStart() error {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	rt, err := NewRuntime(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: assemble runtime: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := config.Watch(ctx, cfgPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: config watch unavailable: %v\n", err)
	}

	// Render outbound traffic on stdout. Real channel adapters subscribe
	// the same way; the service itself only needs enough of a renderer to
	// make approval requests actionable from the terminal.
	outbound := rt.Bus.SubscribeOutbound("cli-console")
	go renderOutbound(outbound)

	done := make(chan error, 1)
	go func() { done <- rt.RunDispatcher(ctx) }()

	interrupts := make(chan os.Signal, 2)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)

	fmt.Println("goclaw service started; Ctrl-C to stop")
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			rt.Shutdown(context.Background())
			return err
		}
	case <-interrupts:
		fmt.Println("shutting down...")
		cancel()
		select {
		case <-done:
		case <-time.After(shutdownGrace):
			fmt.Fprintln(os.Stderr, "grace period expired, aborting outstanding turns")
		case <-interrupts:
			fmt.Fprintln(os.Stderr, "second interrupt, exiting now")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	rt.Shutdown(shutdownCtx)
	return nil
}

// renderOutbound prints bus traffic as terminal lines. Approval requests
// include the request id so a human can answer through any connected
// channel (or a future "goclaw approve" command).
func renderOutbound(ch <-chan bus.OutboundMessage) {
	for msg := range ch {
		switch msg.Type {
		case bus.OutboundChat:
			fmt.Printf("[%s/%s] %s\n", msg.Channel, msg.ChatID, msg.Content)
		case bus.OutboundApprovalRequest:
			if msg.Approval != nil {
				fmt.Printf("[%s/%s] approval required (%s): %s (cwd %s, %ds to respond)\n",
					msg.Channel, msg.ChatID, msg.Approval.ID, msg.Approval.Command,
					msg.Approval.WorkingDir, msg.Approval.TimeoutSecs)
			}
		case bus.OutboundToolProgress:
			if msg.Progress != nil {
				fmt.Printf("[%s/%s] tool %s: %s\n", msg.Channel, msg.ChatID, msg.Progress.ToolName, msg.Progress.Status)
			}
		}
	}
}
