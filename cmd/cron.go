package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// cronJob is one persisted scheduled task. Exactly one of At/Every/Cron
// is set; the cron runner (an external collaborator of this kernel)
// reads the same file.
type cronJob struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
	At      string `json:"at,omitempty"`    // RFC3339 one-shot
	Every   string `json:"every,omitempty"` // Go duration, recurring
	Cron    string `json:"cron,omitempty"`  // 5-field cron expression
	Created string `json:"created"`
}

func cronJobsPath() string {
	return filepath.Join(configHome(), "cron", "jobs.json")
}

func loadCronJobs() ([]cronJob, error) {
	raw, err := os.ReadFile(cronJobsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var jobs []cronJob
	if err := json.Unmarshal(raw, &jobs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", cronJobsPath(), err)
	}
	return jobs, nil
}

func saveCronJobs(jobs []cronJob) error {
	path := cronJobsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func cronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled agent tasks",
	}
	cmd.AddCommand(cronListCmd(), cronAddCmd(), cronRemoveCmd())
	return cmd
}

func cronListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := loadCronJobs()
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(2)
			}
			if len(jobs) == 0 {
				fmt.Println("no scheduled tasks")
				return nil
			}
			for _, j := range jobs {
				schedule := j.Cron
				switch {
				case j.At != "":
					schedule = "at " + j.At
				case j.Every != "":
					schedule = "every " + j.Every
				}
				fmt.Printf("%s  %-20s %-24s %q\n", j.ID, j.Name, schedule, j.Message)
			}
			return nil
		},
	}
}

func cronAddCmd() *cobra.Command {
	var (
		name    string
		message string
		at      string
		every   string
		spec    string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule a new task",
		Long: `Schedules a message to be delivered to the agent. Exactly one of
--at (RFC3339 one-shot), --every (Go duration), or --cron (5-field cron
expression) must be given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			set := 0
			for _, v := range []string{at, every, spec} {
				if v != "" {
					set++
				}
			}
			if name == "" || message == "" || set != 1 {
				fmt.Fprintln(os.Stderr, "error: --name, --message, and exactly one of --at/--every/--cron are required")
				os.Exit(1)
			}
			if at != "" {
				if _, err := time.Parse(time.RFC3339, at); err != nil {
					fmt.Fprintf(os.Stderr, "error: --at must be RFC3339: %v\n", err)
					os.Exit(1)
				}
			}
			if every != "" {
				if _, err := time.ParseDuration(every); err != nil {
					fmt.Fprintf(os.Stderr, "error: --every must be a Go duration: %v\n", err)
					os.Exit(1)
				}
			}

			jobs, err := loadCronJobs()
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(2)
			}
			job := cronJob{
				ID:      uuid.NewString()[:8],
				Name:    name,
				Message: message,
				At:      at,
				Every:   every,
				Cron:    spec,
				Created: time.Now().UTC().Format(time.RFC3339),
			}
			if err := saveCronJobs(append(jobs, job)); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(2)
			}
			fmt.Printf("scheduled %s (%s)\n", job.Name, job.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "task name")
	cmd.Flags().StringVar(&message, "message", "", "message delivered to the agent when the task fires")
	cmd.Flags().StringVar(&at, "at", "", "one-shot time (RFC3339)")
	cmd.Flags().StringVar(&every, "every", "", "recurring interval (Go duration, e.g. 30m)")
	cmd.Flags().StringVar(&spec, "cron", "", "5-field cron expression")
	return cmd
}

func cronRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a scheduled task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := loadCronJobs()
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(2)
			}
			kept := jobs[:0]
			removed := false
			for _, j := range jobs {
				if j.ID == args[0] {
					removed = true
					continue
				}
				kept = append(kept, j)
			}
			if !removed {
				fmt.Fprintf(os.Stderr, "error: no task with id %s\n", args[0])
				os.Exit(1)
			}
			if err := saveCronJobs(kept); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(2)
			}
			fmt.Printf("removed %s\n", args[0])
			return nil
		},
	}
}
