package main

import (
	"fmt"
	"os"
	"strconv"

	"go-openclaw-autoapply/internal/bootstrap"
	"go-openclaw-autoapply/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func seedCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load job or profile documents from YAML",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "job FILE",
			Short: "Save a job",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var job models.Job
				if err := readYAML(args[0], &job); err != nil {
					return err
				}
				if job.ID == "" || job.URL == "" {
					return fmt.Errorf("job needs id and url")
				}
				if err := e.store.SaveJob(cmd.Context(), &job); err != nil {
					return err
				}
				fmt.Printf("✅ Saved job %s (%s at %s)\n", job.ID, job.Title, job.Company)
				return nil
			},
		},
		&cobra.Command{
			Use:   "profile FILE",
			Short: "Save a profile",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var p models.Profile
				if err := readYAML(args[0], &p); err != nil {
					return err
				}
				if p.UserID == "" {
					return fmt.Errorf("profile needs user_id")
				}
				if err := e.store.SaveProfile(cmd.Context(), &p); err != nil {
					return err
				}
				fmt.Printf("✅ Saved profile for %s\n", p.UserID)
				return nil
			},
		},
	)
	return cmd
}

func enqueueCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue USER_ID JOB_ID",
		Short: "Queue an application",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.sched.Enqueue(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("📥 Application %s is %s\n", app.ID, app.Status)
			return nil
		},
	}
}

func runCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "run APP_ID",
		Short: "Run one attempt for a pending or queued application in this process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap.NewRuntime(e.cfg, e.store, e.notifier(), prometheus.NewRegistry(), e.log)
			if err != nil {
				return err
			}
			defer rt.Close()

			app, err := rt.Worker.Execute(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(app)
		},
	}
}

func retryCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "retry APP_ID",
		Short: "Re-queue a failed application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.sched.Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("🔁 Application %s is %s after %d attempts\n", app.ID, app.Status, app.TotalAttempts)
			return nil
		},
	}
}

func cancelCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel APP_ID",
		Short: "Cancel an application no worker has picked up",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.sched.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("🛑 Application %s is %s\n", app.ID, app.Status)
			return nil
		},
	}
}

func showCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show APP_ID",
		Short: "Print an application with its attempts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.sched.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(app)
		},
	}
}

func evidenceCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "evidence APP_ID ATTEMPT",
		Short: "List screenshots and automation log lines of one attempt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("attempt must be a positive number")
			}
			ev, err := bootstrap.Evidence(e.cfg.Evidence, e.log)
			if err != nil {
				return err
			}
			shots, err := ev.ListScreenshots(args[0], n)
			if err != nil {
				return err
			}
			lines, err := ev.Logs(args[0], n)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"screenshots": shots, "log": lines})
		},
	}
}

func sweepCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run the stale cleanup and automatic retry sweeps once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := e.sched.CleanupStale(cmd.Context())
			if err != nil {
				return err
			}
			requeued, err := e.sched.RetryFailedEligible(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("🧹 stale failed=%d requeued=%d redispatched=%d, retries requeued=%d\n",
				res.Failed, res.Requeued, res.Redispatched, requeued)
			return nil
		},
	}
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
