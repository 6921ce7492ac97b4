package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"jarvis/internal/hooks"
	"jarvis/internal/notify"
	"jarvis/internal/scheduler"
	"jarvis/internal/todoist"

	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage the in-process cron scheduler",
}

// newScheduler builds the scheduler with an executor wired to the
// built-in job kinds.
func newScheduler() (*scheduler.Scheduler, error) {
	c, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if c.Scheduler.JobsFile == "" {
		return nil, fmt.Errorf("scheduler.jobs_file not configured")
	}

	executor := func(ctx context.Context, job *scheduler.Job) error {
		switch job.Kind {
		case scheduler.KindGuardArm, scheduler.KindGuardDisarm:
			g, err := hooks.NewGuard(c.Hooks.GuardMarker, c.Hooks.GuardRules)
			if err != nil {
				return err
			}
			if job.Kind == scheduler.KindGuardArm {
				return g.Arm()
			}
			return g.Disarm()
		case scheduler.KindDigest:
			client, err := todoist.New(c.Todoist.APIToken)
			if err != nil {
				return err
			}
			digest, err := client.Today(ctx)
			if err != nil {
				return err
			}
			n, err := notify.New(c.Telegram.BotToken, c.Telegram.ChatID)
			if err != nil {
				return err
			}
			return n.Send(ctx, digest)
		case scheduler.KindMemSync:
			m := &hooks.MemSync{
				WIPFile:    c.Hooks.WIPFile,
				MemoryDir:  c.Hooks.MemoryDir,
				JournalDir: c.Hooks.JournalDir,
				ProjectDir: c.Hooks.ProjectDir,
			}
			m.Run(hooks.Input{Trigger: "scheduled"})
			return nil
		default:
			return fmt.Errorf("unknown job kind %q", job.Kind)
		}
	}

	return scheduler.New(c.Scheduler.JobsFile, executor), nil
}

// seedDefaultJobs registers the configured guard and digest schedules
// if they are not already present.
func seedDefaultJobs(s *scheduler.Scheduler) {
	c, err := loadConfig()
	if err != nil {
		return
	}
	defaults := []struct {
		id       string
		schedule string
		kind     scheduler.JobKind
	}{
		{"guard-arm", c.Scheduler.ArmGuard, scheduler.KindGuardArm},
		{"guard-disarm", c.Scheduler.DisarmGuard, scheduler.KindGuardDisarm},
		{"digest", c.Scheduler.Digest, scheduler.KindDigest},
	}
	for _, d := range defaults {
		if d.schedule == "" {
			continue
		}
		if _, err := s.GetJob(d.id); err == nil {
			continue
		}
		job := &scheduler.Job{
			ID:       d.id,
			Schedule: d.schedule,
			Kind:     d.kind,
			Enabled:  true,
		}
		if err := s.AddJob(job); err != nil {
			log.Printf("[Schedule] Failed to add default job %s: %v", d.id, err)
		}
	}
}

var scheduleStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the scheduler in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newScheduler()
		if err != nil {
			return err
		}
		if err := s.Start(); err != nil {
			return err
		}
		seedDefaultJobs(s)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		s.Stop()
		return nil
	},
}

var (
	scheduleAddKind    string
	scheduleAddName    string
	scheduleAddOneShot bool
)

var scheduleAddCmd = &cobra.Command{
	Use:   "add <id> <cron-expression>",
	Short: "Add a job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newScheduler()
		if err != nil {
			return err
		}
		if err := s.Start(); err != nil {
			return err
		}
		defer s.Stop()

		job := &scheduler.Job{
			ID:       args[0],
			Name:     scheduleAddName,
			Schedule: args[1],
			Kind:     scheduler.JobKind(scheduleAddKind),
			Enabled:  true,
			OneShot:  scheduleAddOneShot,
		}
		if err := s.AddJob(job); err != nil {
			return err
		}
		fmt.Printf("Added job %s (%s) on %q\n", job.ID, job.Kind, job.Schedule)
		return nil
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newScheduler()
		if err != nil {
			return err
		}
		if err := s.Start(); err != nil {
			return err
		}
		defer s.Stop()

		jobs := s.ListJobs()
		if len(jobs) == 0 {
			fmt.Println("No jobs.")
			return nil
		}
		sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
		for _, job := range jobs {
			state := "enabled"
			if !job.Enabled {
				state = "disabled"
			}
			fmt.Printf("%-16s %-13s %-16s %s (runs: %d)\n", job.ID, job.Kind, job.Schedule, state, job.RunCount)
			if job.LastError != "" {
				fmt.Printf("%-16s last error: %s\n", "", job.LastError)
			}
		}
		return nil
	},
}

// withScheduler runs fn against a started scheduler and persists the result.
func withScheduler(fn func(*scheduler.Scheduler) error) error {
	s, err := newScheduler()
	if err != nil {
		return err
	}
	if err := s.Start(); err != nil {
		return err
	}
	defer s.Stop()
	return fn(s)
}

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(func(s *scheduler.Scheduler) error {
			if err := s.RemoveJob(args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed job %s\n", args[0])
			return nil
		})
	},
}

var scheduleEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(func(s *scheduler.Scheduler) error {
			if err := s.EnableJob(args[0]); err != nil {
				return err
			}
			fmt.Printf("Enabled job %s\n", args[0])
			return nil
		})
	},
}

var scheduleDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(func(s *scheduler.Scheduler) error {
			if err := s.DisableJob(args[0]); err != nil {
				return err
			}
			fmt.Printf("Disabled job %s\n", args[0])
			return nil
		})
	},
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Run a job immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newScheduler()
		if err != nil {
			return err
		}
		if err := s.Start(); err != nil {
			return err
		}

		defer s.Stop()

		job, err := s.GetJob(args[0])
		if err != nil {
			return err
		}
		before := job.RunCount
		if err := s.RunNow(args[0]); err != nil {
			return err
		}

		// RunNow fires asynchronously; wait for the run to land.
		deadline := time.Now().Add(2 * time.Minute)
		for time.Now().Before(deadline) {
			job, err = s.GetJob(args[0])
			if err != nil {
				// One-shot jobs remove themselves after running.
				fmt.Printf("Ran job %s\n", args[0])
				return nil
			}
			if job.RunCount > before {
				if job.LastError != "" {
					return fmt.Errorf("job failed: %s", job.LastError)
				}
				fmt.Printf("Ran job %s\n", args[0])
				return nil
			}
			time.Sleep(100 * time.Millisecond)
		}
		return fmt.Errorf("timed out waiting for job %s", args[0])
	},
}

func init() {
	scheduleAddCmd.Flags().StringVar(&scheduleAddKind, "kind", "", "job kind: guard_arm, guard_disarm, digest or memsync")
	scheduleAddCmd.Flags().StringVar(&scheduleAddName, "name", "", "human-readable job name")
	scheduleAddCmd.Flags().BoolVar(&scheduleAddOneShot, "oneshot", false, "remove the job after it runs once")
	scheduleAddCmd.MarkFlagRequired("kind")

	scheduleCmd.AddCommand(scheduleStartCmd, scheduleAddCmd, scheduleListCmd,
		scheduleRemoveCmd, scheduleEnableCmd, scheduleDisableCmd, scheduleRunCmd)
	rootCmd.AddCommand(scheduleCmd)
}
