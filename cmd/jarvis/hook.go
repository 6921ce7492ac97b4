package main

import (
	"fmt"
	"log"
	"os"

	"jarvis/internal/hooks"
	"jarvis/internal/notify"

	"github.com/spf13/cobra"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Coding-assistant lifecycle hooks (JSON payload on stdin)",
	Long: `Hooks for the coding assistant's lifecycle events. Each reads a
JSON payload on stdin and signals through its exit code: 0 allows the
event, 2 blocks it with the reason on stderr.`,
}

var hookGuardCmd = &cobra.Command{
	Use:   "guard",
	Short: "PreToolUse command filter for the unattended overnight window",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		g, err := hooks.NewGuard(c.Hooks.GuardMarker, c.Hooks.GuardRules)
		if err != nil {
			return err
		}
		code, reason := g.Run(hooks.ReadInput(os.Stdin))
		if code != 0 {
			fmt.Fprintln(os.Stderr, reason)
			os.Exit(code)
		}
		return nil
	},
}

var hookGuardArmCmd = &cobra.Command{
	Use:   "arm",
	Short: "Arm the guard marker file",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		g, err := hooks.NewGuard(c.Hooks.GuardMarker, c.Hooks.GuardRules)
		if err != nil {
			return err
		}
		if err := g.Arm(); err != nil {
			return err
		}
		fmt.Println("Guard armed.")
		return nil
	},
}

var hookGuardDisarmCmd = &cobra.Command{
	Use:   "disarm",
	Short: "Disarm the guard marker file",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		g, err := hooks.NewGuard(c.Hooks.GuardMarker, c.Hooks.GuardRules)
		if err != nil {
			return err
		}
		if err := g.Disarm(); err != nil {
			return err
		}
		fmt.Println("Guard disarmed.")
		return nil
	},
}

var hookPreCompactCmd = &cobra.Command{
	Use:   "precompact",
	Short: "Preserve session context before transcript compaction",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		p := &hooks.PreCompact{
			BackupDir:  c.Hooks.BackupDir,
			JournalDir: c.Hooks.JournalDir,
		}
		if n, err := notify.New(c.Telegram.BotToken, c.Telegram.ChatID); err == nil {
			p.Notify = notifyAdapter{n: n, cmd: cmd}
		} else {
			log.Printf("[PreCompact] Telegram disabled: %v", err)
		}
		p.Run(hooks.ReadInput(os.Stdin))
		return nil
	},
}

var hookStopCheckCmd = &cobra.Command{
	Use:   "stopcheck",
	Short: "Validate code changes before the session stops",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		s := hooks.NewStopCheck(c.Hooks.ProjectDir, c.Hooks.TestCommand)
		code, msg := s.Run(cmd.Context(), hooks.ReadInput(os.Stdin))
		if code != 0 {
			fmt.Fprintln(os.Stderr, msg)
			os.Exit(code)
		}
		return nil
	},
}

var hookMemSyncCmd = &cobra.Command{
	Use:   "memsync",
	Short: "Mirror the WIP tracker into persistent memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		m := &hooks.MemSync{
			WIPFile:    c.Hooks.WIPFile,
			MemoryDir:  c.Hooks.MemoryDir,
			JournalDir: c.Hooks.JournalDir,
			ProjectDir: c.Hooks.ProjectDir,
		}
		m.Run(hooks.ReadInput(os.Stdin))
		return nil
	},
}

// notifyAdapter bridges the Telegram notifier to the hook's Notifier
// interface, carrying the command context.
type notifyAdapter struct {
	n   *notify.Notifier
	cmd *cobra.Command
}

func (a notifyAdapter) Send(text string) error {
	return a.n.Send(a.cmd.Context(), text)
}

func init() {
	hookGuardCmd.AddCommand(hookGuardArmCmd, hookGuardDisarmCmd)
	hookCmd.AddCommand(hookGuardCmd, hookPreCompactCmd, hookStopCheckCmd, hookMemSyncCmd)
	rootCmd.AddCommand(hookCmd)
}
