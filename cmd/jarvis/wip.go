package main

import (
	"fmt"
	"strings"

	"jarvis/internal/wip"

	"github.com/spf13/cobra"
)

var wipCmd = &cobra.Command{
	Use:   "wip",
	Short: "Markdown WIP task tracker",
}

func newTracker() (*wip.Tracker, error) {
	c, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if c.Hooks.WIPFile == "" {
		return nil, fmt.Errorf("hooks.wip_file not configured")
	}
	return wip.NewTracker(c.Hooks.WIPFile), nil
}

var wipListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the tracker",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newTracker()
		if err != nil {
			return err
		}
		content, err := t.List()
		if err != nil {
			return err
		}
		fmt.Println(content)
		return nil
	},
}

var wipAddCmd = &cobra.Command{
	Use:   "add <task> [note]",
	Short: "Add a task to the in-progress section",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newTracker()
		if err != nil {
			return err
		}
		note := strings.Join(args[1:], " ")
		if err := t.Add(args[0], note); err != nil {
			return err
		}
		fmt.Printf("Added: %s\n", args[0])
		return nil
	},
}

var wipDoneCmd = &cobra.Command{
	Use:   "done <task> [result]",
	Short: "Move a task to the done section",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newTracker()
		if err != nil {
			return err
		}
		result := strings.Join(args[1:], " ")
		if err := t.Done(args[0], result); err != nil {
			return err
		}
		fmt.Printf("Done: %s\n", args[0])
		return nil
	},
}

var wipBlockCmd = &cobra.Command{
	Use:   "block <task> <reason>",
	Short: "Move a task to the blocked section",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newTracker()
		if err != nil {
			return err
		}
		reason := strings.Join(args[1:], " ")
		if err := t.Block(args[0], reason); err != nil {
			return err
		}
		fmt.Printf("Blocked: %s\n", args[0])
		return nil
	},
}

var wipCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Drop done entries older than 30 days",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newTracker()
		if err != nil {
			return err
		}
		removed, err := t.Clean()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d old entries\n", removed)
		return nil
	},
}

func init() {
	wipCmd.AddCommand(wipListCmd, wipAddCmd, wipDoneCmd, wipBlockCmd, wipCleanCmd)
	rootCmd.AddCommand(wipCmd)
}
