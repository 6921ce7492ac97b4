package main

import (
	"fmt"
	"time"

	"jarvis/internal/todoist"

	"github.com/spf13/cobra"
)

var todoistCmd = &cobra.Command{
	Use:   "todoist",
	Short: "Todoist task digest and rescheduling",
}

var todoistTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "Print today's task digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := todoist.New(c.Todoist.APIToken)
		if err != nil {
			return err
		}
		digest, err := client.Today(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(digest)
		return nil
	},
}

var todoistRescheduleCmd = &cobra.Command{
	Use:   "reschedule [YYYY-MM-DD]",
	Short: "Move every overdue task to a target date (default: one week out)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := todoist.New(c.Todoist.APIToken)
		if err != nil {
			return err
		}

		target := time.Now().AddDate(0, 0, 7).Format("2006-01-02")
		if len(args) > 0 {
			target = args[0]
		}
		res, err := client.RescheduleOverdue(cmd.Context(), target)
		if err != nil {
			return err
		}
		if res.Total == 0 {
			fmt.Println("No overdue tasks.")
			return nil
		}
		msg := fmt.Sprintf("Done: %d/%d -> %s", res.Moved, res.Total, target)
		if res.Errors > 0 {
			msg += fmt.Sprintf(" (%d errors)", res.Errors)
		}
		fmt.Println(msg)
		return nil
	},
}

func init() {
	todoistCmd.AddCommand(todoistTodayCmd, todoistRescheduleCmd)
	rootCmd.AddCommand(todoistCmd)
}
