package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goodtune/kassist/internal/reminder"
)

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Inspect and manage reminders",
	Long:  `List pending reminders, show recently fired ones, or cancel a reminder.`,
	RunE:  runRemindersList,
}

var remindersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending reminders",
	RunE:  runRemindersList,
}

var remindersFiredCmd = &cobra.Command{
	Use:   "fired",
	Short: "Show recently fired reminders",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		fired, err := client.Fired(context.Background())
		if err != nil {
			return fmt.Errorf("failed to fetch fired reminders: %w", err)
		}
		printFired(fired)
		return nil
	},
}

var remindersCancelCmd = &cobra.Command{
	Use:   "cancel ID",
	Short: "Cancel a pending reminder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.Cancel(context.Background(), args[0]); err != nil {
			if errors.Is(err, reminder.ErrNotFound) {
				return fmt.Errorf("no pending reminder with ID %s", args[0])
			}
			return fmt.Errorf("failed to cancel reminder: %w", err)
		}
		green.Printf("Cancelled reminder %s\n", args[0])
		return nil
	},
}

func init() {
	remindersCmd.AddCommand(remindersListCmd)
	remindersCmd.AddCommand(remindersFiredCmd)
	remindersCmd.AddCommand(remindersCancelCmd)
	rootCmd.AddCommand(remindersCmd)
}

func runRemindersList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	pending, err := client.Pending(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list reminders: %w", err)
	}
	printReminders(pending)
	return nil
}
