package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	remindIn  float64
	remindSay bool
)

var remindCmd = &cobra.Command{
	Use:   "remind [flags] TEXT",
	Short: "Schedule a reminder",
	Long: `Schedule a reminder on a running kassist server. With --say the arguments are
treated as a spoken phrase such as "remind me in 5 minutes about the oven".`,
	Example: `  kassist remind --in 5 take the bread out
  kassist remind --say "remind me in 20 minutes about the bins"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemind,
}

func init() {
	remindCmd.Flags().Float64Var(&remindIn, "in", 0, "Minutes from now")
	remindCmd.Flags().BoolVar(&remindSay, "say", false, "Parse the arguments as a spoken reminder command")
	rootCmd.AddCommand(remindCmd)
}

func runRemind(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	text := strings.Join(args, " ")
	ctx := context.Background()

	if remindSay {
		resp, err := client.ScheduleCommand(ctx, text)
		if err != nil {
			return fmt.Errorf("failed to schedule reminder: %w", err)
		}
		green.Println(resp.Message)
		fmt.Printf("ID: %s\n", resp.Reminder.ID)
		return nil
	}

	if !cmd.Flags().Changed("in") {
		return fmt.Errorf("--in is required unless --say is given")
	}

	resp, err := client.Schedule(ctx, text, remindIn)
	if err != nil {
		return fmt.Errorf("failed to schedule reminder: %w", err)
	}
	green.Println(resp.Message)
	fmt.Printf("ID: %s\n", resp.Reminder.ID)
	return nil
}
