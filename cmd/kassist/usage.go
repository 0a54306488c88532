package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	usageCredential string
	usageCategory   string
	usageAmount     float64
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show and record API usage",
	Long: `Show the API usage report of a running kassist server, or record usage
against a credential or category. Showing the report also rewrites the
server's report file (voice.report_path).`,
	Example: `  kassist usage
  kassist usage record --credential voice-2 --amount 30
  kassist usage synthesis 4.2`,
	RunE: runUsageShow,
}

var usageRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record usage against a credential and/or category",
	RunE: func(cmd *cobra.Command, args []string) error {
		if usageCredential == "" && usageCategory == "" {
			return fmt.Errorf("at least one of --credential or --category is required")
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		resp, err := client.RecordUsage(context.Background(), usageCredential, usageCategory, usageAmount)
		if err != nil {
			return fmt.Errorf("failed to record usage: %w", err)
		}
		warnNotPersisted(resp.Persisted)
		printUsage(resp.State, resp.Report)
		return nil
	},
}

var usageSynthesisCmd = &cobra.Command{
	Use:   "synthesis SECONDS",
	Short: "Charge seconds of synthesized speech to the active key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seconds, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid seconds %q: %w", args[0], err)
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		resp, err := client.RecordSynthesis(context.Background(), seconds)
		if err != nil {
			return fmt.Errorf("failed to record synthesis: %w", err)
		}
		warnNotPersisted(resp.Persisted)
		fmt.Printf("Charged %.2f seconds to %s\n", seconds, resp.Charged)
		if resp.Rotated {
			yellow.Printf("Quota reached, rotated to %s\n", resp.Active)
		}
		return nil
	},
}

var usageQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Count one language-model query",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.RecordQuery(context.Background()); err != nil {
			return fmt.Errorf("failed to record query: %w", err)
		}
		green.Println("Query recorded")
		return nil
	},
}

func init() {
	usageRecordCmd.Flags().StringVar(&usageCredential, "credential", "", "Credential name")
	usageRecordCmd.Flags().StringVar(&usageCategory, "category", "", "Usage category (voice_api, gemini_api, ...)")
	usageRecordCmd.Flags().Float64Var(&usageAmount, "amount", 0, "Amount to add (required)")
	usageRecordCmd.MarkFlagRequired("amount")

	usageCmd.AddCommand(usageRecordCmd)
	usageCmd.AddCommand(usageSynthesisCmd)
	usageCmd.AddCommand(usageQueryCmd)
	rootCmd.AddCommand(usageCmd)
}

func runUsageShow(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	resp, err := client.Usage(context.Background())
	if err != nil {
		return fmt.Errorf("failed to fetch usage: %w", err)
	}

	printUsage(resp.State, resp.Report)

	if resp.ReportWritten {
		fmt.Printf("Report written to %s\n", resp.ReportPath)
	} else {
		yellow.Println("Warning: the server could not write its report file")
	}
	return nil
}
