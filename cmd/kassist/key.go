package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Inspect and rotate the active API key",
	RunE:  runKeyCurrent,
}

var keyCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the active API key",
	RunE:  runKeyCurrent,
}

var keyRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Move to the next API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		key, err := client.Rotate(context.Background())
		if err != nil {
			return fmt.Errorf("failed to rotate key: %w", err)
		}
		warnNotPersisted(key.Persisted)
		printKey(key)
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keyCurrentCmd)
	keyCmd.AddCommand(keyRotateCmd)
	rootCmd.AddCommand(keyCmd)
}

func runKeyCurrent(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	key, err := client.CurrentKey(context.Background())
	if err != nil {
		return fmt.Errorf("failed to fetch active key: %w", err)
	}
	printKey(key)
	return nil
}
