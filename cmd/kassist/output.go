package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/goodtune/kassist/internal/api"
	"github.com/goodtune/kassist/internal/config"
	"github.com/goodtune/kassist/internal/ledger"
	"github.com/goodtune/kassist/internal/reminder"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

var (
	cyan   = color.New(color.FgCyan, color.Bold)
	green  = color.New(color.FgGreen, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
)

// newClient builds an API client from the config file, with --api-url taking
// precedence over client.api_url.
func newClient() (*api.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	baseURL := cfg.Client.APIURL
	if apiURL != "" {
		baseURL = apiURL
	}

	return api.NewClient(baseURL, cfg.Server.APIToken, parseDuration(cfg.Client.Timeout, 10*time.Second))
}

func printHeader(title string) {
	fmt.Println()
	cyan.Println(rule)
	cyan.Println(title)
	cyan.Println(rule)
	fmt.Println()
}

func printFooter() {
	fmt.Println()
	cyan.Println(rule)
	fmt.Println()
}

func printReminders(reminders []reminder.Reminder) {
	printHeader("PENDING REMINDERS")

	if len(reminders) == 0 {
		fmt.Println("No reminders pending")
	}
	for _, r := range reminders {
		fmt.Printf("%s  ", r.ID)
		yellow.Printf("%s", r.DueAt.Local().Format("15:04:05"))
		fmt.Printf("  (in %s)  %s\n", time.Until(r.DueAt).Round(time.Second), r.Text)
	}

	printFooter()
}

func printFired(fired []reminder.Firing) {
	printHeader("FIRED REMINDERS")

	if len(fired) == 0 {
		fmt.Println("No reminders have fired")
	}
	for _, f := range fired {
		fmt.Printf("%s  %s  ", f.FiredAt.Local().Format("2006-01-02 15:04:05"), f.Reminder.Text)
		if f.Error != "" {
			red.Printf("FAILED: %s\n", f.Error)
		} else {
			green.Println("DELIVERED")
		}
	}

	printFooter()
}

func printUsage(state ledger.State, report string) {
	printHeader("API KEY USAGE")

	for _, c := range state.Credentials {
		marker := "  "
		if c.Active {
			marker = "→ "
		}
		fmt.Printf("%s%-16s %10.2f / %.0f  ", marker, c.Name, c.Usage, state.Quota)
		if c.Exhausted {
			red.Println("EXHAUSTED")
		} else {
			green.Println("OK")
		}
	}

	fmt.Println()
	fmt.Print(strings.TrimRight(report, "\n") + "\n")

	printFooter()
}

func printKey(key *api.KeyResponse) {
	printHeader("ACTIVE API KEY")

	fmt.Printf("Name:   %s\n", key.Name)
	fmt.Printf("Index:  %d\n", key.Index)
	fmt.Printf("Usage:  %.2f / %.0f\n", key.Usage, key.Quota)
	cyan.Print("Status: ")
	if key.Exhausted {
		red.Println("EXHAUSTED")
	} else {
		green.Println("OK")
	}

	printFooter()
}

func warnNotPersisted(persisted bool) {
	if !persisted {
		yellow.Println("Warning: the server could not persist the ledger; the change is held in memory only")
	}
}
