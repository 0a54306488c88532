package main

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goodtune/kassist/internal/config"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the kassist configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Check for unknown keys (always, not just with -dump)
	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	if missing := cfg.MissingSecrets(); len(missing) > 0 {
		yellow := color.New(color.FgYellow, color.Bold)
		yellow.Fprintf(os.Stdout, "⚠️  No API key set for: %s\n", strings.Join(missing, ", "))
	}

	// Warn about unknown keys
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	// If dump requested, show full configuration with defaults highlighted
	if validateDump {
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))

		dumpConfig(cfg, getDefaultConfig(), unknownKeys)
	}

	return nil
}

// getDefaultConfig creates a configuration with default values
func getDefaultConfig() *config.Config {
	v := viper.New()
	config.SetDefaults(v)

	var cfg config.Config
	_ = v.Unmarshal(&cfg)

	return &cfg
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	validKeys := getValidKeys()

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !validKeys[key] {
			unknown = append(unknown, key)
		}
	}

	return unknown, nil
}

// getValidKeys returns a set of all valid configuration keys
func getValidKeys() map[string]bool {
	keys := map[string]bool{
		// Server
		"server.bind_address": true,
		"server.api_port":     true,
		"server.metrics_port": true,
		"server.api_token":    true,

		// Client
		"client.api_url": true,
		"client.timeout": true,

		// Storage
		"storage.type":                 true,
		"storage.path":                 true,
		"storage.redis.host":           true,
		"storage.redis.port":           true,
		"storage.redis.password":       true,
		"storage.redis.db":             true,
		"storage.redis.pool_size":      true,
		"storage.redis.min_idle_conns": true,
		"storage.redis.dial_timeout":   true,
		"storage.redis.read_timeout":   true,
		"storage.redis.write_timeout":  true,
		"storage.redis.key_prefix":     true,

		// Logging
		"logging.level":  true,
		"logging.format": true,

		// Reminders
		"reminders.poll_interval":   true,
		"reminders.default_text":    true,
		"reminders.history_size":    true,
		"reminders.alert.player":    true,
		"reminders.alert.frequency": true,
		"reminders.alert.duration":  true,
		"reminders.alert.gap":       true,
		"reminders.alert.repeats":   true,

		// Notify
		"notify.targets":         true,
		"notify.command":         true,
		"notify.command_timeout": true,

		// Voice
		"voice.env_file":        true,
		"voice.credentials":     true,
		"voice.quota":           true,
		"voice.auto_rotate":     true,
		"voice.report_path":     true,
		"voice.report_schedule": true,
	}

	return keys
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(cfg, defaultCfg *config.Config, unknownKeys []string) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	// Server
	_, _ = cyan.Println("\n[server]")
	dumpField("  bind_address", cfg.Server.BindAddress, defaultCfg.Server.BindAddress, yellow, green)
	dumpField("  api_port", cfg.Server.APIPort, defaultCfg.Server.APIPort, yellow, green)
	dumpField("  metrics_port", cfg.Server.MetricsPort, defaultCfg.Server.MetricsPort, yellow, green)
	dumpField("  api_token", redactPassword(cfg.Server.APIToken), redactPassword(defaultCfg.Server.APIToken), yellow, green)

	// Client
	_, _ = cyan.Println("\n[client]")
	dumpField("  api_url", cfg.Client.APIURL, defaultCfg.Client.APIURL, yellow, green)
	dumpField("  timeout", cfg.Client.Timeout, defaultCfg.Client.Timeout, yellow, green)

	// Storage
	_, _ = cyan.Println("\n[storage]")
	dumpField("  type", cfg.Storage.Type, defaultCfg.Storage.Type, yellow, green)
	dumpField("  path", cfg.Storage.Path, defaultCfg.Storage.Path, yellow, green)
	_, _ = cyan.Println("  [storage.redis]")
	dumpField("    host", cfg.Storage.Redis.Host, defaultCfg.Storage.Redis.Host, yellow, green)
	dumpField("    port", cfg.Storage.Redis.Port, defaultCfg.Storage.Redis.Port, yellow, green)
	dumpField("    password", redactPassword(cfg.Storage.Redis.Password), redactPassword(defaultCfg.Storage.Redis.Password), yellow, green)
	dumpField("    db", cfg.Storage.Redis.DB, defaultCfg.Storage.Redis.DB, yellow, green)
	dumpField("    pool_size", cfg.Storage.Redis.PoolSize, defaultCfg.Storage.Redis.PoolSize, yellow, green)
	dumpField("    min_idle_conns", cfg.Storage.Redis.MinIdleConns, defaultCfg.Storage.Redis.MinIdleConns, yellow, green)
	dumpField("    dial_timeout", cfg.Storage.Redis.DialTimeout, defaultCfg.Storage.Redis.DialTimeout, yellow, green)
	dumpField("    read_timeout", cfg.Storage.Redis.ReadTimeout, defaultCfg.Storage.Redis.ReadTimeout, yellow, green)
	dumpField("    write_timeout", cfg.Storage.Redis.WriteTimeout, defaultCfg.Storage.Redis.WriteTimeout, yellow, green)
	dumpField("    key_prefix", cfg.Storage.Redis.KeyPrefix, defaultCfg.Storage.Redis.KeyPrefix, yellow, green)

	// Logging
	_, _ = cyan.Println("\n[logging]")
	dumpField("  level", cfg.Logging.Level, defaultCfg.Logging.Level, yellow, green)
	dumpField("  format", cfg.Logging.Format, defaultCfg.Logging.Format, yellow, green)

	// Reminders
	_, _ = cyan.Println("\n[reminders]")
	dumpField("  poll_interval", cfg.Reminders.PollInterval, defaultCfg.Reminders.PollInterval, yellow, green)
	dumpField("  default_text", cfg.Reminders.DefaultText, defaultCfg.Reminders.DefaultText, yellow, green)
	dumpField("  history_size", cfg.Reminders.HistorySize, defaultCfg.Reminders.HistorySize, yellow, green)
	_, _ = cyan.Println("  [reminders.alert]")
	dumpField("    player", cfg.Reminders.Alert.Player, defaultCfg.Reminders.Alert.Player, yellow, green)
	dumpField("    frequency", cfg.Reminders.Alert.Frequency, defaultCfg.Reminders.Alert.Frequency, yellow, green)
	dumpField("    duration", cfg.Reminders.Alert.Duration, defaultCfg.Reminders.Alert.Duration, yellow, green)
	dumpField("    gap", cfg.Reminders.Alert.Gap, defaultCfg.Reminders.Alert.Gap, yellow, green)
	dumpField("    repeats", cfg.Reminders.Alert.Repeats, defaultCfg.Reminders.Alert.Repeats, yellow, green)

	// Notify
	_, _ = cyan.Println("\n[notify]")
	dumpField("  targets", cfg.Notify.Targets, defaultCfg.Notify.Targets, yellow, green)
	dumpField("  command", cfg.Notify.Command, defaultCfg.Notify.Command, yellow, green)
	dumpField("  command_timeout", cfg.Notify.CommandTimeout, defaultCfg.Notify.CommandTimeout, yellow, green)

	// Voice
	_, _ = cyan.Println("\n[voice]")
	dumpField("  env_file", cfg.Voice.EnvFile, defaultCfg.Voice.EnvFile, yellow, green)
	dumpField("  credentials", credentialSummary(cfg.Voice.Credentials), credentialSummary(defaultCfg.Voice.Credentials), yellow, green)
	dumpField("  quota", cfg.Voice.Quota, defaultCfg.Voice.Quota, yellow, green)
	dumpField("  auto_rotate", cfg.Voice.AutoRotate, defaultCfg.Voice.AutoRotate, yellow, green)
	dumpField("  report_path", cfg.Voice.ReportPath, defaultCfg.Voice.ReportPath, yellow, green)
	dumpField("  report_schedule", cfg.Voice.ReportSchedule, defaultCfg.Voice.ReportSchedule, yellow, green)

	// Display unknown keys if any
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)

		_, _ = cyan.Println("\n[UNKNOWN KEYS - These will be ignored!]")
		for _, key := range unknownKeys {
			_, _ = red.Printf("  %s = (unknown key - check for typos)\n", key)
		}
	}

	_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	isDefault := reflect.DeepEqual(value, defaultValue)

	valueStr := fmt.Sprintf("%v", value)

	if isDefault {
		_, _ = defaultColor.Printf("%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Printf("%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// credentialSummary lists credentials by name and key source, never the key.
func credentialSummary(creds []config.CredentialConfig) []string {
	out := make([]string, len(creds))
	for i, c := range creds {
		switch {
		case c.KeyEnv != "":
			out[i] = c.Name + " ($" + c.KeyEnv + ")"
		case c.Key != "":
			out[i] = c.Name + " (" + redactPassword(c.Key) + ")"
		default:
			out[i] = c.Name
		}
	}
	return out
}

// redactPassword redacts password if not empty
func redactPassword(password string) string {
	if password == "" {
		return ""
	}
	return "***REDACTED***"
}
