package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Client    ClientConfig   `mapstructure:"client"`
	Storage   StorageConfig  `mapstructure:"storage"`
	Logging   LoggingConfig  `mapstructure:"logging"`
	Reminders ReminderConfig `mapstructure:"reminders"`
	Notify    NotifyConfig   `mapstructure:"notify"`
	Voice     VoiceConfig    `mapstructure:"voice"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	APIPort     int    `mapstructure:"api_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	APIToken    string `mapstructure:"api_token"` // optional bearer token for /api routes
}

// ClientConfig defines how CLI subcommands reach a running server
type ClientConfig struct {
	APIURL  string `mapstructure:"api_url"`
	Timeout string `mapstructure:"timeout"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "bolt", "redis" or "file"
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	KeyPrefix    string `mapstructure:"key_prefix"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ReminderConfig defines reminder scheduler settings
type ReminderConfig struct {
	PollInterval string      `mapstructure:"poll_interval"`
	DefaultText  string      `mapstructure:"default_text"`
	HistorySize  int         `mapstructure:"history_size"`
	Alert        AlertConfig `mapstructure:"alert"`
}

// AlertConfig defines the audible attention signal played before a reminder
type AlertConfig struct {
	Player    string  `mapstructure:"player"` // "portaudio", "bell" or "none"
	Frequency float64 `mapstructure:"frequency"`
	Duration  string  `mapstructure:"duration"`
	Gap       string  `mapstructure:"gap"`
	Repeats   int     `mapstructure:"repeats"`
}

// NotifyConfig defines where fired reminders are announced
type NotifyConfig struct {
	Targets        []string `mapstructure:"targets"` // "console", "log", "command"
	Command        []string `mapstructure:"command"`
	CommandTimeout string   `mapstructure:"command_timeout"`
}

// VoiceConfig defines the speech-synthesis credential pool and accounting
type VoiceConfig struct {
	EnvFile        string             `mapstructure:"env_file"`
	Credentials    []CredentialConfig `mapstructure:"credentials"`
	Quota          float64            `mapstructure:"quota"`
	AutoRotate     bool               `mapstructure:"auto_rotate"`
	ReportPath     string             `mapstructure:"report_path"`
	ReportSchedule string             `mapstructure:"report_schedule"`
}

// CredentialConfig names one API key of the pool. The secret is read from
// KeyEnv unless Key is set directly.
type CredentialConfig struct {
	Name   string `mapstructure:"name"`
	KeyEnv string `mapstructure:"key_env"`
	Key    string `mapstructure:"key"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("KASSIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Credentials usually live in a .env file next to the config
	if err := loadEnvFile(config.Voice.EnvFile); err != nil {
		return nil, err
	}
	resolveCredentials(config.Voice.Credentials)

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "127.0.0.1")
	v.SetDefault("server.api_port", 8765)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.api_token", "")

	// Client defaults
	v.SetDefault("client.api_url", "http://127.0.0.1:8765")
	v.SetDefault("client.timeout", "10s")

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/kassist/kassist.bolt")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 1)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")
	v.SetDefault("storage.redis.key_prefix", "kassist")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Reminder defaults
	v.SetDefault("reminders.poll_interval", "1s")
	v.SetDefault("reminders.default_text", "your reminder")
	v.SetDefault("reminders.history_size", 100)
	v.SetDefault("reminders.alert.player", "bell")
	v.SetDefault("reminders.alert.frequency", 1000.0)
	v.SetDefault("reminders.alert.duration", "700ms")
	v.SetDefault("reminders.alert.gap", "300ms")
	v.SetDefault("reminders.alert.repeats", 3)

	// Notify defaults
	v.SetDefault("notify.targets", []string{"console", "log"})
	v.SetDefault("notify.command", []string{})
	v.SetDefault("notify.command_timeout", "30s")

	// Voice defaults
	v.SetDefault("voice.env_file", ".env")
	v.SetDefault("voice.credentials", []map[string]interface{}{
		{"name": "voice-1", "key_env": "VOICE_API_KEY_1"},
		{"name": "voice-2", "key_env": "VOICE_API_KEY_2"},
		{"name": "voice-3", "key_env": "VOICE_API_KEY_3"},
	})
	v.SetDefault("voice.quota", 600.0)
	v.SetDefault("voice.auto_rotate", true)
	v.SetDefault("voice.report_path", "api_usage.log")
	v.SetDefault("voice.report_schedule", "@daily")
}

// loadEnvFile loads KEY=VALUE pairs without overriding variables that are
// already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func resolveCredentials(creds []CredentialConfig) {
	for i := range creds {
		if creds[i].Key == "" && creds[i].KeyEnv != "" {
			creds[i].Key = os.Getenv(creds[i].KeyEnv)
		}
	}
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	switch cfg.Storage.Type {
	case "":
		cfg.Storage.Type = "bolt"
	case "bolt", "file", "redis":
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	if cfg.Storage.Type != "redis" && cfg.Storage.Path == "" {
		return fmt.Errorf("storage path is required for %s storage", cfg.Storage.Type)
	}

	if len(cfg.Voice.Credentials) == 0 {
		return fmt.Errorf("at least one voice credential is required")
	}
	seen := make(map[string]bool, len(cfg.Voice.Credentials))
	for i, cred := range cfg.Voice.Credentials {
		if cred.Name == "" {
			return fmt.Errorf("voice credential %d has no name", i)
		}
		if seen[cred.Name] {
			return fmt.Errorf("duplicate voice credential name: %s", cred.Name)
		}
		seen[cred.Name] = true
	}
	if cfg.Voice.Quota <= 0 {
		return fmt.Errorf("voice quota must be positive, got %v", cfg.Voice.Quota)
	}

	if cfg.Reminders.Alert.Repeats < 0 {
		return fmt.Errorf("alert repeats must not be negative")
	}
	switch cfg.Reminders.Alert.Player {
	case "", "none", "bell", "portaudio":
	default:
		return fmt.Errorf("unsupported alert player: %s", cfg.Reminders.Alert.Player)
	}

	for _, target := range cfg.Notify.Targets {
		switch target {
		case "console", "log":
		case "command":
			if len(cfg.Notify.Command) == 0 {
				return fmt.Errorf("notify target \"command\" requires notify.command")
			}
		default:
			return fmt.Errorf("unsupported notify target: %s", target)
		}
	}

	return nil
}

// MissingSecrets returns the names of credentials without a resolved key.
func (c *Config) MissingSecrets() []string {
	var missing []string
	for _, cred := range c.Voice.Credentials {
		if cred.Key == "" {
			missing = append(missing, cred.Name)
		}
	}
	return missing
}
