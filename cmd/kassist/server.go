package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goodtune/kassist/internal/alert"
	paplayer "github.com/goodtune/kassist/internal/alert/portaudio"
	"github.com/goodtune/kassist/internal/api"
	"github.com/goodtune/kassist/internal/config"
	"github.com/goodtune/kassist/internal/ledger"
	"github.com/goodtune/kassist/internal/metrics"
	"github.com/goodtune/kassist/internal/notify"
	"github.com/goodtune/kassist/internal/reminder"
	"github.com/goodtune/kassist/internal/report"
	"github.com/goodtune/kassist/internal/storage"
	"github.com/goodtune/kassist/internal/storage/bolt"
	"github.com/goodtune/kassist/internal/storage/file"
	"github.com/goodtune/kassist/internal/storage/redis"
	"github.com/goodtune/kassist/internal/systemd"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start kassist server",
	Long:  `Start the reminder scheduler, the key usage ledger, the HTTP API and the metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting kassist")

	if missing := cfg.MissingSecrets(); len(missing) > 0 {
		logger.Warn().
			Strs("credentials", missing).
			Msg("Some voice credentials have no key; check the environment or .env file")
	}

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Storage initialized")

	// Initialize Key Usage Ledger
	keyLedger, err := ledger.New(ctx, store.Ledger(), ledger.Config{
		Credentials: ledgerCredentials(cfg.Voice.Credentials),
		Quota:       cfg.Voice.Quota,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize key ledger: %w", err)
	}

	logger.Info().
		Str("active_key", keyLedger.CurrentKey().Name).
		Float64("quota", cfg.Voice.Quota).
		Msg("Key ledger initialized")

	// Initialize Reminder Scheduler
	notifier, err := buildNotifier(cfg.Notify, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}

	alerter, closeAlerter := buildAlerter(cfg.Reminders.Alert, logger)
	defer closeAlerter()

	scheduler, err := reminder.NewScheduler(notifier, alerter, reminder.RealClock{}, reminder.Config{
		PollInterval: parseDuration(cfg.Reminders.PollInterval, reminder.DefaultPollInterval),
		DefaultText:  cfg.Reminders.DefaultText,
		HistorySize:  cfg.Reminders.HistorySize,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize reminder scheduler: %w", err)
	}
	scheduler.Start()

	// Initialize Report Scheduler
	reportScheduler, err := report.NewScheduler(keyLedger, cfg.Voice.ReportPath, cfg.Voice.ReportSchedule, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize report scheduler: %w", err)
	}
	reportScheduler.Start()

	// Initialize API Server
	apiConfig := api.Config{
		ListenAddr: fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort),
		Token:      cfg.Server.APIToken,
		AutoRotate: cfg.Voice.AutoRotate,
		ReportPath: cfg.Voice.ReportPath,
	}
	apiServer := api.NewServer(apiConfig, scheduler, keyLedger, logger)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API Server: %w", err)
	}

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, logger)

		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}
	}

	logger.Info().
		Str("api", apiConfig.ListenAddr).
		Int("metrics_port", cfg.Server.MetricsPort).
		Msg("kassist startup complete")

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	watchdogCtx, stopWatchdog := context.WithCancel(ctx)
	defer stopWatchdog()
	go runWatchdog(watchdogCtx, scheduler, keyLedger, logger)

	// Wait for signals (shutdown or report)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			logger.Info().Msg("SIGHUP received, writing usage report")
			if err := reportScheduler.WriteNow(); err != nil {
				logger.Error().Err(err).Msg("Failed to write usage report")
			}
			continue
		}
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received, gracefully stopping...")
		break
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API Server")
	}

	scheduler.Stop()
	reportScheduler.Stop()

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	logger.Info().Msg("kassist stopped")

	return nil
}

// runWatchdog pings the systemd watchdog and keeps the unit status current.
func runWatchdog(ctx context.Context, scheduler *reminder.Scheduler, l *ledger.Ledger, logger zerolog.Logger) {
	interval := systemd.WatchdogInterval()
	if interval == 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status := fmt.Sprintf("%d reminders pending, active key %s", len(scheduler.Pending()), l.CurrentKey().Name)
		if err := systemd.NotifyStatus(status); err != nil {
			logger.Debug().Err(err).Msg("Failed to send systemd status")
		}
		if err := systemd.NotifyWatchdog(); err != nil {
			logger.Debug().Err(err).Msg("Failed to send systemd watchdog")
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "bolt":
		store, err := bolt.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "file":
		store, err := file.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "redis":
		store, err := redis.Open(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func ledgerCredentials(creds []config.CredentialConfig) []ledger.Credential {
	out := make([]ledger.Credential, len(creds))
	for i, c := range creds {
		out[i] = ledger.Credential{Name: c.Name, Key: c.Key}
	}
	return out
}

// buildNotifier creates the notifier chain for fired reminders.
func buildNotifier(cfg config.NotifyConfig, logger zerolog.Logger) (reminder.Notifier, error) {
	var chain notify.Multi
	for _, target := range cfg.Targets {
		switch target {
		case "console":
			chain = append(chain, notify.NewConsole(os.Stdout))
		case "log":
			chain = append(chain, notify.NewLog(logger))
		case "command":
			n, err := notify.NewCommand(cfg.Command, parseDuration(cfg.CommandTimeout, notify.DefaultCommandTimeout), logger)
			if err != nil {
				return nil, err
			}
			chain = append(chain, n)
		default:
			return nil, fmt.Errorf("unsupported notify target: %s", target)
		}
	}
	if len(chain) == 0 {
		chain = append(chain, notify.NewLog(logger))
	}
	return chain, nil
}

// buildAlerter creates the attention signal. PortAudio falls back to the
// terminal bell when it cannot be initialized.
func buildAlerter(cfg config.AlertConfig, logger zerolog.Logger) (reminder.Alerter, func()) {
	pattern := alert.Pattern{
		Frequency: cfg.Frequency,
		Duration:  parseDuration(cfg.Duration, alert.DefaultPattern.Duration),
		Gap:       parseDuration(cfg.Gap, alert.DefaultPattern.Gap),
		Repeats:   cfg.Repeats,
	}
	if pattern.Frequency <= 0 {
		pattern.Frequency = alert.DefaultPattern.Frequency
	}

	switch cfg.Player {
	case "", "none":
		return nil, func() {}
	case "portaudio":
		player, err := paplayer.NewPlayer()
		if err == nil {
			return alert.NewSignal(pattern, player, logger), func() { _ = player.Close() }
		}
		logger.Warn().Err(err).Msg("PortAudio unavailable, using terminal bell for alerts")
	}

	return alert.NewSignal(pattern, alert.Bell{Out: os.Stdout}, logger), func() {}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
