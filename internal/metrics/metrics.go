package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Reminder metrics
	RemindersScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kassist_reminders_scheduled_total",
			Help: "Total reminders scheduled",
		},
	)

	RemindersFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kassist_reminders_fired_total",
			Help: "Total reminders fired",
		},
		[]string{"result"},
	)

	RemindersCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kassist_reminders_cancelled_total",
			Help: "Total reminders cancelled before firing",
		},
	)

	RemindersPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kassist_reminders_pending",
			Help: "Number of reminders waiting to fire",
		},
	)

	ReminderLateness = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kassist_reminder_lateness_seconds",
			Help:    "Delay between a reminder's due time and its firing",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 30},
		},
	)

	AlertFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kassist_alert_failures_total",
			Help: "Alert tone playback failures",
		},
	)

	// Ledger metrics
	UsageRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kassist_usage_recorded_total",
			Help: "Usage recorded per credential (seconds of synthesis)",
		},
		[]string{"credential"},
	)

	CategoryUsage = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kassist_category_usage_total",
			Help: "Usage recorded per category",
		},
		[]string{"category"},
	)

	KeyRotations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kassist_key_rotations_total",
			Help: "Total API key rotations",
		},
	)

	ActiveKeyIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kassist_active_key_index",
			Help: "Index of the active API credential",
		},
	)

	PersistenceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kassist_persistence_errors_total",
			Help: "Ledger state persistence failures",
		},
		[]string{"operation"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kassist_api_requests_total",
			Help: "Total API requests processed",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kassist_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		RemindersScheduled,
		RemindersFired,
		RemindersCancelled,
		RemindersPending,
		ReminderLateness,
		AlertFailures,
		UsageRecorded,
		CategoryUsage,
		KeyRotations,
		ActiveKeyIndex,
		PersistenceErrors,
		APIRequestsTotal,
		APIRequestDuration,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
