// Package report writes the usage report to disk on a cron schedule.
package report

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Writer renders and stores a usage report.
type Writer interface {
	WriteReport(path string) (string, error)
}

// Scheduler rewrites the usage report file on a cron schedule, and once more
// when it stops so the file reflects the final totals.
type Scheduler struct {
	cron     *cron.Cron
	writer   Writer
	path     string
	schedule string
	entryID  cron.EntryID
	logger   zerolog.Logger

	mu      sync.Mutex
	lastErr error
}

// NewScheduler creates a report scheduler. schedule accepts standard cron
// expressions and descriptors such as "@hourly"; an empty schedule only
// writes the report on demand and at Stop.
func NewScheduler(writer Writer, path, schedule string, logger zerolog.Logger) (*Scheduler, error) {
	if path == "" {
		return nil, fmt.Errorf("report path is required")
	}

	s := &Scheduler{
		writer:   writer,
		path:     path,
		schedule: schedule,
		logger:   logger.With().Str("component", "report-scheduler").Logger(),
	}

	cronLogger := cronLogger{logger: s.logger}
	s.cron = cron.New(cron.WithLogger(cronLogger), cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	if schedule != "" {
		entryID, err := s.cron.AddFunc(schedule, s.run)
		if err != nil {
			return nil, fmt.Errorf("invalid report schedule %q: %w", schedule, err)
		}
		s.entryID = entryID
	}

	return s, nil
}

// Start begins the report scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	ev := s.logger.Info().Str("path", s.path).Str("schedule", s.schedule)
	if next := s.NextRun(); !next.IsZero() {
		ev = ev.Time("next_run", next)
	}
	ev.Msg("Usage report scheduler started")
}

// Stop waits for a running write to finish and writes a final report.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.run()
	s.logger.Info().Msg("Usage report scheduler stopped")
}

// WriteNow writes the report immediately.
func (s *Scheduler) WriteNow() error {
	s.run()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// NextRun returns the next scheduled write, or zero when none is scheduled
// or the scheduler is not running.
func (s *Scheduler) NextRun() time.Time {
	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) run() {
	_, err := s.writer.WriteReport(s.path)

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("Failed to write usage report")
		return
	}
	s.logger.Debug().Str("path", s.path).Msg("Usage report written")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
