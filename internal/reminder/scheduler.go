package reminder

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/goodtune/kassist/internal/metrics"
)

const (
	// DefaultPollInterval is how often the pending set is checked for due reminders
	DefaultPollInterval = time.Second

	// DefaultText is used when a reminder is scheduled without text
	DefaultText = "your reminder"

	// DefaultHistorySize bounds the fired-reminder history
	DefaultHistorySize = 100
)

// maxDelayMinutes keeps DueAt computations inside time.Duration's range.
var maxDelayMinutes = float64(math.MaxInt64) / float64(time.Minute)

// Config holds scheduler configuration
type Config struct {
	PollInterval time.Duration
	DefaultText  string
	HistorySize  int
}

// Scheduler holds pending reminders and fires each one once its due time
// has passed.
type Scheduler struct {
	mu      sync.Mutex
	pending queue
	byID    map[string]*entry
	seq     uint64

	history *lru.Cache[string, Firing]

	clock        Clock
	notifier     Notifier
	alerter      Alerter
	pollInterval time.Duration
	defaultText  string
	logger       zerolog.Logger

	cancel     context.CancelFunc
	done       chan struct{}
	deliveries sync.WaitGroup
}

// NewScheduler creates a new reminder scheduler. A nil alerter disables the
// attention signal.
func NewScheduler(notifier Notifier, alerter Alerter, clock Clock, config Config, logger zerolog.Logger) (*Scheduler, error) {
	if notifier == nil {
		return nil, fmt.Errorf("reminder scheduler requires a notifier")
	}
	if clock == nil {
		clock = RealClock{}
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if strings.TrimSpace(config.DefaultText) == "" {
		config.DefaultText = DefaultText
	}
	if config.HistorySize <= 0 {
		config.HistorySize = DefaultHistorySize
	}

	history, err := lru.New[string, Firing](config.HistorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create reminder history: %w", err)
	}

	return &Scheduler{
		byID:         make(map[string]*entry),
		history:      history,
		clock:        clock,
		notifier:     notifier,
		alerter:      alerter,
		pollInterval: config.PollInterval,
		defaultText:  config.DefaultText,
		logger:       logger.With().Str("component", "reminder-scheduler").Logger(),
	}, nil
}

// Schedule adds a reminder due delayMinutes from now and returns without
// waiting for it to fire. A zero delay fires on the next poll.
func (s *Scheduler) Schedule(text string, delayMinutes float64) (*Reminder, error) {
	if math.IsNaN(delayMinutes) || math.IsInf(delayMinutes, 0) || delayMinutes < 0 {
		return nil, fmt.Errorf("%w: delay %v minutes", ErrInvalidSchedule, delayMinutes)
	}
	if delayMinutes >= maxDelayMinutes {
		return nil, fmt.Errorf("%w: delay %v minutes is too large", ErrInvalidSchedule, delayMinutes)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		text = s.defaultText
	}

	now := s.clock.Now()
	r := Reminder{
		ID:        uuid.NewString(),
		Text:      text,
		DueAt:     now.Add(time.Duration(delayMinutes * float64(time.Minute))),
		CreatedAt: now,
	}

	s.mu.Lock()
	s.seq++
	e := &entry{reminder: r, seq: s.seq}
	heap.Push(&s.pending, e)
	s.byID[r.ID] = e
	pending := len(s.pending)
	s.mu.Unlock()

	metrics.RemindersScheduled.Inc()
	metrics.RemindersPending.Set(float64(pending))

	s.logger.Info().
		Str("id", r.ID).
		Str("text", r.Text).
		Time("due_at", r.DueAt).
		Msg("Reminder scheduled")

	return &r, nil
}

// Cancel removes a pending reminder.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	e, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	heap.Remove(&s.pending, e.index)
	delete(s.byID, id)
	pending := len(s.pending)
	s.mu.Unlock()

	metrics.RemindersCancelled.Inc()
	metrics.RemindersPending.Set(float64(pending))
	s.logger.Info().Str("id", id).Msg("Reminder cancelled")
	return nil
}

// Pending returns the outstanding reminders ordered by due time.
func (s *Scheduler) Pending() []Reminder {
	s.mu.Lock()
	entries := make([]*entry, len(s.pending))
	copy(entries, s.pending)
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return queue(entries).Less(i, j)
	})

	out := make([]Reminder, len(entries))
	for i, e := range entries {
		out[i] = e.reminder
	}
	return out
}

// Fired returns the most recent firings, oldest first.
func (s *Scheduler) Fired() []Firing {
	keys := s.history.Keys()
	out := make([]Firing, 0, len(keys))
	for _, k := range keys {
		if f, ok := s.history.Peek(k); ok {
			out = append(out, f)
		}
	}
	return out
}

// Start runs the polling loop in the background until Stop is called.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	s.logger.Info().
		Dur("poll_interval", s.pollInterval).
		Msg("Reminder scheduler started")
}

// Stop ends the polling loop, waits for in-flight deliveries and discards
// reminders that have not fired.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.deliveries.Wait()

	s.mu.Lock()
	discarded := len(s.pending)
	s.pending = nil
	s.byID = make(map[string]*entry)
	s.mu.Unlock()

	metrics.RemindersPending.Set(0)
	s.logger.Info().
		Int("discarded", discarded).
		Msg("Reminder scheduler stopped")
}

// Run polls for due reminders until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.fireDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// fireDue removes every due reminder from the pending set and delivers each
// on its own goroutine. Removal happens under the same lock as the due check,
// so a reminder can be handed to delivery only once.
func (s *Scheduler) fireDue(ctx context.Context) int {
	now := s.clock.Now()

	s.mu.Lock()
	var due []Reminder
	for len(s.pending) > 0 && !s.pending[0].reminder.DueAt.After(now) {
		e := heap.Pop(&s.pending).(*entry)
		delete(s.byID, e.reminder.ID)
		due = append(due, e.reminder)
	}
	pending := len(s.pending)
	s.mu.Unlock()

	if len(due) == 0 {
		return 0
	}
	metrics.RemindersPending.Set(float64(pending))

	for _, r := range due {
		s.deliveries.Add(1)
		go func(r Reminder) {
			defer s.deliveries.Done()
			s.deliver(ctx, r)
		}(r)
	}
	return len(due)
}

// deliver plays the alert and announces the reminder. Failures are logged
// and the reminder is not retried.
func (s *Scheduler) deliver(ctx context.Context, r Reminder) {
	firedAt := s.clock.Now()
	metrics.ReminderLateness.Observe(firedAt.Sub(r.DueAt).Seconds())

	if s.alerter != nil {
		if err := s.alerter.Play(ctx); err != nil {
			metrics.AlertFailures.Inc()
			s.logger.Warn().Err(err).Str("id", r.ID).Msg("Alert signal failed")
		}
	}

	firing := Firing{Reminder: r, FiredAt: firedAt}
	if err := s.notifier.Notify(ctx, r.Message()); err != nil {
		firing.Error = err.Error()
		metrics.RemindersFired.WithLabelValues("error").Inc()
		s.logger.Error().
			Err(err).
			Str("id", r.ID).
			Str("text", r.Text).
			Msg("Failed to deliver reminder")
	} else {
		metrics.RemindersFired.WithLabelValues("delivered").Inc()
		s.logger.Info().
			Str("id", r.ID).
			Str("text", r.Text).
			Msg("Reminder delivered")
	}

	s.history.Add(r.ID, firing)
}
