package reminder

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *fakeNotifier) Notify(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return n.err
}

func (n *fakeNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type countingAlerter struct {
	mu    sync.Mutex
	plays int
	err   error
}

func (a *countingAlerter) Play(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.plays++
	return a.err
}

var testStart = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, n Notifier, a Alerter) (*Scheduler, *TestClock) {
	t.Helper()
	clock := &TestClock{CurrentTime: testStart}
	s, err := NewScheduler(n, a, clock, Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	return s, clock
}

// tick runs one poll and waits for its deliveries to finish.
func tick(s *Scheduler) int {
	n := s.fireDue(context.Background())
	s.deliveries.Wait()
	return n
}

func TestScheduleComputesDueTime(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeNotifier{}, nil)

	r, err := s.Schedule("tea", 1.5)
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if want := testStart.Add(90 * time.Second); !r.DueAt.Equal(want) {
		t.Errorf("DueAt = %v, want %v", r.DueAt, want)
	}
	if !r.CreatedAt.Equal(testStart) {
		t.Errorf("CreatedAt = %v, want %v", r.CreatedAt, testStart)
	}
	if r.ID == "" {
		t.Error("expected a reminder ID")
	}
}

func TestScheduleRejectsInvalidDelay(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeNotifier{}, nil)

	tests := []struct {
		name  string
		delay float64
	}{
		{"negative", -1},
		{"nan", math.NaN()},
		{"positive infinity", math.Inf(1)},
		{"negative infinity", math.Inf(-1)},
		{"overflow", 1e300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Schedule("x", tt.delay); !errors.Is(err, ErrInvalidSchedule) {
				t.Errorf("Schedule(%v) error = %v, want ErrInvalidSchedule", tt.delay, err)
			}
		})
	}

	if got := len(s.Pending()); got != 0 {
		t.Errorf("pending = %d after rejected schedules, want 0", got)
	}
}

func TestScheduleDefaultText(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeNotifier{}, nil)

	r, err := s.Schedule("   ", 1)
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if r.Text != DefaultText {
		t.Errorf("Text = %q, want %q", r.Text, DefaultText)
	}
}

func TestFireDueDeliversOnlyDueReminders(t *testing.T) {
	notifier := &fakeNotifier{}
	alerter := &countingAlerter{}
	s, clock := newTestScheduler(t, notifier, alerter)

	if _, err := s.Schedule("tea", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Schedule("call mum", 5); err != nil {
		t.Fatal(err)
	}

	clock.Advance(59 * time.Second)
	if n := tick(s); n != 0 {
		t.Fatalf("fired %d reminders before due, want 0", n)
	}

	clock.Advance(time.Second)
	if n := tick(s); n != 1 {
		t.Fatalf("fired %d reminders, want 1", n)
	}

	msgs := notifier.Messages()
	if len(msgs) != 1 || msgs[0] != "Reminder: tea" {
		t.Errorf("messages = %v, want [Reminder: tea]", msgs)
	}
	if alerter.plays != 1 {
		t.Errorf("alert played %d times, want 1", alerter.plays)
	}

	pending := s.Pending()
	if len(pending) != 1 || pending[0].Text != "call mum" {
		t.Errorf("pending = %+v, want [call mum]", pending)
	}
}

func TestFireDueFiresEachReminderOnce(t *testing.T) {
	notifier := &fakeNotifier{}
	s, clock := newTestScheduler(t, notifier, nil)

	if _, err := s.Schedule("a", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Schedule("b", 0); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Second)
	if n := tick(s); n != 2 {
		t.Fatalf("fired %d, want 2", n)
	}
	if n := tick(s); n != 0 {
		t.Fatalf("second poll fired %d, want 0", n)
	}
	if got := len(notifier.Messages()); got != 2 {
		t.Errorf("notified %d times, want 2", got)
	}
}

func TestFireDueConcurrentPollsNeverDuplicate(t *testing.T) {
	notifier := &fakeNotifier{}
	s, _ := newTestScheduler(t, notifier, nil)

	for i := 0; i < 50; i++ {
		if _, err := s.Schedule("r", 0); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.fireDue(context.Background())
		}()
	}
	wg.Wait()
	s.deliveries.Wait()

	if got := len(notifier.Messages()); got != 50 {
		t.Errorf("notified %d times, want 50", got)
	}
}

func TestNotifierFailureIsNotRetried(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("speaker unplugged")}
	s, _ := newTestScheduler(t, notifier, nil)

	r, err := s.Schedule("stretch", 0)
	if err != nil {
		t.Fatal(err)
	}

	tick(s)
	tick(s)

	if got := len(notifier.Messages()); got != 1 {
		t.Errorf("notified %d times, want 1", got)
	}
	fired := s.Fired()
	if len(fired) != 1 {
		t.Fatalf("fired history = %d entries, want 1", len(fired))
	}
	if fired[0].Reminder.ID != r.ID || fired[0].Error != "speaker unplugged" {
		t.Errorf("firing = %+v", fired[0])
	}
}

func TestAlertFailureStillNotifies(t *testing.T) {
	notifier := &fakeNotifier{}
	s, _ := newTestScheduler(t, notifier, &countingAlerter{err: errors.New("no audio device")})

	if _, err := s.Schedule("water plants", 0); err != nil {
		t.Fatal(err)
	}
	tick(s)

	if got := notifier.Messages(); len(got) != 1 || got[0] != "Reminder: water plants" {
		t.Errorf("messages = %v", got)
	}
}

func TestCancel(t *testing.T) {
	notifier := &fakeNotifier{}
	s, clock := newTestScheduler(t, notifier, nil)

	r, err := s.Schedule("laundry", 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Cancel(r.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if err := s.Cancel(r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Cancel() error = %v, want ErrNotFound", err)
	}

	clock.Advance(2 * time.Minute)
	tick(s)
	if got := len(notifier.Messages()); got != 0 {
		t.Errorf("cancelled reminder fired %d times", got)
	}
}

func TestPendingOrderedByDueTime(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeNotifier{}, nil)

	for _, tc := range []struct {
		text  string
		delay float64
	}{
		{"third", 30},
		{"first", 1},
		{"second", 10},
		{"second-tie", 10},
	} {
		if _, err := s.Schedule(tc.text, tc.delay); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{"first", "second", "second-tie", "third"}
	got := s.Pending()
	if len(got) != len(want) {
		t.Fatalf("pending = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Text != want[i] {
			t.Errorf("pending[%d] = %s, want %s", i, got[i].Text, want[i])
		}
	}
}

func TestFiredHistoryIsBounded(t *testing.T) {
	clock := &TestClock{CurrentTime: testStart}
	s, err := NewScheduler(&fakeNotifier{}, nil, clock, Config{HistorySize: 2}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	for _, text := range []string{"one", "two", "three"} {
		if _, err := s.Schedule(text, 0); err != nil {
			t.Fatal(err)
		}
		tick(s)
	}

	fired := s.Fired()
	if len(fired) != 2 {
		t.Fatalf("history = %d entries, want 2", len(fired))
	}
	if fired[0].Reminder.Text != "two" || fired[1].Reminder.Text != "three" {
		t.Errorf("history = %s, %s; want two, three", fired[0].Reminder.Text, fired[1].Reminder.Text)
	}
}

func TestStartStopDiscardsPending(t *testing.T) {
	notifier := &fakeNotifier{}
	clock := &TestClock{CurrentTime: testStart}
	s, err := NewScheduler(notifier, nil, clock, Config{PollInterval: 5 * time.Millisecond}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Schedule("now", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Schedule("later", 60); err != nil {
		t.Fatal(err)
	}

	s.Start()
	deadline := time.Now().Add(2 * time.Second)
	for len(notifier.Messages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if got := notifier.Messages(); len(got) != 1 || got[0] != "Reminder: now" {
		t.Errorf("messages = %v, want [Reminder: now]", got)
	}
	if got := len(s.Pending()); got != 0 {
		t.Errorf("pending after Stop = %d, want 0", got)
	}

	// Stop is safe to repeat.
	s.Stop()
}

func TestNewSchedulerRequiresNotifier(t *testing.T) {
	if _, err := NewScheduler(nil, nil, nil, Config{}, zerolog.Nop()); err == nil {
		t.Fatal("NewScheduler(nil notifier) succeeded, want error")
	}
}
