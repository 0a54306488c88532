package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/kassist/internal/ledger"
	"github.com/goodtune/kassist/internal/reminder"
	"github.com/goodtune/kassist/internal/storage"
	"github.com/goodtune/kassist/internal/storage/file"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

type failingStore struct{}

func (failingStore) Load(context.Context) (*storage.LedgerState, error) {
	return nil, storage.ErrNotFound
}

func (failingStore) Save(context.Context, storage.LedgerState) error {
	return errors.New("read-only filesystem")
}

type testEnv struct {
	client    *Client
	scheduler *reminder.Scheduler
	ledger    *ledger.Ledger
	notifier  *recordingNotifier
}

func newTestEnv(t *testing.T, cfg Config, store storage.LedgerStore) *testEnv {
	t.Helper()
	ctx := context.Background()

	if store == nil {
		fs, err := file.Open(filepath.Join(t.TempDir(), "api_usage.json"))
		if err != nil {
			t.Fatal(err)
		}
		store = fs.Ledger()
	}

	notifier := &recordingNotifier{}
	sched, err := reminder.NewScheduler(notifier, nil, nil, reminder.Config{PollInterval: 5 * time.Millisecond}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	l, err := ledger.New(ctx, store, ledger.Config{
		Credentials: []ledger.Credential{
			{Name: "A", Key: "secret-a"},
			{Name: "B", Key: "secret-b"},
			{Name: "C", Key: "secret-c"},
		},
		Quota: 600,
	}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	srv := NewServer(cfg, sched, l, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := NewClient(ts.URL, cfg.Token, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{client: client, scheduler: sched, ledger: l, notifier: notifier}
}

func TestScheduleListAndCancel(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	created, err := env.client.Schedule(ctx, "buy milk", 10)
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if created.Reminder.Text != "buy milk" {
		t.Errorf("Text = %q", created.Reminder.Text)
	}
	if created.Message != "Reminder set for 10 minutes from now." {
		t.Errorf("Message = %q", created.Message)
	}

	pending, err := env.client.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != created.Reminder.ID {
		t.Fatalf("pending = %+v", pending)
	}

	if err := env.client.Cancel(ctx, created.Reminder.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	err = env.client.Cancel(ctx, created.Reminder.ID)
	if !errors.Is(err, reminder.ErrNotFound) {
		t.Errorf("second Cancel() error = %v, want not found", err)
	}
}

func TestScheduleRejectsNegativeDelay(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	_, err := env.client.Schedule(context.Background(), "x", -5)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("Schedule() error = %v, want 400", err)
	}
}

func TestScheduleRequiresDelay(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	ts := env.client.baseURL

	resp, err := http.Post(ts+"/api/reminders", "application/json", strings.NewReader(`{"text":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestScheduleCommand(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	created, err := env.client.ScheduleCommand(ctx, "remind me in 5 minutes about the oven")
	if err != nil {
		t.Fatalf("ScheduleCommand() error = %v", err)
	}
	if created.Reminder.Text != "the oven" {
		t.Errorf("Text = %q, want the oven", created.Reminder.Text)
	}

	created, err = env.client.ScheduleCommand(ctx, "remind me in 2 minutes")
	if err != nil {
		t.Fatal(err)
	}
	if created.Reminder.Text != reminder.DefaultText {
		t.Errorf("Text = %q, want default", created.Reminder.Text)
	}

	_, err = env.client.ScheduleCommand(ctx, "play some jazz")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("ScheduleCommand() error = %v, want 422", err)
	}
}

func TestFiredReminders(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	env.scheduler.Start()
	t.Cleanup(env.scheduler.Stop)

	if _, err := env.client.Schedule(ctx, "buy milk", 0); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var fired []reminder.Firing
	for time.Now().Before(deadline) {
		var err error
		fired, err = env.client.Fired(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(fired) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if len(fired) != 1 || fired[0].Reminder.Text != "buy milk" {
		t.Fatalf("fired = %+v", fired)
	}
	env.notifier.mu.Lock()
	defer env.notifier.mu.Unlock()
	if len(env.notifier.messages) != 1 || env.notifier.messages[0] != "Reminder: buy milk" {
		t.Errorf("messages = %v", env.notifier.messages)
	}
}

func TestUsageRecordingAndRotation(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	usage, err := env.client.RecordUsage(ctx, "A", "", 650)
	if err != nil {
		t.Fatalf("RecordUsage() error = %v", err)
	}
	if !usage.Persisted || usage.State.Credentials[0].Usage != 650 {
		t.Errorf("usage = %+v", usage)
	}

	key, err := env.client.CurrentKey(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if key.Name != "A" || !key.Exhausted {
		t.Errorf("current key = %+v, want exhausted A", key)
	}

	key, err = env.client.Rotate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if key.Name != "B" || key.Index != 1 {
		t.Errorf("rotated key = %+v, want B", key)
	}

	_, err = env.client.RecordUsage(ctx, "Z", "", 1)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("RecordUsage(Z) error = %v, want 404", err)
	}

	_, err = env.client.RecordUsage(ctx, "A", "", -1)
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("RecordUsage(-1) error = %v, want 400", err)
	}
}

func TestSynthesisAutoRotates(t *testing.T) {
	env := newTestEnv(t, Config{AutoRotate: true}, nil)
	ctx := context.Background()

	resp, err := env.client.RecordSynthesis(ctx, 300)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Charged != "A" || resp.Rotated {
		t.Errorf("first synthesis = %+v", resp)
	}

	resp, err = env.client.RecordSynthesis(ctx, 300)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Charged != "A" || !resp.Rotated || resp.Active != "B" {
		t.Errorf("second synthesis = %+v, want charged A and rotated to B", resp)
	}

	if err := env.client.RecordQuery(ctx); err != nil {
		t.Fatal(err)
	}
	usage, err := env.client.Usage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := "API Usage Stats:\nvoice_api: 600.00 seconds\ngemini_api: 1 calls\n"
	if usage.Report != want {
		t.Errorf("report = %q, want %q", usage.Report, want)
	}
}

func TestSynthesisWithoutAutoRotate(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	resp, err := env.client.RecordSynthesis(context.Background(), 700)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Rotated || resp.Active != "A" {
		t.Errorf("synthesis = %+v, want no rotation", resp)
	}
}

func TestPersistenceFailureIsReported(t *testing.T) {
	env := newTestEnv(t, Config{}, failingStore{})
	ctx := context.Background()

	usage, err := env.client.RecordUsage(ctx, "A", "voice_api", 5)
	if err != nil {
		t.Fatalf("RecordUsage() error = %v", err)
	}
	if usage.Persisted {
		t.Error("Persisted = true with a failing store")
	}
	if usage.State.Credentials[0].Usage != 5 {
		t.Errorf("usage not applied in memory: %+v", usage.State)
	}

	key, err := env.client.Rotate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if key.Name != "B" || key.Persisted {
		t.Errorf("rotate = %+v, want unpersisted B", key)
	}
}

func TestSecretsAreNeverReturned(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	base := env.client.baseURL

	for _, path := range []string{"/api/usage", "/api/keys/current", "/health"} {
		resp, err := http.Get(base + path)
		if err != nil {
			t.Fatal(err)
		}
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, resp.Body)
		resp.Body.Close()

		if strings.Contains(buf.String(), "secret-") {
			t.Errorf("%s leaked a credential secret: %s", path, buf.String())
		}
	}
}

func TestTokenMiddleware(t *testing.T) {
	env := newTestEnv(t, Config{Token: "s3cret"}, nil)
	ctx := context.Background()

	if _, err := env.client.Pending(ctx); err != nil {
		t.Fatalf("Pending() with token error = %v", err)
	}

	anon, err := NewClient(env.client.baseURL, "", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	_, err = anon.Pending(ctx)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("Pending() without token error = %v, want 401", err)
	}

	// Health stays open for probes.
	if _, err := anon.Health(ctx); err != nil {
		t.Errorf("Health() without token error = %v", err)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("not a url", "", 0); err == nil {
		t.Error("NewClient() succeeded, want error")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	if _, err := env.client.Schedule(ctx, "a", 5); err != nil {
		t.Fatal(err)
	}
	h, err := env.client.Health(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != "ok" || h.PendingReminders != 1 || h.ActiveKey != "A" {
		t.Errorf("health = %+v", h)
	}
}

func TestUsageWritesReportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "api_usage.log")
	env := newTestEnv(t, Config{ReportPath: path}, nil)
	ctx := context.Background()

	if _, err := env.client.RecordSynthesis(ctx, 12.5); err != nil {
		t.Fatal(err)
	}

	usage, err := env.client.Usage(ctx)
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if !usage.ReportWritten || usage.ReportPath != path {
		t.Errorf("usage = %+v, want report written to %s", usage, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("report file not written: %v", err)
	}
	want := "API Usage Stats:\nvoice_api: 12.50 seconds\ngemini_api: 0 calls\n"
	if string(data) != want || usage.Report != want {
		t.Errorf("file = %q, response = %q, want %q", data, usage.Report, want)
	}

	// A later read replaces the file with the current totals.
	if err := env.client.RecordQuery(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := env.client.Usage(ctx); err != nil {
		t.Fatal(err)
	}
	data, err = os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "gemini_api: 1 calls") || strings.Count(string(data), "API Usage Stats:") != 1 {
		t.Errorf("report file = %q, want one report with 1 call", data)
	}
}

func TestUsageReturnsReportWhenFileWriteFails(t *testing.T) {
	// A directory cannot be overwritten with a file.
	env := newTestEnv(t, Config{ReportPath: t.TempDir()}, nil)

	usage, err := env.client.Usage(context.Background())
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if usage.ReportWritten {
		t.Error("ReportWritten = true for an unwritable path")
	}
	if !strings.HasPrefix(usage.Report, "API Usage Stats:\n") {
		t.Errorf("report = %q", usage.Report)
	}
}
