package report

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeWriter struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (w *fakeWriter) WriteReport(path string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paths = append(w.paths, path)
	return "API Usage Stats:\n", w.err
}

func (w *fakeWriter) calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.paths)
}

func TestNewSchedulerValidation(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		schedule string
		wantErr  bool
	}{
		{"descriptor", "api_usage.log", "@daily", false},
		{"standard expression", "api_usage.log", "*/5 * * * *", false},
		{"interval", "api_usage.log", "@every 1m", false},
		{"on demand only", "api_usage.log", "", false},
		{"bad expression", "api_usage.log", "every tuesday", true},
		{"missing path", "", "@daily", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScheduler(&fakeWriter{}, tt.path, tt.schedule, zerolog.Nop())
			if (err != nil) != tt.wantErr {
				t.Errorf("NewScheduler() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteNow(t *testing.T) {
	w := &fakeWriter{}
	s, err := NewScheduler(w, "out/api_usage.log", "", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.WriteNow(); err != nil {
		t.Fatalf("WriteNow() error = %v", err)
	}
	if w.calls() != 1 || w.paths[0] != "out/api_usage.log" {
		t.Errorf("writes = %v", w.paths)
	}

	w.err = errors.New("disk full")
	if err := s.WriteNow(); err == nil {
		t.Error("WriteNow() succeeded, want error")
	}
	w.err = nil
	if err := s.WriteNow(); err != nil {
		t.Errorf("WriteNow() after recovery error = %v", err)
	}
	if w.calls() != 3 {
		t.Errorf("writes = %d, want 3", w.calls())
	}
}

func TestStopWritesFinalReport(t *testing.T) {
	w := &fakeWriter{}
	s, err := NewScheduler(w, "api_usage.log", "@daily", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	s.Start()
	if next := s.NextRun(); next.IsZero() || !next.After(time.Now()) {
		t.Errorf("NextRun() = %v, want a future time", next)
	}
	s.Stop()

	if w.calls() != 1 {
		t.Errorf("writes = %d, want 1 final write", w.calls())
	}
}

func TestNextRunWithoutSchedule(t *testing.T) {
	s, err := NewScheduler(&fakeWriter{}, "api_usage.log", "", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if !s.NextRun().IsZero() {
		t.Error("NextRun() should be zero without a schedule")
	}
}
