package alert

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingPlayer struct {
	events []string
	fail   int // tone number that fails, 0 for never
}

func (p *recordingPlayer) PlayTone(_ context.Context, freq float64, d time.Duration) error {
	p.events = append(p.events, "tone")
	if p.fail > 0 && countTones(p.events) == p.fail {
		return errors.New("device busy")
	}
	if freq != DefaultPattern.Frequency || d != DefaultPattern.Duration {
		return errors.New("unexpected tone parameters")
	}
	return nil
}

func countTones(events []string) int {
	n := 0
	for _, e := range events {
		if e == "tone" {
			n++
		}
	}
	return n
}

func newTestSignal(player *recordingPlayer) *Signal {
	s := NewSignal(DefaultPattern, player, zerolog.Nop())
	s.sleep = func(_ context.Context, d time.Duration) error {
		if d != DefaultPattern.Gap {
			return errors.New("unexpected gap")
		}
		player.events = append(player.events, "gap")
		return nil
	}
	return s
}

func TestSignalPlaysPatternWithGapsBetweenTones(t *testing.T) {
	player := &recordingPlayer{}
	s := newTestSignal(player)

	if err := s.Play(context.Background()); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	want := []string{"tone", "gap", "tone", "gap", "tone"}
	if len(player.events) != len(want) {
		t.Fatalf("events = %v, want %v", player.events, want)
	}
	for i := range want {
		if player.events[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, player.events[i], want[i])
		}
	}
}

func TestSignalStopsOnPlayerError(t *testing.T) {
	player := &recordingPlayer{fail: 2}
	s := newTestSignal(player)

	if err := s.Play(context.Background()); err == nil {
		t.Fatal("Play() succeeded, want error")
	}
	if got := countTones(player.events); got != 2 {
		t.Errorf("played %d tones, want 2", got)
	}
}

func TestSignalHonoursCancellation(t *testing.T) {
	player := &recordingPlayer{}
	s := newTestSignal(player)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Play(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Play() error = %v, want context.Canceled", err)
	}
	if len(player.events) != 0 {
		t.Errorf("events = %v, want none", player.events)
	}
}

func TestSignalZeroRepeats(t *testing.T) {
	player := &recordingPlayer{}
	pattern := DefaultPattern
	pattern.Repeats = 0
	s := NewSignal(pattern, player, zerolog.Nop())

	if err := s.Play(context.Background()); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if len(player.events) != 0 {
		t.Errorf("events = %v, want none", player.events)
	}
}

func TestBellWritesBellCharacter(t *testing.T) {
	var buf bytes.Buffer
	b := Bell{Out: &buf}

	if err := b.PlayTone(context.Background(), 1000, time.Millisecond); err != nil {
		t.Fatalf("PlayTone() error = %v", err)
	}
	if buf.String() != "\a" {
		t.Errorf("wrote %q, want BEL", buf.String())
	}
}
