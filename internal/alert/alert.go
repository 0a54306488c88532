// Package alert plays the audible attention signal that precedes a spoken
// reminder.
package alert

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Pattern describes a run of identical tones separated by silent gaps.
type Pattern struct {
	Frequency float64
	Duration  time.Duration
	Gap       time.Duration
	Repeats   int
}

// DefaultPattern is three 1000 Hz beeps of 700ms with 300ms between them.
var DefaultPattern = Pattern{
	Frequency: 1000,
	Duration:  700 * time.Millisecond,
	Gap:       300 * time.Millisecond,
	Repeats:   3,
}

// TonePlayer renders a single tone and returns once it has finished.
type TonePlayer interface {
	PlayTone(ctx context.Context, frequency float64, duration time.Duration) error
}

// Signal plays a Pattern through a TonePlayer.
type Signal struct {
	pattern Pattern
	player  TonePlayer
	sleep   func(ctx context.Context, d time.Duration) error
	logger  zerolog.Logger
}

// NewSignal creates a signal. A zero Repeats disables the tones entirely.
func NewSignal(pattern Pattern, player TonePlayer, logger zerolog.Logger) *Signal {
	if player == nil {
		player = Silent{}
	}
	return &Signal{
		pattern: pattern,
		player:  player,
		sleep:   sleepContext,
		logger:  logger.With().Str("component", "alert").Logger(),
	}
}

// Play plays every tone of the pattern, pausing for Gap between tones but not
// after the last one. It stops at the first player error or when ctx ends.
func (s *Signal) Play(ctx context.Context) error {
	for i := 0; i < s.pattern.Repeats; i++ {
		if i > 0 && s.pattern.Gap > 0 {
			if err := s.sleep(ctx, s.pattern.Gap); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.player.PlayTone(ctx, s.pattern.Frequency, s.pattern.Duration); err != nil {
			s.logger.Warn().
				Err(err).
				Int("tone", i+1).
				Float64("frequency", s.pattern.Frequency).
				Msg("Failed to play alert tone")
			return fmt.Errorf("play tone %d: %w", i+1, err)
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Silent is a TonePlayer that plays nothing.
type Silent struct{}

// PlayTone returns immediately.
func (Silent) PlayTone(context.Context, float64, time.Duration) error { return nil }

// Bell rings the terminal bell and holds for the tone duration. Terminals
// cannot change the bell pitch, so frequency is ignored.
type Bell struct {
	Out io.Writer
}

// PlayTone writes a BEL character and waits for duration.
func (b Bell) PlayTone(ctx context.Context, _ float64, duration time.Duration) error {
	if _, err := b.Out.Write([]byte{'\a'}); err != nil {
		return fmt.Errorf("write bell: %w", err)
	}
	return sleepContext(ctx, duration)
}
