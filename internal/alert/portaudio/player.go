//go:build portaudio

// Package portaudio plays alert tones through the default audio output.
package portaudio

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	// SampleRate of the generated tone
	SampleRate = 44100
	// FramesPerBuffer is ~23ms of audio at 44.1kHz
	FramesPerBuffer = 1024
	// Amplitude keeps the sine comfortably below clipping
	Amplitude = 0.3
)

// Player renders sine tones with PortAudio. It is safe for concurrent use;
// tones are serialized.
type Player struct {
	mu     sync.Mutex
	closed bool
}

// NewPlayer initializes PortAudio.
func NewPlayer() (*Player, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &Player{}, nil
}

// Close terminates PortAudio.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return portaudio.Terminate()
}

// PlayTone writes a sine wave of the given frequency for duration.
func (p *Player) PlayTone(ctx context.Context, frequency float64, duration time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("player closed")
	}

	out := make([]float32, FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, SampleRate, len(out), &out)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	defer stream.Stop()

	total := int(duration.Seconds() * SampleRate)
	step := 2 * math.Pi * frequency / SampleRate
	phase := 0.0
	for written := 0; written < total; written += len(out) {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := range out {
			if written+i < total {
				out[i] = float32(Amplitude * math.Sin(phase))
				phase += step
			} else {
				out[i] = 0
			}
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("failed to write tone: %w", err)
		}
	}
	return nil
}
