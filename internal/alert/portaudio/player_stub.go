//go:build !portaudio

package portaudio

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the binary was built without the portaudio tag.
var ErrUnavailable = errors.New("portaudio: built without portaudio support")

// Player is a placeholder for builds without PortAudio.
type Player struct{}

// NewPlayer always fails in this build.
func NewPlayer() (*Player, error) {
	return nil, ErrUnavailable
}

// Close does nothing.
func (p *Player) Close() error { return nil }

// PlayTone always fails in this build.
func (p *Player) PlayTone(context.Context, float64, time.Duration) error {
	return ErrUnavailable
}
