//go:build !portaudio

package portaudio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStubPlayerUnavailable(t *testing.T) {
	if _, err := NewPlayer(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("NewPlayer() error = %v, want ErrUnavailable", err)
	}
	var p Player
	if err := p.PlayTone(context.Background(), 1000, time.Millisecond); !errors.Is(err, ErrUnavailable) {
		t.Errorf("PlayTone() error = %v, want ErrUnavailable", err)
	}
}
