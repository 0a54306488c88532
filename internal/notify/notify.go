// Package notify delivers reminder announcements to the user.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// DefaultCommandTimeout bounds a single run of an external speech command.
const DefaultCommandTimeout = 30 * time.Second

// Notifier announces a message.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Console prints messages to a terminal, highlighted.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	c   *color.Color
}

// NewConsole creates a console notifier writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{
		out: out,
		c:   color.New(color.FgYellow, color.Bold),
	}
}

// Notify prints the message with a timestamp.
func (c *Console) Notify(_ context.Context, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "%s %s\n", time.Now().Format("15:04:05"), c.c.Sprint(message))
	return err
}

// Log writes messages to a structured logger.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates a log notifier.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "notify").Logger()}
}

// Notify logs the message at info level.
func (l *Log) Notify(_ context.Context, message string) error {
	l.logger.Info().Str("message", message).Msg("Announcement")
	return nil
}

// Command runs an external program, typically a text-to-speech tool, with
// the message appended as the final argument.
type Command struct {
	argv    []string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewCommand creates a command notifier. argv must name a program.
func NewCommand(argv []string, timeout time.Duration, logger zerolog.Logger) (*Command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, fmt.Errorf("notify command is empty")
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Command{
		argv:    append([]string(nil), argv...),
		timeout: timeout,
		logger:  logger.With().Str("component", "notify-command").Logger(),
	}, nil
}

// Notify runs the command and waits for it to exit.
func (c *Command) Notify(ctx context.Context, message string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := append(append([]string(nil), c.argv[1:]...), message)
	cmd := exec.CommandContext(ctx, c.argv[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out after %s", c.argv[0], c.timeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s failed: %w: %s", c.argv[0], err, msg)
		}
		return fmt.Errorf("%s failed: %w", c.argv[0], err)
	}

	c.logger.Debug().
		Str("program", c.argv[0]).
		Dur("duration", time.Since(start)).
		Msg("Notify command finished")
	return nil
}

// Multi fans a message out to several notifiers. Every notifier is tried;
// the errors of those that failed are joined.
type Multi []Notifier

// Notify calls each notifier in order.
func (m Multi) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
