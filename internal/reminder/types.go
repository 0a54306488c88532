package reminder

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidSchedule is returned for NaN, infinite, negative or
	// out-of-range delays.
	ErrInvalidSchedule = errors.New("reminder: invalid schedule")

	// ErrNotFound is returned when a reminder is not pending.
	ErrNotFound = errors.New("reminder: not found")
)

// Reminder is a message to deliver once its due time has passed.
// A Reminder is never modified after it is scheduled.
type Reminder struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	DueAt     time.Time `json:"due_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is the phrase announced when the reminder fires.
func (r Reminder) Message() string {
	return "Reminder: " + r.Text
}

// Firing records the delivery of a reminder.
type Firing struct {
	Reminder Reminder  `json:"reminder"`
	FiredAt  time.Time `json:"fired_at"`
	Error    string    `json:"error,omitempty"`
}

// Notifier delivers a reminder message to the user.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Alerter plays the attention signal before a message is delivered.
type Alerter interface {
	Play(ctx context.Context) error
}
