package api

import (
	"github.com/goodtune/kassist/internal/ledger"
	"github.com/goodtune/kassist/internal/reminder"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// ScheduleRequest creates a reminder.
type ScheduleRequest struct {
	Text         string   `json:"text"`
	DelayMinutes *float64 `json:"delay_minutes"`
}

// CommandRequest creates a reminder from a spoken phrase.
type CommandRequest struct {
	Transcript string `json:"transcript"`
}

// ReminderResponse is returned when a reminder is created.
type ReminderResponse struct {
	Reminder reminder.Reminder `json:"reminder"`
	Message  string            `json:"message"`
}

// ReminderList lists pending reminders.
type ReminderList struct {
	Reminders []reminder.Reminder `json:"reminders"`
	Count     int                 `json:"count"`
}

// FiredList lists recently fired reminders.
type FiredList struct {
	Fired []reminder.Firing `json:"fired"`
	Count int               `json:"count"`
}

// UsageRequest records usage against a credential, a category, or both.
type UsageRequest struct {
	Credential string   `json:"credential,omitempty"`
	Category   string   `json:"category,omitempty"`
	Amount     *float64 `json:"amount"`
}

// SynthesisRequest records seconds of synthesized speech.
type SynthesisRequest struct {
	Seconds *float64 `json:"seconds"`
}

// UsageResponse reports the ledger. ReportWritten is set when GET
// /api/usage also stored the report at ReportPath.
type UsageResponse struct {
	Report        string       `json:"report"`
	State         ledger.State `json:"state"`
	Persisted     bool         `json:"persisted"`
	ReportPath    string       `json:"report_path,omitempty"`
	ReportWritten bool         `json:"report_written"`
}

// SynthesisResponse reports which credential was charged and whether the
// ledger moved on to the next one.
type SynthesisResponse struct {
	Charged   string `json:"charged"`
	Active    string `json:"active"`
	Rotated   bool   `json:"rotated"`
	Persisted bool   `json:"persisted"`
}

// KeyResponse describes the active credential. The secret is never included.
type KeyResponse struct {
	Name      string  `json:"name"`
	Index     int     `json:"index"`
	Usage     float64 `json:"usage"`
	Quota     float64 `json:"quota"`
	Exhausted bool    `json:"exhausted"`
	Persisted bool    `json:"persisted"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status           string `json:"status"`
	PendingReminders int    `json:"pending_reminders"`
	ActiveKey        string `json:"active_key"`
}
