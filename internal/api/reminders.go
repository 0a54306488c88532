package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/goodtune/kassist/internal/reminder"
)

// Reminders is the part of the reminder scheduler the API drives.
type Reminders interface {
	Schedule(text string, delayMinutes float64) (*reminder.Reminder, error)
	Cancel(id string) error
	Pending() []reminder.Reminder
	Fired() []reminder.Firing
}

// ReminderHandler handles reminder-related API requests.
type ReminderHandler struct {
	reminders Reminders
	logger    zerolog.Logger
}

// NewReminderHandler creates a new reminder handler.
func NewReminderHandler(reminders Reminders, logger zerolog.Logger) *ReminderHandler {
	return &ReminderHandler{
		reminders: reminders,
		logger:    logger.With().Str("handler", "reminder").Logger(),
	}
}

// Create schedules a reminder.
func (h *ReminderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DelayMinutes == nil {
		writeError(w, http.StatusBadRequest, "delay_minutes is required")
		return
	}

	h.schedule(w, req.Text, *req.DelayMinutes)
}

// Command schedules a reminder from a phrase like
// "remind me in 10 minutes about the oven".
func (h *ReminderHandler) Command(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	text, delay, ok := reminder.ParseCommand(req.Transcript)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "Transcript is not a reminder request")
		return
	}

	h.schedule(w, text, delay)
}

func (h *ReminderHandler) schedule(w http.ResponseWriter, text string, delay float64) {
	rem, err := h.reminders.Schedule(text, delay)
	if err != nil {
		if errors.Is(err, reminder.ErrInvalidSchedule) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("Failed to schedule reminder")
		writeError(w, http.StatusInternalServerError, "Failed to schedule reminder")
		return
	}

	writeJSON(w, http.StatusCreated, ReminderResponse{
		Reminder: *rem,
		Message:  reminder.Confirmation(delay),
	})
}

// List returns pending reminders in due order.
func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	pending := h.reminders.Pending()
	writeJSON(w, http.StatusOK, ReminderList{
		Reminders: pending,
		Count:     len(pending),
	})
}

// Fired returns recently fired reminders.
func (h *ReminderHandler) Fired(w http.ResponseWriter, r *http.Request) {
	fired := h.reminders.Fired()
	writeJSON(w, http.StatusOK, FiredList{
		Fired: fired,
		Count: len(fired),
	})
}

// Delete cancels a pending reminder.
func (h *ReminderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.reminders.Cancel(id); err != nil {
		if errors.Is(err, reminder.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Reminder not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to cancel reminder")
		writeError(w, http.StatusInternalServerError, "Failed to cancel reminder")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
