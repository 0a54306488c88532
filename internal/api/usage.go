package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/goodtune/kassist/internal/ledger"
)

// Ledger is the part of the key usage ledger the API drives.
type Ledger interface {
	RecordUsage(ctx context.Context, credential string, amount float64) error
	RecordCategory(ctx context.Context, category ledger.Category, amount float64) error
	RecordSynthesis(ctx context.Context, seconds float64) (ledger.Credential, error)
	RecordQuery(ctx context.Context) error
	CurrentKey() ledger.Credential
	Rotate(ctx context.Context) (ledger.Credential, error)
	RotateIfExhausted(ctx context.Context) (ledger.Credential, bool, error)
	Snapshot() ledger.State
	Report() string
	WriteReport(path string) (string, error)
}

// UsageHandler handles usage accounting and key rotation requests.
type UsageHandler struct {
	ledger     Ledger
	autoRotate bool
	reportPath string
	logger     zerolog.Logger
}

// NewUsageHandler creates a new usage handler. With autoRotate set, recording
// synthesis that exhausts the active key rotates to the next one. A non-empty
// reportPath is rewritten every time the report is read.
func NewUsageHandler(l Ledger, autoRotate bool, reportPath string, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{
		ledger:     l,
		autoRotate: autoRotate,
		reportPath: reportPath,
		logger:     logger.With().Str("handler", "usage").Logger(),
	}
}

// persisted reports whether err is nil, treating a persistence failure as a
// recorded but unsaved change. Any other error is returned unchanged.
func (h *UsageHandler) persisted(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ledger.ErrPersistence) {
		h.logger.Warn().Err(err).Msg("Usage change applied but not persisted")
		return false, nil
	}
	return false, err
}

// Get writes the usage report to the report file and returns it with a
// ledger snapshot. The report is still returned when the file write fails.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := UsageResponse{
		State:     h.ledger.Snapshot(),
		Persisted: true,
	}

	if h.reportPath == "" {
		resp.Report = h.ledger.Report()
		writeJSON(w, http.StatusOK, resp)
		return
	}

	report, err := h.ledger.WriteReport(h.reportPath)
	if err != nil {
		h.logger.Warn().Err(err).Str("path", h.reportPath).Msg("Failed to write usage report")
		report = h.ledger.Report()
	} else {
		resp.ReportPath = h.reportPath
		resp.ReportWritten = true
	}
	resp.Report = report

	writeJSON(w, http.StatusOK, resp)
}

// Record adds usage to a credential and/or a category.
func (h *UsageHandler) Record(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UsageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Amount == nil {
		writeError(w, http.StatusBadRequest, "amount is required")
		return
	}
	if req.Credential == "" && req.Category == "" {
		writeError(w, http.StatusBadRequest, "credential or category is required")
		return
	}

	saved := true
	if req.Credential != "" {
		ok, err := h.persisted(h.ledger.RecordUsage(ctx, req.Credential, *req.Amount))
		if err != nil {
			h.writeLedgerError(w, err)
			return
		}
		saved = saved && ok
	}
	if req.Category != "" {
		ok, err := h.persisted(h.ledger.RecordCategory(ctx, ledger.Category(req.Category), *req.Amount))
		if err != nil {
			h.writeLedgerError(w, err)
			return
		}
		saved = saved && ok
	}

	writeJSON(w, http.StatusOK, UsageResponse{
		Report:    h.ledger.Report(),
		State:     h.ledger.Snapshot(),
		Persisted: saved,
	})
}

// Synthesis charges seconds of speech to the active key.
func (h *UsageHandler) Synthesis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SynthesisRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Seconds == nil {
		writeError(w, http.StatusBadRequest, "seconds is required")
		return
	}

	charged, err := h.ledger.RecordSynthesis(ctx, *req.Seconds)
	saved, err := h.persisted(err)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	resp := SynthesisResponse{Charged: charged.Name, Active: charged.Name}
	if h.autoRotate {
		active, rotated, err := h.ledger.RotateIfExhausted(ctx)
		ok, err := h.persisted(err)
		if err != nil {
			h.writeLedgerError(w, err)
			return
		}
		saved = saved && ok
		resp.Active = active.Name
		resp.Rotated = rotated
	}
	resp.Persisted = saved

	writeJSON(w, http.StatusOK, resp)
}

// Query counts one language-model query.
func (h *UsageHandler) Query(w http.ResponseWriter, r *http.Request) {
	saved, err := h.persisted(h.ledger.RecordQuery(r.Context()))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"persisted": saved,
	})
}

// CurrentKey describes the active key.
func (h *UsageHandler) CurrentKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.keyResponse(true))
}

// Rotate moves to the next key.
func (h *UsageHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	_, err := h.ledger.Rotate(r.Context())
	saved, err := h.persisted(err)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.keyResponse(saved))
}

func (h *UsageHandler) keyResponse(saved bool) KeyResponse {
	snap := h.ledger.Snapshot()
	resp := KeyResponse{
		Name:      snap.Active,
		Index:     snap.ActiveIndex,
		Quota:     snap.Quota,
		Persisted: saved,
	}
	for _, c := range snap.Credentials {
		if c.Active {
			resp.Usage = c.Usage
			resp.Exhausted = c.Exhausted
		}
	}
	return resp
}

func (h *UsageHandler) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrUnknownCredential):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error().Err(err).Msg("Ledger operation failed")
		writeError(w, http.StatusBadRequest, err.Error())
	}
}
