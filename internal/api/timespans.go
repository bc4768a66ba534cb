package api

import (
	"net/http"

	"github.com/goodtune/worklog/internal/timespan"
	"github.com/rs/zerolog"
)

// TimeSpanHandler handles time span API requests.
type TimeSpanHandler struct {
	ledger *timespan.Ledger
	logger zerolog.Logger
}

// NewTimeSpanHandler creates a new time span handler.
func NewTimeSpanHandler(ledger *timespan.Ledger, logger zerolog.Logger) *TimeSpanHandler {
	return &TimeSpanHandler{
		ledger: ledger,
		logger: logger.With().Str("handler", "timespan").Logger(),
	}
}

// startRequest starts work on an existing entry, or on a new one described
// by the embedded fields.
type startRequest struct {
	LogEntryID *int64 `json:"log_entry_id"`
	timespan.NewEntry
}

type adjustRequest struct {
	Hours float64 `json:"hours"`
}

type spanRequest struct {
	Start *Timestamp `json:"start_timestamp"`
	End   *Timestamp `json:"end_timestamp"`
}

// Active returns the running span, or null.
func (h *TimeSpanHandler) Active(w http.ResponseWriter, r *http.Request) {
	span, err := h.ledger.ActiveSpan(r.Context())
	if err != nil {
		writeLedgerError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, span)
}

// Start starts a session on an existing or new entry.
func (h *TimeSpanHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.LogEntryID != nil {
		span, err := h.ledger.Start(r.Context(), *req.LogEntryID)
		if err != nil {
			writeLedgerError(w, h.logger, err, "Log entry not found")
			return
		}
		writeJSON(w, http.StatusOK, span)
		return
	}

	span, err := h.ledger.StartNew(r.Context(), req.NewEntry)
	if err != nil {
		writeLedgerError(w, h.logger, err, "Log entry not found")
		return
	}
	writeJSON(w, http.StatusOK, span)
}

// Pause closes a running span.
func (h *TimeSpanHandler) Pause(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid time span ID")
		return
	}
	span, err := h.ledger.Pause(r.Context(), id)
	if err != nil {
		writeLedgerError(w, h.logger, err, "TimeSpan not found")
		return
	}
	writeJSON(w, http.StatusOK, span)
}

// Stop closes a running span.
func (h *TimeSpanHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid time span ID")
		return
	}
	span, err := h.ledger.Stop(r.Context(), id)
	if err != nil {
		writeLedgerError(w, h.logger, err, "TimeSpan not found")
		return
	}
	writeJSON(w, http.StatusOK, span)
}

// Adjust moves the end of a closed span by a number of hours.
func (h *TimeSpanHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid time span ID")
		return
	}
	var req adjustRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	span, err := h.ledger.Adjust(r.Context(), id, req.Hours)
	if err != nil {
		writeLedgerError(w, h.logger, err, "TimeSpan not found")
		return
	}
	writeJSON(w, http.StatusOK, span)
}

// Update replaces the boundaries of a span.
func (h *TimeSpanHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid time span ID")
		return
	}
	var req spanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Start == nil {
		writeError(w, http.StatusBadRequest, "start_timestamp is required")
		return
	}

	span, err := h.ledger.Update(r.Context(), id, req.Start.Time, req.End.ptr())
	if err != nil {
		writeLedgerError(w, h.logger, err, "TimeSpan not found")
		return
	}
	writeJSON(w, http.StatusOK, span)
}

// Delete removes a span.
func (h *TimeSpanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid time span ID")
		return
	}
	if err := h.ledger.Delete(r.Context(), id); err != nil {
		writeLedgerError(w, h.logger, err, "TimeSpan not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
