package api

import (
	"net/http"

	"github.com/goodtune/worklog/internal/timespan"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// LogHandler handles log entry API requests.
type LogHandler struct {
	ledger *timespan.Ledger
	logger zerolog.Logger
}

// NewLogHandler creates a new log entry handler.
func NewLogHandler(ledger *timespan.Ledger, logger zerolog.Logger) *LogHandler {
	return &LogHandler{
		ledger: ledger,
		logger: logger.With().Str("handler", "log").Logger(),
	}
}

type additionalHoursRequest struct {
	AdditionalHours float64 `json:"additional_hours"`
}

// List returns the entries recorded on the date given by ?date=YYYY-MM-DD.
func (h *LogHandler) List(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date query parameter is required")
		return
	}

	entries, err := h.ledger.EntriesByDate(r.Context(), date)
	if err != nil {
		writeLedgerError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  entries,
		"count": len(entries),
	})
}

// Create creates a new log entry.
func (h *LogHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req timespan.NewEntry
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, err := h.ledger.CreateEntry(r.Context(), req)
	if err != nil {
		writeLedgerError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// Get returns a single log entry by ID.
func (h *LogHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid log entry ID")
		return
	}
	entry, err := h.ledger.Entry(r.Context(), id)
	if err != nil {
		writeLedgerError(w, h.logger, err, "Log entry not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Update replaces every editable field of a log entry.
func (h *LogHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid log entry ID")
		return
	}
	var req timespan.NewEntry
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, err := h.ledger.UpdateEntry(r.Context(), id, req)
	if err != nil {
		writeLedgerError(w, h.logger, err, "Log entry not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Delete removes a log entry together with its spans.
func (h *LogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid log entry ID")
		return
	}
	if err := h.ledger.DeleteEntry(r.Context(), id); err != nil {
		writeLedgerError(w, h.logger, err, "Log entry not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// Stats returns per-day totals between ?start_date and ?end_date inclusive.
func (h *LogHandler) Stats(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start_date")
	end := r.URL.Query().Get("end_date")
	if start == "" || end == "" {
		writeError(w, http.StatusBadRequest, "start_date and end_date query parameters are required")
		return
	}

	stats, err := h.ledger.Stats(r.Context(), start, end)
	if err != nil {
		writeLedgerError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetByUUID returns a single log entry by its public identifier.
func (h *LogHandler) GetByUUID(w http.ResponseWriter, r *http.Request) {
	entry, err := h.ledger.EntryByUUID(r.Context(), mux.Vars(r)["uuid"])
	if err != nil {
		writeLedgerError(w, h.logger, err, "Log entry not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// SetAdditionalHours replaces the manual adjustment of an entry.
func (h *LogHandler) SetAdditionalHours(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid log entry ID")
		return
	}
	var req additionalHoursRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, err := h.ledger.SetAdditionalHours(r.Context(), id, req.AdditionalHours)
	if err != nil {
		writeLedgerError(w, h.logger, err, "Log entry not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Spans returns the consolidated spans of an entry.
func (h *LogHandler) Spans(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid log entry ID")
		return
	}
	spans, err := h.ledger.Spans(r.Context(), id)
	if err != nil {
		writeLedgerError(w, h.logger, err, "Log entry not found")
		return
	}
	writeJSON(w, http.StatusOK, spans)
}

// CreateSpan records a manual span for an entry.
func (h *LogHandler) CreateSpan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid log entry ID")
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

	span, err := h.ledger.Create(r.Context(), id, req.Start.Time, req.End.ptr())
	if err != nil {
		writeLedgerError(w, h.logger, err, "Log entry not found")
		return
	}
	writeJSON(w, http.StatusOK, span)
}

// Resume starts or continues work on an entry.
func (h *LogHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid log entry ID")
		return
	}
	span, err := h.ledger.Resume(r.Context(), id)
	if err != nil {
		writeLedgerError(w, h.logger, err, "Log entry not found")
		return
	}
	writeJSON(w, http.StatusOK, span)
}
