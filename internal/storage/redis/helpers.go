package redis

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/goodtune/worklog/internal/storage"
)

const (
	lockKey       = "worklog:lock"
	entrySeqKey   = "worklog:seq:entry"
	spanSeqKey    = "worklog:seq:span"
	entriesAllKey = "worklog:entries"
	openSpansKey  = "worklog:spans:open"
	entryKeyFmt   = "worklog:entry:%d"
	entryUUIDFmt  = "worklog:entry:uuid:%s"
	entryDateFmt  = "worklog:entries:date:%s"
	spanKeyFmt    = "worklog:span:%d"
	entrySpansFmt = "worklog:spans:entry:%d"
	timeLayout    = time.RFC3339Nano
)

func entryKey(id int64) string { return fmt.Sprintf(entryKeyFmt, id) }
func entryUUIDKey(uuid string) string { return fmt.Sprintf(entryUUIDFmt, uuid) }
func entryDateKey(date string) string { return fmt.Sprintf(entryDateFmt, date) }
func spanKey(id int64) string { return fmt.Sprintf(spanKeyFmt, id) }
func entrySpansKey(entryID int64) string { return fmt.Sprintf(entrySpansFmt, entryID) }

// parseLogEntry converts a Redis hash to LogEntry
func parseLogEntry(data map[string]string) (*storage.LogEntry, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	id, err := strconv.ParseInt(data["id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse id: %w", err)
	}

	hours, err := strconv.ParseFloat(data["hours"], 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse hours: %w", err)
	}

	additional, err := strconv.ParseFloat(data["additional_hours"], 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse additional_hours: %w", err)
	}

	createdAt, err := time.Parse(timeLayout, data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	updatedAt, err := time.Parse(timeLayout, data["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &storage.LogEntry{
		ID:              id,
		UUID:            data["uuid"],
		Date:            data["date"],
		Category:        storage.Category(data["category"]),
		Project:         data["project"],
		Task:            data["task"],
		Status:          data["status"],
		Notes:           data["notes"],
		Hours:           hours,
		AdditionalHours: additional,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}, nil
}

func logEntryFields(entry storage.LogEntry) map[string]interface{} {
	return map[string]interface{}{
		"id":               entry.ID,
		"uuid":             entry.UUID,
		"date":             entry.Date,
		"category":         string(entry.Category),
		"project":          entry.Project,
		"task":             entry.Task,
		"status":           entry.Status,
		"notes":            entry.Notes,
		"hours":            strconv.FormatFloat(entry.Hours, 'f', -1, 64),
		"additional_hours": strconv.FormatFloat(entry.AdditionalHours, 'f', -1, 64),
		"created_at":       entry.CreatedAt.UTC().Format(timeLayout),
		"updated_at":       entry.UpdatedAt.UTC().Format(timeLayout),
	}
}

// parseTimeSpan converts a Redis hash to TimeSpan
func parseTimeSpan(data map[string]string) (*storage.TimeSpan, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	id, err := strconv.ParseInt(data["id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse id: %w", err)
	}

	entryID, err := strconv.ParseInt(data["log_entry_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log_entry_id: %w", err)
	}

	start, err := time.Parse(timeLayout, data["start"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse start: %w", err)
	}

	createdAt, err := time.Parse(timeLayout, data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	span := &storage.TimeSpan{
		ID:        id,
		EntryID:   entryID,
		Start:     start,
		CreatedAt: createdAt,
	}

	if raw := data["end"]; raw != "" {
		end, err := time.Parse(timeLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse end: %w", err)
		}
		span.End = &end
	}

	return span, nil
}

func timeSpanFields(span storage.TimeSpan) map[string]interface{} {
	end := ""
	if span.End != nil {
		end = span.End.UTC().Format(timeLayout)
	}
	return map[string]interface{}{
		"id":           span.ID,
		"log_entry_id": span.EntryID,
		"start":        span.Start.UTC().Format(timeLayout),
		"end":          end,
		"created_at":   span.CreatedAt.UTC().Format(timeLayout),
	}
}

func parseIDs(members []string) ([]int64, error) {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse id %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func sortedKeys[T any](m map[int64]T) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
