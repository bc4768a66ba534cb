package timespan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goodtune/worklog/internal/metrics"
	"github.com/goodtune/worklog/internal/storage"
	"github.com/google/uuid"
)

// DateLayout is the format of LogEntry.Date.
const DateLayout = "2006-01-02"

// NewEntry describes a log entry to create.
type NewEntry struct {
	Date            string           `json:"date"`
	Category        storage.Category `json:"category"`
	Project         string           `json:"project"`
	Task            string           `json:"task"`
	Status          string           `json:"status"`
	Notes           string           `json:"notes"`
	AdditionalHours float64          `json:"additional_hours"`
}

// Validate checks the descriptive fields required to create an entry.
func (n NewEntry) Validate() error {
	var missing []string
	if strings.TrimSpace(n.Date) == "" {
		missing = append(missing, "date")
	}
	if n.Category == "" {
		missing = append(missing, "category")
	}
	if strings.TrimSpace(n.Project) == "" {
		missing = append(missing, "project")
	}
	if strings.TrimSpace(n.Task) == "" {
		missing = append(missing, "task")
	}
	if len(missing) > 0 {
		return missingFields(missing)
	}

	if _, err := time.Parse(DateLayout, n.Date); err != nil {
		return invalidf("date %q is not YYYY-MM-DD", n.Date)
	}
	if _, err := storage.ParseCategory(string(n.Category)); err != nil {
		return invalidf("%v", err)
	}
	return checkHours("additional_hours", n.AdditionalHours)
}

// apply copies the validated fields of n onto entry.
func (n NewEntry) apply(entry *storage.LogEntry) {
	category, _ := storage.ParseCategory(string(n.Category))
	status := strings.TrimSpace(n.Status)
	if status == "" {
		status = storage.StatusCompleted
	}

	entry.Date = n.Date
	entry.Category = category
	entry.Project = strings.TrimSpace(n.Project)
	entry.Task = strings.TrimSpace(n.Task)
	entry.Status = status
	entry.Notes = n.Notes
	entry.AdditionalHours = RoundHours(n.AdditionalHours)
}

func (t *turn) createEntry(n NewEntry) (*storage.LogEntry, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}

	entry := &storage.LogEntry{
		UUID:      uuid.NewString(),
		CreatedAt: t.now,
		UpdatedAt: t.now,
	}
	n.apply(entry)
	entry.Hours = entry.AdditionalHours
	if err := t.tx.Entries().Create(entry); err != nil {
		return nil, fmt.Errorf("failed to create log entry: %w", err)
	}

	t.touch(entry.ID, 0)
	t.logger.Info().
		Int64("log_entry_id", entry.ID).
		Str("project", entry.Project).
		Str("category", string(entry.Category)).
		Msg("Created log entry")
	return entry, nil
}

// returnEntry loads entry id into out after consolidation.
func (t *turn) returnEntry(id int64, out **storage.LogEntry) {
	t.afterSettle(func() error {
		entry, err := t.getEntry(id)
		if err != nil {
			return err
		}
		*out = entry
		return nil
	})
}

// CreateEntry validates and stores a new log entry.
func (l *Ledger) CreateEntry(ctx context.Context, n NewEntry) (*storage.LogEntry, error) {
	var entry *storage.LogEntry
	err := l.run(ctx, "create_entry", func(t *turn) error {
		created, err := t.createEntry(n)
		if err != nil {
			return err
		}
		t.returnEntry(created.ID, &entry)
		return nil
	})
	return entry, err
}

// StartNew creates an entry and starts a session on it in a single turn.
// Nothing is written when the entry fails validation.
func (l *Ledger) StartNew(ctx context.Context, n NewEntry) (*storage.TimeSpan, error) {
	var span *storage.TimeSpan
	err := l.run(ctx, "start_new", func(t *turn) error {
		entry, err := t.createEntry(n)
		if err != nil {
			return err
		}
		id, err := t.start(entry.ID)
		if err != nil {
			return err
		}
		t.returnSpan(id, &span)
		return nil
	})
	return span, err
}

// UpdateEntry replaces the descriptive fields and additional hours of an
// entry and recomputes its total. Spans and the public UUID are kept.
func (l *Ledger) UpdateEntry(ctx context.Context, entryID int64, n NewEntry) (*storage.LogEntry, error) {
	var entry *storage.LogEntry
	err := l.run(ctx, "update_entry", func(t *turn) error {
		if err := n.Validate(); err != nil {
			return err
		}
		current, err := t.getEntry(entryID)
		if err != nil {
			return err
		}
		n.apply(current)
		current.UpdatedAt = t.now
		if err := t.tx.Entries().Upsert(*current); err != nil {
			return fmt.Errorf("failed to save log entry %d: %w", entryID, err)
		}
		t.touch(entryID, 0)
		t.returnEntry(entryID, &entry)
		return nil
	})
	return entry, err
}

// DeleteEntry removes an entry together with every span recorded against
// it, a running one included.
func (l *Ledger) DeleteEntry(ctx context.Context, entryID int64) error {
	return l.run(ctx, "delete_entry", func(t *turn) error {
		if _, err := t.getEntry(entryID); err != nil {
			return err
		}
		spans, err := t.tx.Spans().ListByEntry(entryID)
		if err != nil {
			return fmt.Errorf("failed to list spans for entry %d: %w", entryID, err)
		}
		for _, span := range spans {
			if err := t.tx.Spans().Delete(span.ID); err != nil {
				return fmt.Errorf("failed to delete span %d: %w", span.ID, err)
			}
		}
		if err := t.tx.Entries().Delete(entryID); err != nil {
			return fmt.Errorf("failed to delete log entry %d: %w", entryID, err)
		}

		t.deleted = append(t.deleted, entryID)
		t.logger.Info().
			Int64("log_entry_id", entryID).
			Int("spans", len(spans)).
			Msg("Deleted log entry")
		return nil
	})
}

// SetAdditionalHours replaces the manual adjustment of an entry and
// recomputes its total.
func (l *Ledger) SetAdditionalHours(ctx context.Context, entryID int64, hours float64) (*storage.LogEntry, error) {
	var entry *storage.LogEntry
	err := l.run(ctx, "set_additional_hours", func(t *turn) error {
		if err := checkHours("additional_hours", hours); err != nil {
			return err
		}
		current, err := t.getEntry(entryID)
		if err != nil {
			return err
		}
		current.AdditionalHours = RoundHours(hours)
		current.UpdatedAt = t.now
		if err := t.tx.Entries().Upsert(*current); err != nil {
			return fmt.Errorf("failed to save log entry %d: %w", entryID, err)
		}
		t.touch(entryID, 0)
		t.returnEntry(entryID, &entry)
		return nil
	})
	return entry, err
}

// Entry consolidates a log entry and returns it. Entries without a running
// span are served from the cache when possible.
func (l *Ledger) Entry(ctx context.Context, id int64) (*storage.LogEntry, error) {
	if l.cache != nil {
		if entry, ok := l.cache.Get(id); ok {
			metrics.EntryCacheHits.Inc()
			return &entry, nil
		}
		metrics.EntryCacheMisses.Inc()
	}

	var entry *storage.LogEntry
	err := l.run(ctx, "get_entry", func(t *turn) error {
		if _, err := t.getEntry(id); err != nil {
			return err
		}
		t.touch(id, 0)
		t.returnEntry(id, &entry)
		return nil
	})
	return entry, err
}

// EntryByUUID consolidates and returns the log entry with the given public
// identifier.
func (l *Ledger) EntryByUUID(ctx context.Context, id string) (*storage.LogEntry, error) {
	var entry *storage.LogEntry
	err := l.run(ctx, "get_entry", func(t *turn) error {
		found, err := t.tx.Entries().GetByUUID(id)
		if err != nil {
			return fmt.Errorf("log entry %s: %w", id, err)
		}
		t.touch(found.ID, 0)
		t.returnEntry(found.ID, &entry)
		return nil
	})
	return entry, err
}

// EntriesByDate consolidates and lists the entries recorded for a day.
func (l *Ledger) EntriesByDate(ctx context.Context, date string) ([]storage.LogEntry, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, invalidf("date %q is not YYYY-MM-DD", date)
	}

	var entries []storage.LogEntry
	err := l.run(ctx, "list_entries", func(t *turn) error {
		found, err := t.tx.Entries().ListByDate(date)
		if err != nil {
			return fmt.Errorf("failed to list log entries for %s: %w", date, err)
		}
		for _, entry := range found {
			t.touch(entry.ID, 0)
		}
		t.afterSettle(func() error {
			var err error
			entries, err = t.tx.Entries().ListByDate(date)
			return err
		})
		return nil
	})
	return entries, err
}
