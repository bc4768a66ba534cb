package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// ErrReadOnly is returned when a write is attempted inside a View transaction.
var ErrReadOnly = errors.New("storage: read-only transaction")

// Store represents the root storage interface.
//
// All reads and writes happen inside a transaction. Update runs fn in a
// single read-write transaction that is committed only when fn returns nil;
// View runs fn against a consistent read-only snapshot. Implementations check
// ctx before every record access made through the Tx.
type Store interface {
	Close() error
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the record stores bound to one transaction.
type Tx interface {
	Entries() EntryStore
	Spans() SpanStore
}

// EntryStore manages work-log entries.
type EntryStore interface {
	Get(id int64) (*LogEntry, error)
	GetByUUID(uuid string) (*LogEntry, error)
	List() ([]LogEntry, error)
	ListByDate(date string) ([]LogEntry, error)
	// Create assigns entry.ID.
	Create(entry *LogEntry) error
	Upsert(entry LogEntry) error
	// Delete removes the entry only; callers remove its spans first.
	Delete(id int64) error
}

// SpanStore manages time spans.
type SpanStore interface {
	Get(id int64) (*TimeSpan, error)
	// ListByEntry returns the entry's spans ordered by (Start, ID).
	ListByEntry(entryID int64) ([]TimeSpan, error)
	// ListOpen returns every span without an end, across all entries,
	// ordered by (Start, ID).
	ListOpen() ([]TimeSpan, error)
	// Create assigns span.ID.
	Create(span *TimeSpan) error
	Upsert(span TimeSpan) error
	Delete(id int64) error
}
