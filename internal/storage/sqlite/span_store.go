package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/worklog/internal/storage"
)

const spanColumns = `id, log_entry_id, start_timestamp, end_timestamp, created_at`

type spanStore struct {
	t *sqlTx
}

func scanSpan(row rowScanner) (*storage.TimeSpan, error) {
	var (
		span      storage.TimeSpan
		start     string
		end       sql.NullString
		createdAt string
	)
	err := row.Scan(&span.ID, &span.EntryID, &start, &end, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if span.Start, err = time.Parse(timeLayout, start); err != nil {
		return nil, fmt.Errorf("failed to parse start_timestamp: %w", err)
	}
	if end.Valid {
		parsed, err := time.Parse(timeLayout, end.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse end_timestamp: %w", err)
		}
		span.End = &parsed
	}
	if span.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return &span, nil
}

func nullableEnd(span storage.TimeSpan) sql.NullString {
	if span.End == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*span.End), Valid: true}
}

func (s *spanStore) Get(id int64) (*storage.TimeSpan, error) {
	if err := s.t.check(false); err != nil {
		return nil, err
	}
	row := s.t.tx.QueryRowContext(s.t.ctx, `SELECT `+spanColumns+` FROM time_spans WHERE id = ?`, id)
	return scanSpan(row)
}

func (s *spanStore) ListByEntry(entryID int64) ([]storage.TimeSpan, error) {
	return s.query(`SELECT `+spanColumns+` FROM time_spans WHERE log_entry_id = ?`, entryID)
}

func (s *spanStore) ListOpen() ([]storage.TimeSpan, error) {
	return s.query(`SELECT ` + spanColumns + ` FROM time_spans WHERE end_timestamp IS NULL`)
}

// query sorts in Go since RFC3339Nano text does not order lexically.
func (s *spanStore) query(query string, args ...any) ([]storage.TimeSpan, error) {
	if err := s.t.check(false); err != nil {
		return nil, err
	}
	rows, err := s.t.tx.QueryContext(s.t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query spans: %w", err)
	}
	defer rows.Close()

	spans := make([]storage.TimeSpan, 0)
	for rows.Next() {
		span, err := scanSpan(rows)
		if err != nil {
			return nil, err
		}
		spans = append(spans, *span)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	storage.SortSpans(spans)
	return spans, nil
}

func (s *spanStore) Create(span *storage.TimeSpan) error {
	if err := s.t.check(true); err != nil {
		return err
	}
	res, err := s.t.tx.ExecContext(s.t.ctx,
		`INSERT INTO time_spans (log_entry_id, start_timestamp, end_timestamp, created_at) VALUES (?, ?, ?, ?)`,
		span.EntryID, formatTime(span.Start), nullableEnd(*span), formatTime(span.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert span: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	span.ID = id
	return nil
}

func (s *spanStore) Upsert(span storage.TimeSpan) error {
	if err := s.t.check(true); err != nil {
		return err
	}
	_, err := s.t.tx.ExecContext(s.t.ctx, `
		INSERT INTO time_spans (id, log_entry_id, start_timestamp, end_timestamp, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			log_entry_id = excluded.log_entry_id,
			start_timestamp = excluded.start_timestamp,
			end_timestamp = excluded.end_timestamp`,
		span.ID, span.EntryID, formatTime(span.Start), nullableEnd(span), formatTime(span.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert span %d: %w", span.ID, err)
	}
	return nil
}

func (s *spanStore) Delete(id int64) error {
	if err := s.t.check(true); err != nil {
		return err
	}
	res, err := s.t.tx.ExecContext(s.t.ctx, `DELETE FROM time_spans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete span %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
