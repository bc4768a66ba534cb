package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/worklog/internal/storage"
)

const timeLayout = time.RFC3339Nano

const entryColumns = `id, uuid, date, category, project, task, status, notes, hours, additional_hours, created_at, updated_at`

type entryStore struct {
	t *sqlTx
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*storage.LogEntry, error) {
	var (
		entry     storage.LogEntry
		category  string
		createdAt string
		updatedAt string
	)
	err := row.Scan(&entry.ID, &entry.UUID, &entry.Date, &category, &entry.Project, &entry.Task,
		&entry.Status, &entry.Notes, &entry.Hours, &entry.AdditionalHours, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	entry.Category = storage.Category(category)
	if entry.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if entry.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &entry, nil
}

func (s *entryStore) Get(id int64) (*storage.LogEntry, error) {
	if err := s.t.check(false); err != nil {
		return nil, err
	}
	row := s.t.tx.QueryRowContext(s.t.ctx, `SELECT `+entryColumns+` FROM log_entries WHERE id = ?`, id)
	return scanEntry(row)
}

func (s *entryStore) GetByUUID(uuid string) (*storage.LogEntry, error) {
	if err := s.t.check(false); err != nil {
		return nil, err
	}
	row := s.t.tx.QueryRowContext(s.t.ctx, `SELECT `+entryColumns+` FROM log_entries WHERE uuid = ? AND uuid != ''`, uuid)
	return scanEntry(row)
}

func (s *entryStore) List() ([]storage.LogEntry, error) {
	return s.query(`SELECT ` + entryColumns + ` FROM log_entries ORDER BY id`)
}

func (s *entryStore) ListByDate(date string) ([]storage.LogEntry, error) {
	return s.query(`SELECT `+entryColumns+` FROM log_entries WHERE date = ? ORDER BY id`, date)
}

func (s *entryStore) query(query string, args ...any) ([]storage.LogEntry, error) {
	if err := s.t.check(false); err != nil {
		return nil, err
	}
	rows, err := s.t.tx.QueryContext(s.t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := make([]storage.LogEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func (s *entryStore) Create(entry *storage.LogEntry) error {
	if err := s.t.check(true); err != nil {
		return err
	}
	res, err := s.t.tx.ExecContext(s.t.ctx, `
		INSERT INTO log_entries (uuid, date, category, project, task, status, notes, hours, additional_hours, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.UUID, entry.Date, string(entry.Category), entry.Project, entry.Task, entry.Status, entry.Notes,
		entry.Hours, entry.AdditionalHours, formatTime(entry.CreatedAt), formatTime(entry.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = id
	return nil
}

func (s *entryStore) Upsert(entry storage.LogEntry) error {
	if err := s.t.check(true); err != nil {
		return err
	}
	_, err := s.t.tx.ExecContext(s.t.ctx, `
		INSERT INTO log_entries (id, uuid, date, category, project, task, status, notes, hours, additional_hours, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			uuid = excluded.uuid,
			date = excluded.date,
			category = excluded.category,
			project = excluded.project,
			task = excluded.task,
			status = excluded.status,
			notes = excluded.notes,
			hours = excluded.hours,
			additional_hours = excluded.additional_hours,
			updated_at = excluded.updated_at`,
		entry.ID, entry.UUID, entry.Date, string(entry.Category), entry.Project, entry.Task, entry.Status, entry.Notes,
		entry.Hours, entry.AdditionalHours, formatTime(entry.CreatedAt), formatTime(entry.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert entry %d: %w", entry.ID, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func (s *entryStore) Delete(id int64) error {
	if err := s.t.check(true); err != nil {
		return err
	}
	res, err := s.t.tx.ExecContext(s.t.ctx, `DELETE FROM log_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry %d: %w", id, err)
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
