package redis

import (
	"errors"
	"sort"
	"strconv"

	"github.com/goodtune/worklog/internal/storage"
	"github.com/redis/go-redis/v9"
)

type entryStore struct {
	t *redisTx
}

// Get retrieves an entry by ID
func (s *entryStore) Get(id int64) (*storage.LogEntry, error) {
	if err := s.t.check(false); err != nil {
		return nil, err
	}
	if pending, ok := s.t.entries[id]; ok {
		if pending == nil {
			return nil, storage.ErrNotFound
		}
		entry := *pending
		return &entry, nil
	}
	return s.t.loadEntry(id)
}

// GetByUUID retrieves an entry by its public identifier
func (s *entryStore) GetByUUID(uuid string) (*storage.LogEntry, error) {
	if err := s.t.check(false); err != nil {
		return nil, err
	}
	for _, pending := range s.t.entries {
		if pending != nil && pending.UUID == uuid {
			entry := *pending
			return &entry, nil
		}
	}

	raw, err := s.t.client.Get(s.t.ctx, entryUUIDKey(uuid)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	entry, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if entry.UUID != uuid {
		return nil, storage.ErrNotFound
	}
	return entry, nil
}

// List returns every entry ordered by ID
func (s *entryStore) List() ([]storage.LogEntry, error) {
	return s.collect(entriesAllKey, func(storage.LogEntry) bool { return true })
}

// ListByDate returns the entries recorded on date
func (s *entryStore) ListByDate(date string) ([]storage.LogEntry, error) {
	return s.collect(entryDateKey(date), func(e storage.LogEntry) bool { return e.Date == date })
}

func (s *entryStore) collect(key string, keep func(storage.LogEntry) bool) ([]storage.LogEntry, error) {
	if err := s.t.check(false); err != nil {
		return nil, err
	}
	ids, err := s.t.members(key)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for id, pending := range s.t.entries {
		if pending != nil && keep(*pending) {
			seen[id] = true
		}
	}

	entries := make([]storage.LogEntry, 0, len(seen))
	for id := range seen {
		entry, err := s.Get(id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if keep(*entry) {
			entries = append(entries, *entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

// Create allocates an ID and buffers the entry
func (s *entryStore) Create(entry *storage.LogEntry) error {
	if err := s.t.check(true); err != nil {
		return err
	}
	id, err := s.t.client.Incr(s.t.ctx, entrySeqKey).Result()
	if err != nil {
		return err
	}
	entry.ID = id
	return s.Upsert(*entry)
}

// Upsert buffers the entry for commit
func (s *entryStore) Upsert(entry storage.LogEntry) error {
	if err := s.t.check(true); err != nil {
		return err
	}
	if err := s.t.rememberEntry(entry.ID); err != nil {
		return err
	}
	s.t.entries[entry.ID] = &entry
	return nil
}

// Delete buffers removal of the entry
func (s *entryStore) Delete(id int64) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	if err := s.t.check(true); err != nil {
		return err
	}
	if err := s.t.rememberEntry(id); err != nil {
		return err
	}
	s.t.entries[id] = nil
	return nil
}
