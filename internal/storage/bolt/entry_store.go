package bolt

import (
	"errors"

	"github.com/goodtune/worklog/internal/storage"
)

type entryStore struct {
	t *boltTx
}

func (s *entryStore) Get(id int64) (*storage.LogEntry, error) {
	return getValue[storage.LogEntry](s.t, bucketEntries, idKey(id))
}

func (s *entryStore) GetByUUID(uuid string) (*storage.LogEntry, error) {
	if err := s.t.check(false); err != nil {
		return nil, err
	}
	idx, err := s.t.index(bucketIndexUUID)
	if err != nil {
		return nil, err
	}
	raw := idx.Get([]byte(uuid))
	if raw == nil {
		return nil, storage.ErrNotFound
	}
	id, err := lastKeyID(raw)
	if err != nil {
		return nil, err
	}
	return s.Get(id)
}

func (s *entryStore) List() ([]storage.LogEntry, error) {
	if err := s.t.check(false); err != nil {
		return nil, err
	}
	b, err := s.t.bucket(bucketEntries)
	if err != nil {
		return nil, err
	}
	entries := make([]storage.LogEntry, 0)
	err = b.ForEach(func(_, v []byte) error {
		if err := s.t.ctx.Err(); err != nil {
			return err
		}
		var entry storage.LogEntry
		if err := unmarshal(v, &entry); err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	})
	return entries, err
}

func (s *entryStore) ListByDate(date string) ([]storage.LogEntry, error) {
	entries := make([]storage.LogEntry, 0)
	err := scanIndex(s.t, bucketIndexDate, compositeKey(date, ""), func(id int64) error {
		entry, err := s.Get(id)
		if err != nil {
			return err
		}
		entries = append(entries, *entry)
		return nil
	})
	return entries, err
}

func (s *entryStore) Create(entry *storage.LogEntry) error {
	id, err := nextID(s.t, bucketEntries)
	if err != nil {
		return err
	}
	entry.ID = id
	return s.Upsert(*entry)
}

func (s *entryStore) Upsert(entry storage.LogEntry) error {
	if err := s.t.check(true); err != nil {
		return err
	}
	byDate, err := s.t.index(bucketIndexDate)
	if err != nil {
		return err
	}
	byUUID, err := s.t.index(bucketIndexUUID)
	if err != nil {
		return err
	}

	previous, err := s.Get(entry.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return err
	default:
		if previous.Date != entry.Date {
			if err := byDate.Delete([]byte(compositeKey(previous.Date, idKey(entry.ID)))); err != nil {
				return err
			}
		}
		if previous.UUID != entry.UUID && previous.UUID != "" {
			if err := byUUID.Delete([]byte(previous.UUID)); err != nil {
				return err
			}
		}
	}

	if err := putValue(s.t, bucketEntries, idKey(entry.ID), entry); err != nil {
		return err
	}
	if err := byDate.Put([]byte(compositeKey(entry.Date, idKey(entry.ID))), indexMarker); err != nil {
		return err
	}
	if entry.UUID != "" {
		if err := byUUID.Put([]byte(entry.UUID), []byte(idKey(entry.ID))); err != nil {
			return err
		}
	}
	return nil
}

func (s *entryStore) Delete(id int64) error {
	if err := s.t.check(true); err != nil {
		return err
	}
	entry, err := s.Get(id)
	if err != nil {
		return err
	}
	b, err := s.t.bucket(bucketEntries)
	if err != nil {
		return err
	}
	byDate, err := s.t.index(bucketIndexDate)
	if err != nil {
		return err
	}
	if err := b.Delete([]byte(idKey(id))); err != nil {
		return err
	}
	if err := byDate.Delete([]byte(compositeKey(entry.Date, idKey(id)))); err != nil {
		return err
	}
	if entry.UUID == "" {
		return nil
	}
	byUUID, err := s.t.index(bucketIndexUUID)
	if err != nil {
		return err
	}
	return byUUID.Delete([]byte(entry.UUID))
}
