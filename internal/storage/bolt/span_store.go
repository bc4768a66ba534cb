package bolt

import (
	"errors"

	"github.com/goodtune/worklog/internal/storage"
)

type spanStore struct {
	t *boltTx
}

func (s *spanStore) Get(id int64) (*storage.TimeSpan, error) {
	return getValue[storage.TimeSpan](s.t, bucketSpans, idKey(id))
}

func (s *spanStore) ListByEntry(entryID int64) ([]storage.TimeSpan, error) {
	return s.collect(bucketIndexEntry, compositeKey(idKey(entryID), ""))
}

func (s *spanStore) ListOpen() ([]storage.TimeSpan, error) {
	return s.collect(bucketIndexOpen, "")
}

func (s *spanStore) collect(index, prefix string) ([]storage.TimeSpan, error) {
	spans := make([]storage.TimeSpan, 0)
	err := scanIndex(s.t, index, prefix, func(id int64) error {
		span, err := s.Get(id)
		if err != nil {
			return err
		}
		spans = append(spans, *span)
		return nil
	})
	if err != nil {
		return nil, err
	}
	storage.SortSpans(spans)
	return spans, nil
}

func (s *spanStore) Create(span *storage.TimeSpan) error {
	id, err := nextID(s.t, bucketSpans)
	if err != nil {
		return err
	}
	span.ID = id
	return s.Upsert(*span)
}

func (s *spanStore) Upsert(span storage.TimeSpan) error {
	if err := s.t.check(true); err != nil {
		return err
	}
	byEntry, err := s.t.index(bucketIndexEntry)
	if err != nil {
		return err
	}
	open, err := s.t.index(bucketIndexOpen)
	if err != nil {
		return err
	}

	previous, err := s.Get(span.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return err
	case previous.EntryID != span.EntryID:
		if err := byEntry.Delete([]byte(compositeKey(idKey(previous.EntryID), idKey(span.ID)))); err != nil {
			return err
		}
	}

	if err := putValue(s.t, bucketSpans, idKey(span.ID), span); err != nil {
		return err
	}
	if err := byEntry.Put([]byte(compositeKey(idKey(span.EntryID), idKey(span.ID))), indexMarker); err != nil {
		return err
	}
	if span.IsOpen() {
		return open.Put([]byte(idKey(span.ID)), indexMarker)
	}
	return open.Delete([]byte(idKey(span.ID)))
}

func (s *spanStore) Delete(id int64) error {
	if err := s.t.check(true); err != nil {
		return err
	}
	span, err := s.Get(id)
	if err != nil {
		return err
	}
	b, err := s.t.bucket(bucketSpans)
	if err != nil {
		return err
	}
	byEntry, err := s.t.index(bucketIndexEntry)
	if err != nil {
		return err
	}
	open, err := s.t.index(bucketIndexOpen)
	if err != nil {
		return err
	}
	if err := b.Delete([]byte(idKey(id))); err != nil {
		return err
	}
	if err := byEntry.Delete([]byte(compositeKey(idKey(span.EntryID), idKey(id)))); err != nil {
		return err
	}
	return open.Delete([]byte(idKey(id)))
}
