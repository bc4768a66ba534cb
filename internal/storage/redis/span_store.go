package redis

import (
	"errors"

	"github.com/goodtune/worklog/internal/storage"
)

type spanStore struct {
	t *redisTx
}

// Get retrieves a span by ID
func (s *spanStore) Get(id int64) (*storage.TimeSpan, error) {
	if err := s.t.check(false); err != nil {
		return nil, err
	}
	if pending, ok := s.t.spans[id]; ok {
		if pending == nil {
			return nil, storage.ErrNotFound
		}
		span := *pending
		return &span, nil
	}
	return s.t.loadSpan(id)
}

// ListByEntry returns an entry's spans ordered by start
func (s *spanStore) ListByEntry(entryID int64) ([]storage.TimeSpan, error) {
	return s.collect(entrySpansKey(entryID), func(span storage.TimeSpan) bool {
		return span.EntryID == entryID
	})
}

// ListOpen returns all running spans
func (s *spanStore) ListOpen() ([]storage.TimeSpan, error) {
	return s.collect(openSpansKey, storage.TimeSpan.IsOpen)
}

func (s *spanStore) collect(key string, keep func(storage.TimeSpan) bool) ([]storage.TimeSpan, error) {
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
	for id, pending := range s.t.spans {
		if pending != nil && keep(*pending) {
			seen[id] = true
		}
	}

	spans := make([]storage.TimeSpan, 0, len(seen))
	for id := range seen {
		span, err := s.Get(id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if keep(*span) {
			spans = append(spans, *span)
		}
	}
	storage.SortSpans(spans)
	return spans, nil
}

// Create allocates an ID and buffers the span
func (s *spanStore) Create(span *storage.TimeSpan) error {
	if err := s.t.check(true); err != nil {
		return err
	}
	id, err := s.t.client.Incr(s.t.ctx, spanSeqKey).Result()
	if err != nil {
		return err
	}
	span.ID = id
	return s.Upsert(*span)
}

// Upsert buffers the span for commit
func (s *spanStore) Upsert(span storage.TimeSpan) error {
	if err := s.t.check(true); err != nil {
		return err
	}
	if err := s.t.rememberSpan(span.ID); err != nil {
		return err
	}
	s.t.spans[span.ID] = &span
	return nil
}

// Delete buffers removal of the span
func (s *spanStore) Delete(id int64) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	if err := s.t.check(true); err != nil {
		return err
	}
	if err := s.t.rememberSpan(id); err != nil {
		return err
	}
	s.t.spans[id] = nil
	return nil
}
