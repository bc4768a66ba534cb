package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/goodtune/worklog/internal/storage"
	"github.com/redis/go-redis/v9"
)

// redisTx buffers writes in memory. Reads consult the buffer first so a
// transaction sees its own writes before they are committed.
type redisTx struct {
	ctx      context.Context
	client   *redis.Client
	writable bool

	// Pending state; a nil value marks a deletion.
	entries map[int64]*storage.LogEntry
	spans   map[int64]*storage.TimeSpan

	// Persisted state captured before the first write, used to clean up
	// index memberships on commit. A nil value means the record was new.
	prevEntries map[int64]*storage.LogEntry
	prevSpans   map[int64]*storage.TimeSpan
}

func newTx(ctx context.Context, client *redis.Client, writable bool) *redisTx {
	return &redisTx{
		ctx:         ctx,
		client:      client,
		writable:    writable,
		entries:     make(map[int64]*storage.LogEntry),
		spans:       make(map[int64]*storage.TimeSpan),
		prevEntries: make(map[int64]*storage.LogEntry),
		prevSpans:   make(map[int64]*storage.TimeSpan),
	}
}

// Entries returns the entry store bound to this transaction.
func (t *redisTx) Entries() storage.EntryStore { return &entryStore{t: t} }

// Spans returns the span store bound to this transaction.
func (t *redisTx) Spans() storage.SpanStore { return &spanStore{t: t} }

func (t *redisTx) check(write bool) error {
	if err := t.ctx.Err(); err != nil {
		return err
	}
	if write && !t.writable {
		return storage.ErrReadOnly
	}
	return nil
}

func (t *redisTx) members(key string) ([]int64, error) {
	raw, err := t.client.SMembers(t.ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return parseIDs(raw)
}

func (t *redisTx) loadEntry(id int64) (*storage.LogEntry, error) {
	data, err := t.client.HGetAll(t.ctx, entryKey(id)).Result()
	if err != nil {
		return nil, err
	}
	return parseLogEntry(data)
}

func (t *redisTx) loadSpan(id int64) (*storage.TimeSpan, error) {
	data, err := t.client.HGetAll(t.ctx, spanKey(id)).Result()
	if err != nil {
		return nil, err
	}
	return parseTimeSpan(data)
}

func (t *redisTx) rememberEntry(id int64) error {
	if _, ok := t.prevEntries[id]; ok {
		return nil
	}
	prev, err := t.loadEntry(id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	t.prevEntries[id] = prev
	return nil
}

func (t *redisTx) rememberSpan(id int64) error {
	if _, ok := t.prevSpans[id]; ok {
		return nil
	}
	prev, err := t.loadSpan(id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	t.prevSpans[id] = prev
	return nil
}

// commit writes the buffered state in one MULTI/EXEC, aborting if the
// write lock no longer carries token.
func (t *redisTx) commit(token string) error {
	if len(t.entries) == 0 && len(t.spans) == 0 {
		return nil
	}

	return t.client.Watch(t.ctx, func(rtx *redis.Tx) error {
		owner, err := rtx.Get(t.ctx, lockKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if owner != token {
			return ErrLockLost
		}

		_, err = rtx.TxPipelined(t.ctx, func(pipe redis.Pipeliner) error {
			for _, id := range sortedKeys(t.entries) {
				if entry := t.entries[id]; entry != nil {
					t.writeEntry(pipe, t.prevEntries[id], entry)
				} else {
					t.deleteEntry(pipe, t.prevEntries[id])
				}
			}
			for _, id := range sortedKeys(t.spans) {
				if span := t.spans[id]; span != nil {
					t.writeSpan(pipe, t.prevSpans[id], *span)
				} else {
					t.deleteSpan(pipe, t.prevSpans[id])
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	}, lockKey)
}

func (t *redisTx) writeEntry(pipe redis.Pipeliner, prev, entry *storage.LogEntry) {
	ctx := t.ctx
	member := strconv.FormatInt(entry.ID, 10)

	pipe.HSet(ctx, entryKey(entry.ID), logEntryFields(*entry))
	pipe.SAdd(ctx, entriesAllKey, member)
	pipe.SAdd(ctx, entryDateKey(entry.Date), member)
	if entry.UUID != "" {
		pipe.Set(ctx, entryUUIDKey(entry.UUID), member, 0)
	}

	if prev == nil {
		return
	}
	if prev.Date != entry.Date {
		pipe.SRem(ctx, entryDateKey(prev.Date), member)
	}
	if prev.UUID != "" && prev.UUID != entry.UUID {
		pipe.Del(ctx, entryUUIDKey(prev.UUID))
	}
}

func (t *redisTx) deleteEntry(pipe redis.Pipeliner, prev *storage.LogEntry) {
	if prev == nil {
		return
	}
	ctx := t.ctx
	member := strconv.FormatInt(prev.ID, 10)

	pipe.Del(ctx, entryKey(prev.ID))
	pipe.SRem(ctx, entriesAllKey, member)
	pipe.SRem(ctx, entryDateKey(prev.Date), member)
	if prev.UUID != "" {
		pipe.Del(ctx, entryUUIDKey(prev.UUID))
	}
}

func (t *redisTx) writeSpan(pipe redis.Pipeliner, prev *storage.TimeSpan, span storage.TimeSpan) {
	ctx := t.ctx
	member := strconv.FormatInt(span.ID, 10)

	pipe.HSet(ctx, spanKey(span.ID), timeSpanFields(span))
	pipe.SAdd(ctx, entrySpansKey(span.EntryID), member)
	if span.IsOpen() {
		pipe.SAdd(ctx, openSpansKey, member)
	} else {
		pipe.SRem(ctx, openSpansKey, member)
	}

	if prev != nil && prev.EntryID != span.EntryID {
		pipe.SRem(ctx, entrySpansKey(prev.EntryID), member)
	}
}

func (t *redisTx) deleteSpan(pipe redis.Pipeliner, prev *storage.TimeSpan) {
	if prev == nil {
		// Created and deleted within this transaction.
		return
	}
	ctx := t.ctx
	member := strconv.FormatInt(prev.ID, 10)

	pipe.Del(ctx, spanKey(prev.ID))
	pipe.SRem(ctx, entrySpansKey(prev.EntryID), member)
	pipe.SRem(ctx, openSpansKey, member)
}
