package timespan

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/worklog/internal/config"
	"github.com/goodtune/worklog/internal/storage"
	"github.com/goodtune/worklog/internal/storage/redis"
	"github.com/rs/zerolog"
)

func openSpans(t *testing.T, store storage.Store) []storage.TimeSpan {
	t.Helper()
	var open []storage.TimeSpan
	err := store.View(context.Background(), func(tx storage.Tx) error {
		var err error
		open, err = tx.Spans().ListOpen()
		return err
	})
	if err != nil {
		t.Fatalf("list open spans: %v", err)
	}
	return open
}

// startAll starts one entry per ledger slot concurrently.
func startAll(t *testing.T, ledgers []*Ledger, entries []*storage.LogEntry) {
	t.Helper()
	var wg sync.WaitGroup
	errs := make(chan error, len(entries))
	for i, entry := range entries {
		wg.Add(1)
		go func(l *Ledger, entryID int64) {
			defer wg.Done()
			if _, err := l.Start(context.Background(), entryID); err != nil {
				errs <- fmt.Errorf("start entry %d: %w", entryID, err)
			}
		}(ledgers[i%len(ledgers)], entry.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestConcurrentStartsLeaveOneOpenSpan(t *testing.T) {
	l, store, _ := newTestLedger(t)

	entries := make([]*storage.LogEntry, 12)
	for i := range entries {
		entries[i] = createTestEntry(t, l, fmt.Sprintf("Project %d", i))
	}

	startAll(t, []*Ledger{l}, entries)

	if open := openSpans(t, store); len(open) != 1 {
		t.Fatalf("expected exactly 1 open span, got %d: %+v", len(open), open)
	}
	active, err := l.ActiveSpan(context.Background())
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active == nil {
		t.Fatalf("expected an active span")
	}
}

func TestConcurrentStartsAcrossRedisLedgers(t *testing.T) {
	mr := miniredis.RunT(t)
	clock := &TestClock{CurrentTime: at("10:00:00")}

	var stores []storage.Store
	var ledgers []*Ledger
	for i := 0; i < 2; i++ {
		store, err := redis.Open(config.RedisConfig{
			Host:         mr.Addr(),
			PoolSize:     10,
			DialTimeout:  "5s",
			ReadTimeout:  "3s",
			WriteTimeout: "3s",
			LockTimeout:  "5s",
		})
		if err != nil {
			t.Fatalf("open redis store %d: %v", i, err)
		}
		t.Cleanup(func() { _ = store.Close() })

		l, err := NewLedger(store, Config{}, clock, zerolog.Nop())
		if err != nil {
			t.Fatalf("new ledger %d: %v", i, err)
		}
		stores = append(stores, store)
		ledgers = append(ledgers, l)
	}

	entries := make([]*storage.LogEntry, 10)
	for i := range entries {
		entries[i] = createTestEntry(t, ledgers[i%2], fmt.Sprintf("Project %d", i))
	}

	startAll(t, ledgers, entries)

	for i, store := range stores {
		if open := openSpans(t, store); len(open) != 1 {
			t.Fatalf("store %d: expected exactly 1 open span, got %d: %+v", i, len(open), open)
		}
	}
}
