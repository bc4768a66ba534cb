package timespan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goodtune/worklog/internal/metrics"
	"github.com/goodtune/worklog/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// Config holds ledger configuration
type Config struct {
	GapTolerance time.Duration

	// EntryCacheSize bounds the entry read cache. Zero disables it.
	EntryCacheSize int
}

// Ledger records time spans against log entries. Every operation runs as one
// storage transaction: normalize, resolve open-span conflicts, mutate, then
// consolidate and re-aggregate each affected entry.
type Ledger struct {
	store  storage.Store
	clock  Clock
	gap    time.Duration
	cache  *lru.Cache[int64, storage.LogEntry]
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewLedger creates a ledger over store. A nil clock uses RealClock and a
// zero gap tolerance uses DefaultGapTolerance.
func NewLedger(store storage.Store, config Config, clock Clock, logger zerolog.Logger) (*Ledger, error) {
	if config.GapTolerance == 0 {
		config.GapTolerance = DefaultGapTolerance
	}
	if clock == nil {
		clock = RealClock{}
	}

	l := &Ledger{
		store:  store,
		clock:  clock,
		gap:    config.GapTolerance,
		logger: logger.With().Str("component", "ledger").Logger(),
	}

	if config.EntryCacheSize > 0 {
		cache, err := lru.New[int64, storage.LogEntry](config.EntryCacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create entry cache: %w", err)
		}
		l.cache = cache
	}

	return l, nil
}

// turn is the working state of one ledger operation.
type turn struct {
	tx     storage.Tx
	now    time.Time
	gap    time.Duration
	logger zerolog.Logger

	// touched maps entry IDs to the span that should survive a merge.
	touched map[int64]int64
	settled map[int64]storage.LogEntry
	running map[int64]bool
	deleted []int64
	after   []func() error

	closed   map[string]int
	merges   int
	absorbed int
	reopened int
}

func (t *turn) touch(entryID, preferID int64) {
	if prev, ok := t.touched[entryID]; ok && preferID == 0 {
		preferID = prev
	}
	t.touched[entryID] = preferID
}

// afterSettle registers fn to run once consolidation is done, still inside
// the transaction.
func (t *turn) afterSettle(fn func() error) {
	t.after = append(t.after, fn)
}

// run executes fn and consolidation as one serialised transaction.
func (l *Ledger) run(ctx context.Context, op string, fn func(t *turn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	started := time.Now()
	var done *turn
	err := l.store.Update(ctx, func(tx storage.Tx) error {
		t := &turn{
			tx:      tx,
			now:     l.clock.Now().UTC(),
			gap:     l.gap,
			logger:  l.logger.With().Str("operation", op).Logger(),
			touched: make(map[int64]int64),
			settled: make(map[int64]storage.LogEntry),
			running: make(map[int64]bool),
			closed:  make(map[string]int),
		}
		if err := fn(t); err != nil {
			return err
		}
		if err := t.settle(); err != nil {
			return err
		}
		for _, after := range t.after {
			if err := after(); err != nil {
				return err
			}
		}
		done = t
		return nil
	})
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())

	if err != nil {
		metrics.OperationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
		return err
	}
	metrics.OperationsTotal.WithLabelValues(op, "ok").Inc()

	l.publish(done)
	return nil
}

// publish records a committed turn's effects in metrics and the cache.
func (l *Ledger) publish(t *turn) {
	metrics.MergeGroupsApplied.Add(float64(t.merges))
	metrics.SpansAbsorbed.Add(float64(t.absorbed))
	metrics.SpansReopened.Add(float64(t.reopened))
	for reason, n := range t.closed {
		metrics.OpenSpansClosed.WithLabelValues(reason).Add(float64(n))
	}
	if l.cache != nil {
		// An entry with a running span can merge as time passes, so only
		// entries without one are served from the cache.
		for id, entry := range t.settled {
			if t.running[id] {
				l.cache.Remove(id)
				continue
			}
			l.cache.Add(id, entry)
		}
		for _, id := range t.deleted {
			l.cache.Remove(id)
		}
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}

// settle consolidates and re-aggregates every touched entry.
func (t *turn) settle() error {
	ids := make([]int64, 0, len(t.touched))
	for id := range t.touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, entryID := range ids {
		spans, err := t.replan(entryID, t.touched[entryID])
		if err != nil {
			return err
		}

		entry, err := t.tx.Entries().Get(entryID)
		if errors.Is(err, storage.ErrNotFound) {
			t.logger.Warn().Int64("log_entry_id", entryID).Msg("Spans reference a missing log entry")
			continue
		}
		if err != nil {
			return entryNotFound(entryID, err)
		}

		before := *entry
		aggregate(entry, spans)
		if entry.Hours != before.Hours || entry.AdditionalHours != before.AdditionalHours {
			entry.UpdatedAt = t.now
			if err := t.tx.Entries().Upsert(*entry); err != nil {
				return fmt.Errorf("failed to save log entry %d: %w", entryID, err)
			}
			t.logger.Debug().
				Int64("log_entry_id", entryID).
				Float64("hours", entry.Hours).
				Msg("Recomputed entry hours")
		}
		t.settled[entryID] = *entry
		for _, span := range spans {
			if span.IsOpen() {
				t.running[entryID] = true
			}
		}
	}
	return nil
}

// replan applies every merge plan for the entry and returns its spans.
func (t *turn) replan(entryID, preferID int64) ([]storage.TimeSpan, error) {
	spans, err := t.tx.Spans().ListByEntry(entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list spans for entry %d: %w", entryID, err)
	}

	intervals := make([]Interval, len(spans))
	byID := make(map[int64]storage.TimeSpan, len(spans))
	for i, span := range spans {
		intervals[i] = Interval{ID: span.ID, Start: span.Start, End: span.End}
		byID[span.ID] = span
	}

	plans := PlanMerges(intervals, PlanOptions{Gap: t.gap, PreferID: preferID, Now: t.now})
	if len(plans) == 0 {
		return spans, nil
	}

	for _, plan := range plans {
		keeper := byID[plan.KeeperID]
		keeper.Start = plan.Start
		keeper.End = plan.End
		if err := t.tx.Spans().Upsert(keeper); err != nil {
			return nil, fmt.Errorf("failed to save merged span %d: %w", keeper.ID, err)
		}
		for _, id := range plan.DeleteIDs {
			if err := t.tx.Spans().Delete(id); err != nil {
				return nil, fmt.Errorf("failed to delete merged span %d: %w", id, err)
			}
		}

		t.merges++
		t.absorbed += len(plan.DeleteIDs)
		t.logger.Info().
			Int64("log_entry_id", entryID).
			Int64("keeper_id", plan.KeeperID).
			Ints64("deleted_ids", plan.DeleteIDs).
			Time("start", plan.Start).
			Bool("open", plan.End == nil).
			Msg("Merged time spans")
	}

	return t.tx.Spans().ListByEntry(entryID)
}

// returnSpan loads span id into out after consolidation.
func (t *turn) returnSpan(id int64, out **storage.TimeSpan) {
	t.afterSettle(func() error {
		span, err := t.tx.Spans().Get(id)
		if err != nil {
			return spanNotFound(id, err)
		}
		*out = span
		return nil
	})
}

func (t *turn) getSpan(id int64) (*storage.TimeSpan, error) {
	span, err := t.tx.Spans().Get(id)
	if err != nil {
		return nil, spanNotFound(id, err)
	}
	return span, nil
}

func (t *turn) getEntry(id int64) (*storage.LogEntry, error) {
	entry, err := t.tx.Entries().Get(id)
	if err != nil {
		return nil, entryNotFound(id, err)
	}
	return entry, nil
}

// Start begins (or continues) work on an entry and returns its open span.
//
// An entry that already has an open span gets it back unchanged. Any other
// entry's open span is closed at now first. If the entry's most recent
// closed span ended within the gap tolerance of the rounded now it is
// reopened; otherwise a new open span starts at the rounded now.
func (l *Ledger) Start(ctx context.Context, entryID int64) (*storage.TimeSpan, error) {
	var span *storage.TimeSpan
	err := l.run(ctx, "start", func(t *turn) error {
		if _, err := t.getEntry(entryID); err != nil {
			return err
		}
		id, err := t.start(entryID)
		if err != nil {
			return err
		}
		t.returnSpan(id, &span)
		return nil
	})
	return span, err
}

// Resume is Start under the name the UI uses for a paused entry.
func (l *Ledger) Resume(ctx context.Context, entryID int64) (*storage.TimeSpan, error) {
	return l.Start(ctx, entryID)
}

func (t *turn) start(entryID int64) (int64, error) {
	open, err := t.tx.Spans().ListOpen()
	if err != nil {
		return 0, fmt.Errorf("failed to list open spans: %w", err)
	}

	var own *storage.TimeSpan
	for i := range open {
		span := open[i]
		if span.EntryID == entryID {
			if own == nil {
				own = &open[i]
			}
			continue
		}
		if err := t.closeAt(span, closeReasonSwitch); err != nil {
			return 0, err
		}
	}
	if own != nil {
		t.logger.Debug().Int64("span_id", own.ID).Msg("Entry already has an open span")
		return own.ID, nil
	}

	nowQ := RoundToGrid(t.now)
	spans, err := t.tx.Spans().ListByEntry(entryID)
	if err != nil {
		return 0, fmt.Errorf("failed to list spans for entry %d: %w", entryID, err)
	}

	if latest := mostRecentClosed(spans); latest != nil &&
		!latest.Start.After(nowQ) && nowQ.Sub(*latest.End) <= t.gap {
		latest.End = nil
		if err := t.tx.Spans().Upsert(*latest); err != nil {
			return 0, fmt.Errorf("failed to reopen span %d: %w", latest.ID, err)
		}
		t.reopened++
		t.touch(entryID, latest.ID)
		t.logger.Info().
			Int64("span_id", latest.ID).
			Int64("log_entry_id", entryID).
			Msg("Reopened recent span")
		return latest.ID, nil
	}

	span := storage.TimeSpan{EntryID: entryID, Start: nowQ, CreatedAt: t.now}
	if err := t.tx.Spans().Create(&span); err != nil {
		return 0, fmt.Errorf("failed to create span: %w", err)
	}
	t.touch(entryID, span.ID)
	t.logger.Info().
		Int64("span_id", span.ID).
		Int64("log_entry_id", entryID).
		Time("start", nowQ).
		Msg("Started time span")
	return span.ID, nil
}

// mostRecentClosed returns the closed span with the latest end, ties broken
// by the higher ID.
func mostRecentClosed(spans []storage.TimeSpan) *storage.TimeSpan {
	var latest *storage.TimeSpan
	for i := range spans {
		span := &spans[i]
		if span.End == nil {
			continue
		}
		if latest == nil || span.End.After(*latest.End) ||
			(span.End.Equal(*latest.End) && span.ID > latest.ID) {
			latest = span
		}
	}
	return latest
}

// Pause closes an open span at now. A closed span is returned unchanged.
func (l *Ledger) Pause(ctx context.Context, spanID int64) (*storage.TimeSpan, error) {
	return l.closeSpan(ctx, "pause", closeReasonPause, spanID)
}

// Stop closes an open span at now. A closed span is returned unchanged.
func (l *Ledger) Stop(ctx context.Context, spanID int64) (*storage.TimeSpan, error) {
	return l.closeSpan(ctx, "stop", closeReasonStop, spanID)
}

func (l *Ledger) closeSpan(ctx context.Context, op, reason string, spanID int64) (*storage.TimeSpan, error) {
	var span *storage.TimeSpan
	err := l.run(ctx, op, func(t *turn) error {
		current, err := t.getSpan(spanID)
		if err != nil {
			return err
		}
		if !current.IsOpen() {
			t.logger.Debug().Int64("span_id", spanID).Msg("Span already closed")
		} else if err := t.closeAt(*current, reason); err != nil {
			return err
		}
		t.returnSpan(spanID, &span)
		return nil
	})
	return span, err
}

// Adjust moves a closed span's end by deltaHours, rounded to the nearest
// quarter hour. Open spans are returned unchanged.
func (l *Ledger) Adjust(ctx context.Context, spanID int64, deltaHours float64) (*storage.TimeSpan, error) {
	var span *storage.TimeSpan
	err := l.run(ctx, "adjust", func(t *turn) error {
		if err := checkHours("hours", deltaHours); err != nil {
			return err
		}
		current, err := t.getSpan(spanID)
		if err != nil {
			return err
		}
		if !current.IsOpen() {
			end := current.End.Add(HoursToDuration(deltaHours))
			if err := t.rewrite(*current, current.Start, &end); err != nil {
				return err
			}
		} else {
			t.logger.Debug().Int64("span_id", spanID).Msg("Cannot adjust an open span")
		}
		t.returnSpan(spanID, &span)
		return nil
	})
	return span, err
}

// Update replaces a span's boundaries. A nil end reopens the span.
func (l *Ledger) Update(ctx context.Context, spanID int64, start time.Time, end *time.Time) (*storage.TimeSpan, error) {
	var span *storage.TimeSpan
	err := l.run(ctx, "update", func(t *turn) error {
		current, err := t.getSpan(spanID)
		if err != nil {
			return err
		}
		if err := t.rewrite(*current, start, end); err != nil {
			return err
		}
		t.returnSpan(spanID, &span)
		return nil
	})
	return span, err
}

func (t *turn) rewrite(span storage.TimeSpan, start time.Time, end *time.Time) error {
	span.Start, span.End = NormalizeSpan(start, end)
	if err := t.resolveOpen(span.Start, span.End, span.ID); err != nil {
		return err
	}
	if err := t.tx.Spans().Upsert(span); err != nil {
		return fmt.Errorf("failed to save span %d: %w", span.ID, err)
	}
	t.touch(span.EntryID, span.ID)
	return nil
}

// Create records a span for an entry. A nil end creates a running span.
func (l *Ledger) Create(ctx context.Context, entryID int64, start time.Time, end *time.Time) (*storage.TimeSpan, error) {
	var span *storage.TimeSpan
	err := l.run(ctx, "create", func(t *turn) error {
		if _, err := t.getEntry(entryID); err != nil {
			return err
		}

		created := storage.TimeSpan{EntryID: entryID, CreatedAt: t.now}
		created.Start, created.End = NormalizeSpan(start, end)
		if err := t.resolveOpen(created.Start, created.End, 0); err != nil {
			return err
		}
		if err := t.tx.Spans().Create(&created); err != nil {
			return fmt.Errorf("failed to create span: %w", err)
		}
		t.touch(entryID, created.ID)
		t.returnSpan(created.ID, &span)
		return nil
	})
	return span, err
}

// Delete removes a span and re-aggregates its entry.
func (l *Ledger) Delete(ctx context.Context, spanID int64) error {
	return l.run(ctx, "delete", func(t *turn) error {
		span, err := t.getSpan(spanID)
		if err != nil {
			return err
		}
		if err := t.tx.Spans().Delete(spanID); err != nil {
			return fmt.Errorf("failed to delete span %d: %w", spanID, err)
		}
		t.touch(span.EntryID, 0)
		t.logger.Info().Int64("span_id", spanID).Int64("log_entry_id", span.EntryID).Msg("Deleted time span")
		return nil
	})
}

// Spans consolidates an entry's spans and returns them ordered by start.
func (l *Ledger) Spans(ctx context.Context, entryID int64) ([]storage.TimeSpan, error) {
	var spans []storage.TimeSpan
	err := l.run(ctx, "list", func(t *turn) error {
		if _, err := t.getEntry(entryID); err != nil {
			return err
		}
		t.touch(entryID, 0)
		t.afterSettle(func() error {
			var err error
			spans, err = t.tx.Spans().ListByEntry(entryID)
			return err
		})
		return nil
	})
	return spans, err
}

// ActiveSpan returns the running span, or nil when nothing is running.
func (l *Ledger) ActiveSpan(ctx context.Context) (*storage.TimeSpan, error) {
	var active *storage.TimeSpan
	err := l.store.View(ctx, func(tx storage.Tx) error {
		open, err := tx.Spans().ListOpen()
		if err != nil {
			return fmt.Errorf("failed to list open spans: %w", err)
		}
		if len(open) > 0 {
			latest := open[len(open)-1]
			active = &latest
		}
		return nil
	})
	return active, err
}
