package timespan

import (
	"fmt"
	"time"

	"github.com/goodtune/worklog/internal/storage"
)

// Reasons an open span gets closed.
const (
	closeReasonPause      = "pause"
	closeReasonStop       = "stop"
	closeReasonSwitch     = "switch"
	closeReasonFutureEdit = "future_edit"
	closeReasonOverlap    = "overlap"
)

// ConflictReason reports whether the open span must be closed before a span
// with the incoming boundaries is written, and why. It returns "" when the
// open span can keep running.
//
// Incoming boundaries that start after now always close it. Otherwise it is
// closed only if the incoming interval overlaps or touches the window the
// open span has covered so far, [open.Start, now]. An incoming span without
// an end is treated as running until now.
func ConflictReason(open storage.TimeSpan, start time.Time, end *time.Time, now time.Time) string {
	if start.After(now) {
		return closeReasonFutureEdit
	}

	windowEnd := now
	if windowEnd.Before(open.Start) {
		windowEnd = open.Start
	}

	incomingEnd := now
	if end != nil {
		incomingEnd = *end
	}

	if !start.After(windowEnd) && !open.Start.After(incomingEnd) {
		return closeReasonOverlap
	}
	return ""
}

// resolveOpen closes every open span, other than excludeID, that conflicts
// with the incoming boundaries. It runs before the mutation is persisted.
func (t *turn) resolveOpen(start time.Time, end *time.Time, excludeID int64) error {
	open, err := t.tx.Spans().ListOpen()
	if err != nil {
		return fmt.Errorf("failed to list open spans: %w", err)
	}

	for _, span := range open {
		if span.ID == excludeID {
			continue
		}
		reason := ConflictReason(span, start, end, t.now)
		if reason == "" {
			t.logger.Debug().
				Int64("span_id", span.ID).
				Time("incoming_start", start).
				Msg("Open span left running")
			continue
		}
		if err := t.closeAt(span, reason); err != nil {
			return err
		}
	}
	return nil
}

// closeAt closes an open span at the turn's now.
func (t *turn) closeAt(span storage.TimeSpan, reason string) error {
	now := t.now
	span.Start, span.End = NormalizeSpan(span.Start, &now)
	if err := t.tx.Spans().Upsert(span); err != nil {
		return fmt.Errorf("failed to close span %d: %w", span.ID, err)
	}

	t.touch(span.EntryID, span.ID)
	t.closed[reason]++

	t.logger.Info().
		Int64("span_id", span.ID).
		Int64("log_entry_id", span.EntryID).
		Time("end", *span.End).
		Str("reason", reason).
		Msg("Closed open span")
	return nil
}
