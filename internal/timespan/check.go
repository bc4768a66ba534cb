package timespan

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/worklog/internal/storage"
)

// Kinds of problems reported by Inspect.
const (
	FindingOverlap       = "overlap"
	FindingPendingMerge  = "pending_merge"
	FindingMultipleOpen  = "multiple_open"
	FindingHoursMismatch = "hours_mismatch"
)

// Finding is one consistency problem in stored data.
type Finding struct {
	Kind    string  `json:"kind"`
	EntryID int64   `json:"log_entry_id,omitempty"`
	SpanIDs []int64 `json:"span_ids,omitempty"`
	Detail  string  `json:"detail"`
}

// Report summarises a consistency scan.
type Report struct {
	Entries  int       `json:"entries"`
	Spans    int       `json:"spans"`
	Open     int       `json:"open"`
	Findings []Finding `json:"findings"`
}

// OK reports whether the scan found nothing to fix.
func (r *Report) OK() bool {
	return len(r.Findings) == 0
}

// Inspect scans every entry without modifying anything.
func (l *Ledger) Inspect(ctx context.Context) (*Report, error) {
	now := l.clock.Now().UTC()
	report := &Report{Findings: []Finding{}}

	err := l.store.View(ctx, func(tx storage.Tx) error {
		entries, err := tx.Entries().List()
		if err != nil {
			return fmt.Errorf("failed to list log entries: %w", err)
		}
		report.Entries = len(entries)

		for _, entry := range entries {
			spans, err := tx.Spans().ListByEntry(entry.ID)
			if err != nil {
				return fmt.Errorf("failed to list spans for entry %d: %w", entry.ID, err)
			}
			report.Spans += len(spans)
			report.Findings = append(report.Findings, l.inspectEntry(entry, spans, now)...)
		}

		open, err := tx.Spans().ListOpen()
		if err != nil {
			return fmt.Errorf("failed to list open spans: %w", err)
		}
		report.Open = len(open)
		if len(open) > 1 {
			ids := make([]int64, len(open))
			for i, span := range open {
				ids[i] = span.ID
			}
			report.Findings = append(report.Findings, Finding{
				Kind:    FindingMultipleOpen,
				SpanIDs: ids,
				Detail:  fmt.Sprintf("%d spans are running", len(open)),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (l *Ledger) inspectEntry(entry storage.LogEntry, spans []storage.TimeSpan, now time.Time) []Finding {
	var findings []Finding

	for i := 1; i < len(spans); i++ {
		prev, next := spans[i-1], spans[i]
		if prev.End == nil || next.Start.Before(*prev.End) {
			findings = append(findings, Finding{
				Kind:    FindingOverlap,
				EntryID: entry.ID,
				SpanIDs: []int64{prev.ID, next.ID},
				Detail:  fmt.Sprintf("span %d starts before span %d ends", next.ID, prev.ID),
			})
		}
	}

	intervals := make([]Interval, len(spans))
	for i, span := range spans {
		intervals[i] = Interval{ID: span.ID, Start: span.Start, End: span.End}
	}
	for _, plan := range PlanMerges(intervals, PlanOptions{Gap: l.gap, Now: now}) {
		findings = append(findings, Finding{
			Kind:    FindingPendingMerge,
			EntryID: entry.ID,
			SpanIDs: append([]int64{plan.KeeperID}, plan.DeleteIDs...),
			Detail:  fmt.Sprintf("%d spans would merge into span %d", len(plan.DeleteIDs)+1, plan.KeeperID),
		})
	}

	if want := TotalHours(spans, entry.AdditionalHours); want != entry.Hours {
		findings = append(findings, Finding{
			Kind:    FindingHoursMismatch,
			EntryID: entry.ID,
			Detail:  fmt.Sprintf("stored %.2fh, spans give %.2fh", entry.Hours, want),
		})
	}

	return findings
}

// Consolidate replans and re-aggregates every entry. Of several running
// spans only the one that started last is left open.
func (l *Ledger) Consolidate(ctx context.Context) error {
	return l.run(ctx, "consolidate", func(t *turn) error {
		open, err := t.tx.Spans().ListOpen()
		if err != nil {
			return fmt.Errorf("failed to list open spans: %w", err)
		}
		for i := 0; i+1 < len(open); i++ {
			if err := t.closeAt(open[i], closeReasonOverlap); err != nil {
				return err
			}
		}

		entries, err := t.tx.Entries().List()
		if err != nil {
			return fmt.Errorf("failed to list log entries: %w", err)
		}
		for _, entry := range entries {
			t.touch(entry.ID, 0)
		}
		return nil
	})
}
