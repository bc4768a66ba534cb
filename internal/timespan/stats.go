package timespan

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goodtune/worklog/internal/storage"
	"github.com/shopspring/decimal"
)

// DailyStat sums the hours recorded on one day.
type DailyStat struct {
	Date          string                       `json:"date"`
	TotalHours    float64                      `json:"total_hours"`
	CategoryHours map[storage.Category]float64 `json:"category_hours"`
}

// Stats consolidates every entry dated within [startDate, endDate] and
// returns per-day totals ordered by date. Days without entries are omitted.
func (l *Ledger) Stats(ctx context.Context, startDate, endDate string) ([]DailyStat, error) {
	from, err := time.Parse(DateLayout, startDate)
	if err != nil {
		return nil, invalidf("start_date %q is not YYYY-MM-DD", startDate)
	}
	to, err := time.Parse(DateLayout, endDate)
	if err != nil {
		return nil, invalidf("end_date %q is not YYYY-MM-DD", endDate)
	}
	if to.Before(from) {
		return nil, invalidf("end_date %s is before start_date %s", endDate, startDate)
	}

	inRange := func(entry storage.LogEntry) bool {
		return entry.Date >= startDate && entry.Date <= endDate
	}

	var stats []DailyStat
	err = l.run(ctx, "stats", func(t *turn) error {
		entries, err := t.tx.Entries().List()
		if err != nil {
			return fmt.Errorf("failed to list log entries: %w", err)
		}
		for _, entry := range entries {
			if inRange(entry) {
				t.touch(entry.ID, 0)
			}
		}
		t.afterSettle(func() error {
			entries, err := t.tx.Entries().List()
			if err != nil {
				return fmt.Errorf("failed to list log entries: %w", err)
			}
			stats = dailyStats(entries, inRange)
			return nil
		})
		return nil
	})
	return stats, err
}

func dailyStats(entries []storage.LogEntry, keep func(storage.LogEntry) bool) []DailyStat {
	type day struct {
		total      decimal.Decimal
		categories map[storage.Category]decimal.Decimal
	}
	days := make(map[string]*day)
	var order []string

	for _, entry := range entries {
		if !keep(entry) {
			continue
		}
		d, ok := days[entry.Date]
		if !ok {
			d = &day{categories: make(map[storage.Category]decimal.Decimal)}
			days[entry.Date] = d
			order = append(order, entry.Date)
		}
		hours := decimal.NewFromFloat(entry.Hours)
		d.total = d.total.Add(hours)
		d.categories[entry.Category] = d.categories[entry.Category].Add(hours)
	}

	sort.Strings(order)
	stats := make([]DailyStat, 0, len(order))
	for _, date := range order {
		d := days[date]
		stat := DailyStat{
			Date:          date,
			TotalHours:    d.total.InexactFloat64(),
			CategoryHours: make(map[storage.Category]float64, len(d.categories)),
		}
		for category, hours := range d.categories {
			stat.CategoryHours[category] = hours.InexactFloat64()
		}
		stats = append(stats, stat)
	}
	return stats
}
