package timespan

import (
	"time"

	"github.com/goodtune/worklog/internal/storage"
	"github.com/shopspring/decimal"
)

var nanosPerHour = decimal.NewFromInt(int64(time.Hour))

// SettledHours sums the length of every closed span in hours. Open spans
// contribute nothing.
func SettledHours(spans []storage.TimeSpan) float64 {
	return settled(spans).InexactFloat64()
}

// TotalHours is the quarter-rounded sum of settled hours and the
// quarter-rounded manual adjustment.
func TotalHours(spans []storage.TimeSpan, additional float64) float64 {
	extra := roundQuarter(decimal.NewFromFloat(additional))
	return roundQuarter(settled(spans).Add(extra)).InexactFloat64()
}

func settled(spans []storage.TimeSpan) decimal.Decimal {
	total := decimal.Zero
	for _, span := range spans {
		if span.End == nil {
			continue
		}
		total = total.Add(decimal.NewFromInt(int64(span.End.Sub(span.Start))).Div(nanosPerHour))
	}
	return total
}

// aggregate recomputes the derived hour fields of entry from spans.
func aggregate(entry *storage.LogEntry, spans []storage.TimeSpan) {
	entry.AdditionalHours = RoundHours(entry.AdditionalHours)
	entry.Hours = TotalHours(spans, entry.AdditionalHours)
}
