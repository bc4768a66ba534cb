package timespan

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Grid is the boundary every stored timestamp is rounded to.
	Grid = 15 * time.Minute

	// MinDuration is the shortest closed span the ledger stores.
	MinDuration = 15 * time.Minute

	// DefaultGapTolerance is the largest gap across which spans still merge.
	DefaultGapTolerance = 15 * time.Minute

	// MaxHours bounds the magnitude of hour counts accepted from callers,
	// well inside the range of time.Duration.
	MaxHours = 100000
)

var quartersPerHour = decimal.NewFromInt(4)

// RoundToGrid rounds t to the nearest 15 minute boundary counted from
// midnight of t's UTC day. Exact midpoints round up, and rounding past the
// last boundary of a day yields midnight of the next day.
func RoundToGrid(t time.Time) time.Time {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := t.Sub(midnight)
	steps := (offset + Grid/2) / Grid
	return midnight.Add(steps * Grid)
}

// NormalizeSpan rounds both boundaries to the grid. A present end that does
// not fall after the rounded start is moved to start + MinDuration; a nil end
// stays nil.
func NormalizeSpan(start time.Time, end *time.Time) (time.Time, *time.Time) {
	start = RoundToGrid(start)
	if end == nil {
		return start, nil
	}
	e := RoundToGrid(*end)
	if !e.After(start) {
		e = start.Add(MinDuration)
	}
	return start, &e
}

// checkHours rejects hour counts that cannot be rounded or converted to a
// duration.
func checkHours(field string, h float64) error {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return invalidf("%s must be a finite number", field)
	}
	if math.Abs(h) > MaxHours {
		return invalidf("%s must be between -%d and %d", field, MaxHours, MaxHours)
	}
	return nil
}

// RoundHours rounds h to the nearest quarter hour, halves away from zero.
// h must be finite.
func RoundHours(h float64) float64 {
	return roundQuarter(decimal.NewFromFloat(h)).InexactFloat64()
}

func roundQuarter(d decimal.Decimal) decimal.Decimal {
	return d.Mul(quartersPerHour).Round(0).Div(quartersPerHour)
}

// HoursToDuration converts a quarter-rounded hour count to a duration.
// h must be finite and within MaxHours.
func HoursToDuration(h float64) time.Duration {
	minutes := roundQuarter(decimal.NewFromFloat(h)).Mul(decimal.NewFromInt(60)).IntPart()
	return time.Duration(minutes) * time.Minute
}
