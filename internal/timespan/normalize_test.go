package timespan

import (
	"errors"
	"math"
	"testing"
	"time"
)

func at(hhmmss string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", "2024-03-04 "+hhmmss)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time {
	return &t
}

func TestRoundToGrid(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"on boundary", at("10:15:00"), at("10:15:00")},
		{"just below midpoint", at("10:07:29"), at("10:00:00")},
		{"midpoint rounds up", at("10:07:30"), at("10:15:00")},
		{"sub-second below midpoint", at("10:07:29").Add(999 * time.Millisecond), at("10:00:00")},
		{"just above boundary", at("10:16:00"), at("10:15:00")},
		{"late in the day", at("23:52:29"), at("23:45:00")},
		{"rolls into next day", at("23:59:50"), at("00:00:00").Add(24 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoundToGrid(tt.in); !got.Equal(tt.want) {
				t.Errorf("RoundToGrid(%s) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoundToGridConvertsToUTC(t *testing.T) {
	zone := time.FixedZone("UTC+5:30", 5*3600+1800)
	in := time.Date(2024, 3, 4, 15, 40, 0, 0, zone) // 10:10 UTC
	got := RoundToGrid(in)
	if got.Location() != time.UTC {
		t.Fatalf("expected UTC result, got %s", got.Location())
	}
	if !got.Equal(at("10:15:00")) {
		t.Fatalf("expected 10:15 UTC, got %s", got)
	}
}

func TestNormalizeSpan(t *testing.T) {
	tests := []struct {
		name      string
		start     time.Time
		end       *time.Time
		wantStart time.Time
		wantEnd   *time.Time
	}{
		{"rounds both ends", at("09:58:00"), ptr(at("10:31:00")), at("10:00:00"), ptr(at("10:30:00"))},
		{"open stays open", at("09:58:00"), nil, at("10:00:00"), nil},
		{"equal ends get minimum", at("10:00:00"), ptr(at("10:05:00")), at("10:00:00"), ptr(at("10:15:00"))},
		{"inverted gets minimum", at("11:00:00"), ptr(at("10:00:00")), at("11:00:00"), ptr(at("11:15:00"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := NormalizeSpan(tt.start, tt.end)
			if !start.Equal(tt.wantStart) {
				t.Errorf("start = %s, want %s", start, tt.wantStart)
			}
			switch {
			case tt.wantEnd == nil && end != nil:
				t.Errorf("end = %s, want open", end)
			case tt.wantEnd != nil && end == nil:
				t.Errorf("end = open, want %s", tt.wantEnd)
			case tt.wantEnd != nil && !end.Equal(*tt.wantEnd):
				t.Errorf("end = %s, want %s", end, tt.wantEnd)
			}
		})
	}
}

func TestRoundHours(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{0.1, 0},
		{0.125, 0.25},
		{0.2, 0.25},
		{0.37, 0.25},
		{0.375, 0.5},
		{1.9, 2},
		{-0.125, -0.25},
		{-0.3, -0.25},
	}

	for _, tt := range tests {
		if got := RoundHours(tt.in); got != tt.want {
			t.Errorf("RoundHours(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHoursToDuration(t *testing.T) {
	if got := HoursToDuration(0.75); got != 45*time.Minute {
		t.Fatalf("expected 45m, got %s", got)
	}
	if got := HoursToDuration(-0.3); got != -15*time.Minute {
		t.Fatalf("expected -15m, got %s", got)
	}
}

func TestCheckHours(t *testing.T) {
	tests := []struct {
		hours float64
		valid bool
	}{
		{0, true},
		{1.25, true},
		{-7.5, true},
		{MaxHours, true},
		{-MaxHours, true},
		{MaxHours + 1, false},
		{-MaxHours - 1, false},
		{math.NaN(), false},
		{math.Inf(1), false},
		{math.Inf(-1), false},
	}

	for _, tt := range tests {
		err := checkHours("hours", tt.hours)
		if tt.valid && err != nil {
			t.Errorf("checkHours(%v) = %v, want nil", tt.hours, err)
		}
		if !tt.valid && !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("checkHours(%v) = %v, want ErrInvalidRequest", tt.hours, err)
		}
	}
}
