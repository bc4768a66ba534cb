package timespan

import (
	"testing"
	"time"

	"github.com/goodtune/worklog/internal/storage"
)

func TestConflictReason(t *testing.T) {
	now := at("11:00:00")
	active := storage.TimeSpan{ID: 1, EntryID: 1, Start: at("10:00:00")}

	tests := []struct {
		name  string
		start time.Time
		end   *time.Time
		want  string
	}{
		{"future start", at("12:00:00"), ptr(at("12:15:00")), closeReasonFutureEdit},
		{"future open start", at("11:15:00"), nil, closeReasonFutureEdit},
		{"inside window", at("10:15:00"), ptr(at("10:30:00")), closeReasonOverlap},
		{"touches window start", at("09:30:00"), ptr(at("10:00:00")), closeReasonOverlap},
		{"starts at now", at("11:00:00"), ptr(at("11:15:00")), closeReasonOverlap},
		{"open incoming before now", at("10:30:00"), nil, closeReasonOverlap},
		{"entirely before", at("08:00:00"), ptr(at("09:00:00")), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConflictReason(active, tt.start, tt.end, now); got != tt.want {
				t.Errorf("ConflictReason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConflictReasonOpenSpanStartingAfterNow(t *testing.T) {
	now := at("09:00:00")
	future := storage.TimeSpan{ID: 1, Start: at("10:00:00")}

	if got := ConflictReason(future, at("08:00:00"), ptr(at("08:30:00")), now); got != "" {
		t.Fatalf("expected no conflict, got %q", got)
	}
	if got := ConflictReason(future, at("08:00:00"), ptr(at("10:00:00")), now); got != closeReasonOverlap {
		t.Fatalf("expected overlap, got %q", got)
	}
}
