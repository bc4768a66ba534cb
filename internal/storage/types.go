package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Category classifies the kind of work a log entry records.
type Category string

const (
	CategoryRoutineWork         Category = "Routine Work"
	CategoryOKR                 Category = "OKR"
	CategoryTeamContribution    Category = "Team Contribution"
	CategoryCompanyContribution Category = "Company Contribution"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryRoutineWork,
	CategoryOKR,
	CategoryTeamContribution,
	CategoryCompanyContribution,
}

// ParseCategory matches s against the known categories, ignoring case.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid category: %q", s)
}

// UnmarshalJSON implements json.Unmarshaler and rejects unknown categories.
func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*c = ""
		return nil
	}
	parsed, err := ParseCategory(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// StatusCompleted is the default entry status.
const StatusCompleted = "Completed"

// LogEntry is a unit of recorded work.
type LogEntry struct {
	ID              int64     `json:"id"`
	UUID            string    `json:"uuid"`
	Date            string    `json:"date"`
	Category        Category  `json:"category"`
	Project         string    `json:"project"`
	Task            string    `json:"task"`
	Status          string    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	Hours           float64   `json:"hours"`
	AdditionalHours float64   `json:"additional_hours"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TimeSpan is a half-open work interval attached to a log entry.
// A nil End means the span is still running.
type TimeSpan struct {
	ID        int64      `json:"id"`
	EntryID   int64      `json:"log_entry_id"`
	Start     time.Time  `json:"start_timestamp"`
	End       *time.Time `json:"end_timestamp"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsOpen reports whether the span has no end.
func (s TimeSpan) IsOpen() bool {
	return s.End == nil
}

// Duration returns the closed length of the span, or zero when open.
func (s TimeSpan) Duration() time.Duration {
	if s.End == nil {
		return 0
	}
	return s.End.Sub(s.Start)
}

// SortSpans orders spans by (Start, ID).
func SortSpans(spans []TimeSpan) {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start.Equal(spans[j].Start) {
			return spans[i].ID < spans[j].ID
		}
		return spans[i].Start.Before(spans[j].Start)
	})
}
