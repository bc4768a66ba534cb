package timespan

import (
	"sort"
	"time"
)

// Interval is the planner's view of a span.
type Interval struct {
	ID    int64
	Start time.Time
	End   *time.Time
}

// PlanOptions controls how PlanMerges groups intervals.
type PlanOptions struct {
	// Gap is the largest distance between a group's running end and the
	// next start that still joins the group. Zero merges only overlapping or
	// touching intervals.
	Gap time.Duration

	// PreferID, when it belongs to a group, becomes that group's keeper.
	PreferID int64

	// Now is the effective end of open intervals that started before it.
	Now time.Time
}

// MergePlan rewrites KeeperID to [Start, End) and deletes DeleteIDs.
// A nil End means the merged span is open.
type MergePlan struct {
	KeeperID  int64
	Start     time.Time
	End       *time.Time
	DeleteIDs []int64
}

// PlanMerges groups connectable intervals and returns one plan per group of
// two or more. The input slice is left untouched and the result does not
// depend on its order.
func PlanMerges(spans []Interval, opts PlanOptions) []MergePlan {
	if len(spans) < 2 {
		return nil
	}

	gap := opts.Gap
	if gap < 0 {
		gap = 0
	}

	sorted := make([]Interval, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	var plans []MergePlan
	group := []Interval{sorted[0]}
	groupEnd := effectiveEnd(sorted[0], opts.Now)

	for _, span := range sorted[1:] {
		if !span.Start.After(groupEnd.Add(gap)) {
			group = append(group, span)
			if end := effectiveEnd(span, opts.Now); end.After(groupEnd) {
				groupEnd = end
			}
			continue
		}
		if plan, ok := planGroup(group, opts.PreferID); ok {
			plans = append(plans, plan)
		}
		group = []Interval{span}
		groupEnd = effectiveEnd(span, opts.Now)
	}
	if plan, ok := planGroup(group, opts.PreferID); ok {
		plans = append(plans, plan)
	}

	return plans
}

// effectiveEnd treats an open interval as running until now, but never
// before its own start.
func effectiveEnd(span Interval, now time.Time) time.Time {
	if span.End != nil {
		return *span.End
	}
	if now.Before(span.Start) {
		return span.Start
	}
	return now
}

func planGroup(group []Interval, preferID int64) (MergePlan, bool) {
	if len(group) < 2 {
		return MergePlan{}, false
	}

	keeper := group[0].ID
	preferred := false
	start := group[0].Start
	var maxEnd time.Time
	open := false

	for _, span := range group {
		if span.ID == preferID {
			preferred = true
		}
		if span.ID < keeper {
			keeper = span.ID
		}
		if span.Start.Before(start) {
			start = span.Start
		}
		if span.End == nil {
			open = true
		} else if span.End.After(maxEnd) {
			maxEnd = *span.End
		}
	}
	if preferred {
		keeper = preferID
	}

	plan := MergePlan{KeeperID: keeper, Start: start}
	if !open {
		if !maxEnd.After(start) {
			maxEnd = start.Add(MinDuration)
		}
		plan.End = &maxEnd
	}

	for _, span := range group {
		if span.ID != keeper {
			plan.DeleteIDs = append(plan.DeleteIDs, span.ID)
		}
	}
	sort.Slice(plan.DeleteIDs, func(i, j int) bool { return plan.DeleteIDs[i] < plan.DeleteIDs[j] })

	return plan, true
}
