package timespan

import (
	"reflect"
	"testing"
	"time"
)

func fixed(id int64, start, end string) Interval {
	return Interval{ID: id, Start: at(start), End: ptr(at(end))}
}

func running(id int64, start string) Interval {
	return Interval{ID: id, Start: at(start)}
}

func TestPlanMergesScenarioA(t *testing.T) {
	spans := []Interval{
		fixed(1, "10:00:00", "10:30:00"),
		fixed(2, "10:15:00", "10:45:00"),
		fixed(3, "11:00:00", "11:15:00"),
		fixed(4, "12:00:00", "12:15:00"),
	}

	plans := PlanMerges(spans, PlanOptions{Gap: DefaultGapTolerance, Now: at("18:00:00")})
	if len(plans) != 1 {
		t.Fatalf("expected 1 plan, got %d: %+v", len(plans), plans)
	}
	plan := plans[0]
	if plan.KeeperID != 1 {
		t.Errorf("keeper = %d, want 1", plan.KeeperID)
	}
	if !plan.Start.Equal(at("10:00:00")) || plan.End == nil || !plan.End.Equal(at("11:15:00")) {
		t.Errorf("merged range = %s-%v, want 10:00-11:15", plan.Start, plan.End)
	}
	if !reflect.DeepEqual(plan.DeleteIDs, []int64{2, 3}) {
		t.Errorf("delete ids = %v, want [2 3]", plan.DeleteIDs)
	}
}

func TestPlanMergesGapBoundary(t *testing.T) {
	tests := []struct {
		name      string
		nextStart string
		wantPlans int
	}{
		{"touching", "10:15:00", 1},
		{"15 minute gap", "10:30:00", 1},
		{"16 minute gap", "10:31:00", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans := []Interval{
				fixed(1, "10:00:00", "10:15:00"),
				{ID: 2, Start: at(tt.nextStart), End: ptr(at(tt.nextStart).Add(15 * time.Minute))},
			}
			plans := PlanMerges(spans, PlanOptions{Gap: DefaultGapTolerance, Now: at("18:00:00")})
			if len(plans) != tt.wantPlans {
				t.Fatalf("expected %d plans, got %d", tt.wantPlans, len(plans))
			}
		})
	}
}

func TestPlanMergesZeroGapOnlyTouching(t *testing.T) {
	spans := []Interval{
		fixed(1, "10:00:00", "10:15:00"),
		fixed(2, "10:15:00", "10:30:00"),
		fixed(3, "10:45:00", "11:00:00"),
	}
	plans := PlanMerges(spans, PlanOptions{Now: at("18:00:00")})
	if len(plans) != 1 || !reflect.DeepEqual(plans[0].DeleteIDs, []int64{2}) {
		t.Fatalf("expected only the touching pair to merge, got %+v", plans)
	}
}

func TestPlanMergesPreferredKeeper(t *testing.T) {
	spans := []Interval{
		fixed(1, "10:00:00", "10:30:00"),
		fixed(7, "10:15:00", "11:00:00"),
	}

	plans := PlanMerges(spans, PlanOptions{Gap: DefaultGapTolerance, PreferID: 7, Now: at("18:00:00")})
	if len(plans) != 1 || plans[0].KeeperID != 7 {
		t.Fatalf("expected span 7 to be kept, got %+v", plans)
	}
	if !reflect.DeepEqual(plans[0].DeleteIDs, []int64{1}) {
		t.Fatalf("expected span 1 deleted, got %v", plans[0].DeleteIDs)
	}

	// A preferred ID outside every group falls back to the lowest ID.
	plans = PlanMerges(spans, PlanOptions{Gap: DefaultGapTolerance, PreferID: 99, Now: at("18:00:00")})
	if len(plans) != 1 || plans[0].KeeperID != 1 {
		t.Fatalf("expected span 1 to be kept, got %+v", plans)
	}
}

func TestPlanMergesOpenSpan(t *testing.T) {
	now := at("10:30:00")

	t.Run("absorbs earlier span and stays open", func(t *testing.T) {
		spans := []Interval{
			running(2, "10:00:00"),
			fixed(1, "09:30:00", "10:00:00"),
		}
		plans := PlanMerges(spans, PlanOptions{Gap: DefaultGapTolerance, Now: now})
		if len(plans) != 1 {
			t.Fatalf("expected 1 plan, got %d", len(plans))
		}
		if plans[0].End != nil {
			t.Fatalf("expected merged span to stay open, got end %s", plans[0].End)
		}
		if !plans[0].Start.Equal(at("09:30:00")) {
			t.Fatalf("expected merged start 09:30, got %s", plans[0].Start)
		}
	})

	t.Run("does not absorb a future span", func(t *testing.T) {
		spans := []Interval{
			running(1, "10:00:00"),
			fixed(2, "11:00:00", "11:15:00"),
		}
		if plans := PlanMerges(spans, PlanOptions{Gap: DefaultGapTolerance, Now: now}); len(plans) != 0 {
			t.Fatalf("expected no plans, got %+v", plans)
		}
	})

	t.Run("open span starting after now", func(t *testing.T) {
		spans := []Interval{
			fixed(1, "10:00:00", "10:15:00"),
			running(2, "12:00:00"),
		}
		if plans := PlanMerges(spans, PlanOptions{Gap: DefaultGapTolerance, Now: now}); len(plans) != 0 {
			t.Fatalf("expected no plans, got %+v", plans)
		}
	})
}

func TestPlanMergesDuplicatesGetMinimumLength(t *testing.T) {
	spans := []Interval{
		{ID: 1, Start: at("17:15:00"), End: ptr(at("17:15:00"))},
		{ID: 2, Start: at("17:15:00"), End: ptr(at("17:15:00"))},
	}
	plans := PlanMerges(spans, PlanOptions{Gap: DefaultGapTolerance, Now: at("18:00:00")})
	if len(plans) != 1 {
		t.Fatalf("expected 1 plan, got %d", len(plans))
	}
	if got := plans[0].End.Sub(plans[0].Start); got != MinDuration {
		t.Fatalf("expected merged length %s, got %s", MinDuration, got)
	}
}

func TestPlanMergesDisjointGroups(t *testing.T) {
	spans := []Interval{
		fixed(4, "14:00:00", "14:30:00"),
		fixed(1, "09:00:00", "09:30:00"),
		fixed(3, "14:15:00", "15:00:00"),
		fixed(2, "09:30:00", "10:00:00"),
		fixed(5, "17:00:00", "17:15:00"),
	}
	plans := PlanMerges(spans, PlanOptions{Gap: DefaultGapTolerance, Now: at("18:00:00")})
	if len(plans) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(plans))
	}
	if plans[0].KeeperID != 1 || !reflect.DeepEqual(plans[0].DeleteIDs, []int64{2}) {
		t.Errorf("first plan = %+v", plans[0])
	}
	if plans[1].KeeperID != 3 || !reflect.DeepEqual(plans[1].DeleteIDs, []int64{4}) {
		t.Errorf("second plan = %+v", plans[1])
	}
	if !plans[1].End.Equal(at("15:00:00")) {
		t.Errorf("second plan end = %s, want 15:00", plans[1].End)
	}
}

// apply mimics the ledger applying plans to a span set.
func apply(spans []Interval, plans []MergePlan) []Interval {
	deleted := make(map[int64]bool)
	rewritten := make(map[int64]MergePlan)
	for _, plan := range plans {
		rewritten[plan.KeeperID] = plan
		for _, id := range plan.DeleteIDs {
			deleted[id] = true
		}
	}

	var out []Interval
	for _, span := range spans {
		if deleted[span.ID] {
			continue
		}
		if plan, ok := rewritten[span.ID]; ok {
			span.Start, span.End = plan.Start, plan.End
		}
		out = append(out, span)
	}
	return out
}

func TestPlanMergesIdempotentAndOrderIndependent(t *testing.T) {
	opts := PlanOptions{Gap: DefaultGapTolerance, Now: at("13:00:00")}
	spans := []Interval{
		fixed(1, "10:00:00", "10:30:00"),
		fixed(2, "10:15:00", "10:45:00"),
		fixed(3, "11:00:00", "11:15:00"),
		fixed(4, "12:00:00", "12:15:00"),
		running(5, "12:30:00"),
		fixed(6, "08:00:00", "08:15:00"),
	}

	plans := PlanMerges(spans, opts)

	reversed := make([]Interval, len(spans))
	for i, span := range spans {
		reversed[len(spans)-1-i] = span
	}
	if got := PlanMerges(reversed, opts); !reflect.DeepEqual(got, plans) {
		t.Fatalf("plans depend on input order:\n%+v\n%+v", plans, got)
	}

	consolidated := apply(spans, plans)
	if again := PlanMerges(consolidated, opts); len(again) != 0 {
		t.Fatalf("expected no plans on consolidated set, got %+v", again)
	}
	if len(consolidated) != 3 {
		t.Fatalf("expected 3 spans after consolidation, got %d", len(consolidated))
	}
}

func TestPlanMergesLeavesInputUntouched(t *testing.T) {
	spans := []Interval{
		fixed(2, "10:15:00", "10:45:00"),
		fixed(1, "10:00:00", "10:30:00"),
	}
	before := append([]Interval(nil), spans...)
	PlanMerges(spans, PlanOptions{Gap: DefaultGapTolerance, Now: at("18:00:00")})
	if !reflect.DeepEqual(spans, before) {
		t.Fatalf("input was modified: %+v", spans)
	}
}
