package reminder

import (
	"testing"
	"time"
)

func TestSelectDue(t *testing.T) {
	now := t0
	recs := []Reminder{
		{ID: "due", DueAt: now.Add(-time.Second)},
		{ID: "future", DueAt: now.Add(time.Second)},
		{ID: "exact", DueAt: now},
		{ID: "delivered-long-ago", DueAt: now.Add(-30 * 24 * time.Hour), Delivered: true},
		{ID: "completed", DueAt: now.Add(-time.Hour), Completed: true},
		{ID: "completed-recurring", DueAt: now.Add(-time.Hour), Completed: true, Recurrence: RecurDaily},
		{ID: "due2", DueAt: now.Add(-time.Hour)},
	}
	got := SelectDue(recs, now)
	want := []string{"due", "exact", "due2"}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, got[i].ID, want[i])
		}
	}
	if SelectDue(nil, now) != nil {
		t.Fatal("empty input must yield nil")
	}
}

func TestReconcileResetsStuckDeliveries(t *testing.T) {
	now := t0
	recs := []Reminder{
		{ID: "stuck", DueAt: now.Add(-time.Hour), Delivered: true},
		{ID: "future-delivered", DueAt: now.Add(time.Hour), Delivered: true},
		{ID: "completed", DueAt: now.Add(-time.Hour), Delivered: true, Completed: true},
		{ID: "clean", DueAt: now.Add(-time.Hour)},
	}
	changed := Reconcile(recs, now)
	if len(changed) != 1 || changed[0] != "stuck" {
		t.Fatalf("changed = %v", changed)
	}
	if recs[0].Delivered {
		t.Fatal("stuck record should be reset")
	}
	if !recs[1].Delivered || !recs[2].Delivered {
		t.Fatal("other records must be untouched")
	}
	due := SelectDue(recs, now)
	if len(due) != 2 || due[0].ID != "stuck" {
		t.Fatalf("due after reconcile = %+v", due)
	}
	if again := Reconcile(recs, now); len(again) != 0 {
		t.Fatalf("second pass changed %v", again)
	}
}
