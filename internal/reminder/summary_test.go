package reminder

import (
	"testing"
	"time"
)

func TestSummarize(t *testing.T) {
	now := time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC)
	since := now.Add(-7 * 24 * time.Hour)
	day := func(d int, h int) time.Time { return time.Date(2025, 3, d, h, 0, 0, 0, time.UTC) }

	recs := []Reminder{
		{ID: "a", OwnerID: "u1", CreatedAt: day(12, 8), History: []HistoryEntry{
			{At: day(12, 9), Action: ActionDelivered},
			{At: day(12, 10), Action: ActionComplete},
			{At: day(13, 10), Action: ActionComplete},
		}},
		{ID: "b", OwnerID: "u1", CreatedAt: day(1, 8), History: []HistoryEntry{
			{At: day(13, 20), Action: ActionComplete},
		}},
		{ID: "c", OwnerID: "u1", CreatedAt: day(15, 8), History: []HistoryEntry{
			{At: day(2, 10), Action: ActionComplete},
			{At: day(15, 9), Action: ActionSnooze},
		}},
		{ID: "d", OwnerID: "u2", CreatedAt: day(14, 8), History: []HistoryEntry{
			{At: day(14, 10), Action: ActionComplete},
		}},
	}
	got := Summarize(recs, "u1", since, time.UTC)
	want := Summary{OwnerID: "u1", Created: 2, Completed: 2, ActiveDays: 2}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	if s := Summarize(recs, "nobody", since, nil); s.Created != 0 || s.Completed != 0 || s.ActiveDays != 0 {
		t.Fatalf("unexpected %+v", s)
	}

	owners := Owners(recs)
	if len(owners) != 2 || owners[0] != "u1" || owners[1] != "u2" {
		t.Fatalf("owners = %v", owners)
	}
}

func TestSummarizeActiveDaysUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	recs := []Reminder{{ID: "a", OwnerID: "u1", CreatedAt: since, History: []HistoryEntry{
		// Same UTC day, different local days.
		{At: time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC), Action: ActionComplete},
		{At: time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC), Action: ActionComplete},
	}}}
	if got := Summarize(recs, "u1", since, time.UTC).ActiveDays; got != 1 {
		t.Fatalf("utc active days = %d", got)
	}
	if got := Summarize(recs, "u1", since, loc).ActiveDays; got != 2 {
		t.Fatalf("local active days = %d", got)
	}
}
