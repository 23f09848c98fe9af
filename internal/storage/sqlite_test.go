package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

func openTestSQLite(t *testing.T, path string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	return st
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openTestSQLite(t, filepath.Join(t.TempDir(), "r.db"))
	defer st.Close()

	due := time.Date(2025, 5, 1, 8, 30, 0, 0, time.UTC)
	r, err := reminder.New(reminder.NewParams{
		OwnerID: "u1", DestinationID: "c1", DueAt: due, Title: "standup",
		Body: "join call", Recurrence: "weekly", Tags: []string{"work"},
	}, t0)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Add(ctx, r); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := st.Add(ctx, r); !errors.Is(err, reminder.ErrDuplicate) {
		t.Fatalf("duplicate Add err = %v", err)
	}

	got, ok, err := st.FindByID(ctx, r.ID)
	if err != nil || !ok {
		t.Fatalf("FindByID: ok=%v err=%v", ok, err)
	}
	if got.Title != "standup" || got.Recurrence != reminder.RecurWeekly || !got.DueAt.Equal(due) {
		t.Fatalf("unexpected record: %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "work" {
		t.Fatalf("tags = %v", got.Tags)
	}

	_, p := reminder.Complete(got, "u1", t0)
	patched, ok, err := st.Patch(ctx, r.ID, p)
	if err != nil || !ok {
		t.Fatalf("Patch: ok=%v err=%v", ok, err)
	}
	if !patched.DueAt.Equal(due.AddDate(0, 0, 7)) || patched.Completed {
		t.Fatalf("weekly complete should advance: %+v", patched)
	}

	all, err := st.GetAll(ctx)
	if err != nil || len(all) != 1 || len(all[0].History) != 1 {
		t.Fatalf("GetAll: %v %+v", err, all)
	}

	if ok, err := st.Remove(ctx, r.ID); err != nil || !ok {
		t.Fatalf("Remove: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := st.FindByID(ctx, r.ID); ok {
		t.Fatal("record still present after Remove")
	}
}

func TestSQLiteStaleDeliverConflicts(t *testing.T) {
	ctx := context.Background()
	st := openTestSQLite(t, filepath.Join(t.TempDir(), "r.db"))
	defer st.Close()

	r := mustNew(t, "u1", t0)
	_ = st.Add(ctx, r)
	stored, _, _ := st.FindByID(ctx, r.ID)

	// Owner snoozes while a delivery for the old occurrence is in flight.
	_, snooze, _ := reminder.Snooze(stored, 15, "u1", t0)
	if _, _, err := st.Patch(ctx, r.ID, snooze); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	_, deliver := reminder.Deliver(stored, "dm", t0)
	if _, _, err := st.Patch(ctx, r.ID, deliver); !errors.Is(err, reminder.ErrConflict) {
		t.Fatalf("stale deliver err = %v, want ErrConflict", err)
	}
	got, _, _ := st.FindByID(ctx, r.ID)
	if got.Delivered {
		t.Fatal("stale deliver must not mark the snoozed occurrence delivered")
	}
}

func TestSQLiteReconcilesOnOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "r.db")
	st := openTestSQLite(t, path)

	r := mustNew(t, "u1", time.Now().Add(-time.Hour))
	_ = st.Add(ctx, r)
	stored, _, _ := st.FindByID(ctx, r.ID)
	_, p := reminder.Deliver(stored, "dm", time.Now())
	if _, _, err := st.Patch(ctx, r.ID, p); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	_ = st.Close()

	st = openTestSQLite(t, path)
	defer st.Close()
	got, _, _ := st.FindByID(ctx, r.ID)
	if got.Delivered {
		t.Fatal("overdue delivered record should be reset on open")
	}
	if len(got.History) != 1 {
		t.Fatalf("reconciliation should not touch history, got %d entries", len(got.History))
	}
}

func TestDialectBind(t *testing.T) {
	pg := dialect{numbered: true}
	if got := pg.bind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("bind = %q", got)
	}
	lite := dialect{}
	if got := lite.bind("a = ?"); got != "a = ?" {
		t.Fatalf("bind = %q", got)
	}
}

func TestApplyPragmasReportsFailures(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "p.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	failed := applyPragmas(ctx, db, logx.Nop(), "PRAGMA busy_timeout = 1234", "PRAGMA busy_timeout = = 1")
	if failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
	var ms int
	if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&ms); err != nil || ms != 1234 {
		t.Fatalf("busy_timeout = %d, %v", ms, err)
	}
}
