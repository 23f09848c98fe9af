package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// flakyBlob wraps memoryBlob and fails saves while fail is set.
type flakyBlob struct {
	memoryBlob
	mu    sync.Mutex
	fail  bool
	saves int
	quar  [][]byte
}

func (b *flakyBlob) Save(ctx context.Context, data []byte) error {
	b.mu.Lock()
	fail := b.fail
	b.saves++
	b.mu.Unlock()
	if fail {
		return errors.New("backend down")
	}
	return b.memoryBlob.Save(ctx, data)
}

func (b *flakyBlob) Quarantine(ctx context.Context, data []byte) error {
	b.quar = append(b.quar, append([]byte(nil), data...))
	return nil
}

func (b *flakyBlob) setFail(v bool) {
	b.mu.Lock()
	b.fail = v
	b.mu.Unlock()
}

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func mustNew(t *testing.T, owner string, due time.Time) reminder.Reminder {
	t.Helper()
	r, err := reminder.New(reminder.NewParams{OwnerID: owner, DueAt: due, Title: "t"}, t0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func openTestSnapshot(t *testing.T, b blob) *snapshotStore {
	t.Helper()
	st, err := openSnapshot(context.Background(), b, logx.Nop(), func() time.Time { return t0 })
	if err != nil {
		t.Fatalf("openSnapshot: %v", err)
	}
	return st
}

func TestSnapshotAddPatchRemove(t *testing.T) {
	ctx := context.Background()
	st := openTestSnapshot(t, newMemoryBlob())

	r := mustNew(t, "u1", t0.Add(time.Hour))
	if err := st.Add(ctx, r); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := st.Add(ctx, r); !errors.Is(err, reminder.ErrDuplicate) {
		t.Fatalf("second Add err = %v, want ErrDuplicate", err)
	}

	_, p := reminder.Complete(r, "u1", t0)
	got, ok, err := st.Patch(ctx, r.ID, p)
	if err != nil || !ok {
		t.Fatalf("Patch: ok=%v err=%v", ok, err)
	}
	if !got.Completed || len(got.History) != 1 {
		t.Fatalf("unexpected patched record: %+v", got)
	}

	if _, ok, err := st.Patch(ctx, "missing", p); ok || err != nil {
		t.Fatalf("Patch missing: ok=%v err=%v", ok, err)
	}

	removed, err := st.Remove(ctx, r.ID)
	if err != nil || !removed {
		t.Fatalf("Remove: removed=%v err=%v", removed, err)
	}
	removed, err = st.Remove(ctx, r.ID)
	if err != nil || removed {
		t.Fatalf("second Remove: removed=%v err=%v", removed, err)
	}
}

func TestSnapshotFailedSaveLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	b := &flakyBlob{}
	st := openTestSnapshot(t, b)

	r := mustNew(t, "u1", t0)
	if err := st.Add(ctx, r); err != nil {
		t.Fatalf("Add: %v", err)
	}

	b.setFail(true)
	_, p := reminder.Deliver(r, "dm", t0)
	if _, _, err := st.Patch(ctx, r.ID, p); !errors.Is(err, reminder.ErrStoreUnavailable) {
		t.Fatalf("Patch err = %v, want ErrStoreUnavailable", err)
	}
	if err := st.Add(ctx, mustNew(t, "u2", t0)); !errors.Is(err, reminder.ErrStoreUnavailable) {
		t.Fatalf("Add err = %v, want ErrStoreUnavailable", err)
	}

	all, _ := st.GetAll(ctx)
	if len(all) != 1 || all[0].Delivered {
		t.Fatalf("state changed after failed save: %+v", all)
	}
}

func TestSnapshotGetAllReturnsCopies(t *testing.T) {
	ctx := context.Background()
	st := openTestSnapshot(t, newMemoryBlob())
	r := mustNew(t, "u1", t0)
	r.Tags = []string{"a"}
	_ = st.Add(ctx, r)

	all, _ := st.GetAll(ctx)
	all[0].Tags[0] = "mutated"
	all[0].Completed = true

	again, _, _ := st.FindByID(ctx, r.ID)
	if again.Tags[0] != "a" || again.Completed {
		t.Fatalf("caller mutation leaked into store: %+v", again)
	}
}

func TestSnapshotColdLoadReconciles(t *testing.T) {
	ctx := context.Background()
	b := newMemoryBlob()

	stuck := mustNew(t, "u1", t0.Add(-time.Minute))
	stuck.Delivered = true
	future := mustNew(t, "u1", t0.Add(time.Hour))
	future.Delivered = true
	data, _ := encodeSnapshot([]reminder.Reminder{stuck, future})
	_ = b.Save(ctx, data)

	st := openTestSnapshot(t, b)
	got, _, _ := st.FindByID(ctx, stuck.ID)
	if got.Delivered {
		t.Fatal("overdue delivered record should be reset on load")
	}
	got, _, _ = st.FindByID(ctx, future.ID)
	if !got.Delivered {
		t.Fatal("future record should be left alone")
	}

	// The repair is persisted, so a second load sees it too.
	raw, _ := b.Load(ctx)
	recs, err := decodeSnapshot(raw)
	if err != nil || recs[0].Delivered {
		t.Fatalf("reconciliation not persisted: %v %+v", err, recs)
	}
}

func TestSnapshotCorruptDocumentStartsEmpty(t *testing.T) {
	ctx := context.Background()
	b := &flakyBlob{}
	_ = b.memoryBlob.Save(ctx, []byte("{not json"))

	st := openTestSnapshot(t, b)
	all, _ := st.GetAll(ctx)
	if len(all) != 0 {
		t.Fatalf("want empty state, got %d records", len(all))
	}
	if len(b.quar) != 1 || string(b.quar[0]) != "{not json" {
		t.Fatalf("corrupt document not quarantined: %q", b.quar)
	}
}

func TestSnapshotConcurrentPatchesDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	st := openTestSnapshot(t, newMemoryBlob())
	r := mustNew(t, "u1", t0)
	_ = st.Add(ctx, r)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := reminder.Patch{AppendHistory: []reminder.HistoryEntry{{At: t0, Action: reminder.ActionSnooze}}}
			if _, _, err := st.Patch(ctx, r.ID, p); err != nil {
				t.Errorf("Patch: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _, _ := st.FindByID(ctx, r.ID)
	if len(got.History) != 20 {
		t.Fatalf("history entries = %d, want 20", len(got.History))
	}
}
