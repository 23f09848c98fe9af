package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "reminders.json")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	r := mustNew(t, "u1", time.Now().Add(time.Hour))
	if err := st.Add(ctx, r); err != nil {
		t.Fatalf("Add: %v", err)
	}
	_ = st.Close()

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	got, ok, err := st.FindByID(ctx, r.ID)
	if err != nil || !ok {
		t.Fatalf("FindByID: ok=%v err=%v", ok, err)
	}
	if got.OwnerID != "u1" || !got.DueAt.Equal(r.DueAt) {
		t.Fatalf("reloaded record differs: %+v", got)
	}
}

func TestFileStoreCreatesEmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("snapshot not written on first open: %v", err)
	}
	if strings.TrimSpace(string(b)) != "[]" {
		t.Fatalf("initial document = %q", b)
	}
}

func TestFileStoreQuarantinesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reminders.json")
	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	all, _ := st.GetAll(context.Background())
	if len(all) != 0 {
		t.Fatalf("want empty state, got %d", len(all))
	}
	matches, _ := filepath.Glob(path + ".corrupt-*")
	if len(matches) != 1 {
		t.Fatalf("quarantine files = %v", matches)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestMemoryDriverDefault(t *testing.T) {
	st, err := Open(Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	if err := st.Add(context.Background(), mustNew(t, "u", time.Now())); err != nil {
		t.Fatalf("Add: %v", err)
	}
	all, _ := st.GetAll(context.Background())
	if len(all) != 1 || all[0].Recurrence != reminder.RecurNone {
		t.Fatalf("unexpected contents: %+v", all)
	}
}
