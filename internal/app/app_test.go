package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/eventbus"
)

const testConfig = `
transport:
  driver: discord
  discord:
    token: test-token
logging:
  level: error
reminders:
  poll_interval: 5s
  timezone: UTC
storage:
  driver: memory
`

func newTestApp(t *testing.T) *App {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(testConfig), 0o600); err != nil {
		t.Fatal(err)
	}
	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		_ = a.store.Close()
		_ = a.logs.Close()
	})
	return a
}

func TestNewWiresComponents(t *testing.T) {
	a := newTestApp(t)
	if a.digest != nil {
		t.Fatal("digest should be off by default")
	}
	if a.agenda.Location() != time.UTC {
		t.Fatalf("location = %v", a.agenda.Location())
	}
	if err := a.health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if st, ok := a.status().(status); !ok || st.Tasks != nil || st.Schedules.Timezone != "UTC" {
		t.Fatalf("status = %+v", a.status())
	}
	if err := a.Stop(context.Background(), StopAppStop); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
}

func TestNewRejectsMissingTransport(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("DISCORD_TOKEN", "")
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"storage":{"driver":"memory"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path); err == nil {
		t.Fatal("expected error without a transport")
	}
}

func TestApplyConfigSwapsDigestAndPublishes(t *testing.T) {
	a := newTestApp(t)
	events, unsub := a.bus.Subscribe(8)
	defer unsub()

	prev := a.cfgm.Get()
	next := *prev
	next.Digest = config.DigestConfig{Enabled: true, Schedule: "0 9 * * 1", ChannelID: "123"}
	next.Reminders.Fanout = 8
	a.applyConfig(context.Background(), prev, &next)

	if a.digest == nil {
		t.Fatal("digest not started")
	}
	found := false
	for _, s := range a.sched.Snapshot().Entries {
		if s.Name == "digest.weekly" {
			found = true
		}
	}
	if !found {
		t.Fatal("digest job not registered")
	}

	select {
	case e := <-events:
		if e.Type != eventbus.ConfigReloaded {
			t.Fatalf("event = %s", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no reload event")
	}

	off := next
	off.Digest.Enabled = false
	a.applyConfig(context.Background(), &next, &off)
	if a.digest != nil {
		t.Fatal("digest should be stopped")
	}
	for _, s := range a.sched.Snapshot().Entries {
		if s.Name == "digest.weekly" {
			t.Fatal("digest job still registered")
		}
	}
}

func TestApplyConfigIgnoresNoop(t *testing.T) {
	a := newTestApp(t)
	events, unsub := a.bus.Subscribe(8)
	defer unsub()
	cfg := a.cfgm.Get()
	a.applyConfig(context.Background(), cfg, cfg)
	select {
	case e := <-events:
		t.Fatalf("unexpected event %s", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}
