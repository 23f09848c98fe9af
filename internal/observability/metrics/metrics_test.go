package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"remindbot/internal/delivery"
	"remindbot/internal/eventbus"
	"remindbot/internal/notifier"
	"remindbot/internal/task/scheduler"
)

func TestObserve(t *testing.T) {
	m := New()
	m.Observe(eventbus.Event{Type: eventbus.ReminderCreated, Data: "r1"})
	m.Observe(eventbus.Event{Type: eventbus.ReminderCreated, Data: "r2"})
	m.Observe(eventbus.Event{Type: eventbus.NotifierSent, Data: notifier.Event{Via: notifier.RouteDirect}})
	m.Observe(eventbus.Event{Type: eventbus.CycleFinished, Data: delivery.CycleReport{Due: 3, Delivered: 2, Failed: 1, Took: 20 * time.Millisecond}})
	m.Observe(eventbus.Event{Type: eventbus.CycleAborted, Data: "store down"})
	m.Observe(eventbus.Event{Type: eventbus.TaskSkipped, Data: scheduler.TaskEvent{Name: "delivery.cycle", Skipped: true}})
	m.Observe(eventbus.Event{Type: "something.else"})

	if got := testutil.ToFloat64(m.reminderOps.WithLabelValues("created")); got != 2 {
		t.Fatalf("created = %v", got)
	}
	if got := testutil.ToFloat64(m.notifications.WithLabelValues("sent", "direct")); got != 1 {
		t.Fatalf("sent = %v", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("delivered")); got != 2 {
		t.Fatalf("delivered = %v", got)
	}
	if got := testutil.ToFloat64(m.cycleDue); got != 3 {
		t.Fatalf("due gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.cycles.WithLabelValues("aborted")); got != 1 {
		t.Fatalf("aborted = %v", got)
	}
	if got := testutil.ToFloat64(m.tasks.WithLabelValues("delivery.cycle", "skipped")); got != 1 {
		t.Fatalf("skipped = %v", got)
	}
}

func TestConsumeFromBus(t *testing.T) {
	m := New()
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Consume(ctx, bus)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(m.reloads) == 0 && time.Now().Before(deadline) {
		bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded})
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
	if testutil.ToFloat64(m.reloads) == 0 {
		t.Fatal("reload event not observed")
	}
}
