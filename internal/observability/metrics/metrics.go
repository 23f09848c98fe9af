// Package metrics turns bus events into Prometheus collectors.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"remindbot/internal/delivery"
	"remindbot/internal/eventbus"
	"remindbot/internal/notifier"
	"remindbot/internal/task/scheduler"
)

const namespace = "remindbot"

type Metrics struct {
	reg *prometheus.Registry

	reminderOps   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	cycleDue      prometheus.Gauge
	outcomes      *prometheus.CounterVec
	tasks         *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	reloads       prometheus.Counter
}

// New builds the collectors on a private registry, with the Go runtime
// and process collectors included.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		reminderOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_operations_total",
			Help:      "Reminder lifecycle operations.",
		}, []string{"op"}), // created, completed, snoozed, deleted, delivered
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification attempts by result and route.",
		}, []string{"result", "via"}),
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_cycles_total",
			Help:      "Delivery cycles by outcome.",
		}, []string{"outcome"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_cycle_duration_seconds",
			Help:      "Duration of completed delivery cycles.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		cycleDue: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delivery_cycle_due",
			Help:      "Due reminders seen by the last completed cycle.",
		}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_outcomes_total",
			Help:      "Per-reminder delivery outcomes.",
		}, []string{"outcome"}), // delivered, failed, conflict
		tasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_runs_total",
			Help:      "Scheduled job runs by result.",
		}, []string{"task", "result"}),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_run_duration_seconds",
			Help:      "Duration of scheduled job runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
		reloads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Applied configuration reloads.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

var reminderOps = map[string]string{
	eventbus.ReminderCreated:   "created",
	eventbus.ReminderCompleted: "completed",
	eventbus.ReminderSnoozed:   "snoozed",
	eventbus.ReminderDeleted:   "deleted",
	eventbus.ReminderDelivered: "delivered",
}

// Observe folds one event into the collectors. Unknown events are ignored.
func (m *Metrics) Observe(e eventbus.Event) {
	if op, ok := reminderOps[e.Type]; ok {
		m.reminderOps.WithLabelValues(op).Inc()
		return
	}
	switch e.Type {
	case eventbus.NotifierSent:
		via := ""
		if ev, ok := e.Data.(notifier.Event); ok {
			via = string(ev.Via)
		}
		m.notifications.WithLabelValues("sent", via).Inc()
	case eventbus.NotifierFailed:
		m.notifications.WithLabelValues("failed", "").Inc()
	case eventbus.CycleFinished:
		m.cycles.WithLabelValues("ok").Inc()
		if rep, ok := e.Data.(delivery.CycleReport); ok {
			m.cycleDuration.Observe(rep.Took.Seconds())
			m.cycleDue.Set(float64(rep.Due))
			m.outcomes.WithLabelValues("delivered").Add(float64(rep.Delivered))
			m.outcomes.WithLabelValues("failed").Add(float64(rep.Failed))
			m.outcomes.WithLabelValues("conflict").Add(float64(rep.Conflicts))
		}
	case eventbus.CycleAborted:
		m.cycles.WithLabelValues("aborted").Inc()
	case eventbus.TaskDone, eventbus.TaskFailed, eventbus.TaskSkipped:
		ev, ok := e.Data.(scheduler.TaskEvent)
		if !ok {
			return
		}
		result := "ok"
		switch e.Type {
		case eventbus.TaskFailed:
			result = "failed"
		case eventbus.TaskSkipped:
			result = "skipped"
		}
		m.tasks.WithLabelValues(ev.Name, result).Inc()
		if e.Type != eventbus.TaskSkipped {
			m.taskDuration.WithLabelValues(ev.Name).Observe(ev.Duration.Seconds())
		}
	case eventbus.ConfigReloaded:
		m.reloads.Inc()
	}
}

// Consume observes bus events until ctx ends.
func (m *Metrics) Consume(ctx context.Context, bus eventbus.Bus) error {
	return m.Attach(bus)(ctx)
}

// Attach subscribes now and returns the loop that drains the subscription.
// Events published between Attach and running the loop are buffered.
func (m *Metrics) Attach(bus eventbus.Bus) func(ctx context.Context) error {
	ch, unsub := bus.Subscribe(256)
	return func(ctx context.Context) error {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-ch:
				if !ok {
					return nil
				}
				m.Observe(e)
			}
		}
	}
}
