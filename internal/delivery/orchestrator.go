// Package delivery runs the periodic delivery cycle: snapshot the store,
// select due reminders, notify each one and persist the delivered
// transition.
//
// Delivery is at-least-once around a crash: a notification that went out
// right before the process died, with the delivered flag not yet written,
// is sent again after restart. The persisted flag is the only dedup gate.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"remindbot/internal/eventbus"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/task/scheduler"
	logx "remindbot/pkg/logx"
)

const jobName = "delivery.cycle"

// Store is the part of storage.Store the orchestrator uses.
type Store interface {
	GetAll(ctx context.Context) ([]reminder.Reminder, error)
	Patch(ctx context.Context, id string, p reminder.Patch) (reminder.Reminder, bool, error)
}

// Notifier sends one reminder. *notifier.Service implements it.
type Notifier interface {
	Send(ctx context.Context, r reminder.Reminder) notifier.Result
}

type Config struct {
	PollInterval  time.Duration
	NotifyTimeout time.Duration
	StoreTimeout  time.Duration
	Fanout        int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 30 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 10 * time.Second
	}
	if c.Fanout <= 0 {
		c.Fanout = 4
	}
	return c
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	Due       int           `json:"due"`
	Delivered int           `json:"delivered"`
	Failed    int           `json:"failed"`
	Conflicts int           `json:"conflicts"`
	Took      time.Duration `json:"took"`
}

type Options struct {
	Config    Config
	Store     Store
	Notifier  Notifier
	Scheduler *scheduler.Service
	Log       logx.Logger
	Bus       eventbus.Bus
	Now       func() time.Time
}

type Orchestrator struct {
	store Store
	notif Notifier
	sched *scheduler.Service
	log   logx.Logger
	bus   eventbus.Bus
	now   func() time.Time

	mu      sync.Mutex
	cfg     Config
	started bool

	// sem holds one token while a cycle runs.
	sem chan struct{}
}

func New(o Options) *Orchestrator {
	if o.Log.IsZero() {
		o.Log = logx.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Orchestrator{
		store: o.Store,
		notif: o.Notifier,
		sched: o.Scheduler,
		log:   o.Log.With(logx.String("comp", "delivery")),
		bus:   o.Bus,
		now:   o.Now,
		cfg:   o.Config.withDefaults(),
		sem:   make(chan struct{}, 1),
	}
}

func (o *Orchestrator) config() Config {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

// Start registers the cycle on the scheduler and runs a first cycle right
// away so anything that came due while the process was down goes out.
func (o *Orchestrator) Start() error {
	if o.sched == nil {
		return errors.New("delivery: scheduler required")
	}
	cfg := o.config()
	if err := o.sched.AddInterval(jobName, cfg.PollInterval, 0, o.job); err != nil {
		return err
	}
	o.mu.Lock()
	o.started = true
	o.mu.Unlock()
	o.log.Info("delivery loop started", logx.Duration("every", cfg.PollInterval), logx.Int("fanout", cfg.Fanout))
	return o.sched.RunNow(jobName)
}

// Stop unregisters the cycle and waits for an in-flight one until ctx
// expires.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.mu.Lock()
	wasStarted := o.started
	o.started = false
	o.mu.Unlock()
	if !wasStarted {
		return
	}
	o.sched.Remove(jobName)
	select {
	case o.sem <- struct{}{}:
		<-o.sem
	case <-ctx.Done():
		o.log.Warn("delivery stop timed out with a cycle in flight")
	}
}

// Kick requests an immediate cycle. It is a no-op before Start.
func (o *Orchestrator) Kick() {
	o.mu.Lock()
	started := o.started
	o.mu.Unlock()
	if !started {
		return
	}
	if err := o.sched.RunNow(jobName); err != nil {
		o.log.Debug("kick ignored", logx.Err(err))
	}
}

// Apply swaps timeouts and fan-out; a new poll interval re-registers the
// cycle.
func (o *Orchestrator) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	o.mu.Lock()
	old := o.cfg
	o.cfg = cfg
	started := o.started
	o.mu.Unlock()
	if started && old.PollInterval != cfg.PollInterval {
		if err := o.sched.AddInterval(jobName, cfg.PollInterval, 0, o.job); err != nil {
			o.log.Error("poll interval update failed", logx.Err(err))
			return
		}
		o.log.Info("poll interval updated", logx.Duration("every", cfg.PollInterval))
	}
}

func (o *Orchestrator) job(ctx context.Context) error {
	_, err := o.RunCycle(ctx)
	return err
}

// RunCycle performs one delivery cycle. A store read failure aborts the
// cycle before anything is sent and returns an error wrapping
// reminder.ErrStoreUnavailable. Per-record failures are counted in the
// report and never abort the rest of the cycle.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleReport, error) {
	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		return CycleReport{}, ctx.Err()
	}

	cfg := o.config()
	started := time.Now()
	now := o.now()

	sctx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	recs, err := o.store.GetAll(sctx)
	cancel()
	if err != nil {
		if !errors.Is(err, reminder.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", reminder.ErrStoreUnavailable, err)
		}
		o.log.Error("delivery cycle aborted: store unavailable", logx.Err(err))
		o.publish(eventbus.CycleAborted, err.Error())
		return CycleReport{}, err
	}

	due := reminder.SelectDue(recs, now)
	rep := CycleReport{Due: len(due)}
	if len(due) == 0 {
		rep.Took = time.Since(started)
		o.publish(eventbus.CycleFinished, rep)
		return rep, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(cfg.Fanout)
	for _, r := range due {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out := o.deliverOne(ctx, cfg, r)
			mu.Lock()
			switch out {
			case outcomeDelivered:
				rep.Delivered++
			case outcomeConflict:
				rep.Conflicts++
			default:
				rep.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	rep.Took = time.Since(started)
	o.log.Info("delivery cycle done",
		logx.Int("due", rep.Due),
		logx.Int("delivered", rep.Delivered),
		logx.Int("failed", rep.Failed),
		logx.Int("conflicts", rep.Conflicts),
		logx.Duration("took", rep.Took),
	)
	o.publish(eventbus.CycleFinished, rep)
	return rep, nil
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeDelivered
	outcomeConflict
)

func (o *Orchestrator) deliverOne(ctx context.Context, cfg Config, r reminder.Reminder) outcome {
	log := o.log.With(logx.String("id", r.ID), logx.String("owner", r.OwnerID))

	nctx, cancel := context.WithTimeout(ctx, cfg.NotifyTimeout)
	res := o.notif.Send(nctx, r)
	cancel()
	if !res.Sent {
		log.Warn("reminder not delivered, retrying next cycle", logx.Err(res.Reason))
		return outcomeFailed
	}

	// The notification is out; record it even if Stop cancelled ctx.
	_, p := reminder.Deliver(r, string(res.Via), o.now())
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.StoreTimeout)
	_, ok, err := o.store.Patch(pctx, r.ID, p)
	cancel()
	switch {
	case errors.Is(err, reminder.ErrConflict):
		log.Info("reminder changed during delivery, keeping newer state", logx.Err(err))
		return outcomeConflict
	case err != nil:
		log.Error("reminder sent but delivered flag not saved; it will be sent again", logx.Err(err))
		return outcomeFailed
	case !ok:
		log.Info("reminder deleted during delivery")
		return outcomeConflict
	}
	log.Info("reminder delivered", logx.String("via", string(res.Via)))
	o.publish(eventbus.ReminderDelivered, r.ID)
	return outcomeDelivered
}

func (o *Orchestrator) publish(typ string, data any) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
