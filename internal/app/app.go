// Package app wires the reminder service together: config, logging, the
// chat transport, storage, the delivery loop, commands and the ops server.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"remindbot/internal/agenda"
	"remindbot/internal/commands"
	"remindbot/internal/config"
	"remindbot/internal/delivery"
	"remindbot/internal/digest"
	"remindbot/internal/eventbus"
	"remindbot/internal/notifier"
	"remindbot/internal/observability/metrics"
	"remindbot/internal/observability/ops"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
	"remindbot/internal/transport"
	"remindbot/internal/transport/discord"
	"remindbot/internal/transport/telegram"
	"remindbot/pkg/logx"
	"remindbot/pkg/systemd"
)

type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	root logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	mets *metrics.Metrics

	store   storage.Store
	adapter transport.Adapter

	sched  *scheduler.Service
	agenda *agenda.Service
	notif  *notifier.Service
	orch   *delivery.Orchestrator
	cmdm   *commands.Manager
	ops    *ops.Service

	digestMu sync.Mutex
	digest   *digest.Service

	updates chan transport.Update
}

// New loads the config and builds every component. Storage is opened (and
// cold-loaded) here, so a store that cannot be read fails startup.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	bootLog := logx.NewConsole("info").With(logx.String("comp", "transport"))
	ad, err := newAdapter(cfg, bootLog)
	if err != nil {
		return nil, err
	}

	// Chat logging starts disabled so Apply does not warn before the
	// target is set.
	lc := logConfig(cfg)
	chatEnabled := lc.Chat.Enabled
	lc.Chat.Enabled = false
	logSvc, root := logx.New(lc, ad)
	logSvc.SetChatTarget(strings.TrimSpace(cfg.Logging.Chat.Target))
	lc.Chat.Enabled = chatEnabled
	logSvc.Apply(lc)
	log := root.With(logx.String("comp", "app"))

	bus := eventbus.New()

	store, err := storage.Open(storageConfig(cfg), root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", cfg.Storage.Driver))

	loc := cfg.Reminders.Location()
	sched := scheduler.New(schedulerConfig(cfg), root, bus)
	ag := agenda.New(agenda.Options{
		Store:        store,
		Log:          root,
		Bus:          bus,
		Location:     loc,
		StoreTimeout: cfg.Reminders.StoreTimeoutOr(0),
	})
	notif := notifier.New(notifierConfig(cfg), ad, root, bus)
	orch := delivery.New(delivery.Options{
		Config:    deliveryConfig(cfg),
		Store:     store,
		Notifier:  notif,
		Scheduler: sched,
		Log:       root,
		Bus:       bus,
	})
	ag.OnDue(orch.Kick)

	a := &App{
		cfgm:    cfgm,
		log:     log,
		root:    root,
		logs:    logSvc,
		bus:     bus,
		mets:    metrics.New(),
		store:   store,
		adapter: ad,
		sched:   sched,
		agenda:  ag,
		notif:   notif,
		orch:    orch,
		cmdm:    commands.New(commandsConfig(cfg), ag, ad, root),
		updates: make(chan transport.Update, 256),
	}
	if cfg.Digest.Enabled {
		a.digest = digest.New(digestConfig(cfg), ag, notif, sched, loc, root)
	}
	a.ops = ops.New(opsConfig(cfg), a.mets.Registry(), a.health, root)
	a.ops.SetStatus(a.status)
	cfgm.SetLogger(root.With(logx.String("comp", "config")))
	return a, nil
}

func newAdapter(cfg *config.Config, log logx.Logger) (transport.Adapter, error) {
	t := cfg.Transport
	switch t.Driver {
	case "telegram":
		return telegram.New(telegram.Config{
			Token:       t.Telegram.Token,
			PollTimeout: t.Telegram.PollTimeoutOr(10 * time.Second),
		}, log)
	case "discord":
		return discord.New(discord.Config{Token: t.Discord.Token}, log)
	case "":
		return nil, errors.New("transport: no driver configured (set TELEGRAM_TOKEN or DISCORD_TOKEN)")
	}
	return nil, fmt.Errorf("transport: unknown driver %q", t.Driver)
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	// Metrics subscribe before anything publishes.
	a.sup.Go("metrics", a.mets.Attach(a.bus))

	if err := a.adapter.Start(run, a.updates); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	a.sched.Start(run)
	if err := a.orch.Start(); err != nil {
		return err
	}
	if err := a.startDigest(); err != nil {
		return err
	}
	a.ops.Start(run)

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	a.sup.Go("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)
	if every := systemd.WatchdogInterval(); every > 0 {
		a.sup.Go("systemd.watchdog", func(c context.Context) error {
			return systemd.Watchdog(c, every, a.health, func(err error) {
				a.log.Warn("health check failed; withholding watchdog ping", logx.Err(err))
			})
		})
	}

	a.log.Info("remindbot started", logx.String("config", a.cfgm.Path()))
	return nil
}

func (a *App) startDigest() error {
	a.digestMu.Lock()
	defer a.digestMu.Unlock()
	if a.digest == nil {
		return nil
	}
	return a.digest.Start()
}

// health is served on /healthz and gates the systemd watchdog.
func (a *App) health(ctx context.Context) error {
	if err := a.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := a.store.GetAll(ctx); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	return nil
}

type status struct {
	Tasks     []supervisor.TaskStats `json:"tasks"`
	Schedules scheduler.Snapshot     `json:"schedules"`
	Sent      []notifier.HistoryItem `json:"sent"`
}

func (a *App) status() any {
	st := status{Schedules: a.sched.Snapshot(), Sent: a.notif.History()}
	if a.sup != nil {
		st.Tasks = a.sup.Snapshot()
	}
	return st
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Stop delivery before the scheduler so an in-flight cycle finishes
	// its writes.
	a.step(ctx, "delivery", 5*time.Second, func(c context.Context) error { a.orch.Stop(c); return nil })
	a.step(ctx, "digest", time.Second, func(c context.Context) error {
		a.digestMu.Lock()
		if a.digest != nil {
			a.digest.Stop()
		}
		a.digestMu.Unlock()
		return nil
	})
	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	a.step(ctx, "transport", 3*time.Second, a.adapter.Stop)
	a.step(ctx, "supervisor", 3*time.Second, a.sup.Stop)
	a.step(ctx, "storage", 2*time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step bounded by max (and by ctx). A step that
// overruns is logged and left to finish in the background.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", time.Since(start)), logx.Err(err))
		}()
	}
}
