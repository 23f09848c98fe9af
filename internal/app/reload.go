package app

import (
	"context"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/digest"
	"remindbot/internal/eventbus"
	"remindbot/pkg/logx"
)

// reloadLoop applies published configs to the live components until ctx
// ends. Bursts are coalesced to the newest config.
func (a *App) reloadLoop(ctx context.Context) error {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-sub:
			if !ok {
				return nil
			}
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, last, cfg)
			last = cfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, cfg *config.Config) {
	ch := config.SummarizeConfigChange(prev, cfg)
	if ch.Empty() {
		a.log.Debug("config reload received, no effective changes")
		return
	}
	if len(ch.Restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(ch.Restart, ",")))
	}

	a.logs.SetChatTarget(strings.TrimSpace(cfg.Logging.Chat.Target))
	a.logs.Apply(logConfig(cfg))

	a.notif.Apply(notifierConfig(cfg))
	a.orch.Apply(deliveryConfig(cfg))
	a.agenda.Apply(a.agenda.Location(), cfg.Reminders.StoreTimeoutOr(0))
	a.cmdm.Apply(commandsConfig(cfg))
	a.ops.Reconfigure(ctx, opsConfig(cfg))

	if prev == nil || prev.Digest != cfg.Digest {
		a.swapDigest(cfg)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Info("config applied", fields...)
	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Time: time.Now(), Data: ch.Sections})
}

// swapDigest replaces the digest job. The timezone is fixed at startup.
func (a *App) swapDigest(cfg *config.Config) {
	a.digestMu.Lock()
	defer a.digestMu.Unlock()
	if a.digest != nil {
		a.digest.Stop()
		a.digest = nil
	}
	if !cfg.Digest.Enabled {
		a.log.Info("weekly digest disabled")
		return
	}
	d := digest.New(digestConfig(cfg), a.agenda, a.notif, a.sched, a.agenda.Location(), a.root)
	if err := d.Start(); err != nil {
		a.log.Error("digest reschedule failed", logx.Err(err))
		return
	}
	a.digest = d
}
