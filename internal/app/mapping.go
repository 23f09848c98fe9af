package app

import (
	"time"

	"remindbot/internal/commands"
	"remindbot/internal/config"
	"remindbot/internal/delivery"
	"remindbot/internal/digest"
	"remindbot/internal/notifier"
	"remindbot/internal/observability/ops"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
	"remindbot/pkg/logx"
)

// The config package validates durations on load, so the mappers below
// only fill defaults.

func logConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    l.Chat.Enabled,
			MinLevel:   l.Chat.MinLevel,
			RatePerSec: l.Chat.RatePerSec,
		},
	}
}

func storageConfig(cfg *config.Config) storage.Config {
	s := cfg.Storage
	return storage.Config{
		Driver:      s.Driver,
		Path:        s.Path,
		BusyTimeout: s.BusyTimeoutOr(0),
		DSN:         s.DSN,
		RedisURL:    s.RedisURL,
		Key:         s.Key,
		Token:       s.Token,
		ChannelID:   s.ChannelID,
		OpenTimeout: cfg.Reminders.StoreTimeoutOr(30 * time.Second),
	}
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Timezone: cfg.Reminders.Timezone}
}

func deliveryConfig(cfg *config.Config) delivery.Config {
	r := cfg.Reminders
	return delivery.Config{
		PollInterval:  r.PollIntervalOr(0),
		NotifyTimeout: r.NotifyTimeoutOr(0),
		StoreTimeout:  r.StoreTimeoutOr(0),
		Fanout:        r.Fanout,
	}
}

func notifierConfig(cfg *config.Config) notifier.Config {
	n := cfg.Notifier
	return notifier.Config{
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     n.RetryBaseOr(0),
		RetryMaxDelay: n.RetryMaxDelayOr(0),
		CallTimeout:   n.CallTimeoutOr(0),
		Location:      cfg.Reminders.Location(),
		SnoozeMinutes: cfg.Reminders.DefaultSnoozeMinutes,
	}
}

func commandsConfig(cfg *config.Config) commands.Config {
	return commands.Config{DefaultSnoozeMinutes: cfg.Reminders.DefaultSnoozeMinutes}
}

func digestConfig(cfg *config.Config) digest.Config {
	return digest.Config{Schedule: cfg.Digest.Schedule, ChannelID: cfg.Digest.ChannelID}
}

func opsConfig(cfg *config.Config) ops.Config {
	o := cfg.Ops
	return ops.Config{
		Enabled:       o.Enabled,
		Addr:          o.Addr,
		Pprof:         o.Pprof,
		Token:         o.Token,
		AllowInsecure: o.AllowInsecure,
	}
}
