package config

import (
	"hash/fnv"
	"strings"

	"remindbot/pkg/logx"
)

// Change describes the difference between two configs. Fields never carry
// secrets; tokens are reported only as set/unset.
type Change struct {
	Sections []string
	// Restart lists changed sections that only take effect after a restart.
	Restart []string
	Fields  []logx.Field
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// SummarizeConfigChange compares oldCfg and newCfg section by section.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, fields ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		if restart {
			ch.Restart = append(ch.Restart, section)
		}
		ch.Fields = append(ch.Fields, fields...)
	}

	ot, nt := oldCfg.Transport, newCfg.Transport
	if ot.Driver != nt.Driver || ot.Telegram != nt.Telegram || ot.Discord != nt.Discord {
		mark("transport", true,
			logx.String("transport.driver", nt.Driver),
			logx.Bool("transport.token_changed", ot.Telegram.Token != nt.Telegram.Token || ot.Discord.Token != nt.Discord.Token),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat", newCfg.Logging.Chat.Enabled),
		)
	}

	or, nr := oldCfg.Reminders, newCfg.Reminders
	if or != nr {
		mark("reminders", strings.TrimSpace(or.Timezone) != strings.TrimSpace(nr.Timezone),
			logx.String("reminders.poll_interval", nr.PollInterval),
			logx.Int("reminders.fanout", nr.Fanout),
			logx.String("reminders.timezone", nr.Timezone),
			logx.Int("reminders.default_snooze_minutes", nr.DefaultSnoozeMinutes),
		)
	}

	if oldCfg.Notifier != newCfg.Notifier {
		mark("notifier", false,
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.Int("notifier.retry_max", newCfg.Notifier.RetryMax),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		mark("storage", true, logx.String("storage.driver", newCfg.Storage.Driver))
	}

	if oldCfg.Digest != newCfg.Digest {
		mark("digest", false,
			logx.Bool("digest.enabled", newCfg.Digest.Enabled),
			logx.String("digest.schedule", newCfg.Digest.Schedule),
		)
	}

	oo, no := oldCfg.Ops, newCfg.Ops
	if oo != no {
		mark("ops", false,
			logx.Bool("ops.enabled", no.Enabled),
			logx.String("ops.addr", no.Addr),
			logx.Bool("ops.pprof", no.Pprof),
			logx.Bool("ops.token_set", strings.TrimSpace(no.Token) != ""),
		)
	}
	return ch
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
