package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"remindbot/internal/task/scheduler"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags, duration strings and cross-field rules.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	durations := map[string]string{
		"transport.telegram.poll_timeout": cfg.Transport.Telegram.PollTimeout,
		"reminders.poll_interval":         cfg.Reminders.PollInterval,
		"reminders.notify_timeout":        cfg.Reminders.NotifyTimeout,
		"reminders.store_timeout":         cfg.Reminders.StoreTimeout,
		"notifier.retry_base":             cfg.Notifier.RetryBase,
		"notifier.retry_max_delay":        cfg.Notifier.RetryMaxDelay,
		"notifier.call_timeout":           cfg.Notifier.CallTimeout,
		"storage.busy_timeout":            cfg.Storage.BusyTimeout,
	}
	for path, raw := range durations {
		if _, err := parseDuration(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if d := cfg.Reminders.PollIntervalOr(0); d > 0 && d < time.Second {
		errs = append(errs, errors.New("reminders.poll_interval: must be at least 1s"))
	}
	if tz := strings.TrimSpace(cfg.Reminders.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("reminders.timezone: %w", err))
		}
	}
	if cfg.Digest.Enabled && strings.TrimSpace(cfg.Digest.Schedule) != "" {
		if err := scheduler.ValidateSchedule(cfg.Digest.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("digest.schedule: %w", err))
		}
	}

	switch cfg.Transport.Driver {
	case "telegram":
		if cfg.Transport.Telegram.Token == "" {
			errs = append(errs, errors.New("transport.telegram.token (or TELEGRAM_TOKEN) is required"))
		}
	case "discord":
		if cfg.Transport.Discord.Token == "" {
			errs = append(errs, errors.New("transport.discord.token (or DISCORD_TOKEN) is required"))
		}
	}

	switch cfg.Storage.Driver {
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for driver %q", cfg.Storage.Driver))
		}
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn (or DATABASE_URL) is required for postgres"))
		}
	case "redis":
		if strings.TrimSpace(cfg.Storage.RedisURL) == "" {
			errs = append(errs, errors.New("storage.redis_url (or REDIS_URL) is required for redis"))
		}
	case "discord":
		if strings.TrimSpace(cfg.Storage.ChannelID) == "" {
			errs = append(errs, errors.New("storage.channel_id (or REMINDERS_CHANNEL_ID) is required for discord storage"))
		}
		if strings.TrimSpace(cfg.Storage.Token) == "" {
			errs = append(errs, errors.New("storage.token (or DISCORD_TOKEN) is required for discord storage"))
		}
	}
	return errors.Join(errs...)
}
