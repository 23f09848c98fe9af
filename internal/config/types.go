package config

import "time"

// Config is the on-disk configuration (JSON or YAML). Durations are Go
// duration strings such as "30s" or "1m".
//
// Reloadable at runtime: logging, reminders (except timezone), notifier,
// digest channel, ops. Storage and transport take effect on restart.
type Config struct {
	Transport TransportConfig `json:"transport"`
	Logging   LoggingConfig   `json:"logging"`
	Reminders RemindersConfig `json:"reminders"`
	Notifier  NotifierConfig  `json:"notifier"`
	Storage   StorageConfig   `json:"storage"`
	Digest    DigestConfig    `json:"digest"`
	Ops       OpsConfig       `json:"ops"`
}

type TransportConfig struct {
	Driver   string         `json:"driver" validate:"omitempty,oneof=telegram discord"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Token       string `json:"token,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type DiscordConfig struct {
	Token string `json:"token,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Console bool        `json:"console"`
	File    FileLogging `json:"file"`
	Chat    ChatLogging `json:"chat"`
}

type FileLogging struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" validate:"required_if=Enabled true"`
}

// ChatLogging mirrors warn+ log lines into Target (a chat or channel id).
type ChatLogging struct {
	Enabled    bool   `json:"enabled"`
	Target     string `json:"target" validate:"required_if=Enabled true"`
	MinLevel   string `json:"min_level,omitempty" validate:"omitempty,oneof=debug info warn warning error"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"gte=0"`
}

type RemindersConfig struct {
	PollInterval         string `json:"poll_interval,omitempty"`
	NotifyTimeout        string `json:"notify_timeout,omitempty"`
	StoreTimeout         string `json:"store_timeout,omitempty"`
	Fanout               int    `json:"fanout,omitempty" validate:"gte=0,lte=64"`
	Timezone             string `json:"timezone,omitempty"`
	DefaultSnoozeMinutes int    `json:"default_snooze_minutes,omitempty" validate:"gte=0,lte=10080"`
}

type NotifierConfig struct {
	RatePerSec    int    `json:"rate_per_sec,omitempty" validate:"gte=0"`
	RetryMax      int    `json:"retry_max,omitempty" validate:"gte=0,lte=10"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	CallTimeout   string `json:"call_timeout,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=memory file sqlite sqlite3 postgres postgresql pgx redis discord"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	RedisURL    string `json:"redis_url,omitempty"`
	Key         string `json:"key,omitempty"`
	ChannelID   string `json:"channel_id,omitempty"`
	Token       string `json:"token,omitempty"`
}

type DigestConfig struct {
	Enabled   bool   `json:"enabled"`
	Schedule  string `json:"schedule,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Pprof         bool   `json:"pprof"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure"`
}

// Duration accessors. Values are validated on load, so a parse failure
// here falls back to def.

func (c RemindersConfig) PollIntervalOr(def time.Duration) time.Duration {
	return durationOr(c.PollInterval, def)
}

func (c RemindersConfig) NotifyTimeoutOr(def time.Duration) time.Duration {
	return durationOr(c.NotifyTimeout, def)
}

func (c RemindersConfig) StoreTimeoutOr(def time.Duration) time.Duration {
	return durationOr(c.StoreTimeout, def)
}

// Location resolves Timezone; empty means the host zone.
func (c RemindersConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c NotifierConfig) RetryBaseOr(def time.Duration) time.Duration {
	return durationOr(c.RetryBase, def)
}

func (c NotifierConfig) RetryMaxDelayOr(def time.Duration) time.Duration {
	return durationOr(c.RetryMaxDelay, def)
}

func (c NotifierConfig) CallTimeoutOr(def time.Duration) time.Duration {
	return durationOr(c.CallTimeout, def)
}

func (c TelegramConfig) PollTimeoutOr(def time.Duration) time.Duration {
	return durationOr(c.PollTimeout, def)
}

func (c StorageConfig) BusyTimeoutOr(def time.Duration) time.Duration {
	return durationOr(c.BusyTimeout, def)
}

func durationOr(raw string, def time.Duration) time.Duration {
	d, err := parseDuration("", raw)
	if err != nil || d == 0 {
		return def
	}
	return d
}
