package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// applyEnv fills secrets and endpoints from the environment. File values win
// when both are set.
func applyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	fill := func(dst *string, key string) {
		if strings.TrimSpace(*dst) != "" {
			return
		}
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	fill(&cfg.Transport.Telegram.Token, "TELEGRAM_TOKEN")
	fill(&cfg.Transport.Discord.Token, "DISCORD_TOKEN")
	fill(&cfg.Storage.ChannelID, "REMINDERS_CHANNEL_ID")
	fill(&cfg.Storage.DSN, "DATABASE_URL")
	fill(&cfg.Storage.RedisURL, "REDIS_URL")
	fill(&cfg.Ops.Token, "OPS_TOKEN")

	if cfg.Storage.Token == "" {
		cfg.Storage.Token = cfg.Transport.Discord.Token
	}
	if cfg.Transport.Driver == "" {
		switch {
		case cfg.Transport.Telegram.Token != "":
			cfg.Transport.Driver = "telegram"
		case cfg.Transport.Discord.Token != "":
			cfg.Transport.Driver = "discord"
		}
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
}
