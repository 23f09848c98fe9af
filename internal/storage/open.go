package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

// Open initializes the configured store, loads it and reconciles stuck
// deliveries.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	log = log.With(logx.String("driver", driver))
	switch driver {
	case "", "memory":
		return openSnapshot(ctx, newMemoryBlob(), log, time.Now)
	case "file":
		b, err := newFileBlob(cfg.Path)
		if err != nil {
			return nil, err
		}
		return openSnapshot(ctx, b, log, time.Now)
	case "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	case "postgres", "postgresql", "pgx":
		return openPostgres(ctx, cfg, log)
	case "redis":
		b, err := newRedisBlob(cfg)
		if err != nil {
			return nil, err
		}
		return openSnapshot(ctx, b, log, time.Now)
	case "discord":
		b, err := newDiscordBlob(cfg, log)
		if err != nil {
			return nil, err
		}
		return openSnapshot(ctx, b, log, time.Now)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
