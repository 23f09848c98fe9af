package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "remindbot:reminders"

// redisBlob stores the snapshot under one key. SET replaces the value
// atomically.
type redisBlob struct {
	rdb *redis.Client
	key string
}

func newRedisBlob(cfg Config) (*redisBlob, error) {
	url := strings.TrimSpace(cfg.RedisURL)
	if url == "" {
		return nil, errors.New("storage.redis_url is required for redis driver")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		key = defaultRedisKey
	}
	return &redisBlob{rdb: redis.NewClient(opt), key: key}, nil
}

func (b *redisBlob) Load(ctx context.Context) ([]byte, error) {
	data, err := b.rdb.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

func (b *redisBlob) Save(ctx context.Context, data []byte) error {
	return b.rdb.Set(ctx, b.key, data, 0).Err()
}

func (b *redisBlob) Quarantine(ctx context.Context, data []byte) error {
	key := fmt.Sprintf("%s:corrupt:%d", b.key, time.Now().Unix())
	return b.rdb.Set(ctx, key, data, 0).Err()
}

func (b *redisBlob) Close() error { return b.rdb.Close() }
