package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/supplychain/notifyconsole/internal/notify"
)

const redisOperationTimeout = 5 * time.Second

// RedisBackend stores the encoded snapshot under a single string key.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// ConnectRedis builds a client from a redis:// URL or a bare host:port.
func ConnectRedis(target string) (*redis.Client, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, ErrInvalidInput
	}
	if strings.HasPrefix(target, "redis://") || strings.HasPrefix(target, "rediss://") {
		opt, err := redis.ParseURL(target)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: target}), nil
}

func NewRedisBackend(client *redis.Client, key string) *RedisBackend {
	return &RedisBackend{client: client, key: normalizeKey(key)}
}

func (b *RedisBackend) Load() ([]notify.StoredNotification, error) {
	if b == nil || b.client == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOperationTimeout)
	defer cancel()
	data, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func (b *RedisBackend) Save(items []notify.StoredNotification) error {
	if b == nil || b.client == nil {
		return nil
	}
	data, err := Encode(items)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOperationTimeout)
	defer cancel()
	return b.client.Set(ctx, b.key, data, 0).Err()
}

func (b *RedisBackend) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}
