package cachez

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "cachez"

var errRedisUnavailable = errors.New("cachez: redis client unavailable")

// RedisClient captures the subset of redis.Client used by the backend.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

type redisBackend struct {
	client RedisClient
	prefix string
}

// NewRedisBackend stores persisted entries in redis under prefix. Entries
// carry their write time; redis-side expiry is not used.
//
// Example: redis-backed persisted function
//
//	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	opt := cachez.WithBackend(cachez.NewRedisBackend(client, "app"))
//	_ = opt
func NewRedisBackend(client RedisClient, prefix string) Backend {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &redisBackend{client: client, prefix: prefix}
}

func (b *redisBackend) Driver() Driver { return DriverRedis }

func (b *redisBackend) Load(ctx context.Context, name string) (Entry, bool, error) {
	if b.client == nil {
		return Entry{}, false, errRedisUnavailable
	}
	data, err := b.client.Get(ctx, b.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	entry, err := decodeEnvelope(data)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (b *redisBackend) Save(ctx context.Context, name string, blob []byte) error {
	if b.client == nil {
		return errRedisUnavailable
	}
	return b.client.Set(ctx, b.key(name), encodeEnvelope(time.Now(), blob), 0).Err()
}

func (b *redisBackend) Delete(ctx context.Context, name string) error {
	if b.client == nil {
		return errRedisUnavailable
	}
	return b.client.Del(ctx, b.key(name)).Err()
}

func (b *redisBackend) Flush(ctx context.Context) error {
	if b.client == nil {
		return errRedisUnavailable
	}
	pattern := b.key("*")
	var cursor uint64
	for {
		keys, next, err := b.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := b.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (b *redisBackend) key(name string) string {
	return b.prefix + ":" + name
}
