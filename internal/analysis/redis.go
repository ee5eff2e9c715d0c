package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	. "github.com/cricklet/chessuci/internal/helpers"
)

const upsertRetries = 5

// RedisCache keeps evaluations as JSON strings under prefix + FEN.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Cache = (*RedisCache)(nil)

// ConnectRedis parses url and pings the server.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error pinging Redis: %w", err)
	}
	return client, nil
}

// NewRedisCache stores entries without expiry when ttl is zero.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(fen string) string {
	return c.prefix + Normalize(fen)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func get(ctx context.Context, conn getter, key string) (Optional[Evaluation], error) {
	data, err := conn.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Empty[Evaluation](), nil
	}
	if err != nil {
		return Empty[Evaluation](), fmt.Errorf("error reading %v: %w", key, err)
	}

	e := Evaluation{}
	if err := json.Unmarshal(data, &e); err != nil {
		return Empty[Evaluation](), fmt.Errorf("error decoding %v: %w", key, err)
	}
	return Some(e), nil
}

func (c *RedisCache) Get(ctx context.Context, fen string) (Optional[Evaluation], error) {
	return get(ctx, c.client, c.key(fen))
}

// Put replaces the stored entry only when e is deeper, watching the key so
// concurrent writers can't overwrite a deeper result.
func (c *RedisCache) Put(ctx context.Context, e Evaluation) (bool, error) {
	key := c.key(e.FEN)
	data, err := json.Marshal(e)
	if err != nil {
		return false, err
	}

	stored := false
	upsert := func(tx *redis.Tx) error {
		stored = false
		existing, err := get(ctx, tx, key)
		if err != nil {
			return err
		}
		if existing.HasValue() && existing.Value().Depth >= e.Depth {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		stored = err == nil
		return err
	}

	for i := 0; i < upsertRetries; i++ {
		err := c.client.Watch(ctx, upsert, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("error storing %v: %w", key, err)
		}
		return stored, nil
	}
	return false, fmt.Errorf("error storing %v: too many concurrent writers", key)
}
