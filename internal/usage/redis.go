package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "speakbot:usage:"
	// Counters outlive their day so late requests around midnight still
	// see the right value.
	redisKeyTTL = 48 * time.Hour
)

var incrementIfBelow = redis.NewScript(`
local n = tonumber(redis.call("GET", KEYS[1]) or "0")
if n >= tonumber(ARGV[1]) then
  return {n, 0}
end
n = redis.call("INCR", KEYS[1])
redis.call("EXPIRE", KEYS[1], ARGV[2])
return {n, 1}
`)

// RedisTally shares counts between bot replicas.
type RedisTally struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTally(client *redis.Client) *RedisTally {
	return &RedisTally{client: client, ttl: redisKeyTTL}
}

// NewRedisTallyFromURL parses a redis:// URL and checks connectivity.
func NewRedisTallyFromURL(ctx context.Context, url string) (*RedisTally, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisTally(client), nil
}

func (t *RedisTally) Seeded(ctx context.Context, key Key) (bool, error) {
	n, err := t.client.Exists(ctx, t.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *RedisTally) Seed(ctx context.Context, key Key, count int) error {
	return t.client.SetNX(ctx, t.key(key), count, t.ttl).Err()
}

func (t *RedisTally) IncrementIfBelow(ctx context.Context, key Key, limit int) (int, bool, error) {
	res, err := incrementIfBelow.Run(ctx, t.client, []string{t.key(key)}, limit, int(t.ttl/time.Second)).Int64Slice()
	if err != nil {
		return 0, false, err
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("unexpected script reply: %v", res)
	}
	return int(res[0]), res[1] == 1, nil
}

func (t *RedisTally) Increment(ctx context.Context, key Key) (int, error) {
	k := t.key(key)
	var incr *redis.IntCmd
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, t.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (t *RedisTally) Count(ctx context.Context, key Key) (int, error) {
	n, err := t.client.Get(ctx, t.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (t *RedisTally) Mode() string { return "redis" }

func (t *RedisTally) Close() error {
	return t.client.Close()
}

func (t *RedisTally) key(key Key) string {
	return redisKeyPrefix + key.String()
}
