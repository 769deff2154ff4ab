package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript increments the key's counter unless it already reached the
// limit, opening a window with PEXPIRE on the first hit. It returns the
// count and the window's remaining TTL in milliseconds.
var takeScript = redis.NewScript(`
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
local ttl = redis.call("PTTL", KEYS[1])
if count == 0 or ttl < 0 then
  redis.call("SET", KEYS[1], 1, "PX", ARGV[2])
  return {1, tonumber(ARGV[2]), 1}
end
if count >= tonumber(ARGV[1]) then
  return {count, ttl, 0}
end
count = redis.call("INCR", KEYS[1])
return {count, ttl, 1}
`)

// RedisStore keeps fixed windows in Redis so several instances share one
// quota per key.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a RedisStore using keys prefixed with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// OpenRedis parses a redis:// URL and verifies connectivity.
func OpenRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Take implements Store.
func (r *RedisStore) Take(ctx context.Context, key string, limit int, win time.Duration, now time.Time) (int, time.Time, bool, error) {
	res, err := takeScript.Run(ctx, r.client, []string{r.prefix + key}, limit, win.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, false, err
	}
	count, ttl, allowed := int(res[0]), time.Duration(res[1])*time.Millisecond, res[2] == 1
	return count, now.Add(ttl), allowed, nil
}
