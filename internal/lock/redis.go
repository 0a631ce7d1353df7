package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by SET NX PX. A holder that dies releases the key
// when its TTL expires.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

// RedisOption customises a Redis locker.
type RedisOption func(*Redis)

// WithPrefix namespaces lock keys.
func WithPrefix(p string) RedisOption { return func(r *Redis) { r.prefix = p } }

// WithRetry sets the polling interval while waiting for a held key.
func WithRetry(d time.Duration) RedisOption { return func(r *Redis) { r.retry = d } }

// WithLogger sets the logger used for release failures.
func WithLogger(l *slog.Logger) RedisOption { return func(r *Redis) { r.logger = l } }

// NewRedis returns a Locker whose keys expire after ttl.
func NewRedis(client redis.UniversalClient, ttl time.Duration, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: "loanledger:lock:", ttl: ttl, retry: 50 * time.Millisecond, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Connect dials addr and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{Addr: addr})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return c, nil
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.prefix + key
	token := uuid.NewString()
	t := time.NewTicker(r.retry)
	defer t.Stop()
	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return func() { r.release(k, token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (r *Redis) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
		r.logger.Warn("lock release failed", "key", key, "err", err)
	}
}
