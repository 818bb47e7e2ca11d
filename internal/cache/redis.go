// Package cache implements the thumbnail cache and the general-purpose
// distributed lock primitive (§4.8) on Redis. Correctness never depends on
// a cache hit; this package is a performance layer only.
package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"image-processor/internal/domain"
)

const thumbKeyPrefix = "thumb:"
const lockKeyPrefix = "lock:"

const defaultThumbTTL = time.Hour

// releaseScript deletes a lock key only if its value still matches the
// token the caller acquired it with — the standard single-node compare-and-
// delete idiom for avoiding releasing a lock someone else now holds.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

type Cache struct {
	client *redis.Client
}

func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func Dial(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis url: %v", domain.ErrCache, err)
	}
	// Single multiplexed connection with exponential-backoff reconnect
	// (cap 3s) and a retry limit of ten (§5 connection pools).
	opts.PoolSize = 1
	opts.MaxRetries = 10
	opts.MaxRetryBackoff = 3 * time.Second
	return redis.NewClient(opts), nil
}

func (c *Cache) GetThumb(ctx context.Context, imageID string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, thumbKeyPrefix+imageID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: get thumb: %v", domain.ErrCache, err)
	}
	return b, true, nil
}

func (c *Cache) SetThumb(ctx context.Context, imageID string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultThumbTTL
	}
	if err := c.client.Set(ctx, thumbKeyPrefix+imageID, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set thumb: %v", domain.ErrCache, err)
	}
	return nil
}

// InvalidateThumb is best-effort: callers are expected to log and swallow
// its error (§4.6 step 9, §7).
func (c *Cache) InvalidateThumb(ctx context.Context, imageID string) error {
	if err := c.client.Del(ctx, thumbKeyPrefix+imageID).Err(); err != nil {
		return fmt.Errorf("%w: invalidate thumb: %v", domain.ErrCache, err)
	}
	return nil
}

// AcquireLock is an atomic set-if-absent with TTL. The returned token must
// be passed to ReleaseLock so a caller can never release a lock it does not
// hold.
func (c *Cache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	token, err = randomToken()
	if err != nil {
		return "", false, fmt.Errorf("%w: generate lock token: %v", domain.ErrCache, err)
	}
	ok, err = c.client.SetNX(ctx, lockKeyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("%w: acquire lock: %v", domain.ErrCache, err)
	}
	return token, ok, nil
}

func (c *Cache) ReleaseLock(ctx context.Context, key, token string) error {
	if err := c.client.Eval(ctx, releaseScript, []string{lockKeyPrefix + key}, token).Err(); err != nil {
		return fmt.Errorf("%w: release lock: %v", domain.ErrCache, err)
	}
	return nil
}

// WithLock acquires key, runs fn, and releases it on every exit path.
// Returns domain.ErrConcurrency if the lock could not be acquired.
func (c *Cache) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	token, ok, err := c.AcquireLock(ctx, key, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: lock %q held by another caller", domain.ErrConcurrency, key)
	}
	defer c.ReleaseLock(ctx, key, token)
	return fn(ctx)
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
