package redisx

import (
	"context"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
	"time"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// OrderCache keeps serialized order views. Redis is never the source of
// truth; a miss or an error just means going to the database.
type OrderCache struct {
	RDB *redis.Client
	TTL time.Duration
}

func (c *OrderCache) ttl() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return TTLOrderCache
}

// Get reports ok=false on a miss.
func (c *OrderCache) Get(ctx context.Context, orderID int64) ([]byte, bool, error) {
	b, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrder, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// setIfNotOlder stores the view unless a newer version was recorded.
var setIfNotOlder = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[3])
return 1
`)

// Set caches view as the order at version (its updated_at in microseconds).
// It reports false when a newer version is already recorded.
func (c *OrderCache) Set(ctx context.Context, orderID, version int64, view []byte) (bool, error) {
	keys := []string{fmt.Sprintf(KeyOrder, orderID), fmt.Sprintf(KeyOrderVersion, orderID)}
	n, err := setIfNotOlder.Run(ctx, c.RDB, keys, version, view, c.ttl().Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Invalidate drops the view but keeps the version mark, so older views
// are still refused.
func (c *OrderCache) Invalidate(ctx context.Context, orderID int64) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyOrder, orderID)).Err()
}

// Dedup remembers processed event ids per service.
type Dedup struct {
	RDB     *redis.Client
	Service string
}

// Claim reports true the first time id is seen within TTLDedup.
func (d *Dedup) Claim(ctx context.Context, id string) (bool, error) {
	return d.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Service, id), "1", TTLDedup).Result()
}

// Release forgets id so a failed event can be processed again.
func (d *Dedup) Release(ctx context.Context, id string) error {
	return d.RDB.Del(ctx, fmt.Sprintf(KeyDedup, d.Service, id)).Err()
}
