/*
cache.go - Read-through Redis cache for reports

PURPOSE:
  Report queries scan the entry log. The cache stores each answer under a
  key derived from the owner and the query, for ReportTTL.

CONSISTENCY:
  Reports are already eventually consistent, so a TTL-bounded stale answer
  is acceptable. Any Redis failure degrades to the wrapped Reporter.

SEE ALSO:
  - reports.go: Aggregator
  - config/config.go: TILL_REDIS_*
*/
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warp/channel-ledger/config"
	"github.com/warp/channel-ledger/ledger"
	"github.com/warp/channel-ledger/logger"
)

const keyNamespace = "till:reports"

type cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
}

// Cache is a read-through Redis cache in front of a Reporter. Reports are
// already eventually consistent, so a TTL-bounded stale answer is acceptable.
// Redis failures degrade to the underlying Reporter.
type Cache struct {
	next   Reporter
	rdb    cmdable
	ttl    time.Duration
	logger *logger.Logger
}

func NewCache(next Reporter, rdb cmdable, ttl time.Duration, logg *logger.Logger) *Cache {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Cache{next: next, rdb: rdb, ttl: ttl, logger: logg}
}

// NewRedisClient connects to cfg.URL and verifies connectivity.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *Cache) ChannelTotals(ctx context.Context, ownerID ledger.OwnerID, q Query) ([]ChannelTotal, error) {
	var totals []ChannelTotal
	key := cacheKey("totals", ownerID, q)
	if c.lookup(ctx, key, &totals) {
		return totals, nil
	}
	totals, err := c.next.ChannelTotals(ctx, ownerID, q)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, totals)
	return totals, nil
}

func (c *Cache) TopChannel(ctx context.Context, ownerID ledger.OwnerID, q Query) (ChannelTotal, error) {
	var top ChannelTotal
	key := cacheKey("top", ownerID, q)
	if c.lookup(ctx, key, &top) {
		return top, nil
	}
	top, err := c.next.TopChannel(ctx, ownerID, q)
	if err != nil {
		return ChannelTotal{}, err
	}
	c.store(ctx, key, top)
	return top, nil
}

func (c *Cache) lookup(ctx context.Context, key string, dst any) bool {
	raw, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn(c.logger.WithField(ctx, "error", err.Error()), "reports.cache_get_failed")
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		c.logger.Warn(c.logger.WithField(ctx, "error", err.Error()), "reports.cache_decode_failed")
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, body, c.ttl).Err(); err != nil {
		c.logger.Warn(c.logger.WithField(ctx, "error", err.Error()), "reports.cache_set_failed")
	}
}

func cacheKey(kind string, ownerID ledger.OwnerID, q Query) string {
	return strings.Join([]string{keyNamespace, kind, string(ownerID), q.Range.String(), string(q.ReferenceType)}, ":")
}
