package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-hardware-checkout/internal/redisx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedSearch keeps search results in redis for a short TTL. Stock figures
// in cached results may lag settlements by up to that TTL.
type CachedSearch struct {
	Next  Searcher
	Redis redis.Cmdable
	TTL   time.Duration
	Log   *zap.Logger
}

func (c *CachedSearch) Search(ctx context.Context, q string) ([]Product, error) {
	key := fmt.Sprintf(redisx.KeyProductSearch, strings.ToLower(strings.TrimSpace(q)))

	var cached []Product
	hit, err := redisx.GetJSON(ctx, c.Redis, key, &cached)
	if err != nil {
		c.Log.Warn("search cache read failed", zap.String("q", q), zap.Error(err))
	}
	if hit {
		return cached, nil
	}

	out, err := c.Next.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = redisx.TTLSearchCache
	}
	if err := redisx.SetJSON(ctx, c.Redis, key, out, ttl); err != nil {
		c.Log.Warn("search cache write failed", zap.String("q", q), zap.Error(err))
	}
	return out, nil
}
