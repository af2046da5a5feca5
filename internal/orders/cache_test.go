package orders

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingLookup struct {
	order *Order
	calls int
}

func (l *countingLookup) GetByBuyOrder(_ context.Context, buyOrder string) (*Order, error) {
	l.calls++
	if l.order == nil || l.order.BuyOrder != buyOrder {
		return nil, ErrNotFound
	}
	cp := *l.order
	return &cp, nil
}

func TestStatusCacheReadThroughAndInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	lookup := &countingLookup{order: &Order{BuyOrder: "BO-1", Amount: 21500, Status: StatusPending}}
	c := &StatusCache{Redis: rdb, Store: lookup, Log: zap.NewNop()}
	ctx := context.Background()

	v, err := c.Get(ctx, "BO-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, v.Status)
	_, err = c.Get(ctx, "BO-1")
	require.NoError(t, err)
	assert.Equal(t, 1, lookup.calls)
	assert.True(t, mr.Exists("order_status:BO-1"))

	lookup.order.Status = StatusPaid
	c.Invalidate(ctx, "BO-1")
	v, err = c.Get(ctx, "BO-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, v.Status)
	assert.Equal(t, 2, lookup.calls)
}

func TestStatusCacheFallsBackWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	c := &StatusCache{Redis: rdb, Store: &countingLookup{order: &Order{BuyOrder: "BO-1", Status: StatusPaid}}, Log: zap.NewNop()}
	v, err := c.Get(context.Background(), "BO-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, v.Status)

	_, err = c.Get(context.Background(), "BO-404")
	assert.ErrorIs(t, err, ErrNotFound)
}
