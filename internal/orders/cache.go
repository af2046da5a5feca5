package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-hardware-checkout/internal/redisx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type StatusView struct {
	BuyOrder          string     `json:"buy_order"`
	Status            Status     `json:"status"`
	Amount            int64      `json:"amount"`
	ResponseCode      *int       `json:"response_code,omitempty"`
	AuthorizationCode string     `json:"authorization_code,omitempty"`
	CardNumber        string     `json:"card_number,omitempty"`
	TransactionDate   *time.Time `json:"transaction_date,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func ViewOf(o *Order) StatusView {
	return StatusView{
		BuyOrder:          o.BuyOrder,
		Status:            o.Status,
		Amount:            o.Amount,
		ResponseCode:      o.ResponseCode,
		AuthorizationCode: o.AuthorizationCode,
		CardNumber:        o.CardNumber,
		TransactionDate:   o.TransactionDate,
		UpdatedAt:         o.UpdatedAt,
	}
}

type Lookup interface {
	GetByBuyOrder(ctx context.Context, buyOrder string) (*Order, error)
}

// StatusCache is a read-through cache of order status in redis. Redis
// failures degrade to reading the store.
type StatusCache struct {
	Redis redis.Cmdable
	Store Lookup
	Log   *zap.Logger
}

func (c *StatusCache) Get(ctx context.Context, buyOrder string) (*StatusView, error) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, buyOrder)

	var v StatusView
	hit, err := redisx.GetJSON(ctx, c.Redis, key, &v)
	if err != nil {
		c.Log.Warn("status cache read failed", zap.String("buy_order", buyOrder), zap.Error(err))
	}
	if hit {
		return &v, nil
	}

	o, err := c.Store.GetByBuyOrder(ctx, buyOrder)
	if err != nil {
		return nil, err
	}
	v = ViewOf(o)
	if err := redisx.SetJSON(ctx, c.Redis, key, v, redisx.TTLStatusCache); err != nil {
		c.Log.Warn("status cache write failed", zap.String("buy_order", buyOrder), zap.Error(err))
	}
	return &v, nil
}

func (c *StatusCache) Invalidate(ctx context.Context, buyOrder string) {
	if err := c.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, buyOrder)).Err(); err != nil {
		c.Log.Warn("status cache invalidate failed", zap.String("buy_order", buyOrder), zap.Error(err))
	}
}
