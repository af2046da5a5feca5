// Package stockwatch consumes low-stock events and maintains the restock
// board in redis.
package stockwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-hardware-checkout/internal/events"
	kafkax "github.com/ariefcatur/go-hardware-checkout/internal/kafka"
	"github.com/ariefcatur/go-hardware-checkout/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Client is the part of a go-redis client the board writer needs; WATCH is
// not in redis.Cmdable.
type Client interface {
	redis.Cmdable
	Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error
}

type Service struct {
	Redis       Client
	ServiceName string
	Log         *zap.Logger
}

// HandleLowStock is installed as the consumer handler.
func (s *Service) HandleLowStock(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Log.Warn("skipping undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != events.EventLowStock {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	first, err := redisx.Claim(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	alert, err := kafkax.UnwrapPayload[events.LowStockAlert](env.Payload)
	if err != nil {
		s.Log.Warn("skipping bad low-stock payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	if err := s.record(ctx, alert, env.OccurredAt); err != nil {
		// release the claim so a redelivery can retry
		_ = s.Redis.Del(ctx, dkey).Err()
		return err
	}
	s.Log.Info("restock board updated", zap.String("member", alert.Key()), zap.Int("current_stock", alert.CurrentStock))
	return nil
}

// boardEntry is stored in the detail hash. Board reads it back as a plain
// LowStockAlert.
type boardEntry struct {
	events.LowStockAlert
	OccurredAt time.Time `json:"occurredAt"`
}

const watchRetries = 5

// record writes a to the board unless a newer alert for the same key is
// already there.
func (s *Service) record(ctx context.Context, a events.LowStockAlert, at time.Time) error {
	detail, err := json.Marshal(boardEntry{LowStockAlert: a, OccurredAt: at})
	if err != nil {
		return err
	}
	key := a.Key()

	write := func(tx *redis.Tx) error {
		prev, err := tx.HGet(ctx, redisx.KeyRestockDetail, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var cur boardEntry
			if json.Unmarshal([]byte(prev), &cur) == nil && cur.OccurredAt.After(at) {
				s.Log.Debug("stale low-stock alert skipped", zap.String("member", key),
					zap.Time("occurred_at", at), zap.Time("board_at", cur.OccurredAt))
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.ZAdd(ctx, redisx.KeyRestockBoard, redis.Z{Score: float64(a.CurrentStock), Member: key})
			p.HSet(ctx, redisx.KeyRestockDetail, key, detail)
			return nil
		})
		return err
	}

	for i := 0; i < watchRetries; i++ {
		err = s.Redis.Watch(ctx, write, redisx.KeyRestockDetail)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

// Board returns up to limit entries, lowest stock first.
func Board(ctx context.Context, rdb redis.Cmdable, limit int) ([]events.LowStockAlert, error) {
	if limit <= 0 {
		limit = 20
	}
	members, err := rdb.ZRange(ctx, redisx.KeyRestockBoard, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []events.LowStockAlert{}, nil
	}

	raw, err := rdb.HMGet(ctx, redisx.KeyRestockDetail, members...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]events.LowStockAlert, 0, len(raw))
	for _, v := range raw {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var a events.LowStockAlert
		if err := json.Unmarshal([]byte(str), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
