package stockwatch

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-hardware-checkout/internal/events"
	kafkax "github.com/ariefcatur/go-hardware-checkout/internal/kafka"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) (*Service, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &Service{Redis: rdb, ServiceName: "stockwatch", Log: zap.NewNop()}, rdb
}

func message(env events.Envelope) kafkago.Message {
	return kafkago.Message{Key: events.PartitionKey(env.CorrelationID), Value: kafkax.MustMarshal(env)}
}

func lowStock(product, branch int64, stock int) events.Envelope {
	a := events.LowStockAlert{ProductID: product, ProductName: "Martillo", BranchID: branch, BranchName: "Casa Matriz", CurrentStock: stock}
	return events.NewEnvelope(events.EventLowStock, "checkout-api", a.Key(), a)
}

func TestBoardOrdersByCurrentStock(t *testing.T) {
	s, rdb := newService(t)
	ctx := context.Background()

	require.NoError(t, s.HandleLowStock(ctx, message(lowStock(1, 1, 8))))
	require.NoError(t, s.HandleLowStock(ctx, message(lowStock(2, 1, 3))))
	require.NoError(t, s.HandleLowStock(ctx, message(lowStock(1, 1, 5))))

	board, err := Board(ctx, rdb, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, int64(2), board[0].ProductID)
	assert.Equal(t, 3, board[0].CurrentStock)
	assert.Equal(t, 5, board[1].CurrentStock)
}

func TestRedeliveredEventIsIgnored(t *testing.T) {
	s, rdb := newService(t)
	ctx := context.Background()

	env := lowStock(1, 1, 8)
	require.NoError(t, s.HandleLowStock(ctx, message(env)))
	require.NoError(t, rdb.ZAdd(ctx, "restock:board", redis.Z{Score: 2, Member: "1:1"}).Err())
	require.NoError(t, s.HandleLowStock(ctx, message(env)))

	score, err := rdb.ZScore(ctx, "restock:board", "1:1").Result()
	require.NoError(t, err)
	assert.Equal(t, float64(2), score)
}

func TestOtherEventsAndGarbageAreSkipped(t *testing.T) {
	s, rdb := newService(t)
	ctx := context.Background()

	other := events.NewEnvelope(events.EventOrderFinalized, "checkout-api", "BO-1", events.OrderFinalizedPayload{BuyOrder: "BO-1"})
	require.NoError(t, s.HandleLowStock(ctx, message(other)))
	require.NoError(t, s.HandleLowStock(ctx, kafkago.Message{Value: []byte("not json")}))

	board, err := Board(ctx, rdb, 0)
	require.NoError(t, err)
	assert.Empty(t, board)
}

func TestOlderAlertDoesNotOverwriteNewer(t *testing.T) {
	s, rdb := newService(t)
	ctx := context.Background()

	older := lowStock(1, 1, 8)
	newer := lowStock(1, 1, 3)
	older.OccurredAt = newer.OccurredAt.Add(-time.Second)

	require.NoError(t, s.HandleLowStock(ctx, message(newer)))
	require.NoError(t, s.HandleLowStock(ctx, message(older)))

	board, err := Board(ctx, rdb, 10)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, 3, board[0].CurrentStock)

	score, err := rdb.ZScore(ctx, "restock:board", "1:1").Result()
	require.NoError(t, err)
	assert.Equal(t, float64(3), score)

	restocked := lowStock(1, 1, 9)
	restocked.OccurredAt = newer.OccurredAt.Add(time.Minute)
	require.NoError(t, s.HandleLowStock(ctx, message(restocked)))

	board, err = Board(ctx, rdb, 10)
	require.NoError(t, err)
	assert.Equal(t, 9, board[0].CurrentStock)
}
