package events

import (
	"context"

	kafkax "github.com/ariefcatur/go-hardware-checkout/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Sink is a non-blocking message producer; false means the message was dropped.
type Sink interface {
	Publish(key, value []byte, headers ...kafkago.Header) bool
}

// Relay forwards alerts from its own subscription to a Kafka sink.
type Relay struct {
	Broadcaster *Broadcaster
	Sink        Sink
	Producer    string
	Log         *zap.Logger
}

// Run blocks until ctx is done. If the relay's subscription is dropped it
// subscribes again; alerts published in between are lost.
func (r *Relay) Run(ctx context.Context) {
	for {
		sub := r.Broadcaster.Subscribe()
		r.pump(ctx, sub)
		r.Broadcaster.Unsubscribe(sub)
		if ctx.Err() != nil {
			return
		}
		r.Log.Warn("low-stock relay subscription dropped, resubscribing")
	}
}

func (r *Relay) pump(ctx context.Context, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case a := <-sub.C():
			r.forward(a)
		}
	}
}

func (r *Relay) forward(a LowStockAlert) {
	env := NewEnvelope(EventLowStock, r.Producer, a.Key(), a)
	if !r.Sink.Publish(PartitionKey(a.Key()), kafkax.MustMarshal(env), env.Headers()...) {
		r.Log.Warn("low-stock event not relayed, producer queue full",
			zap.Int64("product_id", a.ProductID), zap.Int64("branch_id", a.BranchID))
	}
}
