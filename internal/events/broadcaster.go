// Package events distributes low-stock alerts to in-process subscribers and
// relays them to Kafka.
package events

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type LowStockAlert struct {
	ProductID    int64  `json:"productId"`
	ProductName  string `json:"productName"`
	BranchID     int64  `json:"branchId"`
	BranchName   string `json:"branchName"`
	CurrentStock int    `json:"currentStock"`
}

func (a LowStockAlert) Key() string { return fmt.Sprintf("%d:%d", a.ProductID, a.BranchID) }

// Subscription is one subscriber's bounded queue. C is never closed; Done is
// closed when the subscriber is unsubscribed or dropped.
type Subscription struct {
	ch   chan LowStockAlert
	done chan struct{}
	once sync.Once
}

func (s *Subscription) C() <-chan LowStockAlert { return s.ch }
func (s *Subscription) Done() <-chan struct{}  { return s.done }

func (s *Subscription) close() { s.once.Do(func() { close(s.done) }) }

// Broadcaster delivers at most once to each live subscriber and never blocks
// the publisher.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
	buf  int
	log  *zap.Logger
}

func NewBroadcaster(buf int, log *zap.Logger) *Broadcaster {
	if buf <= 0 {
		buf = 16
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{subs: make(map[*Subscription]struct{}), buf: buf, log: log}
}

func (b *Broadcaster) Subscribe() *Subscription {
	s := &Subscription{ch: make(chan LowStockAlert, b.buf), done: make(chan struct{})}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	n := len(b.subs)
	b.mu.Unlock()
	b.log.Debug("subscriber added", zap.Int("subscribers", n))
	return s
}

// Unsubscribe is safe to call more than once.
func (b *Broadcaster) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
	s.close()
}

// Publish offers a to every subscriber registered at the time of the call.
// A subscriber with a full queue is dropped.
func (b *Broadcaster) Publish(a LowStockAlert) {
	b.mu.RLock()
	snapshot := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		snapshot = append(snapshot, s)
	}
	b.mu.RUnlock()

	for _, s := range snapshot {
		select {
		case <-s.done:
			continue
		default:
		}
		select {
		case s.ch <- a:
		default:
			b.Unsubscribe(s)
			b.log.Warn("dropped slow subscriber",
				zap.Int64("product_id", a.ProductID), zap.Int64("branch_id", a.BranchID))
		}
	}
}

func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close drops every subscriber. Streams see Done and end.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()
	for s := range subs {
		s.close()
	}
}
