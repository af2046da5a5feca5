package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ariefcatur/go-hardware-checkout/internal/events"
	"github.com/ariefcatur/go-hardware-checkout/internal/gateway"
	"github.com/ariefcatur/go-hardware-checkout/internal/orders"
	"github.com/ariefcatur/go-hardware-checkout/internal/stock"
	kafkago "github.com/segmentio/kafka-go"
)

type stockKey struct{ product, branch int64 }

// memRepo serializes settlement transactions, which is stricter than
// per-row locking and enough to observe the same outcomes.
type memRepo struct {
	mu   sync.Mutex
	txMu sync.Mutex

	nextID     int64
	orders     map[int64]*orders.Order
	items      map[int64][]orders.Item
	stock      map[stockKey]*stock.Entry
	decrements int

	failSettleFinalize error
	createErr          error
}

func newMemRepo(entries ...stock.Entry) *memRepo {
	r := &memRepo{
		orders: make(map[int64]*orders.Order),
		items:  make(map[int64][]orders.Item),
		stock:  make(map[stockKey]*stock.Entry),
	}
	for i := range entries {
		e := entries[i]
		e.ID = int64(i + 1)
		r.stock[stockKey{e.ProductID, e.BranchID}] = &e
	}
	return r
}

func (r *memRepo) CreatePending(_ context.Context, in orders.NewOrder) (*orders.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	for _, o := range r.orders {
		if o.BuyOrder == in.BuyOrder {
			return nil, orders.ErrDuplicateBuyOrder
		}
	}
	r.nextID++
	now := time.Now()
	o := &orders.Order{ID: r.nextID, BuyOrder: in.BuyOrder, SessionID: in.SessionID, Amount: in.Amount,
		Status: orders.StatusPending, CreatedAt: now, UpdatedAt: now}
	r.orders[o.ID] = o
	for i, it := range in.Items {
		r.items[o.ID] = append(r.items[o.ID], orders.Item{ID: int64(i + 1), OrderID: o.ID, ProductID: it.ProductID,
			BranchID: it.BranchID, Quantity: it.Quantity, PriceAtPurchase: it.Price})
	}
	cp := *o
	return &cp, nil
}

func (r *memRepo) SetToken(_ context.Context, orderID int64, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[orderID]; ok && o.Status == orders.StatusPending {
		o.Token = token
	}
	return nil
}

func (r *memRepo) findPending(match func(*orders.Order) bool) (*orders.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.Status == orders.StatusPending && match(o) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, orders.ErrNotFound
}

func (r *memRepo) FindPendingByBuyOrder(_ context.Context, buyOrder string) (*orders.Order, error) {
	return r.findPending(func(o *orders.Order) bool { return o.BuyOrder == buyOrder })
}

func (r *memRepo) FindPendingByToken(_ context.Context, token string) (*orders.Order, error) {
	return r.findPending(func(o *orders.Order) bool { return o.Token != "" && o.Token == token })
}

func (r *memRepo) Finalize(_ context.Context, orderID int64, to orders.Status, f orders.GatewayFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalizeLocked(orderID, to, f)
}

func (r *memRepo) finalizeLocked(orderID int64, to orders.Status, f orders.GatewayFields) error {
	if !orders.CanTransition(orders.StatusPending, to) {
		return orders.ErrInvalidTransition
	}
	o, ok := r.orders[orderID]
	if !ok || o.Status != orders.StatusPending {
		return orders.ErrNotPending
	}
	o.Status = to
	o.GatewayFields = f
	o.UpdatedAt = time.Now()
	return nil
}

func (r *memRepo) InTx(_ context.Context, fn func(Tx) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	savedOrders := make(map[int64]orders.Order, len(r.orders))
	for id, o := range r.orders {
		savedOrders[id] = *o
	}
	savedStock := make(map[stockKey]stock.Entry, len(r.stock))
	for k, e := range r.stock {
		savedStock[k] = *e
	}
	savedDecrements := r.decrements
	r.mu.Unlock()

	if err := fn(&memTx{r: r}); err != nil {
		r.mu.Lock()
		for id, o := range savedOrders {
			*r.orders[id] = o
		}
		for k, e := range savedStock {
			*r.stock[k] = e
		}
		r.decrements = savedDecrements
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *memRepo) order(buyOrder string) orders.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.BuyOrder == buyOrder {
			return *o
		}
	}
	return orders.Order{}
}

func (r *memRepo) stockOf(product, branch int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stock[stockKey{product, branch}].Stock
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type memTx struct{ r *memRepo }

func (t *memTx) LockPending(_ context.Context, orderID int64) error {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	if o, ok := t.r.orders[orderID]; !ok || o.Status != orders.StatusPending {
		return orders.ErrNotPending
	}
	return nil
}

func (t *memTx) Items(_ context.Context, orderID int64) ([]orders.Item, error) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	return append([]orders.Item(nil), t.r.items[orderID]...), nil
}

func (t *memTx) GetForUpdate(_ context.Context, productID, branchID int64) (*stock.Entry, error) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	e, ok := t.r.stock[stockKey{productID, branchID}]
	if !ok {
		return nil, stock.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (t *memTx) Decrement(_ context.Context, e *stock.Entry, qty int) (int, error) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	stored := t.r.stock[stockKey{e.ProductID, e.BranchID}]
	if qty > stored.Stock {
		return stored.Stock, stock.ErrInsufficientStock
	}
	stored.Stock -= qty
	e.Stock = stored.Stock
	t.r.decrements++
	return stored.Stock, nil
}

func (t *memTx) Finalize(_ context.Context, orderID int64, to orders.Status, f orders.GatewayFields) error {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	if t.r.failSettleFinalize != nil {
		return t.r.failSettleFinalize
	}
	return t.r.finalizeLocked(orderID, to, f)
}

type fakeGateway struct {
	mu        sync.Mutex
	createErr error
	results   map[string]gateway.Result
	commitErr error
	block     bool
	commits   int
}

func (g *fakeGateway) Create(_ context.Context, buyOrder, _ string, _ int64, _ string) (gateway.Redirect, error) {
	if g.createErr != nil {
		return gateway.Redirect{}, g.createErr
	}
	return gateway.Redirect{URL: "https://pay.example/init", Token: "tok-" + buyOrder}, nil
}

func (g *fakeGateway) Commit(ctx context.Context, token string) (gateway.Result, error) {
	g.mu.Lock()
	g.commits++
	block, err := g.block, g.commitErr
	res, ok := g.results[token]
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return gateway.Result{}, fmt.Errorf("%w: %v", gateway.ErrTimeout, ctx.Err())
	}
	if err != nil {
		return gateway.Result{}, err
	}
	if !ok {
		return gateway.Result{}, fmt.Errorf("%w: unknown token", gateway.ErrProcessor)
	}
	return res, nil
}

func (g *fakeGateway) approve(buyOrder string) {
	g.set(buyOrder, gateway.Result{BuyOrder: buyOrder, ResponseCode: 0, Status: "AUTHORIZED",
		AuthorizationCode: "1213", MaskedCard: "6623",
		TransactionDate: time.Date(2024, 3, 1, 14, 22, 5, 0, time.UTC)})
}

func (g *fakeGateway) set(buyOrder string, res gateway.Result) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.results == nil {
		g.results = make(map[string]gateway.Result)
	}
	g.results["tok-"+buyOrder] = res
}

type alertRecorder struct {
	mu     sync.Mutex
	alerts []events.LowStockAlert
}

func (a *alertRecorder) Publish(e events.LowStockAlert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, e)
}

func (a *alertRecorder) all() []events.LowStockAlert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]events.LowStockAlert(nil), a.alerts...)
}

type sinkRecorder struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (s *sinkRecorder) Publish(_, value []byte, _ ...kafkago.Header) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, value)
	return true
}

type cacheRecorder struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *cacheRecorder) Invalidate(_ context.Context, buyOrder string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, buyOrder)
}
