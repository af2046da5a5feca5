package checkout

import (
	"context"

	"github.com/ariefcatur/go-hardware-checkout/internal/events"
	"github.com/ariefcatur/go-hardware-checkout/internal/gateway"
	"github.com/ariefcatur/go-hardware-checkout/internal/orders"
	"github.com/ariefcatur/go-hardware-checkout/internal/stock"
)

type Gateway interface {
	Create(ctx context.Context, buyOrder, sessionID string, amount int64, returnURL string) (gateway.Redirect, error)
	Commit(ctx context.Context, token string) (gateway.Result, error)
}

// Repository is the order store outside a transaction plus a way to open a
// settlement transaction.
type Repository interface {
	CreatePending(ctx context.Context, in orders.NewOrder) (*orders.Order, error)
	SetToken(ctx context.Context, orderID int64, token string) error
	FindPendingByBuyOrder(ctx context.Context, buyOrder string) (*orders.Order, error)
	FindPendingByToken(ctx context.Context, token string) (*orders.Order, error)
	Finalize(ctx context.Context, orderID int64, to orders.Status, f orders.GatewayFields) error
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is everything settlement does inside one transaction. Row locks taken
// through it are held until the transaction ends.
type Tx interface {
	LockPending(ctx context.Context, orderID int64) error
	Items(ctx context.Context, orderID int64) ([]orders.Item, error)
	GetForUpdate(ctx context.Context, productID, branchID int64) (*stock.Entry, error)
	Decrement(ctx context.Context, e *stock.Entry, qty int) (int, error)
	Finalize(ctx context.Context, orderID int64, to orders.Status, f orders.GatewayFields) error
}

type AlertPublisher interface {
	Publish(events.LowStockAlert)
}

type StatusCache interface {
	Invalidate(ctx context.Context, buyOrder string)
}
