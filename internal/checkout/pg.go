package checkout

import (
	"context"

	"github.com/ariefcatur/go-hardware-checkout/internal/orders"
	"github.com/ariefcatur/go-hardware-checkout/internal/postgres"
	"github.com/ariefcatur/go-hardware-checkout/internal/stock"
	"github.com/jackc/pgx/v5"
)

// PGRepository backs Repository with the order store and stock ledger on one
// Postgres pool.
type PGRepository struct {
	*orders.Store
	Ledger stock.Ledger
}

func NewPGRepository(db postgres.DB) *PGRepository {
	return &PGRepository{Store: &orders.Store{DB: db}}
}

func (r *PGRepository) Finalize(ctx context.Context, orderID int64, to orders.Status, f orders.GatewayFields) error {
	return r.Store.Finalize(ctx, r.Store.DB, orderID, to, f)
}

func (r *PGRepository) InTx(ctx context.Context, fn func(Tx) error) error {
	return postgres.InTx(ctx, r.Store.DB, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx, store: r.Store, ledger: r.Ledger})
	})
}

type pgTx struct {
	tx     pgx.Tx
	store  *orders.Store
	ledger stock.Ledger
}

func (t *pgTx) LockPending(ctx context.Context, orderID int64) error {
	return t.store.LockPending(ctx, t.tx, orderID)
}

func (t *pgTx) Items(ctx context.Context, orderID int64) ([]orders.Item, error) {
	return t.store.Items(ctx, t.tx, orderID)
}

func (t *pgTx) GetForUpdate(ctx context.Context, productID, branchID int64) (*stock.Entry, error) {
	return t.ledger.GetForUpdate(ctx, t.tx, productID, branchID)
}

func (t *pgTx) Decrement(ctx context.Context, e *stock.Entry, qty int) (int, error) {
	return t.ledger.Decrement(ctx, t.tx, e, qty)
}

func (t *pgTx) Finalize(ctx context.Context, orderID int64, to orders.Status, f orders.GatewayFields) error {
	return t.store.Finalize(ctx, t.tx, orderID, to, f)
}
