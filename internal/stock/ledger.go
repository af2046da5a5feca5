package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-hardware-checkout/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEntryNotFound     = errors.New("stock entry not found")
)

// Entry is one product's price and stock at one branch.
type Entry struct {
	ID          int64
	ProductID   int64
	ProductName string
	BranchID    int64
	BranchName  string
	Price       decimal.Decimal
	Stock       int
}

type Ledger struct{}

// GetForUpdate locks the (product, branch) row until q's transaction ends.
// Only the product_branches row is locked, not the joined catalog rows.
func (Ledger) GetForUpdate(ctx context.Context, q postgres.Querier, productID, branchID int64) (*Entry, error) {
	var e Entry
	err := q.QueryRow(ctx, `
		SELECT pb.id, pb.product_id, p.name, pb.branch_id, b.name, pb.price, pb.stock
		FROM product_branches pb
		JOIN products p ON p.id = pb.product_id
		JOIN branches b ON b.id = pb.branch_id
		WHERE pb.product_id=$1 AND pb.branch_id=$2
		FOR UPDATE OF pb`, productID, branchID).
		Scan(&e.ID, &e.ProductID, &e.ProductName, &e.BranchID, &e.BranchName, &e.Price, &e.Stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product=%d branch=%d", ErrEntryNotFound, productID, branchID)
		}
		return nil, err
	}
	return &e, nil
}

// Decrement subtracts qty from a locked entry and returns the new stock.
func (Ledger) Decrement(ctx context.Context, q postgres.Querier, e *Entry, qty int) (int, error) {
	if qty <= 0 {
		return e.Stock, fmt.Errorf("invalid quantity %d", qty)
	}
	if qty > e.Stock {
		return e.Stock, fmt.Errorf("%w: product=%d branch=%d available=%d requested=%d",
			ErrInsufficientStock, e.ProductID, e.BranchID, e.Stock, qty)
	}

	var left int
	err := q.QueryRow(ctx, `
		UPDATE product_branches SET stock = stock - $2
		WHERE id=$1 AND stock >= $2
		RETURNING stock`, e.ID, qty).Scan(&left)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return e.Stock, fmt.Errorf("%w: product=%d branch=%d", ErrInsufficientStock, e.ProductID, e.BranchID)
		}
		return e.Stock, err
	}
	e.Stock = left
	return left, nil
}
