package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-hardware-checkout/internal/postgres"
	"github.com/jackc/pgx/v5"
)

var (
	ErrDuplicateBuyOrder = errors.New("buy order already exists")
	ErrUnknownItem       = errors.New("item references an unknown product or branch")
	ErrNotFound          = errors.New("order not found")
	ErrNotPending        = errors.New("order is not pending")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Store struct{ DB postgres.DB }

const orderColumns = `id, buy_order, session_id, amount, status, COALESCE(token, ''),
	COALESCE(authorization_code, ''), COALESCE(card_number, ''), response_code, transaction_date,
	created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o      Order
		status string
	)
	err := row.Scan(&o.ID, &o.BuyOrder, &o.SessionID, &o.Amount, &status, &o.Token,
		&o.AuthorizationCode, &o.CardNumber, &o.ResponseCode, &o.TransactionDate,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	o.Status = Status(status)
	return &o, nil
}

// CreatePending inserts the order and all its items atomically. Uniqueness of
// buy_order is left to the constraint so concurrent creators cannot both win.
func (s *Store) CreatePending(ctx context.Context, in NewOrder) (*Order, error) {
	var o *Order
	err := postgres.InTx(ctx, s.DB, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO orders(buy_order, session_id, amount, status)
			VALUES ($1, $2, $3, 'PENDING')
			RETURNING `+orderColumns, in.BuyOrder, in.SessionID, in.Amount)
		var err error
		if o, err = scanOrder(row); err != nil {
			return err
		}

		for _, it := range in.Items {
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_items(order_id, product_id, branch_id, quantity, price_at_purchase)
				VALUES ($1, $2, $3, $4, $5)`,
				o.ID, it.ProductID, it.BranchID, it.Quantity, it.Price,
			); err != nil {
				return fmt.Errorf("insert item product=%d branch=%d: %w", it.ProductID, it.BranchID, err)
			}
		}
		return nil
	})
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, ErrDuplicateBuyOrder
		}
		if postgres.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: %v", ErrUnknownItem, err)
		}
		return nil, err
	}
	return o, nil
}

func (s *Store) SetToken(ctx context.Context, orderID int64, token string) error {
	_, err := s.DB.Exec(ctx, `UPDATE orders SET token=$2, updated_at=now() WHERE id=$1 AND status='PENDING'`, orderID, token)
	return err
}

// FindPendingByBuyOrder returns ErrNotFound for unknown or already finalized orders.
func (s *Store) FindPendingByBuyOrder(ctx context.Context, buyOrder string) (*Order, error) {
	return scanOrder(s.DB.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE buy_order=$1 AND status='PENDING'`, buyOrder))
}

func (s *Store) FindPendingByToken(ctx context.Context, token string) (*Order, error) {
	return scanOrder(s.DB.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE token=$1 AND status='PENDING'`, token))
}

func (s *Store) GetByBuyOrder(ctx context.Context, buyOrder string) (*Order, error) {
	return scanOrder(s.DB.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE buy_order=$1`, buyOrder))
}

// LockPending takes the order row lock inside q's transaction. A concurrent
// confirmation that already finalized the order yields ErrNotPending.
func (s *Store) LockPending(ctx context.Context, q postgres.Querier, orderID int64) error {
	var id int64
	err := q.QueryRow(ctx, `SELECT id FROM orders WHERE id=$1 AND status='PENDING' FOR UPDATE`, orderID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotPending
	}
	return err
}

func (s *Store) Items(ctx context.Context, q postgres.Querier, orderID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, branch_id, quantity, price_at_purchase
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.BranchID, &it.Quantity, &it.PriceAtPurchase); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Finalize moves a PENDING order to a terminal status and stamps the gateway
// fields. Pass the settlement transaction as q so the status change commits
// together with the stock decrements.
func (s *Store) Finalize(ctx context.Context, q postgres.Querier, orderID int64, to Status, f GatewayFields) error {
	if !CanTransition(StatusPending, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, StatusPending, to)
	}
	ct, err := q.Exec(ctx, `
		UPDATE orders
		SET status=$2,
		    authorization_code=NULLIF($3, ''),
		    card_number=NULLIF($4, ''),
		    response_code=$5,
		    transaction_date=$6,
		    updated_at=now()
		WHERE id=$1 AND status='PENDING'`,
		orderID, string(to), f.AuthorizationCode, f.CardNumber, f.ResponseCode, f.TransactionDate)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotPending
	}
	return nil
}
