package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var orderCols = []string{"id", "buy_order", "session_id", "amount", "status", "token",
	"authorization_code", "card_number", "response_code", "transaction_date", "created_at", "updated_at"}

func pendingOrderRow() *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(orderCols).
		AddRow(int64(7), "BO-1", "sess", int64(36000), "PENDING", "tok-BO-1", "", "", nil, nil, now, now)
}

func TestPGRepositorySettlesInOneTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	gw := &fakeGateway{}
	gw.approve("BO-1")
	alerts := &alertRecorder{}
	svc := &Service{
		Repo:              NewPGRepository(mock),
		Gateway:           gw,
		Alerts:            alerts,
		Log:               zap.NewNop(),
		LowStockThreshold: 10,
	}

	mock.ExpectQuery(`WHERE token=\$1 AND status='PENDING'`).WithArgs("tok-BO-1").WillReturnRows(pendingOrderRow())
	mock.ExpectQuery(`WHERE buy_order=\$1 AND status='PENDING'`).WithArgs("BO-1").WillReturnRows(pendingOrderRow())
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM orders WHERE id=\$1 AND status='PENDING' FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery(`FROM order_items`).WithArgs(int64(7)).WillReturnRows(
		pgxmock.NewRows([]string{"id", "order_id", "product_id", "branch_id", "quantity", "price_at_purchase"}).
			AddRow(int64(1), int64(7), int64(1), int64(1), 4, decimal.NewFromInt(9000)))
	mock.ExpectQuery(`FOR UPDATE OF pb`).WithArgs(int64(1), int64(1)).WillReturnRows(
		pgxmock.NewRows([]string{"id", "product_id", "name", "branch_id", "name", "price", "stock"}).
			AddRow(int64(11), int64(1), "Martillo", int64(1), "Casa Matriz", decimal.NewFromInt(9000), 12))
	mock.ExpectQuery(`UPDATE product_branches`).WithArgs(int64(11), 4).
		WillReturnRows(pgxmock.NewRows([]string{"stock"}).AddRow(8))
	mock.ExpectExec(`UPDATE orders`).
		WithArgs(int64(7), "PAID", "1213", "6623", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	out, err := svc.Confirm(context.Background(), "tok-BO-1")
	require.NoError(t, err)
	assert.Equal(t, "BO-1", out.BuyOrder)
	assert.NoError(t, mock.ExpectationsWereMet())

	got := alerts.all()
	require.Len(t, got, 1)
	assert.Equal(t, 8, got[0].CurrentStock)
	assert.Equal(t, "Casa Matriz", got[0].BranchName)
}
