package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID        int64     `json:"id"`
	BuyOrder  string    `json:"buy_order"`
	SessionID string    `json:"session_id"`
	Amount    int64     `json:"amount"`
	Status    Status    `json:"status"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	GatewayFields
}

// GatewayFields are stamped on the order once a gateway result is known.
type GatewayFields struct {
	AuthorizationCode string     `json:"authorization_code,omitempty"`
	CardNumber        string     `json:"card_number,omitempty"`
	ResponseCode      *int       `json:"response_code,omitempty"`
	TransactionDate   *time.Time `json:"transaction_date,omitempty"`
}

type Item struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	ProductID       int64           `json:"product_id"`
	BranchID        int64           `json:"branch_id"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
}

type ItemInput struct {
	ProductID int64           `json:"product_id"`
	BranchID  int64           `json:"branch_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type NewOrder struct {
	BuyOrder  string
	SessionID string
	Amount    int64
	Items     []ItemInput
}
