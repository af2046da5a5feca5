// Package checkout drives an order from creation through the payment
// gateway to settlement against branch stock.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ariefcatur/go-hardware-checkout/internal/events"
	"github.com/ariefcatur/go-hardware-checkout/internal/gateway"
	kafkax "github.com/ariefcatur/go-hardware-checkout/internal/kafka"
	"github.com/ariefcatur/go-hardware-checkout/internal/orders"
	"github.com/ariefcatur/go-hardware-checkout/internal/stock"
	"go.uber.org/zap"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	// ErrOrderNotFound also covers confirmations for orders that are no
	// longer pending.
	ErrOrderNotFound = errors.New("order not found or already processed")
	ErrPersistence   = errors.New("persistence error")
)

const cleanupTimeout = 5 * time.Second

type Service struct {
	Repo    Repository
	Gateway Gateway
	Alerts  AlertPublisher
	Events  events.Sink // optional
	Cache   StatusCache // optional
	Log     *zap.Logger

	ReturnURL         string
	LowStockThreshold int
	GatewayTimeout    time.Duration
	ServiceName       string
}

// Column widths of orders.buy_order and orders.session_id.
const (
	maxBuyOrderLen  = 50
	maxSessionIDLen = 100
)

type CreateRequest struct {
	BuyOrder  string
	SessionID string
	Amount    int64
	Items     []orders.ItemInput
}

func (r CreateRequest) validate() error {
	var missing []string
	if strings.TrimSpace(r.BuyOrder) == "" {
		missing = append(missing, "buy_order")
	}
	if strings.TrimSpace(r.SessionID) == "" {
		missing = append(missing, "session_id")
	}
	if r.Amount <= 0 {
		missing = append(missing, "amount")
	}
	if len(r.Items) == 0 {
		missing = append(missing, "items")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing or invalid %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if utf8.RuneCountInString(r.BuyOrder) > maxBuyOrderLen {
		return fmt.Errorf("%w: buy_order longer than %d characters", ErrInvalidRequest, maxBuyOrderLen)
	}
	if utf8.RuneCountInString(r.SessionID) > maxSessionIDLen {
		return fmt.Errorf("%w: session_id longer than %d characters", ErrInvalidRequest, maxSessionIDLen)
	}
	for i, it := range r.Items {
		if it.ProductID <= 0 || it.BranchID <= 0 || it.Quantity <= 0 || it.Price.IsNegative() {
			return fmt.Errorf("%w: items[%d] needs product_id, branch_id, quantity > 0 and price >= 0", ErrInvalidRequest, i)
		}
	}
	return nil
}

// Outcome is what the buyer is shown after a confirmation or abort.
type Outcome struct {
	Status             orders.Status
	BuyOrder           string
	Amount             int64
	ResponseCode       *int
	AuthorizationCode  string
	CardNumber         string
	TransactionDate    *time.Time
	TransactionDateRaw string
}

// Create persists a pending order and opens a gateway session for it. If the
// gateway cannot be used the order is kept as CANCELLED.
func (s *Service) Create(ctx context.Context, req CreateRequest) (gateway.Redirect, error) {
	if err := req.validate(); err != nil {
		return gateway.Redirect{}, err
	}

	o, err := s.Repo.CreatePending(ctx, orders.NewOrder{
		BuyOrder:  req.BuyOrder,
		SessionID: req.SessionID,
		Amount:    req.Amount,
		Items:     req.Items,
	})
	if err != nil {
		if errors.Is(err, orders.ErrDuplicateBuyOrder) {
			return gateway.Redirect{}, err
		}
		if errors.Is(err, orders.ErrUnknownItem) {
			s.Log.Info("order rejected", zap.String("buy_order", req.BuyOrder), zap.Error(err))
			return gateway.Redirect{}, fmt.Errorf("%w: %w", ErrInvalidRequest, orders.ErrUnknownItem)
		}
		return gateway.Redirect{}, fmt.Errorf("%w: create order %s: %v", ErrPersistence, req.BuyOrder, err)
	}

	gctx, cancel := s.gatewayContext(ctx)
	redirect, err := s.Gateway.Create(gctx, o.BuyOrder, o.SessionID, o.Amount, s.ReturnURL)
	cancel()
	if err != nil {
		s.Log.Warn("gateway create failed, cancelling order", zap.String("buy_order", o.BuyOrder), zap.Error(err))
		s.finalizeDetached(ctx, o, orders.StatusCancelled, orders.GatewayFields{}, err.Error())
		return gateway.Redirect{}, err
	}

	if err := s.Repo.SetToken(ctx, o.ID, redirect.Token); err != nil {
		s.Log.Warn("could not record gateway token", zap.String("buy_order", o.BuyOrder), zap.Error(err))
	}
	s.Log.Info("order created", zap.String("buy_order", o.BuyOrder), zap.Int64("amount", o.Amount))
	return redirect, nil
}

// Confirm commits the gateway session identified by token and settles or
// rejects the matching pending order. Replays of a settled token yield
// ErrOrderNotFound.
func (s *Service) Confirm(ctx context.Context, token string) (*Outcome, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", ErrInvalidRequest)
	}

	// Located before the commit so a broken commit can still be attributed.
	located, err := s.Repo.FindPendingByToken(ctx, token)
	if err != nil && !errors.Is(err, orders.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	gctx, cancel := s.gatewayContext(ctx)
	res, err := s.Gateway.Commit(gctx, token)
	cancel()
	if err != nil {
		return nil, s.commitFailed(ctx, located, err)
	}

	o, err := s.Repo.FindPendingByBuyOrder(ctx, res.BuyOrder)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			s.Log.Error("gateway commit has no pending order", zap.String("buy_order", res.BuyOrder),
				zap.Int("response_code", res.ResponseCode), zap.String("authorization_code", res.AuthorizationCode),
				zap.Int64("amount", res.Amount))
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, res.BuyOrder)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	fields := gatewayFields(res)
	if !res.Approved() {
		if err := s.Repo.Finalize(ctx, o.ID, orders.StatusRejected, fields); err != nil {
			return nil, s.finalizeError(o, err)
		}
		s.Log.Info("payment declined", zap.String("buy_order", o.BuyOrder), zap.Int("response_code", res.ResponseCode))
		s.finalized(ctx, o, orders.StatusRejected, fields, "declined")
		return outcome(o, orders.StatusRejected, fields, res), nil
	}

	alerts, err := s.settle(ctx, o, fields)
	if err != nil {
		if errors.Is(err, orders.ErrNotPending) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, o.BuyOrder)
		}
		s.Log.Error("settlement failed, marking order failed", zap.String("buy_order", o.BuyOrder), zap.Error(err))
		s.finalizeDetached(ctx, o, orders.StatusFailed, fields, "settlement failed")
		return nil, fmt.Errorf("%w: settle %s: %v", ErrPersistence, o.BuyOrder, err)
	}

	for _, a := range alerts {
		s.Alerts.Publish(a)
	}
	s.Log.Info("order paid", zap.String("buy_order", o.BuyOrder), zap.String("authorization_code", res.AuthorizationCode))
	s.finalized(ctx, o, orders.StatusPaid, fields, "")
	return outcome(o, orders.StatusPaid, fields, res), nil
}

// AbortRequest carries what the gateway posts back when the buyer leaves the
// card form. Token is set when the buyer pressed cancel; a form timeout only
// carries the session id.
type AbortRequest struct {
	BuyOrder  string
	Token     string
	SessionID string
}

// Abort cancels a pending order whose buyer left the gateway form. The order
// must match the gateway token, or the session id when no token is sent, so
// a guessed buy order cannot cancel someone else's payment.
func (s *Service) Abort(ctx context.Context, req AbortRequest) (*Outcome, error) {
	buyOrder := strings.TrimSpace(req.BuyOrder)
	token := strings.TrimSpace(req.Token)
	session := strings.TrimSpace(req.SessionID)
	if buyOrder == "" || (token == "" && session == "") {
		return nil, fmt.Errorf("%w: abort needs buy order and token or session", ErrInvalidRequest)
	}

	var (
		o   *orders.Order
		err error
	)
	if token != "" {
		o, err = s.Repo.FindPendingByToken(ctx, token)
	} else {
		o, err = s.Repo.FindPendingByBuyOrder(ctx, buyOrder)
	}
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, buyOrder)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if o.BuyOrder != buyOrder || (token == "" && o.SessionID != session) {
		s.Log.Warn("abort does not match pending order", zap.String("buy_order", buyOrder),
			zap.Bool("with_token", token != ""))
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, buyOrder)
	}

	if err := s.Repo.Finalize(ctx, o.ID, orders.StatusCancelled, orders.GatewayFields{}); err != nil {
		return nil, s.finalizeError(o, err)
	}
	s.Log.Info("payment aborted by buyer", zap.String("buy_order", o.BuyOrder))
	s.finalized(ctx, o, orders.StatusCancelled, orders.GatewayFields{}, "aborted")
	return &Outcome{Status: orders.StatusCancelled, BuyOrder: o.BuyOrder, Amount: o.Amount}, nil
}

// settle decrements stock for every item and marks the order PAID in one
// transaction. Oversold or missing stock rows are logged and skipped, the
// payment is already captured.
func (s *Service) settle(ctx context.Context, o *orders.Order, fields orders.GatewayFields) ([]events.LowStockAlert, error) {
	var alerts []events.LowStockAlert
	err := s.Repo.InTx(ctx, func(tx Tx) error {
		alerts = alerts[:0]
		if err := tx.LockPending(ctx, o.ID); err != nil {
			return err
		}
		items, err := tx.Items(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("load items: %w", err)
		}
		// A fixed lock order keeps two settlements from deadlocking.
		sort.Slice(items, func(i, j int) bool {
			if items[i].ProductID != items[j].ProductID {
				return items[i].ProductID < items[j].ProductID
			}
			return items[i].BranchID < items[j].BranchID
		})

		for _, it := range items {
			e, err := tx.GetForUpdate(ctx, it.ProductID, it.BranchID)
			if errors.Is(err, stock.ErrEntryNotFound) {
				s.Log.Warn("no stock entry for paid item", zap.String("buy_order", o.BuyOrder),
					zap.Int64("product_id", it.ProductID), zap.Int64("branch_id", it.BranchID))
				continue
			}
			if err != nil {
				return err
			}

			available := e.Stock
			left, err := tx.Decrement(ctx, e, it.Quantity)
			if errors.Is(err, stock.ErrInsufficientStock) {
				s.Log.Warn("oversold after payment", zap.String("buy_order", o.BuyOrder),
					zap.Int64("product_id", it.ProductID), zap.Int64("branch_id", it.BranchID),
					zap.Int("available", available), zap.Int("requested", it.Quantity))
				continue
			}
			if err != nil {
				return err
			}

			if left <= s.LowStockThreshold {
				alerts = append(alerts, events.LowStockAlert{
					ProductID:    e.ProductID,
					ProductName:  e.ProductName,
					BranchID:     e.BranchID,
					BranchName:   e.BranchName,
					CurrentStock: left,
				})
			}
		}
		return tx.Finalize(ctx, o.ID, orders.StatusPaid, fields)
	})
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

// commitFailed attributes a failed commit to the order located by token.
// A declared processor error rejects it; anything else fails it.
func (s *Service) commitFailed(ctx context.Context, located *orders.Order, err error) error {
	if located == nil {
		s.Log.Warn("gateway commit failed for unknown token", zap.Error(err))
		if errors.Is(err, gateway.ErrProcessor) {
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		}
		return err
	}
	to := orders.StatusFailed
	if errors.Is(err, gateway.ErrProcessor) {
		to = orders.StatusRejected
	}
	s.Log.Warn("gateway commit failed", zap.String("buy_order", located.BuyOrder),
		zap.String("status", string(to)), zap.Error(err))
	s.finalizeDetached(ctx, located, to, orders.GatewayFields{}, err.Error())
	return err
}

func (s *Service) finalizeError(o *orders.Order, err error) error {
	if errors.Is(err, orders.ErrNotPending) {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, o.BuyOrder)
	}
	return fmt.Errorf("%w: finalize %s: %v", ErrPersistence, o.BuyOrder, err)
}

// finalizeDetached records a terminal status even when ctx was cancelled by
// the caller, which is the usual case after a gateway timeout.
func (s *Service) finalizeDetached(ctx context.Context, o *orders.Order, to orders.Status, f orders.GatewayFields, reason string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.Repo.Finalize(dctx, o.ID, to, f); err != nil {
		s.Log.Error("could not finalize order", zap.String("buy_order", o.BuyOrder),
			zap.String("status", string(to)), zap.Error(err))
		return
	}
	s.finalized(dctx, o, to, f, reason)
}

// finalized runs the best-effort side effects of a terminal transition.
func (s *Service) finalized(ctx context.Context, o *orders.Order, to orders.Status, f orders.GatewayFields, reason string) {
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, o.BuyOrder)
	}
	if s.Events == nil {
		return
	}
	env := events.NewEnvelope(events.EventOrderFinalized, s.ServiceName, o.BuyOrder, events.OrderFinalizedPayload{
		OrderID:      o.ID,
		BuyOrder:     o.BuyOrder,
		FinalStatus:  string(to),
		Amount:       o.Amount,
		ResponseCode: f.ResponseCode,
		Reason:       reason,
	})
	if !s.Events.Publish(events.PartitionKey(o.BuyOrder), kafkax.MustMarshal(env), env.Headers()...) {
		s.Log.Warn("order event dropped, producer queue full", zap.String("buy_order", o.BuyOrder))
	}
}

func (s *Service) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.GatewayTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.GatewayTimeout)
}

func gatewayFields(r gateway.Result) orders.GatewayFields {
	code := r.ResponseCode
	f := orders.GatewayFields{
		AuthorizationCode: r.AuthorizationCode,
		CardNumber:        r.MaskedCard,
		ResponseCode:      &code,
	}
	if !r.TransactionDate.IsZero() {
		ts := r.TransactionDate
		f.TransactionDate = &ts
	}
	return f
}

func outcome(o *orders.Order, st orders.Status, f orders.GatewayFields, r gateway.Result) *Outcome {
	return &Outcome{
		Status:             st,
		BuyOrder:           o.BuyOrder,
		Amount:             o.Amount,
		ResponseCode:       f.ResponseCode,
		AuthorizationCode:  f.AuthorizationCode,
		CardNumber:         f.CardNumber,
		TransactionDate:    f.TransactionDate,
		TransactionDateRaw: r.TransactionDateRaw,
	}
}
