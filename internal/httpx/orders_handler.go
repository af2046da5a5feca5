package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-hardware-checkout/internal/checkout"
	"github.com/ariefcatur/go-hardware-checkout/internal/gateway"
	"github.com/ariefcatur/go-hardware-checkout/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Checkout interface {
	Create(ctx context.Context, req checkout.CreateRequest) (gateway.Redirect, error)
	Confirm(ctx context.Context, token string) (*checkout.Outcome, error)
	Abort(ctx context.Context, req checkout.AbortRequest) (*checkout.Outcome, error)
}

type StatusReader interface {
	Get(ctx context.Context, buyOrder string) (*orders.StatusView, error)
}

type OrdersHandler struct {
	Checkout Checkout
	Status   StatusReader
	Log      *zap.Logger
}

type CreateOrderReq struct {
	BuyOrder  string             `json:"buy_order"`
	SessionID string             `json:"session_id"`
	Amount    int64              `json:"amount"`
	Items     []orders.ItemInput `json:"items"`
}

type paidResp struct {
	Status            orders.Status `json:"status"`
	BuyOrder          string        `json:"buy_order"`
	Amount            int64         `json:"amount"`
	AuthorizationCode string        `json:"authorization_code"`
	CardNumber        string        `json:"card_number"`
	TransactionDate   string        `json:"transaction_date,omitempty"`
}

type unpaidResp struct {
	Status       orders.Status `json:"status"`
	BuyOrder     string        `json:"buy_order"`
	Amount       int64         `json:"amount"`
	ResponseCode *int          `json:"response_code,omitempty"`
	Message      string        `json:"message"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/confirm", h.confirm)
	r.Post("/orders/confirm", h.confirm)
	r.Get("/orders/{buyOrder}", h.getOrder)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		req.SessionID = "session-" + uuid.NewString()
	}

	redirect, err := h.Checkout.Create(r.Context(), checkout.CreateRequest{
		BuyOrder:  req.BuyOrder,
		SessionID: req.SessionID,
		Amount:    req.Amount,
		Items:     req.Items,
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, redirect)
}

// confirm is the gateway return URL. token_ws means the form was submitted;
// TBK_ORDEN_COMPRA without it means the buyer aborted (TBK_TOKEN) or the form
// timed out (TBK_ID_SESION).
func (h *OrdersHandler) confirm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid form"})
		return
	}

	var (
		out *checkout.Outcome
		err error
	)
	if token := r.FormValue("token_ws"); token != "" {
		out, err = h.Checkout.Confirm(r.Context(), token)
	} else if buyOrder := r.FormValue("TBK_ORDEN_COMPRA"); buyOrder != "" {
		out, err = h.Checkout.Abort(r.Context(), checkout.AbortRequest{
			BuyOrder:  buyOrder,
			Token:     r.FormValue("TBK_TOKEN"),
			SessionID: r.FormValue("TBK_ID_SESION"),
		})
	} else {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "transaction token not found"})
		return
	}
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	switch out.Status {
	case orders.StatusPaid:
		writeJSON(w, http.StatusOK, paidResp{
			Status:            out.Status,
			BuyOrder:          out.BuyOrder,
			Amount:            out.Amount,
			AuthorizationCode: out.AuthorizationCode,
			CardNumber:        out.CardNumber,
			TransactionDate:   transactionDate(out),
		})
	case orders.StatusCancelled:
		writeJSON(w, http.StatusOK, unpaidResp{Status: out.Status, BuyOrder: out.BuyOrder, Amount: out.Amount,
			Message: "Payment cancelled by the buyer."})
	default:
		code := 0
		if out.ResponseCode != nil {
			code = *out.ResponseCode
		}
		writeJSON(w, http.StatusBadRequest, unpaidResp{Status: out.Status, BuyOrder: out.BuyOrder, Amount: out.Amount,
			ResponseCode: out.ResponseCode, Message: declineMessage(code)})
	}
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	buyOrder := chi.URLParam(r, "buyOrder")
	v, err := h.Status.Get(r.Context(), buyOrder)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// transactionDate prefers the processor's own string.
func transactionDate(o *checkout.Outcome) string {
	if o.TransactionDateRaw != "" {
		return o.TransactionDateRaw
	}
	if o.TransactionDate != nil {
		return o.TransactionDate.Format(time.RFC3339)
	}
	return ""
}

var declineReasons = map[int]string{
	-1: "The card has insufficient funds.",
	-2: "Invalid card or PIN.",
	-3: "Transaction error, for example the daily limit was exceeded.",
	-4: "Transaction rejected by the processor.",
	-5: "Operation error.",
	-6: "Too many PIN retries.",
	-7: "Rejected, the sale cannot be completed.",
}

func declineMessage(code int) string {
	reason, ok := declineReasons[code]
	if !ok {
		reason = "No detailed message available."
	}
	return fmt.Sprintf("Payment failed. Response code: %d. %s", code, reason)
}
