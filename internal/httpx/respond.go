package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-hardware-checkout/internal/catalog"
	"github.com/ariefcatur/go-hardware-checkout/internal/checkout"
	"github.com/ariefcatur/go-hardware-checkout/internal/gateway"
	"github.com/ariefcatur/go-hardware-checkout/internal/logger"
	"github.com/ariefcatur/go-hardware-checkout/internal/orders"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps domain errors to status codes. Server-side failures get a
// generic message; details go to the log only.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	code, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, checkout.ErrInvalidRequest), errors.Is(err, catalog.ErrInvalidProduct):
		code, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, orders.ErrDuplicateBuyOrder), errors.Is(err, catalog.ErrAlreadyExists):
		code, msg = http.StatusConflict, err.Error()
	case errors.Is(err, checkout.ErrOrderNotFound), errors.Is(err, orders.ErrNotFound):
		code, msg = http.StatusNotFound, "order not found or already processed"
	case errors.Is(err, gateway.ErrProcessor):
		code, msg = http.StatusBadGateway, "payment was not accepted by the processor"
	case errors.Is(err, gateway.ErrTimeout), errors.Is(err, gateway.ErrUnavailable),
		errors.Is(err, gateway.ErrUnrecognizedResponse):
		code, msg = http.StatusBadGateway, "payment gateway error"
	}

	l := logger.With(r.Context(), log)
	if code >= 500 {
		l.Error("request failed", zap.String("path", r.URL.Path), zap.Int("status", code), zap.Error(err))
	} else {
		l.Info("request rejected", zap.String("path", r.URL.Path), zap.Int("status", code), zap.Error(err))
	}
	writeJSON(w, code, errorBody{Error: msg})
}
