package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-hardware-checkout/internal/events"
	"github.com/ariefcatur/go-hardware-checkout/internal/logger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type EventsHandler struct {
	Broadcaster *events.Broadcaster
	Keepalive   time.Duration
	Log         *zap.Logger
}

func (h *EventsHandler) Register(r chi.Router) {
	r.Get("/events/low-stock", h.lowStock)
}

func (h *EventsHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log := logger.With(r.Context(), h.Log)
	sub := h.Broadcaster.Subscribe()
	defer h.Broadcaster.Unsubscribe(sub)
	log.Info("low-stock stream opened")

	keepalive := h.Keepalive
	if keepalive <= 0 {
		keepalive = 15 * time.Second
	}
	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			log.Info("low-stock stream closed by client")
			return
		case <-sub.Done():
			log.Warn("low-stock stream dropped, subscriber too slow")
			return
		case a := <-sub.C():
			err = events.WriteSSE(w, events.SSEEventLowStock, a)
		case <-ticker.C:
			err = events.WriteKeepalive(w)
		}
		if err != nil {
			log.Info("low-stock stream write failed", zap.Error(err))
			return
		}
		flusher.Flush()
	}
}
