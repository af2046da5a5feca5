package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-hardware-checkout/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const requestTimeout = 15 * time.Second

type Registrar interface {
	Register(r chi.Router)
}

// NewRouter mounts stream outside the request timeout so long-lived
// connections are not cut; every other handler runs under it.
func NewRouter(log *zap.Logger, stream Registrar, handlers ...Registrar) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logger.RequestLogger(log), middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if stream != nil {
		stream.Register(r)
	}
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		for _, h := range handlers {
			h.Register(r)
		}
	})
	return r
}
