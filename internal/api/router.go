package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type routerOptions struct {
	trustProxyHeaders bool
}

type RouterOption func(*routerOptions)

// WithTrustedProxyHeaders takes the client address from X-Forwarded-For or
// X-Real-IP. Enable it only behind a proxy that overwrites those headers;
// otherwise clients can choose the address stored with their confirmation.
func WithTrustedProxyHeaders() RouterOption {
	return func(o *routerOptions) { o.trustProxyHeaders = true }
}

func NewRouter(h *Handler, jwtSecret []byte, logger *zap.Logger, opts ...RouterOption) http.Handler {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if o.trustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(Metrics)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(OptionalAuth(jwtSecret, logger))

		r.Get("/session/current.json", h.CurrentUser)
		r.Route("/user-consent", func(r chi.Router) {
			r.Post("/confirm", h.Confirm)
			r.Get("/settings.json", h.Settings)
		})
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request handled",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr))
		})
	}
}
