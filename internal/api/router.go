// Package api exposes the ranking engine over HTTP using the chi router.
//
// Routes:
//
//	GET  /          endpoint listing
//	GET  /health    snapshot status (503 when no snapshot is loaded)
//	GET  /genres    distinct catalog genres
//	POST /recommend hybrid recommendations
//	GET  /metrics   Prometheus exposition
//
// Errors share one body shape: {"error": {"code", "message", "details", "request_id"}}.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/krishseta/game-recommender/internal/metrics"
)

// RouterConfig holds the middleware settings of the router.
type RouterConfig struct {
	CORSOrigins []string
	RateLimit   int           // requests per RateWindow and client IP on /recommend; 0 disables
	RateWindow  time.Duration // defaults to one minute
}

// NewRouter wires the handler into a chi router.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(cfg.CORSOrigins))
	r.Use(AccessLog)

	r.NotFound(h.NotFound)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(PrometheusMetrics)

		r.Get("/", h.Root)
		r.Get("/health", h.Health)
		r.Get("/genres", h.Genres)
		r.With(rateLimit(cfg, "/recommend")).Post("/recommend", h.Recommend)
	})

	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})
}

func rateLimit(cfg RouterConfig, endpoint string) func(http.Handler) http.Handler {
	if cfg.RateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	window := cfg.RateWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(
		cfg.RateLimit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.APIRateLimitHits.WithLabelValues(endpoint).Inc()
			respondError(w, r, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded", nil)
		}),
	)
}
