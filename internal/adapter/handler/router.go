package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rl1809/rowstore/internal/logger"
	"github.com/rl1809/rowstore/internal/metrics"
	"github.com/rl1809/rowstore/internal/port"
)

type RouterParams struct {
	Handler *HTTPHandler
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	// Gatherer backs /metrics; nil leaves the route unregistered.
	Gatherer       prometheus.Gatherer
	Idempotency    port.IdempotencyStore
	IdempotencyTTL time.Duration
	CORSOrigins    []string
}

func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		Recoverer(p.Logger),
		RequestID(p.Logger),
		Logging(p.Logger),
		Metrics(p.Metrics),
	)
	if len(p.CORSOrigins) > 0 {
		r.Use(CORS(p.CORSOrigins))
	}

	r.NotFound(p.Handler.NotFound)
	r.MethodNotAllowed(p.Handler.MethodNotAllowed)

	r.Get("/", p.Handler.Index)
	r.Get("/health", p.Handler.HealthCheck)
	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/api/rows", p.Handler.ListRows)
	r.With(Idempotency(p.Idempotency, p.IdempotencyTTL, p.Logger)).Post("/api/rows", p.Handler.CreateRow)
	r.Get("/api/rows/{id:[0-9]+}", p.Handler.GetRow)
	r.Put("/api/rows/{id:[0-9]+}", p.Handler.UpdateRow)
	r.Delete("/api/rows/{id:[0-9]+}", p.Handler.DeleteRow)

	return r
}
