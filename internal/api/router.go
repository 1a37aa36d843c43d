package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/donorhub/notify-pipeline/internal/api/handler"
	apimw "github.com/donorhub/notify-pipeline/internal/api/middleware"
	"github.com/donorhub/notify-pipeline/internal/broker"
	"github.com/donorhub/notify-pipeline/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc *service.NotificationService,
	b *broker.Broker,
	heartbeat time.Duration,
	reg prometheus.Gatherer,
	logger *zap.Logger,
	streamHooks handler.StreamHooks,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	jh := handler.NewJobHandler(svc, logger)
	nh := handler.NewNotificationHandler(svc, logger)
	sh := handler.NewStreamHandler(b, heartbeat, logger, streamHooks)
	mh := handler.NewMetricsHandler(svc)
	hh := handler.NewHealthHandler()

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Producer boundary + operator dead-letter view.
		r.Post("/jobs", jh.Enqueue)
		r.Get("/jobs/dead", jh.ListDeadLettered)

		// Notification records — /stream must be registered before /{id}
		// so chi does not treat the literal string "stream" as an ID.
		r.Get("/notifications/stream", sh.Stream)
		r.Get("/notifications", nh.List)
		r.Get("/notifications/{id}", nh.GetByID)

		// JSON metrics snapshot
		r.Get("/metrics", mh.GetMetrics)
	})

	return r
}
