package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/commerce-router/internal/handler/catalog"
	"github.com/zhouzirui/commerce-router/internal/handler/route"
	"github.com/zhouzirui/commerce-router/internal/handler/stream"
	"github.com/zhouzirui/commerce-router/internal/handler/ws"
	"github.com/zhouzirui/commerce-router/internal/logging"
	"github.com/zhouzirui/commerce-router/internal/metrics"
	middlewarePkg "github.com/zhouzirui/commerce-router/internal/middleware"
	"github.com/zhouzirui/commerce-router/internal/model/service"
	"github.com/zhouzirui/commerce-router/internal/store"
	"github.com/zhouzirui/commerce-router/pkg/utils"
)

// Deps collects what the HTTP layer needs.
type Deps struct {
	Router    route.Service
	Services  service.Store
	Profiles  store.ProfileStore
	MCP       http.Handler
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	RateLimit *middlewarePkg.RateLimiter
	// Health lists backends checked by /healthz.
	Health map[string]store.Pinger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", healthHandler(d.Health))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(api chi.Router) {
		catalog.New(d.Services, d.Profiles).RegisterRoutes(api)

		// routing endpoints share the per-client limit
		api.Group(func(limited chi.Router) {
			limited.Use(d.RateLimit.Handler)
			route.New(d.Router).RegisterRoutes(limited)
			stream.New(d.Router).RegisterRoutes(limited)
		})

		// websocket frames are limited one route message at a time
		ws.New(d.Router, d.Metrics, ws.WithLimiter(d.RateLimit)).RegisterRoutes(api)
	})

	if d.MCP != nil {
		r.With(d.RateLimit.Handler).Post("/mcp", d.MCP.ServeHTTP)
	}

	return r
}

func healthHandler(backends map[string]store.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(backends))
		for name, p := range backends {
			if err := p.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				checks[name] = err.Error()
				continue
			}
			checks[name] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		utils.RespondJSON(w, status, map[string]any{"status": state, "checks": checks})
	}
}

func requestLogger(next http.Handler) http.Handler {
	logger := logging.For("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request handled")
	})
}
