package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/nuclearlighters/drivehealth/internal/config"
	"github.com/nuclearlighters/drivehealth/internal/metrics"
)

// NewRouter builds the server's route tree. m may be nil to run without
// /metrics and request instrumentation.
func NewRouter(cfg *config.Settings, analyzer Analyzer, m *metrics.Metrics, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger, m))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	healthHandler := NewHealthHandler(cfg, analyzer, logger)
	systemHandler := NewSystemHandler(cfg)
	drivesHandler := NewDrivesHandler(analyzer, logger)

	r.Get("/health", healthHandler.ServeHTTP)
	r.Get("/api/health", healthHandler.ServeHTTP)
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/summary", drivesHandler.Summary)
		r.Post("/refresh", drivesHandler.Refresh)

		r.Route("/drives", func(r chi.Router) {
			r.Get("/", drivesHandler.List)
			r.Get("/{serial}", drivesHandler.Get)
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/info", systemHandler.GetInfo)
			r.Get("/version", systemHandler.GetVersion)
		})
	})

	return r
}

// requestLogger logs every request and attaches the logger to the request
// context for handlers. When m is set it also records request metrics.
func requestLogger(logger zerolog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			reqLogger := logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			next.ServeHTTP(ww, r.WithContext(reqLogger.WithContext(r.Context())))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			if m != nil {
				m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
				m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			}

			reqLogger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Str("remote", r.RemoteAddr).
				Msg("request")
		})
	}
}
