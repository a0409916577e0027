package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"idflow/internal/middleware"
)

// RouterConfig carries the cross-cutting middleware settings for the admin
// API. A nil Validator disables authentication.
type RouterConfig struct {
	AllowedOrigins []string
	RateLimit      middleware.RateLimitConfig
	Validator      middleware.TokenValidator
}

// NewRouter assembles the admin API router. The health endpoint is public;
// everything else lives under /v1 behind auth.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	if cfg.RateLimit.RequestsPerSecond > 0 {
		r.Use(middleware.RateLimiter(cfg.RateLimit))
	}

	r.Get("/healthz", h.Healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Validator))

		r.Get("/status", h.GetStatus)
		r.Post("/reconcile", h.TriggerTick)

		r.Get("/rules", h.GetRules)
		r.Post("/rules/reload", h.ReloadRules)
		r.Post("/rules/validate", h.ValidateRules)

		r.Get("/federation", h.GetFederation)
		r.Post("/federation/negotiate", h.NegotiateFederation)
		r.Delete("/federation", h.TeardownFederation)

		r.Get("/notifications/failures", h.ListNotificationFailures)
		r.Get("/reconcile/failures", h.ListReconcileFailures)
		r.Delete("/reconcile/failures", h.ClearReconcileFailures)
	})

	return r
}
