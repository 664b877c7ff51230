/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  X-Request-Id propagated or generated, added to log context
  2. Logger:     request.start / request.complete with status and duration
  3. Recoverer:  Panic recovery (500 envelope instead of crash)
  4. CORS:       Cross-origin requests for the storefront frontend
  5. Auth:       Bearer JWT -> auth.Actor (only under /api)

ROUTE GROUPS:
  /api/channels/*       Channel lifecycle, balance operations, entries
  /api/reconcile        Reconcile all of the caller's channels
  /api/reports/*        Channel totals and top channel
  /api/scenarios/*      Demo scenarios (when enabled)
  /healthz              Liveness + store ping
  /metrics              Prometheus exposition

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Middleware implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/warp/channel-ledger/config"
)

// RouterConfig carries what the router needs besides the handler.
type RouterConfig struct {
	JWT            config.JWTConfig
	AllowedOrigins []string

	// Metrics serves /metrics when set (promhttp.HandlerFor).
	Metrics http.Handler

	// Ping reports store health for /healthz when set.
	Ping func(ctx context.Context) error
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(requestID(h.Logger))
	r.Use(requestLogger(h.Logger))
	r.Use(recoverer(h.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Ping != nil {
			if err := cfg.Ping(req.Context()); err != nil {
				h.Logger.Error(req.Context(), "healthz.store_unreachable", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate(cfg.JWT, h.Logger))

		// Channel routes
		r.Route("/channels", func(r chi.Router) {
			r.Get("/", h.ListChannels)
			r.Post("/", h.CreateChannel)
			r.Get("/{id}", h.GetChannel)
			r.Patch("/{id}", h.UpdateChannel)
			r.Post("/{id}/deactivate", h.DeactivateChannel)
			r.Post("/{id}/credits", h.Credit)
			r.Post("/{id}/debits", h.Debit)
			r.Post("/{id}/sale-payments", h.ApplySalePayment)
			r.Post("/{id}/adjustments", h.AdjustBalance)
			r.Post("/{id}/reconcile", h.ReconcileChannel)
			r.Get("/{id}/entries", h.ListEntries)
			r.Get("/{id}/balance", h.GetBalanceAt)
		})

		r.Post("/reconcile", h.ReconcileOwner)

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/channel-totals", h.ChannelTotals)
			r.Get("/top-channel", h.TopChannel)
		})

		// Scenario routes
		if h.AllowScenarios && h.Store != nil {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	return r
}
