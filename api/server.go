/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in X-Request-Id
  2. RealIP:     Client address behind a proxy
  3. AccessLog:  One logrus entry per request
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Timeout:    Cancels the request context after RequestTimeout; an
                 in-flight transaction rolls back
  6. CORS:       Cross-origin requests for the admin console

ROUTE GROUPS:
  /api/resources/*   Reference entities
  /api/units/*
  /api/clients/*
  /api/balances/*    Ledger rows, availability, reconciliation
  /api/receipts/*    Stock-in documents
  /api/shipments/*   Stock-out documents and their lifecycle
  /api/scenarios/*   Demo data (only with Options.Scenarios)
  /healthz           Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - internal/cli/serve.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"github.com/warp/stock-engine/inventory"
)

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	// Scenarios exposes the demo loaders, which wipe the store.
	Scenarios bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts Options) *chi.Mux {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/resources", h.referenceRoutes(inventory.KindResource))
		r.Route("/units", h.referenceRoutes(inventory.KindUnit))
		r.Route("/clients", h.referenceRoutes(inventory.KindClient))

		r.Route("/balances", func(r chi.Router) {
			r.Get("/", h.ListBalances)
			r.Get("/available", h.GetAvailable)
			r.Get("/reconcile", h.Reconcile)
		})

		r.Route("/receipts", func(r chi.Router) {
			r.Get("/", h.ListReceipts)
			r.Post("/", h.CreateReceipt)
			r.Get("/{id}", h.GetReceipt)
			r.Put("/{id}", h.UpdateReceipt)
			r.Delete("/{id}", h.DeleteReceipt)
			r.Post("/{id}/lines", h.AddReceiptLine)
			r.Delete("/{id}/lines/{lineId}", h.DeleteReceiptLine)
		})

		r.Route("/shipments", func(r chi.Router) {
			r.Get("/", h.ListShipments)
			r.Post("/", h.CreateShipment)
			r.Get("/{id}", h.GetShipment)
			r.Put("/{id}", h.UpdateShipment)
			r.Delete("/{id}", h.DeleteShipment)
			r.Post("/{id}/lines", h.AddShipmentLine)
			r.Delete("/{id}/lines/{lineId}", h.DeleteShipmentLine)
			r.Post("/{id}/sign", h.SignShipment)
			r.Post("/{id}/revoke", h.RevokeShipment)
		})

		if opts.Scenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	return r
}

func (h *Handler) referenceRoutes(kind inventory.RefKind) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", h.ListReferences(kind))
		r.Post("/", h.CreateReference(kind))
		r.Get("/{id}", h.GetReference(kind))
		r.Put("/{id}", h.UpdateReference(kind))
		r.Post("/{id}/archive", h.ArchiveReference(kind))
		r.Post("/{id}/restore", h.RestoreReference(kind))
	}
}

// AccessLog echoes the request id and logs method, path, status, size and
// duration for every request.
// 5xx responses log at Error, 4xx at Warn.
func AccessLog(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			if reqID != "" {
				w.Header().Set(middleware.RequestIDHeader, reqID)
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := log.WithFields(logrus.Fields{
				"request_id":  reqID,
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"remote":      r.RemoteAddr,
			})
			switch {
			case status >= 500:
				entry.Error("request failed")
			case status >= 400:
				entry.Warn("request rejected")
			default:
				entry.Info("request completed")
			}
		})
	}
}
