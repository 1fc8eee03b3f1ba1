// Package httptransport assembles the HTTP surface: middleware chain, public
// citizen endpoints, authenticated staff endpoints, health, and metrics.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	audithandler "civreg/internal/audit/handler"
	dochandler "civreg/internal/document/handler"
	"civreg/internal/platform/middleware"
	reghandler "civreg/internal/registration/handler"
	"civreg/pkg/platform/httputil"
)

// Deps carries everything the router mounts.
type Deps struct {
	Registration  *reghandler.Handler
	Documents     *dochandler.Handler
	Audit         *audithandler.Handler
	JWTSigningKey []byte
	Logger        *slog.Logger
	Health        func() error
}

// NewRouter wires the full endpoint tree. Staff routes sit behind JWT auth;
// public routes carry only the metadata middleware.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.RequestTime)

	r.Get("/healthz", handleHealth(deps.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	staff := r.With(middleware.RequireAuth(deps.JWTSigningKey, deps.Logger))
	deps.Registration.Register(r, staff)
	deps.Documents.Register(r, staff)
	deps.Audit.Register(staff)

	return r
}

func handleHealth(check func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
					"error":  err.Error(),
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
