// Package handler exposes read-only audit trail queries to staff with the
// view_audit capability.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civreg/internal/audit"
	"civreg/internal/authz"
	"civreg/internal/platform/middleware"
	id "civreg/pkg/domain"
	derrors "civreg/pkg/domain-errors"
	"civreg/pkg/platform/httputil"
)

// Service defines the audit queries the transport exposes.
type Service interface {
	ListByEntity(ctx context.Context, entityType audit.EntityType, entityID string) ([]audit.Entry, error)
	ListByActor(ctx context.Context, actorID id.ActorID) ([]audit.Entry, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts audit queries on the staff router.
func (h *Handler) Register(staff chi.Router) {
	staff.Get("/audit/entities/{entityType}/{entityID}", h.HandleListByEntity)
	staff.Get("/audit/actors/{actorID}", h.HandleListByActor)
}

// HandleListByEntity handles GET /audit/entities/{entityType}/{entityID}.
func (h *Handler) HandleListByEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := requireViewAudit(ctx); err != nil {
		httputil.WriteError(w, err)
		return
	}

	entityType, err := audit.ParseEntityType(chi.URLParam(r, "entityType"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entityID := chi.URLParam(r, "entityID")

	entries, err := h.service.ListByEntity(ctx, entityType, entityID)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit query failed", "error", err)
		httputil.WriteError(w, derrors.Wrap(err, derrors.CodeStorage, "audit trail unavailable"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// HandleListByActor handles GET /audit/actors/{actorID}.
func (h *Handler) HandleListByActor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := requireViewAudit(ctx); err != nil {
		httputil.WriteError(w, err)
		return
	}

	actorID, err := id.ParseActorID(chi.URLParam(r, "actorID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.service.ListByActor(ctx, actorID)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit query failed", "error", err)
		httputil.WriteError(w, derrors.Wrap(err, derrors.CodeStorage, "audit trail unavailable"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func requireViewAudit(ctx context.Context) error {
	actor, ok := middleware.ActorFromContext(ctx)
	if !ok || !actor.HasCapability(authz.CapViewAudit) {
		return derrors.Newf(derrors.CodeUnauthorized, "actor lacks %s capability", authz.CapViewAudit)
	}
	return nil
}
